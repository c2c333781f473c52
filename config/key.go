// Package config defines the kernel's configuration model: scalar and
// structured (map-valued) config keys, deferred values materialized
// asynchronously, and the coercion helpers used when reading loosely
// typed values.
//
// Keys are descriptors only. Storage and inheritance live with the entity
// that owns the values; this package defines identity, defaults and the
// merge semantics of structured keys.
package config

import "fmt"

// Ref is the identity shared by all config key kinds.
type Ref interface {
	Name() string
	TypeName() string
	Default() any
}

// Key is a scalar config key: a named, typed slot with an optional default.
type Key struct {
	name         string
	typeName     string
	description  string
	defaultValue any
}

// NewKey creates a scalar config key. typeName is advisory and drives
// coercion on read ("string", "int", "bool", "float", "duration", "any").
func NewKey(name, typeName string) Key {
	return Key{name: name, typeName: typeName}
}

// WithDefault returns a copy of the key with the given default value
func (k Key) WithDefault(v any) Key {
	k.defaultValue = v
	return k
}

// WithDescription returns a copy of the key with a human-readable description
func (k Key) WithDescription(d string) Key {
	k.description = d
	return k
}

// Name returns the key's identity
func (k Key) Name() string { return k.name }

// TypeName returns the declared value type
func (k Key) TypeName() string { return k.typeName }

// Description returns the key's description
func (k Key) Description() string { return k.description }

// Default returns the declared default value, or nil
func (k Key) Default() any { return k.defaultValue }

func (k Key) String() string {
	return fmt.Sprintf("%s[%s]", k.name, k.typeName)
}
