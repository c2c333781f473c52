package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rohankumardubey/brooklyn-server/errors"
)

// Warnings from best-effort extraction are throttled so a misconfigured
// blueprint cannot flood the log on every read.
var extractWarnLimit = rate.NewLimiter(rate.Every(10*time.Second), 5)

// MapKey is a config key whose value is a string-keyed composite addressable
// by sub-keys. Values can be written as whole maps, as individual sub-key
// entries, or through a Modification (MapPut, MapSet, MapAdd) carrying its
// own merge policy.
//
// Storage convention: the root value (if any) lives under the key's own name;
// sub-key entries live under dotted extensions ("keyname.subkey"). The
// effective map is the root value overlaid with the sub-key entries.
type MapKey struct {
	Key
}

// NewMapKey creates a structured map-valued config key
func NewMapKey(name string) MapKey {
	return MapKey{Key: NewKey(name, "map")}
}

// WithDefault returns a copy of the key with the given default map value
func (k MapKey) WithDefault(v map[string]any) MapKey {
	k.Key = k.Key.WithDefault(v)
	return k
}

// WithDescription returns a copy of the key with a description
func (k MapKey) WithDescription(d string) MapKey {
	k.Key = k.Key.WithDescription(d)
	return k
}

// SubKey derives the config key for a single entry of the map
func (k MapKey) SubKey(sub string) Key {
	return Key{name: k.name + "." + sub, typeName: "any"}
}

// SubKeyName extracts the bare sub-key from a stored key name, if the stored
// name is a dotted extension of this key.
func (k MapKey) SubKeyName(stored string) (string, bool) {
	return strings.CutPrefix(stored, k.name+".")
}

// Entry is a single sub-key/value pair usable as a value for a MapKey
type Entry struct {
	Key   string
	Value any
}

// Extract coerces a candidate stored value into map shape. A candidate that
// cannot be coerced is logged and treated as absent, never as an error:
// callers must treat "cannot extract" as "key not present".
func (k MapKey) Extract(candidate any, logger *slog.Logger) (map[string]any, bool) {
	if candidate == nil {
		return nil, false
	}
	if m, ok := ToStringMap(candidate); ok {
		return m, true
	}
	if logger != nil && extractWarnLimit.Allow() {
		logger.Warn("unable to extract structured config value as map",
			"key", k.name, "valueType", fmt.Sprintf("%T", candidate))
	}
	return nil, false
}

// Merge returns a fresh map: a copy of base overlaid with every sub-key
// entry, last write wins per leaf key. Callers own the result; neither input
// is mutated.
func (k MapKey) Merge(base map[string]any, subkeys map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(subkeys))
	for key, v := range base {
		result[key] = v
	}
	for key, v := range subkeys {
		result[key] = v
	}
	return result
}

// IsSet reports whether the key has any presence in target: a root value or
// at least one sub-key entry. Distinguishes "unset" from "empty".
func (k MapKey) IsSet(target map[string]any) bool {
	if _, ok := target[k.name]; ok {
		return true
	}
	prefix := k.name + "."
	for stored := range target {
		if strings.HasPrefix(stored, prefix) {
			return true
		}
	}
	return false
}

// RawValue reconstructs the currently stored structured value from target
// without resolving deferred entries: the root value (when map-shaped)
// overlaid with all sub-key entries.
func (k MapKey) RawValue(target map[string]any) map[string]any {
	result := map[string]any{}
	if root, ok := target[k.name]; ok {
		if m, ok := ToStringMap(root); ok {
			result = m
		}
	}
	prefix := k.name + "."
	for stored, v := range target {
		if sub, ok := strings.CutPrefix(stored, prefix); ok {
			result[sub] = v
		}
	}
	return result
}

// Apply writes value into target, dispatching on the value's shape:
// a Modification applies its own policy; an Entry routes through sub-key
// application; a map applies entry by entry (an empty map still establishes
// presence when the key was unset); a deferred computation is stored as-is at
// the root, with a warning once other values exist.
func (k MapKey) Apply(value any, target map[string]any, logger *slog.Logger) error {
	if value == nil {
		return nil
	}

	if mod, ok := value.(Modification); ok {
		return mod.apply(k, target, logger)
	}

	if entry, ok := value.(Entry); ok {
		k.applyEntry(entry, target)
		return nil
	}

	if IsDeferred(value) {
		if k.IsSet(target) && logger != nil {
			logger.Warn("storing an undecorated deferred value on an in-use structured key replaces the root; "+
				"prefer MapPut or MapSet", "key", k.name)
		}
		target[k.name] = value
		return nil
	}

	m, ok := ToStringMap(value)
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: cannot set %T on map key", errors.ErrCoercion, value),
			"MapKey", "Apply", "value shape check")
	}

	for key, v := range m {
		k.applyEntry(Entry{Key: key, Value: v}, target)
	}
	if len(m) == 0 && !k.IsSet(target) {
		// Empty sentinel: establishes presence distinct from "unset"
		target[k.name] = map[string]any{}
	}
	return nil
}

func (k MapKey) applyEntry(e Entry, target map[string]any) {
	if strings.HasPrefix(e.Key, k.name+".") {
		// Already a fully qualified sub-key name
		target[e.Key] = e.Value
		return
	}
	target[k.SubKey(e.Key).Name()] = e.Value
}

// clear removes the root value and every sub-key entry from target
func (k MapKey) clear(target map[string]any) {
	delete(target, k.name)
	prefix := k.name + "."
	for stored := range target {
		if strings.HasPrefix(stored, prefix) {
			delete(target, stored)
		}
	}
}

// Modification is a structured-value mutation carrying its own merge policy
type Modification interface {
	apply(k MapKey, target map[string]any, logger *slog.Logger) error
}

type mapModification struct {
	items      map[string]any
	clearFirst bool
	deep       bool
}

// MapPut overlays the given entries onto the existing structured value
func MapPut(items map[string]any) Modification {
	return mapModification{items: items}
}

// MapSet clears the structured value, then overlays the given entries
func MapSet(items map[string]any) Modification {
	return mapModification{items: items, clearFirst: true}
}

// MapAdd deep-merges the given entries into the existing structured value:
// nested maps are combined rather than replaced, lists are concatenated,
// and scalar conflicts resolve to the added value.
func MapAdd(items map[string]any) Modification {
	return mapModification{items: items, deep: true}
}

func (m mapModification) apply(k MapKey, target map[string]any, logger *slog.Logger) error {
	if m.clearFirst {
		k.clear(target)
	}
	items := m.items
	if m.deep {
		merged := DeepMerge(k.RawValue(target), items)
		coerced, ok := merged.(map[string]any)
		if !ok {
			return errors.WrapInvalid(
				fmt.Errorf("%w: deep merge produced %T", errors.ErrCoercion, merged),
				"MapKey", "Apply", "deep merge")
		}
		items = coerced
	}
	if items == nil {
		items = map[string]any{}
	}
	return k.Apply(items, target, logger)
}

// DeepMerge combines two values: maps are merged recursively, lists are
// concatenated (base first), and for anything else the overlay wins.
func DeepMerge(base, overlay any) any {
	baseMap, baseOk := ToStringMap(base)
	overlayMap, overlayOk := ToStringMap(overlay)
	if baseOk && overlayOk {
		result := make(map[string]any, len(baseMap)+len(overlayMap))
		for k, v := range baseMap {
			result[k] = v
		}
		for k, v := range overlayMap {
			if existing, ok := result[k]; ok {
				result[k] = DeepMerge(existing, v)
			} else {
				result[k] = v
			}
		}
		return result
	}

	baseList, baseIsList := base.([]any)
	overlayList, overlayIsList := overlay.([]any)
	if baseIsList && overlayIsList {
		result := make([]any, 0, len(baseList)+len(overlayList))
		result = append(result, baseList...)
		result = append(result, overlayList...)
		return result
	}

	if overlay == nil {
		return base
	}
	return overlay
}
