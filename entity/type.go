// Package entity implements the kernel's managed-resource model: the
// ownership graph, per-entity config store with inheritance, attribute
// (sensor value) storage, and capability-based dispatch of effectors onto
// the asynchronous execution substrate.
package entity

import (
	"context"
	"log/slog"
	"sort"
)

// Sensor describes a named, typed, observable attribute of an entity type.
// A sensor carries no behavior; its current value lives in the entity's
// attribute storage.
type Sensor struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // advisory: "string", "int", "bool", ...
	Description string `json:"description,omitempty"`
}

// Param describes a declared effector parameter
type Param struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Default any    `json:"default,omitempty"`
}

// EffectorBody is the executable behavior of an effector. It runs inside an
// entity-tagged unit of work; args have already been coerced against the
// effector's declared parameters.
type EffectorBody func(ctx context.Context, e *Entity, args map[string]any) (any, error)

// Effector describes a named, invokable operation on an entity type.
// If Result names a sensor, the entity's attribute for that sensor is
// updated with the effector's return value on success.
type Effector struct {
	Name        string
	Description string
	Params      []Param
	Result      Sensor
	Body        EffectorBody
}

// Type is the capability registry for one entity type: the catalog of
// sensors and effectors, resolved once at construction from explicit
// descriptor lists. Duplicate names resolve last-registration-wins with a
// logged warning, never an error.
type Type struct {
	name      string
	sensors   map[string]Sensor
	effectors map[string]Effector
}

// NewType builds a capability registry from declared descriptors
func NewType(name string, logger *slog.Logger, sensors []Sensor, effectors []Effector) *Type {
	if logger == nil {
		logger = slog.Default()
	}

	t := &Type{
		name:      name,
		sensors:   make(map[string]Sensor, len(sensors)),
		effectors: make(map[string]Effector, len(effectors)),
	}

	for _, s := range sensors {
		if _, exists := t.sensors[s.Name]; exists {
			logger.Warn("duplicate sensor registration, last wins",
				"entityType", name, "sensor", s.Name)
		}
		t.sensors[s.Name] = s
	}
	for _, e := range effectors {
		if _, exists := t.effectors[e.Name]; exists {
			logger.Warn("duplicate effector registration, last wins",
				"entityType", name, "effector", e.Name)
		}
		t.effectors[e.Name] = e
	}

	return t
}

// Name returns the entity type's name
func (t *Type) Name() string { return t.name }

// Sensor looks up a declared sensor by name
func (t *Type) Sensor(name string) (Sensor, bool) {
	s, ok := t.sensors[name]
	return s, ok
}

// Effector looks up a declared effector by name
func (t *Type) Effector(name string) (Effector, bool) {
	e, ok := t.effectors[name]
	return e, ok
}

// Sensors returns all declared sensors, sorted by name
func (t *Type) Sensors() []Sensor {
	out := make([]Sensor, 0, len(t.sensors))
	for _, s := range t.sensors {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Effectors returns all declared effectors, sorted by name
func (t *Type) Effectors() []Effector {
	out := make([]Effector, 0, len(t.effectors))
	for _, e := range t.effectors {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
