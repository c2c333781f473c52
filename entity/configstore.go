package entity

import (
	"context"
	"fmt"

	"github.com/rohankumardubey/brooklyn-server/config"
	"github.com/rohankumardubey/brooklyn-server/errors"
	"github.com/rohankumardubey/brooklyn-server/task"
)

// SetConfig writes a value for key into the entity's own config and
// synchronously cascades the recomputed inherited view to every descendant
// before returning. Writes are rejected once the owning application has been
// deployed. Deferred values are stored as-is and handed to the execution
// substrate so they materialize without waiting for a reader; a deferred
// failure therefore surfaces at read time, not here.
func (e *Entity) SetConfig(key config.Ref, value any) error {
	if e.Deployed() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: application of %s is deployed, config is frozen", errors.ErrDeployed, e.name),
			"Entity", "SetConfig", "deployed check")
	}

	e.svcs.Graph.Lock()
	defer e.svcs.Graph.Unlock()

	e.cfgMu.Lock()
	var err error
	if mk, ok := key.(config.MapKey); ok {
		err = mk.Apply(value, e.ownConfig, e.svcs.Logger)
	} else {
		e.ownConfig[key.Name()] = value
	}
	e.cfgMu.Unlock()
	if err != nil {
		return err
	}

	e.kickDeferred(key.Name(), value)

	e.cascadeLocked()
	return nil
}

// kickDeferred hands an unsubmitted deferred computation to the execution
// manager so it materializes without waiting for the first reader. Storage
// never blocks; a submission failure falls back to a plain goroutine.
func (e *Entity) kickDeferred(name string, value any) {
	sub, ok := value.(config.Submittable)
	if !ok || sub.Submitted() {
		return
	}

	materialize := func(ctx context.Context) (any, error) {
		v, err := sub.Get(ctx)
		if err != nil {
			e.svcs.Logger.Debug("deferred config value failed to materialize",
				"entity", e.name, "key", name, "error", err)
		}
		return v, err
	}

	if e.svcs.Exec != nil {
		t := task.NewForEntity("config.resolve."+name, e.id, materialize)
		if err := e.svcs.Exec.Submit(t); err == nil {
			return
		}
	}
	go func() {
		_, _ = materialize(context.Background())
	}()
}

// combinedLocked is the entity's effective raw config: the inherited view
// overlaid with its own entries. Callers own the returned map.
func (e *Entity) combinedLocked() map[string]any {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	out := make(map[string]any, len(e.inherited)+len(e.ownConfig))
	for k, v := range e.inherited {
		out[k] = v
	}
	for k, v := range e.ownConfig {
		out[k] = v
	}
	return out
}

// cascadeLocked pushes this entity's combined config down the ownership
// tree, depth first, so every descendant's inherited view is consistent
// before the triggering write returns.
func (e *Entity) cascadeLocked() {
	combined := e.combinedLocked()
	for _, c := range e.children {
		c.receiveInheritedLocked(combined)
	}
	if e.svcs.Kernel != nil {
		e.svcs.Kernel.ConfigCascades.Inc()
	}
}

func (e *Entity) receiveInheritedLocked(fromOwner map[string]any) {
	e.cfgMu.Lock()
	e.inherited = fromOwner
	e.cfgMu.Unlock()

	combined := e.combinedLocked()
	for _, c := range e.children {
		c.receiveInheritedLocked(combined)
	}
}

// cascadeFromOwnerLocked recomputes child's inherited view after a relation
// change. A detached child inherits nothing.
func (e *Entity) cascadeFromOwnerLocked(child *Entity) {
	if child.owner == nil {
		child.receiveInheritedLocked(map[string]any{})
		return
	}
	child.receiveInheritedLocked(child.owner.combinedLocked())
	if e.svcs.Kernel != nil {
		e.svcs.Kernel.ConfigCascades.Inc()
	}
}

// GetConfig resolves key against the entity's config: its own value shadows
// the inherited value, which shadows the key's declared default. A deferred
// value blocks until materialized or ctx expires; failures are reported as
// ErrConfigResolution. The resolved value is coerced to the key's declared
// type.
func (e *Entity) GetConfig(ctx context.Context, key config.Ref) (any, error) {
	if mk, ok := key.(config.MapKey); ok {
		return e.getStructured(ctx, mk)
	}

	raw, found := e.lookupRaw(key.Name())
	if !found {
		if key.Default() != nil {
			return config.Coerce(key.Default(), key.TypeName())
		}
		return nil, nil
	}

	resolved, err := e.resolve(ctx, key.Name(), raw)
	if err != nil {
		return nil, err
	}
	return config.Coerce(resolved, key.TypeName())
}

func (e *Entity) lookupRaw(name string) (any, bool) {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	if v, ok := e.ownConfig[name]; ok {
		return v, true
	}
	if v, ok := e.inherited[name]; ok {
		return v, true
	}
	return nil, false
}

func (e *Entity) resolve(ctx context.Context, name string, raw any) (any, error) {
	d, ok := raw.(config.Deferred)
	if !ok {
		return raw, nil
	}
	v, err := d.Get(ctx)
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %s on %s: %w", errors.ErrConfigResolution, name, e.name, err),
			"Entity", "GetConfig", "deferred resolution")
	}
	return v, nil
}

// getStructured assembles the effective map for a structured key. The
// inherited root and sub-key entries form the base; the entity's own root
// and sub-key entries overlay it, own shadowing inherited per sub-key.
// Deferred roots and entries are resolved before merging.
func (e *Entity) getStructured(ctx context.Context, key config.MapKey) (map[string]any, error) {
	e.cfgMu.RLock()
	inheritedSet := key.IsSet(e.inherited)
	ownSet := key.IsSet(e.ownConfig)
	inheritedView := snapshotStructured(key, e.inherited)
	ownView := snapshotStructured(key, e.ownConfig)
	e.cfgMu.RUnlock()

	if !inheritedSet && !ownSet {
		if def, ok := key.Extract(key.Default(), e.svcs.Logger); ok {
			return def, nil
		}
		return nil, nil
	}

	base, err := e.resolveStructured(ctx, key, inheritedView)
	if err != nil {
		return nil, err
	}
	overlay, err := e.resolveStructured(ctx, key, ownView)
	if err != nil {
		return nil, err
	}
	return key.Merge(base, overlay), nil
}

// structuredView is one storage level's unresolved slice of a structured
// key: the raw root value (possibly deferred) plus the bare sub-key entries.
type structuredView struct {
	root    any
	hasRoot bool
	entries map[string]any
}

func snapshotStructured(key config.MapKey, target map[string]any) structuredView {
	view := structuredView{entries: map[string]any{}}
	view.root, view.hasRoot = target[key.Name()]
	for stored, v := range target {
		if sub, ok := key.SubKeyName(stored); ok {
			view.entries[sub] = v
		}
	}
	return view
}

// resolveStructured materializes one storage level: the root (resolved and
// extracted to map shape) overlaid with each resolved sub-key entry.
func (e *Entity) resolveStructured(ctx context.Context, key config.MapKey, view structuredView) (map[string]any, error) {
	out := map[string]any{}
	if view.hasRoot {
		resolved, err := e.resolve(ctx, key.Name(), view.root)
		if err != nil {
			return nil, err
		}
		if m, ok := key.Extract(resolved, e.svcs.Logger); ok {
			for k, v := range m {
				out[k] = v
			}
		}
	}
	for sub, v := range view.entries {
		resolved, err := e.resolve(ctx, key.SubKey(sub).Name(), v)
		if err != nil {
			return nil, err
		}
		out[sub] = resolved
	}
	return out, nil
}

// ConfigIsSet reports whether key has any presence, own or inherited,
// without resolving deferred values.
func (e *Entity) ConfigIsSet(key config.Ref) bool {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	if mk, ok := key.(config.MapKey); ok {
		return mk.IsSet(e.ownConfig) || mk.IsSet(e.inherited)
	}
	if _, ok := e.ownConfig[key.Name()]; ok {
		return true
	}
	_, ok := e.inherited[key.Name()]
	return ok
}
