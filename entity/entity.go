package entity

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rohankumardubey/brooklyn-server/errors"
	"github.com/rohankumardubey/brooklyn-server/event"
	"github.com/rohankumardubey/brooklyn-server/metric"
	"github.com/rohankumardubey/brooklyn-server/task"
)

// Services bundles the kernel collaborators an entity needs. They are passed
// explicitly at construction: the kernel carries no ambient context, so
// multiple independent management instances can coexist in one process.
type Services struct {
	Exec   *task.ExecutionManager
	Events *event.Publisher
	Logger *slog.Logger
	Kernel *metric.KernelMetrics

	// Graph serializes ownership-relation mutations and config cascades for
	// all entities sharing one management context.
	Graph *sync.RWMutex
}

// NewServices fills in usable defaults for any nil collaborator
func NewServices(exec *task.ExecutionManager, events *event.Publisher, logger *slog.Logger, kernel *metric.KernelMetrics) Services {
	if events == nil {
		events = event.NewPublisher(nil, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Services{
		Exec:   exec,
		Events: events,
		Logger: logger,
		Kernel: kernel,
		Graph:  &sync.RWMutex{},
	}
}

// Entity is a vertex in the managed-resource ownership graph. It holds
// identity, its own and inherited config, current attribute values, and
// owner/child/group relations. The owner relation is exclusive and acyclic;
// group membership is a separate, non-owning index.
type Entity struct {
	id   string
	name string
	typ  *Type
	svcs Services

	// Relations, guarded by svcs.Graph
	owner         *Entity
	children      map[string]*Entity
	groups        map[string]*Group
	app           *Entity
	isApplication bool

	deployed atomic.Bool
	managed  atomic.Bool

	// Config storage, guarded by cfgMu; mutation additionally serialized by
	// svcs.Graph so cascades on one node never interleave
	cfgMu     sync.RWMutex
	ownConfig map[string]any
	inherited map[string]any

	// Attribute storage
	attrMu      sync.RWMutex
	attributes  map[string]any
	subscribers map[string][]*subscription
}

// New creates an unattached entity of the given type
func New(typ *Type, name string, svcs Services) *Entity {
	if svcs.Graph == nil {
		svcs = NewServices(svcs.Exec, svcs.Events, svcs.Logger, svcs.Kernel)
	}
	return &Entity{
		id:          uuid.NewString(),
		name:        name,
		typ:         typ,
		svcs:        svcs,
		children:    make(map[string]*Entity),
		groups:      make(map[string]*Group),
		ownConfig:   make(map[string]any),
		inherited:   make(map[string]any),
		attributes:  make(map[string]any),
		subscribers: make(map[string][]*subscription),
	}
}

// ID returns the entity's process-unique id
func (e *Entity) ID() string { return e.id }

// Name returns the entity's display name
func (e *Entity) Name() string { return e.name }

// Type returns the entity's capability registry
func (e *Entity) Type() *Type { return e.typ }

func (e *Entity) String() string {
	return fmt.Sprintf("Entity[%s:%s]", e.name, e.id[:8])
}

// MarkApplication marks this entity as an application root. Application
// roots anchor ownership trees and carry the deployed flag.
func (e *Entity) MarkApplication() {
	e.svcs.Graph.Lock()
	defer e.svcs.Graph.Unlock()
	e.isApplication = true
	e.app = e
}

// IsApplication reports whether this entity is an application root
func (e *Entity) IsApplication() bool {
	e.svcs.Graph.RLock()
	defer e.svcs.Graph.RUnlock()
	return e.isApplication
}

// MarkDeployed freezes the application's config: subsequent SetConfig calls
// anywhere in its tree are rejected.
func (e *Entity) MarkDeployed() error {
	if !e.IsApplication() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s is not an application", errors.ErrIllegalState, e.name),
			"Entity", "MarkDeployed", "application check")
	}
	e.deployed.Store(true)
	e.svcs.Events.PublishLifecycle(e.applicationName(), e.id, "deployed")
	return nil
}

// Deployed reports whether this entity's application has been deployed
func (e *Entity) Deployed() bool {
	app := e.Application()
	if app == nil {
		return false
	}
	return app.deployed.Load()
}

// Managed reports whether the entity is under active management
func (e *Entity) Managed() bool { return e.managed.Load() }

// SetManaged marks the entity's management state. Called by the management
// context, not by entities themselves.
func (e *Entity) SetManaged(v bool) { e.managed.Store(v) }

// Owner returns the entity's exclusive parent, or nil
func (e *Entity) Owner() *Entity {
	e.svcs.Graph.RLock()
	defer e.svcs.Graph.RUnlock()
	return e.owner
}

// Children returns the owned children, sorted by name for stable iteration
func (e *Entity) Children() []*Entity {
	e.svcs.Graph.RLock()
	defer e.svcs.Graph.RUnlock()
	out := make([]*Entity, 0, len(e.children))
	for _, c := range e.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Application resolves the entity's application root: the first ownerless
// ancestor marked as an application. The result is cached once found.
func (e *Entity) Application() *Entity {
	e.svcs.Graph.RLock()
	if e.app != nil {
		app := e.app
		e.svcs.Graph.RUnlock()
		return app
	}
	e.svcs.Graph.RUnlock()

	e.svcs.Graph.Lock()
	defer e.svcs.Graph.Unlock()
	return e.resolveApplicationLocked()
}

func (e *Entity) resolveApplicationLocked() *Entity {
	if e.app != nil {
		return e.app
	}
	// Walk the owner chain with a visited set: never trust acyclicity while
	// checking for it.
	visited := map[string]bool{}
	node := e
	for node != nil && !visited[node.id] {
		visited[node.id] = true
		if node.owner == nil {
			if node.isApplication {
				e.app = node
				return node
			}
			return nil
		}
		node = node.owner
	}
	return nil
}

func (e *Entity) applicationName() string {
	app := e.Application()
	if app == nil {
		return ""
	}
	return app.name
}

// Attach makes child an owned member of this entity. It fails with ErrCycle
// if child is this entity or one of its ancestors, leaving the graph
// unchanged. On success the child's inherited config is recomputed and the
// child (with its descendants) is registered against the application root.
// A child that already has another owner is re-parented.
func (e *Entity) Attach(child *Entity) error {
	if child == nil {
		return errors.WrapInvalid(errors.New("nil child"), "Entity", "Attach", "child validation")
	}

	e.svcs.Graph.Lock()
	defer e.svcs.Graph.Unlock()

	if child == e {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s cannot own itself", errors.ErrCycle, e.name),
			"Entity", "Attach", "cycle check")
	}
	if e.isAncestorLocked(child) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s is an ancestor of %s", errors.ErrCycle, child.name, e.name),
			"Entity", "Attach", "cycle check")
	}

	if child.owner == e {
		return nil
	}
	if child.owner != nil {
		delete(child.owner.children, child.id)
	}

	child.owner = e
	e.children[child.id] = child

	// Ownership placement changed: the old cached root may no longer apply
	child.invalidateAppLocked()
	child.resolveApplicationLocked()

	e.cascadeFromOwnerLocked(child)

	e.svcs.Logger.Debug("entity attached", "owner", e.name, "child", child.name)
	return nil
}

// Detach removes child from this entity's owned children and clears its
// owner. Descendants of child are not detached from child.
func (e *Entity) Detach(child *Entity) error {
	if child == nil {
		return errors.WrapInvalid(errors.New("nil child"), "Entity", "Detach", "child validation")
	}

	e.svcs.Graph.Lock()
	defer e.svcs.Graph.Unlock()

	if child.owner != e {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s is not owned by %s", errors.ErrNotChild, child.name, e.name),
			"Entity", "Detach", "ownership check")
	}

	delete(e.children, child.id)
	child.owner = nil
	child.invalidateAppLocked()

	// Without an owner there is nothing to inherit
	e.cascadeFromOwnerLocked(child)

	e.svcs.Logger.Debug("entity detached", "owner", e.name, "child", child.name)
	return nil
}

// isAncestorLocked reports whether candidate is an ancestor of e,
// walking the owner chain with a visited set.
func (e *Entity) isAncestorLocked(candidate *Entity) bool {
	visited := map[string]bool{}
	node := e.owner
	for node != nil && !visited[node.id] {
		if node == candidate {
			return true
		}
		visited[node.id] = true
		node = node.owner
	}
	return false
}

// IsAncestorOf reports whether e appears in other's owner chain
func (e *Entity) IsAncestorOf(other *Entity) bool {
	e.svcs.Graph.RLock()
	defer e.svcs.Graph.RUnlock()
	return other.isAncestorLocked(e)
}

// IsDescendantOf reports whether e is reachable from other by breadth-first
// expansion of children. The traversal guards against revisits so it
// terminates even on an already-corrupted graph.
func (e *Entity) IsDescendantOf(other *Entity) bool {
	e.svcs.Graph.RLock()
	defer e.svcs.Graph.RUnlock()

	visited := map[string]bool{}
	queue := make([]*Entity, 0, len(other.children))
	for _, c := range other.children {
		queue = append(queue, c)
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if visited[node.id] {
			continue
		}
		visited[node.id] = true
		if node == e {
			return true
		}
		for _, c := range node.children {
			queue = append(queue, c)
		}
	}
	return false
}

// Descendants returns every entity reachable through owned children,
// breadth-first, excluding e itself.
func (e *Entity) Descendants() []*Entity {
	e.svcs.Graph.RLock()
	defer e.svcs.Graph.RUnlock()
	return e.descendantsLocked()
}

func (e *Entity) descendantsLocked() []*Entity {
	visited := map[string]bool{e.id: true}
	var out []*Entity
	queue := make([]*Entity, 0, len(e.children))
	for _, c := range e.children {
		queue = append(queue, c)
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if visited[node.id] {
			continue
		}
		visited[node.id] = true
		out = append(out, node)
		for _, c := range node.children {
			queue = append(queue, c)
		}
	}
	return out
}

func (e *Entity) invalidateAppLocked() {
	if e.isApplication {
		return
	}
	e.app = nil
	for _, c := range e.children {
		c.invalidateAppLocked()
	}
}

// Snapshot is the persistence-boundary view of an entity: stable identity
// plus the complete enumeration an external serializer needs to reconstruct
// the graph. The kernel does not serialize this itself.
type Snapshot struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Application string         `json:"application,omitempty"`
	OwnerID     string         `json:"owner_id,omitempty"`
	ChildIDs    []string       `json:"child_ids,omitempty"`
	GroupIDs    []string       `json:"group_ids,omitempty"`
	Managed     bool           `json:"managed"`
	OwnConfig   map[string]any `json:"own_config,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// Snapshot captures the entity's identity, relations, own config and
// attribute values.
func (e *Entity) Snapshot() Snapshot {
	snap := Snapshot{
		ID:      e.id,
		Name:    e.name,
		Managed: e.managed.Load(),
	}
	if e.typ != nil {
		snap.Type = e.typ.Name()
	}

	e.svcs.Graph.RLock()
	if e.owner != nil {
		snap.OwnerID = e.owner.id
	}
	if app := e.app; app != nil {
		snap.Application = app.id
	}
	for id := range e.children {
		snap.ChildIDs = append(snap.ChildIDs, id)
	}
	for id := range e.groups {
		snap.GroupIDs = append(snap.GroupIDs, id)
	}
	e.svcs.Graph.RUnlock()
	sort.Strings(snap.ChildIDs)
	sort.Strings(snap.GroupIDs)

	e.cfgMu.RLock()
	snap.OwnConfig = make(map[string]any, len(e.ownConfig))
	for k, v := range e.ownConfig {
		snap.OwnConfig[k] = v
	}
	e.cfgMu.RUnlock()

	e.attrMu.RLock()
	snap.Attributes = make(map[string]any, len(e.attributes))
	for k, v := range e.attributes {
		snap.Attributes[k] = v
	}
	e.attrMu.RUnlock()

	return snap
}
