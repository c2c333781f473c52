package entity

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Group is a non-owning collection of entities. Membership is independent of
// the ownership graph: an entity may belong to any number of groups without
// affecting its owner, its inherited config, or cycle checks.
type Group struct {
	id   string
	name string

	mu      sync.RWMutex
	members map[string]*Entity
}

// NewGroup creates an empty group
func NewGroup(name string) *Group {
	return &Group{
		id:      uuid.NewString(),
		name:    name,
		members: make(map[string]*Entity),
	}
}

// ID returns the group's process-unique id
func (g *Group) ID() string { return g.id }

// Name returns the group's display name
func (g *Group) Name() string { return g.name }

// Add enrolls an entity. Adding an existing member is a no-op.
func (g *Group) Add(e *Entity) {
	if e == nil {
		return
	}
	g.mu.Lock()
	g.members[e.id] = e
	g.mu.Unlock()

	e.svcs.Graph.Lock()
	e.groups[g.id] = g
	e.svcs.Graph.Unlock()
}

// Remove withdraws an entity. Removing a non-member is a no-op.
func (g *Group) Remove(e *Entity) {
	if e == nil {
		return
	}
	g.mu.Lock()
	delete(g.members, e.id)
	g.mu.Unlock()

	e.svcs.Graph.Lock()
	delete(e.groups, g.id)
	e.svcs.Graph.Unlock()
}

// Contains reports membership
func (g *Group) Contains(e *Entity) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.members[e.id]
	return ok
}

// Members returns the current members, sorted by name
func (g *Group) Members() []*Entity {
	g.mu.RLock()
	out := make([]*Entity, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m)
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Size returns the member count
func (g *Group) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// Groups returns the groups this entity belongs to, sorted by name
func (e *Entity) Groups() []*Group {
	e.svcs.Graph.RLock()
	out := make([]*Group, 0, len(e.groups))
	for _, g := range e.groups {
		out = append(out, g)
	}
	e.svcs.Graph.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
