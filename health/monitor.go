package health

import (
	"sync"
	"time"
)

// Monitor tracks the latest health status per entity. The management context
// updates it on lifecycle transitions; external surfaces read from it.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates an empty monitor
func NewMonitor() *Monitor {
	return &Monitor{statuses: make(map[string]Status)}
}

// Update records the status for an entity id
func (m *Monitor) Update(id string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[id] = status
}

// Get retrieves the status for an entity id
func (m *Monitor) Get(id string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[id]
	return status, ok
}

// GetAll returns a copy of all current statuses keyed by entity id
func (m *Monitor) GetAll() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Status, len(m.statuses))
	for id, status := range m.statuses {
		out[id] = status
	}
	return out
}

// Remove drops an entity from monitoring
func (m *Monitor) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, id)
}

// Count returns the number of tracked entities
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses)
}

// AggregateAll folds every tracked status into one system-level status
func (m *Monitor) AggregateAll(name string) Status {
	m.mu.RLock()
	subs := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		subs = append(subs, status)
	}
	m.mu.RUnlock()
	return Aggregate(name, subs)
}
