package entity

import (
	"sort"
	"sync"
)

// subscription is one listener on an entity's attribute changes. Delivery is
// synchronous on the publishing goroutine; listeners must not block.
type subscription struct {
	sensor string
	fn     func(sensor string, value any)
	once   sync.Once
	closed bool
	mu     sync.Mutex
}

func (s *subscription) deliver(sensor string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fn(sensor, value)
}

func (s *subscription) close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
}

// SetAttribute stores the current value of a sensor and notifies local
// subscribers and the event publisher. Sensors not declared on the entity's
// type are stored anyway: feeds may publish ad-hoc sensors.
func (e *Entity) SetAttribute(sensor string, value any) {
	e.attrMu.Lock()
	e.attributes[sensor] = value
	subs := make([]*subscription, 0, len(e.subscribers[sensor])+len(e.subscribers[""]))
	subs = append(subs, e.subscribers[sensor]...)
	subs = append(subs, e.subscribers[""]...)
	e.attrMu.Unlock()

	for _, s := range subs {
		s.deliver(sensor, value)
	}

	e.svcs.Events.PublishAttribute(e.applicationName(), e.id, sensor, value)
}

// Attribute returns the current value of a sensor, if one has been published
func (e *Entity) Attribute(sensor string) (any, bool) {
	e.attrMu.RLock()
	defer e.attrMu.RUnlock()
	v, ok := e.attributes[sensor]
	return v, ok
}

// Attributes returns a copy of all current sensor values
func (e *Entity) Attributes() map[string]any {
	e.attrMu.RLock()
	defer e.attrMu.RUnlock()
	out := make(map[string]any, len(e.attributes))
	for k, v := range e.attributes {
		out[k] = v
	}
	return out
}

// AttributeNames returns the sensors with published values, sorted
func (e *Entity) AttributeNames() []string {
	e.attrMu.RLock()
	defer e.attrMu.RUnlock()
	out := make([]string, 0, len(e.attributes))
	for k := range e.attributes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SubscribeAttribute registers fn for changes to the named sensor. An empty
// sensor name subscribes to all attribute changes. The returned function
// cancels the subscription.
func (e *Entity) SubscribeAttribute(sensor string, fn func(sensor string, value any)) func() {
	sub := &subscription{sensor: sensor, fn: fn}

	e.attrMu.Lock()
	e.subscribers[sensor] = append(e.subscribers[sensor], sub)
	e.attrMu.Unlock()

	return func() {
		sub.close()
		e.attrMu.Lock()
		defer e.attrMu.Unlock()
		list := e.subscribers[sensor]
		for i, s := range list {
			if s == sub {
				e.subscribers[sensor] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}
