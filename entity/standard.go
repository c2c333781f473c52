package entity

// Lifecycle is the conventional service-state vocabulary published on the
// service.state sensor.
type Lifecycle string

const (
	// LifecycleCreated means the entity exists but has not been started
	LifecycleCreated Lifecycle = "created"
	// LifecycleStarting means a start operation is in progress
	LifecycleStarting Lifecycle = "starting"
	// LifecycleRunning means the entity's service is operating normally
	LifecycleRunning Lifecycle = "running"
	// LifecycleStopping means a stop operation is in progress
	LifecycleStopping Lifecycle = "stopping"
	// LifecycleStopped means the entity's service has been stopped
	LifecycleStopped Lifecycle = "stopped"
	// LifecycleOnFire means the entity's service has failed
	LifecycleOnFire Lifecycle = "on-fire"
)

// Standard sensor names shared across entity types. Feeds and pollers key
// their liveness gating off SensorServiceUp.
const (
	// SensorServiceUp holds a bool: whether the entity's service is up
	SensorServiceUp = "service.isUp"
	// SensorServiceState holds a Lifecycle value
	SensorServiceState = "service.state"
)

// ServiceUp reports the entity's service.isUp sensor, false when unset or
// not a bool.
func (e *Entity) ServiceUp() bool {
	v, ok := e.Attribute(SensorServiceUp)
	if !ok {
		return false
	}
	up, ok := v.(bool)
	return ok && up
}

// SetServiceUp publishes the service.isUp sensor
func (e *Entity) SetServiceUp(up bool) {
	e.SetAttribute(SensorServiceUp, up)
}

// ServiceState reports the entity's service.state sensor, LifecycleCreated
// when unset.
func (e *Entity) ServiceState() Lifecycle {
	v, ok := e.Attribute(SensorServiceState)
	if !ok {
		return LifecycleCreated
	}
	if s, ok := v.(Lifecycle); ok {
		return s
	}
	if s, ok := v.(string); ok {
		return Lifecycle(s)
	}
	return LifecycleCreated
}

// SetServiceState publishes the service.state sensor
func (e *Entity) SetServiceState(s Lifecycle) {
	e.SetAttribute(SensorServiceState, s)
}
