// Package health derives health statuses from entity service sensors and
// aggregates them per application, for surfacing through the management
// context and external monitors.
package health

import (
	"time"

	"github.com/rohankumardubey/brooklyn-server/entity"
)

// Status is the health view of one entity or aggregate
type Status struct {
	Entity      string    `json:"entity"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// IsHealthy reports whether the status is healthy
func (s Status) IsHealthy() bool { return s.Status == "healthy" }

// IsDegraded reports whether the status is degraded
func (s Status) IsDegraded() bool { return s.Status == "degraded" }

// IsUnhealthy reports whether the status is unhealthy
func (s Status) IsUnhealthy() bool { return s.Status == "unhealthy" }

// NewHealthy creates a healthy status
func NewHealthy(name, message string) Status {
	return Status{Entity: name, Healthy: true, Status: "healthy", Message: message, Timestamp: time.Now()}
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(name, message string) Status {
	return Status{Entity: name, Healthy: false, Status: "unhealthy", Message: message, Timestamp: time.Now()}
}

// NewDegraded creates a degraded status
func NewDegraded(name, message string) Status {
	return Status{Entity: name, Healthy: false, Status: "degraded", Message: message, Timestamp: time.Now()}
}

// FromEntity derives a health status from an entity's service sensors.
// Transitional lifecycle states read as degraded; a running service that is
// not reporting up, or one on fire, reads as unhealthy.
func FromEntity(e *entity.Entity) Status {
	if !e.Managed() {
		return NewDegraded(e.Name(), "entity is not under management")
	}

	state := e.ServiceState()
	up := e.ServiceUp()

	switch state {
	case entity.LifecycleRunning:
		if up {
			return NewHealthy(e.Name(), "service running")
		}
		return NewUnhealthy(e.Name(), "service running but not reporting up")
	case entity.LifecycleStarting, entity.LifecycleStopping:
		return NewDegraded(e.Name(), "service in transition: "+string(state))
	case entity.LifecycleOnFire:
		return NewUnhealthy(e.Name(), "service failed")
	case entity.LifecycleStopped:
		return NewUnhealthy(e.Name(), "service stopped")
	default:
		if up {
			return NewHealthy(e.Name(), "service reporting up")
		}
		return NewDegraded(e.Name(), "service not yet started")
	}
}

// Aggregate folds sub-statuses into one status: any unhealthy makes the
// aggregate unhealthy, otherwise any degraded makes it degraded.
func Aggregate(name string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(name, "no entities to aggregate")
	}

	hasUnhealthy := false
	hasDegraded := false
	for _, sub := range subStatuses {
		if sub.IsUnhealthy() {
			hasUnhealthy = true
		} else if sub.IsDegraded() {
			hasDegraded = true
		}
	}

	var status Status
	switch {
	case hasUnhealthy:
		status = NewUnhealthy(name, "one or more entities are unhealthy")
	case hasDegraded:
		status = NewDegraded(name, "one or more entities are degraded")
	default:
		status = NewHealthy(name, "all entities are healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)
	return status
}

// AggregateTree derives the status of an entity and its whole ownership
// subtree.
func AggregateTree(root *entity.Entity) Status {
	descendants := root.Descendants()
	subs := make([]Status, 0, len(descendants)+1)
	subs = append(subs, FromEntity(root))
	for _, d := range descendants {
		subs = append(subs, FromEntity(d))
	}
	return Aggregate(root.Name(), subs)
}
