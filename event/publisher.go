// Package event publishes entity lifecycle and attribute-change events for
// external consumers (the REST layer, persistence snapshots, dashboards).
// Publishing is optional: with no transport configured every publish is a
// cheap no-op, so the kernel never depends on a broker being present.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rohankumardubey/brooklyn-server/pkg/retry"
)

// Kind classifies an event
type Kind string

const (
	// KindAttribute is an attribute (sensor value) change
	KindAttribute Kind = "attribute"
	// KindLifecycle is a management lifecycle transition (managed, unmanaged, deployed)
	KindLifecycle Kind = "lifecycle"
	// KindEffector is an effector invocation completion
	KindEffector Kind = "effector"
)

// Event is the wire shape published for each kernel event
type Event struct {
	Timestamp   string `json:"timestamp"` // RFC3339 format
	Kind        Kind   `json:"kind"`
	Application string `json:"application,omitempty"`
	Entity      string `json:"entity"`
	Name        string `json:"name"`
	Value       any    `json:"value,omitempty"`
}

// Publisher publishes kernel events to NATS for remote consumption.
// It wraps a standard slog.Logger for local diagnostics; NATS publishing is
// enabled only when a connection is supplied.
type Publisher struct {
	nc      *nats.Conn
	logger  *slog.Logger
	enabled bool
	retry   retry.Config
}

// NewPublisher creates an event publisher. nc may be nil, in which case
// publishing is disabled and every Publish call returns immediately.
func NewPublisher(nc *nats.Conn, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		nc:      nc,
		logger:  logger,
		enabled: nc != nil,
		retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		},
	}
}

// Enabled reports whether a transport is configured
func (p *Publisher) Enabled() bool { return p.enabled }

// PublishAttribute emits an attribute-change event
func (p *Publisher) PublishAttribute(app, entityID, sensor string, value any) {
	p.publish(Event{
		Kind:        KindAttribute,
		Application: app,
		Entity:      entityID,
		Name:        sensor,
		Value:       value,
	})
}

// PublishLifecycle emits a lifecycle transition event
func (p *Publisher) PublishLifecycle(app, entityID, phase string) {
	p.publish(Event{
		Kind:        KindLifecycle,
		Application: app,
		Entity:      entityID,
		Name:        phase,
	})
}

// PublishEffector emits an effector completion event
func (p *Publisher) PublishEffector(app, entityID, effector string, result any) {
	p.publish(Event{
		Kind:        KindEffector,
		Application: app,
		Entity:      entityID,
		Name:        effector,
		Value:       result,
	})
}

func (p *Publisher) publish(ev Event) {
	if !p.enabled {
		return
	}

	ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to marshal event", "error", err, "entity", ev.Entity)
		return
	}

	nc := p.nc
	if nc == nil {
		return
	}

	app := ev.Application
	if app == "" {
		app = "unplaced"
	}
	subject := fmt.Sprintf("entities.%s.%s.%s", app, ev.Entity, ev.Kind)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = retry.Do(ctx, p.retry, func() error {
		return nc.Publish(subject, data)
	})
	if err != nil {
		p.logger.Error("failed to publish event", "error", err, "subject", subject)
	}
}
