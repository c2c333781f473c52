package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/rohankumardubey/brooklyn-server/config"
	"github.com/rohankumardubey/brooklyn-server/entity"
	"github.com/rohankumardubey/brooklyn-server/errors"
	"github.com/rohankumardubey/brooklyn-server/metric"
	"github.com/rohankumardubey/brooklyn-server/task"
)

// FunctionPoll binds one supplier function to one sensor
type FunctionPoll struct {
	Sensor   string
	Period   time.Duration
	Supplier func(ctx context.Context) (any, error)

	// Coerce names a type to coerce the supplied value to before publishing
	// ("int", "bool", ...). Empty publishes the value as supplied.
	Coerce string

	// OnFailure, when set, is published to the sensor when the supplier
	// fails. Unset leaves the last good value in place.
	OnFailure any

	OnlyIfServiceUp bool
}

// FunctionFeed periodically evaluates supplier functions and publishes their
// results as sensor values on one entity.
type FunctionFeed struct {
	poller *Poller
}

// FunctionFeedBuilder accumulates polls before construction
type FunctionFeedBuilder struct {
	entity *entity.Entity
	exec   *task.ExecutionManager
	logger *slog.Logger
	kernel *metric.KernelMetrics
	polls  []FunctionPoll
	err    error
}

// NewFunctionFeed starts building a feed for the given entity
func NewFunctionFeed(e *entity.Entity, exec *task.ExecutionManager) *FunctionFeedBuilder {
	b := &FunctionFeedBuilder{entity: e, exec: exec}
	if e == nil {
		b.err = errors.WrapInvalid(errors.New("nil entity"), "FunctionFeed", "Build", "entity validation")
	}
	if exec == nil {
		b.err = errors.WrapInvalid(errors.New("nil execution manager"), "FunctionFeed", "Build", "exec validation")
	}
	return b
}

// WithLogger sets the feed's logger
func (b *FunctionFeedBuilder) WithLogger(logger *slog.Logger) *FunctionFeedBuilder {
	b.logger = logger
	return b
}

// WithMetrics sets the kernel metrics the feed reports to
func (b *FunctionFeedBuilder) WithMetrics(kernel *metric.KernelMetrics) *FunctionFeedBuilder {
	b.kernel = kernel
	return b
}

// Poll adds a sensor poll to the feed
func (b *FunctionFeedBuilder) Poll(p FunctionPoll) *FunctionFeedBuilder {
	if b.err == nil {
		if p.Sensor == "" {
			b.err = errors.WrapInvalid(errors.New("poll without sensor"), "FunctionFeed", "Build", "poll validation")
		}
		if p.Supplier == nil {
			b.err = errors.WrapInvalid(errors.New("poll without supplier"), "FunctionFeed", "Build", "poll validation")
		}
	}
	b.polls = append(b.polls, p)
	return b
}

// Build constructs and starts the feed
func (b *FunctionFeedBuilder) Build() (*FunctionFeed, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.polls) == 0 {
		return nil, errors.WrapInvalid(errors.New("feed has no polls"), "FunctionFeed", "Build", "poll validation")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	poller := NewPoller(b.entity, b.exec, logger, b.kernel)
	for _, p := range b.polls {
		p := p
		job := Job{
			Name:            p.Sensor,
			Period:          p.Period,
			OnlyIfServiceUp: p.OnlyIfServiceUp,
			Probe:           p.Supplier,
			OnSuccess:       b.publishFunc(p, logger),
		}
		if p.OnFailure != nil {
			e, sensor, fallback := b.entity, p.Sensor, p.OnFailure
			job.OnException = func(error) {
				e.SetAttribute(sensor, fallback)
			}
		}
		if err := poller.Schedule(job); err != nil {
			return nil, err
		}
	}

	if err := poller.Start(); err != nil {
		return nil, err
	}
	return &FunctionFeed{poller: poller}, nil
}

func (b *FunctionFeedBuilder) publishFunc(p FunctionPoll, logger *slog.Logger) func(any) {
	e := b.entity
	return func(value any) {
		if p.Coerce != "" {
			coerced, err := config.Coerce(value, p.Coerce)
			if err != nil {
				logger.Debug("poll value failed coercion, publishing as supplied",
					"entity", e.Name(), "sensor", p.Sensor, "error", err)
			} else {
				value = coerced
			}
		}
		e.SetAttribute(p.Sensor, value)
	}
}

// Stop tears the feed down. Stopping twice is a no-op.
func (f *FunctionFeed) Stop() error {
	return f.poller.Stop()
}

// IsRunning reports whether the feed's poller has live scheduled jobs
func (f *FunctionFeed) IsRunning() bool {
	return f.poller.IsRunning()
}

// Poller exposes the underlying poller, mainly for FireOnce in tests and
// manual probes.
func (f *FunctionFeed) Poller() *Poller {
	return f.poller
}
