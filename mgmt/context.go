package mgmt

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/rohankumardubey/brooklyn-server/entity"
	"github.com/rohankumardubey/brooklyn-server/errors"
	"github.com/rohankumardubey/brooklyn-server/event"
	"github.com/rohankumardubey/brooklyn-server/health"
	"github.com/rohankumardubey/brooklyn-server/metric"
	"github.com/rohankumardubey/brooklyn-server/task"
)

// Context is one management kernel instance: the execution substrate, event
// publisher, metrics, health monitor and the index of entities under active
// management. Entities enter through Manage and leave through Unmanage;
// Terminate tears the whole context down.
type Context struct {
	settings Settings
	logger   *slog.Logger
	registry *metric.Registry
	exec     *task.ExecutionManager
	events   *event.Publisher
	monitor  *health.Monitor
	svcs     entity.Services

	// nc is closed on Terminate only when this context dialled it
	nc        *nats.Conn
	ownedConn bool

	mu         sync.RWMutex
	entities   map[string]*entity.Entity
	terminated bool
}

// NewContext assembles a management context from settings. nc may be nil:
// when settings name an events NATS URL one is dialled, otherwise event
// publishing is disabled. logger may be nil for the default.
func NewContext(settings Settings, logger *slog.Logger, nc *nats.Conn) (*Context, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("platform", settings.Platform.Name)

	ownedConn := false
	if nc == nil && settings.Events.NATSURL != "" {
		dialled, err := event.Dial(settings.Events.NATSURL, event.DefaultDialOptions(), logger)
		if err != nil {
			return nil, errors.Wrap(err, "Context", "New", "event transport dial")
		}
		nc = dialled
		ownedConn = true
	}

	registry := metric.NewRegistry()
	exec := task.NewExecutionManager(settings.Exec.Workers, settings.Exec.QueueSize, logger, registry)
	events := event.NewPublisher(nc, logger)

	c := &Context{
		settings:  settings,
		logger:    logger,
		registry:  registry,
		exec:      exec,
		events:    events,
		nc:        nc,
		ownedConn: ownedConn,
		monitor:   health.NewMonitor(),
		entities:  make(map[string]*entity.Entity),
	}
	c.svcs = entity.NewServices(exec, events, logger, registry.Kernel)
	return c, nil
}

// Services returns the collaborator bundle for constructing entities in this
// context. All entities of one context must share it.
func (c *Context) Services() entity.Services { return c.svcs }

// Exec returns the context's execution substrate
func (c *Context) Exec() *task.ExecutionManager { return c.exec }

// Metrics returns the context's metric registry
func (c *Context) Metrics() *metric.Registry { return c.registry }

// Monitor returns the context's health monitor
func (c *Context) Monitor() *health.Monitor { return c.monitor }

// Logger returns the context's logger
func (c *Context) Logger() *slog.Logger { return c.logger }

// Manage brings an entity and all its descendants under active management:
// they are indexed, marked managed, tracked by the health monitor, and a
// lifecycle event is published for each. Managing an already-managed entity
// is a no-op for it and still descends to its children.
func (c *Context) Manage(e *entity.Entity) error {
	if e == nil {
		return errors.WrapInvalid(errors.New("nil entity"), "Context", "Manage", "entity validation")
	}

	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return errors.WrapInvalid(errors.ErrTerminated, "Context", "Manage", "lifecycle check")
	}

	targets := append([]*entity.Entity{e}, e.Descendants()...)
	var entered []*entity.Entity
	for _, target := range targets {
		if _, indexed := c.entities[target.ID()]; indexed {
			continue
		}
		c.entities[target.ID()] = target
		entered = append(entered, target)
	}
	c.mu.Unlock()

	for _, target := range entered {
		target.SetManaged(true)
		c.svcs.Kernel.EntitiesManaged.Inc()
		c.monitor.Update(target.ID(), health.FromEntity(target))
		c.events.PublishLifecycle(appName(target), target.ID(), "managed")
		c.logger.Info("entity managed", "entity", target.Name(), "id", target.ID())
	}
	return nil
}

// Unmanage removes an entity and all its descendants from active management.
// Unmanaging an unknown entity is an error; partially managed subtrees are
// handled per entity.
func (c *Context) Unmanage(e *entity.Entity) error {
	if e == nil {
		return errors.WrapInvalid(errors.New("nil entity"), "Context", "Unmanage", "entity validation")
	}

	c.mu.Lock()
	if _, indexed := c.entities[e.ID()]; !indexed {
		c.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrUnknownEntity, e.ID()),
			"Context", "Unmanage", "index lookup")
	}

	targets := append([]*entity.Entity{e}, e.Descendants()...)
	var removed []*entity.Entity
	for _, target := range targets {
		if _, indexed := c.entities[target.ID()]; !indexed {
			continue
		}
		delete(c.entities, target.ID())
		removed = append(removed, target)
	}
	c.mu.Unlock()

	for _, target := range removed {
		target.SetManaged(false)
		c.svcs.Kernel.EntitiesManaged.Dec()
		c.monitor.Remove(target.ID())
		c.events.PublishLifecycle(appName(target), target.ID(), "unmanaged")
		c.logger.Info("entity unmanaged", "entity", target.Name(), "id", target.ID())
	}
	return nil
}

// Entity looks up a managed entity by id
func (c *Context) Entity(id string) (*entity.Entity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entities[id]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrUnknownEntity, id),
			"Context", "Entity", "index lookup")
	}
	return e, nil
}

// Entities returns all managed entities
func (c *Context) Entities() []*entity.Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*entity.Entity, 0, len(c.entities))
	for _, e := range c.entities {
		out = append(out, e)
	}
	return out
}

// Applications returns the managed application roots
func (c *Context) Applications() []*entity.Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*entity.Entity
	for _, e := range c.entities {
		if e.IsApplication() {
			out = append(out, e)
		}
	}
	return out
}

// RefreshHealth re-derives every managed entity's health status
func (c *Context) RefreshHealth() health.Status {
	for _, e := range c.Entities() {
		c.monitor.Update(e.ID(), health.FromEntity(e))
	}
	return c.monitor.AggregateAll(c.settings.Platform.Name)
}

// Terminate unmanages every application concurrently, then stops the
// execution substrate. The context is unusable afterwards; Terminate of a
// terminated context is a no-op.
func (c *Context) Terminate() error {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return nil
	}
	c.terminated = true
	c.mu.Unlock()

	var g errgroup.Group
	for _, app := range c.Applications() {
		app := app
		g.Go(func() error { return c.Unmanage(app) })
	}
	unmanageErr := g.Wait()

	// Stragglers outside any application tree. Earlier removals may have
	// already covered descendants in this snapshot.
	for _, e := range c.Entities() {
		err := c.Unmanage(e)
		if err != nil && !errors.Is(err, errors.ErrUnknownEntity) && unmanageErr == nil {
			unmanageErr = err
		}
	}

	if err := c.exec.Shutdown(c.settings.Shutdown.Timeout.Std()); err != nil {
		return errors.Wrap(err, "Context", "Terminate", "execution shutdown")
	}

	if c.ownedConn && c.nc != nil {
		c.nc.Close()
	}

	c.logger.Info("management context terminated", "platform", c.settings.Platform.Name)
	return unmanageErr
}

func appName(e *entity.Entity) string {
	if app := e.Application(); app != nil {
		return app.Name()
	}
	return ""
}
