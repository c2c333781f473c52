package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rohankumardubey/brooklyn-server/errors"
	"github.com/rohankumardubey/brooklyn-server/metric"
	"github.com/rohankumardubey/brooklyn-server/pkg/worker"
)

// ExecutionManager drives tasks on a shared worker pool. It is the kernel's
// execution substrate: effector dispatch, deferred config materialization and
// poll firings all funnel through here. A manager holds no process-global
// state; it is owned by one management context and dies with it.
type ExecutionManager struct {
	logger *slog.Logger
	kernel *metric.KernelMetrics

	pool   *worker.Pool[*Task]
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	scheduled []*ScheduledTask
	shutdown  bool
}

// NewExecutionManager creates and starts an execution manager.
// registry may be nil to run without metrics.
func NewExecutionManager(workers, queueSize int, logger *slog.Logger, registry *metric.Registry) *ExecutionManager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &ExecutionManager{logger: logger}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	var opts []worker.Option[*Task]
	if registry != nil {
		m.kernel = registry.Kernel
		opts = append(opts, worker.WithMetricsRegistry[*Task](registry, "kernel_exec"))
	}

	m.pool = worker.NewPool(workers, queueSize, m.process, opts...)
	// Pool start cannot fail on a freshly constructed pool.
	if err := m.pool.Start(m.ctx); err != nil {
		logger.Error("execution pool failed to start", "error", err)
	}

	return m
}

func (m *ExecutionManager) process(_ context.Context, t *Task) error {
	err := t.run()

	if m.kernel != nil {
		switch t.Status() {
		case StatusSucceeded:
			m.kernel.TasksCompleted.Inc()
		case StatusFailed:
			m.kernel.TasksFailed.Inc()
		case StatusCancelled:
			m.kernel.TasksCancelled.Inc()
		}
	}
	return err
}

// Submit hands a task to the pool for asynchronous execution. The task's
// context is a child of the manager's, tagged with the task's entity when
// present, so cancelling the manager (or the task handle) interrupts the body.
func (m *ExecutionManager) Submit(t *Task) error {
	if t == nil {
		return errors.WrapInvalid(errors.New("nil task"), "ExecutionManager", "Submit", "task validation")
	}

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return errors.WrapInvalid(errors.ErrTerminated, "ExecutionManager", "Submit", "lifecycle check")
	}
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(m.ctx)
	if t.EntityID() != "" {
		ctx = ContextWithEntity(ctx, t.EntityID())
	}
	if err := t.attach(ctx, cancel); err != nil {
		cancel()
		return err
	}

	if m.kernel != nil {
		m.kernel.TasksSubmitted.Inc()
	}

	if err := m.pool.Submit(t); err != nil {
		t.Cancel()
		if errors.Is(err, worker.ErrQueueFull) {
			return errors.WrapTransient(errors.ErrQueueFull, "ExecutionManager", "Submit", "pool submission")
		}
		return errors.Wrap(err, "ExecutionManager", "Submit", "pool submission")
	}

	m.logger.Debug("task submitted", "task", t.Name(), "entity", t.EntityID())
	return nil
}

// ScheduleAtFixedRate creates a recurring scheduled unit that submits a fresh
// task from factory every period. Firings never overlap: the next period is
// considered only after the previous body has completed.
func (m *ExecutionManager) ScheduleAtFixedRate(name string, period time.Duration, factory func() *Task) (*ScheduledTask, error) {
	if period <= 0 {
		return nil, errors.WrapInvalid(
			errors.New("non-positive period"), "ExecutionManager", "ScheduleAtFixedRate", "period validation")
	}
	if factory == nil {
		return nil, errors.WrapInvalid(
			errors.New("nil factory"), "ExecutionManager", "ScheduleAtFixedRate", "factory validation")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return nil, errors.WrapInvalid(errors.ErrTerminated, "ExecutionManager", "ScheduleAtFixedRate", "lifecycle check")
	}

	st := newScheduledTask(m, name, period, factory)
	m.scheduled = append(m.scheduled, st)
	go st.loop()
	return st, nil
}

// Shutdown cancels all scheduled units and in-flight tasks, then stops the
// pool, waiting up to timeout for workers to drain. Safe to call once.
func (m *ExecutionManager) Shutdown(timeout time.Duration) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	scheduled := make([]*ScheduledTask, len(m.scheduled))
	copy(scheduled, m.scheduled)
	m.scheduled = nil
	m.mu.Unlock()

	for _, st := range scheduled {
		st.Cancel()
	}

	m.cancel()
	if err := m.pool.Stop(timeout); err != nil {
		return errors.Wrap(err, "ExecutionManager", "Shutdown", "pool stop")
	}
	return nil
}

// Stats exposes the underlying pool statistics
func (m *ExecutionManager) Stats() worker.PoolStats {
	return m.pool.Stats()
}
