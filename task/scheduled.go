package task

import (
	"sync"
	"sync/atomic"
	"time"
)

// ScheduledTask re-fires a task factory at a fixed period. Each firing
// submits a fresh task to the execution manager and waits for it to complete
// before the next period is considered, so firings of the same scheduled unit
// are strictly sequential. A firing that fails never disables the schedule.
type ScheduledTask struct {
	mgr     *ExecutionManager
	name    string
	period  time.Duration
	factory func() *Task

	stopCh    chan struct{}
	stopOnce  sync.Once
	begun     atomic.Bool
	cancelled atomic.Bool

	mu      sync.Mutex
	current *Task
	fired   int64
}

func newScheduledTask(mgr *ExecutionManager, name string, period time.Duration, factory func() *Task) *ScheduledTask {
	return &ScheduledTask{
		mgr:     mgr,
		name:    name,
		period:  period,
		factory: factory,
		stopCh:  make(chan struct{}),
	}
}

// Name returns the scheduled unit's display name
func (st *ScheduledTask) Name() string { return st.name }

// Period returns the firing period
func (st *ScheduledTask) Period() time.Duration { return st.period }

// Begun reports whether at least one firing has been submitted
func (st *ScheduledTask) Begun() bool { return st.begun.Load() }

// Cancelled reports whether the schedule has been retired
func (st *ScheduledTask) Cancelled() bool { return st.cancelled.Load() }

// Active reports whether the scheduled unit has begun and not yet been retired
func (st *ScheduledTask) Active() bool { return st.begun.Load() && !st.cancelled.Load() }

// FireCount returns the number of firings submitted so far
func (st *ScheduledTask) FireCount() int64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.fired
}

// Cancel retires the schedule and best-effort interrupts any in-flight firing
func (st *ScheduledTask) Cancel() {
	st.stopOnce.Do(func() {
		st.cancelled.Store(true)
		close(st.stopCh)
		st.mu.Lock()
		current := st.current
		st.mu.Unlock()
		if current != nil {
			current.Cancel()
		}
	})
}

func (st *ScheduledTask) loop() {
	ticker := time.NewTicker(st.period)
	defer ticker.Stop()

	for {
		select {
		case <-st.stopCh:
			return
		case <-st.mgr.ctx.Done():
			return
		case <-ticker.C:
		}

		t := st.factory()
		st.mu.Lock()
		st.current = t
		st.fired++
		st.mu.Unlock()
		st.begun.Store(true)

		if err := st.mgr.Submit(t); err != nil {
			st.mgr.logger.Warn("scheduled firing not submitted",
				"schedule", st.name, "error", err)
			continue
		}

		// No overlapping firings of the same unit
		select {
		case <-t.Done():
		case <-st.stopCh:
			t.Cancel()
			<-t.Done()
			return
		}
	}
}
