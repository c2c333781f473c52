// Package feed implements sensor feeds: recurring probes scheduled on the
// execution substrate that publish their results as entity attributes.
// The Poller is the scheduling core; FunctionFeed is the conventional way
// to wire Go functions to sensors.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rohankumardubey/brooklyn-server/entity"
	"github.com/rohankumardubey/brooklyn-server/errors"
	"github.com/rohankumardubey/brooklyn-server/metric"
	"github.com/rohankumardubey/brooklyn-server/task"
)

// Repeated probe failures log at a level below debug; only the first failure
// of a streak is worth debug visibility.
const levelTrace = slog.LevelDebug - 4

// State is the poller lifecycle
type State int

const (
	// StateIdle means jobs may still be registered
	StateIdle State = iota
	// StateStarted means jobs are firing
	StateStarted
	// StateStopped is terminal
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Job is one recurring probe. Probe runs on the execution substrate;
// OnSuccess and OnException run on the same firing, so they must be quick.
type Job struct {
	Name   string
	Period time.Duration
	Probe  func(ctx context.Context) (any, error)

	OnSuccess   func(value any)
	OnException func(err error)

	// OnlyIfServiceUp skips firings while the entity's service.isUp sensor
	// is not true.
	OnlyIfServiceUp bool
}

type pollJob struct {
	Job
	mu                 sync.Mutex
	loggedPrevFailure  bool
	consecutiveFailure int
}

// Poller schedules a set of probe jobs against one entity. Recurring and
// one-off jobs are registered while idle; Start schedules the recurring
// jobs and submits each one-off as a single asynchronous unit; Stop cancels
// them all. Recurring firings are gated on the entity being actively
// managed, and optionally on its service being up.
type Poller struct {
	entity *entity.Entity
	exec   *task.ExecutionManager
	logger *slog.Logger
	kernel *metric.KernelMetrics

	mu          sync.Mutex
	state       State
	jobs        []*pollJob
	oneOff      []*pollJob
	scheduled   []*task.ScheduledTask
	oneOffTasks []*task.Task
	minPeriod   time.Duration
}

// NewPoller creates an idle poller for the given entity. logger and kernel
// may be nil.
func NewPoller(e *entity.Entity, exec *task.ExecutionManager, logger *slog.Logger, kernel *metric.KernelMetrics) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		entity: e,
		exec:   exec,
		logger: logger,
		kernel: kernel,
	}
}

// Schedule registers a job. Registration is only permitted while idle.
// A job with a non-positive period is accepted but never fires; it can still
// be driven manually through FireOnce.
func (p *Poller) Schedule(job Job) error {
	if job.Probe == nil {
		return errors.WrapInvalid(errors.New("nil probe"), "Poller", "Schedule", "job validation")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateIdle {
		return errors.WrapInvalid(
			fmt.Errorf("%w: poller is %s", errors.ErrAlreadyStarted, p.state),
			"Poller", "Schedule", "lifecycle check")
	}

	if job.Period <= 0 {
		p.logger.Warn("poll job has non-positive period and will never be scheduled",
			"entity", p.entity.Name(), "job", job.Name, "period", job.Period)
	} else if p.minPeriod == 0 || job.Period < p.minPeriod {
		p.minPeriod = job.Period
	}

	p.jobs = append(p.jobs, &pollJob{Job: job})
	return nil
}

// Submit registers a one-off job, run exactly once as a single asynchronous
// unit when the poller starts. One-offs are not gated and their Period is
// ignored. Registration is only permitted while idle.
func (p *Poller) Submit(job Job) error {
	if job.Probe == nil {
		return errors.WrapInvalid(errors.New("nil probe"), "Poller", "Submit", "job validation")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateIdle {
		return errors.WrapInvalid(
			fmt.Errorf("%w: poller is %s", errors.ErrAlreadyStarted, p.state),
			"Poller", "Submit", "lifecycle check")
	}

	p.oneOff = append(p.oneOff, &pollJob{Job: job})
	return nil
}

// Start submits every registered one-off job and schedules every
// positive-period recurring job. Starting twice, or after Stop, is an error.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateStarted:
		return errors.WrapInvalid(
			fmt.Errorf("%w: poller already started", errors.ErrAlreadyStarted),
			"Poller", "Start", "lifecycle check")
	case StateStopped:
		return errors.WrapInvalid(
			fmt.Errorf("%w: poller is stopped", errors.ErrIllegalState),
			"Poller", "Start", "lifecycle check")
	}

	for _, job := range p.oneOff {
		job := job
		name := fmt.Sprintf("%s.poll-once.%s", p.entity.Name(), job.Name)
		t := task.NewForEntity(name, p.entity.ID(), func(ctx context.Context) (any, error) {
			return p.runJob(ctx, job)
		})
		if err := p.exec.Submit(t); err != nil {
			p.rollbackStartLocked()
			return errors.Wrap(err, "Poller", "Start", "one-off submission")
		}
		p.oneOffTasks = append(p.oneOffTasks, t)
	}

	for _, job := range p.jobs {
		if job.Period <= 0 {
			continue
		}
		job := job
		name := fmt.Sprintf("%s.poll.%s", p.entity.Name(), job.Name)
		st, err := p.exec.ScheduleAtFixedRate(name, job.Period, func() *task.Task {
			return task.NewForEntity(name, p.entity.ID(), func(ctx context.Context) (any, error) {
				p.fire(ctx, job)
				return nil, nil
			})
		})
		if err != nil {
			p.rollbackStartLocked()
			return errors.Wrap(err, "Poller", "Start", "job scheduling")
		}
		p.scheduled = append(p.scheduled, st)
	}

	p.state = StateStarted
	p.logger.Debug("poller started", "entity", p.entity.Name(),
		"jobs", len(p.jobs), "oneOff", len(p.oneOff), "scheduled", len(p.scheduled))
	return nil
}

// Stop cancels every one-off and scheduled unit. In-flight firings are
// interrupted best-effort through their task contexts; the handles are kept
// so stragglers stay observable through IsRunning. Stop of an idle poller is
// an error; stop of a stopped poller is a no-op.
func (p *Poller) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateIdle:
		return errors.WrapInvalid(
			fmt.Errorf("%w: poller never started", errors.ErrNotStarted),
			"Poller", "Stop", "lifecycle check")
	case StateStopped:
		return nil
	}

	p.cancelAllLocked()
	p.state = StateStopped
	p.logger.Debug("poller stopped", "entity", p.entity.Name())
	return nil
}

func (p *Poller) cancelAllLocked() {
	for _, t := range p.oneOffTasks {
		t.Cancel()
	}
	for _, st := range p.scheduled {
		st.Cancel()
	}
}

// rollbackStartLocked unwinds a partial Start so a later attempt does not
// accumulate duplicate units.
func (p *Poller) rollbackStartLocked() {
	p.cancelAllLocked()
	p.oneOffTasks = nil
	p.scheduled = nil
}

// IsRunning reports whether the poller has started and still has an active
// unit (a live scheduled job or a one-off still executing). Activity is
// checked regardless of lifecycle state: an active unit on a poller that is
// not started should have been cancelled, and is logged.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := false
	for _, st := range p.scheduled {
		if st.Active() {
			active = true
			break
		}
	}
	if !active {
		for _, t := range p.oneOffTasks {
			if t.Begun() && !t.IsDone() {
				active = true
				break
			}
		}
	}

	if active && p.state != StateStarted {
		p.logger.Warn("poller has active tasks but is not started",
			"entity", p.entity.Name(), "state", p.state.String())
	}
	return p.state == StateStarted && active
}

// State returns the current lifecycle state
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// MinPeriod returns the shortest positive period among registered jobs,
// zero when none.
func (p *Poller) MinPeriod() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minPeriod
}

// FireOnce runs a registered job immediately, bypassing its schedule but not
// its gating. Useful for unscheduled jobs and tests.
func (p *Poller) FireOnce(ctx context.Context, name string) error {
	p.mu.Lock()
	var found *pollJob
	for _, job := range p.jobs {
		if job.Name == name {
			found = job
			break
		}
	}
	p.mu.Unlock()

	if found == nil {
		return errors.WrapInvalid(
			fmt.Errorf("no poll job named %q", name), "Poller", "FireOnce", "job lookup")
	}
	p.fire(ctx, found)
	return nil
}

// fire runs one gated probe firing. Probe panics are contained: a feed must
// never take down a worker.
func (p *Poller) fire(ctx context.Context, job *pollJob) {
	if !p.entity.Managed() {
		p.skip(job, "entity not managed")
		return
	}
	if job.OnlyIfServiceUp && !p.entity.ServiceUp() {
		p.skip(job, "service not up")
		return
	}

	if p.kernel != nil {
		p.kernel.PollsFired.Inc()
	}

	_, _ = p.runJob(ctx, job)
}

// runJob executes one probe run with panic containment and routes the
// outcome to the job's handlers.
func (p *Poller) runJob(ctx context.Context, job *pollJob) (any, error) {
	value, err := p.probe(ctx, job)
	if err != nil {
		p.handleFailure(job, err)
		return nil, err
	}

	job.mu.Lock()
	job.loggedPrevFailure = false
	job.consecutiveFailure = 0
	job.mu.Unlock()

	if job.OnSuccess != nil {
		job.OnSuccess(value)
	}
	return value, nil
}

func (p *Poller) probe(ctx context.Context, job *pollJob) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll probe panicked: %v", r)
		}
	}()
	return job.Probe(ctx)
}

func (p *Poller) skip(job *pollJob, reason string) {
	if p.kernel != nil {
		p.kernel.PollsSkipped.Inc()
	}
	p.logger.Debug("poll firing skipped",
		"entity", p.entity.Name(), "job", job.Name, "reason", reason)
}

// handleFailure routes a probe failure to the job's exception handler and
// logs it with streak-aware throttling: the first failure of a streak logs
// at debug, repeats drop to trace until a success resets the streak.
func (p *Poller) handleFailure(job *pollJob, err error) {
	job.mu.Lock()
	job.consecutiveFailure++
	level := levelTrace
	if !job.loggedPrevFailure {
		level = slog.LevelDebug
		job.loggedPrevFailure = true
	}
	streak := job.consecutiveFailure
	job.mu.Unlock()

	p.logger.Log(context.Background(), level, "poll probe failed",
		"entity", p.entity.Name(), "job", job.Name, "streak", streak, "error", err)

	if job.OnException != nil {
		job.OnException(err)
	}
}
