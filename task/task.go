// Package task provides the kernel's unit-of-work abstraction: cancellable,
// entity-taggable tasks executed on a shared worker pool, plus fixed-period
// scheduled recurrence for pollers.
package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rohankumardubey/brooklyn-server/errors"
)

// Status represents the lifecycle state of a task
type Status int

const (
	// StatusPending indicates the task has not begun executing
	StatusPending Status = iota
	// StatusRunning indicates the task body is executing
	StatusRunning
	// StatusSucceeded indicates the task completed without error
	StatusSucceeded
	// StatusFailed indicates the task body returned an error or panicked
	StatusFailed
	// StatusCancelled indicates the task was cancelled before or during execution
	StatusCancelled
)

// String returns a string representation of the task status
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Task is an asynchronous, cancellable unit of work. A task is a handle:
// callers may await the result with Get, poll Status, or Cancel it.
// Tasks tagged with an entity id mark all work done on that entity's behalf,
// which is how dispatch detects reentrant effector calls.
type Task struct {
	id       string
	name     string
	entityID string
	fn       func(ctx context.Context) (any, error)

	mu        sync.Mutex
	status    Status
	result    any
	err       error
	done      chan struct{}
	submitted bool
	started   time.Time
	ended     time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an unsubmitted task with the given display name and body
func New(name string, fn func(ctx context.Context) (any, error)) *Task {
	return &Task{
		id:   uuid.NewString(),
		name: name,
		fn:   fn,
		done: make(chan struct{}),
	}
}

// NewForEntity creates a task tagged as executing on behalf of an entity
func NewForEntity(name, entityID string, fn func(ctx context.Context) (any, error)) *Task {
	t := New(name, fn)
	t.entityID = entityID
	return t
}

// Completed returns an already-resolved task handle. Used by dispatch when a
// reentrant effector call executes inline and still needs to hand back a
// handle of the usual shape.
func Completed(name string, result any) *Task {
	t := New(name, nil)
	t.status = StatusSucceeded
	t.result = result
	close(t.done)
	return t
}

// Failed returns an already-resolved handle in failure state, the inline
// counterpart of a submitted task whose body returned err.
func Failed(name string, err error) *Task {
	t := New(name, nil)
	t.status = StatusFailed
	t.err = err
	close(t.done)
	return t
}

// ID returns the task's process-unique id
func (t *Task) ID() string { return t.id }

// Name returns the task's display name
func (t *Task) Name() string { return t.name }

// EntityID returns the id of the entity this task is tagged with, or ""
func (t *Task) EntityID() string { return t.entityID }

// Status returns the task's current lifecycle state
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Done returns a channel closed when the task completes in any state
func (t *Task) Done() <-chan struct{} { return t.done }

// IsDone reports whether the task has completed in any state
func (t *Task) IsDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Begun reports whether the task body has started executing
func (t *Task) Begun() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status != StatusPending || !t.started.IsZero()
}

// Submitted reports whether the task has been handed to an execution manager
func (t *Task) Submitted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.submitted
}

// Get blocks until the task completes or the caller's context expires,
// returning the task's result. A cancelled task yields ErrTaskCancelled.
func (t *Task) Get(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetTimeout is a convenience wrapper over Get with a deadline
func (t *Task) GetTimeout(timeout time.Duration) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return t.Get(ctx)
}

// Cancel requests cancellation. A pending task is retired immediately; a
// running task has its context cancelled and retires once its body returns
// (best-effort interrupt, not a hard kill).
func (t *Task) Cancel() {
	t.mu.Lock()
	if t.status == StatusPending {
		t.status = StatusCancelled
		t.err = errors.ErrTaskCancelled
		t.ended = time.Now()
		close(t.done)
		cancel := t.cancel
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// attach binds the task to its execution context at submission time
func (t *Task) attach(ctx context.Context, cancel context.CancelFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.submitted {
		return errors.WrapInvalid(
			fmt.Errorf("%w: task %s already submitted", errors.ErrIllegalState, t.name),
			"Task", "attach", "submission check")
	}
	t.submitted = true
	t.ctx = ctx
	t.cancel = cancel
	return nil
}

// run executes the task body. Called exactly once by the worker pool.
func (t *Task) run() error {
	t.mu.Lock()
	if t.status != StatusPending {
		// Cancelled while queued
		t.mu.Unlock()
		return t.err
	}
	t.status = StatusRunning
	t.started = time.Now()
	ctx := t.ctx
	t.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	var (
		result any
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task %s panicked: %v", t.name, r)
			}
		}()
		result, err = t.fn(ctx)
	}()

	t.complete(result, err, ctx)
	return err
}

func (t *Task) complete(result any, err error, ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusRunning {
		return
	}
	t.ended = time.Now()
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, errors.ErrTaskCancelled)):
		t.status = StatusCancelled
		t.err = errors.ErrTaskCancelled
	case ctx != nil && ctx.Err() != nil && err == nil:
		// Body ignored the interrupt and ran to completion; keep its result.
		t.status = StatusSucceeded
		t.result = result
	case err != nil:
		t.status = StatusFailed
		t.err = err
	default:
		t.status = StatusSucceeded
		t.result = result
	}
	close(t.done)
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *Task) String() string {
	return fmt.Sprintf("Task[%s:%s]", t.name, t.id[:8])
}
