package worker

import "errors"

var (
	// ErrNilProcessor is raised when a pool is constructed without a processor
	ErrNilProcessor = errors.New("worker: processor function is nil")
	// ErrPoolNotStarted is returned when submitting before Start
	ErrPoolNotStarted = errors.New("worker: pool not started")
	// ErrPoolStopped is returned when submitting after Stop
	ErrPoolStopped = errors.New("worker: pool stopped")
	// ErrPoolAlreadyStarted is returned when Start is called twice
	ErrPoolAlreadyStarted = errors.New("worker: pool already started")
	// ErrQueueFull is returned when the work queue cannot accept more items
	ErrQueueFull = errors.New("worker: queue full")
	// ErrStopTimeout is returned when workers do not drain within the stop timeout
	ErrStopTimeout = errors.New("worker: stop timed out waiting for workers")
)
