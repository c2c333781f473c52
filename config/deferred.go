package config

import (
	"context"
	"sync/atomic"
)

// Deferred is a config value that materializes asynchronously. Readers block
// in Get until the computation completes or the passed context expires.
// The kernel's task handles satisfy this interface, as does Promise below.
type Deferred interface {
	Get(ctx context.Context) (any, error)
}

// Submittable is a Deferred that should be handed to the execution substrate
// when stored, so it materializes without waiting for the first reader.
type Submittable interface {
	Deferred
	Submitted() bool
}

// IsDeferred reports whether v is a deferred computation rather than a
// materialized value.
func IsDeferred(v any) bool {
	_, ok := v.(Deferred)
	return ok
}

// Promise is a one-shot deferred computation. The computation runs at most
// once, triggered by the first Get (or by a fire-and-forget Get from the
// execution substrate when the value is stored); all readers then share the
// same result.
type Promise struct {
	compute func(context.Context) (any, error)
	started atomic.Bool
	done    chan struct{}
	val     any
	err     error
}

// NewPromise wraps a computation into a Promise
func NewPromise(fn func(ctx context.Context) (any, error)) *Promise {
	return &Promise{compute: fn, done: make(chan struct{})}
}

// Get blocks until the computation has completed, triggering it if needed.
// The computation itself runs on background context: it is shared state and
// must not die with the first reader's deadline.
func (p *Promise) Get(ctx context.Context) (any, error) {
	if p.started.CompareAndSwap(false, true) {
		go func() {
			p.val, p.err = p.compute(context.Background())
			close(p.done)
		}()
	}

	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submitted reports whether the computation has been triggered
func (p *Promise) Submitted() bool {
	return p.started.Load()
}
