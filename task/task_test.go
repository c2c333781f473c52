package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankumardubey/brooklyn-server/errors"
)

func newTestManager(t *testing.T) *ExecutionManager {
	t.Helper()
	m := NewExecutionManager(4, 64, nil, nil)
	t.Cleanup(func() { _ = m.Shutdown(time.Second) })
	return m
}

func TestSubmitAndGet(t *testing.T) {
	m := newTestManager(t)

	task := New("answer", func(context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, m.Submit(task))

	v, err := task.GetTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, StatusSucceeded, task.Status())
}

func TestTaskFailure(t *testing.T) {
	m := newTestManager(t)

	boom := errors.New("boom")
	task := New("failing", func(context.Context) (any, error) {
		return nil, boom
	})
	require.NoError(t, m.Submit(task))

	_, err := task.GetTimeout(time.Second)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StatusFailed, task.Status())
}

func TestTaskPanicIsCaptured(t *testing.T) {
	m := newTestManager(t)

	task := New("panicky", func(context.Context) (any, error) {
		panic("kaboom")
	})
	require.NoError(t, m.Submit(task))

	_, err := task.GetTimeout(time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, StatusFailed, task.Status())
}

func TestDoubleSubmitRejected(t *testing.T) {
	m := newTestManager(t)

	task := New("once", func(context.Context) (any, error) { return nil, nil })
	require.NoError(t, m.Submit(task))

	err := m.Submit(task)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIllegalState))
}

func TestCancelRunningTask(t *testing.T) {
	m := newTestManager(t)

	started := make(chan struct{})
	task := New("interruptible", func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, m.Submit(task))

	<-started
	task.Cancel()

	_, err := task.GetTimeout(time.Second)
	assert.ErrorIs(t, err, errors.ErrTaskCancelled)
	assert.Equal(t, StatusCancelled, task.Status())
}

func TestCancelIgnoringTaskRunsToCompletion(t *testing.T) {
	m := newTestManager(t)

	started := make(chan struct{})
	release := make(chan struct{})
	task := New("stubborn", func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "finished anyway", nil
	})
	require.NoError(t, m.Submit(task))

	<-started
	task.Cancel()
	close(release)

	v, err := task.GetTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "finished anyway", v)
}

func TestGetHonorsCallerTimeout(t *testing.T) {
	m := newTestManager(t)

	release := make(chan struct{})
	defer close(release)
	task := New("slow", func(context.Context) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, m.Submit(task))

	_, err := task.GetTimeout(20 * time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCompletedHandle(t *testing.T) {
	task := Completed("inline", "value")
	assert.True(t, task.IsDone())

	v, err := task.GetTimeout(time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
}

func TestEntityTagging(t *testing.T) {
	m := newTestManager(t)

	var tagged string
	task := NewForEntity("tagged-work", "e-123", func(ctx context.Context) (any, error) {
		id, _ := EntityFromContext(ctx)
		tagged = id
		return nil, nil
	})
	require.NoError(t, m.Submit(task))

	_, err := task.GetTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "e-123", tagged)
	assert.Equal(t, "e-123", task.EntityID())
}

func TestEntityFromContextAbsent(t *testing.T) {
	_, ok := EntityFromContext(context.Background())
	assert.False(t, ok)
}

func TestSubmitAfterShutdown(t *testing.T) {
	m := NewExecutionManager(1, 8, nil, nil)
	require.NoError(t, m.Shutdown(time.Second))

	err := m.Submit(New("late", func(context.Context) (any, error) { return nil, nil }))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTerminated))

	// Shutdown is idempotent
	assert.NoError(t, m.Shutdown(time.Second))
}

func TestScheduledTaskFiresSequentially(t *testing.T) {
	m := newTestManager(t)

	var fired atomic.Int64
	st, err := m.ScheduleAtFixedRate("ticker", 20*time.Millisecond, func() *Task {
		return New("tick", func(context.Context) (any, error) {
			fired.Add(1)
			return nil, nil
		})
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return fired.Load() >= 3
	}, time.Second, 5*time.Millisecond)
	assert.True(t, st.Active())

	st.Cancel()
	count := fired.Load()
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, fired.Load(), count+1, "at most one in-flight firing after cancel")
	assert.True(t, st.Cancelled())
	assert.False(t, st.Active())
}

func TestScheduleRejectsBadArguments(t *testing.T) {
	m := newTestManager(t)

	_, err := m.ScheduleAtFixedRate("none", 0, func() *Task { return nil })
	assert.Error(t, err)

	_, err = m.ScheduleAtFixedRate("none", time.Second, nil)
	assert.Error(t, err)
}
