package entity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankumardubey/brooklyn-server/errors"
	"github.com/rohankumardubey/brooklyn-server/task"
)

func restartableType(t *testing.T) *Type {
	t.Helper()
	return NewType("test.service", nil,
		[]Sensor{
			{Name: "restart.count", Type: "int"},
		},
		[]Effector{
			{
				Name:   "restart",
				Params: []Param{{Name: "delay", Type: "duration", Default: "0s"}},
				Result: Sensor{Name: "restart.count", Type: "int"},
				Body: func(ctx context.Context, e *Entity, args map[string]any) (any, error) {
					count := 0
					if v, ok := e.Attribute("restart.count"); ok {
						count = v.(int)
					}
					return count + 1, nil
				},
			},
			{
				Name: "fail",
				Body: func(ctx context.Context, e *Entity, args map[string]any) (any, error) {
					return nil, errors.New("service refused")
				},
			},
		})
}

func TestInvokeRunsAsTask(t *testing.T) {
	svcs := newTestServices(t)
	e := New(restartableType(t), "web", svcs)

	handle, err := e.Invoke(context.Background(), "restart", nil)
	require.NoError(t, err)

	v, err := handle.GetTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, e.ID(), handle.EntityID())

	got, ok := e.Attribute("restart.count")
	require.True(t, ok)
	assert.Equal(t, 1, got, "result sensor updated on success")
}

func TestInvokeUnknownEffector(t *testing.T) {
	svcs := newTestServices(t)
	e := New(restartableType(t), "web", svcs)

	_, err := e.Invoke(context.Background(), "explode", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoSuchEffector))
}

func TestInvokeFailureDoesNotTouchResultSensor(t *testing.T) {
	svcs := newTestServices(t)
	e := New(restartableType(t), "web", svcs)

	handle, err := e.Invoke(context.Background(), "fail", nil)
	require.NoError(t, err)

	_, err = handle.GetTimeout(time.Second)
	require.Error(t, err)
	assert.Equal(t, task.StatusFailed, handle.Status())

	_, ok := e.Attribute("restart.count")
	assert.False(t, ok)
}

func TestInvokeArgumentCoercion(t *testing.T) {
	svcs := newTestServices(t)

	var seen map[string]any
	typ := NewType("test.args", nil, nil, []Effector{{
		Name: "configure",
		Params: []Param{
			{Name: "port", Type: "int"},
			{Name: "timeout", Type: "duration", Default: "5s"},
		},
		Body: func(ctx context.Context, e *Entity, args map[string]any) (any, error) {
			seen = args
			return nil, nil
		},
	}})
	e := New(typ, "cfg", svcs)

	handle, err := e.Invoke(context.Background(), "configure", map[string]any{
		"port":  "8080",
		"extra": "untyped",
	})
	require.NoError(t, err)
	_, err = handle.GetTimeout(time.Second)
	require.NoError(t, err)

	assert.Equal(t, 8080, seen["port"], "string coerced to declared int")
	assert.Equal(t, "5s", seen["timeout"], "default fills missing param")
	assert.Equal(t, "untyped", seen["extra"], "undeclared args pass through")
}

func TestInvokeBadArgumentPassesThrough(t *testing.T) {
	svcs := newTestServices(t)

	var seen map[string]any
	typ := NewType("test.badargs", nil, nil, []Effector{{
		Name:   "tune",
		Params: []Param{{Name: "level", Type: "int"}},
		Body: func(ctx context.Context, e *Entity, args map[string]any) (any, error) {
			seen = args
			return nil, nil
		},
	}})
	e := New(typ, "cfg", svcs)

	handle, err := e.Invoke(context.Background(), "tune", map[string]any{"level": "loud"})
	require.NoError(t, err, "uncoercible arguments never abort dispatch")
	_, err = handle.GetTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "loud", seen["level"])
}

func TestNestedInvokeRunsInline(t *testing.T) {
	svcs := newTestServices(t)

	var typ *Type
	typ = NewType("test.nested", nil, nil, []Effector{
		{
			Name: "outer",
			Body: func(ctx context.Context, e *Entity, args map[string]any) (any, error) {
				inner, err := e.Invoke(ctx, "inner", nil)
				if err != nil {
					return nil, err
				}
				return inner.Get(ctx)
			},
		},
		{
			Name: "inner",
			Body: func(ctx context.Context, e *Entity, args map[string]any) (any, error) {
				return "from-inner", nil
			},
		},
	})
	e := New(typ, "nested", svcs)

	before := svcs.Exec.Stats().Submitted

	handle, err := e.Invoke(context.Background(), "outer", nil)
	require.NoError(t, err)
	v, err := handle.GetTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "from-inner", v)

	after := svcs.Exec.Stats().Submitted
	assert.Equal(t, before+1, after, "nested invocation reuses the outer unit of work")
}

func TestNestedInvokeFailureResolvesHandle(t *testing.T) {
	svcs := newTestServices(t)

	var (
		innerHandle *task.Task
		innerErr    error
	)
	typ := NewType("test.nested-fail", nil, nil, []Effector{
		{
			Name: "outer",
			Body: func(ctx context.Context, e *Entity, args map[string]any) (any, error) {
				h, err := e.Invoke(ctx, "inner", nil)
				if err != nil {
					return nil, err
				}
				innerHandle = h
				_, innerErr = h.Get(ctx)
				return "outer-done", nil
			},
		},
		{
			Name: "inner",
			Body: func(ctx context.Context, e *Entity, args map[string]any) (any, error) {
				return nil, errors.New("inner refused")
			},
		},
	})
	e := New(typ, "nested", svcs)

	handle, err := e.Invoke(context.Background(), "outer", nil)
	require.NoError(t, err)
	v, err := handle.GetTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "outer-done", v)

	require.NotNil(t, innerHandle, "inline failure still hands back a handle")
	assert.True(t, innerHandle.IsDone())
	assert.Equal(t, task.StatusFailed, innerHandle.Status())
	require.Error(t, innerErr)
	assert.Contains(t, innerErr.Error(), "inner refused")
}

func TestNestedInvokeOnDifferentEntitySubmits(t *testing.T) {
	svcs := newTestServices(t)

	inner := New(restartableType(t), "inner-svc", svcs)
	typ := NewType("test.orchestrator", nil, nil, []Effector{{
		Name: "rollout",
		Body: func(ctx context.Context, e *Entity, args map[string]any) (any, error) {
			h, err := inner.Invoke(ctx, "restart", nil)
			if err != nil {
				return nil, err
			}
			return h.Get(ctx)
		},
	}})
	outer := New(typ, "orchestrator", svcs)

	handle, err := outer.Invoke(context.Background(), "rollout", nil)
	require.NoError(t, err)
	v, err := handle.GetTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}
