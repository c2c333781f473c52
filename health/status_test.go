package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankumardubey/brooklyn-server/entity"
	"github.com/rohankumardubey/brooklyn-server/task"
)

func newTestServices(t *testing.T) entity.Services {
	t.Helper()
	exec := task.NewExecutionManager(2, 16, nil, nil)
	t.Cleanup(func() { _ = exec.Shutdown(time.Second) })
	return entity.NewServices(exec, nil, nil, nil)
}

func newManagedEntity(t *testing.T, svcs entity.Services, name string) *entity.Entity {
	t.Helper()
	e := entity.New(entity.NewType("test.svc", nil, nil, nil), name, svcs)
	e.SetManaged(true)
	return e
}

func TestFromEntityStates(t *testing.T) {
	e := newManagedEntity(t, newTestServices(t), "svc")

	assert.True(t, FromEntity(e).IsDegraded(), "created reads as degraded")

	e.SetServiceState(entity.LifecycleStarting)
	assert.True(t, FromEntity(e).IsDegraded())

	e.SetServiceState(entity.LifecycleRunning)
	assert.True(t, FromEntity(e).IsUnhealthy(), "running without isUp is unhealthy")

	e.SetServiceUp(true)
	assert.True(t, FromEntity(e).IsHealthy())

	e.SetServiceState(entity.LifecycleOnFire)
	assert.True(t, FromEntity(e).IsUnhealthy())

	e.SetManaged(false)
	assert.True(t, FromEntity(e).IsDegraded(), "unmanaged entity is never healthy")
}

func TestAggregateRules(t *testing.T) {
	agg := Aggregate("sys", nil)
	assert.True(t, agg.IsHealthy(), "empty aggregate is healthy")

	agg = Aggregate("sys", []Status{
		NewHealthy("a", ""),
		NewHealthy("b", ""),
	})
	assert.True(t, agg.IsHealthy())
	assert.Len(t, agg.SubStatuses, 2)

	agg = Aggregate("sys", []Status{
		NewHealthy("a", ""),
		NewDegraded("b", ""),
	})
	assert.True(t, agg.IsDegraded())

	agg = Aggregate("sys", []Status{
		NewDegraded("a", ""),
		NewUnhealthy("b", ""),
	})
	assert.True(t, agg.IsUnhealthy(), "unhealthy dominates degraded")
}

func TestAggregateTree(t *testing.T) {
	svcs := newTestServices(t)
	app := newManagedEntity(t, svcs, "app")
	child := newManagedEntity(t, svcs, "child")
	require.NoError(t, app.Attach(child))

	app.SetServiceState(entity.LifecycleRunning)
	app.SetServiceUp(true)
	child.SetServiceState(entity.LifecycleRunning)
	child.SetServiceUp(true)

	agg := AggregateTree(app)
	assert.True(t, agg.IsHealthy())
	assert.Len(t, agg.SubStatuses, 2)

	child.SetServiceState(entity.LifecycleOnFire)
	assert.True(t, AggregateTree(app).IsUnhealthy())
}

func TestMonitor(t *testing.T) {
	m := NewMonitor()
	assert.Equal(t, 0, m.Count())

	m.Update("e-1", NewHealthy("one", "ok"))
	m.Update("e-2", NewUnhealthy("two", "down"))

	got, ok := m.Get("e-1")
	require.True(t, ok)
	assert.True(t, got.IsHealthy())
	assert.False(t, got.Timestamp.IsZero())

	assert.Equal(t, 2, m.Count())
	assert.True(t, m.AggregateAll("sys").IsUnhealthy())

	m.Remove("e-2")
	assert.True(t, m.AggregateAll("sys").IsHealthy())

	all := m.GetAll()
	assert.Len(t, all, 1)
}
