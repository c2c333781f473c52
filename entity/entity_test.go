package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankumardubey/brooklyn-server/errors"
	"github.com/rohankumardubey/brooklyn-server/task"
)

func newTestServices(t *testing.T) Services {
	t.Helper()
	exec := task.NewExecutionManager(4, 64, nil, nil)
	t.Cleanup(func() { _ = exec.Shutdown(time.Second) })
	return NewServices(exec, nil, nil, nil)
}

func newTestEntity(t *testing.T, svcs Services, name string) *Entity {
	t.Helper()
	return New(NewType("test.basic", nil, nil, nil), name, svcs)
}

func TestAttachDetach(t *testing.T) {
	svcs := newTestServices(t)
	app := newTestEntity(t, svcs, "app")
	app.MarkApplication()
	cluster := newTestEntity(t, svcs, "cluster")
	node := newTestEntity(t, svcs, "node")

	require.NoError(t, app.Attach(cluster))
	require.NoError(t, cluster.Attach(node))

	assert.Equal(t, app, cluster.Owner())
	assert.Equal(t, cluster, node.Owner())
	assert.Equal(t, app, node.Application())
	assert.True(t, node.IsDescendantOf(app))
	assert.True(t, app.IsAncestorOf(node))

	require.NoError(t, cluster.Detach(node))
	assert.Nil(t, node.Owner())
	assert.Nil(t, node.Application())
	assert.Empty(t, cluster.Children())
}

func TestAttachRejectsCycles(t *testing.T) {
	svcs := newTestServices(t)
	a := newTestEntity(t, svcs, "a")
	b := newTestEntity(t, svcs, "b")
	c := newTestEntity(t, svcs, "c")

	require.NoError(t, a.Attach(b))
	require.NoError(t, b.Attach(c))

	err := c.Attach(a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCycle))

	err = a.Attach(a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCycle))

	// The failed attach left the graph untouched
	assert.Nil(t, a.Owner())
	assert.Empty(t, c.Children())
	assert.Equal(t, []*Entity{b}, a.Children())
}

func TestAttachReparents(t *testing.T) {
	svcs := newTestServices(t)
	first := newTestEntity(t, svcs, "first")
	second := newTestEntity(t, svcs, "second")
	child := newTestEntity(t, svcs, "child")

	require.NoError(t, first.Attach(child))
	require.NoError(t, second.Attach(child))

	assert.Equal(t, second, child.Owner())
	assert.Empty(t, first.Children())
	assert.Equal(t, []*Entity{child}, second.Children())
}

func TestDetachRequiresOwnership(t *testing.T) {
	svcs := newTestServices(t)
	a := newTestEntity(t, svcs, "a")
	b := newTestEntity(t, svcs, "b")

	err := a.Detach(b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotChild))
}

func TestDescendantsBreadthFirst(t *testing.T) {
	svcs := newTestServices(t)
	root := newTestEntity(t, svcs, "root")
	mid1 := newTestEntity(t, svcs, "mid1")
	mid2 := newTestEntity(t, svcs, "mid2")
	leaf := newTestEntity(t, svcs, "leaf")

	require.NoError(t, root.Attach(mid1))
	require.NoError(t, root.Attach(mid2))
	require.NoError(t, mid1.Attach(leaf))

	desc := root.Descendants()
	assert.Len(t, desc, 3)
	assert.NotContains(t, desc, root)
}

func TestApplicationResolutionCached(t *testing.T) {
	svcs := newTestServices(t)
	app := newTestEntity(t, svcs, "app")
	app.MarkApplication()
	child := newTestEntity(t, svcs, "child")

	assert.Nil(t, child.Application())
	require.NoError(t, app.Attach(child))
	assert.Equal(t, app, child.Application())

	// Moving the child invalidates the cached root
	other := newTestEntity(t, svcs, "other-app")
	other.MarkApplication()
	require.NoError(t, other.Attach(child))
	assert.Equal(t, other, child.Application())
}

func TestMarkDeployedRequiresApplication(t *testing.T) {
	svcs := newTestServices(t)
	e := newTestEntity(t, svcs, "plain")

	err := e.MarkDeployed()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIllegalState))
}

func TestGroupsAreNonOwning(t *testing.T) {
	svcs := newTestServices(t)
	owner := newTestEntity(t, svcs, "owner")
	member := newTestEntity(t, svcs, "member")
	require.NoError(t, owner.Attach(member))

	g := NewGroup("web-tier")
	g.Add(member)

	assert.True(t, g.Contains(member))
	assert.Equal(t, owner, member.Owner(), "group membership does not change ownership")
	assert.Equal(t, []*Group{g}, member.Groups())
	assert.Equal(t, 1, g.Size())

	// Membership never participates in cycle checks
	g2 := NewGroup("all")
	g2.Add(owner)
	g2.Add(member)
	assert.Equal(t, 2, g2.Size())

	g.Remove(member)
	assert.False(t, g.Contains(member))
	assert.Empty(t, member.Groups())
}

func TestSnapshot(t *testing.T) {
	svcs := newTestServices(t)
	app := newTestEntity(t, svcs, "app")
	app.MarkApplication()
	child := newTestEntity(t, svcs, "child")
	require.NoError(t, app.Attach(child))

	child.SetAttribute("service.isUp", true)
	g := NewGroup("g")
	g.Add(child)

	snap := child.Snapshot()
	assert.Equal(t, child.ID(), snap.ID)
	assert.Equal(t, "child", snap.Name)
	assert.Equal(t, app.ID(), snap.OwnerID)
	assert.Equal(t, app.ID(), snap.Application)
	assert.Equal(t, []string{g.ID()}, snap.GroupIDs)
	assert.Equal(t, true, snap.Attributes["service.isUp"])
}
