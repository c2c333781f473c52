package entity

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankumardubey/brooklyn-server/config"
	"github.com/rohankumardubey/brooklyn-server/errors"
)

func TestConfigOwnShadowsInheritedShadowsDefault(t *testing.T) {
	svcs := newTestServices(t)
	ctx := context.Background()
	key := config.NewKey("http.port", "int").WithDefault(8080)

	parent := newTestEntity(t, svcs, "parent")
	child := newTestEntity(t, svcs, "child")
	require.NoError(t, parent.Attach(child))

	v, err := child.GetConfig(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 8080, v, "default applies when nothing is set")

	require.NoError(t, parent.SetConfig(key, 9000))
	v, err = child.GetConfig(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 9000, v, "inherited shadows default")

	require.NoError(t, child.SetConfig(key, 9999))
	v, err = child.GetConfig(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 9999, v, "own shadows inherited")

	v, err = parent.GetConfig(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 9000, v, "child's own value never leaks upward")
}

func TestConfigCascadeReachesGrandchildren(t *testing.T) {
	svcs := newTestServices(t)
	ctx := context.Background()
	key := config.NewKey("env", "string")

	root := newTestEntity(t, svcs, "root")
	mid := newTestEntity(t, svcs, "mid")
	leaf := newTestEntity(t, svcs, "leaf")
	require.NoError(t, root.Attach(mid))
	require.NoError(t, mid.Attach(leaf))

	require.NoError(t, root.SetConfig(key, "prod"))

	v, err := leaf.GetConfig(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "prod", v)

	// A write at the middle level shadows for the leaf but not elsewhere
	require.NoError(t, mid.SetConfig(key, "staging"))
	v, err = leaf.GetConfig(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "staging", v)

	v, err = root.GetConfig(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "prod", v)
}

func TestAttachRecomputesInheritance(t *testing.T) {
	svcs := newTestServices(t)
	ctx := context.Background()
	key := config.NewKey("region", "string")

	parent := newTestEntity(t, svcs, "parent")
	require.NoError(t, parent.SetConfig(key, "eu-west"))

	orphan := newTestEntity(t, svcs, "orphan")
	v, err := orphan.GetConfig(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, parent.Attach(orphan))
	v, err = orphan.GetConfig(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "eu-west", v)

	require.NoError(t, parent.Detach(orphan))
	v, err = orphan.GetConfig(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, v, "detached entity inherits nothing")
}

func TestSetConfigRejectedAfterDeploy(t *testing.T) {
	svcs := newTestServices(t)
	key := config.NewKey("size", "int")

	app := newTestEntity(t, svcs, "app")
	app.MarkApplication()
	child := newTestEntity(t, svcs, "child")
	require.NoError(t, app.Attach(child))

	require.NoError(t, child.SetConfig(key, 1))
	require.NoError(t, app.MarkDeployed())

	err := child.SetConfig(key, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDeployed))

	err = app.SetConfig(key, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDeployed))

	v, gerr := child.GetConfig(context.Background(), key)
	require.NoError(t, gerr)
	assert.Equal(t, 1, v, "rejected writes leave config untouched")
}

func TestStructuredConfigSubKeyShadowing(t *testing.T) {
	svcs := newTestServices(t)
	ctx := context.Background()
	key := config.NewMapKey("provisioning.properties")

	parent := newTestEntity(t, svcs, "parent")
	child := newTestEntity(t, svcs, "child")
	require.NoError(t, parent.Attach(child))

	require.NoError(t, parent.SetConfig(key, map[string]any{"cpu": 2, "mem": "4g"}))
	require.NoError(t, child.SetConfig(key, config.Entry{Key: "cpu", Value: 8}))

	v, err := child.GetConfig(ctx, key)
	require.NoError(t, err)
	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 8, m["cpu"], "own sub-key shadows inherited")
	assert.Equal(t, "4g", m["mem"], "unshadowed inherited sub-keys survive")

	v, err = parent.GetConfig(ctx, key)
	require.NoError(t, err)
	m = v.(map[string]any)
	assert.Equal(t, 2, m["cpu"])
}

func TestStructuredConfigEmptyDistinctFromUnset(t *testing.T) {
	svcs := newTestServices(t)
	ctx := context.Background()
	key := config.NewMapKey("tags")

	e := newTestEntity(t, svcs, "e")
	assert.False(t, e.ConfigIsSet(key))

	v, err := e.GetConfig(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, e.SetConfig(key, map[string]any{}))
	assert.True(t, e.ConfigIsSet(key))

	v, err = e.GetConfig(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, v)
}

func TestStructuredConfigModifications(t *testing.T) {
	svcs := newTestServices(t)
	ctx := context.Background()
	key := config.NewMapKey("template.options")

	e := newTestEntity(t, svcs, "e")
	require.NoError(t, e.SetConfig(key, map[string]any{
		"network": map[string]any{"subnet": "10.0.0.0/24"},
		"zone":    "a",
	}))

	require.NoError(t, e.SetConfig(key, config.MapAdd(map[string]any{
		"network": map[string]any{"gateway": "10.0.0.1"},
	})))

	v, err := e.GetConfig(ctx, key)
	require.NoError(t, err)
	m := v.(map[string]any)
	network := m["network"].(map[string]any)
	assert.Equal(t, "10.0.0.0/24", network["subnet"], "deep add preserves siblings")
	assert.Equal(t, "10.0.0.1", network["gateway"])
	assert.Equal(t, "a", m["zone"])

	require.NoError(t, e.SetConfig(key, config.MapSet(map[string]any{"fresh": true})))
	v, err = e.GetConfig(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"fresh": true}, v)
}

func TestDeferredConfigBlocksUntilMaterialized(t *testing.T) {
	svcs := newTestServices(t)
	key := config.NewKey("db.url", "string")

	release := make(chan struct{})
	p := config.NewPromise(func(context.Context) (any, error) {
		<-release
		return "postgres://db:5432", nil
	})

	e := newTestEntity(t, svcs, "e")
	require.NoError(t, e.SetConfig(key, p))

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.GetConfig(short, key)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfigResolution))

	close(release)
	v, err := e.GetConfig(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "postgres://db:5432", v)
}

func TestDeferredConfigFailureSurfacesOnRead(t *testing.T) {
	svcs := newTestServices(t)
	key := config.NewKey("secret", "string")

	p := config.NewPromise(func(context.Context) (any, error) {
		return nil, errors.New("vault unavailable")
	})

	e := newTestEntity(t, svcs, "e")
	require.NoError(t, e.SetConfig(key, p), "storing a failing deferred succeeds")

	require.Eventually(t, func() bool { return p.Submitted() }, time.Second, 5*time.Millisecond)

	_, err := e.GetConfig(context.Background(), key)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfigResolution))
	assert.True(t, errors.IsTransient(err))
}

func TestDeferredConfigMaterializesThroughExecutionManager(t *testing.T) {
	svcs := newTestServices(t)
	key := config.NewKey("db.url", "string")

	var resolved atomic.Int64
	p := config.NewPromise(func(context.Context) (any, error) {
		resolved.Add(1)
		return "postgres://db:5432", nil
	})

	e := newTestEntity(t, svcs, "e")
	before := svcs.Exec.Stats().Submitted
	require.NoError(t, e.SetConfig(key, p))

	assert.Equal(t, before+1, svcs.Exec.Stats().Submitted,
		"storing a deferred submits its materialization as a task")
	require.Eventually(t, func() bool {
		return resolved.Load() == 1
	}, time.Second, 5*time.Millisecond, "deferred materializes without a reader")

	v, err := e.GetConfig(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "postgres://db:5432", v)
	assert.Equal(t, int64(1), resolved.Load(), "the read reuses the materialized value")
}

func TestDeferredInheritedConfig(t *testing.T) {
	svcs := newTestServices(t)
	key := config.NewKey("token", "string")

	p := config.NewPromise(func(context.Context) (any, error) {
		return "tok-123", nil
	})

	parent := newTestEntity(t, svcs, "parent")
	child := newTestEntity(t, svcs, "child")
	require.NoError(t, parent.Attach(child))
	require.NoError(t, parent.SetConfig(key, p))

	v, err := child.GetConfig(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", v, "deferred values resolve through inheritance")
}

func TestConfigCoercionOnRead(t *testing.T) {
	svcs := newTestServices(t)
	ctx := context.Background()

	e := newTestEntity(t, svcs, "e")

	intKey := config.NewKey("count", "int")
	require.NoError(t, e.SetConfig(intKey, "5"))
	v, err := e.GetConfig(ctx, intKey)
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	durKey := config.NewKey("timeout", "duration")
	require.NoError(t, e.SetConfig(durKey, "30s"))
	v, err = e.GetConfig(ctx, durKey)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, v)

	require.NoError(t, e.SetConfig(intKey, "not-a-number"))
	_, err = e.GetConfig(ctx, intKey)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCoercion))
}
