package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeRoundTrip(t *testing.T) {
	svcs := newTestServices(t)
	e := newTestEntity(t, svcs, "e")

	_, ok := e.Attribute("latency")
	assert.False(t, ok)

	e.SetAttribute("latency", 12.5)
	v, ok := e.Attribute("latency")
	require.True(t, ok)
	assert.Equal(t, 12.5, v)

	e.SetAttribute("latency", 9.0)
	v, _ = e.Attribute("latency")
	assert.Equal(t, 9.0, v)

	assert.Equal(t, []string{"latency"}, e.AttributeNames())
}

func TestSubscribeAttribute(t *testing.T) {
	svcs := newTestServices(t)
	e := newTestEntity(t, svcs, "e")

	var got []any
	cancel := e.SubscribeAttribute("load", func(sensor string, value any) {
		got = append(got, value)
	})

	e.SetAttribute("load", 1)
	e.SetAttribute("other", "x")
	e.SetAttribute("load", 2)
	assert.Equal(t, []any{1, 2}, got)

	cancel()
	e.SetAttribute("load", 3)
	assert.Equal(t, []any{1, 2}, got, "no delivery after cancel")
}

func TestSubscribeAllAttributes(t *testing.T) {
	svcs := newTestServices(t)
	e := newTestEntity(t, svcs, "e")

	var sensors []string
	cancel := e.SubscribeAttribute("", func(sensor string, value any) {
		sensors = append(sensors, sensor)
	})
	defer cancel()

	e.SetAttribute("a", 1)
	e.SetAttribute("b", 2)
	assert.Equal(t, []string{"a", "b"}, sensors)
}

func TestServiceStateSensors(t *testing.T) {
	svcs := newTestServices(t)
	e := newTestEntity(t, svcs, "e")

	assert.False(t, e.ServiceUp())
	assert.Equal(t, LifecycleCreated, e.ServiceState())

	e.SetServiceUp(true)
	e.SetServiceState(LifecycleRunning)
	assert.True(t, e.ServiceUp())
	assert.Equal(t, LifecycleRunning, e.ServiceState())

	// Raw string values published by external feeds are accepted
	e.SetAttribute(SensorServiceState, "stopping")
	assert.Equal(t, LifecycleStopping, e.ServiceState())

	e.SetAttribute(SensorServiceUp, "yes")
	assert.False(t, e.ServiceUp(), "non-bool service.isUp reads as down")
}
