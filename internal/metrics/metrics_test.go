package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/blockroll/internal/eventbus"
	"github.com/annel0/blockroll/internal/protocol"
)

// family ищет семейство метрик по имени
func family(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func counterWithLabel(mf *dto.MetricFamily, label, value string) float64 {
	if mf == nil {
		return 0
	}
	for _, m := range mf.Metric {
		for _, lp := range m.Label {
			if lp.GetName() == label && lp.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func publish(t *testing.T, bus eventbus.EventBus, ev *protocol.GameEvent) {
	t.Helper()
	payload, err := protocol.EncodeEvent(ev)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), eventbus.NewEnvelope("game", string(ev.Type), payload)))
}

func TestGameMetrics_FromBus(t *testing.T) {
	registry := prometheus.NewRegistry()
	bus := eventbus.NewMemoryBus(32)
	defer bus.Close()

	active := 3
	gm := NewGameMetrics(registry, func() int { return active })
	require.NoError(t, gm.Subscribe(context.Background(), bus))
	defer gm.Unsubscribe()

	publish(t, bus, &protocol.GameEvent{Type: protocol.EventMoveAccepted, LevelID: "classic"})
	publish(t, bus, &protocol.GameEvent{Type: protocol.EventMoveAccepted, LevelID: "classic"})
	publish(t, bus, &protocol.GameEvent{Type: protocol.EventMoveRejected, LevelID: "classic"})
	publish(t, bus, &protocol.GameEvent{Type: protocol.EventTransitionCompleted, LevelID: "classic"})
	publish(t, bus, &protocol.GameEvent{Type: protocol.EventLevelCompleted, LevelID: "classic"})

	assert.Eventually(t, func() bool {
		return counterWithLabel(family(t, registry, "blockroll_levels_completed_total"), "level", "classic") == 1
	}, time.Second, 5*time.Millisecond)

	moves := family(t, registry, "blockroll_moves_total")
	assert.Equal(t, 2.0, counterWithLabel(moves, "result", "accepted"))
	assert.Equal(t, 1.0, counterWithLabel(moves, "result", "rejected"))

	transitions := family(t, registry, "blockroll_transitions_completed_total")
	require.NotNil(t, transitions)
	assert.Equal(t, 1.0, transitions.Metric[0].GetCounter().GetValue())

	sessions := family(t, registry, "blockroll_sessions_active")
	require.NotNil(t, sessions)
	assert.Equal(t, 3.0, sessions.Metric[0].GetGauge().GetValue())

	active = 5
	sessions = family(t, registry, "blockroll_sessions_active")
	assert.Equal(t, 5.0, sessions.Metric[0].GetGauge().GetValue())
}

func TestGameMetrics_IgnoresGarbage(t *testing.T) {
	registry := prometheus.NewRegistry()
	bus := eventbus.NewMemoryBus(8)
	defer bus.Close()

	gm := NewGameMetrics(registry, nil)
	require.NoError(t, gm.Subscribe(context.Background(), bus))

	require.NoError(t, bus.Publish(context.Background(), eventbus.NewEnvelope("game", "move.accepted", []byte{0xff})))
	assert.Eventually(t, func() bool { return bus.Metrics().Consumed == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.0, counterWithLabel(family(t, registry, "blockroll_moves_total"), "result", "accepted"))
}

func TestBusExporter_Collect(t *testing.T) {
	registry := prometheus.NewRegistry()
	bus := eventbus.NewMemoryBus(8)
	defer bus.Close()

	exp := NewBusExporter(bus, registry)
	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(context.Background(), eventbus.NewEnvelope("game", "x", nil)))
	}
	exp.Collect()
	exp.Collect()

	published := family(t, registry, "eventbus_messages_published_total")
	require.NotNil(t, published)
	assert.Equal(t, 3.0, published.Metric[0].GetCounter().GetValue())
}

func TestBusExporter_StartStop(t *testing.T) {
	registry := prometheus.NewRegistry()
	bus := eventbus.NewMemoryBus(8)
	defer bus.Close()

	exp := NewBusExporter(bus, registry)
	exp.interval = 5 * time.Millisecond
	exp.Start()
	require.NoError(t, bus.Publish(context.Background(), eventbus.NewEnvelope("game", "x", nil)))

	assert.Eventually(t, func() bool {
		mf := family(t, registry, "eventbus_messages_published_total")
		return mf != nil && mf.Metric[0].GetCounter().GetValue() == 1
	}, time.Second, 5*time.Millisecond)
	exp.Stop()
}
