package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/blockroll/internal/eventbus"
	"github.com/annel0/blockroll/internal/protocol"
)

func TestParseStringList(t *testing.T) {
	assert.Nil(t, parseStringList(""))
	assert.Equal(t, []string{"a", "b"}, parseStringList(" a, ,b "))
}

func TestFormatEvent(t *testing.T) {
	env := eventbus.NewEnvelope("game", string(protocol.EventMoveRejected), nil)
	ev := &protocol.GameEvent{
		Type:      protocol.EventMoveRejected,
		SessionID: "s1",
		LevelID:   "classic",
		Tick:      7,
		Direction: "left",
		Reason:    "blocked",
	}
	line := formatEvent(env, ev)
	assert.Contains(t, line, "classic/s1")
	assert.Contains(t, line, "[move.rejected]")
	assert.Contains(t, line, `reason="blocked"`)
}

func TestStats(t *testing.T) {
	st := newStats()
	st.add(&protocol.GameEvent{Type: protocol.EventMoveAccepted})
	st.add(&protocol.GameEvent{Type: protocol.EventMoveAccepted})
	st.add(&protocol.GameEvent{Type: protocol.EventLevelCompleted, LevelID: "corridor"})

	assert.Equal(t, 2, st.byType["move.accepted"])
	assert.Equal(t, 1, st.completed["corridor"])
	assert.Equal(t, []string{"level.completed", "move.accepted"}, sortedKeys(st.byType))
}

func TestCollect_LimitAndSessionFilter(t *testing.T) {
	bus := eventbus.NewMemoryBus(16)
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var seen []string
	done := make(chan int, 1)
	go func() {
		n, err := collect(ctx, bus, &TailOptions{Sessions: []string{"keep"}, Limit: 2}, func(_ *eventbus.Envelope, ev *protocol.GameEvent) {
			seen = append(seen, ev.SessionID+":"+ev.Direction)
		})
		assert.NoError(t, err)
		done <- n
	}()

	// даем подписке зарегистрироваться
	time.Sleep(50 * time.Millisecond)
	for i, sid := range []string{"skip", "keep", "skip", "keep", "keep"} {
		payload, err := protocol.EncodeEvent(&protocol.GameEvent{
			Type:      protocol.EventMoveAccepted,
			SessionID: sid,
			Direction: []string{"up", "down", "left", "right", "up"}[i],
		})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(ctx, eventbus.NewEnvelope("game", string(protocol.EventMoveAccepted), payload)))
	}

	select {
	case n := <-done:
		assert.Equal(t, 2, n)
		assert.Equal(t, []string{"keep:down", "keep:right"}, seen)
	case <-ctx.Done():
		t.Fatal("collect did not stop at limit")
	}
}
