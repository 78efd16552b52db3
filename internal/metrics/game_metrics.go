package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/blockroll/internal/eventbus"
	"github.com/annel0/blockroll/internal/logging"
	"github.com/annel0/blockroll/internal/protocol"
)

// GameMetrics - игровые метрики, которые считаются по событиям шины
type GameMetrics struct {
	moves       *prometheus.CounterVec
	transitions prometheus.Counter
	completed   *prometheus.CounterVec
	sessions    prometheus.GaugeFunc

	sub eventbus.Subscription
}

// NewGameMetrics регистрирует метрики в reg (nil - глобальный регистр).
// activeSessions вызывается при каждом сборе gauge blockroll_sessions_active.
func NewGameMetrics(reg prometheus.Registerer, activeSessions func() int) *GameMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if activeSessions == nil {
		activeSessions = func() int { return 0 }
	}

	gm := &GameMetrics{
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blockroll_moves_total",
			Help: "Запросы ходов по результату (accepted/rejected).",
		}, []string{"result"}),
		transitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blockroll_transitions_completed_total",
			Help: "Завершенные повороты блока.",
		}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blockroll_levels_completed_total",
			Help: "Пройденные уровни.",
		}, []string{"level"}),
		sessions: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "blockroll_sessions_active",
			Help: "Активные игровые сессии.",
		}, func() float64 { return float64(activeSessions()) }),
	}

	reg.MustRegister(gm.moves, gm.transitions, gm.completed, gm.sessions)
	return gm
}

// Subscribe начинает считать события шины
func (gm *GameMetrics) Subscribe(ctx context.Context, bus eventbus.EventBus) error {
	types := make([]string, 0, len(protocol.EventTypes))
	for _, et := range protocol.EventTypes {
		types = append(types, string(et))
	}
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: types}, gm.handle)
	if err != nil {
		return err
	}
	gm.sub = sub
	return nil
}

// Unsubscribe прекращает подсчет
func (gm *GameMetrics) Unsubscribe() {
	if gm.sub != nil {
		gm.sub.Unsubscribe()
		gm.sub = nil
	}
}

func (gm *GameMetrics) handle(_ context.Context, env *eventbus.Envelope) {
	ev, err := protocol.DecodeEvent(env.Payload)
	if err != nil {
		logging.Warn("metrics: событие %s не разобрано: %v", env.ID, err)
		return
	}
	gm.Observe(ev)
}

// Observe учитывает одно событие
func (gm *GameMetrics) Observe(ev *protocol.GameEvent) {
	switch ev.Type {
	case protocol.EventMoveAccepted:
		gm.moves.WithLabelValues("accepted").Inc()
	case protocol.EventMoveRejected:
		gm.moves.WithLabelValues("rejected").Inc()
	case protocol.EventTransitionCompleted:
		gm.transitions.Inc()
	case protocol.EventLevelCompleted:
		gm.completed.WithLabelValues(ev.LevelID).Inc()
	}
}
