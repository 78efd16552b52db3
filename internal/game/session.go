package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/blockroll/internal/entity"
	"github.com/annel0/blockroll/internal/eventbus"
	"github.com/annel0/blockroll/internal/level"
	"github.com/annel0/blockroll/internal/logging"
	"github.com/annel0/blockroll/internal/protocol"
	"github.com/annel0/blockroll/internal/replay"
	"github.com/annel0/blockroll/internal/vec"
	"github.com/annel0/blockroll/internal/world"
)

// Ошибки сессии. Отклоненный ход - штатная ситуация, а не сбой.
var (
	ErrSessionPaused   = errors.New("game: session is paused")
	ErrGameOver        = errors.New("game: level is already completed")
	ErrInputQueueFull  = errors.New("game: input queue is full")
	ErrSessionNotFound = errors.New("game: session not found")
)

// EventSource - значение Envelope.Source для событий сессий
const EventSource = "game"

const (
	defaultQueueSize = 16
	publishTimeout   = 250 * time.Millisecond
)

// Options - зависимости и настройки сессии
type Options struct {
	RotationSpeed float64           // градусов в секунду, 0 - по умолчанию
	QueueSize     int               // емкость очереди Submit
	Bus           eventbus.EventBus // nil - глобальная шина
	Logger        *logging.Logger   // nil - логгер по умолчанию
}

// Snapshot - состояние сессии только для чтения
type Snapshot struct {
	ID          string        `json:"id"`
	LevelID     string        `json:"level_id"`
	Pose        string        `json:"pose"`
	Orientation string        `json:"orientation"`
	Cells       []vec.Vec2    `json:"cells"` // мировые (x, z)
	Position    vec.Vec3Float `json:"position"`
	Busy        bool          `json:"busy"`
	Progress    float64       `json:"progress"`
	Paused      bool          `json:"paused"`
	GameOver    bool          `json:"game_over"`
	Moves       int           `json:"moves"`
	Tick        uint64        `json:"tick"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Session ведет одну попытку прохождения уровня: фильтрует ввод
// (пауза, конец игры), продвигает поворот по тикам, определяет победу
// и публикует события. Все методы потокобезопасны.
type Session struct {
	mu sync.Mutex

	id    string
	lvl   *level.Level
	grid  *world.Grid
	end   vec.Vec2
	speed float64
	block *entity.Block

	paused    bool
	gameOver  bool
	announced bool // level.completed уже отправлен
	tick      uint64
	moves     int
	recording *replay.Recording
	createdAt time.Time

	input chan entity.Direction
	bus   eventbus.EventBus
	log   *logging.Logger
}

// NewSession строит сетку и блок уровня. Ошибка конфигурации уровня
// возвращается, сессия при этом не создается.
func NewSession(id string, lvl *level.Level, opts Options) (*Session, error) {
	if lvl == nil {
		return nil, fmt.Errorf("game: nil level")
	}
	if err := lvl.Validate(); err != nil {
		return nil, err
	}
	g, err := lvl.Grid()
	if err != nil {
		return nil, fmt.Errorf("level %s: %w", lvl.ID, err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	queue := opts.QueueSize
	if queue <= 0 {
		queue = defaultQueueSize
	}
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}

	s := &Session{
		id:        id,
		lvl:       lvl,
		grid:      g,
		end:       g.WorldToGrid(lvl.End.X, lvl.End.Z),
		speed:     opts.RotationSpeed,
		createdAt: time.Now().UTC(),
		input:     make(chan entity.Direction, queue),
		bus:       opts.Bus,
		log:       log,
	}
	if err := s.restart(); err != nil {
		return nil, err
	}

	s.log.Info("сессия %s: уровень %s, сетка %dx%d", s.id, lvl.ID, g.Rows(), g.Cols())
	return s, nil
}

// restart ставит блок на старт и очищает флаги и запись
func (s *Session) restart() error {
	block := entity.NewBlock(s.grid, s.speed)
	if _, err := block.Initialize(s.lvl.Start.Vec()); err != nil {
		return fmt.Errorf("level %s: %w", s.lvl.ID, err)
	}

	s.block = block
	s.paused = false
	s.gameOver = false
	s.announced = false
	s.tick = 0
	s.moves = 0
	s.recording = &replay.Recording{
		ID:        uuid.NewString(),
		SessionID: s.id,
		LevelID:   s.lvl.ID,
		Speed:     block.Speed(),
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// ID возвращает идентификатор сессии
func (s *Session) ID() string { return s.id }

// Level возвращает уровень сессии
func (s *Session) Level() *level.Level { return s.lvl }

// Move запрашивает ход немедленно
func (s *Session) Move(dir entity.Direction) (entity.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveLocked(dir)
}

func (s *Session) moveLocked(dir entity.Direction) (entity.Transition, error) {
	var err error
	switch {
	case s.gameOver:
		err = ErrGameOver
	case s.paused:
		err = ErrSessionPaused
	}

	var tr entity.Transition
	if err == nil {
		tr, err = s.block.RequestMove(dir)
	}
	if err != nil {
		s.log.Debug("сессия %s: ход %s отклонен: %v", s.id, dir, err)
		s.publish(protocol.EventMoveRejected, dir.String(), err.Error())
		return entity.Transition{}, err
	}

	s.moves++
	s.recording.Append(s.tick, dir)
	logging.LogBlockMove(s.id, dir.String(),
		[2]int{tr.From.A.X, tr.From.A.Y}, [2]int{tr.From.B.X, tr.From.B.Y},
		[2]int{tr.To.A.X, tr.To.A.Y}, [2]int{tr.To.B.X, tr.To.B.Y},
		tr.To.Orientation.String())
	s.publish(protocol.EventMoveAccepted, dir.String(), "")
	return tr, nil
}

// Submit ставит ход в очередь ввода, не блокируясь.
// Очередь разбирается в Tick; ходы, пришедшие во время поворота, отбрасываются.
func (s *Session) Submit(dir entity.Direction) error {
	if !dir.Valid() {
		return fmt.Errorf("%w: %d", entity.ErrInvalidDirection, int(dir))
	}
	select {
	case s.input <- dir:
		return nil
	default:
		return ErrInputQueueFull
	}
}

// Tick продвигает поворот на dt секунд, затем разбирает очередь ввода.
// На паузе поворот заморожен, очередь очищается.
func (s *Session) Tick(dt float64) *entity.TransitionCompleted {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tick++
	if s.paused {
		s.drainLocked(false)
		return nil
	}

	done, ok := s.block.Advance(dt)
	if ok {
		s.completedLocked(done)
	}
	s.drainLocked(true)

	if ok {
		return done
	}
	return nil
}

func (s *Session) drainLocked(apply bool) {
	for {
		select {
		case dir := <-s.input:
			if apply {
				_, _ = s.moveLocked(dir)
			}
		default:
			return
		}
	}
}

// Complete мгновенно завершает текущий поворот.
// На паузе, как и Tick, ничего не делает.
func (s *Session) Complete() *entity.TransitionCompleted {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return nil
	}

	done, ok := s.block.Complete()
	if !ok {
		return nil
	}
	s.completedLocked(done)
	return done
}

func (s *Session) completedLocked(done *entity.TransitionCompleted) {
	s.publish(protocol.EventTransitionCompleted, done.Transition.Direction.String(), "")

	if !done.Pose.Standing() || done.Pose.A != s.end {
		return
	}
	s.gameOver = true
	s.recording.Completed = true
	if s.announced {
		return
	}
	s.announced = true
	s.log.Info("🏁 сессия %s: уровень %s пройден за %d ходов", s.id, s.lvl.ID, s.moves)
	s.publish(protocol.EventLevelCompleted, "", "")
}

// Pause замораживает сессию: ходы отклоняются, поворот не продвигается
func (s *Session) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume снимает паузу
func (s *Session) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

// Reset возвращает блок на старт и очищает флаги, счетчики и запись
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.restart(); err != nil {
		return err
	}
	s.drainLocked(false)
	s.publish(protocol.EventSessionReset, "", "")
	s.log.Debug("сессия %s: перезапуск", s.id)
	return nil
}

// Snapshot возвращает текущее состояние
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	pose := s.block.Pose()
	cells := make([]vec.Vec2, 0, 2)
	for _, c := range pose.Cells() {
		cells = append(cells, s.grid.GridToWorld(c).ToVec2())
	}

	return Snapshot{
		ID:          s.id,
		LevelID:     s.lvl.ID,
		Pose:        pose.String(),
		Orientation: pose.Orientation.String(),
		Cells:       cells,
		Position:    s.block.Transform().Position(),
		Busy:        s.block.Busy(),
		Progress:    s.block.Progress(),
		Paused:      s.paused,
		GameOver:    s.gameOver,
		Moves:       s.moves,
		Tick:        s.tick,
		CreatedAt:   s.createdAt,
	}
}

// Recording возвращает копию записи текущей попытки
func (s *Session) Recording() *replay.Recording {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *s.recording
	rec.Steps = append([]replay.Step(nil), s.recording.Steps...)
	return &rec
}

func (s *Session) publish(et protocol.EventType, dir, reason string) {
	payload, err := protocol.EncodeEvent(&protocol.GameEvent{
		Type:      et,
		SessionID: s.id,
		LevelID:   s.lvl.ID,
		Tick:      s.tick,
		Direction: dir,
		Reason:    reason,
		Pose:      s.block.Pose().String(),
		Moves:     s.moves,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		s.log.Error("сессия %s: событие %s: %v", s.id, et, err)
		return
	}

	env := eventbus.NewEnvelope(EventSource, string(et), payload)
	env.CorrelationID = s.id
	env.Metadata = map[string]string{"level": s.lvl.ID}
	if et == protocol.EventLevelCompleted {
		env.Priority = eventbus.PriorityHigh
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if s.bus != nil {
		err = s.bus.Publish(ctx, env)
	} else {
		err = eventbus.Publish(ctx, env)
	}
	if err != nil {
		s.log.Warn("сессия %s: публикация %s: %v", s.id, et, err)
	}
}
