package entity

import (
	"errors"
	"fmt"

	"github.com/annel0/blockroll/internal/logging"
	"github.com/annel0/blockroll/internal/physics"
	"github.com/annel0/blockroll/internal/vec"
	"github.com/annel0/blockroll/internal/world"
)

// DefaultRotationSpeed - скорость воспроизведения поворота, градусов в секунду
// (90 * 0.1 * 20 в исходной игре: ход за полсекунды).
const DefaultRotationSpeed = 180.0

var (
	// ErrNotInitialized - блок не размещен на уровне (пустая сетка или
	// стартовая клетка вне пола)
	ErrNotInitialized = errors.New("entity: block is not initialized")
	// ErrStartNotWalkable - стартовая позиция не лежит на полу
	ErrStartNotWalkable = errors.New("entity: start cell is not walkable")
	// ErrMoveBlocked - ход уводит блок с поля или на пустую клетку
	ErrMoveBlocked = errors.New("entity: move is blocked")
	// ErrTransitionInProgress - предыдущий поворот еще не завершен
	ErrTransitionInProgress = errors.New("entity: transition in progress")
	// ErrInvalidDirection - значение направления вне перечисления
	ErrInvalidDirection = errors.New("entity: invalid direction")
)

// Transition описывает принятый ход: позы до и после и ось поворота
type Transition struct {
	Direction Direction
	From      Pose
	To        Pose
	Pivot     vec.Vec3Float
	Axis      vec.Vec3Float
	Angle     float64
}

// TransitionCompleted сообщает о завершении поворота на 90 градусов
type TransitionCompleted struct {
	Transition Transition
	Pose       Pose
	Position   vec.Vec3Float
	Transform  physics.Transform
}

// Block - конечный автомат перекатывания блока.
//
// Не потокобезопасен: последовательность RequestMove -> Advance x N ->
// settle должна выполняться из одного потока. Повторный вход защищен
// флагом поворота, а не блокировкой.
type Block struct {
	grid      *world.Grid
	speed     float64
	ready     bool
	pose      Pose
	transform physics.Transform

	rotating bool
	progress float64
	current  Transition
}

// NewBlock создает блок на сетке. speed <= 0 заменяется DefaultRotationSpeed.
func NewBlock(g *world.Grid, speed float64) *Block {
	if speed <= 0 {
		speed = DefaultRotationSpeed
	}
	return &Block{grid: g, speed: speed}
}

// Initialize ставит блок вертикально на стартовую клетку (мировые x, z).
// При ошибке блок остается неготовым и отклоняет все ходы.
func (b *Block) Initialize(start vec.Vec2Float) (Pose, error) {
	b.ready = false
	b.rotating = false
	b.progress = 0
	b.current = Transition{}

	if !b.grid.Ready() {
		return Pose{}, fmt.Errorf("%w: %w", ErrNotInitialized, world.ErrEmptyFloor)
	}

	cell := b.grid.WorldToGrid(start.X, start.Y)
	if !b.grid.IsWalkable(cell) {
		return Pose{}, fmt.Errorf("%w: (%.1f, %.1f)", ErrStartNotWalkable, start.X, start.Y)
	}

	b.pose = StandingPose(cell)
	b.transform = physics.NewTransform(b.pose.WorldPosition(b.grid))
	b.ready = true
	return b.pose, nil
}

// Ready - блок размещен и принимает ходы
func (b *Block) Ready() bool { return b.ready }

// Pose возвращает текущую позу. Во время поворота это уже целевая поза.
func (b *Block) Pose() Pose { return b.pose }

// Grid возвращает сетку уровня
func (b *Block) Grid() *world.Grid { return b.grid }

// Speed возвращает скорость поворота, градусов в секунду
func (b *Block) Speed() float64 { return b.speed }

// Busy - идет поворот, новые ходы отклоняются
func (b *Block) Busy() bool { return b.rotating }

// CanAcceptMove - блок готов и не поворачивается
func (b *Block) CanAcceptMove() bool { return b.ready && !b.rotating }

// Progress возвращает пройденный угол текущего поворота в градусах
func (b *Block) Progress() float64 { return b.progress }

// Current возвращает выполняемый ход
func (b *Block) Current() (Transition, bool) { return b.current, b.rotating }

// Transform возвращает положение блока в мире для слоя представления
func (b *Block) Transform() physics.Transform { return b.transform }

// RequestMove пытается начать ход в направлении dir.
// Проверка и фиксация атомарны: при любой ошибке состояние не меняется.
func (b *Block) RequestMove(dir Direction) (Transition, error) {
	if !b.ready {
		return Transition{}, ErrNotInitialized
	}
	if b.rotating {
		return Transition{}, ErrTransitionInProgress
	}
	if !dir.Valid() {
		return Transition{}, fmt.Errorf("%w: %d", ErrInvalidDirection, int(dir))
	}

	next, ok := NextPose(b.grid, b.pose, dir)
	if !ok {
		return Transition{}, ErrMoveBlocked
	}

	tr := Transition{
		Direction: dir,
		From:      b.pose,
		To:        next,
		Pivot:     PivotFor(b.grid, b.pose, dir),
		Axis:      dir.PivotAxis(),
		Angle:     RotationAngle,
	}

	b.pose = next
	b.current = tr
	b.rotating = true
	b.progress = 0
	return tr, nil
}

// Advance продвигает текущий поворот на speed*dt градусов.
// Возвращает событие завершения, когда поворот достиг 90 градусов.
// dt <= 0 и вызов без активного поворота ничего не меняют.
func (b *Block) Advance(dt float64) (*TransitionCompleted, bool) {
	if !b.rotating || dt <= 0 {
		return nil, false
	}

	return b.advanceBy(b.speed * dt)
}

// Complete мгновенно доводит текущий поворот до конца
func (b *Block) Complete() (*TransitionCompleted, bool) {
	if !b.rotating {
		return nil, false
	}
	return b.advanceBy(RotationAngle - b.progress)
}

func (b *Block) advanceBy(step float64) (*TransitionCompleted, bool) {
	remaining := RotationAngle - b.progress
	done := step >= remaining
	if done {
		step = remaining
	}

	b.transform = b.transform.RotateAround(b.current.Pivot, b.current.Axis, step)
	b.progress += step

	if !done {
		return nil, false
	}
	return b.settle(), true
}

// settle фиксирует позу: снимает флаг поворота и убирает погрешность
// интерполяции из положения блока.
func (b *Block) settle() *TransitionCompleted {
	b.transform = b.transform.Settle()

	expected := b.pose.WorldPosition(b.grid)
	if !b.transform.Position().Equals(expected, 1e-6) {
		// Поза главнее анимации
		logging.Warn("block settle drift: transform %+v, pose %s expects %+v",
			b.transform.Position(), b.pose, expected)
		b.transform = b.transform.WithPosition(expected)
	}

	ev := &TransitionCompleted{
		Transition: b.current,
		Pose:       b.pose,
		Position:   b.transform.Position(),
		Transform:  b.transform,
	}

	b.rotating = false
	b.progress = 0
	return ev
}
