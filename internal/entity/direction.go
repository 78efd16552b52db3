package entity

import (
	"fmt"
	"strings"

	"github.com/annel0/blockroll/internal/vec"
)

// Direction - направление хода в координатах сетки (не камеры)
type Direction int

const (
	Up    Direction = iota // +строка (+X мира)
	Down                   // -строка
	Left                   // +столбец (+Z мира)
	Right                  // -столбец
)

// Directions перечисляет все направления в порядке перебора
var Directions = [...]Direction{Up, Down, Left, Right}

// String возвращает имя направления
func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Valid сообщает, входит ли значение в перечисление
func (d Direction) Valid() bool {
	return d >= Up && d <= Right
}

// Opposite возвращает противоположное направление
func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	default:
		return Left
	}
}

// Delta возвращает шаг на одну клетку в направлении d
func (d Direction) Delta() vec.Vec2 {
	switch d {
	case Up:
		return vec.Vec2{X: 1}
	case Down:
		return vec.Vec2{X: -1}
	case Left:
		return vec.Vec2{Y: 1}
	default:
		return vec.Vec2{Y: -1}
	}
}

// AlongRows - true для Up/Down (движение вдоль строк, ось X мира)
func (d Direction) AlongRows() bool {
	return d == Up || d == Down
}

// PivotAxis возвращает горизонтальную ось поворота, перпендикулярную движению
func (d Direction) PivotAxis() vec.Vec3Float {
	switch d {
	case Up:
		return vec.AxisBack
	case Down:
		return vec.AxisForward
	case Left:
		return vec.AxisRight
	default:
		return vec.AxisLeft
	}
}

// ParseDirection разбирает имя направления или клавишу WASD
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "u", "w":
		return Up, nil
	case "down", "s":
		return Down, nil
	case "left", "l", "a":
		return Left, nil
	case "right", "r", "d":
		return Right, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// MarshalText кодирует направление именем (json/yaml)
func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDirection, int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText разбирает направление из имени
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
