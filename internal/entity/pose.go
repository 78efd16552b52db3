package entity

import (
	"fmt"

	"github.com/annel0/blockroll/internal/physics"
	"github.com/annel0/blockroll/internal/vec"
	"github.com/annel0/blockroll/internal/world"
)

// Orientation - класс положения блока
type Orientation int

const (
	UprightOnY Orientation = iota // стоит на одной клетке
	LyingOnX                      // лежит вдоль строк (ось X мира)
	LyingOnZ                      // лежит вдоль столбцов (ось Z мира)
)

// String возвращает имя положения
func (o Orientation) String() string {
	switch o {
	case UprightOnY:
		return "upright_y"
	case LyingOnX:
		return "lying_x"
	case LyingOnZ:
		return "lying_z"
	default:
		return fmt.Sprintf("orientation(%d)", int(o))
	}
}

// Pose - след блока на сетке и его положение.
//
// Стоячий блок хранится как две совпадающие клетки, чтобы каждая запись
// таблицы переходов работала с парой индексов. A никогда не меньше B по
// оси, вдоль которой лежит блок: строка для LyingOnX, столбец для LyingOnZ.
type Pose struct {
	A           vec.Vec2
	B           vec.Vec2
	Orientation Orientation
}

// StandingPose возвращает стоячую позу на клетке cell
func StandingPose(cell vec.Vec2) Pose {
	return Pose{A: cell, B: cell, Orientation: UprightOnY}
}

// Standing - true для UprightOnY
func (p Pose) Standing() bool {
	return p.Orientation == UprightOnY
}

// Cells возвращает занятые клетки (одну для стоячего блока)
func (p Pose) Cells() []vec.Vec2 {
	if p.Standing() {
		return []vec.Vec2{p.A}
	}
	return []vec.Vec2{p.A, p.B}
}

// Validate проверяет согласованность следа и положения
func (p Pose) Validate() error {
	switch p.Orientation {
	case UprightOnY:
		if p.A != p.B {
			return fmt.Errorf("стоячий блок занимает разные клетки %v и %v", p.A, p.B)
		}
	case LyingOnX:
		if p.A.X != p.B.X+1 || p.A.Y != p.B.Y {
			return fmt.Errorf("блок вдоль X: ожидалось A=B+(1,0), получено %v/%v", p.A, p.B)
		}
	case LyingOnZ:
		if p.A.Y != p.B.Y+1 || p.A.X != p.B.X {
			return fmt.Errorf("блок вдоль Z: ожидалось A=B+(0,1), получено %v/%v", p.A, p.B)
		}
	default:
		return fmt.Errorf("неизвестное положение %d", int(p.Orientation))
	}
	return nil
}

// CenterIndex возвращает центр следа в дробных индексах сетки
func (p Pose) CenterIndex() (float64, float64) {
	return float64(p.A.X+p.B.X) / 2, float64(p.A.Y+p.B.Y) / 2
}

// Center возвращает центр следа в мировых координатах (x, z).
// Эту точку отслеживает камера.
func (p Pose) Center(g *world.Grid) vec.Vec2Float {
	row, col := p.CenterIndex()
	return g.GridToWorldFloat(row, col)
}

// WorldPosition возвращает центр блока в мире с учетом высоты
func (p Pose) WorldPosition(g *world.Grid) vec.Vec3Float {
	c := p.Center(g)
	y := physics.BlockWidth / 2
	if p.Standing() {
		y = physics.BlockHeight / 2
	}
	return vec.Vec3Float{X: c.X, Y: y, Z: c.Y}
}

// String печатает позу в компактном виде
func (p Pose) String() string {
	if p.Standing() {
		return fmt.Sprintf("%s@(%d,%d)", p.Orientation, p.A.X, p.A.Y)
	}
	return fmt.Sprintf("%s@{(%d,%d),(%d,%d)}", p.Orientation, p.A.X, p.A.Y, p.B.X, p.B.Y)
}
