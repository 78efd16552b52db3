package world

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/annel0/blockroll/internal/vec"
)

// ErrEmptyFloor возвращается, если уровень не содержит ни одной клетки пола
var ErrEmptyFloor = errors.New("world: floor has no cells")

var (
	// ErrBadCoordinate - координата NaN, ±Inf или дальше MaxCoord от нуля
	ErrBadCoordinate = errors.New("world: coordinate is not finite or out of range")
	// ErrGridTooLarge - ограничивающий прямоугольник пола больше MaxExtent
	ErrGridTooLarge = errors.New("world: floor exceeds maximum grid extent")
)

const (
	// MaxExtent - наибольший размер сетки по каждой оси, в клетках
	MaxExtent = 1024
	// MaxCoord - наибольший модуль мировой координаты
	MaxCoord = 1 << 20
)

// Grid описывает карту уровня: маску проходимых клеток неправильной формы,
// уложенную в минимальный ограничивающий прямоугольник.
//
// Индексы маски неотрицательны, координаты мира могут быть отрицательными;
// смещения rowOffset/colOffset переводят одно в другое.
// После Build сетка не изменяется и безопасна для параллельного чтения.
type Grid struct {
	walkable  [][]bool
	rows      int
	cols      int
	rowOffset int
	colOffset int
	ready     bool
}

// Build строит сетку по мировым позициям клеток пола (x, z).
// Позиции округляются до ближайшего целого.
//
// Пустой набор не приводит к панике: возвращается неготовая сетка нулевого
// размера (любой ход на ней недопустим) и ErrEmptyFloor.
//
// Клетки проверяются через CheckCells до выделения памяти: слишком далекие
// или нечисловые координаты дают ту же неготовую сетку и ошибку.
func Build(cells []vec.Vec2Float) (*Grid, error) {
	if len(cells) == 0 {
		return &Grid{}, ErrEmptyFloor
	}
	if err := CheckCells(cells); err != nil {
		return &Grid{}, err
	}

	minRow, maxRow, minCol, maxCol := bounds(cells)
	g := &Grid{
		rows:      maxRow - minRow + 1,
		cols:      maxCol - minCol + 1,
		rowOffset: -minRow,
		colOffset: -minCol,
		ready:     true,
	}

	g.walkable = make([][]bool, g.rows)
	for r := range g.walkable {
		g.walkable[r] = make([]bool, g.cols)
	}

	for _, c := range cells {
		idx := g.WorldToGrid(c.X, c.Y)
		g.walkable[idx.X][idx.Y] = true
	}

	return g, nil
}

// CheckCells проверяет, что из клеток можно построить сетку:
// все координаты конечны и не дальше MaxCoord, а ограничивающий
// прямоугольник не больше MaxExtent по каждой оси.
func CheckCells(cells []vec.Vec2Float) error {
	for _, c := range cells {
		if err := CheckCoord(c.X, c.Y); err != nil {
			return err
		}
	}
	if len(cells) == 0 {
		return nil
	}
	minRow, maxRow, minCol, maxCol := bounds(cells)
	if rows, cols := maxRow-minRow+1, maxCol-minCol+1; rows > MaxExtent || cols > MaxExtent {
		return fmt.Errorf("%w: %dx%d > %d", ErrGridTooLarge, rows, cols, MaxExtent)
	}
	return nil
}

// CheckCoord проверяет одну мировую позицию (x, z)
func CheckCoord(x, z float64) error {
	for _, v := range [2]float64{x, z} {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > MaxCoord {
			return fmt.Errorf("%w: (%v, %v)", ErrBadCoordinate, x, z)
		}
	}
	return nil
}

func bounds(cells []vec.Vec2Float) (minRow, maxRow, minCol, maxCol int) {
	minRow, maxRow = math.MaxInt, math.MinInt
	minCol, maxCol = math.MaxInt, math.MinInt
	for _, c := range cells {
		p := c.ToVec2()
		minRow = min(minRow, p.X)
		maxRow = max(maxRow, p.X)
		minCol = min(minCol, p.Y)
		maxCol = max(maxCol, p.Y)
	}
	return
}

// Ready возвращает false для сетки, построенной из пустого набора клеток
func (g *Grid) Ready() bool { return g != nil && g.ready }

// Rows возвращает число строк маски
func (g *Grid) Rows() int { return g.rows }

// Cols возвращает число столбцов маски
func (g *Grid) Cols() int { return g.cols }

// Offsets возвращает смещения строки и столбца (world + offset = index)
func (g *Grid) Offsets() (int, int) { return g.rowOffset, g.colOffset }

// WorldToGrid переводит мировые координаты (x, z) в индекс клетки
func (g *Grid) WorldToGrid(x, z float64) vec.Vec2 {
	return vec.Vec2{
		X: int(math.Round(x)) + g.rowOffset,
		Y: int(math.Round(z)) + g.colOffset,
	}
}

// GridToWorld переводит индекс клетки в мировые координаты (x, z)
func (g *Grid) GridToWorld(cell vec.Vec2) vec.Vec2Float {
	return vec.Vec2Float{
		X: float64(cell.X - g.rowOffset),
		Y: float64(cell.Y - g.colOffset),
	}
}

// GridToWorldFloat то же, что GridToWorld, но для дробных индексов
// (центр следа блока, точка поворота).
func (g *Grid) GridToWorldFloat(row, col float64) vec.Vec2Float {
	return vec.Vec2Float{
		X: row - float64(g.rowOffset),
		Y: col - float64(g.colOffset),
	}
}

// IsWalkable проверяет клетку с учетом границ; вне маски всегда false
func (g *Grid) IsWalkable(cell vec.Vec2) bool {
	if !g.Ready() {
		return false
	}
	if cell.X < 0 || cell.Y < 0 || cell.X >= g.rows || cell.Y >= g.cols {
		return false
	}
	return g.walkable[cell.X][cell.Y]
}

// IsMoveValid проверяет целевой след блока: a обязателен,
// b - только для лежачего положения (nil для стоячего).
func (g *Grid) IsMoveValid(a vec.Vec2, b *vec.Vec2) bool {
	if !g.IsWalkable(a) {
		return false
	}
	if b == nil {
		return true
	}
	return g.IsWalkable(*b)
}

// Contains возвращает true, если мировая позиция попадает на клетку пола
func (g *Grid) Contains(x, z float64) bool {
	return g.IsWalkable(g.WorldToGrid(x, z))
}

// Cells возвращает индексы всех проходимых клеток по строкам
func (g *Grid) Cells() []vec.Vec2 {
	var cells []vec.Vec2
	for r := 0; r < g.rows; r++ {
		for c := 0; c < g.cols; c++ {
			if g.walkable[r][c] {
				cells = append(cells, vec.Vec2{X: r, Y: c})
			}
		}
	}
	return cells
}

// WalkableCount возвращает число клеток пола
func (g *Grid) WalkableCount() int {
	n := 0
	for r := 0; r < g.rows; r++ {
		for c := 0; c < g.cols; c++ {
			if g.walkable[r][c] {
				n++
			}
		}
	}
	return n
}

// String печатает маску: '#' - пол, '.' - пустота; строка = индекс строки
func (g *Grid) String() string {
	if !g.Ready() {
		return "<empty grid>"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "grid %dx%d offset(%d,%d)\n", g.rows, g.cols, g.rowOffset, g.colOffset)
	for r := 0; r < g.rows; r++ {
		for c := 0; c < g.cols; c++ {
			if g.walkable[r][c] {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
