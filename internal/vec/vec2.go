package vec

import "math"

// Vec2 представляет целочисленную клетку сетки.
// X - индекс строки (ось X мира), Y - индекс столбца (ось Z мира).
type Vec2 struct {
	X, Y int
}

// Add складывает две клетки
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Sub вычитает клетку
func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{X: v.X - other.X, Y: v.Y - other.Y}
}

// IsAdjacent возвращает true, если клетки соседствуют по стороне
func (v Vec2) IsAdjacent(other Vec2) bool {
	d := v.Sub(other)
	return (d.X == 0 && (d.Y == 1 || d.Y == -1)) || (d.Y == 0 && (d.X == 1 || d.X == -1))
}

// DistanceTo вычисляет расстояние до другой точки
func (v Vec2) DistanceTo(other Vec2) float64 {
	dx := float64(v.X - other.X)
	dy := float64(v.Y - other.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// Manhattan возвращает манхэттенское расстояние между клетками
func (v Vec2) Manhattan(other Vec2) int {
	dx := v.X - other.X
	if dx < 0 {
		dx = -dx
	}
	dy := v.Y - other.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}
