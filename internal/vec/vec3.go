package vec

import "math"

// Vec3Float представляет трехмерный вектор мира.
// Y - вертикальная ось, плоскость пола - XZ.
type Vec3Float struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Оси мира, вокруг которых поворачивается блок
var (
	AxisForward = Vec3Float{Z: 1}
	AxisBack    = Vec3Float{Z: -1}
	AxisRight   = Vec3Float{X: 1}
	AxisLeft    = Vec3Float{X: -1}
)

// Add складывает два вектора
func (v Vec3Float) Add(other Vec3Float) Vec3Float {
	return Vec3Float{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub вычитает вектор
func (v Vec3Float) Sub(other Vec3Float) Vec3Float {
	return Vec3Float{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// DistanceTo возвращает евклидово расстояние до другого вектора
func (v Vec3Float) DistanceTo(other Vec3Float) float64 {
	d := v.Sub(other)
	return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
}

// RoundHalf округляет каждую координату до ближайшей половины единицы
func (v Vec3Float) RoundHalf() Vec3Float {
	return Vec3Float{
		X: math.Round(2*v.X) / 2,
		Y: math.Round(2*v.Y) / 2,
		Z: math.Round(2*v.Z) / 2,
	}
}

// Equals сравнивает векторы с допуском eps
func (v Vec3Float) Equals(other Vec3Float, eps float64) bool {
	return math.Abs(v.X-other.X) <= eps &&
		math.Abs(v.Y-other.Y) <= eps &&
		math.Abs(v.Z-other.Z) <= eps
}
