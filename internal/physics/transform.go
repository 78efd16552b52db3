package physics

import (
	"math"

	"github.com/annel0/blockroll/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
)

// Размеры блока в единицах сетки: 1x1 в основании, 2 в высоту
const (
	BlockWidth  = 1.0
	BlockHeight = 2.0
)

// Transform хранит положение и поворот блока в мире (центр блока - начало
// локальной системы координат, локальная ось Y - длинная ось блока).
type Transform struct {
	m mgl64.Mat4
}

// NewTransform создает transform без поворота с центром в position
func NewTransform(position vec.Vec3Float) Transform {
	return Transform{m: mgl64.Translate3D(position.X, position.Y, position.Z)}
}

// StandingAt возвращает transform стоящего блока над клеткой (x, z)
func StandingAt(x, z float64) Transform {
	return NewTransform(vec.Vec3Float{X: x, Y: BlockHeight / 2, Z: z})
}

// Position возвращает центр блока в мире
func (t Transform) Position() vec.Vec3Float {
	return vec.Vec3Float{X: t.m[12], Y: t.m[13], Z: t.m[14]}
}

// WithPosition возвращает transform с тем же поворотом и новым центром
func (t Transform) WithPosition(p vec.Vec3Float) Transform {
	m := t.m
	m[12], m[13], m[14] = p.X, p.Y, p.Z
	return Transform{m: m}
}

// Rotation возвращает матрицу поворота 3x3
func (t Transform) Rotation() mgl64.Mat3 {
	return t.m.Mat3()
}

// Matrix возвращает полную матрицу 4x4 (для слоя представления)
func (t Transform) Matrix() mgl64.Mat4 {
	return t.m
}

// LongAxis возвращает направление локальной оси Y блока в мире
func (t Transform) LongAxis() vec.Vec3Float {
	col := t.m.Col(1)
	return vec.Vec3Float{X: col[0], Y: col[1], Z: col[2]}
}

// Apply переводит точку из локальных координат блока в мировые
func (t Transform) Apply(local vec.Vec3Float) vec.Vec3Float {
	p := t.m.Mul4x1(mgl64.Vec4{local.X, local.Y, local.Z, 1})
	return vec.Vec3Float{X: p[0], Y: p[1], Z: p[2]}
}

// RotateAround поворачивает блок на degrees градусов вокруг прямой,
// проходящей через pivot в направлении axis (правая система координат).
func (t Transform) RotateAround(pivot, axis vec.Vec3Float, degrees float64) Transform {
	a := mgl64.Vec3{axis.X, axis.Y, axis.Z}
	if mgl64.FloatEqual(a.Len(), 0) || degrees == 0 {
		return t
	}

	rot := mgl64.HomogRotate3D(mgl64.DegToRad(degrees), a.Normalize())
	to := mgl64.Translate3D(pivot.X, pivot.Y, pivot.Z)
	from := mgl64.Translate3D(-pivot.X, -pivot.Y, -pivot.Z)

	return Transform{m: to.Mul4(rot).Mul4(from).Mul4(t.m)}
}

// Settle убирает накопленную погрешность интерполяции: элементы поворота
// округляются до {-1, 0, 1} (ближайший угол, кратный 90 градусам),
// центр - до ближайшей половины клетки.
func (t Transform) Settle() Transform {
	m := t.m
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			m.Set(row, col, math.Round(m.At(row, col)))
		}
	}

	return Transform{m: m}.WithPosition(t.Position().RoundHalf())
}

// ApproxEqual сравнивает два transform с допуском
func (t Transform) ApproxEqual(other Transform, eps float64) bool {
	return t.m.ApproxEqualThreshold(other.m, eps)
}
