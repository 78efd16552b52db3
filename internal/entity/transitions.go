package entity

import (
	"fmt"

	"github.com/annel0/blockroll/internal/vec"
	"github.com/annel0/blockroll/internal/world"
)

// RotationAngle - угол одного хода в градусах
const RotationAngle = 90.0

// rule - запись таблицы переходов
type rule struct {
	deltaA vec.Vec2
	deltaB vec.Vec2
	next   Orientation
}

type ruleKey struct {
	from Orientation
	dir  Direction
}

// transitions - полная таблица 3 положения x 4 направления.
//
// Три формы хода:
//   - из стоячего в лежачее: одна клетка сдвигается на 2, другая на 1;
//   - из лежачего в стоячее: обратный ход, обе клетки сходятся в одну;
//   - перекат лежачего поперек длинной оси: обе клетки сдвигаются на 1,
//     ось лежания сохраняется.
var transitions = map[ruleKey]rule{
	{UprightOnY, Up}:    {vec.Vec2{X: 2}, vec.Vec2{X: 1}, LyingOnX},
	{UprightOnY, Down}:  {vec.Vec2{X: -1}, vec.Vec2{X: -2}, LyingOnX},
	{UprightOnY, Left}:  {vec.Vec2{Y: 2}, vec.Vec2{Y: 1}, LyingOnZ},
	{UprightOnY, Right}: {vec.Vec2{Y: -1}, vec.Vec2{Y: -2}, LyingOnZ},

	{LyingOnX, Up}:    {vec.Vec2{X: 1}, vec.Vec2{X: 2}, UprightOnY},
	{LyingOnX, Down}:  {vec.Vec2{X: -2}, vec.Vec2{X: -1}, UprightOnY},
	{LyingOnX, Left}:  {vec.Vec2{Y: 1}, vec.Vec2{Y: 1}, LyingOnX},
	{LyingOnX, Right}: {vec.Vec2{Y: -1}, vec.Vec2{Y: -1}, LyingOnX},

	{LyingOnZ, Up}:    {vec.Vec2{X: 1}, vec.Vec2{X: 1}, LyingOnZ},
	{LyingOnZ, Down}:  {vec.Vec2{X: -1}, vec.Vec2{X: -1}, LyingOnZ},
	{LyingOnZ, Left}:  {vec.Vec2{Y: 1}, vec.Vec2{Y: 2}, UprightOnY},
	{LyingOnZ, Right}: {vec.Vec2{Y: -2}, vec.Vec2{Y: -1}, UprightOnY},
}

// lookup возвращает запись таблицы. Отсутствие записи для допустимой пары -
// ошибка программы, продолжать с испорченным порядком клеток нельзя.
func lookup(from Orientation, dir Direction) rule {
	r, ok := transitions[ruleKey{from, dir}]
	if !ok {
		panic(fmt.Sprintf("entity: no transition for %s/%s", from, dir))
	}
	return r
}

// Candidate возвращает позу после хода dir без проверки по сетке
func Candidate(p Pose, dir Direction) Pose {
	r := lookup(p.Orientation, dir)
	return Pose{
		A:           p.A.Add(r.deltaA),
		B:           p.B.Add(r.deltaB),
		Orientation: r.next,
	}
}

// NextPose вычисляет позу после хода и проверяет ее по сетке.
// Для стоячей цели проверяется одна клетка, для лежачей - обе.
func NextPose(g *world.Grid, p Pose, dir Direction) (Pose, bool) {
	if !dir.Valid() {
		return p, false
	}

	next := Candidate(p, dir)
	var second *vec.Vec2
	if !next.Standing() {
		second = &next.B
	}
	if !g.IsMoveValid(next.A, second) {
		return p, false
	}
	return next, true
}

// PivotFor вычисляет точку поворота по позе ДО хода: ребро следа,
// ведущее в направлении движения (max+0.5 для Up/Left, min-0.5 для
// Down/Right), по второй оси - центр следа, высота 0.
func PivotFor(g *world.Grid, p Pose, dir Direction) vec.Vec3Float {
	row, col := p.CenterIndex()

	switch dir {
	case Up:
		row = float64(max(p.A.X, p.B.X)) + 0.5
	case Down:
		row = float64(min(p.A.X, p.B.X)) - 0.5
	case Left:
		col = float64(max(p.A.Y, p.B.Y)) + 0.5
	case Right:
		col = float64(min(p.A.Y, p.B.Y)) - 0.5
	}

	w := g.GridToWorldFloat(row, col)
	return vec.Vec3Float{X: w.X, Y: 0, Z: w.Y}
}
