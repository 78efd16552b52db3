package level

import (
	"fmt"
	"math"
	"strings"

	"github.com/annel0/blockroll/internal/vec"
)

// Символы ASCII-схемы уровня
const (
	TileFloor = '#'
	TileStart = 'S'
	TileEnd   = 'E'
	TileVoid  = '.'
)

// ParseLayout разбирает ASCII-схему: строка текста - ось X мира,
// столбец символа - ось Z. '#' пол, 'S' старт, 'E' финиш (оба на полу),
// '.' или пробел - пустота. origin сдвигает левый верхний угол схемы.
func ParseLayout(layout string, origin Point) (*Level, error) {
	lines := strings.Split(strings.TrimRight(layout, "\n"), "\n")
	lvl := &Level{}

	for row, line := range lines {
		line = strings.TrimRight(line, "\r")
		for col, ch := range []rune(line) {
			p := Point{X: origin.X + float64(row), Z: origin.Z + float64(col)}
			switch ch {
			case TileFloor:
				lvl.Floor = append(lvl.Floor, p)
			case TileStart:
				if lvl.Start != nil {
					return nil, fmt.Errorf("%w: more than one start at line %d", ErrBadLayout, row+1)
				}
				lvl.Floor = append(lvl.Floor, p)
				start := p
				lvl.Start = &start
			case TileEnd:
				if lvl.End != nil {
					return nil, fmt.Errorf("%w: more than one end at line %d", ErrBadLayout, row+1)
				}
				lvl.Floor = append(lvl.Floor, p)
				end := p
				lvl.End = &end
			case TileVoid, ' ':
			default:
				return nil, fmt.Errorf("%w: unknown tile %q at %d:%d", ErrBadLayout, ch, row+1, col+1)
			}
		}
	}
	return lvl, nil
}

// Layout рисует уровень ASCII-схемой и возвращает угол схемы в мире
func (l *Level) Layout() (string, Point) {
	if len(l.Floor) == 0 {
		return "", Point{}
	}

	minX, minZ := math.MaxInt, math.MaxInt
	maxX, maxZ := math.MinInt, math.MinInt
	cells := make(map[vec.Vec2]struct{}, len(l.Floor))
	for _, p := range l.Floor {
		c := p.Vec().ToVec2()
		cells[c] = struct{}{}
		minX, maxX = min(minX, c.X), max(maxX, c.X)
		minZ, maxZ = min(minZ, c.Y), max(maxZ, c.Y)
	}

	var start, end *vec.Vec2
	if l.Start != nil {
		s := l.Start.Vec().ToVec2()
		start = &s
	}
	if l.End != nil {
		e := l.End.Vec().ToVec2()
		end = &e
	}

	var sb strings.Builder
	for x := minX; x <= maxX; x++ {
		row := make([]byte, 0, maxZ-minZ+1)
		for z := minZ; z <= maxZ; z++ {
			c := vec.Vec2{X: x, Y: z}
			_, floor := cells[c]
			switch {
			case start != nil && c == *start:
				row = append(row, TileStart)
			case end != nil && c == *end:
				row = append(row, TileEnd)
			case floor:
				row = append(row, TileFloor)
			default:
				row = append(row, TileVoid)
			}
		}
		sb.Write(row)
		sb.WriteByte('\n')
	}
	return sb.String(), Point{X: float64(minX), Z: float64(minZ)}
}
