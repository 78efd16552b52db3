package level

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/annel0/blockroll/internal/entity"
	"github.com/annel0/blockroll/internal/solver"
	"github.com/annel0/blockroll/internal/vec"
	"github.com/annel0/blockroll/internal/world"
	"gopkg.in/yaml.v3"
)

// Ошибки конфигурации уровня. Уровень с такой ошибкой нельзя запускать.
var (
	ErrNoFloor         = errors.New("level: no floor cells")
	ErrMissingID       = errors.New("level: missing id")
	ErrMissingStart    = errors.New("level: missing start cell")
	ErrMissingEnd      = errors.New("level: missing end cell")
	ErrStartNotOnFloor = errors.New("level: start cell is not on the floor")
	ErrEndNotOnFloor   = errors.New("level: end cell is not on the floor")
	ErrBadLayout       = errors.New("level: bad layout")
)

// Point - мировая позиция клетки на плоскости пола
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Z float64 `yaml:"z" json:"z"`
}

// Vec возвращает точку как vec.Vec2Float (Y = z мира)
func (p Point) Vec() vec.Vec2Float {
	return vec.Vec2Float{X: p.X, Y: p.Z}
}

// Level - описание уровня: клетки пола, старт и финиш в мировых координатах
type Level struct {
	ID    string  `yaml:"id" json:"id"`
	Name  string  `yaml:"name,omitempty" json:"name,omitempty"`
	Floor []Point `yaml:"floor,omitempty" json:"floor"`
	Start *Point  `yaml:"start,omitempty" json:"start"`
	End   *Point  `yaml:"end,omitempty" json:"end"`
}

// document - формат YAML-файла: поверх явных списков можно задать
// ASCII-схему layout (см. ParseLayout).
type document struct {
	ID     string  `yaml:"id"`
	Name   string  `yaml:"name,omitempty"`
	Layout string  `yaml:"layout,omitempty"`
	Origin *Point  `yaml:"origin,omitempty"`
	Floor  []Point `yaml:"floor,omitempty"`
	Start  *Point  `yaml:"start,omitempty"`
	End    *Point  `yaml:"end,omitempty"`
}

// Parse разбирает YAML-описание уровня и проверяет его
func Parse(data []byte) (*Level, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("level: yaml: %w", err)
	}

	lvl := &Level{
		ID:    doc.ID,
		Name:  doc.Name,
		Floor: doc.Floor,
		Start: doc.Start,
		End:   doc.End,
	}

	if strings.TrimSpace(doc.Layout) != "" {
		origin := Point{}
		if doc.Origin != nil {
			origin = *doc.Origin
		}
		fromLayout, err := ParseLayout(doc.Layout, origin)
		if err != nil {
			return nil, err
		}
		lvl.Floor = append(lvl.Floor, fromLayout.Floor...)
		if lvl.Start == nil {
			lvl.Start = fromLayout.Start
		}
		if lvl.End == nil {
			lvl.End = fromLayout.End
		}
	}

	lvl.Floor = dedupe(lvl.Floor)
	if err := lvl.Validate(); err != nil {
		return nil, err
	}
	return lvl, nil
}

// LoadFile читает уровень из YAML-файла
func LoadFile(path string) (*Level, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lvl, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lvl, nil
}

// Marshal сериализует уровень в YAML со схемой layout
func Marshal(l *Level) ([]byte, error) {
	layout, origin := l.Layout()
	doc := document{
		ID:     l.ID,
		Name:   l.Name,
		Layout: layout,
		Origin: &origin,
	}
	return yaml.Marshal(&doc)
}

// Validate проверяет уровень на ошибки конфигурации
func (l *Level) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return ErrMissingID
	}
	if len(l.Floor) == 0 {
		return fmt.Errorf("%s: %w", l.ID, ErrNoFloor)
	}
	if l.Start == nil {
		return fmt.Errorf("%s: %w", l.ID, ErrMissingStart)
	}
	if l.End == nil {
		return fmt.Errorf("%s: %w", l.ID, ErrMissingEnd)
	}
	if err := world.CheckCells(l.FloorCells()); err != nil {
		return fmt.Errorf("%s: floor: %w", l.ID, err)
	}
	if err := world.CheckCoord(l.Start.X, l.Start.Z); err != nil {
		return fmt.Errorf("%s: start: %w", l.ID, err)
	}
	if err := world.CheckCoord(l.End.X, l.End.Z); err != nil {
		return fmt.Errorf("%s: end: %w", l.ID, err)
	}

	cells := make(map[vec.Vec2]struct{}, len(l.Floor))
	for _, p := range l.Floor {
		cells[p.Vec().ToVec2()] = struct{}{}
	}
	if _, ok := cells[l.Start.Vec().ToVec2()]; !ok {
		return fmt.Errorf("%s: %w", l.ID, ErrStartNotOnFloor)
	}
	if _, ok := cells[l.End.Vec().ToVec2()]; !ok {
		return fmt.Errorf("%s: %w", l.ID, ErrEndNotOnFloor)
	}
	return nil
}

// FloorCells возвращает клетки пола в формате world.Build
func (l *Level) FloorCells() []vec.Vec2Float {
	cells := make([]vec.Vec2Float, 0, len(l.Floor))
	for _, p := range l.Floor {
		cells = append(cells, p.Vec())
	}
	return cells
}

// Grid строит сетку уровня
func (l *Level) Grid() (*world.Grid, error) {
	return world.Build(l.FloorCells())
}

// Solve ищет кратчайшее решение уровня
func (l *Level) Solve() ([]entity.Direction, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	g, err := l.Grid()
	if err != nil {
		return nil, err
	}
	start := g.WorldToGrid(l.Start.X, l.Start.Z)
	end := g.WorldToGrid(l.End.X, l.End.Z)
	return solver.Solve(g, start, end)
}

func dedupe(points []Point) []Point {
	seen := make(map[vec.Vec2]struct{}, len(points))
	out := points[:0]
	for _, p := range points {
		key := p.Vec().ToVec2()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
