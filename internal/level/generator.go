package level

import (
	"errors"
	"fmt"

	"github.com/annel0/blockroll/internal/entity"
	"github.com/annel0/blockroll/internal/logging"
	"github.com/annel0/blockroll/internal/solver"
	"github.com/annel0/blockroll/internal/util"
	"github.com/annel0/blockroll/internal/vec"
	"github.com/annel0/blockroll/internal/world"
)

// ErrGenerationFailed - за MaxAttempts попыток не нашлось решаемого поля
var ErrGenerationFailed = errors.New("level: generation failed")

// GeneratorOptions - параметры процедурной генерации уровня
type GeneratorOptions struct {
	ID          string
	Name        string
	Width       int     // клеток по оси Z
	Height      int     // клеток по оси X
	Seed        int64
	Threshold   float64 // клетка - пол, если шум выше порога
	Scale       float64 // шаг по полю шума на одну клетку
	MaxAttempts int
	MinMoves    int // минимальная длина кратчайшего решения
}

// Пределы генератора: поле и число попыток зажимаются в applyDefaults
const (
	MaxGeneratedSize = 64
	MaxAttemptsLimit = 256
)

// DefaultGeneratorOptions возвращает параметры по умолчанию
func DefaultGeneratorOptions() GeneratorOptions {
	return GeneratorOptions{
		ID:          "generated",
		Width:       12,
		Height:      8,
		Threshold:   0.45,
		Scale:       0.25,
		MaxAttempts: 32,
		MinMoves:    4,
	}
}

func (o *GeneratorOptions) applyDefaults() {
	def := DefaultGeneratorOptions()
	if o.ID == "" {
		o.ID = def.ID
	}
	if o.Width < 5 {
		o.Width = def.Width
	}
	if o.Height < 5 {
		o.Height = def.Height
	}
	o.Width = min(o.Width, MaxGeneratedSize)
	o.Height = min(o.Height, MaxGeneratedSize)
	if o.Threshold <= 0 || o.Threshold >= 1 {
		o.Threshold = def.Threshold
	}
	if o.Scale <= 0 {
		o.Scale = def.Scale
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	o.MaxAttempts = min(o.MaxAttempts, MaxAttemptsLimit)
	if o.MinMoves < 0 {
		o.MinMoves = 0
	}
}

// Generate строит решаемый уровень из шума Перлина. Старт в углу (1,1),
// финиш в противоположном углу; вокруг обоих всегда есть площадка 3x3.
// Если поле не решается, берётся следующий сид.
func Generate(opts GeneratorOptions) (*Level, []entity.Direction, error) {
	opts.applyDefaults()

	start := vec.Vec2{X: 1, Y: 1}
	end := vec.Vec2{X: opts.Height - 2, Y: opts.Width - 2}

	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		seed := opts.Seed + int64(attempt)
		noise := util.NewNoise(seed)

		lvl := &Level{ID: opts.ID, Name: opts.Name}
		for x := 0; x < opts.Height; x++ {
			for z := 0; z < opts.Width; z++ {
				cell := vec.Vec2{X: x, Y: z}
				if nearPad(cell, start) || nearPad(cell, end) ||
					noise.At((float64(x)+0.5)*opts.Scale, (float64(z)+0.5)*opts.Scale) > opts.Threshold {
					lvl.Floor = append(lvl.Floor, Point{X: float64(x), Z: float64(z)})
				}
			}
		}
		lvl.Start = &Point{X: float64(start.X), Z: float64(start.Y)}
		lvl.End = &Point{X: float64(end.X), Z: float64(end.Y)}

		g, err := world.Build(lvl.FloorCells())
		if err != nil {
			return nil, nil, err
		}
		path, err := solver.Solve(g, g.WorldToGrid(lvl.Start.X, lvl.Start.Z), g.WorldToGrid(lvl.End.X, lvl.End.Z))
		if err != nil || len(path) < opts.MinMoves {
			logging.Debug("генерация %s: сид %d отброшен (ходов %d)", opts.ID, seed, len(path))
			continue
		}

		logging.Info("уровень %s сгенерирован: сид %d, %d клеток, решение %d ходов",
			opts.ID, seed, len(lvl.Floor), len(path))
		return lvl, path, nil
	}

	return nil, nil, fmt.Errorf("%w: %d attempts from seed %d", ErrGenerationFailed, opts.MaxAttempts, opts.Seed)
}

func nearPad(cell, center vec.Vec2) bool {
	dx, dz := cell.X-center.X, cell.Y-center.Y
	return dx >= -1 && dx <= 1 && dz >= -1 && dz <= 1
}
