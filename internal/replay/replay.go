package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/annel0/blockroll/internal/entity"
	"github.com/annel0/blockroll/internal/level"
)

// ErrDiverged - записанный ход не принимается при воспроизведении
var ErrDiverged = errors.New("replay: recorded move was rejected")

// Step - принятый ход и тик сессии, на котором он был принят
type Step struct {
	Tick      uint64           `json:"tick"`
	Direction entity.Direction `json:"direction"`
}

// Recording - запись прохождения уровня
type Recording struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	LevelID   string    `json:"level_id"`
	Speed     float64   `json:"speed"`
	Steps     []Step    `json:"steps"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

// Append добавляет ход в запись
func (r *Recording) Append(tick uint64, dir entity.Direction) {
	r.Steps = append(r.Steps, Step{Tick: tick, Direction: dir})
}

// Directions возвращает только направления ходов
func (r *Recording) Directions() []entity.Direction {
	dirs := make([]entity.Direction, len(r.Steps))
	for i, s := range r.Steps {
		dirs[i] = s.Direction
	}
	return dirs
}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// Encode сериализует запись в JSON и сжимает zstd
func Encode(r *Recording) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("replay: encode: %w", err)
	}
	return encoder.EncodeAll(raw, nil), nil
}

// Decode распаковывает и разбирает запись
func Decode(data []byte) (*Recording, error) {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("replay: decompress: %w", err)
	}
	var r Recording
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("replay: decode: %w", err)
	}
	return &r, nil
}

// Result - итог воспроизведения
type Result struct {
	Pose      entity.Pose
	Moves     int
	Completed bool
}

// Run проигрывает запись на уровне. Каждый поворот завершается мгновенно.
func Run(lvl *level.Level, r *Recording) (Result, error) {
	if err := lvl.Validate(); err != nil {
		return Result{}, err
	}
	g, err := lvl.Grid()
	if err != nil {
		return Result{}, err
	}

	block := entity.NewBlock(g, r.Speed)
	pose, err := block.Initialize(lvl.Start.Vec())
	if err != nil {
		return Result{}, err
	}
	end := g.WorldToGrid(lvl.End.X, lvl.End.Z)

	res := Result{Pose: pose}
	for i, step := range r.Steps {
		if _, err := block.RequestMove(step.Direction); err != nil {
			return res, fmt.Errorf("%w: step %d (%s): %w", ErrDiverged, i, step.Direction, err)
		}
		done, _ := block.Complete()
		res.Pose = done.Pose
		res.Moves++
	}

	res.Completed = res.Pose.Standing() && res.Pose.A == end
	return res, nil
}
