package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/annel0/blockroll/internal/level"
	"github.com/annel0/blockroll/internal/replay"
)

// ErrNotFound - запись с таким идентификатором отсутствует
var ErrNotFound = errors.New("storage: not found")

// LevelRepo хранит описания уровней.
type LevelRepo interface {
	// Get возвращает уровень по ID или ErrNotFound.
	Get(ctx context.Context, id string) (*level.Level, error)
	// List возвращает все уровни, отсортированные по ID.
	List(ctx context.Context) ([]*level.Level, error)
	// Save добавляет или заменяет уровень. Уровень должен проходить Validate.
	Save(ctx context.Context, lvl *level.Level) error
	// Delete удаляет уровень или возвращает ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// ReplayRepo хранит записи прохождений.
type ReplayRepo interface {
	Save(ctx context.Context, rec *replay.Recording) error
	Get(ctx context.Context, id string) (*replay.Recording, error)
	// List возвращает записи уровня levelID (пустая строка - все записи),
	// от новых к старым.
	List(ctx context.Context, levelID string) ([]*replay.Recording, error)
	Delete(ctx context.Context, id string) error
}

// ImportDir загружает все *.yaml и *.yml из каталога в репозиторий.
// Возвращает число загруженных уровней.
func ImportDir(ctx context.Context, repo LevelRepo, dir string) (int, error) {
	levels, err := loadDir(dir)
	if err != nil {
		return 0, err
	}
	for _, lvl := range levels {
		if err := repo.Save(ctx, lvl); err != nil {
			return 0, err
		}
	}
	return len(levels), nil
}

func loadDir(dir string) ([]*level.Level, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var levels []*level.Level
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		lvl, err := level.LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		levels = append(levels, lvl)
	}
	sortLevels(levels)
	return levels, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func sortLevels(levels []*level.Level) {
	sort.Slice(levels, func(i, j int) bool { return levels[i].ID < levels[j].ID })
}

func sortReplays(recs []*replay.Recording) {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
}

func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
