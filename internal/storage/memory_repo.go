package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/annel0/blockroll/internal/level"
	"github.com/annel0/blockroll/internal/replay"
)

// MemoryLevelRepo реализует LevelRepo в памяти.
// Используется по умолчанию и в тестах. Данные теряются при перезапуске.
type MemoryLevelRepo struct {
	mu   sync.RWMutex
	data map[string]*level.Level
}

// NewMemoryLevelRepo создает пустой репозиторий уровней в памяти
func NewMemoryLevelRepo() *MemoryLevelRepo {
	return &MemoryLevelRepo{data: make(map[string]*level.Level)}
}

func (r *MemoryLevelRepo) Get(ctx context.Context, id string) (*level.Level, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	lvl, ok := r.data[id]
	if !ok {
		return nil, fmt.Errorf("level %q: %w", id, ErrNotFound)
	}
	return lvl, nil
}

func (r *MemoryLevelRepo) List(ctx context.Context) ([]*level.Level, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]*level.Level, 0, len(r.data))
	for _, lvl := range r.data {
		out = append(out, lvl)
	}
	r.mu.RUnlock()

	sortLevels(out)
	return out, nil
}

func (r *MemoryLevelRepo) Save(ctx context.Context, lvl *level.Level) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	if err := lvl.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.data[lvl.ID] = lvl
	r.mu.Unlock()
	return nil
}

func (r *MemoryLevelRepo) Delete(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[id]; !ok {
		return fmt.Errorf("level %q: %w", id, ErrNotFound)
	}
	delete(r.data, id)
	return nil
}

// Count возвращает количество уровней
func (r *MemoryLevelRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// MemoryReplayRepo реализует ReplayRepo в памяти.
type MemoryReplayRepo struct {
	mu   sync.RWMutex
	data map[string]*replay.Recording
}

// NewMemoryReplayRepo создает пустой репозиторий записей в памяти
func NewMemoryReplayRepo() *MemoryReplayRepo {
	return &MemoryReplayRepo{data: make(map[string]*replay.Recording)}
}

func (r *MemoryReplayRepo) Save(ctx context.Context, rec *replay.Recording) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	if rec.ID == "" {
		return fmt.Errorf("storage: replay without id")
	}
	r.mu.Lock()
	r.data[rec.ID] = rec
	r.mu.Unlock()
	return nil
}

func (r *MemoryReplayRepo) Get(ctx context.Context, id string) (*replay.Recording, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.data[id]
	if !ok {
		return nil, fmt.Errorf("replay %q: %w", id, ErrNotFound)
	}
	return rec, nil
}

func (r *MemoryReplayRepo) List(ctx context.Context, levelID string) ([]*replay.Recording, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]*replay.Recording, 0, len(r.data))
	for _, rec := range r.data {
		if levelID == "" || rec.LevelID == levelID {
			out = append(out, rec)
		}
	}
	r.mu.RUnlock()

	sortReplays(out)
	return out, nil
}

func (r *MemoryReplayRepo) Delete(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[id]; !ok {
		return fmt.Errorf("replay %q: %w", id, ErrNotFound)
	}
	delete(r.data, id)
	return nil
}
