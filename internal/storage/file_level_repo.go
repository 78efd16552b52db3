package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/annel0/blockroll/internal/level"
)

// FileLevelRepo хранит уровни как YAML-файлы каталога <dir>/<id>.yaml.
// Файлы с другими именами тоже читаются: ID берется из документа.
type FileLevelRepo struct {
	mu  sync.RWMutex
	dir string
}

// NewFileLevelRepo создает репозиторий над каталогом, создавая его при необходимости
func NewFileLevelRepo(dir string) (*FileLevelRepo, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог уровней %s: %w", dir, err)
	}
	return &FileLevelRepo{dir: dir}, nil
}

// Dir возвращает каталог репозитория
func (r *FileLevelRepo) Dir() string { return r.dir }

func (r *FileLevelRepo) Get(ctx context.Context, id string) (*level.Level, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	lvl, err := level.LoadFile(r.path(id))
	if err == nil && lvl.ID == id {
		return lvl, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	_, lvl, err = r.find(id)
	return lvl, err
}

func (r *FileLevelRepo) List(ctx context.Context) ([]*level.Level, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return loadDir(r.dir)
}

func (r *FileLevelRepo) Save(ctx context.Context, lvl *level.Level) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	if err := lvl.Validate(); err != nil {
		return err
	}
	data, err := level.Marshal(lvl)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Временный файл и rename, чтобы читатели не видели половину документа
	tmp := r.path(lvl.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("ошибка записи уровня %s: %w", lvl.ID, err)
	}
	return os.Rename(tmp, r.path(lvl.ID))
}

func (r *FileLevelRepo) Delete(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	path, _, err := r.find(id)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

func (r *FileLevelRepo) path(id string) string {
	return filepath.Join(r.dir, id+".yaml")
}

// find ищет файл уровня по ID документа
func (r *FileLevelRepo) find(id string) (string, *level.Level, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return "", nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		path := filepath.Join(r.dir, e.Name())
		lvl, err := level.LoadFile(path)
		if err != nil {
			return "", nil, err
		}
		if lvl.ID == id {
			return path, lvl, nil
		}
	}
	return "", nil, fmt.Errorf("level %q: %w", id, ErrNotFound)
}
