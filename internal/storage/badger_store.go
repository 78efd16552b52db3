package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/blockroll/internal/level"
	"github.com/annel0/blockroll/internal/replay"
)

const (
	badgerLevelPrefix  = "level:"
	badgerReplayPrefix = "replay:"
)

// errStoreClosed - хранилище уже закрыто
var errStoreClosed = errors.New("хранилище не готово")

// BadgerStore хранит уровни (JSON) и записи прохождений (zstd) в BadgerDB.
// Реализует и LevelRepo, и ReplayRepo.
type BadgerStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerStore открывает (или создает) базу в каталоге dbPath
func NewBadgerStore(dbPath string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerStore{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

// Close закрывает хранилище данных
func (s *BadgerStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isReady {
		return nil
	}

	s.isReady = false
	return s.db.Close()
}

// Levels возвращает хранилище как LevelRepo
func (s *BadgerStore) Levels() LevelRepo { return badgerLevels{s} }

// Replays возвращает хранилище как ReplayRepo
func (s *BadgerStore) Replays() ReplayRepo { return badgerReplays{s} }

func (s *BadgerStore) set(ctx context.Context, key string, data []byte) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return errStoreClosed
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

func (s *BadgerStore) get(ctx context.Context, key string) ([]byte, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return nil, errStoreClosed
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	return data, nil
}

func (s *BadgerStore) delete(ctx context.Context, key string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return errStoreClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%s: %w", key, ErrNotFound)
			}
			return err
		}
		return txn.Delete([]byte(key))
	})
}

// scan вызывает fn для каждого значения с префиксом
func (s *BadgerStore) scan(ctx context.Context, prefix string, fn func(val []byte) error) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return errStoreClosed
	}
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

type badgerLevels struct{ s *BadgerStore }

func (b badgerLevels) Get(ctx context.Context, id string) (*level.Level, error) {
	data, err := b.s.get(ctx, badgerLevelPrefix+id)
	if err != nil {
		return nil, err
	}
	var lvl level.Level
	if err := json.Unmarshal(data, &lvl); err != nil {
		return nil, fmt.Errorf("ошибка десериализации уровня %s: %w", id, err)
	}
	return &lvl, nil
}

func (b badgerLevels) List(ctx context.Context) ([]*level.Level, error) {
	var out []*level.Level
	err := b.s.scan(ctx, badgerLevelPrefix, func(val []byte) error {
		var lvl level.Level
		if err := json.Unmarshal(val, &lvl); err != nil {
			return err
		}
		out = append(out, &lvl)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortLevels(out)
	return out, nil
}

func (b badgerLevels) Save(ctx context.Context, lvl *level.Level) error {
	if err := lvl.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(lvl)
	if err != nil {
		return fmt.Errorf("ошибка сериализации уровня: %w", err)
	}
	return b.s.set(ctx, badgerLevelPrefix+lvl.ID, data)
}

func (b badgerLevels) Delete(ctx context.Context, id string) error {
	return b.s.delete(ctx, badgerLevelPrefix+id)
}

type badgerReplays struct{ s *BadgerStore }

func (b badgerReplays) Save(ctx context.Context, rec *replay.Recording) error {
	if rec.ID == "" {
		return fmt.Errorf("storage: replay without id")
	}
	data, err := replay.Encode(rec)
	if err != nil {
		return err
	}
	return b.s.set(ctx, badgerReplayPrefix+rec.ID, data)
}

func (b badgerReplays) Get(ctx context.Context, id string) (*replay.Recording, error) {
	data, err := b.s.get(ctx, badgerReplayPrefix+id)
	if err != nil {
		return nil, err
	}
	return replay.Decode(data)
}

func (b badgerReplays) List(ctx context.Context, levelID string) ([]*replay.Recording, error) {
	var out []*replay.Recording
	err := b.s.scan(ctx, badgerReplayPrefix, func(val []byte) error {
		rec, err := replay.Decode(val)
		if err != nil {
			return err
		}
		if levelID == "" || rec.LevelID == levelID {
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortReplays(out)
	return out, nil
}

func (b badgerReplays) Delete(ctx context.Context, id string) error {
	return b.s.delete(ctx, badgerReplayPrefix+id)
}
