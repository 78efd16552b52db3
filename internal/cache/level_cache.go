package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/blockroll/internal/level"
	"github.com/annel0/blockroll/internal/logging"
	"github.com/annel0/blockroll/internal/storage"
)

// DefaultTTL - время жизни уровня в кеше по умолчанию
const DefaultTTL = 5 * time.Minute

// LevelCache - read-through кеш поверх storage.LevelRepo.
//
// Get обслуживается из памяти, пока запись не устарела. Save и Delete
// проходят в нижнее хранилище, сбрасывают локальную запись и рассылают
// инвалидацию остальным узлам. List не кешируется.
type LevelCache struct {
	repo        storage.LevelRepo
	ttl         time.Duration
	invalidator Invalidator // может быть nil

	mu      sync.RWMutex
	entries map[string]entry

	hits          int64
	misses        int64
	invalidations int64
}

type entry struct {
	lvl     *level.Level
	expires time.Time
}

var _ storage.LevelRepo = (*LevelCache)(nil)

// NewLevelCache оборачивает repo. ttl <= 0 - DefaultTTL.
// Если invalidator задан, кеш подписывается на его уведомления до отмены ctx.
func NewLevelCache(ctx context.Context, repo storage.LevelRepo, ttl time.Duration, invalidator Invalidator) (*LevelCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &LevelCache{
		repo:        repo,
		ttl:         ttl,
		invalidator: invalidator,
		entries:     make(map[string]entry),
	}
	if invalidator != nil {
		if err := invalidator.SubscribeInvalidations(ctx, c.onInvalidation); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Get возвращает уровень из кеша или загружает его из хранилища
func (c *LevelCache) Get(ctx context.Context, id string) (*level.Level, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()

	if ok && time.Now().Before(e.expires) {
		atomic.AddInt64(&c.hits, 1)
		return e.lvl, nil
	}
	atomic.AddInt64(&c.misses, 1)

	lvl, err := c.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[id] = entry{lvl: lvl, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return lvl, nil
}

// List всегда читает хранилище
func (c *LevelCache) List(ctx context.Context) ([]*level.Level, error) {
	return c.repo.List(ctx)
}

// Save записывает уровень и инвалидирует его на всех узлах
func (c *LevelCache) Save(ctx context.Context, lvl *level.Level) error {
	if err := c.repo.Save(ctx, lvl); err != nil {
		return err
	}
	c.invalidate(ctx, lvl.ID)
	return nil
}

// Delete удаляет уровень и инвалидирует его на всех узлах
func (c *LevelCache) Delete(ctx context.Context, id string) error {
	if err := c.repo.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// Stats возвращает счетчики кеша
func (c *LevelCache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()

	st := Stats{
		Hits:          atomic.LoadInt64(&c.hits),
		Misses:        atomic.LoadInt64(&c.misses),
		Invalidations: atomic.LoadInt64(&c.invalidations),
		Entries:       n,
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRatio = float64(st.Hits) / float64(total)
	}
	return st
}

func (c *LevelCache) invalidate(ctx context.Context, id string) {
	c.drop(id)
	if c.invalidator == nil {
		return
	}
	// Ошибка рассылки не отменяет записи: удаленные узлы догонят по TTL
	if err := c.invalidator.PublishInvalidation(ctx, id); err != nil {
		logging.Warn("кеш уровней: инвалидация %s не разослана: %v", id, err)
	}
}

func (c *LevelCache) onInvalidation(id string) error {
	c.drop(id)
	return nil
}

func (c *LevelCache) drop(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
	atomic.AddInt64(&c.invalidations, 1)
}
