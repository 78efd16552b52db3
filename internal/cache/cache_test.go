package cache

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/blockroll/internal/level"
	"github.com/annel0/blockroll/internal/storage"
)

// countingRepo считает обращения к нижнему хранилищу
type countingRepo struct {
	storage.LevelRepo
	mu   sync.Mutex
	gets int
}

func (r *countingRepo) Get(ctx context.Context, id string) (*level.Level, error) {
	r.mu.Lock()
	r.gets++
	r.mu.Unlock()
	return r.LevelRepo.Get(ctx, id)
}

// localInvalidator связывает кеши в одном процессе
type localInvalidator struct {
	mu       sync.Mutex
	node     string
	peers    *[]*localInvalidator
	handler  InvalidationHandler
	received []string
}

func newLocalCluster(nodes ...string) []*localInvalidator {
	peers := make([]*localInvalidator, 0, len(nodes))
	for _, n := range nodes {
		peers = append(peers, &localInvalidator{node: n})
	}
	for _, p := range peers {
		p.peers = &peers
	}
	return peers
}

func (l *localInvalidator) PublishInvalidation(_ context.Context, key string) error {
	data, err := encodeInvalidation(key, l.node)
	if err != nil {
		return err
	}
	for _, p := range *l.peers {
		key, ok, err := decodeInvalidation(data, p.node)
		if err != nil || !ok {
			continue
		}
		p.mu.Lock()
		p.received = append(p.received, key)
		h := p.handler
		p.mu.Unlock()
		if h != nil {
			_ = h(key)
		}
	}
	return nil
}

func (l *localInvalidator) SubscribeInvalidations(_ context.Context, h InvalidationHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handler != nil {
		return ErrAlreadySubscribed
	}
	l.handler = h
	return nil
}

func (l *localInvalidator) Close() error { return nil }

func testLevel(t *testing.T, id, layout string) *level.Level {
	t.Helper()
	lvl, err := level.ParseLayout(layout, level.Point{})
	require.NoError(t, err)
	lvl.ID = id
	require.NoError(t, lvl.Validate())
	return lvl
}

func newRepo(t *testing.T, levels ...*level.Level) *countingRepo {
	t.Helper()
	mem := storage.NewMemoryLevelRepo()
	for _, l := range levels {
		require.NoError(t, mem.Save(context.Background(), l))
	}
	return &countingRepo{LevelRepo: mem}
}

func TestLevelCache_HitAndMiss(t *testing.T) {
	repo := newRepo(t, testLevel(t, "a", "S##E"))
	c, err := NewLevelCache(context.Background(), repo, time.Minute, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		lvl, err := c.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "a", lvl.ID)
	}
	assert.Equal(t, 1, repo.gets)

	st := c.Stats()
	assert.Equal(t, int64(2), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, 1, st.Entries)
	assert.InDelta(t, 2.0/3.0, st.HitRatio, 1e-9)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestLevelCache_TTL(t *testing.T) {
	repo := newRepo(t, testLevel(t, "a", "S##E"))
	c, err := NewLevelCache(context.Background(), repo, time.Millisecond, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.Get(ctx, "a")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.gets)
}

func TestLevelCache_SaveAndDeleteInvalidate(t *testing.T) {
	repo := newRepo(t, testLevel(t, "a", "S##E"))
	c, err := NewLevelCache(context.Background(), repo, time.Minute, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Get(ctx, "a")
	require.NoError(t, err)

	updated := testLevel(t, "a", "S#####E")
	require.NoError(t, c.Save(ctx, updated))
	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, got.Floor, 7)

	require.NoError(t, c.Delete(ctx, "a"))
	_, err = c.Get(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	lvls, err := c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, lvls)
}

func TestLevelCache_CrossNodeInvalidation(t *testing.T) {
	ctx := context.Background()
	shared := newRepo(t, testLevel(t, "a", "S##E"))
	cluster := newLocalCluster("n1", "n2")

	c1, err := NewLevelCache(ctx, shared, time.Hour, cluster[0])
	require.NoError(t, err)
	c2, err := NewLevelCache(ctx, shared, time.Hour, cluster[1])
	require.NoError(t, err)

	_, err = c2.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, c1.Save(ctx, testLevel(t, "a", "S#####E")))

	// n2 получил уведомление, n1 свое проигнорировал
	assert.Equal(t, []string{"a"}, cluster[1].received)
	assert.Empty(t, cluster[0].received)

	got, err := c2.Get(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, got.Floor, 7)
}

func TestLevelCache_SubscribeError(t *testing.T) {
	inv := newLocalCluster("n1")[0]
	_, err := NewLevelCache(context.Background(), newRepo(t), 0, inv)
	require.NoError(t, err)

	_, err = NewLevelCache(context.Background(), newRepo(t), 0, inv)
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
}

func TestDecodeInvalidation(t *testing.T) {
	data, err := encodeInvalidation("lvl", "n1")
	require.NoError(t, err)

	key, ok, err := decodeInvalidation(data, "n2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "lvl", key)

	_, ok, err = decodeInvalidation(data, "n1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = decodeInvalidation([]byte("{"), "n1")
	assert.Error(t, err)
}

func TestNATSInvalidator(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := NewNATSInvalidator(&InvalidatorConfig{NATSURL: url, Subject: "blockroll.test.cache"}, "a")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewNATSInvalidator(&InvalidatorConfig{NATSURL: url, Subject: "blockroll.test.cache"}, "b")
	require.NoError(t, err)
	defer b.Close()

	got := make(chan string, 1)
	require.NoError(t, b.SubscribeInvalidations(ctx, func(key string) error {
		got <- key
		return nil
	}))
	require.NoError(t, b.conn.Flush())
	require.NoError(t, a.PublishInvalidation(ctx, "classic"))

	select {
	case key := <-got:
		assert.Equal(t, "classic", key)
	case <-time.After(2 * time.Second):
		t.Fatal("invalidation not received")
	}
}
