package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/blockroll/internal/entity"
	"github.com/annel0/blockroll/internal/level"
	"github.com/annel0/blockroll/internal/replay"
)

const levelsDir = "../../assets/levels"

func sampleLevel(t *testing.T, id string) *level.Level {
	t.Helper()
	lvl, err := level.Parse([]byte("id: " + id + "\nname: Sample " + id + "\nlayout: |\n  S##\n  ##E\n"))
	require.NoError(t, err)
	return lvl
}

func sampleReplay(id, levelID string, at time.Time) *replay.Recording {
	rec := &replay.Recording{ID: id, SessionID: "s-" + id, LevelID: levelID, Speed: 180, CreatedAt: at}
	rec.Append(1, entity.Left)
	rec.Append(9, entity.Up)
	return rec
}

// testLevelRepo проверяет общий контракт LevelRepo
func testLevelRepo(t *testing.T, repo LevelRepo) {
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("SaveGet", func(t *testing.T) {
		lvl := sampleLevel(t, "b-level")
		require.NoError(t, repo.Save(ctx, lvl))

		got, err := repo.Get(ctx, "b-level")
		require.NoError(t, err)
		assert.Equal(t, lvl.ID, got.ID)
		assert.Equal(t, lvl.Name, got.Name)
		assert.ElementsMatch(t, lvl.Floor, got.Floor)
		assert.Equal(t, *lvl.Start, *got.Start)
		assert.Equal(t, *lvl.End, *got.End)
	})

	t.Run("SaveInvalid", func(t *testing.T) {
		err := repo.Save(ctx, &level.Level{ID: "broken"})
		assert.ErrorIs(t, err, level.ErrNoFloor)
	})

	t.Run("ListSorted", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, sampleLevel(t, "a-level")))

		list, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "a-level", list[0].ID)
		assert.Equal(t, "b-level", list[1].ID)
	})

	t.Run("Overwrite", func(t *testing.T) {
		lvl := sampleLevel(t, "a-level")
		lvl.Name = "Renamed"
		require.NoError(t, repo.Save(ctx, lvl))

		got, err := repo.Get(ctx, "a-level")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "a-level"))
		assert.ErrorIs(t, repo.Delete(ctx, "a-level"), ErrNotFound)

		_, err := repo.Get(ctx, "a-level")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

// testReplayRepo проверяет общий контракт ReplayRepo
func testReplayRepo(t *testing.T, repo ReplayRepo) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("GetMissing", func(t *testing.T) {
		_, err := repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("SaveGet", func(t *testing.T) {
		rec := sampleReplay("r1", "classic", base)
		require.NoError(t, repo.Save(ctx, rec))

		got, err := repo.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, rec.LevelID, got.LevelID)
		assert.Equal(t, rec.Directions(), got.Directions())
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("ListByLevel", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, sampleReplay("r2", "classic", base.Add(time.Minute))))
		require.NoError(t, repo.Save(ctx, sampleReplay("r3", "corridor", base.Add(2*time.Minute))))

		list, err := repo.List(ctx, "classic")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "r2", list[0].ID)
		assert.Equal(t, "r1", list[1].ID)

		all, err := repo.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("SaveWithoutID", func(t *testing.T) {
		assert.Error(t, repo.Save(ctx, &replay.Recording{LevelID: "classic"}))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "r1"))
		assert.ErrorIs(t, repo.Delete(ctx, "r1"), ErrNotFound)
	})
}

func TestMemoryLevelRepo(t *testing.T) {
	repo := NewMemoryLevelRepo()
	testLevelRepo(t, repo)
	assert.Equal(t, 1, repo.Count())
}

func TestMemoryReplayRepo(t *testing.T) {
	testReplayRepo(t, NewMemoryReplayRepo())
}

func TestMemoryRepo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryLevelRepo().Get(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = NewMemoryReplayRepo().List(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileLevelRepo(t *testing.T) {
	repo, err := NewFileLevelRepo(filepath.Join(t.TempDir(), "levels"))
	require.NoError(t, err)
	testLevelRepo(t, repo)
}

func TestFileLevelRepo_ForeignFileName(t *testing.T) {
	dir := t.TempDir()
	doc := "id: odd\nlayout: |\n  S#E\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "some-name.yml"), []byte(doc), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	repo, err := NewFileLevelRepo(dir)
	require.NoError(t, err)

	lvl, err := repo.Get(context.Background(), "odd")
	require.NoError(t, err)
	assert.Len(t, lvl.Floor, 3)

	require.NoError(t, repo.Delete(context.Background(), "odd"))
	_, err = os.Stat(filepath.Join(dir, "some-name.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBadgerStore(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	t.Run("Levels", func(t *testing.T) { testLevelRepo(t, store.Levels()) })
	t.Run("Replays", func(t *testing.T) { testReplayRepo(t, store.Replays()) })
}

func TestBadgerStore_Closed(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.Levels().Get(context.Background(), "x")
	assert.Error(t, err)
}

func TestImportDir(t *testing.T) {
	repo := NewMemoryLevelRepo()
	n, err := ImportDir(context.Background(), repo, levelsDir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	ids := make([]string, len(list))
	for i, l := range list {
		ids[i] = l.ID
	}
	assert.Equal(t, []string{"bridge", "classic", "corridor"}, ids)
}

func TestImportDir_Missing(t *testing.T) {
	_, err := ImportDir(context.Background(), NewMemoryLevelRepo(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestRedisLevelRepo(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR не задан")
	}
	cfg := DefaultRedisConfig()
	cfg.Addr = addr
	cfg.KeyPrefix = "blockroll-test:" + time.Now().Format("150405.000") + ":"

	repo, err := NewRedisLevelRepo(cfg)
	require.NoError(t, err)
	defer repo.Close()
	testLevelRepo(t, repo)
}

func TestMariaLevelRepo(t *testing.T) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN не задан")
	}
	repo, err := NewMariaLevelRepo(dsn)
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	for _, id := range []string{"a-level", "b-level"} {
		_ = repo.Delete(ctx, id)
	}
	testLevelRepo(t, repo)
}

func TestMongoReplayRepo(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI не задан")
	}
	repo, err := NewMongoReplayRepo(MongoConfig{
		URI:        uri,
		Database:   "blockroll_test",
		Collection: "replays_" + time.Now().Format("150405"),
	})
	require.NoError(t, err)
	defer repo.Close()
	testReplayRepo(t, repo)
}
