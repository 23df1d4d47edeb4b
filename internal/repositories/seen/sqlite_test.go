package seen

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/db"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*SQLite, *clockwork.FakeClock) {
	t.Helper()

	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "seen.db"))
	require.NoError(t, err)
	_, err = db.Migrate(context.Background(), conn, goose.DialectSQLite3)
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	repo := NewSQLite(conn, clock, logger.Nop())
	t.Cleanup(func() { repo.Close() })
	return repo, clock
}

func TestCheckAndAdmitIsIdempotent(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.CheckAndAdmit(ctx, 5012345678901234)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.CheckAndAdmit(ctx, 5012345678901234)
	require.NoError(t, err)
	assert.False(t, second)
}

func TestCheckAndAdmitRejectsNonPositive(t *testing.T) {
	repo, _ := newTestRepo(t)

	for _, id := range []int64{0, -7} {
		ok, err := repo.CheckAndAdmit(context.Background(), id)
		assert.NoError(t, err)
		assert.False(t, ok)
	}

	ids, err := repo.RecentIDs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCheckAndAdmitConcurrentSameID(t *testing.T) {
	repo, _ := newTestRepo(t)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.CheckAndAdmit(context.Background(), 42)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
}

func TestCleanupRemovesOnlyExpired(t *testing.T) {
	repo, clock := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.CheckAndAdmit(ctx, 1)
	require.NoError(t, err)

	clock.Advance(20 * 24 * time.Hour)
	_, err = repo.CheckAndAdmit(ctx, 2)
	require.NoError(t, err)

	clock.Advance(11 * 24 * time.Hour)
	removed, err := repo.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	ids, err := repo.RecentIDs(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)

	again, err := repo.CheckAndAdmit(ctx, 1)
	require.NoError(t, err)
	assert.True(t, again, "expired ids become admissible again")
}

func TestRecentIDsNewestFirst(t *testing.T) {
	repo, clock := newTestRepo(t)
	ctx := context.Background()

	for _, id := range []int64{10, 20, 30} {
		_, err := repo.CheckAndAdmit(ctx, id)
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	ids, err := repo.RecentIDs(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{30, 20}, ids)
}
