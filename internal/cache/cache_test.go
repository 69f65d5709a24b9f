package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/polaris-class/clubhouse/internal/config"
	"github.com/polaris-class/clubhouse/internal/models"
	clubstore "github.com/polaris-class/clubhouse/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *EngineCache {
	t.Helper()
	c, err := NewEngineCache(&config.CacheConfig{Type: config.CacheTypeMemory}, time.Minute)
	require.NoError(t, err)
	return c
}

func TestPrefixedCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewPrefixedCache[[]models.LeaderboardEntry](newMemoryCache(), config.CacheTypeMemory, "lb-")

	_, err := c.Get(ctx, "top")
	assert.Error(t, err)

	want := []models.LeaderboardEntry{{Rank: 1, Username: "kim", Points: 120, Level: 2}}
	require.NoError(t, c.Set(ctx, "top", want))

	got, err := c.Get(ctx, "top")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, c.Delete(ctx, "top"))
	_, err = c.Get(ctx, "top")
	assert.Error(t, err)
	assert.Equal(t, config.CacheTypeMemory, c.GetType())
}

func TestGetOrLoad(t *testing.T) {
	ctx := context.Background()
	e := newTestCache(t)

	calls := 0
	load := func() (int, error) {
		calls++
		return 42, nil
	}

	v, err := GetOrLoad(ctx, e, e.PointsCache, "kim", load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = GetOrLoad(ctx, e, e.PointsCache, "kim", load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)

	_, err = GetOrLoad(ctx, e, e.PointsCache, "lee", func() (int, error) { return 0, errors.New("boom") })
	assert.Error(t, err)
}

func TestGetOrLoad_NilCacheAlwaysLoads(t *testing.T) {
	calls := 0
	for range 2 {
		_, err := GetOrLoad(context.Background(), nil, (*PrefixedCache[int])(nil), "k", func() (int, error) {
			calls++
			return 1, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	e := newTestCache(t)

	require.NoError(t, e.PointsCache.Set(ctx, "kim", 10))

	e.Invalidate(ctx, clubstore.Change{Table: clubstore.Posts, Kind: clubstore.ChangeAdded})
	_, err := e.PointsCache.Get(ctx, "kim")
	assert.NoError(t, err, "unrelated tables keep the cache")

	e.Invalidate(ctx, clubstore.Change{Table: clubstore.Attendance, Kind: clubstore.ChangeAdded})
	_, err = e.PointsCache.Get(ctx, "kim")
	assert.Error(t, err)
}

func TestGetStats(t *testing.T) {
	e := newTestCache(t)
	stats := e.GetStats()
	require.Len(t, stats, 3)
	assert.Equal(t, "leaderboard", stats[0].CacheName)
	assert.NotNil(t, stats[0].Stats)
}
