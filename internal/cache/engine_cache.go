package cache

import (
	"context"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eko/gocache/lib/v4/codec"
	"github.com/eko/gocache/lib/v4/store"
	"github.com/polaris-class/clubhouse/internal/config"
	"github.com/polaris-class/clubhouse/internal/models"
	clubstore "github.com/polaris-class/clubhouse/internal/store"
	"golang.org/x/sync/errgroup"
)

// Cache key prefixes.
const (
	LeaderboardCachePrefix = "leaderboard-"
	PointsCachePrefix      = "points-"
	SummaryCachePrefix     = "attendance-summary-"
)

// invalidatingTables are the tables the cached statistics are derived from.
var invalidatingTables = []string{
	clubstore.Users,
	clubstore.Attendance,
	clubstore.Badges,
}

// EngineCache holds the caches for computed statistics.
type EngineCache struct {
	LeaderboardCache *PrefixedCache[[]models.LeaderboardEntry]
	PointsCache      *PrefixedCache[int]
	SummaryCache     *PrefixedCache[models.AttendanceSummary]

	ttl time.Duration
}

// NewEngineCache creates the statistics caches. Entries live for ttl.
func NewEngineCache(cfg *config.CacheConfig, ttl time.Duration) (*EngineCache, error) {
	if cfg == nil {
		cfg = &config.CacheConfig{Type: config.CacheTypeMemory}
	}
	return &EngineCache{
		LeaderboardCache: NewPrefixedCache[[]models.LeaderboardEntry](
			newCacheInstanceByType(cfg),
			cfg.Type,
			LeaderboardCachePrefix,
		),
		PointsCache: NewPrefixedCache[int](
			newCacheInstanceByType(cfg),
			cfg.Type,
			PointsCachePrefix,
		),
		SummaryCache: NewPrefixedCache[models.AttendanceSummary](
			newCacheInstanceByType(cfg),
			cfg.Type,
			SummaryCachePrefix,
		),
		ttl: ttl,
	}, nil
}

// Options returns the store options applied to every cached statistic.
func (e *EngineCache) Options() []store.Option {
	if e == nil || e.ttl <= 0 {
		return nil
	}
	return []store.Option{store.WithExpiration(e.ttl)}
}

// ClearAll empties every cache.
func (e *EngineCache) ClearAll(ctx context.Context) {
	if e == nil {
		return
	}
	var g errgroup.Group
	g.Go(func() error { return e.LeaderboardCache.Clear(ctx) })
	g.Go(func() error { return e.PointsCache.Clear(ctx) })
	g.Go(func() error { return e.SummaryCache.Clear(ctx) })
	if err := g.Wait(); err != nil {
		log.Errorf("failed to clear cache: %v", err)
	}
}

// Invalidate is a store observer that drops cached statistics when one of
// their source tables changes.
func (e *EngineCache) Invalidate(ctx context.Context, change clubstore.Change) {
	if !slices.Contains(invalidatingTables, change.Table) {
		return
	}
	log.Debug("invalidating statistics cache", "table", change.Table, "kind", change.Kind)
	e.ClearAll(ctx)
}

// Stats are the hit/miss counters of one named cache.
type Stats struct {
	*codec.Stats
	CacheName string `json:"cacheName"`
}

// GetStats returns the statistics of all caches.
func (e *EngineCache) GetStats() []*Stats {
	if e == nil {
		return nil
	}
	return []*Stats{
		{
			Stats:     e.LeaderboardCache.GetStats(),
			CacheName: "leaderboard",
		},
		{
			Stats:     e.PointsCache.GetStats(),
			CacheName: "points",
		},
		{
			Stats:     e.SummaryCache.GetStats(),
			CacheName: "attendance-summary",
		},
	}
}

// GetOrLoad returns the cached value for key or computes, stores and returns it.
// Cache failures are logged and never fail the caller.
func GetOrLoad[T any](ctx context.Context, e *EngineCache, c *PrefixedCache[T], key string, load func() (T, error)) (T, error) {
	if e == nil || c == nil {
		return load()
	}
	if v, err := c.Get(ctx, key); err == nil {
		return v, nil
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	if err := c.Set(ctx, key, v, e.Options()...); err != nil {
		log.Warn("failed to cache value", "key", key, "error", err)
	}
	return v, nil
}
