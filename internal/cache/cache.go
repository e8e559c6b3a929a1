package cache

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"pricing-service/internal/models"
	"pricing-service/internal/util"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/invalidate_scope.lua
var invalidateScopeScript string

const (
	breakdownPrefix   = "breakdown"
	bundleIndexPrefix = "breakdown:index:bundle"
	statsHitsKey      = "cache:stats:hits"
	statsMissesKey    = "cache:stats:misses"
)

// Cache memoizes pricing breakdowns in Redis, keyed by context
// fingerprint and indexed for scoped invalidation
type Cache struct {
	rdb              *redis.Client
	ttl              time.Duration
	invalidateScript *redis.Script
}

// entry is the stored cache value
type entry struct {
	Breakdown       *models.PricingBreakdown `json:"breakdown"`
	StrategyVersion int                      `json:"strategy_version"`
	CachedAt        time.Time                `json:"cached_at"`
}

// NewCache connects to Redis and prepares the invalidation script
func NewCache(addr, password string, db int, ttl time.Duration) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Cache{
		rdb:              rdb,
		ttl:              ttl,
		invalidateScript: redis.NewScript(invalidateScopeScript),
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.rdb.Close()
}

func valueKey(country, fingerprint string) string {
	return fmt.Sprintf("%s:%s:%s", breakdownPrefix, country, fingerprint)
}

func bundleIndexKey(bundleID string) string {
	return fmt.Sprintf("%s:%s", bundleIndexPrefix, bundleID)
}

// Get returns the cached breakdown for a fingerprint, annotated with
// FromCache. Expired entries are never served (Redis TTL).
func (c *Cache) Get(ctx context.Context, country, fingerprint string) (*models.PricingBreakdown, bool, error) {
	raw, err := c.rdb.Get(ctx, valueKey(country, fingerprint)).Bytes()
	if err == redis.Nil {
		util.CacheMissesTotal.Inc()
		c.rdb.Incr(ctx, statsMissesKey)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache read failed: %w", err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("cache entry corrupt: %w", err)
	}

	util.CacheHitsTotal.Inc()
	c.rdb.Incr(ctx, statsHitsKey)

	b := *e.Breakdown
	b.FromCache = true
	return &b, true, nil
}

// Set stores a breakdown and registers it in the bundle index so it can
// be invalidated by bundle id later
func (c *Cache) Set(ctx context.Context, country, fingerprint string, b *models.PricingBreakdown, strategyVersion int) error {
	raw, err := json.Marshal(entry{
		Breakdown:       b,
		StrategyVersion: strategyVersion,
		CachedAt:        time.Now(),
	})
	if err != nil {
		return fmt.Errorf("cache entry marshal failed: %w", err)
	}

	key := valueKey(country, fingerprint)
	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, key, raw, c.ttl)
	idx := bundleIndexKey(b.BundleID)
	pipe.SAdd(ctx, idx, key)
	pipe.Expire(ctx, idx, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

// InvalidateByBundle removes all cached breakdowns priced from a bundle
func (c *Cache) InvalidateByBundle(ctx context.Context, bundleID string) (int, error) {
	idx := bundleIndexKey(bundleID)
	keys, err := c.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("bundle index read failed: %w", err)
	}
	if len(keys) > 0 {
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			return 0, fmt.Errorf("bundle invalidation failed: %w", err)
		}
	}
	if err := c.rdb.Del(ctx, idx).Err(); err != nil {
		return len(keys), err
	}
	util.CacheInvalidationsTotal.WithLabelValues(models.ScopeBundle).Inc()
	return len(keys), nil
}

// InvalidateByCountry removes all cached breakdowns for a destination
func (c *Cache) InvalidateByCountry(ctx context.Context, country string) (int, error) {
	util.CacheInvalidationsTotal.WithLabelValues(models.ScopeCountry).Inc()
	return c.deleteByPattern(ctx, fmt.Sprintf("%s:%s:*", breakdownPrefix, country))
}

// InvalidateAll removes every cached breakdown and index entry
func (c *Cache) InvalidateAll(ctx context.Context) (int, error) {
	util.CacheInvalidationsTotal.WithLabelValues(models.ScopeGlobal).Inc()
	return c.deleteByPattern(ctx, breakdownPrefix+":*")
}

func (c *Cache) deleteByPattern(ctx context.Context, pattern string) (int, error) {
	removed, err := c.invalidateScript.Run(ctx, c.rdb, nil, pattern).Int()
	if err != nil {
		return 0, fmt.Errorf("scoped invalidation failed: %w", err)
	}
	return removed, nil
}

// CleanupExpired sweeps dangling bundle-index members whose value keys
// already expired. Idempotent on repeated calls.
func (c *Cache) CleanupExpired(ctx context.Context) (int, error) {
	var cursor uint64
	removed := 0
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, bundleIndexPrefix+":*", 200).Result()
		if err != nil {
			return removed, fmt.Errorf("cleanup scan failed: %w", err)
		}
		for _, idx := range keys {
			members, err := c.rdb.SMembers(ctx, idx).Result()
			if err != nil {
				continue
			}
			for _, member := range members {
				exists, err := c.rdb.Exists(ctx, member).Result()
				if err == nil && exists == 0 {
					if c.rdb.SRem(ctx, idx, member).Err() == nil {
						removed++
					}
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}

// Stats is a point-in-time snapshot of cache effectiveness
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Keys   int64 `json:"keys"`
}

// GetStats returns the cache stats snapshot
func (c *Cache) GetStats(ctx context.Context) (*Stats, error) {
	hits, err := c.rdb.Get(ctx, statsHitsKey).Int64()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	misses, err := c.rdb.Get(ctx, statsMissesKey).Int64()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	keys, err := c.rdb.DBSize(ctx).Result()
	if err != nil {
		return nil, err
	}
	return &Stats{Hits: hits, Misses: misses, Keys: keys}, nil
}
