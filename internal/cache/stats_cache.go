// Package cache keeps computed stats snapshots in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/stats"
)

const statsKey = "support-desk:stats:v1"

// Client is the subset of go-redis used by the cache.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// StatsCache stores the last stats snapshot with a TTL. A nil client or a
// zero TTL disables caching; every lookup is then a miss.
type StatsCache struct {
	client  Client
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewStatsCache builds a cache. client may be nil.
func NewStatsCache(client Client, ttl time.Duration, metrics *observability.Metrics, logger *zap.Logger) *StatsCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsCache{client: client, ttl: ttl, metrics: metrics, logger: logger}
}

// Enabled reports whether lookups can ever hit.
func (c *StatsCache) Enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Get returns the cached snapshot. Redis failures are logged and reported
// as a miss so callers fall back to computing.
func (c *StatsCache) Get(ctx context.Context) (*stats.Stats, bool) {
	if !c.Enabled() {
		return nil, false
	}
	raw, err := c.client.Get(ctx, statsKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("stats cache read failed", zap.Error(err))
		}
		c.metrics.RecordCacheLookup(false)
		return nil, false
	}
	var snapshot stats.Stats
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		c.logger.Warn("stats cache entry is corrupt", zap.Error(err))
		c.metrics.RecordCacheLookup(false)
		return nil, false
	}
	c.metrics.RecordCacheLookup(true)
	return &snapshot, true
}

// Set stores snapshot for the configured TTL.
func (c *StatsCache) Set(ctx context.Context, snapshot stats.Stats) error {
	if !c.Enabled() {
		return nil
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statsKey, raw, c.ttl).Err()
}

// Invalidate drops the cached snapshot.
func (c *StatsCache) Invalidate(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Del(ctx, statsKey).Err()
}
