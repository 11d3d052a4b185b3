// Package statscache is a Redis read-through cache in front of the match
// history store. Redis failures degrade to reading the store directly.
package statscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cory-johannsen/jobwars/internal/config"
	"github.com/cory-johannsen/jobwars/internal/stats"
)

const keyPrefix = "jobwars:stats:"

// Store is the authoritative match history.
type Store interface {
	RecordMatch(ctx context.Context, m stats.Match) (int64, error)
	RecentMatches(ctx context.Context, limit int) ([]stats.Match, error)
	PlayerMatches(ctx context.Context, playerID string, limit int) ([]stats.Match, error)
	PlayerStats(ctx context.Context, playerID string) (stats.PlayerStats, error)
	Leaderboard(ctx context.Context, limit int) ([]stats.PlayerStats, error)
	Totals(ctx context.Context) (stats.Totals, error)
}

// Cache serves reads from Redis when possible and invalidates the affected
// keys whenever a match is recorded.
type Cache struct {
	client *redis.Client
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewClient builds a Redis client from configuration.
//
// Precondition: cfg.Enabled must be true and cfg.Addr non-empty.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// New wraps store with a cache whose entries live for ttl.
//
// Precondition: client, store and logger must be non-nil; ttl must be positive.
func New(client *redis.Client, store Store, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{client: client, store: store, ttl: ttl, logger: logger}
}

func totalsKey() string { return keyPrefix + "totals" }
func leaderboardKey(limit int) string { return fmt.Sprintf("%sleaderboard:%d", keyPrefix, limit) }
func recentKey(limit int) string { return fmt.Sprintf("%srecent:%d", keyPrefix, limit) }
func playerKey(id string) string { return keyPrefix + "player:" + id }
func historyKey(id string, limit int) string {
	return fmt.Sprintf("%shistory:%s:%d", keyPrefix, id, limit)
}

// readThrough returns the cached value under key, loading and storing it on a
// miss. Cache errors are logged and answered from load.
func readThrough[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if jerr := json.Unmarshal(raw, &v); jerr == nil {
			return v, nil
		}
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("stats cache read failed", zap.String("key", key), zap.Error(err))
		return load(ctx)
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.logger.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

// RecordMatch writes through to the store and drops every key the match
// could have changed.
func (c *Cache) RecordMatch(ctx context.Context, m stats.Match) (int64, error) {
	id, err := c.store.RecordMatch(ctx, m)
	if err != nil {
		return 0, err
	}
	c.invalidate(ctx, m.Player1ID, m.Player2ID)
	return id, nil
}

func (c *Cache) invalidate(ctx context.Context, playerIDs ...string) {
	patterns := []string{keyPrefix + "leaderboard:*", keyPrefix + "recent:*"}
	keys := []string{totalsKey()}
	for _, id := range playerIDs {
		keys = append(keys, playerKey(id))
		patterns = append(patterns, keyPrefix+"history:"+id+":*")
	}
	for _, pattern := range patterns {
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			c.logger.Warn("stats cache scan failed", zap.String("pattern", pattern), zap.Error(err))
		}
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}

func (c *Cache) RecentMatches(ctx context.Context, limit int) ([]stats.Match, error) {
	return readThrough(ctx, c, recentKey(limit), func(ctx context.Context) ([]stats.Match, error) {
		return c.store.RecentMatches(ctx, limit)
	})
}

func (c *Cache) PlayerMatches(ctx context.Context, playerID string, limit int) ([]stats.Match, error) {
	return readThrough(ctx, c, historyKey(playerID, limit), func(ctx context.Context) ([]stats.Match, error) {
		return c.store.PlayerMatches(ctx, playerID, limit)
	})
}

// PlayerStats caches known players only; misses for unknown ids always reach
// the store.
func (c *Cache) PlayerStats(ctx context.Context, playerID string) (stats.PlayerStats, error) {
	return readThrough(ctx, c, playerKey(playerID), func(ctx context.Context) (stats.PlayerStats, error) {
		return c.store.PlayerStats(ctx, playerID)
	})
}

func (c *Cache) Leaderboard(ctx context.Context, limit int) ([]stats.PlayerStats, error) {
	return readThrough(ctx, c, leaderboardKey(limit), func(ctx context.Context) ([]stats.PlayerStats, error) {
		return c.store.Leaderboard(ctx, limit)
	})
}

func (c *Cache) Totals(ctx context.Context) (stats.Totals, error) {
	return readThrough(ctx, c, totalsKey(), c.store.Totals)
}
