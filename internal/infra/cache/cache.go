package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/receiptly/receipts-service/config"
)

// ErrMiss is returned when a key is absent or the cache is unavailable.
var ErrMiss = errors.New("cache miss")

// Cache is a small JSON cache in front of the analytics aggregations.
// Failures are logged and reported as misses; the cache is never load-bearing.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Username: cfg.RedisUser,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDb,
	})

	return &Cache{
		client: client,
		ttl:    cfg.CacheTTL(),
		logger: logger,
	}
}

// Get unmarshals the cached value for key into dest.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return ErrMiss
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("cache entry corrupt", slog.String("key", key), slog.String("error", err.Error()))
		return ErrMiss
	}

	return nil
}

// Set stores value under key with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache marshal failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}

	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// InvalidateUser drops all cached analytics entries for a user. Called after
// any mutation of that user's receipts.
func (c *Cache) InvalidateUser(ctx context.Context, userID uuid.UUID) {
	iter := c.client.Scan(ctx, 0, "analytics:"+userID.String()+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("cache invalidation failed", slog.String("key", iter.Val()), slog.String("error", err.Error()))
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("cache scan failed", slog.String("user_id", userID.String()), slog.String("error", err.Error()))
	}
}

func (c *Cache) Close() error {
	return c.client.Close()
}
