package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/maltedev/ksa-price-scraper/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client the cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

const DefaultRedisPrefix = "price:"

type redisPayload struct {
	Result    models.FetchResult `json:"result"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// Redis shares results between processes. Redis errors are logged and
// treated as misses; the cache never fails a lookup.
type Redis struct {
	client RedisClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewRedis(client RedisClient, prefix string, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With("component", "cache", "tier", "redis"),
	}
}

func (r *Redis) redisKey(key models.CacheKey) string {
	return r.prefix + key.String()
}

func (r *Redis) Get(ctx context.Context, key models.CacheKey) (models.FetchResult, bool) {
	res, _, ok := r.lookup(ctx, key)
	return res, ok
}

func (r *Redis) lookup(ctx context.Context, key models.CacheKey) (models.FetchResult, time.Time, bool) {
	data, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("redis get failed", "key", key.String(), "error", err)
		}
		return models.FetchResult{}, time.Time{}, false
	}

	var p redisPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.logger.Warn("discarding malformed cache entry", "key", key.String(), "error", err)
		return models.FetchResult{}, time.Time{}, false
	}
	if !r.now().Before(p.ExpiresAt) {
		return models.FetchResult{}, time.Time{}, false
	}

	return p.Result, p.ExpiresAt, true
}

func (r *Redis) Put(ctx context.Context, key models.CacheKey, value models.FetchResult, ttl time.Duration) {
	if ttl <= 0 {
		ttl = r.ttl
	}

	data, err := json.Marshal(redisPayload{Result: value, ExpiresAt: r.now().Add(ttl)})
	if err != nil {
		r.logger.Warn("failed to encode cache entry", "key", key.String(), "error", err)
		return
	}

	if err := r.client.Set(ctx, r.redisKey(key), data, ttl).Err(); err != nil {
		r.logger.Warn("redis set failed", "key", key.String(), "error", err)
	}
}
