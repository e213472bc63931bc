package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"log/slog"

	"github.com/amirasaad/marketdata/pkg/cache"
	"github.com/redis/go-redis/v9"
)

// envelope is the stored shape: payload plus metadata, one JSON value per key.
type envelope struct {
	Data     json.RawMessage `json:"data"`
	Metadata cache.Metadata  `json:"metadata"`
}

// healthCheckInterval bounds how often Enabled re-pings Redis; the services
// consult Enabled on every cache read and write.
const healthCheckInterval = 30 * time.Second

// RedisCache implements cache.Client on Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger

	mu       sync.Mutex
	healthy  bool
	lastPing time.Time
}

// NewRedisCache creates a RedisCache from connection parameters.
func NewRedisCache(addr, password string, db int, prefix string, logger *slog.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: client, prefix: prefix, logger: logger}
}

// NewRedisCacheWithOptions creates a RedisCache from redis.Options.
func NewRedisCacheWithOptions(opt *redis.Options, prefix string, logger *slog.Logger) *RedisCache {
	return &RedisCache{client: redis.NewClient(opt), prefix: prefix, logger: logger}
}

func (r *RedisCache) key(key string) string {
	return r.prefix + key
}

func (r *RedisCache) Get(ctx context.Context, key string, dest any) (cache.Metadata, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		r.logger.Debug("Redis cache miss", "key", key)
		return cache.Metadata{}, false, nil
	}
	if err != nil {
		r.logger.Error("Redis cache get error", "key", key, "error", err)
		return cache.Metadata{}, false, err
	}

	var env envelope
	if err := json.Unmarshal([]byte(val), &env); err != nil {
		r.logger.Error("Redis cache unmarshal error", "key", key, "error", err)
		return cache.Metadata{}, false, err
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return cache.Metadata{}, false, err
	}
	return env.Metadata, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value any, meta cache.Metadata, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope{Data: data, Metadata: meta})
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(key), payload, ttl).Err(); err != nil {
		r.logger.Error("Redis cache set error", "key", key, "error", err)
		return err
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Enabled reports whether Redis answers a ping. The verdict is memoized for
// healthCheckInterval so steady-state requests don't pay a ping round trip on
// every cache access.
func (r *RedisCache) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now := time.Now(); now.Sub(r.lastPing) >= healthCheckInterval {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		r.healthy = r.client.Ping(ctx).Err() == nil
		cancel()
		r.lastPing = now
		if !r.healthy {
			r.logger.Warn("Redis unreachable, cache disabled until next health check")
		}
	}
	return r.healthy
}

var _ cache.Client = (*RedisCache)(nil)
