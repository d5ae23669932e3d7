package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"TradingStation/internal/model"
)

// RedisConfig configures the shared bar cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Retention is how long Redis keeps an entry; validity is still judged by FetchedAt.
	Retention time.Duration
}

// RedisCache keeps cache entries in Redis so several processes can share fetched bars.
type RedisCache struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisCache connects and pings the server.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisCache{client: client, retention: retention}, nil
}

func redisKey(key model.InstrumentKey) string {
	return fmt.Sprintf("bars:%s:%s", key.Ticker, key.Timeframe)
}

func (c *RedisCache) Load(ctx context.Context, key model.InstrumentKey) (CacheEntry, bool, error) {
	data, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return CacheEntry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return entry, true, nil
}

func (c *RedisCache) Store(ctx context.Context, entry CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, redisKey(entry.Key), data, c.retention).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key model.InstrumentKey) error {
	if err := c.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
