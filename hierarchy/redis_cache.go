package hierarchy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "hierarchy:"

// RedisCache shares resolved downlines across processes. Expiry is delegated
// to Redis, so no sweeper runs.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisCache connects to url and verifies the connection with PING.
func NewRedisCache(ctx context.Context, url string, ttl time.Duration, log *zap.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("hierarchy: connect redis: %w", err)
	}
	return NewRedisCacheFromClient(client, ttl, log), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, log: log}
}

// Get treats any Redis failure as a miss.
func (c *RedisCache) Get(ctx context.Context, root string) (Set, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+root).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("hierarchy cache read failed", zap.String("root", root), zap.Error(err))
		}
		return nil, false
	}

	var npns []string
	if err := json.Unmarshal(raw, &npns); err != nil {
		c.log.Warn("hierarchy cache entry corrupt", zap.String("root", root), zap.Error(err))
		return nil, false
	}
	return NewSet(npns...), true
}

func (c *RedisCache) Put(ctx context.Context, root string, set Set) {
	payload, err := json.Marshal(set.Slice())
	if err != nil {
		c.log.Warn("hierarchy cache encode failed", zap.String("root", root), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+root, payload, c.ttl).Err(); err != nil {
		c.log.Warn("hierarchy cache write failed", zap.String("root", root), zap.Error(err))
	}
}

// Clear removes every hierarchy key using SCAN so large keyspaces are not blocked.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("hierarchy: clear redis: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("hierarchy: scan redis: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("hierarchy: clear redis: %w", err)
		}
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
