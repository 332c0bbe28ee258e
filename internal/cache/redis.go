package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, log: log}
}

func userKey(userID int64) string {
	return fmt.Sprintf("user:auth:%d", userID)
}

// Redisの障害はミス扱い（DBを見に行く）
func (c *RedisCache) Get(ctx context.Context, userID int64) (CachedUser, bool) {
	data, err := c.client.Get(ctx, userKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedUser{}, false
	}
	if err != nil {
		c.log.Warn("user cache get failed", zap.Int64("user_id", userID), zap.Error(err))
		return CachedUser{}, false
	}

	var u CachedUser
	if err := json.Unmarshal(data, &u); err != nil {
		c.log.Warn("user cache decode failed", zap.Int64("user_id", userID), zap.Error(err))
		return CachedUser{}, false
	}
	return u, true
}

func (c *RedisCache) Set(ctx context.Context, userID int64, u CachedUser) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, userKey(userID), data, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, userID int64) error {
	return c.client.Del(ctx, userKey(userID)).Err()
}
