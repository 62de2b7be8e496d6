package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"medipos/backend/internal/domain"
)

type RedisAnalyticsCache struct {
	client *redis.Client
	prefix string
}

func NewRedisAnalyticsCache(addr string, password string, db int) *RedisAnalyticsCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisAnalyticsCache{client: client, prefix: "medipos:analytics:"}
}

func (c *RedisAnalyticsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisAnalyticsCache) Close() error {
	return c.client.Close()
}

func (c *RedisAnalyticsCache) Get(ctx context.Context, key string) (*domain.SalesAnalytics, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.SalesAnalytics
	if err := json.Unmarshal(val, &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisAnalyticsCache) Set(ctx context.Context, key string, value *domain.SalesAnalytics, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, payload, ttl).Err()
}
