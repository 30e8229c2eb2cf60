package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"pizzatruck/backend/internal/domain"
)

const currentStockKey = "pizzatruck:stock:current"

type RedisStockCache struct {
	client *redis.Client
	key    string
}

func NewRedisStockCache(addr string, password string, db int) *RedisStockCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStockCache{client: client, key: currentStockKey}
}

func (c *RedisStockCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisStockCache) Close() error {
	return c.client.Close()
}

func (c *RedisStockCache) Get(ctx context.Context) ([]domain.StockLevel, bool, error) {
	val, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var levels []domain.StockLevel
	if err := json.Unmarshal(val, &levels); err != nil {
		return nil, false, err
	}
	return levels, true, nil
}

func (c *RedisStockCache) Set(ctx context.Context, levels []domain.StockLevel, ttl time.Duration) error {
	if levels == nil {
		levels = []domain.StockLevel{}
	}
	payload, err := json.Marshal(levels)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, payload, ttl).Err()
}

func (c *RedisStockCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
