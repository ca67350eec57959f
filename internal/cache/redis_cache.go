package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kedaipos/backend/internal/domain"
)

type RedisSnapshotCache struct {
	client *redis.Client
}

func NewRedisSnapshotCache(addr string, password string, db int) *RedisSnapshotCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSnapshotCache{client: client}
}

func (c *RedisSnapshotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSnapshotCache) Close() error {
	return c.client.Close()
}

func snapshotKey(productID string) string {
	return "snapshot:product:" + productID
}

func (c *RedisSnapshotCache) Get(ctx context.Context, productID string) (*domain.ProductSnapshot, bool, error) {
	val, err := c.client.Get(ctx, snapshotKey(productID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var snapshot domain.ProductSnapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, false, err
	}
	return &snapshot, true, nil
}

func (c *RedisSnapshotCache) Set(ctx context.Context, productID string, snapshot *domain.ProductSnapshot, ttl time.Duration) error {
	if snapshot == nil {
		return nil
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey(productID), payload, ttl).Err()
}

func (c *RedisSnapshotCache) Invalidate(ctx context.Context, productID string) error {
	return c.client.Del(ctx, snapshotKey(productID)).Err()
}
