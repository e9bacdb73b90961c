package rates

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache реализует Cache поверх Redis
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache создает новый экземпляр RedisCache
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

// Get возвращает значение по ключу
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

// Set записывает значение с временем жизни
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}
