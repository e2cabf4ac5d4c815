package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every Lanemeter key in a shared Redis.
const keyPrefix = "lanemeter:"

// RedisCache implements Cache using Redis.
// Used as the cluster-profile cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, carrierID string, key string) ([]byte, error) {
	if carrierID == "" {
		return nil, fmt.Errorf("carrierID is required")
	}

	fullKey := c.makeKey(carrierID, key)
	val, err := c.client.Get(ctx, fullKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, carrierID string, key string, value []byte, ttl time.Duration) error {
	if carrierID == "" {
		return fmt.Errorf("carrierID is required")
	}

	fullKey := c.makeKey(carrierID, key)
	return c.client.Set(ctx, fullKey, value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, carrierID string, key string) error {
	if carrierID == "" {
		return fmt.Errorf("carrierID is required")
	}

	fullKey := c.makeKey(carrierID, key)
	return c.client.Del(ctx, fullKey).Err()
}

// Flush drops every Lanemeter key. Scans instead of FLUSHDB so other
// applications sharing the Redis instance are untouched.
func (c *RedisCache) Flush(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 500).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 500 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}
	return nil
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) makeKey(carrierID, key string) string {
	return keyPrefix + carrierID + ":" + key
}
