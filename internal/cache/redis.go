package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the L2 tier: a shared key/value store reached over the network.
// Entries written here are independent copies; Redis applies its own TTL.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates the Redis-backed tier. The prefix namespaces keys so
// several deployments can share one Redis.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
	}
}

func (c *Redis) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Get retrieves a value. redis.Nil is a clean miss; other errors are
// returned so the caller can log and treat them as a miss.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("context error: %w", err)
	}

	res, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	return res, true, nil
}

// Set stores a value with TTL. A TTL <= 0 stores nothing.
func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if ttl <= 0 {
		return nil
	}

	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// Delete removes a key.
func (c *Redis) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return c.client.Del(ctx, c.key(key)).Err()
}

// Ping checks whether the Redis connection is healthy.
func (c *Redis) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *Redis) Close() error {
	return c.client.Close()
}
