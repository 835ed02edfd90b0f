package cache

import (
	"context"
	"time"
)

// Tier is a single cache level. Implemented by the in-process memory tier
// and the Redis tier.
type Tier interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store is the surface handlers and services program against.
// Implemented by MultiLevel and the logging decorator.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Config holds the settings for the multi-level cache.
type Config struct {
	// Namespace prefixes every key stored in the remote tier.
	Namespace string

	// DefaultTTL applies when Set is called without an explicit TTL,
	// and to L1 write-backs on an L2 hit.
	DefaultTTL time.Duration

	// MaxEntries bounds the L1 tier. Zero means the default capacity.
	MaxEntries int

	// L2Enabled permits the remote tier. When false, or when the remote
	// tier fails to come up, the cache runs L1-only.
	L2Enabled     bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// WithDefaults returns a copy of Config with sane defaults applied.
func (c Config) WithDefaults() Config {
	cfg := c
	if cfg.Namespace == "" {
		cfg.Namespace = "promptvector"
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "127.0.0.1:6379"
	}
	return cfg
}
