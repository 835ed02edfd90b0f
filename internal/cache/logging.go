package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"promptvector/pkg/logging"
)

// LoggingStore wraps a Store with per-operation logging.
type LoggingStore struct {
	inner Store
}

// NewLoggingStore returns a store that logs each operation with its outcome
// and latency, using the request-scoped logger from the context.
func NewLoggingStore(inner Store) Store {
	return &LoggingStore{inner: inner}
}

func (c *LoggingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, hit, err := c.inner.Get(ctx, key)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	result := "miss"
	if err != nil {
		result = "error"
	} else if hit {
		result = "hit"
	}

	fields := []zap.Field{
		zap.String("key", key),
		zap.String("cache_result", result),
		zap.Float64("latency_ms", latencyMs),
	}

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("cache_get", fields...)
	}

	return value, hit, err
}

func (c *LoggingStore) Set(ctx context.Context, key string, value []byte) error {
	return c.logSet(ctx, key, func() error {
		return c.inner.Set(ctx, key, value)
	})
}

func (c *LoggingStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.logSet(ctx, key, func() error {
		return c.inner.SetWithTTL(ctx, key, value, ttl)
	})
}

func (c *LoggingStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := c.inner.Delete(ctx, key)

	logger := logging.L(ctx)
	fields := []zap.Field{
		zap.String("key", key),
		zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000.0),
	}
	if err != nil {
		logger.Error("cache_delete", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("cache_delete", fields...)
	}
	return err
}

func (c *LoggingStore) logSet(ctx context.Context, key string, op func() error) error {
	start := time.Now()
	err := op()

	logger := logging.L(ctx)
	fields := []zap.Field{
		zap.String("key", key),
		zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000.0),
	}
	if err != nil {
		logger.Error("cache_set", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("cache_set", fields...)
	}
	return err
}
