package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"promptvector/internal/metrics"
)

// MultiLevel fronts expensive operations with an in-process tier (L1) and
// an optional shared Redis tier (L2). L1 is authoritative for this process;
// L2 writes are best-effort. If L2 cannot be constructed or pinged, the
// cache silently runs L1-only.
type MultiLevel struct {
	cfg        Config
	instanceID string
	l1         *Memory
	l2         *Redis // nil when absent or degraded
	logger     *zap.Logger
}

const l2PingTimeout = 3 * time.Second

// NewMultiLevel constructs the cache. When cfg.L2Enabled is set and
// redisClient is nil, a client is built from the config. Any failure to
// construct or reach the remote tier is logged, never returned: the cache
// comes up L1-only and callers see no error.
func NewMultiLevel(cfg Config, redisClient *redis.Client, logger *zap.Logger) *MultiLevel {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &MultiLevel{
		cfg:        cfg,
		instanceID: uuid.NewString(),
		l1:         NewMemory(cfg.MaxEntries),
		logger:     logger.Named("cache"),
	}

	if !cfg.L2Enabled {
		return c
	}

	ownsClient := false
	if redisClient == nil {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ownsClient = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), l2PingTimeout)
	defer cancel()

	l2 := NewRedis(redisClient, cfg.Namespace)
	if err := l2.Ping(ctx); err != nil {
		metrics.CacheDegradedTotal.Inc()
		c.logger.Warn("remote cache tier unavailable, running L1-only",
			zap.String("instance_id", c.instanceID),
			zap.String("redis_addr", cfg.RedisAddr),
			zap.Error(err),
		)
		if ownsClient {
			_ = redisClient.Close()
		}
		return c
	}

	c.l2 = l2
	c.logger.Info("remote cache tier connected",
		zap.String("instance_id", c.instanceID),
		zap.String("redis_addr", cfg.RedisAddr),
	)
	return c
}

// Get checks L1 first; on a miss it consults L2 and, on an L2 hit, writes
// the value back into L1 with the default TTL. L2 errors are logged and
// treated as a miss.
func (c *MultiLevel) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if value, hit, _ := c.l1.Get(ctx, key); hit {
		metrics.CacheLookupsTotal.WithLabelValues("l1", "hit").Inc()
		return value, true, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("l1", "miss").Inc()

	if c.l2 == nil {
		return nil, false, nil
	}

	value, hit, err := c.l2.Get(ctx, key)
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("l2", "error").Inc()
		c.logger.Warn("L2 get failed, treating as miss",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, false, nil
	}
	if !hit {
		metrics.CacheLookupsTotal.WithLabelValues("l2", "miss").Inc()
		return nil, false, nil
	}

	metrics.CacheLookupsTotal.WithLabelValues("l2", "hit").Inc()
	_ = c.l1.Set(ctx, key, value, c.cfg.DefaultTTL)
	return value, true, nil
}

// Set stores with the default TTL.
func (c *MultiLevel) Set(ctx context.Context, key string, value []byte) error {
	return c.SetWithTTL(ctx, key, value, c.cfg.DefaultTTL)
}

// SetWithTTL writes to L1 unconditionally, then to L2 best-effort.
// An L2 failure never fails the call or touches the L1 write.
func (c *MultiLevel) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, ttl); err != nil {
		return err
	}

	if c.l2 != nil {
		if err := c.l2.Set(ctx, key, value, ttl); err != nil {
			c.logger.Warn("L2 set failed, value kept in L1 only",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Delete removes from L1 and, best-effort, from L2.
func (c *MultiLevel) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}

	if c.l2 != nil {
		if err := c.l2.Delete(ctx, key); err != nil {
			c.logger.Warn("L2 delete failed",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
	return nil
}

// GenerateKey builds the canonical key under this cache's namespace.
func (c *MultiLevel) GenerateKey(subject, operation, version string, limit int) string {
	return GenerateKey(c.cfg.Namespace, subject, operation, version, limit)
}

// Local returns the in-process tier.
func (c *MultiLevel) Local() *Memory {
	return c.l1
}

// Remote returns the Redis tier, or nil when disabled or degraded.
func (c *MultiLevel) Remote() *Redis {
	return c.l2
}

// InstanceID identifies this cache instance in logs.
func (c *MultiLevel) InstanceID() string {
	return c.instanceID
}

// Close releases tier resources.
func (c *MultiLevel) Close() error {
	_ = c.l1.Close()
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}
