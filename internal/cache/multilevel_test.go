package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestMultiLevelL1Only(t *testing.T) {
	c := NewMultiLevel(Config{Namespace: "test"}, nil, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	if c.Remote() != nil {
		t.Fatalf("expected no remote tier when L2 is disabled")
	}

	if err := c.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, hit, err := c.Get(ctx, "k")
	if err != nil || !hit || string(got) != "v" {
		t.Fatalf("expected hit with 'v', got hit=%v value=%q err=%v", hit, got, err)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Fatalf("expected miss after delete")
	}
}

func TestMultiLevelDegradesWhenRedisUnreachable(t *testing.T) {
	// Nothing listens on this port; construction must degrade, not fail.
	c := NewMultiLevel(Config{
		Namespace: "test",
		L2Enabled: true,
		RedisAddr: "127.0.0.1:1",
	}, nil, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	if c.Remote() != nil {
		t.Fatalf("expected no remote tier reference after degraded construction")
	}

	if err := c.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set on degraded cache failed: %v", err)
	}
	if got, hit, _ := c.Get(ctx, "k"); !hit || string(got) != "v" {
		t.Fatalf("degraded cache lost the value: hit=%v value=%q", hit, got)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete on degraded cache failed: %v", err)
	}
}

func TestMultiLevelWriteThroughAndWriteBack(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewMultiLevel(Config{
		Namespace:  "test",
		DefaultTTL: time.Minute,
		L2Enabled:  true,
		RedisAddr:  mr.Addr(),
	}, nil, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	if c.Remote() == nil {
		t.Fatalf("expected remote tier to be up")
	}

	if err := c.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Write-through: the value is in Redis under the namespaced key.
	stored, err := mr.Get("test:k")
	if err != nil {
		t.Fatalf("value not written through to redis: %v", err)
	}
	if stored != "v" {
		t.Fatalf("expected 'v' in redis, got %q", stored)
	}

	// Drop L1 and read again: the L2 hit must repopulate L1.
	c.Local().Clear()
	got, hit, err := c.Get(ctx, "k")
	if err != nil || !hit || string(got) != "v" {
		t.Fatalf("expected L2 hit, got hit=%v value=%q err=%v", hit, got, err)
	}
	if c.Local().Len() != 1 {
		t.Fatalf("expected L2 hit to write back into L1, L1 has %d entries", c.Local().Len())
	}

	// Delete removes from both tiers.
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mr.Exists("test:k") {
		t.Fatalf("expected key removed from redis")
	}
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Fatalf("expected miss after delete")
	}
}

func TestMultiLevelSurvivesL2OutageAfterInit(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewMultiLevel(Config{
		Namespace:  "test",
		DefaultTTL: time.Minute,
		L2Enabled:  true,
		RedisAddr:  mr.Addr(),
	}, nil, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Remote goes away mid-flight: operations keep working via L1.
	mr.Close()

	if err := c.Set(ctx, "k2", []byte("v2")); err != nil {
		t.Fatalf("Set with dead L2 failed: %v", err)
	}
	if got, hit, _ := c.Get(ctx, "k2"); !hit || string(got) != "v2" {
		t.Fatalf("L1 lost value during L2 outage: hit=%v value=%q", hit, got)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete with dead L2 failed: %v", err)
	}
}

func TestMultiLevelInjectedClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	c := NewMultiLevel(Config{
		Namespace: "test",
		L2Enabled: true,
	}, client, zap.NewNop())
	defer c.Close()

	if c.Remote() == nil {
		t.Fatalf("expected injected client to bring up the remote tier")
	}
}
