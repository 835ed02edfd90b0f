package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is the L1 tier: an LRU-bounded in-process map with per-entry TTL.
// Expired entries are evicted lazily by the read that discovers them; the
// LRU bound takes care of overall size, so no background sweeper is needed.
type Memory struct {
	mu      sync.Mutex // serializes the evict-vs-set check, not the LRU itself
	entries *lru.Cache[string, memoryEntry]
}

// NewMemory creates the in-process tier with the given capacity.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	entries, _ := lru.New[string, memoryEntry](maxEntries) // errs only when size <= 0
	return &Memory{entries: entries}
}

// Get retrieves a value. A read past expiry behaves as a miss and removes
// the entry.
func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}

	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the lock so a concurrent Set of a fresh value
		// is not evicted by a stale read.
		if e, exists := c.entries.Peek(key); exists && time.Now().After(e.expiresAt) {
			c.entries.Remove(key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}

	return entry.value, true, nil
}

// Set stores a value with the given TTL. A TTL <= 0 means immediate expiry,
// which for this tier is a straight removal.
func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		c.entries.Remove(key)
		return nil
	}

	// Copy to decouple from the caller's buffer.
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	c.entries.Add(key, memoryEntry{
		value:     valueCopy,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

// Delete removes a key.
func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
	return nil
}

// Close is a no-op; there is no background goroutine to stop.
func (c *Memory) Close() error {
	return nil
}

// Len returns the number of items currently in the tier, expired or not.
func (c *Memory) Len() int {
	return c.entries.Len()
}

// Clear removes all items. Useful for tests or manual resets.
func (c *Memory) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}
