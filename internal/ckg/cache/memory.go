package cache

import (
	"context"
	"sync"
	"time"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// memoryEntry is the internal storage structure for each cached payload.
type memoryEntry struct {
	Payload   []byte
	ExpiresAt time.Time
}

// MemoryCache implements Cache with an in-process sync.Map. Concurrency
// safety comes from sync.Map itself; no additional locking is layered on.
// Expired entries are dropped lazily on read.
type MemoryCache struct {
	entries sync.Map
}

// NewMemoryCache creates a new in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Get retrieves a cached payload, dropping it if the TTL has lapsed.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	value, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}

	entry := value.(*memoryEntry)
	if time.Now().After(entry.ExpiresAt) {
		c.entries.Delete(key)
		return nil, false
	}

	return entry.Payload, true
}

// Set stores a payload under the key for the given TTL.
// Non-positive TTLs store nothing.
func (c *MemoryCache) Set(_ context.Context, key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.entries.Store(key, &memoryEntry{
		Payload:   payload,
		ExpiresAt: time.Now().Add(ttl),
	})
}

// Clear removes all entries.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.entries.Range(func(key, _ any) bool {
		c.entries.Delete(key)
		return true
	})
	return nil
}

// Health always reports healthy: the cache lives in process memory.
func (c *MemoryCache) Health(_ context.Context) types.HealthStatus {
	return types.Healthy("in-process cache")
}
