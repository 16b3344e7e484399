package memory

import (
	"context"
	"sync"

	"rentsync/internal/app/resolver"
)

// LookupCache keeps conversation lookup windows in process memory.
type LookupCache struct {
	mu    sync.RWMutex
	items map[string]resolver.CacheEntry
}

func NewLookupCache() *LookupCache {
	return &LookupCache{items: make(map[string]resolver.CacheEntry)}
}

func (c *LookupCache) Get(ctx context.Context, key string) (resolver.CacheEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.items[key]
	return entry, ok, nil
}

func (c *LookupCache) Put(ctx context.Context, entry resolver.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[entry.Key] = entry
	return nil
}

func (c *LookupCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

var _ resolver.CacheStore = (*LookupCache)(nil)
