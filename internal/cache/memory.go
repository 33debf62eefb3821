package cache

import (
	"context"
	"sync"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/market"
)

// MemoryCache is a process-local Cache guarded by a RWMutex.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

// Get returns the entry stored under key, if any.
func (c *MemoryCache) Get(_ context.Context, key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	return e, ok
}

// Put stores a copy of entry under key.
func (c *MemoryCache) Put(_ context.Context, key string, entry Entry) {
	snapshot := Entry{
		Listings: append([]market.Listing(nil), entry.Listings...),
		StoredAt: entry.StoredAt,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = snapshot
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Clear removes every entry.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry)
}
