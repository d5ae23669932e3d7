package collector

import (
	"context"
	"sync"
	"time"

	"TradingStation/internal/model"
)

// CacheEntry is the last fetched series for a key. Entries are replaced wholesale, never edited.
type CacheEntry struct {
	Key       model.InstrumentKey `json:"key"`
	Series    model.Series        `json:"series"`
	FetchedAt time.Time           `json:"fetched_at"`
}

// Valid reports whether the entry is still within ttl at now.
func (e CacheEntry) Valid(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) < ttl
}

// Cache stores one CacheEntry per instrument key.
type Cache interface {
	Load(ctx context.Context, key model.InstrumentKey) (CacheEntry, bool, error)
	Store(ctx context.Context, entry CacheEntry) error
	Delete(ctx context.Context, key model.InstrumentKey) error
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[model.InstrumentKey]CacheEntry
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[model.InstrumentKey]CacheEntry)}
}

func (c *MemoryCache) Load(_ context.Context, key model.InstrumentKey) (CacheEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok, nil
}

func (c *MemoryCache) Store(_ context.Context, entry CacheEntry) error {
	entry.Series = entry.Series.Clone()
	c.mu.Lock()
	c.entries[entry.Key] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key model.InstrumentKey) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}
