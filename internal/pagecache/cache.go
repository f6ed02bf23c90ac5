// Package pagecache stores rendered public pages keyed by profile and variant.
package pagecache

import (
	"context"
	"sync"
	"time"
)

// Cache holds rendered pages. Invalidate drops every variant of a profile's page and
// advances the profile's generation. Set stores a page only while the generation read
// before rendering is still current, so a render that raced an invalidation is dropped.
type Cache interface {
	Get(ctx context.Context, profileID, variant string) ([]byte, bool, error)
	Generation(ctx context.Context, profileID string) (uint64, error)
	Set(ctx context.Context, profileID, variant string, generation uint64, page []byte) error
	Invalidate(ctx context.Context, profileID string) error
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string, string) ([]byte, bool, error) { return nil, false, nil }
func (NopCache) Generation(context.Context, string) (uint64, error)        { return 0, nil }
func (NopCache) Set(context.Context, string, string, uint64, []byte) error { return nil }
func (NopCache) Invalidate(context.Context, string) error                  { return nil }

type memoryEntry struct {
	page      []byte
	expiresAt time.Time
}

// MemoryCache is an in-process Cache for single-instance deployments.
type MemoryCache struct {
	mu          sync.RWMutex
	ttl         time.Duration
	clock       func() time.Time
	entries     map[string]map[string]memoryEntry
	generations map[string]uint64
}

func NewMemoryCache(ttl time.Duration, clock func() time.Time) *MemoryCache {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryCache{
		ttl:         ttl,
		clock:       clock,
		entries:     make(map[string]map[string]memoryEntry),
		generations: make(map[string]uint64),
	}
}

func (c *MemoryCache) Get(_ context.Context, profileID, variant string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[profileID][variant]
	c.mu.RUnlock()
	if !ok || !c.clock().Before(entry.expiresAt) {
		return nil, false, nil
	}
	return append([]byte(nil), entry.page...), true, nil
}

func (c *MemoryCache) Generation(_ context.Context, profileID string) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[profileID], nil
}

func (c *MemoryCache) Set(_ context.Context, profileID, variant string, generation uint64, page []byte) error {
	if c.ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[profileID] != generation {
		return nil
	}
	variants, ok := c.entries[profileID]
	if !ok {
		variants = make(map[string]memoryEntry)
		c.entries[profileID] = variants
	}
	variants[variant] = memoryEntry{page: append([]byte(nil), page...), expiresAt: c.clock().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, profileID string) error {
	c.mu.Lock()
	delete(c.entries, profileID)
	c.generations[profileID]++
	c.mu.Unlock()
	return nil
}
