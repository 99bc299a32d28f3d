package cache

import (
	"context"
	"sync"
	"time"

	"civicapp/internal/models"
)

type memoryEntry struct {
	stats     models.DashboardStats
	expiresAt time.Time
}

// MemoryCache is an in-process AggregateCache. Expiry is checked lazily on Get.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithClock(time.Now)
}

// NewMemoryCacheWithClock creates an in-memory cache that reads time from now
func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

// Get returns a copy of the cached snapshot if present and unexpired
func (c *MemoryCache) Get(_ context.Context, key string) (*models.DashboardStats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}

	stats := cloneStats(entry.stats)
	return &stats, true, nil
}

// Put stores a copy of stats until ttl elapses; a non-positive ttl stores nothing
func (c *MemoryCache) Put(_ context.Context, key string, stats *models.DashboardStats, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 || stats == nil {
		delete(c.entries, key)
		return nil
	}
	c.entries[key] = memoryEntry{
		stats:     cloneStats(*stats),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Invalidate removes the entry for key
func (c *MemoryCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

func cloneStats(s models.DashboardStats) models.DashboardStats {
	s.CategoryDistribution = append([]models.CategoryCount(nil), s.CategoryDistribution...)
	return s
}
