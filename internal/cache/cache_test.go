package cache

import (
	"context"
	"testing"
	"time"

	"civicapp/internal/models"
	contextutils "civicapp/internal/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStats() *models.DashboardStats {
	return &models.DashboardStats{
		Total:             5,
		Pending:           2,
		InProgress:        1,
		Fixed:             1,
		Rejected:          1,
		AvgResolutionDays: 2.5,
		CategoryDistribution: []models.CategoryCount{
			{Category: "Pothole", Count: 3},
			{Category: "Streetlight", Count: 2},
		},
	}
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestMemoryCache_GetPutInvalidate(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryCacheWithClock(clock.Now)

	_, found, err := c.Get(ctx, "stats")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Put(ctx, "stats", sampleStats(), time.Minute))

	got, found, err := c.Get(ctx, "stats")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sampleStats(), got)

	require.NoError(t, c.Invalidate(ctx, "stats"))
	_, found, _ = c.Get(ctx, "stats")
	assert.False(t, found)

	// Idempotent
	assert.NoError(t, c.Invalidate(ctx, "stats"))
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryCacheWithClock(clock.Now)

	require.NoError(t, c.Put(ctx, "stats", sampleStats(), 5*time.Minute))

	clock.now = clock.now.Add(5*time.Minute - time.Second)
	_, found, _ := c.Get(ctx, "stats")
	assert.True(t, found)

	clock.now = clock.now.Add(time.Second)
	_, found, _ = c.Get(ctx, "stats")
	assert.False(t, found)
}

func TestMemoryCache_ZeroTTLStoresNothing(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	require.NoError(t, c.Put(ctx, "stats", sampleStats(), time.Minute))
	require.NoError(t, c.Put(ctx, "stats", sampleStats(), 0))

	_, found, err := c.Get(ctx, "stats")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	stats := sampleStats()
	require.NoError(t, c.Put(ctx, "stats", stats, time.Minute))
	stats.CategoryDistribution[0].Count = 99

	got, _, _ := c.Get(ctx, "stats")
	assert.Equal(t, 3, got.CategoryDistribution[0].Count)
	got.CategoryDistribution[0].Count = 42

	again, _, _ := c.Get(ctx, "stats")
	assert.Equal(t, 3, again.CategoryDistribution[0].Count)
}

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewRedisCache(context.Background(), "redis://"+s.Addr(), "civic:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestRedisCache_GetPutInvalidate(t *testing.T) {
	c, s := setupTestRedis(t)
	ctx := context.Background()

	_, found, err := c.Get(ctx, "dashboard:stats")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Put(ctx, "dashboard:stats", sampleStats(), time.Minute))
	assert.True(t, s.Exists("civic:dashboard:stats"))

	got, found, err := c.Get(ctx, "dashboard:stats")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sampleStats(), got)

	require.NoError(t, c.Invalidate(ctx, "dashboard:stats"))
	assert.False(t, s.Exists("civic:dashboard:stats"))
	assert.NoError(t, c.Invalidate(ctx, "dashboard:stats"))
}

func TestRedisCache_Expiry(t *testing.T) {
	c, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "stats", sampleStats(), 5*time.Minute))
	assert.Equal(t, 5*time.Minute, s.TTL("civic:stats"))

	s.FastForward(5*time.Minute + time.Second)

	_, found, err := c.Get(ctx, "stats")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache_ZeroTTLRemovesEntry(t *testing.T) {
	c, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "stats", sampleStats(), time.Minute))
	require.NoError(t, c.Put(ctx, "stats", sampleStats(), 0))
	assert.False(t, s.Exists("civic:stats"))
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	c, s := setupTestRedis(t)
	require.NoError(t, s.Set("civic:stats", "{not json"))

	_, found, err := c.Get(context.Background(), "stats")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache_UnavailableIsRetryable(t *testing.T) {
	c, s := setupTestRedis(t)
	s.Close()

	_, _, err := c.Get(context.Background(), "stats")
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrCacheUnavailable))
	assert.True(t, contextutils.IsRetryable(err))
}

func TestNewRedisCache_Errors(t *testing.T) {
	_, err := NewRedisCache(context.Background(), "not a url", "civic:")
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidFormat))

	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()
	_, err = NewRedisCache(context.Background(), "redis://"+addr, "civic:")
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrCacheUnavailable))
}
