// Package cache stores computed dashboard aggregates with a time-to-live.
package cache

import (
	"context"
	"time"

	"civicapp/internal/models"
)

// AggregateCache is a keyed, expiring store for dashboard snapshots.
// Get only returns entries that have not expired; Invalidate is idempotent.
type AggregateCache interface {
	Get(ctx context.Context, key string) (*models.DashboardStats, bool, error)
	Put(ctx context.Context, key string, stats *models.DashboardStats, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}
