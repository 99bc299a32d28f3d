// Package serviceinterfaces holds the contracts the service container uses to
// start and stop long-running components such as notification workers.
package serviceinterfaces

import (
	"context"
)

// Lifecycle is a background component started after the services are wired and
// stopped before the database, cache and queue connections are released
type Lifecycle interface {
	Startup(ctx context.Context) error
	Shutdown(ctx context.Context) error
	IsReady() bool
}

// Drainer is a Lifecycle that can finish its buffered work before stopping.
// The container prefers Drain over Shutdown once the in-process queue is closed.
type Drainer interface {
	Lifecycle
	Drain(ctx context.Context) error
}
