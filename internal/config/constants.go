package config

import "time"

// Timeout constants
const (
	// HTTP timeouts
	DefaultHTTPTimeout    = 60 * time.Second
	ServerShutdownTimeout = 30 * time.Second
	WorkerShutdownTimeout = 30 * time.Second

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Dependency health checks
	DependencyPingTimeout = 5 * time.Second
)

// Server defaults
const (
	DefaultServerPort     = "8080"
	DefaultWorkerPort     = "8081"
	DefaultMaxRequestBody = 32 << 20
)

// Dashboard cache defaults
const (
	DefaultDashboardCacheTTL = 5 * time.Minute
	DefaultDashboardCacheKey = "dashboard:stats"
	DefaultCacheKeyPrefix    = "civic:"
)

// Queue defaults
const (
	QueueBackendMemory   = "memory"
	QueueBackendRabbitMQ = "rabbitmq"
	DefaultQueueName     = "civic.notifications"
	DefaultQueueWorkers  = 4
	DefaultQueueBuffer   = 100
)

// Report limits
const (
	DefaultMaxImages        = 5
	DefaultMaxImageBytes    = 5 << 20
	DefaultMaxCommentLength = 2000
	DefaultPageSize         = 10
	MaxPageSize             = 100
)

// Auth defaults
const (
	DefaultAdminRole = "admin"
)

// Security configuration constants
const (
	// Content Security Policy
	DefaultCSP = "default-src 'self'; img-src 'self' data: https:;"
)
