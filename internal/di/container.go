// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"sync"

	"civicapp/internal/cache"
	"civicapp/internal/config"
	"civicapp/internal/database"
	"civicapp/internal/observability"
	"civicapp/internal/queue"
	"civicapp/internal/services"
	serviceinterfaces "civicapp/internal/services/interfaces"
	"civicapp/internal/services/mailer"
	"civicapp/internal/storage"
	contextutils "civicapp/internal/utils"
	"civicapp/internal/worker"
)

// ServiceContainerInterface defines the interface for service containers
type ServiceContainerInterface interface {
	GetService(name string) (interface{}, error)
	GetUserService() (services.UserServiceInterface, error)
	GetReportService() (services.ReportServiceInterface, error)
	GetEngagementService() (services.EngagementServiceInterface, error)
	GetStatsService() (services.StatsServiceInterface, error)
	GetNotificationService() (*services.NotificationService, error)
	GetImageStore() storage.ImageStore
	GetAggregateCache() cache.AggregateCache
	GetNotificationWorker() *worker.Worker
	GetDatabase() *sql.DB
	GetConfig() *config.Config
	GetLogger() *observability.Logger
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Option customises a ServiceContainer before Initialize
type Option func(*ServiceContainer)

// WithDatabase uses db instead of opening and migrating the configured database.
// The container does not close an injected database.
func WithDatabase(db *sql.DB) Option {
	return func(sc *ServiceContainer) { sc.db = db }
}

// WithAggregateCache overrides the configured dashboard cache
func WithAggregateCache(c cache.AggregateCache) Option {
	return func(sc *ServiceContainer) { sc.aggregateCache = c }
}

// WithImageStore overrides the configured image store
func WithImageStore(s storage.ImageStore) Option {
	return func(sc *ServiceContainer) { sc.images = s }
}

// WithMailer overrides the configured mailer
func WithMailer(m mailer.Mailer) Option {
	return func(sc *ServiceContainer) { sc.mailer = m }
}

// WithoutInProcessWorker stops the container from consuming the in-memory queue itself
func WithoutInProcessWorker() Option {
	return func(sc *ServiceContainer) { sc.skipInProcessWorker = true }
}

type namedLifecycle struct {
	name    string
	service serviceinterfaces.Lifecycle
}

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg       *config.Config
	logger    *observability.Logger
	dbManager *database.Manager
	db        *sql.DB

	aggregateCache cache.AggregateCache
	images         storage.ImageStore
	mailer         mailer.Mailer
	publisher      queue.Publisher
	consumer       queue.Consumer
	memoryQueue    *queue.MemoryQueue

	notificationWorker  *worker.Worker
	skipInProcessWorker bool

	services      map[string]interface{}
	lifecycles    []namedLifecycle
	mu            sync.RWMutex
	shutdownFuncs []func(context.Context) error
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger, opts ...Option) *ServiceContainer {
	sc := &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		services: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// Initialize sets up all services and their dependencies
func (sc *ServiceContainer) Initialize(ctx context.Context) (err error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	ctx, span := observability.TraceFunction(ctx, "di", "initialize")
	defer observability.FinishSpan(span, &err)

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"database", sc.initDatabase},
		{"aggregate cache", sc.initAggregateCache},
		{"image store", sc.initImageStore},
		{"task queue", sc.initQueue},
	}
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			_ = sc.cleanup(ctx)
			return contextutils.WrapErrorf(err, "failed to initialize %s", step.name)
		}
	}

	sc.initializeServices(ctx)

	if sc.memoryQueue != nil && !sc.skipInProcessWorker {
		w, err := sc.newNotificationWorker("api")
		if err != nil {
			_ = sc.cleanup(ctx)
			return err
		}
		sc.notificationWorker = w
		sc.lifecycles = append(sc.lifecycles, namedLifecycle{name: "notification_worker", service: w})
	}

	if err := sc.startupServices(ctx); err != nil {
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to startup services")
	}

	return nil
}

func (sc *ServiceContainer) initDatabase(_ context.Context) error {
	if sc.db != nil {
		return nil
	}

	sc.dbManager = database.NewManager(sc.logger)
	db, err := sc.dbManager.InitDB(sc.cfg.Database)
	if err != nil {
		return err
	}
	sc.db = db
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return db.Close()
	})
	return nil
}

func (sc *ServiceContainer) initAggregateCache(ctx context.Context) error {
	if sc.aggregateCache != nil {
		return nil
	}

	if sc.cfg.Redis.URL == "" {
		sc.logger.Info(ctx, "Using in-memory dashboard cache")
		sc.aggregateCache = cache.NewMemoryCache()
		return nil
	}

	redisCache, err := cache.NewRedisCache(ctx, sc.cfg.Redis.URL, sc.cfg.Redis.KeyPrefix)
	if err != nil {
		return err
	}
	sc.aggregateCache = redisCache
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return redisCache.Close()
	})
	sc.logger.Info(ctx, "Using redis dashboard cache", map[string]interface{}{
		"redis": contextutils.MaskURLCredentials(sc.cfg.Redis.URL),
	})
	return nil
}

func (sc *ServiceContainer) initImageStore(ctx context.Context) error {
	if sc.images != nil {
		return nil
	}

	if sc.cfg.Storage.Endpoint == "" {
		sc.logger.Warn(ctx, "Object storage is not configured; image uploads are disabled")
		return nil
	}

	store, err := storage.NewMinioImageStore(sc.cfg.Storage, sc.logger)
	if err != nil {
		return err
	}
	if err := store.Startup(ctx); err != nil {
		return err
	}
	sc.images = store
	return nil
}

func (sc *ServiceContainer) initQueue(ctx context.Context) error {
	if sc.publisher != nil {
		return nil
	}

	switch sc.cfg.Queue.Backend {
	case config.QueueBackendMemory:
		q := queue.NewMemoryQueue(sc.cfg.Queue.Buffer)
		sc.memoryQueue = q
		sc.publisher, sc.consumer = q, q
	case config.QueueBackendRabbitMQ:
		q, err := queue.NewRabbitQueue(sc.cfg.Queue.URL, sc.cfg.Queue.QueueName, sc.cfg.Queue.Workers, sc.logger)
		if err != nil {
			return err
		}
		sc.publisher, sc.consumer = q, q
		sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
			return q.Close()
		})
	default:
		return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityError,
			"Unknown queue backend", sc.cfg.Queue.Backend)
	}

	sc.logger.Info(ctx, "Notification queue configured", map[string]interface{}{
		"backend": sc.cfg.Queue.Backend,
		"queue":   sc.cfg.Queue.QueueName,
	})
	return nil
}

// initializeServices sets up all service dependencies
func (sc *ServiceContainer) initializeServices(_ context.Context) {
	if sc.mailer == nil {
		sc.mailer = services.CreateEmailService(sc.cfg, sc.logger)
	}

	userService := services.NewUserServiceWithLogger(sc.db, sc.logger)
	sc.services["user"] = userService

	reportRepo := services.NewReportRepository(sc.db, sc.logger)
	engagementRepo := services.NewEngagementRepository(sc.db, sc.logger)

	notificationService := services.NewNotificationService(sc.publisher, userService, reportRepo, sc.mailer,
		observability.NewNotificationMetrics(), sc.logger)
	sc.services["notification"] = notificationService

	sc.services["report"] = services.NewReportService(reportRepo, sc.aggregateCache, notificationService, sc.cfg, sc.logger)
	sc.services["engagement"] = services.NewEngagementService(engagementRepo, reportRepo, sc.cfg, sc.logger)
	sc.services["stats"] = services.NewStatsService(reportRepo, engagementRepo, sc.aggregateCache, sc.cfg,
		observability.NewDashboardMetrics(), sc.logger)
}

// NewNotificationWorker builds a worker that delivers queued notifications from the
// configured queue. It is used by the standalone worker process.
func (sc *ServiceContainer) NewNotificationWorker(instance string) (*worker.Worker, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.newNotificationWorker(instance)
}

func (sc *ServiceContainer) newNotificationWorker(instance string) (*worker.Worker, error) {
	if sc.consumer == nil {
		return nil, contextutils.WrapError(contextutils.ErrServiceUnavailable, "task queue is not initialized")
	}
	notifications, ok := sc.services["notification"].(*services.NotificationService)
	if !ok {
		return nil, contextutils.ErrorWithContextf("notification service is not initialized")
	}
	return worker.NewWorker(sc.consumer, notifications.HandleTask, sc.cfg.Queue.Workers, instance, sc.logger), nil
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetUserService returns the user service
func (sc *ServiceContainer) GetUserService() (services.UserServiceInterface, error) {
	return GetServiceAs[services.UserServiceInterface](sc, "user")
}

// GetReportService returns the report lifecycle service
func (sc *ServiceContainer) GetReportService() (services.ReportServiceInterface, error) {
	return GetServiceAs[services.ReportServiceInterface](sc, "report")
}

// GetEngagementService returns the vote and comment service
func (sc *ServiceContainer) GetEngagementService() (services.EngagementServiceInterface, error) {
	return GetServiceAs[services.EngagementServiceInterface](sc, "engagement")
}

// GetStatsService returns the listing and dashboard service
func (sc *ServiceContainer) GetStatsService() (services.StatsServiceInterface, error) {
	return GetServiceAs[services.StatsServiceInterface](sc, "stats")
}

// GetNotificationService returns the notification service
func (sc *ServiceContainer) GetNotificationService() (*services.NotificationService, error) {
	return GetServiceAs[*services.NotificationService](sc, "notification")
}

// GetImageStore returns the image store, or nil when uploads are disabled
func (sc *ServiceContainer) GetImageStore() storage.ImageStore {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.images
}

// GetAggregateCache returns the dashboard cache
func (sc *ServiceContainer) GetAggregateCache() cache.AggregateCache {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.aggregateCache
}

// GetNotificationWorker returns the in-process worker, or nil when notifications are
// consumed by a separate process
func (sc *ServiceContainer) GetNotificationWorker() *worker.Worker {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.notificationWorker
}

// GetDatabase returns the database instance
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.cleanup(ctx)
}

// startupServices starts lifecycle services in registration order
func (sc *ServiceContainer) startupServices(ctx context.Context) error {
	for _, lc := range sc.lifecycles {
		sc.logger.Info(ctx, "Starting service", map[string]interface{}{"service": lc.name})
		if err := lc.service.Startup(ctx); err != nil {
			return contextutils.WrapErrorf(err, "failed to startup service %s", lc.name)
		}
		sc.logger.Info(ctx, "Service started successfully", map[string]interface{}{"service": lc.name})
	}
	return nil
}

// cleanup handles shutdown of all services
func (sc *ServiceContainer) cleanup(ctx context.Context) error {
	var errors []error

	// Stop accepting in-process tasks so the worker can drain what is buffered
	if sc.memoryQueue != nil {
		_ = sc.memoryQueue.Close()
	}

	for i := len(sc.lifecycles) - 1; i >= 0; i-- {
		lc := sc.lifecycles[i]
		sc.logger.Info(ctx, "Shutting down service", map[string]interface{}{"service": lc.name})

		var err error
		if d, ok := lc.service.(serviceinterfaces.Drainer); ok {
			err = d.Drain(ctx)
		} else {
			err = lc.service.Shutdown(ctx)
		}
		if err != nil {
			sc.logger.Error(ctx, "Failed to shutdown service", err, map[string]interface{}{"service": lc.name})
			errors = append(errors, contextutils.WrapErrorf(err, "service %s shutdown failed", lc.name))
		} else {
			sc.logger.Info(ctx, "Service shutdown successfully", map[string]interface{}{"service": lc.name})
		}
	}
	sc.lifecycles = nil

	// Shutdown dependencies in reverse order of initialization
	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			errors = append(errors, err)
		}
	}
	sc.shutdownFuncs = nil

	if len(errors) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errors)
	}
	return nil
}
