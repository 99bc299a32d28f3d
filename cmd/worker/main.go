// Package main provides the entry point for the civic notification worker service.
// It consumes notification tasks from RabbitMQ and exposes a small admin API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civicapp/internal/config"
	"civicapp/internal/di"
	"civicapp/internal/handlers"
	"civicapp/internal/middleware"
	"civicapp/internal/observability"
	"civicapp/internal/services"
	"civicapp/internal/version"
	"civicapp/internal/worker"

	"github.com/gin-gonic/gin"
)

const serviceName = "civic-worker"

// fatalIfErr logs the error with context and panics with a consistent message
func fatalIfErr(ctx context.Context, logger *observability.Logger, msg string, err error, fields map[string]interface{}) {
	logger.Error(ctx, msg, err, fields)
	panic(msg + ": " + err.Error())
}

func newRouter(cfg *config.Config, w *worker.Worker, users services.UserServiceInterface, logger *observability.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.ErrorRecoveryMiddleware(logger, nil))
	router.Use(observability.GinMiddleware(serviceName))
	router.Use(observability.ErrorSpanMiddleware())

	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		if !w.IsReady() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": w.GetStatus().CurrentActivity, "service": serviceName})
	})

	v1 := router.Group("/v1")
	v1.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.Info(serviceName))
	})

	workerAdmin := handlers.NewWorkerAdminHandler(w, logger)
	routeListing := handlers.NewRouteListingHandler(serviceName)

	admin := v1.Group("/admin",
		middleware.RequireAuth(middleware.NewTokenVerifier(cfg.Auth)),
		middleware.RequireAdmin(users),
	)
	{
		admin.GET("/worker/status", workerAdmin.GetWorkerStatus)
		admin.GET("/worker/logs", workerAdmin.GetWorkerLogs)
		admin.GET("/routes", routeListing.GetRouteListingJSON)
	}

	routeListing.CollectRoutes(router)
	return router
}

func main() {
	ctx := context.Background()

	cfg, err := config.NewConfig()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	cfg.OpenTelemetry.ServiceVersion = version.Version

	providers, err := observability.SetupObservability(&cfg.OpenTelemetry, serviceName, cfg.Server.LogLevel)
	if err != nil {
		panic("Failed to initialize observability: " + err.Error())
	}
	logger := providers.Logger
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn(ctx, "Error shutting down telemetry providers", map[string]interface{}{"error": err.Error()})
		}
	}()

	if cfg.Queue.Backend != config.QueueBackendRabbitMQ {
		fatalIfErr(ctx, logger, "Standalone worker requires the rabbitmq queue backend",
			errors.New("queue backend is "+cfg.Queue.Backend), map[string]interface{}{"backend": cfg.Queue.Backend})
	}

	logger.Info(ctx, "Starting civic worker service", map[string]interface{}{
		"port":     cfg.Server.WorkerPort,
		"logLevel": cfg.Server.LogLevel,
		"workers":  cfg.Queue.Workers,
		"queue":    cfg.Queue.QueueName,
	})

	container := di.NewServiceContainer(cfg, logger, di.WithoutInProcessWorker())
	if err := container.Initialize(ctx); err != nil {
		fatalIfErr(ctx, logger, "Failed to initialize services", err, nil)
	}

	userService, err := container.GetUserService()
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to get user service", err, nil)
	}

	instance, _ := os.Hostname()
	notificationWorker, err := container.NewNotificationWorker(instance)
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to create notification worker", err, nil)
	}
	if err := notificationWorker.Startup(ctx); err != nil {
		fatalIfErr(ctx, logger, "Failed to start notification worker", err, nil)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.WorkerPort,
		Handler:           newRouter(cfg, notificationWorker, userService, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(ctx, "Worker server starting", map[string]interface{}{"port": cfg.Server.WorkerPort})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatalIfErr(ctx, logger, "Failed to start worker server", err, map[string]interface{}{"port": cfg.Server.WorkerPort})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "Worker server shutting down", map[string]interface{}{"service": serviceName})

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, config.WorkerShutdownTimeout)
	defer shutdownCancel()

	// Stop consuming before the queue connection is closed by the container
	if err := notificationWorker.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "Warning: failed to shutdown worker", map[string]interface{}{"error": err.Error()})
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "Worker HTTP server forced to shutdown", map[string]interface{}{"error": err.Error()})
	}
	if err := container.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "Warning: failed to release services", map[string]interface{}{"error": err.Error()})
	}

	logger.Info(ctx, "Worker server exited", map[string]interface{}{"service": serviceName})
}
