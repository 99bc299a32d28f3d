// Package main provides the main entry point for the civic reporting backend server.
// It sets up the HTTP server, backing services, middleware, and API routes.
package main

import (
	"context"
	"errors"
	"fmt"
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
	contextutils "civicapp/internal/utils"
	"civicapp/internal/version"
)

// Application encapsulates the main application logic and can be tested
type Application struct {
	container di.ServiceContainerInterface
	server    *http.Server
}

// NewApplication creates a new application instance
func NewApplication(container di.ServiceContainerInterface) (*Application, error) {
	reportService, err := container.GetReportService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get report service")
	}

	engagementService, err := container.GetEngagementService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get engagement service")
	}

	statsService, err := container.GetStatsService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get stats service")
	}

	userService, err := container.GetUserService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get user service")
	}

	cfg := container.GetConfig()
	router := handlers.NewRouter(
		cfg,
		reportService,
		engagementService,
		statsService,
		userService,
		container.GetImageStore(),
		middleware.NewTokenVerifier(cfg.Auth),
		container.GetNotificationWorker(),
		container.GetLogger(),
	)

	return &Application{
		container: container,
		server: &http.Server{
			Addr:              ":" + cfg.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves HTTP until ctx is cancelled or the listener fails
func (a *Application) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErr:
		return contextutils.WrapError(err, "server failed")
	}
}

// Shutdown stops accepting requests, waits for in-flight ones and then releases the services
func (a *Application) Shutdown(ctx context.Context) error {
	if err := a.server.Shutdown(ctx); err != nil {
		return contextutils.WrapError(err, "http server shutdown failed")
	}
	return a.container.Shutdown(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg.OpenTelemetry.ServiceVersion = version.Version

	providers, err := observability.SetupObservability(&cfg.OpenTelemetry, handlers.ServiceName, cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	logger := providers.Logger
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "Error shutting down telemetry providers", map[string]interface{}{"error": err.Error()})
		}
	}()

	logger.Info(ctx, "Starting civic backend service", map[string]interface{}{
		"port":          cfg.Server.Port,
		"logLevel":      cfg.Server.LogLevel,
		"queue_backend": cfg.Queue.Backend,
		"version":       version.Version,
	})

	container := di.NewServiceContainer(cfg, logger)
	if err := container.Initialize(ctx); err != nil {
		logger.Error(ctx, "Failed to initialize services", err)
		os.Exit(1)
	}

	app, err := NewApplication(container)
	if err != nil {
		logger.Error(ctx, "Failed to create application", err)
		_ = container.Shutdown(context.Background())
		os.Exit(1)
	}

	runErr := app.Run(ctx)
	if runErr != nil {
		logger.Error(ctx, "Application failed", runErr)
	} else {
		logger.Info(ctx, "Received shutdown signal, shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "Error during application shutdown", err)
		os.Exit(1)
	}
	if runErr != nil {
		os.Exit(1)
	}

	logger.Info(shutdownCtx, "Shutdown completed successfully")
}
