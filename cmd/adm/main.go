// Package main provides the main entry point for the civic reporting admin CLI tool.
package main

import (
	"context"
	"fmt"
	"os"

	"civicapp/cmd/adm/commands"
	"civicapp/internal/config"
	"civicapp/internal/database"
	"civicapp/internal/middleware"
	"civicapp/internal/observability"
	"civicapp/internal/services"

	"github.com/spf13/cobra"
)

func main() {
	ctx := context.Background()

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// The admin tool only logs errors and never exports telemetry
	cfg.Server.LogLevel = "error"
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	providers, err := observability.SetupObservability(&cfg.OpenTelemetry, "civic-admin", cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	logger := providers.Logger
	defer func() { _ = providers.Shutdown(ctx) }()

	db, err := database.NewManager(logger).InitDBWithoutMigrations(cfg.Database)
	if err != nil {
		logger.Error(ctx, "Failed to connect to database", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Warning: failed to close database connection", map[string]interface{}{"error": err.Error()})
		}
	}()

	userService := services.NewUserServiceWithLogger(db, logger)

	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "Civic Reporting Administration Tool",
		Long: `Civic Reporting Administration Tool

Commands for user management, schema migrations and the dashboard cache.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}

	rootCmd.AddCommand(commands.UserCommands(userService, middleware.NewTokenVerifier(cfg.Auth), logger))
	rootCmd.AddCommand(commands.DatabaseCommands(cfg, logger, db))
	rootCmd.AddCommand(commands.CacheCommands(cfg, logger))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
