// Package commands provides CLI commands for the admin tool
package commands

import (
	"bufio"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"civicapp/internal/config"
	"civicapp/internal/database"
	"civicapp/internal/models"
	"civicapp/internal/observability"
	"civicapp/internal/services"
	contextutils "civicapp/internal/utils"

	"github.com/spf13/cobra"
)

// DatabaseCommands returns the database management commands
func DatabaseCommands(cfg *config.Config, logger *observability.Logger, db *sql.DB) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the civic reporting service.

Available commands:
  migrate   - Apply pending schema migrations
  stats     - Show report counts per status
  reset     - Delete all users, reports, votes and comments`,
	}

	dbCmd.AddCommand(migrateCmd(cfg, logger))
	dbCmd.AddCommand(statsCmd(logger, db))
	dbCmd.AddCommand(resetCmd(logger, db))

	return dbCmd
}

func migrateCmd(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			dm := database.NewManager(logger)
			if err := dm.RunMigrations(ctx, cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
				logger.Error(ctx, "Migration failed", err)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations are up to date")
			return nil
		},
	}
}

func statsCmd(logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show report counts per status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			logger.Info(ctx, "Diagnostic info", map[string]interface{}{
				"config_file": os.Getenv(config.ConfigFileEnv),
				"database":    getDatabaseInfo(ctx, db),
			})

			counts, err := services.NewReportRepository(db, logger).CountByStatus(ctx)
			if err != nil {
				logger.Error(ctx, "Failed to count reports", err)
				return contextutils.WrapError(err, "failed to count reports")
			}

			out := cmd.OutOrStdout()
			total := 0
			for _, status := range models.AllStatuses {
				fmt.Fprintf(out, "%-12s %d\n", status, counts[status])
				total += counts[status]
			}
			fmt.Fprintf(out, "%-12s %d\n", "Total", total)
			return nil
		},
	}
}

// resetTables lists every application table; TRUNCATE ... CASCADE follows the foreign keys
const resetTables = "comments, votes, reports, users"

func resetCmd(logger *observability.Logger, db *sql.DB) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all users, reports, votes and comments",
		Long: `Permanently delete every row in the application tables. The schema is kept.
Intended for local development and testing only.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if !yes && !confirmReset(cmd.InOrStdin(), out) {
				fmt.Fprintln(out, "Reset cancelled.")
				return nil
			}

			logger.Info(ctx, "Resetting database", map[string]interface{}{"tables": resetTables})
			if _, err := db.ExecContext(ctx, "TRUNCATE TABLE "+resetTables+" CASCADE"); err != nil {
				logger.Error(ctx, "Database reset failed", err)
				return contextutils.WrapError(database.ClassifyError(err), "failed to reset database")
			}

			fmt.Fprintln(out, "Database reset completed.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	return cmd
}

func confirmReset(in io.Reader, out io.Writer) bool {
	reader := bufio.NewReader(in)

	for {
		fmt.Fprint(out, "Are you sure you want to reset the database? (type 'yes' to confirm): ")
		response, err := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))

		switch {
		case response == "yes":
			return true
		case response == "no" || response == "" || err != nil:
			return false
		default:
			fmt.Fprintln(out, "Please type 'yes' to confirm or 'no' to cancel.")
		}
	}
}
