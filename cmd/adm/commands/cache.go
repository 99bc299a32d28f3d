package commands

import (
	"fmt"

	"civicapp/internal/cache"
	"civicapp/internal/config"
	"civicapp/internal/observability"
	contextutils "civicapp/internal/utils"

	"github.com/spf13/cobra"
)

// CacheCommands returns the dashboard cache commands
func CacheCommands(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Dashboard cache commands",
	}
	cacheCmd.AddCommand(invalidateCmd(cfg, logger))
	return cacheCmd
}

func invalidateCmd(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate",
		Short: "Drop the cached dashboard aggregates",
		Long: `Drop the cached dashboard aggregates from redis so the next dashboard
request recomputes them. The in-memory cache lives inside the server process
and is not reachable from here.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if cfg.Redis.URL == "" {
				return contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityWarn,
					"Redis is not configured", "set redis.url to use a shared dashboard cache")
			}

			redisCache, err := cache.NewRedisCache(ctx, cfg.Redis.URL, cfg.Redis.KeyPrefix)
			if err != nil {
				return err
			}
			defer func() { _ = redisCache.Close() }()

			if err := redisCache.Invalidate(ctx, cfg.Dashboard.CacheKey); err != nil {
				logger.Error(ctx, "Failed to invalidate dashboard cache", err)
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %s\n", cfg.Dashboard.CacheKey)
			return nil
		},
	}
}
