package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/property-geocoder/internal/config"
	"github.com/sells-group/property-geocoder/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the durable geocode cache",
}

var cacheMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the cache schema for the configured backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd.Context(), cfg, func(ctx context.Context, b store.Backend) error {
			if err := b.Migrate(ctx); err != nil {
				return eris.Wrap(err, "cache migrate")
			}
			zap.L().Info("cache schema ready", zap.String("driver", cfg.Cache.Driver))
			return nil
		})
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd.Context(), cfg, func(ctx context.Context, b store.Backend) error {
			n, err := b.DeleteExpired(ctx)
			if err != nil {
				return eris.Wrap(err, "cache prune")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired entries\n", n)
			return nil
		})
	},
}

// withBackend opens the configured durable store, runs fn, and closes it.
func withBackend(ctx context.Context, c *config.Config, fn func(context.Context, store.Backend) error) error {
	if err := c.Validate("geocode"); err != nil {
		return err
	}
	b, err := openBackend(ctx, c.Cache)
	if err != nil {
		return err
	}
	if b == nil {
		return eris.Errorf("cache driver %q has no durable store", c.Cache.Driver)
	}
	defer b.Close() //nolint:errcheck

	return fn(ctx, b)
}

func init() {
	cacheCmd.AddCommand(cacheMigrateCmd, cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
