package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/property-geocoder/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:          "property-geocoder",
	Short:        "Hierarchical address geocoder",
	Long:         "Resolves addresses to coordinates through a shared cache, OpenStreetMap Nominatim, and Google as a paid fallback, with per-provider rate limits and circuit breakers.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
