package main

import (
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/property-geocoder/pkg/geocode"
)

var (
	geocodeOutput  string
	geocodeGeoJSON bool
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode <address> [address...]",
	Short: "Geocode one or more addresses",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initGeocoder(ctx, cfg, "geocode")
		if err != nil {
			return err
		}
		defer env.Close()

		addresses := make([]string, len(args))
		for i, a := range args {
			addresses[i] = strings.TrimSpace(a)
		}

		// Zero options take the configured batch defaults.
		results, err := env.Geocoder.GeocodeBatch(ctx, addresses, geocode.BatchOptions{})
		if err != nil {
			return err
		}

		stats := env.Geocoder.Stats()
		zap.L().Info("geocode complete",
			zap.Int("addresses", len(addresses)),
			zap.Int64("cache_hits", stats.CacheHits),
			zap.Int64("failures", stats.Failures),
		)
		return writeResults(cmd.OutOrStdout(), addresses, results, geocodeOutput, geocodeGeoJSON)
	},
}

func init() {
	geocodeCmd.Flags().StringVarP(&geocodeOutput, "output", "o", outputJSON, "output format: json or yaml")
	geocodeCmd.Flags().BoolVar(&geocodeGeoJSON, "geojson", false, "write a GeoJSON FeatureCollection")
	rootCmd.AddCommand(geocodeCmd)
}
