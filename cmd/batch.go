package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/property-geocoder/internal/addressfile"
	"github.com/sells-group/property-geocoder/pkg/geocode"
)

var (
	batchColumns       []string
	batchSheet         string
	batchNoHeader      bool
	batchOutput        string
	batchOutFile       string
	batchGeoJSON       bool
	batchSize          int
	batchMaxConcurrent int
)

var batchCmd = &cobra.Command{
	Use:   "batch <file|->",
	Short: "Geocode every address in a txt, csv, tsv, or xlsx file",
	Long:  "Reads addresses from a file (or one per line from stdin with \"-\"), geocodes them in bounded concurrent chunks, and writes results in input order.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		addresses, err := readAddresses(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		if len(addresses) == 0 {
			zap.L().Warn("batch: no addresses found", zap.String("input", args[0]))
		}

		env, err := initGeocoder(ctx, cfg, "geocode")
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := env.Geocoder.GeocodeBatch(ctx, addresses, geocode.BatchOptions{
			BatchSize:     batchSize,
			MaxConcurrent: batchMaxConcurrent,
		})
		if err != nil {
			return eris.Wrap(err, "batch geocode")
		}

		logBatchSummary(env.Geocoder.Stats(), len(addresses))

		out := cmd.OutOrStdout()
		if batchOutFile != "" {
			f, err := os.Create(batchOutFile)
			if err != nil {
				return eris.Wrap(err, "batch: create output file")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}
		return writeResults(out, addresses, results, batchOutput, batchGeoJSON)
	},
}

func init() {
	f := batchCmd.Flags()
	f.StringSliceVar(&batchColumns, "columns", nil, "header columns joined to form the address (default: address column)")
	f.StringVar(&batchSheet, "sheet", "", "xlsx sheet name (default: first sheet)")
	f.BoolVar(&batchNoHeader, "no-header", false, "tabular input has no header row")
	f.StringVarP(&batchOutput, "output", "o", outputJSON, "output format: json or yaml")
	f.StringVar(&batchOutFile, "out", "", "write results to this file instead of stdout")
	f.BoolVar(&batchGeoJSON, "geojson", false, "write a GeoJSON FeatureCollection")
	f.IntVar(&batchSize, "batch-size", 0, "addresses per chunk (default from config)")
	f.IntVar(&batchMaxConcurrent, "max-concurrent", 0, "lookups in flight per chunk (default from config)")
	rootCmd.AddCommand(batchCmd)
}

// readAddresses loads the batch input. "-" reads one address per line from stdin.
func readAddresses(input string, stdin io.Reader) ([]string, error) {
	opts := addressfile.Options{
		Columns:  batchColumns,
		NoHeader: batchNoHeader,
		Sheet:    batchSheet,
	}
	if input == "-" {
		return addressfile.ReadFrom(stdin, addressfile.FormatText, opts)
	}
	return addressfile.Read(input, opts)
}

func logBatchSummary(stats geocode.StatsSnapshot, n int) {
	zap.L().Info("batch complete",
		zap.Int("addresses", n),
		zap.Int64("cache_hits", stats.CacheHits),
		zap.Int64("nominatim_success", stats.NominatimSuccess),
		zap.Int64("google_success", stats.GoogleSuccess),
		zap.Int64("failures", stats.Failures),
		zap.Float64("success_rate", stats.SuccessRate),
	)
}
