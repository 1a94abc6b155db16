package main

import (
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/sells-group/property-geocoder/internal/monitoring"
	"github.com/sells-group/property-geocoder/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the geocoding HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initGeocoder(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.Enabled {
			clock := clockwork.NewRealClock()
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Geocoder, clock),
				monitoring.NewAlerter(cfg.Monitoring, env.Metrics),
				cfg.Monitoring,
				clock,
			)
			go checker.Run(ctx)
		}

		srv := server.New(env.Geocoder, server.Config{
			Port:        cfg.Server.Port,
			CORSOrigins: cfg.Server.CORSOrigins,
			Gatherer:    env.Registry,
		})
		return srv.ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
