package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-geocoder/internal/config"
	"github.com/sells-group/property-geocoder/internal/db"
	"github.com/sells-group/property-geocoder/internal/monitoring"
	"github.com/sells-group/property-geocoder/internal/resilience"
	"github.com/sells-group/property-geocoder/internal/store"
	"github.com/sells-group/property-geocoder/pkg/geocode"
)

// geocoderEnv holds the geocoder and the resources it owns.
type geocoderEnv struct {
	Geocoder *geocode.HierarchicalGeocoder
	Backend  store.Backend // nil for memory/none
	Metrics  *monitoring.Metrics
	Registry *prometheus.Registry
}

// Close releases the cache backend.
func (e *geocoderEnv) Close() {
	if e.Geocoder != nil {
		if err := e.Geocoder.Close(); err != nil {
			zap.L().Warn("close geocoder", zap.Error(err))
		}
	}
}

// initGeocoder validates cfg for mode and builds the geocoder. Callers should
// defer env.Close().
func initGeocoder(ctx context.Context, c *config.Config, mode string) (*geocoderEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	backend, err := openBackend(ctx, c.Cache)
	if err != nil {
		return nil, err
	}
	if backend != nil {
		if err := backend.Migrate(ctx); err != nil {
			_ = backend.Close()
			return nil, eris.Wrap(err, "migrate cache store")
		}
	}

	var cache *geocode.Cache
	if c.Cache.Driver != store.DriverNone {
		cache = geocode.NewCache(backend, geocode.CacheConfig{
			Namespace: c.Cache.Namespace,
			TTL:       c.Cache.TTL(),
			LocalSize: c.Cache.LocalSize,
			LocalTTL:  c.Cache.LocalTTL(),
		})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)

	g, err := geocode.New(
		geocode.WithProviders(buildProviders(c)...),
		geocode.WithCache(cache),
		geocode.WithBreakers(resilience.NewServiceBreakers(
			resilience.FromCircuitConfig(c.Breaker.FailureThreshold, c.Breaker.TimeoutSecs),
		)),
		geocode.WithRecorder(metrics),
		geocode.WithBatchDefaults(geocode.BatchOptions{
			BatchSize:     c.Batch.Size,
			MaxConcurrent: c.Batch.MaxConcurrent,
		}),
	)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}
	geocode.SetDefault(g)

	zap.L().Info("geocoder ready",
		zap.String("cache_driver", c.Cache.Driver),
		zap.Any("providers", g.Providers()),
	)

	return &geocoderEnv{
		Geocoder: g,
		Backend:  backend,
		Metrics:  metrics,
		Registry: reg,
	}, nil
}

// openBackend connects the durable cache store, if any.
func openBackend(ctx context.Context, c config.CacheConfig) (store.Backend, error) {
	var pool *db.PoolConfig
	if c.MaxConns > 0 {
		pool = &db.PoolConfig{MaxConns: c.MaxConns}
	}
	return store.Open(ctx, store.Config{
		Driver: c.Driver,
		URL:    c.URL,
		Pool:   pool,
		Retry:  resilience.FromRetryConfig(c.ConnectTries, 0),
	})
}

// buildProviders returns the provider chain in priority order. Google joins
// only when an API key is configured.
func buildProviders(c *config.Config) []geocode.Provider {
	providers := []geocode.Provider{
		geocode.NewNominatimProvider(geocode.NominatimConfig{
			BaseURL:      c.Nominatim.BaseURL,
			UserAgent:    c.Nominatim.UserAgent,
			Email:        c.Nominatim.Email,
			CountryCodes: c.Nominatim.CountryCodes,
			RatePerSec:   c.Nominatim.RatePerSec,
			Burst:        c.Nominatim.Burst,
			Timeout:      time.Duration(c.Nominatim.TimeoutSecs) * time.Second,
		}),
	}
	if c.Google.APIKey != "" {
		providers = append(providers, geocode.NewGoogleProvider(geocode.GoogleConfig{
			APIKey:     c.Google.APIKey,
			BaseURL:    c.Google.BaseURL,
			RatePerSec: c.Google.RatePerSec,
			Burst:      c.Google.Burst,
			Timeout:    time.Duration(c.Google.TimeoutSecs) * time.Second,
		}))
	}
	return providers
}
