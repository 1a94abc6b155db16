// Package store provides durable backends for the geocode result cache.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-geocoder/internal/db"
	"github.com/sells-group/property-geocoder/internal/resilience"
	"github.com/sells-group/property-geocoder/pkg/geocode"
)

// Driver names accepted by Open.
const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
	DriverNone     = "none"
)

// Backend is a durable cache store that can be health-checked, migrated,
// and pruned.
type Backend interface {
	geocode.Store
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// Config selects and connects a backend.
type Config struct {
	Driver string
	URL    string
	Pool   *db.PoolConfig
	Retry  resilience.RetryConfig
}

// Open connects the configured backend and pings it with retry. The memory
// and none drivers have no durable backend and return nil.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case DriverMemory, DriverNone, "":
		return nil, nil
	case DriverRedis:
		b, err = NewRedis(cfg.URL)
	case DriverPostgres:
		b, err = NewPostgres(ctx, cfg.URL, cfg.Pool)
	case DriverSQLite:
		b, err = NewSQLite(cfg.URL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	retry := cfg.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(cfg.Driver, "ping")
	}
	if err := resilience.Do(ctx, retry, b.Ping); err != nil {
		_ = b.Close()
		return nil, eris.Wrapf(err, "store: connect %s", cfg.Driver)
	}

	zap.L().Info("store: cache backend connected", zap.String("driver", cfg.Driver))
	return b, nil
}
