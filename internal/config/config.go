package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Nominatim  NominatimConfig  `yaml:"nominatim" mapstructure:"nominatim"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Breaker    BreakerConfig    `yaml:"breaker" mapstructure:"breaker"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// CacheConfig selects the durable cache backend and the in-process layer.
type CacheConfig struct {
	Driver       string `yaml:"driver" mapstructure:"driver"` // redis, postgres, sqlite, memory, none
	URL          string `yaml:"url" mapstructure:"url"`
	Namespace    string `yaml:"namespace" mapstructure:"namespace"`
	TTLHours     int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	LocalSize    int    `yaml:"local_size" mapstructure:"local_size"`
	LocalTTLSecs int    `yaml:"local_ttl_secs" mapstructure:"local_ttl_secs"`
	MaxConns     int32  `yaml:"max_conns" mapstructure:"max_conns"`
	ConnectTries int    `yaml:"connect_tries" mapstructure:"connect_tries"`
}

// TTL returns the durable entry lifetime.
func (c CacheConfig) TTL() time.Duration { return time.Duration(c.TTLHours) * time.Hour }

// LocalTTL returns the in-process entry lifetime.
func (c CacheConfig) LocalTTL() time.Duration { return time.Duration(c.LocalTTLSecs) * time.Second }

// NominatimConfig configures the OpenStreetMap provider.
type NominatimConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	Email        string  `yaml:"email" mapstructure:"email"`
	CountryCodes string  `yaml:"country_codes" mapstructure:"country_codes"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst        int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// GoogleConfig configures the Google provider. It is only used when APIKey
// is set.
type GoogleConfig struct {
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// BreakerConfig configures the per-provider circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	TimeoutSecs      int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// BatchConfig sets batch chunking and concurrency.
type BatchConfig struct {
	Size          int `yaml:"size" mapstructure:"size"`
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures periodic health checks and alerting.
type MonitoringConfig struct {
	Enabled               bool    `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	MinRequests           int64   `yaml:"min_requests" mapstructure:"min_requests"`
	SuccessRateThreshold  float64 `yaml:"success_rate_threshold" mapstructure:"success_rate_threshold"`
	CacheHitRateThreshold float64 `yaml:"cache_hit_rate_threshold" mapstructure:"cache_hit_rate_threshold"`
}

// Validate checks the settings required by a command mode ("geocode" or
// "serve") and reports every problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Cache.Driver {
	case "redis", "postgres", "sqlite":
		if c.Cache.URL == "" {
			errs = append(errs, fmt.Sprintf("cache.url is required for driver %q", c.Cache.Driver))
		}
	case "memory", "none":
	default:
		errs = append(errs, fmt.Sprintf("cache.driver %q is not one of redis, postgres, sqlite, memory, none", c.Cache.Driver))
	}
	if strings.TrimSpace(c.Nominatim.UserAgent) == "" {
		errs = append(errs, "nominatim.user_agent is required")
	}
	if c.Breaker.FailureThreshold < 1 {
		errs = append(errs, "breaker.failure_threshold must be >= 1")
	}
	if c.Batch.Size < 1 {
		errs = append(errs, "batch.size must be >= 1")
	}
	if c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 100 {
		errs = append(errs, "batch.max_concurrent must be between 1 and 100")
	}

	switch mode {
	case "geocode":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		m := c.Monitoring
		if m.SuccessRateThreshold < 0 || m.SuccessRateThreshold > 1 {
			errs = append(errs, "monitoring.success_rate_threshold must be between 0 and 1")
		}
		if m.CacheHitRateThreshold < 0 || m.CacheHitRateThreshold > 1 {
			errs = append(errs, "monitoring.cache_hit_rate_threshold must be between 0 and 1")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOCODER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.url", "")
	v.SetDefault("cache.namespace", "geocode")
	v.SetDefault("cache.ttl_hours", 24*30)
	v.SetDefault("cache.local_size", 10_000)
	v.SetDefault("cache.local_ttl_secs", 3600)
	v.SetDefault("cache.max_conns", 10)
	v.SetDefault("cache.connect_tries", 3)
	v.SetDefault("nominatim.base_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("nominatim.user_agent", "property-geocoder/1.0")
	v.SetDefault("nominatim.email", "")
	v.SetDefault("nominatim.country_codes", "")
	v.SetDefault("nominatim.rate_per_sec", 1.0)
	v.SetDefault("nominatim.burst", 1)
	v.SetDefault("nominatim.timeout_secs", 10)
	v.SetDefault("google.api_key", "")
	v.SetDefault("google.base_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("google.rate_per_sec", 50.0)
	v.SetDefault("google.burst", 50)
	v.SetDefault("google.timeout_secs", 5)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.timeout_secs", 60)
	v.SetDefault("batch.size", 100)
	v.SetDefault("batch.max_concurrent", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.check_interval_secs", 60)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.min_requests", 50)
	v.SetDefault("monitoring.success_rate_threshold", 0.8)
	v.SetDefault("monitoring.cache_hit_rate_threshold", 0.0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
