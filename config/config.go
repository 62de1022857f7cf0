// Package config loads runtime configuration from DUES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/warp/dues-engine/dues"
)

const Prefix = "DUES"

// Config holds runtime configuration for the server.
type Config struct {
	Env      string `envconfig:"ENV" default:"development"`
	Addr     string `envconfig:"ADDR" default:":8080"`
	DBPath   string `envconfig:"DB_PATH" default:"./data/dues.db"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`

	// Empty disables the due-list cache.
	RedisAddr string        `envconfig:"REDIS_ADDR"`
	CacheTTL  time.Duration `envconfig:"CACHE_TTL" default:"10m"`

	// Zero disables the overdue sweeper.
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`

	MatchLookbackDays int `envconfig:"MATCH_LOOKBACK" default:"90"`
	MatchTolerancePct int `envconfig:"MATCH_TOLERANCE" default:"10"`
	MatchLimit        int `envconfig:"MATCH_LIMIT" default:"50"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db path must be provided")
	}
	if c.MatchLookbackDays < 0 {
		return fmt.Errorf("match lookback must not be negative, got %d", c.MatchLookbackDays)
	}
	if c.MatchTolerancePct < 0 || c.MatchTolerancePct > 100 {
		return fmt.Errorf("match tolerance must be within 0..100 percent, got %d", c.MatchTolerancePct)
	}
	if c.SweepInterval < 0 {
		return errors.New("sweep interval must not be negative")
	}
	return nil
}

// IsProduction returns true when the server runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && (c.Env == "production" || c.Env == "prod")
}

// EngineOptions converts the matcher settings.
func (c *Config) EngineOptions() dues.Options {
	return dues.Options{
		MatchLookbackDays: c.MatchLookbackDays,
		MatchTolerance:    decimal.New(int64(c.MatchTolerancePct), -2),
		MatchLimit:        c.MatchLimit,
	}
}
