// Package config loads policymaker settings from POLICYMAKER_* environment
// variables and optional .env files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/xraph/policymaker/policy"
)

// Prefix is the environment variable prefix.
const Prefix = "POLICYMAKER_"

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverRedis    = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	Admin            string
	Currency         string
	StoreDriver      string
	StoreDSN         string
	MongoDatabase    string
	RedisPrefix      string
	LogLevel         slog.Level
	LogFormat        string
	MetricsNamespace string
	AuditLog         string
	PluginTimeout    time.Duration
	OTLPEndpoint     string

	// settings that could not be parsed, reported by Validate
	parseErrs []error
}

// Load reads configuration from the environment after applying any .env
// files. With no files named it tries ./.env and ignores its absence.
// Variables already set in the environment win over .env values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("config: load env files: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider(Prefix, ".", func(s string) string {
		return strings.TrimPrefix(s, Prefix)
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	cfg := &Config{
		Admin:            strings.TrimSpace(k.String("ADMIN")),
		Currency:         valueOrDefault(k.String("CURRENCY"), "usd"),
		StoreDriver:      strings.ToLower(valueOrDefault(k.String("STORE_DRIVER"), DriverMemory)),
		StoreDSN:         strings.TrimSpace(k.String("STORE_DSN")),
		MongoDatabase:    valueOrDefault(k.String("MONGO_DATABASE"), "policymaker"),
		RedisPrefix:      valueOrDefault(k.String("REDIS_PREFIX"), "policymaker"),
		LogLevel:         parseLevel(k.String("LOG_LEVEL")),
		LogFormat:        strings.ToLower(valueOrDefault(k.String("LOG_FORMAT"), "text")),
		MetricsNamespace: strings.TrimSpace(k.String("METRICS_NAMESPACE")),
		AuditLog:         strings.TrimSpace(k.String("AUDIT_LOG")),
		OTLPEndpoint:     strings.TrimSpace(k.String("OTLP_ENDPOINT")),
	}

	timeout, err := parseDuration(k.String("PLUGIN_TIMEOUT"), 5*time.Second)
	if err != nil {
		cfg.parseErrs = append(cfg.parseErrs, fmt.Errorf("config: POLICYMAKER_PLUGIN_TIMEOUT: %w", err))
	}
	cfg.PluginTimeout = timeout

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or malformed setting.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.parseErrs...)
	if c.Admin == "" {
		errs = append(errs, errors.New("config: POLICYMAKER_ADMIN is required"))
	}
	if c.Currency != "" {
		if err := policy.ValidateCurrency(c.Currency); err != nil {
			errs = append(errs, fmt.Errorf("config: POLICYMAKER_CURRENCY: %w", err))
		}
	}
	if c.PluginTimeout < 0 {
		errs = append(errs, fmt.Errorf("config: POLICYMAKER_PLUGIN_TIMEOUT must be positive, got %s", c.PluginTimeout))
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres, DriverMongo, DriverRedis:
		if c.StoreDSN == "" {
			errs = append(errs, fmt.Errorf("config: POLICYMAKER_STORE_DSN is required for the %s driver", c.StoreDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown POLICYMAKER_STORE_DRIVER %q", c.StoreDriver))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: unknown POLICYMAKER_LOG_FORMAT %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

func valueOrDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, err
	}
	if d <= 0 {
		return fallback, fmt.Errorf("must be positive, got %q", v)
	}
	return d, nil
}

func parseLevel(value string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
