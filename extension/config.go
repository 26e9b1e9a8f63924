package extension

import "time"

// Config holds the policymaker extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.policymaker" or "policymaker" keys).
type Config struct {
	// Admin is the only identity allowed to create and deactivate policies.
	Admin string `json:"admin" mapstructure:"admin" yaml:"admin"`

	// Currency is given to policy terms that name none (default: "usd").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// StoreDriver selects the backend: memory, sqlite, postgres, mongo or
	// redis (default: memory). Ignored when WithStore was called.
	StoreDriver string `json:"store_driver" mapstructure:"store_driver" yaml:"store_driver"`

	// StoreDSN locates the backend.
	StoreDSN string `json:"store_dsn" mapstructure:"store_dsn" yaml:"store_dsn"`

	// MongoDatabase names the Mongo database (default: "policymaker").
	MongoDatabase string `json:"mongo_database" mapstructure:"mongo_database" yaml:"mongo_database"`

	// RedisPrefix namespaces Redis keys (default: "policymaker").
	RedisPrefix string `json:"redis_prefix" mapstructure:"redis_prefix" yaml:"redis_prefix"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Currency:      "usd",
		StoreDriver:   "memory",
		MongoDatabase: "policymaker",
		RedisPrefix:   "policymaker",
		PluginTimeout: 5 * time.Second,
	}
}
