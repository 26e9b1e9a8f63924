package extension

import (
	"github.com/xraph/grove"

	"github.com/xraph/policymaker"
	"github.com/xraph/policymaker/plugin"
	"github.com/xraph/policymaker/store"
)

// Option configures the policymaker Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine, bypassing StoreDriver.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB backs the engine with an open grove database. The backend is
// chosen from the grove driver; WithStore takes precedence.
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.groveDB = db
	}
}

// WithEngineOption passes a policymaker.Option through to the underlying engine.
func WithEngineOption(opt policymaker.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a policymaker plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, policymaker.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithAdmin sets the administrator identity.
func WithAdmin(admin string) Option {
	return func(e *Extension) { e.config.Admin = admin }
}

// WithCurrency sets the default policy currency.
func WithCurrency(currency string) Option {
	return func(e *Extension) { e.config.Currency = currency }
}

// WithStoreDriver selects a backend by name and locates it with dsn.
func WithStoreDriver(driver, dsn string) Option {
	return func(e *Extension) {
		e.config.StoreDriver = driver
		e.config.StoreDSN = dsn
	}
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
