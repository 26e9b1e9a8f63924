// Package extension provides the Forge extension adapter for policymaker.
//
// It implements the forge.Extension interface to integrate the policy
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.policymaker" or
// "policymaker" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/policymaker"
	"github.com/xraph/policymaker/store"
	"github.com/xraph/policymaker/store/driver"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "policymaker"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Insurance policy lifecycle and premium accrual engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts policymaker as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *policymaker.Engine
	store      store.Store
	groveDB    *grove.DB
	engineOpts []policymaker.Option
}

// New creates a new policymaker Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *policymaker.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// opens the store, builds the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.build(context.Background()); err != nil {
		return err
	}

	return vessel.Provide(fapp.Container(), func() (*policymaker.Engine, error) {
		return e.engine, nil
	})
}

// build opens the configured store when none was injected and constructs the engine.
func (e *Extension) build(ctx context.Context) error {
	if e.store == nil && e.groveDB != nil {
		s, err := driver.FromGrove(e.groveDB)
		if err != nil {
			return err
		}
		e.store = s
	}
	if e.store == nil {
		s, err := driver.Open(ctx, driver.Options{
			Driver:   e.config.StoreDriver,
			DSN:      e.config.StoreDSN,
			Database: e.config.MongoDatabase,
			Prefix:   e.config.RedisPrefix,
		})
		if err != nil {
			return err
		}
		e.store = s
	}

	eng, err := policymaker.New(e.store, e.config.Admin, e.buildEngineOpts()...)
	if err != nil {
		return err
	}
	e.engine = eng
	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("policymaker: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("policymaker: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs policymaker.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []policymaker.Option {
	opts := make([]policymaker.Option, 0, len(e.engineOpts)+2)

	if e.config.Currency != "" {
		opts = append(opts, policymaker.WithDefaultCurrency(e.config.Currency))
	}
	if e.config.PluginTimeout > 0 {
		opts = append(opts, policymaker.WithPluginTimeout(e.config.PluginTimeout))
	}

	// Pass-through options last so they win.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("policymaker: configuration is required but not found in config files; " +
				"ensure 'extensions.policymaker' or 'policymaker' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("policymaker: configuration loaded",
		forge.F("admin", e.config.Admin),
		forge.F("currency", e.config.Currency),
		forge.F("store_driver", e.config.StoreDriver),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("plugin_timeout", e.config.PluginTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.policymaker", "policymaker"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("policymaker: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("policymaker: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = defaults.StoreDriver
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = defaults.MongoDatabase
	}
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = defaults.RedisPrefix
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&yamlConfig.Admin, programmaticConfig.Admin)
	fill(&yamlConfig.Currency, programmaticConfig.Currency)
	fill(&yamlConfig.StoreDriver, programmaticConfig.StoreDriver)
	fill(&yamlConfig.StoreDSN, programmaticConfig.StoreDSN)
	fill(&yamlConfig.MongoDatabase, programmaticConfig.MongoDatabase)
	fill(&yamlConfig.RedisPrefix, programmaticConfig.RedisPrefix)

	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	return mergeWithDefaults(yamlConfig)
}
