// Package extension provides the Forge extension adapter for the parking
// engine.
//
// It implements the forge.Extension interface to integrate the engine
// into a Forge application with DI registration and lifecycle
// management. The store, funds backend, authenticator and event plugins
// are built from configuration unless supplied programmatically.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.parking" or "parking" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/parking"
	"github.com/xraph/parking/auth"
	"github.com/xraph/parking/funds"
	"github.com/xraph/parking/funds/redisfunds"
	kafkahook "github.com/xraph/parking/kafka_hook"
	"github.com/xraph/parking/observability"
	"github.com/xraph/parking/store"
	"github.com/xraph/parking/store/memory"
	"github.com/xraph/parking/store/sqlstore"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "parking"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Parking-lot registry with occupancy pricing and fee settlement"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the parking engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *parking.Engine
	store      store.Store
	funds      funds.Transferer
	redis      redis.UniversalClient
	engineOpts []parking.Option
}

// New creates a new parking Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying parking engine.
// This is nil until Register is called.
func (e *Extension) Engine() *parking.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the parking engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.build(); err != nil {
		return err
	}

	return vessel.Provide(fapp.Container(), func() (*parking.Engine, error) {
		return e.engine, nil
	})
}

// build assembles the engine from the resolved config.
func (e *Extension) build() error {
	if e.store == nil {
		s, err := openStore(e.config)
		if err != nil {
			return err
		}
		e.store = s
	}

	if e.funds == nil {
		e.funds = e.buildFunds()
	}

	opts, err := e.buildEngineOpts()
	if err != nil {
		return err
	}

	e.engine = parking.New(e.store, e.funds, opts...)
	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("parking: extension not initialized")
	}

	if err := e.startEngine(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

func (e *Extension) startEngine(ctx context.Context) error {
	if e.config.DisableMigrate {
		e.engine.Init(ctx)
		return nil
	}
	return e.engine.Start(ctx)
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	var errs []error
	if e.engine != nil {
		errs = append(errs, e.engine.Stop())
	}
	if e.redis != nil {
		errs = append(errs, e.redis.Close())
	}
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("parking: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if e.redis != nil {
		return e.redis.Ping(ctx).Err()
	}
	return nil
}

// openStore constructs the store named by cfg.StoreDriver.
func openStore(cfg Config) (store.Store, error) {
	switch strings.ToLower(cfg.StoreDriver) {
	case "", DriverMemory:
		return memory.New(), nil
	case DriverPostgres:
		return sqlstore.OpenPostgres(cfg.StoreDSN)
	case DriverSQLite:
		return sqlstore.OpenSQLite(cfg.StoreDSN)
	default:
		return nil, fmt.Errorf("parking: unknown store driver %q", cfg.StoreDriver)
	}
}

// buildFunds returns the Redis ledger when configured, otherwise an
// in-process one.
func (e *Extension) buildFunds() funds.Transferer {
	if e.config.RedisAddr == "" {
		return funds.NewLedger()
	}
	e.redis = redis.NewClient(&redis.Options{
		Addr:     e.config.RedisAddr,
		Password: e.config.RedisPassword,
		DB:       e.config.RedisDB,
	})
	return redisfunds.New(e.redis, redisfunds.WithPrefix(e.config.RedisPrefix))
}

// buildEngineOpts constructs parking.Option values from the resolved config.
func (e *Extension) buildEngineOpts() ([]parking.Option, error) {
	opts := make([]parking.Option, 0, len(e.engineOpts)+6)

	if e.config.DefaultCurrency != "" {
		opts = append(opts, parking.WithDefaultCurrency(e.config.DefaultCurrency))
	}
	if e.config.PluginTimeout > 0 {
		opts = append(opts, parking.WithPluginTimeout(e.config.PluginTimeout))
	}

	if e.config.JWTSecret != "" {
		var jwtOpts []auth.JWTOption
		if e.config.JWTIssuer != "" {
			jwtOpts = append(jwtOpts, auth.WithIssuer(e.config.JWTIssuer))
		}
		opts = append(opts, parking.WithAuthenticator(
			auth.NewJWTAuthenticator([]byte(e.config.JWTSecret), jwtOpts...),
		))
	}

	if e.config.EnableMetrics {
		opts = append(opts, parking.WithPlugin(
			observability.NewMetricsExtension(observability.NewPrometheusFactory(nil)),
		))
	}

	if len(e.config.KafkaBrokers) > 0 {
		kcfg := kafkahook.DefaultConfig()
		kcfg.Brokers = e.config.KafkaBrokers
		producer, err := kafkahook.NewProducer(kcfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, parking.WithPlugin(
			kafkahook.New(producer, kafkahook.WithTopic(e.config.KafkaTopic)),
		))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("parking: configuration is required but not found in config files; " +
				"ensure 'extensions.parking' or 'parking' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("parking: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("store_driver", e.config.StoreDriver),
		forge.F("default_currency", e.config.DefaultCurrency),
		forge.F("redis", e.config.RedisAddr != ""),
		forge.F("kafka_brokers", len(e.config.KafkaBrokers)),
		forge.F("jwt", e.config.JWTSecret != ""),
		forge.F("metrics", e.config.EnableMetrics),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.parking", "parking"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("parking: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("parking: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = defaults.StoreDriver
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = defaults.DefaultCurrency
	}
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = defaults.RedisPrefix
	}
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = defaults.KafkaTopic
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.EnableMetrics {
		yamlConfig.EnableMetrics = true
	}

	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
		}
	}
	fill(&yamlConfig.StoreDriver, programmaticConfig.StoreDriver)
	fill(&yamlConfig.StoreDSN, programmaticConfig.StoreDSN)
	fill(&yamlConfig.DefaultCurrency, programmaticConfig.DefaultCurrency)
	fill(&yamlConfig.RedisAddr, programmaticConfig.RedisAddr)
	fill(&yamlConfig.RedisPassword, programmaticConfig.RedisPassword)
	fill(&yamlConfig.RedisPrefix, programmaticConfig.RedisPrefix)
	fill(&yamlConfig.KafkaTopic, programmaticConfig.KafkaTopic)
	fill(&yamlConfig.JWTSecret, programmaticConfig.JWTSecret)
	fill(&yamlConfig.JWTIssuer, programmaticConfig.JWTIssuer)

	if yamlConfig.RedisDB == 0 && programmaticConfig.RedisDB != 0 {
		yamlConfig.RedisDB = programmaticConfig.RedisDB
	}
	if len(yamlConfig.KafkaBrokers) == 0 && len(programmaticConfig.KafkaBrokers) > 0 {
		yamlConfig.KafkaBrokers = programmaticConfig.KafkaBrokers
	}
	if yamlConfig.PluginTimeout == 0 && programmaticConfig.PluginTimeout != 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
