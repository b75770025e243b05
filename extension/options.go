package extension

import (
	"time"

	"github.com/xraph/parking"
	"github.com/xraph/parking/funds"
	"github.com/xraph/parking/plugin"
	"github.com/xraph/parking/store"
)

// Option configures the parking Forge extension.
type Option func(*Extension)

// WithStore sets the store for the parking engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithFunds sets the funds backend fees are settled through.
func WithFunds(f funds.Transferer) Option {
	return func(e *Extension) {
		e.funds = f
	}
}

// WithEngineOption passes a parking.Option through to the underlying engine.
func WithEngineOption(opt parking.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a parking plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, parking.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
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

// WithStoreDriver selects the store backend built from config.
func WithStoreDriver(driver, dsn string) Option {
	return func(e *Extension) {
		e.config.StoreDriver = driver
		e.config.StoreDSN = dsn
	}
}

// WithDefaultCurrency sets the currency for lots created without one.
func WithDefaultCurrency(currency string) Option {
	return func(e *Extension) { e.config.DefaultCurrency = currency }
}

// WithRedis enables Redis-backed balances.
func WithRedis(addr, password string, db int) Option {
	return func(e *Extension) {
		e.config.RedisAddr = addr
		e.config.RedisPassword = password
		e.config.RedisDB = db
	}
}

// WithKafka enables event publishing to topic on brokers.
func WithKafka(topic string, brokers ...string) Option {
	return func(e *Extension) {
		e.config.KafkaTopic = topic
		e.config.KafkaBrokers = brokers
	}
}

// WithJWT authenticates callers with HS256 bearer tokens.
func WithJWT(secret, issuer string) Option {
	return func(e *Extension) {
		e.config.JWTSecret = secret
		e.config.JWTIssuer = issuer
	}
}

// WithMetrics registers the Prometheus metrics plugin.
func WithMetrics() Option {
	return func(e *Extension) { e.config.EnableMetrics = true }
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}
