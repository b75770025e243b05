package extension

import "time"

// Store drivers understood by Config.StoreDriver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds the parking extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.parking" or "parking" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// StoreDriver selects the registry backend: memory, postgres or sqlite
	// (default: memory). Ignored when a store is passed with WithStore.
	StoreDriver string `json:"store_driver" mapstructure:"store_driver" yaml:"store_driver"`

	// StoreDSN is the connection string (postgres) or file path (sqlite).
	StoreDSN string `json:"store_dsn" mapstructure:"store_dsn" yaml:"store_dsn"`

	// DefaultCurrency prices lots whose parameters carry none (default: usd).
	DefaultCurrency string `json:"default_currency" mapstructure:"default_currency" yaml:"default_currency"`

	// RedisAddr enables Redis-backed balances. When empty, balances are
	// kept in process memory.
	RedisAddr string `json:"redis_addr" mapstructure:"redis_addr" yaml:"redis_addr"`

	// RedisPassword authenticates to Redis.
	RedisPassword string `json:"redis_password" mapstructure:"redis_password" yaml:"redis_password"`

	// RedisDB selects the Redis database.
	RedisDB int `json:"redis_db" mapstructure:"redis_db" yaml:"redis_db"`

	// RedisPrefix namespaces the balance keys (default: parking).
	RedisPrefix string `json:"redis_prefix" mapstructure:"redis_prefix" yaml:"redis_prefix"`

	// KafkaBrokers enables publishing lifecycle events to Kafka.
	KafkaBrokers []string `json:"kafka_brokers" mapstructure:"kafka_brokers" yaml:"kafka_brokers"`

	// KafkaTopic is the destination topic (default: parking.events).
	KafkaTopic string `json:"kafka_topic" mapstructure:"kafka_topic" yaml:"kafka_topic"`

	// JWTSecret switches caller authentication to HS256 bearer tokens.
	JWTSecret string `json:"jwt_secret" mapstructure:"jwt_secret" yaml:"jwt_secret"`

	// JWTIssuer, when set, is required in every token.
	JWTIssuer string `json:"jwt_issuer" mapstructure:"jwt_issuer" yaml:"jwt_issuer"`

	// EnableMetrics registers the Prometheus metrics plugin.
	EnableMetrics bool `json:"enable_metrics" mapstructure:"enable_metrics" yaml:"enable_metrics"`

	// PluginTimeout bounds a single plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StoreDriver:     DriverMemory,
		DefaultCurrency: "usd",
		RedisPrefix:     "parking",
		KafkaTopic:      "parking.events",
		PluginTimeout:   5 * time.Second,
	}
}
