// Package config defines the global configuration structure for RainGuard.
// Configuration is loaded once at process initialization and is immutable
// thereafter. It follows 12-Factor App principles by strictly separating
// code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Struct Defaults (Lowest)
//
// Any missing required value or invalid format causes the application to
// fail immediately on startup.
package config

import (
	"time"

	"rainguard/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the RainGuard service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"rainguard"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	Weather   WeatherConfig
	Kafka     KafkaConfig
	Scheduler SchedulerConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server tuning parameters.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
// URL is optional: when empty the service falls back to the in-memory
// session store, which is the default for local development.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"omitempty"`

	// Tuning Parameters
	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// WeatherConfig selects and tunes the historical weather data source.
type WeatherConfig struct {
	// Provider selects the data source: "open-meteo" hits the real archive
	// API, "synthetic" generates deterministic data for demos and tests.
	Provider string `envconfig:"WEATHER_PROVIDER" default:"open-meteo" validate:"oneof=open-meteo synthetic"`

	// Synthetic generator knobs. ForcedRainDays = -1 picks a random count.
	SyntheticSeed  uint64 `envconfig:"WEATHER_SYNTHETIC_SEED" default:"0"`
	ForcedRainDays int    `envconfig:"WEATHER_FORCED_RAIN_DAYS" default:"-1"`

	FetchTimeout time.Duration `envconfig:"WEATHER_FETCH_TIMEOUT" default:"15s"`
	MaxRetries   int           `envconfig:"WEATHER_MAX_RETRIES" default:"3"`
}

// KafkaConfig holds settings for the settlement audit event stream.
// Brokers is optional: when empty, audit publishing is disabled.
type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	Topic   string   `envconfig:"KAFKA_SETTLEMENT_TOPIC" default:"rainguard.settlements"`
}

// SchedulerConfig tunes the background weather refresh job.
type SchedulerConfig struct {
	Enabled         bool          `envconfig:"SCHEDULER_ENABLED" default:"true"`
	RefreshInterval time.Duration `envconfig:"SCHEDULER_REFRESH_INTERVAL" default:"1h" validate:"min=1m"`
	MaxConcurrency  int           `envconfig:"SCHEDULER_MAX_CONCURRENCY" default:"4" validate:"min=1"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
