// Package config provides configuration management for Payrail.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for Payrail.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the HTTP server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Orchestrator is the saga orchestration configuration.
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`

	// Repair is the transaction repair configuration.
	Repair RepairConfig `mapstructure:"repair"`

	// Idempotency is the duplicate-request protection configuration.
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`

	// Downstream is the collaborator client configuration.
	Downstream DownstreamConfig `mapstructure:"downstream"`

	// EventBus is the lifecycle event publisher configuration.
	EventBus EventBusConfig `mapstructure:"eventbus"`

	// Storage is the persistence configuration.
	Storage StorageConfig `mapstructure:"storage"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host" validate:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// HTTP is the HTTP server configuration.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS is the CORS configuration.
	CORS CORSConfig `mapstructure:"cors"`
}

// HTTPConfig holds HTTP-specific settings.
type HTTPConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	// Enabled enables CORS support.
	Enabled bool `mapstructure:"enabled"`

	// AllowedOrigins is the list of allowed origins.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods is the list of allowed HTTP methods.
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders is the list of allowed headers.
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// ExposedHeaders is the list of headers exposed to the client.
	ExposedHeaders []string `mapstructure:"exposed_headers"`

	// AllowCredentials indicates whether credentials are allowed.
	AllowCredentials bool `mapstructure:"allow_credentials"`

	// MaxAge is the maximum age of CORS preflight cache in seconds.
	MaxAge int `mapstructure:"max_age"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// OrchestratorConfig holds saga engine settings.
type OrchestratorConfig struct {
	// MaxConcurrentSagas bounds the number of sagas executing at once.
	MaxConcurrentSagas int `mapstructure:"max_concurrent_sagas" validate:"min=1"`

	// StepMaxRetries is the retry budget for steps without their own.
	StepMaxRetries int `mapstructure:"step_max_retries" validate:"min=0"`

	// StepTimeout bounds a single downstream attempt.
	StepTimeout time.Duration `mapstructure:"step_timeout"`

	// Retry is the backoff policy for step and compensation retries.
	Retry RetryConfig `mapstructure:"retry"`

	// Recovery is the startup recovery configuration.
	Recovery RecoveryConfig `mapstructure:"recovery"`

	// Cleanup is the terminal-saga retention configuration.
	Cleanup CleanupConfig `mapstructure:"cleanup"`
}

// RetryConfig holds exponential backoff settings.
type RetryConfig struct {
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`

	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration `mapstructure:"max_backoff"`

	// BackoffFactor is the multiplier applied per attempt.
	BackoffFactor float64 `mapstructure:"backoff_factor" validate:"min=1"`
}

// RecoveryConfig holds startup recovery settings.
type RecoveryConfig struct {
	// Enabled enables the recovery scan on startup.
	Enabled bool `mapstructure:"enabled"`
}

// CleanupConfig holds retention settings for terminal sagas.
type CleanupConfig struct {
	// Enabled enables the background cleanup loop.
	Enabled bool `mapstructure:"enabled"`

	// Retention is how long terminal sagas and their events are kept.
	Retention time.Duration `mapstructure:"retention"`

	// Interval is how often the cleanup pass runs.
	Interval time.Duration `mapstructure:"interval"`
}

// RepairConfig holds transaction repair settings.
type RepairConfig struct {
	// MaxRetries is the automatic repair retry budget.
	MaxRetries int `mapstructure:"max_retries" validate:"min=0"`

	// RetryDelay is the base delay between automatic repair attempts.
	RetryDelay time.Duration `mapstructure:"retry_delay"`

	// EscalationTimeout is how long a repair may stay open before it is
	// escalated for manual intervention.
	EscalationTimeout time.Duration `mapstructure:"escalation_timeout"`

	// SchedulerInterval is how often the automatic repair pass runs.
	SchedulerInterval time.Duration `mapstructure:"scheduler_interval"`
}

// IdempotencyConfig holds duplicate-request protection settings.
type IdempotencyConfig struct {
	// Enabled enables the idempotency guard on mutating endpoints.
	Enabled bool `mapstructure:"enabled"`

	// TTL is how long a completed idempotency key remains reserved.
	TTL time.Duration `mapstructure:"ttl"`

	// Store is the key store backend (memory, redis).
	Store string `mapstructure:"store" validate:"oneof=memory redis"`

	// Redis is the Redis key store configuration.
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address" validate:"host"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db"`

	// KeyPrefix namespaces keys written by this instance.
	KeyPrefix string `mapstructure:"key_prefix"`
}

// DownstreamConfig holds collaborator client settings.
type DownstreamConfig struct {
	// RequestTimeout bounds a single collaborator HTTP call.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// RateLimitPerSecond bounds requests per second per service. Zero
	// disables rate limiting.
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second" validate:"min=0"`

	// RateLimitBurst is the per-service burst allowance.
	RateLimitBurst int `mapstructure:"rate_limit_burst" validate:"min=0"`
}

// EventBusConfig holds lifecycle event publisher settings.
type EventBusConfig struct {
	// NodeID identifies this node in published envelopes.
	NodeID string `mapstructure:"node_id"`

	// MaxAttempts is the publish retry budget per event.
	MaxAttempts int `mapstructure:"max_attempts" validate:"min=1"`

	// InitialBackoff is the delay before the first publish retry.
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`

	// MaxBackoff caps the delay between publish retries.
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// Type is the storage backend (memory, badger).
	Type string `mapstructure:"type" validate:"oneof=memory badger"`

	// Badger is the BadgerDB configuration.
	Badger BadgerConfig `mapstructure:"badger"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum size of value log files in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size"`

	// NumVersionsToKeep is the number of versions to keep per key.
	NumVersionsToKeep int `mapstructure:"num_versions_to_keep"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the span exporter (otlp-grpc).
	Exporter string `mapstructure:"exporter"`

	// Endpoint is the OTLP gRPC collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Insecure disables TLS on the exporter connection.
	Insecure bool `mapstructure:"insecure"`

	// Timeout bounds each export call.
	Timeout time.Duration `mapstructure:"timeout"`

	// Headers are added to every export request.
	Headers map[string]string `mapstructure:"headers"`

	// Sampler selects the sampling strategy (ratio, always_on, always_off).
	Sampler string `mapstructure:"sampler"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s}",
		c.App.Name, c.Server.Port, c.App.Environment)
}
