package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "payrail",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			HTTP: HTTPConfig{
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 15 * time.Second,
				MaxHeaderBytes:  1 << 20, // 1MB
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrentSagas: 1000,
			StepMaxRetries:     3,
			StepTimeout:        30 * time.Second,
			Retry: RetryConfig{
				InitialBackoff: 100 * time.Millisecond,
				MaxBackoff:     5 * time.Second,
				BackoffFactor:  2.0,
			},
			Recovery: RecoveryConfig{
				Enabled: true,
			},
			Cleanup: CleanupConfig{
				Enabled:   true,
				Retention: 30 * 24 * time.Hour,
				Interval:  1 * time.Hour,
			},
		},
		Repair: RepairConfig{
			MaxRetries:        3,
			RetryDelay:        5 * time.Minute,
			EscalationTimeout: 24 * time.Hour,
			SchedulerInterval: 1 * time.Minute,
		},
		Idempotency: IdempotencyConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
			Store:   "memory",
			Redis: RedisConfig{
				Address:   "localhost:6379",
				Password:  "",
				DB:        0,
				KeyPrefix: "payrail:idem:",
			},
		},
		Downstream: DownstreamConfig{
			RequestTimeout:     60 * time.Second,
			RateLimitPerSecond: 0,
			RateLimitBurst:     0,
		},
		EventBus: EventBusConfig{
			NodeID:         "node-1",
			MaxAttempts:    3,
			InitialBackoff: 50 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path:              "./data/badger",
				SyncWrites:        true,
				ValueLogFileSize:  1073741824, // 1GB
				NumVersionsToKeep: 1,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlp-grpc",
			Endpoint:   "localhost:4317",
			Insecure:   true,
			Timeout:    10 * time.Second,
			Sampler:    "ratio",
			SampleRate: 0.1,
		},
	}
}
