package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"

	"github.com/payrail/payrail/config"
	"github.com/payrail/payrail/pkg/api"
	"github.com/payrail/payrail/pkg/api/events"
	"github.com/payrail/payrail/pkg/api/handlers"
	"github.com/payrail/payrail/pkg/downstream"
	"github.com/payrail/payrail/pkg/eventbus"
	"github.com/payrail/payrail/pkg/idempotency"
	"github.com/payrail/payrail/pkg/logger"
	"github.com/payrail/payrail/pkg/metrics"
	"github.com/payrail/payrail/pkg/repair"
	"github.com/payrail/payrail/pkg/saga"
	badgerstore "github.com/payrail/payrail/pkg/storage/badger"
	"github.com/payrail/payrail/pkg/telemetry/tracing"
	"github.com/payrail/payrail/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	appName    = flag.String("app-name", "", "Override app name")
	serverPort = flag.Int("port", 0, "Override server port")
	logLevel   = flag.String("log-level", "", "Override log level")
	debugMode  = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}
	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	overrides := buildOverrides()

	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	log.Info("Starting Payrail",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Tracing
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Persistence
	var (
		db          *dgbadger.DB
		eventStore  saga.EventStore
		sagaStore   saga.Store
		repairStore repair.Store
	)
	switch cfg.Storage.Type {
	case "badger":
		db, err = badgerstore.Open(&cfg.Storage.Badger, log)
		if err != nil {
			log.Error("Failed to open badger database", "error", err)
			os.Exit(1)
		}
		go badgerstore.RunGC(ctx, db, 10*time.Minute, log)

		eventStore, err = saga.NewBadgerEventStore(db)
		if err != nil {
			log.Error("Failed to create event store", "error", err)
			os.Exit(1)
		}
		sagaStore, err = saga.NewBadgerStore(db)
		if err != nil {
			log.Error("Failed to create saga store", "error", err)
			os.Exit(1)
		}
		repairStore, err = repair.NewBadgerStore(db)
		if err != nil {
			log.Error("Failed to create repair store", "error", err)
			os.Exit(1)
		}
		log.Info("Initialized badger storage", "path", cfg.Storage.Badger.Path)
	default:
		eventStore = saga.NewMemoryEventStore()
		sagaStore = saga.NewMemoryStore()
		repairStore = repair.NewMemoryStore()
		log.Info("Initialized memory storage")
	}
	defer func() {
		if db != nil {
			if err := db.Close(); err != nil {
				log.Error("Error closing badger database", "error", err)
			}
		}
	}()

	// Metrics
	metricsManager := metrics.NewManager(metrics.Config{
		Enabled:             cfg.Metrics.Enabled,
		Port:                cfg.Metrics.Port,
		Path:                cfg.Metrics.Path,
		SagaDurationBuckets: metrics.DefaultConfig().SagaDurationBuckets,
		StepDurationBuckets: metrics.DefaultConfig().StepDurationBuckets,
		HTTPDurationBuckets: metrics.DefaultConfig().HTTPDurationBuckets,
	})
	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Downstream collaborator client
	invoker := downstream.NewHTTPInvoker(
		downstream.WithHTTPClient(&http.Client{Timeout: cfg.Downstream.RequestTimeout}),
		downstream.WithRateLimit(cfg.Downstream.RateLimitPerSecond, cfg.Downstream.RateLimitBurst),
	)

	// Transaction repair
	repairManager, err := repair.NewManager(repairStore,
		repair.WithRetryDelay(cfg.Repair.RetryDelay),
		repair.WithMetricsRecorder(metricsManager),
		repair.WithLogger(log),
	)
	if err != nil {
		log.Error("Failed to create repair manager", "error", err)
		os.Exit(1)
	}

	// Lifecycle event fan-out: durable bus for consumers, broadcaster for
	// the websocket stream.
	bus := eventbus.NewMemoryBus()
	busRetry := eventbus.DefaultRetryConfig()
	busRetry.MaxRetries = cfg.EventBus.MaxAttempts
	busRetry.InitialBackoff = cfg.EventBus.InitialBackoff
	busRetry.MaxBackoff = cfg.EventBus.MaxBackoff
	publisher, err := eventbus.NewPublisher(cfg.EventBus.NodeID, bus, busRetry, metricsManager)
	if err != nil {
		log.Error("Failed to create event bus publisher", "error", err)
		os.Exit(1)
	}
	broadcaster := events.NewBroadcaster()
	defer broadcaster.Close()

	sink := fanoutSink{
		eventbus.NewSagaLifecycleSink(publisher, log),
		events.NewSagaStream(broadcaster),
	}

	// Orchestrator
	retryCfg := saga.RetryConfig{
		InitialBackoff: cfg.Orchestrator.Retry.InitialBackoff,
		MaxBackoff:     cfg.Orchestrator.Retry.MaxBackoff,
		BackoffFactor:  cfg.Orchestrator.Retry.BackoffFactor,
	}
	executor := saga.NewExecutor(invoker, eventStore, sagaStore, retryCfg)
	coordinator := saga.NewCoordinator(invoker, eventStore, sagaStore, nil)
	orchestrator, err := saga.NewOrchestrator(eventStore, sagaStore, executor, coordinator,
		saga.WithMaxConcurrentSagas(cfg.Orchestrator.MaxConcurrentSagas),
		saga.WithRetryConfig(retryCfg),
		saga.WithRepairSink(repairManager),
		saga.WithEventSink(sink),
		saga.WithMetricsRecorder(metricsManager),
		saga.WithLogger(log),
	)
	if err != nil {
		log.Error("Failed to create orchestrator", "error", err)
		os.Exit(1)
	}

	// Startup recovery: resume sagas interrupted mid-flight.
	if cfg.Orchestrator.Recovery.Enabled {
		recoveryManager, err := saga.NewRecoveryManager(orchestrator, eventStore, sagaStore, metricsManager, log)
		if err != nil {
			log.Error("Failed to create recovery manager", "error", err)
			os.Exit(1)
		}
		recovered, err := recoveryManager.Recover(ctx)
		if err != nil {
			log.Error("Startup recovery failed", "error", err)
			os.Exit(1)
		}
		log.Info("Startup recovery complete", "resumed", recovered)
	}

	// Retention cleanup for terminal sagas.
	if cfg.Orchestrator.Cleanup.Enabled {
		cleanup := saga.NewCleanupManager(eventStore, sagaStore, log)
		if err := cleanup.Start(ctx, cfg.Orchestrator.Cleanup.Interval, cfg.Orchestrator.Cleanup.Retention); err != nil {
			log.Error("Failed to start cleanup manager", "error", err)
			os.Exit(1)
		}
	}

	// Repair retry scheduler
	scheduler, err := repair.NewScheduler(repairManager, log)
	if err != nil {
		log.Error("Failed to create repair scheduler", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(ctx, cfg.Repair.SchedulerInterval); err != nil {
		log.Error("Failed to start repair scheduler", "error", err)
		os.Exit(1)
	}

	// Idempotency guard
	var guard *idempotency.Guard
	if cfg.Idempotency.Enabled {
		var store idempotency.Store
		if cfg.Idempotency.Store == "redis" {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Idempotency.Redis.Address,
				Password: cfg.Idempotency.Redis.Password,
				DB:       cfg.Idempotency.Redis.DB,
			})
			store, err = idempotency.NewRedisStore(client,
				idempotency.WithKeyPrefix(cfg.Idempotency.Redis.KeyPrefix),
			)
			if err != nil {
				log.Error("Failed to create redis idempotency store", "error", err)
				os.Exit(1)
			}
			log.Info("Initialized redis idempotency store", "address", cfg.Idempotency.Redis.Address)
		} else {
			store = idempotency.NewMemoryStore()
		}
		guard, err = idempotency.NewGuard(store,
			idempotency.WithTTL(cfg.Idempotency.TTL),
			idempotency.WithMetricsRecorder(metricsManager),
			idempotency.WithLogger(log),
		)
		if err != nil {
			log.Error("Failed to create idempotency guard", "error", err)
			os.Exit(1)
		}
	}

	// Websocket stream fed from the broadcaster.
	wsHandler := handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
	})
	defer wsHandler.Close()
	go wsHandler.ConsumeEvents(broadcaster.Subscribe(64))

	apiHandlers := &api.Handlers{
		Saga:      handlers.NewSagaHandler(orchestrator, guard, log),
		Repair:    handlers.NewRepairHandler(repairManager, log),
		Health:    handlers.NewHealthHandler(&prober{db: db}),
		WebSocket: wsHandler,
	}
	if metricsManager.Enabled() {
		apiHandlers.Metrics = metricsManager
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		if err := httpServer.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	// Hot reload for tunables
	startConfigWatcher(ctx, *configPath, log)

	log.Info("Payrail is running",
		"http_port", cfg.Server.Port,
		"metrics_port", cfg.Metrics.Port,
		"storage", cfg.Storage.Type,
	)

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErrChan:
		log.Error("HTTP server error", "error", err)
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}

	cancel()

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("Error shutting down tracing", "error", err)
	}

	log.Info("Payrail stopped gracefully")
}

// fanoutSink forwards each saga transition to every configured sink.
type fanoutSink []saga.EventSink

func (s fanoutSink) SagaTransitioned(instance *saga.Instance, eventType saga.EventType) {
	for _, sink := range s {
		sink.SagaTransitioned(instance, eventType)
	}
}

// prober reports process health for the probe endpoints.
type prober struct {
	db *dgbadger.DB
}

func (p *prober) Healthy() bool {
	return true
}

func (p *prober) Ready() bool {
	if p.db == nil {
		return true
	}
	return !p.db.IsClosed()
}

func (p *prober) Status() map[string]any {
	status := map[string]any{
		"status":  "ok",
		"version": version.Version,
	}
	if p.db != nil {
		status["storage"] = "badger"
		lsm, vlog := p.db.Size()
		status["storage_bytes"] = lsm + vlog
	} else {
		status["storage"] = "memory"
	}
	return status
}

func startConfigWatcher(ctx context.Context, path string, log logger.Logger) {
	if path == "" {
		return
	}
	watcher, err := config.NewWatcher(path, config.NewLoader())
	if err != nil {
		log.Warn("Config watcher disabled", "error", err)
		return
	}
	watcher.OnChange(func(updated *config.Config) {
		logger.SetLevel(logger.ParseLevel(updated.Log.Level))
		log.Info("Configuration reloaded", "log_level", updated.Log.Level)
	})
	go func() {
		if err := watcher.Watch(ctx); err != nil {
			log.Warn("Config watcher stopped", "error", err)
		}
	}()
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *appName != "" {
		overrides["app.name"] = *appName
	}
	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

func printVersion() {
	fmt.Printf("Payrail - Saga Orchestration & Transaction Repair Engine\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("Payrail - distributed payment saga orchestration with transaction repair\n\n")
	fmt.Printf("Usage: payrail [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  payrail                                   # Run with default config\n")
	fmt.Printf("  payrail -config config.yaml               # Use specific config file\n")
	fmt.Printf("  payrail -port 9090 -log-level debug       # Override specific options\n")
	fmt.Printf("  payrail -version                          # Print version info\n")
}
