/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Timeline Engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load YAML config (written with defaults on first run)
  3. Initialize store (SQLite, or in-memory for development)
  4. Connect Redis when configured (sweep lease)
  5. Start reconciliation scheduler
  6. Configure HTTP router and start server

COMMAND-LINE FLAGS:
  -config  YAML config path (default: ./config.yaml)
  -port    HTTP server port, overrides config listen address
  -db      SQLite database path, overrides config database
           Use ":memory:" for an in-memory SQLite database
           Use ":memory-store:" for the map-backed store

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for a running sweep)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database and Redis connections
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/timeline.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - api/scheduler.go: Reconciliation scheduler
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/warp/timeline-engine/api"
	"github.com/warp/timeline-engine/config"
	"github.com/warp/timeline-engine/logx"
	"github.com/warp/timeline-engine/store/redislock"
	"github.com/warp/timeline-engine/store/sqlite"
	"github.com/warp/timeline-engine/timeline"
	"github.com/warp/timeline-engine/timeline/store"
)

const memoryStoreDSN = ":memory-store:"

// backend is what the service and the run history need from a store.
type backend interface {
	timeline.Store
	timeline.RunStore
}

func main() {
	// Flags
	configPath := flag.String("config", "./config.yaml", "YAML config path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Listen = fmt.Sprintf(":%d", *port)
	}
	if *dbPath != "" {
		cfg.Database = *dbPath
	}

	log := logx.New(logx.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	// Initialize store
	db, closeDB, err := openStore(cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Str("database", cfg.Database).Msg("failed to initialize database")
	}
	defer closeDB()

	svc := timeline.NewService(db, timeline.WithLogger(logx.Component(log, "timeline")))

	// Scheduler
	scheduler := api.NewReconciliationScheduler(svc, db, log)
	scheduler.Spec = cfg.Sweep.Cron
	scheduler.Enabled = cfg.Sweep.Enabled
	scheduler.RunOnStart = cfg.Sweep.RunOnStart

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis not reachable, sweeps will be skipped until it is")
		}
		scheduler.Locker = redislock.NewLocker(rdb, cfg.Redis.LockTTL)
	}

	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	// Initialize handler
	handler := api.NewHandler(svc, db, scheduler, log)
	handler.FiscalYear = timeline.FinancialYearResolver{StartMonth: cfg.FiscalYearStart()}

	// Create router
	router := api.NewRouter(handler, cfg.CORS.AllowedOrigins)

	// Create server
	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", cfg.Listen).Str("database", cfg.Database).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func openStore(dsn string, log zerolog.Logger) (backend, func(), error) {
	switch dsn {
	case memoryStoreDSN:
		return store.NewMemory(), func() {}, nil
	case ":memory:":
	default:
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	s, err := sqlite.New(dsn)
	if err != nil {
		return nil, nil, err
	}
	return s, func() {
		if err := s.Close(); err != nil {
			log.Error().Err(err).Msg("close database")
		}
	}, nil
}
