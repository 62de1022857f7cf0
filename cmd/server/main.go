/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the dues engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from DUES_* environment variables (flags override)
  2. Build the zap logger
  3. Initialize SQLite store
  4. Connect Redis when configured (due-list cache)
  5. Create the engine and subscribe the cache to settlement changes
  6. Configure HTTP router, start the overdue scheduler
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -addr    HTTP listen address (overrides DUES_ADDR)
  -db      SQLite database path (overrides DUES_DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the overdue scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close Redis and database connections

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/dues-engine/api"
	"github.com/warp/dues-engine/config"
	"github.com/warp/dues-engine/dues"
	"github.com/warp/dues-engine/logging"
	"github.com/warp/dues-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flags
	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	log, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Closer()
	logger := log.Base

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	engine := dues.NewEngine(store, store, store)
	engine.Options = cfg.EngineOptions()
	engine.Logger = logger.Named("engine")

	// Optional cache
	var cache *api.Cache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unreachable, running without cache", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			cache = api.NewCache(client, cfg.CacheTTL, logger.Named("cache"))
			engine.Subscribe(cache)
		}
	}

	handler := api.NewHandler(engine, store, cache, logger.Named("http"))

	scheduler := api.NewOverdueScheduler(engine, logger.Named("sweep"))
	scheduler.CheckInterval = cfg.SweepInterval
	handler.Scheduler = scheduler
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         *addr,
		Handler:      api.NewRouter(handler, cfg.CORSOrigins),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", *addr),
			zap.String("db", *dbPath),
			zap.Bool("cache", cache != nil),
			zap.String("env", cfg.Env),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down server", zap.Stringer("signal", sig))
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
