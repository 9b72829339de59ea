/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the site ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (defaults, TOML file, .env, SITELEDGER_* env), then flags
  2. Initialize logger and store (SQLite or PostgreSQL)
  3. Choose locker (Redis when configured, in-process otherwise)
  4. Choose publisher (Kafka when configured, plus the log)
  5. Wire coordinator, queries, API handler and router
  6. Start low-stock monitor and HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  TOML config file (optional)
  -port    HTTP server port (overrides config)
  -db      SQLite database path (overrides config; switches driver to sqlite3)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the low-stock monitor
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close Kafka writer and database connection

EXAMPLES:
  ./server -db="./data/site-ledger.db"
  ./server -db=":memory:" -port=3000
  SITELEDGER_DB_DRIVER=postgres SITELEDGER_DB_DSN=postgres://... ./server
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warp/site-ledger/api"
	"github.com/warp/site-ledger/config"
	"github.com/warp/site-ledger/events"
	"github.com/warp/site-ledger/ledger"
	"github.com/warp/site-ledger/lock"
	"github.com/warp/site-ledger/logging"
	"github.com/warp/site-ledger/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "TOML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Driver = "sqlite3"
		cfg.Database.DSN = *dbPath
	}

	logger, err := logging.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize database", "driver", cfg.Database.Driver, "error", err)
	}
	defer store.Close()

	// Locker
	var locker ledger.Locker = lock.NewLocal()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
		}
		redisLock := lock.NewRedis(rdb, logger)
		redisLock.TTL = cfg.Redis.LockTTL.Duration
		locker = redisLock
		logger.Info("using redis locks", "addr", cfg.Redis.Addr)
	}

	// Publisher
	publishers := events.Fanout{events.NewLog(logger)}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		publishers = append(publishers, producer)
		logger.Info("publishing ledger events to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// Ledger
	var cache *ledger.StatsCache
	if cfg.Ledger.StatsCache {
		cache = ledger.NewStatsCache()
	}
	coordinator := ledger.NewCoordinator(store, locker)
	coordinator.Publisher = publishers
	coordinator.Logger = logger.With("component", "coordinator")
	coordinator.Cache = cache
	coordinator.Timeout = cfg.Ledger.OperationTimeout.Duration
	queries := ledger.NewQueries(store, cache)

	// API
	handler := api.NewHandler(store, coordinator, queries, logger.With("component", "api"))
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		StaticDir:      cfg.Server.StaticDir,
	})

	monitor := api.NewLowStockMonitor(queries, publishers, logger.With("component", "low-stock"))
	monitor.CheckInterval = cfg.Ledger.LowStockInterval.Duration
	monitor.Start()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db_driver", cfg.Database.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	monitor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}
