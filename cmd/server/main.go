/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment / .env)
  2. Build the zap logger
  3. Initialize SQLite store
  4. Wire the domain: ledger, catalog, resolver, service, accrual job
  5. Configure the HTTP router and cron scheduler
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and wait for running jobs
  4. Close database connection
  5. Exit

CONFIGURATION:
  Via environment variables (LEAVE_ prefix) or a .env file; see
  config/config.go for keys and defaults.

SEE ALSO:
  - api/server.go: Router configuration
  - leave/machine.go: The request state machine behind the API
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/daking/leave-engine/api"
	"github.com/daking/leave-engine/config"
	"github.com/daking/leave-engine/directory"
	"github.com/daking/leave-engine/leave"
	"github.com/daking/leave-engine/logging"
	"github.com/daking/leave-engine/notify"
	"github.com/daking/leave-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Wire the domain
	dir := directory.NewClient(cfg.Directory.BaseURL, cfg.Directory.Timeout)
	sink := notify.NewLogSink(logger)

	ledger := leave.NewLedger(store, dir, logger)
	catalog := leave.NewCatalog(store, logger)
	resolver := leave.NewResolver(dir)
	service := leave.NewService(leave.ServiceDeps{
		Store:     store,
		Ledger:    ledger,
		Catalog:   catalog,
		Resolver:  resolver,
		Directory: dir,
		Notify:    sink,
		Log:       logger,
	})
	job := leave.NewAccrualJob(ledger, catalog, dir, sink, logger)

	// HTTP surface
	handler := api.NewHandler(service, catalog, job, dir, logger)
	if cfg.Env != config.EnvProduction {
		handler.Scenarios = &api.ScenarioLoader{
			Store:     store,
			Service:   service,
			Ledger:    ledger,
			Catalog:   catalog,
			Job:       job,
			Directory: dir,
			Log:       logger,
		}
	}
	router := api.NewRouter(handler, cfg.CORS.AllowedOrigins)

	// Scheduler
	var scheduler *api.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = api.NewScheduler(job, cfg.Scheduler.AccrualSpec, cfg.Scheduler.CarryOverSpec, logger)
		if err := scheduler.Start(); err != nil {
			logger.Fatal("failed to start scheduler", zap.Error(err))
		}
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop()
	}

	logger.Info("server stopped")
}
