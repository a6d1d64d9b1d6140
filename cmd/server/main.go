/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the allowance engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, optional file, .env, ALLOWANCE_* env)
  2. Build the zap logger
  3. Open the store: SQLite (database/sql) or Postgres/MySQL (gorm)
  4. Load leave rules, build the engine, the period runner and the scheduler
  5. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional YAML/JSON config file

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight run)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Local SQLite file with demo data
  ALLOWANCE_DEMO_SEED=true ./server

  # Postgres with the nightly runner
  ALLOWANCE_DATABASE_DRIVER=postgres \
  ALLOWANCE_DATABASE_DSN="host=db user=hr dbname=allowance sslmode=disable" \
  ALLOWANCE_RUNNER_ENABLED=true ./server

SEE ALSO:
  - config/config.go: Settings and their environment variables
  - api/server.go: Router configuration
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
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/allowance-engine/allowance"
	"github.com/warp/allowance-engine/api"
	"github.com/warp/allowance-engine/config"
	"github.com/warp/allowance-engine/factory"
	"github.com/warp/allowance-engine/platform/logger"
	"github.com/warp/allowance-engine/store/gormdb"
	"github.com/warp/allowance-engine/store/sqlite"
)

// backend is a store the server can run on and close.
type backend interface {
	api.Backend
	Close() error
}

func main() {
	configPath := flag.String("config", "", "optional config file (yaml or json)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Server.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	store, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info("store ready", zap.String("driver", cfg.Database.Driver))

	rulesFactory := factory.NewRulesFactory()
	rules := allowance.DefaultRules()
	var quotaDefaults *allowance.QuotaDefaults
	if cfg.Engine.RulesFile != "" {
		if rules, quotaDefaults, err = rulesFactory.LoadFile(cfg.Engine.RulesFile); err != nil {
			return err
		}
		log.Info("leave rules loaded", zap.String("file", cfg.Engine.RulesFile))
	}
	effectiveDefaults := allowance.DefaultQuotaDefaults()
	if quotaDefaults != nil {
		effectiveDefaults = *quotaDefaults
	}

	engine := allowance.NewEngineFromStore(store, allowance.Options{
		LookBackMonths:   cfg.Engine.LookBackMonths,
		Rules:            rules,
		QuotaDefaults:    quotaDefaults,
		LifetimeKeywords: cfg.Engine.LifetimeKeywords,
		Logger:           log.Named("engine"),
	})
	runner := allowance.NewPeriodRunner(engine, store, store, store, log.Named("runner"))

	handler := api.NewHandler(store, engine, runner, rulesFactory.ToJSON(rules, effectiveDefaults), log.Named("api"))
	if cfg.Demo.Seed {
		if err := handler.Seed(context.Background(), "full-month"); err != nil {
			log.Warn("demo seed failed", zap.Error(err))
		}
	}

	scheduler := allowance.NewScheduler(runner, store, log.Named("scheduler"))
	scheduler.Enabled = cfg.Runner.Enabled
	scheduler.CheckInterval = cfg.Runner.Interval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, cfg.Server.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // period runs can be slow
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func openStore(cfg config.DatabaseConfig) (backend, error) {
	switch cfg.Driver {
	case "sqlite":
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		return sqlite.New(cfg.Path)
	default:
		db, err := gormdb.Open(gormdb.Config{
			Driver:       cfg.Driver,
			DSN:          cfg.DSN,
			MaxIdleConns: cfg.MaxIdleConns,
			MaxOpenConns: cfg.MaxOpenConns,
			LogSQL:       cfg.LogSQL,
		})
		if err != nil {
			return nil, err
		}
		store := gormdb.New(db)
		if err := store.Migrate(); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	}
}
