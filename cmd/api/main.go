// Package main is the entry point for the RainGuard API server.
//
// It loads the configuration, wires the session store (Postgres when
// DATABASE_URL is set, in-memory otherwise), the weather provider
// (Open-Meteo archive or the synthetic generator), the settlement audit
// publisher (when Kafka brokers are configured), and the background weather
// refresh scheduler, then serves HTTP with the core chassis.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rainguard/internal/api/handlers"
	"rainguard/internal/config"
	"rainguard/internal/core"
	"rainguard/internal/events"
	"rainguard/internal/observability"
	"rainguard/internal/policy"
	"rainguard/internal/scheduler"
	"rainguard/internal/store"
	"rainguard/internal/weather"
	"rainguard/internal/weather/openmeteo"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("rainguard API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	// Session store: Postgres when configured, in-memory otherwise.
	var (
		sessionStore interface {
			policy.Store
			Sessions(ctx context.Context) ([]string, error)
		}
		healthProbes []core.HealthProbe
	)
	if cfg.UsesDatabase() {
		pool, err := newPool(cfg)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		pg := store.NewPostgres(pool)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = pg.EnsureSchema(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}

		sessionStore = pg
		healthProbes = append(healthProbes, databaseProbe{pool: pool})
		logger.Info("using postgres session store")
	} else {
		sessionStore = store.NewMemory()
		logger.Info("using in-memory session store")
	}

	// Weather provider.
	var provider weather.Provider
	switch cfg.Weather.Provider {
	case "synthetic":
		synthetic := weather.NewSynthetic(cfg.Weather.SyntheticSeed)
		synthetic.ForcedRainDays = cfg.Weather.ForcedRainDays
		provider = synthetic
	default:
		provider = openmeteo.NewClient(
			&http.Client{Timeout: cfg.Weather.FetchTimeout},
			logger,
			openmeteo.WithRetryPolicy(openmeteo.RetryPolicy{
				MaxRetries: cfg.Weather.MaxRetries,
				MinWait:    500 * time.Millisecond,
				MaxWait:    10 * time.Second,
			}),
		)
	}
	logger.Info("weather provider configured", "provider", provider.Name())

	// Settlement audit stream (optional).
	var publisher policy.AuditPublisher
	if cfg.UsesKafka() {
		kafkaPublisher := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		logger.Info("settlement audit publishing enabled", "topic", cfg.Kafka.Topic)
	}

	metrics := observability.NewMetrics()
	svc := policy.NewService(sessionStore, provider, nil, logger, metrics, publisher)

	// Background weather refresh for monitoring policies.
	if cfg.Scheduler.Enabled {
		refresher := scheduler.New(
			sessionStore,
			svc,
			cfg.Scheduler.RefreshInterval,
			cfg.Scheduler.MaxConcurrency,
			logger,
		)
		if err := refresher.Start(); err != nil {
			return fmt.Errorf("starting refresh scheduler: %w", err)
		}
		defer refresher.Stop()
	}

	// HTTP chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = metrics
	srv.HealthProbes = healthProbes

	policyHandler := handlers.NewPolicyHandler(svc, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		policyHandler.RegisterRoutes(r)
	})

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// newPool builds a pgx connection pool from the database configuration.
func newPool(cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.AcquireTimeout+5*time.Second)
	defer cancel()
	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// databaseProbe reports database reachability for the /health endpoint.
type databaseProbe struct {
	pool *pgxpool.Pool
}

func (p databaseProbe) Name() string { return "database" }

func (p databaseProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
