// Package scheduler runs the periodic weather refresh job. Policies in the
// monitoring state get their summaries re-fetched so coverage data stays
// current without client interaction.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"golang.org/x/sync/errgroup"

	"rainguard/internal/types"
)

// SessionStore enumerates sessions and loads their policies. Satisfied by
// both the memory and Postgres stores.
type SessionStore interface {
	Sessions(ctx context.Context) ([]string, error)
	Load(ctx context.Context, sessionID string) (*types.Policy, error)
}

// WeatherRefresher re-fetches and re-evaluates a session's weather summary.
// Satisfied by the policy service.
type WeatherRefresher interface {
	RefreshWeather(ctx context.Context, sessionID string) (*types.Policy, error)
}

// refreshTimeout bounds a single session's refresh, provider retries included.
const refreshTimeout = 60 * time.Second

// Refresher periodically refreshes weather data for every monitoring policy.
type Refresher struct {
	scheduler      *gocron.Scheduler
	store          SessionStore
	service        WeatherRefresher
	interval       time.Duration
	maxConcurrency int
	logger         *slog.Logger
}

// New creates a Refresher. maxConcurrency bounds the number of sessions
// refreshed in parallel per run.
func New(store SessionStore, service WeatherRefresher, interval time.Duration, maxConcurrency int, logger *slog.Logger) *Refresher {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		scheduler:      gocron.NewScheduler(time.UTC),
		store:          store,
		service:        service,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (r *Refresher) Start() error {
	_, err := r.scheduler.Every(r.interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.interval)
		defer cancel()
		r.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	r.scheduler.StartAsync()
	r.logger.Info("weather refresh scheduler started", "interval", r.interval)
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (r *Refresher) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
}

// RunOnce refreshes every monitoring policy, bounded by maxConcurrency.
// Failures are logged per session and never abort the sweep; the refresh
// path leaves a policy untouched when the provider errors.
func (r *Refresher) RunOnce(ctx context.Context) {
	sessions, err := r.store.Sessions(ctx)
	if err != nil {
		r.logger.Error("refresh sweep aborted: listing sessions failed", "error", err)
		return
	}
	if len(sessions) == 0 {
		return
	}

	start := time.Now()
	refreshed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrency)

	results := make(chan bool, len(sessions))
	for _, sessionID := range sessions {
		g.Go(func() error {
			p, err := r.store.Load(gctx, sessionID)
			if err != nil || p == nil {
				// Session may have been reset between listing and loading.
				return nil
			}
			if p.Status != types.StateMonitoring {
				return nil
			}

			refreshCtx, cancel := context.WithTimeout(gctx, refreshTimeout)
			defer cancel()

			if _, err := r.service.RefreshWeather(refreshCtx, sessionID); err != nil {
				r.logger.Warn("weather refresh failed", "session_id", sessionID, "error", err)
				return nil
			}
			results <- true
			return nil
		})
	}

	_ = g.Wait()
	close(results)
	for range results {
		refreshed++
	}

	r.logger.Info("weather refresh sweep complete",
		"sessions", len(sessions),
		"refreshed", refreshed,
		"duration", time.Since(start),
	)
}
