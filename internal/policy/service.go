package policy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"rainguard/internal/events"
	"rainguard/internal/observability"
	"rainguard/internal/settlement"
	"rainguard/internal/types"
	"rainguard/internal/weather"
)

// AuditPublisher streams settlement evidence records to an external audit
// sink. Publication is best-effort; settlement never rolls back on a publish
// failure.
type AuditPublisher interface {
	PublishSettlement(ctx context.Context, event events.SettlementEvent) error
}

// Service drives the policy lifecycle for session-keyed aggregates. It is the
// single entry point the HTTP handlers and the refresh scheduler call; the
// calling layer guarantees at most one in-flight operation per session.
type Service struct {
	store     Store
	provider  weather.Provider
	engine    *settlement.Engine
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	publisher AuditPublisher // optional
}

// NewService wires the lifecycle service. Clock may be nil (real time), and
// metrics and publisher may be nil (recording and audit streaming disabled).
func NewService(
	store Store,
	provider weather.Provider,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
	publisher AuditPublisher,
) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		provider:  provider,
		engine:    settlement.NewEngine(clock),
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		publisher: publisher,
	}
}

// Create purchases a new policy for the session. A session holds at most one
// current policy; creating over an existing one is a conflict and the caller
// must reset first.
func (s *Service) Create(ctx context.Context, sessionID string, dest types.Destination, dates types.DateRange, terms types.PolicyTerms) (*types.Policy, error) {
	if terms == (types.PolicyTerms{}) {
		terms = DefaultTerms
	}

	existing, err := s.store.Load(ctx, sessionID)
	switch {
	case err == nil && existing != nil:
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeConflictPolicyExists,
			"session already holds a policy; reset it before purchasing another",
			nil,
			map[string]any{"policy_id": existing.ID, "status": string(existing.Status)},
		)
	case err != nil && !isNotFound(err):
		// A store failure must not be mistaken for an empty session, or a
		// retryable outage would let a new purchase overwrite the aggregate.
		return nil, err
	}

	p, err := New(dest, dates, terms, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, sessionID, p); err != nil {
		return nil, err
	}

	s.metrics.RecordPolicyCreated()
	s.logger.InfoContext(ctx, "policy created",
		"session_id", sessionID,
		"policy_id", p.ID,
		"destination", dest.Name,
		"start", dates.Start,
		"end", dates.End,
	)
	return p, nil
}

func isNotFound(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundPolicy
}

// Get returns the session's current policy.
func (s *Service) Get(ctx context.Context, sessionID string) (*types.Policy, error) {
	return s.store.Load(ctx, sessionID)
}

// RefreshWeather fetches the hourly series for the policy's window, rebuilds
// the summary and attaches it. Re-entrant while monitoring: a fresh fetch
// simply replaces the cached summary. A failed fetch leaves the policy in
// whatever state it was; the caller may retry the whole operation.
func (s *Service) RefreshWeather(ctx context.Context, sessionID string) (*types.Policy, error) {
	p, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	started := s.clock.Now()
	summary, err := weather.FetchSummary(ctx, s.provider, p.Destination, p.Dates, s.clock.Now)
	s.metrics.ObserveProviderDuration(s.clock.Since(started).Seconds())
	s.metrics.RecordWeatherRefresh(string(s.provider.Name()), err)
	if err != nil {
		s.logger.WarnContext(ctx, "weather refresh failed",
			"session_id", sessionID,
			"policy_id", p.ID,
			"error", err,
		)
		return nil, err
	}

	if err := BeginMonitoring(p, summary); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, sessionID, p); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "weather summary attached",
		"session_id", sessionID,
		"policy_id", p.ID,
		"source", summary.Source,
		"rain_days", summary.TotalRainDays,
	)
	return p, nil
}

// Settle runs the full settlement sequence: freeze the policy, compute the
// outcome from the cached summary, commit the terminal state, and persist it
// in a single write. The policy must be monitoring with a summary attached;
// anything else is an invalid transition surfaced to the caller.
func (s *Service) Settle(ctx context.Context, sessionID string) (*types.Policy, error) {
	p, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := BeginSettlement(p); err != nil {
		return nil, err
	}

	outcome, err := s.engine.Settle(*p, *p.WeatherData)
	if err != nil {
		return nil, err
	}
	if err := CompleteSettlement(p, outcome); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, sessionID, p); err != nil {
		return nil, err
	}

	s.metrics.RecordSettlement(outcome.ConditionMet)
	s.logger.InfoContext(ctx, "policy settled",
		"session_id", sessionID,
		"policy_id", p.ID,
		"condition_met", outcome.ConditionMet,
		"rain_days", outcome.RainDays,
		"payout", outcome.PayoutAmount,
	)

	s.publishAudit(ctx, sessionID, p)
	return p, nil
}

// Reset abandons the session's aggregate. A settled outcome is never mutated
// in place; the record is simply discarded so a fresh policy can be created
// under a new identifier.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.metrics.RecordPolicyReset()
	s.logger.InfoContext(ctx, "policy reset", "session_id", sessionID)
	return nil
}

func (s *Service) publishAudit(ctx context.Context, sessionID string, p *types.Policy) {
	if s.publisher == nil || p.Outcome == nil {
		return
	}
	event := events.SettlementEvent{
		PolicyID:     p.ID,
		SessionID:    sessionID,
		Destination:  p.Destination,
		Dates:        p.Dates,
		ConditionMet: p.Outcome.ConditionMet,
		RainDays:     p.Outcome.RainDays,
		Threshold:    p.Outcome.Threshold,
		PayoutAmount: p.Outcome.PayoutAmount,
		Proof:        p.Outcome.Proof,
		SettledAt:    p.Outcome.SettledAt,
	}
	if err := s.publisher.PublishSettlement(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "settlement audit publish failed",
			"policy_id", p.ID,
			"error", err,
		)
	}
}
