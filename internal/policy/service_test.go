package policy

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rainguard/internal/events"
	"rainguard/internal/observability"
	"rainguard/internal/store"
	"rainguard/internal/types"
	"rainguard/internal/weather"
)

// --- Test Doubles ---

// failingProvider simulates an unreachable upstream.
type failingProvider struct{}

func (failingProvider) Name() types.WeatherSource { return types.SourceOpenMeteo }

func (failingProvider) FetchHourly(context.Context, types.Destination, types.DateRange) (weather.HourlySeries, error) {
	return nil, types.NewAppError(types.ErrCodeUpstreamWeather, "provider unreachable", errors.New("dial timeout"))
}

// recordingPublisher captures published settlement events.
type recordingPublisher struct {
	published []events.SettlementEvent
	failNext  bool
}

func (r *recordingPublisher) PublishSettlement(_ context.Context, e events.SettlementEvent) error {
	if r.failNext {
		r.failNext = false
		return errors.New("broker unavailable")
	}
	r.published = append(r.published, e)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(t *testing.T, forcedRainDays int) (*Service, *recordingPublisher) {
	t.Helper()
	gen := weather.NewSynthetic(11)
	gen.ForcedRainDays = forcedRainDays

	clock := clockwork.NewFakeClockAt(time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC))
	pub := &recordingPublisher{}
	svc := NewService(store.NewMemory(), gen, clock, testLogger(), observability.NewMetricsForTesting(), pub)
	return svc, pub
}

func TestServiceCreate(t *testing.T) {
	svc, _ := newTestService(t, 2)
	ctx := context.Background()

	p, err := svc.Create(ctx, "sess-1", testDestination, testDates, types.PolicyTerms{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTerms, p.Terms, "empty terms fall back to defaults")
	assert.Equal(t, types.StatePending, p.Status)

	loaded, err := svc.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, loaded.ID)
}

func TestServiceCreateConflictsWithExisting(t *testing.T) {
	svc, _ := newTestService(t, 2)
	ctx := context.Background()

	_, err := svc.Create(ctx, "sess-1", testDestination, testDates, types.PolicyTerms{})
	require.NoError(t, err)

	_, err = svc.Create(ctx, "sess-1", testDestination, testDates, types.PolicyTerms{})
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictPolicyExists, appErr.Code)

	// A different session is unaffected.
	_, err = svc.Create(ctx, "sess-2", testDestination, testDates, types.PolicyTerms{})
	require.NoError(t, err)
}

// brokenStore simulates a store outage on every read.
type brokenStore struct{}

func (brokenStore) Load(context.Context, string) (*types.Policy, error) {
	return nil, types.NewAppError(types.ErrCodeInternalStore, "store unavailable", errors.New("connection refused"))
}

func (brokenStore) Save(context.Context, string, *types.Policy) error { return nil }
func (brokenStore) Delete(context.Context, string) error              { return nil }

func TestServiceCreateSurfacesStoreFailure(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC))
	svc := NewService(brokenStore{}, weather.NewSynthetic(11), clock, testLogger(), nil, nil)

	// An outage on the existence check must fail the purchase, not be read as
	// an empty session.
	_, err := svc.Create(context.Background(), "sess-1", testDestination, testDates, types.PolicyTerms{})
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalStore, appErr.Code)
}

func TestServiceRefreshWeather(t *testing.T) {
	svc, _ := newTestService(t, 3)
	ctx := context.Background()

	_, err := svc.Create(ctx, "sess-1", testDestination, testDates, types.PolicyTerms{})
	require.NoError(t, err)

	p, err := svc.RefreshWeather(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, types.StateMonitoring, p.Status)
	require.NotNil(t, p.WeatherData)
	assert.Equal(t, 3, p.WeatherData.TotalRainDays)
	assert.Len(t, p.WeatherData.Days, 7)

	// Refreshing again replaces the summary without duplicating state.
	p2, err := svc.RefreshWeather(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, p2.ID)
	assert.Equal(t, types.StateMonitoring, p2.Status)
}

func TestServiceRefreshFailureLeavesStateUntouched(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC))
	svc := NewService(store.NewMemory(), failingProvider{}, clock, testLogger(), nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, "sess-1", testDestination, testDates, types.PolicyTerms{})
	require.NoError(t, err)

	_, err = svc.RefreshWeather(ctx, "sess-1")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamWeather, appErr.Code)

	p, err := svc.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatePending, p.Status, "failed fetch must not advance the lifecycle")
	assert.Nil(t, p.WeatherData)
}

func TestServiceSettle(t *testing.T) {
	svc, pub := newTestService(t, 3)
	ctx := context.Background()

	_, err := svc.Create(ctx, "sess-1", testDestination, testDates, types.PolicyTerms{})
	require.NoError(t, err)
	_, err = svc.RefreshWeather(ctx, "sess-1")
	require.NoError(t, err)

	p, err := svc.Settle(ctx, "sess-1")
	require.NoError(t, err)

	assert.Equal(t, types.StateSettled, p.Status)
	require.NotNil(t, p.Outcome)
	assert.True(t, p.Outcome.ConditionMet) // 3 rain days >= threshold 2
	assert.Equal(t, 500.0, p.Outcome.PayoutAmount)
	assert.Equal(t, p.ID, p.Outcome.Proof.PolicyID)

	// The terminal state is persisted and survives a reload.
	reloaded, err := svc.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, types.StateSettled, reloaded.Status)
	require.NotNil(t, reloaded.Outcome)
	assert.Equal(t, p.Outcome.Proof.ProofDigest, reloaded.Outcome.Proof.ProofDigest)

	// The audit event carries the same proof.
	require.Len(t, pub.published, 1)
	assert.Equal(t, p.Outcome.Proof.ProofDigest, pub.published[0].Proof.ProofDigest)
	assert.Equal(t, "sess-1", pub.published[0].SessionID)
}

func TestServiceSettleWithoutWeatherFails(t *testing.T) {
	svc, _ := newTestService(t, 2)
	ctx := context.Background()

	_, err := svc.Create(ctx, "sess-1", testDestination, testDates, types.PolicyTerms{})
	require.NoError(t, err)

	_, err = svc.Settle(ctx, "sess-1")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictInvalidTransition, appErr.Code)

	p, err := svc.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatePending, p.Status)
}

func TestServiceSettleTwiceRejected(t *testing.T) {
	svc, pub := newTestService(t, 3)
	ctx := context.Background()

	_, err := svc.Create(ctx, "sess-1", testDestination, testDates, types.PolicyTerms{})
	require.NoError(t, err)
	_, err = svc.RefreshWeather(ctx, "sess-1")
	require.NoError(t, err)
	_, err = svc.Settle(ctx, "sess-1")
	require.NoError(t, err)

	_, err = svc.Settle(ctx, "sess-1")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictInvalidTransition, appErr.Code)
	assert.Len(t, pub.published, 1, "one commit per policy, no recomputation")
}

func TestServiceSettleSurvivesPublishFailure(t *testing.T) {
	svc, pub := newTestService(t, 3)
	pub.failNext = true
	ctx := context.Background()

	_, err := svc.Create(ctx, "sess-1", testDestination, testDates, types.PolicyTerms{})
	require.NoError(t, err)
	_, err = svc.RefreshWeather(ctx, "sess-1")
	require.NoError(t, err)

	p, err := svc.Settle(ctx, "sess-1")
	require.NoError(t, err, "audit streaming is best-effort")
	assert.Equal(t, types.StateSettled, p.Status)
}

func TestServiceReset(t *testing.T) {
	svc, _ := newTestService(t, 2)
	ctx := context.Background()

	_, err := svc.Create(ctx, "sess-1", testDestination, testDates, types.PolicyTerms{})
	require.NoError(t, err)

	require.NoError(t, svc.Reset(ctx, "sess-1"))

	_, err = svc.Get(ctx, "sess-1")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundPolicy, appErr.Code)

	// After reset, a fresh policy may be purchased under a new identifier.
	p, err := svc.Create(ctx, "sess-1", testDestination, testDates, types.PolicyTerms{})
	require.NoError(t, err)
	assert.Equal(t, types.StatePending, p.Status)

	// Resetting an empty session is idempotent.
	require.NoError(t, svc.Reset(ctx, "sess-9"))
}
