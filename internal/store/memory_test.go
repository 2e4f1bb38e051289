package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rainguard/internal/types"
)

func samplePolicy(id string) *types.Policy {
	return &types.Policy{
		ID: id,
		Destination: types.Destination{
			Name:     "Lisbon",
			Lat:      38.7223,
			Lon:      -9.1393,
			Timezone: "Europe/Lisbon",
		},
		Dates:     types.DateRange{Start: "2024-06-01", End: "2024-06-07"},
		Terms:     types.PolicyTerms{RainDaysThreshold: 2, PremiumUSDC: 25, PayoutUSDC: 500},
		Status:    types.StatePending,
		CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "sess-1", samplePolicy("pol-1")))

	got, err := s.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, samplePolicy("pol-1"), got)
}

func TestMemoryLoadMissing(t *testing.T) {
	s := NewMemory()

	_, err := s.Load(context.Background(), "nope")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundPolicy, appErr.Code)
}

func TestMemorySaveReplaces(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "sess-1", samplePolicy("pol-1")))
	require.NoError(t, s.Save(ctx, "sess-1", samplePolicy("pol-2")))

	got, err := s.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "pol-2", got.ID)
}

func TestMemoryLoadReturnsCopy(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "sess-1", samplePolicy("pol-1")))

	first, err := s.Load(ctx, "sess-1")
	require.NoError(t, err)
	first.Status = types.StateSettled // caller-side mutation must not leak

	second, err := s.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatePending, second.Status)
}

func TestMemoryDeleteIdempotent(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "sess-1", samplePolicy("pol-1")))
	require.NoError(t, s.Delete(ctx, "sess-1"))
	require.NoError(t, s.Delete(ctx, "sess-1"))

	_, err := s.Load(ctx, "sess-1")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundPolicy, appErr.Code)
}

func TestMemorySessions(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	require.NoError(t, s.Save(ctx, "sess-a", samplePolicy("pol-1")))
	require.NoError(t, s.Save(ctx, "sess-b", samplePolicy("pol-2")))

	sessions, err = s.Sessions(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sess-a", "sess-b"}, sessions)
}

func TestMemoryConcurrentAccess(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%8))
			_ = s.Save(ctx, id, samplePolicy("pol"))
			_, _ = s.Load(ctx, id)
			_, _ = s.Sessions(ctx)
		}(i)
	}
	wg.Wait()
}
