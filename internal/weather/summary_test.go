package weather

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rainguard/internal/types"
)

func TestBuildSummaryCoversFullRange(t *testing.T) {
	// Provider only returned two of five days; the rest classify as dry.
	series := HourlySeries{
		"2024-06-02": readingsAt(map[int]float64{9: 2.0, 10: 2.0}),
		"2024-06-04": readingsAt(map[int]float64{15: 1.2, 16: 1.1, 17: 3.0}),
	}
	dates := types.DateRange{Start: "2024-06-01", End: "2024-06-05"}

	summary, err := BuildSummary(series, dates, types.SourceOpenMeteo, time.Date(2024, 6, 6, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, summary.Days, 5)
	wantDates := []string{"2024-06-01", "2024-06-02", "2024-06-03", "2024-06-04", "2024-06-05"}
	for i, day := range summary.Days {
		assert.Equal(t, wantDates[i], day.Date)
	}
	assert.Equal(t, 2, summary.TotalRainDays)
	assert.False(t, summary.ConditionMet, "aggregator must not finalize the condition")
	assert.Equal(t, types.SourceOpenMeteo, summary.Source)
}

func TestBuildSummarySingleDay(t *testing.T) {
	// Precipitation of exactly 1.0mm at hours 9 and 10 only.
	series := HourlySeries{
		"2024-07-01": readingsAt(map[int]float64{9: 1.0, 10: 1.0}),
	}
	dates := types.DateRange{Start: "2024-07-01", End: "2024-07-01"}

	summary, err := BuildSummary(series, dates, types.SourceOpenMeteo, time.Now())
	require.NoError(t, err)

	require.Len(t, summary.Days, 1)
	assert.Equal(t, 2, summary.Days[0].QualifyingHours)
	assert.True(t, summary.Days[0].IsRainDay)
	assert.Equal(t, 1, summary.TotalRainDays)
}

func TestBuildSummaryTotalMatchesVerdicts(t *testing.T) {
	gen := NewSynthetic(7)
	dates := types.DateRange{Start: "2024-06-01", End: "2024-06-30"}
	series, err := gen.FetchHourly(t.Context(), types.Destination{}, dates)
	require.NoError(t, err)

	summary, err := BuildSummary(series, dates, types.SourceSynthetic, time.Now())
	require.NoError(t, err)

	count := 0
	for _, day := range summary.Days {
		recomputed := ClassifyDay(day.Date, day.HourlyPrecipitation)
		assert.Equal(t, recomputed, day, "derived fields must match the classifier")
		if day.IsRainDay {
			count++
		}
	}
	assert.Equal(t, count, summary.TotalRainDays)
}

func TestBuildSummaryRejectsInvalidRange(t *testing.T) {
	tests := []struct {
		name  string
		dates types.DateRange
	}{
		{"inverted", types.DateRange{Start: "2024-06-05", End: "2024-06-01"}},
		{"missing end", types.DateRange{Start: "2024-06-05"}},
		{"unparseable", types.DateRange{Start: "05/06/2024", End: "06/06/2024"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildSummary(HourlySeries{}, tt.dates, types.SourceOpenMeteo, time.Now())
			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, types.ErrCodeValidationInvalidDateRange, appErr.Code)
		})
	}
}
