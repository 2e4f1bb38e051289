package weather

import (
	"context"
	"math/rand/v2"

	"rainguard/internal/types"
)

// Synthetic generates plausible hourly precipitation series without calling a
// live provider. It satisfies Provider, so demo and test runs exercise exactly
// the same classification and aggregation path as real data; the generator
// shapes raw readings and never decides verdicts itself.
//
// Chosen rain days receive 2-4 contiguous hours of >= 1.0mm precipitation
// inside the qualifying window. Other days have a 30% chance of a single
// sub-threshold hour, which exercises the cloud-vs-sun display distinction
// without ever flipping a verdict.
type Synthetic struct {
	rng *rand.Rand

	// ForcedRainDays, when non-negative, fixes the exact number of rain
	// days generated for a range (capped at the range length). A negative
	// value means a uniformly random count in [0, totalDays].
	ForcedRainDays int
}

// NewSynthetic creates a generator seeded for reproducible output. The forced
// rain-day count is disabled (-1) by default.
func NewSynthetic(seed uint64) *Synthetic {
	return &Synthetic{
		rng:            rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		ForcedRainDays: -1,
	}
}

// Name implements Provider.
func (s *Synthetic) Name() types.WeatherSource {
	return types.SourceSynthetic
}

// FetchHourly implements Provider. It never fails; the context is accepted
// for interface compatibility only.
func (s *Synthetic) FetchHourly(_ context.Context, _ types.Destination, dates types.DateRange) (HourlySeries, error) {
	if !dates.Valid() {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidDateRange,
			"date range must have start <= end in YYYY-MM-DD form",
			nil,
		)
	}

	enumerated := datesInRange(dates)
	target := s.ForcedRainDays
	if target < 0 {
		target = s.rng.IntN(len(enumerated) + 1)
	}
	if target > len(enumerated) {
		target = len(enumerated)
	}

	// Pick the rain days without replacement.
	rainy := make(map[int]bool, target)
	for _, idx := range s.rng.Perm(len(enumerated))[:target] {
		rainy[idx] = true
	}

	series := make(HourlySeries, len(enumerated))
	for i, date := range enumerated {
		var readings [types.HoursPerDay]float64
		if rainy[i] {
			s.fillRainDay(&readings)
		} else if s.rng.Float64() < 0.3 {
			hour := WindowStartHour + s.rng.IntN(WindowEndHour-WindowStartHour)
			readings[hour] = s.rng.Float64() * 0.9 // deliberately below threshold
		}
		series[date] = readings
	}
	return series, nil
}

// fillRainDay writes 2-4 contiguous qualifying hours into the window.
func (s *Synthetic) fillRainDay(readings *[types.HoursPerDay]float64) {
	hours := RainDayMinHours + s.rng.IntN(3) // 2..4
	maxStart := WindowEndHour - hours
	start := WindowStartHour + s.rng.IntN(maxStart-WindowStartHour+1)
	for i := 0; i < hours; i++ {
		readings[start+i] = QualifyingPrecipMM + s.rng.Float64()*5
	}
}
