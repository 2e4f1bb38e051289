package weather

import (
	"time"

	"rainguard/internal/types"
)

// BuildSummary aggregates a raw hourly series into a WeatherSummary covering
// every calendar date in the inclusive range, in ascending order, one entry
// per day. Dates the series does not cover classify as dry days.
//
// ConditionMet is always false at this layer. The aggregator has no knowledge
// of contract terms; finalizing the flag against a threshold belongs to the
// settlement engine. The same summary is therefore reusable for monitoring
// display without a decision baked in.
func BuildSummary(series HourlySeries, dates types.DateRange, source types.WeatherSource, fetchedAt time.Time) (types.WeatherSummary, error) {
	if !dates.Valid() {
		return types.WeatherSummary{}, types.NewAppError(
			types.ErrCodeValidationInvalidDateRange,
			"date range must have start <= end in YYYY-MM-DD form",
			nil,
		)
	}

	enumerated := datesInRange(dates)
	days := make([]types.DayWeather, 0, len(enumerated))
	rainDays := 0
	for _, date := range enumerated {
		day := DayFromSeries(series, date)
		if day.IsRainDay {
			rainDays++
		}
		days = append(days, day)
	}

	return types.WeatherSummary{
		Days:          days,
		TotalRainDays: rainDays,
		ConditionMet:  false,
		Source:        source,
		FetchedAt:     fetchedAt.UTC(),
	}, nil
}
