// Package weather implements the rain-day classification rule, summary
// aggregation over a policy's date window, and the synthetic generator used
// when no live provider is available.
//
// The classification thresholds below are a fixed business rule, not a
// per-policy parameter: a rain day is a calendar day with at least two hours
// inside the 8AM-8PM local window measuring at least 1.0mm of precipitation.
// Every DayWeather in the system, real or synthetic, is produced by
// ClassifyDay so that display and settlement can never disagree on a verdict.
package weather

import (
	"time"

	"rainguard/internal/types"
)

const (
	// WindowStartHour and WindowEndHour bound the qualifying window
	// [8, 20) in local hours.
	WindowStartHour = 8
	WindowEndHour   = 20

	// QualifyingPrecipMM is the minimum hourly precipitation for an hour
	// to qualify.
	QualifyingPrecipMM = 1.0

	// RainDayMinHours is the minimum number of qualifying hours for a day
	// to count as a rain day.
	RainDayMinHours = 2
)

// HourlySeries holds one day's 24 precipitation readings per calendar date,
// keyed by ISO date. Missing dates and missing hours mean "no precipitation
// recorded" and classify as 0.0mm.
type HourlySeries map[string][types.HoursPerDay]float64

// ClassifyDay computes the derived verdict fields for a single day from its
// raw hourly readings. It is the single source of truth for the rain-day rule.
func ClassifyDay(date string, readings [types.HoursPerDay]float64) types.DayWeather {
	qualifying := 0
	for hour := WindowStartHour; hour < WindowEndHour; hour++ {
		if readings[hour] >= QualifyingPrecipMM {
			qualifying++
		}
	}
	return types.DayWeather{
		Date:                date,
		HourlyPrecipitation: readings,
		QualifyingHours:     qualifying,
		IsRainDay:           qualifying >= RainDayMinHours,
	}
}

// DayFromSeries classifies the given date out of a series. A date absent from
// the series is synthesized with all-zero readings rather than treated as an
// error, so summaries always cover the full requested range even when the
// provider's feed has gaps.
func DayFromSeries(series HourlySeries, date string) types.DayWeather {
	readings := series[date] // zero value is a dry day
	return ClassifyDay(date, readings)
}

// WindowPrecipitation totals a day's precipitation inside the qualifying
// window. Used for presentation only; it plays no part in the verdict.
func WindowPrecipitation(day types.DayWeather) float64 {
	total := 0.0
	for hour := WindowStartHour; hour < WindowEndHour; hour++ {
		total += day.HourlyPrecipitation[hour]
	}
	return total
}

// DisplayKind maps a day onto its presentation classification: rain days
// render as rain, measurable sub-threshold precipitation as cloud, dry days
// as sun.
func DisplayKind(day types.DayWeather) types.DayDisplayKind {
	if day.IsRainDay {
		return types.DisplayRain
	}
	if WindowPrecipitation(day) > 0 {
		return types.DisplayCloud
	}
	return types.DisplaySun
}

// datesInRange enumerates every ISO date in the inclusive range, in order.
// The range must already be validated; an unparseable range yields nil.
func datesInRange(dates types.DateRange) []string {
	start, err := time.Parse(types.DateLayout, dates.Start)
	if err != nil {
		return nil
	}
	end, err := time.Parse(types.DateLayout, dates.End)
	if err != nil {
		return nil
	}

	var out []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(types.DateLayout))
	}
	return out
}
