package weather

import (
	"context"
	"time"

	"rainguard/internal/types"
)

// Provider abstracts a source of raw hourly precipitation readings. The
// Open-Meteo archive adapter and the synthetic generator both satisfy it, so
// the policy lifecycle is indifferent to where a summary's readings came from.
//
// FetchHourly is the only operation in the engine that may suspend for an
// external round-trip. Implementations must leave no side effects on failure;
// the caller retries the whole fetch, and lifecycle state is untouched until a
// summary is actually produced.
type Provider interface {
	// Name identifies the data source recorded in summaries and proofs.
	Name() types.WeatherSource

	// FetchHourly returns the hourly precipitation series for the
	// destination over the inclusive date range. The series may cover fewer
	// days than requested; the aggregator fills gaps with dry days.
	FetchHourly(ctx context.Context, dest types.Destination, dates types.DateRange) (HourlySeries, error)
}

// FetchSummary runs the full retrieval path: fetch the raw series from the
// provider, then classify and aggregate it into a summary for the range.
func FetchSummary(ctx context.Context, p Provider, dest types.Destination, dates types.DateRange, now func() time.Time) (types.WeatherSummary, error) {
	series, err := p.FetchHourly(ctx, dest, dates)
	if err != nil {
		return types.WeatherSummary{}, err
	}
	return BuildSummary(series, dates, p.Name(), now())
}
