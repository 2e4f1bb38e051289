// Package main runs a full policy lifecycle against the synthetic weather
// generator and prints the settlement outcome. It exists for demos and for
// eyeballing proof output without standing up the API server:
//
//	go run ./cmd/simulate -rain-days 3 -threshold 2
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"rainguard/internal/observability"
	"rainguard/internal/policy"
	"rainguard/internal/store"
	"rainguard/internal/types"
	"rainguard/internal/weather"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		name      = flag.String("destination", "Barcelona", "destination name")
		lat       = flag.Float64("lat", 41.3851, "destination latitude")
		lon       = flag.Float64("lon", 2.1734, "destination longitude")
		timezone  = flag.String("timezone", "Europe/Madrid", "destination IANA timezone")
		start     = flag.String("start", "", "coverage start date (YYYY-MM-DD, default: 8 days ago)")
		end       = flag.String("end", "", "coverage end date (YYYY-MM-DD, default: 2 days ago)")
		seed      = flag.Uint64("seed", 42, "synthetic generator seed")
		rainDays  = flag.Int("rain-days", -1, "force exactly N rain days (-1 = random)")
		threshold = flag.Int("threshold", 2, "rain days threshold")
		premium   = flag.Float64("premium", 25, "premium in USDC")
		payout    = flag.Float64("payout", 500, "payout in USDC")
		verbose   = flag.Bool("v", false, "log service activity")
	)
	flag.Parse()

	// Coverage must already be over for settlement to verify, so the default
	// range ends two days in the past.
	now := time.Now().UTC()
	if *start == "" {
		*start = now.AddDate(0, 0, -8).Format(types.DateLayout)
	}
	if *end == "" {
		*end = now.AddDate(0, 0, -2).Format(types.DateLayout)
	}

	logger := slog.New(slog.DiscardHandler)
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	provider := weather.NewSynthetic(*seed)
	provider.ForcedRainDays = *rainDays

	svc := policy.NewService(
		store.NewMemory(),
		provider,
		nil,
		logger,
		observability.NewMetricsForTesting(),
		nil,
	)

	ctx := context.Background()
	const sessionID = "simulate"

	dest := types.Destination{Name: *name, Lat: *lat, Lon: *lon, Timezone: *timezone}
	dates := types.DateRange{Start: *start, End: *end}
	terms := types.PolicyTerms{RainDaysThreshold: *threshold, PremiumUSDC: *premium, PayoutUSDC: *payout}

	p, err := svc.Create(ctx, sessionID, dest, dates, terms)
	if err != nil {
		return fmt.Errorf("creating policy: %w", err)
	}
	fmt.Printf("policy %s covering %s from %s to %s (threshold %d rain days)\n",
		p.ID, dest.Name, dates.Start, dates.End, terms.RainDaysThreshold)

	p, err = svc.RefreshWeather(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("refreshing weather: %w", err)
	}
	printDays(p.WeatherData)

	p, err = svc.Settle(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("settling: %w", err)
	}

	outcome := p.Outcome
	fmt.Printf("\ncondition met: %v (%d rain days vs threshold %d)\n",
		outcome.ConditionMet, outcome.RainDays, outcome.Threshold)
	fmt.Printf("payout: %.0f USDC\n\n", outcome.PayoutAmount)

	proof, err := json.MarshalIndent(outcome.Proof, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding proof: %w", err)
	}
	fmt.Println(string(proof))
	return nil
}

func printDays(summary *types.WeatherSummary) {
	if summary == nil {
		return
	}
	fmt.Printf("\nweather summary (%s, %d rain days):\n", summary.Source, summary.TotalRainDays)
	for _, day := range summary.Days {
		marker := " "
		if day.IsRainDay {
			marker = "*"
		}
		fmt.Printf("  %s %s %-5s %2d qualifying hours, %5.1fmm in window\n",
			marker, day.Date, weather.DisplayKind(day), day.QualifyingHours, weather.WindowPrecipitation(day))
	}
}
