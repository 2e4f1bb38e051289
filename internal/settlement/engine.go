// Package settlement finalizes a policy's outcome from its contractual terms
// and a weather summary, and constructs the evidence record that makes the
// decision auditable.
//
// The engine is deterministic: identical terms and an identical summary always
// produce the same condition decision, payout and constraint set. Only the
// settlement timestamp and the opaque transaction reference vary between runs.
package settlement

import (
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"rainguard/internal/types"
)

// Engine computes settlement outcomes. The clock is injected so tests can
// freeze the settlement timestamp and the coverage-period check.
type Engine struct {
	clock clockwork.Clock
}

// NewEngine creates a settlement engine. A nil clock falls back to real time.
func NewEngine(clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{clock: clock}
}

// Settle produces the final outcome for a policy in the settling state.
//
// The decision itself is pure arithmetic over already-validated inputs:
// conditionMet compares the summary's rain-day total against the contractual
// threshold, and the payout is the full contractual amount or zero. There is
// no partial payout and no internal failure mode beyond the state check.
func (e *Engine) Settle(policy types.Policy, summary types.WeatherSummary) (types.SettlementOutcome, error) {
	if policy.Status != types.StateSettling {
		return types.SettlementOutcome{}, types.NewAppErrorWithDetails(
			types.ErrCodeConflictInvalidTransition,
			"settlement requires a policy in the settling state",
			nil,
			map[string]any{"status": string(policy.Status)},
		)
	}

	conditionMet := summary.TotalRainDays >= policy.Terms.RainDaysThreshold
	payout := 0.0
	if conditionMet {
		payout = policy.Terms.PayoutUSDC
	}

	now := e.clock.Now().UTC()

	// The outcome owns a finalized copy of the summary; the cached monitoring
	// summary keeps its unfinalized flag.
	finalized := summary
	finalized.ConditionMet = conditionMet

	proof := buildProof(policy, summary, conditionMet, payout, now)

	return types.SettlementOutcome{
		ConditionMet:   conditionMet,
		RainDays:       summary.TotalRainDays,
		Threshold:      policy.Terms.RainDaysThreshold,
		PayoutAmount:   payout,
		WeatherSummary: finalized,
		Proof:          proof,
		SettledAt:      now,
	}, nil
}

// newSettlementTx mints the opaque settlement transaction reference recorded
// in the proof. No asset transfer happens here; the reference only identifies
// this settlement commit.
func newSettlementTx() string {
	return "stl_" + uuid.NewString()
}
