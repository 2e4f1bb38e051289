// Package policy implements the Policy aggregate, its lifecycle state machine
// and the service that drives a policy from purchase to settlement.
//
// The lifecycle is strictly ordered:
//
//	pending -> monitoring -> settling -> settled
//
// A single caller (the controlling session) drives each policy; the service
// assumes at-most-one in-flight lifecycle operation per session. Transitions
// are all-or-nothing: every operation mutates an in-memory copy and persists
// it in one store write, so no reader ever observes a half-updated status.
package policy

import (
	"time"

	"github.com/google/uuid"

	"rainguard/internal/types"
)

// DefaultTerms are the contractual parameters applied when a purchase request
// does not specify its own.
var DefaultTerms = types.PolicyTerms{
	RainDaysThreshold: 2,
	PremiumUSDC:       25,
	PayoutUSDC:        500,
}

// New creates a pending policy. It is the only constructor; a policy always
// enters the lifecycle at pending with no weather attached.
func New(dest types.Destination, dates types.DateRange, terms types.PolicyTerms, now time.Time) (*types.Policy, error) {
	if dest.Name == "" || dest.Timezone == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"destination requires a name and timezone",
			nil,
		)
	}
	if dest.Lat < -90 || dest.Lat > 90 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidLat, "latitude must be in [-90, 90]", nil)
	}
	if dest.Lon < -180 || dest.Lon > 180 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidLon, "longitude must be in [-180, 180]", nil)
	}
	if !dates.Valid() {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidDateRange,
			"date range must have start <= end in YYYY-MM-DD form",
			nil,
		)
	}
	if terms.RainDaysThreshold < 1 || terms.PremiumUSDC < 0 || terms.PayoutUSDC < 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidTerms,
			"terms require a threshold >= 1 and non-negative amounts",
			nil,
		)
	}

	return &types.Policy{
		ID:          "plc_" + uuid.NewString(),
		Destination: dest,
		Dates:       dates,
		Terms:       terms,
		Status:      types.StatePending,
		CreatedAt:   now.UTC(),
	}, nil
}

// BeginMonitoring attaches a weather summary and moves the policy to
// monitoring. It is re-entrant: refreshing while already monitoring replaces
// the cached summary in place and never duplicates state. It is invalid once
// settlement has started.
func BeginMonitoring(p *types.Policy, summary types.WeatherSummary) error {
	switch p.Status {
	case types.StatePending, types.StateMonitoring:
		p.Status = types.StateMonitoring
		p.WeatherData = &summary
		return nil
	default:
		return invalidTransition(p.Status, "attach weather")
	}
}

// BeginSettlement freezes the policy for the settlement computation. Settling
// a policy without an attached summary is an error, not a no-op: settling
// without data would silently record a false "condition not met".
func BeginSettlement(p *types.Policy) error {
	if p.Status != types.StateMonitoring {
		return invalidTransition(p.Status, "begin settlement")
	}
	if p.WeatherData == nil {
		return types.NewAppError(
			types.ErrCodeConflictInvalidTransition,
			"cannot settle a policy with no attached weather summary",
			nil,
		)
	}
	p.Status = types.StateSettling
	return nil
}

// CompleteSettlement commits the outcome and moves the policy to its terminal
// state. Settlement is idempotent by construction: one commit per policy, and
// a second attempt against a settled policy is rejected rather than
// recomputed.
func CompleteSettlement(p *types.Policy, outcome types.SettlementOutcome) error {
	if p.Status != types.StateSettling {
		return invalidTransition(p.Status, "complete settlement")
	}
	p.Status = types.StateSettled
	p.Outcome = &outcome
	p.WeatherData = nil // the outcome owns the finalized summary
	return nil
}

func invalidTransition(from types.PolicyState, op string) error {
	return types.NewAppErrorWithDetails(
		types.ErrCodeConflictInvalidTransition,
		"cannot "+op+" from the "+string(from)+" state",
		nil,
		map[string]any{"status": string(from)},
	)
}
