package types

import (
	"time"
)

// DateLayout is the wire format for calendar dates (ISO 8601, no time component).
const DateLayout = "2006-01-02"

// HoursPerDay is the number of hourly precipitation slots in a DayWeather.
const HoursPerDay = 24

// Destination is the fixed location a policy covers. It is immutable once a
// policy is created; the timezone identifies the local hour boundaries of the
// provider's hourly series.
type Destination struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Lat      float64 `json:"lat" validate:"latitude"`
	Lon      float64 `json:"lon" validate:"longitude"`
	Timezone string  `json:"timezone" validate:"required"`
}

// DateRange is an inclusive [Start, End] calendar date window.
// Both bounds are required and Start must not be after End.
type DateRange struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

// Days returns the number of calendar days covered by the range, inclusive.
// Returns 0 if either bound fails to parse or the range is inverted.
func (r DateRange) Days() int {
	start, err := time.Parse(DateLayout, r.Start)
	if err != nil {
		return 0
	}
	end, err := time.Parse(DateLayout, r.End)
	if err != nil {
		return 0
	}
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}

// Valid reports whether both bounds parse and Start <= End.
func (r DateRange) Valid() bool {
	return r.Days() > 0
}

// PolicyTerms are the contractual parameters fixed at purchase time.
// Amounts are whole USDC; the rain-day threshold is the number of rain days
// at or above which the condition is met.
type PolicyTerms struct {
	RainDaysThreshold int     `json:"rain_days_threshold" validate:"min=1"`
	PremiumUSDC       float64 `json:"premium_usdc" validate:"min=0"`
	PayoutUSDC        float64 `json:"payout_usdc" validate:"min=0"`
}

// DayWeather is one calendar day's evaluation result. QualifyingHours and
// IsRainDay are projections of the hourly readings; they are computed by the
// weather classifier and must never be set independently of it.
type DayWeather struct {
	Date                string              `json:"date"`
	HourlyPrecipitation [HoursPerDay]float64 `json:"hourly_precipitation"`
	QualifyingHours     int                 `json:"qualifying_hours"`
	IsRainDay           bool                `json:"is_rain_day"`
}

// WeatherSummary covers every calendar date of a policy's range, in order,
// with no gaps and no duplicates. ConditionMet is a placeholder until the
// settlement engine finalizes it against the policy's threshold; the
// aggregator always leaves it false.
type WeatherSummary struct {
	Days          []DayWeather `json:"days"`
	TotalRainDays int          `json:"total_rain_days"`
	ConditionMet  bool         `json:"condition_met"`
	Source        WeatherSource `json:"source"`
	FetchedAt     time.Time    `json:"fetched_at"`
}

// Policy is the aggregate root. It is created once by the purchase action and
// mutated only through lifecycle transitions. The status payloads are
// exclusively owned: WeatherData is attached while monitoring (and frozen
// during settling), Outcome is attached once settled and immutable thereafter.
type Policy struct {
	ID          string          `json:"id"`
	Destination Destination     `json:"destination"`
	Dates       DateRange       `json:"dates"`
	Terms       PolicyTerms     `json:"terms"`
	Status      PolicyState     `json:"status"`
	WeatherData *WeatherSummary `json:"weather_data,omitempty"`
	Outcome     *SettlementOutcome `json:"outcome,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SettlementOutcome is the final, immutable result of settling a policy.
type SettlementOutcome struct {
	ConditionMet   bool            `json:"condition_met"`
	RainDays       int             `json:"rain_days"`
	Threshold      int             `json:"threshold"`
	PayoutAmount   float64         `json:"payout_amount"`
	WeatherSummary WeatherSummary  `json:"weather_summary"`
	Proof          SettlementProof `json:"proof"`
	SettledAt      time.Time       `json:"settled_at"`
}

// SettlementProof is the audit artifact produced during settlement. The digest
// is a SHA-256 over the canonical serialization of the decision inputs, so a
// tampered summary or terms no longer matches the recorded proof. It is an
// audit trail, not a cryptographic consensus guarantee.
type SettlementProof struct {
	PolicyID     string            `json:"policy_id"`
	ProofDigest  string            `json:"proof_digest"`
	Constraints  []ProofConstraint `json:"constraints"`
	DataSource   string            `json:"data_source"`
	SettlementTx string            `json:"settlement_tx"`
}

// ProofConstraint is a single named check recorded in the settlement proof.
type ProofConstraint struct {
	Name     ConstraintName `json:"name"`
	Verified bool           `json:"verified"`
	Details  string         `json:"details"`
}
