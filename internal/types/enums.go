package types

// PolicyState represents the lifecycle state of a Policy.
//
// Valid transitions:
//
//	(create)            -> pending
//	pending, monitoring -> monitoring   (re-entrant; replaces cached summary)
//	monitoring          -> settling
//	settling            -> settled     (terminal)
type PolicyState string

const (
	StatePending    PolicyState = "pending"
	StateMonitoring PolicyState = "monitoring"
	StateSettling   PolicyState = "settling"
	StateSettled    PolicyState = "settled"
)

// WeatherSource identifies where a summary's hourly readings came from.
type WeatherSource string

const (
	SourceOpenMeteo WeatherSource = "open-meteo"
	SourceSynthetic WeatherSource = "synthetic"
)

// ConstraintName identifies a settlement proof check. The set and order of
// constraints in a proof is part of the settlement contract.
type ConstraintName string

const (
	ConstraintCoveragePeriodEnded  ConstraintName = "coverage_period_ended"
	ConstraintDataSourceAuthorized ConstraintName = "data_source_authorized"
	ConstraintLocationVerified     ConstraintName = "location_verified"
	ConstraintRainDayCalculation   ConstraintName = "rain_day_calculation_correct"
	ConstraintThresholdCheck       ConstraintName = "threshold_check"
	ConstraintPayoutAmount         ConstraintName = "payout_amount_correct"
	ConstraintRecipientVerified    ConstraintName = "recipient_verified"
)

// ConstraintOrder is the fixed ordering of checks in every settlement proof.
var ConstraintOrder = []ConstraintName{
	ConstraintCoveragePeriodEnded,
	ConstraintDataSourceAuthorized,
	ConstraintLocationVerified,
	ConstraintRainDayCalculation,
	ConstraintThresholdCheck,
	ConstraintPayoutAmount,
	ConstraintRecipientVerified,
}

// DayDisplayKind is the presentation classification of a day: rain days render
// as rain, sub-threshold precipitation as cloud, dry days as sun.
type DayDisplayKind string

const (
	DisplaySun   DayDisplayKind = "sun"
	DisplayCloud DayDisplayKind = "cloud"
	DisplayRain  DayDisplayKind = "rain"
)
