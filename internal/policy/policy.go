// Package policy holds the lifecycle rate tables that drive the simulation:
// per-stage trial conversion, churn, payment failure and recovery rates, plus
// the calendar shaping (seasonal acquisition, vacation months) observed on
// the platform being modeled.
package policy

import (
	"fmt"
	"time"

	"revsim/internal/simrand"
)

// Stage is a phase of the simulated business lifecycle.
type Stage string

const (
	StageEarly  Stage = "early"
	StageGrowth Stage = "growth"
	StageMature Stage = "mature"
)

// Policy is the set of rates in force during one simulated time step.
type Policy struct {
	Stage Stage

	// TrialConversionRate is the base probability a trial converts; the
	// machine scales it by the subscriber's engagement.
	TrialConversionRate float64

	// MonthlyChurnRate and FailedPaymentRate are monthly figures; the machine
	// divides them down to the daily step.
	MonthlyChurnRate  float64
	FailedPaymentRate float64

	// RecoveryRateByAttempt maps retry attempt number to the probability a
	// past-due payment recovers on that attempt.
	RecoveryRateByAttempt map[int]float64

	// Acquisition volume per simulated month, before seasonal shaping.
	NewSubscribersMin int
	NewSubscribersMax int

	// AnnualShare is the fraction of new subscriptions on annual plans.
	AnnualShare float64
}

// DefaultRecoveryRate applies to retry attempts beyond the table.
const DefaultRecoveryRate = 0.05

// MaxRetryAttempts bounds the past-due retry cycle; the attempt after this
// cancels the subscription.
const MaxRetryAttempts = 3

// RetryPaymentSuccessRate is the flat success probability for a payment
// attempt made while a subscription is already past due.
const RetryPaymentSuccessRate = 0.30

// PauseMonthlyRate is the monthly probability of a vacation hold during
// vacation months, divided down to the daily step like the churn rates.
const PauseMonthlyRate = 0.05

// RecoveryRate looks up the recovery probability for a retry attempt.
func (p Policy) RecoveryRate(attempt int) float64 {
	if r, ok := p.RecoveryRateByAttempt[attempt]; ok {
		return r
	}
	return DefaultRecoveryRate
}

// Table resolves a simulated month index to the policy in force. Decoupling
// this lookup from the calendar keeps business rates out of the driver.
type Table struct {
	bands []band
}

type band struct {
	fromMonth int // inclusive
	toMonth   int // exclusive, -1 for open-ended
	policy    Policy
}

// ErrUnknownStage is returned when a month resolves to no policy band.
var ErrUnknownStage = fmt.Errorf("policy: no stage covers requested month")

// For returns the policy for a zero-based simulated month. Months past the
// last band reuse that band, matching how the modeled platform treated its
// mature stage as open-ended.
func (t Table) For(month int) (Policy, error) {
	if len(t.bands) == 0 {
		return Policy{}, ErrUnknownStage
	}
	for _, b := range t.bands {
		if month >= b.fromMonth && (b.toMonth < 0 || month < b.toMonth) {
			return b.policy, nil
		}
	}
	return Policy{}, fmt.Errorf("%w: month %d", ErrUnknownStage, month)
}

// Default returns the three-stage table: a scrappy early phase with high
// churn, a growth phase, and a mature phase with the best retention.
func Default() Table {
	recovery := map[int]float64{1: 0.30, 2: 0.20, 3: 0.10}
	return Table{bands: []band{
		{0, 8, Policy{
			Stage:                 StageEarly,
			TrialConversionRate:   0.15,
			MonthlyChurnRate:      0.10,
			FailedPaymentRate:     0.06,
			RecoveryRateByAttempt: recovery,
			NewSubscribersMin:     10,
			NewSubscribersMax:     30,
			AnnualShare:           0.10,
		}},
		{8, 16, Policy{
			Stage:                 StageGrowth,
			TrialConversionRate:   0.25,
			MonthlyChurnRate:      0.05,
			FailedPaymentRate:     0.04,
			RecoveryRateByAttempt: recovery,
			NewSubscribersMin:     50,
			NewSubscribersMax:     100,
			AnnualShare:           0.25,
		}},
		{16, -1, Policy{
			Stage:                 StageMature,
			TrialConversionRate:   0.35,
			MonthlyChurnRate:      0.02,
			FailedPaymentRate:     0.02,
			RecoveryRateByAttempt: recovery,
			NewSubscribersMin:     80,
			NewSubscribersMax:     150,
			AnnualShare:           0.40,
		}},
	}}
}

// FailureReasons is the weighted table sampled for simulated payment
// failures.
var FailureReasons = []simrand.WeightedItem{
	{Value: "card_expired", Weight: 0.40},
	{Value: "insufficient_funds", Weight: 0.35},
	{Value: "card_declined", Weight: 0.25},
}

// ChurnReasons is the weighted table sampled for voluntary cancellations.
var ChurnReasons = []simrand.WeightedItem{
	{Value: "cost", Weight: 0.35},
	{Value: "product_dissatisfaction", Weight: 0.25},
	{Value: "technical_issues", Weight: 0.15},
	{Value: "life_change", Weight: 0.15},
	{Value: "competitor", Weight: 0.10},
}

// TrialLengths are the trial periods offered at signup, in days.
var TrialLengths = []int{14, 21, 30}

// seasonal multipliers for new-subscription volume by calendar month. January
// carries the new-year spike, the holidays are quiet.
var seasonal = map[time.Month]float64{
	time.January:   2.5,
	time.February:  1.8,
	time.March:     1.4,
	time.April:     1.2,
	time.May:       1.6,
	time.June:      1.3,
	time.July:      0.9,
	time.August:    0.8,
	time.September: 1.1,
	time.October:   1.0,
	time.November:  0.7,
	time.December:  0.6,
}

// SeasonalMultiplier scales acquisition volume for a calendar month.
func SeasonalMultiplier(m time.Month) float64 {
	if f, ok := seasonal[m]; ok {
		return f
	}
	return 1.0
}

// IsVacationMonth reports whether pauses (vacation holds) may occur.
func IsVacationMonth(m time.Month) bool {
	return m == time.June || m == time.July || m == time.August
}
