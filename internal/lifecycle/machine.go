// Package lifecycle implements the subscription state machine. Each call to
// Step advances one subscription by one simulated time step, firing at most
// one transition in a fixed priority order. The machine performs no I/O and
// has no failure mode of its own: payment failure, churn and recovery are
// modeled data, not errors.
package lifecycle

import (
	"time"

	"revsim/internal/policy"
	"revsim/internal/simrand"
	"revsim/pkg/models"
)

// StepsPerMonth converts the policy's monthly rates to the daily step.
const StepsPerMonth = 30

// immediateCancelShare is the fraction of voluntary churners who cancel on
// the spot instead of at period end.
const immediateCancelShare = 0.60

// pauseMinDays/pauseMaxDays bound a vacation hold.
const (
	pauseMinDays = 14
	pauseMaxDays = 60
)

// Input carries everything a step needs beyond the subscription itself.
// PaymentFailed reports a failed payment observed since the previous step;
// it is the only coupling between the billing engine and the machine.
type Input struct {
	Now           time.Time
	Policy        policy.Policy
	Plan          models.Plan
	PaymentFailed bool
	FailureReason string
}

// Machine advances subscription state. It owns the status and period fields
// of every subscription it is handed.
type Machine struct {
	rng simrand.Source
	ids *simrand.IDGen
}

// New returns a machine drawing from rng.
func New(rng simrand.Source, ids *simrand.IDGen) *Machine {
	return &Machine{rng: rng, ids: ids}
}

// Step advances sub by one time step and returns the lifecycle events the
// transition emitted. A canceled subscription is a no-op.
func (m *Machine) Step(sub *models.Subscription, subscriber *models.Subscriber, in Input) []*models.LifecycleEvent {
	if sub.Terminal() {
		return nil
	}

	var events []*models.LifecycleEvent
	emit := func(t models.LifecycleEventType, reason string, attempt int) {
		events = append(events, &models.LifecycleEvent{
			ID:             m.ids.Event(),
			Type:           t,
			SubscriptionID: sub.ID,
			SubscriberID:   sub.SubscriberID,
			Timestamp:      in.Now,
			Reason:         reason,
			Attempt:        attempt,
		})
	}

	switch sub.Status {
	case models.StatusTrialing:
		m.stepTrial(sub, subscriber, in, emit)
	case models.StatusActive:
		m.stepActive(sub, subscriber, in, emit)
	case models.StatusPaused:
		m.stepPaused(sub, in, emit)
	case models.StatusPastDue:
		m.stepPastDue(sub, in, emit)
	}

	subscriber.ChurnRisk = ChurnRisk(subscriber.EngagementScore, sub.RetryAttempt)
	return events
}

// stepTrial resolves a trial that has reached its end: convert or cancel.
func (m *Machine) stepTrial(sub *models.Subscription, subscriber *models.Subscriber, in Input, emit emitFunc) {
	if sub.TrialEnd == nil || in.Now.Before(*sub.TrialEnd) {
		return
	}
	p := clamp01(in.Policy.TrialConversionRate * (0.5 + subscriber.EngagementScore/100))
	if simrand.Chance(m.rng, p) {
		now := in.Now
		sub.Status = models.StatusActive
		sub.TrialEnd = nil
		sub.ActivatedAt = &now
		sub.CurrentPeriodStart = now
		sub.CurrentPeriodEnd = in.Plan.PeriodEnd(now)
		emit(models.EventTrialConverted, "", 0)
		return
	}
	m.cancel(sub, in.Now)
	emit(models.EventTrialExpired, "", 0)
}

// stepActive evaluates, in order: an observed payment failure, voluntary
// churn, involuntary churn, and a seasonal pause. Only one rule fires.
func (m *Machine) stepActive(sub *models.Subscription, subscriber *models.Subscriber, in Input, emit emitFunc) {
	if in.PaymentFailed {
		reason := in.FailureReason
		if reason == "" {
			reason = simrand.Weighted(m.rng, policy.FailureReasons)
		}
		sub.Status = models.StatusPastDue
		sub.RetryAttempt = 1
		emit(models.EventPaymentFailed, reason, 1)
		return
	}

	churnRate := in.Policy.MonthlyChurnRate * engagementMultiplier(subscriber.EngagementScore) / StepsPerMonth
	if simrand.Chance(m.rng, churnRate) {
		reason := simrand.Weighted(m.rng, policy.ChurnReasons)
		if simrand.Chance(m.rng, immediateCancelShare) {
			m.cancel(sub, in.Now)
		} else {
			sub.CancelAtPeriodEnd = true
		}
		emit(models.EventVoluntaryChurn, reason, 0)
		return
	}

	if simrand.Chance(m.rng, in.Policy.FailedPaymentRate/StepsPerMonth) {
		sub.Status = models.StatusPastDue
		sub.RetryAttempt = 1
		emit(models.EventPaymentFailed, simrand.Weighted(m.rng, policy.FailureReasons), 1)
		return
	}

	if policy.IsVacationMonth(in.Now.Month()) && simrand.Chance(m.rng, policy.PauseMonthlyRate/StepsPerMonth) {
		now := in.Now
		resume := in.Now.AddDate(0, 0, simrand.Between(m.rng, pauseMinDays, pauseMaxDays))
		sub.Status = models.StatusPaused
		sub.PausedAt = &now
		sub.PauseResumeAt = &resume
		emit(models.EventPaused, "vacation", 0)
	}
}

// stepPaused resumes a hold whose resume time has arrived.
func (m *Machine) stepPaused(sub *models.Subscription, in Input, emit emitFunc) {
	if sub.PauseResumeAt == nil || in.Now.Before(*sub.PauseResumeAt) {
		return
	}
	sub.Status = models.StatusActive
	sub.PauseResumeAt = nil
	sub.PausedAt = nil
	emit(models.EventResumed, "", 0)
}

// stepPastDue runs one recovery attempt. Attempt numbers are read from the
// subscription and incremented on failure, never resampled.
func (m *Machine) stepPastDue(sub *models.Subscription, in Input, emit emitFunc) {
	attempt := sub.RetryAttempt
	if simrand.Chance(m.rng, in.Policy.RecoveryRate(attempt)) {
		sub.Status = models.StatusActive
		sub.RetryAttempt = 0
		emit(models.EventPaymentRecovered, "", attempt)
		return
	}
	if attempt >= policy.MaxRetryAttempts {
		m.cancel(sub, in.Now)
		emit(models.EventInvoluntaryChurn, "", attempt)
		return
	}
	sub.RetryAttempt = attempt + 1
}

func (m *Machine) cancel(sub *models.Subscription, now time.Time) {
	sub.Status = models.StatusCanceled
	sub.CanceledAt = &now
	sub.CancelAtPeriodEnd = false
	sub.PauseResumeAt = nil
	sub.PausedAt = nil
}

type emitFunc func(t models.LifecycleEventType, reason string, attempt int)

// engagementMultiplier scales churn by engagement band: highly engaged
// subscribers churn far less, disengaged ones twice as much.
func engagementMultiplier(score float64) float64 {
	switch {
	case score > 80:
		return 0.3
	case score > 60:
		return 0.6
	case score > 40:
		return 1.0
	default:
		return 2.0
	}
}

// ChurnRisk derives a 0..1 risk score from engagement and outstanding
// payment failures. It never feeds back into the transition probabilities;
// it is an analytics field on the subscriber.
func ChurnRisk(engagement float64, paymentFailures int) float64 {
	base := (100 - engagement) / 100
	if base < 0 {
		base = 0
	}
	paymentRisk := float64(paymentFailures) * 0.15
	if paymentRisk > 0.5 {
		paymentRisk = 0.5
	}
	risk := base + paymentRisk
	if risk > 1 {
		risk = 1
	}
	return risk
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
