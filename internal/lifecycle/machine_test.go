package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revsim/internal/policy"
	"revsim/internal/simrand"
	"revsim/pkg/models"
)

// script is a Source whose Float64 draws follow a fixed sequence, so a test
// can force any branch of the machine. Intn always picks the minimum.
type script struct {
	floats []float64
	i      int
}

func (s *script) Float64() float64 {
	if s.i >= len(s.floats) {
		return 0.5
	}
	v := s.floats[s.i]
	s.i++
	return v
}
func (s *script) Intn(n int) int         { return 0 }
func (s *script) Int63n(n int64) int64   { return 0 }
func (s *script) NormFloat64() float64   { return 0 }
func (s *script) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(i + 1)
	}
	return len(p), nil
}

var testPlan = models.Plan{
	ID: "starter", Name: "Starter", UnitPrice: 4900,
	Interval: models.IntervalMonth, IntervalCount: 1,
}

func testPolicy(t *testing.T) policy.Policy {
	t.Helper()
	pol, err := policy.Default().For(0)
	require.NoError(t, err)
	return pol
}

func newMachine(floats ...float64) *Machine {
	src := &script{floats: floats}
	return New(src, simrand.NewIDGen(src))
}

func trialSub(trialEnd time.Time) (*models.Subscription, *models.Subscriber) {
	subscriber := &models.Subscriber{ID: "cus_1", EngagementScore: 90}
	return &models.Subscription{
		ID: "sub_1", SubscriberID: "cus_1",
		Status:   models.StatusTrialing,
		TrialEnd: &trialEnd,
	}, subscriber
}

func activeSub(engagement float64) (*models.Subscription, *models.Subscriber) {
	subscriber := &models.Subscriber{ID: "cus_1", EngagementScore: engagement}
	activated := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	return &models.Subscription{
		ID: "sub_1", SubscriberID: "cus_1",
		Status:      models.StatusActive,
		ActivatedAt: &activated,
	}, subscriber
}

func TestTrialConvertsAtEnd(t *testing.T) {
	now := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
	sub, subscriber := trialSub(now)

	m := newMachine(0.0) // conversion draw succeeds
	events := m.Step(sub, subscriber, Input{Now: now, Policy: testPolicy(t), Plan: testPlan})

	require.Len(t, events, 1)
	assert.Equal(t, models.EventTrialConverted, events[0].Type)
	assert.Equal(t, models.StatusActive, sub.Status)
	assert.Nil(t, sub.TrialEnd)
	require.NotNil(t, sub.ActivatedAt)
	assert.Equal(t, now, sub.CurrentPeriodStart)
	assert.Equal(t, testPlan.PeriodEnd(now), sub.CurrentPeriodEnd)
}

func TestTrialExpires(t *testing.T) {
	now := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
	sub, subscriber := trialSub(now)

	m := newMachine(0.99)
	events := m.Step(sub, subscriber, Input{Now: now, Policy: testPolicy(t), Plan: testPlan})

	require.Len(t, events, 1)
	assert.Equal(t, models.EventTrialExpired, events[0].Type)
	assert.Equal(t, models.StatusCanceled, sub.Status)
	require.NotNil(t, sub.CanceledAt)
}

func TestTrialWaitsForEnd(t *testing.T) {
	now := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
	sub, subscriber := trialSub(now.AddDate(0, 0, 7))

	m := newMachine()
	events := m.Step(sub, subscriber, Input{Now: now, Policy: testPolicy(t), Plan: testPlan})

	assert.Empty(t, events)
	assert.Equal(t, models.StatusTrialing, sub.Status)
}

func TestObservedPaymentFailureMovesToPastDue(t *testing.T) {
	now := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	sub, subscriber := activeSub(70)

	m := newMachine()
	events := m.Step(sub, subscriber, Input{
		Now: now, Policy: testPolicy(t), Plan: testPlan,
		PaymentFailed: true, FailureReason: "card_expired",
	})

	require.Len(t, events, 1)
	assert.Equal(t, models.EventPaymentFailed, events[0].Type)
	assert.Equal(t, "card_expired", events[0].Reason)
	assert.Equal(t, 1, events[0].Attempt)
	assert.Equal(t, models.StatusPastDue, sub.Status)
	assert.Equal(t, 1, sub.RetryAttempt)
}

func TestVoluntaryChurnImmediate(t *testing.T) {
	now := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	sub, subscriber := activeSub(30)

	// churn draw fires, reason lands on the first table entry, the
	// immediate/period-end draw picks immediate.
	m := newMachine(0.0, 0.0, 0.0)
	events := m.Step(sub, subscriber, Input{Now: now, Policy: testPolicy(t), Plan: testPlan})

	require.Len(t, events, 1)
	assert.Equal(t, models.EventVoluntaryChurn, events[0].Type)
	assert.Equal(t, "cost", events[0].Reason)
	assert.Equal(t, models.StatusCanceled, sub.Status)
	require.NotNil(t, sub.CanceledAt)
}

func TestVoluntaryChurnAtPeriodEnd(t *testing.T) {
	now := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	sub, subscriber := activeSub(30)

	m := newMachine(0.0, 0.0, 0.99)
	events := m.Step(sub, subscriber, Input{Now: now, Policy: testPolicy(t), Plan: testPlan})

	require.Len(t, events, 1)
	assert.Equal(t, models.EventVoluntaryChurn, events[0].Type)
	assert.Equal(t, models.StatusActive, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Nil(t, sub.CanceledAt)
}

func TestSpontaneousPaymentFailure(t *testing.T) {
	now := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	sub, subscriber := activeSub(70)

	// churn draw misses, payment failure draw fires, reason draw follows.
	m := newMachine(0.9, 0.0, 0.1)
	events := m.Step(sub, subscriber, Input{Now: now, Policy: testPolicy(t), Plan: testPlan})

	require.Len(t, events, 1)
	assert.Equal(t, models.EventPaymentFailed, events[0].Type)
	assert.Equal(t, models.StatusPastDue, sub.Status)
	assert.Equal(t, 1, sub.RetryAttempt)
}

func TestPauseOnlyDuringVacationMonths(t *testing.T) {
	july := time.Date(2023, 7, 10, 0, 0, 0, 0, time.UTC)
	sub, subscriber := activeSub(70)

	m := newMachine(0.9, 0.9, 0.0)
	events := m.Step(sub, subscriber, Input{Now: july, Policy: testPolicy(t), Plan: testPlan})

	require.Len(t, events, 1)
	assert.Equal(t, models.EventPaused, events[0].Type)
	assert.Equal(t, models.StatusPaused, sub.Status)
	require.NotNil(t, sub.PauseResumeAt)
	assert.Equal(t, july.AddDate(0, 0, pauseMinDays), *sub.PauseResumeAt)

	march := time.Date(2023, 3, 10, 0, 0, 0, 0, time.UTC)
	sub2, subscriber2 := activeSub(70)
	m2 := newMachine(0.9, 0.9, 0.0)
	events2 := m2.Step(sub2, subscriber2, Input{Now: march, Policy: testPolicy(t), Plan: testPlan})
	assert.Empty(t, events2)
	assert.Equal(t, models.StatusActive, sub2.Status)
}

func TestPausedResumesAtHoldEnd(t *testing.T) {
	now := time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC)
	sub, subscriber := activeSub(70)
	paused := now.AddDate(0, 0, -20)
	sub.Status = models.StatusPaused
	sub.PausedAt = &paused
	sub.PauseResumeAt = &now

	m := newMachine()
	events := m.Step(sub, subscriber, Input{Now: now, Policy: testPolicy(t), Plan: testPlan})

	require.Len(t, events, 1)
	assert.Equal(t, models.EventResumed, events[0].Type)
	assert.Equal(t, models.StatusActive, sub.Status)
	assert.Nil(t, sub.PauseResumeAt)
	assert.Nil(t, sub.PausedAt)
}

func TestPastDueRecoveryResetsAttempt(t *testing.T) {
	now := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	sub, subscriber := activeSub(70)
	sub.Status = models.StatusPastDue
	sub.RetryAttempt = 2

	m := newMachine(0.0)
	events := m.Step(sub, subscriber, Input{Now: now, Policy: testPolicy(t), Plan: testPlan})

	require.Len(t, events, 1)
	assert.Equal(t, models.EventPaymentRecovered, events[0].Type)
	assert.Equal(t, 2, events[0].Attempt)
	assert.Equal(t, models.StatusActive, sub.Status)
	assert.Equal(t, 0, sub.RetryAttempt)
}

func TestPastDueExhaustsRetriesThenCancels(t *testing.T) {
	now := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	sub, subscriber := activeSub(70)
	sub.Status = models.StatusPastDue
	sub.RetryAttempt = 1

	in := Input{Now: now, Policy: testPolicy(t), Plan: testPlan}

	// Attempts 1 and 2 fail silently, incrementing the stored counter.
	for want := 2; want <= 3; want++ {
		m := newMachine(0.99)
		events := m.Step(sub, subscriber, in)
		assert.Empty(t, events)
		assert.Equal(t, want, sub.RetryAttempt)
		assert.Equal(t, models.StatusPastDue, sub.Status)
	}

	// The failed third attempt is terminal.
	m := newMachine(0.99)
	events := m.Step(sub, subscriber, in)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventInvoluntaryChurn, events[0].Type)
	assert.Equal(t, 3, events[0].Attempt)
	assert.Equal(t, models.StatusCanceled, sub.Status)
}

func TestCanceledIsTerminal(t *testing.T) {
	now := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	sub, subscriber := activeSub(70)
	canceled := now.AddDate(0, 0, -5)
	sub.Status = models.StatusCanceled
	sub.CanceledAt = &canceled

	m := newMachine(0.0, 0.0, 0.0)
	events := m.Step(sub, subscriber, Input{Now: now, Policy: testPolicy(t), Plan: testPlan})

	assert.Empty(t, events)
	assert.Equal(t, models.StatusCanceled, sub.Status)
	assert.Equal(t, canceled, *sub.CanceledAt)
}

func TestEngagementMultiplierBands(t *testing.T) {
	tests := []struct {
		score float64
		want  float64
	}{
		{95, 0.3},
		{81, 0.3},
		{80, 0.6},
		{61, 0.6},
		{60, 1.0},
		{41, 1.0},
		{40, 2.0},
		{5, 2.0},
	}
	for _, tt := range tests {
		if got := engagementMultiplier(tt.score); got != tt.want {
			t.Errorf("engagementMultiplier(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestChurnRiskBounds(t *testing.T) {
	assert.InDelta(t, 0.35, ChurnRisk(65, 0), 1e-9)
	assert.InDelta(t, 0.50, ChurnRisk(65, 1), 1e-9)
	assert.Equal(t, 1.0, ChurnRisk(0, 5))
	assert.Equal(t, 0.0, ChurnRisk(110, 0))
	// payment risk saturates at 0.5
	assert.InDelta(t, 0.85, ChurnRisk(65, 10), 1e-9)
}

// TestTrialConversionConverges checks the engagement-scaled conversion
// probability statistically: base 0.15 at engagement 90 gives 0.21.
func TestTrialConversionConverges(t *testing.T) {
	src := simrand.New(1234)
	m := New(src, simrand.NewIDGen(src))
	pol := testPolicy(t)
	now := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)

	const trials = 10000
	converted := 0
	for i := 0; i < trials; i++ {
		sub, subscriber := trialSub(now)
		events := m.Step(sub, subscriber, Input{Now: now, Policy: pol, Plan: testPlan})
		require.Len(t, events, 1)
		if events[0].Type == models.EventTrialConverted {
			converted++
		}
	}
	rate := float64(converted) / trials
	assert.InDelta(t, 0.21, rate, 0.03)
}
