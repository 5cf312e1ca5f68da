package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revsim/internal/catalog"
	"revsim/internal/policy"
	"revsim/internal/simrand"
	"revsim/internal/store"
	"revsim/pkg/models"
)

// script forces payment outcomes: each Bill consumes one Float64 draw for
// the charge, plus one more for the failure reason on a miss.
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
func (s *script) Intn(n int) int       { return 0 }
func (s *script) Int63n(n int64) int64 { return 0 }
func (s *script) NormFloat64() float64 { return 0 }
func (s *script) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(i + 1)
	}
	return len(p), nil
}

var t0 = time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

func newEngine(floats ...float64) *Engine {
	src := &script{floats: floats}
	return New(catalog.Default(), src, simrand.NewIDGen(src))
}

func testPolicy(t *testing.T) policy.Policy {
	t.Helper()
	pol, err := policy.Default().For(0)
	require.NoError(t, err)
	return pol
}

func activeSub(planID string, quantity int64) *models.Subscription {
	activated := t0
	return &models.Subscription{
		ID: "sub_1", SubscriberID: "cus_1", PlanID: planID,
		Quantity: quantity, Status: models.StatusActive,
		ActivatedAt:        &activated,
		CurrentPeriodStart: t0,
		CurrentPeriodEnd:   t0.AddDate(0, 1, 0),
	}
}

func TestBillCreatesInvoiceAndCollects(t *testing.T) {
	st := store.New()
	e := newEngine(0.0) // charge succeeds
	sub := activeSub("starter", 2)

	res, err := e.Bill(st, sub, testPolicy(t), t0, nil)
	require.NoError(t, err)
	require.NotNil(t, res)

	inv := res.Invoice
	assert.Equal(t, models.InvoicePaid, inv.Status)
	assert.Equal(t, int64(2*4900), inv.AmountDue)
	require.Len(t, inv.Lines, 1)
	assert.Equal(t, "Starter - 2 seats", inv.Lines[0].Description)

	pay := res.Payment
	assert.Equal(t, models.PaymentSucceeded, pay.Outcome)
	assert.Equal(t, inv.AmountDue, pay.Amount)
	assert.Equal(t, 1, pay.Attempt)
}

func TestBillSkipsNonBillableStates(t *testing.T) {
	st := store.New()
	e := newEngine()
	pol := testPolicy(t)

	for _, status := range []models.SubscriptionStatus{
		models.StatusTrialing, models.StatusPaused, models.StatusCanceled,
	} {
		sub := activeSub("starter", 1)
		sub.Status = status
		res, err := e.Bill(st, sub, pol, t0, nil)
		require.NoError(t, err)
		assert.Nil(t, res, "status %s should not bill", status)
	}
	assert.Empty(t, st.Invoices())
}

func TestOpenInvoiceIsNotRebilled(t *testing.T) {
	st := store.New()
	e := newEngine(0.99, 0.1) // charge fails, reason draw
	sub := activeSub("starter", 1)
	pol := testPolicy(t)

	res, err := e.Bill(st, sub, pol, t0, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, models.InvoiceOpen, res.Invoice.Status)
	assert.Equal(t, models.PaymentFailed, res.Payment.Outcome)
	assert.NotEmpty(t, res.Payment.FailureReason)

	// Retrying through Bill must not mint a second invoice for the period.
	res2, err := e.Bill(st, sub, pol, t0.AddDate(0, 0, 1), nil)
	require.NoError(t, err)
	assert.Nil(t, res2)
	assert.Len(t, st.Invoices(), 1)
}

func TestPaidPeriodAdvancesOnlyAfterElapsing(t *testing.T) {
	st := store.New()
	e := newEngine(0.0, 0.0)
	sub := activeSub("starter", 1)
	pol := testPolicy(t)

	_, err := e.Bill(st, sub, pol, t0, nil)
	require.NoError(t, err)
	firstEnd := sub.CurrentPeriodEnd

	// Mid-period: nothing due.
	res, err := e.Bill(st, sub, pol, t0.AddDate(0, 0, 10), nil)
	require.NoError(t, err)
	assert.Nil(t, res)

	// At period end the period rolls over and the next invoice is issued.
	res, err = e.Bill(st, sub, pol, firstEnd, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Invoice.PeriodStart.Equal(firstEnd))
	assert.Equal(t, firstEnd, sub.CurrentPeriodStart)
	assert.Len(t, st.Invoices(), 2)
}

func TestUsageAggregatedIntoLines(t *testing.T) {
	st := store.New()
	e := newEngine(0.0)
	sub := activeSub("starter", 2)

	usage := func(s *models.Subscription, start, end time.Time) []*models.UsageEvent {
		mk := func(id, dim string, qty int64, ts time.Time) *models.UsageEvent {
			return &models.UsageEvent{ID: id, SubscriptionID: s.ID, Dimension: dim, Quantity: qty, Timestamp: ts}
		}
		return []*models.UsageEvent{
			mk("u1", catalog.DimAPICalls1K, 3, start),
			mk("u2", catalog.DimAPICalls1K, 2, start.AddDate(0, 0, 5)),
			mk("u3", catalog.DimStorageGB, 10, end.AddDate(0, 0, -1)),
		}
	}

	res, err := e.Bill(st, sub, testPolicy(t), t0, usage)
	require.NoError(t, err)
	require.NotNil(t, res)

	inv := res.Invoice
	require.Len(t, inv.Lines, 3)
	// base first, then dimensions in lexical order
	assert.Equal(t, "", inv.Lines[0].Dimension)
	assert.Equal(t, catalog.DimAPICalls1K, inv.Lines[1].Dimension)
	assert.Equal(t, int64(5), inv.Lines[1].Quantity)
	assert.Equal(t, int64(500), inv.Lines[1].Amount)
	assert.Equal(t, catalog.DimStorageGB, inv.Lines[2].Dimension)
	assert.Equal(t, int64(100), inv.Lines[2].Amount)
	assert.Equal(t, int64(2*4900+500+100), inv.AmountDue)
	assert.Len(t, st.UsageEvents(), 3)
}

func TestCancelAtPeriodEndFinalized(t *testing.T) {
	st := store.New()
	e := newEngine(0.0)
	sub := activeSub("starter", 1)
	pol := testPolicy(t)

	_, err := e.Bill(st, sub, pol, t0, nil)
	require.NoError(t, err)
	sub.CancelAtPeriodEnd = true

	res, err := e.Bill(st, sub, pol, sub.CurrentPeriodEnd, nil)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, models.StatusCanceled, sub.Status)
	assert.False(t, sub.CancelAtPeriodEnd)
	require.NotNil(t, sub.CanceledAt)
	assert.Len(t, st.Invoices(), 1)

	events := st.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventPeriodEndCanceled, events[0].Type)
}

func TestBillRejectsBadConfiguration(t *testing.T) {
	st := store.New()
	e := newEngine()
	pol := testPolicy(t)

	bad := activeSub("starter", 0)
	_, err := e.Bill(st, bad, pol, t0, nil)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	unknown := activeSub("free_forever", 1)
	_, err = e.Bill(st, unknown, pol, t0, nil)
	require.ErrorIs(t, err, catalog.ErrPlanNotFound)
}

func TestPastDueRetryUsesFlatRate(t *testing.T) {
	st := store.New()
	// 0.5 beats a 30% retry success rate, so the charge fails.
	e := newEngine(0.5, 0.1)
	sub := activeSub("starter", 1)
	sub.Status = models.StatusPastDue

	res, err := e.Bill(st, sub, testPolicy(t), t0, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, models.PaymentFailed, res.Payment.Outcome)
}

func TestSettleCollectsOpenInvoice(t *testing.T) {
	st := store.New()
	e := newEngine(0.99, 0.1)
	sub := activeSub("starter", 1)

	res, err := e.Bill(st, sub, testPolicy(t), t0, nil)
	require.NoError(t, err)
	require.Equal(t, models.InvoiceOpen, res.Invoice.Status)

	pay := e.Settle(st, sub, t0.AddDate(0, 0, 3))
	require.NotNil(t, pay)
	assert.Equal(t, models.PaymentSucceeded, pay.Outcome)
	assert.Equal(t, res.Invoice.AmountDue, pay.Amount)
	assert.Equal(t, 2, pay.Attempt)
	assert.Equal(t, models.InvoicePaid, res.Invoice.Status)

	// Nothing left to settle.
	assert.Nil(t, e.Settle(st, sub, t0.AddDate(0, 0, 4)))
}
