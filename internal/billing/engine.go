// Package billing produces invoices and simulated payment outcomes for
// subscriptions whose billing period is due. Exactly one invoice is ever
// created per (subscription, period start); failed invoices stay open and
// are settled when the lifecycle machine recovers the subscription.
package billing

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"revsim/internal/catalog"
	"revsim/internal/policy"
	"revsim/internal/simrand"
	"revsim/internal/store"
	"revsim/pkg/models"
)

// ErrInvalidQuantity is a fatal configuration error; a zero or negative seat
// count must be fixed by the caller, not silently billed as free.
var ErrInvalidQuantity = errors.New("billing: subscription quantity must be positive")

// UsageFunc fabricates the usage events for a billing window about to be
// invoiced. It may return nil for no metered usage.
type UsageFunc func(sub *models.Subscription, periodStart, periodEnd time.Time) []*models.UsageEvent

// Result is the outcome of one billing pass over one subscription.
type Result struct {
	Invoice *models.Invoice
	Payment *models.Payment
}

// Engine bills subscriptions against the plan catalog.
type Engine struct {
	catalog *catalog.Catalog
	rng     simrand.Source
	ids     *simrand.IDGen
}

// New returns an engine drawing payment outcomes from rng.
func New(cat *catalog.Catalog, rng simrand.Source, ids *simrand.IDGen) *Engine {
	return &Engine{catalog: cat, rng: rng, ids: ids}
}

// Bill advances the subscription's billing if due. It returns a nil Result
// when nothing was due. Canceled, trialing and paused subscriptions are
// skipped. A plan missing from the catalog or a non-positive quantity is a
// configuration error.
func (e *Engine) Bill(st *store.Store, sub *models.Subscription, pol policy.Policy, now time.Time, usage UsageFunc) (*Result, error) {
	if !sub.Billable() {
		return nil, nil
	}
	plan, err := e.catalog.Lookup(sub.PlanID)
	if err != nil {
		return nil, fmt.Errorf("bill subscription %s: %w", sub.ID, err)
	}
	if sub.Quantity <= 0 {
		return nil, fmt.Errorf("bill subscription %s: %w (got %d)", sub.ID, ErrInvalidQuantity, sub.Quantity)
	}

	if inv, ok := st.InvoiceForPeriod(sub.ID, sub.CurrentPeriodStart); ok {
		if inv.Status != models.InvoicePaid {
			// Open invoice: recovery is the lifecycle machine's business.
			return nil, nil
		}
		if now.Before(sub.CurrentPeriodEnd) {
			return nil, nil
		}
		// Current period is settled and has elapsed.
		if sub.CancelAtPeriodEnd {
			e.finalizeCancel(st, sub, now)
			return nil, nil
		}
		sub.CurrentPeriodStart = sub.CurrentPeriodEnd
		sub.CurrentPeriodEnd = plan.PeriodEnd(sub.CurrentPeriodStart)
	}

	periodStart, periodEnd := sub.CurrentPeriodStart, sub.CurrentPeriodEnd
	if usage != nil {
		for _, u := range usage(sub, periodStart, periodEnd) {
			st.AddUsage(u)
		}
	}

	inv, err := e.buildInvoice(st, sub, plan, periodStart, periodEnd, now)
	if err != nil {
		return nil, err
	}
	pay := e.attemptPayment(st, sub, inv, pol, now)
	return &Result{Invoice: inv, Payment: pay}, nil
}

// buildInvoice assembles the base line plus one line per usage dimension
// with nonzero quantity, in lexical dimension order so output is stable.
func (e *Engine) buildInvoice(st *store.Store, sub *models.Subscription, plan models.Plan, periodStart, periodEnd, now time.Time) (*models.Invoice, error) {
	inv := &models.Invoice{
		ID:             e.ids.Invoice(),
		SubscriptionID: sub.ID,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		Status:         models.InvoiceDraft,
		CreatedAt:      now,
	}

	base := plan.UnitPrice * sub.Quantity
	inv.Lines = append(inv.Lines, models.LineItem{
		ID:          e.ids.LineItem(),
		InvoiceID:   inv.ID,
		Description: fmt.Sprintf("%s - %d seats", plan.Name, sub.Quantity),
		Quantity:    sub.Quantity,
		Amount:      base,
	})

	totals := make(map[string]int64)
	for _, u := range st.UsageInWindow(sub.ID, periodStart, periodEnd) {
		totals[u.Dimension] += u.Quantity
	}
	dims := make([]string, 0, len(totals))
	for dim := range totals {
		dims = append(dims, dim)
	}
	sort.Strings(dims)
	for _, dim := range dims {
		qty := totals[dim]
		rate, ok := plan.UsageRates[dim]
		if !ok || qty <= 0 {
			continue
		}
		inv.Lines = append(inv.Lines, models.LineItem{
			ID:          e.ids.LineItem(),
			InvoiceID:   inv.ID,
			Description: fmt.Sprintf("Usage: %s x %d", dim, qty),
			Dimension:   dim,
			Quantity:    qty,
			Amount:      rate * qty,
		})
	}

	for _, line := range inv.Lines {
		inv.AmountDue += line.Amount
	}
	if err := st.AddInvoice(inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// attemptPayment simulates the charge for a fresh invoice. Active
// subscriptions succeed at 1 - failed_payment_rate; a subscription already
// past due is retried at a flat, much lower rate.
func (e *Engine) attemptPayment(st *store.Store, sub *models.Subscription, inv *models.Invoice, pol policy.Policy, now time.Time) *models.Payment {
	successRate := 1 - pol.FailedPaymentRate
	if sub.Status == models.StatusPastDue {
		successRate = policy.RetryPaymentSuccessRate
	}

	pay := &models.Payment{
		ID:        e.ids.Payment(),
		InvoiceID: inv.ID,
		Amount:    inv.AmountDue,
		Attempt:   st.PaymentAttempts(inv.ID) + 1,
		CreatedAt: now,
	}
	if simrand.Chance(e.rng, successRate) {
		pay.Outcome = models.PaymentSucceeded
		inv.Status = models.InvoicePaid
	} else {
		pay.Outcome = models.PaymentFailed
		pay.FailureReason = simrand.Weighted(e.rng, policy.FailureReasons)
		inv.Status = models.InvoiceOpen
	}
	st.AddPayment(pay)
	return pay
}

// Settle marks the subscription's open invoice as collected after the
// lifecycle machine recovered it. Returns the recording payment, or nil when
// there was no open invoice to settle.
func (e *Engine) Settle(st *store.Store, sub *models.Subscription, now time.Time) *models.Payment {
	inv, ok := st.InvoiceForPeriod(sub.ID, sub.CurrentPeriodStart)
	if !ok || inv.Status != models.InvoiceOpen {
		return nil
	}
	inv.Status = models.InvoicePaid
	pay := &models.Payment{
		ID:        e.ids.Payment(),
		InvoiceID: inv.ID,
		Amount:    inv.AmountDue,
		Outcome:   models.PaymentSucceeded,
		Attempt:   st.PaymentAttempts(inv.ID) + 1,
		CreatedAt: now,
	}
	st.AddPayment(pay)
	return pay
}

// finalizeCancel completes a scheduled end-of-period cancellation once the
// final period has been billed and has elapsed.
func (e *Engine) finalizeCancel(st *store.Store, sub *models.Subscription, now time.Time) {
	sub.Status = models.StatusCanceled
	sub.CanceledAt = &now
	sub.CancelAtPeriodEnd = false
	st.AddEvent(&models.LifecycleEvent{
		ID:             e.ids.Event(),
		Type:           models.EventPeriodEndCanceled,
		SubscriptionID: sub.ID,
		SubscriberID:   sub.SubscriberID,
		Timestamp:      now,
	})
}
