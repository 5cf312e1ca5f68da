// Package metrics derives analytics from the accumulated simulation history.
// Every query is read-only and every division is zero-guarded: an empty
// denominator yields 0, never an error.
package metrics

import (
	"sort"
	"time"

	"revsim/internal/catalog"
	"revsim/internal/store"
	"revsim/pkg/models"
)

// Aggregator answers point-in-time and windowed analytics queries against a
// store snapshot.
type Aggregator struct {
	store   *store.Store
	catalog *catalog.Catalog
}

// New returns an aggregator over st, using cat to normalize plan prices.
func New(st *store.Store, cat *catalog.Catalog) *Aggregator {
	return &Aggregator{store: st, catalog: cat}
}

// billableAt reports whether the subscription counts toward recurring
// revenue at time t: it had activated, had not been canceled, and was not on
// a hold that began by t. Pause intervals that have since ended are not
// reconstructed; the figure is exact for the snapshot time.
func billableAt(sub *models.Subscription, t time.Time) bool {
	if sub.ActivatedAt == nil || sub.ActivatedAt.After(t) {
		return false
	}
	if sub.CanceledAt != nil && !sub.CanceledAt.After(t) {
		return false
	}
	if sub.PausedAt != nil && !sub.PausedAt.After(t) {
		return false
	}
	return true
}

// MRR returns monthly recurring revenue in cents at time t. Annual plans
// contribute a twelfth of their price per month.
func (a *Aggregator) MRR(t time.Time) float64 {
	var mrr float64
	for _, sub := range a.store.Subscriptions() {
		if !billableAt(sub, t) {
			continue
		}
		plan, err := a.catalog.Lookup(sub.PlanID)
		if err != nil {
			continue
		}
		mrr += plan.MonthlyAmount(sub.Quantity)
	}
	return mrr
}

// ARR returns annualized recurring revenue in cents at time t.
func (a *Aggregator) ARR(t time.Time) float64 {
	return a.MRR(t) * 12
}

// ActiveCount returns the number of revenue-bearing subscriptions at t.
func (a *Aggregator) ActiveCount(t time.Time) int {
	n := 0
	for _, sub := range a.store.Subscriptions() {
		if billableAt(sub, t) {
			n++
		}
	}
	return n
}

// ARPU returns average revenue per subscription in cents at t, 0 when none
// are active.
func (a *Aggregator) ARPU(t time.Time) float64 {
	active := a.ActiveCount(t)
	if active == 0 {
		return 0
	}
	return a.MRR(t) / float64(active)
}

// ChurnRate returns the fraction of subscriptions active at windowStart that
// canceled within (windowStart, windowEnd]. A window with no starting
// population churns at 0.
func (a *Aggregator) ChurnRate(windowStart, windowEnd time.Time) float64 {
	activeAtStart := 0
	churned := 0
	for _, sub := range a.store.Subscriptions() {
		if !billableAt(sub, windowStart) {
			continue
		}
		activeAtStart++
		if sub.CanceledAt != nil && sub.CanceledAt.After(windowStart) && !sub.CanceledAt.After(windowEnd) {
			churned++
		}
	}
	if activeAtStart == 0 {
		return 0
	}
	return float64(churned) / float64(activeAtStart)
}

// CohortLTV groups subscribers by signup month and returns, per cohort, the
// average total paid-invoice amount per subscriber, in cents.
func (a *Aggregator) CohortLTV() map[string]float64 {
	subscriberBySub := make(map[string]string)
	for _, sub := range a.store.Subscriptions() {
		subscriberBySub[sub.ID] = sub.SubscriberID
	}

	revenue := make(map[string]int64)
	for _, inv := range a.store.Invoices() {
		if inv.Status != models.InvoicePaid {
			continue
		}
		if owner, ok := subscriberBySub[inv.SubscriptionID]; ok {
			revenue[owner] += inv.AmountDue
		}
	}

	cohortTotal := make(map[string]int64)
	cohortSize := make(map[string]int)
	for _, s := range a.store.Subscribers() {
		cohort := s.CohortMonth()
		cohortSize[cohort]++
		cohortTotal[cohort] += revenue[s.ID]
	}

	out := make(map[string]float64, len(cohortSize))
	for cohort, size := range cohortSize {
		if size == 0 {
			out[cohort] = 0
			continue
		}
		out[cohort] = float64(cohortTotal[cohort]) / float64(size)
	}
	return out
}

// Timeline returns the MRR at each simulated month boundary from start, one
// point per month. The measurement time advances by stepsPerMonth days per
// point to stay on the simulation's step grid, while the label advances by
// calendar month so every key is unique and consecutive.
func (a *Aggregator) Timeline(start time.Time, months, stepsPerMonth int) []models.MRRPoint {
	points := make([]models.MRRPoint, 0, months)
	for m := 0; m < months; m++ {
		t := start.AddDate(0, 0, m*stepsPerMonth)
		points = append(points, models.MRRPoint{
			Month:    start.AddDate(0, m, 0).UTC().Format("2006-01"),
			MRRCents: a.MRR(t),
		})
	}
	return points
}

// Snapshot assembles the full analytics output at time t, with churn
// measured over the trailing 30 days.
func (a *Aggregator) Snapshot(t time.Time) *models.MetricsSnapshot {
	subs := a.store.Subscriptions()

	planDist := make(map[string]int)
	for _, sub := range subs {
		if billableAt(sub, t) {
			planDist[sub.PlanID]++
		}
	}

	var totalRevenue int64
	for _, inv := range a.store.Invoices() {
		if inv.Status == models.InvoicePaid {
			totalRevenue += inv.AmountDue
		}
	}

	payments := a.store.Payments()
	succeeded := 0
	for _, p := range payments {
		if p.Outcome == models.PaymentSucceeded {
			succeeded++
		}
	}
	successRate := 0.0
	if len(payments) > 0 {
		successRate = float64(succeeded) / float64(len(payments))
	}

	mrr := a.MRR(t)
	return &models.MetricsSnapshot{
		GeneratedAt:         t,
		MRRCents:            mrr,
		ARRCents:            mrr * 12,
		ChurnRate:           a.ChurnRate(t.AddDate(0, 0, -30), t),
		ARPUCents:           a.ARPU(t),
		ActiveSubscriptions: a.ActiveCount(t),
		TotalSubscriptions:  len(subs),
		TotalRevenueCents:   totalRevenue,
		PaymentSuccessRate:  successRate,
		PlanDistribution:    planDist,
		CohortLTVCents:      a.CohortLTV(),
	}
}

// Cohorts returns the cohort keys in chronological order, a convenience for
// stable reporting.
func Cohorts(ltv map[string]float64) []string {
	keys := make([]string, 0, len(ltv))
	for k := range ltv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
