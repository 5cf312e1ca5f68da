// Package models defines the record types emitted by the billing simulation:
// subscribers, subscriptions, invoices, payments, usage events, transfers and
// lifecycle events. Every type is a plain struct suitable for JSON export and
// gorm persistence.
package models

import (
	"time"
)

// BillingInterval is the cadence a plan renews on.
type BillingInterval string

const (
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

// Plan is immutable reference data owned by the catalog. Prices are integer
// minor-currency units (cents).
type Plan struct {
	ID            string           `json:"id" gorm:"primaryKey"`
	Name          string           `json:"name"`
	UnitPrice     int64            `json:"unit_price"`
	Interval      BillingInterval  `json:"interval"`
	IntervalCount int              `json:"interval_count"`
	UsageRates    map[string]int64 `json:"usage_rates" gorm:"serializer:json"`
}

// PeriodEnd returns the end of a billing period that starts at t.
func (p Plan) PeriodEnd(t time.Time) time.Time {
	switch p.Interval {
	case IntervalYear:
		return t.AddDate(p.IntervalCount, 0, 0)
	default:
		return t.AddDate(0, p.IntervalCount, 0)
	}
}

// MonthlyAmount normalizes the plan price for quantity seats to a monthly
// figure in cents. Annual plans divide by twelve, so the result is fractional.
func (p Plan) MonthlyAmount(quantity int64) float64 {
	months := float64(p.IntervalCount)
	if p.Interval == IntervalYear {
		months = 12 * float64(p.IntervalCount)
	}
	if months == 0 {
		return 0
	}
	return float64(p.UnitPrice*quantity) / months
}

// Subscriber is created once at acquisition. EngagementScore is read by the
// lifecycle machine but never mutated; only ChurnRisk is recomputed.
type Subscriber struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	SignupAt        time.Time `json:"signup_at" gorm:"index"`
	EngagementScore float64   `json:"engagement_score"`
	ChurnRisk       float64   `json:"churn_risk"`
	Channel         string    `json:"acquisition_channel"`
	CompanySize     string    `json:"company_size"`
	TrialDays       int       `json:"trial_days"`
}

// CohortMonth groups subscribers by signup month for cohort analytics.
func (s *Subscriber) CohortMonth() string {
	return s.SignupAt.UTC().Format("2006-01")
}

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	StatusTrialing SubscriptionStatus = "trialing"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusPaused   SubscriptionStatus = "paused"
)

// Subscription is owned by the lifecycle state machine for its status and
// period fields. It is never deleted; cancellation is terminal but the record
// survives so historical invoices keep their parent.
type Subscription struct {
	ID           string             `json:"id" gorm:"primaryKey"`
	SubscriberID string             `json:"subscriber_id" gorm:"index"`
	PlanID       string             `json:"plan_id" gorm:"index"`
	Quantity     int64              `json:"quantity"`
	Status       SubscriptionStatus `json:"status" gorm:"index;size:20"`
	CreatedAt    time.Time          `json:"created_at"`

	TrialEnd           *time.Time `json:"trial_end,omitempty"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`

	// RetryAttempt is stored and strictly monotonic within a past-due
	// episode; it resets to zero on recovery.
	RetryAttempt int `json:"retry_attempt"`

	PauseResumeAt *time.Time `json:"pause_resume_at,omitempty"`
	PausedAt      *time.Time `json:"paused_at,omitempty"`

	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	CanceledAt  *time.Time `json:"canceled_at,omitempty"`
}

// Billable reports whether the subscription is in a state the billing engine
// charges for.
func (s *Subscription) Billable() bool {
	return s.Status == StatusActive || s.Status == StatusPastDue
}

// Terminal reports whether the subscription has reached its final state.
func (s *Subscription) Terminal() bool {
	return s.Status == StatusCanceled
}

// UsageEvent is an append-only metered-usage record. Quantity is in the
// dimension's billing unit (for api_calls_1k that is thousands of calls).
type UsageEvent struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	SubscriptionID string    `json:"subscription_id" gorm:"index"`
	Dimension      string    `json:"dimension" gorm:"index;size:40"`
	Quantity       int64     `json:"quantity"`
	Timestamp      time.Time `json:"timestamp" gorm:"index"`
}

// InvoiceStatus is the settlement state of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft InvoiceStatus = "draft"
	InvoiceOpen  InvoiceStatus = "open"
	InvoicePaid  InvoiceStatus = "paid"
)

// LineItem is one charge on an invoice. Dimension is empty for the base plan
// line.
type LineItem struct {
	ID          string `json:"id" gorm:"primaryKey"`
	InvoiceID   string `json:"invoice_id" gorm:"index"`
	Description string `json:"description"`
	Dimension   string `json:"dimension,omitempty" gorm:"size:40"`
	Quantity    int64  `json:"quantity"`
	Amount      int64  `json:"amount"`
}

// Invoice covers exactly one billing period of one subscription. No two
// invoices ever share (subscription_id, period_start).
type Invoice struct {
	ID             string        `json:"id" gorm:"primaryKey"`
	SubscriptionID string        `json:"subscription_id" gorm:"uniqueIndex:idx_invoice_period,priority:1"`
	PeriodStart    time.Time     `json:"period_start" gorm:"uniqueIndex:idx_invoice_period,priority:2"`
	PeriodEnd      time.Time     `json:"period_end"`
	Lines          []LineItem    `json:"lines" gorm:"foreignKey:InvoiceID"`
	AmountDue      int64         `json:"amount_due"`
	Status         InvoiceStatus `json:"status" gorm:"index;size:10"`
	CreatedAt      time.Time     `json:"created_at"`
}

// PaymentOutcome is the simulated result of a payment attempt.
type PaymentOutcome string

const (
	PaymentSucceeded PaymentOutcome = "succeeded"
	PaymentFailed    PaymentOutcome = "failed"
)

// Payment is one attempt against an invoice. Attempt numbers start at 1 and
// increase across retries of the same invoice.
type Payment struct {
	ID            string         `json:"id" gorm:"primaryKey"`
	InvoiceID     string         `json:"invoice_id" gorm:"index"`
	Amount        int64          `json:"amount"`
	Outcome       PaymentOutcome `json:"outcome" gorm:"size:10"`
	FailureReason string         `json:"failure_reason,omitempty"`
	Attempt       int            `json:"attempt"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Transfer records the platform/payee split of a collected invoice amount.
// PlatformFee + PayeeAmount always equals Gross exactly.
type Transfer struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	InvoiceID   string    `json:"invoice_id" gorm:"index"`
	Payee       string    `json:"payee" gorm:"index;size:40"`
	Gross       int64     `json:"gross"`
	PlatformFee int64     `json:"platform_fee"`
	PayeeAmount int64     `json:"payee_amount"`
	TakeRate    float64   `json:"take_rate"`
	CreatedAt   time.Time `json:"created_at"`
}

// LifecycleEventType tags a state-machine transition record.
type LifecycleEventType string

const (
	EventTrialConverted    LifecycleEventType = "trial_converted"
	EventTrialExpired      LifecycleEventType = "trial_expired"
	EventVoluntaryChurn    LifecycleEventType = "voluntary_churn"
	EventPaymentFailed     LifecycleEventType = "payment_failed"
	EventPaused            LifecycleEventType = "subscription_paused"
	EventResumed           LifecycleEventType = "subscription_resumed"
	EventPaymentRecovered  LifecycleEventType = "payment_recovered"
	EventInvoluntaryChurn  LifecycleEventType = "involuntary_churn"
	EventPeriodEndCanceled LifecycleEventType = "canceled_at_period_end"
)

// LifecycleEvent is emitted for every observed transition, for observability
// and for the state-graph conformance checks in tests.
type LifecycleEvent struct {
	ID             string             `json:"id" gorm:"primaryKey"`
	Type           LifecycleEventType `json:"type" gorm:"index;size:30"`
	SubscriptionID string             `json:"subscription_id" gorm:"index"`
	SubscriberID   string             `json:"subscriber_id"`
	Timestamp      time.Time          `json:"timestamp"`
	Reason         string             `json:"reason,omitempty"`
	Attempt        int                `json:"attempt,omitempty"`
}

// MRRPoint is one month of the MRR timeline.
type MRRPoint struct {
	Month    string  `json:"month"`
	MRRCents float64 `json:"mrr_cents"`
}

// MetricsSnapshot is the on-demand analytics output of the aggregator.
type MetricsSnapshot struct {
	GeneratedAt         time.Time          `json:"generated_at"`
	MRRCents            float64            `json:"mrr_cents"`
	ARRCents            float64            `json:"arr_cents"`
	ChurnRate           float64            `json:"churn_rate"`
	ARPUCents           float64            `json:"arpu_cents"`
	ActiveSubscriptions int                `json:"active_subscriptions"`
	TotalSubscriptions  int                `json:"total_subscriptions"`
	TotalRevenueCents   int64              `json:"total_revenue_cents"`
	PaymentSuccessRate  float64            `json:"payment_success_rate"`
	PlanDistribution    map[string]int     `json:"plan_distribution"`
	CohortLTVCents      map[string]float64 `json:"cohort_ltv_cents"`
	MRRTimeline         []MRRPoint         `json:"mrr_timeline,omitempty"`
}
