// Package store is the in-process arena holding every record the simulation
// produces. It replaces the mutate-a-global-list pattern of the modeled
// system with an explicit store passed to each step: subscriptions are keyed
// by id with stable creation order, invoices are indexed so the
// one-invoice-per-period invariant is enforced at the write site, and the
// event/payment/usage logs are append-only.
//
// The store is single-writer by construction: only the lifecycle machine and
// the billing engine mutate it during a step, and the metrics aggregator
// only reads.
package store

import (
	"errors"
	"fmt"
	"time"

	"revsim/pkg/models"
)

// ErrDuplicateInvoice signals a second invoice for the same subscription and
// period start, which the billing engine must never produce.
var ErrDuplicateInvoice = errors.New("store: duplicate invoice for subscription period")

type invoiceKey struct {
	subscriptionID string
	periodStart    int64
}

// Store holds the full simulation state and history.
type Store struct {
	subscribers     map[string]*models.Subscriber
	subscriberOrder []string

	subscriptions     map[string]*models.Subscription
	subscriptionOrder []string

	invoices      []*models.Invoice
	invoiceIndex  map[invoiceKey]*models.Invoice
	payments      []*models.Payment
	paymentCounts map[string]int

	usage       []*models.UsageEvent
	usageBySub  map[string][]*models.UsageEvent
	transfers   []*models.Transfer
	events      []*models.LifecycleEvent
}

// New returns an empty store.
func New() *Store {
	return &Store{
		subscribers:   make(map[string]*models.Subscriber),
		subscriptions: make(map[string]*models.Subscription),
		invoiceIndex:  make(map[invoiceKey]*models.Invoice),
		paymentCounts: make(map[string]int),
		usageBySub:    make(map[string][]*models.UsageEvent),
	}
}

// AddSubscriber registers a new subscriber.
func (s *Store) AddSubscriber(sub *models.Subscriber) {
	if _, ok := s.subscribers[sub.ID]; !ok {
		s.subscriberOrder = append(s.subscriberOrder, sub.ID)
	}
	s.subscribers[sub.ID] = sub
}

// Subscriber looks up a subscriber by id.
func (s *Store) Subscriber(id string) (*models.Subscriber, bool) {
	sub, ok := s.subscribers[id]
	return sub, ok
}

// AddSubscription registers a new subscription at the end of the processing
// order.
func (s *Store) AddSubscription(sub *models.Subscription) {
	if _, ok := s.subscriptions[sub.ID]; !ok {
		s.subscriptionOrder = append(s.subscriptionOrder, sub.ID)
	}
	s.subscriptions[sub.ID] = sub
}

// Subscription looks up a subscription by id.
func (s *Store) Subscription(id string) (*models.Subscription, bool) {
	sub, ok := s.subscriptions[id]
	return sub, ok
}

// EachSubscription visits subscriptions in creation order. The visit order is
// part of the determinism contract: it fixes the sequence of random draws.
func (s *Store) EachSubscription(fn func(*models.Subscription)) {
	for _, id := range s.subscriptionOrder {
		fn(s.subscriptions[id])
	}
}

// AddInvoice appends an invoice, rejecting a duplicate period.
func (s *Store) AddInvoice(inv *models.Invoice) error {
	key := invoiceKey{inv.SubscriptionID, inv.PeriodStart.UnixNano()}
	if _, ok := s.invoiceIndex[key]; ok {
		return fmt.Errorf("%w: %s at %s", ErrDuplicateInvoice, inv.SubscriptionID, inv.PeriodStart)
	}
	s.invoiceIndex[key] = inv
	s.invoices = append(s.invoices, inv)
	return nil
}

// InvoiceForPeriod returns the invoice covering (subscriptionID, periodStart)
// if one exists.
func (s *Store) InvoiceForPeriod(subscriptionID string, periodStart time.Time) (*models.Invoice, bool) {
	inv, ok := s.invoiceIndex[invoiceKey{subscriptionID, periodStart.UnixNano()}]
	return inv, ok
}

// AddPayment appends a payment attempt record.
func (s *Store) AddPayment(p *models.Payment) {
	s.payments = append(s.payments, p)
	s.paymentCounts[p.InvoiceID]++
}

// PaymentAttempts returns how many attempts have been recorded against an
// invoice.
func (s *Store) PaymentAttempts(invoiceID string) int {
	return s.paymentCounts[invoiceID]
}

// AddUsage appends a metered usage event.
func (s *Store) AddUsage(u *models.UsageEvent) {
	s.usage = append(s.usage, u)
	s.usageBySub[u.SubscriptionID] = append(s.usageBySub[u.SubscriptionID], u)
}

// UsageInWindow returns a subscription's usage events with timestamps in
// [start, end), in append order.
func (s *Store) UsageInWindow(subscriptionID string, start, end time.Time) []*models.UsageEvent {
	var out []*models.UsageEvent
	for _, u := range s.usageBySub[subscriptionID] {
		if !u.Timestamp.Before(start) && u.Timestamp.Before(end) {
			out = append(out, u)
		}
	}
	return out
}

// AddTransfer appends a revenue-split record.
func (s *Store) AddTransfer(t *models.Transfer) {
	s.transfers = append(s.transfers, t)
}

// AddEvent appends a lifecycle event.
func (s *Store) AddEvent(e *models.LifecycleEvent) {
	s.events = append(s.events, e)
}

// Snapshot accessors. Slices are copies of the pointers in append/creation
// order; callers must treat the records as read-only.

func (s *Store) Subscribers() []*models.Subscriber {
	out := make([]*models.Subscriber, 0, len(s.subscriberOrder))
	for _, id := range s.subscriberOrder {
		out = append(out, s.subscribers[id])
	}
	return out
}

func (s *Store) Subscriptions() []*models.Subscription {
	out := make([]*models.Subscription, 0, len(s.subscriptionOrder))
	for _, id := range s.subscriptionOrder {
		out = append(out, s.subscriptions[id])
	}
	return out
}

func (s *Store) Invoices() []*models.Invoice {
	out := make([]*models.Invoice, len(s.invoices))
	copy(out, s.invoices)
	return out
}

func (s *Store) Payments() []*models.Payment {
	out := make([]*models.Payment, len(s.payments))
	copy(out, s.payments)
	return out
}

func (s *Store) UsageEvents() []*models.UsageEvent {
	out := make([]*models.UsageEvent, len(s.usage))
	copy(out, s.usage)
	return out
}

func (s *Store) Transfers() []*models.Transfer {
	out := make([]*models.Transfer, len(s.transfers))
	copy(out, s.transfers)
	return out
}

func (s *Store) Events() []*models.LifecycleEvent {
	out := make([]*models.LifecycleEvent, len(s.events))
	copy(out, s.events)
	return out
}
