// Package sim wires the lifecycle machine, the billing engine and the
// revenue allocator into a deterministic step loop. One run, one seed, one
// dataset: two runs with the same Config produce byte-identical output.
package sim

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"revsim/internal/billing"
	"revsim/internal/catalog"
	"revsim/internal/lifecycle"
	"revsim/internal/logging"
	"revsim/internal/metrics"
	"revsim/internal/policy"
	"revsim/internal/revenue"
	"revsim/internal/simrand"
	"revsim/internal/store"
	"revsim/pkg/models"
)

// Config controls one simulation run.
type Config struct {
	Seed          int64
	Months        int
	StepsPerMonth int
	Start         time.Time
}

// DefaultConfig is the standard 24-month run.
func DefaultConfig() Config {
	return Config{
		Seed:          42,
		Months:        24,
		StepsPerMonth: lifecycle.StepsPerMonth,
		Start:         time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Dataset is the complete output of a run.
type Dataset struct {
	Subscribers   []*models.Subscriber     `json:"subscribers"`
	Subscriptions []*models.Subscription   `json:"subscriptions"`
	Invoices      []*models.Invoice        `json:"invoices"`
	Payments      []*models.Payment        `json:"payments"`
	UsageEvents   []*models.UsageEvent     `json:"usage_events"`
	Transfers     []*models.Transfer       `json:"transfers"`
	Events        []*models.LifecycleEvent `json:"lifecycle_events"`
	Metrics       *models.MetricsSnapshot  `json:"metrics"`
}

// Simulation holds the run state. It is not safe for concurrent use; the
// step loop is intentionally single-threaded so the draw order, and
// therefore the output, is a pure function of the seed.
type Simulation struct {
	cfg      Config
	rng      simrand.Source
	ids      *simrand.IDGen
	store    *store.Store
	catalog  *catalog.Catalog
	policies policy.Table
	machine  *lifecycle.Machine
	engine   *billing.Engine
	schedule revenue.Schedule

	// pendingFail carries a billing failure into the next lifecycle step of
	// the same subscription.
	pendingFail map[string]string

	// payeeVolume accumulates gross collected per payee so the allocator's
	// tiered take rate responds to lifetime volume.
	payeeVolume map[string]int64

	log *zap.SugaredLogger
}

// New builds a simulation from cfg with the default catalog, policy table
// and revenue schedule.
func New(cfg Config) *Simulation {
	if cfg.StepsPerMonth <= 0 {
		cfg.StepsPerMonth = lifecycle.StepsPerMonth
	}
	rng := simrand.New(cfg.Seed)
	ids := simrand.NewIDGen(rng)
	cat := catalog.Default()
	return &Simulation{
		cfg:         cfg,
		rng:         rng,
		ids:         ids,
		store:       store.New(),
		catalog:     cat,
		policies:    policy.Default(),
		machine:     lifecycle.New(rng, ids),
		engine:      billing.New(cat, rng, ids),
		schedule:    revenue.DefaultSchedule(),
		pendingFail: make(map[string]string),
		payeeVolume: make(map[string]int64),
		log:         logging.S(),
	}
}

// Store exposes the underlying record store, mainly for tests and metrics.
func (s *Simulation) Store() *store.Store {
	return s.store
}

// Run executes the full simulation and assembles the dataset.
func (s *Simulation) Run() (*Dataset, error) {
	clock := NewClock(s.cfg.Start, 24*time.Hour)
	s.log.Infow("simulation starting",
		"seed", s.cfg.Seed, "months", s.cfg.Months, "start", s.cfg.Start.Format("2006-01-02"))

	for month := 0; month < s.cfg.Months; month++ {
		pol, err := s.policies.For(month)
		if err != nil {
			return nil, fmt.Errorf("simulate month %d: %w", month, err)
		}
		if err := s.runMonth(clock, month, pol); err != nil {
			return nil, err
		}
	}

	agg := metrics.New(s.store, s.catalog)
	snap := agg.Snapshot(clock.Now())
	snap.MRRTimeline = agg.Timeline(s.cfg.Start, s.cfg.Months, s.cfg.StepsPerMonth)

	s.log.Infow("simulation complete",
		"subscribers", len(s.store.Subscribers()),
		"invoices", len(s.store.Invoices()),
		"mrr_cents", snap.MRRCents,
		"churn_rate", snap.ChurnRate)

	return &Dataset{
		Subscribers:   s.store.Subscribers(),
		Subscriptions: s.store.Subscriptions(),
		Invoices:      s.store.Invoices(),
		Payments:      s.store.Payments(),
		UsageEvents:   s.store.UsageEvents(),
		Transfers:     s.store.Transfers(),
		Events:        s.store.Events(),
		Metrics:       snap,
	}, nil
}

// runMonth advances the clock through one simulated month: acquisition
// spread over the days, then one lifecycle and billing step per
// subscription per day, in creation order.
func (s *Simulation) runMonth(clock *Clock, month int, pol policy.Policy) error {
	monthStart := clock.Now()
	target := float64(simrand.Between(s.rng, pol.NewSubscribersMin, pol.NewSubscribersMax)) *
		policy.SeasonalMultiplier(monthStart.Month()) *
		simrand.Uniform(s.rng, 0.8, 1.2)
	perDay := target / float64(s.cfg.StepsPerMonth)

	var carry float64
	acquired := 0
	for day := 0; day < s.cfg.StepsPerMonth; day++ {
		now := clock.Now()

		carry += perDay
		n := int(carry)
		carry -= float64(n)
		for i := 0; i < n; i++ {
			if err := s.acquire(now, pol); err != nil {
				return fmt.Errorf("acquire subscriber: %w", err)
			}
		}
		acquired += n

		var stepErr error
		s.store.EachSubscription(func(sub *models.Subscription) {
			if stepErr != nil {
				return
			}
			stepErr = s.stepSubscription(sub, pol, now)
		})
		if stepErr != nil {
			return stepErr
		}
		clock.Advance()
	}

	s.log.Infow("month simulated",
		"month", month,
		"stage", pol.Stage,
		"new_subscribers", acquired,
		"subscriptions", len(s.store.Subscriptions()))
	return nil
}

// stepSubscription runs one day for one subscription: the lifecycle machine
// first, with any billing failure from the previous step fed in, then the
// billing engine.
func (s *Simulation) stepSubscription(sub *models.Subscription, pol policy.Policy, now time.Time) error {
	subscriber, ok := s.store.Subscriber(sub.SubscriberID)
	if !ok {
		return fmt.Errorf("subscription %s: subscriber %s missing", sub.ID, sub.SubscriberID)
	}
	plan, err := s.catalog.Lookup(sub.PlanID)
	if err != nil {
		return fmt.Errorf("subscription %s: %w", sub.ID, err)
	}

	in := lifecycle.Input{Now: now, Policy: pol, Plan: plan}
	if reason, failed := s.pendingFail[sub.ID]; failed {
		in.PaymentFailed = true
		in.FailureReason = reason
		delete(s.pendingFail, sub.ID)
	}

	for _, ev := range s.machine.Step(sub, subscriber, in) {
		s.store.AddEvent(ev)
		if ev.Type == models.EventPaymentRecovered {
			if pay := s.engine.Settle(s.store, sub, now); pay != nil {
				s.recordTransfer(subscriber, pay, now)
			}
		}
	}

	res, err := s.engine.Bill(s.store, sub, pol, now, s.usageFor)
	if err != nil {
		return err
	}
	if res == nil || res.Payment == nil {
		return nil
	}
	if res.Payment.Outcome == models.PaymentFailed {
		s.pendingFail[sub.ID] = res.Payment.FailureReason
	} else {
		s.recordTransfer(subscriber, res.Payment, now)
	}
	return nil
}

// recordTransfer splits a collected payment between platform and payee at
// the payee's current volume tier, then rolls the gross into that volume.
func (s *Simulation) recordTransfer(subscriber *models.Subscriber, pay *models.Payment, now time.Time) {
	payee := subscriber.Channel
	rate := s.schedule.RateFor(s.payeeVolume[payee])
	platform, amount := revenue.Split(pay.Amount, rate)
	s.store.AddTransfer(&models.Transfer{
		ID:          s.ids.Transfer(),
		InvoiceID:   pay.InvoiceID,
		Payee:       payee,
		Gross:       pay.Amount,
		PlatformFee: platform,
		PayeeAmount: amount,
		TakeRate:    rate,
		CreatedAt:   now,
	})
	s.payeeVolume[payee] += pay.Amount
}
