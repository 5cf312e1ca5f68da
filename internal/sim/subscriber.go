package sim

import (
	"time"

	"revsim/internal/lifecycle"
	"revsim/internal/policy"
	"revsim/internal/simrand"
	"revsim/pkg/models"
)

// companySize shapes plan selection, seat counts and usage volume.
type companySize struct {
	name     string
	weight   float64
	minSeats int
	maxSeats int
	monthly  []string
	annual   []string
}

var companySizes = []companySize{
	{
		name: "startup", weight: 40, minSeats: 1, maxSeats: 5,
		monthly: []string{"starter"},
		annual:  []string{"starter_annual"},
	},
	{
		name: "smb", weight: 35, minSeats: 3, maxSeats: 20,
		monthly: []string{"starter", "professional"},
		annual:  []string{"starter_annual", "professional_annual"},
	},
	{
		name: "mid_market", weight: 20, minSeats: 15, maxSeats: 100,
		monthly: []string{"professional", "enterprise"},
		annual:  []string{"professional_annual", "enterprise_annual"},
	},
	{
		name: "enterprise", weight: 5, minSeats: 50, maxSeats: 500,
		monthly: []string{"enterprise"},
		annual:  []string{"enterprise_annual"},
	},
}

var acquisitionChannels = []simrand.WeightedItem{
	{Value: "organic", Weight: 0.25},
	{Value: "paid_social", Weight: 0.30},
	{Value: "referral", Weight: 0.20},
	{Value: "influencer", Weight: 0.15},
	{Value: "corporate", Weight: 0.10},
}

// trialingShare is the fraction of signups that start on a trial; the rest
// activate immediately.
const trialingShare = 0.85

func sizeByName(name string) companySize {
	for _, cs := range companySizes {
		if cs.name == name {
			return cs
		}
	}
	return companySizes[0]
}

func pickCompanySize(r simrand.Source) companySize {
	items := make([]simrand.WeightedItem, len(companySizes))
	for i, cs := range companySizes {
		items[i] = simrand.WeightedItem{Value: cs.name, Weight: cs.weight}
	}
	return sizeByName(simrand.Weighted(r, items))
}

// acquire creates one subscriber and their subscription at now under the
// stage policy, registering both in the store.
func (s *Simulation) acquire(now time.Time, pol policy.Policy) error {
	size := pickCompanySize(s.rng)

	subscriber := &models.Subscriber{
		ID:              s.ids.Subscriber(),
		SignupAt:        now,
		EngagementScore: simrand.Gauss(s.rng, 65, 20, 10, 100),
		Channel:         simrand.Weighted(s.rng, acquisitionChannels),
		CompanySize:     size.name,
		TrialDays:       simrand.Pick(s.rng, policy.TrialLengths),
	}
	subscriber.ChurnRisk = lifecycle.ChurnRisk(subscriber.EngagementScore, 0)
	s.store.AddSubscriber(subscriber)

	planIDs := size.monthly
	if simrand.Chance(s.rng, pol.AnnualShare) && len(size.annual) > 0 {
		planIDs = size.annual
	}
	planID := simrand.Pick(s.rng, planIDs)
	plan, err := s.catalog.Lookup(planID)
	if err != nil {
		return err
	}

	sub := &models.Subscription{
		ID:           s.ids.Subscription(),
		SubscriberID: subscriber.ID,
		PlanID:       planID,
		Quantity:     int64(simrand.Between(s.rng, size.minSeats, size.maxSeats)),
		CreatedAt:    now,
	}
	if simrand.Chance(s.rng, trialingShare) {
		trialEnd := now.AddDate(0, 0, subscriber.TrialDays)
		sub.Status = models.StatusTrialing
		sub.TrialEnd = &trialEnd
		sub.CurrentPeriodStart = now
		sub.CurrentPeriodEnd = trialEnd
	} else {
		activated := now
		sub.Status = models.StatusActive
		sub.ActivatedAt = &activated
		sub.CurrentPeriodStart = now
		sub.CurrentPeriodEnd = plan.PeriodEnd(now)
	}
	s.store.AddSubscription(sub)
	return nil
}
