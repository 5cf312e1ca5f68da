package sim

import (
	"math"
	"time"

	"revsim/internal/catalog"
	"revsim/internal/simrand"
	"revsim/pkg/models"
)

// usageProfile is the metered-usage envelope for a company size. API call
// volumes are raw calls per day; the recorded events are in thousands.
type usageProfile struct {
	minDailyCalls int
	maxDailyCalls int
	minDailyGB    int
	maxDailyGB    int
}

var usageProfiles = map[string]usageProfile{
	"startup":    {100, 1_000, 1, 10},
	"smb":        {1_000, 10_000, 5, 50},
	"mid_market": {10_000, 100_000, 50, 500},
	"enterprise": {100_000, 1_000_000, 500, 5_000},
}

const weekendFactor = 0.7

// extraSeatChance is the probability a billing window carries an overage of
// seats beyond the subscribed quantity.
const extraSeatChance = 0.30

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// usageFor fabricates the metered usage for one billing window: one API-call
// event per day, one aggregate storage event, and occasionally a seat
// overage. Aggregates are stamped a day before the window ends so they fall
// inside the half-open invoice window.
func (s *Simulation) usageFor(sub *models.Subscription, periodStart, periodEnd time.Time) []*models.UsageEvent {
	subscriber, ok := s.store.Subscriber(sub.SubscriberID)
	if !ok {
		return nil
	}
	profile, ok := usageProfiles[subscriber.CompanySize]
	if !ok {
		profile = usageProfiles["startup"]
	}

	var events []*models.UsageEvent
	baseDaily := simrand.Between(s.rng, profile.minDailyCalls, profile.maxDailyCalls)
	for day := periodStart; day.Before(periodEnd); day = day.AddDate(0, 0, 1) {
		calls := float64(baseDaily) * simrand.Uniform(s.rng, 0.8, 1.2)
		if isWeekend(day) {
			calls *= weekendFactor
		}
		qty := int64(math.Round(calls / 1000))
		if qty <= 0 {
			continue
		}
		events = append(events, &models.UsageEvent{
			ID:             s.ids.UsageRecord(),
			SubscriptionID: sub.ID,
			Dimension:      catalog.DimAPICalls1K,
			Quantity:       qty,
			Timestamp:      day,
		})
	}

	aggregateAt := periodEnd.AddDate(0, 0, -1)
	days := int(periodEnd.Sub(periodStart).Hours() / 24)
	if days < 1 {
		days = 1
	}
	dailyGB := simrand.Between(s.rng, profile.minDailyGB, profile.maxDailyGB)
	storage := int64(float64(dailyGB*days) * simrand.Uniform(s.rng, 0.9, 1.1))
	if storage > 0 {
		events = append(events, &models.UsageEvent{
			ID:             s.ids.UsageRecord(),
			SubscriptionID: sub.ID,
			Dimension:      catalog.DimStorageGB,
			Quantity:       storage,
			Timestamp:      aggregateAt,
		})
	}

	if simrand.Chance(s.rng, extraSeatChance) {
		maxExtra := int(sub.Quantity / 10)
		if maxExtra < 1 {
			maxExtra = 1
		}
		events = append(events, &models.UsageEvent{
			ID:             s.ids.UsageRecord(),
			SubscriptionID: sub.ID,
			Dimension:      catalog.DimSeats,
			Quantity:       int64(simrand.Between(s.rng, 1, maxExtra)),
			Timestamp:      aggregateAt,
		})
	}
	return events
}
