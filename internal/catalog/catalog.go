// Package catalog owns the immutable plan reference data consumed by the
// billing engine and the metrics aggregator.
package catalog

import (
	"errors"
	"fmt"

	"revsim/pkg/models"
)

// Usage dimensions metered on top of the base plan price. API calls are
// metered per thousand so the per-unit rate stays an integer cent amount.
const (
	DimAPICalls1K = "api_calls_1k"
	DimStorageGB  = "storage_gb"
	DimSeats      = "seats"
)

// ErrPlanNotFound is a fatal configuration error: the caller must supply a
// complete catalog before simulating.
var ErrPlanNotFound = errors.New("catalog: plan not found")

// Catalog is an immutable plan table with stable iteration order.
type Catalog struct {
	plans map[string]models.Plan
	order []string
}

// New builds a catalog from a plan list. Later duplicates overwrite earlier
// ones.
func New(plans ...models.Plan) *Catalog {
	c := &Catalog{plans: make(map[string]models.Plan, len(plans))}
	for _, p := range plans {
		if _, ok := c.plans[p.ID]; !ok {
			c.order = append(c.order, p.ID)
		}
		c.plans[p.ID] = p
	}
	return c
}

// Lookup resolves a plan id.
func (c *Catalog) Lookup(id string) (models.Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return models.Plan{}, fmt.Errorf("%w: %q", ErrPlanNotFound, id)
	}
	return p, nil
}

// IDs returns plan ids in registration order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Plans returns the plans in registration order.
func (c *Catalog) Plans() []models.Plan {
	out := make([]models.Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}

func standardUsageRates() map[string]int64 {
	// $1.00 per 1k API calls, $0.10 per GB, $15.00 per extra seat.
	return map[string]int64{
		DimAPICalls1K: 100,
		DimStorageGB:  10,
		DimSeats:      1500,
	}
}

// Default returns the three-tier catalog in monthly and annual variants.
// Annual prices carry roughly two free months.
func Default() *Catalog {
	return New(
		models.Plan{ID: "starter", Name: "Starter", UnitPrice: 4900,
			Interval: models.IntervalMonth, IntervalCount: 1, UsageRates: standardUsageRates()},
		models.Plan{ID: "professional", Name: "Professional", UnitPrice: 19900,
			Interval: models.IntervalMonth, IntervalCount: 1, UsageRates: standardUsageRates()},
		models.Plan{ID: "enterprise", Name: "Enterprise", UnitPrice: 99900,
			Interval: models.IntervalMonth, IntervalCount: 1, UsageRates: standardUsageRates()},
		models.Plan{ID: "starter_annual", Name: "Starter Annual", UnitPrice: 49000,
			Interval: models.IntervalYear, IntervalCount: 1, UsageRates: standardUsageRates()},
		models.Plan{ID: "professional_annual", Name: "Professional Annual", UnitPrice: 199000,
			Interval: models.IntervalYear, IntervalCount: 1, UsageRates: standardUsageRates()},
		models.Plan{ID: "enterprise_annual", Name: "Enterprise Annual", UnitPrice: 999000,
			Interval: models.IntervalYear, IntervalCount: 1, UsageRates: standardUsageRates()},
	)
}
