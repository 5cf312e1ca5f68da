package catalog

import (
	"errors"
	"testing"
	"time"

	"revsim/pkg/models"
)

func TestLookupUnknownPlan(t *testing.T) {
	_, err := Default().Lookup("free_forever")
	if !errors.Is(err, ErrPlanNotFound) {
		t.Errorf("err = %v, want ErrPlanNotFound", err)
	}
}

func TestDefaultCatalogShape(t *testing.T) {
	cat := Default()
	if got := len(cat.IDs()); got != 6 {
		t.Fatalf("plan count = %d, want 6", got)
	}
	for _, p := range cat.Plans() {
		if p.UnitPrice <= 0 {
			t.Errorf("plan %s has non-positive price", p.ID)
		}
		if len(p.UsageRates) == 0 {
			t.Errorf("plan %s has no usage rates", p.ID)
		}
	}

	starter, err := cat.Lookup("starter")
	if err != nil {
		t.Fatal(err)
	}
	annual, err := cat.Lookup("starter_annual")
	if err != nil {
		t.Fatal(err)
	}
	if annual.UnitPrice >= starter.UnitPrice*12 {
		t.Error("annual plan should discount the monthly price")
	}
}

func TestPeriodEnd(t *testing.T) {
	start := time.Date(2023, time.March, 15, 0, 0, 0, 0, time.UTC)
	monthly := models.Plan{Interval: models.IntervalMonth, IntervalCount: 1}
	yearly := models.Plan{Interval: models.IntervalYear, IntervalCount: 1}

	if got := monthly.PeriodEnd(start); !got.Equal(start.AddDate(0, 1, 0)) {
		t.Errorf("monthly period end = %s", got)
	}
	if got := yearly.PeriodEnd(start); !got.Equal(start.AddDate(1, 0, 0)) {
		t.Errorf("yearly period end = %s", got)
	}
}

func TestMonthlyAmountNormalizesAnnual(t *testing.T) {
	annual := models.Plan{UnitPrice: 49000, Interval: models.IntervalYear, IntervalCount: 1}
	got := annual.MonthlyAmount(2)
	want := float64(49000*2) / 12
	if got != want {
		t.Errorf("MonthlyAmount = %v, want %v", got, want)
	}
}
