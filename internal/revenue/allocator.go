// Package revenue splits collected amounts between the platform and the
// payee it remits to. The split is exact: the two shares always sum to the
// gross amount, with no rounding leakage.
package revenue

import "math"

// Split divides gross (minor units) at takeRate. The platform share is
// rounded to the nearest unit and the payee absorbs the remainder, so
// platform + payee == gross exactly.
func Split(gross int64, takeRate float64) (platform, payee int64) {
	platform = int64(math.Round(float64(gross) * takeRate))
	payee = gross - platform
	return platform, payee
}

// Tier is one band of the take-rate schedule: the rate applies from
// MinVolume (cumulative collected minor units) upward.
type Tier struct {
	Name      string
	MinVolume int64
	Rate      float64
}

// Schedule is an ascending list of tiers. Higher-volume payees keep more of
// the gross.
type Schedule []Tier

// DefaultSchedule mirrors the partner tiers of the modeled platform: new
// payees give up 30%, the largest 15%.
func DefaultSchedule() Schedule {
	return Schedule{
		{Name: "starter", MinVolume: 0, Rate: 0.30},
		{Name: "growth", MinVolume: 1_000_000, Rate: 0.25},
		{Name: "established", MinVolume: 10_000_000, Rate: 0.20},
		{Name: "premium", MinVolume: 100_000_000, Rate: 0.15},
	}
}

// RateFor returns the take rate for a payee's cumulative collected volume.
// An empty schedule charges nothing.
func (s Schedule) RateFor(volume int64) float64 {
	rate := 0.0
	for _, t := range s {
		if volume >= t.MinVolume {
			rate = t.Rate
		}
	}
	return rate
}
