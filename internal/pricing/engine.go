package pricing

import (
	"math"
	"time"

	"tutorboard/pkg/types"
)

// fallbackPoints is the base price when neither the tier table nor the
// country tables can price a job.
const fallbackPoints = 100

const (
	maxBiddingUnlocks = 10
	idleThreshold     = 36 * time.Hour
	decayBlock        = 5 * time.Hour
)

// Snapshot is the immutable pricing reference data a quote is computed
// against. Tiers must be ordered by MinRate ascending.
type Snapshot struct {
	Tiers         []types.PricingTier
	CountryGroups map[string]string
	GroupPoints   map[string]int
}

// Quote computes the current unlock price of a job in points.
//
// The base comes from the job's normalized hourly rate via the tier table,
// or from its country group when budget or hours are missing. Each prior
// unlock inflates the price 10%, capped at ten unlocks, truncated after the
// compounded multiply. A job nobody has unlocked decays 5% per five-hour
// block past 36 idle hours, truncating after every block. The result never
// drops below 20% of the base, and never below one point.
func Quote(job *types.Job, unlockCount int, snap *Snapshot, now time.Time) int {
	base := basePoints(job, snap)
	price := dynamicPrice(job, base, unlockCount, now)
	if price < 1 {
		return 1
	}
	return price
}

// BasePoints exposes the pre-bidding base price, used by job previews.
func BasePoints(job *types.Job, snap *Snapshot) int {
	return basePoints(job, snap)
}

func basePoints(job *types.Job, snap *Snapshot) int {
	if job.Budget != nil && *job.Budget != 0 && job.TotalHours != nil && *job.TotalHours != 0 {
		return tierPoints(hourlyRate(job), snap.Tiers)
	}
	return countryPoints(job.Country, snap)
}

// hourlyRate normalizes any budget type to an hourly figure. Only callers
// that verified budget and hours are non-zero may use it.
func hourlyRate(job *types.Job) float64 {
	budget := *job.Budget
	if job.BudgetType == types.BudgetTypePerHour {
		return budget
	}
	return budget / *job.TotalHours
}

// tierPoints finds the tier containing the rate. Rates outside the table,
// including rates falling into a gap between tiers, resolve to the lowest
// tier unless they exceed a bounded highest tier.
func tierPoints(rate float64, tiers []types.PricingTier) int {
	if len(tiers) == 0 {
		return fallbackPoints
	}

	for _, tier := range tiers {
		if tier.Contains(rate) {
			return tier.Points
		}
	}

	lowest, highest := tiers[0], tiers[len(tiers)-1]
	if rate < lowest.MinRate {
		return lowest.Points
	}
	if highest.MaxRate != nil && rate > *highest.MaxRate {
		return highest.Points
	}
	return lowest.Points
}

func countryPoints(country string, snap *Snapshot) int {
	group, ok := snap.CountryGroups[country]
	if !ok {
		return fallbackPoints
	}
	points, ok := snap.GroupPoints[group]
	if !ok {
		return fallbackPoints
	}
	return points
}

func dynamicPrice(job *types.Job, base, unlockCount int, now time.Time) int {
	price := base

	effective := unlockCount
	if effective > maxBiddingUnlocks {
		effective = maxBiddingUnlocks
	}
	if effective > 0 {
		price = int(float64(price) * math.Pow(1.1, float64(effective)))
	}

	if unlockCount == 0 && !job.CreatedAt.IsZero() {
		idle := now.Sub(job.CreatedAt)
		if idle > idleThreshold {
			blocks := int((idle - idleThreshold) / decayBlock)
			for i := 0; i < blocks; i++ {
				price = int(float64(price) * 0.95)
			}
		}
	}

	floor := int(float64(base) * 0.20)
	if price < floor {
		return floor
	}
	return price
}
