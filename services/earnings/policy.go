package earnings

import (
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/score"
	"github.com/ishaamahadeva-India/pompomm/services/campaign"
	"github.com/ishaamahadeva-India/pompomm/services/tier"

	"github.com/shopspring/decimal"
)

const (
	// EngagementFloor is the absolute engagement rate below which nothing is earned.
	EngagementFloor = 15.0

	CapWindowDays = 30

	VelocityBucket    = 10 * time.Minute
	VelocityShare     = 0.5
	VelocityMinEvents = 2

	CRSBoostAt   = 85.0
	CRSPenaltyAt = 35.0
)

var (
	velocityDampener = decimal.NewFromFloat(0.7)
	crsCapBoost      = decimal.NewFromFloat(1.1)
	crsCapPenalty    = decimal.NewFromFloat(0.5)
)

// CapMultiplier scales the daily payout cap by tier.
func CapMultiplier(t tier.Tier) decimal.Decimal {
	switch t {
	case tier.TierSilver:
		return decimal.NewFromFloat(1.25)
	case tier.TierGold:
		return decimal.NewFromFloat(1.5)
	case tier.TierVerified:
		return decimal.NewFromInt(2)
	default:
		return decimal.NewFromInt(1)
	}
}

// PayoutMultiplier scales the final amount by tier.
func PayoutMultiplier(t tier.Tier) decimal.Decimal {
	switch t {
	case tier.TierSilver:
		return decimal.NewFromFloat(1.1)
	case tier.TierGold:
		return decimal.NewFromFloat(1.2)
	case tier.TierVerified:
		return decimal.NewFromFloat(1.3)
	default:
		return decimal.NewFromInt(1)
	}
}

// Eligible applies the campaign thresholds and the absolute engagement floor.
func Eligible(c *campaign.DistributionCampaign, uniqueViews int64, rate score.Score) bool {
	r := rate.Float64()
	return uniqueViews >= c.MinUniqueViews() && r >= c.MinEngagementRate() && r >= EngagementFloor
}

// BaseAmount is the uncapped amount of the campaign payout model.
func BaseAmount(c *campaign.DistributionCampaign, uniqueViews int64) (decimal.Decimal, error) {
	if c.PayoutModel == campaign.PayoutModelFixedMilestone {
		milestones := uniqueViews / campaign.MilestoneViewStep
		return c.MilestonePayout().Mul(decimal.NewFromInt(milestones)), nil
	}

	steps, err := c.TierTable()
	if err != nil {
		return decimal.Zero, err
	}
	amount := decimal.Zero
	for _, s := range steps {
		if uniqueViews >= s.Views {
			amount = s.Amount
		}
	}
	return amount, nil
}

// DailyCap is the per-user daily cap after tier and CRS modifiers. An unknown
// CRS applies no modifier.
func DailyCap(c *campaign.DistributionCampaign, t tier.Tier, crs score.Score, crsKnown bool) decimal.Decimal {
	daily := c.MaxDailyPayout().Mul(CapMultiplier(t))
	if !crsKnown {
		return daily
	}
	switch v := crs.Float64(); {
	case v >= CRSBoostAt:
		daily = daily.Mul(crsCapBoost)
	case v < CRSPenaltyAt:
		daily = daily.Mul(crsCapPenalty)
	}
	return daily
}

// VelocitySpike reports whether one VelocityBucket holds at least
// VelocityShare of the view timestamps.
func VelocitySpike(views []time.Time) bool {
	if len(views) < VelocityMinEvents {
		return false
	}
	buckets := map[int64]int{}
	top := 0
	width := int64(VelocityBucket / time.Second)
	for _, at := range views {
		b := at.Unix() / width
		buckets[b]++
		if buckets[b] > top {
			top = buckets[b]
		}
	}
	return float64(top)/float64(len(views)) >= VelocityShare
}

// Amount combines the pieces in order: cap, velocity, tier multiplier, 2dp.
func Amount(base, dailyCap decimal.Decimal, spike bool, t tier.Tier) decimal.Decimal {
	total := decimal.Min(base, dailyCap.Mul(decimal.NewFromInt(CapWindowDays)))
	if spike {
		total = total.Mul(velocityDampener)
	}
	return total.Mul(PayoutMultiplier(t)).Round(2)
}
