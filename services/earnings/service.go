package earnings

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/errutil"
	"github.com/ishaamahadeva-India/pompomm/pkg/logger"
	"github.com/ishaamahadeva-India/pompomm/pkg/score"
	"github.com/ishaamahadeva-India/pompomm/services/campaign"
	"github.com/ishaamahadeva-India/pompomm/services/fraud"
	"github.com/ishaamahadeva-India/pompomm/services/referral"
	"github.com/ishaamahadeva-India/pompomm/services/stats"
	"github.com/ishaamahadeva-India/pompomm/services/tier"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CRSReader resolves a creator's reliability score.
type CRSReader interface {
	Get(ctx context.Context, creatorID string) (score.Score, bool, error)
}

// TierReader resolves a creator's current tier.
type TierReader interface {
	Tier(ctx context.Context, creatorID string) (tier.Tier, error)
}

type Calculator struct {
	db    *gorm.DB
	audit *fraud.AuditLog
	crs   CRSReader
	tiers TierReader
	now   func() time.Time
}

type CalculatorParams struct {
	fx.In

	DB    *gorm.DB
	Audit *fraud.AuditLog
	CRS   CRSReader
	Tiers TierReader
}

func NewCalculator(p CalculatorParams) *Calculator {
	return &Calculator{
		db:    p.DB,
		audit: p.Audit,
		crs:   p.CRS,
		tiers: p.Tiers,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Recalculate derives total_earned of a pair from its stats, the campaign
// payout model, tier and CRS, and stores it. Re-running with unchanged inputs
// stores the same amount. A missing stats row earns 0 and writes nothing.
func (c *Calculator) Recalculate(ctx context.Context, campaignID, creatorID string) (decimal.Decimal, error) {
	zapLog := logger.FromContext(ctx, zap.String("campaign_id", campaignID), zap.String("creator_id", creatorID))

	var camp campaign.DistributionCampaign
	if err := c.db.WithContext(ctx).Where("id = ?", campaignID).Limit(1).Find(&camp).Error; err != nil {
		return decimal.Zero, errutil.Internal("failed to load campaign", err)
	}
	if camp.ID == "" {
		return decimal.Zero, errutil.NotFound("campaign not found", nil)
	}

	var row stats.CreatorCampaignStats
	if err := c.db.WithContext(ctx).Where("campaign_id = ? AND creator_id = ?", campaignID, creatorID).Limit(1).Find(&row).Error; err != nil {
		return decimal.Zero, errutil.Internal("failed to load stats", err)
	}
	if row.ID == "" {
		return decimal.Zero, nil
	}

	if !Eligible(&camp, row.UniqueViewCount, row.VerifiedEngagementRate) {
		if err := c.store(ctx, &row, decimal.Zero, false, nil); err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, nil
	}

	current, err := c.tiers.Tier(ctx, creatorID)
	if err != nil {
		return decimal.Zero, err
	}
	crs, known, err := c.crs.Get(ctx, creatorID)
	if err != nil {
		return decimal.Zero, err
	}

	base, err := BaseAmount(&camp, row.UniqueViewCount)
	if err != nil {
		zapLog.Error("invalid tier config", zap.Error(err))
		return decimal.Zero, errutil.UnprocessableEntity("invalid tier_config", err)
	}

	var views []time.Time
	err = c.db.WithContext(ctx).Model(&referral.ReferralEvent{}).
		Where("campaign_id = ? AND referrer_creator_id = ? AND action = ?", campaignID, creatorID, referral.ActionView).
		Pluck("created_at", &views).Error
	if err != nil {
		return decimal.Zero, errutil.Internal("failed to load view events", err)
	}
	spike := VelocitySpike(views)

	dailyCap := DailyCap(&camp, current, crs, known)
	total := Amount(base, dailyCap, spike, current)

	var adjustment *fraud.LogEntry
	if spike {
		payload, err := json.Marshal(map[string]any{
			"views":        len(views),
			"base_amount":  base.StringFixed(2),
			"total_earned": total.StringFixed(2),
		})
		if err != nil {
			return decimal.Zero, errutil.Internal("failed to encode velocity adjustment", err)
		}
		adjustment = &fraud.LogEntry{
			EventType:  fraud.EventVelocitySpikeAdjustment,
			CampaignID: campaignID,
			CreatorID:  creatorID,
			Payload:    payload,
		}
	}

	stamp := camp.PayoutModel == campaign.PayoutModelFixedMilestone && total.IsPositive()
	if err := c.store(ctx, &row, total, stamp, adjustment); err != nil {
		return decimal.Zero, err
	}

	zapLog.Debug("earnings recalculated",
		zap.String("total_earned", total.StringFixed(2)),
		zap.String("tier", string(current)),
		zap.Bool("velocity_spike", spike),
	)
	return total, nil
}

// store writes total_earned, stamps the milestone when asked and records the
// velocity adjustment once per pair, all in one transaction.
func (c *Calculator) store(ctx context.Context, row *stats.CreatorCampaignStats, total decimal.Decimal, stamp bool, adjustment *fraud.LogEntry) error {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"total_earned": total}
		if stamp && row.MilestoneReachedAt == nil {
			updates["milestone_reached_at"] = c.now()
		}
		if err := tx.Model(&stats.CreatorCampaignStats{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
			return err
		}

		if adjustment == nil {
			return nil
		}
		var logged int64
		err := tx.Model(&fraud.LogEntry{}).
			Where("campaign_id = ? AND creator_id = ? AND event_type = ?", adjustment.CampaignID, adjustment.CreatorID, fraud.EventVelocitySpikeAdjustment).
			Count(&logged).Error
		if err != nil {
			return err
		}
		if logged > 0 {
			return nil
		}
		return c.audit.Write(ctx, tx, adjustment)
	})
	if err != nil {
		return errutil.Internal("failed to store earnings", err)
	}
	return nil
}
