package stats

import (
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/score"

	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutStatusPending  PayoutStatus = "pending"
	PayoutStatusApproved PayoutStatus = "approved"
	PayoutStatusHeld     PayoutStatus = "held"
	PayoutStatusPaid     PayoutStatus = "paid"
)

func (s PayoutStatus) Valid() bool {
	switch s {
	case PayoutStatusPending, PayoutStatusApproved, PayoutStatusHeld, PayoutStatusPaid:
		return true
	}
	return false
}

// CreatorCampaignStats is the per (campaign, creator) aggregate. The
// aggregator owns the counters; fraud, earnings and payout own the rest.
type CreatorCampaignStats struct {
	ID                     string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	CampaignID             string          `gorm:"column:campaign_id;type:varchar(32);not null;uniqueIndex:idx_stats_campaign_creator,priority:1"`
	CreatorID              string          `gorm:"column:creator_id;type:varchar(32);not null;uniqueIndex:idx_stats_campaign_creator,priority:2;index"`
	UniqueViewCount        int64           `gorm:"column:unique_view_count;not null;default:0"`
	LikeCount              int64           `gorm:"column:like_count;not null;default:0"`
	ShareCount             int64           `gorm:"column:share_count;not null;default:0"`
	VerifiedEngagementRate score.Score     `gorm:"column:verified_engagement_rate;type:decimal(5,2);not null;default:0"`
	TotalEarned            decimal.Decimal `gorm:"column:total_earned;type:decimal(20,2);not null;default:0"`
	PayoutStatus           PayoutStatus    `gorm:"column:payout_status;type:varchar(20);not null;default:'pending'"`
	FraudScore             score.Score     `gorm:"column:fraud_score;type:decimal(5,2);not null;default:0"`
	MilestoneReachedAt     *time.Time      `gorm:"column:milestone_reached_at"`
	LastUpdated            time.Time       `gorm:"column:last_updated;index"`
}

func (CreatorCampaignStats) TableName() string {
	return "creator_campaign_stats"
}

// EngagementRate is (likes + shares) / unique views × 100, or 0 without views.
func EngagementRate(uniqueViews, likes, shares int64) score.Score {
	if uniqueViews <= 0 {
		return score.New(0)
	}
	return score.New(float64(likes+shares) / float64(uniqueViews) * 100)
}
