package reliability

import (
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/score"
)

// Record is the persisted Creator Reliability Score of one creator.
type Record struct {
	CreatorID         string      `gorm:"column:creator_id;primaryKey;type:varchar(32)" json:"creator_id"`
	EngagementQuality score.Score `gorm:"column:engagement_quality;type:decimal(5,2);not null;default:0" json:"engagement_quality"`
	GeoDiversity      score.Score `gorm:"column:geo_diversity;type:decimal(5,2);not null;default:0" json:"geo_diversity"`
	FraudModifier     score.Score `gorm:"column:fraud_modifier;type:decimal(5,2);not null;default:0" json:"fraud_modifier"`
	Stability         score.Score `gorm:"column:stability;type:decimal(5,2);not null;default:0" json:"stability"`
	CRSScore          score.Score `gorm:"column:crs_score;type:decimal(5,2);not null;default:0" json:"crs_score"`
	LastUpdated       time.Time   `gorm:"column:last_updated;index" json:"last_updated"`
}

func (Record) TableName() string {
	return "creator_crs"
}

// Component weights of the composite score.
const (
	WeightEngagement = 0.40
	WeightGeo        = 0.25
	WeightFraud      = 0.25
	WeightStability  = 0.10

	// Lookback is the number of completed campaigns scored.
	Lookback = 5
	// RegionTarget is the distinct-region count that maxes geo diversity.
	RegionTarget = 10
)
