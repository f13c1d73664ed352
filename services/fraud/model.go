package fraud

import (
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/score"

	"gorm.io/datatypes"
)

type EventType string

const (
	EventDistributionFraud       EventType = "distribution_fraud"
	EventVelocitySpikeAdjustment EventType = "velocity_spike_adjustment"
	EventLowEngagementRate       EventType = "low_engagement_rate"
	EventLowCRS                  EventType = "low_crs"
	EventLowGeoDiversity         EventType = "low_geo_diversity"
)

// LogEntry is one row of the append-only fraud audit trail.
type LogEntry struct {
	ID                     string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	EventType              EventType      `gorm:"column:event_type;type:varchar(40);not null;index" json:"event_type"`
	CampaignID             string         `gorm:"column:campaign_id;type:varchar(32);not null;index:idx_fraud_log_campaign,priority:1" json:"campaign_id"`
	CreatorID              string         `gorm:"column:creator_id;type:varchar(32);not null;index" json:"creator_id"`
	FraudScore             score.Score    `gorm:"column:fraud_score;type:decimal(5,2);not null;default:0" json:"fraud_score"`
	IPConcentration        float64        `gorm:"column:ip_concentration;type:decimal(7,2)" json:"ip_concentration"`
	DeviceDuplicationRate  float64        `gorm:"column:device_duplication_rate;type:decimal(7,2)" json:"device_duplication_rate"`
	SpikeDelta             float64        `gorm:"column:spike_delta;type:decimal(12,2)" json:"spike_delta"`
	GeoDistributionSummary datatypes.JSON `gorm:"column:geo_distribution_summary" json:"geo_distribution_summary,omitempty"`
	Payload                datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	CreatedAt              time.Time      `gorm:"column:created_at;not null;index:idx_fraud_log_campaign,priority:2" json:"created_at"`
}

func (LogEntry) TableName() string {
	return "fraud_log"
}

// RangeCount is the event count of one /24 range.
type RangeCount struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

// Result is the outcome of scoring one (campaign, creator) pair.
type Result struct {
	CampaignID            string           `json:"campaign_id"`
	CreatorID             string           `json:"creator_id"`
	Events                int              `json:"events"`
	Score                 score.Score      `json:"fraud_score"`
	Held                  bool             `json:"held"`
	IPConcentration       float64          `json:"ip_concentration"`
	DeviceDuplicationRate float64          `json:"device_duplication_rate"`
	SpikeDelta            float64          `json:"spike_delta"`
	TopRanges             []RangeCount     `json:"top_five_ip_ranges"`
	GeoSummary            map[string]int64 `json:"geo_distribution_summary"`
}
