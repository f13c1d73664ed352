package referral

import (
	"time"

	"gorm.io/datatypes"
)

type Action string

const (
	ActionView  Action = "view"
	ActionLike  Action = "like"
	ActionShare Action = "share"
)

func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionLike, ActionShare:
		return true
	}
	return false
}

// MinWatchSeconds is the shortest watch that counts as a view.
const MinWatchSeconds = 10

// ReferralEvent is one engagement signal attributed to a creator. Rows are
// never updated.
type ReferralEvent struct {
	ID                string         `gorm:"column:id;primaryKey;type:varchar(32)"`
	CampaignID        string         `gorm:"column:campaign_id;type:varchar(32);not null;index:idx_referral_campaign_creator,priority:1"`
	CreativeID        *string        `gorm:"column:creative_id;type:varchar(32)"`
	ReferrerCreatorID string         `gorm:"column:referrer_creator_id;type:varchar(32);not null;index:idx_referral_campaign_creator,priority:2"`
	VisitorUserID     *string        `gorm:"column:visitor_user_id;type:varchar(64)"`
	IP                string         `gorm:"column:ip;type:varchar(64)"`
	DeviceHash        string         `gorm:"column:device_hash;type:varchar(128)"`
	WatchedSeconds    int            `gorm:"column:watched_seconds"`
	Action            Action         `gorm:"column:action;type:varchar(10);not null"`
	GeoCountry        string         `gorm:"column:geo_country;type:varchar(64)"`
	GeoState          string         `gorm:"column:geo_state;type:varchar(128)"`
	DeviceMetadata    datatypes.JSON `gorm:"column:device_metadata"`
	CreatedAt         time.Time      `gorm:"column:created_at;index"`
}

func (ReferralEvent) TableName() string {
	return "referral_events"
}

// Identity is the visitor user id when known, ip + device hash otherwise.
func (e *ReferralEvent) Identity() string {
	return Identity(e.VisitorUserID, e.IP, e.DeviceHash)
}

func Identity(visitorUserID *string, ip, deviceHash string) string {
	if visitorUserID != nil && *visitorUserID != "" {
		return *visitorUserID
	}
	return ip + deviceHash
}

// CampaignMonthlySnapshot keeps monthly rollups of events removed by retention.
type CampaignMonthlySnapshot struct {
	CampaignID      string    `gorm:"column:campaign_id;primaryKey;type:varchar(32)"`
	YearMonth       string    `gorm:"column:year_month;primaryKey;type:varchar(7)"`
	TotalViews      int64     `gorm:"column:total_views"`
	UniqueViews     int64     `gorm:"column:unique_views"`
	TotalEngagement int64     `gorm:"column:total_engagement"`
	FraudCasesCount int64     `gorm:"column:fraud_cases_count"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (CampaignMonthlySnapshot) TableName() string {
	return "campaign_monthly_snapshots"
}
