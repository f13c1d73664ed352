package tier

import (
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/score"
)

type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierVerified Tier = "verified"
)

var order = []Tier{TierBronze, TierSilver, TierGold, TierVerified}

// Rank is the ordinal of t. Unknown tiers rank as bronze.
func (t Tier) Rank() int {
	for i, o := range order {
		if o == t {
			return i
		}
	}
	return 0
}

func (t Tier) Valid() bool {
	switch t {
	case TierBronze, TierSilver, TierGold, TierVerified:
		return true
	}
	return false
}

// Normalize maps empty or unknown values to bronze.
func (t Tier) Normalize() Tier {
	if t.Valid() {
		return t
	}
	return TierBronze
}

type Reason string

const (
	ReasonPromotion     Reason = "crs_promotion"
	ReasonDemotion      Reason = "crs_demotion"
	ReasonAdminOverride Reason = "admin_override"
)

// Creator holds the current tier of a creator.
type Creator struct {
	ID              string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	UniqueCreatorID *string   `gorm:"column:unique_creator_id;type:varchar(64);uniqueIndex"`
	Tier            Tier      `gorm:"column:tier;type:varchar(20);not null;default:'bronze'"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Creator) TableName() string {
	return "creators"
}

// HistoryEntry records one tier change. Rows are never updated.
type HistoryEntry struct {
	ID               string       `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	CreatorID        string       `gorm:"column:creator_id;type:varchar(32);not null;index:idx_tier_history_creator,priority:1" json:"creator_id"`
	OldTier          Tier         `gorm:"column:old_tier;type:varchar(20);not null" json:"old_tier"`
	NewTier          Tier         `gorm:"column:new_tier;type:varchar(20);not null" json:"new_tier"`
	Reason           Reason       `gorm:"column:reason;type:varchar(20);not null" json:"reason"`
	CRSScoreAtChange *score.Score `gorm:"column:crs_score_at_change;type:decimal(5,2)" json:"crs_score_at_change"`
	ChangedAt        time.Time    `gorm:"column:changed_at;not null;index:idx_tier_history_creator,priority:2" json:"changed_at"`
}

func (HistoryEntry) TableName() string {
	return "creator_tier_history"
}

// CRS bands driving automatic transitions.
const (
	PromoteAt  = 85.0
	MaintainAt = 70.0
	FreezeAt   = 50.0
	DemoteAt   = 35.0
)

// Band names the CRS range for logs and audit.
type Band string

const (
	BandPromote  Band = "promote"
	BandMaintain Band = "maintain"
	BandFreeze   Band = "freeze"
	BandDemote   Band = "demote"
	BandReset    Band = "reset"
)

func BandOf(crs score.Score) Band {
	switch v := crs.Float64(); {
	case v >= PromoteAt:
		return BandPromote
	case v >= MaintainAt:
		return BandMaintain
	case v >= FreezeAt:
		return BandFreeze
	case v >= DemoteAt:
		return BandDemote
	default:
		return BandReset
	}
}

// TargetTier is the tier the CRS points at. Promotion never reaches verified
// and verified never falls below gold.
func TargetTier(current Tier, crs score.Score) Tier {
	current = current.Normalize()
	v := crs.Float64()

	switch {
	case v >= PromoteAt:
		if current.Rank() >= TierGold.Rank() {
			return current
		}
		return order[current.Rank()+1]
	case v >= FreezeAt:
		return current
	case v >= DemoteAt:
		if current == TierVerified {
			return TierGold
		}
		if current == TierBronze {
			return current
		}
		return order[current.Rank()-1]
	default:
		if current == TierVerified {
			return TierGold
		}
		return TierBronze
	}
}

// Step applies target only when it is one rank away. A target further off
// leaves the tier unchanged, so a gold creator reset toward bronze stays gold.
func Step(current, target Tier) Tier {
	current, target = current.Normalize(), target.Normalize()
	switch target.Rank() - current.Rank() {
	case 1, -1:
		return target
	default:
		return current
	}
}
