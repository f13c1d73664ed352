package payout

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CooldownRecord marks a day on which a creator was paid from a campaign.
type CooldownRecord struct {
	ID         string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	CreatorID  string    `gorm:"column:creator_id;type:varchar(32);not null;uniqueIndex:idx_cooldown_creator_campaign_date,priority:1"`
	CampaignID string    `gorm:"column:campaign_id;type:varchar(32);not null;uniqueIndex:idx_cooldown_creator_campaign_date,priority:2"`
	PayoutDate time.Time `gorm:"column:payout_date;type:date;not null;uniqueIndex:idx_cooldown_creator_campaign_date,priority:3"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (CooldownRecord) TableName() string {
	return "creator_cooldown_log"
}

// BudgetEntry is one hash chained budget deduction. The chain is per campaign.
type BudgetEntry struct {
	ID             string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	CampaignID     string          `gorm:"column:campaign_id;type:varchar(32);not null;index:idx_budget_entry_campaign,priority:1" json:"campaign_id"`
	CreatorID      string          `gorm:"column:creator_id;type:varchar(32);not null" json:"creator_id"`
	Amount         decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	RemainingAfter decimal.Decimal `gorm:"column:remaining_after;type:decimal(20,2);not null" json:"remaining_after"`
	PreviousHash   string          `gorm:"column:previous_hash;type:varchar(64)" json:"previous_hash"`
	Hash           string          `gorm:"column:hash;type:varchar(64);not null" json:"hash"`
	CreatedAt      time.Time       `gorm:"column:created_at;not null;index:idx_budget_entry_campaign,priority:2" json:"created_at"`
}

func (BudgetEntry) TableName() string {
	return "campaign_budget_entries"
}

func (e *BudgetEntry) HashFields() map[string]string {
	return map[string]string{
		"id":              e.ID,
		"campaign_id":     e.CampaignID,
		"creator_id":      e.CreatorID,
		"amount":          e.Amount.StringFixed(2),
		"remaining_after": e.RemainingAfter.StringFixed(2),
		"created_at":      e.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":   e.PreviousHash,
	}
}

func (e *BudgetEntry) GenerateHash() string {
	fields := e.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}
