package campaign

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PayoutModel string
type CampaignStatus string
type Preset string

const (
	PayoutModelFixedMilestone PayoutModel = "fixed_milestone"
	PayoutModelTierBased      PayoutModel = "tier_based"

	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"

	PresetStarter Preset = "starter"
	PresetGrowth  Preset = "growth"
	PresetBoost   Preset = "boost"
)

// Defaults applied when a campaign leaves a threshold unset.
const (
	DefaultMinUniqueViews       = 100
	DefaultMinEngagementRate    = 5.0
	DefaultFraudBufferPercent   = 5
	DefaultMaxDailyPayout       = 500
	DefaultPayoutPerMilestone   = 10
	MilestoneViewStep           = 100
	defaultTierConfigJSONString = `{"100":10,"500":75,"1000":200}`
)

// DistributionCampaign is a sponsored campaign whose budget is paid out to creators.
type DistributionCampaign struct {
	ID                        string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	Name                      string          `gorm:"column:name;type:varchar(255);not null"`
	SponsorName               string          `gorm:"column:sponsor_name;type:varchar(200)"`
	Status                    CampaignStatus  `gorm:"column:status;type:varchar(20);not null;default:'draft';index"`
	TotalBudget               decimal.Decimal `gorm:"column:total_budget;type:decimal(20,2);not null"`
	PlatformMarginPercentage  decimal.Decimal `gorm:"column:platform_margin_percentage;type:decimal(5,2);not null"`
	FraudBufferPercentage     decimal.Decimal `gorm:"column:fraud_buffer_percentage;type:decimal(5,2);not null"`
	RemainingBudget           decimal.Decimal `gorm:"column:remaining_budget;type:decimal(20,2);not null"`
	TotalDistributedAmount    decimal.Decimal `gorm:"column:total_distributed_amount;type:decimal(20,2);not null;default:0"`
	PayoutModel               PayoutModel     `gorm:"column:payout_model;type:varchar(20);not null"`
	MinUniqueViewsRequired    int64           `gorm:"column:min_unique_views_required"`
	MinEngagementRateRequired float64         `gorm:"column:min_engagement_rate_required;type:decimal(5,2)"`
	MaxDailyPayoutPerUser     decimal.Decimal `gorm:"column:max_daily_payout_per_user;type:decimal(20,2)"`
	PayoutPerMilestone        decimal.Decimal `gorm:"column:payout_per_milestone;type:decimal(20,2)"`
	TierConfig                datatypes.JSON  `gorm:"column:tier_config"`
	StartAt                   *time.Time      `gorm:"column:start_at"`
	EndAt                     *time.Time      `gorm:"column:end_at;index"`
	CreatedAt                 time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                 time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (DistributionCampaign) TableName() string {
	return "distribution_campaigns"
}

// IsActive checks if campaign is currently active based on time range & status.
func (c *DistributionCampaign) IsActive(now time.Time) bool {
	if c.Status != CampaignStatusActive {
		return false
	}
	if c.StartAt != nil && now.Before(*c.StartAt) {
		return false
	}
	if c.EndAt != nil && now.After(*c.EndAt) {
		return false
	}
	return true
}

// IsCompleted reports whether the campaign end time is in the past.
func (c *DistributionCampaign) IsCompleted(now time.Time) bool {
	return c.EndAt != nil && c.EndAt.Before(now)
}

func (c *DistributionCampaign) MinUniqueViews() int64 {
	if c.MinUniqueViewsRequired <= 0 {
		return DefaultMinUniqueViews
	}
	return c.MinUniqueViewsRequired
}

func (c *DistributionCampaign) MinEngagementRate() float64 {
	if c.MinEngagementRateRequired <= 0 {
		return DefaultMinEngagementRate
	}
	return c.MinEngagementRateRequired
}

func (c *DistributionCampaign) MaxDailyPayout() decimal.Decimal {
	if !c.MaxDailyPayoutPerUser.IsPositive() {
		return decimal.NewFromInt(DefaultMaxDailyPayout)
	}
	return c.MaxDailyPayoutPerUser
}

func (c *DistributionCampaign) MilestonePayout() decimal.Decimal {
	if !c.PayoutPerMilestone.IsPositive() {
		return decimal.NewFromInt(DefaultPayoutPerMilestone)
	}
	return c.PayoutPerMilestone
}

// TierStep is one row of a tier_based payout table.
type TierStep struct {
	Views  int64
	Amount decimal.Decimal
}

// TierTable returns the view-count to amount table ordered by threshold
// ascending, falling back to the default table when none is configured.
func (c *DistributionCampaign) TierTable() ([]TierStep, error) {
	raw := []byte(c.TierConfig)
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
		raw = []byte(defaultTierConfigJSONString)
	}
	return ParseTierConfig(raw)
}

func ParseTierConfig(raw []byte) ([]TierStep, error) {
	var m map[string]decimal.Decimal
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("invalid tier_config: %w", err)
	}

	steps := make([]TierStep, 0, len(m))
	for k, v := range m {
		views, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid tier_config threshold %q: %w", k, err)
		}
		steps = append(steps, TierStep{Views: views, Amount: v})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Views < steps[j].Views })
	return steps, nil
}

// EncodeTierConfig converts a threshold table to its JSON column form.
func EncodeTierConfig(table map[int64]decimal.Decimal) (datatypes.JSON, error) {
	if len(table) == 0 {
		return nil, nil
	}
	m := make(map[string]decimal.Decimal, len(table))
	for views, amount := range table {
		m[strconv.FormatInt(views, 10)] = amount
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

type presetConfig struct {
	TotalBudget        decimal.Decimal
	PayoutModel        PayoutModel
	PayoutPerMilestone decimal.Decimal
	TierConfig         map[int64]decimal.Decimal
	MaxDailyPayout     decimal.Decimal
}

var presets = map[Preset]presetConfig{
	PresetStarter: {
		TotalBudget:        decimal.NewFromInt(50_000),
		PayoutModel:        PayoutModelFixedMilestone,
		PayoutPerMilestone: decimal.NewFromInt(50),
		MaxDailyPayout:     decimal.NewFromInt(500),
	},
	PresetGrowth: {
		TotalBudget: decimal.NewFromInt(150_000),
		PayoutModel: PayoutModelTierBased,
		TierConfig: map[int64]decimal.Decimal{
			100: decimal.NewFromInt(10), 500: decimal.NewFromInt(75),
			1000: decimal.NewFromInt(200), 2500: decimal.NewFromInt(500),
		},
		MaxDailyPayout: decimal.NewFromInt(800),
	},
	PresetBoost: {
		TotalBudget: decimal.NewFromInt(300_000),
		PayoutModel: PayoutModelTierBased,
		TierConfig: map[int64]decimal.Decimal{
			100: decimal.NewFromInt(15), 500: decimal.NewFromInt(100),
			1000: decimal.NewFromInt(250), 5000: decimal.NewFromInt(1000),
		},
		MaxDailyPayout: decimal.NewFromInt(1200),
	},
}

// DynamicMargin returns the platform margin percentage for a total budget:
// 30% up to 100k, 25% up to 300k, 20% above.
func DynamicMargin(totalBudget decimal.Decimal) decimal.Decimal {
	switch {
	case totalBudget.LessThanOrEqual(decimal.NewFromInt(100_000)):
		return decimal.NewFromInt(30)
	case totalBudget.LessThanOrEqual(decimal.NewFromInt(300_000)):
		return decimal.NewFromInt(25)
	default:
		return decimal.NewFromInt(20)
	}
}

// DistributablePool is total × (1 − margin%) × (1 − buffer%), rounded to cents.
func DistributablePool(total, marginPct, bufferPct decimal.Decimal) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	one := decimal.NewFromInt(1)
	return total.
		Mul(one.Sub(marginPct.Div(hundred))).
		Mul(one.Sub(bufferPct.Div(hundred))).
		RoundDown(2)
}
