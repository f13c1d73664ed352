package campaign

import (
	"context"
	"strings"
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/db/option"
	"github.com/ishaamahadeva-India/pompomm/pkg/errutil"
	"github.com/ishaamahadeva-India/pompomm/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	campaign repository.Repository[DistributionCampaign]
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		campaign: repository.ProvideStore[DistributionCampaign](p.DB),
	}
}

type CreateParams struct {
	Name                      string                    `json:"name"`
	SponsorName               string                    `json:"sponsor_name"`
	Preset                    Preset                    `json:"preset"`
	TotalBudget               decimal.Decimal           `json:"total_budget"`
	PayoutModel               PayoutModel               `json:"payout_model"`
	MinUniqueViewsRequired    int64                     `json:"min_unique_views_required"`
	MinEngagementRateRequired float64                   `json:"min_engagement_rate_required"`
	PayoutPerMilestone        decimal.Decimal           `json:"payout_per_milestone"`
	MaxDailyPayoutPerUser     decimal.Decimal           `json:"max_daily_payout_per_user"`
	TierConfig                map[int64]decimal.Decimal `json:"tier_config"`
	PlatformMarginPercentage  *decimal.Decimal          `json:"platform_margin_percentage"`
	FraudBufferPercentage     *decimal.Decimal          `json:"fraud_buffer_percentage"`
	StartAt                   time.Time                 `json:"start_at"`
	EndAt                     time.Time                 `json:"end_at"`
}

// Create stores a new active campaign. Presets override budget and payout
// fields; the remaining budget starts at the distributable pool.
func (s *Service) Create(ctx context.Context, p CreateParams) (*DistributionCampaign, error) {
	if preset, ok := presets[p.Preset]; ok {
		p.TotalBudget = preset.TotalBudget
		p.PayoutModel = preset.PayoutModel
		p.MaxDailyPayoutPerUser = preset.MaxDailyPayout
		if preset.PayoutPerMilestone.IsPositive() {
			p.PayoutPerMilestone = preset.PayoutPerMilestone
		}
		if preset.TierConfig != nil {
			p.TierConfig = preset.TierConfig
		}
	} else if p.Preset != "" {
		return nil, errutil.BadRequest("unknown preset", nil, errutil.WithDetails(errutil.Detail{Field: "preset", Message: string(p.Preset)}))
	}

	if err := validateCreate(p); err != nil {
		return nil, err
	}

	margin := DynamicMargin(p.TotalBudget)
	if p.PlatformMarginPercentage != nil {
		margin = *p.PlatformMarginPercentage
	}
	buffer := decimal.NewFromInt(DefaultFraudBufferPercent)
	if p.FraudBufferPercentage != nil {
		buffer = *p.FraudBufferPercentage
	}

	tierConfig, err := EncodeTierConfig(p.TierConfig)
	if err != nil {
		return nil, errutil.BadRequest("invalid tier_config", err)
	}

	minViews := p.MinUniqueViewsRequired
	if minViews <= 0 {
		minViews = DefaultMinUniqueViews
	}
	minRate := p.MinEngagementRateRequired
	if minRate <= 0 {
		minRate = DefaultMinEngagementRate
	}
	maxDaily := p.MaxDailyPayoutPerUser
	if !maxDaily.IsPositive() {
		maxDaily = decimal.NewFromInt(DefaultMaxDailyPayout)
	}

	start, end := p.StartAt.UTC(), p.EndAt.UTC()
	c := &DistributionCampaign{
		ID:                        s.node.Generate().String(),
		Name:                      strings.TrimSpace(p.Name),
		SponsorName:               strings.TrimSpace(p.SponsorName),
		Status:                    CampaignStatusActive,
		TotalBudget:               p.TotalBudget,
		PlatformMarginPercentage:  margin,
		FraudBufferPercentage:     buffer,
		RemainingBudget:           DistributablePool(p.TotalBudget, margin, buffer),
		TotalDistributedAmount:    decimal.Zero,
		PayoutModel:               p.PayoutModel,
		MinUniqueViewsRequired:    minViews,
		MinEngagementRateRequired: minRate,
		MaxDailyPayoutPerUser:     maxDaily,
		PayoutPerMilestone:        p.PayoutPerMilestone,
		TierConfig:                tierConfig,
		StartAt:                   &start,
		EndAt:                     &end,
	}

	if err := s.campaign.Create(ctx, c); err != nil {
		zap.L().Error("failed to create campaign", zap.Error(err))
		return nil, errutil.Internal("failed to create campaign", err)
	}

	zap.L().Info("campaign created",
		zap.String("campaign_id", c.ID),
		zap.String("payout_model", string(c.PayoutModel)),
		zap.String("remaining_budget", c.RemainingBudget.String()),
	)

	return c, nil
}

func validateCreate(p CreateParams) error {
	var details []errutil.Detail
	if strings.TrimSpace(p.Name) == "" {
		details = append(details, errutil.Detail{Field: "name", Message: "required"})
	}
	if !p.TotalBudget.IsPositive() {
		details = append(details, errutil.Detail{Field: "total_budget", Message: "must be positive"})
	}
	switch p.PayoutModel {
	case PayoutModelFixedMilestone, PayoutModelTierBased:
	default:
		details = append(details, errutil.Detail{Field: "payout_model", Message: "must be fixed_milestone or tier_based"})
	}
	if p.StartAt.IsZero() || p.EndAt.IsZero() || !p.EndAt.After(p.StartAt) {
		details = append(details, errutil.Detail{Field: "end_at", Message: "must be after start_at"})
	}
	hundred := decimal.NewFromInt(100)
	if m := p.PlatformMarginPercentage; m != nil && (m.IsNegative() || m.GreaterThan(hundred)) {
		details = append(details, errutil.Detail{Field: "platform_margin_percentage", Message: "must be within 0..100"})
	}
	if b := p.FraudBufferPercentage; b != nil && (b.IsNegative() || b.GreaterThan(decimal.NewFromInt(50))) {
		details = append(details, errutil.Detail{Field: "fraud_buffer_percentage", Message: "must be within 0..50"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid campaign", nil, errutil.WithDetails(details...))
	}
	return nil
}

func (s *Service) Get(ctx context.Context, campaignID string) (*DistributionCampaign, error) {
	if campaignID == "" {
		return nil, errutil.BadRequest("campaign_id is required", nil)
	}

	c, err := s.campaign.FindOne(ctx, &DistributionCampaign{}, option.Where("id = ?", campaignID))
	if err != nil {
		return nil, errutil.Internal("failed to load campaign", err)
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found", nil)
	}
	return c, nil
}

// ListActive returns campaigns with status active whose window contains now.
func (s *Service) ListActive(ctx context.Context, now time.Time) ([]*DistributionCampaign, error) {
	rows, err := s.campaign.Find(ctx, &DistributionCampaign{Status: CampaignStatusActive},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "asc"}))
	if err != nil {
		return nil, errutil.Internal("failed to list campaigns", err)
	}

	active := make([]*DistributionCampaign, 0, len(rows))
	for _, c := range rows {
		if c.IsActive(now) {
			active = append(active, c)
		}
	}
	return active, nil
}

// CompleteExpired marks active campaigns whose end time passed as completed.
func (s *Service) CompleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&DistributionCampaign{}).
		Where("status = ? AND end_at < ?", CampaignStatusActive, now.UTC()).
		Update("status", CampaignStatusCompleted)
	if res.Error != nil {
		return 0, errutil.Internal("failed to complete campaigns", res.Error)
	}
	return res.RowsAffected, nil
}
