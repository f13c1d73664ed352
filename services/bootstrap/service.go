package bootstrap

import (
	"context"
	"fmt"

	"github.com/ishaamahadeva-India/pompomm/services/campaign"
	"github.com/ishaamahadeva-India/pompomm/services/fraud"
	"github.com/ishaamahadeva-India/pompomm/services/payout"
	"github.com/ishaamahadeva-India/pompomm/services/referral"
	"github.com/ishaamahadeva-India/pompomm/services/reliability"
	"github.com/ishaamahadeva-India/pompomm/services/stats"
	"github.com/ishaamahadeva-India/pompomm/services/sweep"
	"github.com/ishaamahadeva-India/pompomm/services/tier"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models lists every table owned by the pipeline.
func Models() []any {
	return []any{
		&campaign.DistributionCampaign{},
		&referral.ReferralEvent{},
		&referral.CampaignMonthlySnapshot{},
		&stats.CreatorCampaignStats{},
		&fraud.LogEntry{},
		&reliability.Record{},
		&tier.Creator{},
		&tier.HistoryEntry{},
		&payout.CooldownRecord{},
		&payout.BudgetEntry{},
		&sweep.Job{},
	}
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Migrate creates or updates every pipeline table.
func (s *Service) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	zap.L().Info("[bootstrap] schema migrated", zap.Int("tables", len(Models())))
	return nil
}
