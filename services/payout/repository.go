package payout

import (
	"context"
	"errors"
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/config"
	"github.com/ishaamahadeva-India/pompomm/pkg/db/option"
	"github.com/ishaamahadeva-India/pompomm/pkg/errutil"
	"github.com/ishaamahadeva-India/pompomm/pkg/repository"
	"github.com/ishaamahadeva-India/pompomm/services/campaign"
	"github.com/ishaamahadeva-India/pompomm/services/stats"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

const defaultLockTimeout = 5 * time.Second

// LockedTx carries the rows locked for one approval and the transaction that
// holds the locks. Every statement of the approval must run on Tx.
type LockedTx struct {
	Tx       *gorm.DB
	Stats    *stats.CreatorCampaignStats
	Campaign *campaign.DistributionCampaign
}

// Repository centralizes the locking discipline of the payout ledger.
type Repository interface {
	// WithLockedCampaignAndCreator locks the pair's stats row, then the
	// campaign row, and runs fn inside that transaction. fn returning an
	// error rolls everything back.
	WithLockedCampaignAndCreator(ctx context.Context, campaignID, creatorID string, fn func(LockedTx) error) error
}

type gormRepository struct {
	db          *gorm.DB
	lockTimeout time.Duration

	stats    repository.Repository[stats.CreatorCampaignStats]
	campaign repository.Repository[campaign.DistributionCampaign]
}

type RepositoryParams struct {
	fx.In

	DB     *gorm.DB
	Config *config.Config `optional:"true"`
}

func NewRepository(p RepositoryParams) Repository {
	timeout := defaultLockTimeout
	if p.Config != nil && p.Config.Distribution.LockTimeout > 0 {
		timeout = p.Config.Distribution.LockTimeout
	}
	return &gormRepository{
		db:          p.DB,
		lockTimeout: timeout,
		stats:       repository.ProvideStore[stats.CreatorCampaignStats](p.DB),
		campaign:    repository.ProvideStore[campaign.DistributionCampaign](p.DB),
	}
}

func (r *gormRepository) WithLockedCampaignAndCreator(ctx context.Context, campaignID, creatorID string, fn func(LockedTx) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	defer cancel()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := r.stats.WithTrx(tx).FindOne(ctx, &stats.CreatorCampaignStats{},
			option.Where("campaign_id = ? AND creator_id = ?", campaignID, creatorID),
			option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if row == nil {
			return errutil.NotFound("creator stats not found", nil)
		}

		camp, err := r.campaign.WithTrx(tx).FindOne(ctx, &campaign.DistributionCampaign{},
			option.Where("id = ?", campaignID),
			option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if camp == nil {
			return errutil.NotFound("campaign not found", nil)
		}

		return fn(LockedTx{Tx: tx, Stats: row, Campaign: camp})
	})
	if err == nil {
		return nil
	}

	var base errutil.BaseError
	isBase := errors.As(err, &base)
	if isBase && base.Code != errutil.StatusInternal {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errutil.Timeout("payout lock not acquired in time", err)
	}
	if isBase {
		return err
	}
	return errutil.Internal("payout transaction failed", err)
}
