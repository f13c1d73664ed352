package stats

import (
	"context"
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/db/option"
	"github.com/ishaamahadeva-India/pompomm/pkg/errutil"
	"github.com/ishaamahadeva-India/pompomm/pkg/logger"
	"github.com/ishaamahadeva-India/pompomm/pkg/rediskey"
	"github.com/ishaamahadeva-India/pompomm/pkg/repository"
	"github.com/ishaamahadeva-India/pompomm/services/referral"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Aggregator struct {
	db    *gorm.DB
	node  *snowflake.Node
	redis *redis.Client

	stats repository.Repository[CreatorCampaignStats]
}

type AggregatorParams struct {
	fx.In

	DB    *gorm.DB
	Node  *snowflake.Node
	Redis *redis.Client `optional:"true"`
}

func NewAggregator(p AggregatorParams) *Aggregator {
	return &Aggregator{
		db:    p.DB,
		node:  p.Node,
		redis: p.Redis,
		stats: repository.ProvideStore[CreatorCampaignStats](p.DB),
	}
}

// Aggregate recomputes the counters and engagement rate of a pair from its
// events and upserts them in one transaction. Earnings, payout status and
// fraud score are left untouched.
func (a *Aggregator) Aggregate(ctx context.Context, campaignID, creatorID string) (*CreatorCampaignStats, error) {
	if campaignID == "" || creatorID == "" {
		return nil, errutil.BadRequest("campaign_id and creator_id are required", nil)
	}

	var out *CreatorCampaignStats
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		views, err := referral.CountUniqueViews(ctx, tx, campaignID, creatorID)
		if err != nil {
			return err
		}
		likes, err := referral.CountAction(ctx, tx, campaignID, creatorID, referral.ActionLike)
		if err != nil {
			return err
		}
		shares, err := referral.CountAction(ctx, tx, campaignID, creatorID, referral.ActionShare)
		if err != nil {
			return err
		}

		row := &CreatorCampaignStats{
			ID:                     a.node.Generate().String(),
			CampaignID:             campaignID,
			CreatorID:              creatorID,
			UniqueViewCount:        views,
			LikeCount:              likes,
			ShareCount:             shares,
			VerifiedEngagementRate: EngagementRate(views, likes, shares),
			PayoutStatus:           PayoutStatusPending,
			LastUpdated:            time.Now().UTC(),
		}

		err = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "campaign_id"}, {Name: "creator_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"unique_view_count", "like_count", "share_count",
				"verified_engagement_rate", "last_updated",
			}),
		}).Create(row).Error
		if err != nil {
			return err
		}

		out, err = a.stats.WithTrx(tx).FindOne(ctx, &CreatorCampaignStats{}, pairWhere(campaignID, creatorID))
		return err
	})
	if err != nil {
		logger.FromContext(ctx, zap.String("campaign_id", campaignID), zap.String("creator_id", creatorID)).
			Error("failed to aggregate stats", zap.Error(err))
		return nil, errutil.Internal("failed to aggregate stats", err)
	}

	a.invalidate(ctx, campaignID, creatorID)
	return out, nil
}

// Refresh runs Aggregate and discards the returned row.
func (a *Aggregator) Refresh(ctx context.Context, campaignID, creatorID string) error {
	_, err := a.Aggregate(ctx, campaignID, creatorID)
	return err
}

func pairWhere(campaignID, creatorID string) option.QueryOption {
	return option.Where("campaign_id = ? AND creator_id = ?", campaignID, creatorID)
}

func (a *Aggregator) invalidate(ctx context.Context, campaignID, creatorID string) {
	if a.redis == nil {
		return
	}
	key := rediskey.BuildDistributionStatsKey(campaignID, creatorID)
	if err := a.redis.Del(ctx, key).Err(); err != nil {
		zap.L().Warn("failed to invalidate stats cache", zap.String("key", key), zap.Error(err))
	}
}

// Get returns the stats row of a pair or nil when none exists.
func (a *Aggregator) Get(ctx context.Context, campaignID, creatorID string) (*CreatorCampaignStats, error) {
	row, err := a.stats.FindOne(ctx, &CreatorCampaignStats{}, pairWhere(campaignID, creatorID))
	if err != nil {
		return nil, errutil.Internal("failed to load stats", err)
	}
	return row, nil
}

// ListByCampaign returns every stats row of a campaign ordered by creator.
func (a *Aggregator) ListByCampaign(ctx context.Context, campaignID string) ([]*CreatorCampaignStats, error) {
	rows, err := a.stats.Find(ctx, &CreatorCampaignStats{}, option.Where("campaign_id = ?", campaignID),
		option.WithSortBy(option.QuerySortBy{SortBy: "creator_id", OrderBy: "asc"}))
	if err != nil {
		return nil, errutil.Internal("failed to list stats", err)
	}
	return rows, nil
}

// ListUpdatedSince returns rows whose last_updated is at or after since.
func (a *Aggregator) ListUpdatedSince(ctx context.Context, since time.Time) ([]*CreatorCampaignStats, error) {
	var rows []*CreatorCampaignStats
	err := a.db.WithContext(ctx).
		Where("last_updated >= ?", since.UTC()).
		Order("last_updated ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errutil.Internal("failed to list stats", err)
	}
	return rows, nil
}

// CreatorsUpdatedSince returns distinct creators with a stats row touched at
// or after since.
func (a *Aggregator) CreatorsUpdatedSince(ctx context.Context, since time.Time) ([]string, error) {
	var ids []string
	err := a.db.WithContext(ctx).Model(&CreatorCampaignStats{}).
		Where("last_updated >= ?", since.UTC()).
		Distinct().
		Order("creator_id").
		Pluck("creator_id", &ids).Error
	if err != nil {
		return nil, errutil.Internal("failed to list creators", err)
	}
	return ids, nil
}
