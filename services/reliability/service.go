package reliability

import (
	"context"
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/config"
	"github.com/ishaamahadeva-India/pompomm/pkg/db/option"
	"github.com/ishaamahadeva-India/pompomm/pkg/errutil"
	"github.com/ishaamahadeva-India/pompomm/pkg/logger"
	"github.com/ishaamahadeva-India/pompomm/pkg/repository"
	"github.com/ishaamahadeva-India/pompomm/pkg/score"
	"github.com/ishaamahadeva-India/pompomm/services/campaign"
	"github.com/ishaamahadeva-India/pompomm/services/referral"
	"github.com/ishaamahadeva-India/pompomm/services/stats"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultCacheTTL = 30 * time.Minute

type Engine struct {
	db    *gorm.DB
	cache *recordCache
	group singleflight.Group
	now   func() time.Time

	record repository.Repository[Record]
}

type EngineParams struct {
	fx.In

	DB     *gorm.DB
	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

func NewEngine(p EngineParams) *Engine {
	ttl := defaultCacheTTL
	if p.Config != nil && p.Config.Distribution.CRSCacheTTL > 0 {
		ttl = p.Config.Distribution.CRSCacheTTL
	}
	return &Engine{
		db:     p.DB,
		cache:  &recordCache{client: p.Redis, ttl: ttl},
		now:    func() time.Time { return time.Now().UTC() },
		record: repository.ProvideStore[Record](p.DB),
	}
}

// Calculate scores a creator over their most recently ended campaigns.
func (e *Engine) Calculate(ctx context.Context, creatorID string) (*Record, error) {
	var rows []*stats.CreatorCampaignStats
	err := e.db.WithContext(ctx).
		Table(stats.CreatorCampaignStats{}.TableName()+" AS s").
		Select("s.*").
		Joins("JOIN "+campaign.DistributionCampaign{}.TableName()+" AS c ON c.id = s.campaign_id").
		Where("s.creator_id = ? AND c.end_at < ?", creatorID, e.now()).
		Order("c.end_at DESC").
		Limit(Lookback).
		Find(&rows).Error
	if err != nil {
		return nil, errutil.Internal("failed to load completed campaigns", err)
	}

	in := Inputs{}
	campaignIDs := make([]string, 0, len(rows))
	for _, r := range rows {
		in.EngagementRates = append(in.EngagementRates, r.VerifiedEngagementRate.Float64())
		in.FraudScores = append(in.FraudScores, r.FraudScore.Float64())
		campaignIDs = append(campaignIDs, r.CampaignID)
	}

	in.Regions, err = referral.CountRegions(ctx, e.db, creatorID, campaignIDs...)
	if err != nil {
		return nil, errutil.Internal("failed to count regions", err)
	}

	return Compose(creatorID, in), nil
}

// Recompute calculates, persists and caches a creator's score.
func (e *Engine) Recompute(ctx context.Context, creatorID string) (*Record, error) {
	if creatorID == "" {
		return nil, errutil.BadRequest("creator_id is required", nil)
	}

	rec, err := e.Calculate(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	rec.LastUpdated = e.now()

	err = e.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "creator_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"engagement_quality", "geo_diversity", "fraud_modifier", "stability", "crs_score", "last_updated",
		}),
	}).Create(rec).Error
	if err != nil {
		logger.FromContext(ctx, zap.String("creator_id", creatorID)).Error("failed to persist crs", zap.Error(err))
		return nil, errutil.Internal("failed to persist crs", err)
	}

	e.cache.set(ctx, rec)
	return rec, nil
}

type lookup struct {
	rec   *Record
	found bool
}

// Get returns the creator's composite score. found is false when no score
// was ever computed, which callers must not read as 0.
func (e *Engine) Get(ctx context.Context, creatorID string) (score.Score, bool, error) {
	v, err, _ := e.group.Do(creatorID, func() (any, error) {
		if rec, ok := e.cache.get(ctx, creatorID); ok {
			cacheHits.Inc()
			return lookup{rec: rec, found: true}, nil
		}
		cacheMiss.Inc()

		rec, err := e.record.FindOne(ctx, &Record{}, option.Where("creator_id = ?", creatorID))
		if err != nil {
			return nil, errutil.Internal("failed to load crs", err)
		}
		if rec == nil {
			return lookup{}, nil
		}
		e.cache.set(ctx, rec)
		return lookup{rec: rec, found: true}, nil
	})
	if err != nil {
		return score.Score{}, false, err
	}

	l := v.(lookup)
	if !l.found {
		return score.Score{}, false, nil
	}
	return l.rec.CRSScore, true, nil
}

// Record returns the persisted record or nil. The cache is not consulted.
func (e *Engine) Record(ctx context.Context, creatorID string) (*Record, error) {
	rec, err := e.record.FindOne(ctx, &Record{}, option.Where("creator_id = ?", creatorID))
	if err != nil {
		return nil, errutil.Internal("failed to load crs", err)
	}
	return rec, nil
}

// ListFresh returns records updated at or after since.
func (e *Engine) ListFresh(ctx context.Context, since time.Time) ([]*Record, error) {
	var rows []*Record
	err := e.db.WithContext(ctx).
		Where("last_updated >= ?", since.UTC()).
		Order("last_updated DESC").
		Find(&rows).Error
	if err != nil {
		return nil, errutil.Internal("failed to list crs", err)
	}
	return rows, nil
}
