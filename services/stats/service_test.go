package stats

import (
	"context"
	"testing"
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/rediskey"
	"github.com/ishaamahadeva-India/pompomm/services/referral"
	"github.com/ishaamahadeva-India/pompomm/services/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func strPtr(s string) *string { return &s }

func newAggregator(t *testing.T) (*Aggregator, *gorm.DB, *miniredis.Miniredis) {
	db := testutil.NewTestDB(t, &referral.ReferralEvent{}, &CreatorCampaignStats{})
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewAggregator(AggregatorParams{DB: db, Node: testutil.NewNode(t), Redis: rdb}), db, mr
}

func seedEvents(t *testing.T, db *gorm.DB) {
	now := time.Now().UTC()
	events := []*referral.ReferralEvent{
		{ID: "1", CampaignID: "c1", ReferrerCreatorID: "u1", VisitorUserID: strPtr("v1"), Action: referral.ActionView, CreatedAt: now},
		{ID: "2", CampaignID: "c1", ReferrerCreatorID: "u1", VisitorUserID: strPtr("v1"), IP: "10.0.0.9", Action: referral.ActionView, CreatedAt: now},
		{ID: "3", CampaignID: "c1", ReferrerCreatorID: "u1", IP: "10.0.0.1", DeviceHash: "d1", Action: referral.ActionView, CreatedAt: now},
		{ID: "4", CampaignID: "c1", ReferrerCreatorID: "u1", IP: "10.0.0.1", DeviceHash: "d1", Action: referral.ActionView, CreatedAt: now},
		{ID: "5", CampaignID: "c1", ReferrerCreatorID: "u1", IP: "10.0.0.2", DeviceHash: "d2", Action: referral.ActionView, CreatedAt: now},
		{ID: "6", CampaignID: "c1", ReferrerCreatorID: "u1", IP: "10.0.0.2", Action: referral.ActionLike, CreatedAt: now},
		{ID: "7", CampaignID: "c1", ReferrerCreatorID: "u1", IP: "10.0.0.2", Action: referral.ActionShare, CreatedAt: now},
		{ID: "8", CampaignID: "c1", ReferrerCreatorID: "u2", IP: "10.0.0.2", Action: referral.ActionView, CreatedAt: now},
	}
	require.NoError(t, db.Create(&events).Error)
}

func TestEngagementRate(t *testing.T) {
	require.Equal(t, 0.0, EngagementRate(0, 5, 5).Float64())
	require.Equal(t, 66.67, EngagementRate(3, 1, 1).Float64())
	require.Equal(t, 100.0, EngagementRate(1, 3, 3).Float64())
}

func TestAggregate(t *testing.T) {
	agg, db, mr := newAggregator(t)
	seedEvents(t, db)
	ctx := context.Background()

	key := rediskey.BuildDistributionStatsKey("c1", "u1")
	require.NoError(t, mr.Set(key, "stale"))

	row, err := agg.Aggregate(ctx, "c1", "u1")
	require.NoError(t, err)
	require.Equal(t, int64(3), row.UniqueViewCount)
	require.Equal(t, int64(1), row.LikeCount)
	require.Equal(t, int64(1), row.ShareCount)
	require.Equal(t, 66.67, row.VerifiedEngagementRate.Float64())
	require.Equal(t, PayoutStatusPending, row.PayoutStatus)
	require.False(t, mr.Exists(key))

	// fields owned by other components survive re-aggregation
	require.NoError(t, db.Model(&CreatorCampaignStats{}).Where("id = ?", row.ID).
		Updates(map[string]any{"total_earned": decimal.NewFromInt(40), "payout_status": PayoutStatusHeld}).Error)

	again, err := agg.Aggregate(ctx, "c1", "u1")
	require.NoError(t, err)
	require.Equal(t, row.ID, again.ID)
	require.Equal(t, int64(3), again.UniqueViewCount)
	require.Equal(t, "40.00", again.TotalEarned.StringFixed(2))
	require.Equal(t, PayoutStatusHeld, again.PayoutStatus)

	var count int64
	require.NoError(t, db.Model(&CreatorCampaignStats{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestAggregateWithoutEvents(t *testing.T) {
	agg, _, _ := newAggregator(t)

	row, err := agg.Aggregate(context.Background(), "c9", "u9")
	require.NoError(t, err)
	require.Zero(t, row.UniqueViewCount)
	require.Zero(t, row.VerifiedEngagementRate.Float64())
}

func TestAggregateSurvivesRedisOutage(t *testing.T) {
	agg, db, mr := newAggregator(t)
	seedEvents(t, db)
	mr.Close()

	require.NoError(t, agg.Refresh(context.Background(), "c1", "u1"))
}

func TestListQueries(t *testing.T) {
	agg, db, _ := newAggregator(t)
	seedEvents(t, db)
	ctx := context.Background()

	_, err := agg.Aggregate(ctx, "c1", "u2")
	require.NoError(t, err)
	_, err = agg.Aggregate(ctx, "c1", "u1")
	require.NoError(t, err)

	rows, err := agg.ListByCampaign(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "u1", rows[0].CreatorID)

	recent, err := agg.ListUpdatedSince(ctx, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 2)

	creators, err := agg.CreatorsUpdatedSince(ctx, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u2"}, creators)

	none, err := agg.ListUpdatedSince(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Empty(t, none)
}
