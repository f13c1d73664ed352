package fraud

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/db/pagination"
	"github.com/ishaamahadeva-India/pompomm/pkg/score"
	"github.com/ishaamahadeva-India/pompomm/services/referral"
	"github.com/ishaamahadeva-India/pompomm/services/stats"
	"github.com/ishaamahadeva-India/pompomm/services/testutil"
	"github.com/ishaamahadeva-India/pompomm/services/tier"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newEngine(t *testing.T) (*Engine, *gorm.DB) {
	db := testutil.NewTestDB(t, &referral.ReferralEvent{}, &stats.CreatorCampaignStats{}, &tier.Creator{}, &LogEntry{})
	audit := NewAuditLog(db, testutil.NewNode(t))
	return NewEngine(EngineParams{DB: db, Audit: audit}), db
}

// spread returns n events, one per minute, each from its own ip and device.
func spread(n int, start time.Time) []*referral.ReferralEvent {
	out := make([]*referral.ReferralEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &referral.ReferralEvent{
			IP:         fmt.Sprintf("10.%d.%d.1", i, i),
			DeviceHash: fmt.Sprintf("d%d", i),
			GeoCountry: "IN",
			CreatedAt:  start.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func seed(t *testing.T, db *gorm.DB, events []*referral.ReferralEvent) {
	for i, ev := range events {
		ev.ID = fmt.Sprintf("e%03d", i)
		ev.CampaignID = "c1"
		ev.ReferrerCreatorID = "u1"
		ev.Action = referral.ActionView
	}
	require.NoError(t, db.Create(&events).Error)
}

func seedStats(t *testing.T, db *gorm.DB, status stats.PayoutStatus) {
	require.NoError(t, db.Create(&stats.CreatorCampaignStats{
		ID: "s1", CampaignID: "c1", CreatorID: "u1", PayoutStatus: status, LastUpdated: time.Now().UTC(),
	}).Error)
}

func loadStats(t *testing.T, db *gorm.DB) stats.CreatorCampaignStats {
	var row stats.CreatorCampaignStats
	require.NoError(t, db.Where("id = ?", "s1").First(&row).Error)
	return row
}

func TestEvaluateInsufficientSignal(t *testing.T) {
	res := Evaluate(spread(9, time.Now()))
	require.Equal(t, 9, res.Events)
	require.Zero(t, res.Score.Float64())
	require.Empty(t, res.TopRanges)
}

func TestEvaluateClean(t *testing.T) {
	res := Evaluate(spread(15, time.Now()))
	require.Zero(t, res.Score.Float64())
	require.Equal(t, 6.67, res.IPConcentration)
	require.Zero(t, res.SpikeDelta)
	require.Len(t, res.TopRanges, 5)
	require.Equal(t, int64(15), res.GeoSummary["IN"])
}

func TestEvaluateIPConcentrationBands(t *testing.T) {
	base := time.Now()

	// 4 of 10 from one ip, in distinct ranges otherwise
	events := spread(10, base)
	for i := 0; i < 4; i++ {
		events[i].IP = "10.0.0.1"
	}
	require.Equal(t, 20.0, Evaluate(events).Score.Float64())

	// 6 of 10 from one ip also concentrates the range
	for i := 0; i < 6; i++ {
		events[i].IP = "10.0.0.1"
	}
	require.Equal(t, 65.0, Evaluate(events).Score.Float64())
}

func TestEvaluateSpikeAndDevice(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	events := spread(10, base)
	// 15 more events in the first minute
	for i := 0; i < 15; i++ {
		events = append(events, &referral.ReferralEvent{
			IP:         fmt.Sprintf("172.16.%d.1", i),
			DeviceHash: fmt.Sprintf("x%d", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
	}
	res := Evaluate(events)
	// 25 events over 10 minutes, 16 in the busiest: ratio 6.4
	require.Equal(t, 540.0, res.SpikeDelta)
	require.Equal(t, 25.0, res.Score.Float64())

	for _, ev := range events {
		ev.DeviceHash = "same"
	}
	require.Equal(t, 35.0, Evaluate(events).Score.Float64())
	require.Equal(t, 100.0, Evaluate(events).DeviceDuplicationRate)
}

func TestEvaluateScoreCapped(t *testing.T) {
	base := time.Now()
	var events []*referral.ReferralEvent
	for i := 0; i < 30; i++ {
		events = append(events, &referral.ReferralEvent{IP: "10.0.0.1", DeviceHash: "d", CreatedAt: base})
	}
	for i := 0; i < 3; i++ {
		events = append(events, &referral.ReferralEvent{IP: "10.0.0.1", DeviceHash: "d", CreatedAt: base.Add(time.Duration(i+1) * time.Minute)})
	}
	require.Equal(t, 100.0, Evaluate(events).Score.Float64())
}

func TestScoreSingleIPBurstHoldsBronze(t *testing.T) {
	engine, db := newEngine(t)
	seedStats(t, db, stats.PayoutStatusPending)

	now := time.Now().UTC().Add(-time.Hour)
	var events []*referral.ReferralEvent
	for i := 0; i < 12; i++ {
		events = append(events, &referral.ReferralEvent{IP: "10.0.0.1", DeviceHash: fmt.Sprintf("d%d", i), CreatedAt: now.Add(time.Duration(i*10) * time.Second)})
	}
	seed(t, db, events)

	res, err := engine.Score(context.Background(), "c1", "u1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.Score.Float64(), 65.0)
	require.True(t, res.Held)

	row := loadStats(t, db)
	require.Equal(t, stats.PayoutStatusHeld, row.PayoutStatus)
	require.Equal(t, res.Score, row.FraudScore)

	var logs []LogEntry
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	require.Equal(t, EventDistributionFraud, logs[0].EventType)
	require.Equal(t, 100.0, logs[0].IPConcentration)
}

func TestScoreVerifiedThreshold(t *testing.T) {
	engine, db := newEngine(t)
	seedStats(t, db, stats.PayoutStatusPending)
	require.NoError(t, db.Create(&tier.Creator{ID: "u1", Tier: tier.TierVerified}).Error)

	now := time.Now().UTC().Add(-time.Hour)
	events := spread(10, now)
	for i := 0; i < 6; i++ {
		events[i].IP = "10.0.0.1"
	}
	seed(t, db, events)

	res, err := engine.Score(context.Background(), "c1", "u1")
	require.NoError(t, err)
	require.Equal(t, 65.0, res.Score.Float64())
	require.False(t, res.Held)

	row := loadStats(t, db)
	require.Equal(t, stats.PayoutStatusPending, row.PayoutStatus)
	require.Equal(t, 65.0, row.FraudScore.Float64())
}

func TestScoreNeverHoldsPaid(t *testing.T) {
	engine, db := newEngine(t)
	seedStats(t, db, stats.PayoutStatusPaid)

	now := time.Now().UTC().Add(-time.Hour)
	var events []*referral.ReferralEvent
	for i := 0; i < 12; i++ {
		events = append(events, &referral.ReferralEvent{IP: "10.0.0.1", CreatedAt: now})
	}
	seed(t, db, events)

	res, err := engine.Score(context.Background(), "c1", "u1")
	require.NoError(t, err)
	require.False(t, res.Held)
	require.Equal(t, stats.PayoutStatusPaid, loadStats(t, db).PayoutStatus)
}

func TestScoreIgnoresOldEventsAndLogsZero(t *testing.T) {
	engine, db := newEngine(t)
	seedStats(t, db, stats.PayoutStatusPending)

	old := time.Now().UTC().Add(-8 * 24 * time.Hour)
	var events []*referral.ReferralEvent
	for i := 0; i < 20; i++ {
		events = append(events, &referral.ReferralEvent{IP: "10.0.0.1", CreatedAt: old})
	}
	seed(t, db, events)

	res, err := engine.Score(context.Background(), "c1", "u1")
	require.NoError(t, err)
	require.Zero(t, res.Events)
	require.Equal(t, score.New(0), res.Score)
	require.False(t, res.Held)

	var n int64
	require.NoError(t, db.Model(&LogEntry{}).Count(&n).Error)
	require.Equal(t, int64(1), n)
}

func TestListLogsAndCountCases(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, engine.audit.Write(ctx, nil, &LogEntry{
			EventType:  EventDistributionFraud,
			CampaignID: "c1",
			CreatorID:  "u1",
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, engine.audit.Write(ctx, nil, &LogEntry{EventType: EventLowCRS, CampaignID: "c1", CreatorID: "u1", CreatedAt: base}))
	require.NoError(t, engine.audit.Write(ctx, nil, &LogEntry{EventType: EventDistributionFraud, CampaignID: "c2", CreatorID: "u1", CreatedAt: base}))

	page1, info, err := engine.ListLogs(ctx, "c1", pagination.Pagination{Limit: 4})
	require.NoError(t, err)
	require.Len(t, page1, 4)
	require.True(t, info.HasMore)
	require.True(t, base.Add(4*time.Hour).Equal(page1[0].CreatedAt))

	page2, info, err := engine.ListLogs(ctx, "c1", pagination.Pagination{Limit: 4, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.False(t, info.HasMore)

	_, _, err = engine.ListLogs(ctx, "c1", pagination.Pagination{Cursor: "%%%"})
	require.Error(t, err)

	n, err := engine.CountCases(ctx, "c1", base)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)

	n, err = engine.CountCases(ctx, "c1", base.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Zero(t, n)
}
