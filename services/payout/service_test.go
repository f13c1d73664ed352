package payout

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/errutil"
	"github.com/ishaamahadeva-India/pompomm/pkg/score"
	"github.com/ishaamahadeva-India/pompomm/services/campaign"
	"github.com/ishaamahadeva-India/pompomm/services/fraud"
	"github.com/ishaamahadeva-India/pompomm/services/referral"
	"github.com/ishaamahadeva-India/pompomm/services/stats"
	"github.com/ishaamahadeva-India/pompomm/services/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeCRS struct {
	value float64
	known bool
	calls atomic.Int64
}

func (f *fakeCRS) Get(context.Context, string) (score.Score, bool, error) {
	f.calls.Add(1)
	return score.New(f.value), f.known, nil
}

type fixture struct {
	db     *gorm.DB
	ledger *Ledger
	crs    *fakeCRS
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewTestDB(t,
		&campaign.DistributionCampaign{}, &stats.CreatorCampaignStats{}, &referral.ReferralEvent{},
		&fraud.LogEntry{}, &CooldownRecord{}, &BudgetEntry{})
	node := testutil.NewNode(t)
	f := &fixture{db: db, crs: &fakeCRS{value: 60, known: true}, now: time.Now().UTC()}
	f.ledger = NewLedger(LedgerParams{
		DB:    db,
		Node:  node,
		Repo:  NewRepository(RepositoryParams{DB: db}),
		Audit: fraud.NewAuditLog(db, node),
		CRS:   f.crs,
	})
	f.ledger.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) campaign(t *testing.T, id string, mutate func(c *campaign.DistributionCampaign)) {
	c := &campaign.DistributionCampaign{
		ID: id, Name: id, Status: campaign.CampaignStatusActive,
		TotalBudget: decimal.NewFromInt(100_000), RemainingBudget: decimal.NewFromInt(50_000),
		PayoutModel: campaign.PayoutModelTierBased,
	}
	if mutate != nil {
		mutate(c)
	}
	require.NoError(t, f.db.Create(c).Error)
}

func (f *fixture) stats(t *testing.T, campaignID string, earned string, rate float64, mutate func(s *stats.CreatorCampaignStats)) {
	s := &stats.CreatorCampaignStats{
		ID: "s-" + campaignID, CampaignID: campaignID, CreatorID: "u1",
		UniqueViewCount: 500, VerifiedEngagementRate: score.New(rate),
		TotalEarned: decimal.RequireFromString(earned), PayoutStatus: stats.PayoutStatusPending,
		LastUpdated: f.now.Add(-24 * time.Hour),
	}
	if mutate != nil {
		mutate(s)
	}
	require.NoError(t, f.db.Create(s).Error)
}

func (f *fixture) row(t *testing.T, campaignID string) stats.CreatorCampaignStats {
	var s stats.CreatorCampaignStats
	require.NoError(t, f.db.Where("campaign_id = ? AND creator_id = ?", campaignID, "u1").First(&s).Error)
	return s
}

func (f *fixture) budget(t *testing.T, campaignID string) (remaining, distributed string) {
	var c campaign.DistributionCampaign
	require.NoError(t, f.db.Where("id = ?", campaignID).First(&c).Error)
	return c.RemainingBudget.StringFixed(2), c.TotalDistributedAmount.StringFixed(2)
}

func (f *fixture) logs(t *testing.T, kind fraud.EventType) int64 {
	var n int64
	require.NoError(t, f.db.Model(&fraud.LogEntry{}).Where("event_type = ?", kind).Count(&n).Error)
	return n
}

func (f *fixture) spreadEvents(t *testing.T, campaignID string, ranges, regions int) {
	for i := 0; i < ranges; i++ {
		require.NoError(t, f.db.Create(&referral.ReferralEvent{
			ID: fmt.Sprintf("e-%s-%d", campaignID, i), CampaignID: campaignID, ReferrerCreatorID: "u1",
			IP: fmt.Sprintf("10.0.%d.7", i), DeviceHash: fmt.Sprintf("d%d", i), Action: referral.ActionView,
			WatchedSeconds: 30, GeoState: fmt.Sprintf("state-%d", i%regions), CreatedAt: f.now.Add(-48 * time.Hour),
		}).Error)
	}
}

func TestApproveDeductsBudget(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", nil)
	f.stats(t, "c1", "75.00", 20, nil)

	d, err := f.ledger.Approve(context.Background(), "c1", "u1", stats.PayoutStatusApproved)
	require.NoError(t, err)
	require.Equal(t, stats.PayoutStatusApproved, d.Status)
	require.Equal(t, "75.00", d.Amount.StringFixed(2))
	require.Equal(t, "49925.00", d.RemainingBudget.StringFixed(2))
	require.False(t, d.Penalized)

	remaining, distributed := f.budget(t, "c1")
	require.Equal(t, "49925.00", remaining)
	require.Equal(t, "75.00", distributed)
	require.Equal(t, stats.PayoutStatusApproved, f.row(t, "c1").PayoutStatus)

	var cooldowns int64
	require.NoError(t, f.db.Model(&CooldownRecord{}).Count(&cooldowns).Error)
	require.EqualValues(t, 1, cooldowns)

	entries, err := f.ledger.Entries(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Empty(t, entries[0].PreviousHash)
	require.Equal(t, "75.00", entries[0].Amount.StringFixed(2))

	broken, err := f.ledger.VerifyBudgetChain(context.Background(), "c1")
	require.NoError(t, err)
	require.Empty(t, broken)
}

func TestApproveSettledPairDoesNotDeductTwice(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", nil)
	f.stats(t, "c1", "75.00", 20, nil)

	_, err := f.ledger.Approve(context.Background(), "c1", "u1", stats.PayoutStatusApproved)
	require.NoError(t, err)

	d, err := f.ledger.Approve(context.Background(), "c1", "u1", stats.PayoutStatusPaid)
	require.NoError(t, err)
	require.Equal(t, stats.PayoutStatusPaid, d.Status)
	require.True(t, d.Amount.IsZero())

	remaining, distributed := f.budget(t, "c1")
	require.Equal(t, "49925.00", remaining)
	require.Equal(t, "75.00", distributed)
	require.Equal(t, stats.PayoutStatusPaid, f.row(t, "c1").PayoutStatus)
}

func TestApproveAfterHoldDoesNotDeductAgain(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", nil)
	f.stats(t, "c1", "75.00", 20, nil)
	ctx := context.Background()

	_, err := f.ledger.Approve(ctx, "c1", "u1", stats.PayoutStatusApproved)
	require.NoError(t, err)
	_, err = f.ledger.Approve(ctx, "c1", "u1", stats.PayoutStatusHeld)
	require.NoError(t, err)

	d, err := f.ledger.Approve(ctx, "c1", "u1", stats.PayoutStatusApproved)
	require.NoError(t, err)
	require.Equal(t, stats.PayoutStatusApproved, d.Status)
	require.True(t, d.Amount.IsZero())

	remaining, distributed := f.budget(t, "c1")
	require.Equal(t, "49925.00", remaining)
	require.Equal(t, "75.00", distributed)

	entries, err := f.ledger.Entries(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestApproveAfterHoldDeductsOnlyNewEarnings(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", nil)
	f.stats(t, "c1", "75.00", 20, nil)
	ctx := context.Background()

	_, err := f.ledger.Approve(ctx, "c1", "u1", stats.PayoutStatusApproved)
	require.NoError(t, err)
	_, err = f.ledger.Approve(ctx, "c1", "u1", stats.PayoutStatusHeld)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&stats.CreatorCampaignStats{}).
		Where("id = ?", "s-c1").Update("total_earned", decimal.RequireFromString("100.00")).Error)

	d, err := f.ledger.Approve(ctx, "c1", "u1", stats.PayoutStatusApproved)
	require.NoError(t, err)
	require.Equal(t, "25.00", d.Amount.StringFixed(2))

	remaining, distributed := f.budget(t, "c1")
	require.Equal(t, "49900.00", remaining)
	require.Equal(t, "100.00", distributed)
}

func TestApproveKeepsBudgetInvariant(t *testing.T) {
	f := newFixture(t)
	for i, earned := range []string{"75.00", "120.50", "10.25"} {
		id := fmt.Sprintf("c%d", i)
		f.campaign(t, id, func(c *campaign.DistributionCampaign) {
			c.TotalBudget = decimal.NewFromInt(1000)
			c.RemainingBudget = decimal.NewFromInt(800)
			c.TotalDistributedAmount = decimal.NewFromInt(100)
		})
		f.stats(t, id, earned, 20, nil)
		_, err := f.ledger.Approve(context.Background(), id, "u1", stats.PayoutStatusApproved)
		require.NoError(t, err)

		var c campaign.DistributionCampaign
		require.NoError(t, f.db.Where("id = ?", id).First(&c).Error)
		require.Equal(t, "900.00", c.RemainingBudget.Add(c.TotalDistributedAmount).StringFixed(2))
		require.False(t, c.RemainingBudget.IsNegative())
	}
}

func TestApproveHoldsLowEngagement(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", nil)
	f.stats(t, "c1", "75.00", 10, nil)

	d, err := f.ledger.Approve(context.Background(), "c1", "u1", stats.PayoutStatusApproved)
	require.NoError(t, err)
	require.Equal(t, stats.PayoutStatusHeld, d.Status)
	require.Equal(t, fraud.EventLowEngagementRate, d.HoldReason)
	require.Equal(t, stats.PayoutStatusHeld, f.row(t, "c1").PayoutStatus)
	require.EqualValues(t, 1, f.logs(t, fraud.EventLowEngagementRate))

	remaining, _ := f.budget(t, "c1")
	require.Equal(t, "50000.00", remaining)
}

func TestApproveCRSGates(t *testing.T) {
	tests := []struct {
		name      string
		crs       float64
		known     bool
		status    stats.PayoutStatus
		amount    string
		penalized bool
	}{
		{name: "unknown crs holds", crs: 90, known: false, status: stats.PayoutStatusHeld, amount: "0.00"},
		{name: "below hold threshold", crs: 20, known: true, status: stats.PayoutStatusHeld, amount: "0.00"},
		{name: "penalty band", crs: 30, known: true, status: stats.PayoutStatusApproved, amount: "60.00", penalized: true},
		{name: "penalty band upper edge", crs: 39.99, known: true, status: stats.PayoutStatusApproved, amount: "60.00", penalized: true},
		{name: "no penalty at 40", crs: 40, known: true, status: stats.PayoutStatusApproved, amount: "75.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.crs.value, f.crs.known = tt.crs, tt.known
			f.campaign(t, "c1", nil)
			f.stats(t, "c1", "75.00", 20, nil)

			d, err := f.ledger.Approve(context.Background(), "c1", "u1", stats.PayoutStatusApproved)
			require.NoError(t, err)
			require.Equal(t, tt.status, d.Status)
			require.Equal(t, tt.amount, d.Amount.StringFixed(2))
			require.Equal(t, tt.penalized, d.Penalized)
			if tt.status == stats.PayoutStatusHeld {
				require.Equal(t, fraud.EventLowCRS, d.HoldReason)
				require.EqualValues(t, 1, f.logs(t, fraud.EventLowCRS))
			}
		})
	}
}

func TestApproveInsufficientBudgetRollsBack(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", func(c *campaign.DistributionCampaign) {
		c.RemainingBudget = decimal.NewFromInt(40)
	})
	f.stats(t, "c1", "75.00", 20, nil)

	_, err := f.ledger.Approve(context.Background(), "c1", "u1", stats.PayoutStatusApproved)
	require.True(t, errutil.Is(err, errutil.StatusInsufficientBudget))

	remaining, distributed := f.budget(t, "c1")
	require.Equal(t, "40.00", remaining)
	require.Equal(t, "0.00", distributed)
	require.Equal(t, stats.PayoutStatusPending, f.row(t, "c1").PayoutStatus)

	var entries int64
	require.NoError(t, f.db.Model(&BudgetEntry{}).Count(&entries).Error)
	require.Zero(t, entries)
}

func TestApproveMilestoneTooEarly(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", func(c *campaign.DistributionCampaign) {
		c.PayoutModel = campaign.PayoutModelFixedMilestone
	})
	reached := f.now.Add(-3 * time.Hour)
	f.stats(t, "c1", "50.00", 20, func(s *stats.CreatorCampaignStats) {
		s.MilestoneReachedAt = &reached
	})
	f.spreadEvents(t, "c1", 12, 4)

	_, err := f.ledger.Approve(context.Background(), "c1", "u1", stats.PayoutStatusApproved)
	require.True(t, errutil.Is(err, errutil.StatusMilestoneTooEarly))
	require.Equal(t, stats.PayoutStatusPending, f.row(t, "c1").PayoutStatus)

	remaining, _ := f.budget(t, "c1")
	require.Equal(t, "50000.00", remaining)
}

func TestApproveMilestoneGeoFloor(t *testing.T) {
	tests := []struct {
		name    string
		ranges  int
		regions int
		status  stats.PayoutStatus
	}{
		{name: "too few ranges", ranges: 9, regions: 3, status: stats.PayoutStatusHeld},
		{name: "too few regions", ranges: 12, regions: 2, status: stats.PayoutStatusHeld},
		{name: "diverse enough", ranges: 10, regions: 3, status: stats.PayoutStatusApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.campaign(t, "c1", func(c *campaign.DistributionCampaign) {
				c.PayoutModel = campaign.PayoutModelFixedMilestone
			})
			reached := f.now.Add(-7 * time.Hour)
			f.stats(t, "c1", "50.00", 20, func(s *stats.CreatorCampaignStats) {
				s.MilestoneReachedAt = &reached
			})
			f.spreadEvents(t, "c1", tt.ranges, tt.regions)

			d, err := f.ledger.Approve(context.Background(), "c1", "u1", stats.PayoutStatusApproved)
			require.NoError(t, err)
			require.Equal(t, tt.status, d.Status)
			if tt.status == stats.PayoutStatusHeld {
				require.Equal(t, fraud.EventLowGeoDiversity, d.HoldReason)
				require.EqualValues(t, 1, f.logs(t, fraud.EventLowGeoDiversity))
			} else {
				require.Equal(t, "50.00", d.Amount.StringFixed(2))
			}
		})
	}
}

func TestApproveMilestoneFallsBackToLastUpdated(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", func(c *campaign.DistributionCampaign) {
		c.PayoutModel = campaign.PayoutModelFixedMilestone
	})
	f.stats(t, "c1", "50.00", 20, func(s *stats.CreatorCampaignStats) {
		s.LastUpdated = f.now.Add(-time.Hour)
	})

	_, err := f.ledger.Approve(context.Background(), "c1", "u1", stats.PayoutStatusApproved)
	require.True(t, errutil.Is(err, errutil.StatusMilestoneTooEarly))
}

func TestApproveCooldown(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", nil)
	f.stats(t, "c1", "75.00", 20, nil)

	today := f.ledger.today()
	for i, days := range []int{1, 3, 6} {
		require.NoError(t, f.db.Create(&CooldownRecord{
			ID: fmt.Sprintf("cd%d", i), CreatorID: "u1", CampaignID: fmt.Sprintf("other-%d", i),
			PayoutDate: today.AddDate(0, 0, -days),
		}).Error)
	}

	_, err := f.ledger.Approve(context.Background(), "c1", "u1", stats.PayoutStatusApproved)
	require.True(t, errutil.Is(err, errutil.StatusCooldownExceeded))
	require.Equal(t, stats.PayoutStatusPending, f.row(t, "c1").PayoutStatus)
}

func TestApproveCooldownIgnoresOldPayouts(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", nil)
	f.stats(t, "c1", "75.00", 20, nil)

	today := f.ledger.today()
	for i, days := range []int{1, 7, 9} {
		require.NoError(t, f.db.Create(&CooldownRecord{
			ID: fmt.Sprintf("cd%d", i), CreatorID: "u1", CampaignID: fmt.Sprintf("other-%d", i),
			PayoutDate: today.AddDate(0, 0, -days),
		}).Error)
	}

	d, err := f.ledger.Approve(context.Background(), "c1", "u1", stats.PayoutStatusApproved)
	require.NoError(t, err)
	require.Equal(t, stats.PayoutStatusApproved, d.Status)
}

func TestApproveZeroEarnedSkipsGates(t *testing.T) {
	f := newFixture(t)
	f.crs.known = false
	f.campaign(t, "c1", nil)
	f.stats(t, "c1", "0", 1, nil)

	d, err := f.ledger.Approve(context.Background(), "c1", "u1", stats.PayoutStatusApproved)
	require.NoError(t, err)
	require.Equal(t, stats.PayoutStatusApproved, d.Status)
	require.True(t, d.Amount.IsZero())

	var entries int64
	require.NoError(t, f.db.Model(&BudgetEntry{}).Count(&entries).Error)
	require.Zero(t, entries)
}

func TestSetStatusWithoutGates(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", nil)
	f.stats(t, "c1", "75.00", 1, nil)

	d, err := f.ledger.Approve(context.Background(), "c1", "u1", stats.PayoutStatusHeld)
	require.NoError(t, err)
	require.Equal(t, stats.PayoutStatusHeld, d.Status)
	require.Zero(t, f.crs.calls.Load())

	_, err = f.ledger.Approve(context.Background(), "c1", "u1", stats.PayoutStatusPending)
	require.NoError(t, err)
	require.Equal(t, stats.PayoutStatusPending, f.row(t, "c1").PayoutStatus)

	_, err = f.ledger.Approve(context.Background(), "c1", "nobody", stats.PayoutStatusPending)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestApproveValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.Approve(context.Background(), "c1", "u1", stats.PayoutStatus("refunded"))
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	_, err = f.ledger.Approve(context.Background(), "missing", "u1", stats.PayoutStatusApproved)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	for _, ids := range [][2]string{{"", "u1"}, {"c1", ""}, {"  ", "u1"}} {
		_, err = f.ledger.Approve(context.Background(), ids[0], ids[1], stats.PayoutStatusApproved)
		require.True(t, errutil.Is(err, errutil.StatusBadRequest), "ids %q", ids)
	}
}

func TestApproveNeverChargesAnotherCampaign(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "a", nil)
	f.campaign(t, "b", nil)
	f.stats(t, "b", "75.00", 20, nil)
	ctx := context.Background()

	_, err := f.ledger.Approve(ctx, "", "u1", stats.PayoutStatusApproved)
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))

	_, err = f.ledger.Approve(ctx, "a", "u1", stats.PayoutStatusApproved)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	remaining, _ := f.budget(t, "a")
	require.Equal(t, "50000.00", remaining)
	remaining, _ = f.budget(t, "b")
	require.Equal(t, "50000.00", remaining)
	require.Equal(t, stats.PayoutStatusPending, f.row(t, "b").PayoutStatus)
}

func TestApproveConcurrentCreatorsShareBudget(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", func(c *campaign.DistributionCampaign) {
		c.TotalBudget = decimal.NewFromInt(400)
		c.RemainingBudget = decimal.NewFromInt(200)
	})
	const creators = 8
	for i := 0; i < creators; i++ {
		require.NoError(t, f.db.Create(&stats.CreatorCampaignStats{
			ID: fmt.Sprintf("s%d", i), CampaignID: "c1", CreatorID: fmt.Sprintf("u%d", i),
			VerifiedEngagementRate: score.New(20), TotalEarned: decimal.NewFromInt(50),
			PayoutStatus: stats.PayoutStatusPending, LastUpdated: f.now,
		}).Error)
	}

	errs := make([]error, creators)
	var g errgroup.Group
	for i := 0; i < creators; i++ {
		g.Go(func() error {
			_, errs[i] = f.ledger.Approve(context.Background(), "c1", fmt.Sprintf("u%d", i), stats.PayoutStatusApproved)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	approved, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			approved++
		case errutil.Is(err, errutil.StatusInsufficientBudget):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 4, approved)
	require.Equal(t, 4, insufficient)

	remaining, distributed := f.budget(t, "c1")
	require.Equal(t, "0.00", remaining)
	require.Equal(t, "200.00", distributed)

	entries, err := f.ledger.Entries(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	broken, err := f.ledger.VerifyBudgetChain(context.Background(), "c1")
	require.NoError(t, err)
	require.Empty(t, broken)
}

func TestApproveConcurrentSamePairDeductsOnce(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", nil)
	f.stats(t, "c1", "75.00", 20, nil)

	var g errgroup.Group
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			_, err := f.ledger.Approve(context.Background(), "c1", "u1", stats.PayoutStatusApproved)
			return err
		})
	}
	require.NoError(t, g.Wait())

	remaining, distributed := f.budget(t, "c1")
	require.Equal(t, "49925.00", remaining)
	require.Equal(t, "75.00", distributed)

	var n int64
	require.NoError(t, f.db.Model(&BudgetEntry{}).Count(&n).Error)
	require.EqualValues(t, 1, n)
}

func TestVerifyBudgetChainDetectsTampering(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "shared", nil)
	for i, creator := range []string{"u1", "u2", "u3"} {
		require.NoError(t, f.db.Create(&stats.CreatorCampaignStats{
			ID: fmt.Sprintf("s%d", i), CampaignID: "shared", CreatorID: creator,
			VerifiedEngagementRate: score.New(20), TotalEarned: decimal.NewFromInt(int64(10 * (i + 1))),
			PayoutStatus: stats.PayoutStatusPending, LastUpdated: f.now,
		}).Error)
		f.now = f.now.Add(time.Second)
		_, err := f.ledger.Approve(context.Background(), "shared", creator, stats.PayoutStatusApproved)
		require.NoError(t, err)
	}

	entries, err := f.ledger.Entries(context.Background(), "shared")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, entries[0].Hash, entries[1].PreviousHash)
	require.Equal(t, entries[1].Hash, entries[2].PreviousHash)
	require.Equal(t, "49940.00", entries[2].RemainingAfter.StringFixed(2))

	broken, err := f.ledger.VerifyBudgetChain(context.Background(), "shared")
	require.NoError(t, err)
	require.Empty(t, broken)

	require.NoError(t, f.db.Model(&BudgetEntry{}).Where("id = ?", entries[1].ID).
		Update("amount", decimal.NewFromInt(1)).Error)

	broken, err = f.ledger.VerifyBudgetChain(context.Background(), "shared")
	require.NoError(t, err)
	require.Equal(t, entries[1].ID, broken)
}

func TestLockTimeout(t *testing.T) {
	f := newFixture(t)
	f.campaign(t, "c1", nil)
	f.stats(t, "c1", "75.00", 20, nil)

	repo := NewRepository(RepositoryParams{DB: f.db}).(*gormRepository)
	repo.lockTimeout = time.Nanosecond
	f.ledger.repo = repo

	_, err := f.ledger.Approve(context.Background(), "c1", "u1", stats.PayoutStatusApproved)
	require.True(t, errutil.Is(err, errutil.StatusTimeout))
}
