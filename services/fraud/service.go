package fraud

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/db/option"
	"github.com/ishaamahadeva-India/pompomm/pkg/db/pagination"
	"github.com/ishaamahadeva-India/pompomm/pkg/errutil"
	"github.com/ishaamahadeva-India/pompomm/pkg/logger"
	"github.com/ishaamahadeva-India/pompomm/pkg/score"
	"github.com/ishaamahadeva-India/pompomm/services/referral"
	"github.com/ishaamahadeva-India/pompomm/services/stats"
	"github.com/ishaamahadeva-India/pompomm/services/tier"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	Window    = 7 * 24 * time.Hour
	MinEvents = 10

	HoldThreshold         = 50.0
	HoldThresholdVerified = 70.0
)

type Engine struct {
	db    *gorm.DB
	audit *AuditLog
	now   func() time.Time
}

type EngineParams struct {
	fx.In

	DB    *gorm.DB
	Audit *AuditLog
}

func NewEngine(p EngineParams) *Engine {
	return &Engine{
		db:    p.DB,
		audit: p.Audit,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Score runs the fixed heuristics over the pair's events of the trailing
// window, writes one distribution_fraud log entry and persists the score on
// the stats row. A high score holds the payout unless it is already paid.
func (e *Engine) Score(ctx context.Context, campaignID, creatorID string) (*Result, error) {
	if campaignID == "" || creatorID == "" {
		return nil, errutil.BadRequest("campaign_id and creator_id are required", nil)
	}
	zapLog := logger.FromContext(ctx, zap.String("campaign_id", campaignID), zap.String("creator_id", creatorID))

	var events []*referral.ReferralEvent
	err := e.db.WithContext(ctx).
		Select("ip", "device_hash", "geo_country", "created_at").
		Where("campaign_id = ? AND referrer_creator_id = ? AND created_at > ?", campaignID, creatorID, e.now().Add(-Window)).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, errutil.Internal("failed to load events", err)
	}

	res := Evaluate(events)
	res.CampaignID, res.CreatorID = campaignID, creatorID

	if res.Events < MinEvents {
		if err := e.writeLog(ctx, nil, res); err != nil {
			return nil, errutil.Internal("failed to write fraud log", err)
		}
		return res, nil
	}

	var creator tier.Creator
	if err := e.db.WithContext(ctx).Where("id = ?", creatorID).Limit(1).Find(&creator).Error; err != nil {
		return nil, errutil.Internal("failed to load creator", err)
	}
	threshold := HoldThreshold
	if creator.Tier == tier.TierVerified {
		threshold = HoldThresholdVerified
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row stats.CreatorCampaignStats
		q := option.Apply(tx.Where("campaign_id = ? AND creator_id = ?", campaignID, creatorID), option.WithLockingUpdate())
		if err := q.Limit(1).Find(&row).Error; err != nil {
			return err
		}

		res.Held = res.Score.Float64() >= threshold && row.PayoutStatus != stats.PayoutStatusPaid

		if err := e.writeLog(ctx, tx, res); err != nil {
			return err
		}
		if row.ID == "" {
			return nil
		}

		updates := map[string]any{"fraud_score": res.Score}
		if res.Held {
			updates["payout_status"] = stats.PayoutStatusHeld
		}
		return tx.Model(&stats.CreatorCampaignStats{}).Where("id = ?", row.ID).Updates(updates).Error
	})
	if err != nil {
		zapLog.Error("failed to persist fraud score", zap.Error(err))
		return nil, errutil.Internal("failed to persist fraud score", err)
	}

	if res.Held {
		zapLog.Warn("payout held by fraud score", zap.String("fraud_score", res.Score.String()), zap.Float64("threshold", threshold))
	}
	return res, nil
}

func (e *Engine) writeLog(ctx context.Context, tx *gorm.DB, res *Result) error {
	geo, err := json.Marshal(res.GeoSummary)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]any{"top_five_ip_ranges": res.TopRanges, "events": res.Events})
	if err != nil {
		return err
	}

	return e.audit.Write(ctx, tx, &LogEntry{
		EventType:              EventDistributionFraud,
		CampaignID:             res.CampaignID,
		CreatorID:              res.CreatorID,
		FraudScore:             res.Score,
		IPConcentration:        res.IPConcentration,
		DeviceDuplicationRate:  res.DeviceDuplicationRate,
		SpikeDelta:             res.SpikeDelta,
		GeoDistributionSummary: datatypes.JSON(geo),
		Payload:                datatypes.JSON(payload),
	})
}

// Evaluate computes the score and diagnostics of time-ordered events. Fewer
// than MinEvents events score 0 with empty diagnostics.
func Evaluate(events []*referral.ReferralEvent) *Result {
	total := len(events)
	res := &Result{
		Events:     total,
		TopRanges:  []RangeCount{},
		GeoSummary: map[string]int64{},
	}
	if total < MinEvents {
		return res
	}

	ipCounts := map[string]int{}
	rangeCounts := map[string]int{}
	deviceCounts := map[string]int{}
	minuteCounts := map[int64]int{}
	for _, ev := range events {
		ipCounts[ev.IP]++
		rangeCounts[ipRange(ev.IP)]++
		deviceCounts[ev.DeviceHash]++
		minuteCounts[ev.CreatedAt.Unix()/60]++
		if ev.GeoCountry != "" {
			res.GeoSummary[ev.GeoCountry]++
		}
	}

	var points float64

	topIP := maxCount(ipCounts)
	ipShare := float64(topIP) / float64(total)
	res.IPConcentration = score.Round2(ipShare * 100)
	switch {
	case ipShare > 0.5:
		points += 40
	case ipShare > 0.3:
		points += 20
	}

	if float64(maxCount(rangeCounts))/float64(total) > 0.5 {
		points += 25
	}
	res.TopRanges = topRanges(rangeCounts, 5)

	avgPerMinute := float64(total) / float64(len(minuteCounts))
	ratio := float64(maxCount(minuteCounts)) / avgPerMinute
	res.SpikeDelta = score.Round2((ratio - 1) * 100)
	if ratio > 3 {
		points += 25
	}

	res.DeviceDuplicationRate = score.Round2(float64(maxCount(deviceCounts)) / float64(total) * 100)
	if len(deviceCounts) == 1 && total > 20 {
		points += 10
	}

	res.Score = score.New(points)
	return res
}

func ipRange(ip string) string {
	if ip == "" {
		return ""
	}
	return referral.Subnet24(ip)
}

func maxCount[K comparable](m map[K]int) int {
	top := 0
	for _, c := range m {
		if c > top {
			top = c
		}
	}
	return top
}

func topRanges(counts map[string]int, n int) []RangeCount {
	out := make([]RangeCount, 0, len(counts))
	for r, c := range counts {
		out = append(out, RangeCount{Range: r, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Range < out[j].Range
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// ListLogs pages through a campaign's log entries, newest first.
func (e *Engine) ListLogs(ctx context.Context, campaignID string, page pagination.Pagination) ([]*LogEntry, *pagination.PageInfo, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 250 {
		limit = 250
	}

	q := e.db.WithContext(ctx).Where("campaign_id = ?", campaignID)
	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		at, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", at.UTC(), at.UTC(), cursor.ID)
	}

	var rows []*LogEntry
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, nil, errutil.Internal("failed to list fraud logs", err)
	}

	info := pagination.BuildCursorPageInfo(rows, int32(limit), func(l *LogEntry) string {
		c, _ := pagination.EncodeCursor(pagination.Cursor{CreatedAt: l.CreatedAt.UTC().Format(time.RFC3339Nano), ID: l.ID})
		return c
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, info, nil
}

// CountCases counts distribution_fraud entries of a campaign created in the
// month starting at monthStart.
func (e *Engine) CountCases(ctx context.Context, campaignID string, monthStart time.Time) (int64, error) {
	from := time.Date(monthStart.Year(), monthStart.Month(), 1, 0, 0, 0, 0, time.UTC)
	var n int64
	err := e.db.WithContext(ctx).Model(&LogEntry{}).
		Where("campaign_id = ? AND event_type = ? AND created_at >= ? AND created_at < ?",
			campaignID, EventDistributionFraud, from, from.AddDate(0, 1, 0)).
		Count(&n).Error
	return n, err
}
