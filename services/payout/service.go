package payout

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ishaamahadeva-India/pompomm/pkg/errutil"
	"github.com/ishaamahadeva-India/pompomm/pkg/logger"
	"github.com/ishaamahadeva-India/pompomm/pkg/repository"
	"github.com/ishaamahadeva-India/pompomm/pkg/score"
	"github.com/ishaamahadeva-India/pompomm/services/campaign"
	"github.com/ishaamahadeva-India/pompomm/services/fraud"
	"github.com/ishaamahadeva-India/pompomm/services/referral"
	"github.com/ishaamahadeva-India/pompomm/services/stats"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Approval gates, checked in this order.
const (
	MinEngagementRate  = 15.0
	CRSHoldBelow       = 25.0
	CRSPenaltyBelow    = 40.0
	MilestoneDelay     = 6 * time.Hour
	MinIPRanges        = 10
	MinRegions         = 3
	CooldownWindowDays = 7
	CooldownMaxPayouts = 3
)

var penaltyFactor = decimal.NewFromFloat(0.8)

// CRSReader resolves a creator's reliability score.
type CRSReader interface {
	Get(ctx context.Context, creatorID string) (score.Score, bool, error)
}

// Decision reports what an approval did.
type Decision struct {
	CampaignID      string             `json:"campaign_id"`
	CreatorID       string             `json:"creator_id"`
	Status          stats.PayoutStatus `json:"payout_status"`
	HoldReason      fraud.EventType    `json:"hold_reason,omitempty"`
	Amount          decimal.Decimal    `json:"amount"`
	Penalized       bool               `json:"penalized"`
	RemainingBudget decimal.Decimal    `json:"remaining_budget"`
}

type Ledger struct {
	db    *gorm.DB
	node  *snowflake.Node
	repo  Repository
	audit *fraud.AuditLog
	crs   CRSReader
	now   func() time.Time

	entry    repository.Repository[BudgetEntry]
	cooldown repository.Repository[CooldownRecord]
}

type LedgerParams struct {
	fx.In

	DB    *gorm.DB
	Node  *snowflake.Node
	Repo  Repository
	Audit *fraud.AuditLog
	CRS   CRSReader
}

func NewLedger(p LedgerParams) *Ledger {
	return &Ledger{
		db:       p.DB,
		node:     p.Node,
		repo:     p.Repo,
		audit:    p.Audit,
		crs:      p.CRS,
		now:      func() time.Time { return time.Now().UTC() },
		entry:    repository.ProvideStore[BudgetEntry](p.DB),
		cooldown: repository.ProvideStore[CooldownRecord](p.DB),
	}
}

// Approve sets the payout status of a (campaign, creator) pair. Approving or
// paying an unsettled pair runs the approval gates and moves money from the
// campaign budget atomically. A hold commits the held status and its fraud
// log; an abort rolls back and returns a typed error.
func (l *Ledger) Approve(ctx context.Context, campaignID, creatorID string, status stats.PayoutStatus) (*Decision, error) {
	var missing []errutil.Detail
	if strings.TrimSpace(campaignID) == "" {
		missing = append(missing, errutil.Detail{Field: "campaign_id", Message: "is required"})
	}
	if strings.TrimSpace(creatorID) == "" {
		missing = append(missing, errutil.Detail{Field: "creator_id", Message: "is required"})
	}
	if len(missing) > 0 {
		return nil, errutil.BadRequest("campaign_id and creator_id are required", nil, errutil.WithDetails(missing...))
	}
	if !status.Valid() {
		return nil, errutil.ValidationFailed("invalid payout status", nil,
			errutil.WithDetails(errutil.Detail{Field: "status", Message: "must be pending, approved, held or paid"}))
	}

	zapLog := logger.FromContext(ctx,
		zap.String("campaign_id", campaignID),
		zap.String("creator_id", creatorID),
		zap.String("status", string(status)),
	)

	if status == stats.PayoutStatusPending || status == stats.PayoutStatusHeld {
		return l.setStatus(ctx, campaignID, creatorID, status)
	}

	crs, known, err := l.crs.Get(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if !known {
		crs = score.New(0)
	}

	var decision *Decision
	err = l.repo.WithLockedCampaignAndCreator(ctx, campaignID, creatorID, func(lt LockedTx) error {
		d, err := l.approveLocked(ctx, lt, status, crs)
		if err != nil {
			return err
		}
		decision = d
		return nil
	})
	if err != nil {
		if aborted(err) {
			zapLog.Info("payout approval aborted", zap.Error(err))
		} else {
			zapLog.Error("payout approval failed", zap.Error(err))
		}
		return nil, err
	}

	zapLog.Info("payout decided",
		zap.String("result", string(decision.Status)),
		zap.String("hold_reason", string(decision.HoldReason)),
		zap.String("amount", decision.Amount.StringFixed(2)),
		zap.Bool("penalized", decision.Penalized),
	)
	return decision, nil
}

func aborted(err error) bool {
	for _, code := range []errutil.CoreStatus{
		errutil.StatusInsufficientBudget,
		errutil.StatusMilestoneTooEarly,
		errutil.StatusCooldownExceeded,
		errutil.StatusNotFound,
	} {
		if errutil.Is(err, code) {
			return true
		}
	}
	return false
}

func (l *Ledger) approveLocked(ctx context.Context, lt LockedTx, status stats.PayoutStatus, crs score.Score) (*Decision, error) {
	row, camp := lt.Stats, lt.Campaign
	decision := &Decision{
		CampaignID:      camp.ID,
		CreatorID:       row.CreatorID,
		Status:          status,
		Amount:          decimal.Zero,
		RemainingBudget: camp.RemainingBudget,
	}

	// Money already left the budget for this pair.
	if row.PayoutStatus == stats.PayoutStatusApproved || row.PayoutStatus == stats.PayoutStatusPaid {
		return decision, l.writeStatus(ctx, lt.Tx, row.ID, status)
	}

	// A pair can leave approved through a hold and come back; only the part
	// of total_earned not yet settled may be deducted.
	settled, err := l.settled(ctx, lt.Tx, camp.ID, row.CreatorID)
	if err != nil {
		return nil, errutil.Internal("failed to load settled amount", err)
	}
	if settled.GreaterThanOrEqual(row.TotalEarned) {
		return decision, l.writeStatus(ctx, lt.Tx, row.ID, status)
	}

	amount := row.TotalEarned
	moving := amount.IsPositive()

	if moving && row.VerifiedEngagementRate.Float64() < MinEngagementRate {
		return l.hold(ctx, lt, decision, fraud.EventLowEngagementRate, map[string]any{
			"engagement_rate": row.VerifiedEngagementRate.Float64(),
			"threshold":       MinEngagementRate,
		})
	}

	if moving {
		switch {
		case crs.Float64() < CRSHoldBelow:
			return l.hold(ctx, lt, decision, fraud.EventLowCRS, map[string]any{
				"crs":       crs.Float64(),
				"threshold": CRSHoldBelow,
			})
		case crs.Float64() < CRSPenaltyBelow:
			amount = amount.Mul(penaltyFactor).Round(2)
			decision.Penalized = true
		}
	}

	if moving {
		amount = amount.Sub(settled)
		if !amount.IsPositive() {
			return decision, l.writeStatus(ctx, lt.Tx, row.ID, status)
		}
	}

	if moving && amount.GreaterThan(camp.RemainingBudget) {
		return nil, errutil.InsufficientBudget("insufficient campaign budget", nil,
			errutil.WithDetails(
				errutil.Detail{Field: "amount", Message: amount.StringFixed(2)},
				errutil.Detail{Field: "remaining_budget", Message: camp.RemainingBudget.StringFixed(2)},
			))
	}

	if moving && camp.PayoutModel == campaign.PayoutModelFixedMilestone {
		reached := row.LastUpdated
		if row.MilestoneReachedAt != nil {
			reached = *row.MilestoneReachedAt
		}
		if l.now().Sub(reached) < MilestoneDelay {
			return nil, errutil.MilestoneTooEarly("milestone payout delay not elapsed", nil,
				errutil.WithDetails(errutil.Detail{Field: "milestone_reached_at", Message: reached.UTC().Format(time.RFC3339)}))
		}

		ranges, err := referral.CountIPRanges(ctx, lt.Tx, camp.ID, row.CreatorID)
		if err != nil {
			return nil, errutil.Internal("failed to count ip ranges", err)
		}
		regions, err := referral.CountRegions(ctx, lt.Tx, row.CreatorID, camp.ID)
		if err != nil {
			return nil, errutil.Internal("failed to count regions", err)
		}
		if ranges < MinIPRanges || regions < MinRegions {
			return l.hold(ctx, lt, decision, fraud.EventLowGeoDiversity, map[string]any{
				"ip_ranges": ranges,
				"regions":   regions,
			})
		}
	}

	if moving {
		paid, err := l.recentPayouts(ctx, lt.Tx, row.CreatorID)
		if err != nil {
			return nil, errutil.Internal("failed to count recent payouts", err)
		}
		if paid >= CooldownMaxPayouts {
			return nil, errutil.CooldownExceeded("creator payout cooldown active", nil,
				errutil.WithDetails(errutil.Detail{Field: "campaigns_paid_last_7_days", Message: decimal.NewFromInt(paid).String()}))
		}

		remaining, err := l.deduct(ctx, lt, amount)
		if err != nil {
			return nil, errutil.Internal("failed to deduct budget", err)
		}
		decision.Amount = amount
		decision.RemainingBudget = remaining
	}

	return decision, l.writeStatus(ctx, lt.Tx, row.ID, status)
}

// settled sums the budget entries already deducted for the pair.
func (l *Ledger) settled(ctx context.Context, tx *gorm.DB, campaignID, creatorID string) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := tx.WithContext(ctx).Model(&BudgetEntry{}).
		Where("campaign_id = ? AND creator_id = ?", campaignID, creatorID).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.Sum(decimal.Zero, amounts...), nil
}

// recentPayouts counts distinct campaigns that paid the creator in the
// trailing window, including today.
func (l *Ledger) recentPayouts(ctx context.Context, tx *gorm.DB, creatorID string) (int64, error) {
	since := l.today().AddDate(0, 0, -CooldownWindowDays)
	var n int64
	err := tx.WithContext(ctx).Model(&CooldownRecord{}).
		Where("creator_id = ? AND payout_date > ?", creatorID, since).
		Distinct("campaign_id").
		Count(&n).Error
	return n, err
}

// deduct moves amount from remaining to distributed, records the cooldown day
// and appends a chained budget entry.
func (l *Ledger) deduct(ctx context.Context, lt LockedTx, amount decimal.Decimal) (decimal.Decimal, error) {
	camp := lt.Campaign
	remaining := camp.RemainingBudget.Sub(amount)
	distributed := camp.TotalDistributedAmount.Add(amount)

	err := lt.Tx.WithContext(ctx).Model(&campaign.DistributionCampaign{}).
		Where("id = ?", camp.ID).
		Updates(map[string]any{
			"remaining_budget":         remaining,
			"total_distributed_amount": distributed,
		}).Error
	if err != nil {
		return decimal.Zero, err
	}

	rec := &CooldownRecord{
		ID:         l.node.Generate().String(),
		CreatorID:  lt.Stats.CreatorID,
		CampaignID: camp.ID,
		PayoutDate: l.today(),
	}
	if err := l.cooldown.WithTrx(lt.Tx).Upsert(ctx, rec, []string{"creator_id", "campaign_id", "payout_date"}, nil); err != nil {
		return decimal.Zero, err
	}

	var last BudgetEntry
	err = lt.Tx.WithContext(ctx).
		Where("campaign_id = ?", camp.ID).
		Order("created_at desc").Order("id desc").
		Limit(1).Find(&last).Error
	if err != nil {
		return decimal.Zero, err
	}

	entry := &BudgetEntry{
		ID:             l.node.Generate().String(),
		CampaignID:     camp.ID,
		CreatorID:      lt.Stats.CreatorID,
		Amount:         amount,
		RemainingAfter: remaining,
		PreviousHash:   last.Hash,
		CreatedAt:      l.now().Truncate(time.Microsecond),
	}
	entry.Hash = entry.GenerateHash()
	if err := l.entry.WithTrx(lt.Tx).Create(ctx, entry); err != nil {
		return decimal.Zero, err
	}

	return remaining, nil
}

func (l *Ledger) hold(ctx context.Context, lt LockedTx, decision *Decision, reason fraud.EventType, detail map[string]any) (*Decision, error) {
	detail["total_earned"] = lt.Stats.TotalEarned.StringFixed(2)
	payload, err := json.Marshal(detail)
	if err != nil {
		return nil, errutil.Internal("failed to encode hold log", err)
	}

	err = l.audit.Write(ctx, lt.Tx, &fraud.LogEntry{
		EventType:  reason,
		CampaignID: lt.Campaign.ID,
		CreatorID:  lt.Stats.CreatorID,
		FraudScore: lt.Stats.FraudScore,
		Payload:    payload,
	})
	if err != nil {
		return nil, errutil.Internal("failed to write hold log", err)
	}

	decision.Status = stats.PayoutStatusHeld
	decision.HoldReason = reason
	return decision, l.writeStatus(ctx, lt.Tx, lt.Stats.ID, stats.PayoutStatusHeld)
}

func (l *Ledger) writeStatus(ctx context.Context, tx *gorm.DB, statsID string, status stats.PayoutStatus) error {
	err := tx.WithContext(ctx).Model(&stats.CreatorCampaignStats{}).
		Where("id = ?", statsID).
		Updates(map[string]any{"payout_status": status, "last_updated": l.now()}).Error
	if err != nil {
		return errutil.Internal("failed to write payout status", err)
	}
	return nil
}

// setStatus writes pending or held without touching the budget.
func (l *Ledger) setStatus(ctx context.Context, campaignID, creatorID string, status stats.PayoutStatus) (*Decision, error) {
	res := l.db.WithContext(ctx).Model(&stats.CreatorCampaignStats{}).
		Where("campaign_id = ? AND creator_id = ?", campaignID, creatorID).
		Updates(map[string]any{"payout_status": status, "last_updated": l.now()})
	if res.Error != nil {
		return nil, errutil.Internal("failed to write payout status", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errutil.NotFound("creator stats not found", nil)
	}
	return &Decision{CampaignID: campaignID, CreatorID: creatorID, Status: status, Amount: decimal.Zero}, nil
}

func (l *Ledger) today() time.Time {
	now := l.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Entries lists the budget entries of a campaign in chain order.
func (l *Ledger) Entries(ctx context.Context, campaignID string) ([]*BudgetEntry, error) {
	var out []*BudgetEntry
	err := l.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("created_at asc").Order("id asc").
		Find(&out).Error
	if err != nil {
		return nil, errutil.Internal("failed to load budget entries", err)
	}
	return out, nil
}

// VerifyBudgetChain recomputes every entry hash of a campaign and checks the
// links. It returns the id of the first broken entry, or "" when intact.
func (l *Ledger) VerifyBudgetChain(ctx context.Context, campaignID string) (string, error) {
	entries, err := l.Entries(ctx, campaignID)
	if err != nil {
		return "", err
	}

	prev := ""
	for _, e := range entries {
		if e.PreviousHash != prev || e.GenerateHash() != e.Hash {
			logger.FromContext(ctx).Warn("budget chain broken",
				zap.String("campaign_id", campaignID),
				zap.String("entry_id", e.ID),
			)
			return e.ID, nil
		}
		prev = e.Hash
	}
	return "", nil
}
