package sweep

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/config"
	"github.com/ishaamahadeva-India/pompomm/pkg/errutil"
	"github.com/ishaamahadeva-India/pompomm/pkg/taskname"
	"github.com/ishaamahadeva-India/pompomm/services/campaign"
	"github.com/ishaamahadeva-India/pompomm/services/fraud"
	"github.com/ishaamahadeva-India/pompomm/services/referral"
	"github.com/ishaamahadeva-India/pompomm/services/reliability"
	"github.com/ishaamahadeva-India/pompomm/services/stats"
	"github.com/ishaamahadeva-India/pompomm/services/tier"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultFraudWindow   = 6 * time.Minute
	crsActivityWindow    = 7 * 24 * time.Hour
	tierFreshness        = 7 * 24 * time.Hour
	defaultRetentionDays = 30
	minRetentionDays     = 7
	maxRetentionDays     = 365
)

type StatsSource interface {
	ListUpdatedSince(ctx context.Context, since time.Time) ([]*stats.CreatorCampaignStats, error)
	CreatorsUpdatedSince(ctx context.Context, since time.Time) ([]string, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*stats.CreatorCampaignStats, error)
}

type FraudScorer interface {
	Score(ctx context.Context, campaignID, creatorID string) (*fraud.Result, error)
	CountCases(ctx context.Context, campaignID string, monthStart time.Time) (int64, error)
}

type CRSComputer interface {
	Recompute(ctx context.Context, creatorID string) (*reliability.Record, error)
	ListFresh(ctx context.Context, since time.Time) ([]*reliability.Record, error)
}

type EarningsCalculator interface {
	Recalculate(ctx context.Context, campaignID, creatorID string) (decimal.Decimal, error)
}

type TierEvaluator interface {
	AutoEnabled(ctx context.Context) bool
	Evaluate(ctx context.Context, creatorID string) (*tier.Outcome, error)
}

type CampaignSource interface {
	ListActive(ctx context.Context, now time.Time) ([]*campaign.DistributionCampaign, error)
	CompleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type EventRetention interface {
	Snapshot(ctx context.Context, cutoff time.Time) ([]*referral.CampaignMonthlySnapshot, error)
	SaveSnapshots(ctx context.Context, snaps []*referral.CampaignMonthlySnapshot) error
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	now  func() time.Time

	fraudWindow   time.Duration
	retentionDays int

	stats     StatsSource
	fraud     FraudScorer
	crs       CRSComputer
	earnings  EarningsCalculator
	tiers     TierEvaluator
	campaigns CampaignSource
	retention EventRetention
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Node      *snowflake.Node
	Config    *config.Config `optional:"true"`
	Stats     StatsSource
	Fraud     FraudScorer
	CRS       CRSComputer
	Earnings  EarningsCalculator
	Tiers     TierEvaluator
	Campaigns CampaignSource
	Retention EventRetention
}

func NewService(p Params) *Service {
	s := &Service{
		db:            p.DB,
		node:          p.Node,
		now:           func() time.Time { return time.Now().UTC() },
		fraudWindow:   defaultFraudWindow,
		retentionDays: defaultRetentionDays,
		stats:         p.Stats,
		fraud:         p.Fraud,
		crs:           p.CRS,
		earnings:      p.Earnings,
		tiers:         p.Tiers,
		campaigns:     p.Campaigns,
		retention:     p.Retention,
	}
	if p.Config != nil {
		if p.Config.Distribution.FraudSweepWindow > 0 {
			s.fraudWindow = p.Config.Distribution.FraudSweepWindow
		}
		if p.Config.Distribution.RetentionDays != 0 {
			s.retentionDays = p.Config.Distribution.RetentionDays
		}
	}
	return s
}

// RetentionDays clamps days into [7, 365], defaulting to 30 when unset.
func RetentionDays(days int) int {
	switch {
	case days == 0:
		return defaultRetentionDays
	case days < minRetentionDays:
		return minRetentionDays
	case days > maxRetentionDays:
		return maxRetentionDays
	}
	return days
}

// run records a Job around fn. Item failures are counted by fn; an error from
// fn fails the whole run.
func (s *Service) run(ctx context.Context, taskType string, fn func(ctx context.Context, p *Progress) error) (*Job, error) {
	zapLog := zap.L().With(zap.String("task_type", taskType))

	job := &Job{
		ID:        s.node.Generate().String(),
		TaskType:  taskType,
		Status:    JobStatusRunning,
		StartedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, errutil.Internal("failed to create sweep job", err)
	}
	zapLog.Info("sweep started", zap.String("job_id", job.ID))

	var progress Progress
	runErr := fn(ctx, &progress)

	completed := s.now()
	job.Processed, job.Failed, job.CompletedAt = progress.Processed, progress.Failed, &completed
	job.Status = JobStatusSuccess
	if runErr != nil {
		job.Status = JobStatusFailed
		job.ErrorMsg = runErr.Error()
	}
	if len(progress.Metadata) > 0 {
		meta, err := json.Marshal(progress.Metadata)
		if err != nil {
			zapLog.Error("failed to encode sweep metadata", zap.String("job_id", job.ID), zap.Error(err))
		} else {
			job.Metadata = meta
		}
	}

	err := s.db.WithContext(context.WithoutCancel(ctx)).Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]any{
		"status":       job.Status,
		"processed":    job.Processed,
		"failed":       job.Failed,
		"error_msg":    job.ErrorMsg,
		"metadata":     job.Metadata,
		"completed_at": job.CompletedAt,
	}).Error
	if err != nil {
		zapLog.Error("failed to finish sweep job", zap.String("job_id", job.ID), zap.Error(err))
	}

	zapLog.Info("sweep finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.Int("processed", job.Processed),
		zap.Int("failed", job.Failed),
		zap.Duration("duration", completed.Sub(job.StartedAt)),
	)
	return job, runErr
}

// Fraud scores every pair whose stats changed within the fraud window.
func (s *Service) Fraud(ctx context.Context) (*Job, error) {
	return s.run(ctx, taskname.SweepFraud, func(ctx context.Context, p *Progress) error {
		rows, err := s.stats.ListUpdatedSince(ctx, s.now().Add(-s.fraudWindow))
		if err != nil {
			return err
		}
		held := 0
		for _, row := range rows {
			res, err := s.fraud.Score(ctx, row.CampaignID, row.CreatorID)
			if err != nil {
				s.itemFailed(taskname.SweepFraud, row.CampaignID, row.CreatorID, err)
				p.fail()
				continue
			}
			if res.Held {
				held++
			}
			p.ok()
		}
		p.set("held", held)
		return nil
	})
}

// CRS recomputes the reliability score of every creator active in 7 days.
func (s *Service) CRS(ctx context.Context) (*Job, error) {
	return s.run(ctx, taskname.SweepCRS, func(ctx context.Context, p *Progress) error {
		creators, err := s.stats.CreatorsUpdatedSince(ctx, s.now().Add(-crsActivityWindow))
		if err != nil {
			return err
		}
		for _, creatorID := range creators {
			if _, err := s.crs.Recompute(ctx, creatorID); err != nil {
				s.itemFailed(taskname.SweepCRS, "", creatorID, err)
				p.fail()
				continue
			}
			p.ok()
		}
		return nil
	})
}

// Earnings closes expired campaigns and recalculates every pair of the
// campaigns still active.
func (s *Service) Earnings(ctx context.Context) (*Job, error) {
	return s.run(ctx, taskname.SweepEarnings, func(ctx context.Context, p *Progress) error {
		now := s.now()
		completed, err := s.campaigns.CompleteExpired(ctx, now)
		if err != nil {
			return err
		}
		p.set("completed_campaigns", completed)

		active, err := s.campaigns.ListActive(ctx, now)
		if err != nil {
			return err
		}
		for _, c := range active {
			rows, err := s.stats.ListByCampaign(ctx, c.ID)
			if err != nil {
				s.itemFailed(taskname.SweepEarnings, c.ID, "", err)
				p.fail()
				continue
			}
			for _, row := range rows {
				if _, err := s.earnings.Recalculate(ctx, row.CampaignID, row.CreatorID); err != nil {
					s.itemFailed(taskname.SweepEarnings, row.CampaignID, row.CreatorID, err)
					p.fail()
					continue
				}
				p.ok()
			}
		}
		return nil
	})
}

// Tier evaluates every creator with a fresh CRS while auto tiering is on.
func (s *Service) Tier(ctx context.Context) (*Job, error) {
	return s.run(ctx, taskname.SweepTier, func(ctx context.Context, p *Progress) error {
		if !s.tiers.AutoEnabled(ctx) {
			p.set("skipped", "auto_tier_disabled")
			return nil
		}

		records, err := s.crs.ListFresh(ctx, s.now().Add(-tierFreshness))
		if err != nil {
			return err
		}
		changed := 0
		for _, r := range records {
			out, err := s.tiers.Evaluate(ctx, r.CreatorID)
			if err != nil {
				s.itemFailed(taskname.SweepTier, "", r.CreatorID, err)
				p.fail()
				continue
			}
			if out.Changed {
				changed++
			}
			p.ok()
		}
		p.set("changed", changed)
		return nil
	})
}

// Retention rolls events older than the retention window into monthly
// snapshots, then deletes them. Nothing is pruned when the snapshot fails.
func (s *Service) Retention(ctx context.Context) (*Job, error) {
	return s.run(ctx, taskname.SweepRetention, func(ctx context.Context, p *Progress) error {
		days := RetentionDays(s.retentionDays)
		cutoff := s.now().AddDate(0, 0, -days)
		p.set("retention_days", days)

		snaps, err := s.retention.Snapshot(ctx, cutoff)
		if err != nil {
			return err
		}
		for _, snap := range snaps {
			month, err := time.Parse("2006-01", snap.YearMonth)
			if err != nil {
				return fmt.Errorf("invalid snapshot month %q: %w", snap.YearMonth, err)
			}
			cases, err := s.fraud.CountCases(ctx, snap.CampaignID, month)
			if err != nil {
				return err
			}
			snap.FraudCasesCount = cases
		}
		if err := s.retention.SaveSnapshots(ctx, snaps); err != nil {
			return err
		}
		p.set("snapshots", len(snaps))

		pruned, err := s.retention.Prune(ctx, cutoff)
		if err != nil {
			return err
		}
		p.Processed = int(pruned)
		return nil
	})
}

// Jobs lists the most recent sweep runs, newest first.
func (s *Service) Jobs(ctx context.Context, taskType string, limit int) ([]*Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := s.db.WithContext(ctx).Order("started_at desc").Order("id desc").Limit(limit)
	if taskType != "" {
		q = q.Where("task_type = ?", taskType)
	}
	var out []*Job
	if err := q.Find(&out).Error; err != nil {
		return nil, errutil.Internal("failed to list sweep jobs", err)
	}
	return out, nil
}

func (s *Service) itemFailed(taskType, campaignID, creatorID string, err error) {
	zap.L().Warn("sweep item failed",
		zap.String("task_type", taskType),
		zap.String("campaign_id", campaignID),
		zap.String("creator_id", creatorID),
		zap.Error(err),
	)
}
