package tier

import (
	"context"
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/config"
	"github.com/ishaamahadeva-India/pompomm/pkg/db/option"
	"github.com/ishaamahadeva-India/pompomm/pkg/errutil"
	"github.com/ishaamahadeva-India/pompomm/pkg/featureflags"
	"github.com/ishaamahadeva-India/pompomm/pkg/logger"
	"github.com/ishaamahadeva-India/pompomm/pkg/score"
	"github.com/ishaamahadeva-India/pompomm/services/reliability"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// FreshnessWindow bounds how old a CRS may be and still move a tier.
	FreshnessWindow = 7 * 24 * time.Hour

	DefaultHistoryLimit = 5
	MaxHistoryLimit     = 100
)

// Reliability is the CRS read side used by the lifecycle.
type Reliability interface {
	Get(ctx context.Context, creatorID string) (score.Score, bool, error)
	Record(ctx context.Context, creatorID string) (*reliability.Record, error)
}

type Lifecycle struct {
	db          *gorm.DB
	node        *snowflake.Node
	reliability Reliability
	notifier    Notifier
	flags       featureflags.FeatureFlag
	autoDefault bool
	now         func() time.Time
}

type LifecycleParams struct {
	fx.In

	DB          *gorm.DB
	Node        *snowflake.Node
	Config      *config.Config
	Reliability Reliability
	Notifier    Notifier
	Flags       featureflags.FeatureFlag `optional:"true"`
}

func NewLifecycle(p LifecycleParams) *Lifecycle {
	autoDefault := true
	if p.Config != nil {
		autoDefault = p.Config.Distribution.AutoTierEnabled
	}
	flags := p.Flags
	if flags == nil {
		flags = featureflags.Static{}
	}
	return &Lifecycle{
		db:          p.DB,
		node:        p.Node,
		reliability: p.Reliability,
		notifier:    p.Notifier,
		flags:       flags,
		autoDefault: autoDefault,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Skip reasons reported by Evaluate.
const (
	SkipAutoDisabled = "auto_tier_disabled"
	SkipNoCRS        = "no_crs"
	SkipStaleCRS     = "stale_crs"
)

type Outcome struct {
	CreatorID string       `json:"creator_id"`
	OldTier   Tier         `json:"old_tier"`
	NewTier   Tier         `json:"new_tier"`
	Changed   bool         `json:"changed"`
	Band      Band         `json:"band,omitempty"`
	Skipped   string       `json:"skipped,omitempty"`
	CRSScore  *score.Score `json:"crs_score,omitempty"`
}

// AutoEnabled reports whether CRS driven evaluation is switched on.
func (l *Lifecycle) AutoEnabled(ctx context.Context) bool {
	return l.flags.Enabled(ctx, featureflags.AutoTierSystem, l.autoDefault)
}

// Tier returns the creator's current tier, bronze when unknown.
func (l *Lifecycle) Tier(ctx context.Context, creatorID string) (Tier, error) {
	var c Creator
	if err := l.db.WithContext(ctx).Where("id = ?", creatorID).Limit(1).Find(&c).Error; err != nil {
		return "", errutil.Internal("failed to load creator", err)
	}
	return c.Tier.Normalize(), nil
}

// Handles maps creator ids to their public unique creator id. Creators
// without one are left out.
func (l *Lifecycle) Handles(ctx context.Context, creatorIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(creatorIDs))
	if len(creatorIDs) == 0 {
		return out, nil
	}
	var rows []*Creator
	err := l.db.WithContext(ctx).
		Where("id IN ? AND unique_creator_id IS NOT NULL", creatorIDs).
		Find(&rows).Error
	if err != nil {
		return nil, errutil.Internal("failed to load creators", err)
	}
	for _, c := range rows {
		out[c.ID] = *c.UniqueCreatorID
	}
	return out, nil
}

// Evaluate applies at most one CRS driven tier step. Scores older than
// FreshnessWindow leave the tier alone.
func (l *Lifecycle) Evaluate(ctx context.Context, creatorID string) (*Outcome, error) {
	if creatorID == "" {
		return nil, errutil.BadRequest("creator_id is required", nil)
	}
	zapLog := logger.FromContext(ctx, zap.String("creator_id", creatorID))
	out := &Outcome{CreatorID: creatorID}

	if !l.AutoEnabled(ctx) {
		out.Skipped = SkipAutoDisabled
		return out, nil
	}

	rec, err := l.reliability.Record(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		out.Skipped = SkipNoCRS
		return out, nil
	}
	if rec.LastUpdated.Before(l.now().Add(-FreshnessWindow)) {
		out.Skipped = SkipStaleCRS
		return out, nil
	}

	crs := rec.CRSScore
	out.CRSScore = &crs
	out.Band = BandOf(crs)

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := l.lockCreator(tx, creatorID)
		if err != nil {
			return err
		}
		out.OldTier = current
		out.NewTier = Step(current, TargetTier(current, crs))
		if out.NewTier == current {
			return nil
		}

		reason := ReasonPromotion
		if out.NewTier.Rank() < current.Rank() {
			reason = ReasonDemotion
		}
		out.Changed = true
		return l.applyChange(tx, creatorID, current, out.NewTier, reason, &crs)
	})
	if err != nil {
		zapLog.Error("failed to evaluate tier", zap.Error(err))
		return nil, errutil.Internal("failed to evaluate tier", err)
	}

	if out.Changed {
		zapLog.Info("tier changed",
			zap.String("old_tier", string(out.OldTier)),
			zap.String("new_tier", string(out.NewTier)),
			zap.String("crs_score", crs.String()),
		)
		l.notify(ctx, out)
	}
	return out, nil
}

// Override sets any tier, verified included. Setting the current tier is a
// no-op and writes no history.
func (l *Lifecycle) Override(ctx context.Context, creatorID string, target Tier) (*Outcome, error) {
	if creatorID == "" {
		return nil, errutil.BadRequest("creator_id is required", nil)
	}
	if !target.Valid() {
		return nil, errutil.ValidationFailed("invalid tier", nil, errutil.WithDetails(errutil.Detail{Field: "tier", Message: "must be bronze, silver, gold or verified"}))
	}

	var crs *score.Score
	if v, found, err := l.reliability.Get(ctx, creatorID); err != nil {
		zap.L().Warn("crs unavailable for override context", zap.String("creator_id", creatorID), zap.Error(err))
	} else if found {
		crs = &v
	}

	out := &Outcome{CreatorID: creatorID, NewTier: target, CRSScore: crs}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := l.lockCreator(tx, creatorID)
		if err != nil {
			return err
		}
		out.OldTier = current
		if current == target {
			return nil
		}
		out.Changed = true
		return l.applyChange(tx, creatorID, current, target, ReasonAdminOverride, crs)
	})
	if err != nil {
		return nil, errutil.Internal("failed to override tier", err)
	}

	if out.Changed {
		zap.L().Info("tier overridden",
			zap.String("creator_id", creatorID),
			zap.String("old_tier", string(out.OldTier)),
			zap.String("new_tier", string(out.NewTier)),
		)
	}
	return out, nil
}

// History returns the newest tier changes of a creator.
func (l *Lifecycle) History(ctx context.Context, creatorID string, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	var rows []*HistoryEntry
	err := l.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("changed_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errutil.Internal("failed to load tier history", err)
	}
	return rows, nil
}

// lockCreator ensures the creator row exists and locks it.
func (l *Lifecycle) lockCreator(tx *gorm.DB, creatorID string) (Tier, error) {
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Creator{ID: creatorID, Tier: TierBronze}).Error
	if err != nil {
		return "", err
	}

	var c Creator
	if err := option.Apply(tx.Where("id = ?", creatorID), option.WithLockingUpdate()).First(&c).Error; err != nil {
		return "", err
	}
	return c.Tier.Normalize(), nil
}

func (l *Lifecycle) applyChange(tx *gorm.DB, creatorID string, from, to Tier, reason Reason, crs *score.Score) error {
	now := l.now()
	if err := tx.Model(&Creator{}).Where("id = ?", creatorID).
		Updates(map[string]any{"tier": to, "updated_at": now}).Error; err != nil {
		return err
	}
	return tx.Create(&HistoryEntry{
		ID:               l.node.Generate().String(),
		CreatorID:        creatorID,
		OldTier:          from,
		NewTier:          to,
		Reason:           reason,
		CRSScoreAtChange: crs,
		ChangedAt:        now,
	}).Error
}

func (l *Lifecycle) notify(ctx context.Context, out *Outcome) {
	if l.notifier == nil {
		return
	}
	kind := KindPromotion
	if out.NewTier.Rank() < out.OldTier.Rank() {
		kind = KindDemotion
	}
	err := l.notifier.NotifyTierChange(ctx, Change{
		CreatorID: out.CreatorID,
		Kind:      kind,
		OldTier:   out.OldTier,
		NewTier:   out.NewTier,
		CRSScore:  out.CRSScore,
	})
	if err != nil {
		zap.L().Warn("tier change notification failed", zap.String("creator_id", out.CreatorID), zap.Error(err))
	}
}
