package referral

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/config"
	"github.com/ishaamahadeva-India/pompomm/pkg/db/option"
	"github.com/ishaamahadeva-India/pompomm/pkg/errutil"
	"github.com/ishaamahadeva-India/pompomm/pkg/logger"
	"github.com/ishaamahadeva-India/pompomm/pkg/rediskey"
	"github.com/ishaamahadeva-India/pompomm/pkg/repository"
	"github.com/ishaamahadeva-India/pompomm/services/campaign"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Aggregator refreshes the stats row of a (campaign, creator) pair.
type Aggregator interface {
	Refresh(ctx context.Context, campaignID, creatorID string) error
}

// EarningsCalculator recomputes total_earned of a (campaign, creator) pair.
type EarningsCalculator interface {
	Recalculate(ctx context.Context, campaignID, creatorID string) (decimal.Decimal, error)
}

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	redis *redis.Client

	dedupTTL   time.Duration
	aggregator Aggregator
	earnings   EarningsCalculator

	event    repository.Repository[ReferralEvent]
	campaign repository.Repository[campaign.DistributionCampaign]
}

type ServiceParams struct {
	fx.In

	DB         *gorm.DB
	Node       *snowflake.Node
	Config     *config.Config
	Redis      *redis.Client `optional:"true"`
	Aggregator Aggregator
	Earnings   EarningsCalculator
}

func NewService(p ServiceParams) *Service {
	ttl := 7 * 24 * time.Hour
	if p.Config != nil && p.Config.Distribution.DedupTTL > 0 {
		ttl = p.Config.Distribution.DedupTTL
	}
	return &Service{
		db:         p.DB,
		node:       p.Node,
		redis:      p.Redis,
		dedupTTL:   ttl,
		aggregator: p.Aggregator,
		earnings:   p.Earnings,
		event:      repository.ProvideStore[ReferralEvent](p.DB),
		campaign:   repository.ProvideStore[campaign.DistributionCampaign](p.DB),
	}
}

type RecordParams struct {
	CampaignID     string         `json:"campaign_id"`
	CreativeID     *string        `json:"creative_id"`
	CreatorID      string         `json:"creator_id"`
	VisitorUserID  *string        `json:"visitor_user_id"`
	IP             string         `json:"ip"`
	DeviceHash     string         `json:"device_hash"`
	WatchedSeconds int            `json:"watched_seconds"`
	Action         Action         `json:"action"`
	GeoCountry     string         `json:"geo_country"`
	GeoState       string         `json:"geo_state"`
	DeviceMetadata map[string]any `json:"device_metadata"`
}

type RecordResult struct {
	Recorded bool   `json:"recorded"`
	EventID  string `json:"event_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Rejection reasons that are not errors.
const (
	ReasonWatchTooShort = "watch_too_short"
	ReasonDuplicate     = "duplicate"
	ReasonInactive      = "campaign_inactive"
)

// Record gates an inbound engagement signal, appends it to the event store and
// refreshes the pair's stats and earnings.
func (s *Service) Record(ctx context.Context, p RecordParams) (*RecordResult, error) {
	zapLog := logger.FromContext(ctx,
		zap.String("campaign_id", p.CampaignID),
		zap.String("creator_id", p.CreatorID),
		zap.String("action", string(p.Action)),
	)

	if err := validateRecord(p); err != nil {
		return nil, err
	}

	if p.Action == ActionView && p.WatchedSeconds < MinWatchSeconds {
		return &RecordResult{Reason: ReasonWatchTooShort}, nil
	}

	c, err := s.campaign.FindOne(ctx, &campaign.DistributionCampaign{}, option.Where("id = ?", p.CampaignID))
	if err != nil {
		return nil, errutil.Internal("failed to load campaign", err)
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found", nil)
	}
	now := time.Now().UTC()
	if !c.IsActive(now) {
		return &RecordResult{Reason: ReasonInactive}, nil
	}

	var metadata []byte
	if len(p.DeviceMetadata) > 0 {
		metadata, err = json.Marshal(p.DeviceMetadata)
		if err != nil {
			return nil, errutil.BadRequest("invalid device_metadata", err)
		}
	}

	identity := Identity(p.VisitorUserID, p.IP, p.DeviceHash)
	key, claimed := s.claimIdentity(ctx, zapLog, p, identity)
	if !claimed {
		return &RecordResult{Reason: ReasonDuplicate}, nil
	}

	ev := &ReferralEvent{
		ID:                s.node.Generate().String(),
		CampaignID:        p.CampaignID,
		CreativeID:        p.CreativeID,
		ReferrerCreatorID: p.CreatorID,
		VisitorUserID:     p.VisitorUserID,
		IP:                p.IP,
		DeviceHash:        p.DeviceHash,
		WatchedSeconds:    p.WatchedSeconds,
		Action:            p.Action,
		GeoCountry:        p.GeoCountry,
		GeoState:          p.GeoState,
		DeviceMetadata:    metadata,
		CreatedAt:         now,
	}
	if err := s.event.Create(ctx, ev); err != nil {
		zapLog.Error("failed to append referral event", zap.Error(err))
		s.releaseIdentity(ctx, zapLog, key)
		return nil, errutil.Internal("failed to record event", err)
	}

	// The event is stored from here on; the key stays claimed so a retry
	// cannot append it twice. Sweeps re-aggregate the pair.

	if err := s.aggregator.Refresh(ctx, p.CampaignID, p.CreatorID); err != nil {
		zapLog.Error("failed to aggregate stats", zap.Error(err))
		return nil, err
	}

	if _, err := s.earnings.Recalculate(ctx, p.CampaignID, p.CreatorID); err != nil {
		zapLog.Error("failed to recalculate earnings", zap.Error(err))
		return nil, err
	}

	return &RecordResult{Recorded: true, EventID: ev.ID}, nil
}

// claimIdentity sets the per-identity dedup key and returns it when this call
// set it. Redis failures let the event through with no key to release.
func (s *Service) claimIdentity(ctx context.Context, zapLog *zap.Logger, p RecordParams, identity string) (string, bool) {
	if s.redis == nil {
		return "", true
	}

	key := rediskey.BuildDistributionUniqueKey(p.CampaignID, p.CreatorID, identity, string(p.Action))
	ok, err := s.redis.SetNX(ctx, key, 1, s.dedupTTL).Result()
	if err != nil {
		zapLog.Warn("dedup check failed, accepting event", zap.String("key", key), zap.Error(err))
		return "", true
	}
	if !ok {
		return "", false
	}
	return key, true
}

// releaseIdentity drops a claimed dedup key after the event failed to persist.
func (s *Service) releaseIdentity(ctx context.Context, zapLog *zap.Logger, key string) {
	if s.redis == nil || key == "" {
		return
	}
	if err := s.redis.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
		zapLog.Warn("failed to release dedup key", zap.String("key", key), zap.Error(err))
	}
}

func validateRecord(p RecordParams) error {
	var details []errutil.Detail
	if p.CampaignID == "" {
		details = append(details, errutil.Detail{Field: "campaign_id", Message: "required"})
	}
	if p.CreatorID == "" {
		details = append(details, errutil.Detail{Field: "creator_id", Message: "required"})
	}
	if !p.Action.Valid() {
		details = append(details, errutil.Detail{Field: "action", Message: "must be view, like or share"})
	}
	if p.IP != "" && net.ParseIP(p.IP) == nil {
		details = append(details, errutil.Detail{Field: "ip", Message: "invalid ip address"})
	}
	if (p.VisitorUserID == nil || *p.VisitorUserID == "") && p.IP == "" && p.DeviceHash == "" {
		details = append(details, errutil.Detail{Field: "visitor", Message: "visitor_user_id or ip/device_hash required"})
	}
	if p.WatchedSeconds < 0 {
		details = append(details, errutil.Detail{Field: "watched_seconds", Message: "must not be negative"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid referral event", nil, errutil.WithDetails(details...))
	}
	return nil
}

// Snapshot rolls up events created before cutoff by campaign and month.
// FraudCasesCount is left at zero.
func (s *Service) Snapshot(ctx context.Context, cutoff time.Time) ([]*CampaignMonthlySnapshot, error) {
	type key struct{ campaign, month string }
	type acc struct {
		snap    *CampaignMonthlySnapshot
		uniques map[string]struct{}
	}
	rollup := map[key]*acc{}
	var order []key

	var batch []*ReferralEvent
	err := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff.UTC()).
		FindInBatches(&batch, 1000, func(tx *gorm.DB, _ int) error {
			for _, ev := range batch {
				k := key{ev.CampaignID, ev.CreatedAt.UTC().Format("2006-01")}
				a, ok := rollup[k]
				if !ok {
					a = &acc{
						snap:    &CampaignMonthlySnapshot{CampaignID: k.campaign, YearMonth: k.month},
						uniques: map[string]struct{}{},
					}
					rollup[k] = a
					order = append(order, k)
				}
				switch ev.Action {
				case ActionView:
					a.snap.TotalViews++
					a.snap.TotalEngagement++
					a.uniques[ev.Identity()] = struct{}{}
				case ActionLike:
					a.snap.TotalEngagement += 2
				case ActionShare:
					a.snap.TotalEngagement += 3
				}
			}
			return nil
		}).Error
	if err != nil {
		return nil, errutil.Internal("failed to snapshot events", err)
	}

	out := make([]*CampaignMonthlySnapshot, 0, len(order))
	for _, k := range order {
		a := rollup[k]
		a.snap.UniqueViews = int64(len(a.uniques))
		out = append(out, a.snap)
	}
	return out, nil
}

// SaveSnapshots adds the given rollups onto any stored rows for the same month.
func (s *Service) SaveSnapshots(ctx context.Context, snaps []*CampaignMonthlySnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	table := CampaignMonthlySnapshot{}.TableName()
	additive := func(col string) clause.Expr {
		return gorm.Expr(table + "." + col + " + excluded." + col)
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "campaign_id"}, {Name: "year_month"}},
		DoUpdates: clause.Assignments(map[string]any{
			"total_views":       additive("total_views"),
			"unique_views":      additive("unique_views"),
			"total_engagement":  additive("total_engagement"),
			"fraud_cases_count": additive("fraud_cases_count"),
			"updated_at":        time.Now().UTC(),
		}),
	}).Create(&snaps).Error
}

// Prune deletes events created before cutoff.
func (s *Service) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&ReferralEvent{})
	if res.Error != nil {
		return 0, errutil.Internal("failed to prune events", res.Error)
	}
	return res.RowsAffected, nil
}
