package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/errutil"
	"github.com/ishaamahadeva-India/pompomm/pkg/logger"
	"github.com/ishaamahadeva-India/pompomm/services/campaign"
	"github.com/ishaamahadeva-India/pompomm/services/stats"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var header = []string{
	"creator_id", "unique_creator_id", "total_views", "engagement_rate",
	"total_earned", "payout_status", "fraud_score",
}

// Uploader stores an export object and returns where it went.
type Uploader interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

type StatsLister interface {
	ListByCampaign(ctx context.Context, campaignID string) ([]*stats.CreatorCampaignStats, error)
}

type CampaignGetter interface {
	Get(ctx context.Context, campaignID string) (*campaign.DistributionCampaign, error)
}

// CreatorDirectory resolves public creator handles.
type CreatorDirectory interface {
	Handles(ctx context.Context, creatorIDs []string) (map[string]string, error)
}

type Export struct {
	CampaignID string    `json:"campaign_id"`
	Rows       int       `json:"rows"`
	Location   string    `json:"location"`
	CreatedAt  time.Time `json:"created_at"`
}

type Service struct {
	uploader  Uploader
	stats     StatsLister
	campaigns CampaignGetter
	creators  CreatorDirectory
	now       func() time.Time
}

type Params struct {
	fx.In

	Uploader  Uploader
	Stats     StatsLister
	Campaigns CampaignGetter
	Creators  CreatorDirectory
}

func NewService(p Params) *Service {
	return &Service{
		uploader:  p.Uploader,
		stats:     p.Stats,
		campaigns: p.Campaigns,
		creators:  p.Creators,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WriteCSV renders stats rows in export order. handles fills the
// unique_creator_id column, blank when a creator has none.
func WriteCSV(w io.Writer, rows []*stats.CreatorCampaignStats, handles map[string]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.CreatorID,
			handles[r.CreatorID],
			strconv.FormatInt(r.UniqueViewCount, 10),
			r.VerifiedEngagementRate.String(),
			r.TotalEarned.StringFixed(2),
			string(r.PayoutStatus),
			r.FraudScore.String(),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCampaign uploads the campaign's creator stats as CSV to
// exports/{campaign}/{timestamp}.csv.
func (s *Service) ExportCampaign(ctx context.Context, campaignID string) (*Export, error) {
	zapLog := logger.FromContext(ctx, zap.String("campaign_id", campaignID))

	if _, err := s.campaigns.Get(ctx, campaignID); err != nil {
		return nil, err
	}
	rows, err := s.stats.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.CreatorID)
	}
	handles, err := s.creators.Handles(ctx, ids)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows, handles); err != nil {
		return nil, errutil.Internal("failed to render export", err)
	}

	now := s.now()
	key := fmt.Sprintf("exports/%s/%s.csv", campaignID, now.Format("20060102T150405Z"))
	location, err := s.uploader.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "text/csv")
	if err != nil {
		zapLog.Error("export upload failed", zap.String("key", key), zap.Error(err))
		return nil, errutil.ServiceUnavailable("failed to upload export", err)
	}

	zapLog.Info("campaign exported", zap.String("location", location), zap.Int("rows", len(rows)))
	return &Export{CampaignID: campaignID, Rows: len(rows), Location: location, CreatedAt: now}, nil
}
