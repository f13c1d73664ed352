package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/errutil"
	"github.com/ishaamahadeva-India/pompomm/pkg/score"
	"github.com/ishaamahadeva-India/pompomm/services/campaign"
	"github.com/ishaamahadeva-India/pompomm/services/stats"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type uploaderMock struct {
	key  string
	body string
	err  error
}

func (m *uploaderMock) Put(_ context.Context, key string, body io.Reader, size int64, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	b, _ := io.ReadAll(body)
	if int64(len(b)) != size {
		return "", errors.New("size mismatch")
	}
	m.key, m.body = key, string(b)
	return "bucket/" + key, nil
}

type statsMock struct {
	rows []*stats.CreatorCampaignStats
}

func (m *statsMock) ListByCampaign(context.Context, string) ([]*stats.CreatorCampaignStats, error) {
	return m.rows, nil
}

type campaignMock struct{}

func (campaignMock) Get(_ context.Context, id string) (*campaign.DistributionCampaign, error) {
	if id != "c1" {
		return nil, errutil.NotFound("campaign not found", nil)
	}
	return &campaign.DistributionCampaign{ID: id}, nil
}

type directoryMock struct{}

func (directoryMock) Handles(context.Context, []string) (map[string]string, error) {
	return map[string]string{"u1": "creator_one"}, nil
}

func sampleRows() []*stats.CreatorCampaignStats {
	return []*stats.CreatorCampaignStats{
		{
			CreatorID: "u1", UniqueViewCount: 500, VerifiedEngagementRate: score.New(20),
			TotalEarned: decimal.NewFromInt(75), PayoutStatus: stats.PayoutStatusApproved, FraudScore: score.New(12.5),
		},
		{
			CreatorID: "u2", UniqueViewCount: 40, VerifiedEngagementRate: score.New(0),
			TotalEarned: decimal.Zero, PayoutStatus: stats.PayoutStatusPending,
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows(), map[string]string{"u1": "creator_one"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "creator_id,unique_creator_id,total_views,engagement_rate,total_earned,payout_status,fraud_score", lines[0])
	require.Equal(t, "u1,creator_one,500,20.00,75.00,approved,12.50", lines[1])
	require.Equal(t, "u2,,40,0.00,0.00,pending,0.00", lines[2])
}

func TestExportCampaign(t *testing.T) {
	up := &uploaderMock{}
	svc := NewService(Params{Uploader: up, Stats: &statsMock{rows: sampleRows()}, Campaigns: campaignMock{}, Creators: directoryMock{}})
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC) }

	out, err := svc.ExportCampaign(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, "exports/c1/20260301T103000Z.csv", up.key)
	require.Equal(t, "bucket/exports/c1/20260301T103000Z.csv", out.Location)
	require.Equal(t, 2, out.Rows)
	require.True(t, strings.HasPrefix(up.body, "creator_id,"))
	require.Contains(t, up.body, "u1,creator_one,500")
}

func TestExportCampaignErrors(t *testing.T) {
	svc := NewService(Params{Uploader: &uploaderMock{}, Stats: &statsMock{}, Campaigns: campaignMock{}, Creators: directoryMock{}})
	_, err := svc.ExportCampaign(context.Background(), "missing")
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	svc = NewService(Params{Uploader: &uploaderMock{err: errors.New("minio down")}, Stats: &statsMock{}, Campaigns: campaignMock{}, Creators: directoryMock{}})
	_, err = svc.ExportCampaign(context.Background(), "c1")
	require.True(t, errutil.Is(err, errutil.StatusServiceUnavailable))
}
