package referral

import (
	"context"
	"testing"
	"time"

	"github.com/ishaamahadeva-India/pompomm/services/testutil"

	"github.com/stretchr/testify/require"
)

func TestSubnet24(t *testing.T) {
	require.Equal(t, "10.1.2.0/24", Subnet24("10.1.2.77"))
	require.Equal(t, "2001:db8::1", Subnet24("2001:db8::1"))
	require.Equal(t, "garbage", Subnet24("garbage"))
}

func TestSignalQueries(t *testing.T) {
	db := testutil.NewTestDB(t, &ReferralEvent{})
	ctx := context.Background()
	now := time.Now().UTC()

	events := []*ReferralEvent{
		{ID: "1", CampaignID: "c1", ReferrerCreatorID: "u1", IP: "10.0.1.1", GeoState: "KA", Action: ActionView, CreatedAt: now},
		{ID: "2", CampaignID: "c1", ReferrerCreatorID: "u1", IP: "10.0.1.2", GeoState: "KA", Action: ActionView, CreatedAt: now},
		{ID: "3", CampaignID: "c1", ReferrerCreatorID: "u1", IP: "10.0.2.1", GeoState: "TN", Action: ActionLike, CreatedAt: now},
		{ID: "4", CampaignID: "c2", ReferrerCreatorID: "u1", IP: "10.0.3.1", GeoState: "MH", Action: ActionView, CreatedAt: now},
		{ID: "5", CampaignID: "c2", ReferrerCreatorID: "u1", IP: "10.0.3.1", Action: ActionView, CreatedAt: now},
	}
	require.NoError(t, db.Create(&events).Error)

	views, err := CountUniqueViews(ctx, db, "c1", "u1")
	require.NoError(t, err)
	require.Equal(t, int64(2), views)

	likes, err := CountAction(ctx, db, "c1", "u1", ActionLike)
	require.NoError(t, err)
	require.Equal(t, int64(1), likes)

	ranges, err := CountIPRanges(ctx, db, "c1", "u1")
	require.NoError(t, err)
	require.Equal(t, int64(2), ranges)

	regions, err := CountRegions(ctx, db, "u1", "c1", "c2")
	require.NoError(t, err)
	require.Equal(t, int64(3), regions)

	regions, err = CountRegions(ctx, db, "u1")
	require.NoError(t, err)
	require.Zero(t, regions)
}
