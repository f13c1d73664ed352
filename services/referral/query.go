package referral

import (
	"context"
	"net"

	"gorm.io/gorm"
)

// Subnet24 returns the /24 range of an IPv4 address. Other addresses form
// their own range. Empty input returns "".
func Subnet24(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}
	v4 := parsed.To4()
	if v4 == nil {
		return parsed.String()
	}
	return net.IPv4(v4[0], v4[1], v4[2], 0).String() + "/24"
}

func pairScope(db *gorm.DB, campaignID, creatorID string) *gorm.DB {
	return db.Model(&ReferralEvent{}).
		Where("campaign_id = ? AND referrer_creator_id = ?", campaignID, creatorID)
}

// CountUniqueViews counts distinct visitor identities among the pair's view events.
func CountUniqueViews(ctx context.Context, db *gorm.DB, campaignID, creatorID string) (int64, error) {
	var rows []*ReferralEvent
	err := pairScope(db.WithContext(ctx), campaignID, creatorID).
		Distinct("visitor_user_id", "ip", "device_hash").
		Where("action = ?", ActionView).
		Find(&rows).Error
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		seen[r.Identity()] = struct{}{}
	}
	return int64(len(seen)), nil
}

// CountAction counts the pair's events of one action.
func CountAction(ctx context.Context, db *gorm.DB, campaignID, creatorID string, action Action) (int64, error) {
	var n int64
	err := pairScope(db.WithContext(ctx), campaignID, creatorID).
		Where("action = ?", action).
		Count(&n).Error
	return n, err
}

// CountIPRanges counts distinct /24 ranges among the pair's events.
func CountIPRanges(ctx context.Context, db *gorm.DB, campaignID, creatorID string) (int64, error) {
	var ips []string
	err := pairScope(db.WithContext(ctx), campaignID, creatorID).
		Where("ip <> ''").
		Distinct().
		Pluck("ip", &ips).Error
	if err != nil {
		return 0, err
	}

	ranges := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		ranges[Subnet24(ip)] = struct{}{}
	}
	return int64(len(ranges)), nil
}

// CountRegions counts distinct non-empty geo_state values of a creator's
// events across the given campaigns.
func CountRegions(ctx context.Context, db *gorm.DB, creatorID string, campaignIDs ...string) (int64, error) {
	if len(campaignIDs) == 0 {
		return 0, nil
	}

	var n int64
	err := db.WithContext(ctx).Model(&ReferralEvent{}).
		Where("referrer_creator_id = ? AND campaign_id IN ?", creatorID, campaignIDs).
		Where("geo_state IS NOT NULL AND geo_state <> ''").
		Distinct("geo_state").
		Count(&n).Error
	return n, err
}
