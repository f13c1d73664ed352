package rediskey

import "fmt"

// Distribution keys (shared by the API and the worker)
const (
	CreatorReliabilityPrefix = "crs:creator"
	DistributionStatsPrefix  = "dist_stats"
	DistributionUniquePrefix = "dist_uniq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildCreatorReliabilityKey returns "crs:creator:{creatorID}"
func BuildCreatorReliabilityKey(creatorID string) string {
	return NamespaceKey(CreatorReliabilityPrefix, creatorID)
}

// BuildDistributionStatsKey returns "dist_stats:{campaignID}:{creatorID}"
func BuildDistributionStatsKey(campaignID, creatorID string) string {
	return NamespaceKey(DistributionStatsPrefix, fmt.Sprintf("%s:%s", campaignID, creatorID))
}

// BuildDistributionUniqueKey returns "dist_uniq:{campaignID}:{creatorID}:{identity}:{action}"
func BuildDistributionUniqueKey(campaignID, creatorID, identity, action string) string {
	return NamespaceKey(DistributionUniquePrefix, fmt.Sprintf("%s:%s:%s:%s", campaignID, creatorID, identity, action))
}
