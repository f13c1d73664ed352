package events

// Event types published by the distribution pipeline.
const (
	TierPromotion = "creator.tier.promotion"
	TierDemotion  = "creator.tier.demotion"
)
