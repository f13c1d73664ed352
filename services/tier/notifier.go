package tier

import (
	"context"

	"github.com/ishaamahadeva-India/pompomm/pkg/events"
	"github.com/ishaamahadeva-India/pompomm/pkg/score"
)

type ChangeKind string

const (
	KindPromotion ChangeKind = "promotion"
	KindDemotion  ChangeKind = "demotion"
)

// Change describes a committed automatic tier move.
type Change struct {
	CreatorID string       `json:"creator_id"`
	Kind      ChangeKind   `json:"kind"`
	OldTier   Tier         `json:"old_tier"`
	NewTier   Tier         `json:"new_tier"`
	CRSScore  *score.Score `json:"crs_score,omitempty"`
}

// Notifier is told about every committed promotion or demotion.
type Notifier interface {
	NotifyTierChange(ctx context.Context, change Change) error
}

// EventNotifier publishes tier changes keyed by creator id.
type EventNotifier struct {
	publisher events.Publisher
}

func NewEventNotifier(publisher events.Publisher) *EventNotifier {
	return &EventNotifier{publisher: publisher}
}

func (n *EventNotifier) NotifyTierChange(ctx context.Context, change Change) error {
	eventType := events.TierPromotion
	if change.Kind == KindDemotion {
		eventType = events.TierDemotion
	}

	payload, err := events.Encode(eventType, change)
	if err != nil {
		return err
	}
	return n.publisher.Publish(ctx, eventType, payload, change.CreatorID)
}
