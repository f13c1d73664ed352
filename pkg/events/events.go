package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(ProvidePublisher),
)

// Publisher sends a domain event keyed by partitionKey.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}

// Envelope wraps every event published by this service.
type Envelope struct {
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Encode builds the JSON envelope for data.
func Encode(eventType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return json.Marshal(Envelope{
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
}

type KafkaPublisher struct {
	writer       *kafka.Writer
	topicByEvent map[string]string
}

func NewKafkaPublisher(brokers []string, topicByEvent map[string]string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			WriteTimeout: 5 * time.Second,
		},
		topicByEvent: topicByEvent,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	topic := eventType
	if mapped, ok := p.topicByEvent[eventType]; ok && mapped != "" {
		topic = mapped
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(partitionKey),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	zap.L().Debug("event dropped, no kafka brokers configured", zap.String("event_type", eventType))
	return nil
}

func ProvidePublisher(lc fx.Lifecycle, cfg *config.Config) (Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		zap.L().Warn("[Kafka] no brokers configured, events are dropped")
		return NopPublisher{}, nil
	}

	topics := map[string]string{
		TierPromotion: cfg.Kafka.TierTopic,
		TierDemotion:  cfg.Kafka.TierTopic,
	}
	pub, err := NewKafkaPublisher(cfg.Kafka.Brokers, topics)
	if err != nil {
		return nil, err
	}

	zap.L().Info("[Kafka] publisher ready", zap.Strings("brokers", cfg.Kafka.Brokers))
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return pub.Close()
		},
	})

	return pub, nil
}
