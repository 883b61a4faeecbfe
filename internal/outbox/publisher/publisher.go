// Package publisher delivers outbox events to Kafka.
package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	dErrors "kyb/pkg/domain-errors"

	"kyb/internal/outbox/models"
)

// Header keys carried on every record.
const (
	HeaderEventID       = "event-id"
	HeaderEventType     = "event-type"
	HeaderAggregateType = "aggregate-type"
	HeaderOccurredAt    = "occurred-at"
)

// Producer is the part of *kgo.Client used here.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher produces one record per event and waits for the broker
// acknowledgment. The client must be built with idempotent writes and
// all-ISR acks (see internal/platform/kafka).
type KafkaPublisher struct {
	producer Producer
	logger   *slog.Logger
}

// Option configures the KafkaPublisher.
type Option func(*KafkaPublisher)

// WithLogger sets a logger for delivery diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *KafkaPublisher) {
		p.logger = logger
	}
}

func NewKafka(producer Producer, opts ...Option) *KafkaPublisher {
	p := &KafkaPublisher{producer: producer}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish returns nil only after the record is acknowledged.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, event *models.Event) error {
	record := NewRecord(topic, event)
	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		if p.logger != nil {
			p.logger.WarnContext(ctx, "kafka produce failed",
				"topic", topic,
				"event_id", event.ID.String(),
				"event_type", event.EventType,
				"error", err,
			)
		}
		return dErrors.Wrap(err, dErrors.CodePublishFailure, "publish to "+topic+" failed")
	}
	return nil
}

// NewRecord builds the Kafka record for an event. The aggregate id is the key
// so every event of one aggregate lands on the same partition.
func NewRecord(topic string, event *models.Event) *kgo.Record {
	return &kgo.Record{
		Topic:     topic,
		Key:       []byte(event.AggregateID),
		Value:     event.Payload,
		Timestamp: event.OccurredAt,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEventID, Value: []byte(event.ID.String())},
			{Key: HeaderEventType, Value: []byte(event.EventType)},
			{Key: HeaderAggregateType, Value: []byte(event.AggregateType)},
			{Key: HeaderOccurredAt, Value: []byte(event.OccurredAt.UTC().Format(time.RFC3339Nano))},
		},
	}
}
