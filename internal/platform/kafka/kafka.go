// Package kafka builds the franz-go producer client and manages topics.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"kyb/internal/platform/config"
)

const defaultDeliveryTimeout = 5 * time.Second

// NewClient returns a producer with idempotent writes and all-ISR acks, so a
// nil ProduceSync result means the record is durable on the broker.
func NewClient(cfg config.KafkaConfig, extra ...kgo.Opt) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	deliveryTimeout := cfg.DeliveryTimeout
	if deliveryTimeout <= 0 {
		deliveryTimeout = defaultDeliveryTimeout
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5 * time.Millisecond),
		kgo.RecordDeliveryTimeout(deliveryTimeout),
		kgo.ProduceRequestTimeout(10 * time.Second),
	}
	opts = append(opts, extra...)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// Ping verifies at least one broker is reachable.
func Ping(ctx context.Context, client *kgo.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("ping kafka: %w", err)
	}
	return nil
}

// EnsureTopics creates any missing topics. Existing topics are left as they are.
func EnsureTopics(ctx context.Context, client *kgo.Client, cfg config.KafkaConfig, topics []string, logger *slog.Logger) error {
	if len(topics) == 0 {
		return nil
	}
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopics(ctx, cfg.Partitions, cfg.ReplicationFactor, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	var errs []error
	for _, t := range resp.Sorted() {
		switch {
		case t.Err == nil:
			logger.InfoContext(ctx, "kafka topic created", "topic", t.Topic, "partitions", cfg.Partitions)
		case errors.Is(t.Err, kerr.TopicAlreadyExists):
			logger.DebugContext(ctx, "kafka topic exists", "topic", t.Topic)
		default:
			errs = append(errs, fmt.Errorf("topic %s: %w", t.Topic, t.Err))
		}
	}
	return errors.Join(errs...)
}
