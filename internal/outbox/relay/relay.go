// Package relay drains outbox partitions to the message bus.
//
// Each cycle claims a batch per partition, publishes every claimed event and
// marks only the acknowledged ones processed. Delivery is at-least-once: a
// crash after publish but before the claim commits leaves the rows
// unprocessed and they are published again on a later cycle, possibly by
// another replica.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	id "kyb/pkg/domain"

	outboxmetrics "kyb/internal/outbox/metrics"
	"kyb/internal/outbox/models"
	"kyb/internal/outbox/store"
)

//go:generate mockgen -destination=../mocks/publisher_mock.go -package=mocks kyb/internal/outbox/relay Publisher

// Publisher delivers one event and returns nil only on acknowledgment.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *models.Event) error
}

// Partition is one outbox table.
type Partition interface {
	Name() string
	ProcessBatch(ctx context.Context, limit int, fn store.BatchFunc) (int, error)
}

// BacklogReporter is optionally implemented by partitions for the backlog gauge.
type BacklogReporter interface {
	Backlog(ctx context.Context) (int, error)
}

// TopicResolver maps an event type to a topic.
type TopicResolver interface {
	Topic(eventType string) string
}

// Config controls polling and retry.
type Config struct {
	Interval       time.Duration
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// PublishTimeout bounds a single publish attempt.
	PublishTimeout time.Duration
}

// DefaultConfig polls every second, 100 rows per partition, 3 publish
// attempts of at most 5s each backing off 100ms, 200ms (capped at 2s).
func DefaultConfig() Config {
	return Config{
		Interval:       time.Second,
		BatchSize:      100,
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// PublishBudget is the longest one event can spend in publishWithRetry.
func (c Config) PublishBudget() time.Duration {
	c = c.withDefaults()
	attempts := time.Duration(c.MaxAttempts)
	return attempts*c.PublishTimeout + (attempts-1)*c.MaxBackoff
}

// CheckClaimTimeout rejects a claim window that a single failing event could
// use up, which would leave every claim in the partition to expire unmarked.
func (c Config) CheckClaimTimeout(claimTimeout time.Duration) error {
	c = c.withDefaults()
	if budget := c.PublishBudget(); claimTimeout <= budget {
		return fmt.Errorf("claim timeout %s must exceed the publish budget %s (%d attempts of %s plus backoff)",
			claimTimeout, budget, c.MaxAttempts, c.PublishTimeout)
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = d.PublishTimeout
	}
	return c
}

// Stats summarises one cycle.
type Stats struct {
	Claimed   int
	Published int
	Failed    int
	Deferred  int
	// Saturated is true when some partition returned a full batch.
	Saturated bool
}

func (s *Stats) add(o Stats) {
	s.Claimed += o.Claimed
	s.Published += o.Published
	s.Failed += o.Failed
	s.Deferred += o.Deferred
	s.Saturated = s.Saturated || o.Saturated
}

// Relay polls partitions and publishes their events.
type Relay struct {
	partitions []Partition
	publisher  Publisher
	router     TopicResolver
	cfg        Config
	logger     *slog.Logger
	metrics    *outboxmetrics.Metrics
	tracer     trace.Tracer
}

// Option configures the Relay.
type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *outboxmetrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithConfig(cfg Config) Option {
	return func(r *Relay) {
		r.cfg = cfg
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Relay) {
		r.tracer = t
	}
}

func New(partitions []Partition, publisher Publisher, router TopicResolver, opts ...Option) (*Relay, error) {
	if len(partitions) == 0 {
		return nil, errors.New("relay requires at least one partition")
	}
	if publisher == nil {
		return nil, errors.New("relay requires a publisher")
	}
	if router == nil {
		return nil, errors.New("relay requires a topic router")
	}
	r := &Relay{
		partitions: partitions,
		publisher:  publisher,
		router:     router,
		cfg:        DefaultConfig(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:     otel.Tracer("kyb/outbox/relay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cfg = r.cfg.withDefaults()
	return r, nil
}

// Run polls until ctx is cancelled. Cancellation is observed between cycles;
// a cycle that has started runs to completion on a context detached from ctx.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "outbox relay started",
		"partitions", len(r.partitions),
		"interval", r.cfg.Interval.String(),
		"batch_size", r.cfg.BatchSize,
	)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(context.WithoutCancel(ctx), "outbox relay stopped")
			return nil
		case <-timer.C:
		}

		stats, err := r.RunOnce(context.WithoutCancel(ctx))
		if err != nil {
			r.logger.ErrorContext(ctx, "outbox relay cycle failed", "error", err)
		}

		wait := r.cfg.Interval
		if stats.Saturated && err == nil {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// RunOnce processes one batch from every partition. A failing partition does
// not prevent the others from being drained.
func (r *Relay) RunOnce(ctx context.Context) (Stats, error) {
	var (
		total Stats
		errs  []error
	)
	for _, p := range r.partitions {
		stats, err := r.drain(ctx, p)
		total.add(stats)
		if err != nil {
			errs = append(errs, fmt.Errorf("partition %s: %w", p.Name(), err))
		}
	}
	return total, errors.Join(errs...)
}

func (r *Relay) drain(ctx context.Context, p Partition) (Stats, error) {
	start := time.Now()
	name := p.Name()
	var stats Stats

	claimed, err := p.ProcessBatch(ctx, r.cfg.BatchSize, func(ctx context.Context, events []*models.Event) []id.EventID {
		return r.publishBatch(ctx, name, events, &stats)
	})
	r.metrics.ObserveBatch(name, start)
	if err != nil {
		// Publishes that happened before the failure stay unmarked and will
		// be delivered again.
		stats.Published = 0
		return stats, err
	}
	stats.Claimed = claimed
	stats.Saturated = claimed >= r.cfg.BatchSize

	if reporter, ok := p.(BacklogReporter); ok {
		if backlog, err := reporter.Backlog(ctx); err == nil {
			r.metrics.SetBacklog(name, backlog)
		}
	}
	if claimed > 0 {
		r.logger.DebugContext(ctx, "outbox batch relayed",
			"partition", name,
			"claimed", claimed,
			"published", stats.Published,
			"failed", stats.Failed,
			"deferred", stats.Deferred,
		)
	}
	return stats, nil
}

// publishBatch publishes events in claim order and returns the acknowledged
// ids. Once an event of an aggregate fails, later events of that aggregate in
// the batch are held back so per-aggregate order survives the retry. When ctx
// ends the rest of the batch is deferred to a later claim.
func (r *Relay) publishBatch(ctx context.Context, partition string, events []*models.Event, stats *Stats) []id.EventID {
	ctx, span := r.tracer.Start(ctx, "outbox.relay_batch",
		trace.WithAttributes(
			attribute.String("outbox.partition", partition),
			attribute.Int("outbox.batch_size", len(events)),
		))
	defer span.End()

	acked := make([]id.EventID, 0, len(events))
	blocked := make(map[string]bool)
	for _, e := range events {
		if blocked[e.AggregateID] || ctx.Err() != nil {
			stats.Deferred++
			r.metrics.IncDeferred(partition)
			continue
		}
		topic := r.router.Topic(e.EventType)
		if err := r.publishWithRetry(ctx, topic, e); err != nil {
			blocked[e.AggregateID] = true
			stats.Failed++
			r.metrics.IncPublishFailed(partition, topic)
			r.logger.WarnContext(ctx, "outbox event publish failed, will retry next cycle",
				"partition", partition,
				"topic", topic,
				"event_id", e.ID.String(),
				"event_type", e.EventType,
				"aggregate_id", e.AggregateID,
				"error", err,
			)
			continue
		}
		stats.Published++
		r.metrics.IncPublished(partition, topic)
		acked = append(acked, e.ID)
	}
	return acked
}

func (r *Relay) publishWithRetry(ctx context.Context, topic string, e *models.Event) error {
	ctx, span := r.tracer.Start(ctx, "outbox.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", topic),
			attribute.String("outbox.event_id", e.ID.String()),
			attribute.String("outbox.event_type", e.EventType),
		))
	defer span.End()

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
		defer cancel()
		return r.publisher.Publish(attemptCtx, topic, e)
	}, r.backoffPolicy(ctx))

	r.metrics.AddRetries(attempts - 1)
	span.SetAttributes(attribute.Int("outbox.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return err
	}
	return nil
}

func (r *Relay) backoffPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialBackoff
	b.MaxInterval = r.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.MaxAttempts-1)), ctx)
}
