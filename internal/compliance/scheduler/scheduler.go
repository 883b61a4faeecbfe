// Package scheduler periodically emits refresh triggers for approved cases
// whose revalidation window has elapsed. Every replica runs the loop; a
// distributed lock lets only one of them work a given cycle.
package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "kyb/pkg/domain-errors"

	"kyb/internal/compliance/metrics"
	"kyb/internal/compliance/models"
	"kyb/internal/platform/lock"
)

// DefaultLockKey is shared by every scheduler replica.
const DefaultLockKey = "kyb:lock:compliance-refresh"

// Store selects due cases and records refresh triggers.
type Store interface {
	DueForRefresh(ctx context.Context, now time.Time, limit int) ([]models.Candidate, error)
	TriggerRefresh(ctx context.Context, c models.Candidate, now time.Time) error
}

// Config controls cadence and locking.
type Config struct {
	Interval  time.Duration
	BatchSize int
	// LockTTL should exceed the longest expected cycle.
	LockTTL time.Duration
	LockKey string
	DryRun  bool
}

// DefaultConfig runs daily, 500 cases per cycle, with a 10 minute lock.
func DefaultConfig() Config {
	return Config{
		Interval:  24 * time.Hour,
		BatchSize: 500,
		LockTTL:   10 * time.Minute,
		LockKey:   DefaultLockKey,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.LockTTL <= 0 {
		c.LockTTL = d.LockTTL
	}
	if c.LockKey == "" {
		c.LockKey = d.LockKey
	}
	return c
}

type Scheduler struct {
	store   Store
	locker  lock.Locker
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func WithConfig(cfg Config) Option {
	return func(s *Scheduler) {
		s.cfg = cfg
	}
}

// WithClock replaces the clock used for due-date evaluation.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func New(store Store, locker lock.Locker, opts ...Option) (*Scheduler, error) {
	if store == nil {
		return nil, errors.New("scheduler requires a store")
	}
	if locker == nil {
		return nil, errors.New("scheduler requires a locker")
	}
	s := &Scheduler{
		store:  store,
		locker: locker,
		cfg:    DefaultConfig(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: otel.Tracer("kyb/compliance/scheduler"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg = s.cfg.withDefaults()
	return s, nil
}

// Run executes a cycle immediately and then every Interval until ctx is
// cancelled. Cancellation is observed between cycles; a cycle that has
// started triggers every case it selected. Cycle errors are logged; they
// never stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "compliance scheduler started",
		"interval", s.cfg.Interval.String(),
		"batch_size", s.cfg.BatchSize,
		"dry_run", s.cfg.DryRun,
	)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(context.WithoutCancel(ctx)); err != nil {
			s.logger.ErrorContext(ctx, "compliance refresh cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.InfoContext(context.WithoutCancel(ctx), "compliance scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce runs a single cycle. When another replica holds the lock the cycle
// is skipped and Result.Skipped is set; that is not an error.
func (s *Scheduler) RunOnce(ctx context.Context) (models.Result, error) {
	res := models.Result{DryRun: s.cfg.DryRun}
	ctx, span := s.tracer.Start(ctx, "compliance.refresh_cycle",
		trace.WithAttributes(attribute.Bool("dry_run", s.cfg.DryRun)))
	defer span.End()

	lease, acquired, err := s.locker.TryAcquire(ctx, s.cfg.LockKey, s.cfg.LockTTL)
	if err != nil {
		s.metrics.IncRun("failed")
		span.SetStatus(codes.Error, "lock acquisition failed")
		return res, dErrors.Wrap(err, dErrors.CodeLockUnavailable, "acquire compliance refresh lock")
	}
	if !acquired {
		res.Skipped = true
		s.metrics.IncRun("skipped")
		span.SetAttributes(attribute.Bool("skipped", true))
		s.logger.DebugContext(ctx, "compliance refresh skipped, lock held elsewhere", "lock_key", s.cfg.LockKey)
		return res, nil
	}
	defer s.release(ctx, lease)

	start := time.Now()
	now := s.now().UTC()
	due, err := s.store.DueForRefresh(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.metrics.IncRun("failed")
		span.SetStatus(codes.Error, "select due cases failed")
		return res, dErrors.Wrap(err, dErrors.CodeInternal, "select cases due for refresh")
	}
	res.Selected = len(due)
	res.Due = due

	for _, c := range due {
		dueAt, _ := c.DueAt()
		attrs := []any{
			"application_id", c.ApplicationID.String(),
			"work_item_id", c.WorkItemID.String(),
			"tier", string(c.Tier()),
			"due_at", dueAt,
		}
		if s.cfg.DryRun {
			s.logger.InfoContext(ctx, "compliance refresh due (dry run)", attrs...)
			continue
		}
		if err := s.store.TriggerRefresh(ctx, c, now); err != nil {
			res.Failed++
			s.metrics.IncTriggerFailed()
			s.logger.ErrorContext(ctx, "compliance refresh trigger failed", append(attrs, "error", err)...)
			continue
		}
		res.Triggered++
		s.metrics.IncTriggered(string(c.Tier()))
		s.logger.InfoContext(ctx, "compliance refresh triggered", attrs...)
	}

	span.SetAttributes(
		attribute.Int("selected", res.Selected),
		attribute.Int("triggered", res.Triggered),
		attribute.Int("failed", res.Failed),
	)
	s.metrics.IncRun("completed")
	s.metrics.ObserveRun(start)
	s.logger.InfoContext(ctx, "compliance refresh cycle completed",
		"selected", res.Selected,
		"triggered", res.Triggered,
		"failed", res.Failed,
		"dry_run", s.cfg.DryRun,
	)
	return res, nil
}

func (s *Scheduler) release(ctx context.Context, lease lock.Lease) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := lease.Release(ctx); err != nil {
		if errors.Is(err, lock.ErrNotHeld) {
			s.logger.WarnContext(ctx, "compliance refresh lock expired before release; raise the lock TTL",
				"lock_key", lease.Key())
			return
		}
		s.logger.ErrorContext(ctx, "compliance refresh lock release failed",
			"lock_key", lease.Key(), "error", err)
	}
}
