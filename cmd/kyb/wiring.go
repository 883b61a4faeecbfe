package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	"kyb/pkg/platform/middleware/metadata"
	"kyb/pkg/platform/middleware/requesttime"

	compliancemetrics "kyb/internal/compliance/metrics"
	"kyb/internal/compliance/scheduler"
	compliancestore "kyb/internal/compliance/store"
	outboxmetrics "kyb/internal/outbox/metrics"
	"kyb/internal/outbox/publisher"
	"kyb/internal/outbox/relay"
	"kyb/internal/outbox/router"
	outboxstore "kyb/internal/outbox/store"
	"kyb/internal/platform/config"
	"kyb/internal/platform/kafka"
	"kyb/internal/platform/lock"
	httpmetrics "kyb/internal/platform/metrics"
	"kyb/internal/platform/middleware"
	"kyb/internal/platform/postgres"
	"kyb/internal/platform/redis"
	"kyb/internal/workitem/handler"
	workitemmetrics "kyb/internal/workitem/metrics"
	"kyb/internal/workitem/service"
	workitemstore "kyb/internal/workitem/store"
)

// primarySchema holds the work item tables and the outbox they append to.
const primarySchema = "public"

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newRouter(cfg *config.Config) *router.Router {
	// Configured routes come first so they win ties against the defaults.
	routes := append(router.ParseRoutes(cfg.Relay.Routes), router.DefaultRoutes...)
	return router.New(routes, cfg.Relay.FallbackTopic)
}

func newAPI(cfg *config.Config, db *sql.DB, reg *prometheus.Registry, log *slog.Logger) http.Handler {
	outbox := outboxstore.NewPostgres(db, primarySchema)
	svc := service.New(
		workitemstore.NewPostgres(db, outbox),
		service.WithLogger(log),
		service.WithMetrics(workitemmetrics.New(reg)),
		service.WithRetry(cfg.WorkItem.MaxAttempts, cfg.WorkItem.RetryBackoff),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log, httpmetrics.New(reg)))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := db.PingContext(req.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	handler.New(svc, log).Register(r)
	return r
}

// newRelay builds one partition per configured schema over a shared producer.
// The returned client must be closed by the caller.
func newRelay(ctx context.Context, cfg *config.Config, db *sql.DB, reg *prometheus.Registry, log *slog.Logger) (*relay.Relay, *kgo.Client, error) {
	relayCfg, err := relayConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	partitions := make([]relay.Partition, 0, len(cfg.Relay.Schemas))
	for _, schema := range cfg.Relay.Schemas {
		if err := postgres.EnsureOutbox(ctx, db, schema); err != nil {
			return nil, nil, err
		}
		partitions = append(partitions, outboxstore.NewPostgres(db, schema).WithClaimTimeout(cfg.Relay.ClaimTimeout))
	}

	client, err := kafka.NewClient(cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	if err := kafka.Ping(ctx, client); err != nil {
		client.Close()
		return nil, nil, err
	}

	r, err := relay.New(partitions,
		publisher.NewKafka(client, publisher.WithLogger(log)),
		newRouter(cfg),
		relay.WithLogger(log),
		relay.WithMetrics(outboxmetrics.New(reg)),
		relay.WithConfig(relayCfg),
	)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return r, client, nil
}

// relayConfig rejects settings under which one failing event can outlast the
// claim transaction. A produce already on the wire waits out the Kafka
// delivery timeout regardless of its context, so the larger of the two
// bounds an attempt.
func relayConfig(cfg *config.Config) (relay.Config, error) {
	rc := relay.Config{
		Interval:       cfg.Relay.Interval,
		BatchSize:      cfg.Relay.BatchSize,
		MaxAttempts:    cfg.Relay.MaxAttempts,
		InitialBackoff: cfg.Relay.InitialBackoff,
		MaxBackoff:     cfg.Relay.MaxBackoff,
		PublishTimeout: cfg.Relay.PublishTimeout,
	}
	worst := rc
	worst.PublishTimeout = max(rc.PublishTimeout, cfg.Kafka.DeliveryTimeout)
	if err := worst.CheckClaimTimeout(cfg.Relay.ClaimTimeout); err != nil {
		return relay.Config{}, fmt.Errorf("relay config: %w", err)
	}
	return rc, nil
}

// newScheduler wires the Redis lock and the Postgres due-case query. The
// returned Redis client must be closed by the caller.
func newScheduler(ctx context.Context, cfg *config.Config, db *sql.DB, reg prometheus.Registerer, log *slog.Logger) (*scheduler.Scheduler, *redis.Client, error) {
	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	s, err := scheduler.New(
		compliancestore.NewPostgres(db, outboxstore.NewPostgres(db, primarySchema)),
		lock.NewRedis(rdb.Client),
		scheduler.WithLogger(log),
		scheduler.WithMetrics(compliancemetrics.New(reg)),
		scheduler.WithConfig(scheduler.Config{
			Interval:  cfg.Scheduler.Interval,
			BatchSize: cfg.Scheduler.BatchSize,
			LockTTL:   cfg.Scheduler.LockTTL,
			LockKey:   cfg.Scheduler.LockKey,
			DryRun:    cfg.Scheduler.DryRun,
		}),
	)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return s, rdb, nil
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}
