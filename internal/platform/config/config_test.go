package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := parse(env.Options{
		Prefix:      Prefix,
		Environment: map[string]string{"KYB_POSTGRES_DSN": "postgres://kyb@localhost/kyb"},
	})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "postgres://kyb@localhost/kyb", cfg.Postgres.DSN)
	assert.Equal(t, []string{"public"}, cfg.Relay.Schemas)
	assert.Equal(t, 100, cfg.Relay.BatchSize)
	assert.Equal(t, 3, cfg.Relay.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Relay.PublishTimeout)
	assert.Equal(t, 30*time.Second, cfg.Relay.ClaimTimeout)
	assert.Equal(t, 5*time.Second, cfg.Kafka.DeliveryTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, "kyb:lock:compliance-refresh", cfg.Scheduler.LockKey)
	assert.Equal(t, 25*time.Millisecond, cfg.WorkItem.RetryBackoff)
}

func TestParseOverrides(t *testing.T) {
	cfg, err := parse(env.Options{
		Prefix: Prefix,
		Environment: map[string]string{
			"KYB_POSTGRES_DSN":      "postgres://x",
			"KYB_KAFKA_BROKERS":     "b1:9092,b2:9092",
			"KYB_RELAY_SCHEMAS":     "public,documents",
			"KYB_RELAY_ROUTES":      "audit.=kyb.audit-events",
			"KYB_SCHEDULER_DRY_RUN": "true",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"public", "documents"}, cfg.Relay.Schemas)
	assert.Equal(t, []string{"audit.=kyb.audit-events"}, cfg.Relay.Routes)
	assert.True(t, cfg.Scheduler.DryRun)
}

func TestParseRequiresDSN(t *testing.T) {
	_, err := parse(env.Options{Prefix: Prefix, Environment: map[string]string{}})
	assert.Error(t, err)
}
