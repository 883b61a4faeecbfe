package main

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kyb/internal/platform/config"
)

func TestNewRouterPrefersConfiguredRoutes(t *testing.T) {
	cfg := &config.Config{Relay: config.RelayConfig{
		Routes:        []string{"workitem.=kyb.workitems-v2", "audit.=kyb.audit"},
		FallbackTopic: "kyb.unrouted",
	}}
	r := newRouter(cfg)

	assert.Equal(t, "kyb.workitems-v2", r.Topic("workitem.assigned"))
	assert.Equal(t, "kyb.audit", r.Topic("audit.recorded"))
	assert.Equal(t, "kyb.case-events", r.Topic("case.refresh_triggered"))
	assert.Equal(t, "kyb.unrouted", r.Topic("billing.invoiced"))
	assert.Contains(t, r.Topics(), "kyb.unrouted")
}

func TestRelayConfigRejectsClaimTimeoutWithinPublishBudget(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{
			Kafka: config.KafkaConfig{DeliveryTimeout: 5 * time.Second},
			Relay: config.RelayConfig{
				BatchSize:      100,
				MaxAttempts:    3,
				InitialBackoff: 100 * time.Millisecond,
				MaxBackoff:     2 * time.Second,
				PublishTimeout: 5 * time.Second,
				ClaimTimeout:   30 * time.Second,
			},
		}
	}

	rc, err := relayConfig(base())
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, rc.PublishTimeout)

	slowBroker := base()
	slowBroker.Kafka.DeliveryTimeout = 30 * time.Second
	_, err = relayConfig(slowBroker)
	assert.ErrorContains(t, err, "claim timeout")

	shortClaim := base()
	shortClaim.Relay.ClaimTimeout = 10 * time.Second
	_, err = relayConfig(shortClaim)
	assert.Error(t, err)

	_, _, err = newRelay(context.Background(), shortClaim, nil, prometheus.NewRegistry(), nil)
	assert.Error(t, err)
}
