// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"kyb/internal/platform/postgres"
)

// Config is the full process configuration. Nested structs share a prefix,
// e.g. KYB_POSTGRES_DSN or KYB_RELAY_BATCH_SIZE.
type Config struct {
	LogLevel  string          `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string          `env:"LOG_FORMAT" envDefault:"json"`
	HTTP      HTTPConfig      `envPrefix:"HTTP_"`
	Postgres  postgres.Config `envPrefix:"POSTGRES_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Kafka     KafkaConfig     `envPrefix:"KAFKA_"`
	Relay     RelayConfig     `envPrefix:"RELAY_"`
	Scheduler SchedulerConfig `envPrefix:"SCHEDULER_"`
	WorkItem  WorkItemConfig  `envPrefix:"WORKITEM_"`
}

// HTTPConfig captures HTTP server level configuration.
type HTTPConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// RedisConfig configures the client backing the distributed lock.
type RedisConfig struct {
	URL          string        `env:"URL" envDefault:"redis://localhost:6379/0"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"1"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures the producer and topic administration.
type KafkaConfig struct {
	Brokers           []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	ClientID          string   `env:"CLIENT_ID" envDefault:"kyb-outbox-relay"`
	Partitions        int32    `env:"TOPIC_PARTITIONS" envDefault:"6"`
	ReplicationFactor int16    `env:"TOPIC_REPLICATION_FACTOR" envDefault:"1"`
	// DeliveryTimeout bounds how long the producer keeps trying one record.
	DeliveryTimeout time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"5s"`
}

// RelayConfig controls the outbox relay. Schemas lists the logical schemas
// whose outbox tables are drained; Routes overrides event-type prefix routing
// as "prefix=topic" pairs.
type RelayConfig struct {
	Schemas        []string      `env:"SCHEMAS" envSeparator:"," envDefault:"public"`
	Routes         []string      `env:"ROUTES" envSeparator:","`
	FallbackTopic  string        `env:"FALLBACK_TOPIC" envDefault:"kyb.events"`
	Interval       time.Duration `env:"INTERVAL" envDefault:"1s"`
	BatchSize      int           `env:"BATCH_SIZE" envDefault:"100"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	InitialBackoff time.Duration `env:"INITIAL_BACKOFF" envDefault:"100ms"`
	MaxBackoff     time.Duration `env:"MAX_BACKOFF" envDefault:"2s"`
	PublishTimeout time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"5s"`
	ClaimTimeout   time.Duration `env:"CLAIM_TIMEOUT" envDefault:"30s"`
}

// SchedulerConfig controls the compliance refresh scheduler.
type SchedulerConfig struct {
	Enabled   bool          `env:"ENABLED" envDefault:"true"`
	Interval  time.Duration `env:"INTERVAL" envDefault:"24h"`
	BatchSize int           `env:"BATCH_SIZE" envDefault:"500"`
	LockTTL   time.Duration `env:"LOCK_TTL" envDefault:"10m"`
	LockKey   string        `env:"LOCK_KEY" envDefault:"kyb:lock:compliance-refresh"`
	DryRun    bool          `env:"DRY_RUN" envDefault:"false"`
}

// WorkItemConfig controls command conflict retry.
type WorkItemConfig struct {
	MaxAttempts  int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	RetryBackoff time.Duration `env:"RETRY_BACKOFF" envDefault:"25ms"`
}

// Prefix is prepended to every variable name.
const Prefix = "KYB_"

// Load parses the environment.
func Load() (*Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
