package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts work item commands. Methods are nil-safe.
type Metrics struct {
	Commands        *prometheus.CounterVec
	ConflictRetries *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyb_workitem_commands_total",
			Help: "Work item commands by name and outcome",
		}, []string{"command", "outcome"}),
		ConflictRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyb_workitem_conflict_retries_total",
			Help: "Commands retried after an optimistic concurrency conflict",
		}, []string{"command"}),
		CommandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyb_workitem_command_duration_seconds",
			Help:    "Time to apply and persist a work item command",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
	}
}

func (m *Metrics) IncCommand(command, outcome string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) IncConflictRetry(command string) {
	if m == nil {
		return
	}
	m.ConflictRetries.WithLabelValues(command).Inc()
}

func (m *Metrics) ObserveCommand(command string, start time.Time) {
	if m == nil {
		return
	}
	m.CommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}
