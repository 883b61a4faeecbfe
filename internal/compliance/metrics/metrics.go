package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks compliance refresh cycles. Methods are nil-safe.
type Metrics struct {
	Runs           *prometheus.CounterVec
	Triggered      *prometheus.CounterVec
	TriggerFailed  prometheus.Counter
	RunDuration    prometheus.Histogram
	LastCompletion prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyb_compliance_refresh_runs_total",
			Help: "Scheduler cycles by outcome (completed, skipped, failed)",
		}, []string{"outcome"}),
		Triggered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyb_compliance_refresh_triggered_total",
			Help: "Cases for which a refresh event was written",
		}, []string{"tier"}),
		TriggerFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "kyb_compliance_refresh_trigger_failures_total",
			Help: "Cases that could not be triggered in a cycle",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kyb_compliance_refresh_run_duration_seconds",
			Help:    "Duration of scheduler cycles that acquired the lock",
			Buckets: prometheus.DefBuckets,
		}),
		LastCompletion: f.NewGauge(prometheus.GaugeOpts{
			Name: "kyb_compliance_refresh_last_completion_timestamp_seconds",
			Help: "Unix time of the last cycle that ran to completion",
		}),
	}
}

func (m *Metrics) IncRun(outcome string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncTriggered(tier string) {
	if m == nil {
		return
	}
	m.Triggered.WithLabelValues(tier).Inc()
}

func (m *Metrics) IncTriggerFailed() {
	if m == nil {
		return
	}
	m.TriggerFailed.Inc()
}

func (m *Metrics) ObserveRun(start time.Time) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(time.Since(start).Seconds())
	m.LastCompletion.SetToCurrentTime()
}
