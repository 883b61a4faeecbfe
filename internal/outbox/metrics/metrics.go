package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the outbox relay.
// All methods are nil-safe so the relay runs without metrics in tests.
type Metrics struct {
	Published      *prometheus.CounterVec
	PublishFailed  *prometheus.CounterVec
	Deferred       *prometheus.CounterVec
	PublishRetries prometheus.Counter
	BatchDuration  *prometheus.HistogramVec
	Backlog        *prometheus.GaugeVec
}

// New registers the relay metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyb_outbox_published_total",
			Help: "Outbox events acknowledged by the message bus",
		}, []string{"partition", "topic"}),
		PublishFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyb_outbox_publish_failures_total",
			Help: "Outbox events left unprocessed after exhausting publish retries",
		}, []string{"partition", "topic"}),
		Deferred: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kyb_outbox_deferred_total",
			Help: "Outbox events held back because an earlier event of the same aggregate failed",
		}, []string{"partition"}),
		PublishRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "kyb_outbox_publish_retries_total",
			Help: "Publish attempts beyond the first",
		}),
		BatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyb_outbox_batch_duration_seconds",
			Help:    "Duration of one claim-publish-mark batch",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"partition"}),
		Backlog: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kyb_outbox_backlog",
			Help: "Unprocessed outbox rows observed at the end of a cycle",
		}, []string{"partition"}),
	}
}

func (m *Metrics) IncPublished(partition, topic string) {
	if m == nil {
		return
	}
	m.Published.WithLabelValues(partition, topic).Inc()
}

func (m *Metrics) IncPublishFailed(partition, topic string) {
	if m == nil {
		return
	}
	m.PublishFailed.WithLabelValues(partition, topic).Inc()
}

func (m *Metrics) IncDeferred(partition string) {
	if m == nil {
		return
	}
	m.Deferred.WithLabelValues(partition).Inc()
}

func (m *Metrics) AddRetries(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PublishRetries.Add(float64(n))
}

// ObserveBatch records a batch duration. Call with time.Now() at batch start.
func (m *Metrics) ObserveBatch(partition string, start time.Time) {
	if m == nil {
		return
	}
	m.BatchDuration.WithLabelValues(partition).Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetBacklog(partition string, n int) {
	if m == nil {
		return
	}
	m.Backlog.WithLabelValues(partition).Set(float64(n))
}
