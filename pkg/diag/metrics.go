package diag

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for parsing and syncing.
type Metrics struct {
	// Registry owns these metrics; the /metrics endpoint serves from it.
	Registry *prometheus.Registry

	events        *prometheus.CounterVec
	messages      *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
}

// NewMetrics registers all metrics in a private registry, so it can be called
// more than once per process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardtracker_data_quality_events_total",
				Help: "Data-quality events raised while parsing, by kind and issuer.",
			},
			[]string{"kind", "issuer"},
		),
		messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardtracker_messages_total",
				Help: "Messages processed by outcome.",
			},
			[]string{"outcome"},
		),
		storeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cardtracker_store_duration_seconds",
				Help:    "Duration of store operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// Observe counts a data-quality event. Metrics is itself a Sink.
func (m *Metrics) Observe(e Event) {
	m.events.WithLabelValues(string(e.Kind), e.Issuer).Inc()
}

// IncrMessage increments the processed message counter for outcome.
func (m *Metrics) IncrMessage(outcome string) {
	m.messages.WithLabelValues(outcome).Inc()
}

// RecordStoreDuration records the duration of a store operation.
func (m *Metrics) RecordStoreDuration(operation string, d time.Duration) {
	m.storeDuration.WithLabelValues(operation).Observe(d.Seconds())
}
