package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chronicle/pkg/audit"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RecordsCaptured  *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	RelayBatchesSent prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RecordsCaptured: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chronicle_audit_records_captured_total",
			Help: "Total number of audit records captured, by type code",
		}, []string{"type_code"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chronicle_request_duration_seconds",
			Help:    "Duration of mediated operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_history_cache_hits_total",
			Help: "Total number of history reads served from the cache",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_history_cache_misses_total",
			Help: "Total number of history reads that missed the cache",
		}),
		RelayBatchesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_relay_batches_sent_total",
			Help: "Total number of audit batches handed to the journal relay",
		}),
	}
}

// ObserveBatch counts a committed batch of audit records by type code.
func (m *Metrics) ObserveBatch(records []audit.Record) {
	for _, r := range records {
		m.RecordsCaptured.WithLabelValues(string(r.TypeCode)).Inc()
	}
}
