package prometheus

import (
	"time"

	"github.com/granddizzy/ItismAsyncio/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type storeMetrics struct {
	backend    string
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	bytes      *prometheus.CounterVec
}

// NewStoreMetrics creates Prometheus-backed StoreMetrics for one backend type
// on the global registry.
//
// Returns a no-op implementation if metrics are not enabled.
func NewStoreMetrics(backend string) metrics.StoreMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopStoreMetrics()
	}
	return NewStoreMetricsWith(metrics.GetRegistry(), backend)
}

// NewStoreMetricsWith registers the store metrics on reg.
func NewStoreMetricsWith(reg prometheus.Registerer, backend string) metrics.StoreMetrics {
	return &storeMetrics{
		backend: backend,
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesrv_store_operations_total",
				Help: "Total number of store operations by backend, operation and status",
			},
			[]string{"backend", "operation", "status"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filesrv_store_operation_duration_seconds",
				Help:    "Duration of store operations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"backend", "operation"},
		),
		bytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesrv_store_bytes_total",
				Help: "Total content bytes read from or committed to the store",
			},
			[]string{"backend", "operation"},
		),
	}
}

func (m *storeMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(m.backend, operation, status).Inc()
	m.duration.WithLabelValues(m.backend, operation).Observe(duration.Seconds())
}

func (m *storeMetrics) RecordBytes(operation string, bytes int64) {
	if bytes <= 0 {
		return
	}
	m.bytes.WithLabelValues(m.backend, operation).Add(float64(bytes))
}
