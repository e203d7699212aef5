// Package prometheus holds the Prometheus-backed implementations of the
// interfaces in pkg/metrics.
package prometheus

import (
	"time"

	"github.com/granddizzy/ItismAsyncio/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// fileServerMetrics is the Prometheus implementation of metrics.FileServerMetrics.
type fileServerMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	requestsInFlight       *prometheus.GaugeVec
	bytesTransferred       *prometheus.CounterVec
	transferSize           *prometheus.HistogramVec
	transfersAborted       *prometheus.CounterVec
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
	rateLimited            prometheus.Counter
}

// NewFileServerMetrics creates a Prometheus-backed FileServerMetrics on the
// global registry.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewFileServerMetrics() metrics.FileServerMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopFileServerMetrics()
	}
	return NewFileServerMetricsWith(metrics.GetRegistry())
}

// NewFileServerMetricsWith registers the file server metrics on reg.
func NewFileServerMetricsWith(reg prometheus.Registerer) metrics.FileServerMetrics {
	return &fileServerMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesrv_requests_total",
				Help: "Total number of commands by name and response status",
			},
			[]string{"command", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "filesrv_request_duration_milliseconds",
				Help: "Duration of commands in milliseconds, body transfer included",
				Buckets: []float64{
					1,      // 1ms
					10,     // 10ms
					100,    // 100ms
					1000,   // 1s
					10000,  // 10s
					100000, // 100s
				},
			},
			[]string{"command"},
		),
		requestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "filesrv_requests_in_flight",
				Help: "Current number of commands being processed",
			},
			[]string{"command"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesrv_bytes_transferred_total",
				Help: "Total body bytes moved by command and direction",
			},
			[]string{"command", "direction"},
		),
		transferSize: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "filesrv_transfer_size_bytes",
				Help: "Distribution of body sizes",
				Buckets: []float64{
					1024,      // 1KB
					65536,     // 64KB
					1048576,   // 1MB
					10485760,  // 10MB (chunk size switch)
					104857600, // 100MB
				},
			},
			[]string{"command"},
		),
		transfersAborted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesrv_transfers_aborted_total",
				Help: "Total number of body transfers that ended before the declared size",
			},
			[]string{"command"},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "filesrv_active_connections",
				Help: "Current number of active client connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "filesrv_connections_accepted_total",
				Help: "Total number of client connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "filesrv_connections_closed_total",
				Help: "Total number of client connections closed",
			},
		),
		connectionsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "filesrv_connections_force_closed_total",
				Help: "Total number of connections force-closed during shutdown timeout",
			},
		),
		rateLimited: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "filesrv_rate_limited_total",
				Help: "Total number of commands rejected by the rate limiter",
			},
		),
	}
}

func (m *fileServerMetrics) RecordRequest(command string, duration time.Duration, status string) {
	m.requestsTotal.WithLabelValues(command, status).Inc()
	m.requestDuration.WithLabelValues(command).Observe(float64(duration) / float64(time.Millisecond))
}

func (m *fileServerMetrics) RecordRequestStart(command string) {
	m.requestsInFlight.WithLabelValues(command).Inc()
}

func (m *fileServerMetrics) RecordRequestEnd(command string) {
	m.requestsInFlight.WithLabelValues(command).Dec()
}

func (m *fileServerMetrics) RecordBytesTransferred(command string, direction string, bytes int64) {
	if bytes <= 0 {
		return
	}
	m.bytesTransferred.WithLabelValues(command, direction).Add(float64(bytes))
	m.transferSize.WithLabelValues(command).Observe(float64(bytes))
}

func (m *fileServerMetrics) RecordTransferAborted(command string) {
	m.transfersAborted.WithLabelValues(command).Inc()
}

func (m *fileServerMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *fileServerMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *fileServerMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *fileServerMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}

func (m *fileServerMetrics) RecordRateLimited() {
	m.rateLimited.Inc()
}
