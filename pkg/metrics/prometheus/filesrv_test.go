package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value gathers reg and returns the counter or gauge value of the series
// named name whose labels match labels.
func value(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	series:
		for _, m := range family.GetMetric() {
			for _, pair := range m.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue series
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func TestFileServerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFileServerMetricsWith(reg)

	m.RecordRequestStart("PUT")
	assert.Equal(t, 1.0, value(t, reg, "filesrv_requests_in_flight", map[string]string{"command": "PUT"}))
	m.RecordRequestEnd("PUT")
	assert.Equal(t, 0.0, value(t, reg, "filesrv_requests_in_flight", map[string]string{"command": "PUT"}))

	m.RecordRequest("PUT", 15*time.Millisecond, "SUCCESS")
	m.RecordRequest("PUT", time.Millisecond, "ERROR")
	m.RecordRequest("PUT", time.Millisecond, "ERROR")
	assert.Equal(t, 1.0, value(t, reg, "filesrv_requests_total", map[string]string{"command": "PUT", "status": "SUCCESS"}))
	assert.Equal(t, 2.0, value(t, reg, "filesrv_requests_total", map[string]string{"command": "PUT", "status": "ERROR"}))
	assert.Equal(t, 3.0, value(t, reg, "filesrv_request_duration_milliseconds", map[string]string{"command": "PUT"}))

	m.RecordBytesTransferred("GET", "out", 4096)
	m.RecordBytesTransferred("GET", "out", 0)
	assert.Equal(t, 4096.0, value(t, reg, "filesrv_bytes_transferred_total", map[string]string{"command": "GET", "direction": "out"}))
	assert.Equal(t, 1.0, value(t, reg, "filesrv_transfer_size_bytes", map[string]string{"command": "GET"}))

	m.SetActiveConnections(3)
	assert.Equal(t, 3.0, value(t, reg, "filesrv_active_connections", nil))

	m.RecordConnectionAccepted()
	m.RecordConnectionClosed()
	m.RecordConnectionForceClosed()
	m.RecordRateLimited()
	m.RecordTransferAborted("PUT")
	assert.Equal(t, 1.0, value(t, reg, "filesrv_connections_accepted_total", nil))
	assert.Equal(t, 1.0, value(t, reg, "filesrv_connections_closed_total", nil))
	assert.Equal(t, 1.0, value(t, reg, "filesrv_connections_force_closed_total", nil))
	assert.Equal(t, 1.0, value(t, reg, "filesrv_rate_limited_total", nil))
	assert.Equal(t, 1.0, value(t, reg, "filesrv_transfers_aborted_total", map[string]string{"command": "PUT"}))
}

func TestStoreMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStoreMetricsWith(reg, "memory")

	m.ObserveOperation("open", time.Millisecond, nil)
	m.ObserveOperation("open", time.Millisecond, errors.New("boom"))
	m.RecordBytes("commit", 10)
	m.RecordBytes("commit", -1)

	labels := func(op, status string) map[string]string {
		return map[string]string{"backend": "memory", "operation": op, "status": status}
	}
	assert.Equal(t, 1.0, value(t, reg, "filesrv_store_operations_total", labels("open", "success")))
	assert.Equal(t, 1.0, value(t, reg, "filesrv_store_operations_total", labels("open", "error")))
	assert.Equal(t, 10.0, value(t, reg, "filesrv_store_bytes_total", map[string]string{"backend": "memory", "operation": "commit"}))
}
