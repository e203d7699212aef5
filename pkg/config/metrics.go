package config

import (
	"github.com/granddizzy/ItismAsyncio/pkg/metrics"
	promMetrics "github.com/granddizzy/ItismAsyncio/pkg/metrics/prometheus"
)

// MetricsResult contains the metrics collectors created from configuration.
type MetricsResult struct {
	// FileServer is the collector for the file adapter (never nil, uses noop if disabled)
	FileServer metrics.FileServerMetrics

	// Store is the collector for the store wrapper (never nil, uses noop if disabled)
	Store metrics.StoreMetrics
}

// InitializeMetrics creates the metrics collectors based on configuration.
//
// If the metrics adapter is enabled:
//   - Initializes the global Prometheus registry
//   - Creates Prometheus-backed collectors labeled with the store type
//
// If it is disabled, no-op collectors are returned.
//
// The HTTP endpoint itself is created by CreateAdapters.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Adapters.Metrics.Enabled {
		return &MetricsResult{
			FileServer: metrics.NewNoopFileServerMetrics(),
			Store:      metrics.NewNoopStoreMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		FileServer: promMetrics.NewFileServerMetrics(),
		Store:      promMetrics.NewStoreMetrics(cfg.Store.Type),
	}
}
