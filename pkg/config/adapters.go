package config

import (
	"fmt"

	"github.com/granddizzy/ItismAsyncio/pkg/adapter"
	"github.com/granddizzy/ItismAsyncio/pkg/adapter/filesrv"
	"github.com/granddizzy/ItismAsyncio/pkg/adapter/metricshttp"
	"github.com/granddizzy/ItismAsyncio/pkg/metrics"
)

// CreateAdapters creates all enabled adapters from the configuration.
//
// The metrics adapter should be created after InitializeMetrics so that its
// /metrics endpoint serves the initialized registry.
//
// Parameters:
//   - cfg: The complete configuration
//   - fileMetrics: Optional file server metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: Enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, fileMetrics metrics.FileServerMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.File.Enabled {
		adapters = append(adapters, filesrv.New(cfg.Adapters.File, fileMetrics))
	}

	if cfg.Adapters.Metrics.Enabled {
		adapters = append(adapters, metricshttp.New(cfg.Adapters.Metrics))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
