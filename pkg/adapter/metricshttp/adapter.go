// Package metricshttp runs the Prometheus metrics endpoint as a server adapter.
package metricshttp

import (
	"context"

	"github.com/granddizzy/ItismAsyncio/pkg/metrics"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// Config configures the metrics adapter.
type Config struct {
	// Enabled controls whether the metrics endpoint is started.
	Enabled bool `mapstructure:"enabled"`

	// BindAddress is the interface to listen on. Empty means all interfaces.
	BindAddress string `mapstructure:"bind_address"`

	// Port is the HTTP port. Default: 9090
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// Adapter exposes metrics.Server through the adapter.Adapter interface.
type Adapter struct {
	server *metrics.Server
}

// New returns a metrics adapter. metrics.InitRegistry should be called first,
// otherwise /metrics reports that collection is disabled.
func New(cfg Config) *Adapter {
	return &Adapter{
		server: metrics.NewServer(metrics.ServerConfig{
			BindAddress: cfg.BindAddress,
			Port:        cfg.Port,
		}),
	}
}

// Serve blocks until ctx is cancelled or the HTTP server fails.
func (a *Adapter) Serve(ctx context.Context) error {
	return a.server.Start(ctx)
}

// SetStore makes /readyz list st. A store that cannot list (closed, bucket
// gone, database failure) reports not ready.
func (a *Adapter) SetStore(st store.Store) {
	if st == nil {
		a.server.SetReadyCheck(nil)
		return
	}
	a.server.SetReadyCheck(func(ctx context.Context) error {
		_, err := st.List(ctx)
		return err
	})
}

// Stop shuts the HTTP server down.
func (a *Adapter) Stop(ctx context.Context) error {
	return a.server.Stop(ctx)
}

// Protocol returns "METRICS".
func (a *Adapter) Protocol() string {
	return "METRICS"
}

// Port returns the HTTP port.
func (a *Adapter) Port() int {
	return a.server.Port()
}
