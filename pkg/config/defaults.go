package config

import (
	"strings"
	"time"

	"github.com/granddizzy/ItismAsyncio/pkg/adapter/filesrv"
	"github.com/granddizzy/ItismAsyncio/pkg/adapter/metricshttp"
)

const (
	// DefaultPort is the file adapter port used when none is configured.
	DefaultPort = 8020

	// DefaultMetricsPort is the metrics adapter port used when none is configured.
	DefaultMetricsPort = 9090

	// DefaultStoragePath is the filesystem store root used when none is configured.
	DefaultStoragePath = "./files"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults are handled by the backends themselves
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStoreDefaults(&cfg.Store)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyStoreDefaults sets store defaults.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}
	if cfg.Locking == nil {
		locking := true
		cfg.Locking = &locking
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	// Filled for every type so that generated config files are complete
	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = DefaultStoragePath
	}
	if _, ok := cfg.Filesystem["watch_changes"]; !ok {
		cfg.Filesystem["watch_changes"] = true
	}
	if _, ok := cfg.Memory["max_size_bytes"]; !ok {
		cfg.Memory["max_size_bytes"] = int64(1 << 30) // 1GB
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// A config without an adapters section gets the file adapter enabled.
	// Users can explicitly set enabled: false together with a port.
	if !cfg.File.Enabled && cfg.File.Port == 0 {
		cfg.File.Enabled = true
	}

	applyFileDefaults(&cfg.File)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyFileDefaults sets file adapter defaults.
func applyFileDefaults(cfg *filesrv.FileConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	// MaxConnections defaults to 0 (unlimited)

	if cfg.Timeouts.Read == 0 {
		cfg.Timeouts.Read = 30 * time.Second
	}
	if cfg.Timeouts.Write == 0 {
		cfg.Timeouts.Write = 30 * time.Second
	}
	if cfg.Timeouts.Idle == 0 {
		cfg.Timeouts.Idle = 5 * time.Minute
	}
	if cfg.Timeouts.Shutdown == 0 {
		cfg.Timeouts.Shutdown = 30 * time.Second
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}
}

// applyMetricsDefaults sets metrics adapter defaults. The endpoint stays
// disabled unless configured.
func applyMetricsDefaults(cfg *metricshttp.Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Adapters: AdaptersConfig{
			File: filesrv.FileConfig{
				Enabled: true,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
