package config

import (
	"testing"
	"time"

	"github.com/granddizzy/ItismAsyncio/pkg/adapter/filesrv"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_LogLevelNormalized(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
}

func TestApplyDefaults_Store(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Store.Type != "filesystem" {
		t.Errorf("Expected default store type 'filesystem', got %q", cfg.Store.Type)
	}
	if cfg.Store.Locking == nil || !*cfg.Store.Locking {
		t.Error("Expected locking to default to true")
	}
	if path, ok := cfg.Store.Filesystem["path"]; !ok || path != DefaultStoragePath {
		t.Errorf("Expected default filesystem path %q, got %v", DefaultStoragePath, path)
	}
	if v, ok := cfg.Store.Memory["max_size_bytes"]; !ok || v != int64(1<<30) {
		t.Errorf("Expected default memory max_size_bytes 1GB, got %v", v)
	}
	if cfg.Store.S3 == nil || cfg.Store.Badger == nil {
		t.Error("Expected every type-specific map to be initialized")
	}
}

func TestApplyDefaults_StorePreservesExplicitValues(t *testing.T) {
	locking := false
	cfg := &Config{
		Store: StoreConfig{
			Type:       "badger",
			Locking:    &locking,
			Filesystem: map[string]any{"path": "/custom"},
		},
	}
	ApplyDefaults(cfg)

	if cfg.Store.Type != "badger" {
		t.Errorf("Expected store type 'badger', got %q", cfg.Store.Type)
	}
	if cfg.Store.LockingEnabled() {
		t.Error("Expected explicit locking=false to be preserved")
	}
	if cfg.Store.Filesystem["path"] != "/custom" {
		t.Errorf("Expected custom path preserved, got %v", cfg.Store.Filesystem["path"])
	}
}

func TestApplyDefaults_FileAdapter(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	f := cfg.Adapters.File
	if !f.Enabled {
		t.Error("Expected file adapter enabled when unconfigured")
	}
	if f.Port != DefaultPort {
		t.Errorf("Expected default port %d, got %d", DefaultPort, f.Port)
	}
	if f.Timeouts.Read != 30*time.Second {
		t.Errorf("Expected default read timeout 30s, got %v", f.Timeouts.Read)
	}
	if f.Timeouts.Write != 30*time.Second {
		t.Errorf("Expected default write timeout 30s, got %v", f.Timeouts.Write)
	}
	if f.Timeouts.Idle != 5*time.Minute {
		t.Errorf("Expected default idle timeout 5m, got %v", f.Timeouts.Idle)
	}
	if f.Timeouts.Shutdown != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", f.Timeouts.Shutdown)
	}
	if f.MetricsLogInterval != 5*time.Minute {
		t.Errorf("Expected default metrics log interval 5m, got %v", f.MetricsLogInterval)
	}
}

func TestApplyDefaults_FileAdapterExplicitlyDisabled(t *testing.T) {
	cfg := &Config{
		Adapters: AdaptersConfig{
			File: filesrv.FileConfig{Enabled: false, Port: 9000},
		},
	}
	ApplyDefaults(cfg)

	if cfg.Adapters.File.Enabled {
		t.Error("Expected file adapter to stay disabled when a port is configured")
	}
	if cfg.Adapters.File.Port != 9000 {
		t.Errorf("Expected port 9000 preserved, got %d", cfg.Adapters.File.Port)
	}
}

func TestApplyDefaults_FileAdapterPreservesTimeouts(t *testing.T) {
	cfg := &Config{
		Adapters: AdaptersConfig{
			File: filesrv.FileConfig{
				Enabled: true,
				Timeouts: filesrv.FileTimeoutsConfig{
					Idle: 2 * time.Second,
				},
			},
		},
	}
	ApplyDefaults(cfg)

	if cfg.Adapters.File.Timeouts.Idle != 2*time.Second {
		t.Errorf("Expected idle timeout 2s preserved, got %v", cfg.Adapters.File.Timeouts.Idle)
	}
}

func TestApplyDefaults_Metrics(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Adapters.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
	if cfg.Adapters.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Expected default metrics port %d, got %d", DefaultMetricsPort, cfg.Adapters.Metrics.Port)
	}
}
