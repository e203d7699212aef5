package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_LowercaseLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "debug"

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected lowercase log level to pass, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidStoreType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Store.Type = "postgres"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown store type")
	}
}

func TestValidate_ShutdownTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.ShutdownTimeout = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for zero shutdown timeout")
	}
}

func TestValidate_Ports(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{"zero lets the OS pick", 0, false},
		{"default", DefaultPort, false},
		{"max", 65535, false},
		{"negative", -1, true},
		{"too large", 65536, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			cfg.Adapters.File.Port = tt.port

			err := Validate(cfg)
			if tt.wantErr && err == nil {
				t.Errorf("Expected error for port %d", tt.port)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error for port %d: %v", tt.port, err)
			}
		})
	}
}

func TestValidate_NegativeMaxConnections(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.File.MaxConnections = -1

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for negative max_connections")
	}
}

func TestValidate_NegativeTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.File.Timeouts.Idle = -time.Second

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for negative idle timeout")
	}
}

func TestValidate_FileAdapterRequired(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.File.Enabled = false

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error with the file adapter disabled")
	}
	if !strings.Contains(err.Error(), "file adapter must be enabled") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestValidate_PortConflict(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.Metrics.Enabled = true
	cfg.Adapters.Metrics.Port = cfg.Adapters.File.Port

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for conflicting ports")
	}
	if !strings.Contains(err.Error(), "both use port") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestValidate_StoreRequiredOptions(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*StoreConfig)
		wantErr string
	}{
		{
			name: "filesystem without path",
			mutate: func(s *StoreConfig) {
				s.Type = "filesystem"
				s.Filesystem["path"] = ""
			},
			wantErr: "store.filesystem.path",
		},
		{
			name: "s3 without bucket",
			mutate: func(s *StoreConfig) {
				s.Type = "s3"
			},
			wantErr: "store.s3.bucket",
		},
		{
			name: "badger without path",
			mutate: func(s *StoreConfig) {
				s.Type = "badger"
			},
			wantErr: "store.badger.db_path",
		},
		{
			name: "badger in memory",
			mutate: func(s *StoreConfig) {
				s.Type = "badger"
				s.Badger["in_memory"] = true
			},
		},
		{
			name: "memory",
			mutate: func(s *StoreConfig) {
				s.Type = "memory"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(&cfg.Store)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}
