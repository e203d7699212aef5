package e2e

import (
	"fmt"
	"path/filepath"

	"github.com/granddizzy/ItismAsyncio/pkg/config"
)

// StoreType represents the store backend a test run uses
type StoreType string

const (
	StoreMemory     StoreType = "memory"
	StoreFilesystem StoreType = "filesystem"
	StoreBadger     StoreType = "badger"
	StoreS3         StoreType = "s3"
)

// TestContextProvider is an interface for providing test context dependencies
type TestContextProvider interface {
	CreateTempDir(prefix string) string
	GetConfig() *TestConfig
	GetPort() int
}

// TestConfig holds the configuration for a test run
type TestConfig struct {
	Name    string
	Store   StoreType
	Locking bool

	// S3-specific fields (set by localstack setup)
	s3Endpoint string
	s3Bucket   string
}

// String returns a string representation of the configuration
func (tc *TestConfig) String() string {
	return fmt.Sprintf("%s/locking=%t", tc.Store, tc.Locking)
}

// StoreConfig builds the store section the server would read from its
// configuration file.
func (tc *TestConfig) StoreConfig(testCtx TestContextProvider) (config.StoreConfig, error) {
	locking := tc.Locking
	cfg := config.StoreConfig{
		Type:       string(tc.Store),
		Locking:    &locking,
		Filesystem: map[string]any{},
		Memory:     map[string]any{},
		S3:         map[string]any{},
		Badger:     map[string]any{},
	}

	switch tc.Store {
	case StoreMemory:
		// No options needed

	case StoreFilesystem:
		cfg.Filesystem["path"] = testCtx.CreateTempDir("filesrv-files-*")
		cfg.Filesystem["watch_changes"] = false

	case StoreBadger:
		cfg.Badger["db_path"] = filepath.Join(testCtx.CreateTempDir("filesrv-badger-*"), "files.db")

	case StoreS3:
		// S3 requires localstack setup
		if tc.s3Bucket == "" {
			return cfg, fmt.Errorf("S3 bucket not initialized (localstack not running?)")
		}
		cfg.S3["bucket"] = tc.s3Bucket
		cfg.S3["region"] = "us-east-1"
		cfg.S3["endpoint"] = tc.s3Endpoint
		cfg.S3["access_key_id"] = "test"
		cfg.S3["secret_access_key"] = "test"
		cfg.S3["key_prefix"] = fmt.Sprintf("e2e-%d/", testCtx.GetPort())
		cfg.S3["staging_dir"] = testCtx.CreateTempDir("filesrv-staging-*")

	default:
		return cfg, fmt.Errorf("unknown store type: %s", tc.Store)
	}

	return cfg, nil
}

// AllConfigurations returns all test configurations to run
func AllConfigurations() []*TestConfig {
	return []*TestConfig{
		{Name: "memory", Store: StoreMemory, Locking: true},
		{Name: "filesystem", Store: StoreFilesystem, Locking: true},
		{Name: "filesystem-unlocked", Store: StoreFilesystem, Locking: false},
		{Name: "badger", Store: StoreBadger, Locking: true},
	}
}

// S3Configurations returns configurations that use S3 (requires localstack)
func S3Configurations() []*TestConfig {
	return []*TestConfig{
		{Name: "s3", Store: StoreS3, Locking: true},
	}
}

// GetConfiguration returns a specific configuration by name
func GetConfiguration(name string) *TestConfig {
	for _, config := range AllConfigurations() {
		if config.Name == name {
			return config
		}
	}
	for _, config := range S3Configurations() {
		if config.Name == name {
			return config
		}
	}
	return nil
}
