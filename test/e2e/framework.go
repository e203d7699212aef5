package e2e

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/pkg/adapter/filesrv"
	"github.com/granddizzy/ItismAsyncio/pkg/client"
	"github.com/granddizzy/ItismAsyncio/pkg/config"
	"github.com/granddizzy/ItismAsyncio/pkg/metrics"
	"github.com/granddizzy/ItismAsyncio/pkg/server"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// TestContext provides a complete testing environment with:
// - Running file server built from configuration
// - Client configuration pointing at it
// - Cleanup mechanisms
type TestContext struct {
	T        *testing.T
	Config   *TestConfig
	Server   *server.Server
	Adapter  *filesrv.FileAdapter
	Store    store.Store
	Client   client.Config
	Port     int
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	tempDirs []string
	localDir string
}

// NewTestContext creates a new test environment with the specified
// configuration and starts the server.
func NewTestContext(t *testing.T, cfg *TestConfig) *TestContext {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	tc := &TestContext{
		T:      t,
		Config: cfg,
		ctx:    ctx,
		cancel: cancel,
		Port:   findFreePort(t),
	}

	tc.startServer()

	return tc
}

// startServer wires the server the same way cmd/fileserver does.
func (tc *TestContext) startServer() {
	tc.T.Helper()

	// Always use ERROR level to keep test output clean
	logger.SetLevel("ERROR")

	cfg := config.GetDefaultConfig()
	storeCfg, err := tc.Config.StoreConfig(tc)
	if err != nil {
		tc.T.Fatalf("Failed to build store config: %v", err)
	}
	cfg.Store = storeCfg
	cfg.Adapters.File.Port = tc.Port
	cfg.Adapters.File.Timeouts.Idle = 30 * time.Second
	cfg.Adapters.File.MetricsLogInterval = -1
	cfg.Adapters.Metrics.Enabled = false

	if err := config.Validate(cfg); err != nil {
		tc.T.Fatalf("Invalid configuration: %v", err)
	}

	tc.Store, err = config.CreateStore(tc.ctx, &cfg.Store, metrics.NewNoopStoreMetrics())
	if err != nil {
		tc.T.Fatalf("Failed to create store: %v", err)
	}

	tc.Server = server.New(tc.Store)
	tc.Server.SetShutdownTimeout(5 * time.Second)

	adapters, err := config.CreateAdapters(cfg, nil)
	if err != nil {
		tc.T.Fatalf("Failed to create adapters: %v", err)
	}
	for _, a := range adapters {
		if err := tc.Server.AddAdapter(a); err != nil {
			tc.T.Fatalf("Failed to add %s adapter: %v", a.Protocol(), err)
		}
		if fa, ok := a.(*filesrv.FileAdapter); ok {
			tc.Adapter = fa
		}
	}
	if tc.Adapter == nil {
		tc.T.Fatal("File adapter missing from configuration")
	}

	tc.wg.Add(1)
	go func() {
		defer tc.wg.Done()
		if err := tc.Server.Serve(tc.ctx); err != nil && !errors.Is(err, context.Canceled) {
			tc.T.Logf("Server error: %v", err)
		}
	}()

	tc.waitForServer()

	tc.Client = client.DefaultConfig()
	tc.Client.Address = net.JoinHostPort("127.0.0.1", strconv.Itoa(tc.Port))
	tc.Client.ResponseTimeout = 10 * time.Second
}

// waitForServer waits for the file adapter to bind its listener
func (tc *TestContext) waitForServer() {
	tc.T.Helper()

	select {
	case <-tc.Adapter.Listening():
	case <-time.After(10 * time.Second):
		tc.T.Fatal("Timeout waiting for server to start")
	}
}

// Cleanup stops the server, closes the store, and removes temporary files
func (tc *TestContext) Cleanup() {
	tc.T.Helper()

	if tc.cancel != nil {
		tc.cancel()
	}
	tc.wg.Wait()

	if tc.Store != nil {
		_ = tc.Store.Close()
	}

	for _, dir := range tc.tempDirs {
		_ = os.RemoveAll(dir)
	}
}

// NewClient returns a client for the running server. It is closed on
// test cleanup.
func (tc *TestContext) NewClient() *client.Client {
	tc.T.Helper()

	c := client.New(tc.Client)
	tc.T.Cleanup(func() { _ = c.Close() })
	return c
}

// LocalPath returns a path in a per-test scratch directory on the client side.
func (tc *TestContext) LocalPath(name string) string {
	tc.T.Helper()

	if tc.localDir == "" {
		tc.localDir = tc.CreateTempDir("filesrv-local-*")
	}
	return filepath.Join(tc.localDir, name)
}

// CreateTempDir creates a temporary directory and registers it for cleanup
func (tc *TestContext) CreateTempDir(prefix string) string {
	tc.T.Helper()

	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		tc.T.Fatalf("Failed to create temp directory: %v", err)
	}
	tc.tempDirs = append(tc.tempDirs, dir)
	return dir
}

// GetConfig returns the test configuration
func (tc *TestContext) GetConfig() *TestConfig {
	return tc.Config
}

// GetPort returns the server port
func (tc *TestContext) GetPort() int {
	return tc.Port
}

// findFreePort finds an available TCP port
func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	defer func() { _ = listener.Close() }()

	return listener.Addr().(*net.TCPAddr).Port
}

// String identifies the context in test logs.
func (tc *TestContext) String() string {
	return fmt.Sprintf("%s on port %d", tc.Config, tc.Port)
}
