package adapter

import (
	"context"

	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// Adapter represents a network endpoint that can be managed by the Server.
//
// The file protocol adapter serves the store to clients; the metrics adapter
// exposes Prometheus metrics over HTTP. All adapters share the same store.
//
// Lifecycle:
//  1. Creation: Adapter is created with its own configuration
//  2. Store injection: SetStore() provides the shared backend
//  3. Startup: Serve() starts listening and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. SetStore() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve starts the adapter and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Wait for active operations to complete (with timeout)
	//   - Clean up resources
	//
	// If Serve returns before context cancellation, the Server treats it as
	// a fatal error and stops all other adapters.
	Serve(ctx context.Context) error

	// SetStore injects the shared file store.
	//
	// Called exactly once before Serve(), no synchronization needed.
	SetStore(s store.Store)

	// Stop initiates graceful shutdown.
	//
	// Implementations must:
	//   - Be safe to call multiple times (idempotent)
	//   - Be safe to call concurrently with Serve()
	//   - Respect the context timeout for shutdown operations
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	//
	// Examples: "FILE", "METRICS"
	Protocol() string

	// Port returns the TCP port the adapter is listening on.
	//
	// Before Serve() this is the configured port, which may be 0 when the
	// operating system picks one.
	Port() int
}
