package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/pkg/adapter"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// DefaultStopTimeout bounds the Stop() calls issued during shutdown unless
// SetShutdownTimeout changes it.
const DefaultStopTimeout = 30 * time.Second

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("Serve() has already been called on this server instance")

// Server manages the lifecycle of the adapters that share one store.
//
// Lifecycle:
//  1. Creation: New() with the store
//  2. Registration: AddAdapter() for the file protocol and optional metrics
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: Context cancellation triggers graceful shutdown of all adapters
//
// Example usage:
//
//	srv := server.New(st)
//	srv.AddAdapter(filesrv.New(fileConfig, fileMetrics))
//	srv.AddAdapter(metricshttp.New(metricsConfig))
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type Server struct {
	store       store.Store
	stopTimeout time.Duration

	// mu protects adapters and served
	mu       sync.RWMutex
	adapters []adapter.Adapter
	served   bool
}

// New creates a Server around st.
//
// Panics if st is nil (indicates programmer error).
func New(st store.Store) *Server {
	if st == nil {
		panic("store cannot be nil")
	}

	return &Server{
		store:       st,
		stopTimeout: DefaultStopTimeout,
		adapters:    make([]adapter.Adapter, 0, 2),
	}
}

// SetShutdownTimeout changes how long shutdown waits for the adapters.
// Non-positive values are ignored.
func (s *Server) SetShutdownTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.stopTimeout = d
	s.mu.Unlock()
}

// Store returns the shared store.
func (s *Server) Store() store.Store {
	return s.store
}

// AddAdapter injects the store into a and registers it.
//
// Duplicate protocols or fixed-port conflicts return an error. Port 0 means
// the adapter picks its port when it starts and never conflicts.
//
// Panics if a is nil or Serve() has already been called.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetStore(s.store)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or an adapter fails.
//
// On shutdown every adapter receives Stop() in reverse registration order,
// and Serve waits for all of them to return.
//
// Returns:
//   - the context error if shutdown was triggered by cancellation
//   - the adapter error, wrapped, if an adapter failed
//   - ErrAlreadyServed on a second call
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	logger.Info("Starting server with %d adapter(s)", len(adapters))

	// Buffered so failing adapters never block.
	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			err := a.Serve(ctx)
			switch {
			case err == nil && ctx.Err() != nil:
				logger.Info("%s adapter stopped", protocol)
			case err == nil:
				// Returning before cancellation is fatal for the server.
				errChan <- adapterError{protocol: protocol, err: errors.New("adapter stopped unexpectedly")}
			case errors.Is(err, context.Canceled) || ctx.Err() != nil:
				logger.Debug("%s adapter stopped: %v", protocol, err)
			default:
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			}
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		s.stopAllAdapters(adapters)
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		s.stopAllAdapters(adapters)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("Server stopped")
	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters calls Stop() on every adapter in reverse registration
// order, logging failures and continuing.
func (s *Server) stopAllAdapters(adapters []adapter.Adapter) {
	s.mu.RLock()
	timeout := s.stopTimeout
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())

		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		} else {
			logger.Debug("%s adapter stop signal sent", protocol)
		}
	}
}

// Adapters returns a snapshot of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
