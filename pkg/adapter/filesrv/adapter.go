// Package filesrv serves the header-framed file protocol over TCP.
package filesrv

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/internal/protocol/handlers"
	"github.com/granddizzy/ItismAsyncio/internal/ratelimiter"
	"github.com/granddizzy/ItismAsyncio/pkg/metrics"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// Backoff bounds for a failing Accept, e.g. when out of file descriptors.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// FileAdapter implements the adapter.Adapter interface for the file protocol.
//
// Architecture:
// FileAdapter manages the TCP listener and connection lifecycle. Each
// accepted connection is handled by a FileConnection in its own goroutine;
// commands on one connection run sequentially. The adapter coordinates
// graceful shutdown across all active connections using context
// cancellation and a wait group.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled (in-flight transfers abort between chunks)
//  4. Wait for active connections to complete (up to ShutdownTimeout)
//  5. Force-close any remaining connections after timeout
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses sync.Once
// to ensure idempotent behavior even if Stop() is called multiple times.
type FileAdapter struct {
	config FileConfig

	// listener is closed during shutdown to stop accepting new connections.
	// listenerMu guards it between Serve and initiateShutdown.
	listenerMu sync.Mutex
	listener   net.Listener

	// listen opens the listener; net.Listen outside tests
	listen func(network, address string) (net.Listener, error)

	// listening is closed once the listener is bound
	listening chan struct{}

	// boundPort is the port actually bound, which differs from the
	// configured one when that was 0
	boundPort atomic.Int32

	handler *handlers.Handler
	metrics metrics.FileServerMetrics

	// limiters throttles commands per client host. nil when disabled.
	limiters *ratelimiter.Keyed

	activeConns  sync.WaitGroup
	shutdownOnce sync.Once
	shutdown     chan struct{}
	connCount    atomic.Int32

	// connSemaphore limits concurrent connections if MaxConnections > 0
	connSemaphore chan struct{}

	// shutdownCtx is passed to every command and cancelled during shutdown
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps remote address to net.Conn for forced closure
	activeConnections sync.Map
}

// FileConfig holds configuration parameters for the file protocol server.
//
// Default values (applied by New if zero):
//   - Port: none; 0 lets the OS pick (pkg/config defaults it to 8020)
//   - MaxConnections: 0 (unlimited)
//   - Timeouts.Read: 30s per body chunk
//   - Timeouts.Write: 30s per response or body chunk
//   - Timeouts.Idle: 300s between commands
//   - Timeouts.Shutdown: 30s
//   - MetricsLogInterval: 5m
type FileConfig struct {
	// Enabled controls whether the file adapter is active.
	Enabled bool `mapstructure:"enabled"`

	// BindAddress is the interface to listen on. Empty means all interfaces.
	BindAddress string `mapstructure:"bind_address"`

	// Port is the TCP port to listen on. 0 lets the OS pick one, which is
	// then reported by Port().
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// MaxConnections limits the number of concurrent client connections.
	// When reached, the accept loop waits until a connection closes.
	// 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	Timeouts FileTimeoutsConfig `mapstructure:"timeouts"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// MetricsLogInterval is the interval at which active connections are
	// logged. Negative disables it.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval"`
}

// FileTimeoutsConfig groups the connection timeouts. Zero values are
// replaced with defaults.
type FileTimeoutsConfig struct {
	// Read bounds each body chunk read from the client.
	Read time.Duration `mapstructure:"read" validate:"min=0"`

	// Write bounds each response and body chunk written to the client.
	Write time.Duration `mapstructure:"write" validate:"min=0"`

	// Idle bounds the wait for the next request header.
	Idle time.Duration `mapstructure:"idle" validate:"min=0"`

	// Shutdown bounds the wait for active connections during shutdown.
	Shutdown time.Duration `mapstructure:"shutdown" validate:"min=0"`
}

// RateLimitConfig throttles clients. Zero values disable each limit.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained command rate per client host.
	RequestsPerSecond uint `mapstructure:"requests_per_second"`

	// Burst is the command burst per client host. Defaults to RequestsPerSecond.
	Burst uint `mapstructure:"burst"`

	// BytesPerSecond caps the bandwidth of each connection.
	BytesPerSecond uint `mapstructure:"bytes_per_second"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *FileConfig) applyDefaults() {
	if c.Timeouts.Read == 0 {
		c.Timeouts.Read = 30 * time.Second
	}
	if c.Timeouts.Write == 0 {
		c.Timeouts.Write = 30 * time.Second
	}
	if c.Timeouts.Idle == 0 {
		c.Timeouts.Idle = 300 * time.Second
	}
	if c.Timeouts.Shutdown == 0 {
		c.Timeouts.Shutdown = 30 * time.Second
	}
	if c.MetricsLogInterval == 0 {
		c.MetricsLogInterval = 5 * time.Minute
	}
}

// validate checks that the configuration is usable.
func (c *FileConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.Timeouts.Read < 0 {
		return fmt.Errorf("invalid read timeout %v: must be >= 0", c.Timeouts.Read)
	}
	if c.Timeouts.Write < 0 {
		return fmt.Errorf("invalid write timeout %v: must be >= 0", c.Timeouts.Write)
	}
	if c.Timeouts.Idle < 0 {
		return fmt.Errorf("invalid idle timeout %v: must be >= 0", c.Timeouts.Idle)
	}
	if c.Timeouts.Shutdown <= 0 {
		return fmt.Errorf("invalid shutdown timeout %v: must be > 0", c.Timeouts.Shutdown)
	}
	return nil
}

// New creates a new FileAdapter with the specified configuration.
//
// The adapter is created in a stopped state. Call SetStore() to inject the
// backend, then call Serve() to start accepting connections.
//
// Zero values in config are replaced with defaults. An invalid configuration
// causes a panic, since it indicates a programmer error; pkg/config validates
// user input before it gets here.
func New(config FileConfig, m metrics.FileServerMetrics) *FileAdapter {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid file adapter config: %v", err))
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("File server connection limit: %d", config.MaxConnections)
	} else {
		logger.Debug("File server connection limit: unlimited")
	}

	var limiters *ratelimiter.Keyed
	if config.RateLimit.RequestsPerSecond > 0 {
		limiters = ratelimiter.NewKeyed(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst, config.Timeouts.Idle)
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	if m == nil {
		m = metrics.NewNoopFileServerMetrics()
	}

	a := &FileAdapter{
		config:         config,
		listening:      make(chan struct{}),
		listen:         net.Listen,
		metrics:        m,
		limiters:       limiters,
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
	a.boundPort.Store(int32(config.Port))
	return a
}

// SetStore injects the shared file store.
func (s *FileAdapter) SetStore(st store.Store) {
	s.handler = handlers.New(st)
	logger.Debug("File server store configured")
}

// Serve starts the file server and blocks until the context is cancelled
// or an unrecoverable error occurs.
//
// Serve accepts incoming TCP connections and spawns a goroutine to handle
// each connection.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the listener fails to start or shutdown is not graceful
func (s *FileAdapter) Serve(ctx context.Context) error {
	if s.handler == nil {
		return fmt.Errorf("file server has no store configured")
	}

	addr := net.JoinHostPort(s.config.BindAddress, strconv.Itoa(s.config.Port))
	listener, err := s.listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create file server listener on %s: %w", addr, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	select {
	case <-s.shutdown:
		// Stop ran before the listener existed
		_ = listener.Close()
	default:
	}
	s.listenerMu.Unlock()
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.boundPort.Store(int32(tcpAddr.Port))
	}
	close(s.listening)

	logger.Info("File server listening on %s", listener.Addr())
	logger.Debug("File server config: max_connections=%d read_timeout=%v write_timeout=%v idle_timeout=%v",
		s.config.MaxConnections, s.config.Timeouts.Read, s.config.Timeouts.Write, s.config.Timeouts.Idle)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("File server shutdown signal received: %v", ctx.Err())
		case <-s.shutdown:
		}
		s.initiateShutdown()
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(s.shutdownCtx)
	}

	var acceptDelay time.Duration
	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
			}

			acceptDelay = nextAcceptDelay(acceptDelay)
			logger.Warn("Error accepting file server connection: %v; retrying in %v", err, acceptDelay)
			select {
			case <-time.After(acceptDelay):
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
			continue
		}
		acceptDelay = 0

		s.activeConns.Add(1)
		s.connCount.Add(1)

		connAddr := tcpConn.RemoteAddr().String()
		s.activeConnections.Store(connAddr, tcpConn)

		s.metrics.RecordConnectionAccepted()
		currentConns := s.connCount.Load()
		s.metrics.SetActiveConnections(currentConns)

		logger.Info("Client connected: %s (active: %d)", connAddr, currentConns)

		conn := NewFileConnection(s, tcpConn)
		go func(addr string) {
			defer func() {
				s.activeConnections.Delete(addr)

				s.activeConns.Done()
				s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				s.metrics.RecordConnectionClosed()
				currentConns := s.connCount.Load()
				s.metrics.SetActiveConnections(currentConns)

				logger.Info("Client disconnected: %s (active: %d)", addr, currentConns)
			}()

			conn.Serve(s.shutdownCtx)
		}(connAddr)
	}
}

// nextAcceptDelay doubles the wait after a failed Accept, capped at
// maxAcceptDelay.
func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptDelay
	}
	d *= 2
	if d > maxAcceptDelay {
		d = maxAcceptDelay
	}
	return d
}

// initiateShutdown closes the listener and cancels in-flight commands.
// Safe to call multiple times.
func (s *FileAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("File server shutdown initiated")

		s.listenerMu.Lock()
		close(s.shutdown)
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing file server listener: %v", err)
			}
		}
		s.listenerMu.Unlock()

		s.cancelRequests()
		logger.Debug("File server request cancellation signal sent to all in-flight operations")
	})
}

// gracefulShutdown waits for active connections to complete or for
// ShutdownTimeout, after which the remaining connections are force-closed.
func (s *FileAdapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("File server graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		activeCount, s.config.Timeouts.Shutdown)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("File server graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.Timeouts.Shutdown):
		remaining := s.connCount.Load()
		logger.Warn("File server shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.Timeouts.Shutdown)

		s.forceCloseConnections()

		return fmt.Errorf("file server shutdown timeout: %d connections force-closed", remaining)
	}
}

// forceCloseConnections closes all tracked TCP connections. Blocked reads and
// writes fail immediately, so the connection goroutines exit.
func (s *FileAdapter) forceCloseConnections() {
	logger.Info("Force-closing active file server connections")

	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection to %s: %v", addr, err)
		} else {
			closedCount++
			s.metrics.RecordConnectionForceClosed()
			logger.Debug("Force-closed connection to %s", addr)
		}
		return true
	})

	if closedCount == 0 {
		logger.Debug("No connections to force-close")
	} else {
		logger.Info("Force-closed %d connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown of the file server.
//
// Stop is safe to call multiple times and concurrently with Serve(). It waits
// for active connections until ctx is done.
func (s *FileAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	activeCount := s.connCount.Load()
	logger.Info("File server graceful shutdown: waiting for %d active connection(s) (context timeout)",
		activeCount)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("File server graceful shutdown complete: all connections closed")
		return nil

	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("File server shutdown context cancelled: %d connection(s) still active: %v",
			remaining, ctx.Err())
		return ctx.Err()
	}
}

// logMetrics periodically logs the active connection count and drops idle
// rate limiter entries.
func (s *FileAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			activeConns := s.connCount.Load()
			if s.limiters != nil {
				s.limiters.Sweep(now)
			}
			logger.Info("File server metrics: active_connections=%d", activeConns)
		}
	}
}

// GetActiveConnections returns the current number of active connections.
func (s *FileAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Listening returns a channel closed once the listener is bound.
func (s *FileAdapter) Listening() <-chan struct{} {
	return s.listening
}

// Addr returns the bound listener address, or nil before Serve has bound it.
func (s *FileAdapter) Addr() net.Addr {
	select {
	case <-s.listening:
		return s.listener.Addr()
	default:
		return nil
	}
}

// Port returns the TCP port the file server is listening on.
func (s *FileAdapter) Port() int {
	return int(s.boundPort.Load())
}

// Protocol returns "FILE".
func (s *FileAdapter) Protocol() string {
	return "FILE"
}
