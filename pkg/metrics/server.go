package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultServerPort is the metrics HTTP port when none is configured.
const DefaultServerPort = 9090

// readyProbeTimeout bounds one readiness check.
const readyProbeTimeout = 3 * time.Second

// ReadyCheck reports whether the server can serve file requests.
type ReadyCheck func(ctx context.Context) error

// Server exposes the metrics registry over HTTP.
//
// Endpoints:
//   - GET /metrics: Prometheus text format (503 when collection is disabled)
//   - GET /healthz: liveness, always "ok"
//   - GET /readyz: runs the ReadyCheck, 503 with the error when it fails
//   - GET /: plain-text index of the above
type Server struct {
	server       *http.Server
	port         int
	ready        atomic.Pointer[ReadyCheck]
	shutdownOnce sync.Once
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// BindAddress is the interface to listen on. Empty means all interfaces.
	BindAddress string

	// Port to listen on. Default: DefaultServerPort
	Port int
}

// NewServer creates a stopped metrics server. Call Start to serve.
func NewServer(config ServerConfig) *Server {
	if config.Port <= 0 {
		config.Port = DefaultServerPort
	}

	s := &Server{port: config.Port}
	s.server = &http.Server{
		Addr:              net.JoinHostPort(config.BindAddress, strconv.Itoa(config.Port)),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// SetReadyCheck installs the function behind /readyz. A nil check makes
// the endpoint always report ready.
func (s *Server) SetReadyCheck(check ReadyCheck) {
	if check == nil {
		s.ready.Store(nil)
		return
	}
	s.ready.Store(&check)
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	if registry := GetRegistry(); registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	} else {
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
			plain(w, http.StatusServiceUnavailable, "Metrics collection is disabled\n")
		})
		logger.Debug("Metrics collection disabled; /metrics answers 503")
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		plain(w, http.StatusOK, "ok\n")
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		check := s.ready.Load()
		if check == nil {
			plain(w, http.StatusOK, "ready\n")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), readyProbeTimeout)
		defer cancel()
		if err := (*check)(ctx); err != nil {
			logger.Warn("Readiness check failed: %v", err)
			plain(w, http.StatusServiceUnavailable, "not ready: "+err.Error()+"\n")
			return
		}
		plain(w, http.StatusOK, "ready\n")
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		plain(w, http.StatusOK, "File server metrics\n\n"+
			"/metrics  Prometheus scrape endpoint\n"+
			"/healthz  liveness\n"+
			"/readyz   store readiness\n")
	})

	return mux
}

func plain(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = fmt.Fprint(w, body)
}

// Handler returns the HTTP handler serving the metrics endpoints.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start binds the listener and serves until ctx is cancelled or the server
// fails. A bind error is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics server listen on %s: %w", s.server.Addr, err)
	}
	logger.Info("Metrics server listening on %s", ln.Addr())

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// ctx is already cancelled, so shutdown gets its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the HTTP server down. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("metrics server shutdown: %w", err)
			logger.Error("Metrics server shutdown error: %v", err)
			return
		}
		logger.Info("Metrics server stopped")
	})
	return shutdownErr
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.port
}
