package filesrv

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/internal/protocol"
	"github.com/granddizzy/ItismAsyncio/internal/protocol/handlers"
	"github.com/granddizzy/ItismAsyncio/internal/ratelimiter"
)

// FileConnection serves the commands of one client. It owns the socket.
type FileConnection struct {
	server    *FileAdapter
	conn      net.Conn
	sessionID string

	// stream is conn, throttled when a bandwidth limit is configured
	stream io.ReadWriter
}

// NewFileConnection wraps an accepted connection.
func NewFileConnection(server *FileAdapter, conn net.Conn) *FileConnection {
	c := &FileConnection{
		server:    server,
		conn:      conn,
		sessionID: uuid.NewString(),
		stream:    conn,
	}
	if bps := server.config.RateLimit.BytesPerSecond; bps > 0 {
		c.stream = &throttledStream{
			conn:    conn,
			limiter: ratelimiter.New(bps, 0),
			ctx:     server.shutdownCtx,
		}
	}
	return c
}

// Serve handles commands until the client quits, the connection fails, the
// idle timeout expires or the server shuts down. A panic in a handler is
// recovered and only ends this connection. The socket is closed exactly once,
// on return.
func (c *FileConnection) Serve(ctx context.Context) {
	clientAddr := c.conn.RemoteAddr().String()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in connection handler from %s: session=%s: %v", clientAddr, c.sessionID, r)
		}
		_ = c.conn.Close()
	}()

	logger.Debug("New session %s from %s", c.sessionID, clientAddr)

	// Wake a connection blocked on the next header when the server shuts
	// down. Body transfers notice the cancellation between chunks.
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.SetReadDeadline(time.Now())
		case <-finished:
		}
	}()

	cc := &handlers.CommandContext{
		Context:     ctx,
		Conn:        c.stream,
		ClientAddr:  clientAddr,
		SessionID:   c.sessionID,
		BeforeChunk: c.extendDeadline,
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Connection from %s closed due to context cancellation", clientAddr)
			return
		case <-c.server.shutdown:
			logger.Debug("Connection from %s closed due to server shutdown", clientAddr)
			return
		default:
		}

		if err := c.handleRequest(cc); err != nil {
			switch {
			case ctx.Err() != nil:
				logger.Debug("Connection from %s closed due to server shutdown", clientAddr)
			case errors.Is(err, io.EOF):
				logger.Debug("Connection from %s closed by client", clientAddr)
			case isTimeout(err):
				logger.Info("Connection from %s timed out: session=%s", clientAddr, c.sessionID)
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				logger.Debug("Connection from %s cancelled: %v", clientAddr, err)
			case errors.Is(err, errQuit):
				logger.Debug("Connection from %s quit", clientAddr)
			default:
				logger.Debug("Error handling request from %s: %v", clientAddr, err)
			}
			return
		}
	}
}

// errQuit ends the loop after QUIT.
var errQuit = errors.New("client quit")

// handleRequest reads one header and runs its command.
//
// Returns nil when the next header can be read, an error otherwise.
func (c *FileConnection) handleRequest(cc *handlers.CommandContext) error {
	if err := c.setIdleDeadline(); err != nil {
		return err
	}
	if err := cc.Context.Err(); err != nil {
		return err
	}

	req, err := protocol.ReadRequest(c.stream)
	if err != nil {
		if errors.Is(err, protocol.ErrEmptyHeader) {
			// A blank header is treated like a closed stream.
			return io.EOF
		}
		if errors.Is(err, protocol.ErrProtocol) {
			logger.Debug("Malformed header from %s: %v", cc.ClientAddr, err)
			if err := c.extendDeadline(); err != nil {
				return err
			}
			_, err := handlers.RejectMalformed(cc)
			return err
		}
		return err
	}

	if err := c.extendDeadline(); err != nil {
		return err
	}

	command := handlers.CommandName(req.Command)

	if c.server.limiters != nil && req.Command != protocol.CmdQuit {
		if !c.server.limiters.Get(remoteHost(c.conn)).Allow() {
			c.server.metrics.RecordRateLimited()
			logger.Debug("%s rate limited: client=%s session=%s", command, cc.ClientAddr, c.sessionID)
			_, err := handlers.RejectBusy(cc)
			return err
		}
	}

	c.server.metrics.RecordRequestStart(command)
	start := time.Now()

	out, err := c.server.handler.Dispatch(cc, req)

	c.server.metrics.RecordRequestEnd(command)
	status := string(out.Status)
	if status == "" {
		status = "NONE"
	}
	c.server.metrics.RecordRequest(command, time.Since(start), status)
	c.server.metrics.RecordBytesTransferred(command, "in", out.BytesIn)
	c.server.metrics.RecordBytesTransferred(command, "out", out.BytesOut)
	if out.Aborted {
		c.server.metrics.RecordTransferAborted(command)
	}

	logger.Debug("%s: status=%s in=%d out=%d duration=%v session=%s",
		command, status, out.BytesIn, out.BytesOut, time.Since(start), c.sessionID)

	if err != nil {
		return err
	}
	if out.Close {
		return errQuit
	}
	return nil
}

// setIdleDeadline bounds the wait for the next header by the idle timeout.
func (c *FileConnection) setIdleDeadline() error {
	idle := c.server.config.Timeouts.Idle
	if idle <= 0 {
		return c.conn.SetDeadline(time.Time{})
	}
	return c.conn.SetDeadline(time.Now().Add(idle))
}

// extendDeadline gives the next chunk or response its own timeout, so a
// long transfer is bounded per chunk rather than as a whole.
func (c *FileConnection) extendDeadline() error {
	now := time.Now()

	read := time.Time{}
	if t := c.server.config.Timeouts.Read; t > 0 {
		read = now.Add(t)
	}
	if err := c.conn.SetReadDeadline(read); err != nil {
		return err
	}

	write := time.Time{}
	if t := c.server.config.Timeouts.Write; t > 0 {
		write = now.Add(t)
	}
	return c.conn.SetWriteDeadline(write)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func remoteHost(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// throttledStream charges every byte moved against a bandwidth limiter.
type throttledStream struct {
	conn    net.Conn
	limiter *ratelimiter.RateLimiter
	ctx     context.Context
}

func (t *throttledStream) Read(p []byte) (int, error) {
	n, err := t.conn.Read(p)
	if n > 0 {
		if werr := t.limiter.WaitN(t.ctx, n); werr != nil && err == nil {
			err = werr
		}
	}
	return n, err
}

func (t *throttledStream) Write(p []byte) (int, error) {
	if err := t.limiter.WaitN(t.ctx, len(p)); err != nil {
		return 0, err
	}
	return t.conn.Write(p)
}
