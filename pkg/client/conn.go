package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/internal/protocol"
	"github.com/granddizzy/ItismAsyncio/internal/protocol/transfer"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

var errDead = errors.New("connection is dead")

// Conn is one connection to the file server.
//
// Operations on a Conn are serialized. Any transport failure closes the
// socket and marks the Conn dead: later operations fail fast until
// EnsureConnected dials a new socket. A failed operation is never retried.
type Conn struct {
	cfg Config

	mu     sync.Mutex
	nc     net.Conn
	closed bool
}

// Dial connects to cfg.Address.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Conn{cfg: cfg}
	if err := c.dial(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conn) dial(ctx context.Context) error {
	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return &ConnectionError{Op: "dial", Err: err}
	}
	c.nc = nc
	logger.Debug("Connected to %s", c.cfg.Address)
	return nil
}

// Addr returns the server address.
func (c *Conn) Addr() string {
	return c.cfg.Address
}

// ready checks that an operation can run. Callers hold c.mu.
func (c *Conn) ready(op string) error {
	if c.closed {
		return ErrClosed
	}
	if c.nc == nil {
		return &ConnectionError{Op: op, Err: errDead}
	}
	return nil
}

// fail drops the socket and wraps err. When ctx was cancelled the context
// error is reported instead of the deadline error it caused.
func (c *Conn) fail(ctx context.Context, op string, err error) error {
	if c.nc != nil {
		_ = c.nc.Close()
		c.nc = nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	logger.Debug("Connection to %s dropped during %s: %v", c.cfg.Address, op, err)
	return &ConnectionError{Op: op, Err: err}
}

// watch interrupts blocking I/O on the current socket when ctx is done.
func (c *Conn) watch(ctx context.Context) (stop func() bool) {
	nc := c.nc
	return context.AfterFunc(ctx, func() {
		_ = nc.SetDeadline(time.Unix(1, 0))
	})
}

// headerDeadline bounds one header exchange.
func (c *Conn) headerDeadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.cfg.ResponseTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

// chunkDeadline is used as transfer.Job.BeforeChunk.
func (c *Conn) chunkDeadline(ctx context.Context) func() error {
	nc := c.nc
	return func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return nc.SetDeadline(time.Now().Add(c.cfg.IOTimeout))
	}
}

// exchange sends req and reads one response header.
func (c *Conn) exchange(ctx context.Context, op string, req *protocol.Request) (*protocol.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.nc.SetDeadline(c.headerDeadline(ctx)); err != nil {
		return nil, c.fail(ctx, op, err)
	}
	if err := protocol.WriteRequest(c.nc, req); err != nil {
		if errors.Is(err, protocol.ErrProtocol) || errors.Is(err, protocol.ErrHeaderTooLong) {
			// Nothing was written.
			return nil, err
		}
		return nil, c.fail(ctx, op, err)
	}
	return c.await(ctx, op)
}

// await reads one response header.
func (c *Conn) await(ctx context.Context, op string) (*protocol.Response, error) {
	if err := c.nc.SetDeadline(c.headerDeadline(ctx)); err != nil {
		return nil, c.fail(ctx, op, err)
	}
	resp, err := protocol.ReadResponse(c.nc)
	if err != nil {
		return nil, c.fail(ctx, op, err)
	}
	return resp, nil
}

func unexpected(op string, resp *protocol.Response) error {
	return &ServerError{Op: op, Status: resp.Status, Message: resp.Message}
}

// IsAlive sends TEST and reports whether SUCCESS came back within
// ResponseTimeout. A failed probe marks the Conn dead.
func (c *Conn) IsAlive(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probe(ctx)
}

func (c *Conn) probe(ctx context.Context) bool {
	if c.ready("test") != nil {
		return false
	}
	defer c.watch(ctx)()

	resp, err := c.exchange(ctx, "test", &protocol.Request{Command: protocol.CmdTest})
	if err != nil {
		return false
	}
	if resp.Status != protocol.StatusSuccess {
		_ = c.fail(ctx, "test", unexpected("test", resp))
		return false
	}
	return true
}

// EnsureConnected probes the connection and, when it is dead, closes the
// stale socket and dials a new one.
func (c *Conn) EnsureConnected(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.nc != nil && c.probe(ctx) {
		return nil
	}
	if c.nc != nil {
		_ = c.nc.Close()
		c.nc = nil
	}
	logger.Debug("Reconnecting to %s", c.cfg.Address)
	return c.dial(ctx)
}

// Close ends the session. A live connection is told QUIT and half-closed
// in both directions before the socket is closed; a dead one is just
// closed. Close is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.nc == nil {
		return nil
	}

	nc := c.nc
	c.nc = nil

	_ = nc.SetDeadline(time.Now().Add(c.cfg.ResponseTimeout))
	if err := protocol.WriteRequest(nc, &protocol.Request{Command: protocol.CmdQuit}); err == nil {
		if tcp, ok := nc.(*net.TCPConn); ok {
			_ = tcp.CloseWrite()
			_ = tcp.CloseRead()
		}
	}

	if err := nc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	logger.Debug("Disconnected from %s", c.cfg.Address)
	return nil
}

// ============================================================================
// Operations
// ============================================================================

// TransferOption customizes Put and Get.
type TransferOption func(*transferOptions)

type transferOptions struct {
	progress func(done, total int64)
}

// WithProgress reports the bytes moved after every chunk.
func WithProgress(fn func(done, total int64)) TransferOption {
	return func(o *transferOptions) {
		o.progress = fn
	}
}

func collect(opts []TransferOption) transferOptions {
	var o transferOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// List returns the server's file records.
func (c *Conn) List(ctx context.Context) ([]store.FileRecord, error) {
	const op = "list"

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(op); err != nil {
		return nil, err
	}
	defer c.watch(ctx)()

	resp, err := c.exchange(ctx, op, &protocol.Request{Command: protocol.CmdGetList})
	if err != nil {
		return nil, err
	}
	if resp.Status != protocol.StatusList {
		return nil, unexpected(op, resp)
	}

	var body bytes.Buffer
	job := transfer.NewJob(transfer.Listing, resp.Filesize)
	job.BeforeChunk = c.chunkDeadline(ctx)
	if _, err := job.Receive(ctx, c.nc, &body); err != nil {
		return nil, c.fail(ctx, op, err)
	}

	return protocol.ParseListing(body.Bytes())
}

// Check reports whether name exists on the server.
func (c *Conn) Check(ctx context.Context, name string) (bool, error) {
	const op = "check"

	if err := store.ValidateName(name); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(op); err != nil {
		return false, err
	}
	defer c.watch(ctx)()

	resp, err := c.exchange(ctx, op, &protocol.Request{Command: protocol.CmdCheck, Filename: name})
	if err != nil {
		return false, err
	}
	switch resp.Status {
	case protocol.StatusExists:
		return true, nil
	case protocol.StatusNotExists:
		return false, nil
	default:
		return false, unexpected(op, resp)
	}
}

// Delete removes name from the server. A missing file yields an error
// matching ErrNotFound.
func (c *Conn) Delete(ctx context.Context, name string) error {
	const op = "delete"

	if err := store.ValidateName(name); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(op); err != nil {
		return err
	}
	defer c.watch(ctx)()

	resp, err := c.exchange(ctx, op, &protocol.Request{Command: protocol.CmdDel, Filename: name})
	if err != nil {
		return err
	}
	if resp.Status != protocol.StatusSuccess {
		return unexpected(op, resp)
	}
	return nil
}

// Put uploads exactly size bytes from src as name.
//
// If src ends before size bytes the server has already been promised the
// rest, so the connection is dropped and the error matches
// transfer.ErrSourceShorterThanDeclared.
func (c *Conn) Put(ctx context.Context, name string, src io.Reader, size int64, mode protocol.Mode, opts ...TransferOption) error {
	const op = "put"

	if err := store.ValidateName(name); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("put %s: negative size %d", name, size)
	}
	if !mode.IsValid() {
		return fmt.Errorf("put %s: unknown mode %q", name, mode)
	}
	o := collect(opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(op); err != nil {
		return err
	}
	defer c.watch(ctx)()

	resp, err := c.exchange(ctx, op, &protocol.Request{
		Command:  protocol.CmdPut,
		Filename: name,
		Filesize: size,
		Mode:     mode,
	})
	if err != nil {
		return err
	}
	if resp.Status != protocol.StatusReady {
		return unexpected(op, resp)
	}

	job := transfer.NewJob(transfer.Upload, size)
	job.Progress = o.progress
	job.BeforeChunk = c.chunkDeadline(ctx)
	if _, err := job.Send(ctx, c.nc, src); err != nil {
		return c.fail(ctx, op, err)
	}

	resp, err = c.await(ctx, op)
	if err != nil {
		return err
	}
	if resp.Status != protocol.StatusSuccess {
		return unexpected(op, resp)
	}
	return nil
}

// Get downloads name into dst and returns the number of bytes written.
// A missing file yields an error matching ErrNotFound.
func (c *Conn) Get(ctx context.Context, name string, dst io.Writer, opts ...TransferOption) (int64, error) {
	return c.get(ctx, name, func(int64) (io.Writer, error) { return dst, nil }, opts...)
}

// get runs a GET exchange. open is called once the server answered READY,
// so nothing local is touched for a missing file. A local write failure
// does not drop the connection: the rest of the body is drained.
func (c *Conn) get(ctx context.Context, name string, open func(size int64) (io.Writer, error), opts ...TransferOption) (int64, error) {
	const op = "get"

	if err := store.ValidateName(name); err != nil {
		return 0, err
	}
	o := collect(opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(op); err != nil {
		return 0, err
	}
	defer c.watch(ctx)()

	resp, err := c.exchange(ctx, op, &protocol.Request{Command: protocol.CmdGet, Filename: name})
	if err != nil {
		return 0, err
	}
	if resp.Status != protocol.StatusReady {
		return 0, unexpected(op, resp)
	}

	dst, openErr := open(resp.Filesize)
	if openErr != nil {
		dst = io.Discard
	}
	sink := &sinkWriter{w: dst}

	job := transfer.NewJob(transfer.Download, resp.Filesize)
	job.Progress = o.progress
	job.BeforeChunk = c.chunkDeadline(ctx)
	if _, err := job.Receive(ctx, c.nc, sink); err != nil {
		return sink.n, c.fail(ctx, op, err)
	}

	if openErr != nil {
		return 0, openErr
	}
	if sink.err != nil {
		return sink.n, sink.err
	}
	return sink.n, nil
}

// sinkWriter keeps accepting bytes after the first write error so the body
// can be drained off the connection.
type sinkWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (s *sinkWriter) Write(p []byte) (int, error) {
	if s.err == nil {
		n, err := s.w.Write(p)
		s.n += int64(n)
		if err == nil && n < len(p) {
			err = io.ErrShortWrite
		}
		s.err = err
	}
	return len(p), nil
}
