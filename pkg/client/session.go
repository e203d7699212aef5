package client

import (
	"context"
	"sync"

	"github.com/granddizzy/ItismAsyncio/internal/protocol"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// Session keeps one connection across operations. Before each operation it
// calls EnsureConnected, so a connection that died is replaced on the next
// operation. The operation that saw the failure is not retried.
type Session struct {
	cfg Config

	mu   sync.Mutex
	conn *Conn
}

// NewSession returns a Session for cfg. The first operation dials.
func NewSession(cfg Config) *Session {
	cfg.applyDefaults()
	return &Session{cfg: cfg}
}

// Connect dials the server, or checks the existing connection.
func (s *Session) Connect(ctx context.Context) error {
	return s.use(ctx, func(*Conn) error { return nil })
}

func (s *Session) use(ctx context.Context, fn func(*Conn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		conn, err := Dial(ctx, s.cfg)
		if err != nil {
			return err
		}
		s.conn = conn
	} else if err := s.conn.EnsureConnected(ctx); err != nil {
		return err
	}
	return fn(s.conn)
}

// List returns the server's file records.
func (s *Session) List(ctx context.Context) (records []store.FileRecord, err error) {
	err = s.use(ctx, func(conn *Conn) error {
		records, err = conn.List(ctx)
		return err
	})
	return records, err
}

// Check reports whether name exists on the server.
func (s *Session) Check(ctx context.Context, name string) (exists bool, err error) {
	err = s.use(ctx, func(conn *Conn) error {
		exists, err = conn.Check(ctx, name)
		return err
	})
	return exists, err
}

// Delete removes name from the server.
func (s *Session) Delete(ctx context.Context, name string) error {
	return s.use(ctx, func(conn *Conn) error {
		return conn.Delete(ctx, name)
	})
}

// PutFile uploads the local file at path as name.
func (s *Session) PutFile(ctx context.Context, name, path string, mode protocol.Mode, opts ...TransferOption) error {
	return s.use(ctx, func(conn *Conn) error {
		return conn.PutFile(ctx, name, path, mode, opts...)
	})
}

// GetFile downloads name into the local file at path.
func (s *Session) GetFile(ctx context.Context, name, path string, mode protocol.Mode, opts ...TransferOption) error {
	return s.use(ctx, func(conn *Conn) error {
		return conn.GetFile(ctx, name, path, mode, opts...)
	})
}

// Close ends the session with the QUIT handshake.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
