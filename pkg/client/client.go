// Package client talks to the file server.
//
// A Conn owns one TCP connection and runs one operation at a time. Client
// opens a fresh Conn per operation and always closes it with the QUIT
// handshake, so independent operations run concurrently. Session keeps a
// single Conn and reconnects before the next operation when it died.
package client

import (
	"context"

	"github.com/granddizzy/ItismAsyncio/internal/protocol"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// Client runs every operation on its own connection.
type Client struct {
	cfg Config
}

// New returns a Client for cfg. No connection is opened until an
// operation runs.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{cfg: cfg}
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Do dials, runs fn and closes the connection on every exit path. The
// error from fn takes precedence over the close error.
func (c *Client) Do(ctx context.Context, fn func(*Conn) error) (err error) {
	conn, err := Dial(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(conn)
}

// List returns the server's file records.
func (c *Client) List(ctx context.Context) (records []store.FileRecord, err error) {
	err = c.Do(ctx, func(conn *Conn) error {
		records, err = conn.List(ctx)
		return err
	})
	return records, err
}

// Check reports whether name exists on the server.
func (c *Client) Check(ctx context.Context, name string) (exists bool, err error) {
	err = c.Do(ctx, func(conn *Conn) error {
		exists, err = conn.Check(ctx, name)
		return err
	})
	return exists, err
}

// Delete removes name from the server.
func (c *Client) Delete(ctx context.Context, name string) error {
	return c.Do(ctx, func(conn *Conn) error {
		return conn.Delete(ctx, name)
	})
}

// PutFile uploads the local file at path as name.
func (c *Client) PutFile(ctx context.Context, name, path string, mode protocol.Mode, opts ...TransferOption) error {
	return c.Do(ctx, func(conn *Conn) error {
		return conn.PutFile(ctx, name, path, mode, opts...)
	})
}

// GetFile downloads name into the local file at path.
func (c *Client) GetFile(ctx context.Context, name, path string, mode protocol.Mode, opts ...TransferOption) error {
	return c.Do(ctx, func(conn *Conn) error {
		return conn.GetFile(ctx, name, path, mode, opts...)
	})
}

// Close is a no-op; Client holds no connection between operations.
func (c *Client) Close() error {
	return nil
}
