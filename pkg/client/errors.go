package client

import (
	"errors"
	"fmt"

	"github.com/granddizzy/ItismAsyncio/internal/protocol"
)

var (
	// ErrNotFound is matched by a ServerError reporting a missing file.
	ErrNotFound = errors.New("file not found on server")

	// ErrClosed is returned by operations on a closed Conn.
	ErrClosed = errors.New("connection closed")
)

// ConnectionError reports a transport failure. The Conn that returned it is
// marked dead; EnsureConnected replaces the socket.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: connection error: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ServerError is a well-formed response the operation did not expect,
// usually an ERROR status. The connection stays usable.
type ServerError struct {
	Op      string
	Status  protocol.Status
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: server replied %s", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: server replied %s: %s", e.Op, e.Status, e.Message)
}

func (e *ServerError) Is(target error) bool {
	if target != ErrNotFound {
		return false
	}
	return e.Status == protocol.StatusNotExists || e.Message == protocol.MsgFileNotExists
}

// IsConnectionError reports whether err came from the transport.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
