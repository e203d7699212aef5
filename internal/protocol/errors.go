package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol is matched by every *ProtocolError via errors.Is.
	ErrProtocol = errors.New("protocol error")

	// ErrHeaderTooLong is returned by Encode when the joined fields exceed
	// HeaderSize. Callers must reject the request instead of truncating it.
	ErrHeaderTooLong = errors.New("header exceeds fixed size")
)

// ProtocolError describes a malformed header: wrong field count, a
// non-numeric or negative filesize, or an unknown command/status.
type ProtocolError struct {
	// Reason is a short human readable description
	Reason string

	// Fields holds the decoded fields, if decoding got that far
	Fields []string
}

func (e *ProtocolError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("protocol error: %s", e.Reason)
	}
	return fmt.Sprintf("protocol error: %s (fields=%q)", e.Reason, e.Fields)
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

func newProtocolError(fields []string, format string, args ...any) *ProtocolError {
	return &ProtocolError{
		Reason: fmt.Sprintf(format, args...),
		Fields: fields,
	}
}
