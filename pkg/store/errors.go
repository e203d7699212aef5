package store

import "errors"

// ============================================================================
// Standard Store Errors
// ============================================================================

// These errors give every backend a common vocabulary for failures. The
// command handlers map them onto protocol responses:
//
//	rc, _, err := st.Open(ctx, name)
//	if err != nil {
//	    if errors.Is(err, store.ErrNotFound) {
//	        return protocol.NewError(protocol.MsgFileNotExists)
//	    }
//	    return protocol.NewError(protocol.MsgReadFailed)
//	}
//
// Implementations wrap them with the offending name:
//
//	return fmt.Errorf("file %q: %w", name, store.ErrNotFound)

var (
	// ErrNotFound indicates the named file does not exist.
	//
	// Returned by Stat, Open and Delete.
	//
	// Protocol Mapping:
	//   - GET/DEL: ERROR "File not exists"
	//   - CHECK: NOT_EXISTS
	ErrNotFound = errors.New("file not found")

	// ErrInvalidName indicates the name fails validation (forbidden
	// characters, empty, too long, reserved).
	//
	// Protocol Mapping:
	//   - PUT/CHECK/GET/DEL: ERROR "Forbidden chars"
	ErrInvalidName = errors.New("invalid file name")

	// ErrClosed indicates the store (or a writer) was used after Close.
	ErrClosed = errors.New("store closed")

	// ErrWriterDone indicates Write, Commit or Abort was called on a writer
	// that was already committed or aborted.
	ErrWriterDone = errors.New("writer already finished")
)
