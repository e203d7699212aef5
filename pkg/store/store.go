// Package store defines the flat file namespace served by the file server.
//
// A Store holds named byte blobs with a size and a modification time. There
// are no directories: names are validated with ValidateName and never contain
// path separators. Backends live in sub-packages (fs, memory, s3, badger).
package store

import (
	"context"
	"io"
	"time"
)

// FileRecord describes one stored file.
type FileRecord struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// WriteMode selects how Create treats an existing target.
type WriteMode int

const (
	// ModeWrite creates the target or truncates it.
	ModeWrite WriteMode = iota

	// ModeAdd appends to the target when it exists and creates it otherwise.
	ModeAdd
)

func (m WriteMode) String() string {
	switch m {
	case ModeWrite:
		return "WRITE"
	case ModeAdd:
		return "ADD"
	default:
		return "UNKNOWN"
	}
}

// ResolveMode returns the effective mode for a write: appending only makes
// sense when the target exists, so ModeAdd on a missing target is ModeWrite.
func ResolveMode(requested WriteMode, exists bool) WriteMode {
	if requested == ModeAdd && exists {
		return ModeAdd
	}
	return ModeWrite
}

// Store is a flat, concurrent-safe file namespace.
//
// Thread safety:
// All methods must be safe for concurrent use. Backends make individual
// operations atomic but do not serialize writers of the same name; wrap a
// backend with NewLocking for single-writer semantics.
type Store interface {
	// Exists reports whether name is present.
	Exists(ctx context.Context, name string) (bool, error)

	// Stat returns the record for name or an error wrapping ErrNotFound.
	Stat(ctx context.Context, name string) (FileRecord, error)

	// List returns every stored file, sorted by name.
	List(ctx context.Context) ([]FileRecord, error)

	// Open returns a reader over the content of name together with its size.
	// The caller must close the reader.
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)

	// Create starts a write to name. The mode is resolved against the current
	// state of the target once, before any byte is written. A new or
	// truncated file is not visible to readers until the returned Writer is
	// committed. Backends may expose appended bytes early; Abort still
	// restores the previous content.
	Create(ctx context.Context, name string, mode WriteMode) (Writer, error)

	// Delete removes name or returns an error wrapping ErrNotFound.
	Delete(ctx context.Context, name string) error

	// Close releases backend resources.
	Close() error
}

// Writer receives the body of an upload.
//
// Exactly one of Commit or Abort must be called. After Abort the target is
// left as it was before Create.
type Writer interface {
	io.Writer

	// Mode is the effective mode chosen when the writer was created.
	Mode() WriteMode

	// Commit makes the written data visible.
	Commit() error

	// Abort discards the written data.
	Abort() error
}
