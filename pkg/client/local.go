package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/granddizzy/ItismAsyncio/internal/protocol"
)

var (
	// ErrLocalNotFound is returned when the local upload source is missing.
	ErrLocalNotFound = errors.New("local file not found")

	// ErrLocalEmpty is returned when the local upload source has no data.
	ErrLocalEmpty = errors.New("local file is empty")
)

// CheckLocalFile verifies that path is a regular, non-empty file and
// returns its size.
func CheckLocalFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%s: %w", path, ErrLocalNotFound)
		}
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s: not a regular file", path)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%s: %w", path, ErrLocalEmpty)
	}
	return info.Size(), nil
}

// LocalExists reports whether path names an existing local file.
func LocalExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// PutFile uploads the local file at path as name.
func (c *Conn) PutFile(ctx context.Context, name, path string, mode protocol.Mode, opts ...TransferOption) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s: not a regular file", path)
	}

	return c.Put(ctx, name, f, info.Size(), mode, opts...)
}

// GetFile downloads name into the local file at path. ModeWrite replaces
// path atomically once the whole body arrived; ModeAdd appends to it and
// cuts it back to its previous size if the download fails.
func (c *Conn) GetFile(ctx context.Context, name, path string, mode protocol.Mode, opts ...TransferOption) error {
	var dst localFile
	if mode == protocol.ModeAdd {
		dst = &appendFile{path: path}
	} else {
		dst = &replaceFile{path: path}
	}

	_, err := c.get(ctx, name, func(int64) (io.Writer, error) {
		return dst.open()
	}, opts...)
	if err != nil {
		dst.abort()
		return err
	}
	return dst.commit()
}

// localFile is a download destination. open is only called after the
// server answered READY.
type localFile interface {
	open() (io.Writer, error)
	commit() error
	abort()
}

// replaceFile writes into a temporary sibling and renames it over path.
type replaceFile struct {
	path string
	tmp  *os.File
}

func (r *replaceFile) open() (io.Writer, error) {
	tmp, err := os.CreateTemp(filepath.Dir(r.path), "."+filepath.Base(r.path)+".part-*")
	if err != nil {
		return nil, err
	}
	r.tmp = tmp
	return tmp, nil
}

func (r *replaceFile) commit() error {
	if r.tmp == nil {
		return nil
	}
	if err := r.tmp.Close(); err != nil {
		_ = os.Remove(r.tmp.Name())
		return err
	}
	// CreateTemp uses 0600
	if err := os.Chmod(r.tmp.Name(), 0o644); err != nil {
		_ = os.Remove(r.tmp.Name())
		return err
	}
	if err := os.Rename(r.tmp.Name(), r.path); err != nil {
		_ = os.Remove(r.tmp.Name())
		return err
	}
	return nil
}

func (r *replaceFile) abort() {
	if r.tmp == nil {
		return
	}
	_ = r.tmp.Close()
	_ = os.Remove(r.tmp.Name())
}

// appendFile appends to path, remembering its size for rollback.
type appendFile struct {
	path string
	f    *os.File
	size int64
}

func (a *appendFile) open() (io.Writer, error) {
	f, err := os.OpenFile(a.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	a.f = f
	a.size = info.Size()
	return f, nil
}

func (a *appendFile) commit() error {
	if a.f == nil {
		return nil
	}
	return a.f.Close()
}

func (a *appendFile) abort() {
	if a.f == nil {
		return
	}
	_ = a.f.Truncate(a.size)
	_ = a.f.Close()
}
