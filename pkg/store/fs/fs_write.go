package fs

import (
	"errors"
	"fmt"
	"os"

	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// replaceWriter stages data in a temp file and renames it over the target.
type replaceWriter struct {
	s    *FSStore
	name string
	tmp  *os.File
	done bool
}

func (s *FSStore) newReplaceWriter(name string) (*replaceWriter, error) {
	tmp, err := os.CreateTemp(s.root, store.TempPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("stage upload for %q: %w", name, err)
	}
	return &replaceWriter{s: s, name: name, tmp: tmp}, nil
}

func (w *replaceWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, store.ErrWriterDone
	}
	return w.tmp.Write(p)
}

func (w *replaceWriter) Mode() store.WriteMode {
	return store.ModeWrite
}

func (w *replaceWriter) Commit() error {
	if w.done {
		return store.ErrWriterDone
	}
	w.done = true

	if err := w.tmp.Sync(); err != nil {
		w.discard()
		return fmt.Errorf("sync upload for %q: %w", w.name, err)
	}
	if err := w.tmp.Close(); err != nil {
		_ = os.Remove(w.tmp.Name())
		return fmt.Errorf("close upload for %q: %w", w.name, err)
	}
	if err := os.Chmod(w.tmp.Name(), 0o644); err != nil {
		_ = os.Remove(w.tmp.Name())
		return fmt.Errorf("chmod upload for %q: %w", w.name, err)
	}
	if err := os.Rename(w.tmp.Name(), w.s.path(w.name)); err != nil {
		_ = os.Remove(w.tmp.Name())
		return fmt.Errorf("commit upload for %q: %w", w.name, err)
	}

	w.s.invalidate()
	return nil
}

func (w *replaceWriter) Abort() error {
	if w.done {
		return store.ErrWriterDone
	}
	w.done = true
	return w.discard()
}

func (w *replaceWriter) discard() error {
	closeErr := w.tmp.Close()
	removeErr := os.Remove(w.tmp.Name())
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		return fmt.Errorf("remove staged upload %q: %w", w.tmp.Name(), removeErr)
	}
	if closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		return closeErr
	}
	return nil
}

// appendWriter appends to the target in place. Abort truncates the file back
// to the size it had when the writer was created.
type appendWriter struct {
	s        *FSStore
	name     string
	f        *os.File
	original int64
	done     bool
}

func (s *FSStore) newAppendWriter(name string) (*appendWriter, error) {
	f, err := os.OpenFile(s.path(name), os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// removed between the existence check and the open
			return nil, fmt.Errorf("file %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("open %q for append: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %q: %w", name, err)
	}

	return &appendWriter{s: s, name: name, f: f, original: info.Size()}, nil
}

func (w *appendWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, store.ErrWriterDone
	}
	return w.f.Write(p)
}

func (w *appendWriter) Mode() store.WriteMode {
	return store.ModeAdd
}

func (w *appendWriter) Commit() error {
	if w.done {
		return store.ErrWriterDone
	}
	w.done = true
	defer w.s.invalidate()

	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("sync %q: %w", w.name, err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close %q: %w", w.name, err)
	}
	return nil
}

func (w *appendWriter) Abort() error {
	if w.done {
		return store.ErrWriterDone
	}
	w.done = true
	defer w.s.invalidate()

	truncErr := w.f.Truncate(w.original)
	closeErr := w.f.Close()
	if truncErr != nil {
		return fmt.Errorf("restore %q to %d bytes: %w", w.name, w.original, truncErr)
	}
	return closeErr
}
