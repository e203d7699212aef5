// Package fs implements store.Store on top of a local directory.
//
// Each file of the store is a regular file directly under the root
// directory. Uploads in ModeWrite are staged in a temporary file next to the
// target and renamed into place on commit. Uploads in ModeAdd append in place
// and truncate back to the original size on abort.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// FSStoreConfig configures an FSStore.
type FSStoreConfig struct {
	// Path is the root directory. Created (with parents) if missing.
	Path string

	// WatchChanges enables the listing cache. The cache is invalidated by
	// this store's own mutations and by fsnotify events for changes made by
	// other processes.
	WatchChanges bool

	// DirMode is used when creating Path. Defaults to 0755.
	DirMode os.FileMode
}

// FSStore serves files from a single local directory.
type FSStore struct {
	root string

	// listing cache, only used when a watcher is running
	cacheMu    sync.Mutex
	cache      []store.FileRecord
	cacheValid bool
	cacheGen   uint64

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
	closed  atomic.Bool
}

var _ store.Store = (*FSStore)(nil)

// NewFSStore opens (and if needed creates) the root directory.
//
// Returns an error if the directory cannot be created or if Path exists but
// is not a directory.
func NewFSStore(ctx context.Context, cfg FSStoreConfig) (*FSStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("filesystem store: path is required")
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0o755
	}

	root, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve store path %q: %w", cfg.Path, err)
	}

	if err := os.MkdirAll(root, cfg.DirMode); err != nil {
		return nil, fmt.Errorf("create store directory %q: %w", root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat store directory %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store path %q is not a directory", root)
	}

	s := &FSStore{root: root}

	if cfg.WatchChanges {
		if err := s.startWatcher(); err != nil {
			// the store still works, just without a listing cache
			logger.Warn("Filesystem store: change watcher unavailable for %s: %v", root, err)
		}
	}

	logger.Debug("Filesystem store ready at %s (watch=%v)", root, s.watcher != nil)
	return s, nil
}

// Root returns the absolute root directory.
func (s *FSStore) Root() string {
	return s.root
}

func (s *FSStore) path(name string) string {
	return filepath.Join(s.root, name)
}

func (s *FSStore) check(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return store.ErrClosed
	}
	return store.ValidateName(name)
}

// statRegular returns the FileInfo for name, mapping missing files and
// non-regular entries to store.ErrNotFound.
func (s *FSStore) statRegular(name string) (os.FileInfo, error) {
	info, err := os.Stat(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("stat %q: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("file %q is not a regular file: %w", name, store.ErrNotFound)
	}
	return info, nil
}

func (s *FSStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := s.check(ctx, name); err != nil {
		return false, err
	}
	_, err := s.statRegular(name)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *FSStore) Stat(ctx context.Context, name string) (store.FileRecord, error) {
	if err := s.check(ctx, name); err != nil {
		return store.FileRecord{}, err
	}
	info, err := s.statRegular(name)
	if err != nil {
		return store.FileRecord{}, err
	}
	return store.FileRecord{Name: name, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// List returns the regular files under the root. Entries whose names fail
// store.ValidateName (including staged uploads) are skipped.
func (s *FSStore) List(ctx context.Context) ([]store.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, store.ErrClosed
	}

	var gen uint64
	if s.watcher != nil {
		s.cacheMu.Lock()
		if s.cacheValid {
			records := make([]store.FileRecord, len(s.cache))
			copy(records, s.cache)
			s.cacheMu.Unlock()
			return records, nil
		}
		gen = s.cacheGen
		s.cacheMu.Unlock()
	}

	records, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	if s.watcher != nil {
		s.cacheMu.Lock()
		// an invalidation during the scan means the result may be stale
		if s.cacheGen == gen {
			s.cache = records
			s.cacheValid = true
		}
		s.cacheMu.Unlock()

		out := make([]store.FileRecord, len(records))
		copy(out, records)
		return out, nil
	}
	return records, nil
}

func (s *FSStore) scan(ctx context.Context) ([]store.FileRecord, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read store directory: %w", err)
	}

	// os.ReadDir returns entries sorted by name
	records := make([]store.FileRecord, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() || store.ValidateName(entry.Name()) != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %q: %w", entry.Name(), err)
		}
		records = append(records, store.FileRecord{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return records, nil
}

func (s *FSStore) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if err := s.check(ctx, name); err != nil {
		return nil, 0, err
	}

	f, err := os.Open(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("file %q: %w", name, store.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("open %q: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat %q: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, 0, fmt.Errorf("file %q is not a regular file: %w", name, store.ErrNotFound)
	}

	// the size is fixed at open time so a concurrent append cannot make the
	// reader return more bytes than announced
	return &sizedFile{f: f, r: io.LimitReader(f, info.Size())}, info.Size(), nil
}

// sizedFile deliberately does not embed *os.File: a promoted WriteTo would
// let io.Copy bypass the size limit.
type sizedFile struct {
	f *os.File
	r io.Reader
}

func (f *sizedFile) Read(p []byte) (int, error) {
	return f.r.Read(p)
}

func (f *sizedFile) Close() error {
	return f.f.Close()
}

func (s *FSStore) Create(ctx context.Context, name string, mode store.WriteMode) (store.Writer, error) {
	if err := s.check(ctx, name); err != nil {
		return nil, err
	}

	exists, err := s.Exists(ctx, name)
	if err != nil {
		return nil, err
	}

	if store.ResolveMode(mode, exists) == store.ModeAdd {
		return s.newAppendWriter(name)
	}
	return s.newReplaceWriter(name)
}

func (s *FSStore) Delete(ctx context.Context, name string) error {
	if err := s.check(ctx, name); err != nil {
		return err
	}
	if _, err := s.statRegular(name); err != nil {
		return err
	}

	if err := os.Remove(s.path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("file %q: %w", name, store.ErrNotFound)
		}
		return fmt.Errorf("remove %q: %w", name, err)
	}
	s.invalidate()
	return nil
}

// Close stops the watcher. Files on disk are left untouched.
func (s *FSStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if s.watcher != nil {
		err = s.watcher.Close()
		s.wg.Wait()
	}
	return err
}
