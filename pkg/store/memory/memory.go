// Package memory provides an in-memory store.Store.
//
// Contents are lost when the process exits. Useful for tests and for
// ephemeral servers.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// MemoryStoreConfig configures a MemoryStore.
type MemoryStoreConfig struct {
	// MaxSizeBytes caps the total size of all committed files.
	// 0 means unlimited.
	MaxSizeBytes int64
}

// MemoryStore keeps every file as a byte slice guarded by one RWMutex.
type MemoryStore struct {
	mu     sync.RWMutex
	files  map[string]*entry
	used   int64
	max    int64
	closed bool

	// now is replaceable in tests
	now func() time.Time
}

type entry struct {
	data    []byte
	modTime time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	return &MemoryStore{
		files: make(map[string]*entry),
		max:   cfg.MaxSizeBytes,
		now:   time.Now,
	}
}

var _ store.Store = (*MemoryStore)(nil)

func (s *MemoryStore) checkOpen() error {
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := store.ValidateName(name); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	_, ok := s.files[name]
	return ok, nil
}

func (s *MemoryStore) Stat(ctx context.Context, name string) (store.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return store.FileRecord{}, err
	}
	if err := store.ValidateName(name); err != nil {
		return store.FileRecord{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return store.FileRecord{}, err
	}
	e, ok := s.files[name]
	if !ok {
		return store.FileRecord{}, fmt.Errorf("file %q: %w", name, store.ErrNotFound)
	}
	return store.FileRecord{Name: name, Size: int64(len(e.data)), ModTime: e.modTime}, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]store.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	records := make([]store.FileRecord, 0, len(s.files))
	for name, e := range s.files {
		records = append(records, store.FileRecord{Name: name, Size: int64(len(e.data)), ModTime: e.modTime})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// Open returns a reader over a snapshot of the file. Later writes to the
// same name do not affect an open reader.
func (s *MemoryStore) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if err := store.ValidateName(name); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, 0, err
	}
	e, ok := s.files[name]
	if !ok {
		return nil, 0, fmt.Errorf("file %q: %w", name, store.ErrNotFound)
	}
	// committed slices are never mutated in place, sharing is safe
	return io.NopCloser(bytes.NewReader(e.data)), int64(len(e.data)), nil
}

func (s *MemoryStore) Create(ctx context.Context, name string, mode store.WriteMode) (store.Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := store.ValidateName(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	_, exists := s.files[name]

	return &memoryWriter{
		store: s,
		name:  name,
		mode:  store.ResolveMode(mode, exists),
	}, nil
}

func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.ValidateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	e, ok := s.files[name]
	if !ok {
		return fmt.Errorf("file %q: %w", name, store.ErrNotFound)
	}
	s.used -= int64(len(e.data))
	delete(s.files, name)
	return nil
}

// Close drops all contents. Further calls fail with store.ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.files = nil
	s.used = 0
	return nil
}

type memoryWriter struct {
	store *MemoryStore
	name  string
	mode  store.WriteMode
	buf   bytes.Buffer
	done  bool
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, store.ErrWriterDone
	}
	return w.buf.Write(p)
}

func (w *memoryWriter) Mode() store.WriteMode {
	return w.mode
}

func (w *memoryWriter) Commit() error {
	if w.done {
		return store.ErrWriterDone
	}
	w.done = true

	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	var data []byte
	var previous int64
	old, exists := s.files[w.name]
	if exists {
		previous = int64(len(old.data))
	}
	if w.mode == store.ModeAdd && exists {
		data = make([]byte, 0, len(old.data)+w.buf.Len())
		data = append(data, old.data...)
		data = append(data, w.buf.Bytes()...)
	} else {
		data = bytes.Clone(w.buf.Bytes())
		if data == nil {
			data = []byte{}
		}
	}

	used := s.used - previous + int64(len(data))
	if s.max > 0 && used > s.max {
		return fmt.Errorf("file %q: store size limit %d bytes exceeded", w.name, s.max)
	}

	s.used = used
	s.files[w.name] = &entry{data: data, modTime: s.now()}
	return nil
}

func (w *memoryWriter) Abort() error {
	if w.done {
		return store.ErrWriterDone
	}
	w.done = true
	w.buf.Reset()
	return nil
}
