package store

import (
	"context"
	"sync"
)

// LockingStore serializes mutations of the same name.
//
// A writer holds the lock for its name from Create until Commit or Abort, and
// Delete takes the same lock, so at most one mutation per name is in flight.
// Mutations of different names and all reads proceed concurrently.
type LockingStore struct {
	Store

	mu    sync.Mutex
	locks map[string]*nameLock
}

type nameLock struct {
	sem  chan struct{}
	refs int
}

// NewLocking wraps inner with per-name single-writer locking.
func NewLocking(inner Store) *LockingStore {
	return &LockingStore{
		Store: inner,
		locks: make(map[string]*nameLock),
	}
}

// acquire blocks until the lock for name is held or ctx is done.
func (s *LockingStore) acquire(ctx context.Context, name string) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &nameLock{sem: make(chan struct{}, 1)}
		s.locks[name] = l
	}
	l.refs++
	s.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		s.unref(name, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			s.unref(name, l)
		})
	}, nil
}

func (s *LockingStore) unref(name string, l *nameLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, name)
	}
}

// Create acquires the name lock and holds it until the writer finishes.
func (s *LockingStore) Create(ctx context.Context, name string, mode WriteMode) (Writer, error) {
	release, err := s.acquire(ctx, name)
	if err != nil {
		return nil, err
	}

	w, err := s.Store.Create(ctx, name, mode)
	if err != nil {
		release()
		return nil, err
	}
	return &lockedWriter{Writer: w, release: release}, nil
}

// Delete removes name while holding its lock.
func (s *LockingStore) Delete(ctx context.Context, name string) error {
	release, err := s.acquire(ctx, name)
	if err != nil {
		return err
	}
	defer release()
	return s.Store.Delete(ctx, name)
}

// Unwrap returns the wrapped store.
func (s *LockingStore) Unwrap() Store {
	return s.Store
}

type lockedWriter struct {
	Writer
	release func()
}

func (w *lockedWriter) Commit() error {
	defer w.release()
	return w.Writer.Commit()
}

func (w *lockedWriter) Abort() error {
	defer w.release()
	return w.Writer.Abort()
}
