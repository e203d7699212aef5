package store

import (
	"context"
	"io"
	"time"

	"github.com/granddizzy/ItismAsyncio/pkg/metrics"
)

// InstrumentedStore reports every call of the wrapped store to a
// metrics.StoreMetrics.
type InstrumentedStore struct {
	inner   Store
	metrics metrics.StoreMetrics
}

// NewInstrumented wraps inner. A nil m falls back to no-op metrics.
func NewInstrumented(inner Store, m metrics.StoreMetrics) *InstrumentedStore {
	if m == nil {
		m = metrics.NewNoopStoreMetrics()
	}
	return &InstrumentedStore{inner: inner, metrics: m}
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	s.metrics.ObserveOperation(op, time.Since(start), err)
}

func (s *InstrumentedStore) Exists(ctx context.Context, name string) (bool, error) {
	start := time.Now()
	ok, err := s.inner.Exists(ctx, name)
	s.observe("exists", start, err)
	return ok, err
}

func (s *InstrumentedStore) Stat(ctx context.Context, name string) (FileRecord, error) {
	start := time.Now()
	rec, err := s.inner.Stat(ctx, name)
	s.observe("stat", start, err)
	return rec, err
}

func (s *InstrumentedStore) List(ctx context.Context) ([]FileRecord, error) {
	start := time.Now()
	recs, err := s.inner.List(ctx)
	s.observe("list", start, err)
	return recs, err
}

func (s *InstrumentedStore) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	start := time.Now()
	rc, size, err := s.inner.Open(ctx, name)
	s.observe("open", start, err)
	if err != nil {
		return nil, 0, err
	}
	return &countingReader{ReadCloser: rc, metrics: s.metrics}, size, nil
}

func (s *InstrumentedStore) Create(ctx context.Context, name string, mode WriteMode) (Writer, error) {
	start := time.Now()
	w, err := s.inner.Create(ctx, name, mode)
	s.observe("create", start, err)
	if err != nil {
		return nil, err
	}
	return &countingWriter{Writer: w, metrics: s.metrics}, nil
}

func (s *InstrumentedStore) Delete(ctx context.Context, name string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, name)
	s.observe("delete", start, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}

// Unwrap returns the wrapped store.
func (s *InstrumentedStore) Unwrap() Store {
	return s.inner
}

type countingReader struct {
	io.ReadCloser
	metrics metrics.StoreMetrics
	n       int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.n += int64(n)
	return n, err
}

func (r *countingReader) Close() error {
	r.metrics.RecordBytes("read", r.n)
	return r.ReadCloser.Close()
}

type countingWriter struct {
	Writer
	metrics metrics.StoreMetrics
	n       int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.Writer.Write(p)
	w.n += int64(n)
	return n, err
}

func (w *countingWriter) Commit() error {
	start := time.Now()
	err := w.Writer.Commit()
	w.metrics.ObserveOperation("commit", time.Since(start), err)
	if err == nil {
		w.metrics.RecordBytes("commit", w.n)
	}
	return err
}

func (w *countingWriter) Abort() error {
	start := time.Now()
	err := w.Writer.Abort()
	w.metrics.ObserveOperation("abort", time.Since(start), err)
	return err
}
