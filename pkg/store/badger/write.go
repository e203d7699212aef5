package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// ErrConflict is returned by Commit when an append's target was replaced or
// deleted by another writer. Concurrent appends to the same content do not
// conflict; they land one after the other.
var ErrConflict = errors.New("concurrent modification")

// maxCommitRetries bounds how often a commit retries after Badger reports a
// transaction conflict on the meta record.
const maxCommitRetries = 16

func (s *BadgerStore) Create(ctx context.Context, name string, mode store.WriteMode) (store.Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := store.ValidateName(name); err != nil {
		return nil, err
	}

	var current *fileMeta
	err := s.db.View(func(txn *badgerdb.Txn) error {
		meta, err := getMeta(txn, name)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		current = meta
		return err
	})
	if err != nil {
		return nil, err
	}

	w := &badgerWriter{
		s:    s,
		name: name,
		mode: store.ResolveMode(mode, current != nil),
		seg:  segment{ID: uuid.NewString()},
		wb:   s.db.NewWriteBatch(),
	}
	if w.mode == store.ModeAdd {
		w.origin = current.origin()
	}
	return w, nil
}

type badgerWriter struct {
	s    *BadgerStore
	name string
	mode store.WriteMode
	wb   *badgerdb.WriteBatch

	// origin of the content an append started from
	origin string

	// seg is owned by this writer alone
	seg     segment
	pending []byte
	written int64
	done    bool
}

func (w *badgerWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, store.ErrWriterDone
	}

	w.pending = append(w.pending, p...)
	for len(w.pending) >= w.s.chunkSize {
		if err := w.flushChunk(w.pending[:w.s.chunkSize]); err != nil {
			return 0, err
		}
		w.pending = w.pending[w.s.chunkSize:]
	}
	return len(p), nil
}

func (w *badgerWriter) flushChunk(data []byte) error {
	if err := w.wb.Set(chunkKey(w.seg.ID, w.seg.Chunks), bytes.Clone(data)); err != nil {
		return fmt.Errorf("write chunk %d of %q: %w", w.seg.Chunks, w.name, err)
	}
	w.seg.Chunks++
	w.written += int64(len(data))
	return nil
}

func (w *badgerWriter) Mode() store.WriteMode {
	return w.mode
}

func (w *badgerWriter) Commit() error {
	if w.done {
		return store.ErrWriterDone
	}
	w.done = true

	if len(w.pending) > 0 {
		if err := w.flushChunk(w.pending); err != nil {
			w.rollback()
			return err
		}
		w.pending = nil
	}
	if err := w.wb.Flush(); err != nil {
		w.rollback()
		return fmt.Errorf("flush chunks of %q: %w", w.name, err)
	}

	var (
		replaced *fileMeta
		err      error
	)
	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		replaced, err = w.publish()
		if !errors.Is(err, badgerdb.ErrConflict) {
			break
		}
	}
	if err != nil {
		w.s.dropSegments(w.seg)
		return err
	}

	if replaced != nil {
		w.s.dropSegments(replaced.Segments...)
	}
	return nil
}

// publish makes the writer's segment reachable from the meta record. It
// returns the meta record a replace superseded.
func (w *badgerWriter) publish() (*fileMeta, error) {
	var replaced *fileMeta
	err := w.s.db.Update(func(txn *badgerdb.Txn) error {
		current, err := getMeta(txn, w.name)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		now := time.Now().UnixNano()
		if w.mode == store.ModeAdd {
			if current == nil || current.origin() != w.origin {
				return fmt.Errorf("append to %q: %w", w.name, ErrConflict)
			}
			segs := make([]segment, 0, len(current.Segments)+1)
			segs = append(segs, current.Segments...)
			return putMeta(txn, w.name, &fileMeta{
				Segments: append(segs, w.seg),
				Size:     current.Size + w.written,
				MTime:    now,
			})
		}

		replaced = current
		return putMeta(txn, w.name, &fileMeta{
			Segments: []segment{w.seg},
			Size:     w.written,
			MTime:    now,
		})
	})
	return replaced, err
}

func (w *badgerWriter) Abort() error {
	if w.done {
		return store.ErrWriterDone
	}
	w.done = true
	w.rollback()
	return nil
}

// rollback cancels the batch and removes any chunk the batch may already
// have committed on its own.
func (w *badgerWriter) rollback() {
	w.wb.Cancel()
	w.pending = nil
	w.s.dropSegments(w.seg)
}
