// Package badger implements store.Store on an embedded BadgerDB.
//
// Layout:
//
//	m/<name>              -> JSON fileMeta {segments, size, mtime}
//	d/<seg>/<index:16hex> -> raw chunk bytes
//
// A file is an ordered list of segments and every writer owns a fresh
// segment id, so no two writers ever share a chunk key. A replace
// (ModeWrite) swaps the segment list on commit, so readers holding an older
// snapshot keep reading the old chunks. An append (ModeAdd) adds its segment
// to the end of the list and only becomes reachable when the meta record is
// updated.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

const (
	metaPrefix = "m/"
	dataPrefix = "d/"

	// DefaultChunkSize is the size of the value stored per chunk key.
	DefaultChunkSize = 64 * 1024
)

// BadgerStoreConfig configures a BadgerStore.
type BadgerStoreConfig struct {
	// DBPath is the BadgerDB directory. Required unless InMemory is set.
	DBPath string

	// InMemory runs Badger without touching disk.
	InMemory bool

	// ChunkSize is the maximum size of a single chunk value.
	// Defaults to DefaultChunkSize.
	ChunkSize int

	// BadgerOptions overrides every option above when non-nil.
	BadgerOptions *badgerdb.Options
}

// BadgerStore keeps files in a BadgerDB instance.
type BadgerStore struct {
	db        *badgerdb.DB
	chunkSize int
}

type fileMeta struct {
	Segments []segment `json:"segments"`
	Size     int64     `json:"size"`
	MTime    int64     `json:"mtime"`
}

// segment is the chunk range written by one writer.
type segment struct {
	ID     string `json:"id"`
	Chunks int64  `json:"chunks"`
}

// origin identifies the replace that started the current content. Appends
// keep it, a replace or delete changes it.
func (m *fileMeta) origin() string {
	if len(m.Segments) == 0 {
		return ""
	}
	return m.Segments[0].ID
}

var _ store.Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) the database.
func NewBadgerStore(ctx context.Context, cfg BadgerStoreConfig) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badgerdb.Options
	switch {
	case cfg.BadgerOptions != nil:
		opts = *cfg.BadgerOptions
	case cfg.InMemory:
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	case cfg.DBPath != "":
		opts = badgerdb.DefaultOptions(cfg.DBPath)
	default:
		return nil, fmt.Errorf("badger store: db_path is required")
	}
	if cfg.BadgerOptions == nil {
		opts = opts.WithLoggingLevel(badgerdb.WARNING)
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	logger.Debug("Badger store opened (path=%q in_memory=%v chunk_size=%d)", cfg.DBPath, cfg.InMemory, chunkSize)
	return &BadgerStore{db: db, chunkSize: chunkSize}, nil
}

func metaKey(name string) []byte {
	return []byte(metaPrefix + name)
}

func chunkKey(seg string, index int64) []byte {
	return []byte(fmt.Sprintf("%s%s/%016x", dataPrefix, seg, index))
}

// getMeta loads the meta record of name inside txn.
func getMeta(txn *badgerdb.Txn, name string) (*fileMeta, error) {
	item, err := txn.Get(metaKey(name))
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, fmt.Errorf("file %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("get meta for %q: %w", name, err)
	}

	var meta fileMeta
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &meta)
	})
	if err != nil {
		return nil, fmt.Errorf("decode meta for %q: %w", name, err)
	}
	return &meta, nil
}

func putMeta(txn *badgerdb.Txn, name string, meta *fileMeta) error {
	val, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return txn.Set(metaKey(name), val)
}

func (s *BadgerStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.Stat(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *BadgerStore) Stat(ctx context.Context, name string) (store.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return store.FileRecord{}, err
	}
	if err := store.ValidateName(name); err != nil {
		return store.FileRecord{}, err
	}

	var rec store.FileRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		meta, err := getMeta(txn, name)
		if err != nil {
			return err
		}
		rec = store.FileRecord{Name: name, Size: meta.Size, ModTime: time.Unix(0, meta.MTime)}
		return nil
	})
	return rec, err
}

func (s *BadgerStore) List(ctx context.Context) ([]store.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []store.FileRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(metaPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			name := string(item.Key()[len(metaPrefix):])

			var meta fileMeta
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				return fmt.Errorf("decode meta for %q: %w", name, err)
			}
			records = append(records, store.FileRecord{
				Name:    name,
				Size:    meta.Size,
				ModTime: time.Unix(0, meta.MTime),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// keys iterate in byte order, which already matches name order
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// Open reads the file from a read-only snapshot taken now. The snapshot is
// released when the reader is closed.
func (s *BadgerStore) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if err := store.ValidateName(name); err != nil {
		return nil, 0, err
	}

	txn := s.db.NewTransaction(false)
	meta, err := getMeta(txn, name)
	if err != nil {
		txn.Discard()
		return nil, 0, err
	}

	return &chunkReader{txn: txn, meta: meta}, meta.Size, nil
}

func (s *BadgerStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.ValidateName(name); err != nil {
		return err
	}

	var removed *fileMeta
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		meta, err := getMeta(txn, name)
		if err != nil {
			return err
		}
		removed = meta
		return txn.Delete(metaKey(name))
	})
	if err != nil {
		return err
	}

	s.dropSegments(removed.Segments...)
	return nil
}

// dropSegments deletes every chunk of segs. Failures only leak space, they
// never make data visible, so they are logged rather than returned.
func (s *BadgerStore) dropSegments(segs ...segment) {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	pending := false
	for _, seg := range segs {
		for i := int64(0); i < seg.Chunks; i++ {
			if err := wb.Delete(chunkKey(seg.ID, i)); err != nil {
				logger.Warn("Badger store: failed to delete chunk %d of segment %s: %v", i, seg.ID, err)
				return
			}
			pending = true
		}
	}
	if !pending {
		return
	}
	if err := wb.Flush(); err != nil {
		logger.Warn("Badger store: failed to delete chunks: %v", err)
	}
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// chunkReader streams the segments of one file from a snapshot.
type chunkReader struct {
	txn   *badgerdb.Txn
	meta  *fileMeta
	seg   int
	next  int64
	buf   []byte
	close bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.close {
		return 0, store.ErrClosed
	}
	for len(r.buf) == 0 {
		if r.seg >= len(r.meta.Segments) {
			return 0, io.EOF
		}
		seg := r.meta.Segments[r.seg]
		if r.next >= seg.Chunks {
			r.seg++
			r.next = 0
			continue
		}
		item, err := r.txn.Get(chunkKey(seg.ID, r.next))
		if err != nil {
			return 0, fmt.Errorf("read chunk %d of segment %d: %w", r.next, r.seg, err)
		}
		r.buf, err = item.ValueCopy(nil)
		if err != nil {
			return 0, fmt.Errorf("copy chunk %d: %w", r.next, err)
		}
		r.next++
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *chunkReader) Close() error {
	if !r.close {
		r.close = true
		r.txn.Discard()
	}
	return nil
}
