package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/granddizzy/ItismAsyncio/pkg/store"
	storetest "github.com/granddizzy/ItismAsyncio/pkg/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, watch bool) *FSStore {
	t.Helper()
	s, err := NewFSStore(context.Background(), FSStoreConfig{
		Path:         filepath.Join(t.TempDir(), "files"),
		WatchChanges: watch,
	})
	require.NoError(t, err)
	return s
}

func TestFSStore(t *testing.T) {
	suite := &storetest.StoreTestSuite{
		NewStore: func(t *testing.T) store.Store {
			return newTestStore(t, false)
		},
	}
	suite.Run(t)
}

func TestFSStoreWithWatcher(t *testing.T) {
	suite := &storetest.StoreTestSuite{
		NewStore: func(t *testing.T) store.Store {
			return newTestStore(t, true)
		},
	}
	suite.Run(t)
}

func TestNewFSStoreCreatesDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b", "c")

	s, err := NewFSStore(context.Background(), FSStoreConfig{Path: root})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewFSStoreRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := NewFSStore(context.Background(), FSStoreConfig{Path: path})
	assert.Error(t, err)
}

func TestNewFSStoreRequiresPath(t *testing.T) {
	_, err := NewFSStore(context.Background(), FSStoreConfig{})
	assert.Error(t, err)
}

func TestFSStoreListSkipsForeignEntries(t *testing.T) {
	s := newTestStore(t, false)
	defer func() { _ = s.Close() }()

	require.NoError(t, os.Mkdir(filepath.Join(s.Root(), "subdir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), store.TempPrefix+"123"), []byte("partial"), 0o644))
	storetest.WriteFile(t, s, "visible", store.ModeWrite, []byte("x"))

	records, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "visible", records[0].Name)

	ok, err := s.Exists(context.Background(), "subdir")
	require.NoError(t, err)
	assert.False(t, ok, "directories are not files")
}

func TestFSStoreAbortRemovesStagedFile(t *testing.T) {
	s := newTestStore(t, false)
	defer func() { _ = s.Close() }()

	w, err := s.Create(context.Background(), "staged", store.ModeWrite)
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), store.TempPrefix), "leftover %s", e.Name())
	}
}

func TestFSStoreOpenSizeIsFixedAtOpen(t *testing.T) {
	s := newTestStore(t, false)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	storetest.WriteFile(t, s, "grow", store.ModeWrite, []byte("12345"))

	rc, size, err := s.Open(ctx, "grow")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	storetest.WriteFile(t, s, "grow", store.ModeAdd, []byte("678"))

	buf := make([]byte, 64)
	n, _ := rc.Read(buf)
	assert.Equal(t, int64(5), size)
	assert.Equal(t, "12345", string(buf[:n]))
}

func TestFSStoreWatcherSeesExternalChanges(t *testing.T) {
	s := newTestStore(t, true)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	if s.watcher == nil {
		t.Skip("fsnotify not available on this platform")
	}

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Empty(t, records)

	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "dropped-in"), []byte("hello"), 0o644))

	assert.Eventually(t, func() bool {
		records, err := s.List(ctx)
		return err == nil && len(records) == 1 && records[0].Name == "dropped-in"
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(s.Root(), "dropped-in")))

	assert.Eventually(t, func() bool {
		records, err := s.List(ctx)
		return err == nil && len(records) == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestFSStoreCloseIsIdempotent(t *testing.T) {
	s := newTestStore(t, true)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.List(context.Background())
	assert.ErrorIs(t, err, store.ErrClosed)
}
