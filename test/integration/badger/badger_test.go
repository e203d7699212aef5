//go:build integration

package badger_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/granddizzy/ItismAsyncio/pkg/store"
	"github.com/granddizzy/ItismAsyncio/pkg/store/badger"
	storetest "github.com/granddizzy/ItismAsyncio/pkg/store/testing"
)

// TestBadgerStore_Integration runs the on-disk BadgerDB store.
//
// Prerequisites:
//   - None (BadgerDB is embedded, no external services needed)
//   - Run with: go test -tags=integration ./test/integration/badger/...
//
// These tests verify that the BadgerDB store:
//   - Passes the store suite on disk
//   - Persists files across restarts
func TestBadgerStore_Integration(t *testing.T) {
	ctx := context.Background()

	t.Run("Suite", func(t *testing.T) {
		suite := &storetest.StoreTestSuite{
			NewStore: func(t *testing.T) store.Store {
				st, err := badger.NewBadgerStore(ctx, badger.BadgerStoreConfig{
					DBPath: filepath.Join(t.TempDir(), "files.db"),
				})
				require.NoError(t, err)
				return st
			},
		}
		suite.Run(t)
	})

	t.Run("PersistsAcrossRestarts", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "files.db")
		large := storetest.Pattern(3*badger.DefaultChunkSize + 17)

		st, err := badger.NewBadgerStore(ctx, badger.BadgerStoreConfig{DBPath: dbPath})
		require.NoError(t, err)
		storetest.WriteFile(t, st, "large.bin", store.ModeWrite, large)
		storetest.WriteFile(t, st, "notes.txt", store.ModeWrite, []byte("line1\n"))
		storetest.WriteFile(t, st, "notes.txt", store.ModeAdd, []byte("line2\n"))
		require.NoError(t, st.Close())

		st, err = badger.NewBadgerStore(ctx, badger.BadgerStoreConfig{DBPath: dbPath})
		require.NoError(t, err)
		defer st.Close()

		records, err := st.List(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "large.bin", records[0].Name)
		assert.Equal(t, int64(len(large)), records[0].Size)

		assert.Equal(t, large, storetest.ReadFile(t, st, "large.bin"))
		assert.Equal(t, []byte("line1\nline2\n"), storetest.ReadFile(t, st, "notes.txt"))
	})
}
