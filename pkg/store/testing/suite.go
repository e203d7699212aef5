package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/granddizzy/ItismAsyncio/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite checks the store.Store contract. It tests behavior, not
// implementation details, so every backend runs the same suite.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &storetest.StoreTestSuite{
//	        NewStore: func(t *testing.T) store.Store {
//	            return mystore.New(t.TempDir())
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore returns a fresh, empty store for each test. The suite closes it.
	NewStore func(t *testing.T) store.Store

	// SerializesWriters marks stores whose Create blocks while another
	// writer holds the name. Tests keeping two writers open on one name
	// are skipped for them.
	SerializesWriters bool
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Basic", suite.RunBasicTests)
	t.Run("Write", suite.RunWriteTests)
	t.Run("Delete", suite.RunDeleteTests)
	t.Run("List", suite.RunListTests)
	t.Run("Names", suite.RunNameTests)
	t.Run("Concurrency", suite.RunConcurrencyTests)
}

func (suite *StoreTestSuite) newStore(t *testing.T) store.Store {
	t.Helper()
	s := suite.NewStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testContext() context.Context {
	return context.Background()
}

// ============================================================================
// Basic
// ============================================================================

func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		s := suite.newStore(t)
		ctx := testContext()

		ok, err := s.Exists(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.Stat(ctx, "missing")
		assert.True(t, errors.Is(err, store.ErrNotFound))

		_, _, err = s.Open(ctx, "missing")
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("RoundTripSizes", func(t *testing.T) {
		s := suite.newStore(t)
		ctx := testContext()

		for _, size := range []int{0, 1, 1023, 1024, 1025, 70_000} {
			name := fmt.Sprintf("file-%d", size)
			data := Pattern(size)

			WriteFile(t, s, name, store.ModeWrite, data)

			ok, err := s.Exists(ctx, name)
			require.NoError(t, err)
			assert.True(t, ok)

			rec, err := s.Stat(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, name, rec.Name)
			assert.Equal(t, int64(size), rec.Size)
			assert.False(t, rec.ModTime.IsZero())

			assert.Equal(t, data, ReadFile(t, s, name))
		}
	})

	t.Run("OpenReportsSize", func(t *testing.T) {
		s := suite.newStore(t)
		WriteFile(t, s, "sized", store.ModeWrite, []byte("hello"))

		rc, size, err := s.Open(testContext(), "sized")
		require.NoError(t, err)
		defer func() { _ = rc.Close() }()
		assert.Equal(t, int64(5), size)
	})
}

// ============================================================================
// Write
// ============================================================================

func (suite *StoreTestSuite) RunWriteTests(t *testing.T) {
	t.Run("WriteOverwrites", func(t *testing.T) {
		s := suite.newStore(t)
		WriteFile(t, s, "doc", store.ModeWrite, []byte("first version"))
		WriteFile(t, s, "doc", store.ModeWrite, []byte("second"))
		assert.Equal(t, []byte("second"), ReadFile(t, s, "doc"))
	})

	t.Run("AddAppendsToExisting", func(t *testing.T) {
		s := suite.newStore(t)
		WriteFile(t, s, "log", store.ModeWrite, []byte("line1\n"))

		w, err := s.Create(testContext(), "log", store.ModeAdd)
		require.NoError(t, err)
		assert.Equal(t, store.ModeAdd, w.Mode())
		_, err = w.Write([]byte("line2\n"))
		require.NoError(t, err)
		require.NoError(t, w.Commit())

		assert.Equal(t, []byte("line1\nline2\n"), ReadFile(t, s, "log"))
	})

	t.Run("AddOnMissingCreates", func(t *testing.T) {
		s := suite.newStore(t)

		w, err := s.Create(testContext(), "fresh", store.ModeAdd)
		require.NoError(t, err)
		assert.Equal(t, store.ModeWrite, w.Mode())
		_, err = w.Write([]byte("only"))
		require.NoError(t, err)
		require.NoError(t, w.Commit())

		assert.Equal(t, []byte("only"), ReadFile(t, s, "fresh"))
	})

	t.Run("ChunkedWrites", func(t *testing.T) {
		s := suite.newStore(t)
		data := Pattern(200_000)

		w, err := s.Create(testContext(), "chunked", store.ModeWrite)
		require.NoError(t, err)
		for off := 0; off < len(data); off += 1024 {
			end := min(off+1024, len(data))
			_, err := w.Write(data[off:end])
			require.NoError(t, err)
		}
		require.NoError(t, w.Commit())

		assert.Equal(t, data, ReadFile(t, s, "chunked"))
	})

	t.Run("AbortNewFileLeavesNothing", func(t *testing.T) {
		s := suite.newStore(t)

		w, err := s.Create(testContext(), "aborted", store.ModeWrite)
		require.NoError(t, err)
		_, err = w.Write([]byte("partial"))
		require.NoError(t, err)
		require.NoError(t, w.Abort())

		ok, err := s.Exists(testContext(), "aborted")
		require.NoError(t, err)
		assert.False(t, ok)

		records, err := s.List(testContext())
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("AbortKeepsPreviousContent", func(t *testing.T) {
		for _, mode := range []store.WriteMode{store.ModeWrite, store.ModeAdd} {
			t.Run(mode.String(), func(t *testing.T) {
				s := suite.newStore(t)
				WriteFile(t, s, "keep", store.ModeWrite, []byte("original"))

				w, err := s.Create(testContext(), "keep", mode)
				require.NoError(t, err)
				_, err = w.Write([]byte("garbage that never lands"))
				require.NoError(t, err)
				require.NoError(t, w.Abort())

				assert.Equal(t, []byte("original"), ReadFile(t, s, "keep"))
			})
		}
	})

	t.Run("UncommittedDataInvisible", func(t *testing.T) {
		s := suite.newStore(t)

		w, err := s.Create(testContext(), "pending", store.ModeWrite)
		require.NoError(t, err)
		_, err = w.Write([]byte("not yet"))
		require.NoError(t, err)

		ok, err := s.Exists(testContext(), "pending")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, w.Commit())
		ok, err = s.Exists(testContext(), "pending")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("WriterFinishesOnce", func(t *testing.T) {
		s := suite.newStore(t)

		w, err := s.Create(testContext(), "once", store.ModeWrite)
		require.NoError(t, err)
		require.NoError(t, w.Commit())

		assert.True(t, errors.Is(w.Commit(), store.ErrWriterDone))
		assert.True(t, errors.Is(w.Abort(), store.ErrWriterDone))
		_, err = w.Write([]byte("late"))
		assert.True(t, errors.Is(err, store.ErrWriterDone))
	})
}

// ============================================================================
// Delete
// ============================================================================

func (suite *StoreTestSuite) RunDeleteTests(t *testing.T) {
	t.Run("DeleteMissing", func(t *testing.T) {
		s := suite.newStore(t)
		err := s.Delete(testContext(), "ghost")
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("DeleteExisting", func(t *testing.T) {
		s := suite.newStore(t)
		WriteFile(t, s, "victim", store.ModeWrite, []byte("bye"))

		require.NoError(t, s.Delete(testContext(), "victim"))

		ok, err := s.Exists(testContext(), "victim")
		require.NoError(t, err)
		assert.False(t, ok)

		err = s.Delete(testContext(), "victim")
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})
}

// ============================================================================
// List
// ============================================================================

func (suite *StoreTestSuite) RunListTests(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		s := suite.newStore(t)
		records, err := s.List(testContext())
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("SortedWithSizes", func(t *testing.T) {
		s := suite.newStore(t)
		WriteFile(t, s, "charlie", store.ModeWrite, Pattern(3))
		WriteFile(t, s, "alpha", store.ModeWrite, Pattern(1))
		WriteFile(t, s, "bravo", store.ModeWrite, Pattern(2048))

		records, err := s.List(testContext())
		require.NoError(t, err)
		require.Len(t, records, 3)

		assert.Equal(t, "alpha", records[0].Name)
		assert.Equal(t, int64(1), records[0].Size)
		assert.Equal(t, "bravo", records[1].Name)
		assert.Equal(t, int64(2048), records[1].Size)
		assert.Equal(t, "charlie", records[2].Name)
		assert.Equal(t, int64(3), records[2].Size)
	})

	t.Run("ReflectsMutations", func(t *testing.T) {
		s := suite.newStore(t)
		WriteFile(t, s, "a", store.ModeWrite, Pattern(10))

		records, err := s.List(testContext())
		require.NoError(t, err)
		require.Len(t, records, 1)

		WriteFile(t, s, "a", store.ModeAdd, Pattern(5))
		WriteFile(t, s, "b", store.ModeWrite, Pattern(1))

		records, err = s.List(testContext())
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, int64(15), records[0].Size)

		require.NoError(t, s.Delete(testContext(), "a"))
		records, err = s.List(testContext())
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "b", records[0].Name)
	})
}

// ============================================================================
// Names
// ============================================================================

func (suite *StoreTestSuite) RunNameTests(t *testing.T) {
	s := suite.newStore(t)
	ctx := testContext()

	for _, name := range []string{"", "a/b", `a\b`, "c:d", `q"`, "star*", "what?", "<x>", "pi|pe", "..", store.TempPrefix + "x"} {
		t.Run(fmt.Sprintf("%q", name), func(t *testing.T) {
			_, err := s.Exists(ctx, name)
			assert.True(t, errors.Is(err, store.ErrInvalidName), "Exists")

			_, err = s.Create(ctx, name, store.ModeWrite)
			assert.True(t, errors.Is(err, store.ErrInvalidName), "Create")

			_, _, err = s.Open(ctx, name)
			assert.True(t, errors.Is(err, store.ErrInvalidName), "Open")

			err = s.Delete(ctx, name)
			assert.True(t, errors.Is(err, store.ErrInvalidName), "Delete")
		})
	}

	t.Run("UnicodeAndSpaces", func(t *testing.T) {
		WriteFile(t, s, "квартальный отчёт 2024.txt", store.ModeWrite, []byte("ok"))
		assert.Equal(t, []byte("ok"), ReadFile(t, s, "квартальный отчёт 2024.txt"))
	})
}

// ============================================================================
// Concurrency
// ============================================================================

func (suite *StoreTestSuite) RunConcurrencyTests(t *testing.T) {
	t.Run("DistinctNames", suite.testDistinctNameWriters)
	t.Run("OverlappingAppends", suite.testOverlappingAppends)
}

func (suite *StoreTestSuite) testDistinctNameWriters(t *testing.T) {
	s := suite.newStore(t)
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("worker-%d", i)
			w, err := s.Create(testContext(), name, store.ModeWrite)
			if err != nil {
				errs <- err
				return
			}
			if _, err := w.Write(bytes.Repeat([]byte{byte(i)}, 4096)); err != nil {
				errs <- err
				return
			}
			errs <- w.Commit()
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	records, err := s.List(testContext())
	require.NoError(t, err)
	assert.Len(t, records, workers)
	for i := 0; i < workers; i++ {
		data := ReadFile(t, s, fmt.Sprintf("worker-%d", i))
		assert.Equal(t, bytes.Repeat([]byte{byte(i)}, 4096), data)
	}
}

// testOverlappingAppends opens two appenders on one name before either
// commits, as happens without a locking wrapper. Whatever a backend decides
// about the first commit, the file must stay readable, keep its original
// prefix, hold only whole appended blocks, and include the last commit.
func (suite *StoreTestSuite) testOverlappingAppends(t *testing.T) {
	if suite.SerializesWriters {
		t.Skip("store serializes writers of one name")
	}
	s := suite.newStore(t)
	ctx := testContext()
	WriteFile(t, s, "shared", store.ModeWrite, []byte("base"))

	first, err := s.Create(ctx, "shared", store.ModeAdd)
	require.NoError(t, err)
	second, err := s.Create(ctx, "shared", store.ModeAdd)
	require.NoError(t, err)

	_, err = first.Write([]byte("AAAA"))
	require.NoError(t, err)
	firstErr := first.Commit()

	_, err = second.Write([]byte("BBBB"))
	require.NoError(t, err)
	secondErr := second.Commit()

	data := ReadFile(t, s, "shared")
	require.True(t, bytes.HasPrefix(data, []byte("base")), "prefix lost: %q", data)
	tail := data[len("base"):]
	require.Zero(t, len(tail)%4, "partial block in %q", data)
	for off := 0; off < len(tail); off += 4 {
		block := string(tail[off : off+4])
		assert.Contains(t, []string{"AAAA", "BBBB"}, block)
	}
	if firstErr != nil && secondErr != nil {
		t.Fatalf("both appends failed: %v / %v", firstErr, secondErr)
	}
	if secondErr == nil {
		assert.True(t, bytes.HasSuffix(data, []byte("BBBB")), "last append missing: %q", data)
	}

	rec, err := s.Stat(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), rec.Size)
}

// ============================================================================
// Helpers
// ============================================================================

// WriteFile creates name with data and commits it.
func WriteFile(t *testing.T, s store.Store, name string, mode store.WriteMode, data []byte) {
	t.Helper()
	w, err := s.Create(testContext(), name, mode)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Commit())
}

// ReadFile returns the full content of name.
func ReadFile(t *testing.T, s store.Store, name string) []byte {
	t.Helper()
	rc, size, err := s.Open(testContext(), name)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, size, int64(len(data)))
	return data
}

// Pattern returns n bytes of a repeating, position dependent pattern.
func Pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}
