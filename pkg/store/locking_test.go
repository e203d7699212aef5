package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/granddizzy/ItismAsyncio/pkg/store"
	"github.com/granddizzy/ItismAsyncio/pkg/store/memory"
	storetest "github.com/granddizzy/ItismAsyncio/pkg/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockingStoreContract(t *testing.T) {
	suite := &storetest.StoreTestSuite{
		NewStore: func(t *testing.T) store.Store {
			return store.NewLocking(memory.NewMemoryStore(memory.MemoryStoreConfig{}))
		},
		SerializesWriters: true,
	}
	suite.Run(t)
}

func TestLockingStoreSerializesSameName(t *testing.T) {
	s := store.NewLocking(memory.NewMemoryStore(memory.MemoryStoreConfig{}))
	ctx := context.Background()

	first, err := s.Create(ctx, "shared", store.ModeWrite)
	require.NoError(t, err)

	var secondStarted atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		w, err := s.Create(ctx, "shared", store.ModeAdd)
		if err != nil {
			return
		}
		secondStarted.Store(true)
		_, _ = w.Write([]byte("B"))
		_ = w.Commit()
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, secondStarted.Load(), "second writer must wait for the first")

	_, err = first.Write([]byte("A"))
	require.NoError(t, err)
	require.NoError(t, first.Commit())

	<-done
	assert.True(t, secondStarted.Load())
	// the second writer resolved ADD after the first committed
	assert.Equal(t, []byte("AB"), storetest.ReadFile(t, s, "shared"))
}

func TestLockingStoreDifferentNamesDoNotBlock(t *testing.T) {
	s := store.NewLocking(memory.NewMemoryStore(memory.MemoryStoreConfig{}))
	ctx := context.Background()

	a, err := s.Create(ctx, "a", store.ModeWrite)
	require.NoError(t, err)

	ctxB, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	b, err := s.Create(ctxB, "b", store.ModeWrite)
	require.NoError(t, err)

	require.NoError(t, b.Commit())
	require.NoError(t, a.Commit())
}

func TestLockingStoreAcquireHonorsContext(t *testing.T) {
	s := store.NewLocking(memory.NewMemoryStore(memory.MemoryStoreConfig{}))

	held, err := s.Create(context.Background(), "busy", store.ModeWrite)
	require.NoError(t, err)
	defer func() { _ = held.Abort() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = s.Create(ctx, "busy", store.ModeWrite)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = s.Delete(ctx, "busy")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLockingStoreManyWritersAppend(t *testing.T) {
	s := store.NewLocking(memory.NewMemoryStore(memory.MemoryStoreConfig{}))
	ctx := context.Background()
	const writers = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := s.Create(ctx, "counter", store.ModeAdd)
			if !assert.NoError(t, err) {
				return
			}
			_, _ = w.Write([]byte("x"))
			assert.NoError(t, w.Commit())
		}()
	}
	wg.Wait()

	assert.Len(t, storetest.ReadFile(t, s, "counter"), writers)
}
