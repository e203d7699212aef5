package e2e

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/granddizzy/ItismAsyncio/internal/protocol"
	storetest "github.com/granddizzy/ItismAsyncio/pkg/store/testing"
)

// TestConcurrentClients runs several clients against distinct names at once
func TestConcurrentClients(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		ctx := context.Background()
		const clients = 8

		sources := make([]string, clients)
		for i := range sources {
			sources[i] = tc.LocalPath(fmt.Sprintf("src-%d", i))
			writeLocal(t, sources[i], storetest.Pattern(2000+i))
		}

		var wg sync.WaitGroup
		for i := 0; i < clients; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c := tc.NewClient()
				name := fmt.Sprintf("file-%d", i)
				assert.NoError(t, c.PutFile(ctx, name, sources[i], protocol.ModeWrite))
				assert.NoError(t, c.GetFile(ctx, name, sources[i]+".out", protocol.ModeWrite))
			}(i)
		}
		wg.Wait()

		for i := range sources {
			got, err := os.ReadFile(sources[i] + ".out")
			require.NoError(t, err)
			assert.Equal(t, storetest.Pattern(2000+i), got)
		}

		records, err := tc.NewClient().List(ctx)
		require.NoError(t, err)
		assert.Len(t, records, clients)
	})
}

// TestConcurrentAppends has several clients append to one name. With
// per-name locking no append is lost or interleaved.
func TestConcurrentAppends(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		if !tc.Config.Locking {
			t.Skip("appends to one name are only serialized with locking")
		}
		ctx := context.Background()
		const clients = 6
		const blockSize = 3000

		sources := make([]string, clients)
		for i := range sources {
			sources[i] = tc.LocalPath(fmt.Sprintf("block-%d", i))
			writeLocal(t, sources[i], bytes.Repeat([]byte{byte('A' + i)}, blockSize))
		}

		var wg sync.WaitGroup
		for i := 0; i < clients; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c := tc.NewClient()
				assert.NoError(t, c.PutFile(ctx, "shared", sources[i], protocol.ModeAdd))
			}(i)
		}
		wg.Wait()

		dst := tc.LocalPath("shared")
		require.NoError(t, tc.NewClient().GetFile(ctx, "shared", dst, protocol.ModeWrite))
		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		require.Len(t, got, clients*blockSize)

		// Every block must arrive whole
		seen := map[byte]bool{}
		for off := 0; off < len(got); off += blockSize {
			block := got[off : off+blockSize]
			assert.Equal(t, bytes.Repeat(block[:1], blockSize), block, "block at %d is interleaved", off)
			seen[block[0]] = true
		}
		assert.Len(t, seen, clients)
	})
}
