package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 253)
	}
	return data
}

// pushReader hands out data in randomly sized pushes, like a TCP stream.
type pushReader struct {
	data []byte
	rnd  *rand.Rand
}

func (r *pushReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := 1 + r.rnd.Intn(len(p))
	n = min(n, len(r.data))
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

// ============================================================================
// ChunkSize
// ============================================================================

func TestChunkSize(t *testing.T) {
	tests := []struct {
		total int64
		want  int
	}{
		{0, SmallChunkSize},
		{1, SmallChunkSize},
		{LargeThreshold, SmallChunkSize},
		{LargeThreshold + 1, LargeChunkSize},
		{1 << 40, LargeChunkSize},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChunkSize(tt.total), "total=%d", tt.total)
	}
}

// ============================================================================
// Receive
// ============================================================================

func TestReceiveExact(t *testing.T) {
	for _, size := range []int{0, 1, 1023, 1024, 1025, 70_000} {
		data := pattern(size)

		t.Run("Pushes", func(t *testing.T) {
			src := &pushReader{data: data, rnd: rand.New(rand.NewSource(int64(size)))}
			var dst bytes.Buffer

			n, err := ReceiveExact(context.Background(), src, &dst, int64(size))
			require.NoError(t, err)
			assert.Equal(t, int64(size), n)
			assert.Equal(t, data, dst.Bytes())
		})

		t.Run("OneByte", func(t *testing.T) {
			var dst bytes.Buffer
			n, err := ReceiveExact(context.Background(), iotest.OneByteReader(bytes.NewReader(data)), &dst, int64(size))
			require.NoError(t, err)
			assert.Equal(t, int64(size), n)
			assert.Equal(t, data, dst.Bytes())
		})
	}
}

func TestReceiveLargeBody(t *testing.T) {
	size := LargeThreshold + 1
	data := pattern(size)
	var dst bytes.Buffer

	n, err := ReceiveExact(context.Background(), bytes.NewReader(data), &dst, int64(size))
	require.NoError(t, err)
	assert.Equal(t, int64(size), n)
	assert.True(t, bytes.Equal(data, dst.Bytes()))
}

func TestReceiveDoesNotOverread(t *testing.T) {
	src := bytes.NewReader(append(pattern(1500), []byte("NEXT HEADER")...))
	var dst bytes.Buffer

	_, err := ReceiveExact(context.Background(), src, &dst, 1500)
	require.NoError(t, err)

	rest, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, "NEXT HEADER", string(rest))
}

func TestReceiveIncomplete(t *testing.T) {
	var dst bytes.Buffer

	n, err := ReceiveExact(context.Background(), bytes.NewReader(pattern(700)), &dst, 5000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncompleteTransfer))
	assert.Equal(t, int64(700), n)

	var inc *IncompleteError
	require.True(t, errors.As(err, &inc))
	assert.Equal(t, int64(5000), inc.Expected)
	assert.Equal(t, int64(700), inc.Received)
}

func TestReceiveReadError(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := ReceiveExact(context.Background(), iotest.ErrReader(boom), io.Discard, 10)
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrIncompleteTransfer))
}

func TestReceiveWriteError(t *testing.T) {
	_, err := ReceiveExact(context.Background(), bytes.NewReader(pattern(10)), failingWriter{}, 10)
	assert.Error(t, err)
}

func TestReceiveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReceiveExact(ctx, bytes.NewReader(pattern(10)), io.Discard, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

// ============================================================================
// Send
// ============================================================================

func TestSendExact(t *testing.T) {
	for _, size := range []int{0, 1, 1024, 1025, 70_000} {
		data := pattern(size)
		var dst bytes.Buffer

		n, err := SendExact(context.Background(), &dst, iotest.HalfReader(bytes.NewReader(data)), int64(size))
		require.NoError(t, err)
		assert.Equal(t, int64(size), n)
		assert.Equal(t, data, dst.Bytes())
	}
}

func TestSendStopsAtTotal(t *testing.T) {
	var dst bytes.Buffer
	n, err := SendExact(context.Background(), &dst, bytes.NewReader(pattern(3000)), 2000)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), n)
	assert.Equal(t, pattern(2000), dst.Bytes())
}

func TestSendSourceShorter(t *testing.T) {
	var dst bytes.Buffer
	n, err := SendExact(context.Background(), &dst, bytes.NewReader(pattern(100)), 1500)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceShorterThanDeclared))
	assert.Equal(t, int64(100), n)

	var short *SourceShortError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, int64(1500), short.Declared)
}

// ============================================================================
// Job hooks
// ============================================================================

func TestJobProgressAndHooks(t *testing.T) {
	job := NewJob(Upload, 2500)

	var calls []int64
	job.Progress = func(done, total int64) {
		assert.Equal(t, int64(2500), total)
		calls = append(calls, done)
	}
	var chunks int
	job.BeforeChunk = func() error {
		chunks++
		return nil
	}

	_, err := job.Receive(context.Background(), bytes.NewReader(pattern(2500)), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, []int64{1024, 2048, 2500}, calls)
	assert.Equal(t, 3, chunks)
}

func TestJobBeforeChunkError(t *testing.T) {
	job := NewJob(Download, 10)
	stop := errors.New("deadline")
	job.BeforeChunk = func() error { return stop }

	_, err := job.Send(context.Background(), io.Discard, bytes.NewReader(pattern(10)))
	assert.ErrorIs(t, err, stop)
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "upload", Upload.String())
	assert.Equal(t, "download", Download.String())
	assert.Equal(t, "list", Listing.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}
