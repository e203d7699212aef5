package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		perSecond uint
		burst     uint
		wantBurst int
	}{
		{"standard rate", 100, 200, 200},
		{"burst defaults to rate", 50, 0, 50},
		{"unlimited", 0, 0, unlimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.perSecond, tt.burst)
			require.NotNil(t, limiter.limiter)
			assert.Equal(t, tt.wantBurst, limiter.limiter.Burst())
		})
	}
}

func TestAllow(t *testing.T) {
	limiter := New(10, 10)

	for i := 0; i < 10; i++ {
		require.True(t, limiter.Allow(), "request %d within burst", i)
	}
	assert.False(t, limiter.Allow(), "bucket should be empty")

	// 10/s refills one token every 100ms.
	time.Sleep(110 * time.Millisecond)
	assert.True(t, limiter.Allow())
}

func TestWaitContextCancellation(t *testing.T) {
	limiter := New(1, 1)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx))
}

func TestWaitNAboveBurst(t *testing.T) {
	limiter := New(1000, 100)

	start := time.Now()
	require.NoError(t, limiter.WaitN(context.Background(), 250))
	elapsed := time.Since(start)

	// 100 tokens come from the burst, the other 150 take about 150ms.
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestWaitNCancelled(t *testing.T) {
	limiter := New(10, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, limiter.WaitN(ctx, 50))
}

func TestTokens(t *testing.T) {
	limiter := New(10, 10)
	assert.InDelta(t, 10, limiter.Tokens(), 1)

	for i := 0; i < 5; i++ {
		limiter.Allow()
	}
	assert.InDelta(t, 5, limiter.Tokens(), 1)
}

func TestUnlimitedRate(t *testing.T) {
	limiter := New(0, 0)
	for i := 0; i < 1000; i++ {
		require.True(t, limiter.Allow(), "request %d", i)
	}
	require.NoError(t, limiter.WaitN(context.Background(), 1<<20))
}

func TestKeyed(t *testing.T) {
	k := NewKeyed(1, 1, time.Minute)

	a := k.Get("10.0.0.1")
	assert.Same(t, a, k.Get("10.0.0.1"))
	assert.NotSame(t, a, k.Get("10.0.0.2"))
	assert.Equal(t, 2, k.Len())

	require.True(t, a.Allow())
	assert.False(t, k.Get("10.0.0.1").Allow(), "same key shares the bucket")
	assert.True(t, k.Get("10.0.0.2").Allow())
}

func TestKeyedSweep(t *testing.T) {
	k := NewKeyed(1, 1, time.Minute)
	k.Get("old")
	k.Get("new")

	assert.Equal(t, 0, k.Sweep(time.Now()))
	assert.Equal(t, 2, k.Sweep(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 0, k.Len())

	noTTL := NewKeyed(1, 1, 0)
	noTTL.Get("x")
	assert.Equal(t, 0, noTTL.Sweep(time.Now().Add(time.Hour)))
}

func BenchmarkAllow(b *testing.B) {
	limiter := New(1_000_000, 1_000_000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow()
	}
}
