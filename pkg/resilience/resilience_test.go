package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("test-dep", 3, time.Minute)
	boom := errors.New("connection refused")

	for i := 0; i < 3; i++ {
		_, err := b.Call(func() (any, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}
	assert.True(t, b.Open())

	// Short-circuited: the probe function never runs.
	called := false
	_, err := b.Call(func() (any, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := NewBreaker("test-dep", 2, 20*time.Millisecond)
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_, _ = b.Call(func() (any, error) { return nil, boom })
	}
	require.True(t, b.Open())

	time.Sleep(30 * time.Millisecond)

	// Cooldown elapsed: one probe is admitted and closes the breaker.
	result, err := b.Call(func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.False(t, b.Open())
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	b := NewBreaker("test-dep", 3, time.Minute)
	boom := errors.New("boom")

	_, _ = b.Call(func() (any, error) { return nil, boom })
	_, _ = b.Call(func() (any, error) { return nil, boom })
	_, _ = b.Call(func() (any, error) { return "ok", nil })
	_, _ = b.Call(func() (any, error) { return nil, boom })
	_, _ = b.Call(func() (any, error) { return nil, boom })

	assert.False(t, b.Open(), "non-consecutive failures must not trip the breaker")
}

func TestDoReturnsTypedResult(t *testing.T) {
	b := NewBreaker("typed", 3, time.Minute)
	value, err := Do(b, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, value)
}

func TestTTLCacheExpiresEntries(t *testing.T) {
	cache := NewTTLCache[string, int](8, 30*time.Millisecond)
	cache.Add("a", 1)

	v, ok := cache.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	time.Sleep(50 * time.Millisecond)
	_, ok = cache.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheEvictsLRU(t *testing.T) {
	cache := NewTTLCache[int, int](2, time.Minute)
	cache.Add(1, 1)
	cache.Add(2, 2)
	cache.Add(3, 3)

	assert.Equal(t, 2, cache.Len())
	_, ok := cache.Get(1)
	assert.False(t, ok, "the oldest entry is evicted at capacity")
}

func TestRetrySucceedsWithinBudget(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), &RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsBudget(t *testing.T) {
	attempts := 0
	boom := errors.New("still broken")
	err := Retry(context.Background(), &RetryConfig{
		MaxAttempts:     2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}, func() error {
		attempts++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, attempts)
}

func TestRetrySingleAttemptMeansNoRetry(t *testing.T) {
	attempts := 0
	_ = Retry(context.Background(), &RetryConfig{
		MaxAttempts:     1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      2.0,
	}, func() error {
		attempts++
		return errors.New("boom")
	})
	assert.Equal(t, 1, attempts)
}

func TestRetryPermanentErrorStopsImmediately(t *testing.T) {
	attempts := 0
	boom := errors.New("bad input")
	err := Retry(context.Background(), &RetryConfig{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      2.0,
	}, func() error {
		attempts++
		return Permanent(boom)
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, &RetryConfig{
		MaxAttempts:     10,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
	}, func() error { return errors.New("transient") })
	require.Error(t, err)
}
