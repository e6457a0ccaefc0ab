package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*SlidingWindow, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewSlidingWindow(client, Config{Limit: limit, Window: window, Prefix: "test:"})
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestSlidingWindowAllowsUpToLimit(t *testing.T) {
	l, clock := newTestLimiter(t, 5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := l.Check(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 4-i, res.Remaining)
		assert.Equal(t, 5, res.Limit)
		*clock = clock.Add(time.Second)
	}

	res, err := l.Check(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 1, 0, 0, time.UTC), res.ResetAt.UTC())

	other, err := l.Check(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestSlidingWindowSlides(t *testing.T) {
	l, clock := newTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Check(ctx, "ip")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := l.Check(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	*clock = clock.Add(61 * time.Second)
	res, err = l.Check(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
}

func TestSlidingWindowRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	l := NewSlidingWindow(client, Config{})
	mr.Close()

	_, err := l.Check(context.Background(), "ip")
	assert.Error(t, err)
}
