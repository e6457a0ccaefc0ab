package event

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) (Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := zaptest.NewLogger(t)
	return NewService(NewRepository(client, time.Hour, logger), logger), mr
}

func TestMarkAndCheck(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	processed, err := svc.IsEventProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, svc.MarkEventAsProcessed(ctx, "evt_1"))
	require.NoError(t, svc.MarkEventAsProcessed(ctx, "evt_1"))

	processed, err = svc.IsEventProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, processed)

	mr.FastForward(2 * time.Hour)
	processed, err = svc.IsEventProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestEmptyEventID(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.MarkEventAsProcessed(ctx, ""))
	processed, err := svc.IsEventProcessed(ctx, "")
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Empty(t, mr.Keys())
}

func TestRedisDown(t *testing.T) {
	svc, mr := newTestService(t)
	mr.Close()

	_, err := svc.IsEventProcessed(context.Background(), "evt_1")
	assert.Error(t, err)
}
