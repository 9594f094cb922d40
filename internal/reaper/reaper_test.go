package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lakeforge/lakeforge/internal/bus"
)

func TestScanOnceRequeuesAbandonedProcessingList(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	b := bus.New(rdb, zap.NewNop(), 50*time.Millisecond, time.Minute)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "orphaned"))
	d, err := b.Consume(ctx, "dead-worker")
	require.NoError(t, err)
	require.NotNil(t, d)

	// Simulate a crashed worker: its heartbeat key has expired.
	require.NoError(t, rdb.Del(ctx, bus.HeartbeatKey("dead-worker")).Err())

	r := New(rdb, b, zap.NewNop())
	r.scanOnce(ctx)

	depth, err := rdb.LLen(ctx, "lakeforge:jobs").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)

	inProc, err := rdb.LLen(ctx, bus.ProcessingKey("dead-worker")).Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), inProc)
}

func TestScanOnceSkipsLiveWorker(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	b := bus.New(rdb, zap.NewNop(), 50*time.Millisecond, time.Minute)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "still-running"))
	_, err = b.Consume(ctx, "live-worker")
	require.NoError(t, err)

	r := New(rdb, b, zap.NewNop())
	r.scanOnce(ctx)

	depth, err := rdb.LLen(ctx, "lakeforge:jobs").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), depth)

	inProc, err := rdb.LLen(ctx, bus.ProcessingKey("live-worker")).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), inProc)
}
