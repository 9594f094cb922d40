package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBus(t *testing.T) (*Bus, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, zap.NewNop(), 50*time.Millisecond, time.Minute), rdb
}

func TestPublishConsumeAck(t *testing.T) {
	b, rdb := newTestBus(t)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "msg-1"))

	d, err := b.Consume(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Equal(t, "msg-1", d.Payload)

	n, err := rdb.LLen(ctx, ProcessingKey("worker-a")).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	ttl, err := rdb.TTL(ctx, HeartbeatKey("worker-a")).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))

	require.NoError(t, b.Ack(ctx, d))

	n, err = rdb.LLen(ctx, ProcessingKey("worker-a")).Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	exists, err := rdb.Exists(ctx, HeartbeatKey("worker-a")).Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), exists)
}

func TestConsumeTimeoutReturnsNil(t *testing.T) {
	b, _ := newTestBus(t)
	d, err := b.Consume(context.Background(), "worker-a")
	require.NoError(t, err)
	require.Nil(t, d)
}

func TestNackRequeue(t *testing.T) {
	b, rdb := newTestBus(t)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "msg-1"))
	d, err := b.Consume(ctx, "worker-a")
	require.NoError(t, err)

	require.NoError(t, b.Nack(ctx, d, true))

	depth, err := rdb.LLen(ctx, queueKey).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)

	inProc, err := rdb.LLen(ctx, ProcessingKey("worker-a")).Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), inProc)
}

func TestNackDeadLetter(t *testing.T) {
	b, rdb := newTestBus(t)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "msg-1"))
	d, err := b.Consume(ctx, "worker-a")
	require.NoError(t, err)

	require.NoError(t, b.Nack(ctx, d, false))

	dead, err := rdb.LLen(ctx, deadLetterKey).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), dead)
}

func TestStats(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "a"))
	require.NoError(t, b.Publish(ctx, "b"))
	_, err := b.Consume(ctx, "worker-a")
	require.NoError(t, err)

	s, err := b.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), s.QueueDepth)
	require.Equal(t, int64(1), s.InFlight)
}

func TestWorkerIDFromProcessingKey(t *testing.T) {
	id, ok := WorkerIDFromProcessingKey("lakeforge:worker:host-42:processing")
	require.True(t, ok)
	require.Equal(t, "host-42", id)

	_, ok = WorkerIDFromProcessingKey("not-a-processing-key")
	require.False(t, ok)
}
