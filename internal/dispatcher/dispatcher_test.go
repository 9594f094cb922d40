package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lakeforge/lakeforge/internal/apperrors"
	"github.com/lakeforge/lakeforge/internal/breaker"
	"github.com/lakeforge/lakeforge/internal/bus"
	"github.com/lakeforge/lakeforge/internal/job"
	"github.com/lakeforge/lakeforge/internal/jobstore"
)

type fakeExecutor struct {
	result  json.RawMessage
	message string
	err     error
}

func (f *fakeExecutor) Run(ctx context.Context, payload json.RawMessage) (json.RawMessage, string, error) {
	return f.result, f.message, f.err
}

func newTestDeps(t *testing.T) (*Dispatcher, *bus.Bus, *jobstore.Store, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := bus.New(rdb, zap.NewNop(), 50*time.Millisecond, time.Minute)
	store := jobstore.New(rdb, zap.NewNop(), time.Hour)
	cb := breaker.New(time.Minute, time.Minute, 0.5, 1000)

	d := New(b, store, cb, zap.NewNop(), 1, 0)
	return d, b, store, rdb
}

func TestHandleCompletesOnSuccess(t *testing.T) {
	d, b, store, _ := newTestDeps(t)
	ctx := context.Background()

	j := job.New(job.KindUpload, json.RawMessage(`{}`), "", "")
	require.NoError(t, store.Create(ctx, j))

	envelope, err := job.Envelope{ID: j.ID, Kind: j.Kind}.Marshal()
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, envelope))
	delivery, err := b.Consume(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, delivery)

	d.Register(job.KindUpload, &fakeExecutor{
		result:  json.RawMessage(`{"rows_appended":5}`),
		message: "Successfully processed 5 rows into table acme.events",
	})

	ok := d.handle(ctx, delivery.Payload, delivery)
	require.True(t, ok)

	got, err := store.Get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusCompleted, got.Status)
	require.Equal(t, "Successfully processed 5 rows into table acme.events", got.Message)
}

func TestHandleRequeuesOnTransientError(t *testing.T) {
	d, b, store, rdb := newTestDeps(t)
	ctx := context.Background()

	j := job.New(job.KindUpload, json.RawMessage(`{}`), "", "")
	require.NoError(t, store.Create(ctx, j))

	envelope, err := job.Envelope{ID: j.ID, Kind: j.Kind}.Marshal()
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, envelope))
	delivery, err := b.Consume(ctx, "worker-1")
	require.NoError(t, err)

	d.Register(job.KindUpload, &fakeExecutor{err: apperrors.WrapTransient(errors.New("boom"))})

	ok := d.handle(ctx, delivery.Payload, delivery)
	require.False(t, ok)

	depth, err := rdb.LLen(ctx, "lakeforge:jobs").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)

	got, err := store.Get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusProcessing, got.Status)
}

func TestHandleFailsOnNonRetryableError(t *testing.T) {
	d, b, store, rdb := newTestDeps(t)
	ctx := context.Background()

	j := job.New(job.KindUpload, json.RawMessage(`{}`), "", "")
	require.NoError(t, store.Create(ctx, j))

	envelope, err := job.Envelope{ID: j.ID, Kind: j.Kind}.Marshal()
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, envelope))
	delivery, err := b.Consume(ctx, "worker-1")
	require.NoError(t, err)

	d.Register(job.KindUpload, &fakeExecutor{err: apperrors.WrapExecution(errors.New("bad data"))})

	ok := d.handle(ctx, delivery.Payload, delivery)
	require.False(t, ok)

	dead, err := rdb.LLen(ctx, "lakeforge:jobs:dead").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), dead)

	got, err := store.Get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusFailed, got.Status)
}

func TestHandleUnknownKindNacksDeadLetter(t *testing.T) {
	d, b, store, rdb := newTestDeps(t)
	ctx := context.Background()

	j := job.New(job.Kind("mystery"), json.RawMessage(`{}`), "", "")
	require.NoError(t, store.Create(ctx, j))

	envelope, err := job.Envelope{ID: j.ID, Kind: j.Kind}.Marshal()
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, envelope))
	delivery, err := b.Consume(ctx, "worker-1")
	require.NoError(t, err)

	ok := d.handle(ctx, delivery.Payload, delivery)
	require.False(t, ok)

	dead, err := rdb.LLen(ctx, "lakeforge:jobs:dead").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), dead)
}
