package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lakeforge/lakeforge/internal/apperrors"
	"github.com/lakeforge/lakeforge/internal/job"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, zap.NewNop(), time.Hour)
}

func TestCreateGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	j := job.New(job.KindUpload, []byte(`{}`), "", "")
	require.NoError(t, s.Create(ctx, j))

	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusQueued, got.Status)
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Get(ctx, "nope")
	require.True(t, apperrors.IsNotFound(err))
}

func TestStateMachine(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	j := job.New(job.KindQuery, []byte(`{}`), "", "")
	require.NoError(t, s.Create(ctx, j))

	require.NoError(t, s.MarkProcessing(ctx, j.ID))
	require.NoError(t, s.Complete(ctx, j.ID, []byte(`{"ok":true}`), "Successfully processed 10 rows into table acme.events"))

	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusCompleted, got.Status)
	require.Equal(t, "Successfully processed 10 rows into table acme.events", got.Message)

	err = s.MarkProcessing(ctx, j.ID)
	require.True(t, apperrors.IsExecution(err))
}
