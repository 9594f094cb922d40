package coordinator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lakeforge/lakeforge/internal/job"
)

func TestJobViewFlattensResult(t *testing.T) {
	result, _ := json.Marshal(map[string]any{"rows_appended": 10})
	j := job.Job{
		ID:        "abc",
		Kind:      job.KindUpload,
		Status:    job.StatusCompleted,
		Result:    result,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
	}

	view := jobView(j)
	require.Equal(t, "abc", view["id"])
	require.Equal(t, job.StatusCompleted, view["status"])
	require.Equal(t, float64(10), view["rows_appended"])
	require.Equal(t, "2026-01-02T03:04:05", view["created_at"])
}

func TestJobViewOmitsEmptyMessage(t *testing.T) {
	j := job.Job{ID: "x", Status: job.StatusQueued}
	view := jobView(j)
	_, ok := view["message"]
	require.False(t, ok)
}
