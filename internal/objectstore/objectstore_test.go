package objectstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUploadKey(t *testing.T) {
	require.Equal(t, "uploads/job-1/events.csv", UploadKey("job-1", "events.csv"))
}

func TestWarehouseTableKey(t *testing.T) {
	require.Equal(t, "warehouse/wh/acme/events/", WarehouseTableKey("acme", "events"))
}

func TestWarehouseQueryResultKey(t *testing.T) {
	ts := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	require.Equal(t, "warehouse/wh/acme/queries/query_20260730_120000/result.ndjson.s2",
		WarehouseQueryResultKey("acme", ts, "ndjson.s2"))
}
