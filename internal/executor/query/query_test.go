package query

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lakeforge/lakeforge/internal/apperrors"
	"github.com/lakeforge/lakeforge/internal/catalog"
)

func TestRunRejectsInvalidPayload(t *testing.T) {
	e := &Executor{previewMaxRows: 10}
	_, _, err := e.Run(context.Background(), json.RawMessage(`{`))
	require.Error(t, err)
	require.True(t, apperrors.IsInvalidInput(err))
}

func TestToRowObjects(t *testing.T) {
	rs := catalog.ResultSet{
		Columns: []string{"id", "amount"},
		Rows: [][]any{
			{int64(1), 9.5},
			{int64(2), 3.0},
		},
	}

	out := toRowObjects(rs)
	require.Len(t, out, 2)
	require.Equal(t, int64(1), out[0]["id"])
	require.Equal(t, 9.5, out[0]["amount"])
	require.Equal(t, int64(2), out[1]["id"])
}
