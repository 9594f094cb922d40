package ndjson

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lakeforge/lakeforge/internal/job"
)

func TestReadInfersColumnsAndWidensTypes(t *testing.T) {
	input := strings.NewReader(
		"{\"id\": 1, \"active\": true}\n" +
			"{\"id\": 2, \"active\": false, \"note\": \"ok\"}\n",
	)

	table, err := Read(input)
	require.NoError(t, err)
	require.Len(t, table.Columns, 3)
	require.Len(t, table.Rows, 2)

	byName := map[string]job.ColumnSchema{}
	for _, c := range table.Columns {
		byName[c.Name] = c
	}
	require.Equal(t, job.ColumnFloating, byName["id"].Type)
	require.Equal(t, job.ColumnBoolean, byName["active"].Type)
	require.True(t, byName["note"].Nullable)
}

func TestReadRejectsMalformedLine(t *testing.T) {
	_, err := Read(strings.NewReader("not json"))
	require.Error(t, err)
}

func TestReadRejectsEmptyInput(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	require.Error(t, err)
}
