package csvinfer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lakeforge/lakeforge/internal/job"
)

func TestReadInfersTypes(t *testing.T) {
	data := "name,amount,active\nalice,10,true\nbob,20.5,false\n"
	table, err := Read(strings.NewReader(data))
	require.NoError(t, err)

	require.Equal(t, "name", table.Columns[0].Name)
	require.Equal(t, job.ColumnString, table.Columns[0].Type)
	require.Equal(t, job.ColumnFloating, table.Columns[1].Type) // widened from int+float
	require.Equal(t, job.ColumnBoolean, table.Columns[2].Type)
	require.Len(t, table.Rows, 2)
}

func TestReadNullable(t *testing.T) {
	data := "a,b\n1,\n2,x\n"
	table, err := Read(strings.NewReader(data))
	require.NoError(t, err)
	require.True(t, table.Columns[1].Nullable)
}

func TestReadNoHeader(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	require.Error(t, err)
}

func TestReadRaggedRow(t *testing.T) {
	data := "a,b\n1,2,3\n"
	_, err := Read(strings.NewReader(data))
	require.Error(t, err)
}
