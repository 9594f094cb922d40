package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lakeforge/lakeforge/internal/job"
)

func TestSanitizeIdent(t *testing.T) {
	require.Equal(t, "acme_events", sanitizeIdent("acme-events"))
	require.Equal(t, "a_b_c", sanitizeIdent("a;b c"))
	require.Equal(t, "events2", sanitizeIdent("events2"))
}

func TestQualifiedTable(t *testing.T) {
	require.Equal(t, "acme.events", qualifiedTable("acme", "events"))
	require.Equal(t, "my_proj.my_table", qualifiedTable("my-proj", "my table"))
}

func TestColumnDDL(t *testing.T) {
	require.Equal(t, "amount Float64", columnDDL(job.ColumnSchema{Name: "amount", Type: job.ColumnFloating}))
	require.Equal(t, "note Nullable(String)", columnDDL(job.ColumnSchema{Name: "note", Type: job.ColumnString, Nullable: true}))
	require.Equal(t, "active UInt8", columnDDL(job.ColumnSchema{Name: "active", Type: job.ColumnBoolean}))
}

func TestSchemaCompatible(t *testing.T) {
	current := []job.ColumnSchema{
		{Name: "id", Type: job.ColumnInteger},
		{Name: "amount", Type: job.ColumnFloating},
	}

	require.True(t, schemaCompatible(current, []job.ColumnSchema{{Name: "id", Type: job.ColumnInteger}}))
	require.False(t, schemaCompatible(current, []job.ColumnSchema{{Name: "id", Type: job.ColumnString}}))
	require.False(t, schemaCompatible(current, []job.ColumnSchema{{Name: "missing", Type: job.ColumnInteger}}))
}

func TestColumnTypeFromClickHouse(t *testing.T) {
	require.Equal(t, job.ColumnInteger, columnTypeFromClickHouse("Int64"))
	require.Equal(t, job.ColumnBoolean, columnTypeFromClickHouse("UInt8"))
	require.Equal(t, job.ColumnFloating, columnTypeFromClickHouse("Nullable(Float64)"))
	require.Equal(t, job.ColumnDate, columnTypeFromClickHouse("DateTime64(3)"))
	require.Equal(t, job.ColumnString, columnTypeFromClickHouse("String"))
}
