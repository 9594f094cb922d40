package catalog

import (
	"context"
	"fmt"

	"github.com/lakeforge/lakeforge/internal/apperrors"
)

// QualifiedTable exposes the project/table to ClickHouse database/table
// mapping so the query executor can build a FROM clause without
// duplicating the sanitize/namespace rules.
func QualifiedTable(project, table string) string {
	return qualifiedTable(project, table)
}

// ResultSet is a column-name-keyed view over query results, used by the
// query executor to build the preview and the full result blob.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Query runs a fully-rendered, parameterized SQL statement (built by the
// query executor from a structured query spec) and materializes it. The
// catalog never interprets the statement; predicate and projection
// pushdown is the caller's responsibility via the SQL it renders.
func (c *Catalog) Query(ctx context.Context, sql string, args ...any) (ResultSet, error) {
	rows, err := c.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return ResultSet{}, apperrors.WrapExecution(fmt.Errorf("scan query: %w", err))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return ResultSet{}, apperrors.WrapExecution(fmt.Errorf("columns: %w", err))
	}

	rs := ResultSet{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return ResultSet{}, apperrors.WrapExecution(fmt.Errorf("scan row: %w", err))
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return ResultSet{}, apperrors.WrapExecution(fmt.Errorf("row iteration: %w", err))
	}
	return rs, nil
}
