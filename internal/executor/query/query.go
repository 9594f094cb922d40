// Package query implements the query executor (component H): it parses
// a structured query spec, pushes it down to the catalog as a single
// rendered SQL statement, writes the full result as an s2-compressed
// JSON array of row objects (a row-oriented blob, not a columnar file
// format), and returns a bounded preview inline.
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/s2"

	"github.com/lakeforge/lakeforge/internal/apperrors"
	"github.com/lakeforge/lakeforge/internal/catalog"
	"github.com/lakeforge/lakeforge/internal/job"
	"github.com/lakeforge/lakeforge/internal/obs"
	"github.com/lakeforge/lakeforge/internal/objectstore"
	"github.com/lakeforge/lakeforge/internal/queryspec"
)

// Executor runs query-kind jobs.
type Executor struct {
	cat             *catalog.Catalog
	store           *objectstore.Store
	warehouseBucket string
	previewMaxRows  int
}

func New(cat *catalog.Catalog, store *objectstore.Store, warehouseBucket string, previewMaxRows int) *Executor {
	return &Executor{cat: cat, store: store, warehouseBucket: warehouseBucket, previewMaxRows: previewMaxRows}
}

// Run evaluates the query spec once: filters, then projection/aggregation,
// then ordering, then pagination, all rendered into one SQL statement.
// The spec's encoding field is an opaque passthrough the core never
// interprets; the result blob is always s2-compressed regardless of its
// value, and the field is not echoed back in the result.
func (e *Executor) Run(ctx context.Context, payload json.RawMessage) (json.RawMessage, string, error) {
	var p job.QueryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, "", apperrors.WrapInvalidInput(err)
	}

	spec, err := queryspec.Parse(p.Spec)
	if err != nil {
		return nil, "", err
	}

	from := catalog.QualifiedTable(p.Project, p.Table)
	sql, args, err := queryspec.Render(spec, from)
	if err != nil {
		return nil, "", err
	}

	rs, err := e.cat.Query(ctx, sql, args...)
	if err != nil {
		return nil, "", err
	}

	rowObjects := toRowObjects(rs)
	truncated := false
	preview := rowObjects
	if len(preview) > e.previewMaxRows {
		preview = preview[:e.previewMaxRows]
		truncated = true
		obs.PreviewRowsTruncated.Add(float64(len(rowObjects) - e.previewMaxRows))
	}

	full, err := json.Marshal(rowObjects)
	if err != nil {
		return nil, "", apperrors.WrapExecution(err)
	}
	compressed := s2.Encode(nil, full)

	resultPath := objectstore.WarehouseQueryResultKey(p.Project, time.Now(), "s2")
	if err := e.store.Put(ctx, e.warehouseBucket, resultPath, bytes.NewReader(compressed), "application/octet-stream"); err != nil {
		return nil, "", err
	}

	result := struct {
		job.QueryResult
		Preview []map[string]any `json:"preview"`
	}{
		QueryResult: job.QueryResult{
			ResultPath:    resultPath,
			RowCount:      int64(len(rowObjects)),
			Truncated:     truncated,
			FileSizeBytes: int64(len(compressed)),
		},
		Preview: preview,
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, "", apperrors.WrapExecution(err)
	}

	message := fmt.Sprintf("Query completed: %d rows, result stored at %s", len(rowObjects), resultPath)
	return out, message, nil
}

func toRowObjects(rs catalog.ResultSet) []map[string]any {
	out := make([]map[string]any, len(rs.Rows))
	for i, row := range rs.Rows {
		obj := make(map[string]any, len(rs.Columns))
		for j, col := range rs.Columns {
			obj[col] = row[j]
		}
		out[i] = obj
	}
	return out
}
