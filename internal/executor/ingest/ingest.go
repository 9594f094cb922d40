// Package ingest implements the ingest executor (component G): it reads
// an uploaded blob from the object store, infers its schema, and appends
// the decoded rows to the catalog table named by the job payload.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lakeforge/lakeforge/internal/apperrors"
	"github.com/lakeforge/lakeforge/internal/catalog"
	"github.com/lakeforge/lakeforge/internal/csvinfer"
	"github.com/lakeforge/lakeforge/internal/job"
	"github.com/lakeforge/lakeforge/internal/ndjson"
	"github.com/lakeforge/lakeforge/internal/objectstore"
)

// Executor runs upload-kind jobs.
type Executor struct {
	store   *objectstore.Store
	cat     *catalog.Catalog
	bucket  string
}

func New(store *objectstore.Store, cat *catalog.Catalog, uploadsBucket string) *Executor {
	return &Executor{store: store, cat: cat, bucket: uploadsBucket}
}

// Run downloads the upload, infers its schema, appends it to
// (project, table) and returns the upload result. The row count is
// embedded in the terminal message, not just the result payload.
func (e *Executor) Run(ctx context.Context, payload json.RawMessage) (json.RawMessage, string, error) {
	var p job.UploadPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, "", apperrors.WrapInvalidInput(err)
	}

	blob, err := e.store.Get(ctx, e.bucket, p.FilePath)
	if err != nil {
		return nil, "", err
	}
	defer blob.Close()

	var table csvinfer.Table
	switch {
	case strings.HasSuffix(strings.ToLower(p.FileName), ".csv"):
		table, err = csvinfer.Read(blob)
	case strings.HasSuffix(strings.ToLower(p.FileName), ".json"):
		table, err = ndjson.Read(blob)
	default:
		return nil, "", apperrors.InvalidInput("unsupported file type: " + p.FileName)
	}
	if err != nil {
		return nil, "", err
	}

	rel := catalog.Relation{Schema: table.Columns, Rows: table.Rows}
	rowCount, err := e.cat.Append(ctx, p.Project, p.Table, rel)
	if err != nil {
		return nil, "", err
	}

	colNames := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		colNames[i] = c.Name
	}

	result := job.UploadResult{RowsAppended: rowCount, Columns: colNames}
	out, err := json.Marshal(result)
	if err != nil {
		return nil, "", apperrors.WrapExecution(err)
	}

	message := fmt.Sprintf("Successfully processed %d rows into table %s.%s", rowCount, p.Project, p.Table)
	return out, message, nil
}
