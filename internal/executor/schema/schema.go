// Package schema implements the schema executor (component I): it reads
// table metadata from the catalog without scanning data.
package schema

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lakeforge/lakeforge/internal/apperrors"
	"github.com/lakeforge/lakeforge/internal/catalog"
	"github.com/lakeforge/lakeforge/internal/job"
)

// Executor runs schema-kind jobs.
type Executor struct {
	cat *catalog.Catalog
}

func New(cat *catalog.Catalog) *Executor {
	return &Executor{cat: cat}
}

func (e *Executor) Run(ctx context.Context, payload json.RawMessage) (json.RawMessage, string, error) {
	var p job.SchemaPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, "", apperrors.WrapInvalidInput(err)
	}

	cols, err := e.cat.Schema(ctx, p.Project, p.Table)
	if err != nil {
		return nil, "", err
	}

	result := struct {
		job.SchemaResult
		Count int `json:"count"`
	}{
		SchemaResult: job.SchemaResult{Columns: cols, ResultPath: nil, FileSizeBytes: 0},
		Count:        len(cols),
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, "", apperrors.WrapExecution(err)
	}

	message := fmt.Sprintf("Schema retrieved: %d columns from table %s.%s", len(cols), p.Project, p.Table)
	return out, message, nil
}
