// Package ndjson reads newline-delimited JSON object streams as a
// passthrough ingestion reader, supplementing the CSV-only ingest path
// with the JSON upload format the original system also accepted.
package ndjson

import (
	"bufio"
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/lakeforge/lakeforge/internal/apperrors"
	"github.com/lakeforge/lakeforge/internal/csvinfer"
	"github.com/lakeforge/lakeforge/internal/job"
)

// Read decodes r as newline-delimited JSON objects, inferring one
// column per key observed across all records and widening types the
// same way csvinfer does for CSV.
func Read(r io.Reader) (csvinfer.Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var records []map[string]any
	colOrder := []string{}
	seen := map[string]bool{}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return csvinfer.Table{}, apperrors.WrapInvalidInput(err)
		}
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				colOrder = append(colOrder, k)
			}
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return csvinfer.Table{}, apperrors.WrapInvalidInput(err)
	}
	if len(colOrder) == 0 {
		return csvinfer.Table{}, apperrors.InvalidInput("ndjson file has no records")
	}
	sort.Strings(colOrder)

	types := make(map[string]job.ColumnType, len(colOrder))
	nullable := make(map[string]bool, len(colOrder))
	for _, rec := range records {
		for _, col := range colOrder {
			v, ok := rec[col]
			if !ok || v == nil {
				nullable[col] = true
				continue
			}
			types[col] = widen(types[col], inferJSONType(v))
		}
	}

	cols := make([]job.ColumnSchema, len(colOrder))
	for i, name := range colOrder {
		t := types[name]
		if t == "" {
			t = job.ColumnString
		}
		cols[i] = job.ColumnSchema{Name: name, Type: t, Nullable: nullable[name]}
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(colOrder))
		for j, col := range colOrder {
			row[j] = rec[col]
		}
		rows[i] = row
	}

	return csvinfer.Table{Columns: cols, Rows: rows}, nil
}

func inferJSONType(v any) job.ColumnType {
	switch v.(type) {
	case bool:
		return job.ColumnBoolean
	case float64:
		return job.ColumnFloating
	case string:
		return job.ColumnString
	default:
		return job.ColumnString
	}
}

func widen(current, next job.ColumnType) job.ColumnType {
	if current == "" {
		return next
	}
	if current == next {
		return current
	}
	return job.ColumnString
}
