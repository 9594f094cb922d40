// Package csvinfer reads a headered CSV stream and infers a simple type
// per column (integer, floating, boolean, date, string), widening to
// string on the first value that doesn't fit the type inferred so far.
// This is the reader behind the ingest executor's upload path.
package csvinfer

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/lakeforge/lakeforge/internal/apperrors"
	"github.com/lakeforge/lakeforge/internal/job"
)

// Table is the inferred schema plus the decoded row values, ready for
// catalog.Relation construction.
type Table struct {
	Columns []job.ColumnSchema
	Rows    [][]any
}

var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// Read parses r as a comma-separated CSV with a header row and infers
// each column's type from every value seen in it.
func Read(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return Table{}, apperrors.InvalidInput("csv file has no header row")
	}
	if err != nil {
		return Table{}, apperrors.WrapInvalidInput(err)
	}

	types := make([]job.ColumnType, len(header))
	nullable := make([]bool, len(header))
	var rawRows [][]string

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, apperrors.WrapInvalidInput(err)
		}
		if len(record) != len(header) {
			return Table{}, apperrors.InvalidInput("csv row has a different column count than the header")
		}
		for i, v := range record {
			if v == "" {
				nullable[i] = true
				continue
			}
			types[i] = widen(types[i], inferOne(v))
		}
		rawRows = append(rawRows, record)
	}

	cols := make([]job.ColumnSchema, len(header))
	for i, name := range header {
		t := types[i]
		if t == "" {
			t = job.ColumnString
		}
		cols[i] = job.ColumnSchema{Name: name, Type: t, Nullable: nullable[i]}
	}

	rows := make([][]any, len(rawRows))
	for i, record := range rawRows {
		row := make([]any, len(record))
		for j, v := range record {
			row[j] = convert(v, cols[j])
		}
		rows[i] = row
	}

	return Table{Columns: cols, Rows: rows}, nil
}

// inferOne returns the narrowest type a single non-empty value fits.
func inferOne(v string) job.ColumnType {
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return job.ColumnInteger
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return job.ColumnFloating
	}
	if _, err := strconv.ParseBool(v); err == nil {
		return job.ColumnBoolean
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return job.ColumnDate
		}
	}
	return job.ColumnString
}

// widen returns the first type in {integer, floating, boolean, date,
// string} both current and next fit, per column-wide inference.
func widen(current, next job.ColumnType) job.ColumnType {
	if current == "" {
		return next
	}
	if current == next {
		return current
	}
	if (current == job.ColumnInteger && next == job.ColumnFloating) ||
		(current == job.ColumnFloating && next == job.ColumnInteger) {
		return job.ColumnFloating
	}
	return job.ColumnString
}

func convert(v string, col job.ColumnSchema) any {
	if v == "" {
		return nil
	}
	switch col.Type {
	case job.ColumnInteger:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return v
		}
		return n
	case job.ColumnFloating:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return v
		}
		return f
	case job.ColumnBoolean:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return v
		}
		return b
	case job.ColumnDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
		return v
	default:
		return v
	}
}
