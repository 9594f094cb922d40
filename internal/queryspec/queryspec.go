// Package queryspec defines the structured query specification clients
// submit to POST /api/v1/query: its JSON shape, schema validation, and
// the fixed-order rendering of that shape into a single pushdown SQL
// statement against the table catalog.
package queryspec

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/lakeforge/lakeforge/internal/apperrors"
)

// Aggregation is the closed set of supported aggregation functions.
type Aggregation string

const (
	AggSum   Aggregation = "sum"
	AggAvg   Aggregation = "avg"
	AggCount Aggregation = "count"
	AggMin   Aggregation = "min"
	AggMax   Aggregation = "max"
	AggFirst Aggregation = "first"
	AggLast  Aggregation = "last"
)

// Operator is the closed set of supported filter operators.
type Operator string

const (
	OpEq         Operator = "="
	OpNeq        Operator = "!="
	OpLt         Operator = "<"
	OpLte        Operator = "<="
	OpGt         Operator = ">"
	OpGte        Operator = ">="
	OpLike       Operator = "like"
	OpIn         Operator = "in"
	OpBetween    Operator = "between"
	OpIsNull     Operator = "is_null"
	OpIsNotNull  Operator = "is_not_null"
)

// SelectItem is one projected/aggregated output column.
type SelectItem struct {
	Column      string      `json:"column"`
	Aggregation Aggregation `json:"aggregation,omitempty"`
	Alias       string      `json:"alias,omitempty"`
}

// Filter is one predicate applied before projection/aggregation.
type Filter struct {
	Column   string   `json:"column"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
	Value2   any      `json:"value2,omitempty"`
}

// OrderItem is one ORDER BY term, referencing either a source column or
// an output alias.
type OrderItem struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

// Spec is the structured query specification, parsed once at the worker
// and discarded after a single evaluation.
type Spec struct {
	Source   string       `json:"source"`
	Select   []SelectItem `json:"select"`
	Filters  []Filter     `json:"filters,omitempty"`
	GroupBy  []string     `json:"group_by,omitempty"`
	OrderBy  []OrderItem  `json:"order_by,omitempty"`
	// Limit is a pointer so an explicit `"limit":0` (yield zero rows) is
	// distinguishable from an absent limit (no LIMIT clause at all).
	Limit    *int         `json:"limit,omitempty"`
	Offset   int          `json:"offset,omitempty"`
	Encoding string       `json:"encoding,omitempty"`
}

const schemaJSON = `{
  "type": "object",
  "required": ["source", "select"],
  "properties": {
    "source": {"type": "string", "minLength": 1},
    "select": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["column"],
        "properties": {
          "column": {"type": "string", "minLength": 1},
          "aggregation": {"enum": ["sum", "avg", "count", "min", "max", "first", "last"]},
          "alias": {"type": "string"}
        }
      }
    },
    "filters": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["column", "operator"],
        "properties": {
          "column": {"type": "string", "minLength": 1},
          "operator": {"enum": ["=", "!=", "<", "<=", ">", ">=", "like", "in", "between", "is_null", "is_not_null"]}
        }
      }
    },
    "group_by": {"type": "array", "items": {"type": "string"}},
    "order_by": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["column", "direction"],
        "properties": {
          "column": {"type": "string"},
          "direction": {"enum": ["asc", "desc"]}
        }
      }
    },
    "limit": {"type": "integer", "minimum": 0},
    "offset": {"type": "integer", "minimum": 0}
  }
}`

var schema = gojsonschema.NewStringLoader(schemaJSON)

// Validate checks raw against the query-spec JSON schema, returning an
// invalid_input error listing every violation found.
func Validate(raw json.RawMessage) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return apperrors.WrapInvalidInput(fmt.Errorf("validate query spec: %w", err))
	}
	if !result.Valid() {
		msg := "invalid query spec:"
		for _, e := range result.Errors() {
			msg += " " + e.String() + ";"
		}
		return apperrors.InvalidInput(msg)
	}
	return nil
}

// Parse validates and decodes raw into a Spec.
func Parse(raw json.RawMessage) (Spec, error) {
	if err := Validate(raw); err != nil {
		return Spec{}, err
	}
	var s Spec
	if err := json.Unmarshal(raw, &s); err != nil {
		return Spec{}, apperrors.WrapInvalidInput(fmt.Errorf("decode query spec: %w", err))
	}
	return s, nil
}

// IsAggregated reports whether any select item carries an aggregation,
// which implicitly makes every non-aggregated select column part of the
// grouping key per the spec's group_by rule.
func (s Spec) IsAggregated() bool {
	for _, item := range s.Select {
		if item.Aggregation != "" {
			return true
		}
	}
	return false
}

// EffectiveGroupBy returns the explicit group_by list, or (when any
// select item aggregates and group_by was omitted) the set of
// non-aggregated select columns in select order.
func (s Spec) EffectiveGroupBy() []string {
	if len(s.GroupBy) > 0 {
		return s.GroupBy
	}
	if !s.IsAggregated() {
		return nil
	}
	var cols []string
	for _, item := range s.Select {
		if item.Aggregation == "" {
			cols = append(cols, item.Column)
		}
	}
	return cols
}
