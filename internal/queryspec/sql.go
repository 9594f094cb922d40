package queryspec

import (
	"fmt"
	"strings"

	"github.com/lakeforge/lakeforge/internal/apperrors"
)

// Render renders spec against fromTable (already catalog-qualified) into
// a parameterized SQL statement, pushing filters, projection/aggregation,
// ordering and pagination down to the engine in that fixed stage order.
func Render(spec Spec, fromTable string) (string, []any, error) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	cols := make([]string, 0, len(spec.Select))
	for _, item := range spec.Select {
		star := item.Column == "*"

		// A bare column:"*" with no aggregation is a full-row projection
		// and carries no alias. column:"*" with aggregation:"count" means
		// row count, per the select rule.
		if star && item.Aggregation == "" {
			cols = append(cols, "*")
			continue
		}

		col := sanitizeIdent(item.Column)
		if star {
			col = "*"
		}
		expr := col
		if item.Aggregation != "" {
			fn, err := aggFunc(item.Aggregation)
			if err != nil {
				return "", nil, err
			}
			expr = fmt.Sprintf("%s(%s)", fn, col)
		}
		alias := item.Alias
		if alias == "" {
			alias = item.Column
			if star {
				alias = "count"
			}
		}
		cols = append(cols, fmt.Sprintf("%s AS %s", expr, sanitizeIdent(alias)))
	}
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(fromTable)

	if len(spec.Filters) > 0 {
		clauses := make([]string, 0, len(spec.Filters))
		for _, f := range spec.Filters {
			clause, fargs, err := renderFilter(f)
			if err != nil {
				return "", nil, err
			}
			clauses = append(clauses, clause)
			args = append(args, fargs...)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(clauses, " AND "))
	}

	if groupBy := spec.EffectiveGroupBy(); len(groupBy) > 0 {
		cols := make([]string, len(groupBy))
		for i, c := range groupBy {
			cols[i] = sanitizeIdent(c)
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(cols, ", "))
	}

	if len(spec.OrderBy) > 0 {
		items := make([]string, 0, len(spec.OrderBy))
		for _, o := range spec.OrderBy {
			dir := "ASC"
			if strings.EqualFold(o.Direction, "desc") {
				dir = "DESC"
			}
			items = append(items, fmt.Sprintf("%s %s", sanitizeIdent(o.Column), dir))
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(items, ", "))
	}

	if spec.Limit != nil {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", *spec.Limit))
	}
	if spec.Offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", spec.Offset))
	}

	return sb.String(), args, nil
}

func aggFunc(a Aggregation) (string, error) {
	switch a {
	case AggSum:
		return "sum", nil
	case AggAvg:
		return "avg", nil
	case AggCount:
		return "count", nil
	case AggMin:
		return "min", nil
	case AggMax:
		return "max", nil
	case AggFirst:
		return "any", nil
	case AggLast:
		return "anyLast", nil
	default:
		return "", apperrors.InvalidInput(fmt.Sprintf("unsupported aggregation %q", a))
	}
}

func renderFilter(f Filter) (string, []any, error) {
	col := sanitizeIdent(f.Column)
	switch f.Operator {
	case OpEq:
		return col + " = ?", []any{f.Value}, nil
	case OpNeq:
		return col + " != ?", []any{f.Value}, nil
	case OpLt:
		return col + " < ?", []any{f.Value}, nil
	case OpLte:
		return col + " <= ?", []any{f.Value}, nil
	case OpGt:
		return col + " > ?", []any{f.Value}, nil
	case OpGte:
		return col + " >= ?", []any{f.Value}, nil
	case OpLike:
		return col + " LIKE ?", []any{f.Value}, nil
	case OpIn:
		values, ok := f.Value.([]any)
		if !ok || len(values) == 0 {
			return "", nil, apperrors.InvalidInput("in filter requires a non-empty value list")
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
		return fmt.Sprintf("%s IN (%s)", col, placeholders), values, nil
	case OpBetween:
		return col + " BETWEEN ? AND ?", []any{f.Value, f.Value2}, nil
	case OpIsNull:
		return col + " IS NULL", nil, nil
	case OpIsNotNull:
		return col + " IS NOT NULL", nil, nil
	default:
		return "", nil, apperrors.InvalidInput(fmt.Sprintf("unsupported operator %q", f.Operator))
	}
}

// sanitizeIdent mirrors catalog's identifier sanitization so columns
// named in a client-supplied spec can never break out of the rendered
// statement.
func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
