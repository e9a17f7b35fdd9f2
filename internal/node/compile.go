package node

import (
	"fmt"
	"strings"

	"github.com/dyluth/stash/pkg/query"
	"github.com/dyluth/stash/pkg/schema"
)

// compileQuery converts a validated query into parameterised SQL over the
// projection tables. Every query orders by document_id last so results
// have a total order, and values are never interpolated.
func compileQuery(desc *schema.Descriptor, q query.Query) (string, []any, error) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT d.document_id, d.view_id, d.owner, d.fields FROM documents d")

	var orderExpr string
	if q.Order.Field != "" {
		spec, ok := desc.Field(q.Order.Field)
		if !ok {
			return "", nil, fmt.Errorf("cannot order by unknown field %q", q.Order.Field)
		}
		sb.WriteString(" LEFT JOIN document_fields o ON o.document_id = d.document_id AND o.name = ?")
		args = append(args, spec.Name)

		column, collate := orderColumn(spec.Type)
		if spec.Default != nil {
			orderExpr = fmt.Sprintf("COALESCE(o.%s, ?)%s", column, collate)
		} else {
			orderExpr = "o." + column + collate
		}
	}

	sb.WriteString(" WHERE d.schema_id = ?")
	args = append(args, string(q.SchemaID))

	if q.Filter != nil {
		where, params, err := compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sb.WriteString(" AND ")
		sb.WriteString(where)
		args = append(args, params...)
	}

	sb.WriteString(" ORDER BY ")
	if orderExpr != "" {
		spec, _ := desc.Field(q.Order.Field)
		if spec.Default != nil {
			args = append(args, sqlParam(*spec.Default))
		}
		sb.WriteString(orderExpr)
		if q.Order.Direction == query.Descending {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
		sb.WriteString(", ")
	}
	sb.WriteString("d.document_id COLLATE BINARY ASC")

	return sb.String(), args, nil
}

func orderColumn(t schema.FieldType) (string, string) {
	if t == schema.TypeStr {
		return "text_value", " COLLATE BINARY"
	}
	return "int_value", ""
}

func compilePredicate(p query.Predicate) (string, []any, error) {
	p, err := query.Unwrap(p)
	if err != nil {
		return "", nil, err
	}
	switch pred := p.(type) {
	case query.Contains:
		if pred.CaseSensitive {
			return fieldExists("f.type = 'str' AND instr(f.text_value, ?) > 0"), []any{pred.Field, pred.Text}, nil
		}
		return fieldExists("f.type = 'str' AND instr(f.folded_value, ?) > 0"), []any{pred.Field, query.Fold(pred.Text)}, nil
	case query.Equals:
		if pred.Value.Type == schema.TypeStr {
			return fieldExists("f.type = ? AND f.text_value = ?"), []any{pred.Field, string(pred.Value.Type), pred.Value.Str}, nil
		}
		return fieldExists("f.type = ? AND f.int_value = ?"), []any{pred.Field, string(pred.Value.Type), sqlParam(pred.Value)}, nil
	case query.AtLeast:
		return fieldExists("f.type = 'int' AND f.int_value >= ?"), []any{pred.Field, pred.Min}, nil
	case query.And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for _, inner := range pred.Predicates {
			sql, innerParams, err := compilePredicate(inner)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			params = append(params, innerParams...)
		}
		return "(" + strings.Join(parts, " AND ") + ")", params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func fieldExists(cond string) string {
	return "EXISTS (SELECT 1 FROM document_fields f WHERE f.document_id = d.document_id AND f.name = ? AND " + cond + ")"
}

// sqlParam converts a value to its column representation. Bools are stored
// as 0/1 in int_value.
func sqlParam(v schema.Value) any {
	switch v.Type {
	case schema.TypeStr:
		return v.Str
	case schema.TypeBool:
		if v.Bool {
			return int64(1)
		}
		return int64(0)
	default:
		return v.Int
	}
}
