// Package query defines the read queries stash sends to the node's
// projection: a schema, an optional filter predicate and an ordering.
//
// Predicate is a sealed interface. Every predicate kind travels in the same
// tagged JSON envelope ({"kind": ...}), so new kinds extend the wire format
// without changing its shape.
package query

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/dyluth/stash/pkg/schema"
)

// Predicate is a filter condition over a document's fields.
type Predicate interface {
	predicateNode()
}

// Contains matches documents whose text field contains Text as a substring.
// Matching is case-insensitive (Unicode case folding) unless CaseSensitive
// is set, in which case it is a byte-exact substring test.
type Contains struct {
	Field         string
	Text          string
	CaseSensitive bool
}

// Equals matches documents whose field equals Value exactly.
type Equals struct {
	Field string
	Value schema.Value
}

// AtLeast matches documents whose int field is >= Min.
type AtLeast struct {
	Field string
	Min   int64
}

// And matches documents that satisfy every predicate. An empty And matches
// everything.
type And struct {
	Predicates []Predicate
}

func (Contains) predicateNode() {}
func (Equals) predicateNode()   {}
func (AtLeast) predicateNode()  {}
func (And) predicateNode()      {}

// Direction is a sort direction.
type Direction string

const (
	// Ascending sorts smallest first
	Ascending Direction = "asc"

	// Descending sorts largest first
	Descending Direction = "desc"
)

// Order names the field results are sorted by. Ties, and documents when
// Field is empty, are always ordered by document ID ascending so that every
// query has a total order.
type Order struct {
	Field     string
	Direction Direction
}

// Query is a complete read request against one schema.
type Query struct {
	SchemaID schema.ID
	Filter   Predicate
	Order    Order
}

// ErrNilPredicate is returned for a nil pointer predicate such as
// (*Contains)(nil).
var ErrNilPredicate = errors.New("nil predicate")

// Unwrap returns the value form of a pointer predicate; value predicates are
// returned unchanged.
func Unwrap(p Predicate) (Predicate, error) {
	switch pred := p.(type) {
	case *Contains:
		if pred == nil {
			return nil, ErrNilPredicate
		}
		return *pred, nil
	case *Equals:
		if pred == nil {
			return nil, ErrNilPredicate
		}
		return *pred, nil
	case *AtLeast:
		if pred == nil {
			return nil, ErrNilPredicate
		}
		return *pred, nil
	case *And:
		if pred == nil {
			return nil, ErrNilPredicate
		}
		return *pred, nil
	}
	return p, nil
}

// Fold returns the case-folded form used for case-insensitive matching.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// Validate checks the query against the schema it targets: every referenced
// field must exist with a type the predicate supports.
func (q Query) Validate(desc *schema.Descriptor) error {
	if desc == nil || desc.ID != q.SchemaID {
		return fmt.Errorf("schema %q is not deployed", q.SchemaID)
	}
	if q.Filter != nil {
		if err := validatePredicate(q.Filter, desc); err != nil {
			return err
		}
	}
	switch q.Order.Direction {
	case Ascending, Descending:
	case "":
		if q.Order.Field != "" {
			return fmt.Errorf("order on %q has no direction", q.Order.Field)
		}
	default:
		return fmt.Errorf("unknown order direction %q", q.Order.Direction)
	}
	if q.Order.Field != "" {
		if _, ok := desc.Field(q.Order.Field); !ok {
			return fmt.Errorf("cannot order by unknown field %q", q.Order.Field)
		}
	}
	return nil
}

func validatePredicate(p Predicate, desc *schema.Descriptor) error {
	p, err := Unwrap(p)
	if err != nil {
		return err
	}
	switch pred := p.(type) {
	case Contains:
		return requireField(desc, pred.Field, schema.TypeStr, "contains")
	case Equals:
		return requireField(desc, pred.Field, pred.Value.Type, "equals")
	case AtLeast:
		return requireField(desc, pred.Field, schema.TypeInt, "at_least")
	case And:
		for i, inner := range pred.Predicates {
			if err := validatePredicate(inner, desc); err != nil {
				return fmt.Errorf("and[%d]: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func requireField(desc *schema.Descriptor, name string, want schema.FieldType, kind string) error {
	spec, ok := desc.Field(name)
	if !ok {
		return fmt.Errorf("%s: unknown field %q", kind, name)
	}
	if spec.Type != want {
		return fmt.Errorf("%s: field %q has type %s, want %s", kind, name, spec.Type, want)
	}
	return nil
}

// Match evaluates p against a document's resolved field values. A nil
// predicate matches everything. It shares its semantics with the node's
// compiled SQL.
func Match(p Predicate, fields map[string]schema.Value) bool {
	if p == nil {
		return true
	}
	p, err := Unwrap(p)
	if err != nil {
		return false
	}
	switch pred := p.(type) {
	case Contains:
		v, ok := fields[pred.Field]
		if !ok || v.Type != schema.TypeStr {
			return false
		}
		if pred.CaseSensitive {
			return strings.Contains(v.Str, pred.Text)
		}
		return strings.Contains(Fold(v.Str), Fold(pred.Text))
	case Equals:
		v, ok := fields[pred.Field]
		return ok && v == pred.Value
	case AtLeast:
		v, ok := fields[pred.Field]
		return ok && v.Type == schema.TypeInt && v.Int >= pred.Min
	case And:
		for _, inner := range pred.Predicates {
			if !Match(inner, fields) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
