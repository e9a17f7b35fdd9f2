package query

import (
	"encoding/json"
	"fmt"

	"github.com/dyluth/stash/pkg/schema"
)

// Predicate kinds on the wire.
const (
	KindContains = "contains"
	KindEquals   = "equals"
	KindAtLeast  = "at_least"
	KindAnd      = "and"
)

// wirePredicate is the single envelope every predicate kind is encoded in.
type wirePredicate struct {
	Kind          string            `json:"kind"`
	Field         string            `json:"field,omitempty"`
	Text          string            `json:"text,omitempty"`
	CaseSensitive bool              `json:"case_sensitive,omitempty"`
	ValueType     schema.FieldType  `json:"value_type,omitempty"`
	Value         json.RawMessage   `json:"value,omitempty"`
	Min           *int64            `json:"min,omitempty"`
	Predicates    []json.RawMessage `json:"predicates,omitempty"`
}

// MarshalPredicate encodes p in the tagged wire envelope.
func MarshalPredicate(p Predicate) ([]byte, error) {
	w, err := toWire(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func toWire(p Predicate) (*wirePredicate, error) {
	p, err := Unwrap(p)
	if err != nil {
		return nil, err
	}
	switch pred := p.(type) {
	case Contains:
		return &wirePredicate{Kind: KindContains, Field: pred.Field, Text: pred.Text, CaseSensitive: pred.CaseSensitive}, nil
	case Equals:
		raw, err := json.Marshal(pred.Value)
		if err != nil {
			return nil, fmt.Errorf("equals %q: %w", pred.Field, err)
		}
		return &wirePredicate{Kind: KindEquals, Field: pred.Field, ValueType: pred.Value.Type, Value: raw}, nil
	case AtLeast:
		min := pred.Min
		return &wirePredicate{Kind: KindAtLeast, Field: pred.Field, Min: &min}, nil
	case And:
		w := &wirePredicate{Kind: KindAnd, Predicates: make([]json.RawMessage, 0, len(pred.Predicates))}
		for i, inner := range pred.Predicates {
			data, err := MarshalPredicate(inner)
			if err != nil {
				return nil, fmt.Errorf("and[%d]: %w", i, err)
			}
			w.Predicates = append(w.Predicates, data)
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// UnmarshalPredicate decodes a predicate from its wire envelope.
func UnmarshalPredicate(data []byte) (Predicate, error) {
	var w wirePredicate
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("malformed predicate: %w", err)
	}

	switch w.Kind {
	case KindContains:
		if w.Field == "" {
			return nil, fmt.Errorf("contains: missing field")
		}
		return Contains{Field: w.Field, Text: w.Text, CaseSensitive: w.CaseSensitive}, nil
	case KindEquals:
		if w.Field == "" {
			return nil, fmt.Errorf("equals: missing field")
		}
		v, err := schema.DecodeValue(w.ValueType, w.Value)
		if err != nil {
			return nil, fmt.Errorf("equals %q: %w", w.Field, err)
		}
		return Equals{Field: w.Field, Value: v}, nil
	case KindAtLeast:
		if w.Field == "" || w.Min == nil {
			return nil, fmt.Errorf("at_least: missing field or min")
		}
		return AtLeast{Field: w.Field, Min: *w.Min}, nil
	case KindAnd:
		and := And{Predicates: make([]Predicate, 0, len(w.Predicates))}
		for i, raw := range w.Predicates {
			inner, err := UnmarshalPredicate(raw)
			if err != nil {
				return nil, fmt.Errorf("and[%d]: %w", i, err)
			}
			and.Predicates = append(and.Predicates, inner)
		}
		return and, nil
	default:
		return nil, fmt.Errorf("unknown predicate kind %q", w.Kind)
	}
}

type wireOrder struct {
	Field     string    `json:"field,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

type wireQuery struct {
	SchemaID schema.ID       `json:"schema_id"`
	Filter   json.RawMessage `json:"filter,omitempty"`
	Order    wireOrder       `json:"order"`
}

// MarshalJSON encodes the query for the node's query endpoint.
func (q Query) MarshalJSON() ([]byte, error) {
	w := wireQuery{
		SchemaID: q.SchemaID,
		Order:    wireOrder{Field: q.Order.Field, Direction: q.Order.Direction},
	}
	if q.Filter != nil {
		data, err := MarshalPredicate(q.Filter)
		if err != nil {
			return nil, err
		}
		w.Filter = data
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a query received by the node.
func (q *Query) UnmarshalJSON(data []byte) error {
	var w wireQuery
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	q.SchemaID = w.SchemaID
	q.Order = Order{Field: w.Order.Field, Direction: w.Order.Direction}
	q.Filter = nil
	if len(w.Filter) > 0 && string(w.Filter) != "null" {
		p, err := UnmarshalPredicate(w.Filter)
		if err != nil {
			return err
		}
		q.Filter = p
	}
	return nil
}
