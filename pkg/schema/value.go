package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a typed field value.
type Value struct {
	Type FieldType
	Str  string
	Int  int64
	Bool bool
}

// String returns a str value.
func String(s string) Value { return Value{Type: TypeStr, Str: s} }

// Int returns an int value.
func Int(i int64) Value { return Value{Type: TypeInt, Int: i} }

// Bool returns a bool value.
func Bool(b bool) Value { return Value{Type: TypeBool, Bool: b} }

// Ptr returns a pointer to v, for FieldSpec defaults.
func Ptr(v Value) *Value { return &v }

// Native returns the value as a plain Go string, int64 or bool.
func (v Value) Native() any {
	switch v.Type {
	case TypeStr:
		return v.Str
	case TypeInt:
		return v.Int
	case TypeBool:
		return v.Bool
	default:
		return nil
	}
}

// Text renders the value for display and for text predicates.
func (v Value) Text() string {
	switch v.Type {
	case TypeStr:
		return v.Str
	case TypeInt:
		return strconv.FormatInt(v.Int, 10)
	case TypeBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// MarshalJSON encodes the value as its plain JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	if err := v.Type.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(v.Native())
}

// DecodeValue decodes a plain JSON value as type t.
// Integers must be whole numbers within int64 range; null is rejected.
func DecodeValue(t FieldType, raw json.RawMessage) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Value{}, fmt.Errorf("expected %s, got null", t)
	}

	switch t {
	case TypeStr:
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Value{}, fmt.Errorf("expected str: %w", err)
		}
		return String(s), nil
	case TypeInt:
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return Value{}, fmt.Errorf("expected int: %w", err)
		}
		i, err := n.Int64()
		if err != nil {
			return Value{}, fmt.Errorf("expected int, got %s", n)
		}
		return Int(i), nil
	case TypeBool:
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return Value{}, fmt.Errorf("expected bool: %w", err)
		}
		return Bool(b), nil
	default:
		return Value{}, fmt.Errorf("unknown field type: %q", t)
	}
}

// Resolve decodes raw document fields against the descriptor for the read
// path. Missing fields take the declared default; a missing field without a
// default is an error, as are unknown fields and type mismatches.
func (d *Descriptor) Resolve(raw map[string]json.RawMessage) (map[string]Value, error) {
	for name := range raw {
		if _, ok := d.Field(name); !ok {
			return nil, fmt.Errorf("unexpected field %q for schema %s", name, d.ID)
		}
	}

	values := make(map[string]Value, len(d.Fields))
	for _, spec := range d.Fields {
		data, ok := raw[spec.Name]
		if !ok {
			if spec.Default != nil {
				values[spec.Name] = *spec.Default
				continue
			}
			return nil, fmt.Errorf("missing field %q", spec.Name)
		}
		v, err := DecodeValue(spec.Type, data)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", spec.Name, err)
		}
		values[spec.Name] = v
	}
	return values, nil
}
