// Package operation builds, encodes and signs the write operations stash
// submits to the node's append-only log.
//
// An Operation is an unsigned, schema-tagged set of typed field assignments.
// Its canonical encoding is deterministic, so the same logical fields always
// produce the same bytes; callers that need distinct revisions must include a
// uniqueness field such as a wall-clock timestamp.
package operation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/dyluth/stash/pkg/schema"
)

// Version is the operation format version written by this package.
const Version = 1

// Action is what an operation does to its document.
type Action string

const (
	// ActionCreate creates a new document; its entry hash becomes the document ID
	ActionCreate Action = "create"
)

// FieldValue is one named field assignment.
type FieldValue struct {
	Name  string
	Value schema.Value
}

// Operation is an unsigned write against a schema.
type Operation struct {
	Version  int
	Action   Action
	SchemaID schema.ID
	Fields   []FieldValue
}

// ErrorKind classifies a BuildError.
type ErrorKind string

const (
	// KindInvalidSchema indicates a missing descriptor or malformed schema ID
	KindInvalidSchema ErrorKind = "invalid_schema"

	// KindMissingField indicates a required field was not supplied
	KindMissingField ErrorKind = "missing_field"

	// KindUnknownField indicates a field the schema does not declare
	KindUnknownField ErrorKind = "unknown_field"

	// KindTypeMismatch indicates a value of the wrong type
	KindTypeMismatch ErrorKind = "type_mismatch"

	// KindDuplicateField indicates the same field was assigned twice
	KindDuplicateField ErrorKind = "duplicate_field"

	// KindInvalidText indicates a str value that is not valid UTF-8
	KindInvalidText ErrorKind = "invalid_text"
)

// BuildError reports why an operation could not be built. Build errors are
// caller bugs and are never retried.
type BuildError struct {
	Kind  ErrorKind
	Field string
	Err   error
}

func (e *BuildError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("build operation: %s: field %q: %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("build operation: %s: %v", e.Kind, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// IsBuildError reports whether err is a BuildError of the given kind.
func IsBuildError(err error, kind ErrorKind) bool {
	var be *BuildError
	return errors.As(err, &be) && be.Kind == kind
}

// Build checks fields against desc and returns a create operation.
func Build(desc *schema.Descriptor, fields []FieldValue) (*Operation, error) {
	if desc == nil {
		return nil, &BuildError{Kind: KindInvalidSchema, Err: errors.New("no schema descriptor")}
	}
	if err := desc.ID.Validate(); err != nil {
		return nil, &BuildError{Kind: KindInvalidSchema, Err: err}
	}

	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		spec, ok := desc.Field(f.Name)
		if !ok {
			return nil, &BuildError{Kind: KindUnknownField, Field: f.Name, Err: fmt.Errorf("not declared by schema %s", desc.ID)}
		}
		if seen[f.Name] {
			return nil, &BuildError{Kind: KindDuplicateField, Field: f.Name, Err: errors.New("assigned more than once")}
		}
		if f.Value.Type != spec.Type {
			return nil, &BuildError{Kind: KindTypeMismatch, Field: f.Name, Err: fmt.Errorf("expected %s, got %s", spec.Type, f.Value.Type)}
		}
		if f.Value.Type == schema.TypeStr && !utf8.ValidString(f.Value.Str) {
			return nil, &BuildError{Kind: KindInvalidText, Field: f.Name, Err: errors.New("invalid UTF-8")}
		}
		seen[f.Name] = true
	}

	for _, spec := range desc.Fields {
		if spec.Required && !seen[spec.Name] {
			return nil, &BuildError{Kind: KindMissingField, Field: spec.Name, Err: errors.New("required by schema")}
		}
	}

	// Values are kept in the form Encode writes, so Values() matches what
	// the node decodes.
	copied := make([]FieldValue, len(fields))
	for i, f := range fields {
		if f.Value.Type == schema.TypeStr {
			f.Value.Str = norm.NFC.String(f.Value.Str)
		}
		copied[i] = f
	}

	return &Operation{
		Version:  Version,
		Action:   ActionCreate,
		SchemaID: desc.ID,
		Fields:   copied,
	}, nil
}

// Builder assembles field assignments fluently.
type Builder struct {
	desc   *schema.Descriptor
	fields []FieldValue
}

// NewBuilder starts an operation against desc.
func NewBuilder(desc *schema.Descriptor) *Builder {
	return &Builder{desc: desc}
}

// Str assigns a str field.
func (b *Builder) Str(name, value string) *Builder {
	return b.Set(name, schema.String(value))
}

// Int assigns an int field.
func (b *Builder) Int(name string, value int64) *Builder {
	return b.Set(name, schema.Int(value))
}

// Bool assigns a bool field.
func (b *Builder) Bool(name string, value bool) *Builder {
	return b.Set(name, schema.Bool(value))
}

// Set assigns a typed field value.
func (b *Builder) Set(name string, value schema.Value) *Builder {
	b.fields = append(b.fields, FieldValue{Name: name, Value: value})
	return b
}

// Build validates the assignments and returns the operation.
func (b *Builder) Build() (*Operation, error) {
	return Build(b.desc, b.fields)
}

// Values returns the field assignments keyed by name.
func (op *Operation) Values() map[string]schema.Value {
	values := make(map[string]schema.Value, len(op.Fields))
	for _, f := range op.Fields {
		values[f.Name] = f.Value
	}
	return values
}

// Encode returns the canonical byte encoding of the operation. Values that
// cannot be encoded are reported as *BuildError.
func (op *Operation) Encode() ([]byte, error) {
	fields := make(map[string]any, len(op.Fields))
	for _, f := range op.Fields {
		native := f.Value.Native()
		if native == nil {
			return nil, &BuildError{Kind: KindTypeMismatch, Field: f.Name, Err: errors.New("value has no type")}
		}
		if f.Value.Type == schema.TypeStr && !utf8.ValidString(f.Value.Str) {
			return nil, &BuildError{Kind: KindInvalidText, Field: f.Name, Err: errors.New("invalid UTF-8")}
		}
		fields[f.Name] = native
	}

	data, err := marshalCanonical(map[string]any{
		"version":   op.Version,
		"action":    string(op.Action),
		"schema_id": string(op.SchemaID),
		"fields":    fields,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode operation: %w", err)
	}
	return data, nil
}

type wireOperation struct {
	Version  int                        `json:"version"`
	Action   Action                     `json:"action"`
	SchemaID schema.ID                  `json:"schema_id"`
	Fields   map[string]json.RawMessage `json:"fields"`
}

// Decode parses canonical operation bytes, typing each field with the
// descriptor the registry holds for the operation's schema. Schema
// violations are returned as *BuildError; anything else means the bytes are
// malformed. Non-canonical encodings are rejected.
func Decode(data []byte, registry *schema.Registry) (*Operation, error) {
	var wire wireOperation
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("malformed operation: %w", err)
	}
	if wire.Version != Version {
		return nil, fmt.Errorf("unsupported operation version %d", wire.Version)
	}
	if wire.Action != ActionCreate {
		return nil, fmt.Errorf("unsupported operation action %q", wire.Action)
	}

	desc, ok := registry.Lookup(wire.SchemaID)
	if !ok {
		return nil, &BuildError{Kind: KindInvalidSchema, Err: fmt.Errorf("schema %q is not deployed", wire.SchemaID)}
	}

	fields := make([]FieldValue, 0, len(wire.Fields))
	for _, spec := range desc.Fields {
		raw, present := wire.Fields[spec.Name]
		if !present {
			continue
		}
		v, err := schema.DecodeValue(spec.Type, raw)
		if err != nil {
			return nil, &BuildError{Kind: KindTypeMismatch, Field: spec.Name, Err: err}
		}
		fields = append(fields, FieldValue{Name: spec.Name, Value: v})
	}
	for name := range wire.Fields {
		if _, ok := desc.Field(name); !ok {
			return nil, &BuildError{Kind: KindUnknownField, Field: name, Err: fmt.Errorf("not declared by schema %s", desc.ID)}
		}
	}

	op, err := Build(desc, fields)
	if err != nil {
		return nil, err
	}

	canonical, err := op.Encode()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(canonical, data) {
		return nil, errors.New("operation is not canonically encoded")
	}
	return op, nil
}
