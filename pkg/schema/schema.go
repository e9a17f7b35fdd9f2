// Package schema describes the shape of the records stash writes and reads.
//
// A Descriptor pairs a versioned schema ID with an ordered list of typed
// fields. Operation building, node-side validation and read-side decoding are
// all driven by descriptors, so adding a schema version means adding a
// descriptor rather than another code path.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// hashPrefix marks the hash part of an ID as a 32-byte sha2-256 digest.
const hashPrefix = "0020"

var idPattern = regexp.MustCompile(`^([a-z][a-z0-9_]{0,63})_(0020[0-9a-f]{64})$`)

var fieldNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// ID is a versioned schema identifier of the form <name>_<hash>.
type ID string

// ParseID validates s and returns it as an ID.
func ParseID(s string) (ID, error) {
	if !idPattern.MatchString(s) {
		return "", fmt.Errorf("malformed schema id %q: expected <name>_%s<64 hex chars>", s, hashPrefix)
	}
	return ID(s), nil
}

// Name returns the human readable part of the ID.
func (id ID) Name() string {
	m := idPattern.FindStringSubmatch(string(id))
	if m == nil {
		return ""
	}
	return m[1]
}

// Validate checks the ID format.
func (id ID) Validate() error {
	_, err := ParseID(string(id))
	return err
}

// FieldType is the type of a schema field.
type FieldType string

const (
	// TypeStr holds UTF-8 text
	TypeStr FieldType = "str"

	// TypeInt holds a signed 64-bit integer
	TypeInt FieldType = "int"

	// TypeBool holds a boolean
	TypeBool FieldType = "bool"
)

// Validate checks that t is a known field type.
func (t FieldType) Validate() error {
	switch t {
	case TypeStr, TypeInt, TypeBool:
		return nil
	default:
		return fmt.Errorf("unknown field type: %q", t)
	}
}

// FieldSpec declares one field of a schema.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool

	// Default is used on the read path when a stored document predates the
	// field. Without a default, a missing field fails decoding.
	Default *Value
}

// Descriptor is a schema ID together with its ordered field list.
type Descriptor struct {
	ID     ID
	Fields []FieldSpec
	index  map[string]int
}

// NewDescriptor builds a descriptor for an explicit schema ID.
func NewDescriptor(id ID, fields ...FieldSpec) (*Descriptor, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("schema %s declares no fields", id)
	}

	index := make(map[string]int, len(fields))
	for i, f := range fields {
		if !fieldNamePattern.MatchString(f.Name) {
			return nil, fmt.Errorf("schema %s: invalid field name %q", id, f.Name)
		}
		if err := f.Type.Validate(); err != nil {
			return nil, fmt.Errorf("schema %s: field %s: %w", id, f.Name, err)
		}
		if _, dup := index[f.Name]; dup {
			return nil, fmt.Errorf("schema %s: duplicate field %q", id, f.Name)
		}
		if f.Default != nil && f.Default.Type != f.Type {
			return nil, fmt.Errorf("schema %s: field %s: default has type %s, want %s", id, f.Name, f.Default.Type, f.Type)
		}
		index[f.Name] = i
	}

	return &Descriptor{ID: id, Fields: fields, index: index}, nil
}

// Derive builds a descriptor whose ID hash is computed from the name and
// field declarations, so any change to the field list yields a new ID.
func Derive(name string, fields ...FieldSpec) (*Descriptor, error) {
	var b strings.Builder
	b.WriteString(name)
	for _, f := range fields {
		fmt.Fprintf(&b, "\n%s:%s:%t", f.Name, f.Type, f.Required)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return NewDescriptor(ID(name+"_"+hashPrefix+hex.EncodeToString(sum[:])), fields...)
}

// MustDerive is Derive for package-level descriptor declarations.
func MustDerive(name string, fields ...FieldSpec) *Descriptor {
	d, err := Derive(name, fields...)
	if err != nil {
		panic(err)
	}
	return d
}

// Field looks up a field by name.
func (d *Descriptor) Field(name string) (FieldSpec, bool) {
	i, ok := d.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return d.Fields[i], true
}

// Conform checks a complete set of written values against the descriptor.
// Every required field must be present, no unknown fields are allowed and
// every value must have the declared type.
func (d *Descriptor) Conform(values map[string]Value) error {
	for name, v := range values {
		spec, ok := d.Field(name)
		if !ok {
			return fmt.Errorf("unknown field %q for schema %s", name, d.ID)
		}
		if v.Type != spec.Type {
			return fmt.Errorf("field %q: expected %s, got %s", name, spec.Type, v.Type)
		}
	}
	for _, spec := range d.Fields {
		if _, ok := values[spec.Name]; !ok && spec.Required {
			return fmt.Errorf("missing required field %q", spec.Name)
		}
	}
	return nil
}

// Registry maps schema IDs to the descriptors a node or client understands.
type Registry struct {
	byID map[ID]*Descriptor
}

// NewRegistry creates a registry holding descs.
func NewRegistry(descs ...*Descriptor) *Registry {
	r := &Registry{byID: make(map[ID]*Descriptor, len(descs))}
	for _, d := range descs {
		r.byID[d.ID] = d
	}
	return r
}

// Lookup returns the descriptor for id.
func (r *Registry) Lookup(id ID) (*Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// IDs returns the registered schema IDs in sorted order.
func (r *Registry) IDs() []ID {
	ids := make([]ID, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
