// Package document maps log entries and projection rows to typed documents.
//
// Both mappers are pure and never panic: malformed input yields a
// *MappingError.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dyluth/stash/pkg/identity"
	"github.com/dyluth/stash/pkg/operation"
	"github.com/dyluth/stash/pkg/schema"
)

// Meta identifies a document revision and its author.
type Meta struct {
	DocumentID string             `json:"document_id"`
	ViewID     string             `json:"view_id"`
	Owner      identity.PublicKey `json:"owner"`
}

// Document is a materialised record whose fields decode into T.
type Document[T any] struct {
	Meta   Meta `json:"meta"`
	Fields T    `json:"fields"`
}

// Collection is an ordered list of documents, in query order.
type Collection[T any] []Document[T]

// Row is one document as returned by the node's query endpoint.
type Row struct {
	Meta   Meta                       `json:"meta"`
	Fields map[string]json.RawMessage `json:"fields"`
}

// MappingError reports why an entry or row could not become a Document.
type MappingError struct {
	DocumentID string
	Err        error
}

func (e *MappingError) Error() string {
	if e.DocumentID == "" {
		return fmt.Sprintf("cannot map document: %v", e.Err)
	}
	return fmt.Sprintf("cannot map document %s: %v", e.DocumentID, e.Err)
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// FromEntry builds the local echo of an accepted write.
func FromEntry[T any](ref operation.EntryReference, owner identity.PublicKey, fields T) (Document[T], error) {
	if err := ref.Validate(); err != nil {
		return Document[T]{}, &MappingError{DocumentID: ref.DocumentID, Err: err}
	}
	if err := owner.Validate(); err != nil {
		return Document[T]{}, &MappingError{DocumentID: ref.DocumentID, Err: fmt.Errorf("owner: %w", err)}
	}
	return Document[T]{
		Meta:   Meta{DocumentID: ref.DocumentID, ViewID: ref.ViewID, Owner: owner},
		Fields: fields,
	}, nil
}

// FromQueryRow validates a projection row against desc and decodes its
// fields into T. Missing fields without a declared default fail closed, and
// fields T does not know are rejected.
func FromQueryRow[T any](desc *schema.Descriptor, row Row) (Document[T], error) {
	fail := func(err error) (Document[T], error) {
		return Document[T]{}, &MappingError{DocumentID: row.Meta.DocumentID, Err: err}
	}

	if desc == nil {
		return fail(fmt.Errorf("no schema descriptor"))
	}
	ref := operation.EntryReference{DocumentID: row.Meta.DocumentID, ViewID: row.Meta.ViewID}
	if err := ref.Validate(); err != nil {
		return fail(err)
	}
	if err := row.Meta.Owner.Validate(); err != nil {
		return fail(fmt.Errorf("owner: %w", err))
	}

	values, err := desc.Resolve(row.Fields)
	if err != nil {
		return fail(err)
	}

	plain := make(map[string]any, len(values))
	for name, v := range values {
		plain[name] = v.Native()
	}
	data, err := json.Marshal(plain)
	if err != nil {
		return fail(err)
	}

	var fields T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fields); err != nil {
		return fail(fmt.Errorf("decode fields: %w", err))
	}

	return Document[T]{Meta: row.Meta, Fields: fields}, nil
}

// FromQueryRows maps every row, stopping at the first failure.
func FromQueryRows[T any](desc *schema.Descriptor, rows []Row) (Collection[T], error) {
	out := make(Collection[T], 0, len(rows))
	for _, row := range rows {
		doc, err := FromQueryRow[T](desc, row)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}
