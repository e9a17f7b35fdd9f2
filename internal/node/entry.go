package node

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/dyluth/stash/pkg/identity"
	"github.com/dyluth/stash/pkg/operation"
	"github.com/dyluth/stash/pkg/schema"
)

// Entry is one accepted, signed operation in the append-only log.
type Entry struct {
	Hash        string
	Author      identity.PublicKey
	Seq         int64
	SchemaID    schema.ID
	Operation   []byte
	Signature   []byte
	CreatedAtMs int64
}

// Signed returns the signed operation the entry was created from.
func (e *Entry) Signed() *operation.SignedOperation {
	return &operation.SignedOperation{
		Payload:   e.Operation,
		PublicKey: e.Author,
		Signature: e.Signature,
	}
}

// Validate checks that the entry is complete.
func (e *Entry) Validate() error {
	if e.Hash == "" {
		return fmt.Errorf("hash is required")
	}
	if err := e.Author.Validate(); err != nil {
		return fmt.Errorf("author: %w", err)
	}
	if e.Seq < 1 {
		return fmt.Errorf("seq must be >= 1, got %d", e.Seq)
	}
	if err := e.SchemaID.Validate(); err != nil {
		return err
	}
	if len(e.Operation) == 0 {
		return fmt.Errorf("operation is required")
	}
	if len(e.Signature) == 0 {
		return fmt.Errorf("signature is required")
	}
	return nil
}

// Serialization helpers for converting between entries and Redis hashes.
// Binary fields are base64 encoded.

// EntryToHash converts an Entry to a Redis hash.
func EntryToHash(e *Entry) map[string]interface{} {
	return map[string]interface{}{
		"hash":          e.Hash,
		"author":        string(e.Author),
		"seq":           e.Seq,
		"schema_id":     string(e.SchemaID),
		"operation":     base64.StdEncoding.EncodeToString(e.Operation),
		"signature":     base64.StdEncoding.EncodeToString(e.Signature),
		"created_at_ms": e.CreatedAtMs,
	}
}

// HashToEntry converts a Redis hash back to an Entry.
func HashToEntry(hash map[string]string) (*Entry, error) {
	seq, err := strconv.ParseInt(hash["seq"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid seq field: %w", err)
	}

	op, err := base64.StdEncoding.DecodeString(hash["operation"])
	if err != nil {
		return nil, fmt.Errorf("invalid operation field: %w", err)
	}

	sig, err := base64.StdEncoding.DecodeString(hash["signature"])
	if err != nil {
		return nil, fmt.Errorf("invalid signature field: %w", err)
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	entry := &Entry{
		Hash:        hash["hash"],
		Author:      identity.PublicKey(hash["author"]),
		Seq:         seq,
		SchemaID:    schema.ID(hash["schema_id"]),
		Operation:   op,
		Signature:   sig,
		CreatedAtMs: createdAtMs,
	}

	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid entry: %w", err)
	}
	return entry, nil
}
