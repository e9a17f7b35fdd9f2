package operation

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/dyluth/stash/pkg/identity"
)

// SignedOperation is a canonically encoded operation together with its
// author's public key and an ed25519 signature over the encoded bytes.
// It is the unit the submission endpoint accepts.
type SignedOperation struct {
	Payload   []byte             `json:"operation"`
	PublicKey identity.PublicKey `json:"public_key"`
	Signature []byte             `json:"signature"`
}

// EntryReference identifies an accepted revision in the log.
// For create operations both IDs equal the entry hash.
type EntryReference struct {
	DocumentID string `json:"document_id"`
	ViewID     string `json:"view_id"`
}

// Validate checks that both IDs are present and decode as CIDs.
func (r EntryReference) Validate() error {
	if r.DocumentID == "" || r.ViewID == "" {
		return errors.New("entry reference has empty document or view id")
	}
	if _, err := cid.Decode(r.DocumentID); err != nil {
		return fmt.Errorf("invalid document id: %w", err)
	}
	if _, err := cid.Decode(r.ViewID); err != nil {
		return fmt.Errorf("invalid view id: %w", err)
	}
	return nil
}

// Sign encodes op and signs it with kp.
func Sign(kp *identity.KeyPair, op *Operation) (*SignedOperation, error) {
	payload, err := op.Encode()
	if err != nil {
		return nil, err
	}
	return &SignedOperation{
		Payload:   payload,
		PublicKey: kp.PublicKey(),
		Signature: kp.Sign(payload),
	}, nil
}

// Verify checks the signature against the embedded public key.
func (s *SignedOperation) Verify() error {
	if err := s.PublicKey.Validate(); err != nil {
		return err
	}
	if !identity.Verify(s.PublicKey, s.Payload, s.Signature) {
		return errors.New("signature does not match operation and public key")
	}
	return nil
}

// Envelope returns the canonical encoding of the whole signed operation.
// It is the input to the entry hash.
func (s *SignedOperation) Envelope() ([]byte, error) {
	return marshalCanonical(map[string]any{
		"operation":  base64.StdEncoding.EncodeToString(s.Payload),
		"public_key": string(s.PublicKey),
		"signature":  base64.StdEncoding.EncodeToString(s.Signature),
	})
}

// Hash computes the entry hash: a CIDv1 (raw codec) with a sha2-256
// multihash over the canonical envelope. Signatures are deterministic, so
// resubmitting the same signed operation yields the same hash.
func (s *SignedOperation) Hash() (cid.Cid, error) {
	envelope, err := s.Envelope()
	if err != nil {
		return cid.Undef, err
	}
	sum, err := multihash.Sum(envelope, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("failed to hash entry: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Reference returns the entry reference a create operation will receive.
func (s *SignedOperation) Reference() (EntryReference, error) {
	h, err := s.Hash()
	if err != nil {
		return EntryReference{}, err
	}
	id := h.String()
	return EntryReference{DocumentID: id, ViewID: id}, nil
}
