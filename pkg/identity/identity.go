// Package identity holds the ed25519 keypair that authors every operation a
// stash process submits.
//
// A process creates exactly one KeyPair at startup and keeps it for its whole
// lifetime. All operations submitted by that process are attributed to the
// same public key. Whether the key survives a restart is decided by the Store
// handed to LoadOrCreate: a nil store gives an ephemeral identity.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// PublicKey is the lowercase hex encoding of an ed25519 public key.
type PublicKey string

// KeyPair is an ed25519 signing keypair.
// The private key never leaves this struct.
type KeyPair struct {
	private ed25519.PrivateKey
	public  PublicKey
}

// New generates a fresh keypair from crypto/rand.
func New() (*KeyPair, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to read random seed: %w", err)
	}
	return FromSeed(seed)
}

// FromSeed derives a keypair from a 32-byte ed25519 seed.
func FromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	private := ed25519.NewKeyFromSeed(seed)
	public := private.Public().(ed25519.PublicKey)

	return &KeyPair{
		private: private,
		public:  PublicKey(hex.EncodeToString(public)),
	}, nil
}

// PublicKey returns the hex encoded public key.
func (k *KeyPair) PublicKey() PublicKey {
	return k.public
}

// Sign signs payload with the private key.
func (k *KeyPair) Sign(payload []byte) []byte {
	return ed25519.Sign(k.private, payload)
}

// Seed returns a copy of the private seed, for persisting via a Store.
func (k *KeyPair) Seed() []byte {
	seed := k.private.Seed()
	out := make([]byte, len(seed))
	copy(out, seed)
	return out
}

// Bytes decodes the public key into raw ed25519 bytes.
func (p PublicKey) Bytes() (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(string(p))
	if err != nil {
		return nil, fmt.Errorf("invalid public key encoding: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key length: expected %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// Validate checks that p is a well formed public key.
func (p PublicKey) Validate() error {
	_, err := p.Bytes()
	return err
}

// Verify reports whether sig is a valid signature of payload by pub.
// Malformed keys verify as false.
func Verify(pub PublicKey, payload, sig []byte) bool {
	raw, err := pub.Bytes()
	if err != nil {
		return false
	}
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(raw, payload, sig)
}
