package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoKey is returned by a Store that has nothing persisted yet.
var ErrNoKey = errors.New("no key stored")

// Store persists the seed of a process identity between runs.
type Store interface {
	// Load returns the stored seed, or ErrNoKey if none exists.
	Load() ([]byte, error)
	// Save persists seed, replacing anything stored before.
	Save(seed []byte) error
}

// FileStore keeps the seed as a hex string in a single file.
type FileStore struct {
	Path string
}

// NewFileStore returns a FileStore for path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads and decodes the seed file.
func (s *FileStore) Load() ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoKey
		}
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	seedHex := strings.TrimSpace(string(data))
	seedHex = strings.TrimPrefix(seedHex, "0x")
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid key file %s: %w", s.Path, err)
	}
	return seed, nil
}

// Save writes the seed with owner-only permissions.
func (s *FileStore) Save(seed []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(s.Path, []byte(hex.EncodeToString(seed)+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// LoadOrCreate returns the identity held by store, creating and saving a new
// one when the store is empty. A nil store yields a fresh ephemeral identity.
// The second return value reports whether a new key was generated.
func LoadOrCreate(store Store) (*KeyPair, bool, error) {
	if store == nil {
		kp, err := New()
		return kp, true, err
	}

	seed, err := store.Load()
	switch {
	case err == nil:
		kp, err := FromSeed(seed)
		if err != nil {
			return nil, false, fmt.Errorf("stored key is invalid: %w", err)
		}
		return kp, false, nil
	case errors.Is(err, ErrNoKey):
		kp, err := New()
		if err != nil {
			return nil, false, err
		}
		if err := store.Save(kp.Seed()); err != nil {
			return nil, false, err
		}
		return kp, true, nil
	default:
		return nil, false, err
	}
}
