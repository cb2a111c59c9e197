package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"creditnet/storage"
)

var errNilDatabase = errors.New("state: database not configured")

// Manager provides RLP-encoded typed access on top of the raw key-value
// database. Native modules consume it through narrow per-module interfaces so
// they never depend on the full surface.
type Manager struct {
	db storage.Database
}

// NewManager wraps the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVGet decodes the stored value for key into out. The boolean reports whether
// the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, errNilDatabase
	}
	encoded, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut encodes value with RLP and stores it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, encoded)
}

// NextSequence increments and returns the named monotonic counter. The first
// call returns 1.
func (m *Manager) NextSequence(name []byte) (uint64, error) {
	if m == nil || m.db == nil {
		return 0, errNilDatabase
	}
	key := append([]byte("seq/"), name...)
	var current uint64
	encoded, err := m.db.Get(key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return 0, err
	default:
		if len(encoded) != 8 {
			return 0, fmt.Errorf("state: corrupt sequence %q", name)
		}
		current = binary.BigEndian.Uint64(encoded)
	}
	next := current + 1
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := m.db.Put(key, buf); err != nil {
		return 0, err
	}
	return next, nil
}
