package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/securepatrol-id/securepatrol-backend/pkg/store"
)

// Store is an in-memory Persistent Store fake for tests. It honors the same
// whole-partition overwrite contract as the SQLite client, including the
// capacity fault path.
type Store struct {
	mu       sync.Mutex
	data     map[store.Partition][]byte
	maxBytes int

	// FailNextSave, when set, is returned by the next Save call and then
	// cleared. Used to exercise retryable submit failures.
	FailNextSave error
}

var _ store.Store = (*Store)(nil)

// New returns an empty in-memory store without a capacity ceiling.
func New() *Store {
	return &Store{data: make(map[store.Partition][]byte)}
}

// NewWithCapacity returns an in-memory store that rejects payloads larger
// than maxBytes.
func NewWithCapacity(maxBytes int) *Store {
	s := New()
	s.maxBytes = maxBytes
	return s
}

func (s *Store) Load(_ context.Context, partition store.Partition) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.data[partition]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return cp, nil
}

func (s *Store) Save(_ context.Context, partition store.Partition, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNextSave != nil {
		err := s.FailNextSave
		s.FailNextSave = nil
		return err
	}
	if s.maxBytes > 0 && len(payload) > s.maxBytes {
		return fmt.Errorf("%w: %s payload %d bytes exceeds %d", store.ErrCapacityExceeded, partition, len(payload), s.maxBytes)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.data[partition] = cp
	return nil
}
