package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Partition names one durable record collection. Each partition is read and
// written wholesale; there is no partial-record update at this layer.
type Partition string

const (
	PartitionUsers     Partition = "users"
	PartitionLocations Partition = "locations"
	PartitionLogs      Partition = "logs"
	PartitionSession   Partition = "session"
)

// ErrCapacityExceeded is returned by Save when the medium rejects a payload
// that would exceed its configured quota. Callers must treat it as a
// catchable fault, never a crash.
var ErrCapacityExceeded = errors.New("store: partition capacity exceeded")

// Store is the whole-partition load/save contract over a durable local
// medium. Load returns a nil payload when the partition has never been
// written. Implementations are injected so tests can substitute in-memory
// fakes.
type Store interface {
	Load(ctx context.Context, partition Partition) ([]byte, error)
	Save(ctx context.Context, partition Partition, payload []byte) error
}

// LoadJSON decodes an entire partition into dest. An absent partition leaves
// dest untouched and reports found=false.
func LoadJSON(ctx context.Context, s Store, partition Partition, dest any) (bool, error) {
	payload, err := s.Load(ctx, partition)
	if err != nil {
		return false, fmt.Errorf("load partition %s: %w", partition, err)
	}
	if payload == nil {
		return false, nil
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("decode partition %s: %w", partition, err)
	}
	return true, nil
}

// SaveJSON serializes value and overwrites the entire partition.
func SaveJSON(ctx context.Context, s Store, partition Partition, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode partition %s: %w", partition, err)
	}
	if err := s.Save(ctx, partition, payload); err != nil {
		return fmt.Errorf("save partition %s: %w", partition, err)
	}
	return nil
}
