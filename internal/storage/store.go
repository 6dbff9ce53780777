// Package storage implements the persistence gateway: a pure serialization
// boundary over a local key-value record store. Absence and parse failure
// are the same condition to callers; neither is ever an error to crash on.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record key is absent or its stored value
// cannot be decoded.
var ErrNotFound = errors.New("record not found")

// Record keys for the three independent persisted records.
const (
	KeyBoard   = "taskflow_kanban"
	KeySession = "taskflow_session"
	KeyUser    = "taskflow_user"
)

// Store defines the interface for raw record storage operations.
type Store interface {
	// Get returns the stored value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores the value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close closes the store (for database connections).
	Close() error
}
