// Package store defines the descriptor store interface and its backends.
//
// The store is the only component that holds vector data; everything else
// refers to descriptors by UID. The service treats it as read-only:
// population happens in an external pipeline.
package store

import (
	"context"
	"fmt"
)

// DescriptorStore provides read access to UID->vector records.
type DescriptorStore interface {
	// Get returns the vector for uid, or models.ErrNotFound.
	Get(ctx context.Context, uid string) ([]float32, error)
	// GetMany returns vectors for the given UIDs. Missing UIDs are reported
	// in the second return value rather than aborting the whole batch.
	// Retrieval is chunked internally to the configured batch size.
	GetMany(ctx context.Context, uids []string) (map[string][]float32, []string, error)
	// Contains reports whether uid is present.
	Contains(ctx context.Context, uid string) (bool, error)
	// UIDs returns all stored UIDs in ascending order.
	UIDs(ctx context.Context) ([]string, error)
	// Count returns the number of stored descriptors.
	Count(ctx context.Context) (int64, error)
	// Dimensions returns the vector dimensionality, or 0 when empty.
	Dimensions() int
	Close() error
}

// Backend identifies a descriptor store implementation.
type Backend string

const (
	// BackendSQLite reads descriptors from a SQLite database populated
	// out-of-band. The default.
	BackendSQLite Backend = "sqlite"
	// BackendMemory keeps descriptors in memory. Good for tests and small
	// corpora.
	BackendMemory Backend = "memory"
)

// Options configures store construction.
type Options struct {
	DatabasePath string
	ReadOnly     bool
	BatchSize    int
}

// New creates a descriptor store of the given backend type.
// Supported backends: "sqlite" (default), "memory".
func New(backend string, opts Options) (DescriptorStore, error) {
	switch Backend(backend) {
	case BackendSQLite, "":
		return NewSQLiteStore(opts.DatabasePath, opts.ReadOnly, opts.BatchSize)
	case BackendMemory:
		return NewMemoryStore(0), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s (supported: sqlite, memory)", backend)
	}
}
