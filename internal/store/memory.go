package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hayate/erabu/internal/models"
)

// MemoryStore is an in-memory descriptor store. Population happens through
// Add before serving; reads are safe for unsynchronized concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	vectors map[string][]float32
	dims    int
}

// NewMemoryStore creates an empty in-memory store. dims may be zero, in
// which case it is fixed by the first added descriptor.
func NewMemoryStore(dims int) *MemoryStore {
	return &MemoryStore{
		vectors: make(map[string][]float32),
		dims:    dims,
	}
}

// Add inserts descriptors. All vectors must share one dimensionality.
func (m *MemoryStore) Add(descriptors ...models.Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range descriptors {
		if m.dims == 0 {
			m.dims = len(d.Vector)
		}
		if len(d.Vector) != m.dims {
			return models.NewDimensionMismatch(m.dims, len(d.Vector), nil)
		}
		vec := make([]float32, len(d.Vector))
		copy(vec, d.Vector)
		m.vectors[d.UID] = vec
	}
	return nil
}

// Get returns the vector for uid.
func (m *MemoryStore) Get(ctx context.Context, uid string) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vec, ok := m.vectors[uid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, uid)
	}
	return vec, nil
}

// GetMany returns vectors for uids; absent UIDs are reported in missing.
func (m *MemoryStore) GetMany(ctx context.Context, uids []string) (map[string][]float32, []string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]float32, len(uids))
	var missing []string
	for _, uid := range uids {
		if vec, ok := m.vectors[uid]; ok {
			out[uid] = vec
		} else {
			missing = append(missing, uid)
		}
	}
	return out, missing, nil
}

// Contains reports whether uid is present.
func (m *MemoryStore) Contains(ctx context.Context, uid string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.vectors[uid]
	return ok, nil
}

// UIDs returns all stored UIDs in ascending order.
func (m *MemoryStore) UIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uids := make([]string, 0, len(m.vectors))
	for uid := range m.vectors {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids, nil
}

// Count returns the number of stored descriptors.
func (m *MemoryStore) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.vectors)), nil
}

// Dimensions returns the vector dimensionality, or 0 when empty.
func (m *MemoryStore) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dims
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}
