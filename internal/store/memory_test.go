package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hayate/erabu/internal/models"
)

func TestMemoryStore_GetContains(t *testing.T) {
	m := NewMemoryStore(0)
	if err := m.Add(
		models.Descriptor{UID: "u1", Vector: []float32{1, 0}},
		models.Descriptor{UID: "u2", Vector: []float32{0, 1}},
	); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	vec, err := m.Get(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if vec[0] != 1 {
		t.Errorf("vector=%v", vec)
	}
	if _, err := m.Get(ctx, "u3"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	ok, _ := m.Contains(ctx, "u2")
	if !ok {
		t.Error("u2 should be present")
	}
	if m.Dimensions() != 2 {
		t.Errorf("Dimensions=%d", m.Dimensions())
	}
}

func TestMemoryStore_DimensionMismatch(t *testing.T) {
	m := NewMemoryStore(2)
	err := m.Add(models.Descriptor{UID: "u1", Vector: []float32{1, 2, 3}})
	var dm *models.DimensionMismatchError
	if !errors.As(err, &dm) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if dm.Expected != 2 || dm.Actual != 3 {
		t.Errorf("expected=%d actual=%d", dm.Expected, dm.Actual)
	}
}

func TestMemoryStore_GetMany(t *testing.T) {
	m := NewMemoryStore(0)
	_ = m.Add(
		models.Descriptor{UID: "a", Vector: []float32{1}},
		models.Descriptor{UID: "b", Vector: []float32{2}},
	)
	got, missing, err := m.GetMany(context.Background(), []string{"a", "z", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || len(missing) != 1 || missing[0] != "z" {
		t.Errorf("got=%v missing=%v", got, missing)
	}
}

// countingStore records how many Get calls reach the underlying store.
type countingStore struct {
	*MemoryStore
	gets int
}

func (c *countingStore) Get(ctx context.Context, uid string) ([]float32, error) {
	c.gets++
	return c.MemoryStore.Get(ctx, uid)
}

func TestCachedStore_ServesRepeatReadsFromCache(t *testing.T) {
	inner := &countingStore{MemoryStore: NewMemoryStore(0)}
	_ = inner.Add(models.Descriptor{UID: "u1", Vector: []float32{1, 2}})
	c := NewCachedStore(inner, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Get(ctx, "u1"); err != nil {
			t.Fatal(err)
		}
	}
	if inner.gets != 1 {
		t.Errorf("expected 1 inner Get, got %d", inner.gets)
	}

	got, missing, err := c.GetMany(ctx, []string{"u1", "zz"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || len(missing) != 1 {
		t.Errorf("got=%v missing=%v", got, missing)
	}
	if inner.gets != 1 {
		t.Errorf("GetMany should not refetch cached uid, inner gets=%d", inner.gets)
	}
}

func TestNewFactory(t *testing.T) {
	s, err := New("memory", Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("expected MemoryStore, got %T", s)
	}
	if _, err := New("bogus", Options{}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
