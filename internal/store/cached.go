package store

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedStore wraps a DescriptorStore with a TTL read cache. Descriptors
// are immutable, so entries never go stale; the TTL only bounds memory.
type CachedStore struct {
	inner DescriptorStore
	cache *gocache.Cache
}

// NewCachedStore creates a caching wrapper around inner. Expired entries
// are purged at twice the TTL.
func NewCachedStore(inner DescriptorStore, ttl time.Duration) *CachedStore {
	return &CachedStore{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Get returns the vector for uid, serving repeated reads from the cache.
func (c *CachedStore) Get(ctx context.Context, uid string) ([]float32, error) {
	if v, found := c.cache.Get(uid); found {
		return v.([]float32), nil
	}
	vec, err := c.inner.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	c.cache.Set(uid, vec, gocache.DefaultExpiration)
	return vec, nil
}

// GetMany serves cached UIDs locally and fetches only the remainder from
// the inner store.
func (c *CachedStore) GetMany(ctx context.Context, uids []string) (map[string][]float32, []string, error) {
	out := make(map[string][]float32, len(uids))
	var fetch []string
	for _, uid := range uids {
		if v, found := c.cache.Get(uid); found {
			out[uid] = v.([]float32)
		} else {
			fetch = append(fetch, uid)
		}
	}
	if len(fetch) == 0 {
		return out, nil, nil
	}
	fetched, missing, err := c.inner.GetMany(ctx, fetch)
	if err != nil {
		return nil, nil, err
	}
	for uid, vec := range fetched {
		out[uid] = vec
		c.cache.Set(uid, vec, gocache.DefaultExpiration)
	}
	return out, missing, nil
}

// Contains reports whether uid is present.
func (c *CachedStore) Contains(ctx context.Context, uid string) (bool, error) {
	if _, found := c.cache.Get(uid); found {
		return true, nil
	}
	return c.inner.Contains(ctx, uid)
}

// UIDs returns all stored UIDs in ascending order.
func (c *CachedStore) UIDs(ctx context.Context) ([]string, error) {
	return c.inner.UIDs(ctx)
}

// Count returns the number of stored descriptors.
func (c *CachedStore) Count(ctx context.Context) (int64, error) {
	return c.inner.Count(ctx)
}

// Dimensions returns the vector dimensionality of the inner store.
func (c *CachedStore) Dimensions() int {
	return c.inner.Dimensions()
}

// Close flushes the cache and closes the inner store.
func (c *CachedStore) Close() error {
	c.cache.Flush()
	return c.inner.Close()
}
