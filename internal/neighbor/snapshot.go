package neighbor

import (
	"context"
	"math/bits"
	"sort"

	"github.com/hayate/erabu/internal/store"
)

// Snapshot is one fully-built, immutable state of the index: the hash
// functor plus the bucket membership it induced. Readers always see a
// complete snapshot; rebuilds produce a new one and swap it in atomically.
type Snapshot struct {
	version uint64
	functor *Functor
	buckets map[uint64][]string
	// codeTable is the optional secondary structure: the sorted, deduped
	// set of occupied codes. Nil when the table is disabled, in which case
	// queries assemble the bucket list by a linear scan over the map.
	codeTable []uint64
	size      int
}

// Version returns the snapshot's monotonically increasing build number.
func (s *Snapshot) Version() uint64 { return s.version }

// Size returns the number of indexed descriptors.
func (s *Snapshot) Size() int { return s.size }

// buildSnapshot hashes the full corpus from the store into buckets.
func buildSnapshot(ctx context.Context, st store.DescriptorStore, bitLength int, seed int64, useTable bool, version uint64) (*Snapshot, error) {
	uids, err := st.UIDs(ctx)
	if err != nil {
		return nil, err
	}
	vectors, _, err := st.GetMany(ctx, uids)
	if err != nil {
		return nil, err
	}

	functor, err := trainFunctor(vectors, bitLength, seed)
	if err != nil {
		return nil, err
	}

	buckets := make(map[uint64][]string)
	// uids are sorted, so bucket member order is deterministic
	for _, uid := range uids {
		vec, ok := vectors[uid]
		if !ok {
			continue
		}
		code, err := functor.Hash(vec)
		if err != nil {
			return nil, err
		}
		buckets[code] = append(buckets[code], uid)
	}

	snap := &Snapshot{
		version: version,
		functor: functor,
		buckets: buckets,
		size:    len(vectors),
	}
	if useTable {
		table := make([]uint64, 0, len(buckets))
		for code := range buckets {
			table = append(table, code)
		}
		sort.Slice(table, func(i, j int) bool { return table[i] < table[j] })
		snap.codeTable = table
	}
	return snap, nil
}

// nearCodes returns occupied codes ordered by Hamming distance to code,
// ties by code value for determinism.
func (s *Snapshot) nearCodes(code uint64) []uint64 {
	var codes []uint64
	if s.codeTable != nil {
		codes = append([]uint64(nil), s.codeTable...)
	} else {
		// linear scan fallback: assemble the bucket list at query time
		codes = make([]uint64, 0, len(s.buckets))
		for c := range s.buckets {
			codes = append(codes, c)
		}
	}
	sort.Slice(codes, func(i, j int) bool {
		di := bits.OnesCount64(codes[i] ^ code)
		dj := bits.OnesCount64(codes[j] ^ code)
		if di != dj {
			return di < dj
		}
		return codes[i] < codes[j]
	})
	return codes
}

// gather collects bucket members in nearest-bucket order until at least
// want members are collected or the buckets run out.
func (s *Snapshot) gather(code uint64, want int) []string {
	var members []string
	for _, c := range s.nearCodes(code) {
		members = append(members, s.buckets[c]...)
		if len(members) >= want {
			break
		}
	}
	return members
}
