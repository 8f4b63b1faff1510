package neighbor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hayate/erabu/internal/models"
	"github.com/hayate/erabu/internal/store"
)

// Neighbor is a single nearest-neighbor hit.
type Neighbor struct {
	UID      string
	Distance float64
}

// Options configures an Index.
type Options struct {
	Metric         Metric
	BitLength      int
	RandomSeed     int64
	UseBucketTable bool
}

// Index is an approximate nearest-neighbor index over locality-sensitive
// hash codes. Queries run lock-free against the current snapshot; rebuilds
// happen off-path and publish via a single atomic pointer swap, so in-flight
// queries keep the snapshot they started with.
type Index struct {
	store    store.DescriptorStore
	opts     Options
	distFunc DistanceFunc

	snap     atomic.Pointer[Snapshot]
	buildSeq atomic.Uint64
	reload   atomic.Bool

	statusMu sync.Mutex
	status   models.IndexStatus
}

// New creates an index over st. The index serves ErrIndexUnavailable until
// the first successful Build.
func New(st store.DescriptorStore, opts Options) (*Index, error) {
	distFunc, err := Provider(opts.Metric)
	if err != nil {
		return nil, err
	}
	if opts.BitLength <= 0 || opts.BitLength > 64 {
		return nil, fmt.Errorf("bit length must be in 1..64, got %d", opts.BitLength)
	}
	return &Index{store: st, opts: opts, distFunc: distFunc}, nil
}

// Build constructs a fresh snapshot from the full descriptor corpus and
// installs it atomically. On failure the previous snapshot (if any) stays
// in place and the failure is recorded in the status.
func (ix *Index) Build(ctx context.Context) error {
	version := ix.buildSeq.Add(1)
	snap, err := buildSnapshot(ctx, ix.store, ix.opts.BitLength, ix.opts.RandomSeed, ix.opts.UseBucketTable, version)

	ix.statusMu.Lock()
	defer ix.statusMu.Unlock()
	if err != nil {
		ix.status.LastError = fmt.Sprintf("%v: %v", models.ErrRebuildFailed, err)
		return fmt.Errorf("%w: %w", models.ErrRebuildFailed, err)
	}
	ix.snap.Store(snap)
	ix.status = models.IndexStatus{
		Version:       snap.Version(),
		Size:          snap.Size(),
		Rebuilds:      ix.status.Rebuilds + 1,
		LastBuildTime: time.Now(),
	}
	return nil
}

// Nearest returns the k nearest UIDs to the query vector. Bucket members
// are collected in Hamming order around the query's code, then re-ranked
// with the configured metric; ties break by UID ascending.
func (ix *Index) Nearest(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	snap := ix.snap.Load()
	if snap == nil {
		return nil, models.ErrIndexUnavailable
	}
	if k <= 0 {
		return nil, nil
	}

	code, err := snap.functor.Hash(query)
	if err != nil {
		return nil, err
	}
	candidates := snap.gather(code, k)
	if len(candidates) == 0 {
		return nil, nil
	}

	vectors, _, err := ix.store.GetMany(ctx, candidates)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", models.ErrTimeout, err)
		}
		return nil, err
	}

	neighbors := make([]Neighbor, 0, len(vectors))
	for _, uid := range candidates {
		vec, ok := vectors[uid]
		if !ok {
			continue
		}
		neighbors = append(neighbors, Neighbor{UID: uid, Distance: ix.distFunc(query, vec)})
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].UID < neighbors[j].UID
	})
	if k > len(neighbors) {
		k = len(neighbors)
	}
	return neighbors[:k], nil
}

// NearestUID looks up uid's vector in the store and returns its k nearest
// neighbors.
func (ix *Index) NearestUID(ctx context.Context, uid string, k int) ([]Neighbor, error) {
	vec, err := ix.store.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	return ix.Nearest(ctx, vec, k)
}

// RequestReload marks the index for rebuild. The reload monitor picks the
// flag up on its next poll; without a running monitor the flag has no
// effect and the snapshot stays unchanged.
func (ix *Index) RequestReload() {
	ix.reload.Store(true)
}

// consumeReload returns and clears the pending-reload flag.
func (ix *Index) consumeReload() bool {
	return ix.reload.Swap(false)
}

// Ready reports whether a snapshot has been installed.
func (ix *Index) Ready() bool {
	return ix.snap.Load() != nil
}

// Version returns the current snapshot version, or 0 when no snapshot is
// installed yet.
func (ix *Index) Version() uint64 {
	snap := ix.snap.Load()
	if snap == nil {
		return 0
	}
	return snap.Version()
}

// Status returns a copy of the index health status. Rebuild failures are
// surfaced here rather than thrown to in-flight queries.
func (ix *Index) Status() models.IndexStatus {
	ix.statusMu.Lock()
	defer ix.statusMu.Unlock()
	return ix.status
}
