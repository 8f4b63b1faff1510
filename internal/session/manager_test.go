package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hayate/erabu/internal/config"
	"github.com/hayate/erabu/internal/models"
	"github.com/hayate/erabu/internal/neighbor"
	"github.com/hayate/erabu/internal/store"
)

// testManager builds a manager over a small in-memory corpus with the
// neighbor index already built. Descriptors form two 2D clusters plus an
// outlier, mirroring the index tests.
func testManager(t *testing.T) (*Manager, *store.MemoryStore) {
	t.Helper()

	st := store.NewMemoryStore(0)
	err := st.Add(
		models.Descriptor{UID: "u1", Vector: []float32{1.0, 1.0}},
		models.Descriptor{UID: "u2", Vector: []float32{1.1, 0.9}},
		models.Descriptor{UID: "u3", Vector: []float32{0.9, 1.1}},
		models.Descriptor{UID: "u4", Vector: []float32{-1.0, -1.0}},
		models.Descriptor{UID: "u5", Vector: []float32{-1.1, -0.9}},
		models.Descriptor{UID: "u6", Vector: []float32{10.0, 10.0}},
	)
	if err != nil {
		t.Fatal(err)
	}

	ix, err := neighbor.New(st, neighbor.Options{
		Metric:         neighbor.MetricEuclidean,
		BitLength:      8,
		RandomSeed:     42,
		UseBucketTable: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ix.Build(context.Background()); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Session.PositiveSeedNeighbors = 3

	return NewManager(st, ix, cfg, zap.NewNop()), st
}

func TestCreate_SeedsPool(t *testing.T) {
	m, _ := testManager(t)

	info, err := m.Create(context.Background(), []string{"u1"})
	if err != nil {
		t.Fatal(err)
	}
	if info.State != models.SessionActive {
		t.Errorf("new session state = %s, want ACTIVE", info.State)
	}
	if len(info.PositiveUIDs) != 1 || info.PositiveUIDs[0] != "u1" {
		t.Errorf("positives = %v, want [u1]", info.PositiveUIDs)
	}
	// neighbors of u1 seed the candidate pool alongside u1 itself
	if info.CandidatePoolSize < 3 {
		t.Errorf("candidate pool size = %d, want at least 3", info.CandidatePoolSize)
	}
}

func TestCreate_UnknownPositive(t *testing.T) {
	m, _ := testManager(t)
	_, err := m.Create(context.Background(), []string{"u1", "ghost"})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("failed create must not register a session")
	}
}

func TestCreate_NoPositives(t *testing.T) {
	m, _ := testManager(t)
	_, err := m.Create(context.Background(), nil)
	if !errors.Is(err, models.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestAdjudicate_SetExclusivity(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, []string{"u1", "u2"})
	if err != nil {
		t.Fatal(err)
	}

	// flip u2 from positive to negative
	info, err = m.Adjudicate(ctx, info.ID, models.AdjudicationInput{AddNegative: []string{"u2"}})
	if err != nil {
		t.Fatal(err)
	}
	for _, uid := range info.PositiveUIDs {
		if uid == "u2" {
			t.Errorf("u2 still in positives after negative adjudication: %v", info.PositiveUIDs)
		}
	}
	if len(info.NegativeUIDs) != 1 || info.NegativeUIDs[0] != "u2" {
		t.Errorf("negatives = %v, want [u2]", info.NegativeUIDs)
	}
}

func TestAdjudicate_PoolNeverShrinks(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, []string{"u1"})
	if err != nil {
		t.Fatal(err)
	}
	before := info.CandidatePoolSize

	info, err = m.Adjudicate(ctx, info.ID, models.AdjudicationInput{AddNegative: []string{"u6"}})
	if err != nil {
		t.Fatal(err)
	}
	if info.CandidatePoolSize < before {
		t.Errorf("pool shrank from %d to %d", before, info.CandidatePoolSize)
	}

	// removing an example must not evict it from the pool
	info, err = m.Adjudicate(ctx, info.ID, models.AdjudicationInput{RemoveNegative: []string{"u6"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(info.NegativeUIDs) != 0 {
		t.Errorf("negatives = %v, want empty", info.NegativeUIDs)
	}
	if info.CandidatePoolSize < before+1 {
		t.Errorf("pool lost a member after example removal: %d", info.CandidatePoolSize)
	}
}

func TestAdjudicate_UnknownUIDLeavesSessionUnchanged(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, []string{"u1"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.Adjudicate(ctx, info.ID, models.AdjudicationInput{AddPositive: []string{"ghost"}})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	after, err := m.Info(ctx, info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(after.PositiveUIDs) != 1 {
		t.Errorf("positives changed after failed adjudication: %v", after.PositiveUIDs)
	}
}

func TestRefine_RanksPositivesHigh(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, []string{"u1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Adjudicate(ctx, info.ID, models.AdjudicationInput{AddNegative: []string{"u4"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Refine(ctx, info.ID); err != nil {
		t.Fatal(err)
	}

	page, err := m.Results(ctx, info.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total == 0 {
		t.Fatal("refine produced no results")
	}
	if page.Results[0].UID != "u1" {
		t.Errorf("top result = %s, want the positive example u1", page.Results[0].UID)
	}
	for i := 1; i < len(page.Results); i++ {
		if page.Results[i].Score > page.Results[i-1].Score {
			t.Errorf("ranking not descending at %d: %v", i, page.Results)
		}
	}
}

func TestRefine_Deterministic(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	run := func() []models.RankedItem {
		info, err := m.Create(ctx, []string{"u1"})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := m.Adjudicate(ctx, info.ID, models.AdjudicationInput{AddNegative: []string{"u4"}}); err != nil {
			t.Fatal(err)
		}
		if _, err := m.Refine(ctx, info.ID); err != nil {
			t.Fatal(err)
		}
		page, err := m.Results(ctx, info.ID, 0, 0)
		if err != nil {
			t.Fatal(err)
		}
		return page.Results
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("result counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("rankings diverge at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestClassify_InsufficientNegatives(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, []string{"u1"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.Classify(ctx, info.ID)
	if !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}

	// example sets untouched by the failed classify
	after, err := m.Info(ctx, info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(after.PositiveUIDs) != 1 || len(after.NegativeUIDs) != 0 {
		t.Errorf("example sets changed: pos=%v neg=%v", after.PositiveUIDs, after.NegativeUIDs)
	}
}

func TestClassify_RanksWholeStore(t *testing.T) {
	m, st := testManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, []string{"u1", "u2"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Adjudicate(ctx, info.ID, models.AdjudicationInput{AddNegative: []string{"u4", "u5"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Classify(ctx, info.ID); err != nil {
		t.Fatal(err)
	}

	page, err := m.Results(ctx, info.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	count, err := st.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if int64(page.Total) != count {
		t.Errorf("classify ranked %d descriptors, want whole store (%d)", page.Total, count)
	}
}

func TestResults_Paging(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, []string{"u1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Refine(ctx, info.ID); err != nil {
		t.Fatal(err)
	}

	full, err := m.Results(ctx, info.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	page, err := m.Results(ctx, info.ID, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != full.Total || page.Offset != 1 {
		t.Errorf("page meta total=%d offset=%d, want total=%d offset=1", page.Total, page.Offset, full.Total)
	}
	want := 2
	if full.Total-1 < want {
		want = full.Total - 1
	}
	if len(page.Results) != want {
		t.Errorf("page size = %d, want %d", len(page.Results), want)
	}
	if len(page.Results) > 0 && page.Results[0] != full.Results[1] {
		t.Errorf("page start mismatch: %v vs %v", page.Results[0], full.Results[1])
	}

	beyond, err := m.Results(ctx, info.ID, full.Total+10, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(beyond.Results) != 0 {
		t.Errorf("offset past end should yield empty page, got %v", beyond.Results)
	}
}

func TestReset_KeepsSessionActive(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, []string{"u1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Refine(ctx, info.ID); err != nil {
		t.Fatal(err)
	}

	info, err = m.Reset(ctx, info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if info.State != models.SessionActive {
		t.Errorf("reset session state = %s, want ACTIVE", info.State)
	}
	if len(info.PositiveUIDs) != 0 || info.CandidatePoolSize != 0 || info.ResultCount != 0 {
		t.Errorf("reset left state behind: %+v", info)
	}

	// still usable
	if _, err := m.Adjudicate(ctx, info.ID, models.AdjudicationInput{AddPositive: []string{"u3"}}); err != nil {
		t.Errorf("adjudicate after reset failed: %v", err)
	}
}

func TestDelete_ThenOperationsFail(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, []string{"u1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, info.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Refine(ctx, info.ID); !errors.Is(err, models.ErrSessionInvalid) {
		t.Errorf("expected ErrSessionInvalid after delete, got %v", err)
	}
	if err := m.Delete(ctx, info.ID); !errors.Is(err, models.ErrSessionInvalid) {
		t.Errorf("double delete should fail with ErrSessionInvalid, got %v", err)
	}
}

func TestUnknownSession(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()
	if _, err := m.Refine(ctx, "nope"); !errors.Is(err, models.ErrSessionInvalid) {
		t.Errorf("expected ErrSessionInvalid, got %v", err)
	}
	if _, err := m.Info(ctx, "nope"); !errors.Is(err, models.ErrSessionInvalid) {
		t.Errorf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestSweep_ExpiresIdleSessions(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, []string{"u1"})
	if err != nil {
		t.Fatal(err)
	}

	m.mu.RLock()
	s := m.sessions[info.ID]
	m.mu.RUnlock()

	s.mu.Lock()
	s.lastActivity = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()

	m.sweep(time.Now(), time.Hour)

	after, err := m.Info(ctx, info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.State != models.SessionExpired {
		t.Errorf("session state = %s, want EXPIRED", after.State)
	}
	if _, err := m.Adjudicate(ctx, info.ID, models.AdjudicationInput{AddPositive: []string{"u2"}}); !errors.Is(err, models.ErrSessionInvalid) {
		t.Errorf("expected ErrSessionInvalid on expired session, got %v", err)
	}

	// expired sessions can still be deleted
	if err := m.Delete(ctx, info.ID); err != nil {
		t.Errorf("delete of expired session failed: %v", err)
	}
}

func TestSweep_ExactTimeoutBoundary(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, []string{"u1"})
	if err != nil {
		t.Fatal(err)
	}

	m.mu.RLock()
	s := m.sessions[info.ID]
	m.mu.RUnlock()

	// expiration requires idle time strictly greater than the timeout:
	// a session idle for exactly session_timeout stays active
	timeout := time.Hour
	last := time.Now().Add(-2 * timeout)
	s.mu.Lock()
	s.lastActivity = last
	s.mu.Unlock()

	m.sweep(last.Add(timeout), timeout)

	after, err := m.Info(ctx, info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.State != models.SessionActive {
		t.Errorf("session idle for exactly the timeout was expired: %s", after.State)
	}

	// one tick past the boundary expires
	m.sweep(last.Add(timeout+time.Nanosecond), timeout)

	after, err = m.Info(ctx, info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.State != models.SessionExpired {
		t.Errorf("session idle past the timeout not expired: %s", after.State)
	}
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	m, _ := testManager(t)
	m.cfg.Session.Expiration.Enabled = true
	m.cfg.Session.Expiration.CheckIntervalSeconds = 1

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunSweeper(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
