package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hayate/erabu/internal/classifier"
	"github.com/hayate/erabu/internal/config"
	"github.com/hayate/erabu/internal/models"
	"github.com/hayate/erabu/internal/neighbor"
	"github.com/hayate/erabu/internal/relevancy"
	"github.com/hayate/erabu/internal/store"
)

// Manager owns all sessions and runs their operations against the shared
// descriptor store and neighbor index. Operations on one session are
// serialized by the session's own mutex; different sessions proceed in
// parallel.
type Manager struct {
	store  store.DescriptorStore
	index  *neighbor.Index
	cfg    *config.Config
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager with the given dependencies.
func NewManager(st store.DescriptorStore, ix *neighbor.Index, cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		store:    st,
		index:    ix,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session seeded with the given positive UIDs. The
// candidate pool is seeded from neighbor lookups around each positive,
// bounded by session_control.positive_seed_neighbors.
func (m *Manager) Create(ctx context.Context, positives []string) (*models.SessionInfo, error) {
	if len(positives) == 0 {
		return nil, fmt.Errorf("%w: at least one positive example required", models.ErrInsufficientData)
	}
	// validate before any state is created
	_, missing, err := m.store.GetMany(ctx, positives)
	if err != nil {
		return nil, opErr(err)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, missing[0])
	}

	seedK := m.cfg.Session.PositiveSeedNeighbors
	seeds := make(map[string]struct{})
	for _, uid := range positives {
		neighbors, err := m.index.NearestUID(ctx, uid, seedK)
		if err != nil {
			return nil, opErr(err)
		}
		for _, n := range neighbors {
			seeds[n.UID] = struct{}{}
		}
	}

	s := newSession(uuid.NewString())
	s.adjudicate(models.AdjudicationInput{AddPositive: positives})
	for uid := range seeds {
		s.pool[uid] = struct{}{}
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info("session created",
		zap.String("session_id", s.id),
		zap.Int("positives", len(positives)),
		zap.Int("candidate_pool", len(s.pool)),
	)
	return s.info(), nil
}

// Adjudicate applies example set changes to an active session. Added UIDs
// are validated against the store first; on any missing UID the session is
// left unchanged.
func (m *Manager) Adjudicate(ctx context.Context, id string, in models.AdjudicationInput) (*models.SessionInfo, error) {
	adds := append(append([]string{}, in.AddPositive...), in.AddNegative...)
	if len(adds) > 0 {
		_, missing, err := m.store.GetMany(ctx, adds)
		if err != nil {
			return nil, opErr(err)
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: %s", models.ErrNotFound, missing[0])
		}
	}

	s, unlock, err := m.acquire(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.adjudicate(in)
	s.touch()
	return s.info(), nil
}

// Refine rebuilds the relevancy ranking over the session's candidate pool
// from its current example set. The ranker is constructed fresh and
// discarded after the pass.
func (m *Manager) Refine(ctx context.Context, id string) (*models.SessionInfo, error) {
	s, unlock, err := m.acquire(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if len(s.positives) == 0 {
		return nil, models.ErrInsufficientData
	}

	posVecs, _, err := m.store.GetMany(ctx, sortedKeys(s.positives))
	if err != nil {
		return nil, opErr(err)
	}
	negVecs, _, err := m.store.GetMany(ctx, sortedKeys(s.negatives))
	if err != nil {
		return nil, opErr(err)
	}

	// stabilize sparse negative sets from the background pool
	augmented, err := m.augmentNegatives(ctx, s)
	if err != nil {
		return nil, opErr(err)
	}
	for uid, vec := range augmented {
		negVecs[uid] = vec
	}

	candidates, missing, err := m.store.GetMany(ctx, sortedKeys(s.pool))
	if err != nil {
		return nil, opErr(err)
	}
	if len(missing) > 0 {
		m.logger.Warn("refine: candidates missing from store",
			zap.String("session_id", id), zap.Int("missing", len(missing)))
	}

	ranker, err := relevancy.New(posVecs, negVecs, relevancy.Options{
		Concurrency: m.cfg.Relevancy.Concurrency,
	})
	if err != nil {
		return nil, err
	}
	ranking, err := ranker.Rank(ctx, candidates)
	if err != nil {
		return nil, opErr(err)
	}

	s.ranking = ranking
	s.touch()
	return s.info(), nil
}

// augmentNegatives selects extra negative UIDs from the store when the
// session's negatives are sparse, and returns their vectors. Caller holds
// the session mutex.
func (m *Manager) augmentNegatives(ctx context.Context, s *Session) (map[string][]float32, error) {
	ratio := m.cfg.Relevancy.NegativeAugmentRatio
	if ratio <= 0 {
		return nil, nil
	}
	pool, err := m.store.UIDs(ctx)
	if err != nil {
		return nil, err
	}
	extra := relevancy.AugmentNegatives(pool, s.positives, s.negatives, ratio, m.cfg.Relevancy.RandomSeed)
	if len(extra) == 0 {
		return nil, nil
	}
	vecs, _, err := m.store.GetMany(ctx, extra)
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

// Classify trains the session's adjudication classifier from its example
// set and ranks the entire descriptor store with it. On any failure,
// including timeout, the session's previous ranking and model are kept.
func (m *Manager) Classify(ctx context.Context, id string) (*models.SessionInfo, error) {
	s, unlock, err := m.acquire(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if len(s.positives) == 0 || len(s.negatives) == 0 {
		return nil, models.ErrInsufficientData
	}

	posVecs, _, err := m.store.GetMany(ctx, sortedKeys(s.positives))
	if err != nil {
		return nil, opErr(err)
	}
	negVecs, _, err := m.store.GetMany(ctx, sortedKeys(s.negatives))
	if err != nil {
		return nil, opErr(err)
	}

	model, err := classifier.Train(ctx, vectorList(posVecs), vectorList(negVecs), classifier.Config{
		LearningRate: m.cfg.Classifier.LearningRate,
		Epochs:       m.cfg.Classifier.Epochs,
		L2Penalty:    m.cfg.Classifier.L2Penalty,
		RandomSeed:   m.cfg.Classifier.RandomSeed,
	})
	if err != nil {
		return nil, opErr(err)
	}

	ranking, err := classifier.ClassifyStore(ctx, model, m.store, m.cfg.Store.BatchSize, m.cfg.Relevancy.Concurrency)
	if err != nil {
		return nil, opErr(err)
	}

	s.model = model
	s.ranking = ranking
	s.touch()
	return s.info(), nil
}

// Results returns a page of the session's current ranking. The ranking may
// be empty if neither Refine nor Classify has run yet.
func (m *Manager) Results(ctx context.Context, id string, offset, limit int) (*models.ResultsPage, error) {
	s, unlock, err := m.acquire(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	total := len(s.ranking)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	page := make([]models.RankedItem, end-offset)
	copy(page, s.ranking[offset:end])

	s.touch()
	return &models.ResultsPage{Results: page, Total: total, Offset: offset}, nil
}

// Info returns a snapshot of a known session in any state. It does not
// count as activity.
func (m *Manager) Info(ctx context.Context, id string) (*models.SessionInfo, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionInvalid, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info(), nil
}

// Reset clears the session's examples, pool, and results. The session
// stays ACTIVE.
func (m *Manager) Reset(ctx context.Context, id string) (*models.SessionInfo, error) {
	s, unlock, err := m.acquire(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.reset()
	s.touch()
	return s.info(), nil
}

// Delete removes a session in any state and releases its resources.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrSessionInvalid, id)
	}

	s.mu.Lock()
	s.state = models.SessionDeleted
	s.release()
	s.mu.Unlock()

	m.logger.Info("session deleted", zap.String("session_id", id))
	return nil
}

// Count returns the number of known sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// acquire looks a session up and locks it for an operation. The returned
// unlock func must be called when the operation finishes. Expired,
// deleted, and unknown sessions yield ErrSessionInvalid.
func (m *Manager) acquire(id string) (*Session, func(), error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", models.ErrSessionInvalid, id)
	}
	s.mu.Lock()
	if s.state != models.SessionActive {
		state := s.state
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %s is %s", models.ErrSessionInvalid, id, state)
	}
	return s, func() { s.mu.Unlock() }, nil
}

// opErr converts deadline errors into the service's timeout error.
func opErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", models.ErrTimeout, err)
	}
	return err
}

func vectorList(m map[string][]float32) [][]float32 {
	out := make([][]float32, 0, len(m))
	for _, uid := range sortedMapKeys(m) {
		out = append(out, m[uid])
	}
	return out
}

func sortedMapKeys(m map[string][]float32) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
