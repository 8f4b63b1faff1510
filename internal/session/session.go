// Package session owns refinement session state and orchestrates the
// descriptor store, neighbor index, relevancy ranker, and classifier.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/hayate/erabu/internal/classifier"
	"github.com/hayate/erabu/internal/models"
)

// Session holds one caller's refinement state. All fields are guarded by
// mu, which is held for the duration of any operation on the session, so
// the expiration sweep can never expire a session mid-operation.
type Session struct {
	mu sync.Mutex

	id           string
	state        models.SessionState
	createdAt    time.Time
	lastActivity time.Time

	positives map[string]struct{}
	negatives map[string]struct{}
	pool      map[string]struct{}

	ranking models.Ranking
	model   *classifier.Model
}

func newSession(id string) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		state:        models.SessionActive,
		createdAt:    now,
		lastActivity: now,
		positives:    make(map[string]struct{}),
		negatives:    make(map[string]struct{}),
		pool:         make(map[string]struct{}),
	}
}

// touch records activity. Caller holds mu.
func (s *Session) touch() {
	s.lastActivity = time.Now()
}

// adjudicate applies example set changes. Adding a UID to one polarity
// removes it from the other, so a UID is never in both sets. Newly
// adjudicated UIDs join the candidate pool, which only ever grows.
// Caller holds mu.
func (s *Session) adjudicate(in models.AdjudicationInput) {
	for _, uid := range in.AddPositive {
		delete(s.negatives, uid)
		s.positives[uid] = struct{}{}
		s.pool[uid] = struct{}{}
	}
	for _, uid := range in.AddNegative {
		delete(s.positives, uid)
		s.negatives[uid] = struct{}{}
		s.pool[uid] = struct{}{}
	}
	for _, uid := range in.RemovePositive {
		delete(s.positives, uid)
	}
	for _, uid := range in.RemoveNegative {
		delete(s.negatives, uid)
	}
}

// reset clears examples, pool, ranking, and model. The session stays
// ACTIVE. Caller holds mu.
func (s *Session) reset() {
	s.positives = make(map[string]struct{})
	s.negatives = make(map[string]struct{})
	s.pool = make(map[string]struct{})
	s.ranking = nil
	s.model = nil
}

// release drops all owned resources. Caller holds mu.
func (s *Session) release() {
	s.positives = nil
	s.negatives = nil
	s.pool = nil
	s.ranking = nil
	s.model = nil
}

// info builds an external snapshot. Caller holds mu.
func (s *Session) info() *models.SessionInfo {
	return &models.SessionInfo{
		ID:                s.id,
		State:             s.state,
		CreatedAt:         s.createdAt,
		LastActivity:      s.lastActivity,
		PositiveUIDs:      sortedKeys(s.positives),
		NegativeUIDs:      sortedKeys(s.negatives),
		CandidatePoolSize: len(s.pool),
		ResultCount:       len(s.ranking),
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
