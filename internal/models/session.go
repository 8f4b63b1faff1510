package models

import "time"

// SessionState is the lifecycle state of a refinement session.
type SessionState string

const (
	// SessionActive accepts adjudications and queries.
	SessionActive SessionState = "ACTIVE"
	// SessionExpired is reached when the inactivity timeout elapses.
	// Expired sessions reject all operations.
	SessionExpired SessionState = "EXPIRED"
	// SessionDeleted is terminal; all session resources are released.
	SessionDeleted SessionState = "DELETED"
)

// SessionInfo is the externally visible snapshot of a session.
type SessionInfo struct {
	ID                string       `json:"id"`
	State             SessionState `json:"state"`
	CreatedAt         time.Time    `json:"created_at"`
	LastActivity      time.Time    `json:"last_activity"`
	PositiveUIDs      []string     `json:"positive_uids"`
	NegativeUIDs      []string     `json:"negative_uids"`
	CandidatePoolSize int          `json:"candidate_pool_size"`
	ResultCount       int          `json:"result_count"`
}

// AdjudicationInput carries example set changes for a session.
// Adding a UID to one polarity removes it from the other.
type AdjudicationInput struct {
	AddPositive    []string `json:"add_pos,omitempty"`
	AddNegative    []string `json:"add_neg,omitempty"`
	RemovePositive []string `json:"remove_pos,omitempty"`
	RemoveNegative []string `json:"remove_neg,omitempty"`
}

// CreateSessionInput is the input for creating a session.
type CreateSessionInput struct {
	Positives []string `json:"positives"`
}

// ResultsPage is a paged slice of a session's current ranking.
type ResultsPage struct {
	Results []RankedItem `json:"results"`
	Total   int          `json:"total"`
	Offset  int          `json:"offset"`
}

// IndexStatus reports neighbor index health for the status endpoint.
type IndexStatus struct {
	Version       uint64    `json:"version"`
	Size          int       `json:"size"`
	Rebuilds      uint64    `json:"rebuilds"`
	LastBuildTime time.Time `json:"last_build_time"`
	LastError     string    `json:"last_error,omitempty"`
}
