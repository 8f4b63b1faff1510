// Package models defines core data structures for descriptors, rankings, and sessions.
package models

// Descriptor pairs an opaque UID with a fixed-length feature vector.
// Descriptors are immutable once stored; every other component refers
// to them by UID only.
type Descriptor struct {
	UID    string    `json:"uid"`
	Vector []float32 `json:"vector"`
}

// RankedItem is a single entry of a ranking: a UID and its score.
type RankedItem struct {
	UID   string  `json:"uid"`
	Score float64 `json:"score"`
}

// Ranking is an ordered sequence of (UID, score) pairs, descending by
// score with ties broken by UID ascending.
type Ranking []RankedItem
