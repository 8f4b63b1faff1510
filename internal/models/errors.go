package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a UID is absent from the descriptor store.
	ErrNotFound = errors.New("descriptor not found")
	// ErrSessionInvalid is returned for operations on an expired, deleted,
	// or unknown session.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrInsufficientData is returned when the ranker or classifier is
	// invoked with an empty positive or negative example set.
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrIndexUnavailable is returned when the neighbor index has no valid
	// snapshot yet (e.g. the first build is still pending).
	ErrIndexUnavailable = errors.New("neighbor index unavailable")
	// ErrRebuildFailed records a failed background index rebuild. It is
	// surfaced via the index status accessor, never to in-flight queries.
	ErrRebuildFailed = errors.New("index rebuild failed")
	// ErrTimeout is returned when a bounded operation exceeds its deadline.
	// Session state is left unchanged.
	ErrTimeout = errors.New("operation timed out")
)

// DimensionMismatchError indicates a vector whose length does not match
// the store or model dimensionality.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	cause    error
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return e.cause }

// NewDimensionMismatch builds a DimensionMismatchError wrapping cause.
func NewDimensionMismatch(expected, actual int, cause error) *DimensionMismatchError {
	return &DimensionMismatchError{Expected: expected, Actual: actual, cause: cause}
}
