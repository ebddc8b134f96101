package domain

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable marks transient store connectivity failures. A sweep
// that hits it is aborted and retried on the next interval; per-entity
// failures never abort the batch.
var ErrStoreUnavailable = errors.New("graph store unavailable")

// ErrSweepInProgress is returned when a sweep is requested for a tier whose
// lease is already held.
var ErrSweepInProgress = errors.New("sweep already in progress for tier")

// ValidationError marks a malformed candidate record. The record is skipped
// and logged; the batch continues.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid candidate: %s: %s", e.Field, e.Reason)
}

// AmbiguousMergeError is raised when a cluster cannot be merged safely, e.g.
// members carry contradictory ontology codes. The entities are held for the
// sweep, neither promoted nor rejected.
type AmbiguousMergeError struct {
	MemberIDs []string
	Reason    string
}

func (e *AmbiguousMergeError) Error() string {
	return fmt.Sprintf("ambiguous merge (%d members): %s", len(e.MemberIDs), e.Reason)
}
