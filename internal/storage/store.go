package storage

import (
	"errors"

	"github.com/getmockd/expectd/pkg/expectation"
)

// ErrNotFound is returned when no expectation has the requested id.
var ErrNotFound = errors.New("expectation not found")

// Predicate selects expectations. Expectations passed to it are snapshots
// and may be retained.
type Predicate func(e *expectation.Expectation) bool

// UpsertResult describes the outcome of an upsert.
type UpsertResult struct {
	// Expectation is a snapshot of the stored expectation, with its id and
	// resolved time to live.
	Expectation *expectation.Expectation
	// Created is false when an existing expectation was replaced in place.
	Created bool
	// Evicted lists expectations dropped to stay within capacity.
	Evicted []*expectation.Expectation
}

// ExpectationStore defines the contract of the expectation set.
type ExpectationStore interface {
	// Upsert inserts the expectation or replaces the one with the same id.
	Upsert(e *expectation.Expectation) UpsertResult

	// Get returns a snapshot of the expectation with the given id, active
	// or not.
	Get(id string) (*expectation.Expectation, error)

	// Active returns snapshots of active expectations accepted by filter
	// (all when nil), in selection order.
	Active(filter Predicate) []*expectation.Expectation

	// Select returns the first active expectation, in selection order,
	// accepted by match and consumes one of its remaining uses atomically.
	// It returns nil when nothing matches.
	Select(match Predicate) *expectation.Expectation

	// Remove deletes the expectation with the given id.
	Remove(id string) (*expectation.Expectation, error)

	// RemoveMatching deletes every expectation accepted by filter, active
	// or not, and returns them.
	RemoveMatching(filter Predicate) []*expectation.Expectation

	// Reset deletes every expectation.
	Reset() int

	// SweepExpired deletes expectations that expired or have no uses left.
	SweepExpired() []*expectation.Expectation

	// Count returns the number of stored expectations.
	Count() int
}
