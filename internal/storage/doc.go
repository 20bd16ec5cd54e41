// Package storage holds the active expectation set.
//
// ExpectationStore is an arena of expectations addressed by id with a
// separately maintained ordering index: priority descending, then insertion
// order. Replacing an expectation by id keeps its insertion position.
//
// Select performs the atomic select-and-consume step of dispatch: candidates
// are evaluated against a snapshot without holding the lock, and the chosen
// one is consumed under the write lock only if it has not been replaced or
// exhausted in the meantime. Exhausted expectations are removed; expired
// ones are skipped on read and removed by SweepExpired.
//
// The store never evaluates matchers itself. Callers pass predicates, which
// keeps matcher evaluation (and any OpenAPI resolution it triggers) outside
// the critical section.
package storage
