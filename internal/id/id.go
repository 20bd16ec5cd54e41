// Package id provides the clock and identifier source shared by expectation
// upserts, log entries and template rendering.
//
// Production code uses System(). Tests inject a Fixed source so that rendered
// timestamps and generated identifiers are deterministic.
package id

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Source supplies the current instant and fresh unique identifiers.
// Implementations must be safe for concurrent use.
type Source interface {
	Now() time.Time
	UUID() string
}

type systemSource struct{}

// System returns the wall clock and random UUID v4 source.
func System() Source { return systemSource{} }

func (systemSource) Now() time.Time { return time.Now() }

func (systemSource) UUID() string { return uuid.NewString() }

// Fixed is a deterministic Source for tests. Now always returns At (advanced
// by Advance). UUID returns IDs in order, then falls back to a counter-based
// UUID once they are exhausted.
type Fixed struct {
	mu      sync.Mutex
	At      time.Time
	IDs     []string
	counter int
}

// NewFixed creates a Fixed source frozen at the given instant.
func NewFixed(at time.Time, ids ...string) *Fixed {
	return &Fixed{At: at, IDs: ids}
}

// Now returns the frozen instant.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.At
}

// Advance moves the frozen clock forward.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.At = f.At.Add(d)
}

// UUID returns the next predefined identifier.
func (f *Fixed) UUID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.counter
	f.counter++
	if n < len(f.IDs) {
		return f.IDs[n]
	}
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}

var (
	_ Source = systemSource{}
	_ Source = (*Fixed)(nil)
)
