package storage

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/getmockd/expectd/internal/id"
	"github.com/getmockd/expectd/pkg/expectation"
	"github.com/getmockd/expectd/pkg/logging"
)

// selectAttempts bounds optimistic selection before falling back to
// evaluating candidates under the write lock.
const selectAttempts = 3

type record struct {
	exp       *expectation.Expectation
	remaining int
	unlimited bool
	seq       uint64
	version   uint64
}

func (r *record) active(now time.Time) bool {
	if !r.unlimited && r.remaining <= 0 {
		return false
	}
	return !r.exp.TimeToLive.Expired(now)
}

func (r *record) snapshot() *expectation.Expectation {
	c := *r.exp
	c.Times = &expectation.Times{RemainingTimes: r.remaining, Unlimited: r.unlimited}
	return &c
}

// MemoryStore is a thread-safe in-memory ExpectationStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*record
	order   []*record
	nextSeq uint64

	maxSize int
	source  id.Source
	log     *slog.Logger
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithMaxExpectations caps the number of stored expectations. Beyond it the
// oldest inserted expectation is evicted. Zero means unbounded.
func WithMaxExpectations(n int) Option {
	return func(s *MemoryStore) { s.maxSize = n }
}

// WithSource sets the clock and id source.
func WithSource(src id.Source) Option {
	return func(s *MemoryStore) { s.source = src }
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]*record),
		source:  id.System(),
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLogger sets the operational logger.
func (s *MemoryStore) SetLogger(log *slog.Logger) {
	if log != nil {
		s.log = log
	}
}

// Upsert stores a copy of e. The matcher and action are shared with the
// caller and must not be mutated afterwards. An empty id is assigned a
// fresh UUID; a nil Times means unlimited.
func (s *MemoryStore) Upsert(e *expectation.Expectation) UpsertResult {
	stored := *e
	if stored.ID == "" {
		stored.ID = s.source.UUID()
	}
	stored.TimeToLive = e.TimeToLive.Resolve(s.source.Now())
	remaining, unlimited := stored.Remaining()
	stored.Times = nil

	s.mu.Lock()
	defer s.mu.Unlock()

	result := UpsertResult{}
	if r, ok := s.records[stored.ID]; ok {
		r.exp = &stored
		r.remaining = remaining
		r.unlimited = unlimited
		r.version++
	} else {
		r = &record{exp: &stored, remaining: remaining, unlimited: unlimited, seq: s.nextSeq}
		s.nextSeq++
		s.records[stored.ID] = r
		result.Created = true
		result.Evicted = s.evictLocked()
	}
	s.reorderLocked()

	result.Expectation = s.records[stored.ID].snapshot()
	return result
}

// evictLocked drops the oldest inserted expectations beyond capacity.
func (s *MemoryStore) evictLocked() []*expectation.Expectation {
	if s.maxSize <= 0 || len(s.records) <= s.maxSize {
		return nil
	}
	byAge := make([]*record, 0, len(s.records))
	for _, r := range s.records {
		byAge = append(byAge, r)
	}
	sort.Slice(byAge, func(i, j int) bool { return byAge[i].seq < byAge[j].seq })

	var evicted []*expectation.Expectation
	for _, r := range byAge[:len(s.records)-s.maxSize] {
		delete(s.records, r.exp.ID)
		evicted = append(evicted, r.snapshot())
		s.log.Debug("evicted expectation to stay within capacity", "id", r.exp.ID, "max", s.maxSize)
	}
	return evicted
}

// reorderLocked rebuilds the ordering index: priority descending, then
// insertion ascending.
func (s *MemoryStore) reorderLocked() {
	order := make([]*record, 0, len(s.records))
	for _, r := range s.records {
		order = append(order, r)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].exp.Priority != order[j].exp.Priority {
			return order[i].exp.Priority > order[j].exp.Priority
		}
		return order[i].seq < order[j].seq
	})
	s.order = order
}

// Get returns a snapshot of the expectation with the given id.
func (s *MemoryStore) Get(id string) (*expectation.Expectation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.snapshot(), nil
}

// Active returns active expectations in selection order.
func (s *MemoryStore) Active(filter Predicate) []*expectation.Expectation {
	s.mu.RLock()
	now := s.source.Now()
	snapshots := make([]*expectation.Expectation, 0, len(s.order))
	for _, r := range s.order {
		if r.active(now) {
			snapshots = append(snapshots, r.snapshot())
		}
	}
	s.mu.RUnlock()

	if filter == nil {
		return snapshots
	}
	out := snapshots[:0]
	for _, e := range snapshots {
		if filter(e) {
			out = append(out, e)
		}
	}
	return out
}

type candidate struct {
	id       string
	version  uint64
	snapshot *expectation.Expectation
}

type consumeOutcome int

const (
	consumed consumeOutcome = iota
	exhausted
	changed
)

func (s *MemoryStore) candidates() []candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.source.Now()
	out := make([]candidate, 0, len(s.order))
	for _, r := range s.order {
		if r.active(now) {
			out = append(out, candidate{id: r.exp.ID, version: r.version, snapshot: r.snapshot()})
		}
	}
	return out
}

// Select finds and consumes the first matching active expectation.
//
// Candidates are matched against a snapshot. The winner is consumed only if
// it is unchanged and still active; if another request exhausted it the
// scan continues with the next candidate, and if it was replaced or removed
// the scan restarts from a fresh snapshot.
func (s *MemoryStore) Select(match Predicate) *expectation.Expectation {
	for attempt := 0; attempt < selectAttempts; attempt++ {
		restart := false
	scan:
		for _, c := range s.candidates() {
			if !match(c.snapshot) {
				continue
			}
			got, outcome := s.consume(c.id, c.version)
			switch outcome {
			case consumed:
				return got
			case exhausted:
				continue
			case changed:
				restart = true
				break scan
			}
		}
		if !restart {
			return nil
		}
	}

	s.log.Debug("expectation selection contended, matching under lock")
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.source.Now()
	for _, r := range s.order {
		if r.active(now) && match(r.snapshot()) {
			return s.consumeLocked(r)
		}
	}
	return nil
}

func (s *MemoryStore) consume(id string, version uint64) (*expectation.Expectation, consumeOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.version != version {
		return nil, changed
	}
	if !r.active(s.source.Now()) {
		return nil, exhausted
	}
	return s.consumeLocked(r), consumed
}

// consumeLocked decrements the remaining uses and removes the expectation
// once exhausted. The returned snapshot reflects the decrement.
func (s *MemoryStore) consumeLocked(r *record) *expectation.Expectation {
	if r.unlimited {
		return r.snapshot()
	}
	r.remaining--
	snap := r.snapshot()
	if r.remaining <= 0 {
		s.removeLocked(r.exp.ID)
	}
	return snap
}

func (s *MemoryStore) removeLocked(ids ...string) {
	for _, id := range ids {
		delete(s.records, id)
	}
	order := s.order[:0]
	for _, r := range s.order {
		if _, ok := s.records[r.exp.ID]; ok {
			order = append(order, r)
		}
	}
	s.order = order
}

// Remove deletes the expectation with the given id.
func (s *MemoryStore) Remove(id string) (*expectation.Expectation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.removeLocked(id)
	return r.snapshot(), nil
}

// RemoveMatching deletes every stored expectation accepted by filter. The
// filter runs outside the lock; an expectation replaced concurrently is
// kept.
func (s *MemoryStore) RemoveMatching(filter Predicate) []*expectation.Expectation {
	s.mu.RLock()
	all := make([]candidate, 0, len(s.order))
	for _, r := range s.order {
		all = append(all, candidate{id: r.exp.ID, version: r.version, snapshot: r.snapshot()})
	}
	s.mu.RUnlock()

	var selected []candidate
	for _, c := range all {
		if filter == nil || filter(c.snapshot) {
			selected = append(selected, c)
		}
	}
	if len(selected) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []*expectation.Expectation
	var ids []string
	for _, c := range selected {
		if r, ok := s.records[c.id]; ok && r.version == c.version {
			ids = append(ids, c.id)
			removed = append(removed, r.snapshot())
		}
	}
	s.removeLocked(ids...)
	return removed
}

// Reset deletes every expectation and returns how many were stored.
func (s *MemoryStore) Reset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.records)
	s.records = make(map[string]*record)
	s.order = nil
	return n
}

// SweepExpired deletes expectations that can no longer be selected: their
// time to live has elapsed or they were stored with no uses left.
func (s *MemoryStore) SweepExpired() []*expectation.Expectation {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.source.Now()
	var removed []*expectation.Expectation
	var ids []string
	for _, r := range s.order {
		if !r.active(now) {
			ids = append(ids, r.exp.ID)
			removed = append(removed, r.snapshot())
		}
	}
	if len(ids) > 0 {
		s.removeLocked(ids...)
	}
	return removed
}

// Count returns the number of stored expectations.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Ensure MemoryStore implements ExpectationStore.
var _ ExpectationStore = (*MemoryStore)(nil)
