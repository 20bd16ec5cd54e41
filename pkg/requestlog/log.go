package requestlog

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/getmockd/expectd/internal/id"
	"github.com/getmockd/expectd/pkg/logging"
)

// DefaultMaxEntries bounds a Log created without WithMaxEntries.
const DefaultMaxEntries = 60000

// Sink receives recorded entries.
type Sink interface {
	Record(entry *Entry)
}

// Filter selects entries from a Log. Zero fields do not constrain.
type Filter struct {
	// Types keeps entries of any of the listed types.
	Types []EntryType

	// ExpectationID keeps entries recorded for one expectation.
	ExpectationID string

	// Request keeps entries whose request satisfies the predicate. Entries
	// without a request are dropped unless KeepWithoutRequest is set.
	Request            func(*Entry) bool
	KeepWithoutRequest bool

	// Limit is the maximum number of entries to return.
	Limit int

	// Offset is the number of entries to skip.
	Offset int
}

func (f *Filter) matches(e *Entry) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, e.Type) {
		return false
	}
	if f.ExpectationID != "" && e.ExpectationID != f.ExpectationID {
		return false
	}
	if f.Request != nil {
		if !e.HasRequest() {
			return f.KeepWithoutRequest
		}
		return f.Request(e)
	}
	return true
}

// Log is a bounded, append-only, in-memory entry store. Entries are kept in
// recording order; once full the oldest entry is evicted.
type Log struct {
	mu         sync.RWMutex
	entries    []*Entry
	maxEntries int
	source     id.Source
	sinks      []Sink
	log        *slog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithMaxEntries sets the capacity. Values <= 0 use DefaultMaxEntries.
func WithMaxEntries(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.maxEntries = n
		}
	}
}

// WithSource sets the clock and id source used to stamp entries.
func WithSource(s id.Source) Option {
	return func(l *Log) {
		if s != nil {
			l.source = s
		}
	}
}

// WithSink forwards every recorded entry to s after it is stored.
func WithSink(s Sink) Option {
	return func(l *Log) {
		if s != nil {
			l.sinks = append(l.sinks, s)
		}
	}
}

// NewLog creates an empty Log.
func NewLog(opts ...Option) *Log {
	l := &Log{
		maxEntries: DefaultMaxEntries,
		source:     id.System(),
		log:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetLogger sets the operational logger.
func (l *Log) SetLogger(log *slog.Logger) {
	if log != nil {
		l.log = log
	}
}

// Record stores entry, stamping its ID and Timestamp when unset.
func (l *Log) Record(entry *Entry) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = l.source.UUID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.source.Now()
	}
	if entry.Level == "" {
		entry.Level = LevelInfo
	}

	l.mu.Lock()
	// FIFO eviction: remove oldest if at capacity
	if len(l.entries) >= l.maxEntries {
		evicted := len(l.entries) - l.maxEntries + 1
		clear(l.entries[:evicted])
		l.entries = l.entries[evicted:]
		l.log.Debug("log capacity reached, evicted oldest entries", "evicted", evicted)
	}
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	for _, s := range l.sinks {
		s.Record(entry)
	}
}

// List returns matching entries, oldest first. A nil filter returns all.
// The returned slice is a point-in-time copy.
func (l *Log) List(filter *Filter) []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if filter != nil && !filter.matches(e) {
			continue
		}
		result = append(result, e)
	}

	if filter != nil {
		if filter.Offset > 0 {
			if filter.Offset >= len(result) {
				return []*Entry{}
			}
			result = result[filter.Offset:]
		}
		if filter.Limit > 0 && filter.Limit < len(result) {
			result = result[:filter.Limit]
		}
	}
	return result
}

// Snapshot returns every entry, oldest first.
func (l *Log) Snapshot() []*Entry { return l.List(nil) }

// Get returns the entry with the given id, or nil.
func (l *Log) Get(id string) *Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// RemoveWhere deletes entries for which remove returns true and reports how
// many were deleted.
func (l *Log) RemoveWhere(remove func(*Entry) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.entries[:0]
	for _, e := range l.entries {
		if !remove(e) {
			kept = append(kept, e)
		}
	}
	removed := len(l.entries) - len(kept)
	clear(l.entries[len(kept):])
	l.entries = kept
	return removed
}

// Reset removes all entries.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Count returns the number of stored entries.
func (l *Log) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

var _ Sink = (*Log)(nil)
