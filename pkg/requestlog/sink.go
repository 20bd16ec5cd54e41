package requestlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
)

// SlogSink mirrors entries to a slog.Logger.
type SlogSink struct {
	log *slog.Logger
}

// NewSlogSink creates a sink writing to log.
func NewSlogSink(log *slog.Logger) *SlogSink {
	return &SlogSink{log: log}
}

// Record writes the entry at its level.
func (s *SlogSink) Record(e *Entry) {
	level := slogLevel(e.Level)
	if !s.log.Enabled(context.Background(), level) {
		return
	}
	attrs := []slog.Attr{
		slog.String("type", string(e.Type)),
		slog.String("id", e.ID),
	}
	if e.CorrelationID != "" {
		attrs = append(attrs, slog.String("correlationId", e.CorrelationID))
	}
	if e.ExpectationID != "" {
		attrs = append(attrs, slog.String("expectationId", e.ExpectationID))
	}
	if e.Request != nil {
		attrs = append(attrs,
			slog.String("method", e.Request.Method),
			slog.String("path", e.Request.Path),
		)
	}
	if e.Response != nil {
		attrs = append(attrs, slog.Int("status", e.Response.Status()))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	s.log.LogAttrs(context.Background(), level, e.Message(), attrs...)
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelTrace, LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DefaultPoolSize is the worker count of an AsyncSink created with size <= 0.
const DefaultPoolSize = 4

// AsyncSink hands entries to another sink on a worker pool so that slow
// sinks do not delay request handling. Entries that arrive while every
// worker is busy, or after Close, are dropped and counted.
type AsyncSink struct {
	next Sink
	pool *ants.Pool

	// mu orders Record against Flush and Close so that no task is added
	// while they wait.
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

// NewAsyncSink creates an AsyncSink with size workers.
func NewAsyncSink(next Sink, size int) (*AsyncSink, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	pool, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create sink pool: %w", err)
	}
	return &AsyncSink{next: next, pool: pool}, nil
}

// Record submits the entry without waiting for a free worker.
func (s *AsyncSink) Record(e *Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	s.wg.Add(1)
	err := s.pool.Submit(func() {
		defer s.wg.Done()
		s.next.Record(e)
	})
	if err != nil {
		s.wg.Done()
		s.dropped.Add(1)
	}
}

// Dropped returns how many entries were not delivered.
func (s *AsyncSink) Dropped() uint64 { return s.dropped.Load() }

// Flush waits until every submitted entry has been delivered. Records
// arriving meanwhile wait for it.
func (s *AsyncSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wg.Wait()
}

// Close flushes pending entries and releases the pool. It is safe to call
// more than once.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.wg.Wait()
	s.pool.Release()
}

// MultiSink records to each sink in order.
type MultiSink []Sink

// Record forwards the entry to every sink.
func (m MultiSink) Record(e *Entry) {
	for _, s := range m {
		s.Record(e)
	}
}

var (
	_ Sink = (*SlogSink)(nil)
	_ Sink = (*AsyncSink)(nil)
	_ Sink = MultiSink(nil)
)
