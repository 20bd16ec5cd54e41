package requestlog

import (
	"bytes"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/expectd/internal/id"
	"github.com/getmockd/expectd/pkg/expectation"
)

func request(path string) *expectation.HTTPRequest {
	return &expectation.HTTPRequest{Method: "GET", Path: path}
}

// ── Entry ────────────────────────────────────────────────────────────────────

func TestEntry_Message(t *testing.T) {
	e := &Entry{MessageFormat: "returning response for %s after %d ms", Arguments: []any{"/a", 20}}
	assert.Equal(t, "returning response for /a after 20 ms", e.Message())

	plain := &Entry{MessageFormat: "100% literal"}
	assert.Equal(t, "100% literal", plain.Message())
}

func TestEntry_ResponseStatus(t *testing.T) {
	assert.Equal(t, 0, (&Entry{}).ResponseStatus())
	assert.Equal(t, 200, (&Entry{Response: &expectation.HTTPResponse{}}).ResponseStatus())
	assert.Equal(t, 418, (&Entry{Response: expectation.Response(418)}).ResponseStatus())
}

// ── Log behavior ─────────────────────────────────────────────────────────────

func TestLog_RecordStampsEntries(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	log := NewLog(WithSource(id.NewFixed(at, "entry-1")))

	e := &Entry{Type: ReceivedRequest, Request: request("/a")}
	log.Record(e)

	got := log.Get("entry-1")
	require.NotNil(t, got)
	assert.Same(t, e, got)
	assert.Equal(t, at, got.Timestamp)
	assert.Equal(t, LevelInfo, got.Level)
}

func TestLog_RecordKeepsGivenID(t *testing.T) {
	log := NewLog()
	log.Record(&Entry{ID: "mine"})
	assert.NotNil(t, log.Get("mine"))
	assert.Nil(t, log.Get("does-not-exist"))
}

func TestLog_ListOrderAndFilter(t *testing.T) {
	log := NewLog()
	log.Record(&Entry{ID: "1", Type: ReceivedRequest, Request: request("/a")})
	log.Record(&Entry{ID: "2", Type: CreatedExpectation, ExpectationID: "exp"})
	log.Record(&Entry{ID: "3", Type: ReceivedRequest, Request: request("/b")})
	log.Record(&Entry{ID: "4", Type: ExpectationResponse, ExpectationID: "exp", Request: request("/b")})

	ids := func(entries []*Entry) []string {
		out := make([]string, 0, len(entries))
		for _, e := range entries {
			out = append(out, e.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter *Filter
		want   []string
	}{
		{"no filter", nil, []string{"1", "2", "3", "4"}},
		{"by type", &Filter{Types: []EntryType{ReceivedRequest}}, []string{"1", "3"}},
		{"by types", &Filter{Types: []EntryType{CreatedExpectation, ExpectationResponse}}, []string{"2", "4"}},
		{"by expectation", &Filter{ExpectationID: "exp"}, []string{"2", "4"}},
		{
			"by request",
			&Filter{Request: func(e *Entry) bool { return e.Request.Path == "/b" }},
			[]string{"3", "4"},
		},
		{
			"by request keeping entries without one",
			&Filter{Request: func(e *Entry) bool { return e.Request.Path == "/b" }, KeepWithoutRequest: true},
			[]string{"2", "3", "4"},
		},
		{"limit", &Filter{Limit: 2}, []string{"1", "2"}},
		{"offset", &Filter{Offset: 3}, []string{"4"}},
		{"offset past end", &Filter{Offset: 10}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(log.List(tt.filter)))
		})
	}
}

func TestLog_ListIsSnapshot(t *testing.T) {
	log := NewLog()
	log.Record(&Entry{ID: "a"})
	snap := log.Snapshot()
	log.Record(&Entry{ID: "b"})

	assert.Len(t, snap, 1)
	assert.Equal(t, 2, log.Count())
}

func TestLog_MaxCapacityEvictsOldest(t *testing.T) {
	log := NewLog(WithMaxEntries(3))
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		log.Record(&Entry{ID: name})
	}

	assert.Equal(t, 3, log.Count())
	assert.Nil(t, log.Get("a"))
	assert.Nil(t, log.Get("b"))
	assert.NotNil(t, log.Get("e"))
	assert.Equal(t, "c", log.Snapshot()[0].ID)
}

func TestLog_RemoveWhere(t *testing.T) {
	log := NewLog()
	log.Record(&Entry{ID: "1", Request: request("/keep")})
	log.Record(&Entry{ID: "2", Request: request("/drop")})
	log.Record(&Entry{ID: "3"})
	log.Record(&Entry{ID: "4", Request: request("/drop")})

	removed := log.RemoveWhere(func(e *Entry) bool {
		return e.Request != nil && e.Request.Path == "/drop"
	})

	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, log.Count())
	assert.NotNil(t, log.Get("1"))
	assert.NotNil(t, log.Get("3"))
}

func TestLog_Reset(t *testing.T) {
	log := NewLog()
	log.Record(&Entry{ID: "a"})
	log.Reset()
	assert.Equal(t, 0, log.Count())
	assert.Nil(t, log.Get("a"))
}

func TestLog_ForwardsToSinks(t *testing.T) {
	var got []*Entry
	collect := sinkFunc(func(e *Entry) { got = append(got, e) })

	log := NewLog(WithSink(collect))
	log.Record(&Entry{ID: "a"})

	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestLog_ConcurrentRecordAndRead(t *testing.T) {
	log := NewLog(WithMaxEntries(1000))

	const writers = 10
	const entriesPerWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < entriesPerWriter; i++ {
				log.Record(&Entry{Type: ReceivedRequest, Request: request("/c")})
			}
		}()
	}
	for r := 0; r < 5; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				log.Count()
				log.List(&Filter{Types: []EntryType{ReceivedRequest}})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, writers*entriesPerWriter, log.Count())
}

// ── Sinks ────────────────────────────────────────────────────────────────────

type sinkFunc func(*Entry)

func (f sinkFunc) Record(e *Entry) { f(e) }

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	sink := NewSlogSink(logger)

	sink.Record(&Entry{
		ID:            "e1",
		Type:          ExpectationResponse,
		Level:         LevelInfo,
		ExpectationID: "exp-1",
		Request:       request("/orders"),
		Response:      expectation.Response(201),
		MessageFormat: "returning response for %s",
		Arguments:     []any{"/orders"},
	})
	sink.Record(&Entry{ID: "e2", Type: ReceivedRequest, Level: LevelDebug, MessageFormat: "hidden"})

	out := buf.String()
	assert.Contains(t, out, `msg="returning response for /orders"`)
	assert.Contains(t, out, "type=EXPECTATION_RESPONSE")
	assert.Contains(t, out, "expectationId=exp-1")
	assert.Contains(t, out, "path=/orders")
	assert.Contains(t, out, "status=201")
	assert.NotContains(t, out, "hidden")
}

func TestAsyncSink(t *testing.T) {
	var count atomic.Int64
	sink, err := NewAsyncSink(sinkFunc(func(*Entry) { count.Add(1) }), 2)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		sink.Record(&Entry{Type: ReceivedRequest})
	}
	sink.Flush()
	assert.Equal(t, uint64(100), uint64(count.Load())+sink.Dropped())
	assert.Positive(t, count.Load())

	delivered := count.Load()
	sink.Close()
	sink.Close()
	sink.Record(&Entry{Type: ReceivedRequest})
	assert.Equal(t, delivered, count.Load(), "entries after close are dropped")
	assert.Equal(t, uint64(101), uint64(count.Load())+sink.Dropped())
}

func TestAsyncSinkDropsWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var count atomic.Int64
	sink, err := NewAsyncSink(sinkFunc(func(*Entry) {
		started <- struct{}{}
		<-release
		count.Add(1)
	}), 1)
	require.NoError(t, err)
	defer sink.Close()

	sink.Record(&Entry{Type: ReceivedRequest})
	<-started

	done := make(chan struct{})
	go func() {
		sink.Record(&Entry{Type: ReceivedRequest})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a saturated pool")
	}
	assert.Equal(t, uint64(1), sink.Dropped())

	close(release)
	sink.Flush()
	assert.Equal(t, int64(1), count.Load())
}

func TestMultiSink(t *testing.T) {
	var a, b int
	m := MultiSink{
		sinkFunc(func(*Entry) { a++ }),
		sinkFunc(func(*Entry) { b++ }),
	}
	m.Record(&Entry{})
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}
