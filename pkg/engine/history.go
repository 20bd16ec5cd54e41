package engine

import (
	"sync"

	"github.com/getmockd/expectd/pkg/expectation"
)

// defaultHistorySize bounds the remembered matchers when the store itself is
// smaller.
const defaultHistorySize = 10000

// matcherHistory remembers the latest matcher of every expectation id
// upserted since the last reset, so that verification by id keeps working
// after the expectation was consumed or removed and its log entries were
// cleared or evicted. Beyond max ids the oldest is forgotten.
type matcherHistory struct {
	mu    sync.Mutex
	byID  map[string]*expectation.RequestMatcher
	order []string
	max   int
}

func newMatcherHistory(size int) *matcherHistory {
	if size < defaultHistorySize {
		size = defaultHistorySize
	}
	return &matcherHistory{byID: make(map[string]*expectation.RequestMatcher), max: size}
}

func (h *matcherHistory) put(id string, m *expectation.RequestMatcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.byID[id]; !ok {
		h.order = append(h.order, id)
	}
	h.byID[id] = m
	for len(h.order) > h.max {
		delete(h.byID, h.order[0])
		h.order = h.order[1:]
	}
}

func (h *matcherHistory) get(id string) (*expectation.RequestMatcher, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.byID[id]
	return m, ok
}

func (h *matcherHistory) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byID = make(map[string]*expectation.RequestMatcher)
	h.order = nil
}
