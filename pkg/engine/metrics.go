package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/getmockd/expectd/pkg/expectation"
	"github.com/getmockd/expectd/pkg/metrics"
)

// Dispatch outcomes used as the outcome label.
const (
	outcomeMatched   = "matched"
	outcomeUnmatched = "unmatched"
	outcomeFailed    = "failed"
)

// engineMetrics is nil when metrics are disabled; every method is then a
// no-op.
type engineMetrics struct {
	dispatches *metrics.Counter
	duration   *metrics.Histogram
	forwards   *metrics.Counter
}

func newEngineMetrics(r *metrics.Registry, e *Engine) *engineMetrics {
	if r == nil {
		return nil
	}
	r.NewGaugeFunc("expectd_expectations_active", "Expectations that can currently be selected",
		func() float64 { return float64(len(e.store.Active(nil))) })
	r.NewGaugeFunc("expectd_log_entries", "Entries held in the request log",
		func() float64 { return float64(e.requests.Count()) })
	return &engineMetrics{
		dispatches: r.NewCounter("expectd_dispatches_total", "Dispatched requests by outcome and action", "outcome", "action"),
		duration:   r.NewHistogram("expectd_dispatch_duration_seconds", "Time from receipt to response", metrics.DefaultBuckets, "outcome"),
		forwards:   r.NewCounter("expectd_forwards_total", "Forwarded requests by upstream status", "status"),
	}
}

func (m *engineMetrics) dispatched(outcome string, action expectation.ActionKind, start time.Time) {
	if m == nil {
		return
	}
	m.dispatches.MustWith(outcome, strings.ToLower(string(action))).Inc()
	m.duration.MustWith(outcome).Observe(time.Since(start).Seconds())
}

func (m *engineMetrics) forwarded(resp *expectation.HTTPResponse, err error) {
	if m == nil {
		return
	}
	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.Status())
	}
	m.forwards.MustWith(status).Inc()
}
