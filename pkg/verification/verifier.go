package verification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/getmockd/expectd/pkg/expectation"
	"github.com/getmockd/expectd/pkg/logging"
	"github.com/getmockd/expectd/pkg/requestlog"
)

// DefaultMaxPreview is how many recorded requests a failure message shows
// before it only reports their number.
const DefaultMaxPreview = 10

// Target selects requests by matcher, or by the id of an expectation whose
// matcher is used.
type Target struct {
	Matcher       *expectation.RequestMatcher `json:"httpRequest,omitempty"`
	ExpectationID string                      `json:"expectationId,omitempty"`
}

// Request targets requests matching m. A nil matcher targets every request.
func Request(m *expectation.RequestMatcher) Target { return Target{Matcher: m} }

// ExpectationID targets requests matching the matcher of expectation id.
func ExpectationID(id string) Target { return Target{ExpectationID: id} }

// RequestMatcher evaluates a matcher against a request.
type RequestMatcher interface {
	Matches(ctx context.Context, rm *expectation.RequestMatcher, req *expectation.HTTPRequest) bool
}

// ExpectationResolver maps an expectation id to its request matcher.
type ExpectationResolver interface {
	ResolveMatcher(id string) (*expectation.RequestMatcher, bool)
}

// LogSource provides point-in-time copies of the log, oldest first.
type LogSource interface {
	Snapshot() []*requestlog.Entry
}

// Verifier runs verifications. It is safe for concurrent use.
type Verifier struct {
	source     LogSource
	matcher    RequestMatcher
	resolver   ExpectationResolver
	maxPreview int
	log        *slog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithResolver enables targets given by expectation id.
func WithResolver(r ExpectationResolver) Option {
	return func(v *Verifier) { v.resolver = r }
}

// WithMaxPreview sets the default preview size of failure messages.
func WithMaxPreview(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.maxPreview = n
		}
	}
}

// New creates a Verifier over source.
func New(source LogSource, matcher RequestMatcher, opts ...Option) *Verifier {
	v := &Verifier{
		source:     source,
		matcher:    matcher,
		maxPreview: DefaultMaxPreview,
		log:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SetLogger sets the operational logger.
func (v *Verifier) SetLogger(log *slog.Logger) {
	if log != nil {
		v.log = log
	}
}

// Verify checks that every target was received within times. With no
// targets every request is counted, so Verify(ctx, nil, Never()) asserts
// that nothing was received. The first unsatisfied target is reported as
// a *Failure; an unknown expectation id as *UnknownIdentifierError.
func (v *Verifier) Verify(ctx context.Context, targets []Target, times Times) error {
	if err := times.Validate(); err != nil {
		return err
	}
	matchers, err := v.resolve(targets)
	if err != nil {
		return err
	}
	if len(matchers) == 0 {
		matchers = []*expectation.RequestMatcher{expectation.Request()}
	}

	received := v.received()
	for _, m := range matchers {
		n := 0
		for _, req := range received {
			if v.matcher.Matches(ctx, m, req) {
				n++
			}
		}
		if times.Matches(n) {
			continue
		}
		v.log.Debug("verification failed", "times", times.String(), "found", n)
		return &Failure{
			Message: fmt.Sprintf("Request not found %s, expected:<%s> %s",
				times, m.JSON(), preview(received, v.maxPreview)),
			Expected: []*expectation.RequestMatcher{m},
			Found:    n,
		}
	}
	return nil
}

// VerifySequence checks that requests matching the targets were received
// in the given order. Other requests may arrive in between. maxPreview
// overrides the verifier's preview size when positive.
func (v *Verifier) VerifySequence(ctx context.Context, targets []Target, maxPreview int) error {
	matchers, err := v.resolve(targets)
	if err != nil {
		return err
	}
	if maxPreview <= 0 {
		maxPreview = v.maxPreview
	}

	received := v.received()
	next := 0
	for _, req := range received {
		if next == len(matchers) {
			break
		}
		if v.matcher.Matches(ctx, matchers[next], req) {
			next++
		}
	}
	if next == len(matchers) {
		return nil
	}

	expected := make([]string, len(matchers))
	for i, m := range matchers {
		expected[i] = m.JSON()
	}
	v.log.Debug("sequence verification failed", "expected", len(matchers), "matched", next)
	return &Failure{
		Message: fmt.Sprintf("Request sequence not found, expected:<%s> %s",
			jsonList(expected), previewList(received, maxPreview)),
		Expected: matchers,
		Found:    next,
	}
}

func (v *Verifier) resolve(targets []Target) ([]*expectation.RequestMatcher, error) {
	out := make([]*expectation.RequestMatcher, 0, len(targets))
	for _, t := range targets {
		if t.ExpectationID == "" {
			m := t.Matcher
			if m == nil {
				m = expectation.Request()
			}
			out = append(out, m)
			continue
		}
		if v.resolver == nil {
			return nil, &UnknownIdentifierError{ID: t.ExpectationID}
		}
		m, ok := v.resolver.ResolveMatcher(t.ExpectationID)
		if !ok {
			return nil, &UnknownIdentifierError{ID: t.ExpectationID}
		}
		out = append(out, m)
	}
	return out, nil
}

// received returns the requests of RECEIVED_REQUEST entries, oldest first.
func (v *Verifier) received() []*expectation.HTTPRequest {
	var out []*expectation.HTTPRequest
	for _, e := range v.source.Snapshot() {
		if e.Type == requestlog.ReceivedRequest && e.Request != nil {
			out = append(out, e.Request)
		}
	}
	return out
}

// preview describes what was recorded for a count failure: a single request
// is shown on its own, several as a list.
func preview(received []*expectation.HTTPRequest, limit int) string {
	if len(received) == 1 && limit >= 1 {
		return "but was:<" + received[0].JSON() + ">"
	}
	return previewList(received, limit)
}

func previewList(received []*expectation.HTTPRequest, limit int) string {
	if len(received) > limit {
		return fmt.Sprintf("but was not found, found %d other requests", len(received))
	}
	items := make([]string, len(received))
	for i, r := range received {
		items[i] = r.JSON()
	}
	return "but was:<" + jsonList(items) + ">"
}

func jsonList(items []string) string {
	if len(items) == 0 {
		return "[ ]"
	}
	return "[ " + strings.Join(items, ", ") + " ]"
}
