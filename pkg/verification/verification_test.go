package verification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/expectd/internal/matching"
	"github.com/getmockd/expectd/pkg/expectation"
	"github.com/getmockd/expectd/pkg/requestlog"
)

type resolverMap map[string]*expectation.RequestMatcher

func (r resolverMap) ResolveMatcher(id string) (*expectation.RequestMatcher, bool) {
	m, ok := r[id]
	return m, ok
}

func receive(log *requestlog.Log, paths ...string) {
	for _, p := range paths {
		log.Record(&requestlog.Entry{
			Type:    requestlog.ReceivedRequest,
			Request: &expectation.HTTPRequest{Method: "GET", Path: p},
		})
	}
}

func path(p string) *expectation.RequestMatcher {
	return expectation.Request().WithPath(p)
}

func newVerifier(log *requestlog.Log, opts ...Option) *Verifier {
	return New(log, matching.New(), opts...)
}

func TestTimes(t *testing.T) {
	tests := []struct {
		times Times
		str   string
		in    []int
		out   []int
	}{
		{Once(), "exactly once", []int{1}, []int{0, 2}},
		{Never(), "exactly 0 times", []int{0}, []int{1}},
		{Exactly(3), "exactly 3 times", []int{3}, []int{2, 4}},
		{AtLeast(1), "at least once", []int{1, 50}, []int{0}},
		{AtLeast(2), "at least 2 times", []int{2, 3}, []int{1}},
		{AtMost(2), "at most 2 times", []int{0, 2}, []int{3}},
		{Between(1, 3), "between 1 and 3 times", []int{1, 3}, []int{0, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.str, tt.times.String())
			assert.NoError(t, tt.times.Validate())
			for _, n := range tt.in {
				assert.True(t, tt.times.Matches(n), "count %d", n)
			}
			for _, n := range tt.out {
				assert.False(t, tt.times.Matches(n), "count %d", n)
			}
		})
	}

	assert.Error(t, Times{AtLeast: -1, AtMost: 2}.Validate())
	assert.Error(t, Between(3, 1).Validate())
}

func TestVerifyCounts(t *testing.T) {
	log := requestlog.NewLog()
	receive(log, "/a", "/x", "/a", "/b")
	v := newVerifier(log)
	ctx := context.Background()

	tests := []struct {
		name    string
		matcher *expectation.RequestMatcher
		times   Times
		ok      bool
	}{
		{"exactly two", path("/a"), Exactly(2), true},
		{"exactly one fails", path("/a"), Exactly(1), false},
		{"exactly three fails", path("/a"), Exactly(3), false},
		{"at least two", path("/a"), AtLeast(2), true},
		{"at least one", path("/a"), AtLeast(1), true},
		{"at least three fails", path("/a"), AtLeast(3), false},
		{"at most two", path("/a"), AtMost(2), true},
		{"never received", path("/c"), Never(), true},
		{"regex path", path("/[ab]"), Exactly(3), true},
		{"any request", nil, Exactly(4), true},
		{"negated matcher", path("/a").Negate(), Exactly(2), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(ctx, []Target{Request(tt.matcher)}, tt.times)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var failure *Failure
			require.True(t, errors.As(err, &failure), "got %v", err)
			assert.Equal(t, 2, failure.Found)
		})
	}
}

func TestVerifyIgnoresOtherEntries(t *testing.T) {
	log := requestlog.NewLog()
	receive(log, "/a")
	log.Record(&requestlog.Entry{
		Type:    requestlog.ForwardedRequest,
		Request: &expectation.HTTPRequest{Path: "/a"},
	})
	log.Record(&requestlog.Entry{Type: requestlog.CreatedExpectation, ExpectationID: "e1"})

	assert.NoError(t, newVerifier(log).Verify(context.Background(), []Target{Request(path("/a"))}, Once()))
}

func TestVerifyMultipleTargets(t *testing.T) {
	log := requestlog.NewLog()
	receive(log, "/a", "/b")
	v := newVerifier(log)

	assert.NoError(t, v.Verify(context.Background(), []Target{Request(path("/a")), Request(path("/b"))}, Once()))

	err := v.Verify(context.Background(), []Target{Request(path("/a")), Request(path("/c"))}, Once())
	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Contains(t, failure.Message, `"/c"`)
}

func TestVerifyFailureMessage(t *testing.T) {
	log := requestlog.NewLog()
	receive(log, "/some_path")
	v := newVerifier(log)

	err := v.Verify(context.Background(), []Target{Request(path("/some_path"))}, AtLeast(2))
	require.Error(t, err)
	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "Request not found at least 2 times, expected:<{"), msg)
	assert.Contains(t, msg, "> but was:<{")
	assert.NotContains(t, msg, "but was:<[")
}

func TestVerifyFailurePreviewLimit(t *testing.T) {
	log := requestlog.NewLog()
	receive(log, "/p", "/p", "/p")

	err := newVerifier(log, WithMaxPreview(2)).Verify(context.Background(), []Target{Request(path("/p"))}, AtLeast(4))
	require.Error(t, err)
	assert.True(t, strings.HasSuffix(err.Error(), "> but was not found, found 3 other requests"), err.Error())

	err = newVerifier(log).Verify(context.Background(), []Target{Request(path("/p"))}, AtLeast(4))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "but was:<[ {")
}

func TestVerifyZeroInteractions(t *testing.T) {
	log := requestlog.NewLog()
	v := newVerifier(log)

	assert.NoError(t, v.Verify(context.Background(), nil, Never()))

	receive(log, "/a")
	err := v.Verify(context.Background(), nil, Never())
	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, 1, failure.Found)
}

func TestVerifyInvalidTimes(t *testing.T) {
	v := newVerifier(requestlog.NewLog())
	err := v.Verify(context.Background(), nil, Between(2, 1))
	require.Error(t, err)
	var failure *Failure
	assert.False(t, errors.As(err, &failure))
}

func TestVerifyByExpectationID(t *testing.T) {
	log := requestlog.NewLog()
	receive(log, "/some_path", "/some_path")
	v := newVerifier(log, WithResolver(resolverMap{
		"first":  path("/some_path"),
		"second": path("/some_other_path").WithSecure(true),
	}))
	ctx := context.Background()

	assert.NoError(t, v.Verify(ctx, []Target{ExpectationID("first")}, AtLeast(1)))
	assert.NoError(t, v.Verify(ctx, []Target{ExpectationID("first")}, Exactly(2)))
	assert.NoError(t, v.Verify(ctx, []Target{ExpectationID("second")}, Never()))

	err := v.Verify(ctx, []Target{ExpectationID("second")}, AtLeast(1))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "Request not found at least once"))

	err = v.Verify(ctx, []Target{ExpectationID("missing")}, AtLeast(1))
	var unknown *UnknownIdentifierError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "No expectation found with id missing", err.Error())
}

func TestVerifyByIDWithoutResolver(t *testing.T) {
	err := newVerifier(requestlog.NewLog()).Verify(context.Background(), []Target{ExpectationID("e1")}, Once())
	var unknown *UnknownIdentifierError
	assert.True(t, errors.As(err, &unknown))
}

func TestVerifySequence(t *testing.T) {
	log := requestlog.NewLog()
	receive(log, "/one", "/two", "/three")
	v := newVerifier(log)
	ctx := context.Background()

	tests := []struct {
		name  string
		paths []string
		ok    bool
	}{
		{"contiguous", []string{"/one", "/two"}, true},
		{"non contiguous", []string{"/one", "/three"}, true},
		{"full", []string{"/one", "/two", "/three"}, true},
		{"single", []string{"/two"}, true},
		{"empty", nil, true},
		{"reversed", []string{"/two", "/one"}, false},
		{"missing", []string{"/one", "/four"}, false},
		{"repeated", []string{"/one", "/one"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targets := make([]Target, 0, len(tt.paths))
			for _, p := range tt.paths {
				targets = append(targets, Request(path(p)))
			}
			err := v.VerifySequence(ctx, targets, 0)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.HasPrefix(err.Error(), "Request sequence not found, expected:<[ {"), err.Error())
			assert.Contains(t, err.Error(), "but was:<[ {")
		})
	}
}

func TestVerifySequencePreviewLimit(t *testing.T) {
	log := requestlog.NewLog()
	receive(log, "/some_path", "/some_path", "/some_path")
	v := newVerifier(log)

	err := v.VerifySequence(context.Background(), []Target{Request(path("/some_other_path")), Request(path("/some_path"))}, 2)
	require.Error(t, err)
	assert.True(t, strings.HasSuffix(err.Error(), "but was not found, found 3 other requests"), err.Error())

	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Len(t, failure.Expected, 2)
	assert.Equal(t, 0, failure.Found)
}

func TestVerifySequenceByExpectationID(t *testing.T) {
	log := requestlog.NewLog()
	receive(log, "/some_path_one", "/some_other_path", "/some_path_two", "/some_path_three")
	v := newVerifier(log, WithResolver(resolverMap{
		"first":  path("/some_path.*"),
		"second": path("/some_other_path.*"),
	}))
	ctx := context.Background()

	assert.NoError(t, v.VerifySequence(ctx, []Target{ExpectationID("first")}, 0))
	assert.NoError(t, v.VerifySequence(ctx, []Target{ExpectationID("first"), ExpectationID("first"), ExpectationID("first")}, 0))
	assert.NoError(t, v.VerifySequence(ctx, []Target{ExpectationID("first"), ExpectationID("second"), ExpectationID("first")}, 0))

	err := v.VerifySequence(ctx, []Target{ExpectationID("first"), ExpectationID("first"), ExpectationID("first"), ExpectationID("first")}, 0)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "Request sequence not found"))

	err = v.VerifySequence(ctx, []Target{ExpectationID("nope"), ExpectationID("first")}, 0)
	var unknown *UnknownIdentifierError
	assert.True(t, errors.As(err, &unknown))
}

func TestVerifyDoesNotModifyLog(t *testing.T) {
	log := requestlog.NewLog()
	receive(log, "/a", "/b")
	v := newVerifier(log)

	_ = v.Verify(context.Background(), []Target{Request(path("/a"))}, Exactly(5))
	_ = v.VerifySequence(context.Background(), []Target{Request(path("/b")), Request(path("/a"))}, 0)
	assert.Equal(t, 2, log.Count())
}
