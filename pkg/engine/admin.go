package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/getmockd/expectd/internal/storage"
	"github.com/getmockd/expectd/pkg/expectation"
	"github.com/getmockd/expectd/pkg/openapi"
	"github.com/getmockd/expectd/pkg/requestlog"
	"github.com/getmockd/expectd/pkg/verification"
)

// ClearType selects what a clear removes.
type ClearType string

const (
	ClearAll          ClearType = "ALL"
	ClearExpectations ClearType = "EXPECTATIONS"
	ClearLog          ClearType = "LOG"
)

func (t ClearType) expectations() bool { return t == "" || t == ClearAll || t == ClearExpectations }
func (t ClearType) log() bool          { return t == "" || t == ClearAll || t == ClearLog }

// RequestAndResponse is one recorded exchange.
type RequestAndResponse struct {
	Request  *expectation.HTTPRequest  `json:"httpRequest"`
	Response *expectation.HTTPResponse `json:"httpResponse"`
}

// Upsert validates and stores expectations. An expectation with the id of
// a stored one replaces it in place. When any expectation is invalid none
// is stored and every problem is reported.
func (e *Engine) Upsert(ctx context.Context, exps ...*expectation.Expectation) ([]*expectation.Expectation, error) {
	var result *multierror.Error
	for i, exp := range exps {
		if err := e.validate(ctx, exp); err != nil {
			result = multierror.Append(result, fmt.Errorf("expectation %d: %w", i, err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	stored := make([]*expectation.Expectation, 0, len(exps))
	for _, exp := range exps {
		res := e.store.Upsert(exp)
		typ, verb := requestlog.CreatedExpectation, "creating"
		if !res.Created {
			typ, verb = requestlog.UpdatedExpectation, "updated"
		}
		e.record(&requestlog.Entry{
			Type:          typ,
			Expectation:   res.Expectation,
			ExpectationID: res.Expectation.ID,
			MessageFormat: verb + " expectation:\n\n  %s\n\n with id:\n\n  %s\n",
			Arguments:     []any{indent(res.Expectation.JSON()), res.Expectation.ID},
		})
		e.history.put(res.Expectation.ID, res.Expectation.Matcher())
		for _, evicted := range res.Evicted {
			e.recordRemoved(evicted, "removed expectation:\n\n  %s\n\n with id:\n\n  %s\n\n to stay within capacity")
		}
		stored = append(stored, res.Expectation)
	}
	return stored, nil
}

// validate reports problems that would otherwise surface only at dispatch:
// matcher and action checks, template syntax and OpenAPI resolution.
func (e *Engine) validate(ctx context.Context, exp *expectation.Expectation) error {
	if exp == nil {
		return errors.New("expectation is nil")
	}
	var result *multierror.Error
	if err := exp.Validate(e.schemas); err != nil {
		result = multierror.Append(result, err)
	}
	switch a := exp.Action.(type) {
	case *expectation.ResponseTemplate:
		if err := e.templates.Compile(a.Template); err != nil {
			result = multierror.Append(result, fmt.Errorf("httpResponseTemplate: %w", err))
		}
	case *expectation.ForwardTemplate:
		if err := e.templates.Compile(a.Template); err != nil {
			result = multierror.Append(result, fmt.Errorf("httpForwardTemplate: %w", err))
		}
	}
	if m := exp.HTTPRequest; m.IsOpenAPI() {
		if _, err := e.openapi.ResolveOperation(ctx, string(m.SpecURLOrPayload), m.OperationID); err != nil {
			result = multierror.Append(result, fmt.Errorf("httpRequest: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// UpsertOpenAPI generates one expectation per selected operation of an
// OpenAPI definition and stores them.
func (e *Engine) UpsertOpenAPI(ctx context.Context, oe *openapi.Expectation) ([]*expectation.Expectation, error) {
	exps, err := e.openapi.Expectations(ctx, oe)
	if err != nil {
		return nil, err
	}
	return e.Upsert(ctx, exps...)
}

// Clear removes the expectations whose matcher filter selects and the log
// entries whose request filter matches. A nil filter clears everything of
// the selected type.
func (e *Engine) Clear(ctx context.Context, filter *expectation.RequestMatcher, typ ClearType) {
	if typ.expectations() {
		removed := e.store.RemoveMatching(func(exp *expectation.Expectation) bool {
			return e.matcher.MatchesMatcher(ctx, filter, exp.Matcher())
		})
		for _, exp := range removed {
			e.recordRemoved(exp, "removed expectation:\n\n  %s\n\n with id:\n\n  %s\n")
		}
	}
	if typ.log() {
		e.requests.RemoveWhere(func(entry *requestlog.Entry) bool {
			if filter == nil {
				return true
			}
			return entry.Request != nil && e.matcher.Matches(ctx, filter, entry.Request)
		})
	}

	entry := &requestlog.Entry{Type: requestlog.Cleared, MessageFormat: "cleared %s that match:\n\n  %s\n"}
	what := map[ClearType]string{ClearExpectations: "expectations", ClearLog: "logs"}[typ]
	if what == "" {
		what = "expectations and logs"
	}
	if filter == nil {
		entry.Arguments = []any{what, "{}"}
	} else {
		entry.Arguments = []any{what, indent(filter.JSON())}
	}
	e.record(entry)
}

// ClearByID removes the expectation with the given id and, depending on
// typ, the log entries recorded for it. It returns storage.ErrNotFound
// when no such expectation is stored.
func (e *Engine) ClearByID(ctx context.Context, id string, typ ClearType) error {
	if typ.expectations() {
		removed, err := e.store.Remove(id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
			}
			return err
		}
		e.recordRemoved(removed, "removed expectation:\n\n  %s\n\n with id:\n\n  %s\n")
	}
	if typ.log() {
		e.requests.RemoveWhere(func(entry *requestlog.Entry) bool {
			return entry.ExpectationID == id && entry.Type != requestlog.RemovedExpectation
		})
	}
	e.record(&requestlog.Entry{
		Type:          requestlog.Cleared,
		ExpectationID: id,
		MessageFormat: "cleared expectation with id %s",
		Arguments:     []any{id},
	})
	return nil
}

// Reset removes every expectation and every log entry.
func (e *Engine) Reset() {
	n := e.store.Reset()
	e.requests.Reset()
	e.history.reset()
	e.log.Info("reset expectations and request log", "expectations", n)
}

// RetrieveActiveExpectations returns the active expectations selected by
// filter, in selection order.
func (e *Engine) RetrieveActiveExpectations(ctx context.Context, filter *expectation.RequestMatcher) []*expectation.Expectation {
	return e.store.Active(func(exp *expectation.Expectation) bool {
		return e.matcher.MatchesMatcher(ctx, filter, exp.Matcher())
	})
}

// RetrieveRecordedRequests returns the received requests matching filter,
// oldest first.
func (e *Engine) RetrieveRecordedRequests(ctx context.Context, filter *expectation.RequestMatcher) []*expectation.HTTPRequest {
	entries := e.requests.List(&requestlog.Filter{
		Types:   []requestlog.EntryType{requestlog.ReceivedRequest},
		Request: e.requestFilter(ctx, filter),
	})
	out := make([]*expectation.HTTPRequest, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Request)
	}
	return out
}

// RetrieveRecordedRequestsAndResponses returns the responses returned for
// requests matching filter, oldest first.
func (e *Engine) RetrieveRecordedRequestsAndResponses(ctx context.Context, filter *expectation.RequestMatcher) []RequestAndResponse {
	entries := e.requests.List(&requestlog.Filter{
		Types:   []requestlog.EntryType{requestlog.ExpectationResponse, requestlog.NoMatchResponse},
		Request: e.requestFilter(ctx, filter),
	})
	out := make([]RequestAndResponse, 0, len(entries))
	for _, entry := range entries {
		if entry.Response != nil {
			out = append(out, RequestAndResponse{Request: entry.Request, Response: entry.Response})
		}
	}
	return out
}

// RetrieveRecordedExpectations turns forwarded exchanges whose request
// matches filter into expectations that would replay them.
func (e *Engine) RetrieveRecordedExpectations(ctx context.Context, filter *expectation.RequestMatcher) []*expectation.Expectation {
	entries := e.requests.List(&requestlog.Filter{
		Types:   []requestlog.EntryType{requestlog.ForwardedRequest},
		Request: e.requestFilter(ctx, filter),
	})
	out := make([]*expectation.Expectation, 0, len(entries))
	for _, entry := range entries {
		out = append(out, recordedExpectation(entry.Request, entry.Response))
	}
	return out
}

// RetrieveLogMessages returns the formatted messages of entries whose
// request matches filter, oldest first. Entries without a request are
// always included.
func (e *Engine) RetrieveLogMessages(ctx context.Context, filter *expectation.RequestMatcher) []string {
	entries := e.requests.List(&requestlog.Filter{
		Request:            e.requestFilter(ctx, filter),
		KeepWithoutRequest: true,
	})
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Timestamp.Format("2006-01-02 15:04:05.000")+" - "+entry.Message())
	}
	return out
}

func (e *Engine) requestFilter(ctx context.Context, filter *expectation.RequestMatcher) func(*requestlog.Entry) bool {
	if filter == nil {
		return nil
	}
	return func(entry *requestlog.Entry) bool {
		return e.matcher.Matches(ctx, filter, entry.Request)
	}
}

// Verify checks that each target was received within times. A failed check
// returns *verification.Failure; an unknown expectation id returns
// *verification.UnknownIdentifierError.
func (e *Engine) Verify(ctx context.Context, targets []verification.Target, times verification.Times) error {
	err := e.verifier.Verify(ctx, targets, times)
	e.recordVerification(err, "verifying requests %s", times.String())
	return err
}

// VerifySequence checks that requests matching targets were received in
// order. maxPreview bounds the recorded requests shown on failure; zero
// uses the engine default.
func (e *Engine) VerifySequence(ctx context.Context, targets []verification.Target, maxPreview int) error {
	err := e.verifier.VerifySequence(ctx, targets, maxPreview)
	e.recordVerification(err, "verifying sequence of %d requests", len(targets))
	return err
}

func (e *Engine) recordVerification(err error, format string, args ...any) {
	entry := &requestlog.Entry{Type: requestlog.Verification, MessageFormat: format, Arguments: args}
	if err != nil {
		entry.Type = requestlog.VerificationFailed
		entry.Level = requestlog.LevelWarn
		entry.Error = err.Error()
	}
	e.record(entry)
}

// ResolveMatcher returns the matcher of expectation id. Expectations that
// were consumed or removed are resolved from the matchers upserted since
// the last reset.
func (e *Engine) ResolveMatcher(id string) (*expectation.RequestMatcher, bool) {
	if exp, err := e.store.Get(id); err == nil {
		return exp.Matcher(), true
	}
	return e.history.get(id)
}

func (e *Engine) recordRemoved(exp *expectation.Expectation, format string) {
	e.record(&requestlog.Entry{
		Type:          requestlog.RemovedExpectation,
		Expectation:   exp,
		ExpectationID: exp.ID,
		MessageFormat: format,
		Arguments:     []any{indent(exp.JSON()), exp.ID},
	})
}
