package matching

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/getmockd/expectd/pkg/expectation"
	"github.com/getmockd/expectd/pkg/logging"
	"github.com/getmockd/expectd/pkg/validation"
)

// SchemaValidator validates values against JSON or XML schemas.
type SchemaValidator interface {
	Validate(kind validation.Kind, source string, value any) []string
	ValidateJSON(source string, document []byte) []string
}

// OperationResolver turns an OpenAPI definition into structural matchers,
// one per selected operation. An empty operationID selects every operation.
type OperationResolver interface {
	ResolveOperation(ctx context.Context, spec string, operationID string) ([]*expectation.RequestMatcher, error)
}

// Matcher evaluates requests against request matchers. It is safe for
// concurrent use; compiled regexes and paths are cached.
type Matcher struct {
	schemas         SchemaValidator
	resolver        OperationResolver
	caseInsensitive bool
	log             *slog.Logger

	regexes   sync.Map // string -> *regexp.Regexp
	jsonPaths sync.Map // string -> jp.Expr
	xpaths    sync.Map // string -> etree.Path
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithSchemaValidator sets the schema collaborator.
func WithSchemaValidator(v SchemaValidator) Option {
	return func(m *Matcher) { m.schemas = v }
}

// WithOperationResolver sets the OpenAPI collaborator. Without one OpenAPI
// matchers never match.
func WithOperationResolver(r OperationResolver) Option {
	return func(m *Matcher) { m.resolver = r }
}

// WithCaseInsensitive makes every value comparison case-insensitive.
func WithCaseInsensitive(enabled bool) Option {
	return func(m *Matcher) { m.caseInsensitive = enabled }
}

// New creates a Matcher.
func New(opts ...Option) *Matcher {
	m := &Matcher{log: logging.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	if m.schemas == nil {
		m.schemas = validation.NewValidator()
	}
	return m
}

// SetLogger sets the operational logger.
func (m *Matcher) SetLogger(log *slog.Logger) {
	if log != nil {
		m.log = log
	}
}

// Matches reports whether req satisfies rm. A nil matcher matches every
// request.
func (m *Matcher) Matches(ctx context.Context, rm *expectation.RequestMatcher, req *expectation.HTTPRequest) bool {
	if rm == nil {
		return true
	}
	if req == nil {
		req = &expectation.HTTPRequest{}
	}
	ok := true
	for _, c := range m.checks(ctx, rm, req) {
		if !c.eval() {
			ok = false
			break
		}
	}
	return ok != rm.Not
}

// fieldCheck is one constrained field of a matcher.
type fieldCheck struct {
	field    string
	weight   int
	expected any
	actual   func() any
	eval     func() bool
	details  func() (any, int)
}

func (m *Matcher) checks(ctx context.Context, rm *expectation.RequestMatcher, req *expectation.HTTPRequest) []fieldCheck {
	if rm.IsOpenAPI() {
		return []fieldCheck{{
			field:    "openapi",
			weight:   ScoreOpenAPI,
			expected: rm.OperationID,
			actual:   func() any { return req.Method + " " + req.Path },
			eval:     func() bool { return m.matchOpenAPI(ctx, rm, req) },
		}}
	}

	ignoreCase := m.caseInsensitive || rm.CaseInsensitive
	var checks []fieldCheck

	if rm.Method != nil {
		checks = append(checks, fieldCheck{
			field:    "method",
			weight:   ScoreMethod,
			expected: rm.Method.String(),
			actual:   func() any { return req.Method },
			eval:     func() bool { return m.matchStr(*rm.Method, req.Method, true) },
		})
	}

	pathOK, pathParams := true, req.PathParameters
	if rm.Path != nil {
		pathOK, pathParams = m.matchPath(rm.Path, req, ignoreCase)
		checks = append(checks, fieldCheck{
			field:    "path",
			weight:   ScorePath,
			expected: rm.Path.String(),
			actual:   func() any { return req.Path },
			eval:     func() bool { return pathOK },
		})
	}

	checks = m.appendKeys(checks, "pathParameters", ScorePathParameter, rm.PathParameters, pathParams, false, ignoreCase)
	checks = m.appendKeys(checks, "queryStringParameters", ScoreQueryParam, rm.QueryStringParameters, req.QueryStringParameters, false, ignoreCase)
	checks = m.appendKeys(checks, "headers", ScoreHeader, rm.Headers, req.Headers, true, ignoreCase)
	checks = m.appendKeys(checks, "cookies", ScoreCookie, rm.Cookies, req.Cookies, true, ignoreCase)

	if rm.Body != nil {
		checks = append(checks, fieldCheck{
			field:    "body",
			weight:   ScoreBody,
			expected: rm.Body.String(),
			actual:   func() any { return truncate(req.Body.String(), 256) },
			eval:     func() bool { return m.MatchBody(rm.Body, req.Body, ignoreCase) },
		})
	}

	if rm.KeepAlive != nil {
		checks = append(checks, flagCheck("keepAlive", *rm.KeepAlive, req.KeepAlive))
	}
	if rm.Secure != nil {
		checks = append(checks, flagCheck("secure", *rm.Secure, req.Secure))
	}

	if rm.SocketAddress != nil {
		checks = append(checks, fieldCheck{
			field:    "socketAddress",
			weight:   ScoreSocketAddress,
			expected: formatAddress(rm.SocketAddress),
			actual:   func() any { return formatAddress(req.SocketAddress) },
			eval:     func() bool { return m.matchSocketAddress(rm.SocketAddress, req.SocketAddress) },
		})
	}

	return checks
}

func (m *Matcher) appendKeys(checks []fieldCheck, field string, weight int, km *expectation.KeyMatchers, actual expectation.Multimap, foldNames, ignoreCase bool) []fieldCheck {
	if km.IsEmpty() {
		return checks
	}
	return append(checks, fieldCheck{
		field:  field,
		weight: weight * len(km.Entries),
		actual: func() any { return actual },
		eval:   func() bool { return m.matchKeys(km, actual, foldNames, ignoreCase) },
		details: func() (any, int) {
			details, matched := m.keyDetails(km, actual, foldNames, ignoreCase)
			return details, matched * weight
		},
	})
}

func flagCheck(field string, want bool, got *bool) fieldCheck {
	actual := got != nil && *got
	return fieldCheck{
		field:    field,
		weight:   ScoreFlag,
		expected: want,
		actual:   func() any { return actual },
		eval:     func() bool { return want == actual },
	}
}

func (m *Matcher) matchSocketAddress(want, got *expectation.SocketAddress) bool {
	if got == nil {
		got = &expectation.SocketAddress{}
	}
	if want.Host != "" && !m.matchText(want.Host, got.Host, true) {
		return false
	}
	if want.Port != 0 && want.Port != got.Port {
		return false
	}
	if want.Scheme != "" && want.Scheme != got.Scheme {
		return false
	}
	return true
}

func (m *Matcher) matchOpenAPI(ctx context.Context, rm *expectation.RequestMatcher, req *expectation.HTTPRequest) bool {
	if m.resolver == nil {
		m.log.Warn("openapi matcher evaluated without a resolver", "operationId", rm.OperationID)
		return false
	}
	matchers, err := m.resolver.ResolveOperation(ctx, string(rm.SpecURLOrPayload), rm.OperationID)
	if err != nil {
		m.log.Warn("failed to resolve openapi operation", "operationId", rm.OperationID, "error", err)
		return false
	}
	for _, candidate := range matchers {
		if m.Matches(ctx, candidate, req) {
			return true
		}
	}
	return false
}

func formatAddress(a *expectation.SocketAddress) string {
	if a == nil {
		return ""
	}
	s := a.Host
	if a.Port != 0 {
		s += ":" + strconv.Itoa(a.Port)
	}
	if a.Scheme != "" {
		s = string(a.Scheme) + "://" + s
	}
	return s
}

// truncate shortens a string to maxLen, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
