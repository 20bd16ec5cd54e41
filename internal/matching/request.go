package matching

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/getmockd/expectd/pkg/expectation"
)

// MatchesMatcher reports whether filter selects target, as used when
// clearing or retrieving expectations by matcher. Identical matchers always
// select each other; otherwise target's literal constraints are turned into
// a request and evaluated against filter.
func (m *Matcher) MatchesMatcher(ctx context.Context, filter, target *expectation.RequestMatcher) bool {
	if filter == nil || reflect.DeepEqual(filter, &expectation.RequestMatcher{}) {
		return true
	}
	if target == nil {
		target = expectation.Request()
	}
	if sameJSON(filter, target) {
		return true
	}
	return m.Matches(ctx, filter, RequestFromMatcher(target))
}

func sameJSON(a, b *expectation.RequestMatcher) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

// RequestFromMatcher builds the request described by the literal parts of a
// matcher. Negated and schema constraints are left out.
func RequestFromMatcher(rm *expectation.RequestMatcher) *expectation.HTTPRequest {
	req := &expectation.HTTPRequest{}
	if rm == nil {
		return req
	}
	if s, ok := literal(rm.Method); ok {
		req.Method = s
	}
	if s, ok := literal(rm.Path); ok {
		req.Path = s
	}
	req.PathParameters = literalKeys(rm.PathParameters)
	req.QueryStringParameters = literalKeys(rm.QueryStringParameters)
	req.Headers = literalKeys(rm.Headers)
	req.Cookies = literalKeys(rm.Cookies)
	if b := rm.Body; b != nil && !b.Not {
		switch b.Type {
		case expectation.BodyString, expectation.BodyRegex, expectation.BodyJSONPath, expectation.BodyXPath:
			req.Body = expectation.StringBody(b.Value)
		case expectation.BodyJSON, expectation.BodyJSONSchema:
			req.Body = expectation.JSONBody(b.Value)
		case expectation.BodyXML, expectation.BodyXMLSchema:
			req.Body = expectation.XMLBody(b.Value)
		case expectation.BodyBinary:
			req.Body = expectation.BinaryBody(b.Binary)
		}
	}
	req.KeepAlive = rm.KeepAlive
	req.Secure = rm.Secure
	if rm.SocketAddress != nil {
		addr := *rm.SocketAddress
		req.SocketAddress = &addr
	}
	return req
}

func literal(s *expectation.Str) (string, bool) {
	if s == nil || s.Not || s.IsSchema() {
		return "", false
	}
	return s.Value, true
}

func literalKeys(km *expectation.KeyMatchers) expectation.Multimap {
	if km.IsEmpty() {
		return nil
	}
	var out expectation.Multimap
	for _, e := range km.Entries {
		name, ok := literal(&e.Name)
		if !ok {
			continue
		}
		var values []string
		for i := range e.Values {
			if v, ok := literal(&e.Values[i]); ok {
				values = append(values, v)
			}
		}
		out = out.Add(name, values...)
	}
	return out
}
