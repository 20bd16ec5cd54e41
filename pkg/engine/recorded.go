package engine

import (
	"net/http"

	"github.com/getmockd/expectd/pkg/expectation"
)

// Headers that describe a single exchange rather than the request itself.
var unrecordedHeaders = []string{
	"Host", "Content-Length", "Connection", "Keep-Alive", "Transfer-Encoding",
	"Upgrade", "Proxy-Connection", "Te", "Trailer",
}

// recordedExpectation builds an expectation that replays a forwarded
// exchange: its matcher is the literal forwarded request and its action the
// upstream response.
func recordedExpectation(req *expectation.HTTPRequest, resp *expectation.HTTPResponse) *expectation.Expectation {
	m := expectation.Request()
	if req == nil {
		req = &expectation.HTTPRequest{}
	}
	if req.Method != "" {
		m.WithMethod(req.Method)
	}
	if req.Path != "" {
		m.WithPath(req.Path)
	}
	for _, e := range req.QueryStringParameters {
		m.WithQueryParameter(e.Name, e.Values...)
	}
	for _, e := range req.Headers {
		if skipHeader(e.Name) {
			continue
		}
		m.WithHeader(e.Name, e.Values...)
	}
	for _, e := range req.Cookies {
		for _, v := range e.Values {
			m.WithCookie(e.Name, v)
		}
	}
	if !req.Body.Empty() {
		m.WithBody(bodyMatcher(req.Body))
	}

	var action *expectation.HTTPResponse
	if resp != nil {
		action = resp.Clone()
	} else {
		action = expectation.NotFound()
	}
	return expectation.When(m).Then(action)
}

func skipHeader(name string) bool {
	canonical := http.CanonicalHeaderKey(name)
	for _, h := range unrecordedHeaders {
		if canonical == h {
			return true
		}
	}
	return false
}

func bodyMatcher(b *expectation.Body) *expectation.BodyMatcher {
	switch b.Type {
	case expectation.BodyJSON:
		return expectation.JSONBodyMatcher(b.String(), expectation.Strict)
	case expectation.BodyXML:
		return expectation.XMLBodyMatcher(b.String())
	case expectation.BodyBinary:
		return expectation.BinaryBodyMatcher(b.Bytes())
	default:
		return expectation.ExactBody(b.String())
	}
}
