package expectation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RequestMatcher is a predicate over an HTTPRequest. Nil fields place no
// constraint. Not inverts the final result.
//
// When SpecURLOrPayload is set the matcher is an OpenAPI definition: it
// matches requests valid for OperationID (or for any operation when
// OperationID is empty) and the structural fields are ignored.
type RequestMatcher struct {
	Not                   bool           `json:"not,omitempty"`
	Method                *Str           `json:"method,omitempty"`
	Path                  *Str           `json:"path,omitempty"`
	PathParameters        *KeyMatchers   `json:"pathParameters,omitempty"`
	QueryStringParameters *KeyMatchers   `json:"queryStringParameters,omitempty"`
	Headers               *KeyMatchers   `json:"headers,omitempty"`
	Cookies               *KeyMatchers   `json:"cookies,omitempty"`
	Body                  *BodyMatcher   `json:"body,omitempty"`
	KeepAlive             *bool          `json:"keepAlive,omitempty"`
	Secure                *bool          `json:"secure,omitempty"`
	SocketAddress         *SocketAddress `json:"socketAddress,omitempty"`
	CaseInsensitive       bool           `json:"caseInsensitive,omitempty"`

	SpecURLOrPayload SpecSource `json:"specUrlOrPayload,omitempty"`
	OperationID      string     `json:"operationId,omitempty"`
}

// Request starts an empty matcher that matches every request.
func Request() *RequestMatcher { return &RequestMatcher{} }

// OpenAPI creates an OpenAPI definition matcher.
func OpenAPI(spec, operationID string) *RequestMatcher {
	return &RequestMatcher{SpecURLOrPayload: SpecSource(spec), OperationID: operationID}
}

// IsOpenAPI reports whether the matcher is an OpenAPI definition.
func (m *RequestMatcher) IsOpenAPI() bool { return m != nil && m.SpecURLOrPayload != "" }

func (m *RequestMatcher) WithMethod(method string) *RequestMatcher {
	s := String(method)
	m.Method = &s
	return m
}

func (m *RequestMatcher) WithPath(path string) *RequestMatcher {
	s := String(path)
	m.Path = &s
	return m
}

func (m *RequestMatcher) WithPathStr(path Str) *RequestMatcher {
	m.Path = &path
	return m
}

func (m *RequestMatcher) WithPathParameter(name string, values ...string) *RequestMatcher {
	m.PathParameters = withKey(m.PathParameters, name, values)
	return m
}

func (m *RequestMatcher) WithQueryParameter(name string, values ...string) *RequestMatcher {
	m.QueryStringParameters = withKey(m.QueryStringParameters, name, values)
	return m
}

func (m *RequestMatcher) WithHeader(name string, values ...string) *RequestMatcher {
	m.Headers = withKey(m.Headers, name, values)
	return m
}

func (m *RequestMatcher) WithCookie(name, value string) *RequestMatcher {
	m.Cookies = withKey(m.Cookies, name, []string{value})
	return m
}

func (m *RequestMatcher) WithBody(body *BodyMatcher) *RequestMatcher {
	m.Body = body
	return m
}

func (m *RequestMatcher) WithSecure(secure bool) *RequestMatcher {
	m.Secure = &secure
	return m
}

func (m *RequestMatcher) WithKeepAlive(keepAlive bool) *RequestMatcher {
	m.KeepAlive = &keepAlive
	return m
}

func (m *RequestMatcher) WithSocketAddress(host string, port int, scheme Scheme) *RequestMatcher {
	m.SocketAddress = &SocketAddress{Host: host, Port: port, Scheme: scheme}
	return m
}

// Negate flips the whole-matcher Not flag.
func (m *RequestMatcher) Negate() *RequestMatcher {
	m.Not = !m.Not
	return m
}

func withKey(km *KeyMatchers, name string, values []string) *KeyMatchers {
	if km == nil {
		km = &KeyMatchers{Style: SubSet}
	}
	strs := make([]Str, 0, len(values))
	for _, v := range values {
		strs = append(strs, String(v))
	}
	return km.With(String(name), strs...)
}

// JSON renders the matcher as indented JSON, as used in verification
// failure messages.
func (m *RequestMatcher) JSON() string {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", *m)
	}
	return string(raw)
}

// SpecSource is an OpenAPI document reference: a URL, a file path, or the
// document itself (JSON or YAML text). In JSON it may also be an inline
// object.
type SpecSource string

// IsInline reports whether the source holds the document itself.
func (s SpecSource) IsInline() bool {
	t := strings.TrimSpace(string(s))
	return strings.HasPrefix(t, "{") || strings.HasPrefix(t, "openapi:") || strings.Contains(t, "\n")
}

func (s *SpecSource) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = SpecSource(v)
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return err
	}
	*s = SpecSource(buf.String())
	return nil
}
