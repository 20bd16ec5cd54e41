package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/getmockd/expectd/pkg/expectation"
)

func TestMatchBody(t *testing.T) {
	m := New()

	optional := expectation.ExactBody("payload")
	optional.Optional = true

	tests := []struct {
		name    string
		matcher *expectation.BodyMatcher
		body    *expectation.Body
		want    bool
	}{
		{"nil matcher, empty body", nil, nil, true},
		{"nil matcher, any body", nil, expectation.StringBody("x"), true},
		{"exact", expectation.ExactBody("some body"), expectation.StringBody("some body"), true},
		{"exact mismatch", expectation.ExactBody("some body"), expectation.StringBody("some body!"), false},
		{"substring", expectation.SubStringBody("me bo"), expectation.StringBody("some body"), true},
		{"substring missing", expectation.SubStringBody("other"), expectation.StringBody("some body"), false},
		{"regex", expectation.RegexBody("some.*"), expectation.StringBody("some body"), true},
		{"regex is anchored", expectation.RegexBody("body"), expectation.StringBody("some body"), false},
		{"invalid regex never matches", expectation.RegexBody("a(b"), expectation.StringBody("a(b"), false},
		{"not regex on empty body", expectation.RegexBody(".+").Negate(), nil, true},
		{"not regex on non-empty body", expectation.RegexBody(".+").Negate(), expectation.StringBody("x"), false},
		{"negated exact", expectation.ExactBody("a").Negate(), expectation.StringBody("b"), true},
		{"optional on empty body", optional, nil, true},
		{"optional on other body", optional, expectation.StringBody("other"), false},
		{"binary", expectation.BinaryBodyMatcher([]byte{0x01, 0x02}), expectation.BinaryBody([]byte{0x01, 0x02}), true},
		{"binary mismatch", expectation.BinaryBodyMatcher([]byte{0x01, 0x02}), expectation.BinaryBody([]byte{0x01}), false},
		{
			"form parameters",
			expectation.ParametersBody(expectation.Keys("name", "alice")),
			expectation.StringBody("name=alice&role=admin"),
			true,
		},
		{
			"form parameters missing",
			expectation.ParametersBody(expectation.Keys("name", "bob")),
			expectation.StringBody("name=alice"),
			false,
		},
		{
			"json schema",
			expectation.JSONSchemaBody(`{"type": "object", "required": ["id"], "properties": {"id": {"type": "integer"}}}`),
			expectation.JSONBody(`{"id": 7}`),
			true,
		},
		{
			"json schema violation",
			expectation.JSONSchemaBody(`{"type": "object", "required": ["id"]}`),
			expectation.JSONBody(`{"name": "x"}`),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.MatchBody(tt.matcher, tt.body, false))
		})
	}
}

func TestMatchBody_IgnoreCase(t *testing.T) {
	m := New()
	body := expectation.StringBody("Some Body")

	assert.False(t, m.MatchBody(expectation.ExactBody("some body"), body, false))
	assert.True(t, m.MatchBody(expectation.ExactBody("some body"), body, true))
	assert.True(t, m.MatchBody(expectation.SubStringBody("BODY"), body, true))
	assert.True(t, m.MatchBody(expectation.RegexBody("some.*"), body, true))
}

func TestMatchJSON(t *testing.T) {
	m := New()

	tests := []struct {
		name      string
		expected  string
		actual    string
		matchType expectation.JSONMatchType
		want      bool
	}{
		{"equal", `{"a": 1}`, `{"a": 1}`, expectation.Strict, true},
		{"extra field allowed", `{"a": 1}`, `{"a": 1, "b": 2}`, expectation.OnlyMatchingFields, true},
		{"extra field strict", `{"a": 1}`, `{"a": 1, "b": 2}`, expectation.Strict, false},
		{"missing field", `{"a": 1, "b": 2}`, `{"a": 1}`, expectation.OnlyMatchingFields, false},
		{"number forms", `{"a": 1.0}`, `{"a": 1}`, expectation.Strict, true},
		{"array subset any order", `[3, 1]`, `[1, 2, 3]`, expectation.OnlyMatchingFields, true},
		{"array strict order", `[3, 1, 2]`, `[1, 2, 3]`, expectation.Strict, false},
		{"array items distinct", `[1, 1]`, `[1, 2]`, expectation.OnlyMatchingFields, false},
		{
			"array assignment backtracks",
			`[{"a": 1}, {"a": 1, "b": 2}]`,
			`[{"a": 1, "b": 2}, {"a": 1}]`,
			expectation.OnlyMatchingFields,
			true,
		},
		{"nested subset", `{"o": {"x": true}}`, `{"o": {"x": true, "y": null}}`, expectation.OnlyMatchingFields, true},
		{"type mismatch", `{"a": "1"}`, `{"a": 1}`, expectation.OnlyMatchingFields, false},
		{"ignore placeholder", `{"a": "${json-unit.ignore}"}`, `{"a": [1, 2]}`, expectation.Strict, true},
		{"any-string", `{"a": "${json-unit.any-string}"}`, `{"a": "x"}`, expectation.Strict, true},
		{"any-string rejects number", `{"a": "${json-unit.any-string}"}`, `{"a": 1}`, expectation.Strict, false},
		{"any-number", `{"a": "${json-unit.any-number}"}`, `{"a": 2.5}`, expectation.Strict, true},
		{"any-boolean", `{"a": "${json-unit.any-boolean}"}`, `{"a": false}`, expectation.Strict, true},
		{"regex placeholder", `{"id": "${json-unit.regex}[a-f0-9]+"}`, `{"id": "beef"}`, expectation.Strict, true},
		{"regex placeholder mismatch", `{"id": "${json-unit.regex}[a-f0-9]+"}`, `{"id": "xyz"}`, expectation.Strict, false},
		{"unknown placeholder compares literally", `{"a": "${json-unit.other}"}`, `{"a": "${json-unit.other}"}`, expectation.Strict, true},
		{"body not json", `{"a": 1}`, `a=1`, expectation.OnlyMatchingFields, false},
		{"expected not json", `{`, `{}`, expectation.OnlyMatchingFields, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.MatchJSON(tt.expected, []byte(tt.actual), tt.matchType))
		})
	}
}

func TestMatchJSONPath(t *testing.T) {
	m := New()
	body := []byte(`{"store": {"book": [{"title": "Go", "price": 8}, {"title": "Rust", "price": 12}]}}`)

	tests := []struct {
		name string
		path string
		body []byte
		want bool
	}{
		{"selects field", "$.store.book[0].title", body, true},
		{"missing field", "$.store.bicycle", body, false},
		{"filter selects", "$.store.book[?(@.price < 10)]", body, true},
		{"filter selects nothing", "$.store.book[?(@.price > 100)]", body, false},
		{"invalid expression", "$.store.book[", body, false},
		{"body not json", "$.store", []byte("<store/>"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.MatchJSONPath(tt.path, tt.body))
			// second evaluation uses the cached expression
			assert.Equal(t, tt.want, m.MatchJSONPath(tt.path, tt.body))
		})
	}
}

func TestMatchXPath(t *testing.T) {
	m := New()
	body := []byte(`<bookstore><book lang="en"><title>Go</title></book><book lang="fr"><title>Rouille</title></book></bookstore>`)

	tests := []struct {
		name string
		path string
		body []byte
		want bool
	}{
		{"absolute", "/bookstore/book", body, true},
		{"descendant", "//title", body, true},
		{"attribute predicate", "//book[@lang='fr']", body, true},
		{"attribute predicate mismatch", "//book[@lang='de']", body, false},
		{"child text predicate", "//book[title='Go']", body, true},
		{"missing element", "//magazine", body, false},
		{"invalid path", "//book[", body, false},
		{"body not xml", "//book", []byte(`{"book": 1}`), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.MatchXPath(tt.path, tt.body))
		})
	}
}

func TestMatchXML(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		actual   string
		want     bool
	}{
		{"equal", `<a x="1"><b>t</b></a>`, `<a x="1"><b>t</b></a>`, true},
		{"formatting ignored", `<a><b>t</b></a>`, "<a>\n  <b> t </b>\n</a>", true},
		{"attribute order ignored", `<a x="1" y="2"/>`, `<a y="2" x="1"/>`, true},
		{"attribute value differs", `<a x="1"/>`, `<a x="2"/>`, false},
		{"extra attribute", `<a/>`, `<a x="1"/>`, false},
		{"child order matters", `<a><b/><c/></a>`, `<a><c/><b/></a>`, false},
		{"text differs", `<a>1</a>`, `<a>2</a>`, false},
		{"comments ignored", `<a><b/></a>`, `<a><!-- note --><b/></a>`, true},
		{"same namespace different prefix", `<p:a xmlns:p="urn:x"/>`, `<q:a xmlns:q="urn:x"/>`, true},
		{"different namespace", `<p:a xmlns:p="urn:x"/>`, `<p:a xmlns:p="urn:y"/>`, false},
		{"not xml", `<a/>`, `{}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchXML(tt.expected, []byte(tt.actual)))
		})
	}
}

func TestMatches_Body(t *testing.T) {
	m := New()
	req := request("POST", "/orders")
	req.Body = expectation.JSONBody(`{"id": 1, "items": ["a", "b"]}`)

	rm := expectation.Request().WithPath("/orders").WithBody(expectation.JSONBodyMatcher(`{"items": ["b"]}`, expectation.OnlyMatchingFields))
	assert.True(t, m.Matches(t.Context(), rm, req))

	rm = expectation.Request().WithPath("/orders").WithBody(expectation.JSONBodyMatcher(`{"items": ["b"]}`, expectation.Strict))
	assert.False(t, m.Matches(t.Context(), rm, req))
}
