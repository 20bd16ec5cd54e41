package modifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/expectd/pkg/expectation"
)

func baseRequest() *expectation.HTTPRequest {
	return &expectation.HTTPRequest{
		Method: "GET",
		Path:   "/api/v1/users/42",
		QueryStringParameters: expectation.Multimap{}.
			Add("page", "1").
			Add("debug", "true"),
		Headers: expectation.Multimap{}.
			Add("Accept", "text/html").
			Add("X-Trace", "abc").
			Add("Authorization", "secret"),
		Cookies: expectation.Multimap{}.Add("session", "s1"),
	}
}

func TestApplyRequestNilModifier(t *testing.T) {
	req := baseRequest()
	got, err := ApplyRequest(req, nil)
	require.NoError(t, err)
	assert.Same(t, req, got)
}

func TestApplyRequestPath(t *testing.T) {
	got, err := ApplyRequest(baseRequest(), &expectation.RequestModifier{
		Path: &expectation.PathModifier{Regex: `^/api/v1/(.*)$`, Substitution: "/v2/$1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/v2/users/42", got.Path)
}

func TestApplyRequestInvalidPathRegex(t *testing.T) {
	_, err := ApplyRequest(baseRequest(), &expectation.RequestModifier{
		Path: &expectation.PathModifier{Regex: `(`, Substitution: "x"},
	})
	assert.Error(t, err)
}

func TestApplyRequestHeaders(t *testing.T) {
	tests := []struct {
		name string
		mod  *expectation.KeyModifier
		want expectation.Multimap
	}{
		{
			name: "add appends exactly once",
			mod:  &expectation.KeyModifier{Add: expectation.Multimap{}.Add("X-Added", "yes")},
			want: expectation.Multimap{}.
				Add("Accept", "text/html").
				Add("X-Trace", "abc").
				Add("Authorization", "secret").
				Add("X-Added", "yes"),
		},
		{
			name: "add to existing name keeps both values",
			mod:  &expectation.KeyModifier{Add: expectation.Multimap{}.Add("accept", "application/json")},
			want: expectation.Multimap{}.
				Add("Accept", "text/html", "application/json").
				Add("X-Trace", "abc").
				Add("Authorization", "secret"),
		},
		{
			name: "replace only present names",
			mod: &expectation.KeyModifier{Replace: expectation.Multimap{}.
				Add("x-trace", "replaced").
				Add("X-Missing", "ignored")},
			want: expectation.Multimap{}.
				Add("Accept", "text/html").
				Add("X-Trace", "replaced").
				Add("Authorization", "secret"),
		},
		{
			name: "remove ignores case",
			mod:  &expectation.KeyModifier{Remove: []string{"authorization"}},
			want: expectation.Multimap{}.
				Add("Accept", "text/html").
				Add("X-Trace", "abc"),
		},
		{
			name: "remove runs before replace and add",
			mod: &expectation.KeyModifier{
				Remove:  []string{"X-Trace"},
				Replace: expectation.Multimap{}.Add("X-Trace", "not-applied"),
				Add:     expectation.Multimap{}.Add("X-Trace", "fresh"),
			},
			want: expectation.Multimap{}.
				Add("Accept", "text/html").
				Add("Authorization", "secret").
				Add("X-Trace", "fresh"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			got, err := ApplyRequest(req, &expectation.RequestModifier{Headers: tt.mod})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Headers)
			assert.Equal(t, baseRequest().Headers, req.Headers, "input must not change")
		})
	}
}

func TestApplyRequestQueryAndCookies(t *testing.T) {
	got, err := ApplyRequest(baseRequest(), &expectation.RequestModifier{
		QueryStringParameters: &expectation.KeyModifier{
			Remove: []string{"DEBUG"},
			Add:    expectation.Multimap{}.Add("lang", "en"),
		},
		Cookies: &expectation.KeyModifier{
			Replace: expectation.Multimap{}.Add("session", "s2"),
		},
	})
	require.NoError(t, err)

	// query parameter names are case-sensitive, so DEBUG does not remove debug
	assert.Equal(t, []string{"page", "debug", "lang"}, got.QueryStringParameters.Names())
	assert.Equal(t, "s2", got.Cookies.First("session", true))
}

func TestApplyResponse(t *testing.T) {
	resp := &expectation.HTTPResponse{
		StatusCode: 200,
		Headers:    expectation.Multimap{}.Add("Server", "upstream").Add("Cache-Control", "no-cache"),
		Cookies:    expectation.Multimap{}.Add("id", "1"),
	}

	assert.Same(t, resp, ApplyResponse(resp, nil))

	got := ApplyResponse(resp, &expectation.ResponseModifier{
		Headers: &expectation.KeyModifier{
			Remove:  []string{"server"},
			Replace: expectation.Multimap{}.Add("Cache-Control", "max-age=60"),
			Add:     expectation.Multimap{}.Add("X-Mocked", "true"),
		},
		Cookies: &expectation.KeyModifier{Add: expectation.Multimap{}.Add("extra", "2")},
	})

	assert.Equal(t, expectation.Multimap{}.
		Add("Cache-Control", "max-age=60").
		Add("X-Mocked", "true"), got.Headers)
	assert.Equal(t, []string{"id", "extra"}, got.Cookies.Names())
	assert.Equal(t, "upstream", resp.Headers.First("Server", false), "input must not change")
}
