package template

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getmockd/expectd/pkg/expectation"
)

// newModel builds the data both dialects render against. Values are plain
// maps, slices and scalars so that lookups behave the same in each dialect.
func newModel(req *expectation.HTTPRequest, now time.Time) map[string]any {
	request := map[string]any{
		"method":                req.Method,
		"path":                  req.Path,
		"pathParameters":        multimapModel(req.PathParameters),
		"queryStringParameters": multimapModel(req.QueryStringParameters),
		"headers":               multimapModel(req.Headers),
		"cookies":               cookieModel(req.Cookies),
		"body":                  req.Body.String(),
		"secure":                req.IsSecure(),
		"keepAlive":             req.KeepAlive != nil && *req.KeepAlive,
		"remoteAddress":         req.RemoteAddress,
		"protocol":              req.Protocol,
	}
	if !req.Body.Empty() {
		var decoded any
		if err := json.Unmarshal(req.Body.Bytes(), &decoded); err == nil {
			request["json"] = decoded
		}
	}

	utc := now.UTC()
	return map[string]any{
		"request":      request,
		"now":          utc.Format(time.RFC3339Nano),
		"now_epoch":    strconv.FormatInt(utc.Unix(), 10),
		"now_rfc_1123": utc.Format(http.TimeFormat),
	}
}

func multimapModel(m expectation.Multimap) map[string]any {
	out := make(map[string]any, len(m))
	for _, e := range m {
		values := make([]any, 0, len(e.Values))
		if prev, ok := out[e.Name].([]any); ok {
			values = prev
		}
		for _, v := range e.Values {
			values = append(values, v)
		}
		out[e.Name] = values
	}
	return out
}

func cookieModel(m expectation.Multimap) map[string]any {
	out := make(map[string]any, len(m))
	for _, e := range m {
		if _, seen := out[e.Name]; seen || len(e.Values) == 0 {
			continue
		}
		out[e.Name] = e.Values[0]
	}
	return out
}

// child resolves one path segment: a map key (exact, then ignoring case) or
// a list index.
func child(v any, key string) (any, bool) {
	switch c := v.(type) {
	case map[string]any:
		if got, ok := c[key]; ok {
			return got, true
		}
		for k, got := range c {
			if strings.EqualFold(k, key) {
				return got, true
			}
		}
	case []any:
		i, err := strconv.Atoi(key)
		if err == nil && i >= 0 && i < len(c) {
			return c[i], true
		}
	}
	return nil, false
}

// walk resolves a dotted path below v.
func walk(v any, parts []string) (any, bool) {
	for _, p := range parts {
		next, ok := child(v, p)
		if !ok {
			return nil, false
		}
		v = next
	}
	return v, true
}

// stringify renders a value for interpolation. Scalars are written as-is;
// maps and lists as JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool, int, int64, float64, json.Number:
		return fmt.Sprint(t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}

// truthy follows mustache section semantics.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}
