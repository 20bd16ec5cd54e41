// Package modifier edits requests before they are forwarded and responses
// after they come back from an upstream.
//
// Modifications run in a fixed order: path substitution, then removals,
// then replacements (only for names already present), then additions.
// Inputs are never mutated; a nil modifier returns the input unchanged.
package modifier

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/getmockd/expectd/pkg/expectation"
)

var patterns sync.Map // string -> *regexp.Regexp

func compile(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patterns.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid path regex %q: %w", pattern, err)
	}
	patterns.Store(pattern, re)
	return re, nil
}

// ApplyRequest returns a modified copy of req.
func ApplyRequest(req *expectation.HTTPRequest, mod *expectation.RequestModifier) (*expectation.HTTPRequest, error) {
	if mod == nil || req == nil {
		return req, nil
	}
	out := req.Clone()
	if mod.Path != nil && mod.Path.Regex != "" {
		re, err := compile(mod.Path.Regex)
		if err != nil {
			return nil, err
		}
		out.Path = re.ReplaceAllString(out.Path, mod.Path.Substitution)
	}
	out.QueryStringParameters = applyKeys(out.QueryStringParameters, mod.QueryStringParameters, false)
	out.Headers = applyKeys(out.Headers, mod.Headers, true)
	out.Cookies = applyKeys(out.Cookies, mod.Cookies, true)
	return out, nil
}

// ApplyResponse returns a modified copy of resp.
func ApplyResponse(resp *expectation.HTTPResponse, mod *expectation.ResponseModifier) *expectation.HTTPResponse {
	if mod == nil || resp == nil {
		return resp
	}
	out := resp.Clone()
	out.Headers = applyKeys(out.Headers, mod.Headers, true)
	out.Cookies = applyKeys(out.Cookies, mod.Cookies, true)
	return out
}

// applyKeys edits m in place; callers pass a copy. Header and cookie names
// compare ignoring case, query parameter names exactly.
func applyKeys(m expectation.Multimap, km *expectation.KeyModifier, fold bool) expectation.Multimap {
	if km == nil {
		return m
	}
	for _, name := range km.Remove {
		m = m.Remove(name, fold)
	}
	for _, e := range km.Replace {
		if m.Has(e.Name, fold) {
			m = m.Set(e.Name, fold, e.Values...)
		}
	}
	for _, e := range km.Add {
		m = add(m, e.Name, fold, e.Values)
	}
	return m
}

func add(m expectation.Multimap, name string, fold bool, values []string) expectation.Multimap {
	for i := range m {
		if m[i].Name == name || (fold && strings.EqualFold(m[i].Name, name)) {
			m[i].Values = append(m[i].Values, values...)
			return m
		}
	}
	return append(m, expectation.Entry{Name: name, Values: append([]string(nil), values...)})
}
