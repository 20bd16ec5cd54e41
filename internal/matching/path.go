package matching

import (
	"regexp"
	"strings"

	"github.com/getmockd/expectd/pkg/expectation"
)

var templateSegment = regexp.MustCompile(`^\{([A-Za-z_][A-Za-z0-9_.-]*)\}$`)

// IsPathTemplate reports whether pattern contains {name} segments.
func IsPathTemplate(pattern string) bool {
	for _, seg := range strings.Split(pattern, "/") {
		if templateSegment.MatchString(seg) {
			return true
		}
	}
	return false
}

// MatchPathTemplate matches path against a template such as
// "/users/{id}/orders". Literal segments compare like string matchers. On
// success the bound parameters are returned in template order.
func (m *Matcher) MatchPathTemplate(pattern, path string, ignoreCase bool) (expectation.Multimap, bool) {
	patternParts := strings.Split(strings.Trim(pattern, "/"), "/")
	pathParts := strings.Split(strings.Trim(path, "/"), "/")

	// Must have same number of segments
	if len(patternParts) != len(pathParts) {
		return nil, false
	}

	var params expectation.Multimap
	for i, part := range patternParts {
		if sub := templateSegment.FindStringSubmatch(part); sub != nil {
			if pathParts[i] == "" {
				return nil, false
			}
			params = params.Add(sub[1], pathParts[i])
			continue
		}
		if !m.matchText(part, pathParts[i], ignoreCase) {
			return nil, false
		}
	}
	return params, true
}

// matchPath evaluates the path matcher and returns the path parameters to
// check pathParameters against: bound template values, or the request's own.
func (m *Matcher) matchPath(p *expectation.Str, req *expectation.HTTPRequest, ignoreCase bool) (bool, expectation.Multimap) {
	if p == nil {
		return true, req.PathParameters
	}
	if !p.IsSchema() && IsPathTemplate(p.Value) {
		params, ok := m.MatchPathTemplate(p.Value, req.Path, ignoreCase)
		if !ok {
			params = req.PathParameters
		}
		return ok != p.Not, params
	}
	return m.matchStr(*p, req.Path, ignoreCase), req.PathParameters
}
