package matching

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/getmockd/expectd/pkg/expectation"
	"github.com/getmockd/expectd/pkg/validation"
)

// fold normalizes s for case-insensitive comparison.
func fold(s string) string {
	return cases.Fold().String(s)
}

// equalText compares two strings, optionally ignoring case.
func equalText(a, b string, ignoreCase bool) bool {
	if !ignoreCase {
		return a == b
	}
	return a == b || fold(a) == fold(b)
}

// regex returns the compiled, fully anchored form of pattern. Patterns that
// do not compile are cached as nil.
func (m *Matcher) regex(pattern string, ignoreCase bool) *regexp.Regexp {
	key := pattern
	if ignoreCase {
		key = "(?i)" + pattern
	}
	if cached, ok := m.regexes.Load(key); ok {
		re, _ := cached.(*regexp.Regexp)
		return re
	}
	prefix := "^(?:"
	if ignoreCase {
		prefix = "(?i)^(?:"
	}
	re, err := regexp.Compile(prefix + pattern + ")$")
	if err != nil {
		m.log.Debug("pattern is not a valid regular expression, comparing literally", "pattern", pattern, "error", err)
		m.regexes.Store(key, (*regexp.Regexp)(nil))
		return nil
	}
	m.regexes.Store(key, re)
	return re
}

// matchText reports whether actual equals pattern or fully matches it as a
// regular expression. A blank pattern matches anything.
func (m *Matcher) matchText(pattern, actual string, ignoreCase bool) bool {
	if pattern == "" {
		return true
	}
	if equalText(pattern, actual, ignoreCase) {
		return true
	}
	if !hasRegexMeta(pattern) {
		return false
	}
	re := m.regex(pattern, ignoreCase)
	return re != nil && re.MatchString(actual)
}

// matchStr evaluates a single string matcher, honouring negation and schema
// matchers.
func (m *Matcher) matchStr(s expectation.Str, actual string, ignoreCase bool) bool {
	var ok bool
	if s.IsSchema() {
		ok = m.matchSchemaString(string(s.Schema), actual)
	} else {
		ok = m.matchText(s.Value, actual, ignoreCase)
	}
	return ok != s.Not
}

// matchSchemaString validates actual against a JSON schema, first as a
// string and then, when it parses, as the JSON value it spells.
func (m *Matcher) matchSchemaString(schema, actual string) bool {
	if len(m.schemas.Validate(validation.JSONSchema, schema, actual)) == 0 {
		return true
	}
	decoded, err := validation.DecodeJSON([]byte(actual))
	if err != nil {
		return false
	}
	if _, isString := decoded.(string); isString {
		return false
	}
	return len(m.schemas.Validate(validation.JSONSchema, schema, decoded)) == 0
}

func hasRegexMeta(s string) bool {
	return strings.ContainsAny(s, `\.+*?()|[]{}^$`)
}
