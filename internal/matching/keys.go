package matching

import (
	"github.com/getmockd/expectd/pkg/expectation"
)

// KeyDetail describes the match result for a single key constraint.
type KeyDetail struct {
	Key      string   `json:"key"`
	Expected []string `json:"expected,omitempty"`
	Actual   []string `json:"actual,omitempty"`
	Matched  bool     `json:"matched"`
}

// matchKeys reports whether every key constraint is satisfied by actual.
// foldNames selects case-insensitive key names.
func (m *Matcher) matchKeys(km *expectation.KeyMatchers, actual expectation.Multimap, foldNames, ignoreCase bool) bool {
	if km.IsEmpty() {
		return true
	}
	for _, e := range km.Entries {
		if !m.matchKey(km.Style, e, actual, foldNames, ignoreCase) {
			return false
		}
	}
	return true
}

// keyDetails evaluates every key constraint without short-circuiting.
func (m *Matcher) keyDetails(km *expectation.KeyMatchers, actual expectation.Multimap, foldNames, ignoreCase bool) ([]KeyDetail, int) {
	if km.IsEmpty() {
		return nil, 0
	}
	details := make([]KeyDetail, 0, len(km.Entries))
	matched := 0
	for _, e := range km.Entries {
		ok := m.matchKey(km.Style, e, actual, foldNames, ignoreCase)
		if ok {
			matched++
		}
		expected := make([]string, 0, len(e.Values))
		for _, v := range e.Values {
			expected = append(expected, v.String())
		}
		_, values := m.lookup(e.Name, actual, foldNames)
		details = append(details, KeyDetail{
			Key:      e.Name.String(),
			Expected: expected,
			Actual:   values,
			Matched:  ok,
		})
	}
	return details, matched
}

// lookup collects the values of every actual key matching name, ignoring
// the name's negation and optional flags.
func (m *Matcher) lookup(name expectation.Str, actual expectation.Multimap, foldNames bool) (bool, []string) {
	name.Not = false
	name.Optional = false
	found := false
	var values []string
	for _, entry := range actual {
		if m.matchStr(name, entry.Name, foldNames) {
			found = true
			values = append(values, entry.Values...)
		}
	}
	return found, values
}

func (m *Matcher) matchKey(style expectation.KeyMatchStyle, e expectation.KeyMatcher, actual expectation.Multimap, foldNames, ignoreCase bool) bool {
	found, values := m.lookup(e.Name, actual, foldNames)
	if e.Name.Not {
		// !name alone requires absence; with values no matching key may
		// carry a matching value.
		if len(e.Values) == 0 || !found {
			return !found
		}
		return !m.matchValues(style, e.Values, values, ignoreCase)
	}
	if !found {
		return e.Name.Optional
	}
	if len(e.Values) == 0 {
		return true
	}
	return m.matchValues(style, e.Values, values, ignoreCase)
}

// matchValues applies the key match style to the values of one key.
//
// SUB_SET: each positive matcher value is satisfied by at least one actual
// value and no actual value matches a negated one. MATCHING_KEY: every
// actual value satisfies at least one matcher value.
func (m *Matcher) matchValues(style expectation.KeyMatchStyle, expected []expectation.Str, actual []string, ignoreCase bool) bool {
	if style == expectation.MatchingKey {
		if len(actual) == 0 {
			return false
		}
		for _, a := range actual {
			if !m.anyStr(expected, a, ignoreCase) {
				return false
			}
		}
		return true
	}

	for _, want := range expected {
		if want.Not {
			positive := want
			positive.Not = false
			for _, a := range actual {
				if m.matchStr(positive, a, ignoreCase) {
					return false
				}
			}
			continue
		}
		if !m.anyValue(want, actual, ignoreCase) {
			return false
		}
	}
	return true
}

func (m *Matcher) anyStr(expected []expectation.Str, actual string, ignoreCase bool) bool {
	for _, want := range expected {
		if m.matchStr(want, actual, ignoreCase) {
			return true
		}
	}
	return false
}

func (m *Matcher) anyValue(want expectation.Str, actual []string, ignoreCase bool) bool {
	for _, a := range actual {
		if m.matchStr(want, a, ignoreCase) {
			return true
		}
	}
	return false
}
