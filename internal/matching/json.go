package matching

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/getmockd/expectd/pkg/expectation"
	"github.com/getmockd/expectd/pkg/validation"
)

// json-unit placeholders accepted inside expected JSON documents.
const (
	placeholderPrefix = "${json-unit."
	placeholderIgnore = "${json-unit.ignore}"
	placeholderElem   = "${json-unit.ignore-element}"
	placeholderString = "${json-unit.any-string}"
	placeholderNumber = "${json-unit.any-number}"
	placeholderBool   = "${json-unit.any-boolean}"
	placeholderRegex  = "${json-unit.regex}"
)

// MatchJSON compares a JSON body with an expected document. With
// ONLY_MATCHING_FIELDS the expected document is a subset: extra object
// fields and array items are allowed and array order is ignored. STRICT
// requires equal documents. Bodies that are not JSON never match.
func (m *Matcher) MatchJSON(expected string, actual []byte, matchType expectation.JSONMatchType) bool {
	want, err := validation.DecodeJSON([]byte(expected))
	if err != nil {
		return false
	}
	got, err := validation.DecodeJSON(actual)
	if err != nil {
		return false
	}
	return m.jsonEqual(want, got, matchType == expectation.Strict)
}

func (m *Matcher) jsonEqual(want, got any, strict bool) bool {
	switch w := want.(type) {
	case string:
		if strings.HasPrefix(w, placeholderPrefix) {
			if ok, handled := m.placeholder(w, got); handled {
				return ok
			}
		}
		g, ok := got.(string)
		return ok && g == w
	case json.Number:
		g, ok := got.(json.Number)
		return ok && numbersEqual(w, g)
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		if strict && len(g) != len(w) {
			return false
		}
		for k, wv := range w {
			gv, present := g[k]
			if !present {
				return false
			}
			if !m.jsonEqual(wv, gv, strict) {
				return false
			}
		}
		return true
	case []any:
		g, ok := got.([]any)
		if !ok {
			return false
		}
		if strict {
			if len(g) != len(w) {
				return false
			}
			for i := range w {
				if !m.jsonEqual(w[i], g[i], true) {
					return false
				}
			}
			return true
		}
		if len(w) > len(g) {
			return false
		}
		return m.assignItems(w, g, make([]bool, len(g)))
	default:
		// bool and null
		return want == got
	}
}

// assignItems finds a distinct actual item for every expected item,
// backtracking when an earlier choice blocks a later one.
func (m *Matcher) assignItems(want, got []any, used []bool) bool {
	if len(want) == 0 {
		return true
	}
	for i, g := range got {
		if used[i] || !m.jsonEqual(want[0], g, false) {
			continue
		}
		used[i] = true
		if m.assignItems(want[1:], got, used) {
			return true
		}
		used[i] = false
	}
	return false
}

// placeholder evaluates a json-unit placeholder against got. handled is
// false for unknown placeholders, which then compare literally.
func (m *Matcher) placeholder(w string, got any) (ok, handled bool) {
	switch {
	case w == placeholderIgnore || w == placeholderElem:
		return true, true
	case w == placeholderString:
		_, ok = got.(string)
		return ok, true
	case w == placeholderNumber:
		_, ok = got.(json.Number)
		return ok, true
	case w == placeholderBool:
		_, ok = got.(bool)
		return ok, true
	case strings.HasPrefix(w, placeholderRegex):
		g, isString := got.(string)
		if !isString {
			return false, true
		}
		re := m.regex(strings.TrimPrefix(w, placeholderRegex), false)
		return re != nil && re.MatchString(g), true
	}
	return false, false
}

func numbersEqual(a, b json.Number) bool {
	if a == b {
		return true
	}
	x, _, errX := big.ParseFloat(string(a), 10, 256, big.ToNearestEven)
	y, _, errY := big.ParseFloat(string(b), 10, 256, big.ToNearestEven)
	if errX != nil || errY != nil {
		return false
	}
	return x.Cmp(y) == 0
}
