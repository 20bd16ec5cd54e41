package matching

import (
	"bytes"
	"strings"

	"github.com/getmockd/expectd/pkg/expectation"
	"github.com/getmockd/expectd/pkg/validation"
)

// MatchBody evaluates a body matcher. A nil matcher matches any body,
// including an empty one. An optional matcher also matches an empty body.
func (m *Matcher) MatchBody(bm *expectation.BodyMatcher, body *expectation.Body, ignoreCase bool) bool {
	if bm == nil {
		return true
	}
	raw := body.Bytes()
	if bm.Optional && len(raw) == 0 {
		return true
	}
	return m.evalBody(bm, raw, ignoreCase) != bm.Not
}

func (m *Matcher) evalBody(bm *expectation.BodyMatcher, raw []byte, ignoreCase bool) bool {
	switch bm.Type {
	case expectation.BodyString, "":
		return matchStringBody(bm, string(raw), ignoreCase)
	case expectation.BodyRegex:
		re := m.regex(bm.Value, ignoreCase)
		return re != nil && re.Match(raw)
	case expectation.BodyJSON:
		return m.MatchJSON(bm.Value, raw, bm.MatchType)
	case expectation.BodyJSONSchema:
		return len(m.schemas.ValidateJSON(bm.Value, raw)) == 0
	case expectation.BodyJSONPath:
		return m.MatchJSONPath(bm.Value, raw)
	case expectation.BodyXPath:
		return m.MatchXPath(bm.Value, raw)
	case expectation.BodyXML:
		return MatchXML(bm.Value, raw)
	case expectation.BodyXMLSchema:
		return len(m.schemas.Validate(validation.XMLSchema, bm.Value, raw)) == 0
	case expectation.BodyBinary:
		return bytes.Equal(bm.Binary, raw)
	case expectation.BodyParameters:
		return m.matchKeys(bm.Parameters, expectation.ParseQuery(string(raw)), false, ignoreCase)
	default:
		return false
	}
}

func matchStringBody(bm *expectation.BodyMatcher, actual string, ignoreCase bool) bool {
	want := bm.Value
	if ignoreCase {
		want, actual = fold(want), fold(actual)
	}
	if bm.SubString {
		return strings.Contains(actual, want)
	}
	return actual == want
}
