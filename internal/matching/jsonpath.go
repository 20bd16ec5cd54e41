package matching

import (
	"encoding/json"

	"github.com/ohler55/ojg/jp"
)

// MatchJSONPath reports whether the JSONPath expression selects at least
// one value in the JSON body. Filter expressions such as
// "$.store.book[?(@.price < 10)]" therefore act as predicates.
// Bodies that are not JSON and invalid expressions never match.
func (m *Matcher) MatchJSONPath(path string, body []byte) bool {
	expr, ok := m.jsonPath(path)
	if !ok {
		return false
	}

	// Parse the body as JSON
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		// Not valid JSON - return no match (not an error, just doesn't match)
		return false
	}
	return len(expr.Get(data)) > 0
}

func (m *Matcher) jsonPath(path string) (jp.Expr, bool) {
	if cached, ok := m.jsonPaths.Load(path); ok {
		expr, _ := cached.(jp.Expr)
		return expr, expr != nil
	}
	expr, err := jp.ParseString(path)
	if err != nil {
		m.log.Debug("invalid JSONPath expression", "path", path, "error", err)
		m.jsonPaths.Store(path, jp.Expr(nil))
		return nil, false
	}
	m.jsonPaths.Store(path, expr)
	return expr, true
}
