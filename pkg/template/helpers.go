package template

import (
	"encoding/json"
	"errors"
	"fmt"
	mathrand "math/rand/v2"
	"strings"

	"github.com/beevik/etree"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/ohler55/ojg/jp"
)

// ErrNotJSON and ErrNotXML report bodies that extraction helpers cannot read.
var (
	ErrNotJSON = errors.New("request body is not JSON")
	ErrNotXML  = errors.New("request body is not XML")
)

// extractXPath returns the text of the first element selected by path. No
// selection yields an empty string.
func extractXPath(path string, body []byte) (string, error) {
	path = strings.TrimSpace(path)
	compiled, err := etree.CompilePath(path)
	if err != nil {
		return "", fmt.Errorf("invalid xPath %q: %w", path, err)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil || doc.Root() == nil {
		return "", ErrNotXML
	}
	el := doc.FindElementPath(compiled)
	if el == nil {
		return "", nil
	}
	return el.Text(), nil
}

// extractJSONPath returns the first value selected by path: strings as-is,
// other values as JSON. No selection yields an empty string.
func extractJSONPath(path string, body []byte) (string, error) {
	path = strings.TrimSpace(path)
	x, err := jp.ParseString(path)
	if err != nil {
		return "", fmt.Errorf("invalid jsonPath %q: %w", path, err)
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return "", ErrNotJSON
	}
	results := x.Get(data)
	if len(results) == 0 {
		return "", nil
	}
	return stringify(results[0]), nil
}

// evalExpr runs an expr-lang expression against the model.
func (e *Engine) evalExpr(source string, model map[string]any) (any, error) {
	var program *vm.Program
	if cached, ok := e.exprs.Load(source); ok {
		program = cached.(*vm.Program)
	} else {
		compiled, err := expr.Compile(source)
		if err != nil {
			return nil, fmt.Errorf("invalid expression %q: %w", source, err)
		}
		e.exprs.Store(source, compiled)
		program = compiled
	}
	out, err := expr.Run(program, model)
	if err != nil {
		return nil, fmt.Errorf("evaluating expression %q: %w", source, err)
	}
	return out, nil
}

// randomInt returns a random integer between min and max (inclusive).
func randomInt(min, max int) (int, error) {
	if min > max {
		return 0, fmt.Errorf("randomInt: min %d is greater than max %d", min, max)
	}
	return mathrand.IntN(max-min+1) + min, nil
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomString returns a random alphanumeric string of length n.
func randomString(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumeric[mathrand.IntN(len(alphanumeric))]
	}
	return string(b)
}

// defaultValue returns value if non-empty, otherwise fallback.
func defaultValue(fallback string, value any) string {
	if s := stringify(value); s != "" {
		return s
	}
	return fallback
}
