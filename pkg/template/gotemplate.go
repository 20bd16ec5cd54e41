package template

import (
	"encoding/json"
	"strings"
	"text/template"
	"text/template/parse"

	"github.com/getmockd/expectd/pkg/expectation"
)

// goFuncNames lists the functions available to Go templates. Parsing only
// needs the names; real implementations are bound per render.
var goFuncNames = []string{
	"uuid", "xPath", "jsonPath", "expr", "json",
	"header", "query", "cookie",
	"randomInt", "randomString",
	"upper", "lower", "trim", "default", "orEmpty",
}

func placeholderFuncs() template.FuncMap {
	funcs := make(template.FuncMap, len(goFuncNames))
	for _, name := range goFuncNames {
		funcs[name] = func(...any) (string, error) { return "", nil }
	}
	return funcs
}

func (e *Engine) parseGoTemplate(src string) (*template.Template, error) {
	if cached, ok := e.gotmpl.Load(src); ok {
		return cached.(*template.Template), nil
	}
	tmpl, err := template.New("template").
		Option("missingkey=zero").
		Funcs(placeholderFuncs()).
		Parse(src)
	if err != nil {
		return nil, err
	}
	for _, t := range tmpl.Templates() {
		if t.Tree != nil {
			emptyMissing(t.Tree, t.Root)
		}
	}
	e.gotmpl.Store(src, tmpl)
	return tmpl, nil
}

func (e *Engine) renderGoTemplate(tmpl *template.Template, model map[string]any, req *expectation.HTTPRequest) (string, error) {
	bound, err := tmpl.Clone()
	if err != nil {
		return "", err
	}
	bound.Funcs(e.goFuncs(model, req))

	var b strings.Builder
	if err := bound.Execute(&b, model); err != nil {
		return "", err
	}
	return b.String(), nil
}

// emptyMissing pipes every printing action through orEmpty. A missing map
// key evaluates to a nil interface, which text/template would print as
// "<no value>".
func emptyMissing(tree *parse.Tree, n parse.Node) {
	switch n := n.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			emptyMissing(tree, c)
		}
	case *parse.ActionNode:
		if len(n.Pipe.Decl) > 0 {
			return
		}
		n.Pipe.Cmds = append(n.Pipe.Cmds, &parse.CommandNode{
			NodeType: parse.NodeCommand,
			Pos:      n.Pos,
			Args:     []parse.Node{parse.NewIdentifier("orEmpty").SetTree(tree).SetPos(n.Pos)},
		})
	case *parse.IfNode:
		emptyMissing(tree, n.List)
		emptyMissing(tree, n.ElseList)
	case *parse.RangeNode:
		emptyMissing(tree, n.List)
		emptyMissing(tree, n.ElseList)
	case *parse.WithNode:
		emptyMissing(tree, n.List)
		emptyMissing(tree, n.ElseList)
	}
}

func orEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}

func (e *Engine) goFuncs(model map[string]any, req *expectation.HTTPRequest) template.FuncMap {
	body := req.Body.Bytes()
	return template.FuncMap{
		"uuid": func() string { return e.source.UUID() },
		"xPath": func(path string) (string, error) {
			return extractXPath(path, body)
		},
		"jsonPath": func(path string) (string, error) {
			return extractJSONPath(path, body)
		},
		"expr": func(source string) (any, error) {
			return e.evalExpr(source, model)
		},
		"json": func(v any) (string, error) {
			raw, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(raw), nil
		},
		"header": func(name string) string {
			return firstValue(req.Headers, name)
		},
		"query": func(name string) string {
			return firstValue(req.QueryStringParameters, name)
		},
		"cookie": func(name string) string {
			return firstValue(req.Cookies, name)
		},
		"randomInt":    randomInt,
		"randomString": randomString,
		"upper":        func(v any) string { return strings.ToUpper(stringify(v)) },
		"lower":        func(v any) string { return strings.ToLower(stringify(v)) },
		"trim":         func(v any) string { return strings.TrimSpace(stringify(v)) },
		"default":      defaultValue,
		"orEmpty":      orEmpty,
	}
}

// firstValue returns the first value of name, ignoring case.
func firstValue(m expectation.Multimap, name string) string {
	for _, e := range m {
		if strings.EqualFold(e.Name, name) && len(e.Values) > 0 {
			return e.Values[0]
		}
	}
	return ""
}
