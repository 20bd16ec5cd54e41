package template

import (
	"fmt"
	"strings"

	"github.com/getmockd/expectd/pkg/expectation"
)

type nodeKind int

const (
	textNode nodeKind = iota
	variableNode
	sectionNode
	invertedNode
)

// node is one element of a parsed mustache template.
type node struct {
	kind     nodeKind
	text     string // literal text or the tag name
	children []node
}

// Block helpers that evaluate their rendered content against the body.
const (
	helperXPath    = "xPath"
	helperJSONPath = "jsonPath"
)

func (e *Engine) parseMustache(src string) ([]node, error) {
	if cached, ok := e.mustache.Load(src); ok {
		return cached.([]node), nil
	}
	nodes, err := parseMustache(src)
	if err != nil {
		return nil, err
	}
	e.mustache.Store(src, nodes)
	return nodes, nil
}

type openSection struct {
	name   string
	kind   nodeKind
	offset int
	nodes  []node
}

func parseMustache(src string) ([]node, error) {
	stack := []*openSection{{}}
	emit := func(n node) {
		top := stack[len(stack)-1]
		top.nodes = append(top.nodes, n)
	}

	pos := 0
	for pos < len(src) {
		start := strings.Index(src[pos:], "{{")
		if start < 0 {
			emit(node{kind: textNode, text: src[pos:]})
			break
		}
		start += pos
		if start > pos {
			emit(node{kind: textNode, text: src[pos:start]})
		}

		closer := "}}"
		open := start + 2
		if strings.HasPrefix(src[open:], "{") {
			closer = "}}}"
			open++
		}
		end := strings.Index(src[open:], closer)
		if end < 0 {
			return nil, fmt.Errorf("unclosed tag at offset %d", start)
		}
		tag := strings.TrimSpace(src[open : open+end])
		pos = open + end + len(closer)

		if tag == "" {
			return nil, fmt.Errorf("empty tag at offset %d", start)
		}
		sigil := tag[0]
		name := strings.TrimSpace(tag[1:])
		switch sigil {
		case '!':
			continue
		case '#', '^':
			if err := checkName(name, start); err != nil {
				return nil, err
			}
			kind := sectionNode
			if sigil == '^' {
				kind = invertedNode
			}
			stack = append(stack, &openSection{name: name, kind: kind, offset: start})
		case '/':
			if err := checkName(name, start); err != nil {
				return nil, err
			}
			top := stack[len(stack)-1]
			if len(stack) == 1 || top.name != name {
				return nil, fmt.Errorf("unexpected closing tag %q at offset %d", name, start)
			}
			stack = stack[:len(stack)-1]
			emit(node{kind: top.kind, text: top.name, children: top.nodes})
		case '>', '=':
			return nil, fmt.Errorf("unsupported tag %q at offset %d", tag, start)
		case '&':
			if err := checkName(name, start); err != nil {
				return nil, err
			}
			emit(node{kind: variableNode, text: name})
		default:
			if err := checkName(tag, start); err != nil {
				return nil, err
			}
			emit(node{kind: variableNode, text: tag})
		}
	}

	if len(stack) > 1 {
		top := stack[len(stack)-1]
		return nil, fmt.Errorf("unclosed section %q opened at offset %d", top.name, top.offset)
	}
	return stack[0].nodes, nil
}

func checkName(name string, offset int) error {
	if name == "" {
		return fmt.Errorf("missing name in tag at offset %d", offset)
	}
	if strings.ContainsAny(name, "{}") {
		return fmt.Errorf("invalid tag name %q at offset %d", name, offset)
	}
	return nil
}

// mustacheRun is the state of one render.
type mustacheRun struct {
	engine *Engine
	body   []byte
	stack  []any
}

func (e *Engine) renderMustache(nodes []node, model map[string]any, req *expectation.HTTPRequest) (string, error) {
	run := &mustacheRun{engine: e, body: req.Body.Bytes(), stack: []any{model}}
	var b strings.Builder
	if err := run.render(nodes, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (r *mustacheRun) render(nodes []node, b *strings.Builder) error {
	for _, n := range nodes {
		switch n.kind {
		case textNode:
			b.WriteString(n.text)
		case variableNode:
			v, _ := r.lookup(n.text)
			b.WriteString(stringify(v))
		case sectionNode:
			if err := r.section(n, b); err != nil {
				return err
			}
		case invertedNode:
			v, _ := r.lookup(n.text)
			if !truthy(v) {
				if err := r.render(n.children, b); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (r *mustacheRun) section(n node, b *strings.Builder) error {
	if n.text == helperXPath || n.text == helperJSONPath {
		var inner strings.Builder
		if err := r.render(n.children, &inner); err != nil {
			return err
		}
		var out string
		var err error
		if n.text == helperXPath {
			out, err = extractXPath(inner.String(), r.body)
		} else {
			out, err = extractJSONPath(inner.String(), r.body)
		}
		if err != nil {
			return err
		}
		b.WriteString(out)
		return nil
	}

	v, _ := r.lookup(n.text)
	if !truthy(v) {
		return nil
	}
	items, isList := v.([]any)
	if !isList {
		items = []any{v}
	}
	for _, item := range items {
		r.stack = append(r.stack, item)
		err := r.render(n.children, b)
		r.stack = r.stack[:len(r.stack)-1]
		if err != nil {
			return err
		}
	}
	return nil
}

// lookup resolves a dotted name against the context stack, innermost first.
// uuid yields a fresh identifier on every reference.
func (r *mustacheRun) lookup(name string) (any, bool) {
	if name == "." {
		return r.stack[len(r.stack)-1], true
	}
	if name == "uuid" {
		return r.engine.source.UUID(), true
	}
	parts := strings.Split(name, ".")
	for i := len(r.stack) - 1; i >= 0; i-- {
		if v, ok := child(r.stack[i], parts[0]); ok {
			return walk(v, parts[1:])
		}
	}
	return nil, false
}
