package matching

import (
	"strings"

	"github.com/beevik/etree"
)

// MatchXPath reports whether the path selects at least one element of the
// XML body. Paths use the etree dialect: absolute and descendant steps,
// attribute and child-text predicates and positional indexes.
func (m *Matcher) MatchXPath(path string, body []byte) bool {
	compiled, ok := m.xpath(path)
	if !ok {
		return false
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return false
	}
	return doc.FindElementPath(compiled) != nil
}

func (m *Matcher) xpath(path string) (etree.Path, bool) {
	if cached, ok := m.xpaths.Load(path); ok {
		p, valid := cached.(etree.Path)
		return p, valid
	}
	p, err := etree.CompilePath(path)
	if err != nil {
		m.log.Debug("invalid XPath expression", "path", path, "error", err)
		m.xpaths.Store(path, false)
		return etree.Path{}, false
	}
	m.xpaths.Store(path, p)
	return p, true
}

// MatchXML compares two XML documents structurally: element names and
// namespaces, attribute sets, child order and trimmed text must agree.
// Namespace declarations, comments and formatting whitespace are ignored.
func MatchXML(expected string, actual []byte) bool {
	want := etree.NewDocument()
	if err := want.ReadFromString(expected); err != nil {
		return false
	}
	got := etree.NewDocument()
	if err := got.ReadFromBytes(actual); err != nil {
		return false
	}
	if want.Root() == nil || got.Root() == nil {
		return want.Root() == got.Root()
	}
	return elementsEqual(want.Root(), got.Root())
}

func elementsEqual(a, b *etree.Element) bool {
	if a.Tag != b.Tag || a.NamespaceURI() != b.NamespaceURI() {
		return false
	}
	if !attributesEqual(a, b) {
		return false
	}
	if strings.TrimSpace(a.Text()) != strings.TrimSpace(b.Text()) {
		return false
	}
	ac, bc := a.ChildElements(), b.ChildElements()
	if len(ac) != len(bc) {
		return false
	}
	for i := range ac {
		if !elementsEqual(ac[i], bc[i]) {
			return false
		}
	}
	return true
}

func attributesEqual(a, b *etree.Element) bool {
	as, bs := plainAttributes(a), plainAttributes(b)
	if len(as) != len(bs) {
		return false
	}
	for k, v := range as {
		if bv, ok := bs[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// plainAttributes returns attributes keyed by namespace and name, without
// namespace declarations.
func plainAttributes(e *etree.Element) map[string]string {
	out := make(map[string]string, len(e.Attr))
	for _, attr := range e.Attr {
		if attr.Space == "xmlns" || (attr.Space == "" && attr.Key == "xmlns") {
			continue
		}
		out[attr.NamespaceURI()+"|"+attr.Key] = attr.Value
	}
	return out
}
