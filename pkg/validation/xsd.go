package validation

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/beevik/etree"
)

const xsdNamespace = "http://www.w3.org/2001/XMLSchema"

// XSD is a compiled XML schema.
type XSD struct {
	elements map[string]*xsdElement
	types    map[string]*xsdType
	prefixes map[string]bool
}

type xsdElement struct {
	name     string
	ref      string
	typeName string
	inline   *xsdType
	min, max int // max < 0 means unbounded
}

type xsdAttribute struct {
	name     string
	typeName string
	inline   *xsdType
	required bool
}

type particle struct {
	elem     *xsdElement
	group    *xsdGroup
	min, max int
}

type xsdGroup struct {
	kind      string // sequence, choice, all
	particles []particle
}

type xsdType struct {
	name string

	// simple types
	simple     bool
	base       string
	enums      []string
	patterns   []*regexp.Regexp
	length     *int
	minLength  *int
	maxLength  *int
	minIncl    *big.Float
	maxIncl    *big.Float
	minExcl    *big.Float
	maxExcl    *big.Float
	listOf     string
	unionOf    []string
	inlineBase *xsdType

	// complex types
	content       *xsdGroup
	attributes    []xsdAttribute
	mixed         bool
	textBase      string // simpleContent base
	extends       string // complexContent extension base
	anyAttributes bool
}

// ParseXSD compiles an XML schema document.
func ParseXSD(source string) (*XSD, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(source); err != nil {
		return nil, fmt.Errorf("invalid xml schema: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "schema" {
		return nil, fmt.Errorf("invalid xml schema: root element must be schema")
	}

	s := &XSD{
		elements: make(map[string]*xsdElement),
		types:    make(map[string]*xsdType),
		prefixes: map[string]bool{},
	}
	for _, a := range root.Attr {
		if a.Space == "xmlns" && a.Value == xsdNamespace {
			s.prefixes[a.Key] = true
		}
		if a.Space == "" && a.Key == "xmlns" && a.Value == xsdNamespace {
			s.prefixes[""] = true
		}
	}
	if len(s.prefixes) == 0 {
		s.prefixes["xs"] = true
		s.prefixes["xsd"] = true
	}

	for _, child := range root.ChildElements() {
		var err error
		switch child.Tag {
		case "element":
			var el *xsdElement
			el, err = s.parseElement(child)
			if err == nil {
				el.min, el.max = 1, 1
				s.elements[el.name] = el
			}
		case "complexType":
			var t *xsdType
			t, err = s.parseComplexType(child)
			if err == nil {
				s.types[t.name] = t
			}
		case "simpleType":
			var t *xsdType
			t, err = s.parseSimpleType(child)
			if err == nil {
				s.types[t.name] = t
			}
		}
		if err != nil {
			return nil, fmt.Errorf("invalid xml schema: %w", err)
		}
	}
	if len(s.elements) == 0 {
		return nil, fmt.Errorf("invalid xml schema: no global element declared")
	}
	if err := s.checkReferences(); err != nil {
		return nil, fmt.Errorf("invalid xml schema: %w", err)
	}
	return s, nil
}

func occurs(e *etree.Element, attr string) (int, error) {
	v := e.SelectAttrValue(attr, "1")
	if v == "unbounded" {
		return -1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s %q on %s", attr, v, e.SelectAttrValue("name", e.Tag))
	}
	return n, nil
}

func (s *XSD) parseElement(e *etree.Element) (*xsdElement, error) {
	el := &xsdElement{
		name:     e.SelectAttrValue("name", ""),
		ref:      localName(e.SelectAttrValue("ref", "")),
		typeName: e.SelectAttrValue("type", ""),
	}
	if el.name == "" && el.ref == "" {
		return nil, fmt.Errorf("element without name or ref")
	}
	var err error
	if el.min, err = occurs(e, "minOccurs"); err != nil {
		return nil, err
	}
	if el.max, err = occurs(e, "maxOccurs"); err != nil {
		return nil, err
	}
	for _, child := range e.ChildElements() {
		switch child.Tag {
		case "complexType":
			el.inline, err = s.parseComplexType(child)
		case "simpleType":
			el.inline, err = s.parseSimpleType(child)
		}
		if err != nil {
			return nil, err
		}
	}
	return el, nil
}

func (s *XSD) parseGroup(e *etree.Element) (*xsdGroup, error) {
	g := &xsdGroup{kind: e.Tag}
	for _, child := range e.ChildElements() {
		switch child.Tag {
		case "element":
			el, err := s.parseElement(child)
			if err != nil {
				return nil, err
			}
			g.particles = append(g.particles, particle{elem: el, min: el.min, max: el.max})
		case "sequence", "choice", "all":
			sub, err := s.parseGroup(child)
			if err != nil {
				return nil, err
			}
			lo, err := occurs(child, "minOccurs")
			if err != nil {
				return nil, err
			}
			hi, err := occurs(child, "maxOccurs")
			if err != nil {
				return nil, err
			}
			g.particles = append(g.particles, particle{group: sub, min: lo, max: hi})
		}
	}
	return g, nil
}

func (s *XSD) parseAttribute(e *etree.Element) (xsdAttribute, error) {
	a := xsdAttribute{
		name:     e.SelectAttrValue("name", localName(e.SelectAttrValue("ref", ""))),
		typeName: e.SelectAttrValue("type", ""),
		required: e.SelectAttrValue("use", "optional") == "required",
	}
	if st := e.SelectElement("simpleType"); st != nil {
		t, err := s.parseSimpleType(st)
		if err != nil {
			return a, err
		}
		a.inline = t
	}
	return a, nil
}

func (s *XSD) parseComplexType(e *etree.Element) (*xsdType, error) {
	t := &xsdType{
		name:  e.SelectAttrValue("name", ""),
		mixed: e.SelectAttrValue("mixed", "false") == "true",
	}
	if err := s.parseComplexBody(t, e); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *XSD) parseComplexBody(t *xsdType, e *etree.Element) error {
	for _, child := range e.ChildElements() {
		switch child.Tag {
		case "sequence", "choice", "all":
			g, err := s.parseGroup(child)
			if err != nil {
				return err
			}
			t.content = g
		case "attribute":
			a, err := s.parseAttribute(child)
			if err != nil {
				return err
			}
			t.attributes = append(t.attributes, a)
		case "anyAttribute":
			t.anyAttributes = true
		case "simpleContent":
			for _, ext := range child.ChildElements() {
				if ext.Tag != "extension" && ext.Tag != "restriction" {
					continue
				}
				t.textBase = ext.SelectAttrValue("base", "string")
				if err := s.parseComplexBody(t, ext); err != nil {
					return err
				}
			}
		case "complexContent":
			for _, ext := range child.ChildElements() {
				if ext.Tag != "extension" && ext.Tag != "restriction" {
					continue
				}
				if ext.Tag == "extension" {
					t.extends = ext.SelectAttrValue("base", "")
				}
				if err := s.parseComplexBody(t, ext); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *XSD) parseSimpleType(e *etree.Element) (*xsdType, error) {
	t := &xsdType{name: e.SelectAttrValue("name", ""), simple: true}
	for _, child := range e.ChildElements() {
		switch child.Tag {
		case "restriction":
			t.base = child.SelectAttrValue("base", "")
			if st := child.SelectElement("simpleType"); st != nil {
				inner, err := s.parseSimpleType(st)
				if err != nil {
					return nil, err
				}
				t.inlineBase = inner
			}
			if err := parseFacets(t, child); err != nil {
				return nil, err
			}
		case "list":
			t.listOf = child.SelectAttrValue("itemType", "string")
		case "union":
			t.unionOf = strings.Fields(child.SelectAttrValue("memberTypes", ""))
		}
	}
	return t, nil
}

func parseFacets(t *xsdType, restriction *etree.Element) error {
	for _, f := range restriction.ChildElements() {
		v := f.SelectAttrValue("value", "")
		switch f.Tag {
		case "enumeration":
			t.enums = append(t.enums, v)
		case "pattern":
			re, err := regexp.Compile("^(?:" + v + ")$")
			if err != nil {
				return fmt.Errorf("pattern %q: %w", v, err)
			}
			t.patterns = append(t.patterns, re)
		case "length", "minLength", "maxLength":
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s %q: %w", f.Tag, v, err)
			}
			switch f.Tag {
			case "length":
				t.length = &n
			case "minLength":
				t.minLength = &n
			default:
				t.maxLength = &n
			}
		case "minInclusive", "maxInclusive", "minExclusive", "maxExclusive":
			n, _, err := big.ParseFloat(v, 10, 128, big.ToNearestEven)
			if err != nil {
				return fmt.Errorf("%s %q: %w", f.Tag, v, err)
			}
			switch f.Tag {
			case "minInclusive":
				t.minIncl = n
			case "maxInclusive":
				t.maxIncl = n
			case "minExclusive":
				t.minExcl = n
			default:
				t.maxExcl = n
			}
		}
	}
	return nil
}

func localName(qname string) string {
	if i := strings.IndexByte(qname, ':'); i >= 0 {
		return qname[i+1:]
	}
	return qname
}

func (s *XSD) isBuiltin(qname string) (string, bool) {
	prefix := ""
	if i := strings.IndexByte(qname, ':'); i >= 0 {
		prefix = qname[:i]
	}
	name := localName(qname)
	if _, user := s.types[name]; user && !s.prefixes[prefix] {
		return name, false
	}
	_, ok := builtinTypes[name]
	return name, ok
}

// checkReferences verifies every type and ref names something.
func (s *XSD) checkReferences() error {
	var checkType func(t *xsdType) error
	var checkGroup func(g *xsdGroup) error
	checkName := func(qname string) error {
		if qname == "" {
			return nil
		}
		if _, ok := s.isBuiltin(qname); ok {
			return nil
		}
		if _, ok := s.types[localName(qname)]; ok {
			return nil
		}
		return fmt.Errorf("unknown type %q", qname)
	}
	checkElement := func(el *xsdElement) error {
		if el.ref != "" {
			if _, ok := s.elements[el.ref]; !ok {
				return fmt.Errorf("unknown element ref %q", el.ref)
			}
			return nil
		}
		if el.inline != nil {
			return checkType(el.inline)
		}
		return checkName(el.typeName)
	}
	checkGroup = func(g *xsdGroup) error {
		if g == nil {
			return nil
		}
		for _, p := range g.particles {
			if p.elem != nil {
				if err := checkElement(p.elem); err != nil {
					return err
				}
			}
			if err := checkGroup(p.group); err != nil {
				return err
			}
		}
		return nil
	}
	checkType = func(t *xsdType) error {
		for _, name := range append([]string{t.base, t.listOf, t.textBase, t.extends}, t.unionOf...) {
			if err := checkName(name); err != nil {
				return err
			}
		}
		for _, a := range t.attributes {
			if err := checkName(a.typeName); err != nil {
				return err
			}
		}
		return checkGroup(t.content)
	}
	for _, el := range s.elements {
		if err := checkElement(el); err != nil {
			return err
		}
	}
	for _, t := range s.types {
		if err := checkType(t); err != nil {
			return err
		}
	}
	return nil
}

// Validate returns the violations of an XML document against the schema.
func (s *XSD) Validate(document string) []string {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(document); err != nil {
		return []string{fmt.Sprintf("invalid xml: %v", err)}
	}
	root := doc.Root()
	if root == nil {
		return []string{"invalid xml: no root element"}
	}
	el, ok := s.elements[root.Tag]
	if !ok {
		return []string{fmt.Sprintf("/%s: no global element declaration for %q", root.Tag, root.Tag)}
	}
	var v xsdRun
	v.schema = s
	v.element(el, root, "/"+root.Tag)
	return v.violations
}

type xsdRun struct {
	schema     *XSD
	violations []string
}

func (v *xsdRun) fail(path, format string, args ...any) {
	v.violations = append(v.violations, path+": "+fmt.Sprintf(format, args...))
}

func (v *xsdRun) resolve(el *xsdElement) *xsdElement {
	if el.ref != "" {
		if target, ok := v.schema.elements[el.ref]; ok {
			return target
		}
	}
	return el
}

func (v *xsdRun) elementType(el *xsdElement) (*xsdType, string) {
	if el.inline != nil {
		return el.inline, ""
	}
	if el.typeName == "" {
		return nil, "anyType"
	}
	if name, ok := v.schema.isBuiltin(el.typeName); ok {
		return nil, name
	}
	return v.schema.types[localName(el.typeName)], ""
}

func (v *xsdRun) element(el *xsdElement, e *etree.Element, path string) {
	el = v.resolve(el)
	t, builtin := v.elementType(el)
	if t == nil {
		if builtin == "anyType" {
			return
		}
		if len(e.ChildElements()) > 0 {
			v.fail(path, "element of simple type %s must not have child elements", builtin)
			return
		}
		v.simpleValue(nil, builtin, text(e), path)
		return
	}
	if t.simple {
		if len(e.ChildElements()) > 0 {
			v.fail(path, "element of simple type must not have child elements")
			return
		}
		v.simpleValue(t, "", text(e), path)
		return
	}
	v.complex(t, e, path)
}

func (v *xsdRun) complex(t *xsdType, e *etree.Element, path string) {
	attrs, content, textBase, mixed := v.flatten(t)
	v.checkAttributes(e, attrs, path)
	if !t.anyAttributes {
		for _, a := range e.Attr {
			if a.Space == "xmlns" || a.Key == "xmlns" || a.Space == "xsi" {
				continue
			}
			if !declared(attrs, a.Key) {
				v.fail(path, "attribute %q is not allowed", a.Key)
			}
		}
	}

	children := e.ChildElements()
	if textBase != "" {
		if len(children) > 0 {
			v.fail(path, "element with simple content must not have child elements")
			return
		}
		v.typedValue(textBase, text(e), path)
		return
	}
	if !mixed && strings.TrimSpace(text(e)) != "" {
		v.fail(path, "element must not contain text")
	}
	if content == nil {
		if len(children) > 0 {
			v.fail(path, "element must be empty but has child element %q", children[0].Tag)
		}
		return
	}
	pos, ok := v.consume(content, children, 0, path, true)
	if !ok {
		return
	}
	if pos < len(children) {
		v.fail(path+"/"+children[pos].Tag, "unexpected element %q", children[pos].Tag)
	}
}

// flatten merges a complexContent extension chain into one declaration.
func (v *xsdRun) flatten(t *xsdType) ([]xsdAttribute, *xsdGroup, string, bool) {
	attrs := append([]xsdAttribute(nil), t.attributes...)
	content := t.content
	textBase := t.textBase
	mixed := t.mixed
	seen := map[string]bool{}
	for base := t.extends; base != ""; {
		name := localName(base)
		if seen[name] {
			break
		}
		seen[name] = true
		bt, ok := v.schema.types[name]
		if !ok {
			break
		}
		attrs = append(attrs, bt.attributes...)
		if bt.content != nil {
			if content == nil {
				content = bt.content
			} else {
				content = &xsdGroup{kind: "sequence", particles: []particle{
					{group: bt.content, min: 1, max: 1},
					{group: content, min: 1, max: 1},
				}}
			}
		}
		if textBase == "" {
			textBase = bt.textBase
		}
		mixed = mixed || bt.mixed
		base = bt.extends
	}
	return attrs, content, textBase, mixed
}

func declared(attrs []xsdAttribute, name string) bool {
	for _, a := range attrs {
		if a.name == name {
			return true
		}
	}
	return false
}

func (v *xsdRun) checkAttributes(e *etree.Element, attrs []xsdAttribute, path string) {
	for _, a := range attrs {
		attr := e.SelectAttr(a.name)
		if attr == nil {
			if a.required {
				v.fail(path, "missing required attribute %q", a.name)
			}
			continue
		}
		at := path + "/@" + a.name
		switch {
		case a.inline != nil:
			v.simpleValue(a.inline, "", attr.Value, at)
		case a.typeName != "":
			v.typedValue(a.typeName, attr.Value, at)
		}
	}
}

// consume matches children[pos:] against a group and returns the new
// position. report controls whether failures are recorded.
func (v *xsdRun) consume(g *xsdGroup, children []*etree.Element, pos int, path string, report bool) (int, bool) {
	switch g.kind {
	case "choice":
		for _, p := range g.particles {
			if next, ok := v.consumeParticle(p, children, pos, path, false); ok && (next > pos || p.min == 0) {
				return v.consumeParticle(p, children, pos, path, report)
			}
		}
		if report {
			v.fail(path, "expected one of %s", describe(g))
		}
		return pos, false
	case "all":
		seen := map[int]bool{}
		for pos < len(children) {
			matched := false
			for i, p := range g.particles {
				if seen[i] || p.elem == nil {
					continue
				}
				el := v.resolve(p.elem)
				if children[pos].Tag == el.name {
					if report {
						v.element(p.elem, children[pos], path+"/"+children[pos].Tag)
					}
					seen[i] = true
					pos++
					matched = true
					break
				}
			}
			if !matched {
				break
			}
		}
		ok := true
		for i, p := range g.particles {
			if !seen[i] && p.min > 0 && p.elem != nil {
				ok = false
				if report {
					v.fail(path, "missing required element %q", v.resolve(p.elem).name)
				}
			}
		}
		return pos, ok
	default:
		for _, p := range g.particles {
			next, ok := v.consumeParticle(p, children, pos, path, report)
			if !ok {
				return next, false
			}
			pos = next
		}
		return pos, true
	}
}

func (v *xsdRun) consumeParticle(p particle, children []*etree.Element, pos int, path string, report bool) (int, bool) {
	count := 0
	for p.max < 0 || count < p.max {
		if p.elem != nil {
			el := v.resolve(p.elem)
			if pos >= len(children) || children[pos].Tag != el.name {
				break
			}
			if report {
				v.element(p.elem, children[pos], path+"/"+children[pos].Tag)
			}
			pos++
		} else {
			next, ok := v.consume(p.group, children, pos, path, false)
			if !ok || next == pos {
				break
			}
			if report {
				v.consume(p.group, children, pos, path, true)
			}
			pos = next
		}
		count++
	}
	if count < p.min {
		if report {
			found := "end of content"
			if pos < len(children) {
				found = fmt.Sprintf("element %q", children[pos].Tag)
			}
			v.fail(path, "expected %s but found %s", describeParticle(p), found)
		}
		return pos, false
	}
	return pos, true
}

func describe(g *xsdGroup) string {
	parts := make([]string, 0, len(g.particles))
	for _, p := range g.particles {
		parts = append(parts, describeParticle(p))
	}
	return strings.Join(parts, ", ")
}

func describeParticle(p particle) string {
	if p.elem != nil {
		name := p.elem.name
		if name == "" {
			name = p.elem.ref
		}
		return fmt.Sprintf("element %q", name)
	}
	return p.group.kind + " of " + describe(p.group)
}

func (v *xsdRun) typedValue(qname, value, path string) {
	if name, ok := v.schema.isBuiltin(qname); ok {
		v.simpleValue(nil, name, value, path)
		return
	}
	if t, ok := v.schema.types[localName(qname)]; ok && t.simple {
		v.simpleValue(t, "", value, path)
	}
}

// simpleValue checks value against a simple type or a built-in name.
func (v *xsdRun) simpleValue(t *xsdType, builtin, value, path string) {
	if t == nil {
		check := builtinTypes[builtin]
		if check == nil {
			return
		}
		if _, ok := check(value); !ok {
			v.fail(path, "value %q is not a valid %s", value, builtin)
		}
		return
	}
	if t.listOf != "" {
		for _, item := range strings.Fields(value) {
			v.typedValue(t.listOf, item, path)
		}
		return
	}
	if len(t.unionOf) > 0 {
		for _, member := range t.unionOf {
			trial := xsdRun{schema: v.schema}
			trial.typedValue(member, value, path)
			if len(trial.violations) == 0 {
				return
			}
		}
		v.fail(path, "value %q matches none of %s", value, strings.Join(t.unionOf, ", "))
		return
	}

	var num *big.Float
	switch {
	case t.inlineBase != nil:
		v.simpleValue(t.inlineBase, "", value, path)
	case t.base != "":
		if name, ok := v.schema.isBuiltin(t.base); ok {
			check := builtinTypes[name]
			n, ok := check(value)
			if !ok {
				v.fail(path, "value %q is not a valid %s", value, name)
				return
			}
			num = n
		} else if bt, ok := v.schema.types[localName(t.base)]; ok {
			v.simpleValue(bt, "", value, path)
			if num == nil {
				num, _ = validateDecimal(value)
			}
		}
	}

	if len(t.enums) > 0 && !contains(t.enums, value) {
		v.fail(path, "value %q is not one of [%s]", value, strings.Join(t.enums, ", "))
	}
	for _, re := range t.patterns {
		if !re.MatchString(value) {
			v.fail(path, "value %q does not match pattern %s", value, strings.TrimSuffix(strings.TrimPrefix(re.String(), "^(?:"), ")$"))
		}
	}
	n := utf8.RuneCountInString(value)
	if t.length != nil && n != *t.length {
		v.fail(path, "length %d is not %d", n, *t.length)
	}
	if t.minLength != nil && n < *t.minLength {
		v.fail(path, "length %d is less than %d", n, *t.minLength)
	}
	if t.maxLength != nil && n > *t.maxLength {
		v.fail(path, "length %d is greater than %d", n, *t.maxLength)
	}
	if num != nil {
		if t.minIncl != nil && num.Cmp(t.minIncl) < 0 {
			v.fail(path, "value %s is less than %s", value, t.minIncl.Text('g', -1))
		}
		if t.maxIncl != nil && num.Cmp(t.maxIncl) > 0 {
			v.fail(path, "value %s is greater than %s", value, t.maxIncl.Text('g', -1))
		}
		if t.minExcl != nil && num.Cmp(t.minExcl) <= 0 {
			v.fail(path, "value %s must be greater than %s", value, t.minExcl.Text('g', -1))
		}
		if t.maxExcl != nil && num.Cmp(t.maxExcl) >= 0 {
			v.fail(path, "value %s must be less than %s", value, t.maxExcl.Text('g', -1))
		}
	}
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// text concatenates the character data directly inside e.
func text(e *etree.Element) string {
	var b strings.Builder
	for _, tok := range e.Child {
		if cd, ok := tok.(*etree.CharData); ok {
			b.WriteString(cd.Data)
		}
	}
	return b.String()
}
