package expectation

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// BodyType discriminates body values and body matchers.
type BodyType string

const (
	BodyString     BodyType = "STRING"
	BodyRegex      BodyType = "REGEX"
	BodyJSON       BodyType = "JSON"
	BodyJSONSchema BodyType = "JSON_SCHEMA"
	BodyJSONPath   BodyType = "JSON_PATH"
	BodyXML        BodyType = "XML"
	BodyXMLSchema  BodyType = "XML_SCHEMA"
	BodyXPath      BodyType = "XPATH"
	BodyBinary     BodyType = "BINARY"
	BodyParameters BodyType = "PARAMETERS"
)

// JSONMatchType selects how a JSON body matcher compares documents.
type JSONMatchType string

const (
	// OnlyMatchingFields treats the expected document as a subset: extra
	// fields and array items are allowed and array order is ignored.
	OnlyMatchingFields JSONMatchType = "ONLY_MATCHING_FIELDS"
	// Strict requires equal documents, including array order.
	Strict JSONMatchType = "STRICT"
)

// Body is a concrete message body.
type Body struct {
	Type        BodyType
	Raw         []byte
	ContentType string
}

// StringBody creates a plain text body.
func StringBody(s string) *Body { return &Body{Type: BodyString, Raw: []byte(s)} }

// JSONBody creates a JSON body from its source text.
func JSONBody(s string) *Body {
	return &Body{Type: BodyJSON, Raw: []byte(s), ContentType: "application/json"}
}

// XMLBody creates an XML body.
func XMLBody(s string) *Body {
	return &Body{Type: BodyXML, Raw: []byte(s), ContentType: "application/xml"}
}

// BinaryBody creates a binary body.
func BinaryBody(b []byte) *Body { return &Body{Type: BodyBinary, Raw: b} }

// String returns the body as text. A nil body is empty.
func (b *Body) String() string {
	if b == nil {
		return ""
	}
	return string(b.Raw)
}

// Bytes returns the raw body bytes.
func (b *Body) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.Raw
}

// Empty reports whether the body has no content.
func (b *Body) Empty() bool { return b == nil || len(b.Raw) == 0 }

// Clone returns a deep copy.
func (b *Body) Clone() *Body {
	if b == nil {
		return nil
	}
	c := *b
	c.Raw = append([]byte(nil), b.Raw...)
	return &c
}

type bodyJSON struct {
	Type        BodyType        `json:"type"`
	String      *string         `json:"string,omitempty"`
	JSON        json.RawMessage `json:"json,omitempty"`
	XML         *string         `json:"xml,omitempty"`
	Base64Bytes string          `json:"base64Bytes,omitempty"`
	Parameters  Multimap        `json:"parameters,omitempty"`
	ContentType string          `json:"contentType,omitempty"`
}

func (b Body) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case BodyJSON:
		raw := bytes.TrimSpace(b.Raw)
		if !json.Valid(raw) {
			s := string(b.Raw)
			return json.Marshal(bodyJSON{Type: BodyString, String: &s, ContentType: b.ContentType})
		}
		return json.Marshal(bodyJSON{Type: BodyJSON, JSON: raw, ContentType: b.ContentType})
	case BodyXML:
		s := string(b.Raw)
		return json.Marshal(bodyJSON{Type: BodyXML, XML: &s, ContentType: b.ContentType})
	case BodyBinary:
		return json.Marshal(bodyJSON{Type: BodyBinary, Base64Bytes: base64.StdEncoding.EncodeToString(b.Raw), ContentType: b.ContentType})
	case BodyParameters:
		values, err := url.ParseQuery(string(b.Raw))
		if err != nil {
			s := string(b.Raw)
			return json.Marshal(bodyJSON{Type: BodyString, String: &s, ContentType: b.ContentType})
		}
		var params Multimap
		for name, vs := range values {
			params = params.Add(name, vs...)
		}
		return json.Marshal(bodyJSON{Type: BodyParameters, Parameters: params, ContentType: b.ContentType})
	default:
		if b.ContentType == "" {
			return json.Marshal(string(b.Raw))
		}
		s := string(b.Raw)
		return json.Marshal(bodyJSON{Type: BodyString, String: &s, ContentType: b.ContentType})
	}
}

func (b *Body) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = Body{Type: BodyString, Raw: []byte(s)}
		return nil
	case '[':
		*b = Body{Type: BodyJSON, Raw: append([]byte(nil), data...), ContentType: "application/json"}
		return nil
	case '{':
		var head struct {
			Type BodyType `json:"type"`
		}
		_ = json.Unmarshal(data, &head)
		if !knownBodyType(head.Type) {
			*b = Body{Type: BodyJSON, Raw: append([]byte(nil), data...), ContentType: "application/json"}
			return nil
		}
		var bj bodyJSON
		if err := json.Unmarshal(data, &bj); err != nil {
			return err
		}
		out := Body{Type: bj.Type, ContentType: bj.ContentType}
		switch bj.Type {
		case BodyJSON:
			out.Raw = embeddedJSON(bj.JSON)
			if out.ContentType == "" {
				out.ContentType = "application/json"
			}
		case BodyXML:
			if bj.XML != nil {
				out.Raw = []byte(*bj.XML)
			}
			if out.ContentType == "" {
				out.ContentType = "application/xml"
			}
		case BodyBinary:
			raw, err := base64.StdEncoding.DecodeString(bj.Base64Bytes)
			if err != nil {
				return fmt.Errorf("body base64Bytes: %w", err)
			}
			out.Raw = raw
		case BodyParameters:
			values := url.Values{}
			for _, e := range bj.Parameters {
				for _, v := range e.Values {
					values.Add(e.Name, v)
				}
			}
			out.Raw = []byte(values.Encode())
			if out.ContentType == "" {
				out.ContentType = "application/x-www-form-urlencoded"
			}
		default:
			out.Type = BodyString
			if bj.String != nil {
				out.Raw = []byte(*bj.String)
			}
		}
		*b = out
		return nil
	default:
		*b = Body{Type: BodyString, Raw: append([]byte(nil), data...)}
		return nil
	}
}

// embeddedJSON accepts either an inline JSON value or a string holding JSON.
func embeddedJSON(raw json.RawMessage) []byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []byte(s)
		}
	}
	return append([]byte(nil), raw...)
}

func knownBodyType(t BodyType) bool {
	switch t {
	case BodyString, BodyRegex, BodyJSON, BodyJSONSchema, BodyJSONPath, BodyXML,
		BodyXMLSchema, BodyXPath, BodyBinary, BodyParameters:
		return true
	}
	return false
}

// BodyMatcher constrains a request body. Value holds the type-specific
// source: literal text, regex, JSON document, JSON schema, JSONPath, XPath,
// XML document or XML schema.
type BodyMatcher struct {
	Type        BodyType
	Not         bool
	Optional    bool
	Value       string
	SubString   bool
	MatchType   JSONMatchType
	Binary      []byte
	Parameters  *KeyMatchers
	ContentType string
}

// ExactBody matches the body text exactly.
func ExactBody(s string) *BodyMatcher { return &BodyMatcher{Type: BodyString, Value: s} }

// SubStringBody matches when the body contains s.
func SubStringBody(s string) *BodyMatcher {
	return &BodyMatcher{Type: BodyString, Value: s, SubString: true}
}

// RegexBody matches the whole body against a regular expression.
func RegexBody(pattern string) *BodyMatcher { return &BodyMatcher{Type: BodyRegex, Value: pattern} }

// JSONBodyMatcher matches a JSON document with the given match type.
func JSONBodyMatcher(doc string, matchType JSONMatchType) *BodyMatcher {
	return &BodyMatcher{Type: BodyJSON, Value: doc, MatchType: matchType}
}

// JSONSchemaBody validates the body against a JSON schema.
func JSONSchemaBody(schema string) *BodyMatcher {
	return &BodyMatcher{Type: BodyJSONSchema, Value: schema}
}

// JSONPathBody matches when the JSONPath selects at least one value.
func JSONPathBody(path string) *BodyMatcher { return &BodyMatcher{Type: BodyJSONPath, Value: path} }

// XPathBody matches when the XPath selects at least one node.
func XPathBody(path string) *BodyMatcher { return &BodyMatcher{Type: BodyXPath, Value: path} }

// XMLBodyMatcher matches an equivalent XML document.
func XMLBodyMatcher(doc string) *BodyMatcher { return &BodyMatcher{Type: BodyXML, Value: doc} }

// XMLSchemaBody validates the body against an XML schema.
func XMLSchemaBody(schema string) *BodyMatcher {
	return &BodyMatcher{Type: BodyXMLSchema, Value: schema}
}

// BinaryBodyMatcher matches the exact bytes.
func BinaryBodyMatcher(b []byte) *BodyMatcher { return &BodyMatcher{Type: BodyBinary, Binary: b} }

// ParametersBody matches form-urlencoded parameters.
func ParametersBody(params *KeyMatchers) *BodyMatcher {
	return &BodyMatcher{Type: BodyParameters, Parameters: params}
}

// Negate returns a negated copy.
func (m *BodyMatcher) Negate() *BodyMatcher {
	c := *m
	c.Not = !m.Not
	return &c
}

func (m *BodyMatcher) String() string {
	if m == nil {
		return ""
	}
	var b strings.Builder
	if m.Not {
		b.WriteString("not ")
	}
	b.WriteString(strings.ToLower(string(m.Type)))
	b.WriteByte(' ')
	switch m.Type {
	case BodyBinary:
		b.WriteString(base64.StdEncoding.EncodeToString(m.Binary))
	case BodyParameters:
		raw, _ := json.Marshal(m.Parameters)
		b.Write(raw)
	default:
		b.WriteString(m.Value)
	}
	return b.String()
}

type bodyMatcherJSON struct {
	Type        BodyType        `json:"type"`
	Not         bool            `json:"not,omitempty"`
	Optional    bool            `json:"optional,omitempty"`
	String      *string         `json:"string,omitempty"`
	SubString   bool            `json:"subString,omitempty"`
	Regex       string          `json:"regex,omitempty"`
	JSON        json.RawMessage `json:"json,omitempty"`
	MatchType   JSONMatchType   `json:"matchType,omitempty"`
	JSONSchema  json.RawMessage `json:"jsonSchema,omitempty"`
	JSONPath    string          `json:"jsonPath,omitempty"`
	XPath       string          `json:"xpath,omitempty"`
	XML         string          `json:"xml,omitempty"`
	XMLSchema   string          `json:"xmlSchema,omitempty"`
	Base64Bytes string          `json:"base64Bytes,omitempty"`
	Parameters  *KeyMatchers    `json:"parameters,omitempty"`
	ContentType string          `json:"contentType,omitempty"`
}

func (m BodyMatcher) MarshalJSON() ([]byte, error) {
	if m.Type == BodyString && !m.Not && !m.Optional && !m.SubString && m.ContentType == "" {
		return json.Marshal(m.Value)
	}
	out := bodyMatcherJSON{
		Type:        m.Type,
		Not:         m.Not,
		Optional:    m.Optional,
		SubString:   m.SubString,
		MatchType:   m.MatchType,
		ContentType: m.ContentType,
	}
	switch m.Type {
	case BodyString:
		v := m.Value
		out.String = &v
	case BodyRegex:
		out.Regex = m.Value
	case BodyJSON:
		out.JSON = inlineJSON(m.Value)
	case BodyJSONSchema:
		out.JSONSchema = inlineJSON(m.Value)
	case BodyJSONPath:
		out.JSONPath = m.Value
	case BodyXPath:
		out.XPath = m.Value
	case BodyXML:
		out.XML = m.Value
	case BodyXMLSchema:
		out.XMLSchema = m.Value
	case BodyBinary:
		out.Base64Bytes = base64.StdEncoding.EncodeToString(m.Binary)
	case BodyParameters:
		out.Parameters = m.Parameters
	}
	return json.Marshal(out)
}

// inlineJSON embeds valid JSON as-is and anything else as a JSON string.
func inlineJSON(s string) json.RawMessage {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	raw, _ := json.Marshal(s)
	return raw
}

func (m *BodyMatcher) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = BodyMatcher{Type: BodyString, Value: s}
		return nil
	case '[':
		*m = BodyMatcher{Type: BodyJSON, Value: string(data), MatchType: OnlyMatchingFields}
		return nil
	case '{':
	default:
		*m = BodyMatcher{Type: BodyString, Value: string(data)}
		return nil
	}

	var head struct {
		Type BodyType `json:"type"`
	}
	_ = json.Unmarshal(data, &head)
	if !knownBodyType(head.Type) {
		*m = BodyMatcher{Type: BodyJSON, Value: string(data), MatchType: OnlyMatchingFields}
		return nil
	}

	var in bodyMatcherJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := BodyMatcher{
		Type:        in.Type,
		Not:         in.Not,
		Optional:    in.Optional,
		SubString:   in.SubString,
		MatchType:   in.MatchType,
		ContentType: in.ContentType,
	}
	switch in.Type {
	case BodyString:
		if in.String != nil {
			out.Value = *in.String
		}
	case BodyRegex:
		out.Value = in.Regex
	case BodyJSON:
		out.Value = string(embeddedJSON(in.JSON))
		if out.MatchType == "" {
			out.MatchType = OnlyMatchingFields
		}
	case BodyJSONSchema:
		out.Value = string(embeddedJSON(in.JSONSchema))
	case BodyJSONPath:
		out.Value = in.JSONPath
	case BodyXPath:
		out.Value = in.XPath
	case BodyXML:
		out.Value = in.XML
	case BodyXMLSchema:
		out.Value = in.XMLSchema
	case BodyBinary:
		raw, err := base64.StdEncoding.DecodeString(in.Base64Bytes)
		if err != nil {
			return fmt.Errorf("body matcher base64Bytes: %w", err)
		}
		out.Binary = raw
	case BodyParameters:
		out.Parameters = in.Parameters
	}
	*m = out
	return nil
}
