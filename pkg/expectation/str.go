package expectation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Str is a single string matcher. A plain value matches an equal string or,
// when it compiles, a full regular expression match. Schema, when set,
// replaces the value: the actual string must validate against that JSON
// schema.
//
// JSON accepts "value", "!value" (negated), "?value" (optional key) or
// {"value": "...", "not": true, "optional": true, "schema": {...}}.
type Str struct {
	Value    string
	Not      bool
	Optional bool
	Schema   json.RawMessage
}

// String returns a literal-or-regex matcher.
func String(v string) Str { return Str{Value: v} }

// NotString returns a negated matcher.
func NotString(v string) Str { return Str{Value: v, Not: true} }

// Optional returns a matcher for a key that may be absent.
func Optional(v string) Str { return Str{Value: v, Optional: true} }

// SchemaString returns a matcher validating values against a JSON schema.
func SchemaString(schema string) Str { return Str{Schema: json.RawMessage(schema)} }

// IsSchema reports whether the matcher is schema based.
func (s Str) IsSchema() bool { return len(s.Schema) > 0 }

// IsBlank reports whether the matcher places no constraint.
func (s Str) IsBlank() bool { return s.Value == "" && !s.IsSchema() && !s.Not }

func (s Str) String() string {
	var b strings.Builder
	if s.Not {
		b.WriteByte('!')
	}
	if s.Optional {
		b.WriteByte('?')
	}
	if s.IsSchema() {
		b.WriteString("schema:")
		b.Write(s.Schema)
		return b.String()
	}
	b.WriteString(s.Value)
	return b.String()
}

// MarshalJSON uses the compact string form when it round-trips.
func (s Str) MarshalJSON() ([]byte, error) {
	if !s.IsSchema() && !strings.HasPrefix(s.Value, "!") && !strings.HasPrefix(s.Value, "?") {
		prefix := ""
		if s.Not {
			prefix += "!"
		}
		if s.Optional {
			prefix += "?"
		}
		return json.Marshal(prefix + s.Value)
	}
	type obj struct {
		Value    string          `json:"value,omitempty"`
		Not      bool            `json:"not,omitempty"`
		Optional bool            `json:"optional,omitempty"`
		Schema   json.RawMessage `json:"schema,omitempty"`
	}
	return json.Marshal(obj{Value: s.Value, Not: s.Not, Optional: s.Optional, Schema: s.Schema})
}

func (s *Str) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = parseStrShorthand(v)
		return nil
	case '{':
		var obj struct {
			Value    json.RawMessage `json:"value"`
			Not      bool            `json:"not"`
			Optional bool            `json:"optional"`
			Schema   json.RawMessage `json:"schema"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		value := ""
		if len(obj.Value) > 0 {
			v, err := scalarString(obj.Value)
			if err != nil {
				return fmt.Errorf("string matcher value: %w", err)
			}
			value = v
		}
		*s = Str{Value: value, Not: obj.Not, Optional: obj.Optional, Schema: obj.Schema}
		return nil
	default:
		v, err := scalarString(data)
		if err != nil {
			return fmt.Errorf("string matcher: %w", err)
		}
		*s = Str{Value: v}
		return nil
	}
}

func parseStrShorthand(v string) Str {
	var s Str
	if strings.HasPrefix(v, "!") && len(v) > 1 {
		s.Not = true
		v = v[1:]
	}
	if strings.HasPrefix(v, "?") && len(v) > 1 {
		s.Optional = true
		v = v[1:]
	}
	s.Value = v
	return s
}

// KeyMatchStyle controls how multi-valued fields compare.
type KeyMatchStyle string

const (
	// SubSet requires every matcher value to be satisfied by some actual value.
	SubSet KeyMatchStyle = "SUB_SET"
	// MatchingKey requires every actual value of a matched key to satisfy
	// at least one matcher value.
	MatchingKey KeyMatchStyle = "MATCHING_KEY"
)

// KeyMatcher constrains one named field.
type KeyMatcher struct {
	Name   Str
	Values []Str
}

// KeyMatchers constrains a multi-valued field (headers, cookies, query or
// path parameters).
type KeyMatchers struct {
	Style   KeyMatchStyle
	Entries []KeyMatcher
}

// Keys builds a SUB_SET KeyMatchers from name/value pairs.
func Keys(pairs ...string) *KeyMatchers {
	km := &KeyMatchers{Style: SubSet}
	for i := 0; i+1 < len(pairs); i += 2 {
		km.Entries = append(km.Entries, KeyMatcher{Name: String(pairs[i]), Values: []Str{String(pairs[i+1])}})
	}
	return km
}

// With appends a constraint.
func (k *KeyMatchers) With(name Str, values ...Str) *KeyMatchers {
	k.Entries = append(k.Entries, KeyMatcher{Name: name, Values: values})
	return k
}

// IsEmpty reports whether no key is constrained.
func (k *KeyMatchers) IsEmpty() bool { return k == nil || len(k.Entries) == 0 }

// MarshalJSON writes {"keyMatchStyle": ..., "name": [values]} preserving order.
func (k KeyMatchers) MarshalJSON() ([]byte, error) {
	for _, e := range k.Entries {
		if e.Name.IsSchema() {
			return k.marshalEntries()
		}
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	if k.Style != "" && k.Style != SubSet {
		buf.WriteString(`"keyMatchStyle":`)
		style, _ := json.Marshal(k.Style)
		buf.Write(style)
		first = false
	}
	for _, e := range k.Entries {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		name, err := json.Marshal(e.Name.String())
		if err != nil {
			return nil, err
		}
		values := e.Values
		if values == nil {
			values = []Str{}
		}
		vals, err := json.Marshal(values)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(vals)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalEntries is used when a key is itself a schema and cannot be an
// object member name.
func (k KeyMatchers) marshalEntries() ([]byte, error) {
	type entry struct {
		Name   Str   `json:"name"`
		Values []Str `json:"values"`
	}
	entries := make([]entry, 0, len(k.Entries))
	for _, e := range k.Entries {
		entries = append(entries, entry{Name: e.Name, Values: e.Values})
	}
	return json.Marshal(entries)
}

func (k *KeyMatchers) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	k.Style = SubSet
	k.Entries = nil
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '[' {
		var entries []struct {
			Name   Str             `json:"name"`
			Values json.RawMessage `json:"values"`
		}
		if err := json.Unmarshal(data, &entries); err != nil {
			return err
		}
		for _, e := range entries {
			values, err := decodeStrValues(e.Values)
			if err != nil {
				return err
			}
			k.Entries = append(k.Entries, KeyMatcher{Name: e.Name, Values: values})
		}
		return nil
	}
	return decodeOrderedObject(data, func(key string, raw json.RawMessage) error {
		if key == "keyMatchStyle" {
			return json.Unmarshal(raw, &k.Style)
		}
		values, err := decodeStrValues(raw)
		if err != nil {
			return fmt.Errorf("values of %q: %w", key, err)
		}
		k.Entries = append(k.Entries, KeyMatcher{Name: parseStrShorthand(key), Values: values})
		return nil
	})
}

func decodeStrValues(raw json.RawMessage) ([]Str, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var values []Str
		err := json.Unmarshal(raw, &values)
		return values, err
	}
	var v Str
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return []Str{v}, nil
}
