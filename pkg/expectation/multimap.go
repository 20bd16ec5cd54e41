package expectation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Entry is one named field of a Multimap.
type Entry struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Multimap is an insertion-ordered multi-valued map used for headers,
// cookies, query string and path parameters.
//
// It marshals to a JSON object ({"name": ["v1", "v2"]}) and accepts either
// that form, single string values, or an array of {"name", "values"} entries.
type Multimap []Entry

// Values returns all values stored under name. When fold is true names are
// compared case-insensitively.
func (m Multimap) Values(name string, fold bool) []string {
	var out []string
	for _, e := range m {
		if sameName(e.Name, name, fold) {
			out = append(out, e.Values...)
		}
	}
	return out
}

// First returns the first value stored under name.
func (m Multimap) First(name string, fold bool) string {
	for _, e := range m {
		if sameName(e.Name, name, fold) && len(e.Values) > 0 {
			return e.Values[0]
		}
	}
	return ""
}

// Has reports whether name is present.
func (m Multimap) Has(name string, fold bool) bool {
	for _, e := range m {
		if sameName(e.Name, name, fold) {
			return true
		}
	}
	return false
}

// Add appends values to name, creating the entry if needed.
func (m Multimap) Add(name string, values ...string) Multimap {
	for i := range m {
		if m[i].Name == name {
			m[i].Values = append(m[i].Values, values...)
			return m
		}
	}
	return append(m, Entry{Name: name, Values: append([]string(nil), values...)})
}

// Set replaces the values of name in place, keeping its position, or
// appends a new entry.
func (m Multimap) Set(name string, fold bool, values ...string) Multimap {
	for i := range m {
		if sameName(m[i].Name, name, fold) {
			m[i].Values = append([]string(nil), values...)
			return m
		}
	}
	return append(m, Entry{Name: name, Values: append([]string(nil), values...)})
}

// Remove drops every entry named name.
func (m Multimap) Remove(name string, fold bool) Multimap {
	out := m[:0]
	for _, e := range m {
		if !sameName(e.Name, name, fold) {
			out = append(out, e)
		}
	}
	return out
}

// Names returns entry names in order.
func (m Multimap) Names() []string {
	names := make([]string, 0, len(m))
	for _, e := range m {
		names = append(names, e.Name)
	}
	return names
}

// Clone returns a deep copy.
func (m Multimap) Clone() Multimap {
	if m == nil {
		return nil
	}
	out := make(Multimap, len(m))
	for i, e := range m {
		out[i] = Entry{Name: e.Name, Values: append([]string(nil), e.Values...)}
	}
	return out
}

// ToMap converts to a plain map. Names are lower-cased when fold is true.
func (m Multimap) ToMap(fold bool) map[string][]string {
	out := make(map[string][]string, len(m))
	for _, e := range m {
		name := e.Name
		if fold {
			name = strings.ToLower(name)
		}
		out[name] = append(out[name], e.Values...)
	}
	return out
}

func sameName(a, b string, fold bool) bool {
	if fold {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// MarshalJSON writes the multimap as an ordered JSON object.
func (m Multimap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		values := e.Values
		if values == nil {
			values = []string{}
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

// UnmarshalJSON accepts the object and entry-array forms.
func (m *Multimap) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = nil
		return nil
	}
	if data[0] == '[' {
		var entries []struct {
			Name   string          `json:"name"`
			Values json.RawMessage `json:"values"`
			Value  json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(data, &entries); err != nil {
			return err
		}
		out := make(Multimap, 0, len(entries))
		for _, e := range entries {
			raw := e.Values
			if len(raw) == 0 {
				raw = e.Value
			}
			values, err := decodeStringValues(raw)
			if err != nil {
				return fmt.Errorf("values of %q: %w", e.Name, err)
			}
			out = append(out, Entry{Name: e.Name, Values: values})
		}
		*m = out
		return nil
	}

	var out Multimap
	err := decodeOrderedObject(data, func(name string, raw json.RawMessage) error {
		values, err := decodeStringValues(raw)
		if err != nil {
			return fmt.Errorf("values of %q: %w", name, err)
		}
		out = append(out, Entry{Name: name, Values: values})
		return nil
	})
	if err != nil {
		return err
	}
	*m = out
	return nil
}

func decodeStringValues(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		values := make([]string, 0, len(items))
		for _, item := range items {
			v, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return values, nil
	}
	v, err := scalarString(raw)
	if err != nil {
		return nil, err
	}
	return []string{v}, nil
}

// scalarString renders a JSON scalar as a string; numbers and booleans keep
// their literal text.
func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	if len(raw) > 0 && (raw[0] == '{' || raw[0] == '[') {
		return "", fmt.Errorf("expected a scalar, got %s", raw)
	}
	return string(raw), nil
}

// decodeOrderedObject walks the members of a JSON object in document order.
func decodeOrderedObject(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

// ParseQuery parses a URL-encoded query or form body keeping key order.
// Malformed escapes are kept verbatim.
func ParseQuery(raw string) Multimap {
	var m Multimap
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		m = m.Add(key, value)
	}
	return m
}
