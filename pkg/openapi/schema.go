package openapi

import (
	"encoding/json"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// maxSchemaDepth bounds $ref expansion of recursive schemas.
const maxSchemaDepth = 12

// schemaString renders ref as a self-contained JSON schema with every $ref
// inlined. A nil ref yields an empty string.
func schemaString(ref *openapi3.SchemaRef) (string, error) {
	if ref == nil || ref.Value == nil {
		return "", nil
	}
	raw, err := json.Marshal(inlineSchema(ref.Value, 0))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func schemaType(s *openapi3.Schema) string {
	if s.Type == nil || len(*s.Type) == 0 {
		return ""
	}
	return (*s.Type)[0]
}

func inlineSchema(s *openapi3.Schema, depth int) map[string]any {
	out := map[string]any{}
	if depth > maxSchemaDepth {
		return out
	}
	if s.Type != nil && len(*s.Type) > 0 {
		types := append([]string(nil), (*s.Type)...)
		if s.Nullable {
			types = append(types, "null")
		}
		if len(types) == 1 {
			out["type"] = types[0]
		} else {
			out["type"] = types
		}
	}
	if s.Format != "" {
		out["format"] = s.Format
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if s.Pattern != "" {
		out["pattern"] = s.Pattern
	}
	if s.Min != nil {
		out["minimum"] = *s.Min
	}
	if s.Max != nil {
		out["maximum"] = *s.Max
	}
	if s.MinLength > 0 {
		out["minLength"] = s.MinLength
	}
	if s.MaxLength != nil {
		out["maxLength"] = *s.MaxLength
	}
	if s.MinItems > 0 {
		out["minItems"] = s.MinItems
	}
	if s.MaxItems != nil {
		out["maxItems"] = *s.MaxItems
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			if p != nil && p.Value != nil {
				props[name] = inlineSchema(p.Value, depth+1)
			}
		}
		out["properties"] = props
	}
	if s.Items != nil && s.Items.Value != nil {
		out["items"] = inlineSchema(s.Items.Value, depth+1)
	}
	for key, refs := range map[string]openapi3.SchemaRefs{"allOf": s.AllOf, "oneOf": s.OneOf, "anyOf": s.AnyOf} {
		if len(refs) == 0 {
			continue
		}
		list := make([]any, 0, len(refs))
		for _, r := range refs {
			if r != nil && r.Value != nil {
				list = append(list, inlineSchema(r.Value, depth+1))
			}
		}
		out[key] = list
	}
	if s.Not != nil && s.Not.Value != nil {
		out["not"] = inlineSchema(s.Not.Value, depth+1)
	}
	return out
}

// exampleValue builds a deterministic example for a schema. Priority:
// explicit example, default, first enum value, composition, then a value
// by type.
func exampleValue(ref *openapi3.SchemaRef, depth int) any {
	if ref == nil || ref.Value == nil || depth > maxSchemaDepth {
		return nil
	}
	s := ref.Value

	if s.Example != nil {
		return s.Example
	}
	if s.Default != nil {
		return s.Default
	}
	if len(s.Enum) > 0 {
		return s.Enum[0]
	}

	if len(s.AllOf) > 0 {
		merged := map[string]any{}
		for _, sub := range s.AllOf {
			if m, ok := exampleValue(sub, depth+1).(map[string]any); ok {
				for k, v := range m {
					merged[k] = v
				}
			}
		}
		for name, prop := range s.Properties {
			merged[name] = exampleValue(prop, depth+1)
		}
		return merged
	}
	if len(s.OneOf) > 0 {
		return exampleValue(s.OneOf[0], depth+1)
	}
	if len(s.AnyOf) > 0 {
		return exampleValue(s.AnyOf[0], depth+1)
	}

	switch schemaType(s) {
	case "object":
		return exampleObject(s, depth)
	case "array":
		item := exampleValue(s.Items, depth+1)
		if item == nil {
			return []any{}
		}
		return []any{item}
	case "string":
		return exampleString(s.Format)
	case "integer":
		if s.Min != nil {
			return int64(*s.Min)
		}
		return 0
	case "number":
		if s.Min != nil {
			return *s.Min
		}
		return 0.0
	case "boolean":
		return true
	default:
		if len(s.Properties) > 0 {
			return exampleObject(s, depth)
		}
		return nil
	}
}

func exampleObject(s *openapi3.Schema, depth int) map[string]any {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	obj := make(map[string]any, len(names))
	for _, name := range names {
		obj[name] = exampleValue(s.Properties[name], depth+1)
	}
	return obj
}

func exampleString(format string) string {
	switch format {
	case "date":
		return "2026-01-01"
	case "date-time":
		return "2026-01-01T00:00:00Z"
	case "email":
		return "user@example.com"
	case "uuid":
		return "00000000-0000-4000-8000-000000000000"
	case "uri", "url":
		return "https://example.com"
	case "ipv4":
		return "192.0.2.1"
	case "ipv6":
		return "2001:db8::1"
	case "byte":
		return "ZXhhbXBsZQ=="
	default:
		return "string"
	}
}
