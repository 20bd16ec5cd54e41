// Package validation is the schema capability used by the matcher: it
// validates a value against a JSON schema or an XML schema and reports the
// violations as messages.
//
// # Usage
//
//	v := validation.NewValidator()
//	violations := v.Validate(validation.JSONSchema, `{"type": "integer"}`, json.Number("7"))
//	if len(violations) == 0 {
//	    // value satisfies the schema
//	}
//
// Compiled schemas are cached by source text, so repeated validation against
// the same expectation does not recompile. Compile reports schema errors up
// front and is used when expectations are upserted.
//
// JSON schemas are compiled with santhosh-tekuri/jsonschema (draft 2020-12
// unless the schema declares $schema). XML schemas support the commonly used
// XSD subset: global and local elements, named and anonymous complex and
// simple types, sequence/choice/all with occurrence bounds, attributes,
// simpleContent and complexContent extension, and restriction facets.
package validation
