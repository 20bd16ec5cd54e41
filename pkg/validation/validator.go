package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/getmockd/expectd/pkg/logging"
)

// Kind selects a schema language.
type Kind string

const (
	JSONSchema Kind = "json-schema"
	XMLSchema  Kind = "xml-schema"
)

// ErrUnknownKind is returned for an unsupported schema kind.
var ErrUnknownKind = errors.New("unknown schema kind")

// Validator validates values against schemas. It is safe for concurrent use.
type Validator struct {
	mu   sync.RWMutex
	json map[string]*jsonschema.Schema
	xsd  map[string]*XSD
	log  *slog.Logger
}

// NewValidator creates a Validator with empty caches.
func NewValidator() *Validator {
	return &Validator{
		json: make(map[string]*jsonschema.Schema),
		xsd:  make(map[string]*XSD),
		log:  logging.Nop(),
	}
}

// SetLogger sets the operational logger.
func (v *Validator) SetLogger(log *slog.Logger) {
	if log != nil {
		v.log = log
	}
}

// Compile checks that source is a valid schema of the given kind and caches
// the compiled form.
func (v *Validator) Compile(kind Kind, source string) error {
	switch kind {
	case JSONSchema:
		_, err := v.jsonSchema(source)
		return err
	case XMLSchema:
		_, err := v.xmlSchema(source)
		return err
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

// Validate returns the violations of value against the schema. An empty
// result means the value is valid. A schema that fails to compile yields a
// single violation describing the compile error.
//
// For JSONSchema, value is a decoded JSON value (see DecodeJSON). For
// XMLSchema, value is the document as a string or []byte.
func (v *Validator) Validate(kind Kind, source string, value any) []string {
	switch kind {
	case JSONSchema:
		schema, err := v.jsonSchema(source)
		if err != nil {
			return []string{err.Error()}
		}
		return jsonViolations(schema.Validate(value))
	case XMLSchema:
		schema, err := v.xmlSchema(source)
		if err != nil {
			return []string{err.Error()}
		}
		var doc string
		switch d := value.(type) {
		case string:
			doc = d
		case []byte:
			doc = string(d)
		default:
			return []string{fmt.Sprintf("xml schema cannot validate %T", value)}
		}
		return schema.Validate(doc)
	default:
		return []string{fmt.Sprintf("%v: %s", ErrUnknownKind, kind)}
	}
}

// ValidateJSON decodes document and validates it against a JSON schema.
func (v *Validator) ValidateJSON(source string, document []byte) []string {
	value, err := DecodeJSON(document)
	if err != nil {
		return []string{fmt.Sprintf("invalid JSON: %v", err)}
	}
	return v.Validate(JSONSchema, source, value)
}

// DecodeJSON decodes a document keeping numbers as json.Number.
func DecodeJSON(document []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(document))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	return value, nil
}

func (v *Validator) jsonSchema(source string) (*jsonschema.Schema, error) {
	v.mu.RLock()
	schema, ok := v.json[source]
	v.mu.RUnlock()
	if ok {
		return schema, nil
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	if err := compiler.AddResource("schema.json", strings.NewReader(source)); err != nil {
		return nil, fmt.Errorf("invalid json schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid json schema: %w", err)
	}

	v.mu.Lock()
	v.json[source] = schema
	v.mu.Unlock()
	v.log.Debug("compiled json schema", "bytes", len(source))
	return schema, nil
}

func (v *Validator) xmlSchema(source string) (*XSD, error) {
	v.mu.RLock()
	schema, ok := v.xsd[source]
	v.mu.RUnlock()
	if ok {
		return schema, nil
	}

	schema, err := ParseXSD(source)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.xsd[source] = schema
	v.mu.Unlock()
	v.log.Debug("compiled xml schema", "bytes", len(source))
	return schema, nil
}

// jsonViolations flattens a validation error into one message per failing
// leaf keyword.
func jsonViolations(err error) []string {
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}
	var out []string
	collectViolations(verr, &out)
	return out
}

func collectViolations(err *jsonschema.ValidationError, out *[]string) {
	if len(err.Causes) == 0 {
		field := fieldFromPointer(err.InstanceLocation)
		if field == "" {
			*out = append(*out, err.Message)
			return
		}
		*out = append(*out, field+": "+err.Message)
		return
	}
	for _, cause := range err.Causes {
		collectViolations(cause, out)
	}
}

// fieldFromPointer converts a JSON pointer to dot notation.
func fieldFromPointer(path string) string {
	if path == "" || path == "/" {
		return ""
	}
	path = strings.TrimPrefix(path, "/")
	return strings.ReplaceAll(path, "/", ".")
}
