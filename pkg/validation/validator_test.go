package validation

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const personSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": "string", "minLength": 2},
    "age": {"type": "integer", "minimum": 0}
  },
  "required": ["name"]
}`

func TestValidator_JSONSchemaValid(t *testing.T) {
	v := NewValidator()
	violations := v.ValidateJSON(personSchema, []byte(`{"name": "Ada", "age": 36}`))
	assert.Empty(t, violations)
}

func TestValidator_JSONSchemaViolations(t *testing.T) {
	v := NewValidator()
	violations := v.ValidateJSON(personSchema, []byte(`{"name": "A", "age": -1}`))
	require.Len(t, violations, 2)
	assert.Contains(t, violations[0]+violations[1], "name:")
	assert.Contains(t, violations[0]+violations[1], "age:")
}

func TestValidator_JSONSchemaMissingRequired(t *testing.T) {
	v := NewValidator()
	violations := v.ValidateJSON(personSchema, []byte(`{"age": 3}`))
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "name")
}

func TestValidator_ScalarValues(t *testing.T) {
	v := NewValidator()
	assert.Empty(t, v.Validate(JSONSchema, `{"type": "string", "pattern": "^[A-Z]+$"}`, "ABC"))
	assert.NotEmpty(t, v.Validate(JSONSchema, `{"type": "string", "pattern": "^[A-Z]+$"}`, "abc"))
	assert.Empty(t, v.Validate(JSONSchema, `{"type": "integer"}`, json.Number("42")))
	assert.NotEmpty(t, v.Validate(JSONSchema, `{"type": "integer"}`, "42"))
}

func TestValidator_InvalidJSONDocument(t *testing.T) {
	v := NewValidator()
	violations := v.ValidateJSON(personSchema, []byte(`{"name":`))
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "invalid JSON")
}

func TestValidator_Compile(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.Compile(JSONSchema, personSchema))
	assert.Error(t, v.Compile(JSONSchema, `{"type": 12}`))
	assert.Error(t, v.Compile(JSONSchema, `not json`))
	assert.ErrorIs(t, v.Compile(Kind("yaml-schema"), "x"), ErrUnknownKind)
}

func TestValidator_CompileErrorAsViolation(t *testing.T) {
	v := NewValidator()
	violations := v.Validate(JSONSchema, `{"type": 12}`, "x")
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "invalid json schema")
}

func TestValidator_Concurrent(t *testing.T) {
	v := NewValidator()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Empty(t, v.ValidateJSON(personSchema, []byte(`{"name": "Grace"}`)))
		}()
	}
	wg.Wait()
}
