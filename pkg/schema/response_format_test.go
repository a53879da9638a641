package schema

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type valueFields struct {
	RequiredField string `json:"requiredField" jsonschema:"title=Required Field,description=A required string field"`
	OptionalField string `json:"optionalField,omitempty" jsonschema:"title=Optional Field,description=An optional string field"`
}

type pointerFields struct {
	RequiredField string  `json:"requiredField" jsonschema:"title=Required Field,description=A required string field"`
	OptionalField *string `json:"optionalField,omitempty" jsonschema:"title=Optional Field,description=An optional string field"`
}

func TestResponseFormatOptionalFields(t *testing.T) {
	t.Run("String field with omitempty", func(t *testing.T) {
		rf, err := NewResponseFormat(reflect.TypeOf(valueFields{}), true)
		require.NoError(t, err)

		// optionalField appears in properties but not in required
		assert.Contains(t, rf.JSONSchema.Schema.Properties, "optionalField")
		assert.NotContains(t, rf.JSONSchema.Schema.Required, "optionalField")
		assert.Contains(t, rf.JSONSchema.Schema.Required, "requiredField")

		jsonBytes, _ := json.MarshalIndent(rf, "", "\t")
		exp := `{
	"type": "json_schema",
	"json_schema": {
		"name": "valueFields",
		"strict": true,
		"schema": {
			"type": "object",
			"properties": {
				"optionalField": {
					"type": "string",
					"title": "Optional Field",
					"description": "An optional string field"
				},
				"requiredField": {
					"type": "string",
					"title": "Required Field",
					"description": "A required string field"
				}
			},
			"additionalProperties": false,
			"required": [
				"requiredField"
			]
		}
	}
}`
		assert.Equal(t, exp, string(jsonBytes))
	})

	t.Run("Pointer field with omitempty", func(t *testing.T) {
		rf, err := NewResponseFormat(reflect.TypeOf(pointerFields{}), true)
		require.NoError(t, err)

		assert.Contains(t, rf.JSONSchema.Schema.Properties, "optionalField")
		assert.NotContains(t, rf.JSONSchema.Schema.Required, "optionalField")
		assert.Contains(t, rf.JSONSchema.Schema.Required, "requiredField")
	})

	t.Run("Not strict", func(t *testing.T) {
		rf, err := NewResponseFormat(reflect.TypeOf(valueFields{}), false)
		require.NoError(t, err)
		assert.Equal(t, "json_schema", rf.Type)
		assert.False(t, rf.JSONSchema.Strict)
		assert.Equal(t, "valueFields", rf.JSONSchema.Name)
	})
}
