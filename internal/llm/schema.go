package llm

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/doc-extract/internal/model"
)

// ResponseSchemaName names the structured output format sent to providers.
const ResponseSchemaName = "field_extraction"

// ResponseSchema builds the strict JSON Schema requested from the model: one
// required property per field, each {value, confidence, rationale, details}.
func ResponseSchema(schema model.ExtractionSchema) map[string]any {
	props := make(map[string]any, schema.Len())
	required := make([]string, 0, schema.Len())
	for name, desc := range schema.All() {
		props[name] = map[string]any{
			"type":        "object",
			"description": desc,
			"properties": map[string]any{
				"value":      map[string]any{"type": []string{"string", "null"}},
				"confidence": map[string]any{"type": "number"},
				"rationale":  map[string]any{"type": "string"},
				"details": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"evidence": map[string]any{"type": []string{"string", "null"}},
					},
					"required":             []string{"evidence"},
					"additionalProperties": false,
				},
			},
			"required":             []string{"value", "confidence", "rationale", "details"},
			"additionalProperties": false,
		}
		required = append(required, name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// validationSchema is what a response must satisfy to be used. It is looser
// than ResponseSchema: omitted fields and extra keys are tolerated and
// handled downstream.
func validationSchema(schema model.ExtractionSchema) map[string]any {
	props := make(map[string]any, schema.Len())
	for name := range schema.All() {
		props[name] = map[string]any{
			"type": []string{"object", "null"},
			"properties": map[string]any{
				"value":      map[string]any{"type": []string{"string", "null"}},
				"confidence": map[string]any{"type": []string{"number", "null"}},
				"rationale":  map[string]any{"type": []string{"string", "null"}},
				"details":    map[string]any{"type": []string{"object", "null"}},
			},
			"required": []string{"value"},
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

// validateResponse checks a decoded JSON document against validationSchema.
func validateResponse(schema model.ExtractionSchema, doc any) error {
	raw, err := json.Marshal(validationSchema(schema))
	if err != nil {
		return eris.Wrap(err, "llm: marshal validation schema")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("response.json", bytes.NewReader(raw)); err != nil {
		return eris.Wrap(err, "llm: add validation schema")
	}
	compiled, err := compiler.Compile("response.json")
	if err != nil {
		return eris.Wrap(err, "llm: compile validation schema")
	}
	if err := compiled.Validate(doc); err != nil {
		return eris.Wrap(err, "llm: response does not match schema")
	}
	return nil
}
