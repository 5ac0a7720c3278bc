package llm

import "github.com/mvbarbosa/docetl/internal/catalog"

// BuildExtractionJSONSchema returns a JSON-Schema (draft 2020-12 subset) for a
// document type's declared fields, as a generic map. We pass it to the backend
// as an output constraint and also use it locally to validate.
//
// No field is required: a field absent from the response is recorded with the
// not-found sentinel, not rejected. Unknown keys are rejected.
func BuildExtractionJSONSchema(schema catalog.Schema) map[string]any {
	props := make(map[string]any, len(schema.Fields))
	for _, f := range schema.Fields {
		props[f.Name] = map[string]any{"type": "string", "minLength": 1}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}
