package campaign

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// definitionSchema is the JSON Schema every campaign definition file must
// satisfy before being parsed. Structural checks beyond the schema's reach
// (offset monotonicity, segment coverage) live in Definition.Validate.
var definitionSchema = map[string]any{
	"type":     "object",
	"required": []any{"campaign_id", "name", "steps"},
	"properties": map[string]any{
		"campaign_id": map[string]any{
			"type":      "string",
			"minLength": 1,
		},
		"name": map[string]any{
			"type":      "string",
			"minLength": 1,
		},
		"description": map[string]any{
			"type": "string",
		},
		"steps": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":     "object",
				"required": []any{"step_number", "offset"},
				"properties": map[string]any{
					"step_number": map[string]any{
						"type":    "integer",
						"minimum": 0,
					},
					"offset": map[string]any{
						"type":      "string",
						"minLength": 1,
					},
					"template": map[string]any{
						"type": "string",
					},
					"segment_templates": map[string]any{
						"type": "object",
						"additionalProperties": map[string]any{
							"type": "string",
						},
					},
				},
			},
		},
	},
}

func validateDefinitionSchema(data []byte) error {
	schemaLoader := gojsonschema.NewGoLoader(definitionSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
