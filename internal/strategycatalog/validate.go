package strategycatalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"ares_api/internal/models"
)

// parametersSchemaJSON encodes the accepted ranges for filter parameters
// embedded in a Strategy Configuration's Parameters blob. Keys outside
// filter_params are left unconstrained — the catalog only owns the
// namespaced filter tunables, not the whole opaque document.
const parametersSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "base_leverage": {"type": "number", "exclusiveMinimum": 0},
    "filter_params": {
      "type": "object",
      "properties": {
        "support_resistance": {
          "type": "object",
          "properties": {
            "min_support_strength":    {"type": "number", "minimum": 0, "maximum": 1},
            "min_resistance_strength": {"type": "number", "minimum": 0, "maximum": 1},
            "min_touch_count":         {"type": "integer", "minimum": 1},
            "max_distance_pct":        {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
            "tolerance_pct":           {"type": "number", "exclusiveMinimum": 0, "exclusiveMaximum": 1},
            "fractal_window":          {"type": "integer", "minimum": 3}
          },
          "additionalProperties": true
        }
      },
      "additionalProperties": true
    }
  },
  "additionalProperties": true
}`

var parametersSchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("strategy-parameters.json", strings.NewReader(parametersSchemaJSON)); err != nil {
		panic(fmt.Sprintf("strategycatalog: invalid embedded schema: %v", err))
	}
	schema, err := compiler.Compile("strategy-parameters.json")
	if err != nil {
		panic(fmt.Sprintf("strategycatalog: compile embedded schema: %v", err))
	}
	parametersSchema = schema
}

// ValidateParameters checks a Strategy Configuration's Parameters document
// against the accepted ranges. A nil/empty document is valid (every field
// falls back to defaults).
func ValidateParameters(params models.JSONB) error {
	if len(params) == 0 {
		return nil
	}

	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal for validation: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode for validation: %w", err)
	}

	if err := parametersSchema.Validate(doc); err != nil {
		return fmt.Errorf("parameters out of range: %w", err)
	}
	return nil
}
