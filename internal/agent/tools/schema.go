package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

func compileSchema(raw json.RawMessage) (*jsonschema.Resolved, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("unresolvable schema: %w", err)
	}
	return resolved, nil
}

// validateArgs decodes the model's argument string and checks it against
// the schema. Blank arguments are treated as an empty object.
func validateArgs(schema *jsonschema.Resolved, args string) (json.RawMessage, error) {
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}

	var instance any
	if err := json.Unmarshal([]byte(args), &instance); err != nil {
		return nil, fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if _, ok := instance.(map[string]any); !ok {
		return nil, fmt.Errorf("arguments must be a JSON object")
	}
	if err := schema.Validate(instance); err != nil {
		return nil, err
	}
	return json.RawMessage(args), nil
}

// decodeArgs unmarshals validated input into a typed struct
func decodeArgs[T any](input json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(input, &v); err != nil {
		return v, fmt.Errorf("invalid input: %w", err)
	}
	return v, nil
}
