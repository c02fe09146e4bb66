package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes converts a YAML config file to JSON bytes so Parse can
// run the same strict JSON decoder (DisallowUnknownFields) over either
// format. Non-YAML paths (".json" or no extension) pass data through
// unchanged.
func coerceToJSONBytes(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}

	j, err := json.Marshal(stringifyYAMLKeys(v))
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// stringifyYAMLKeys recursively replaces map[any]any (go.yaml.in/yaml/v3's
// decode shape for untyped mappings) with map[string]any so the result is
// JSON-marshalable.
func stringifyYAMLKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringifyYAMLKeys(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = stringifyYAMLKeys(v)
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = stringifyYAMLKeys(x[i])
		}
		return out
	default:
		return in
	}
}
