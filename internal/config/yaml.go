package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toJSON converts a config document to JSON so that one strict decoder and one
// schema serve both formats. Names ending in .json pass through unchanged.
// YAML input must be a single document; duplicate keys are rejected by the
// decoder.
func toJSON(name string, data []byte) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(name), ".json") {
		return data, nil
	}

	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	var doc any
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("yaml: expected a single document")
	}
	if doc == nil {
		doc = map[string]any{}
	}
	out, err := json.Marshal(jsonCompatible(doc))
	if err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return out, nil
}

// jsonCompatible turns non-string mapping keys (a greeting segment written as
// 1, an entity keyed by yes) into strings, since JSON objects only have
// string keys.
func jsonCompatible(v any) any {
	switch node := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[fmt.Sprint(k)] = jsonCompatible(val)
		}
		return out
	case map[string]any:
		for k, val := range node {
			node[k] = jsonCompatible(val)
		}
	case []any:
		for i, val := range node {
			node[i] = jsonCompatible(val)
		}
	}
	return v
}
