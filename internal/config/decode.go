package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// decodeFile parses a JSON or YAML config, chosen by extension. Both formats
// are strict: unknown keys and a second document are errors.
func decodeFile(path string, data []byte) (*Config, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		var err error
		if data, err = yamlToJSON(data); err != nil {
			return nil, err
		}
	}
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after the config object")
	}
	return &cfg, nil
}

// yamlToJSON turns one YAML document into JSON so both formats share the
// strict decoder above. An empty document is an empty config.
func yamlToJSON(data []byte) ([]byte, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return []byte("{}"), nil
		}
		return nil, fmt.Errorf("yaml: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, errors.New("yaml: only one document is allowed")
		}
		return nil, fmt.Errorf("yaml: %w", err)
	}
	v, err := jsonValue(doc, "")
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// jsonValue rewrites YAML mappings as JSON objects. at is the dotted key path
// used in errors.
func jsonValue(v any, at string) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			jv, err := jsonValue(e, keyPath(at, k))
			if err != nil {
				return nil, err
			}
			x[k] = jv
		}
		return x, nil
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("yaml: key %v under %q is not a string", k, at)
			}
			jv, err := jsonValue(e, keyPath(at, ks))
			if err != nil {
				return nil, err
			}
			out[ks] = jv
		}
		return out, nil
	case []any:
		for i, e := range x {
			jv, err := jsonValue(e, fmt.Sprintf("%s[%d]", at, i))
			if err != nil {
				return nil, err
			}
			x[i] = jv
		}
		return x, nil
	default:
		return v, nil
	}
}

func keyPath(at, k string) string {
	if at == "" {
		return k
	}
	return at + "." + k
}
