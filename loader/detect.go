// Package loader reads match request documents in JSON or YAML form.
package loader

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/petal-labs/petalmatch/schemafmt"
)

// DetectKind determines the document kind from file content and path.
//  1. Determine parse format from extension (.yaml/.yml -> YAML, else JSON)
//  2. If parsed.kind is set, normalize it (legacy aliases are accepted)
//  3. If the document has "inputs" -> match_request
//  4. Else error
func DetectKind(data []byte, filePath string) (schemafmt.DocumentKind, error) {
	var raw map[string]any
	if isYAML(filePath) {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return "", fmt.Errorf("parsing YAML: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &raw); err != nil {
			return "", fmt.Errorf("parsing JSON: %w", err)
		}
	}

	if kind, ok := raw["kind"].(string); ok && kind != "" {
		normalized, _, err := schemafmt.NormalizeKind(kind)
		if err != nil {
			return "", err
		}
		return normalized, nil
	}

	if hasKey(raw, "inputs") {
		return schemafmt.KindMatchRequest, nil
	}

	return "", fmt.Errorf("unable to detect document kind: file has no kind and no inputs")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

// yamlToJSON converts YAML bytes to JSON bytes so both formats decode
// through the same json struct tags.
func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return json.Marshal(raw)
}
