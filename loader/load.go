package loader

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/petal-labs/petalmatch/request"
	"github.com/petal-labs/petalmatch/schemafmt"
)

// LoadRequest reads a match request file, validates it and returns the
// definition. Validation failures are returned as *DiagnosticError.
func LoadRequest(path string, opts request.ValidateOptions) (*request.Definition, error) {
	def, err := ReadRequest(path)
	if err != nil {
		return nil, err
	}

	diags := def.Validate(opts)
	if request.HasErrors(diags) {
		return nil, &DiagnosticError{Diagnostics: diags}
	}
	return def, nil
}

// ReadRequest reads and decodes a match request file without validating it.
func ReadRequest(path string) (*request.Definition, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return ParseRequest(data, path)
}

// ParseRequest decodes a match request. path only selects the format.
func ParseRequest(data []byte, path string) (*request.Definition, error) {
	kind, err := DetectKind(data, path)
	if err != nil {
		return nil, err
	}
	if kind != schemafmt.KindMatchRequest {
		return nil, fmt.Errorf("unsupported document kind %q", kind)
	}

	jsonData, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}

	var def request.Definition
	if err := json.Unmarshal(jsonData, &def); err != nil {
		return nil, fmt.Errorf("parsing match request: %w", err)
	}
	return &def, nil
}

func toJSON(data []byte, path string) ([]byte, error) {
	if isYAML(path) {
		return yamlToJSON(data)
	}
	return data, nil
}

// DiagnosticError wraps validation diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []request.Diagnostic
}

func (e *DiagnosticError) Error() string {
	errs := request.Errors(e.Diagnostics)
	if len(errs) == 1 {
		return fmt.Sprintf("validation error: %s", errs[0].Message)
	}
	return fmt.Sprintf("%d validation errors (first: %s)", len(errs), errs[0].Message)
}
