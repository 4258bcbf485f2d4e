package request

// Diagnostic represents a validation error or warning produced while
// validating a match request.
type Diagnostic struct {
	Code     string `json:"code" yaml:"code"`                     // e.g. "MR-001"
	Severity string `json:"severity" yaml:"severity"`             // "error" or "warning"
	Message  string `json:"message" yaml:"message"`               // human-readable description
	Path     string `json:"path,omitempty" yaml:"path,omitempty"` // JSON path to offending field
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// HasErrors returns true if any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity diagnostics.
func Errors(diags []Diagnostic) []Diagnostic {
	var errs []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityError {
			errs = append(errs, d)
		}
	}
	return errs
}

// Warnings returns only the warning-severity diagnostics.
func Warnings(diags []Diagnostic) []Diagnostic {
	var warns []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityWarning {
			warns = append(warns, d)
		}
	}
	return warns
}
