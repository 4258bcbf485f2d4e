package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/petalmatch/loader"
	"github.com/petal-labs/petalmatch/request"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a match request without matching",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("strict", false, "Treat warnings as errors")
	cmd.Flags().Bool("external", false, "Allow collections resolved from a store (reported as warnings)")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	format, _ := cmd.Flags().GetString("format")
	strict, _ := cmd.Flags().GetBool("strict")
	external, _ := cmd.Flags().GetBool("external")
	out := cmd.OutOrStdout()

	var diags []request.Diagnostic
	def, err := loader.ReadRequest(filePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return exitError(exitFileNotFound, "file not found: %s", filePath)
	case err != nil:
		diags = []request.Diagnostic{{
			Code:     "MR-000",
			Severity: request.SeverityError,
			Message:  fmt.Sprintf("Failed to parse file: %v", err),
		}}
	default:
		diags = def.Validate(request.ValidateOptions{AllowExternalCollections: external})
	}

	printValidateDiagnostics(out, diags, format)

	hasErrs := request.HasErrors(diags)
	hasWarns := len(request.Warnings(diags)) > 0
	if hasErrs || (strict && hasWarns) {
		return exitError(exitValidation, "validation failed")
	}
	return nil
}

func printValidateDiagnostics(w io.Writer, diags []request.Diagnostic, format string) {
	if format == "json" {
		printDiagnosticsJSON(w, diags)
		return
	}
	printDiagnosticsText(w, diags)
}

// printDiagnosticsText writes diagnostics as formatted text lines followed by
// a summary. Used by both the validate and plan commands.
func printDiagnosticsText(w io.Writer, diags []request.Diagnostic) {
	for _, d := range diags {
		sev := strings.ToUpper(d.Severity)
		if d.Path != "" {
			fmt.Fprintf(w, "%s [%s]: %s (at %s)\n", sev, d.Code, d.Message, d.Path)
		} else {
			fmt.Fprintf(w, "%s [%s]: %s\n", sev, d.Code, d.Message)
		}
	}

	errs := request.Errors(diags)
	warns := request.Warnings(diags)

	switch {
	case len(errs) == 0 && len(warns) == 0:
		fmt.Fprintln(w, "Valid!")
	case len(errs) == 0 && len(warns) > 0:
		fmt.Fprintf(w, "\nValid! (%d %s)\n", len(warns), pluralize("warning", len(warns)))
	default:
		fmt.Fprintf(w, "\n%d %s, %d %s\n",
			len(errs), pluralize("error", len(errs)),
			len(warns), pluralize("warning", len(warns)))
	}
}

func printDiagnosticsJSON(w io.Writer, diags []request.Diagnostic) {
	// Output an empty array rather than null when there are no diagnostics.
	if diags == nil {
		diags = []request.Diagnostic{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(diags)
}

func pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	return word + "s"
}
