package loader

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/petal-labs/petalmatch/request"
)

func testdataPath(name string) string {
	return filepath.Join("testdata", name)
}

func TestLoadRequest_JSON(t *testing.T) {
	def, err := LoadRequest(testdataPath("pairs.json"), request.ValidateOptions{})
	if err != nil {
		t.Fatalf("LoadRequest() error = %v", err)
	}
	if def.ID != "trim_pairs" {
		t.Errorf("ID = %q, want %q", def.ID, "trim_pairs")
	}
	if len(def.Inputs) != 1 || def.Inputs[0].SubcollectionType != "paired" {
		t.Errorf("unexpected inputs %+v", def.Inputs)
	}
	if len(def.When) != 2 || !def.When[0] || def.When[1] {
		t.Errorf("When = %v, want [true false]", def.When)
	}
	if len(def.Outputs) != 1 || def.Outputs[0].StructuredLike != "reads" {
		t.Errorf("unexpected outputs %+v", def.Outputs)
	}
}

func TestLoadRequest_YAML(t *testing.T) {
	def, err := LoadRequest(testdataPath("pairs.yaml"), request.ValidateOptions{})
	if err != nil {
		t.Fatalf("LoadRequest() error = %v", err)
	}
	if def.ID != "trim_pairs_yaml" {
		t.Errorf("ID = %q, want %q", def.ID, "trim_pairs_yaml")
	}
	if got := def.Collections[0].Elements[0].Elements[1].Identifier; got != "reverse" {
		t.Errorf("nested identifier = %q, want reverse", got)
	}
}

func TestLoadRequest_ValidationErrors(t *testing.T) {
	_, err := LoadRequest(testdataPath("invalid.json"), request.ValidateOptions{})
	var diagErr *DiagnosticError
	if !errors.As(err, &diagErr) {
		t.Fatalf("error = %v, want *DiagnosticError", err)
	}
	if got := len(request.Errors(diagErr.Diagnostics)); got != 2 {
		t.Fatalf("got %d errors, want 2: %+v", got, diagErr.Diagnostics)
	}
	if want := "2 validation errors"; len(err.Error()) < len(want) || err.Error()[:len(want)] != want {
		t.Errorf("Error() = %q, want prefix %q", err.Error(), want)
	}
}

func TestLoadRequest_ExternalCollectionsAllowed(t *testing.T) {
	_, err := LoadRequest(testdataPath("invalid.json"), request.ValidateOptions{AllowExternalCollections: true})
	var diagErr *DiagnosticError
	if !errors.As(err, &diagErr) {
		t.Fatalf("error = %v, want *DiagnosticError", err)
	}
	errs := request.Errors(diagErr.Diagnostics)
	if len(errs) != 1 || errs[0].Code != "MR-003" {
		t.Fatalf("errors = %+v, want only MR-003", errs)
	}
	if err.Error() != "validation error: "+errs[0].Message {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestLoadRequest_MissingFile(t *testing.T) {
	_, err := LoadRequest(testdataPath("nope.json"), request.ValidateOptions{})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("error = %v, want fs.ErrNotExist", err)
	}
}

func TestReadRequest_SkipsValidation(t *testing.T) {
	def, err := ReadRequest(testdataPath("invalid.json"))
	if err != nil {
		t.Fatalf("ReadRequest() error = %v", err)
	}
	if len(def.Inputs) != 2 {
		t.Errorf("Inputs = %d, want 2", len(def.Inputs))
	}
}
