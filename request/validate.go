package request

import (
	"fmt"
	"slices"

	"github.com/petal-labs/petalmatch/colltype"
	"github.com/petal-labs/petalmatch/core"
	"github.com/petal-labs/petalmatch/schemafmt"
)

// ValidateOptions configures Validate.
type ValidateOptions struct {
	// Types validates collection type tags. Defaults to a factory over the
	// global rank registry.
	Types *colltype.DescriptionFactory

	// AllowExternalCollections downgrades references to collections not
	// defined inline to warnings, for callers resolving them from a store.
	AllowExternalCollections bool
}

// Validate checks the request without resolving any structure:
//   - MR-000: kind and schema_version
//   - MR-001: duplicate collection IDs
//   - MR-002: inputs reference existing collections
//   - MR-003: input names present and unique
//   - MR-004: collection type tags use registered ranks
//   - MR-005: element nesting and fixed identifiers agree with the type
//   - MR-006: outputs reference existing inputs
//   - MR-007: subcollection types are subcollections of the input's type
//   - MR-008: element paths resolve to subcollections
//   - MR-009: collection outputs declare a structure
//   - MR-010: more than one when value requires a linked input
//   - MR-011: element identifiers are non-empty, free of "/" and unique
//     among siblings
func (d *Definition) Validate(opts ValidateOptions) []Diagnostic {
	types := opts.Types
	if types == nil {
		types = colltype.NewFactory(nil)
	}

	var diags []Diagnostic
	add := func(code, severity, path, format string, args ...any) {
		diags = append(diags, Diagnostic{
			Code:     code,
			Severity: severity,
			Message:  fmt.Sprintf(format, args...),
			Path:     path,
		})
	}

	// MR-000: header
	if _, _, err := schemafmt.NormalizeKind(d.Kind); err != nil {
		add("MR-000", SeverityError, "kind", "%v", err)
	}
	if err := schemafmt.ValidateSchemaVersion(d.SchemaVersion, schemafmt.SupportedRequestSchemaMajor); err != nil {
		add("MR-000", SeverityError, "schema_version", "%v", err)
	}

	collections := make(map[string]CollectionDef, len(d.Collections))
	for i, cd := range d.Collections {
		path := fmt.Sprintf("collections[%d]", i)
		// MR-001: duplicate collection IDs
		if _, dup := collections[cd.ID]; dup {
			add("MR-001", SeverityError, path+".id", "Duplicate collection ID %q", cd.ID)
			continue
		}
		collections[cd.ID] = cd

		// MR-004: collection type
		if err := types.Validate(cd.CollectionType); err != nil {
			add("MR-004", SeverityError, path+".collection_type", "Invalid collection type: %v", err)
			continue
		}
		// MR-005: element nesting
		diags = append(diags, validateElements(types, cd.CollectionType, cd.Elements, path+".elements")...)
	}

	inputs := make(map[string]bool, len(d.Inputs))
	hasLinked := false
	for i, in := range d.Inputs {
		path := fmt.Sprintf("inputs[%d]", i)

		// MR-003: input names
		switch {
		case in.Name == "":
			add("MR-003", SeverityError, path+".name", "Input name is required")
		case inputs[in.Name]:
			add("MR-003", SeverityError, path+".name", "Duplicate input name %q", in.Name)
		}
		inputs[in.Name] = true
		if in.IsLinked() {
			hasLinked = true
		}

		// MR-002: collection reference
		cd, ok := collections[in.Collection]
		if !ok {
			severity := SeverityError
			if opts.AllowExternalCollections {
				severity = SeverityWarning
			}
			add("MR-002", severity, path+".collection", "Input %q references unknown collection %q", in.Name, in.Collection)
			continue
		}
		if types.Validate(cd.CollectionType) != nil {
			continue
		}

		collectionType := cd.CollectionType
		// MR-008: element path
		if in.Element != "" {
			sub, ok := elementType(cd, in.Element)
			if !ok {
				add("MR-008", SeverityError, path+".element", "Element %q is not a subcollection of %q", in.Element, cd.ID)
				continue
			}
			collectionType = sub
		}

		// MR-007: subcollection type
		if in.SubcollectionType != "" && in.Element == "" {
			if !types.ForCollectionType(collectionType).HasSubcollectionsOfType(in.SubcollectionType) {
				add("MR-007", SeverityError, path+".subcollection_type",
					"Collection type %q has no subcollections of type %q", collectionType, in.SubcollectionType)
			}
		}
	}

	for i, out := range d.Outputs {
		path := fmt.Sprintf("outputs[%d]", i)
		if !out.Collection {
			continue
		}
		// MR-006: references
		if out.StructuredLike != "" && !inputs[out.StructuredLike] {
			add("MR-006", SeverityError, path+".structured_like", "Output %q is structured like unknown input %q", out.Name, out.StructuredLike)
		}
		if out.CollectionTypeSource != "" && !inputs[out.CollectionTypeSource] {
			add("MR-006", SeverityError, path+".collection_type_source", "Output %q takes its type from unknown input %q", out.Name, out.CollectionTypeSource)
		}
		if out.CollectionType != "" {
			if err := types.Validate(out.CollectionType); err != nil {
				add("MR-004", SeverityError, path+".collection_type", "Invalid collection type: %v", err)
			}
		}
		// MR-009: declared structure
		if out.StructuredLike == "" && out.CollectionType == "" && out.CollectionTypeSource == "" {
			add("MR-009", SeverityError, path, "Collection output %q declares no structured_like, collection_type or collection_type_source", out.Name)
		}
	}

	// MR-010: when values
	if len(d.When) > 1 && !hasLinked {
		add("MR-010", SeverityError, "when", "%d when values given but no input is linked", len(d.When))
	}

	return diags
}

// validateElements checks element identifiers and nesting against a
// collection type and the fixed identifiers of its rank.
func validateElements(types *colltype.DescriptionFactory, collectionType string, elements []ElementDef, path string) []Diagnostic {
	var diags []Diagnostic
	desc := types.ForCollectionType(collectionType)

	if def, ok := types.Registry().Get(desc.RankCollectionType()); ok && len(def.Identifiers) > 0 {
		ids := make([]string, 0, len(elements))
		for _, ed := range elements {
			ids = append(ids, ed.Identifier)
		}
		if !slices.Equal(ids, def.Identifiers) {
			diags = append(diags, Diagnostic{
				Code:     "MR-005",
				Severity: SeverityError,
				Message:  fmt.Sprintf("%q collection must have elements %v, got %v", desc.RankCollectionType(), def.Identifiers, ids),
				Path:     path,
			})
		}
	}

	sub, err := desc.SubcollectionTypeDescription()
	seen := make(map[string]bool, len(elements))
	for i, ed := range elements {
		elPath := fmt.Sprintf("%s[%d]", path, i)

		// MR-011: identifiers
		if idErr := core.CheckIdentifier(ed.Identifier); idErr != nil {
			diags = append(diags, Diagnostic{
				Code:     "MR-011",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Invalid element identifier: %v", idErr),
				Path:     elPath + ".identifier",
			})
		} else if seen[ed.Identifier] {
			diags = append(diags, Diagnostic{
				Code:     "MR-011",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Duplicate element identifier %q", ed.Identifier),
				Path:     elPath + ".identifier",
			})
		}
		seen[ed.Identifier] = true

		switch {
		case err == nil && ed.Elements == nil:
			diags = append(diags, Diagnostic{
				Code:     "MR-005",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Element %q of %q collection must be a %q subcollection", ed.Identifier, collectionType, sub.CollectionType()),
				Path:     elPath,
			})
		case err != nil && ed.Elements != nil:
			diags = append(diags, Diagnostic{
				Code:     "MR-005",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Element %q of %q collection must be a dataset", ed.Identifier, collectionType),
				Path:     elPath,
			})
		case err == nil:
			diags = append(diags, validateElements(types, sub.CollectionType(), ed.Elements, elPath+".elements")...)
		}
	}
	return diags
}

// elementType returns the collection type of the subcollection at path.
func elementType(cd CollectionDef, path string) (string, bool) {
	col, err := findElement(materializeCollection(cd), path)
	if err != nil {
		return "", false
	}
	return col.Child.CollectionType, true
}
