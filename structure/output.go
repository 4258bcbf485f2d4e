package structure

import (
	"errors"
	"fmt"

	"github.com/petal-labs/petalmatch/colltype"
)

// ErrUnresolvableOutput is returned when an output's collection type cannot
// be determined from its declaration.
var ErrUnresolvableOutput = errors.New("failed to determine collection type for output")

// OutputSpec declares the shape of a step output.
type OutputSpec struct {
	Name string `json:"name" yaml:"name"`

	// Collection is false for outputs producing a single dataset.
	Collection bool `json:"collection,omitempty" yaml:"collection,omitempty"`

	// StructuredLike names an input whose sliced structure the output mirrors.
	StructuredLike string `json:"structured_like,omitempty" yaml:"structured_like,omitempty"`

	// CollectionType is an explicit type. It overrides StructuredLike when
	// the two disagree.
	CollectionType string `json:"collection_type,omitempty" yaml:"collection_type,omitempty"`

	// CollectionTypeSource names an input whose collection type is reused.
	CollectionTypeSource string `json:"collection_type_source,omitempty" yaml:"collection_type_source,omitempty"`
}

// InputStructureFunc returns the sliced structure of a named step input.
type InputStructureFunc func(inputName string) (Structure, error)

// ToolOutputToStructure resolves the structure a step output will have
// within a single execution.
func ToolOutputToStructure(resolve InputStructureFunc, out OutputSpec, types colltype.Factory) (Structure, error) {
	if !out.Collection {
		return Leaf{}, nil
	}

	if out.StructuredLike != "" {
		tree, err := resolve(out.StructuredLike)
		if err != nil {
			return nil, fmt.Errorf("output %q structured like %q: %w", out.Name, out.StructuredLike, err)
		}
		if out.CollectionType != "" {
			if resolved, _ := CollectionType(tree); resolved != out.CollectionType {
				return NewUninitializedTree(types.ForCollectionType(out.CollectionType)), nil
			}
		}
		return tree, nil
	}

	collectionType := out.CollectionType
	if collectionType == "" && out.CollectionTypeSource != "" {
		source, err := resolve(out.CollectionTypeSource)
		if err != nil {
			return nil, fmt.Errorf("output %q collection type source %q: %w", out.Name, out.CollectionTypeSource, err)
		}
		collectionType, _ = CollectionType(source)
	}
	if collectionType == "" {
		return nil, fmt.Errorf("%w %q", ErrUnresolvableOutput, out.Name)
	}
	return NewUninitializedTree(types.ForCollectionType(collectionType)), nil
}
