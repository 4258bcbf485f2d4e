package matching

import (
	"fmt"

	"github.com/petal-labs/petalmatch/colltype"
	"github.com/petal-labs/petalmatch/structure"
)

// SlicedInputStructure returns the structure a single execution sees for a
// linked input: a Leaf when mapping over datasets, otherwise the structure
// of the subcollection in the first slice. Inputs with no slices yield an
// UninitializedTree of the subcollection type.
func (m *MatchingCollections) SlicedInputStructure(inputName string, types colltype.Factory) (structure.Structure, error) {
	subType, ok := m.subcollectionTypes[inputName]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownInput, inputName)
	}
	if subType == "" {
		return structure.Leaf{}, nil
	}

	slices, err := m.SliceCollections()
	if err != nil {
		return nil, err
	}
	for s := range slices {
		el := s.Elements[inputName]
		if !el.IsCollection() {
			return structure.Leaf{}, nil
		}
		return structure.ForDatasetCollection(el.Child, types.ForCollectionType(el.Child.CollectionType))
	}
	return structure.NewUninitializedTree(types.ForCollectionType(subType)), nil
}

// MappedOutputStructure returns the full structure of an output produced
// by mapping the step over the matched collections: the combined structure
// with the per-execution output structure nested under every leaf.
func (m *MatchingCollections) MappedOutputStructure(out structure.OutputSpec, resolve structure.InputStructureFunc, types colltype.Factory) (structure.Structure, error) {
	outputStructure, err := structure.ToolOutputToStructure(resolve, out, types)
	if err != nil {
		return nil, err
	}
	combined, err := m.Structure()
	if err != nil {
		return nil, err
	}
	if combined == nil {
		return outputStructure, nil
	}
	return combined.Multiply(outputStructure), nil
}
