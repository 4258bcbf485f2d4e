package structure

import (
	"errors"
	"fmt"

	"github.com/petal-labs/petalmatch/colltype"
	"github.com/petal-labs/petalmatch/core"
)

// ErrShapeMismatch is returned when a materialized collection disagrees with
// its declared collection type (e.g. a "list:paired" element with no child
// collection).
var ErrShapeMismatch = errors.New("structure: collection contents do not match collection type")

// ForDatasetCollection builds a Tree from a materialized collection, in
// element order. When typeDesc has subcollections each element's child
// collection is walked with the subcollection type; otherwise every element
// is a Leaf.
func ForDatasetCollection(collection *core.Collection, typeDesc colltype.Description) (*Tree, error) {
	if collection == nil {
		return nil, fmt.Errorf("%w: nil collection for type %q", ErrShapeMismatch, typeDesc.CollectionType())
	}

	var subDesc colltype.Description
	if typeDesc.HasSubcollections() {
		d, err := typeDesc.SubcollectionTypeDescription()
		if err != nil {
			return nil, err
		}
		subDesc = d
	}

	children := make([]Child, 0, len(collection.Elements))
	for _, el := range collection.Elements {
		if subDesc == nil {
			children = append(children, Child{Identifier: el.Identifier, Structure: Leaf{}})
			continue
		}
		if !el.IsCollection() {
			return nil, fmt.Errorf("%w: element %q of %q collection has no child collection",
				ErrShapeMismatch, el.Identifier, typeDesc.CollectionType())
		}
		sub, err := ForDatasetCollection(el.Child, subDesc)
		if err != nil {
			return nil, fmt.Errorf("element %q: %w", el.Identifier, err)
		}
		children = append(children, Child{Identifier: el.Identifier, Structure: sub})
	}

	return &Tree{children: children, typeDesc: typeDesc}, nil
}

// GetStructure resolves the structure of a collection input. With a
// non-empty leafSubcollectionType the trailing subcollection type is
// stripped so that whole subcollections become leaves. A subcollection
// element handle mapped over a subcollection type yields an
// UninitializedTree of that type.
func GetStructure(handle core.CollectionHandle, types colltype.Factory, leafSubcollectionType string) (Structure, error) {
	collection := handle.DatasetCollection()
	if collection == nil {
		return nil, fmt.Errorf("%w: handle has no collection", ErrShapeMismatch)
	}
	typeDesc := types.ForCollectionType(collection.CollectionType)

	if leafSubcollectionType != "" {
		if _, ok := handle.(*core.Element); ok {
			return NewUninitializedTree(types.ForCollectionType(leafSubcollectionType)), nil
		}
		effective, err := typeDesc.EffectiveCollectionTypeDescription(leafSubcollectionType)
		if err != nil {
			return nil, err
		}
		typeDesc = effective
	}

	return ForDatasetCollection(collection, typeDesc)
}
