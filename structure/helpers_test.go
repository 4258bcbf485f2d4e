package structure

import (
	"errors"
	"testing"

	"github.com/petal-labs/petalmatch/colltype"
	"github.com/petal-labs/petalmatch/core"
)

var testTypes = colltype.NewFactory(nil)

// flatCollection builds a single-rank collection with one leaf dataset per
// identifier. Dataset IDs are prefix + identifier.
func flatCollection(collectionType, prefix string, identifiers ...string) *core.Collection {
	col := &core.Collection{ID: prefix, CollectionType: collectionType}
	for _, id := range identifiers {
		col.Elements = append(col.Elements, &core.Element{
			Identifier: id,
			Dataset:    &core.Dataset{ID: prefix + id},
		})
	}
	return col
}

// listOfPairs builds a list:paired collection with one pair per identifier.
func listOfPairs(prefix string, identifiers ...string) *core.Collection {
	col := &core.Collection{ID: prefix, CollectionType: "list:paired"}
	for _, id := range identifiers {
		col.Elements = append(col.Elements, &core.Element{
			Identifier: id,
			Child:      flatCollection("paired", prefix+id+"/", "forward", "reverse"),
		})
	}
	return col
}

func mustTree(t *testing.T, col *core.Collection) *Tree {
	t.Helper()
	tree, err := ForDatasetCollection(col, testTypes.ForCollectionType(col.CollectionType))
	if err != nil {
		t.Fatalf("ForDatasetCollection(%s): %v", col.CollectionType, err)
	}
	return tree
}

// expectPanic runs fn and fails unless it panics with an error wrapping want.
func expectPanic(t *testing.T, want error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected panic wrapping %v", want)
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, want) {
			t.Fatalf("got panic %v, want %v", r, want)
		}
	}()
	fn()
}
