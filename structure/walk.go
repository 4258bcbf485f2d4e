package structure

import (
	"fmt"
	"iter"

	"github.com/petal-labs/petalmatch/core"
)

// Slice is one unit of downstream execution: the element each input
// contributes at the same position, plus the when value governing it.
type Slice struct {
	Elements map[string]*core.Element
	// When is nil when no when values were assigned.
	When *bool
}

// Walk enumerates slices over inputs in lock-step. Every input must have
// already matched t (see CanMatch). At each top-level index the element of
// every input is taken at that index; non-leaf children are descended into
// simultaneously. Slices below a top-level child carry that child's when
// value; when values of nested trees are not consulted.
func (t *Tree) Walk(inputs map[string]core.CollectionHandle) iter.Seq[Slice] {
	collections := make(map[string]*core.Collection, len(inputs))
	for name, h := range inputs {
		collections[name] = h.DatasetCollection()
	}
	return func(yield func(Slice) bool) {
		t.walk(collections, t.whenFor, yield)
	}
}

func (t *Tree) walk(collections map[string]*core.Collection, when func(int) *bool, yield func(Slice) bool) bool {
	for i, child := range t.children {
		w := when(i)
		elements := make(map[string]*core.Element, len(collections))
		for name, col := range collections {
			if i >= col.Len() {
				panic(fmt.Errorf("%w: input %q has %d elements, structure needs index %d",
					ErrPrecondition, name, col.Len(), i))
			}
			elements[name] = col.At(i)
		}

		switch sub := child.Structure.(type) {
		case Leaf:
			if !yield(Slice{Elements: elements, When: w}) {
				return false
			}
		case *Tree:
			subCollections := make(map[string]*core.Collection, len(elements))
			for name, el := range elements {
				subCollections[name] = el.Child
			}
			outer := func(int) *bool { return w }
			if !sub.walk(subCollections, outer, yield) {
				return false
			}
		default:
			panic(fmt.Errorf("%w: cannot walk %T child %q", ErrPrecondition, child.Structure, child.Identifier))
		}
	}
	return true
}
