// Package structure describes the shape of (possibly nested) collections
// and implements the matching, multiplication and lock-step walking rules
// used to plan mapped-over step executions.
//
// A Structure is one of three variants:
//   - Leaf: a single non-collection item, the multiplicative identity
//   - *Tree: a collection with known, ordered children
//   - *UninitializedTree: a collection whose type is known but whose
//     children are not (e.g. an output mirroring an unmaterialized input)
//
// Structures are immutable. Operations return new values and never alias
// mutable state of their operands.
package structure

import (
	"errors"
	"fmt"

	"github.com/petal-labs/petalmatch/colltype"
)

var (
	// ErrUnknownLength is the panic value raised by Len on an
	// UninitializedTree.
	ErrUnknownLength = errors.New("structure: length of uninitialized tree is unknown")

	// ErrPrecondition is the panic value raised when an operation is applied
	// to a variant it is not defined for (e.g. CanMatch on a leaf).
	ErrPrecondition = errors.New("structure: precondition violated")

	// ErrInvalidWhenValues is returned when the number of when values is
	// neither one nor the number of children.
	ErrInvalidWhenValues = errors.New("structure: invalid when values")
)

// Structure is the sealed sum type of collection shapes. The unexported
// method restricts implementations to Leaf, *Tree and *UninitializedTree.
type Structure interface {
	IsLeaf() bool
	// ChildrenKnown is false only for *UninitializedTree.
	ChildrenKnown() bool
	// Len returns the total number of leaves. It panics with
	// ErrUnknownLength for an *UninitializedTree.
	Len() int
	Clone() Structure
	// Multiply nests other under every leaf of the receiver.
	Multiply(other Structure) Structure

	sealed()
}

// Leaf represents a single non-collection item.
type Leaf struct{}

func (Leaf) IsLeaf() bool        { return true }
func (Leaf) ChildrenKnown() bool { return true }
func (Leaf) Len() int            { return 1 }
func (Leaf) Clone() Structure    { return Leaf{} }

// Multiply returns a copy of other: Leaf * X == X.
func (Leaf) Multiply(other Structure) Structure {
	return other.Clone()
}

func (Leaf) sealed() {}

// Child is a named branch of a Tree.
type Child struct {
	Identifier string
	Structure  Structure
}

// Tree is a collection structure with known, ordered children.
type Tree struct {
	children   []Child
	typeDesc   colltype.Description
	whenValues []bool
}

// NewTree builds a tree from children in element order. The slice is
// copied.
func NewTree(children []Child, typeDesc colltype.Description) *Tree {
	return &Tree{
		children: append([]Child(nil), children...),
		typeDesc: typeDesc,
	}
}

func (t *Tree) IsLeaf() bool        { return false }
func (t *Tree) ChildrenKnown() bool { return true }

func (t *Tree) Len() int {
	n := 0
	for _, c := range t.children {
		n += c.Structure.Len()
	}
	return n
}

func (t *Tree) Clone() Structure {
	return t.clone()
}

func (t *Tree) clone() *Tree {
	return &Tree{
		children:   append([]Child(nil), t.children...),
		typeDesc:   t.typeDesc,
		whenValues: append([]bool(nil), t.whenValues...),
	}
}

// Multiply broadcasts other into every branch. The resulting collection
// type is this type multiplied by other's type.
func (t *Tree) Multiply(other Structure) Structure {
	var otherDesc colltype.Description
	switch o := other.(type) {
	case Leaf:
		return t.Clone()
	case *Tree:
		otherDesc = o.typeDesc
	case *UninitializedTree:
		otherDesc = o.typeDesc
	default:
		panic(fmt.Errorf("%w: unknown structure %T", ErrPrecondition, other))
	}

	children := make([]Child, len(t.children))
	for i, c := range t.children {
		children[i] = Child{Identifier: c.Identifier, Structure: c.Structure.Multiply(other)}
	}
	return &Tree{
		children: children,
		typeDesc: t.typeDesc.Multiply(otherDesc),
	}
}

// CanMatch reports whether other can be walked in lock-step with t: same
// collection type, same number of children, and recursively the same
// leaf/non-leaf layout. other must be a *Tree; any other variant is a
// caller error and panics with ErrPrecondition.
func (t *Tree) CanMatch(other Structure) bool {
	o, ok := other.(*Tree)
	if !ok {
		panic(fmt.Errorf("%w: cannot match tree against %T", ErrPrecondition, other))
	}
	if !t.typeDesc.CanMatchType(o.typeDesc) {
		return false
	}
	if len(t.children) != len(o.children) {
		return false
	}
	for i, mine := range t.children {
		theirs := o.children[i]
		if mine.Structure.IsLeaf() != theirs.Structure.IsLeaf() {
			return false
		}
		if mine.Structure.IsLeaf() {
			continue
		}
		sub, ok := mine.Structure.(*Tree)
		if !ok {
			panic(fmt.Errorf("%w: cannot match %T child %q", ErrPrecondition, mine.Structure, mine.Identifier))
		}
		if !sub.CanMatch(theirs.Structure) {
			return false
		}
	}
	return true
}

// Children returns a copy of the ordered children.
func (t *Tree) Children() []Child {
	return append([]Child(nil), t.children...)
}

// NumChildren returns the number of direct children.
func (t *Tree) NumChildren() int {
	return len(t.children)
}

// CollectionTypeDescription returns the tree's collection type.
func (t *Tree) CollectionTypeDescription() colltype.Description {
	return t.typeDesc
}

// WhenValues returns a copy of the when values, or nil if none are set.
func (t *Tree) WhenValues() []bool {
	if t.whenValues == nil {
		return nil
	}
	return append([]bool(nil), t.whenValues...)
}

// WithWhenValues returns a copy of t tagged with when values. values must
// be empty (clears), hold a single value broadcast to every child, or hold
// one value per child.
func (t *Tree) WithWhenValues(values []bool) (*Tree, error) {
	n := len(values)
	if n > 1 && n != len(t.children) {
		return nil, fmt.Errorf("%w: got %d values for %d children", ErrInvalidWhenValues, n, len(t.children))
	}
	out := t.clone()
	out.whenValues = nil
	if n > 0 {
		out.whenValues = append([]bool(nil), values...)
	}
	return out, nil
}

// whenFor resolves the when value of the child at index i.
func (t *Tree) whenFor(i int) *bool {
	switch len(t.whenValues) {
	case 0:
		return nil
	case 1:
		v := t.whenValues[0]
		return &v
	default:
		v := t.whenValues[i]
		return &v
	}
}

func (t *Tree) sealed() {}

// UninitializedTree is a collection whose type is known but whose depth and
// children are not.
type UninitializedTree struct {
	typeDesc colltype.Description
}

// NewUninitializedTree returns an uninitialized tree of the given type.
func NewUninitializedTree(typeDesc colltype.Description) *UninitializedTree {
	return &UninitializedTree{typeDesc: typeDesc}
}

func (u *UninitializedTree) IsLeaf() bool        { return false }
func (u *UninitializedTree) ChildrenKnown() bool { return false }

// Len always panics: the leaf count of an uninitialized tree is unknown.
func (u *UninitializedTree) Len() int {
	panic(fmt.Errorf("%w (%s)", ErrUnknownLength, u.typeDesc.CollectionType()))
}

func (u *UninitializedTree) Clone() Structure {
	return &UninitializedTree{typeDesc: u.typeDesc}
}

func (u *UninitializedTree) Multiply(other Structure) Structure {
	switch o := other.(type) {
	case Leaf:
		return u.Clone()
	case *Tree:
		return &UninitializedTree{typeDesc: u.typeDesc.Multiply(o.typeDesc)}
	case *UninitializedTree:
		return &UninitializedTree{typeDesc: u.typeDesc.Multiply(o.typeDesc)}
	default:
		panic(fmt.Errorf("%w: unknown structure %T", ErrPrecondition, other))
	}
}

// CollectionTypeDescription returns the tree's collection type.
func (u *UninitializedTree) CollectionTypeDescription() colltype.Description {
	return u.typeDesc
}

func (u *UninitializedTree) sealed() {}

// CanMatch reports whether b can be walked in lock-step with a. Only
// *Tree operands are defined; other variants panic with ErrPrecondition.
func CanMatch(a, b Structure) bool {
	switch s := a.(type) {
	case *Tree:
		return s.CanMatch(b)
	case Leaf, *UninitializedTree:
		panic(fmt.Errorf("%w: cannot match %T against %T", ErrPrecondition, a, b))
	default:
		panic(fmt.Errorf("%w: unknown structure %T", ErrPrecondition, a))
	}
}

// CollectionType returns the collection type tag of s and false for a Leaf.
func CollectionType(s Structure) (string, bool) {
	switch v := s.(type) {
	case *Tree:
		return v.typeDesc.CollectionType(), true
	case *UninitializedTree:
		return v.typeDesc.CollectionType(), true
	default:
		return "", false
	}
}

var (
	_ Structure = Leaf{}
	_ Structure = (*Tree)(nil)
	_ Structure = (*UninitializedTree)(nil)
)

// KnownLen returns the leaf count of s, or false if any part of s is an
// UninitializedTree. Unlike Len it never panics.
func KnownLen(s Structure) (int, bool) {
	switch v := s.(type) {
	case Leaf:
		return 1, true
	case *Tree:
		n := 0
		for _, c := range v.children {
			cn, ok := KnownLen(c.Structure)
			if !ok {
				return 0, false
			}
			n += cn
		}
		return n, true
	default:
		return 0, false
	}
}
