package structure

import (
	"fmt"
	"strings"
)

// Summary is a serializable view of a Structure.
type Summary struct {
	Identifier     string    `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Leaf           bool      `json:"leaf,omitempty" yaml:"leaf,omitempty"`
	CollectionType string    `json:"collection_type,omitempty" yaml:"collection_type,omitempty"`
	ChildrenKnown  bool      `json:"children_known" yaml:"children_known"`
	Len            int       `json:"len,omitempty" yaml:"len,omitempty"`
	WhenValues     []bool    `json:"when_values,omitempty" yaml:"when_values,omitempty"`
	Children       []Summary `json:"children,omitempty" yaml:"children,omitempty"`
}

// Summarize converts s into a Summary. Lengths are only reported for
// structures whose children are known.
func Summarize(s Structure) Summary {
	switch v := s.(type) {
	case Leaf:
		return Summary{Leaf: true, ChildrenKnown: true, Len: 1}
	case *Tree:
		sum := Summary{
			CollectionType: v.typeDesc.CollectionType(),
			ChildrenKnown:  true,
			WhenValues:     v.WhenValues(),
		}
		if n, ok := KnownLen(v); ok {
			sum.Len = n
		}
		for _, c := range v.children {
			child := Summarize(c.Structure)
			child.Identifier = c.Identifier
			sum.Children = append(sum.Children, child)
		}
		return sum
	case *UninitializedTree:
		return Summary{CollectionType: v.typeDesc.CollectionType()}
	default:
		panic(fmt.Errorf("%w: unknown structure %T", ErrPrecondition, s))
	}
}

// Describe renders s as an indented outline, one line per node.
func Describe(s Structure) string {
	var b strings.Builder
	describe(&b, "", s, 0)
	return b.String()
}

func describe(b *strings.Builder, identifier string, s Structure, depth int) {
	indent := strings.Repeat("  ", depth)
	label := identifier
	if label != "" {
		label += ": "
	}
	switch v := s.(type) {
	case Leaf:
		if identifier == "" {
			fmt.Fprintf(b, "%s(leaf)\n", indent)
		} else {
			fmt.Fprintf(b, "%s%s\n", indent, identifier)
		}
	case *Tree:
		if n, ok := KnownLen(v); ok {
			fmt.Fprintf(b, "%s%s%s [%d leaves]\n", indent, label, v.typeDesc.CollectionType(), n)
		} else {
			fmt.Fprintf(b, "%s%s%s\n", indent, label, v.typeDesc.CollectionType())
		}
		for _, c := range v.children {
			describe(b, c.Identifier, c.Structure, depth+1)
		}
	case *UninitializedTree:
		fmt.Fprintf(b, "%s%s%s [uninitialized]\n", indent, label, v.typeDesc.CollectionType())
	}
}
