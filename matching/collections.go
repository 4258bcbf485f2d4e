// Package matching decides whether collection inputs of a step can be
// iterated together, computes the combined structure of a mapped-over
// execution, and enumerates the slices downstream execution runs once each.
//
// Linked inputs are walked in lock-step (element i of every input forms one
// slice) and must share a structure. Unlinked inputs are independent axes
// combined by cross product.
package matching

import (
	"iter"
	"slices"

	"github.com/petal-labs/petalmatch/core"
)

// ToMatch is a collection input awaiting matching.
type ToMatch struct {
	InputName string
	Handle    core.CollectionHandle

	// SubcollectionType maps over subcollections of this type instead of
	// individual datasets. Empty maps over leaves.
	SubcollectionType string

	// Linked inputs are walked in lock-step with each other.
	Linked bool
}

// AddOption configures an input registered with CollectionsToMatch.Add.
type AddOption func(*ToMatch)

// WithSubcollectionType maps over subcollections of the given type.
func WithSubcollectionType(collectionType string) AddOption {
	return func(m *ToMatch) {
		m.SubcollectionType = collectionType
	}
}

// Unlinked registers the input as an independent cross-product axis.
func Unlinked() AddOption {
	return func(m *ToMatch) {
		m.Linked = false
	}
}

// CollectionsToMatch is a registry of named collection inputs. Iteration is
// always sorted by input name.
type CollectionsToMatch struct {
	entries map[string]ToMatch
}

// NewCollectionsToMatch returns an empty registry.
func NewCollectionsToMatch() *CollectionsToMatch {
	return &CollectionsToMatch{entries: make(map[string]ToMatch)}
}

// Add registers an input. Inputs are linked unless Unlinked is given. A
// previous entry with the same name is replaced.
func (c *CollectionsToMatch) Add(inputName string, handle core.CollectionHandle, opts ...AddOption) {
	m := ToMatch{
		InputName: inputName,
		Handle:    handle,
		Linked:    true,
	}
	for _, opt := range opts {
		opt(&m)
	}
	c.entries[inputName] = m
}

// HasCollections reports whether any input is registered.
func (c *CollectionsToMatch) HasCollections() bool {
	return c != nil && len(c.entries) > 0
}

// Len returns the number of registered inputs.
func (c *CollectionsToMatch) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Get returns the entry for an input.
func (c *CollectionsToMatch) Get(inputName string) (ToMatch, bool) {
	m, ok := c.entries[inputName]
	return m, ok
}

// Items yields entries sorted by input name.
func (c *CollectionsToMatch) Items() iter.Seq2[string, ToMatch] {
	return func(yield func(string, ToMatch) bool) {
		if c == nil {
			return
		}
		names := make([]string, 0, len(c.entries))
		for name := range c.entries {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			if !yield(name, c.entries[name]) {
				return
			}
		}
	}
}
