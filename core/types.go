// Package core provides the materialized collection model consumed by the
// PetalMatch structure engine.
//
// This package contains:
//   - Collection model: Collection, Element, Dataset, ActionTuple
//   - Handles: CollectionHandle and CollectionInstance (a named, top-level
//     handle on a materialized collection)
//
// Values in this package are snapshots. The engine never mutates them, and
// walking a collection twice is safe as long as callers do not mutate it in
// between.
package core

// ActionTuple is a dataset permission pair (action, role) carried by leaf
// datasets and propagated to outputs produced by mapping over a collection.
type ActionTuple struct {
	Action string `json:"action" yaml:"action"`
	RoleID string `json:"role_id" yaml:"role_id"`
}

// Dataset is the leaf item referenced by a non-collection element.
type Dataset struct {
	ID          string        `json:"id"`
	Permissions []ActionTuple `json:"permissions,omitempty"`
}

// Element is a single entry within a Collection. Exactly one of Dataset or
// Child is expected to be set: Child for nested collections, Dataset for
// leaves.
type Element struct {
	Identifier string      // stable within the parent collection
	Dataset    *Dataset    // leaf payload
	Child      *Collection // nested collection, nil for leaves
}

// IsCollection reports whether the element wraps a nested collection.
func (e *Element) IsCollection() bool {
	return e != nil && e.Child != nil
}

// DatasetCollection returns the nested collection so an element can be
// used as a CollectionHandle when mapping over a subcollection.
func (e *Element) DatasetCollection() *Collection {
	return e.Child
}

// Collection is an ordered group of elements. Element order is semantically
// significant and preserved everywhere.
type Collection struct {
	ID             string
	CollectionType string // e.g. "list", "paired", "list:paired"
	Elements       []*Element
}

// Len returns the number of top-level elements.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Elements)
}

// At returns the element at index i.
func (c *Collection) At(i int) *Element {
	return c.Elements[i]
}

// DatasetActionTuples returns the de-duplicated permission tuples of every
// leaf dataset in the collection, in first-seen order.
func (c *Collection) DatasetActionTuples() []ActionTuple {
	seen := make(map[ActionTuple]bool)
	var tuples []ActionTuple
	var walk func(col *Collection)
	walk = func(col *Collection) {
		if col == nil {
			return
		}
		for _, el := range col.Elements {
			if el.IsCollection() {
				walk(el.Child)
				continue
			}
			if el.Dataset == nil {
				continue
			}
			for _, t := range el.Dataset.Permissions {
				if seen[t] {
					continue
				}
				seen[t] = true
				tuples = append(tuples, t)
			}
		}
	}
	walk(c)
	return tuples
}

// CollectionHandle is anything that resolves to a materialized collection:
// a top-level CollectionInstance or a subcollection Element.
type CollectionHandle interface {
	DatasetCollection() *Collection
}

// CollectionInstance is a named, top-level handle on a collection (the
// history-level association users select as a step input).
type CollectionInstance struct {
	ID         string
	Name       string
	Collection *Collection
}

// DatasetCollection returns the underlying collection.
func (h *CollectionInstance) DatasetCollection() *Collection {
	return h.Collection
}

var (
	_ CollectionHandle = (*CollectionInstance)(nil)
	_ CollectionHandle = (*Element)(nil)
)
