// Package request defines the serializable match request document: the
// materialized collections available to a step, the step's collection
// inputs, optional when values and the step's declared outputs.
package request

import (
	"context"
	"fmt"
	"strings"

	"github.com/petal-labs/petalmatch/core"
	"github.com/petal-labs/petalmatch/matching"
	"github.com/petal-labs/petalmatch/structure"
)

// Definition is a match request as loaded from JSON or YAML.
type Definition struct {
	Kind          string                 `json:"kind,omitempty" yaml:"kind,omitempty"`
	SchemaVersion string                 `json:"schema_version,omitempty" yaml:"schema_version,omitempty"`
	ID            string                 `json:"id,omitempty" yaml:"id,omitempty"`
	Collections   []CollectionDef        `json:"collections,omitempty" yaml:"collections,omitempty"`
	Inputs        []InputDef             `json:"inputs" yaml:"inputs"`
	When          []bool                 `json:"when,omitempty" yaml:"when,omitempty"`
	Outputs       []structure.OutputSpec `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// CollectionDef is an inline materialized collection.
type CollectionDef struct {
	ID             string       `json:"id" yaml:"id"`
	Name           string       `json:"name,omitempty" yaml:"name,omitempty"`
	CollectionType string       `json:"collection_type" yaml:"collection_type"`
	Elements       []ElementDef `json:"elements" yaml:"elements"`
}

// ElementDef is an element of an inline collection. Elements with nested
// Elements are subcollections whose type is the parent's subcollection
// type; others are datasets.
type ElementDef struct {
	Identifier  string             `json:"identifier" yaml:"identifier"`
	Dataset     string             `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	Permissions []core.ActionTuple `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Elements    []ElementDef       `json:"elements,omitempty" yaml:"elements,omitempty"`
}

// InputDef is a collection input of the step.
type InputDef struct {
	Name       string `json:"name" yaml:"name"`
	Collection string `json:"collection" yaml:"collection"`

	// Element optionally selects a subcollection element by identifier
	// path ("s1" or "s1/inner") instead of the whole collection.
	Element string `json:"element,omitempty" yaml:"element,omitempty"`

	// Linked defaults to true.
	Linked            *bool  `json:"linked,omitempty" yaml:"linked,omitempty"`
	SubcollectionType string `json:"subcollection_type,omitempty" yaml:"subcollection_type,omitempty"`
}

// IsLinked reports whether the input is walked in lock-step.
func (in InputDef) IsLinked() bool {
	return in.Linked == nil || *in.Linked
}

// CollectionSource loads collections not defined inline.
type CollectionSource interface {
	LoadCollection(ctx context.Context, id string) (*core.Collection, error)
}

// Materialize converts the inline collections into core collections keyed
// by ID.
func (d *Definition) Materialize() map[string]*core.Collection {
	out := make(map[string]*core.Collection, len(d.Collections))
	for _, cd := range d.Collections {
		out[cd.ID] = materializeCollection(cd)
	}
	return out
}

func materializeElements(parentID, collectionType string, defs []ElementDef) []*core.Element {
	_, subType, _ := strings.Cut(collectionType, ":")
	elements := make([]*core.Element, 0, len(defs))
	for _, ed := range defs {
		el := &core.Element{Identifier: ed.Identifier}
		if ed.Elements != nil {
			childID := parentID + "/" + ed.Identifier
			el.Child = &core.Collection{
				ID:             childID,
				CollectionType: subType,
				Elements:       materializeElements(childID, subType, ed.Elements),
			}
		} else {
			id := ed.Dataset
			if id == "" {
				id = parentID + "/" + ed.Identifier
			}
			el.Dataset = &core.Dataset{ID: id, Permissions: ed.Permissions}
		}
		elements = append(elements, el)
	}
	return elements
}

// CollectionsToMatch builds the matching registry for the request's inputs.
// Collections missing from the document are loaded from source; a nil
// source makes them an error.
func (d *Definition) CollectionsToMatch(ctx context.Context, source CollectionSource) (*matching.CollectionsToMatch, error) {
	inline := d.Materialize()
	names := make(map[string]string, len(d.Collections))
	for _, cd := range d.Collections {
		names[cd.ID] = cd.Name
	}

	toMatch := matching.NewCollectionsToMatch()
	for _, in := range d.Inputs {
		col, ok := inline[in.Collection]
		if !ok {
			if source == nil {
				return nil, fmt.Errorf("input %q: unknown collection %q", in.Name, in.Collection)
			}
			loaded, err := source.LoadCollection(ctx, in.Collection)
			if err != nil {
				return nil, fmt.Errorf("input %q: loading collection %q: %w", in.Name, in.Collection, err)
			}
			col = loaded
		}

		var handle core.CollectionHandle = &core.CollectionInstance{
			ID:         in.Collection,
			Name:       names[in.Collection],
			Collection: col,
		}
		if in.Element != "" {
			el, err := findElement(col, in.Element)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", in.Name, err)
			}
			handle = el
		}

		opts := []matching.AddOption{matching.WithSubcollectionType(in.SubcollectionType)}
		if !in.IsLinked() {
			opts = append(opts, matching.Unlinked())
		}
		toMatch.Add(in.Name, handle, opts...)
	}
	return toMatch, nil
}

// findElement resolves a "/"-separated identifier path to a subcollection
// element.
func findElement(col *core.Collection, path string) (*core.Element, error) {
	var found *core.Element
	current := col
	for _, id := range strings.Split(path, "/") {
		found = nil
		for _, el := range current.Elements {
			if el.Identifier == id {
				found = el
				break
			}
		}
		if found == nil || !found.IsCollection() {
			return nil, fmt.Errorf("element %q not found or not a subcollection in %q", path, col.ID)
		}
		current = found.Child
	}
	return found, nil
}

func materializeCollection(cd CollectionDef) *core.Collection {
	return &core.Collection{
		ID:             cd.ID,
		CollectionType: cd.CollectionType,
		Elements:       materializeElements(cd.ID, cd.CollectionType, cd.Elements),
	}
}
