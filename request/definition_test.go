package request

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/petal-labs/petalmatch/colltype"
	"github.com/petal-labs/petalmatch/core"
	"github.com/petal-labs/petalmatch/matching"
)

const sampleJSON = `{
  "kind": "match_request",
  "schema_version": "1.0.0",
  "collections": [
    {
      "id": "samples",
      "name": "Samples",
      "collection_type": "list:paired",
      "elements": [
        {"identifier": "s1", "elements": [
          {"identifier": "forward", "dataset": "d1", "permissions": [{"action": "access", "role_id": "r1"}]},
          {"identifier": "reverse", "dataset": "d2"}
        ]},
        {"identifier": "s2", "elements": [
          {"identifier": "forward", "dataset": "d3"},
          {"identifier": "reverse", "dataset": "d4"}
        ]}
      ]
    },
    {
      "id": "refs",
      "collection_type": "list",
      "elements": [
        {"identifier": "r1"},
        {"identifier": "r2"}
      ]
    }
  ],
  "inputs": [
    {"name": "reads", "collection": "samples", "subcollection_type": "paired"},
    {"name": "reference", "collection": "refs", "linked": false}
  ],
  "outputs": [
    {"name": "bam", "collection": false},
    {"name": "trimmed", "collection": true, "structured_like": "reads"}
  ]
}`

func loadSample(t *testing.T) *Definition {
	t.Helper()
	var d Definition
	if err := json.Unmarshal([]byte(sampleJSON), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return &d
}

func TestDefinition_Materialize(t *testing.T) {
	d := loadSample(t)
	cols := d.Materialize()

	samples := cols["samples"]
	if samples == nil || samples.Len() != 2 {
		t.Fatalf("samples = %+v, want 2 elements", samples)
	}
	pair := samples.At(0).Child
	if pair == nil || pair.CollectionType != "paired" || pair.ID != "samples/s1" {
		t.Fatalf("unexpected first pair %+v", pair)
	}
	if got := pair.At(0).Dataset.ID; got != "d1" {
		t.Fatalf("dataset ID = %q, want d1", got)
	}

	refs := cols["refs"]
	if got := refs.At(1).Dataset.ID; got != "refs/r2" {
		t.Fatalf("generated dataset ID = %q, want refs/r2", got)
	}

	want := []core.ActionTuple{{Action: "access", RoleID: "r1"}}
	if diff := cmp.Diff(want, samples.DatasetActionTuples()); diff != "" {
		t.Fatalf("action tuples mismatch (-want +got):\n%s", diff)
	}
}

func TestDefinition_CollectionsToMatch(t *testing.T) {
	d := loadSample(t)
	toMatch, err := d.CollectionsToMatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("CollectionsToMatch: %v", err)
	}

	reads, ok := toMatch.Get("reads")
	if !ok || !reads.Linked || reads.SubcollectionType != "paired" {
		t.Fatalf("unexpected reads entry %+v", reads)
	}
	inst, ok := reads.Handle.(*core.CollectionInstance)
	if !ok || inst.Name != "Samples" {
		t.Fatalf("unexpected reads handle %#v", reads.Handle)
	}
	ref, _ := toMatch.Get("reference")
	if ref.Linked {
		t.Fatal("reference should be unlinked")
	}

	m, err := matching.ForCollections(toMatch, colltype.NewFactory(nil))
	if err != nil {
		t.Fatalf("ForCollections: %v", err)
	}
	s, err := m.Structure()
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	if got := s.Len(); got != 4 {
		t.Fatalf("Len() = %d, want 4", got)
	}
}

type fakeSource map[string]*core.Collection

func (f fakeSource) LoadCollection(_ context.Context, id string) (*core.Collection, error) {
	col, ok := f[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return col, nil
}

func TestDefinition_CollectionsToMatch_ExternalSource(t *testing.T) {
	d := &Definition{Inputs: []InputDef{{Name: "a", Collection: "stored"}}}

	if _, err := d.CollectionsToMatch(context.Background(), nil); err == nil {
		t.Fatal("expected error for unknown collection without a source")
	}

	stored := &core.Collection{ID: "stored", CollectionType: "list"}
	toMatch, err := d.CollectionsToMatch(context.Background(), fakeSource{"stored": stored})
	if err != nil {
		t.Fatalf("CollectionsToMatch: %v", err)
	}
	entry, _ := toMatch.Get("a")
	if entry.Handle.DatasetCollection() != stored {
		t.Fatal("handle does not point at the stored collection")
	}

	if _, err := d.CollectionsToMatch(context.Background(), fakeSource{}); err == nil {
		t.Fatal("expected source error to propagate")
	}
}

func TestDefinition_ElementInput(t *testing.T) {
	d := loadSample(t)
	d.Inputs = []InputDef{{Name: "pair", Collection: "samples", Element: "s2", SubcollectionType: "paired"}}

	toMatch, err := d.CollectionsToMatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("CollectionsToMatch: %v", err)
	}
	entry, _ := toMatch.Get("pair")
	el, ok := entry.Handle.(*core.Element)
	if !ok || el.Identifier != "s2" {
		t.Fatalf("unexpected handle %#v", entry.Handle)
	}

	d.Inputs[0].Element = "s9"
	if _, err := d.CollectionsToMatch(context.Background(), nil); err == nil {
		t.Fatal("expected error for unknown element path")
	}
}
