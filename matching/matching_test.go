package matching

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/petal-labs/petalmatch/colltype"
	"github.com/petal-labs/petalmatch/core"
	"github.com/petal-labs/petalmatch/structure"
)

var testTypes = colltype.NewFactory(nil)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func flatInstance(collectionType, prefix string, identifiers ...string) *core.CollectionInstance {
	col := &core.Collection{ID: prefix, CollectionType: collectionType}
	for _, id := range identifiers {
		col.Elements = append(col.Elements, &core.Element{
			Identifier: id,
			Dataset:    &core.Dataset{ID: prefix + id},
		})
	}
	return &core.CollectionInstance{ID: prefix, Collection: col}
}

func pairsInstance(prefix string, identifiers ...string) *core.CollectionInstance {
	col := &core.Collection{ID: prefix, CollectionType: "list:paired"}
	for _, id := range identifiers {
		col.Elements = append(col.Elements, &core.Element{
			Identifier: id,
			Child:      flatInstance("paired", prefix+id+"/", "forward", "reverse").Collection,
		})
	}
	return &core.CollectionInstance{ID: prefix, Collection: col}
}

func mustMatch(t *testing.T, toMatch *CollectionsToMatch, opts ...Option) *MatchingCollections {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	m, err := ForCollections(toMatch, testTypes, opts...)
	if err != nil {
		t.Fatalf("ForCollections: %v", err)
	}
	if m == nil {
		t.Fatal("ForCollections returned nil")
	}
	return m
}

func sliceIDs(t *testing.T, m *MatchingCollections) []map[string]string {
	t.Helper()
	seq, err := m.SliceCollections()
	if err != nil {
		t.Fatalf("SliceCollections: %v", err)
	}
	var out []map[string]string
	for s := range seq {
		ids := make(map[string]string, len(s.Elements))
		for name, el := range s.Elements {
			ids[name] = el.Dataset.ID
		}
		out = append(out, ids)
	}
	return out
}

func TestForCollections_Empty(t *testing.T) {
	m, err := ForCollections(NewCollectionsToMatch(), testTypes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Fatal("expected nil for an empty registry")
	}
}

func TestForCollections_LockStep(t *testing.T) {
	toMatch := NewCollectionsToMatch()
	toMatch.Add("a", flatInstance("list", "a/", "1", "2", "3"))
	toMatch.Add("b", flatInstance("list", "b/", "x", "y", "z"))

	m := mustMatch(t, toMatch)

	want := []map[string]string{
		{"a": "a/1", "b": "b/x"},
		{"a": "a/2", "b": "b/y"},
		{"a": "a/3", "b": "b/z"},
	}
	if diff := cmp.Diff(want, sliceIDs(t, m)); diff != "" {
		t.Fatalf("slices mismatch (-want +got):\n%s", diff)
	}

	s, err := m.Structure()
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	if got := s.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
}

func TestForCollections_Mismatch(t *testing.T) {
	toMatch := NewCollectionsToMatch()
	toMatch.Add("a", flatInstance("list", "a/", "1", "2", "3"))
	toMatch.Add("b", flatInstance("list", "b/", "x", "y"))

	var kinds []EventKind
	_, err := ForCollections(toMatch, testTypes,
		WithLogger(quietLogger()),
		WithEventHandler(func(e Event) { kinds = append(kinds, e.Kind) }),
	)
	if !errors.Is(err, ErrCannotMatch) {
		t.Fatalf("got err %v, want ErrCannotMatch", err)
	}
	if err.Error() != "Cannot match collection types." {
		t.Fatalf("got message %q", err.Error())
	}
	want := []EventKind{EventMatchStarted, EventInputLinked, EventMismatch}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestForCollections_TypeMismatch(t *testing.T) {
	toMatch := NewCollectionsToMatch()
	toMatch.Add("a", flatInstance("list", "a/", "forward", "reverse"))
	toMatch.Add("b", flatInstance("paired", "b/", "forward", "reverse"))

	_, err := ForCollections(toMatch, testTypes, WithLogger(quietLogger()))
	if !errors.Is(err, ErrCannotMatch) {
		t.Fatalf("got err %v, want ErrCannotMatch", err)
	}
}

// The first linked input by name is the baseline, and every input keeps
// its own handle for slicing.
func TestForCollections_BaselineIsFirstByName(t *testing.T) {
	toMatch := NewCollectionsToMatch()
	toMatch.Add("zeta", flatInstance("list", "z/", "1", "2"))
	toMatch.Add("alpha", flatInstance("list", "a/", "1", "2"))

	m := mustMatch(t, toMatch)

	baseline := m.LinkedStructure().(*structure.Tree)
	if got := baseline.Children()[0].Identifier; got != "1" {
		t.Fatalf("baseline first identifier = %q, want 1", got)
	}
	if diff := cmp.Diff([]string{"alpha", "zeta"}, m.InputNames()); diff != "" {
		t.Fatalf("input names mismatch (-want +got):\n%s", diff)
	}
	h, ok := m.Collection("zeta")
	if !ok || h.DatasetCollection().ID != "z/" {
		t.Fatalf("zeta handle not retained: %v", h)
	}
}

func TestForCollections_UnlinkedCrossProduct(t *testing.T) {
	toMatch := NewCollectionsToMatch()
	toMatch.Add("linked", flatInstance("list", "l/", "1", "2"))
	toMatch.Add("unlinked", flatInstance("list", "u/", "x", "y", "z"), Unlinked())

	m := mustMatch(t, toMatch)

	s, err := m.Structure()
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	if got := s.Len(); got != 6 {
		t.Fatalf("Len() = %d, want 6", got)
	}
	typ, _ := structure.CollectionType(s)
	if typ != "list:list" {
		t.Fatalf("type = %q, want list:list", typ)
	}
	if m.IsMappedOver("unlinked") {
		t.Fatal("unlinked input reported as mapped over")
	}
	if !m.IsMappedOver("linked") {
		t.Fatal("linked input not reported as mapped over")
	}
	if got := len(m.UnlinkedStructures()); got != 1 {
		t.Fatalf("got %d unlinked structures, want 1", got)
	}

	// Slicing only walks the linked axis.
	if got := len(sliceIDs(t, m)); got != 2 {
		t.Fatalf("got %d slices, want 2", got)
	}
}

func TestForCollections_UnlinkedAreNotChecked(t *testing.T) {
	toMatch := NewCollectionsToMatch()
	toMatch.Add("a", flatInstance("list", "a/", "1", "2"))
	toMatch.Add("b", pairsInstance("b/", "s1", "s2", "s3"), Unlinked())
	toMatch.Add("c", flatInstance("paired", "c/", "forward", "reverse"), Unlinked())

	m := mustMatch(t, toMatch)

	s, err := m.Structure()
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	// b (6 leaves) * c (2 leaves) * a (2 leaves)
	if got := s.Len(); got != 24 {
		t.Fatalf("Len() = %d, want 24", got)
	}
	if typ, _ := structure.CollectionType(s); typ != "list:paired:paired:list" {
		t.Fatalf("type = %q, want list:paired:paired:list", typ)
	}
}

func TestSliceCollections_OnlyUnlinked(t *testing.T) {
	toMatch := NewCollectionsToMatch()
	toMatch.Add("u", flatInstance("list", "u/", "x"), Unlinked())

	m := mustMatch(t, toMatch)
	if _, err := m.SliceCollections(); !errors.Is(err, ErrNoLinkedStructure) {
		t.Fatalf("got err %v, want ErrNoLinkedStructure", err)
	}
	s, err := m.Structure()
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	if got := s.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
}

func TestStructure_NilForLeaf(t *testing.T) {
	toMatch := NewCollectionsToMatch()
	toMatch.Add("a", flatInstance("list", "a/", "1", "2"))
	m := mustMatch(t, toMatch)
	m.linkedStructure = structure.Leaf{}

	s, err := m.Structure()
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	if s != nil {
		t.Fatalf("got %T, want nil", s)
	}
}

func TestSubcollectionMapping(t *testing.T) {
	toMatch := NewCollectionsToMatch()
	toMatch.Add("pairs", pairsInstance("p/", "s1", "s2"), WithSubcollectionType("paired"))
	toMatch.Add("flat", flatInstance("list", "f/", "a", "b"))

	m := mustMatch(t, toMatch)

	got, ok := m.SubcollectionMappingType("pairs")
	if !ok || got != "paired" {
		t.Fatalf("SubcollectionMappingType(pairs) = %q, %v", got, ok)
	}
	got, ok = m.SubcollectionMappingType("flat")
	if !ok || got != "" {
		t.Fatalf("SubcollectionMappingType(flat) = %q, %v", got, ok)
	}
	if _, ok := m.SubcollectionMappingType("missing"); ok {
		t.Fatal("expected missing input to be unknown")
	}

	seq, err := m.SliceCollections()
	if err != nil {
		t.Fatalf("SliceCollections: %v", err)
	}
	var pairs []string
	for s := range seq {
		el := s.Elements["pairs"]
		if !el.IsCollection() {
			t.Fatalf("pairs element %q is not a subcollection", el.Identifier)
		}
		pairs = append(pairs, el.Identifier)
	}
	if diff := cmp.Diff([]string{"s1", "s2"}, pairs); diff != "" {
		t.Fatalf("pairs mismatch (-want +got):\n%s", diff)
	}
}

func TestWhenValues(t *testing.T) {
	newMatch := func() *MatchingCollections {
		toMatch := NewCollectionsToMatch()
		toMatch.Add("a", flatInstance("list", "a/", "1", "2", "3", "4"))
		return mustMatch(t, toMatch)
	}

	collectWhens := func(t *testing.T, m *MatchingCollections) []bool {
		t.Helper()
		seq, err := m.SliceCollections()
		if err != nil {
			t.Fatalf("SliceCollections: %v", err)
		}
		var out []bool
		for s := range seq {
			if s.When == nil {
				t.Fatal("slice has no when value")
			}
			out = append(out, *s.When)
		}
		return out
	}

	t.Run("broadcast", func(t *testing.T) {
		m := newMatch()
		if err := m.SetWhenValues([]bool{true}); err != nil {
			t.Fatalf("SetWhenValues: %v", err)
		}
		if diff := cmp.Diff([]bool{true, true, true, true}, collectWhens(t, m)); diff != "" {
			t.Fatalf("when mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("positional", func(t *testing.T) {
		m := newMatch()
		values := []bool{true, false, true, false}
		if err := m.SetWhenValues(values); err != nil {
			t.Fatalf("SetWhenValues: %v", err)
		}
		if diff := cmp.Diff(values, collectWhens(t, m)); diff != "" {
			t.Fatalf("when mismatch (-want +got):\n%s", diff)
		}
		s, err := m.Structure()
		if err != nil {
			t.Fatalf("Structure: %v", err)
		}
		if diff := cmp.Diff(values, s.(*structure.Tree).WhenValues()); diff != "" {
			t.Fatalf("structure when values mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		m := newMatch()
		err := m.SetWhenValues([]bool{true, false})
		if !errors.Is(err, structure.ErrInvalidWhenValues) {
			t.Fatalf("got err %v, want ErrInvalidWhenValues", err)
		}
		if m.WhenValues() != nil {
			t.Fatal("rejected when values were stored")
		}
	})
}

func TestMapOverActionTuples_Memoized(t *testing.T) {
	access := core.ActionTuple{Action: "access", RoleID: "r1"}
	inst := flatInstance("list", "a/", "1", "2")
	inst.Collection.Elements[0].Dataset.Permissions = []core.ActionTuple{access}

	toMatch := NewCollectionsToMatch()
	toMatch.Add("a", inst)
	m := mustMatch(t, toMatch)

	got, err := m.MapOverActionTuples("a")
	if err != nil {
		t.Fatalf("MapOverActionTuples: %v", err)
	}
	if diff := cmp.Diff([]core.ActionTuple{access}, got); diff != "" {
		t.Fatalf("tuples mismatch (-want +got):\n%s", diff)
	}

	inst.Collection.Elements[1].Dataset.Permissions = []core.ActionTuple{{Action: "manage", RoleID: "r2"}}
	again, err := m.MapOverActionTuples("a")
	if err != nil {
		t.Fatalf("MapOverActionTuples: %v", err)
	}
	if diff := cmp.Diff(got, again); diff != "" {
		t.Fatalf("second lookup was recomputed (-first +second):\n%s", diff)
	}

	if _, err := m.MapOverActionTuples("missing"); !errors.Is(err, ErrUnknownInput) {
		t.Fatalf("got err %v, want ErrUnknownInput", err)
	}
}

func TestForCollections_Events(t *testing.T) {
	toMatch := NewCollectionsToMatch()
	toMatch.Add("a", flatInstance("list", "a/", "1"))
	toMatch.Add("b", flatInstance("list", "b/", "1"), Unlinked())

	var events []Event
	m := mustMatch(t, toMatch,
		WithPlanID("plan-1"),
		WithEventHandler(func(e Event) { events = append(events, e) }),
	)
	if m.PlanID() != "plan-1" {
		t.Fatalf("PlanID() = %q, want plan-1", m.PlanID())
	}

	var kinds []EventKind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
		if e.PlanID != "plan-1" {
			t.Fatalf("event %s has plan ID %q", e.Kind, e.PlanID)
		}
		if e.Time.IsZero() {
			t.Fatalf("event %s has no time", e.Kind)
		}
	}
	want := []EventKind{EventMatchStarted, EventInputLinked, EventInputUnlinked, EventMatchFinished}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	if events[1].Input != "a" || events[1].CollectionType != "list" {
		t.Fatalf("unexpected linked event %+v", events[1])
	}
	if got := events[3].Payload["linked"]; got != 1 {
		t.Fatalf("finished payload linked = %v, want 1", got)
	}
}

func TestForCollections_DefaultPlanID(t *testing.T) {
	toMatch := NewCollectionsToMatch()
	toMatch.Add("a", flatInstance("list", "a/", "1"))
	m1 := mustMatch(t, toMatch)
	m2 := mustMatch(t, toMatch)
	if m1.PlanID() == "" || m1.PlanID() == m2.PlanID() {
		t.Fatalf("expected distinct generated plan IDs, got %q and %q", m1.PlanID(), m2.PlanID())
	}
}

func TestForCollections_StructureError(t *testing.T) {
	toMatch := NewCollectionsToMatch()
	toMatch.Add("a", pairsInstance("a/", "s1"), WithSubcollectionType("list"))

	_, err := ForCollections(toMatch, testTypes, WithLogger(quietLogger()))
	if !errors.Is(err, colltype.ErrNotSubcollectionType) {
		t.Fatalf("got err %v, want ErrNotSubcollectionType", err)
	}
}

func TestForCollections_LinkedUninitializedIsPrecondition(t *testing.T) {
	pairs := pairsInstance("p/", "s1", "s2")
	toMatch := NewCollectionsToMatch()
	toMatch.Add("a", pairs.Collection.At(0), WithSubcollectionType("paired"))
	toMatch.Add("b", pairs.Collection.At(1), WithSubcollectionType("paired"))

	var kinds []EventKind
	_, err := ForCollections(toMatch, testTypes,
		WithLogger(quietLogger()),
		WithEventHandler(func(e Event) { kinds = append(kinds, e.Kind) }),
	)
	if !errors.Is(err, structure.ErrPrecondition) {
		t.Fatalf("got err %v, want ErrPrecondition", err)
	}
	if last := kinds[len(kinds)-1]; last != EventMatchFailed {
		t.Fatalf("last event = %s, want %s", last, EventMatchFailed)
	}
}

func TestWhenValues_WithUnlinkedAxis(t *testing.T) {
	tests := []struct {
		name     string
		unlinked []string
	}{
		{name: "longer unlinked axis", unlinked: []string{"x", "y", "z"}},
		{name: "same length unlinked axis", unlinked: []string{"x", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toMatch := NewCollectionsToMatch()
			toMatch.Add("a", flatInstance("list", "a/", "1", "2"))
			toMatch.Add("u", flatInstance("list", "u/", tt.unlinked...), Unlinked())
			m := mustMatch(t, toMatch)

			values := []bool{true, false}
			if err := m.SetWhenValues(values); err != nil {
				t.Fatalf("SetWhenValues: %v", err)
			}
			s, err := m.Structure()
			if err != nil {
				t.Fatalf("Structure: %v", err)
			}
			tree := s.(*structure.Tree)
			if got, want := tree.Len(), 2*len(tt.unlinked); got != want {
				t.Fatalf("Len() = %d, want %d", got, want)
			}
			if got := tree.WhenValues(); got != nil {
				t.Fatalf("unlinked axis tagged with when values %v", got)
			}
			for _, c := range tree.Children() {
				linked, ok := c.Structure.(*structure.Tree)
				if !ok {
					t.Fatalf("child %q is %T, want *structure.Tree", c.Identifier, c.Structure)
				}
				if diff := cmp.Diff(values, linked.WhenValues()); diff != "" {
					t.Fatalf("child %q when values mismatch (-want +got):\n%s", c.Identifier, diff)
				}
			}
		})
	}
}

func TestWhenValues_BroadcastWithoutLinked(t *testing.T) {
	toMatch := NewCollectionsToMatch()
	toMatch.Add("u", flatInstance("list", "u/", "x", "y", "z"), Unlinked())
	m := mustMatch(t, toMatch)

	if err := m.SetWhenValues([]bool{false}); err != nil {
		t.Fatalf("SetWhenValues: %v", err)
	}
	s, err := m.Structure()
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	if diff := cmp.Diff([]bool{false}, s.(*structure.Tree).WhenValues()); diff != "" {
		t.Fatalf("when values mismatch (-want +got):\n%s", diff)
	}
}

func TestForCollections_FailureEmitsTerminalEvent(t *testing.T) {
	broken := pairsInstance("p/", "s1")
	broken.Collection.Elements = append(broken.Collection.Elements, &core.Element{
		Identifier: "s2",
		Dataset:    &core.Dataset{ID: "p/s2"},
	})
	toMatch := NewCollectionsToMatch()
	toMatch.Add("a", broken)

	var events []Event
	_, err := ForCollections(toMatch, testTypes,
		WithLogger(quietLogger()),
		WithEventHandler(func(e Event) { events = append(events, e) }),
	)
	if !errors.Is(err, structure.ErrShapeMismatch) {
		t.Fatalf("got err %v, want ErrShapeMismatch", err)
	}
	last := events[len(events)-1]
	if last.Kind != EventMatchFailed || last.Input != "a" {
		t.Fatalf("last event = %+v, want match.failed for input a", last)
	}
	if msg, _ := last.Payload["error"].(string); msg != err.Error() {
		t.Fatalf("payload error = %q, want %q", msg, err.Error())
	}
}
