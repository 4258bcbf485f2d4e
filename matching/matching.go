package matching

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petal-labs/petalmatch/colltype"
	"github.com/petal-labs/petalmatch/core"
	"github.com/petal-labs/petalmatch/structure"
)

var (
	// ErrCannotMatch is returned when a linked input's structure does not
	// match the structure of the first linked input.
	ErrCannotMatch = errors.New("Cannot match collection types.") //nolint:staticcheck // user-facing message

	// ErrNoLinkedStructure is returned when slicing without any linked input.
	ErrNoLinkedStructure = errors.New("matching: no linked collections to slice")

	// ErrUnknownInput is returned for lookups on inputs that were not
	// recorded as linked.
	ErrUnknownInput = errors.New("matching: unknown input")
)

// MatchingCollections is the outcome of matching one step's collection
// inputs. It is built once per planning pass by ForCollections and
// discarded once its slices are consumed.
type MatchingCollections struct {
	planID string
	logger *slog.Logger

	linkedStructure    structure.Structure
	unlinkedStructures []structure.Structure
	collections        map[string]core.CollectionHandle
	subcollectionTypes map[string]string
	whenValues         []bool

	mu           sync.Mutex
	actionTuples map[string][]core.ActionTuple
}

// ForCollections resolves the structure of every registered input, in input
// name order. The first linked input becomes the baseline every other
// linked input must match; unlinked inputs are kept as independent axes.
// It returns nil, nil when no inputs are registered.
func ForCollections(toMatch *CollectionsToMatch, types colltype.Factory, opts ...Option) (*MatchingCollections, error) {
	if !toMatch.HasCollections() {
		return nil, nil
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.planID == "" {
		o.planID = uuid.NewString()
	}
	emit := func(e Event) {
		if o.handler == nil {
			return
		}
		e.PlanID = o.planID
		if e.Time.IsZero() {
			e.Time = time.Now()
		}
		o.handler(e)
	}

	started := time.Now()
	emit(Event{Kind: EventMatchStarted, Time: started, Payload: map[string]any{"inputs": toMatch.Len()}})

	m := &MatchingCollections{
		planID:             o.planID,
		logger:             o.logger,
		collections:        make(map[string]core.CollectionHandle),
		subcollectionTypes: make(map[string]string),
		actionTuples:       make(map[string][]core.ActionTuple),
	}

	fail := func(name string, err error) (*MatchingCollections, error) {
		o.logger.Warn("matching failed",
			slog.String("plan_id", o.planID),
			slog.String("input", name),
			slog.Any("error", err))
		emit(Event{
			Kind:    EventMatchFailed,
			Input:   name,
			Elapsed: time.Since(started),
			Payload: map[string]any{"error": err.Error()},
		})
		return nil, err
	}

	for name, entry := range toMatch.Items() {
		s, err := structure.GetStructure(entry.Handle, types, entry.SubcollectionType)
		if err != nil {
			return fail(name, fmt.Errorf("input %q: %w", name, err))
		}
		collectionType, _ := structure.CollectionType(s)

		if !entry.Linked {
			m.unlinkedStructures = append(m.unlinkedStructures, s)
			o.logger.Debug("resolved unlinked input",
				slog.String("plan_id", o.planID),
				slog.String("input", name),
				slog.String("collection_type", collectionType))
			emit(Event{Kind: EventInputUnlinked, Input: name, CollectionType: collectionType})
			continue
		}

		if m.linkedStructure != nil && !bothTrees(m.linkedStructure, s) {
			return fail(name, fmt.Errorf("%w: input %q: only fully known collections can be linked", structure.ErrPrecondition, name))
		}
		if m.linkedStructure != nil && !structure.CanMatch(m.linkedStructure, s) {
			baseline, _ := structure.CollectionType(m.linkedStructure)
			o.logger.Warn("linked input does not match baseline structure",
				slog.String("plan_id", o.planID),
				slog.String("input", name),
				slog.String("collection_type", collectionType),
				slog.String("baseline_collection_type", baseline))
			emit(Event{
				Kind:           EventMismatch,
				Input:          name,
				CollectionType: collectionType,
				Elapsed:        time.Since(started),
				Payload:        map[string]any{"baseline_collection_type": baseline},
			})
			return nil, ErrCannotMatch
		}
		if m.linkedStructure == nil {
			m.linkedStructure = s
		}
		m.collections[name] = entry.Handle
		m.subcollectionTypes[name] = entry.SubcollectionType

		o.logger.Debug("resolved linked input",
			slog.String("plan_id", o.planID),
			slog.String("input", name),
			slog.String("collection_type", collectionType))
		emit(Event{Kind: EventInputLinked, Input: name, CollectionType: collectionType})
	}

	emit(Event{
		Kind:    EventMatchFinished,
		Elapsed: time.Since(started),
		Payload: map[string]any{
			"linked":   len(m.collections),
			"unlinked": len(m.unlinkedStructures),
		},
	})
	return m, nil
}

func bothTrees(a, b structure.Structure) bool {
	_, okA := a.(*structure.Tree)
	_, okB := b.(*structure.Tree)
	return okA && okB
}

// PlanID identifies this matching pass in logs and events.
func (m *MatchingCollections) PlanID() string {
	return m.planID
}

// LinkedStructure returns the baseline structure of the linked inputs, or
// nil if only unlinked inputs were registered.
func (m *MatchingCollections) LinkedStructure() structure.Structure {
	return m.linkedStructure
}

// UnlinkedStructures returns the structures of unlinked inputs in input
// name order.
func (m *MatchingCollections) UnlinkedStructures() []structure.Structure {
	return slices.Clone(m.unlinkedStructures)
}

// SetWhenValues tags top-level slices with conditional-execution values:
// a single value is broadcast, otherwise one value per top-level child of
// the linked structure is required.
func (m *MatchingCollections) SetWhenValues(values []bool) error {
	if tree, ok := m.linkedStructure.(*structure.Tree); ok {
		if _, err := tree.WithWhenValues(values); err != nil {
			return err
		}
	} else if len(values) > 1 {
		return fmt.Errorf("%w: %d values without a linked collection", structure.ErrInvalidWhenValues, len(values))
	}
	m.whenValues = slices.Clone(values)
	return nil
}

// WhenValues returns the assigned when values.
func (m *MatchingCollections) WhenValues() []bool {
	return slices.Clone(m.whenValues)
}

// SliceCollections enumerates the lock-step slices of the linked inputs,
// tagged with the assigned when values.
func (m *MatchingCollections) SliceCollections() (iter.Seq[structure.Slice], error) {
	if m.linkedStructure == nil {
		return nil, ErrNoLinkedStructure
	}
	tree, ok := m.linkedStructure.(*structure.Tree)
	if !ok {
		return nil, fmt.Errorf("%w: cannot slice %T", structure.ErrPrecondition, m.linkedStructure)
	}
	tagged, err := tree.WithWhenValues(m.whenValues)
	if err != nil {
		return nil, err
	}
	return tagged.Walk(m.collections), nil
}

// Structure returns the combined shape of a mapped-over execution: the
// cross product of every unlinked axis, in input name order, with the
// linked structure nested innermost. It returns nil when the combination
// is a single leaf (nothing is mapped over).
//
// When values belong to the linked structure's top-level children, the
// same ones SliceCollections tags, so they are attached to the linked
// subtree under every unlinked leaf. Without a linked tree the (at most
// one) value is attached to the top level.
func (m *MatchingCollections) Structure() (structure.Structure, error) {
	var effective structure.Structure = structure.Leaf{}
	for _, u := range m.unlinkedStructures {
		effective = effective.Multiply(u)
	}

	linkedTree, hasLinkedTree := m.linkedStructure.(*structure.Tree)
	var linked structure.Structure = structure.Leaf{}
	switch {
	case hasLinkedTree:
		tagged, err := linkedTree.WithWhenValues(m.whenValues)
		if err != nil {
			return nil, err
		}
		linked = tagged
	case m.linkedStructure != nil:
		linked = m.linkedStructure
	}
	effective = effective.Multiply(linked)

	switch s := effective.(type) {
	case structure.Leaf:
		return nil, nil
	case *structure.Tree:
		if hasLinkedTree {
			return s, nil
		}
		return s.WithWhenValues(m.whenValues)
	default:
		return effective, nil
	}
}

// SubcollectionMappingType returns the subcollection type an input maps
// over. The second result is false for inputs not recorded as linked.
func (m *MatchingCollections) SubcollectionMappingType(inputName string) (string, bool) {
	t, ok := m.subcollectionTypes[inputName]
	return t, ok
}

// IsMappedOver reports whether the input was recorded as a linked input.
func (m *MatchingCollections) IsMappedOver(inputName string) bool {
	_, ok := m.collections[inputName]
	return ok
}

// Collection returns the handle recorded for a linked input.
func (m *MatchingCollections) Collection(inputName string) (core.CollectionHandle, bool) {
	h, ok := m.collections[inputName]
	return h, ok
}

// InputNames returns the linked input names, sorted.
func (m *MatchingCollections) InputNames() []string {
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// MapOverActionTuples returns the dataset permission tuples of a linked
// input's collection. Results are computed once per input.
func (m *MatchingCollections) MapOverActionTuples(inputName string) ([]core.ActionTuple, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tuples, ok := m.actionTuples[inputName]; ok {
		return tuples, nil
	}
	h, ok := m.collections[inputName]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownInput, inputName)
	}
	tuples := h.DatasetCollection().DatasetActionTuples()
	m.actionTuples[inputName] = tuples
	return tuples, nil
}
