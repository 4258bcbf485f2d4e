package colltype

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrNoSubcollections is returned when a subcollection description is
	// requested from a flat collection type.
	ErrNoSubcollections = errors.New("collection type has no subcollections")

	// ErrNotSubcollectionType is returned when an effective type is computed
	// over a type that does not end with the requested subcollection type.
	ErrNotSubcollectionType = errors.New("not a subcollection type")

	// ErrUnknownRankType is returned when a tag contains an unregistered rank.
	ErrUnknownRankType = errors.New("unknown collection rank type")
)

// Description is the capability interface the structure engine needs from
// a collection type tag.
type Description interface {
	// CollectionType returns the full tag, e.g. "list:paired".
	CollectionType() string
	HasSubcollections() bool
	// SubcollectionTypeDescription describes the type of each element of a
	// nested collection (the tag after the first rank).
	SubcollectionTypeDescription() (Description, error)
	// Multiply nests other under the receiver: "list" * "paired" = "list:paired".
	Multiply(other Description) Description
	CanMatchType(other Description) bool
	// HasSubcollectionsOfType reports whether elements at some depth are of
	// the given type, e.g. "list:paired" has subcollections of type "paired".
	HasSubcollectionsOfType(subcollectionType string) bool
	// EffectiveCollectionTypeDescription strips a trailing subcollection
	// type, treating whole subcollections as leaves.
	EffectiveCollectionTypeDescription(subcollectionType string) (Description, error)
	RankCollectionType() string
	Dimension() int
}

// Factory resolves collection type tags to descriptions.
type Factory interface {
	ForCollectionType(collectionType string) Description
}

// DescriptionFactory is the default Factory. Descriptions are cached per tag
// and are safe to share.
type DescriptionFactory struct {
	registry *Registry

	mu    sync.Mutex
	cache map[string]*TypeDescription
}

// NewFactory returns a factory validating ranks against registry. A nil
// registry uses Global().
func NewFactory(registry *Registry) *DescriptionFactory {
	if registry == nil {
		registry = Global()
	}
	return &DescriptionFactory{
		registry: registry,
		cache:    make(map[string]*TypeDescription),
	}
}

// ForCollectionType returns the description for a tag. It does not validate
// ranks; use Validate for user-supplied tags.
func (f *DescriptionFactory) ForCollectionType(collectionType string) Description {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.cache[collectionType]; ok {
		return d
	}
	d := &TypeDescription{collectionType: collectionType, factory: f}
	f.cache[collectionType] = d
	return d
}

// Validate checks that every rank of a tag is registered.
func (f *DescriptionFactory) Validate(collectionType string) error {
	if strings.TrimSpace(collectionType) == "" {
		return fmt.Errorf("collection type is required")
	}
	for _, rank := range strings.Split(collectionType, ":") {
		if !f.registry.Has(rank) {
			return fmt.Errorf("%w %q in %q", ErrUnknownRankType, rank, collectionType)
		}
	}
	return nil
}

// Registry returns the rank registry backing this factory.
func (f *DescriptionFactory) Registry() *Registry {
	return f.registry
}

// TypeDescription is the concrete Description produced by DescriptionFactory.
type TypeDescription struct {
	collectionType string
	factory        *DescriptionFactory
}

func (d *TypeDescription) CollectionType() string {
	return d.collectionType
}

func (d *TypeDescription) HasSubcollections() bool {
	return strings.Contains(d.collectionType, ":")
}

func (d *TypeDescription) SubcollectionTypeDescription() (Description, error) {
	_, rest, ok := strings.Cut(d.collectionType, ":")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSubcollections, d.collectionType)
	}
	return d.factory.ForCollectionType(rest), nil
}

func (d *TypeDescription) Multiply(other Description) Description {
	return d.factory.ForCollectionType(d.collectionType + ":" + other.CollectionType())
}

func (d *TypeDescription) CanMatchType(other Description) bool {
	return other != nil && other.CollectionType() == d.collectionType
}

func (d *TypeDescription) HasSubcollectionsOfType(subcollectionType string) bool {
	return d.collectionType != subcollectionType &&
		strings.HasSuffix(d.collectionType, ":"+subcollectionType)
}

func (d *TypeDescription) EffectiveCollectionTypeDescription(subcollectionType string) (Description, error) {
	if !d.HasSubcollectionsOfType(subcollectionType) {
		return nil, fmt.Errorf("%w: cannot compute effective subcollection type of %q over %q",
			ErrNotSubcollectionType, subcollectionType, d.collectionType)
	}
	effective := d.collectionType[:len(d.collectionType)-len(subcollectionType)-1]
	return d.factory.ForCollectionType(effective), nil
}

func (d *TypeDescription) RankCollectionType() string {
	rank, _, _ := strings.Cut(d.collectionType, ":")
	return rank
}

// Dimension is the number of ranks plus one for the leaf level.
func (d *TypeDescription) Dimension() int {
	return strings.Count(d.collectionType, ":") + 2
}

func (d *TypeDescription) String() string {
	return "CollectionTypeDescription[" + d.collectionType + "]"
}

var (
	_ Description = (*TypeDescription)(nil)
	_ Factory     = (*DescriptionFactory)(nil)
)
