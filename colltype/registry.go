// Package colltype describes collection type tags such as "list",
// "paired" or "list:paired" and provides a registry of the rank types a
// tag may be composed of.
package colltype

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/petal-labs/petalmatch/core"
)

// ErrInvalidRankType is returned by Register for definitions that could not
// appear as a component of a collection type tag.
var ErrInvalidRankType = errors.New("invalid rank type")

// RankTypeDef describes a registered rank type (one colon-separated
// component of a collection type tag).
type RankTypeDef struct {
	Type        string   `json:"type"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Identifiers []string `json:"identifiers,omitempty"` // fixed element identifiers, in order; empty means free-form
}

var (
	global     *Registry
	globalOnce sync.Once
)

// Global returns the singleton registry instance. On first call it
// initializes the registry and registers the built-in rank types.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
		registerBuiltins(global)
	})
	return global
}

// Registry holds all known rank types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]RankTypeDef
	order []string // preserves registration order
}

// NewRegistry returns an empty registry. Most callers want Global.
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]RankTypeDef),
	}
}

// Register adds a rank type definition. If a type with the same name
// already exists it is overwritten. The name must be non-empty and free of
// ":", and fixed identifiers must be valid element identifiers without
// repeats.
func (r *Registry) Register(def RankTypeDef) error {
	if def.Type == "" || strings.Contains(def.Type, ":") {
		return fmt.Errorf("%w: %q", ErrInvalidRankType, def.Type)
	}
	seen := make(map[string]bool, len(def.Identifiers))
	for _, id := range def.Identifiers {
		if err := core.CheckIdentifier(id); err != nil {
			return fmt.Errorf("%w %q: %w", ErrInvalidRankType, def.Type, err)
		}
		if seen[id] {
			return fmt.Errorf("%w %q: identifier %q repeated", ErrInvalidRankType, def.Type, id)
		}
		seen[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[def.Type]; !exists {
		r.order = append(r.order, def.Type)
	}
	def.Identifiers = append([]string(nil), def.Identifiers...)
	r.types[def.Type] = def
	return nil
}

// Get returns a rank type definition by name.
func (r *Registry) Get(rankType string) (RankTypeDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.types[rankType]
	return def, ok
}

// Has returns true if the rank type is registered.
func (r *Registry) Has(rankType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[rankType]
	return ok
}

// All returns all registered rank types in registration order.
func (r *Registry) All() []RankTypeDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]RankTypeDef, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.types[name])
	}
	return result
}

// Len returns the number of registered rank types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}
