// Package store persists materialized collection snapshots so match
// requests can reference collections by ID instead of inlining them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/petal-labs/petalmatch/core"
)

// ErrCollectionNotFound is returned when no snapshot exists for an ID.
var ErrCollectionNotFound = errors.New("collection not found")

// CollectionInfo summarizes a stored snapshot.
type CollectionInfo struct {
	ID             string    `json:"id" yaml:"id"`
	CollectionType string    `json:"collection_type" yaml:"collection_type"`
	Elements       int       `json:"elements" yaml:"elements"`
	SavedAt        time.Time `json:"saved_at" yaml:"saved_at"`
}

// CollectionStore persists collection snapshots.
type CollectionStore interface {
	// SaveCollection stores col, replacing any snapshot with the same ID.
	SaveCollection(ctx context.Context, col *core.Collection) error

	// LoadCollection returns the snapshot for id or ErrCollectionNotFound.
	LoadCollection(ctx context.Context, id string) (*core.Collection, error)

	// ListCollections returns all snapshots ordered by ID.
	ListCollections(ctx context.Context) ([]CollectionInfo, error)
}
