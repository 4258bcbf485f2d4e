package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/petal-labs/petalmatch/core"

	_ "modernc.org/sqlite"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteStoreConfig configures the SQLite collection store.
type SQLiteStoreConfig struct {
	// DSN is the database connection string.
	DSN string
}

// SQLiteCollectionStore persists collection snapshots to a SQLite database.
// Elements are stored one row per element keyed by their identifier path so
// nested collections round-trip with their order intact.
type SQLiteCollectionStore struct {
	db *sql.DB
}

// NewSQLiteCollectionStore opens (or creates) a SQLite collection store.
func NewSQLiteCollectionStore(cfg SQLiteStoreConfig) (*SQLiteCollectionStore, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}

	// Enable WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: set WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: create schema: %w", err)
	}

	return &SQLiteCollectionStore{db: db}, nil
}

// SaveCollection stores col in a single transaction, replacing any previous
// snapshot with the same ID.
func (s *SQLiteCollectionStore) SaveCollection(ctx context.Context, col *core.Collection) error {
	if col == nil || col.ID == "" {
		return errors.New("sqlitestore: collection ID is required")
	}
	if err := col.CheckIdentifiers(); err != nil {
		return fmt.Errorf("sqlitestore: collection %q: %w", col.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM elements WHERE collection_id = ?`, col.ID); err != nil {
		return fmt.Errorf("sqlitestore: clear elements: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO collections (id, collection_type, element_count, saved_at) VALUES (?, ?, ?, ?)`,
		col.ID, col.CollectionType, col.Len(), time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("sqlitestore: save collection: %w", err)
	}

	if err := saveElements(ctx, tx, col.ID, "", 0, col); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit: %w", err)
	}
	return nil
}

func saveElements(ctx context.Context, tx *sql.Tx, collectionID, parentPath string, depth int, col *core.Collection) error {
	for i, el := range col.Elements {
		path := el.Identifier
		if parentPath != "" {
			path = parentPath + "/" + el.Identifier
		}

		var datasetID, childID, childType sql.NullString
		if el.Dataset != nil {
			datasetID = sql.NullString{String: el.Dataset.ID, Valid: true}
		}
		if el.Child != nil {
			childID = sql.NullString{String: el.Child.ID, Valid: true}
			childType = sql.NullString{String: el.Child.CollectionType, Valid: true}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO elements (collection_id, path, parent_path, depth, position, identifier, dataset_id, child_id, child_type)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			collectionID, path, parentPath, depth, i, el.Identifier, datasetID, childID, childType,
		); err != nil {
			return fmt.Errorf("sqlitestore: save element %q: %w", path, err)
		}

		if el.Dataset != nil {
			if err := savePermissions(ctx, tx, el.Dataset); err != nil {
				return err
			}
		}
		if el.Child != nil {
			if err := saveElements(ctx, tx, collectionID, path, depth+1, el.Child); err != nil {
				return err
			}
		}
	}
	return nil
}

func savePermissions(ctx context.Context, tx *sql.Tx, ds *core.Dataset) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_permissions WHERE dataset_id = ?`, ds.ID); err != nil {
		return fmt.Errorf("sqlitestore: clear permissions: %w", err)
	}
	for _, p := range ds.Permissions {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO dataset_permissions (dataset_id, action, role_id) VALUES (?, ?, ?)`,
			ds.ID, p.Action, p.RoleID,
		); err != nil {
			return fmt.Errorf("sqlitestore: save permission: %w", err)
		}
	}
	return nil
}

// LoadCollection rebuilds the snapshot stored under id.
func (s *SQLiteCollectionStore) LoadCollection(ctx context.Context, id string) (*core.Collection, error) {
	root := &core.Collection{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT collection_type FROM collections WHERE id = ?`, id,
	).Scan(&root.CollectionType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlitestore: %w: %q", ErrCollectionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load collection: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, parent_path, identifier, dataset_id, child_id, child_type
		 FROM elements WHERE collection_id = ? ORDER BY depth, parent_path, position`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load elements: %w", err)
	}
	defer rows.Close()

	// Rows arrive parents first, so every parent_path is already known.
	collections := map[string]*core.Collection{"": root}
	datasets := make(map[string][]*core.Dataset)
	for rows.Next() {
		var (
			path, parentPath, identifier  string
			datasetID, childID, childType sql.NullString
		)
		if err := rows.Scan(&path, &parentPath, &identifier, &datasetID, &childID, &childType); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan element: %w", err)
		}
		parent, ok := collections[parentPath]
		if !ok {
			return nil, fmt.Errorf("sqlitestore: element %q has no parent %q", path, parentPath)
		}

		el := &core.Element{Identifier: identifier}
		if datasetID.Valid {
			el.Dataset = &core.Dataset{ID: datasetID.String}
			datasets[datasetID.String] = append(datasets[datasetID.String], el.Dataset)
		}
		if childID.Valid {
			el.Child = &core.Collection{ID: childID.String, CollectionType: childType.String}
			collections[path] = el.Child
		}
		parent.Elements = append(parent.Elements, el)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: iterate elements: %w", err)
	}

	if err := s.loadPermissions(ctx, id, datasets); err != nil {
		return nil, err
	}
	return root, nil
}

func (s *SQLiteCollectionStore) loadPermissions(ctx context.Context, collectionID string, datasets map[string][]*core.Dataset) error {
	if len(datasets) == 0 {
		return nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT dataset_id, action, role_id FROM dataset_permissions
		 WHERE dataset_id IN (SELECT dataset_id FROM elements WHERE collection_id = ?)
		 ORDER BY rowid`, collectionID)
	if err != nil {
		return fmt.Errorf("sqlitestore: load permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var datasetID string
		var p core.ActionTuple
		if err := rows.Scan(&datasetID, &p.Action, &p.RoleID); err != nil {
			return fmt.Errorf("sqlitestore: scan permission: %w", err)
		}
		for _, ds := range datasets[datasetID] {
			ds.Permissions = append(ds.Permissions, p)
		}
	}
	return rows.Err()
}

// ListCollections returns all stored snapshots ordered by ID.
func (s *SQLiteCollectionStore) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collection_type, element_count, saved_at FROM collections ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list: %w", err)
	}
	defer rows.Close()

	var infos []CollectionInfo
	for rows.Next() {
		var info CollectionInfo
		var savedAt string
		if err := rows.Scan(&info.ID, &info.CollectionType, &info.Elements, &savedAt); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan collection: %w", err)
		}
		info.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: parse saved_at: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Close closes the database.
func (s *SQLiteCollectionStore) Close() error {
	return s.db.Close()
}

// Compile-time interface check.
var _ CollectionStore = (*SQLiteCollectionStore)(nil)
