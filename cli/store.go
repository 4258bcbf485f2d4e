package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/petalmatch/store"
)

const storePathEnv = "PETALMATCH_STORE_PATH"

// storePath returns the --store-path flag, falling back to the
// PETALMATCH_STORE_PATH environment variable.
func storePath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("store-path")
	if strings.TrimSpace(path) == "" {
		path = os.Getenv(storePathEnv)
	}
	return strings.TrimSpace(path)
}

// defaultStorePath is ~/.petalmatch/petalmatch.db.
func defaultStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".petalmatch")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return filepath.Join(dir, "petalmatch.db"), nil
}

// openStore opens the SQLite collection store at path. Paths not starting
// with "file:" are cleaned and used as plain file names.
func openStore(path string) (*store.SQLiteCollectionStore, error) {
	dsn := path
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = filepath.Clean(dsn)
	}
	return store.NewSQLiteCollectionStore(store.SQLiteStoreConfig{DSN: dsn})
}

// resolveStore opens the configured store, or the default one when
// useDefault is set. It returns nil, nil when no store is configured.
func resolveStore(cmd *cobra.Command, useDefault bool) (*store.SQLiteCollectionStore, error) {
	path := storePath(cmd)
	if path == "" {
		if !useDefault {
			return nil, nil
		}
		var err error
		if path, err = defaultStorePath(); err != nil {
			return nil, err
		}
	}
	return openStore(path)
}
