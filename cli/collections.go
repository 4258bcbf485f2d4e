package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/petalmatch/loader"
	"github.com/petal-labs/petalmatch/request"
)

// NewCollectionsCmd creates the "collections" command group for the
// collection snapshot store.
func NewCollectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Manage stored collection snapshots",
	}
	cmd.PersistentFlags().String("store-path", "", "Path to SQLite store (default: ~/.petalmatch/petalmatch.db)")

	cmd.AddCommand(newCollectionsImportCmd())
	cmd.AddCommand(newCollectionsListCmd())
	return cmd
}

func newCollectionsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Store the inline collections of a match request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath := args[0]
			def, err := loader.ReadRequest(filePath)
			if errors.Is(err, fs.ErrNotExist) {
				return exitError(exitFileNotFound, "file not found: %s", filePath)
			}
			if err != nil {
				return exitError(exitInputParse, "loading request: %v", err)
			}

			// Only collection shape matters here; inputs may reference
			// collections stored earlier.
			diags := def.Validate(request.ValidateOptions{AllowExternalCollections: true})
			if request.HasErrors(diags) {
				printDiagnosticsText(cmd.ErrOrStderr(), diags)
				return exitError(exitValidation, "validation failed")
			}

			collections, err := resolveStore(cmd, true)
			if err != nil {
				return exitError(exitRuntime, "opening collection store: %v", err)
			}
			defer collections.Close()

			materialized := def.Materialize()
			for _, cd := range def.Collections {
				if err := collections.SaveCollection(cmd.Context(), materialized[cd.ID]); err != nil {
					return exitError(exitRuntime, "saving collection %q: %v", cd.ID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored collection: %s (%s, %d elements)\n",
					cd.ID, cd.CollectionType, materialized[cd.ID].Len())
			}
			return nil
		},
	}
}

func newCollectionsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			collections, err := resolveStore(cmd, true)
			if err != nil {
				return exitError(exitRuntime, "opening collection store: %v", err)
			}
			defer collections.Close()

			infos, err := collections.ListCollections(cmd.Context())
			if err != nil {
				return exitError(exitRuntime, "listing collections: %v", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No collections stored.")
				return nil
			}
			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(writer, "ID\tTYPE\tELEMENTS\tSAVED")
			for _, info := range infos {
				fmt.Fprintf(writer, "%s\t%s\t%d\t%s\n",
					info.ID, info.CollectionType, info.Elements, info.SavedAt.Format(time.RFC3339))
			}
			return writer.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}
