package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/petalmatch/colltype"
)

// NewTypesCmd creates the "types" subcommand listing registered collection
// rank types.
func NewTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List registered collection rank types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := colltype.Global()
			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(writer, "TYPE\tIDENTIFIERS\tDESCRIPTION")
			for _, def := range registry.All() {
				ids := strings.Join(def.Identifiers, ",")
				if ids == "" {
					ids = "-"
				}
				fmt.Fprintf(writer, "%s\t%s\t%s\n", def.Type, ids, def.Description)
			}
			if err := writer.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d rank types registered\n", registry.Len())
			return nil
		},
	}
}
