package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/meow-io/go-hush/chattype"
	"github.com/spf13/cobra"
)

func newTypesCmd() *cobra.Command {
	typesCmd := &cobra.Command{
		Use:   "types",
		Short: "Inspect the chat type catalog",
	}
	typesCmd.AddCommand(newTypesListCmd())
	return typesCmd
}

func newTypesListCmd() *cobra.Command {
	var catalogPath string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List known chat types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog := chattype.DefaultCatalog()
			if catalogPath != "" {
				extra, err := chattype.LoadCatalogFile(catalogPath)
				if err != nil {
					return err
				}
				catalog = catalog.Merge(extra)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CATEGORY\tCLASS\tHASH\tDEPLOYABLE\tTITLE")
			for _, t := range catalog.Types() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", t.ID.Category, t.ClassType, shortHash(t.ID.BytecodeHash), t.Deployable(), t.Title)
			}
			return w.Flush()
		},
	}
	listCmd.Flags().StringVar(&catalogPath, "catalog", "", "YAML catalog merged over the built-in types")
	return listCmd
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}
