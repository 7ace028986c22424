package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newGraphCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the resource dependency graph",
		Long: `Compile the catalog and print its dependency graph.

By default the graph is printed in Graphviz DOT format. With --levels each
line lists the resources that can be applied together, in apply order.`,
		Example: `  # Render the graph as SVG
  zbxweb graph --params site.yaml | dot -Tsvg > catalog.svg

  # Show the apply levels
  zbxweb graph --params site.yaml --levels`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			in, err := a.loadInputs(ctx)
			if err != nil {
				return err
			}
			cat, err := a.buildCatalog(ctx, "", in)
			if err != nil {
				return err
			}
			_, builder, err := cat.Graph()
			if err != nil {
				return err
			}

			if !a.v.GetBool("levels") {
				_, err = fmt.Fprint(out, builder.ToDOT())
				return err
			}
			for i, level := range builder.GetLevels() {
				if _, err := fmt.Fprintf(out, "%d: %s\n", i, strings.Join(level, " ")); err != nil {
					return err
				}
			}
			return nil
		},
	}

	addInputFlags(cmd)
	cmd.Flags().Bool("levels", false, "print apply levels instead of DOT")
	return cmd
}
