package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived compilations",
		Long: `List the compilations archived with 'zbxweb compile --store', newest first.

With --id the policy findings recorded for that compilation are listed.`,
		Example: `  # Last ten compilations of web01
  zbxweb history --store zbxweb.db --node web01 --limit 10

  # Findings of one compilation
  zbxweb history --store zbxweb.db --id 5f0c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			path := a.v.GetString("store")
			if path == "" {
				return fmt.Errorf("--store is required")
			}
			store, err := openStore(ctx, path)
			if err != nil {
				return err
			}
			defer store.Close()

			if id := a.v.GetString("id"); id != "" {
				findings, err := store.ListFindings(ctx, id)
				if err != nil {
					return err
				}
				if format := a.outputFormat("text"); format != "text" {
					return writeOutput(out, format, findings)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SEVERITY\tPOLICY\tRESOURCE\tMESSAGE")
				for _, f := range findings {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Severity, f.Policy, f.Resource, f.Message)
				}
				return tw.Flush()
			}

			var node *string
			if n := a.v.GetString("node"); n != "" {
				node = &n
			}
			compilations, err := store.ListCompilations(ctx, node, a.v.GetInt("limit"), 0)
			if err != nil {
				return err
			}
			if format := a.outputFormat("text"); format != "text" {
				return writeOutput(out, format, compilations)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNODE\tFAMILY\tRESOURCES\tALLOWED\tCOMPILED")
			for _, c := range compilations {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%s\n",
					c.ID, c.Node, c.Family, c.ResourceCount, c.Allowed, c.CompiledAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	f := cmd.Flags()
	f.String("store", "", "SQLite archive written by compile --store")
	f.String("node", "", "only list compilations of this node")
	f.String("id", "", "list the findings of this compilation")
	f.Int("limit", 20, "maximum number of compilations to list")
	return cmd
}
