package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/zabbix-web/pkg/engine"
	"github.com/openfroyo/zabbix-web/pkg/stores"
	"github.com/openfroyo/zabbix-web/pkg/telemetry"
)

func newDiffCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare two archived compilations",
		Long: `Compare two compilations archived with 'zbxweb compile --store'.

Without --from and --to the two most recent compilations of --node are
compared. When the node has a single compilation it is compared against an
empty catalog.

Each resource is reported as:
  + declared only in the newer compilation
  - declared only in the older compilation
  ~ declared in both with a different desired state`,
		Example: `  # What changed in the last compilation of web01
  zbxweb diff --store zbxweb.db --node web01

  # Compare two specific compilations as JSON
  zbxweb diff --store zbxweb.db --from 5f0c... --to 9ab1... -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			path := a.v.GetString("store")
			if path == "" {
				return fmt.Errorf("--store is required")
			}

			store, err := openStore(ctx, path)
			if err != nil {
				return err
			}
			defer store.Close()

			op := telemetry.StartOperation(ctx, "store.diff")
			prev, next, err := a.selectCompilations(op.Ctx, store)
			op.End(err)
			if err != nil {
				return err
			}

			var prevCfg *engine.Config
			if prev != nil {
				prevCfg = prev.Config()
			}
			result, err := engine.DiffConfigs(prevCfg, next.Config())
			if err != nil {
				return err
			}

			format := a.outputFormat("text")
			if format != "text" {
				return writeOutput(cmd.OutOrStdout(), format, result)
			}
			return writeDiffText(cmd.OutOrStdout(), prev, next, result)
		},
	}

	f := cmd.Flags()
	f.String("store", "", "SQLite archive written by compile --store")
	f.String("node", "", "node whose latest compilations are compared")
	f.String("from", "", "ID of the older compilation")
	f.String("to", "", "ID of the newer compilation")
	return cmd
}

// selectCompilations resolves --from and --to, falling back to the latest
// two compilations of --node. prev is nil when there is nothing to compare
// against.
func (a *app) selectCompilations(ctx context.Context, store stores.Store) (prev, next *stores.Compilation, err error) {
	from, to := a.v.GetString("from"), a.v.GetString("to")

	if to != "" {
		if next, err = store.GetCompilation(ctx, to); err != nil {
			return nil, nil, err
		}
		if from != "" {
			if prev, err = store.GetCompilation(ctx, from); err != nil {
				return nil, nil, err
			}
		}
		return prev, next, nil
	}
	if from != "" {
		return nil, nil, fmt.Errorf("--from needs --to")
	}

	node := a.v.GetString("node")
	if node == "" {
		return nil, nil, fmt.Errorf("--node or --to is required")
	}
	latest, err := store.LatestCompilations(ctx, node, 2)
	if err != nil {
		return nil, nil, err
	}
	if len(latest) == 0 {
		return nil, nil, engine.NewPermanentError(
			fmt.Sprintf("no compilations archived for node %s", node), nil,
		).WithCode(engine.ErrCodeNotFound)
	}
	next = latest[0]
	if len(latest) > 1 {
		prev = latest[1]
	}
	return prev, next, nil
}

func writeDiffText(w io.Writer, prev, next *stores.Compilation, result *engine.DiffResult) error {
	if prev != nil {
		fmt.Fprintf(w, "--- %s (%s)\n", prev.ID, prev.CompiledAt.Format(time.RFC3339))
	} else {
		fmt.Fprintln(w, "--- (empty)")
	}
	fmt.Fprintf(w, "+++ %s (%s)\n", next.ID, next.CompiledAt.Format(time.RFC3339))

	for _, rd := range result.Resources {
		switch rd.Operation {
		case engine.OperationCreate:
			fmt.Fprintf(w, "+ %s\n", rd.ResourceID)
		case engine.OperationDelete:
			fmt.Fprintf(w, "- %s\n", rd.ResourceID)
		case engine.OperationUpdate:
			fmt.Fprintf(w, "~ %s\n", rd.ResourceID)
			for _, c := range rd.Changes {
				fmt.Fprintf(w, "    %s: %s => %s\n", c.Path, jsonValue(c.Before), jsonValue(c.After))
			}
		}
	}

	s := result.Summary
	_, err := fmt.Fprintf(w, "%d to create, %d to update, %d to delete, %d unchanged\n",
		s.ToCreate, s.ToUpdate, s.ToDelete, s.NoChange)
	return err
}

func jsonValue(v any) string {
	if v == nil {
		return "(none)"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
