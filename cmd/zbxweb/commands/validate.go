package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/zabbix-web/pkg/config"
	"github.com/openfroyo/zabbix-web/pkg/engine"
	"github.com/openfroyo/zabbix-web/pkg/telemetry"
)

func newValidateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate parameter files",
		Long: `Validate parameter files against the front-end schema.

Validation checks:
  - Option names and types
  - Allowed values such as database_type and zabbix_version
  - Option combinations such as apache_use_ssl without a certificate

Every problem is reported, not just the first.`,
		Example: `  # Validate the site parameters
  zbxweb validate --params site.yaml

  # Validate layered parameters with a script applied
  zbxweb validate --params base.cue --params site.yaml --script overrides.star`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			in, err := a.loadInputs(ctx)
			if err == nil {
				op := telemetry.StartOperation(ctx, "params.validate")
				err = in.loader.Validate(op.Ctx, in.params)
				op.End(err)
			}

			var ves config.ValidationErrors
			if errors.As(err, &ves) {
				for _, ve := range ves {
					fmt.Fprintln(out, ve.String())
				}
				return engine.NewPermanentError(
					fmt.Sprintf("%d validation error(s)", len(ves)), err,
				).WithCode(engine.ErrCodeValidation)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Parameters are valid (%d source file(s))\n", len(in.sources))
			return nil
		},
	}

	addInputFlags(cmd)
	return cmd
}
