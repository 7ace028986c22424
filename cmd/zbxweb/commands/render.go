package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/zabbix-web/pkg/config"
	"github.com/openfroyo/zabbix-web/pkg/engine"
	"github.com/openfroyo/zabbix-web/pkg/facts"
	"github.com/openfroyo/zabbix-web/pkg/osfamily"
	"github.com/openfroyo/zabbix-web/pkg/render"
)

// renderFunc renders one generated file.
type renderFunc func(r *render.Renderer, p *config.Params, hf *facts.HostFacts) (string, error)

var renderTargets = map[string]renderFunc{
	"zabbix.conf.php": func(r *render.Renderer, p *config.Params, _ *facts.HostFacts) (string, error) {
		return r.ZabbixConfPHP(p)
	},
	"api.conf": func(r *render.Renderer, p *config.Params, _ *facts.HostFacts) (string, error) {
		return r.APIConf(p)
	},
	"php-fpm.conf": func(r *render.Renderer, p *config.Params, hf *facts.HostFacts) (string, error) {
		profile, err := resolveProfile(hf)
		if err != nil {
			return "", err
		}
		return r.PHPFPMPool(p, profile)
	},
	"fpm-handler": func(r *render.Renderer, _ *config.Params, hf *facts.HostFacts) (string, error) {
		profile, err := resolveProfile(hf)
		if err != nil {
			return "", err
		}
		return r.FPMHandler(profile)
	},
	"directories": func(r *render.Renderer, p *config.Params, _ *facts.HostFacts) (string, error) {
		return r.DirectoriesFragment(p)
	},
}

func renderTargetNames() []string {
	names := make([]string, 0, len(renderTargets))
	for name := range renderTargets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resolveProfile(hf *facts.HostFacts) (osfamily.Profile, error) {
	profile, ok := osfamily.Resolve(*hf)
	if !ok {
		return osfamily.Profile{}, engine.NewPermanentError(
			fmt.Sprintf("OS family %q is not supported", hf.Family), nil,
		).WithCode(engine.ErrCodeValidation)
	}
	return profile, nil
}

func newRenderCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Render one generated file",
		Long: fmt.Sprintf(`Render one file the catalog would manage and print it.

Files:
  %s

The parameters are validated first; php-fpm.conf and fpm-handler need a
host whose OS family is supported.`, strings.Join(renderTargetNames(), "\n  ")),
		Example: `  # Show the generated front-end configuration
  zbxweb render zabbix.conf.php --params site.yaml`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: renderTargetNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			fn, ok := renderTargets[args[0]]
			if !ok {
				return fmt.Errorf("unknown file %q, expected one of: %s", args[0], strings.Join(renderTargetNames(), ", "))
			}

			ctx := cmd.Context()
			in, err := a.loadInputs(ctx)
			if err != nil {
				return err
			}
			if err := in.loader.Validate(ctx, in.params); err != nil {
				return engine.NewPermanentError("invalid parameters", err).WithCode(engine.ErrCodeValidation)
			}

			r, err := render.New()
			if err != nil {
				return err
			}
			content, err := fn(r, in.params, in.facts)
			if err != nil {
				return engine.NewPermanentError("render failed", err).
					WithCode(engine.ErrCodeRender).
					WithResource(args[0])
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), content)
			return err
		},
	}

	addInputFlags(cmd)
	return cmd
}
