package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/openfroyo/zabbix-web/pkg/catalog"
	"github.com/openfroyo/zabbix-web/pkg/config"
	"github.com/openfroyo/zabbix-web/pkg/engine"
	"github.com/openfroyo/zabbix-web/pkg/policy"
	"github.com/openfroyo/zabbix-web/pkg/stores"
	"github.com/openfroyo/zabbix-web/pkg/telemetry"
)

func newCompileCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile the front-end catalog for a host",
		Long: `Compile the parameters into the catalog of resources for one host.

The catalog is checked against the built-in policies plus any given with
--policy. A blocking violation fails the command after the catalog has been
archived, so rejected catalogs can still be inspected with 'zbxweb diff'.

Output formats:
  - json:   the catalog with typed resource parameters (default)
  - yaml:   the same document as YAML
  - engine: the flattened resources with their dependency IDs`,
		Example: `  # Compile for the local host
  zbxweb compile --params site.yaml

  # Compile for another host and archive the result
  zbxweb compile --params site.yaml --facts web01.yaml --store zbxweb.db --keep 20

  # Recompile whenever a parameter file changes
  zbxweb compile --params site.yaml --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			err := a.compileOnce(ctx, out)
			if !a.v.GetBool("watch") {
				return err
			}
			if err != nil {
				logger := telemetry.FromContext(ctx).Zerolog()
				logger.Error().Err(err).Msg("Compilation failed, watching for changes")
			}
			return a.watch(ctx, out)
		},
	}

	addInputFlags(cmd)
	f := cmd.Flags()
	f.StringSlice("policy", nil, "additional policy file or directory (.rego, .json)")
	f.String("store", "", "archive the compilation in this SQLite database")
	f.Int("keep", 0, "compilations to keep per node in the archive, 0 keeps all")
	f.Bool("watch", false, "recompile when a parameter source changes")

	return cmd
}

// compileOnce runs one full compilation and writes the catalog to out.
func (a *app) compileOnce(ctx context.Context, out io.Writer) error {
	in, err := a.loadInputs(ctx)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	ctx = telemetry.WithCompilationContext(ctx, id, in.facts.Hostname)
	logger := telemetry.FromContext(ctx).Zerolog()

	family := string(in.facts.Family)
	resources := 0
	status := telemetry.StatusFailed

	cat, err := a.compileAndCheck(ctx, id, in, out)
	if cat != nil {
		resources = cat.Len()
		status = telemetry.StatusCompiled
		if !cat.Supported {
			status = telemetry.StatusUnsupported
		}
		if engine.CodeOf(err) == engine.ErrCodePolicy {
			status = telemetry.StatusRejected
		}
	}
	telemetry.EndCompilationContext(ctx, family, status, resources, err)

	if err != nil {
		return err
	}
	logger.Info().
		Str("family", family).
		Bool("supported", cat.Supported).
		Int("resources", resources).
		Msg("Catalog compiled")
	return nil
}

// compileAndCheck builds the catalog, evaluates policies and archives the
// result. The catalog is returned even when policies reject it.
func (a *app) compileAndCheck(ctx context.Context, id string, in *inputs, out io.Writer) (*catalog.Catalog, error) {
	cat, err := a.buildCatalog(ctx, id, in)
	if err != nil {
		return nil, err
	}

	cfg, err := cat.ToEngineConfig()
	if err != nil {
		return nil, err
	}

	result, err := a.checkPolicies(ctx, cfg)
	if err != nil {
		return cat, err
	}

	if err := a.archive(ctx, cfg, in.params, result); err != nil {
		return cat, err
	}

	if a.tel != nil {
		counts := make(map[string]int)
		for kind, n := range cat.CountByKind() {
			counts[string(kind)] = n
		}
		a.tel.Metrics.SetResourcesDeclared(counts)
	}

	if err := result.Err(); err != nil {
		return cat, err
	}

	switch format := a.outputFormat("json"); format {
	case "engine":
		return cat, writeOutput(out, "json", cfg)
	default:
		return cat, writeOutput(out, format, cat)
	}
}

// checkPolicies evaluates the built-in and --policy policies against cfg.
func (a *app) checkPolicies(ctx context.Context, cfg *engine.Config) (*policy.PolicyResult, error) {
	op := telemetry.StartOperation(ctx, "policy.evaluate")
	result, err := a.evaluatePolicies(op.Ctx, op.Logger, cfg)
	op.End(err)
	if err != nil {
		return nil, err
	}

	logger := op.Logger.Zerolog()
	for _, v := range result.Violations {
		a.recordFinding(v)
		logger.Error().Str("policy", v.Policy).Str("resource", v.Resource).Msg(v.Message)
	}
	for _, v := range result.Warnings {
		a.recordFinding(v)
		logger.Warn().Str("policy", v.Policy).Str("resource", v.Resource).Msg(v.Message)
	}
	for _, msg := range result.Errors {
		logger.Warn().Msg(msg)
	}
	return result, nil
}

func (a *app) evaluatePolicies(ctx context.Context, logger *telemetry.Logger, cfg *engine.Config) (*policy.PolicyResult, error) {
	eng, err := policy.NewEngine(logger.Zerolog())
	if err != nil {
		return nil, err
	}
	if paths := a.v.GetStringSlice("policy"); len(paths) > 0 {
		if err := eng.LoadPolicies(ctx, paths); err != nil {
			return nil, engine.NewPermanentError("failed to load policies", err).WithCode(engine.ErrCodePolicy)
		}
	}
	return eng.Evaluate(ctx, cfg)
}

func (a *app) recordFinding(v policy.PolicyViolation) {
	if a.tel != nil {
		a.tel.Metrics.RecordPolicyViolation(v.Policy, string(v.Severity))
	}
}

// archive saves the compilation to --store and prunes old entries.
func (a *app) archive(ctx context.Context, cfg *engine.Config, params *config.Params, result *policy.PolicyResult) error {
	path := a.v.GetString("store")
	if path == "" {
		return nil
	}

	op := telemetry.StartOperation(ctx, "store.archive")
	err := a.doArchive(op.Ctx, path, cfg, params, result)
	op.End(err)
	return err
}

func (a *app) doArchive(ctx context.Context, path string, cfg *engine.Config, params *config.Params, result *policy.PolicyResult) error {
	store, err := openStore(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	rec := stores.NewCompilation(cfg)
	rec.Allowed = result.Allowed
	if rec.ParamsDigest, err = paramsDigest(params); err != nil {
		return err
	}
	for _, list := range [][]policy.PolicyViolation{result.Violations, result.Warnings} {
		for _, v := range list {
			rec.Findings = append(rec.Findings, &stores.Finding{
				Policy:   v.Policy,
				Resource: v.Resource,
				Severity: string(v.Severity),
				Message:  v.Message,
			})
		}
	}

	if err := store.SaveCompilation(ctx, rec); err != nil {
		return err
	}

	logger := telemetry.FromContext(ctx).Zerolog()
	if keep := a.v.GetInt("keep"); keep > 0 {
		pruned, err := store.PruneCompilations(ctx, rec.Node, keep)
		if err != nil {
			return err
		}
		if pruned > 0 {
			logger.Info().Int64("pruned", pruned).Msg("Old compilations pruned")
		}
	}

	logger.Debug().Str("store", path).Msg("Compilation archived")
	return nil
}

// openStore opens and migrates the archive at path.
func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// watch recompiles whenever a parameter source, the script or the facts
// file changes, until ctx is cancelled.
func (a *app) watch(ctx context.Context, out io.Writer) error {
	sources := a.v.GetStringSlice("params")
	for _, key := range []string{"script", "facts"} {
		if path := a.v.GetString(key); path != "" {
			sources = append(sources, path)
		}
	}
	if len(sources) == 0 {
		return fmt.Errorf("--watch needs at least one file to watch")
	}

	logger := telemetry.FromContext(ctx).Zerolog()
	watcher := config.NewWatcher(logger, 200*time.Millisecond)

	logger.Info().Strs("sources", sources).Msg("Watching for changes")
	return watcher.Watch(ctx, sources, func(path string) {
		logger.Info().Str("file", path).Msg("Source changed, recompiling")
		if err := a.compileOnce(ctx, out); err != nil {
			logger.Error().Err(err).Msg("Recompilation failed")
		}
	})
}
