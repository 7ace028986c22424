package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfroyo/zabbix-web/pkg/catalog"
	"github.com/openfroyo/zabbix-web/pkg/config"
	"github.com/openfroyo/zabbix-web/pkg/facts"
	"github.com/openfroyo/zabbix-web/pkg/telemetry"
)

// inputs are the parameters and host facts of one compilation.
type inputs struct {
	loader  *config.Loader
	params  *config.Params
	facts   *facts.HostFacts
	sources []string
}

// addInputFlags registers the flags that locate parameters and facts.
func addInputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSlice("params", nil, "parameter file or CUE package directory, applied in order (repeatable)")
	f.String("script", "", "Starlark script that may override parameters")
	f.String("facts", "", "host facts file (YAML or JSON); discovered from --facts-root when unset")
	f.String("facts-root", "/", "filesystem root facts are discovered under")
	f.String("node", "", "override the host name of the facts")
}

// loadFacts reads facts from --facts or discovers them under --facts-root.
func (a *app) loadFacts() (*facts.HostFacts, error) {
	var (
		hf  *facts.HostFacts
		err error
	)
	if path := a.v.GetString("facts"); path != "" {
		hf, err = facts.LoadFile(path)
	} else {
		hf, err = facts.Discover(a.v.GetString("facts-root"))
	}
	if err != nil {
		return nil, err
	}

	if node := a.v.GetString("node"); node != "" {
		hf.Hostname = node
	}
	return hf, nil
}

// loadInputs gathers facts, loads the parameter sources and applies the
// override script. The record is not validated.
func (a *app) loadInputs(ctx context.Context) (*inputs, error) {
	op := telemetry.StartOperation(ctx, "params.load")
	in, err := a.doLoadInputs(op.Ctx)
	op.End(err)
	return in, err
}

func (a *app) doLoadInputs(ctx context.Context) (*inputs, error) {
	hf, err := a.loadFacts()
	if err != nil {
		return nil, err
	}

	loader := config.NewLoader()
	loaded, err := loader.Load(ctx, a.v.GetStringSlice("params"))
	if err != nil {
		return nil, err
	}

	params := loaded.Params
	if script := a.v.GetString("script"); script != "" {
		data, err := os.ReadFile(script)
		if err != nil {
			return nil, fmt.Errorf("failed to read script: %w", err)
		}
		params, err = loader.ApplyScript(ctx, params, string(data), map[string]any{
			"facts": hf.ToMap(),
		})
		if err != nil {
			return nil, err
		}
	}

	logger := telemetry.FromContext(ctx).Zerolog()
	logger.Debug().
		Strs("sources", loaded.SourceFiles).
		Str("family", string(hf.Family)).
		Msg("Inputs loaded")

	return &inputs{
		loader:  loader,
		params:  params,
		facts:   hf,
		sources: loaded.SourceFiles,
	}, nil
}

// buildCatalog compiles the catalog for in and assigns it id.
func (a *app) buildCatalog(ctx context.Context, id string, in *inputs) (*catalog.Catalog, error) {
	op := telemetry.StartOperation(ctx, "catalog.build")
	compiler := catalog.NewCompiler(nil, in.loader.Validator(), op.Logger.Zerolog())
	cat, err := compiler.Compile(op.Ctx, in.params, *in.facts)
	op.End(err)
	if err != nil {
		return nil, err
	}
	if id != "" {
		cat.ID = id
	}
	return cat, nil
}

// paramsDigest fingerprints the effective parameters.
func paramsDigest(p *config.Params) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode parameters: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
