package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a parameter source.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported parameter file extension %q", filepath.Ext(path))
	}
}

// Loader reads parameter records from CUE, JSON and YAML sources.
// Sources are applied in order over DefaultParams, so later files override
// earlier ones option by option.
type Loader struct {
	ctx       *cue.Context
	validator *Validator
	starlark  *StarlarkEvaluator
}

// NewLoader creates a loader with the built-in schemas.
func NewLoader() *Loader {
	return &Loader{
		ctx:       cuecontext.New(),
		validator: NewValidator(nil),
		starlark:  NewStarlarkEvaluator(30 * time.Second),
	}
}

// Validator returns the validator used by the loader.
func (l *Loader) Validator() *Validator {
	return l.validator
}

// Load reads every source and returns the merged record. Validation is not
// performed; call Validate once all overrides are applied.
func (l *Loader) Load(ctx context.Context, sources []string) (*LoadedParams, error) {
	params := DefaultParams()
	var files []string

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		if info.IsDir() {
			data, dirFiles, err := l.exportDirectory(source)
			if err != nil {
				return nil, err
			}
			if err := decodeJSONLayer(data, params); err != nil {
				return nil, wrapDecodeError(source, err)
			}
			files = append(files, dirFiles...)
			continue
		}

		content, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", source, err)
		}
		format, err := FormatFromPath(source)
		if err != nil {
			return nil, err
		}
		if err := l.decodeLayer(source, format, content, params); err != nil {
			return nil, err
		}
		files = append(files, source)
	}

	return &LoadedParams{
		Params:      params,
		SourceFiles: files,
		LoadedAt:    time.Now(),
	}, nil
}

// LoadBytes decodes a single in-memory source over the defaults.
func (l *Loader) LoadBytes(name string, format Format, content []byte) (*Params, error) {
	params := DefaultParams()
	if err := l.decodeLayer(name, format, content, params); err != nil {
		return nil, err
	}
	return params, nil
}

// decodeLayer overlays one source onto params.
func (l *Loader) decodeLayer(name string, format Format, content []byte, params *Params) error {
	switch format {
	case FormatCUE:
		data, err := l.exportCUE(name, content)
		if err != nil {
			return err
		}
		return wrapDecodeError(name, decodeJSONLayer(data, params))
	case FormatJSON:
		return wrapDecodeError(name, decodeJSONLayer(content, params))
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(content))
		dec.KnownFields(true)
		if err := dec.Decode(params); err != nil && !errors.Is(err, io.EOF) {
			return wrapDecodeError(name, err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// exportCUE evaluates a CUE source and exports it as JSON.
// Field order of the source is kept in the export.
func (l *Loader) exportCUE(name string, content []byte) ([]byte, error) {
	val := l.ctx.CompileBytes(content, cue.Filename(name))
	if err := val.Err(); err != nil {
		return nil, ValidationErrors(convertCUEErrors(err))
	}
	return l.exportValue(val)
}

// exportDirectory loads a directory as a CUE package and exports it as JSON.
func (l *Loader) exportDirectory(dir string) ([]byte, []string, error) {
	buildInstances := load.Instances([]string{dir}, nil)
	if len(buildInstances) == 0 {
		return nil, nil, ValidationErrors{{File: dir, Message: "no CUE files found", Severity: "error"}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return nil, nil, ValidationErrors(convertCUEErrors(inst.Err))
	}

	val := l.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return nil, nil, ValidationErrors(convertCUEErrors(err))
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}

	data, err := l.exportValue(val)
	return data, files, err
}

func (l *Loader) exportValue(val cue.Value) ([]byte, error) {
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, ValidationErrors(convertCUEErrors(err))
	}
	data, err := val.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export CUE value: %w", err)
	}
	return data, nil
}

// decodeJSONLayer overlays a JSON object onto params, rejecting unknown options.
func decodeJSONLayer(data []byte, params *Params) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(params); err != nil {
		return err
	}
	return nil
}

func wrapDecodeError(name string, err error) error {
	if err == nil {
		return nil
	}
	var ves ValidationErrors
	if errors.As(err, &ves) {
		return ves
	}
	return ValidationErrors{{File: name, Message: err.Error(), Severity: "error"}}
}

// Validate checks a loaded record.
func (l *Loader) Validate(ctx context.Context, p *Params) error {
	return l.validator.Validate(ctx, p)
}

// ApplyScript runs a Starlark script against p. The script sees the current
// options as the dict "params" plus any extra inputs, and may assign a dict
// named "overrides" whose entries replace options of the same name.
func (l *Loader) ApplyScript(ctx context.Context, p *Params, script string, extra map[string]any) (*Params, error) {
	current, err := paramsToOrderedMap(p)
	if err != nil {
		return nil, err
	}

	input := map[string]any{"params": current}
	for k, v := range extra {
		input[k] = v
	}

	result, err := l.starlark.Evaluate(ctx, script, input)
	if err != nil {
		return nil, fmt.Errorf("failed to run override script: %w", err)
	}

	raw, ok := result.Output["overrides"]
	if !ok || raw == nil {
		return p, nil
	}
	overrides, ok := raw.(*OrderedMap)
	if !ok {
		return nil, fmt.Errorf("overrides must be a dict, got %T", raw)
	}

	current.Merge(overrides)
	data, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("failed to encode overridden parameters: %w", err)
	}

	out := &Params{}
	if err := decodeJSONLayer(data, out); err != nil {
		return nil, wrapDecodeError("overrides", err)
	}
	return out, nil
}

func paramsToOrderedMap(p *Params) (*OrderedMap, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}
	m := NewOrderedMap()
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	return m, nil
}
