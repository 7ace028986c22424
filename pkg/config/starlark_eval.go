package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// overrideFileOptions allows top-level if/for so scripts can branch on facts
// without wrapping everything in a function.
var overrideFileOptions = &syntax.FileOptions{
	Set:             true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// StarlarkEvaluator runs parameter override scripts under a deadline.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates an evaluator. A zero timeout means 30s.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{timeout: timeout}
}

// Evaluate runs script with input bound as predeclared names and returns the
// public globals it leaves behind. Functions and names starting with "_" are
// not part of the output.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, script string, input map[string]interface{}) (*StarlarkResult, error) {
	start := time.Now()
	result := &StarlarkResult{}

	ctx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: "overrides",
		Print: func(_ *starlark.Thread, msg string) {
			log.Debug().Str("script", "overrides").Msg(msg)
		},
	}
	stop := context.AfterFunc(ctx, func() { thread.Cancel(ctx.Err().Error()) })
	defer stop()

	output, err := se.run(thread, script, input)
	result.ExecutionTime = time.Since(start)

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("starlark execution timeout after %v", se.timeout)
	}
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	result.Output = output
	return result, nil
}

func (se *StarlarkEvaluator) run(thread *starlark.Thread, script string, input map[string]interface{}) (map[string]interface{}, error) {
	predeclared, err := predeclare(input)
	if err != nil {
		return nil, err
	}

	globals, err := starlark.ExecFileOptions(overrideFileOptions, thread, "overrides.star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]interface{}, len(globals))
	for name, val := range globals {
		if name == "" || name[0] == '_' {
			continue
		}
		if _, ok := val.(*starlark.Function); ok {
			continue
		}
		v, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", name, err)
		}
		output[name] = v
	}
	return output, nil
}

func predeclare(input map[string]interface{}) (starlark.StringDict, error) {
	env := starlark.StringDict{
		"struct":           starlark.NewBuiltin("struct", starlarkstruct.Make),
		"version_at_least": starlark.NewBuiltin("version_at_least", builtinVersionAtLeast),
	}
	for name, v := range input {
		sv, err := toStarlarkValue(v)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", name, err)
		}
		env[name] = sv
	}
	return env, nil
}

// toStarlarkValue maps decoded parameter and fact values into Starlark.
// Maps become dicts in key order.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return starlark.MakeInt64(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, err
		}
		return starlark.Float(f), nil
	case []string:
		elems := make([]starlark.Value, 0, len(val))
		for _, s := range val {
			elems = append(elems, starlark.String(s))
		}
		return starlark.NewList(elems), nil
	case []interface{}:
		elems := make([]starlark.Value, 0, len(val))
		for _, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			elems = append(elems, sv)
		}
		return starlark.NewList(elems), nil
	case map[string]interface{}:
		return toStarlarkValue(OrderedMapFromMap(val))
	case *OrderedMap:
		dict := starlark.NewDict(val.Len())
		for _, key := range val.Keys() {
			item, _ := val.Get(key)
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			if err := dict.SetKey(starlark.String(key), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	}
	return nil, fmt.Errorf("unsupported type: %T", v)
}

// fromStarlarkValue maps a script global back to Go. Dicts and structs
// become *OrderedMap, lists and tuples []interface{}.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s out of range", val)
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List, starlark.Tuple:
		return fromStarlarkSequence(val.(starlark.Sequence))
	case *starlark.Dict:
		out := NewOrderedMap()
		for _, kv := range val.Items() {
			key, ok := kv[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key %s is not a string", kv[0])
			}
			item, err := fromStarlarkValue(kv[1])
			if err != nil {
				return nil, err
			}
			out.Set(string(key), item)
		}
		return out, nil
	case *starlarkstruct.Struct:
		out := NewOrderedMap()
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				return nil, err
			}
			item, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			out.Set(name, item)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
}

func fromStarlarkSequence(seq starlark.Sequence) ([]interface{}, error) {
	out := make([]interface{}, 0, seq.Len())
	iter := seq.Iterate()
	defer iter.Done()

	var elem starlark.Value
	for iter.Next(&elem) {
		item, err := fromStarlarkValue(elem)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// builtinVersionAtLeast implements version_at_least(version, minimum) for
// major.minor Zabbix versions.
func builtinVersionAtLeast(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var version, minimum string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "version", &version, "minimum", &minimum); err != nil {
		return nil, err
	}

	c, err := CompareVersions(version, minimum)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.Bool(c >= 0), nil
}
