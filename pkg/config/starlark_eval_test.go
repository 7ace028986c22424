package config

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestStarlarkEvaluator_Evaluate(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		script    string
		input     map[string]interface{}
		checkFunc func(*testing.T, *StarlarkResult)
		wantErr   bool
	}{
		{
			name:   "simple arithmetic",
			script: "result = 2 + 2\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != int64(4) {
					t.Errorf("expected result=4, got %v", sr.Output["result"])
				}
			},
		},
		{
			name: "top level conditional",
			script: `
group = "apache"
if family == "Debian":
    group = "www-data"
`,
			input: map[string]interface{}{"family": "Debian"},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["group"] != "www-data" {
					t.Errorf("expected group=www-data, got %v", sr.Output["group"])
				}
			},
		},
		{
			name: "dict keeps insertion order",
			script: `
settings = {"strict": True, "baseurl": "http://example.com/sp/", "security": {"digestAlgorithm": "sha384", "authnRequestsSigned": False}}
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				settings, ok := sr.Output["settings"].(*OrderedMap)
				if !ok {
					t.Fatalf("expected *OrderedMap, got %T", sr.Output["settings"])
				}
				if got, want := settings.Keys(), []string{"strict", "baseurl", "security"}; !reflect.DeepEqual(got, want) {
					t.Errorf("keys = %v, want %v", got, want)
				}
				security, _ := settings.Get("security")
				if got, want := security.(*OrderedMap).Keys(), []string{"digestAlgorithm", "authnRequestsSigned"}; !reflect.DeepEqual(got, want) {
					t.Errorf("nested keys = %v, want %v", got, want)
				}
			},
		},
		{
			name:   "functions and private globals are not exported",
			script: "def helper():\n    return 1\n_scratch = helper()\nvisible = _scratch + 1\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if _, ok := sr.Output["helper"]; ok {
					t.Error("function leaked into output")
				}
				if _, ok := sr.Output["_scratch"]; ok {
					t.Error("private global leaked into output")
				}
				if sr.Output["visible"] != int64(2) {
					t.Errorf("expected visible=2, got %v", sr.Output["visible"])
				}
			},
		},
		{
			name:   "struct becomes ordered map",
			script: `cfg = struct(user = "Admin", port = 10051)`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				cfg, ok := sr.Output["cfg"].(*OrderedMap)
				if !ok {
					t.Fatalf("expected *OrderedMap, got %T", sr.Output["cfg"])
				}
				if v, _ := cfg.Get("user"); v != "Admin" {
					t.Errorf("user = %v", v)
				}
				if v, _ := cfg.Get("port"); v != int64(10051) {
					t.Errorf("port = %v", v)
				}
			},
		},
		{
			name:   "tuple becomes list",
			script: `protocols = ("all", "-SSLv3")`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				want := []interface{}{"all", "-SSLv3"}
				if !reflect.DeepEqual(sr.Output["protocols"], want) {
					t.Errorf("protocols = %#v", sr.Output["protocols"])
				}
			},
		},
		{
			name:    "syntax error",
			script:  "if :\n",
			wantErr: true,
		},
		{
			name:    "runtime error",
			script:  `x = {}["missing"]`,
			wantErr: true,
		},
		{
			name:    "unsupported input type",
			script:  "x = 1\n",
			input:   map[string]interface{}{"bad": struct{}{}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, tt.script, tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if result == nil || result.Error == "" {
					t.Error("expected error message in result")
				}
				return
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, result)
			}
		})
	}
}

func TestStarlarkEvaluator_VersionAtLeast(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		version string
		minimum string
		want    bool
		wantErr bool
	}{
		{version: "6.0", minimum: "6.0", want: true},
		{version: "6.4", minimum: "6.0", want: true},
		{version: "5.4", minimum: "6.0", want: false},
		{version: "7.0", minimum: "6.4", want: true},
		{version: "six", minimum: "6.0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.version+">="+tt.minimum, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, "ok = version_at_least(v, m)\n", map[string]interface{}{
				"v": tt.version,
				"m": tt.minimum,
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if result.Output["ok"] != tt.want {
				t.Errorf("version_at_least(%s, %s) = %v, want %v", tt.version, tt.minimum, result.Output["ok"], tt.want)
			}
		})
	}
}

func TestStarlarkEvaluator_Timeout(t *testing.T) {
	evaluator := NewStarlarkEvaluator(100 * time.Millisecond)
	ctx := context.Background()

	script := `
def slow_function():
    result = 0
    for i in range(100000000):
        result = result + i
    return result

output = slow_function()
`

	result, err := evaluator.Evaluate(ctx, script, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if result == nil || result.Error == "" {
		t.Error("expected timeout error in result")
	}
}

func TestStarlarkEvaluator_TypeConversion(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	params := NewOrderedMap()
	params.Set("zabbix_url", "zabbix.example.com")
	params.Set("apache_listenport", 8080)

	tests := []struct {
		name      string
		input     map[string]interface{}
		script    string
		checkFunc func(*testing.T, *StarlarkResult)
	}{
		{
			name:   "bool",
			input:  map[string]interface{}{"enabled": true},
			script: "result = enabled and True\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != true {
					t.Errorf("expected result=true, got %v", sr.Output["result"])
				}
			},
		},
		{
			name:   "json number",
			input:  map[string]interface{}{"port": mustNumber("10051")},
			script: "result = port + 1\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != int64(10052) {
					t.Errorf("expected result=10052, got %v", sr.Output["result"])
				}
			},
		},
		{
			name:   "float",
			input:  map[string]interface{}{"ratio": 0.5},
			script: "result = ratio * 2\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != 1.0 {
					t.Errorf("expected result=1.0, got %v", sr.Output["result"])
				}
			},
		},
		{
			name:   "string slice",
			input:  map[string]interface{}{"access": []string{"127.0.0.1", "10.0.0.1"}},
			script: "result = len(access)\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != int64(2) {
					t.Errorf("expected result=2, got %v", sr.Output["result"])
				}
			},
		},
		{
			name:   "ordered map",
			input:  map[string]interface{}{"params": params},
			script: "result = params[\"zabbix_url\"] + \":\" + str(params[\"apache_listenport\"])\nkeys = list(params.keys())\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != "zabbix.example.com:8080" {
					t.Errorf("unexpected result %v", sr.Output["result"])
				}
				want := []interface{}{"zabbix_url", "apache_listenport"}
				if !reflect.DeepEqual(sr.Output["keys"], want) {
					t.Errorf("keys = %#v", sr.Output["keys"])
				}
			},
		},
		{
			name: "plain map",
			input: map[string]interface{}{
				"facts": map[string]interface{}{"family": "RedHat", "release_major": "8"},
			},
			script: "result = facts[\"family\"] + facts[\"release_major\"]\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != "RedHat8" {
					t.Errorf("unexpected result %v", sr.Output["result"])
				}
			},
		},
		{
			name:   "none",
			input:  map[string]interface{}{"missing": nil},
			script: "result = missing == None\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != true {
					t.Errorf("expected None input, got %v", sr.Output["result"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, tt.script, tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.checkFunc(t, result)
		})
	}
}

func TestStarlarkEvaluator_PrintSuppressed(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)

	result, err := evaluator.Evaluate(context.Background(), "print(\"noise\")\nresult = \"done\"\n", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output["result"] != "done" {
		t.Errorf("expected result='done', got %v", result.Output["result"])
	}
}

func mustNumber(s string) json.Number {
	return json.Number(s)
}
