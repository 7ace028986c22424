package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const vhostPortPolicy = `# Virtual hosts must not listen on privileged
# ports other than 80 and 443
package site.vhostport

import rego.v1

deny contains msg if {
	input.resource.type == "Apache::Vhost"
	port := input.resource.config.attributes.port
	port < 1024
	not port in {80, 443}
	msg := sprintf("%s listens on port %d", [input.resource.id, port])
}`

func writePolicy(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	return path
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	path := writePolicy(t, t.TempDir(), "vhost-port.rego", vhostPortPolicy)

	policy, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "vhost-port" {
		t.Errorf("Expected name 'vhost-port', got '%s'", policy.Name)
	}
	if policy.Rego != vhostPortPolicy {
		t.Error("Rego content doesn't match")
	}
	if policy.Description != "Virtual hosts must not listen on privileged ports other than 80 and 443" {
		t.Errorf("Unexpected description %q", policy.Description)
	}
	if policy.Severity != SeverityWarning {
		t.Errorf("Expected default severity warning, got %s", policy.Severity)
	}
	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}
	if policy.Metadata["source"] != path {
		t.Errorf("Expected source metadata %s, got %v", path, policy.Metadata["source"])
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policy := Policy{
		Name:        "vhost-port",
		Description: "Privileged ports",
		Rego:        vhostPortPolicy,
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"apache"},
	}
	data, err := json.Marshal(policy)
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}
	path := writePolicy(t, t.TempDir(), "vhost-port.json", string(data))

	loaded, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if loaded.Name != policy.Name || loaded.Severity != policy.Severity {
		t.Errorf("Loaded policy %s/%s, want %s/%s", loaded.Name, loaded.Severity, policy.Name, policy.Severity)
	}
}

func TestLoadFromFile_JSONMissingFields(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	tests := map[string]string{
		"no-name.json": `{"rego": "package p\ndeny[msg] { false }"}`,
		"no-rego.json": `{"name": "empty"}`,
		"invalid.json": `invalid json`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := writePolicy(t, dir, name, content)
			if _, err := loader.loadFromFile(context.Background(), path); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestLoadFromPaths_DirectoryRecursive(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	dir := t.TempDir()
	sub := filepath.Join(dir, "site")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}

	writePolicy(t, dir, "vhost-port.rego", vhostPortPolicy)
	writePolicy(t, sub, "no-op.rego", "package site.noop\nimport rego.v1\ndeny contains msg if { false }")
	writePolicy(t, sub, "broken.rego", "package site.broken\ndeny contains msg if {")
	writePolicy(t, dir, "README.md", "# Site policies")

	loaded, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}

	if len(loaded) != 2 {
		t.Errorf("Expected 2 policies (broken file skipped), got %d", len(loaded))
	}
}

func TestLoadFromPaths_ExplicitBrokenFile(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	path := writePolicy(t, t.TempDir(), "broken.rego", "package site.broken\ndeny contains msg if {")

	if _, err := loader.LoadFromPaths(context.Background(), []string{path}); err == nil {
		t.Error("Expected error for a broken policy named explicitly")
	}
}

const annotatedPolicy = `# METADATA
# title: api-access
# description: The API front end must not be open to everyone
# custom:
#   severity: critical
#   tags: [api, network]
package site.apiaccess

import rego.v1

deny contains msg if {
	input.resource.type == "Apache::Vhost"
	msg := "never"
	false
}
`

func TestLoadFromFile_RegoAnnotations(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	path := writePolicy(t, t.TempDir(), "api.rego", annotatedPolicy)

	policy, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "api-access" {
		t.Errorf("Expected name from title, got '%s'", policy.Name)
	}
	if policy.Description != "The API front end must not be open to everyone" {
		t.Errorf("Unexpected description %q", policy.Description)
	}
	if policy.Severity != SeverityCritical {
		t.Errorf("Expected severity critical, got %s", policy.Severity)
	}
	if len(policy.Tags) != 2 || policy.Tags[0] != "api" || policy.Tags[1] != "network" {
		t.Errorf("Unexpected tags %v", policy.Tags)
	}
	if policy.Metadata["package"] != "site.apiaccess" {
		t.Errorf("Unexpected package metadata %v", policy.Metadata["package"])
	}
}

func TestLoadFromFile_RegoInvalidSeverity(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	content := strings.Replace(annotatedPolicy, "severity: critical", "severity: fatal", 1)
	path := writePolicy(t, t.TempDir(), "api.rego", content)

	if _, err := loader.loadFromFile(context.Background(), path); err == nil {
		t.Error("Expected error for unknown severity")
	}
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
		want int
	}{
		{name: "list", raw: []interface{}{"apache", "", 3}, want: 1},
		{name: "comma string", raw: "apache, php ,", want: 2},
		{name: "other", raw: 42, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseTags(tt.raw); len(got) != tt.want {
				t.Errorf("parseTags(%v) = %v, want %d tags", tt.raw, got, tt.want)
			}
		})
	}
}

func TestLoadFromPaths(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	dir := t.TempDir()
	policyDir := filepath.Join(dir, "policies")
	if err := os.Mkdir(policyDir, 0o755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	writePolicy(t, policyDir, "vhost-port.rego", vhostPortPolicy)
	single := writePolicy(t, dir, "no-op.rego", "package site.noop\nimport rego.v1\ndeny contains msg if { false }")

	loaded, err := loader.LoadFromPaths(context.Background(), []string{policyDir, single})
	if err != nil {
		t.Fatalf("Failed to load paths: %v", err)
	}

	if len(loaded) != 2 {
		t.Errorf("Expected 2 policies, got %d", len(loaded))
	}

	if _, err := loader.LoadFromPaths(context.Background(), []string{"/nonexistent/path"}); err == nil {
		t.Error("Expected error for non-existent path")
	}
}

func TestExtractDescription(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "single line comment",
			content:  "# Keep api.conf private\npackage test",
			expected: "Keep api.conf private",
		},
		{
			name:     "no comments",
			content:  "package test\ndeny[msg] { false }",
			expected: "",
		},
		{
			name:     "comments with empty lines",
			content:  "# First line\n#\n# Second line\npackage test",
			expected: "First line Second line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := loader.extractDescription(tt.content); result != tt.expected {
				t.Errorf("Expected description '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestClearCache(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	path := writePolicy(t, t.TempDir(), "vhost-port.rego", vhostPortPolicy)

	if _, err := loader.loadFromFile(context.Background(), path); err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(loader.cache) != 1 {
		t.Errorf("Expected 1 cache entry, got %d", len(loader.cache))
	}

	loader.ClearCache()

	if len(loader.cache) != 0 {
		t.Errorf("Expected 0 cache entries after clear, got %d", len(loader.cache))
	}
}

func TestLoadFromFile_UnsupportedType(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	path := writePolicy(t, t.TempDir(), "policy.txt", "not a policy")

	if _, err := loader.loadFromFile(context.Background(), path); err == nil {
		t.Error("Expected error for unsupported file type")
	}
}
