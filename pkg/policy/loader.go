package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/open-policy-agent/opa/ast"
	"github.com/rs/zerolog"
)

// decodeFunc turns the raw content of a policy file into a Policy.
type decodeFunc func(path string, data []byte) (*Policy, error)

// Loader reads site policies from .rego modules and .json definitions.
//
// A .rego module may describe itself with an OPA METADATA block above its
// package clause:
//
//	# METADATA
//	# title: vhost-port
//	# description: Virtual hosts stay on 80 and 443
//	# custom:
//	#   severity: error
//	#   tags: [apache]
//
// Without a block the policy is named after the file, described by its
// leading comments and reports at warning severity.
type Loader struct {
	logger   zerolog.Logger
	decoders map[string]decodeFunc

	mu    sync.RWMutex
	cache map[string]*Policy
}

// NewLoader creates a policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	l := &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
		cache:  make(map[string]*Policy),
	}
	l.decoders = map[string]decodeFunc{
		".rego": l.decodeRego,
		".json": l.decodeJSON,
	}
	return l
}

// LoadFromPaths loads every policy below the given files and directories.
// A file named explicitly must load; files found while walking a directory
// are skipped with a warning when they fail.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var loaded []Policy

	for _, root := range paths {
		files, explicit, err := l.policyFiles(root)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", root, err)
		}

		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			p, err := l.loadFromFile(ctx, file)
			if err != nil {
				if explicit {
					return nil, fmt.Errorf("failed to load from path %s: %w", root, err)
				}
				l.logger.Warn().Err(err).Str("path", file).Msg("Skipping policy file")
				continue
			}
			loaded = append(loaded, *p)
		}
	}

	l.logger.Info().
		Int("total", len(loaded)).
		Int("sources", len(paths)).
		Msg("Policies loaded from paths")

	return loaded, nil
}

// policyFiles expands root into the policy files it names. explicit is true
// when root is itself a file.
func (l *Loader) policyFiles(root string) (files []string, explicit bool, err error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, false, fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return []string{root}, true, nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := l.decoders[filepath.Ext(path)]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to walk directory: %w", err)
	}
	return files, false, nil
}

// loadFromFile decodes one policy file. Results are cached by path.
func (l *Loader) loadFromFile(_ context.Context, path string) (*Policy, error) {
	l.mu.RLock()
	cached, ok := l.cache[path]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	decode, ok := l.decoders[filepath.Ext(path)]
	if !ok {
		return nil, fmt.Errorf("unsupported policy file type: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	p, err := decode(path, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	l.mu.Lock()
	l.cache[path] = p
	l.mu.Unlock()

	l.logger.Debug().
		Str("path", path).
		Str("policy", p.Name).
		Str("severity", string(p.Severity)).
		Msg("Policy loaded from file")

	return p, nil
}

// decodeRego parses a Rego module and reads its package annotations.
func (l *Loader) decodeRego(path string, data []byte) (*Policy, error) {
	content := string(data)
	module, err := ast.ParseModuleWithOpts(path, content, ast.ParserOptions{ProcessAnnotation: true})
	if err != nil {
		return nil, fmt.Errorf("failed to parse rego: %w", err)
	}

	p := &Policy{
		Name:     strings.TrimSuffix(filepath.Base(path), ".rego"),
		Rego:     content,
		Severity: SeverityWarning,
		Enabled:  true,
		Tags:     []string{},
		Metadata: map[string]interface{}{
			"source":  path,
			"package": strings.TrimPrefix(module.Package.Path.String(), "data."),
		},
	}

	annotations := packageAnnotations(module)
	if annotations == nil {
		p.Description = l.extractDescription(content)
		return p, nil
	}

	if annotations.Title != "" {
		p.Name = annotations.Title
	}
	p.Description = annotations.Description
	if raw, ok := annotations.Custom["severity"]; ok {
		if p.Severity, err = parseSeverity(raw); err != nil {
			return nil, err
		}
	}
	if raw, ok := annotations.Custom["tags"]; ok {
		p.Tags = parseTags(raw)
	}
	return p, nil
}

// decodeJSON reads a complete policy definition.
func (l *Loader) decodeJSON(_ string, data []byte) (*Policy, error) {
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse JSON policy: %w", err)
	}

	switch {
	case p.Name == "":
		return nil, fmt.Errorf("JSON policy has no name")
	case p.Rego == "":
		return nil, fmt.Errorf("JSON policy %s has no rego", p.Name)
	}

	if p.Severity == "" {
		p.Severity = SeverityWarning
	} else if _, err := parseSeverity(string(p.Severity)); err != nil {
		return nil, err
	}
	return &p, nil
}

func packageAnnotations(module *ast.Module) *ast.Annotations {
	for _, a := range module.Annotations {
		if a.Scope == "package" || a.Scope == "subpackages" {
			return a
		}
	}
	return nil
}

func parseSeverity(raw interface{}) (Severity, error) {
	s, _ := raw.(string)
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return sev, nil
	}
	return "", fmt.Errorf("invalid policy severity %v", raw)
}

// parseTags accepts a YAML list or a comma separated string.
func parseTags(raw interface{}) []string {
	tags := []string{}
	switch v := raw.(type) {
	case string:
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	case []interface{}:
		for _, item := range v {
			if tag, ok := item.(string); ok && tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

// extractDescription joins the comment lines leading a module.
func (l *Loader) extractDescription(content string) string {
	var parts []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			if line != "" && len(parts) > 0 {
				break
			}
			continue
		}
		if text := strings.TrimSpace(line[1:]); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// ClearCache drops every cached policy.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]*Policy)
	l.mu.Unlock()

	l.logger.Debug().Msg("Policy cache cleared")
}
