package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{path: "web.cue", want: FormatCUE},
		{path: "web.json", want: FormatJSON},
		{path: "web.yaml", want: FormatYAML},
		{path: "web.YML", want: FormatYAML},
		{path: "web.toml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FormatFromPath() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FormatFromPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoader_LoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "web.yaml", `
zabbix_url: zabbix.example.com
database_type: mysql
manage_repo: false
zabbix_api_access:
  - 127.0.0.1
apache_vhost_custom_params:
  mdomain: true
  serveraliases: [zbx]
`)

	loader := NewLoader()
	loaded, err := loader.Load(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	p := loaded.Params
	if p.ZabbixURL != "zabbix.example.com" {
		t.Errorf("ZabbixURL = %q", p.ZabbixURL)
	}
	if p.DatabaseType != DatabaseMySQL {
		t.Errorf("DatabaseType = %q", p.DatabaseType)
	}
	if p.ManageRepo {
		t.Error("expected ManageRepo false")
	}
	if !p.ManageVhost {
		t.Error("expected default ManageVhost true to survive")
	}
	if !reflect.DeepEqual(p.ZabbixAPIAccess, []string{"127.0.0.1"}) {
		t.Errorf("ZabbixAPIAccess = %v", p.ZabbixAPIAccess)
	}
	if got := p.ApacheVhostCustomParams.Keys(); !reflect.DeepEqual(got, []string{"mdomain", "serveraliases"}) {
		t.Errorf("custom params keys = %v", got)
	}
	if len(loaded.SourceFiles) != 1 || loaded.SourceFiles[0] != path {
		t.Errorf("SourceFiles = %v", loaded.SourceFiles)
	}
}

func TestLoader_LoadCUEKeepsNestedOrder(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "web.cue", `
zabbix_url:    "zabbix.example.com"
zabbix_version: "5.0"
saml_sp_key:   "/etc/zabbix/saml/sp.key"
saml_settings: {
	strict:  true
	baseurl: "http://example.com/sp/"
	security: {
		signatureAlgorithm: "http://www.w3.org/2001/04/xmldsig-more#rsa-sha384"
		digestAlgorithm:    "http://www.w3.org/2001/04/xmldsig-more#sha384"
		singleLogoutService: responseUrl: ""
	}
}
`)

	loader := NewLoader()
	loaded, err := loader.Load(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	p := loaded.Params
	if p.ZabbixVersion != "5.0" {
		t.Errorf("ZabbixVersion = %q", p.ZabbixVersion)
	}
	if got, want := p.SAMLSettings.Keys(), []string{"strict", "baseurl", "security"}; !reflect.DeepEqual(got, want) {
		t.Errorf("saml keys = %v, want %v", got, want)
	}
	security, _ := p.SAMLSettings.Get("security")
	if got, want := security.(*OrderedMap).Keys(), []string{"signatureAlgorithm", "digestAlgorithm", "singleLogoutService"}; !reflect.DeepEqual(got, want) {
		t.Errorf("security keys = %v, want %v", got, want)
	}
}

func TestLoader_Layering(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.json", `{"zabbix_url": "base.example.com", "database_host": "db1"}`)
	site := writeFile(t, dir, "site.yaml", "database_host: db2\n")

	loader := NewLoader()
	loaded, err := loader.Load(context.Background(), []string{base, site})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if loaded.Params.ZabbixURL != "base.example.com" {
		t.Errorf("ZabbixURL = %q", loaded.Params.ZabbixURL)
	}
	if loaded.Params.DatabaseHost != "db2" {
		t.Errorf("DatabaseHost = %q, want db2", loaded.Params.DatabaseHost)
	}
	if len(loaded.SourceFiles) != 2 {
		t.Errorf("expected 2 source files, got %d", len(loaded.SourceFiles))
	}
}

func TestLoader_UnknownOption(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		content string
	}{
		{name: "json", format: FormatJSON, content: `{"zabbix_uri": "typo"}`},
		{name: "yaml", format: FormatYAML, content: "zabbix_uri: typo\n"},
		{name: "cue", format: FormatCUE, content: `zabbix_uri: "typo"`},
	}

	loader := NewLoader()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.LoadBytes("params."+tt.name, tt.format, []byte(tt.content))
			if err == nil {
				t.Fatal("expected error for unknown option")
			}
			var ves ValidationErrors
			if !errors.As(err, &ves) {
				t.Errorf("expected ValidationErrors, got %T", err)
			}
		})
	}
}

func TestLoader_CUEIncomplete(t *testing.T) {
	loader := NewLoader()
	_, err := loader.LoadBytes("web.cue", FormatCUE, []byte(`zabbix_url: string`))
	if err == nil {
		t.Fatal("expected error for non-concrete value")
	}
}

func TestLoader_MissingSource(t *testing.T) {
	loader := NewLoader()
	if _, err := loader.Load(context.Background(), []string{"/nonexistent/web.yaml"}); err == nil {
		t.Error("expected error for missing source")
	}
}

func TestLoader_ApplyScript(t *testing.T) {
	loader := NewLoader()
	ctx := context.Background()

	p := DefaultParams()
	p.ZabbixVersion = "6.4"

	script := `
overrides = {}
if version_at_least(params["zabbix_version"], "6.0"):
    overrides["database_double_ieee754"] = True
if facts["family"] == "RedHat":
    overrides["web_config_group"] = "nginx"
overrides["saml_settings"] = {"strict": True, "baseurl": "http://example.com/sp/"}
`

	out, err := loader.ApplyScript(ctx, p, script, map[string]any{
		"facts": map[string]any{"family": "RedHat"},
	})
	if err != nil {
		t.Fatalf("ApplyScript() failed: %v", err)
	}

	if !out.DatabaseDoubleIEEE754 {
		t.Error("expected database_double_ieee754 override")
	}
	if out.WebConfigGroup != "nginx" {
		t.Errorf("WebConfigGroup = %q", out.WebConfigGroup)
	}
	if out.ZabbixVersion != "6.4" {
		t.Errorf("untouched option changed: ZabbixVersion = %q", out.ZabbixVersion)
	}
	if got := out.SAMLSettings.Keys(); !reflect.DeepEqual(got, []string{"strict", "baseurl"}) {
		t.Errorf("saml keys = %v", got)
	}
}

func TestLoader_ApplyScriptWithoutOverrides(t *testing.T) {
	loader := NewLoader()
	p := DefaultParams()

	out, err := loader.ApplyScript(context.Background(), p, "x = 1\n", nil)
	if err != nil {
		t.Fatalf("ApplyScript() failed: %v", err)
	}
	if out != p {
		t.Error("expected the same record when no overrides are assigned")
	}
}

func TestLoader_ApplyScriptRejectsUnknownOption(t *testing.T) {
	loader := NewLoader()

	_, err := loader.ApplyScript(context.Background(), DefaultParams(), `overrides = {"no_such_option": 1}`, nil)
	if err == nil {
		t.Fatal("expected error for unknown override")
	}
}
