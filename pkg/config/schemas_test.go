package config

import (
	"context"
	"strings"
	"testing"
)

func TestSchemaRegistry_RegisterAndGet(t *testing.T) {
	sr := NewSchemaRegistry()

	customSchema := `
#CustomType: {
	field1: string
	field2: int
}
`

	if err := sr.RegisterSchema("custom", customSchema); err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}

	schema, ok := sr.GetSchema("custom")
	if !ok {
		t.Fatal("expected to find custom schema")
	}

	if schema.Err() != nil {
		t.Errorf("schema has errors: %v", schema.Err())
	}
}

func TestSchemaRegistry_RegisterInvalid(t *testing.T) {
	sr := NewSchemaRegistry()

	tests := []struct {
		name   string
		schema string
	}{
		{name: "syntax error", schema: `#Broken: { field: string `},
		{name: "no definition", schema: `field: string`},
		{name: "two definitions", schema: "#A: {a: int}\n#B: {b: int}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := sr.RegisterSchema("bad", tt.schema); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSchemaRegistry_BuiltInSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	names := sr.ListSchemas()
	if len(names) != 1 || names[0] != "web" {
		t.Fatalf("expected [web], got %v", names)
	}

	if _, ok := sr.GetSchema("web"); !ok {
		t.Fatal("built-in schema web not found")
	}

	// #WebParams holds conditional fields, so it is checked through a
	// concrete record rather than on its own.
	if err := sr.ValidateParams(context.Background(), DefaultParams()); err != nil {
		t.Errorf("defaults do not satisfy built-in schema web: %v", err)
	}

	ssl := DefaultParams()
	ssl.ApacheUseSSL = true
	if err := sr.ValidateParams(context.Background(), ssl); err == nil {
		t.Error("expected built-in schema web to require SSL files when apache_use_ssl is set")
	}
}

func TestSchemaRegistry_ValidateParams(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		modify  func(p *Params)
		wantErr bool
	}{
		{
			name:    "defaults",
			modify:  func(p *Params) {},
			wantErr: false,
		},
		{
			name: "mysql backend",
			modify: func(p *Params) {
				p.DatabaseType = DatabaseMySQL
			},
			wantErr: false,
		},
		{
			name: "two backends",
			modify: func(p *Params) {
				p.DatabaseType = "postgresql,mysql"
			},
			wantErr: true,
		},
		{
			name: "unknown version",
			modify: func(p *Params) {
				p.ZabbixVersion = "4.0"
			},
			wantErr: true,
		},
		{
			name: "ssl without certificate",
			modify: func(p *Params) {
				p.ApacheUseSSL = true
			},
			wantErr: true,
		},
		{
			name: "ssl with certificate",
			modify: func(p *Params) {
				p.ApacheUseSSL = true
				p.ApacheSSLCert = "/etc/pki/tls/certs/zabbix.crt"
				p.ApacheSSLKey = "/etc/pki/tls/private/zabbix.key"
			},
			wantErr: false,
		},
		{
			name: "invalid ldap reqcert",
			modify: func(p *Params) {
				p.LDAPReqCert = "sometimes"
			},
			wantErr: true,
		},
		{
			name: "saml settings",
			modify: func(p *Params) {
				p.SAMLSettings = NewOrderedMap()
				p.SAMLSettings.Set("strict", true)
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(p)

			err := sr.ValidateParams(ctx, p)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateParams() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaRegistry_NotFound(t *testing.T) {
	sr := NewSchemaRegistry()

	err := sr.ValidateAgainstSchema(context.Background(), "missing", map[string]string{})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestConvertCUEErrors(t *testing.T) {
	sr := NewSchemaRegistry()
	p := DefaultParams()
	p.DatabaseType = "oracle"

	err := sr.ValidateParams(context.Background(), p)
	if err == nil {
		t.Fatal("expected validation error")
	}

	converted := convertCUEErrors(err)
	if len(converted) == 0 {
		t.Fatal("expected at least one converted error")
	}
	for _, ve := range converted {
		if ve.Severity != "error" {
			t.Errorf("expected severity error, got %s", ve.Severity)
		}
		if ve.Message == "" {
			t.Error("expected a message")
		}
	}
}
