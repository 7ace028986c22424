package config

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers all built-in schemas.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	if err := sr.RegisterSchema("web", builtinWebParamsSchema); err != nil {
		panic(fmt.Sprintf("built-in schema does not compile: %v", err))
	}
}

// RegisterSchema registers a CUE schema with the given name.
// The schema must define exactly one top-level definition.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	iter, err := val.Fields(cue.Definitions(true))
	if err != nil {
		return fmt.Errorf("failed to read schema %s: %w", name, err)
	}
	var def cue.Value
	found := 0
	for iter.Next() {
		if iter.Selector().IsDefinition() {
			def = iter.Value()
			found++
		}
	}
	if found != 1 {
		return fmt.Errorf("schema %s must define exactly one definition, found %d", name, found)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ValidateParams validates a parameter record against the web schema.
func (sr *SchemaRegistry) ValidateParams(ctx context.Context, p *Params) error {
	return sr.ValidateAgainstSchema(ctx, "web", p)
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// convertCUEErrors converts CUE errors to ValidationError entries.
func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError

	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{
			Message:  cueerrors.Details(e, nil),
			Severity: "error",
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		if path := e.Path(); len(path) > 0 {
			ve.Path = strings.Join(path, ".")
		}
		out = append(out, ve)
	}

	if len(out) == 0 {
		out = append(out, ValidationError{Message: err.Error(), Severity: "error"})
	}
	return out
}

const builtinWebParamsSchema = `
// Parameters of the Zabbix web front-end.
#WebParams: {
	zabbix_url:      string & =~"^[A-Za-z0-9]([A-Za-z0-9.-]*[A-Za-z0-9])?$"
	zabbix_version:  "5.0" | "5.2" | "5.4" | "6.0" | "6.2" | "6.4" | "7.0"
	zabbix_timezone: string & !=""

	manage_repo:      bool
	manage_vhost:     bool
	manage_resources: bool
	manage_selinux:   bool

	zabbix_api_user: string & !=""
	zabbix_api_pass: string & !=""
	zabbix_api_access?: [...string]

	zabbix_server:       string & !=""
	zabbix_server_name?: string
	zabbix_listenport:   =~"^[0-9]+$"

	// Exactly one backend.
	database_type:      "postgresql" | "mysql"
	database_host:      string & !=""
	database_port?:     =~"^[0-9]+$"
	database_name:      string & !=""
	database_user:      string & !=""
	database_password:  string
	database_schema?:   string

	ldap_reqcert?: "never" | "allow" | "try" | "demand" | "hard"

	saml_settings?: {[string]: _}

	apache_use_ssl:        bool | *false
	apache_listenport:     int & >0 & <=65535
	apache_listenport_ssl: int & >0 & <=65535
	if apache_use_ssl {
		apache_ssl_cert: string & !=""
		apache_ssl_key:  string & !=""
	}
	apache_vhost_custom_params?: {[string]: _}

	apache_php_max_execution_time:  int & >=0
	apache_php_max_input_time:      int & >=0
	apache_php_max_input_vars:      int & >=0
	apache_php_memory_limit:        =~"^[0-9]+[KMG]?$"
	apache_php_post_max_size:       =~"^[0-9]+[KMG]?$"
	apache_php_upload_max_filesize: =~"^[0-9]+[KMG]?$"

	...
}
`
