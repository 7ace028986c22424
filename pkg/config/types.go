package config

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// DatabaseType selects the database backend the front-end connects to.
type DatabaseType string

const (
	// DatabasePostgreSQL selects the PostgreSQL backend.
	DatabasePostgreSQL DatabaseType = "postgresql"

	// DatabaseMySQL selects the MySQL/MariaDB backend.
	DatabaseMySQL DatabaseType = "mysql"
)

// PHPLiteral returns the value Zabbix expects in $DB['TYPE'].
func (d DatabaseType) PHPLiteral() string {
	return strings.ToUpper(string(d))
}

// SupportedVersions lists the Zabbix releases the compiler knows how to render.
var SupportedVersions = []string{"5.0", "5.2", "5.4", "6.0", "6.2", "6.4", "7.0"}

// Params is the configuration record of the web front-end.
// Field names follow the option names accepted in parameter files.
type Params struct {
	// ZabbixURL is the virtual host name the front-end is served under.
	ZabbixURL string `json:"zabbix_url" yaml:"zabbix_url" validate:"required,hostname_rfc1123|ip"`

	// ZabbixVersion is the major.minor Zabbix release (e.g. "6.0").
	ZabbixVersion string `json:"zabbix_version" yaml:"zabbix_version" validate:"required,oneof=5.0 5.2 5.4 6.0 6.2 6.4 7.0"`

	// ZabbixTimezone is written as PHP date.timezone.
	ZabbixTimezone string `json:"zabbix_timezone" yaml:"zabbix_timezone" validate:"required"`

	ManageRepo      bool `json:"manage_repo" yaml:"manage_repo"`
	ManageVhost     bool `json:"manage_vhost" yaml:"manage_vhost"`
	ManageResources bool `json:"manage_resources" yaml:"manage_resources"`
	ManageSELinux   bool `json:"manage_selinux" yaml:"manage_selinux"`

	// Zabbix API credentials used by the import tooling.
	ZabbixAPIUser   string   `json:"zabbix_api_user" yaml:"zabbix_api_user" validate:"required"`
	ZabbixAPIPass   string   `json:"zabbix_api_pass" yaml:"zabbix_api_pass" validate:"required"`
	ZabbixAPIAccess []string `json:"zabbix_api_access,omitempty" yaml:"zabbix_api_access,omitempty" validate:"omitempty,dive,hostname_rfc1123|ip"`

	// Zabbix server the front-end talks to.
	ZabbixServer     string `json:"zabbix_server" yaml:"zabbix_server" validate:"required"`
	ZabbixServerName string `json:"zabbix_server_name,omitempty" yaml:"zabbix_server_name,omitempty"`
	ZabbixListenPort string `json:"zabbix_listenport" yaml:"zabbix_listenport" validate:"required,numeric"`

	// Database connection.
	DatabaseType          DatabaseType `json:"database_type" yaml:"database_type" validate:"required,oneof=postgresql mysql"`
	DatabaseHost          string       `json:"database_host" yaml:"database_host" validate:"required"`
	DatabasePort          string       `json:"database_port,omitempty" yaml:"database_port,omitempty" validate:"omitempty,numeric"`
	DatabaseName          string       `json:"database_name" yaml:"database_name" validate:"required"`
	DatabaseUser          string       `json:"database_user" yaml:"database_user" validate:"required"`
	DatabasePassword      string       `json:"database_password" yaml:"database_password"`
	DatabaseSchema        string       `json:"database_schema,omitempty" yaml:"database_schema,omitempty"`
	DatabaseDoubleIEEE754 bool         `json:"database_double_ieee754,omitempty" yaml:"database_double_ieee754,omitempty"`

	// Database TLS.
	DatabaseTLSEncryption bool   `json:"database_tlsencryption,omitempty" yaml:"database_tlsencryption,omitempty"`
	DatabaseTLSKeyFile    string `json:"database_tlskeyfile,omitempty" yaml:"database_tlskeyfile,omitempty" validate:"omitempty,startswith=/"`
	DatabaseTLSCertFile   string `json:"database_tlscertfile,omitempty" yaml:"database_tlscertfile,omitempty" validate:"omitempty,startswith=/"`
	DatabaseTLSCAFile     string `json:"database_tlscafile,omitempty" yaml:"database_tlscafile,omitempty" validate:"omitempty,startswith=/"`
	DatabaseTLSVerifyHost bool   `json:"database_tlsverifyhost,omitempty" yaml:"database_tlsverifyhost,omitempty"`
	DatabaseTLSCipherList string `json:"database_tlscipherlist,omitempty" yaml:"database_tlscipherlist,omitempty"`

	// LDAP client TLS environment.
	LDAPCACert     string `json:"ldap_cacert,omitempty" yaml:"ldap_cacert,omitempty" validate:"omitempty,startswith=/"`
	LDAPClientCert string `json:"ldap_clientcert,omitempty" yaml:"ldap_clientcert,omitempty" validate:"omitempty,startswith=/"`
	LDAPClientKey  string `json:"ldap_clientkey,omitempty" yaml:"ldap_clientkey,omitempty" validate:"omitempty,startswith=/"`
	LDAPReqCert    string `json:"ldap_reqcert,omitempty" yaml:"ldap_reqcert,omitempty" validate:"omitempty,oneof=never allow try demand hard"`

	// SAML single sign-on.
	SAMLSPKey    string      `json:"saml_sp_key,omitempty" yaml:"saml_sp_key,omitempty" validate:"omitempty,startswith=/"`
	SAMLSPCert   string      `json:"saml_sp_cert,omitempty" yaml:"saml_sp_cert,omitempty" validate:"omitempty,startswith=/"`
	SAMLIdPCert  string      `json:"saml_idp_cert,omitempty" yaml:"saml_idp_cert,omitempty" validate:"omitempty,startswith=/"`
	SAMLSettings *OrderedMap `json:"saml_settings,omitempty" yaml:"saml_settings,omitempty"`

	// Ownership of the rendered zabbix.conf.php. Empty means the OS default.
	WebConfigOwner string `json:"web_config_owner,omitempty" yaml:"web_config_owner,omitempty"`
	WebConfigGroup string `json:"web_config_group,omitempty" yaml:"web_config_group,omitempty"`

	// Apache virtual host.
	ApacheUseSSL            bool        `json:"apache_use_ssl" yaml:"apache_use_ssl"`
	ApacheListenPort        int         `json:"apache_listenport" yaml:"apache_listenport" validate:"required,min=1,max=65535"`
	ApacheListenPortSSL     int         `json:"apache_listenport_ssl" yaml:"apache_listenport_ssl" validate:"required,min=1,max=65535"`
	ApacheSSLCert           string      `json:"apache_ssl_cert,omitempty" yaml:"apache_ssl_cert,omitempty" validate:"required_if=ApacheUseSSL true"`
	ApacheSSLKey            string      `json:"apache_ssl_key,omitempty" yaml:"apache_ssl_key,omitempty" validate:"required_if=ApacheUseSSL true"`
	ApacheSSLChain          string      `json:"apache_ssl_chain,omitempty" yaml:"apache_ssl_chain,omitempty" validate:"omitempty,startswith=/"`
	ApacheSSLCipher         string      `json:"apache_ssl_cipher,omitempty" yaml:"apache_ssl_cipher,omitempty"`
	ApacheSSLProtocol       []string    `json:"apache_ssl_protocol,omitempty" yaml:"apache_ssl_protocol,omitempty"`
	ApacheVhostCustomParams *OrderedMap `json:"apache_vhost_custom_params,omitempty" yaml:"apache_vhost_custom_params,omitempty"`

	// PHP runtime limits.
	PHPMaxExecutionTime int    `json:"apache_php_max_execution_time" yaml:"apache_php_max_execution_time" validate:"min=0"`
	PHPMemoryLimit      string `json:"apache_php_memory_limit" yaml:"apache_php_memory_limit" validate:"required"`
	PHPPostMaxSize      string `json:"apache_php_post_max_size" yaml:"apache_php_post_max_size" validate:"required"`
	PHPUploadMaxSize    string `json:"apache_php_upload_max_filesize" yaml:"apache_php_upload_max_filesize" validate:"required"`
	PHPMaxInputTime     int    `json:"apache_php_max_input_time" yaml:"apache_php_max_input_time" validate:"min=0"`
	PHPMaxInputVars     int    `json:"apache_php_max_input_vars" yaml:"apache_php_max_input_vars" validate:"min=0"`

	// ZabbixAPIGemVersion pins the zabbixapi client. Empty selects one matching ZabbixVersion.
	ZabbixAPIGemVersion string `json:"zabbixapi_version,omitempty" yaml:"zabbixapi_version,omitempty"`
}

// DefaultParams returns a record holding every default value.
func DefaultParams() *Params {
	return &Params{
		ZabbixURL:           "localhost",
		ZabbixVersion:       "6.0",
		ZabbixTimezone:      "Europe/Amsterdam",
		ManageRepo:          true,
		ManageVhost:         true,
		ZabbixAPIUser:       "Admin",
		ZabbixAPIPass:       "zabbix",
		ZabbixServer:        "localhost",
		ZabbixListenPort:    "10051",
		DatabaseType:        DatabasePostgreSQL,
		DatabaseHost:        "localhost",
		DatabaseName:        "zabbix_server",
		DatabaseUser:        "zabbix_server",
		DatabasePassword:    "zabbix_server",
		ApacheListenPort:    80,
		ApacheListenPortSSL: 443,
		PHPMaxExecutionTime: 300,
		PHPMemoryLimit:      "128M",
		PHPPostMaxSize:      "16M",
		PHPUploadMaxSize:    "2M",
		PHPMaxInputTime:     300,
		PHPMaxInputVars:     10000,
	}
}

// ServerName returns the name shown in the front-end title bar.
func (p *Params) ServerName() string {
	if p.ZabbixServerName != "" {
		return p.ZabbixServerName
	}
	return p.ZabbixServer
}

// APIGemVersion returns the zabbixapi version to install.
func (p *Params) APIGemVersion() string {
	if p.ZabbixAPIGemVersion != "" {
		return p.ZabbixAPIGemVersion
	}
	if strings.HasPrefix(p.ZabbixVersion, "5.") {
		return "4.2.0"
	}
	return "5.0.0-alpha1"
}

// CompareVersions compares two major.minor Zabbix versions and returns -1, 0
// or +1.
func CompareVersions(a, b string) (int, error) {
	va, vb := "v"+a, "v"+b
	if !semver.IsValid(va) {
		return 0, fmt.Errorf("invalid version %q", a)
	}
	if !semver.IsValid(vb) {
		return 0, fmt.Errorf("invalid version %q", b)
	}
	return semver.Compare(va, vb), nil
}

// VersionAtLeast reports whether ZabbixVersion is minimum or newer. Invalid
// versions compare as older.
func (p *Params) VersionAtLeast(minimum string) bool {
	c, err := CompareVersions(p.ZabbixVersion, minimum)
	return err == nil && c >= 0
}

// HasSAML reports whether any SSO option is set.
func (p *Params) HasSAML() bool {
	return p.SAMLSPKey != "" || p.SAMLSPCert != "" || p.SAMLIdPCert != "" || p.SAMLSettings.Len() > 0
}

// HasLDAPTLS reports whether any LDAP TLS option is set.
func (p *Params) HasLDAPTLS() bool {
	return p.LDAPCACert != "" || p.LDAPClientCert != "" || p.LDAPClientKey != "" || p.LDAPReqCert != ""
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the option path (e.g. "saml_settings.security").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

// String formats the error as file:line:col: path: message.
func (ve ValidationError) String() string {
	var sb strings.Builder
	if ve.File != "" {
		sb.WriteString(ve.File)
		if ve.Line > 0 {
			fmt.Fprintf(&sb, ":%d:%d", ve.Line, ve.Column)
		}
		sb.WriteString(": ")
	}
	if ve.Path != "" {
		sb.WriteString(ve.Path)
		sb.WriteString(": ")
	}
	sb.WriteString(ve.Message)
	return sb.String()
}

// ValidationErrors aggregates every problem found in one parameter set.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (ves ValidationErrors) Error() string {
	msgs := make([]string, len(ves))
	for i, ve := range ves {
		msgs[i] = ve.String()
	}
	return fmt.Sprintf("%d validation error(s): %s", len(ves), strings.Join(msgs, "; "))
}

// LoadedParams is a parameter record together with where it came from.
type LoadedParams struct {
	// Params is the decoded record with defaults applied.
	Params *Params `json:"params"`

	// SourceFiles are the files that contributed to Params.
	SourceFiles []string `json:"source_files"`

	// LoadedAt is when the record was loaded.
	LoadedAt time.Time `json:"loaded_at"`
}

// StarlarkResult represents the result of Starlark execution.
type StarlarkResult struct {
	// Output is the output data from Starlark.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}
