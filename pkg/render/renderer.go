// Package render produces the exact content of the files the catalog
// declares: zabbix.conf.php, the API credentials file, the PHP-FPM pool and
// Apache configuration fragments.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/openfroyo/zabbix-web/pkg/config"
	"github.com/openfroyo/zabbix-web/pkg/osfamily"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// legacyServerBefore is the first release that no longer reads
// $ZBX_SERVER and $ZBX_SERVER_PORT from zabbix.conf.php.
const legacyServerBefore = "6.0"

// Template names.
const (
	TemplateZabbixConf  = "zabbix.conf.php.tmpl"
	TemplateAPIConf     = "api.conf.tmpl"
	TemplatePHPFPMPool  = "php-fpm.conf.tmpl"
	TemplateDirectories = "directories.tmpl"
	TemplateFPMHandler  = "fpm-handler.tmpl"
)

// Renderer renders the embedded templates.
type Renderer struct {
	templates *template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	tmpl, err := template.New("zbxweb").
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"phpq":  phpSingleQuote,
			"phpdq": phpDoubleQuote,
		}).
		ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

// MustNew is New that panics on error. The templates are embedded, so an
// error here is a build defect.
func MustNew() *Renderer {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// confView is the data of zabbix.conf.php.
type confView struct {
	*config.Params

	DBType       string
	DBPort       string
	LegacyServer bool
	SSOSettings  string
}

// ZabbixConfPHP renders /etc/zabbix/web/zabbix.conf.php.
func (r *Renderer) ZabbixConfPHP(p *config.Params) (string, error) {
	legacy, err := config.CompareVersions(p.ZabbixVersion, legacyServerBefore)
	if err != nil {
		return "", fmt.Errorf("failed to compare zabbix_version: %w", err)
	}

	view := &confView{
		Params:       p,
		DBType:       p.DatabaseType.PHPLiteral(),
		DBPort:       p.DatabasePort,
		LegacyServer: legacy < 0,
	}
	if view.DBPort == "" {
		view.DBPort = "0"
	}
	if p.SAMLSettings.Len() > 0 {
		settings, err := PHPArray(p.SAMLSettings)
		if err != nil {
			return "", fmt.Errorf("failed to serialize saml_settings: %w", err)
		}
		view.SSOSettings = settings
	}

	return r.execute(TemplateZabbixConf, view)
}

// APIConf renders /etc/zabbix/api.conf.
func (r *Renderer) APIConf(p *config.Params) (string, error) {
	return r.execute(TemplateAPIConf, p)
}

type poolView struct {
	Params *config.Params
	User   string
	Group  string
	Socket string
}

// PHPFPMPool renders the front-end PHP-FPM pool for families that run PHP-FPM.
func (r *Renderer) PHPFPMPool(p *config.Params, profile osfamily.Profile) (string, error) {
	if !profile.UsesPHPFPM() {
		return "", fmt.Errorf("family %s does not run PHP-FPM", profile.Family)
	}
	return r.execute(TemplatePHPFPMPool, &poolView{
		Params: p,
		User:   profile.PHPFPMUser,
		Group:  profile.PHPFPMGroup,
		Socket: profile.PHPFPMSocket,
	})
}

// FPMHandler renders the vhost fragment that hands PHP requests to PHP-FPM.
func (r *Renderer) FPMHandler(profile osfamily.Profile) (string, error) {
	return r.execute(TemplateFPMHandler, struct{ Socket string }{profile.PHPFPMSocket})
}

// DirectoriesFragment renders the vhost fragment restricting the API endpoint
// to the zabbix_api_access hosts, in input order.
func (r *Renderer) DirectoriesFragment(p *config.Params) (string, error) {
	return r.execute(TemplateDirectories, p)
}

func (r *Renderer) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
