package catalog

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/zabbix-web/pkg/config"
	"github.com/openfroyo/zabbix-web/pkg/engine"
	"github.com/openfroyo/zabbix-web/pkg/facts"
	"github.com/openfroyo/zabbix-web/pkg/osfamily"
	"github.com/openfroyo/zabbix-web/pkg/render"
)

const tracerName = "github.com/openfroyo/zabbix-web/pkg/catalog"

// Paths and titles of the resources the compiler declares.
const (
	ClassParams        = "zabbix::params"
	ClassRepo          = "zabbix::repo"
	ClassResourcesWeb  = "zabbix::resources::web"
	WebConfigDir       = "/etc/zabbix/web"
	WebConfigFile      = "/etc/zabbix/web/zabbix.conf.php"
	APIConfFile        = "/etc/zabbix/api.conf"
	ImportedTemplates  = "/etc/zabbix/imported_templates"
	APIGemPackage      = "zabbixapi"
	APIGemProvider     = "puppet_gem"
	WebConfigFileMode  = "0640"
	APIConfFileMode    = "0400"
	vhostConfPriority  = "25"
	directoriesOrder   = "55"
	selbooleanValueOn  = "on"
	httpVhostSuffix    = "_http"
	directoriesPostfix = "-directories"
)

// SELinuxBooleans are set when SELinux management is enabled on an SELinux host.
var SELinuxBooleans = []string{
	"httpd_can_connect_zabbix",
	"httpd_can_network_connect_db",
	"httpd_can_connect_ldap",
}

// Compiler turns a parameter record and host facts into a catalog.
type Compiler struct {
	renderer  *render.Renderer
	validator *config.Validator
	logger    zerolog.Logger
}

// NewCompiler creates a compiler. A nil renderer or validator gets the
// built-in one.
func NewCompiler(renderer *render.Renderer, validator *config.Validator, logger zerolog.Logger) *Compiler {
	if renderer == nil {
		renderer = render.MustNew()
	}
	if validator == nil {
		validator = config.NewValidator(nil)
	}
	return &Compiler{
		renderer:  renderer,
		validator: validator,
		logger:    logger.With().Str("component", "compiler").Logger(),
	}
}

// compilation is the state shared by the rules of one Compile call.
type compilation struct {
	params   *config.Params
	facts    facts.HostFacts
	profile  osfamily.Profile
	catalog  *Catalog
	renderer *render.Renderer

	packages []Ref
}

// rule declares resources when its predicate holds. Rules do not depend on
// each other's outcome, only on the input record and facts.
type rule struct {
	name    string
	applies func(c *compilation) bool
	declare func(c *compilation) error
}

func always(*compilation) bool { return true }

var rules = []rule{
	{name: "params", applies: always, declare: declareParams},
	{name: "repo", applies: func(c *compilation) bool { return c.params.ManageRepo }, declare: declareRepo},
	{name: "packages", applies: always, declare: declarePackages},
	{name: "web-config", applies: always, declare: declareWebConfig},
	{name: "php-fpm", applies: func(c *compilation) bool { return c.profile.UsesPHPFPM() }, declare: declarePHPFPM},
	{name: "vhost", applies: func(c *compilation) bool { return c.params.ManageVhost }, declare: declareVhost},
	{name: "api-access", applies: func(c *compilation) bool { return len(c.params.ZabbixAPIAccess) > 0 }, declare: declareAPIAccess},
	{name: "selinux", applies: func(c *compilation) bool { return c.params.ManageSELinux && c.facts.SELinux.Enabled }, declare: declareSELinux},
	{name: "resources", applies: func(c *compilation) bool { return c.params.ManageResources }, declare: declareResources},
}

// Compile validates p and declares every resource the front-end needs on the
// host described by f. An unsupported OS family yields an empty catalog with
// Supported unset, not an error.
func (c *Compiler) Compile(ctx context.Context, p *config.Params, f facts.HostFacts) (*Catalog, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "catalog.compile",
		trace.WithAttributes(
			attribute.String("host.family", string(f.Family)),
			attribute.String("zabbix.version", versionOf(p)),
		),
	)
	defer span.End()

	cat, err := c.compile(ctx, p, f)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("catalog.supported", cat.Supported),
		attribute.Int("catalog.resources", cat.Len()),
	)
	span.SetStatus(codes.Ok, "")
	return cat, nil
}

func (c *Compiler) compile(ctx context.Context, p *config.Params, f facts.HostFacts) (*Catalog, error) {
	if err := c.validator.Validate(ctx, p); err != nil {
		return nil, engine.NewPermanentError("invalid parameters", err).
			WithCode(engine.ErrCodeValidation).WithOperation("compile")
	}

	cat := newCatalog(f)
	profile, ok := osfamily.Resolve(f)
	if !ok {
		c.logger.Info().
			Str("family", string(f.Family)).
			Str("os", f.Name).
			Msg("Unsupported OS family, declaring no resources")
		return cat, nil
	}
	cat.Supported = true

	comp := &compilation{
		params:   p,
		facts:    f,
		profile:  profile,
		catalog:  cat,
		renderer: c.renderer,
	}

	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !r.applies(comp) {
			c.logger.Debug().Str("rule", r.name).Msg("Rule skipped")
			continue
		}
		before := cat.Len()
		if err := r.declare(comp); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.name, err)
		}
		c.logger.Debug().Str("rule", r.name).Int("declared", cat.Len()-before).Msg("Rule applied")
	}

	if _, _, err := cat.Graph(); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("family", string(f.Family)).
		Int("resources", cat.Len()).
		Msg("Catalog compiled")
	return cat, nil
}

func versionOf(p *config.Params) string {
	if p == nil {
		return ""
	}
	return p.ZabbixVersion
}

func ref(kind Kind, title string) Ref {
	return Ref{Kind: kind, Title: title}
}

func renderError(file string, err error) error {
	return engine.NewPermanentError("failed to render file content", err).
		WithCode(engine.ErrCodeRender).WithResource(ref(KindFile, file).String())
}

func declareParams(c *compilation) error {
	params := config.NewOrderedMap()
	params.Set("zabbix_version", c.params.ZabbixVersion)
	params.Set("database_type", string(c.params.DatabaseType))
	params.Set("manage_repo", c.params.ManageRepo)
	return c.catalog.Add(NewResource(ClassParams, Class{Parameters: params}))
}

func declareRepo(c *compilation) error {
	repos, err := c.profile.Repositories(c.params.ZabbixVersion, c.facts)
	if err != nil {
		return engine.NewPermanentError("cannot declare package repositories", err).
			WithCode(engine.ErrCodeValidation).WithResource(ref(KindClass, ClassRepo).String())
	}

	params := config.NewOrderedMap()
	params.Set("zabbix_version", c.params.ZabbixVersion)
	params.Set("manage_repo", true)
	class := NewResource(ClassRepo, Class{Parameters: params})
	if err := c.catalog.Add(class); err != nil {
		return err
	}

	for _, y := range repos.Yum {
		gpgcheck := "0"
		if y.GPGCheck {
			gpgcheck = "1"
		}
		res := NewResource(y.Name, Yumrepo{
			Descr:    y.Descr,
			BaseURL:  y.BaseURL,
			GPGCheck: gpgcheck,
			GPGKey:   y.GPGKey,
			Enabled:  "1",
		})
		class.Requires(res.Ref())
		if err := c.catalog.Add(res); err != nil {
			return err
		}
	}

	keys := make([]Ref, 0, len(repos.AptKeys))
	for _, k := range repos.AptKeys {
		res := NewResource(k.Name, AptKey{ID: k.ID, Source: k.Source})
		keys = append(keys, res.Ref())
		class.Requires(res.Ref())
		if err := c.catalog.Add(res); err != nil {
			return err
		}
	}

	for _, s := range repos.AptSources {
		res := NewResource(s.Name, AptSource{Location: s.Location, Release: s.Release, Repos: s.Repos}).
			Requires(keys...)
		class.Requires(res.Ref())
		if err := c.catalog.Add(res); err != nil {
			return err
		}
	}

	return nil
}

func declarePackages(c *compilation) error {
	for _, name := range c.profile.PackagesFor(c.params.DatabaseType) {
		res := NewResource(name, Package{Ensure: EnsurePresent})
		if c.params.ManageRepo {
			res.Requires(ref(KindClass, ClassRepo))
		}
		if err := c.catalog.Add(res); err != nil {
			return err
		}
		c.packages = append(c.packages, res.Ref())
	}
	return nil
}

func declareWebConfig(c *compilation) error {
	if err := c.catalog.Add(NewResource(WebConfigDir, File{Ensure: EnsureDirectory})); err != nil {
		return err
	}

	content, err := c.renderer.ZabbixConfPHP(c.params)
	if err != nil {
		return renderError(WebConfigFile, err)
	}

	owner := c.params.WebConfigOwner
	if owner == "" {
		owner = c.profile.WebConfigOwner
	}
	group := c.params.WebConfigGroup
	if group == "" {
		group = c.profile.WebConfigGroup
	}

	conf := NewResource(WebConfigFile, File{
		Ensure:  EnsureFile,
		Owner:   owner,
		Group:   group,
		Mode:    WebConfigFileMode,
		Content: content,
	}).Requires(ref(KindFile, WebConfigDir)).Requires(c.packages...)
	return c.catalog.Add(conf)
}

func declarePHPFPM(c *compilation) error {
	service := NewResource(c.profile.PHPService, Service{Ensure: EnsureRunning, Enable: true}).
		Requires(c.packages...)
	if err := c.catalog.Add(service); err != nil {
		return err
	}

	content, err := c.renderer.PHPFPMPool(c.params, c.profile)
	if err != nil {
		return renderError(c.profile.PHPFPMPoolPath, err)
	}
	pool := NewResource(c.profile.PHPFPMPoolPath, File{
		Ensure:  EnsureFile,
		Owner:   "root",
		Group:   "root",
		Mode:    "0644",
		Content: content,
	}).Requires(c.packages...).Notifies(service.Ref())
	return c.catalog.Add(pool)
}

func declareVhost(c *compilation) error {
	p := c.params

	attrs := config.NewOrderedMap()
	attrs.Set("servername", p.ZabbixURL)
	attrs.Set("docroot", c.profile.DocRoot)
	if p.ApacheUseSSL {
		attrs.Set("port", p.ApacheListenPortSSL)
	} else {
		attrs.Set("port", p.ApacheListenPort)
	}
	attrs.Set("add_listen", true)
	attrs.Set("ssl", p.ApacheUseSSL)
	if p.ApacheUseSSL {
		attrs.Set("ssl_cert", p.ApacheSSLCert)
		attrs.Set("ssl_key", p.ApacheSSLKey)
		if p.ApacheSSLChain != "" {
			attrs.Set("ssl_chain", p.ApacheSSLChain)
		}
		if p.ApacheSSLCipher != "" {
			attrs.Set("ssl_cipher", p.ApacheSSLCipher)
		}
		if len(p.ApacheSSLProtocol) > 0 {
			attrs.Set("ssl_protocol", append([]string(nil), p.ApacheSSLProtocol...))
		}
	}

	directory := config.NewOrderedMap()
	directory.Set("path", c.profile.DocRoot)
	directory.Set("provider", "directory")
	directory.Set("allow_override", []string{"None"})
	directory.Set("require", "all granted")
	attrs.Set("directories", []any{directory})

	if c.profile.UsesPHPFPM() {
		handler, err := c.renderer.FPMHandler(c.profile)
		if err != nil {
			return renderError(c.profile.PHPFPMPoolPath, err)
		}
		attrs.Set("custom_fragment", handler)
	} else {
		attrs.Set("php_values", phpValues(p))
	}

	attrs.Merge(p.ApacheVhostCustomParams.Clone())

	vhost := NewResource(p.ZabbixURL, Vhost{Attributes: attrs}).Requires(c.packages...)
	if err := c.catalog.Add(vhost); err != nil {
		return err
	}

	if !p.ApacheUseSSL {
		return nil
	}

	redirect := config.NewOrderedMap()
	redirect.Set("servername", p.ZabbixURL)
	redirect.Set("docroot", c.profile.DocRoot)
	redirect.Set("port", p.ApacheListenPort)
	redirect.Set("add_listen", true)
	redirect.Set("redirect_status", "permanent")
	redirect.Set("redirect_dest", "https://"+p.ZabbixURL+"/")
	return c.catalog.Add(NewResource(p.ZabbixURL+httpVhostSuffix, Vhost{Attributes: redirect}))
}

// phpValues are the PHP settings of the vhost when PHP runs inside Apache.
func phpValues(p *config.Params) *config.OrderedMap {
	values := config.NewOrderedMap()
	values.Set("max_execution_time", strconv.Itoa(p.PHPMaxExecutionTime))
	values.Set("memory_limit", p.PHPMemoryLimit)
	values.Set("post_max_size", p.PHPPostMaxSize)
	values.Set("upload_max_filesize", p.PHPUploadMaxSize)
	values.Set("max_input_time", strconv.Itoa(p.PHPMaxInputTime))
	values.Set("max_input_vars", strconv.Itoa(p.PHPMaxInputVars))
	values.Set("always_populate_raw_post_data", "-1")
	values.Set("date.timezone", p.ZabbixTimezone)
	return values
}

func declareAPIAccess(c *compilation) error {
	content, err := c.renderer.DirectoriesFragment(c.params)
	if err != nil {
		return engine.NewPermanentError("failed to render access fragment", err).
			WithCode(engine.ErrCodeRender)
	}
	url := c.params.ZabbixURL
	fragment := NewResource(url+directoriesPostfix, ConcatFragment{
		Target:  vhostConfPriority + "-" + url + ".conf",
		Order:   directoriesOrder,
		Content: content,
	})
	// Without a managed vhost the concat target belongs to the operator.
	if c.params.ManageVhost {
		fragment.Requires(ref(KindVhost, url))
	}
	return c.catalog.Add(fragment)
}

func declareSELinux(c *compilation) error {
	for _, name := range SELinuxBooleans {
		if err := c.catalog.Add(NewResource(name, Selboolean{Value: selbooleanValueOn, Persistent: true})); err != nil {
			return err
		}
	}
	return nil
}

func declareResources(c *compilation) error {
	p := c.params

	params := config.NewOrderedMap()
	params.Set("zabbix_url", p.ZabbixURL)
	params.Set("zabbix_user", p.ZabbixAPIUser)
	params.Set("zabbix_pass", p.ZabbixAPIPass)
	params.Set("apache_use_ssl", p.ApacheUseSSL)
	class := NewResource(ClassResourcesWeb, Class{Parameters: params})

	content, err := c.renderer.APIConf(p)
	if err != nil {
		return renderError(APIConfFile, err)
	}
	credentials := NewResource(APIConfFile, File{
		Ensure:  EnsureFile,
		Owner:   "root",
		Group:   "root",
		Mode:    APIConfFileMode,
		Content: content,
	})
	gem := NewResource(APIGemPackage, Package{Ensure: p.APIGemVersion(), Provider: APIGemProvider})
	templates := NewResource(ImportedTemplates, File{Ensure: EnsureDirectory})

	class.Requires(credentials.Ref(), gem.Ref(), templates.Ref())

	for _, r := range []*Resource{class, credentials, gem, templates} {
		if err := c.catalog.Add(r); err != nil {
			return err
		}
	}
	return nil
}
