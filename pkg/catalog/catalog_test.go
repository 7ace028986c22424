package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/zabbix-web/pkg/engine"
	"github.com/openfroyo/zabbix-web/pkg/facts"
)

func TestRef_String(t *testing.T) {
	assert.Equal(t, "Apache::Vhost[zabbix.example.com]", ref(KindVhost, "zabbix.example.com").String())
	assert.Equal(t, "File[/etc/zabbix/web]", NewResource("/etc/zabbix/web", File{Ensure: EnsureDirectory}).Ref().String())
}

func TestCatalog_AddRejectsDuplicates(t *testing.T) {
	cat := newCatalog(facts.HostFacts{Family: facts.FamilyRedHat})

	require.NoError(t, cat.Add(NewResource("zabbix-web", Package{Ensure: EnsurePresent})))
	err := cat.Add(NewResource("zabbix-web", Package{Ensure: "latest"}))
	require.Error(t, err)
	assert.Equal(t, engine.ErrCodeDuplicate, engine.CodeOf(err))

	// Same title, different kind.
	require.NoError(t, cat.Add(NewResource("zabbix-web", Service{Ensure: EnsureRunning})))
	assert.Equal(t, 2, cat.Len())
	assert.Equal(t, map[Kind]int{KindPackage: 1, KindService: 1}, cat.CountByKind())
}

func TestCatalog_ToEngineConfig(t *testing.T) {
	cat := newCatalog(facts.HostFacts{Family: facts.FamilyRedHat, Hostname: "web01"})
	cat.Supported = true

	service := NewResource("php-fpm", Service{Ensure: EnsureRunning, Enable: true})
	pool := NewResource("/etc/php-fpm.d/zabbix.conf", File{Ensure: EnsureFile, Mode: "0644"}).
		Requires(ref(KindPackage, "zabbix-web")).
		Notifies(service.Ref())
	pkg := NewResource("zabbix-web", Package{Ensure: EnsurePresent}).
		OrderedBefore(service.Ref())
	for _, r := range []*Resource{service, pool, pkg} {
		require.NoError(t, cat.Add(r))
	}

	cfg, err := cat.ToEngineConfig()
	require.NoError(t, err)

	assert.Equal(t, cat.ID, cfg.ID)
	assert.Equal(t, "web01", cfg.Node)
	assert.Equal(t, "RedHat", cfg.Family)
	require.Len(t, cfg.Resources, 3)

	res, ok := cfg.Resource("File[/etc/php-fpm.d/zabbix.conf]")
	require.True(t, ok)
	assert.Equal(t, "File", res.Type)
	assert.JSONEq(t, `{"ensure":"file","mode":"0644"}`, string(res.Config))
	assert.Equal(t, []engine.Dependency{
		{TargetID: "Package[zabbix-web]", Type: engine.DependencyRequire},
		{TargetID: "Service[php-fpm]", Type: engine.DependencyNotify},
	}, res.Dependencies)

	graph, builder, err := cat.Graph()
	require.NoError(t, err)
	assert.Equal(t, []string{"Package[zabbix-web]", "File[/etc/php-fpm.d/zabbix.conf]", "Service[php-fpm]"}, builder.Order())
	assert.Equal(t, 3, graph.Depth)
}

func TestCatalog_GraphDanglingReference(t *testing.T) {
	cat := newCatalog(facts.HostFacts{Family: facts.FamilyDebian})
	require.NoError(t, cat.Add(NewResource("zabbix.example.com-directories", ConcatFragment{}).
		Requires(ref(KindVhost, "zabbix.example.com"))))

	_, _, err := cat.Graph()
	require.Error(t, err)
	assert.Equal(t, engine.ErrCodeDanglingRef, engine.CodeOf(err))
}

func TestCatalog_Encoding(t *testing.T) {
	p := testParams()
	p.ManageResources = true
	cat := compile(t, p, debianFacts())

	data, err := json.Marshal(cat)
	require.NoError(t, err)

	var decoded struct {
		Family    string `json:"family"`
		Supported bool   `json:"supported"`
		Resources []struct {
			Kind   string          `json:"kind"`
			Title  string          `json:"title"`
			Params json.RawMessage `json:"params"`
		} `json:"resources"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Debian", decoded.Family)
	assert.True(t, decoded.Supported)
	require.Len(t, decoded.Resources, cat.Len())
	assert.Equal(t, "Class", decoded.Resources[0].Kind)
	assert.Equal(t, ClassParams, decoded.Resources[0].Title)

	out, err := yaml.Marshal(cat)
	require.NoError(t, err)
	assert.Contains(t, string(out), "kind: Package")
	assert.Contains(t, string(out), "title: /etc/zabbix/api.conf")
}
