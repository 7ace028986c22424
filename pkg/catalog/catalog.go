package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/zabbix-web/pkg/engine"
	"github.com/openfroyo/zabbix-web/pkg/facts"
)

// Catalog is the ordered set of resources compiled for one host.
type Catalog struct {
	ID         string       `json:"id" yaml:"id"`
	Node       string       `json:"node,omitempty" yaml:"node,omitempty"`
	Family     facts.Family `json:"family" yaml:"family"`
	Supported  bool         `json:"supported" yaml:"supported"`
	CompiledAt time.Time    `json:"compiled_at" yaml:"compiled_at"`
	Resources  []*Resource  `json:"resources" yaml:"resources"`

	index map[Ref]*Resource
}

func newCatalog(f facts.HostFacts) *Catalog {
	return &Catalog{
		ID:         uuid.New().String(),
		Node:       f.Hostname,
		Family:     f.Family,
		CompiledAt: time.Now().UTC(),
		Resources:  make([]*Resource, 0),
		index:      make(map[Ref]*Resource),
	}
}

// Add declares r. Declaring the same Kind[Title] twice is an error.
func (c *Catalog) Add(r *Resource) error {
	if c.index == nil {
		c.index = make(map[Ref]*Resource)
	}
	ref := r.Ref()
	if _, exists := c.index[ref]; exists {
		return engine.NewPermanentError(fmt.Sprintf("duplicate declaration of %s", ref), nil).
			WithCode(engine.ErrCodeDuplicate).WithResource(ref.String())
	}
	c.index[ref] = r
	c.Resources = append(c.Resources, r)
	return nil
}

// Get returns the resource with the given reference.
func (c *Catalog) Get(ref Ref) (*Resource, bool) {
	r, ok := c.index[ref]
	return r, ok
}

// Has reports whether a resource with the given reference is declared.
func (c *Catalog) Has(kind Kind, title string) bool {
	_, ok := c.index[Ref{Kind: kind, Title: title}]
	return ok
}

// OfKind returns the resources of one kind in declaration order.
func (c *Catalog) OfKind(kind Kind) []*Resource {
	var out []*Resource
	for _, r := range c.Resources {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of declared resources.
func (c *Catalog) Len() int {
	return len(c.Resources)
}

// CountByKind returns the number of resources per kind.
func (c *Catalog) CountByKind() map[Kind]int {
	counts := make(map[Kind]int)
	for _, r := range c.Resources {
		counts[r.Kind]++
	}
	return counts
}

// ToEngineConfig converts the catalog to the hand-off form.
func (c *Catalog) ToEngineConfig() (*engine.Config, error) {
	cfg := &engine.Config{
		ID:         c.ID,
		Node:       c.Node,
		Family:     string(c.Family),
		Supported:  c.Supported,
		CompiledAt: c.CompiledAt,
		Resources:  make([]engine.Resource, 0, len(c.Resources)),
	}

	for _, r := range c.Resources {
		data, err := json.Marshal(r.Params)
		if err != nil {
			return nil, engine.NewPermanentError("failed to encode resource parameters", err).
				WithCode(engine.ErrCodeInternal).WithResource(r.Ref().String())
		}

		res := engine.Resource{
			ID:     r.Ref().String(),
			Type:   string(r.Kind),
			Name:   r.Title,
			Config: data,
		}
		for _, ref := range r.Require {
			res.Dependencies = append(res.Dependencies, engine.Dependency{TargetID: ref.String(), Type: engine.DependencyRequire})
		}
		for _, ref := range r.Notify {
			res.Dependencies = append(res.Dependencies, engine.Dependency{TargetID: ref.String(), Type: engine.DependencyNotify})
		}
		for _, ref := range r.Before {
			res.Dependencies = append(res.Dependencies, engine.Dependency{TargetID: ref.String(), Type: engine.DependencyBefore})
		}
		cfg.Resources = append(cfg.Resources, res)
	}

	return cfg, nil
}

// Graph builds the relationship graph of the catalog, failing on dangling
// references and cycles.
func (c *Catalog) Graph() (*engine.RelationshipGraph, *engine.DAGBuilder, error) {
	cfg, err := c.ToEngineConfig()
	if err != nil {
		return nil, nil, err
	}
	builder := engine.NewDAGBuilder()
	graph, err := builder.BuildGraph(cfg.Resources)
	if err != nil {
		return nil, nil, err
	}
	return graph, builder, nil
}
