package stores

import (
	"context"
	"database/sql"
	"time"

	"github.com/openfroyo/zabbix-web/pkg/engine"
)

// Compilation is one archived catalog.
type Compilation struct {
	ID            string    `json:"id"`
	Node          string    `json:"node"`
	Family        string    `json:"family"`
	Supported     bool      `json:"supported"`
	ParamsDigest  string    `json:"params_digest"` // SHA-256 of the effective parameters
	ResourceCount int       `json:"resource_count"`
	Allowed       bool      `json:"allowed"` // false when a blocking policy finding was recorded
	CompiledAt    time.Time `json:"compiled_at"`

	Resources []engine.Resource `json:"resources,omitempty"`
	Findings  []*Finding        `json:"findings,omitempty"`
}

// Finding is a policy violation or warning recorded against a compilation.
type Finding struct {
	ID            int64  `json:"id"`
	CompilationID string `json:"compilation_id"`
	Policy        string `json:"policy"`
	Resource      string `json:"resource,omitempty"`
	Severity      string `json:"severity"`
	Message       string `json:"message"`
}

// NewCompilation builds an archive record from an engine configuration.
func NewCompilation(cfg *engine.Config) *Compilation {
	return &Compilation{
		ID:            cfg.ID,
		Node:          cfg.Node,
		Family:        cfg.Family,
		Supported:     cfg.Supported,
		ResourceCount: len(cfg.Resources),
		Allowed:       true,
		CompiledAt:    cfg.CompiledAt,
		Resources:     cfg.Resources,
	}
}

// Config converts the record back into an engine configuration.
func (c *Compilation) Config() *engine.Config {
	return &engine.Config{
		ID:         c.ID,
		Node:       c.Node,
		Family:     c.Family,
		Supported:  c.Supported,
		CompiledAt: c.CompiledAt,
		Resources:  c.Resources,
	}
}

// Store defines the interface for the compilation archive
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// Compilation operations
	SaveCompilation(ctx context.Context, c *Compilation) error
	GetCompilation(ctx context.Context, id string) (*Compilation, error)
	ListCompilations(ctx context.Context, node *string, limit, offset int) ([]*Compilation, error)
	LatestCompilations(ctx context.Context, node string, n int) ([]*Compilation, error)
	DeleteCompilation(ctx context.Context, id string) error
	PruneCompilations(ctx context.Context, node string, keep int) (int64, error)

	// Finding operations
	ListFindings(ctx context.Context, compilationID string) ([]*Finding, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
