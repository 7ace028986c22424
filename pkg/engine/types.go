package engine

import (
	"encoding/json"
	"time"
)

// Resource is one compiled resource as handed to the applying engine.
type Resource struct {
	// ID is the unique identifier, Kind[Title].
	ID string `json:"id"`

	// Type is the resource kind (e.g., "File", "Apache::Vhost").
	Type string `json:"type"`

	// Name is the resource title.
	Name string `json:"name"`

	// Config is the desired state of the resource.
	Config json.RawMessage `json:"config"`

	// Dependencies are the declared relationships of this resource.
	Dependencies []Dependency `json:"dependencies,omitempty"`
}

// Dependency represents a declared relationship to another resource.
type Dependency struct {
	// TargetID is the ID of the related resource.
	TargetID string `json:"target_id"`

	// Type is the type of relationship.
	Type DependencyType `json:"type"`
}

// DependencyType represents the type of relationship between resources.
type DependencyType string

const (
	// DependencyRequire orders the target before this resource.
	DependencyRequire DependencyType = "require"

	// DependencyNotify orders this resource before the target and refreshes
	// the target when this resource changes.
	DependencyNotify DependencyType = "notify"

	// DependencyBefore orders this resource before the target.
	DependencyBefore DependencyType = "before"
)

// Edge returns the ordering edge implied by a dependency of resource id:
// from must be applied before to.
func (d Dependency) Edge(id string) (from, to string) {
	if d.Type == DependencyRequire {
		return d.TargetID, id
	}
	return id, d.TargetID
}

// Config is a compiled catalog for one host.
type Config struct {
	// ID is the unique identifier for this compilation.
	ID string `json:"id"`

	// Node is the host the catalog was compiled for.
	Node string `json:"node,omitempty"`

	// Family is the OS family of the host.
	Family string `json:"family"`

	// Supported is false when the host's family yields no resources.
	Supported bool `json:"supported"`

	// CompiledAt is when the catalog was compiled.
	CompiledAt time.Time `json:"compiled_at"`

	// Resources are the compiled resources, in declaration order.
	Resources []Resource `json:"resources"`

	// Metadata contains additional compilation metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Resource returns the resource with the given ID.
func (c *Config) Resource(id string) (*Resource, bool) {
	for i := range c.Resources {
		if c.Resources[i].ID == id {
			return &c.Resources[i], true
		}
	}
	return nil, false
}

// OperationType represents what changes for a resource between two compilations.
type OperationType string

const (
	// OperationCreate indicates the resource is newly declared.
	OperationCreate OperationType = "create"

	// OperationUpdate indicates the resource's desired state changed.
	OperationUpdate OperationType = "update"

	// OperationDelete indicates the resource is no longer declared.
	OperationDelete OperationType = "delete"

	// OperationNoop indicates no change.
	OperationNoop OperationType = "noop"
)

// Change represents a single change to a resource.
type Change struct {
	// Path is the path to the field being changed (e.g., ".config.content").
	Path string `json:"path"`

	// Before is the value before the change.
	Before interface{} `json:"before,omitempty"`

	// After is the value after the change.
	After interface{} `json:"after,omitempty"`

	// Action describes the change action (add, remove, modify).
	Action ChangeAction `json:"action"`
}

// ChangeAction represents the type of change being made.
type ChangeAction string

const (
	// ChangeActionAdd indicates a new field is being added.
	ChangeActionAdd ChangeAction = "add"

	// ChangeActionRemove indicates a field is being removed.
	ChangeActionRemove ChangeAction = "remove"

	// ChangeActionModify indicates a field value is being changed.
	ChangeActionModify ChangeAction = "modify"
)

// ResourceDiff represents the difference for a single resource.
type ResourceDiff struct {
	// ResourceID is the ID of the resource.
	ResourceID string `json:"resource_id"`

	// Operation is the change between the two compilations.
	Operation OperationType `json:"operation"`

	// Before is the resource in the older compilation.
	Before *Resource `json:"before,omitempty"`

	// After is the resource in the newer compilation.
	After *Resource `json:"after,omitempty"`

	// Changes lists field level changes for updates.
	Changes []Change `json:"changes,omitempty"`
}

// DiffSummary provides statistics about a diff.
type DiffSummary struct {
	TotalResources int `json:"total_resources"`
	ToCreate       int `json:"to_create"`
	ToUpdate       int `json:"to_update"`
	ToDelete       int `json:"to_delete"`
	NoChange       int `json:"no_change"`
}

// DiffResult represents the result of comparing two compilations.
type DiffResult struct {
	// Resources lists every resource of either compilation.
	Resources []ResourceDiff `json:"resources"`

	// Summary provides statistics about the diff.
	Summary DiffSummary `json:"summary"`

	// Timestamp is when the diff was computed.
	Timestamp time.Time `json:"timestamp"`
}

// HasChanges reports whether any resource differs.
func (d *DiffResult) HasChanges() bool {
	return d.Summary.ToCreate+d.Summary.ToUpdate+d.Summary.ToDelete > 0
}

// RelationshipGraph is the ordering graph of a compiled catalog.
type RelationshipGraph struct {
	// Nodes maps resource IDs to their graph nodes.
	Nodes map[string]*GraphNode `json:"nodes"`

	// Edges lists all ordering edges in the graph.
	Edges []GraphEdge `json:"edges"`

	// Roots are the resource IDs nothing must precede.
	Roots []string `json:"roots"`

	// Depth is the number of levels in the graph.
	Depth int `json:"depth"`
}

// GraphNode represents a resource in the graph.
type GraphNode struct {
	// ID is the resource ID.
	ID string `json:"id"`

	// Level is the topological level (depth from roots).
	Level int `json:"level"`

	// Dependencies are the resources that must be applied first.
	Dependencies []string `json:"dependencies"`

	// Dependents are the resources that must be applied after.
	Dependents []string `json:"dependents"`
}

// GraphEdge represents an ordering edge.
type GraphEdge struct {
	// From is applied before To.
	From string `json:"from"`

	// To is applied after From.
	To string `json:"to"`

	// Type is the declared relationship the edge came from.
	Type DependencyType `json:"type"`
}
