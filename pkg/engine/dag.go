package engine

import (
	"fmt"
	"sort"
	"strings"
)

// DAGBuilder builds the ordering graph of a compiled catalog.
// It validates relationships, detects cycles and assigns each resource a
// level so that everything a resource depends on sits on an earlier level.
type DAGBuilder struct {
	// resources maps resource IDs to their resources
	resources map[string]*Resource

	// order keeps resource IDs in declaration order
	order []string

	// position maps resource IDs to their index in order
	position map[string]int

	// adjacencyList maps resource IDs to the resources ordered after them
	adjacencyList map[string][]string

	// reverseAdjacencyList maps resource IDs to the resources ordered before them
	reverseAdjacencyList map[string][]string

	// inDegree tracks the number of incoming edges for each node
	inDegree map[string]int

	// edges lists ordering edges in declaration order
	edges []GraphEdge

	// levels maps level to resource IDs at that level
	levels [][]string
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		resources:            make(map[string]*Resource),
		position:             make(map[string]int),
		adjacencyList:        make(map[string][]string),
		reverseAdjacencyList: make(map[string][]string),
		inDegree:             make(map[string]int),
		levels:               make([][]string, 0),
	}
}

// BuildGraph constructs the relationship graph of the given resources.
func (b *DAGBuilder) BuildGraph(resources []Resource) (*RelationshipGraph, error) {
	if len(resources) == 0 {
		return &RelationshipGraph{
			Nodes: make(map[string]*GraphNode),
			Edges: make([]GraphEdge, 0),
			Roots: make([]string, 0),
			Depth: 0,
		}, nil
	}

	if err := b.initialize(resources); err != nil {
		return nil, err
	}

	if err := b.detectCycles(); err != nil {
		return nil, err
	}

	if err := b.computeLevels(); err != nil {
		return nil, err
	}

	return b.buildRelationshipGraph(), nil
}

// initialize sets up the internal data structures from the resources.
func (b *DAGBuilder) initialize(resources []Resource) error {
	// First pass: index all resources
	for i := range resources {
		res := &resources[i]
		if res.ID == "" {
			return NewPermanentError("resource has empty ID", nil).
				WithCode(ErrCodeValidation)
		}

		if _, exists := b.resources[res.ID]; exists {
			return NewPermanentError(fmt.Sprintf("duplicate resource: %s", res.ID), nil).
				WithCode(ErrCodeDuplicate).WithResource(res.ID)
		}

		b.resources[res.ID] = res
		b.position[res.ID] = len(b.order)
		b.order = append(b.order, res.ID)
		b.adjacencyList[res.ID] = make([]string, 0)
		b.reverseAdjacencyList[res.ID] = make([]string, 0)
		b.inDegree[res.ID] = 0
	}

	// Second pass: build adjacency lists and validate relationships
	for _, id := range b.order {
		res := b.resources[id]
		for _, dep := range res.Dependencies {
			if _, exists := b.resources[dep.TargetID]; !exists {
				return NewPermanentError(
					fmt.Sprintf("%s %s non-existent resource %s", res.ID, relationVerb(dep.Type), dep.TargetID),
					nil,
				).WithCode(ErrCodeDanglingRef).WithResource(res.ID).WithDetail("target", dep.TargetID)
			}
			if dep.TargetID == res.ID {
				return NewPermanentError(fmt.Sprintf("%s references itself", res.ID), nil).
					WithCode(ErrCodeCycle).WithResource(res.ID)
			}

			from, to := dep.Edge(res.ID)
			b.adjacencyList[from] = append(b.adjacencyList[from], to)
			b.reverseAdjacencyList[to] = append(b.reverseAdjacencyList[to], from)
			b.inDegree[to]++
			b.edges = append(b.edges, GraphEdge{From: from, To: to, Type: dep.Type})
		}
	}

	return nil
}

// detectCycles uses depth-first search to detect circular relationships.
func (b *DAGBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make([]string, 0)

	for _, id := range b.order {
		if !visited[id] {
			if cycle, err := b.detectCyclesUtil(id, visited, recStack, path); err != nil {
				return NewPermanentError(
					fmt.Sprintf("dependency cycle detected: %s", formatCycle(cycle)),
					err,
				).WithCode(ErrCodeCycle).WithDetail("cycle", cycle)
			}
		}
	}

	return nil
}

// detectCyclesUtil performs DFS to detect cycles in the relationship graph.
func (b *DAGBuilder) detectCyclesUtil(
	nodeID string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) ([]string, error) {
	visited[nodeID] = true
	recStack[nodeID] = true
	path = append(path, nodeID)

	for _, dependent := range b.adjacencyList[nodeID] {
		if !visited[dependent] {
			if cycle, err := b.detectCyclesUtil(dependent, visited, recStack, path); err != nil {
				return cycle, err
			}
		} else if recStack[dependent] {
			cycleStart := -1
			for i, id := range path {
				if id == dependent {
					cycleStart = i
					break
				}
			}
			if cycleStart >= 0 {
				cycle := append([]string{}, path[cycleStart:]...)
				return append(cycle, dependent), fmt.Errorf("cycle detected")
			}
		}
	}

	recStack[nodeID] = false
	return nil, nil
}

// computeLevels assigns levels to each resource using Kahn's algorithm.
// Resources within a level keep their declaration order.
func (b *DAGBuilder) computeLevels() error {
	inDegreeCopy := make(map[string]int, len(b.inDegree))
	for id, degree := range b.inDegree {
		inDegreeCopy[id] = degree
	}

	currentLevel := make([]string, 0)
	for _, id := range b.order {
		if inDegreeCopy[id] == 0 {
			currentLevel = append(currentLevel, id)
		}
	}

	if len(currentLevel) == 0 {
		return NewPermanentError("no root resources found - every resource has a predecessor", nil).
			WithCode(ErrCodeCycle)
	}

	processedCount := 0
	for len(currentLevel) > 0 {
		b.levels = append(b.levels, currentLevel)
		processedCount += len(currentLevel)

		nextLevel := make([]string, 0)
		for _, nodeID := range currentLevel {
			for _, dependent := range b.adjacencyList[nodeID] {
				inDegreeCopy[dependent]--
				if inDegreeCopy[dependent] == 0 {
					nextLevel = append(nextLevel, dependent)
				}
			}
		}
		sort.SliceStable(nextLevel, func(i, j int) bool {
			return b.position[nextLevel[i]] < b.position[nextLevel[j]]
		})

		currentLevel = nextLevel
	}

	if processedCount != len(b.resources) {
		return NewPermanentError("failed to order all resources - possible cycle", nil).
			WithCode(ErrCodeInternal)
	}

	return nil
}

// buildRelationshipGraph creates the final RelationshipGraph structure.
func (b *DAGBuilder) buildRelationshipGraph() *RelationshipGraph {
	graph := &RelationshipGraph{
		Nodes: make(map[string]*GraphNode, len(b.resources)),
		Edges: append(make([]GraphEdge, 0, len(b.edges)), b.edges...),
		Roots: make([]string, 0),
		Depth: len(b.levels),
	}

	for level, ids := range b.levels {
		for _, id := range ids {
			graph.Nodes[id] = &GraphNode{
				ID:           id,
				Level:        level,
				Dependencies: b.reverseAdjacencyList[id],
				Dependents:   b.adjacencyList[id],
			}
			if level == 0 {
				graph.Roots = append(graph.Roots, id)
			}
		}
	}

	return graph
}

// GetLevels returns the computed levels.
func (b *DAGBuilder) GetLevels() [][]string {
	return b.levels
}

// Order returns resource IDs in a valid apply order: level by level,
// declaration order within a level.
func (b *DAGBuilder) Order() []string {
	out := make([]string, 0, len(b.order))
	for _, ids := range b.levels {
		out = append(out, ids...)
	}
	return out
}

// ToDOT generates a DOT format representation of the graph for visualization.
// The output can be rendered with Graphviz tools.
func (b *DAGBuilder) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Catalog {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range b.levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")

		for _, id := range ids {
			res := b.resources[id]
			sb.WriteString(fmt.Sprintf("    %s [label=%s, fillcolor=\"%s\", style=\"filled,rounded\"];\n",
				dotQuote(id), dotQuote(id), getKindColor(res.Type)))
		}

		sb.WriteString("  }\n\n")
	}

	for _, edge := range b.edges {
		sb.WriteString(fmt.Sprintf("  %s -> %s [%s];\n",
			dotQuote(edge.From), dotQuote(edge.To), getDependencyStyle(edge.Type)))
	}

	sb.WriteString("}\n")
	return sb.String()
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(cycle, " -> ")
}

func dotQuote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

func relationVerb(t DependencyType) string {
	switch t {
	case DependencyNotify:
		return "notifies"
	case DependencyBefore:
		return "is ordered before"
	default:
		return "requires"
	}
}

// getKindColor returns a color for visualizing resource kinds.
func getKindColor(kind string) string {
	switch kind {
	case "Class":
		return "lightgray"
	case "File", "Concat::Fragment":
		return "lightblue"
	case "Package", "Yumrepo", "Apt::Source", "Apt::Key":
		return "lightgreen"
	case "Service", "Apache::Vhost":
		return "lightyellow"
	case "Selboolean":
		return "lightcoral"
	default:
		return "white"
	}
}

// getDependencyStyle returns a DOT style string for relationship types.
func getDependencyStyle(depType DependencyType) string {
	switch depType {
	case DependencyNotify:
		return "style=dashed, color=blue"
	case DependencyBefore:
		return "style=dotted, color=gray"
	default:
		return "style=solid, color=black"
	}
}

// ValidateGraph performs additional validation on the built graph.
func (b *DAGBuilder) ValidateGraph(graph *RelationshipGraph) error {
	if len(graph.Nodes) != len(b.resources) {
		return NewPermanentError("graph node count mismatch", nil).
			WithCode(ErrCodeInternal)
	}

	for _, edge := range graph.Edges {
		if _, exists := graph.Nodes[edge.From]; !exists {
			return NewPermanentError(fmt.Sprintf("edge references non-existent node: %s", edge.From), nil).
				WithCode(ErrCodeInternal)
		}
		if _, exists := graph.Nodes[edge.To]; !exists {
			return NewPermanentError(fmt.Sprintf("edge references non-existent node: %s", edge.To), nil).
				WithCode(ErrCodeInternal)
		}
		if graph.Nodes[edge.From].Level >= graph.Nodes[edge.To].Level {
			return NewPermanentError(fmt.Sprintf("edge %s -> %s does not descend levels", edge.From, edge.To), nil).
				WithCode(ErrCodeInternal)
		}
	}

	for _, rootID := range graph.Roots {
		if len(graph.Nodes[rootID].Dependencies) > 0 {
			return NewPermanentError(fmt.Sprintf("root node %s has dependencies", rootID), nil).
				WithCode(ErrCodeInternal)
		}
	}

	return nil
}
