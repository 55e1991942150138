package services

import (
	"sort"

	"go.uber.org/zap"
)

// ModelGraph is an undirected graph of models connected by FK relationships.
type ModelGraph struct {
	// Adjacency list: model -> models it's connected to
	edges map[string][]string
	// All unique models in the graph
	models map[string]bool
}

// NewModelGraph creates a new empty model graph.
func NewModelGraph() *ModelGraph {
	return &ModelGraph{
		edges:  make(map[string][]string),
		models: make(map[string]bool),
	}
}

// AddRelationship adds an undirected edge between source and target.
// Self-references add the model without an edge.
func (g *ModelGraph) AddRelationship(source, target string) {
	g.models[source] = true
	g.models[target] = true
	if source == target {
		return
	}
	g.edges[source] = append(g.edges[source], target)
	g.edges[target] = append(g.edges[target], source)
}

// AddModel adds a model to the graph without any edges.
func (g *ModelGraph) AddModel(name string) {
	g.models[name] = true
}

// ConnectedComponent is a group of models reachable from each other.
type ConnectedComponent struct {
	Models []string `json:"models"`
	Size   int      `json:"size"`
}

// FindConnectedComponents identifies all connected components using DFS.
// Returns components with more than one model, largest first, and the
// island models that connect to nothing.
func (g *ModelGraph) FindConnectedComponents() ([]ConnectedComponent, []string) {
	names := make([]string, 0, len(g.models))
	for name := range g.models {
		names = append(names, name)
	}
	sort.Strings(names)

	visited := make(map[string]bool)
	var components []ConnectedComponent
	var islands []string

	for _, name := range names {
		if visited[name] {
			continue
		}
		component := g.dfs(name, visited)
		if len(component) == 1 {
			islands = append(islands, component[0])
			continue
		}
		sort.Strings(component)
		components = append(components, ConnectedComponent{Models: component, Size: len(component)})
	}

	sort.SliceStable(components, func(i, j int) bool {
		return components[i].Size > components[j].Size
	})
	return components, islands
}

// dfs returns every model in the component containing start.
func (g *ModelGraph) dfs(start string, visited map[string]bool) []string {
	var component []string
	stack := []string{start}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}

		visited[current] = true
		component = append(component, current)

		for _, neighbor := range g.edges[current] {
			if !visited[neighbor] {
				stack = append(stack, neighbor)
			}
		}
	}

	return component
}

// LogConnectivity logs a summary of the graph's components.
func LogConnectivity(edgeCount int, components []ConnectedComponent, islands []string, logger *zap.Logger) {
	for i, comp := range components {
		logger.Info("Graph component",
			zap.Int("component", i+1),
			zap.Int("size", comp.Size),
			zap.Strings("models", preview(comp.Models, 5)))
	}
	logger.Info("Graph connectivity",
		zap.Int("relationships", edgeCount),
		zap.Int("components", len(components)),
		zap.Int("islands", len(islands)),
		zap.Strings("island_models", preview(islands, 5)))
}

func preview(names []string, n int) []string {
	if len(names) <= n {
		return names
	}
	return names[:n]
}
