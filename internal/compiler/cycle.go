package compiler

import (
	"fmt"
	"slices"
	"strings"
)

// CycleWarning represents a chain of auto connections that can loop.
//
// Loops are warnings, not errors: guards may break them at runtime, and the
// machine bounds chained autos with a step limit anyway.
type CycleWarning struct {
	Machine string   `json:"machine"`
	Path    []string `json:"path"`    // states: ["A", "B", "A"]
	Message string   `json:"message"` // human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// autoGraph maps a state to the states its auto connections lead to.
type autoGraph struct {
	nodes []string // declaration order, for deterministic output
	edges map[string][]string
}

// AnalyzeAutoCycles finds auto-connection chains that can return to a state
// they already left. An auto connection whose from and to are the same
// state never re-enters it and is not a loop.
//
// The algorithm:
//  1. Build state → state graph from auto connections
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with more than one state
func AnalyzeAutoCycles(m *Model) []CycleWarning {
	g := buildAutoGraph(m)
	if len(g.edges) == 0 {
		return []CycleWarning{}
	}

	warnings := []CycleWarning{}
	for _, scc := range tarjanSCC(g) {
		if len(scc) < 2 {
			continue
		}
		path := reconstructCyclePath(scc, g)
		warnings = append(warnings, CycleWarning{
			Machine: m.Name(),
			Path:    path,
			Message: fmt.Sprintf("auto connections can loop: %s", strings.Join(path, " → ")),
			Level:   "warning",
		})
	}
	return warnings
}

func buildAutoGraph(m *Model) autoGraph {
	g := autoGraph{edges: make(map[string][]string)}
	seen := make(map[string]bool)
	addNode := func(s string) {
		if !seen[s] {
			seen[s] = true
			g.nodes = append(g.nodes, s)
		}
	}

	for _, state := range m.States() {
		addNode(state)
	}
	for _, c := range m.Connections() {
		if !c.IsAuto() || c.From == c.To {
			continue
		}
		addNode(c.From)
		addNode(c.To)
		if !slices.Contains(g.edges[c.From], c.To) {
			g.edges[c.From] = append(g.edges[c.From], c.To)
		}
	}
	return g
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Each SCC is ordered by the graph's node order.
func tarjanSCC(g autoGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	order := make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		order[n] = i
	}

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.SortFunc(scc, func(a, b string) int { return order[a] - order[b] })
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	slices.SortFunc(sccs, func(a, b []string) int { return order[a[0]] - order[b[0]] })
	return sccs
}

// reconstructCyclePath walks edges inside the SCC from its first node until
// it returns there.
func reconstructCyclePath(scc []string, g autoGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	member := make(map[string]bool, len(scc))
	for _, n := range scc {
		member[n] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		next := ""
		for _, neighbor := range g.edges[current] {
			if member[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
