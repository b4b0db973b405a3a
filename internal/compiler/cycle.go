package compiler

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dominikbraun/graph"

	"github.com/roach88/binderscan/internal/ir"
)

// CycleWarning represents a delegation cycle between dispatch methods.
//
// Cycles are warnings, not errors: the resolver stops at methods it has
// already entered, so a cycle only means some codes are reached twice.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["A#m", "B#m", "A#m"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeDelegation builds the graph of dispatch methods that forward one
// of their parameters to a callee whose name contains pattern, and reports
// every strongly connected component with more than one method or a
// self-loop.
//
// Bodies that fail to lift are skipped; Validate reports them.
func AnalyzeDelegation(p *ir.Program, pattern string) ([]CycleWarning, error) {
	g, err := DelegationGraph(p, pattern)
	if err != nil {
		return nil, err
	}
	adj, err := g.AdjacencyMap()
	if err != nil {
		return nil, err
	}
	sccs, err := graph.StronglyConnectedComponents(g)
	if err != nil {
		return nil, fmt.Errorf("delegation components: %w", err)
	}

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		slices.Sort(scc)
		if len(scc) > 1 || hasSelfLoop(scc[0], adj) {
			warnings = append(warnings, cycleSCCToWarning(scc, adj))
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int { return strings.Compare(a.Path[0], b.Path[0]) })
	return warnings, nil
}

// DelegationGraph returns the forwarding graph keyed by method key.
func DelegationGraph(p *ir.Program, pattern string) (graph.Graph[string, string], error) {
	pattern = strings.ToLower(pattern)
	g := graph.New(graph.StringHash, graph.Directed())
	addVertex := func(k string) error {
		if err := g.AddVertex(k); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return err
		}
		return nil
	}

	for _, c := range p.Classes() {
		for _, m := range c.Methods {
			if !m.IsConcrete() {
				continue
			}
			body, err := m.Body()
			if err != nil {
				continue
			}
			for _, callee := range forwardedCallees(body, pattern) {
				if err := addVertex(m.Key()); err != nil {
					return nil, err
				}
				if err := addVertex(callee.Key()); err != nil {
					return nil, err
				}
				if err := g.AddEdge(m.Key(), callee.Key()); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
					return nil, err
				}
			}
		}
	}
	return g, nil
}

// forwardedCallees returns callees matching pattern that receive one of
// the body's parameters.
func forwardedCallees(body *ir.Body, pattern string) []*ir.Method {
	var out []*ir.Method
	for _, blk := range body.Blocks {
		for _, s := range blk.Stmts {
			call := ir.StmtInvoke(s)
			if call == nil || call.Method == nil || !strings.Contains(strings.ToLower(call.Method.Name), pattern) {
				continue
			}
			for _, p := range body.Params {
				if call.ArgIndex(p) >= 0 {
					out = append(out, call.Method)
					break
				}
			}
		}
	}
	return out
}

type adjacency = map[string]map[string]graph.Edge[string]

func hasSelfLoop(node string, adj adjacency) bool {
	_, ok := adj[node][node]
	return ok
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
//
// For self-loops, the path is [m, m].
// For multi-node cycles, the path shows a cycle traversal.
func cycleSCCToWarning(scc []string, adj adjacency) CycleWarning {
	if len(scc) == 1 {
		return CycleWarning{
			Path:    []string{scc[0], scc[0]},
			Message: fmt.Sprintf("Self-forwarding dispatch method: %s → %s", scc[0], scc[0]),
			Level:   "warning",
		}
	}
	path := reconstructCyclePath(scc, adj)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Delegation cycle: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members
// in sorted order, continue until we return to start node.
func reconstructCyclePath(scc []string, adj adjacency) []string {
	if len(scc) == 0 {
		return []string{}
	}
	inSCC := make(map[string]bool, len(scc))
	for _, n := range scc {
		inSCC[n] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true
		neighbors := make([]string, 0, len(adj[current]))
		for n := range adj[current] {
			neighbors = append(neighbors, n)
		}
		slices.Sort(neighbors)

		next := ""
		for _, n := range neighbors {
			if inSCC[n] && (!visited[n] || n == start) {
				next = n
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
