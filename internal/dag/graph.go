package dag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// StepState marks whether a step is live or archived.
type StepState string

const (
	StateActive  StepState = "active"
	StateArchive StepState = "archive"
)

// Node is one step in the dependency graph.
type Node struct {
	URI          URI
	Raw          string
	State        StepState
	Dependencies []string // direct, sorted
	Usages       []string // direct, sorted
}

// CycleError reports a dependency cycle, listing the steps on it in
// dependency order.
type CycleError struct {
	Steps []string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("dag: dependency cycle: %s", strings.Join(e.Steps, " -> "))
}

// Graph is the in-memory dependency graph built from the active and
// archive DAG files. Construction fails on unresolved dependencies
// (snapshot leaves excepted, they need no entry of their own) and on
// cycles; it never silently drops a step.
type Graph struct {
	nodes map[string]*Node
	order []string
}

// BuildGraph builds and validates the graph. The archive DAG may be nil.
func BuildGraph(active, archive *DAG) (*Graph, error) {
	g := &Graph{nodes: map[string]*Node{}}

	add := func(d *DAG, state StepState) error {
		for _, raw := range d.URIs() {
			uri, err := ParseURI(raw)
			if err != nil {
				return err
			}
			if existing, ok := g.nodes[raw]; ok && existing.State != state {
				return eris.Errorf("dag: step %s declared both active and archived", raw)
			}
			deps := append([]string(nil), d.Steps[raw]...)
			sort.Strings(deps)
			g.nodes[raw] = &Node{URI: uri, Raw: raw, State: state, Dependencies: deps}
			g.order = append(g.order, raw)
		}
		return nil
	}

	if err := add(active, StateActive); err != nil {
		return nil, err
	}
	if archive != nil {
		if err := add(archive, StateArchive); err != nil {
			return nil, err
		}
	}

	// Resolve dependencies. Snapshot URIs are ingestion leaves: they are
	// materialized as nodes on first reference. Anything else must be
	// declared.
	for _, raw := range append([]string(nil), g.order...) {
		node := g.nodes[raw]
		for _, dep := range node.Dependencies {
			if _, ok := g.nodes[dep]; ok {
				continue
			}
			depURI, err := ParseURI(dep)
			if err != nil {
				return nil, eris.Wrapf(err, "dag: dependency of %s", raw)
			}
			if depURI.Channel != ChannelSnapshot {
				return nil, eris.Errorf("dag: step %s depends on undeclared step %s", raw, dep)
			}
			g.nodes[dep] = &Node{URI: depURI, Raw: dep, State: node.State}
			g.order = append(g.order, dep)
		}
	}

	// Usage edges are the inverse of dependency edges.
	for _, raw := range g.order {
		for _, dep := range g.nodes[raw].Dependencies {
			g.nodes[dep].Usages = append(g.nodes[dep].Usages, raw)
		}
	}
	for _, node := range g.nodes {
		sort.Strings(node.Usages)
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, CycleError{Steps: cycle}
	}

	sort.Strings(g.order)
	return g, nil
}

// findCycle runs a coloring DFS over dependency edges and returns the
// first cycle found, or nil.
func (g *Graph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(raw string) []string
	visit = func(raw string) []string {
		color[raw] = gray
		stack = append(stack, raw)
		for _, dep := range g.nodes[raw].Dependencies {
			switch color[dep] {
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			case gray:
				for i, s := range stack {
					if s == dep {
						return append(append([]string(nil), stack[i:]...), dep)
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[raw] = black
		return nil
	}

	sorted := append([]string(nil), g.order...)
	sort.Strings(sorted)
	for _, raw := range sorted {
		if color[raw] == white {
			if cycle := visit(raw); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// Steps returns every known step URI, sorted.
func (g *Graph) Steps() []string {
	return append([]string(nil), g.order...)
}

// Node returns the node for a step URI.
func (g *Graph) Node(raw string) (*Node, bool) {
	n, ok := g.nodes[raw]
	return n, ok
}

// DirectDependencies returns a step's direct dependency URIs.
func (g *Graph) DirectDependencies(raw string) ([]string, error) {
	node, ok := g.nodes[raw]
	if !ok {
		return nil, eris.Errorf("dag: unknown step %s", raw)
	}
	return append([]string(nil), node.Dependencies...), nil
}

// DirectUsages returns the steps that directly depend on the given step.
func (g *Graph) DirectUsages(raw string) ([]string, error) {
	node, ok := g.nodes[raw]
	if !ok {
		return nil, eris.Errorf("dag: unknown step %s", raw)
	}
	return append([]string(nil), node.Usages...), nil
}

// AllDependencies returns the transitive dependency closure of a step,
// sorted, excluding the step itself.
func (g *Graph) AllDependencies(raw string) ([]string, error) {
	return g.closure(raw, func(n *Node) []string { return n.Dependencies }, nil)
}

// AllUsages returns the transitive usage closure of a step, sorted,
// excluding the step itself.
func (g *Graph) AllUsages(raw string) ([]string, error) {
	return g.closure(raw, func(n *Node) []string { return n.Usages }, nil)
}

// AllActiveDependencies is AllDependencies restricted to active steps.
func (g *Graph) AllActiveDependencies(raw string) ([]string, error) {
	return g.closure(raw, func(n *Node) []string { return n.Dependencies }, activeOnly)
}

// AllActiveUsages is AllUsages restricted to active steps.
func (g *Graph) AllActiveUsages(raw string) ([]string, error) {
	return g.closure(raw, func(n *Node) []string { return n.Usages }, activeOnly)
}

func activeOnly(n *Node) bool {
	return n.State == StateActive
}

func (g *Graph) closure(raw string, edges func(*Node) []string, keep func(*Node) bool) ([]string, error) {
	if _, ok := g.nodes[raw]; !ok {
		return nil, eris.Errorf("dag: unknown step %s", raw)
	}

	seen := map[string]bool{raw: true}
	queue := []string{raw}
	var out []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range edges(g.nodes[current]) {
			if seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
			if keep == nil || keep(g.nodes[next]) {
				out = append(out, next)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// LatestVersion returns the newest version among all steps sharing the
// given step's identifier.
func (g *Graph) LatestVersion(u URI) string {
	latest := u.Version
	for _, raw := range g.order {
		node := g.nodes[raw]
		if node.URI.Identifier() != u.Identifier() {
			continue
		}
		if CompareVersions(node.URI.Version, latest) > 0 {
			latest = node.URI.Version
		}
	}
	return latest
}
