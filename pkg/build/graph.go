package build

import (
	"fmt"
	"sort"
)

// targetGraph tracks build targets and their prerequisites. Edges point
// from a dependency to the targets that consume it.
type targetGraph struct {
	nodes      map[string]bool
	deps       map[string][]string // target -> prerequisites
	dependents map[string][]string
}

func newTargetGraph() *targetGraph {
	return &targetGraph{
		nodes:      make(map[string]bool),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}
}

func (g *targetGraph) addTarget(name string) error {
	if g.nodes[name] {
		return fmt.Errorf("target %q declared twice", name)
	}
	g.nodes[name] = true
	return nil
}

func (g *targetGraph) addDep(target, dep string) error {
	if !g.nodes[target] {
		return fmt.Errorf("unknown target %q", target)
	}
	if !g.nodes[dep] {
		return fmt.Errorf("target %q depends on unknown target %q", target, dep)
	}
	if target == dep {
		return fmt.Errorf("target %q depends on itself", target)
	}
	g.deps[target] = append(g.deps[target], dep)
	g.dependents[dep] = append(g.dependents[dep], target)
	return nil
}

// sorted returns the targets in dependency order, prerequisites first.
// The order is deterministic for a given graph.
func (g *targetGraph) sorted() ([]string, error) {
	if cycle := g.findCycle(); cycle != nil {
		return nil, fmt.Errorf("dependency cycle: %v", cycle)
	}

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	visited := make(map[string]bool)
	var result []string
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, dep := range g.deps[id] {
			visit(dep)
		}
		result = append(result, id)
	}
	for _, id := range ids {
		visit(id)
	}
	return result, nil
}

// findCycle returns a path through one cycle, or nil when the graph is
// acyclic.
func (g *targetGraph) findCycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	cameFrom := make(map[string]string)
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		for _, dep := range g.deps[id] {
			if !visited[dep] {
				cameFrom[dep] = id
				if dfs(dep) {
					return true
				}
			} else if onStack[dep] {
				cycle = []string{dep}
				for cur := id; cur != dep; cur = cameFrom[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append([]string{dep}, cycle...)
				return true
			}
		}
		onStack[id] = false
		return false
	}

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !visited[id] && dfs(id) {
			return cycle
		}
	}
	return nil
}
