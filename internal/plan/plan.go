// Package plan turns a set of table specifications into a dependency-ordered
// insertion plan. It is pure graph code: no I/O, cost O(V+E).
package plan

import (
	"sort"

	"dbmock/internal/core"
)

// InsertionPlan is the planner's output: a topologically sorted insertion
// order, the dependency graph it was derived from, any cycles found, and the
// tables with no dependencies at all.
type InsertionPlan struct {
	Order             []string            `json:"order"`
	Graph             map[string][]string `json:"graph"`
	Cycles            [][]string          `json:"cycles,omitempty"`
	IndependentTables []string            `json:"independentTables,omitempty"`
}

// Build constructs the insertion plan for the given specification set.
//
// A directed edge child -> parent is recorded for every foreign key whose
// parent and child are distinct tables; self-references are ignored for
// ordering. Foreign keys pointing outside the spec set (donor tables) add no
// edge. Ordering is Kahn's algorithm with sorted-name tie-breaking so the
// result is deterministic; tables left over after emission form cycles and
// are appended sorted by name.
func Build(specs map[string]*core.TableSpec) *InsertionPlan {
	graph := make(map[string][]string, len(specs))
	for name, spec := range specs {
		seen := make(map[string]bool)
		var deps []string
		for _, fk := range spec.ForeignKeys {
			ref := fk.ReferencedTable
			if ref == name || seen[ref] {
				continue
			}
			if _, ok := specs[ref]; !ok {
				continue
			}
			seen[ref] = true
			deps = append(deps, ref)
		}
		sort.Strings(deps)
		graph[name] = deps
	}

	order := topoSort(graph)
	cycles := findCycles(graph)

	var independent []string
	for name, deps := range graph {
		if len(deps) == 0 {
			independent = append(independent, name)
		}
	}
	sort.Strings(independent)

	return &InsertionPlan{
		Order:             order,
		Graph:             graph,
		Cycles:            cycles,
		IndependentTables: independent,
	}
}

// topoSort runs Kahn's algorithm over the child->parents graph. Parents are
// emitted before their children. Leftover tables (cycle members) are appended
// sorted by name.
func topoSort(graph map[string][]string) []string {
	inDegree := make(map[string]int, len(graph))
	dependents := make(map[string][]string, len(graph))
	for table, deps := range graph {
		inDegree[table] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], table)
		}
	}

	var queue []string
	for table, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, table)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(graph))
	for len(queue) > 0 {
		table := queue[0]
		queue = queue[1:]
		order = append(order, table)

		next := dependents[table]
		sort.Strings(next)
		var unlocked []string
		for _, dep := range next {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				unlocked = append(unlocked, dep)
			}
		}
		queue = append(queue, unlocked...)
		sort.Strings(queue)
	}

	if len(order) < len(graph) {
		emitted := make(map[string]bool, len(order))
		for _, t := range order {
			emitted[t] = true
		}
		var leftover []string
		for table := range graph {
			if !emitted[table] {
				leftover = append(leftover, table)
			}
		}
		sort.Strings(leftover)
		order = append(order, leftover...)
	}

	return order
}

// findCycles reports cycles via depth-first search with a recursion stack.
// When a back edge is found, the path slice from the first occurrence of the
// destination is recorded as one cycle.
func findCycles(graph map[string][]string) [][]string {
	visited := make(map[string]bool)
	var cycles [][]string

	var tables []string
	for table := range graph {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	var dfs func(table string, path []string, onStack map[string]bool)
	dfs = func(table string, path []string, onStack map[string]bool) {
		if onStack[table] {
			for i, p := range path {
				if p == table {
					cycle := make([]string, len(path)-i)
					copy(cycle, path[i:])
					cycles = append(cycles, cycle)
					return
				}
			}
			return
		}
		if visited[table] {
			return
		}
		visited[table] = true
		onStack[table] = true
		path = append(path, table)
		for _, dep := range graph[table] {
			if _, ok := graph[dep]; ok {
				dfs(dep, path, onStack)
			}
		}
		onStack[table] = false
	}

	for _, table := range tables {
		if !visited[table] {
			dfs(table, nil, make(map[string]bool))
		}
	}
	return cycles
}

// Batches partitions Order into maximal antichains: every table in batch k
// has all of its dependencies in batches <k. When a cycle blocks progress,
// the first remaining table in order is emitted as a singleton batch.
func (p *InsertionPlan) Batches() [][]string {
	done := make(map[string]bool, len(p.Order))
	remaining := append([]string(nil), p.Order...)

	var batches [][]string
	for len(remaining) > 0 {
		var batch, rest []string
		for _, table := range remaining {
			ready := true
			for _, dep := range p.Graph[table] {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				batch = append(batch, table)
			} else {
				rest = append(rest, table)
			}
		}

		if len(batch) == 0 {
			// A cycle blocks every remaining table; force forward progress.
			batch = remaining[:1]
			rest = remaining[1:]
		}

		for _, table := range batch {
			done[table] = true
		}
		batches = append(batches, batch)
		remaining = rest
	}
	return batches
}

// InCycle reports whether table participates in any detected cycle.
func (p *InsertionPlan) InCycle(table string) bool {
	for _, cycle := range p.Cycles {
		for _, t := range cycle {
			if t == table {
				return true
			}
		}
	}
	return false
}
