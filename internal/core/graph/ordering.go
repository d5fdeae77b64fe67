package graph

import (
	"errors"
	"slices"
)

// =============================================================================
// Package Ordering Functions
// =============================================================================

// Edge declares that From must be built and deployed before To.
type Edge struct {
	From PackageID
	To   PackageID
}

// TopologicalSort sorts package ids so that every edge's From precedes its To,
// using Kahn's algorithm.
//
// The function implements a BFS-based topological sort:
//  1. Count incoming edges for every node (in-degree)
//  2. Start with nodes that have no incoming edges
//  3. Emit the smallest ready node, reducing the in-degree of its dependents
//  4. When a dependent's in-degree reaches 0, it becomes ready
//
// Ready nodes are emitted in lexical order, so the result is deterministic.
// Nodes that only appear in edges are included. If nodes remain once the queue
// drains, they form a cycle and a GraphError wrapping ErrCycle is returned.
//
// Example:
//
//	// token is a contract dependency of exchange, exchange of router
//	order, err := TopologicalSort(
//	    []PackageID{"router", "exchange", "token"},
//	    []Edge{{From: "token", To: "exchange"}, {From: "exchange", To: "router"}},
//	)
//	// Result: [token, exchange, router]
func TopologicalSort(nodes []PackageID, edges []Edge) ([]PackageID, error) {
	inDegree := make(map[PackageID]int, len(nodes))
	dependents := make(map[PackageID][]PackageID)

	addNode := func(id PackageID) {
		if _, ok := inDegree[id]; !ok {
			inDegree[id] = 0
		}
	}
	for _, n := range nodes {
		addNode(n)
	}

	seen := make(map[Edge]bool, len(edges))
	for _, e := range edges {
		if seen[e] {
			continue
		}
		seen[e] = true
		addNode(e.From)
		inDegree[e.To]++
		dependents[e.From] = append(dependents[e.From], e.To)
	}

	if len(inDegree) == 0 {
		return nil, nil
	}

	var queue []PackageID
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	slices.Sort(queue)

	result := make([]PackageID, 0, len(inDegree))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		result = append(result, id)

		released := false
		for _, dep := range dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
				released = true
			}
		}
		if released {
			slices.Sort(queue)
		}
	}

	if len(result) < len(inDegree) {
		var residual []string
		for id, degree := range inDegree {
			if degree > 0 {
				residual = append(residual, string(id))
			}
		}
		slices.Sort(residual)
		return nil, &GraphError{
			Op:      "TopologicalSort",
			Cycle:   residual,
			Message: "contract dependency cycle",
			Err:     ErrCycle,
		}
	}

	return result, nil
}

// Workspace returns the selected packages ordered so that each package's
// contract dependencies come before it. Contract dependencies that were not
// selected take part in ordering but are not returned.
func Workspace(selected []Package, all []Package) ([]Package, error) {
	var nodes []PackageID
	var edges []Edge

	for _, p := range selected {
		deps, err := ContractDependencies(all, p.ID)
		if err != nil {
			return nil, err
		}
		for _, dep := range deps {
			nodes = append(nodes, dep.ID)
			edges = append(edges, Edge{From: dep.ID, To: p.ID})
		}
		nodes = append(nodes, p.ID)
	}

	order, err := TopologicalSort(nodes, edges)
	if err != nil {
		var gErr *GraphError
		if errors.As(err, &gErr) {
			gErr.Cycle = displayNames(gErr.Cycle, index(all))
		}
		return nil, err
	}

	chosen := index(selected)
	result := make([]Package, 0, len(chosen))
	for _, id := range order {
		if p, ok := chosen[id]; ok {
			result = append(result, p)
		}
	}
	return result, nil
}

func displayNames(ids []string, idx map[PackageID]Package) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		if p, ok := idx[PackageID(id)]; ok {
			names[i] = p.Name
		} else {
			names[i] = id
		}
	}
	return names
}
