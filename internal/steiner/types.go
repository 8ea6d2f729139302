// Package steiner runs the heuristic solver that picks which resolvers to
// instantiate, directly on the solution-space graph (no separate
// compaction step).
//
// The solution space always has exactly one source (Root), so covering every
// indispensable terminal is a single-source arborescence problem rather than
// a general Steiner tree: the heuristic is a gated shortest-path-tree
// computation, a gated Dijkstra extended to respect @requires dependency
// edges that a plain shortest path ignores.
package steiner

import "github.com/n9te9/federation-gateway/internal/solutionspace"

// parentEdge records, for one node in the chosen tree, the edge that reaches
// it from its parent.
type parentEdge struct {
	From solutionspace.NodeID
	Kind solutionspace.EdgeKind
}

// Solution is the subgraph of a solution-space Graph chosen to resolve every
// terminal, the input internal/planner lowers into an executable plan.
type Solution struct {
	// Cost is the total edge cost of the chosen tree (sum of distinct
	// CreateChildResolver edges used).
	Cost int

	// Included holds every node (Root, Resolver, ProvidableField, QueryField)
	// that is part of the chosen tree.
	Included map[solutionspace.NodeID]bool

	// Parent maps a node to the edge that reaches it from its parent in the
	// tree. Root has no entry.
	Parent map[solutionspace.NodeID]parentEdge
}

// Has reports whether id is part of the solution.
func (s *Solution) Has(id solutionspace.NodeID) bool { return s.Included[id] }
