// Package solutionspace builds the directed graph enumerating every legal
// way each field of a bound operation could be resolved against a
// supergraph: the input internal/steiner solves over and
// internal/planner ultimately lowers into an executable plan.
package solutionspace

import (
	"github.com/n9te9/federation-gateway/internal/operation"
	"github.com/n9te9/federation-gateway/internal/supergraph"
)

// NodeID addresses a Node in Graph.Nodes.
type NodeID int32

// NoNode is the sentinel for "no node".
const NoNode NodeID = -1

// NodeKind tags the four node variants of the solution space.
type NodeKind uint8

const (
	NodeRoot NodeKind = iota
	NodeQueryField
	NodeResolver
	NodeProvidableField
)

// EdgeKind tags the typed edges of the solution space.
type EdgeKind uint8

const (
	// EdgeCreateChildResolver (cost 1): the planner may instantiate a new
	// resolver here, a new subgraph fetch.
	EdgeCreateChildResolver EdgeKind = iota
	// EdgeCanProvide (cost 0): a resolver provides a field, or a field is
	// trivially reachable within the same fetch.
	EdgeCanProvide
	// EdgeProvides: a ProvidableField satisfies the QueryField it resolves.
	EdgeProvides
	// EdgeRequires: a resolver or ProvidableField needs a QueryField as
	// input before it can run (@requires).
	EdgeRequires
	// EdgeHasUnionMember is a structural edge from a QueryField over a
	// union/interface to the per-concrete-type branch QueryFields.
	EdgeHasUnionMember
	// EdgeHasChildField is a structural edge from a QueryField to its
	// sub-selection's QueryFields.
	EdgeHasChildField
)

// Cost returns the edge's fixed cost contribution: 1 for a new
// subgraph fetch, 0 for everything else.
func (k EdgeKind) Cost() int {
	if k == EdgeCreateChildResolver {
		return 1
	}
	return 0
}

// Edge is one directed, typed edge of the solution-space graph.
type Edge struct {
	From NodeID
	To   NodeID
	Kind EdgeKind
}

// Node is one solution-space graph node. Which fields are meaningful
// depends on Kind; see the NodeKind constants.
type Node struct {
	Kind NodeKind

	// NodeQueryField: the bound operation field this node represents.
	// NodeProvidableField: the field being provided.
	Field operation.FieldID

	// NodeResolver: the resolver definition instantiated at this node.
	Resolver supergraph.ResolverID

	// NodeResolver: the subgraph the resolver operates in, copied from
	// the ResolverDef for convenience, since the hot loop in the solver
	// only ever wants (edge kind, cost) pairs, not a dereference.
	Subgraph supergraph.SubgraphID

	// NodeProvidableField: the NodeResolver node that provides this field.
	Provider NodeID

	// NodeResolver: the node (Root or a ProvidableField) this resolver
	// instance was created against.
	ParentContext NodeID
}

// Graph is the built solution space for one operation.
type Graph struct {
	SG *supergraph.Supergraph
	Op *operation.Operation

	// Fields extends Op.Fields with synthesized entries for @requires
	// pulls that were not part of the client's selection. Field ids from Op
	// are valid indices into Fields too: Fields[0:len(Op.Fields)] is a
	// verbatim copy.
	Fields []operation.Field

	Nodes []Node
	Edges []Edge

	Root NodeID

	// Terminals holds the QueryField node ids for every indispensable leaf
	// field the Steiner solver must cover.
	Terminals []NodeID

	// outgoing indexes Edges by source node for the solver/compactor.
	outgoing map[NodeID][]int

	// queryFieldIndex lets downstream packages (internal/steiner,
	// internal/planner) look up the QueryField node for an operation field
	// without re-deriving it, including for non-leaf "pass-through" fields
	// like a federated reference that were never added to Terminals but
	// still need their provider chain in the chosen solution.
	queryFieldIndex map[operation.FieldID]NodeID
}

// FieldNode returns the QueryField node representing fid, if one was
// created during construction (every field with at least one candidate
// resolver has one, regardless of whether it ended up a leaf terminal).
func (g *Graph) FieldNode(fid operation.FieldID) (NodeID, bool) {
	id, ok := g.queryFieldIndex[fid]
	return id, ok
}

// Field dereferences an operation.FieldID into the graph's (possibly
// extended) field arena.
func (g *Graph) Field(id operation.FieldID) *operation.Field { return &g.Fields[id] }

// Node dereferences a NodeID.
func (g *Graph) Node(id NodeID) *Node { return &g.Nodes[id] }

// Out returns the outgoing edges from a node, as indices into g.Edges.
func (g *Graph) Out(id NodeID) []int { return g.outgoing[id] }

func (g *Graph) addNode(n Node) NodeID {
	id := NodeID(len(g.Nodes))
	g.Nodes = append(g.Nodes, n)
	return id
}

func (g *Graph) addEdge(from, to NodeID, kind EdgeKind) {
	for _, idx := range g.outgoing[from] {
		e := g.Edges[idx]
		if e.To == to && e.Kind == kind {
			return // already present; edges of a given kind between two nodes are deduplicated
		}
	}
	idx := len(g.Edges)
	g.Edges = append(g.Edges, Edge{From: from, To: to, Kind: kind})
	g.outgoing[from] = append(g.outgoing[from], idx)
}
