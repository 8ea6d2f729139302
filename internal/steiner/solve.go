package steiner

import (
	"container/heap"
	"context"

	"github.com/n9te9/federation-gateway/internal/gwerr"
	"github.com/n9te9/federation-gateway/internal/operation"
	"github.com/n9te9/federation-gateway/internal/solutionspace"
)

const inf = int(^uint(0) >> 1)

// dijkstraItem is a priority-queue entry, keyed by the arena's int32
// NodeID.
type dijkstraItem struct {
	node  solutionspace.NodeID
	cost  int
	index int
}

type dijkstraPQ []*dijkstraItem

func (pq dijkstraPQ) Len() int           { return len(pq) }
func (pq dijkstraPQ) Less(i, j int) bool { return pq[i].cost < pq[j].cost }
func (pq dijkstraPQ) Swap(i, j int)      { pq[i], pq[j] = pq[j], pq[i]; pq[i].index = i; pq[j].index = j }
func (pq *dijkstraPQ) Push(x any) {
	item := x.(*dijkstraItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *dijkstraPQ) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// requiresOf precomputes, per node, the QueryField nodes that must already
// be reachable before the node may be entered. Only
// Resolver nodes carry EdgeRequires edges in practice, but the lookup is
// generic over any node kind.
func requiresOf(g *solutionspace.Graph) map[solutionspace.NodeID][]solutionspace.NodeID {
	out := make(map[solutionspace.NodeID][]solutionspace.NodeID)
	for _, e := range g.Edges {
		if e.Kind == solutionspace.EdgeRequires {
			out[e.From] = append(out[e.From], e.To)
		}
	}
	return out
}

// satisfied reports whether every node v needs (per requires) is already
// reachable in dist.
func satisfied(requires map[solutionspace.NodeID][]solutionspace.NodeID, dist map[solutionspace.NodeID]int, v solutionspace.NodeID) bool {
	for _, q := range requires[v] {
		if dist[q] == inf {
			return false
		}
	}
	return true
}

// dijkstraRound runs single-source Dijkstra from Root, gating
// EdgeCreateChildResolver traversal on gate (the previous round's
// reachability), and returns the new distance and predecessor maps.
func dijkstraRound(g *solutionspace.Graph, requires map[solutionspace.NodeID][]solutionspace.NodeID, gate map[solutionspace.NodeID]int) (map[solutionspace.NodeID]int, map[solutionspace.NodeID]parentEdge) {
	dist := make(map[solutionspace.NodeID]int, len(g.Nodes))
	prev := make(map[solutionspace.NodeID]parentEdge, len(g.Nodes))
	for id := range g.Nodes {
		dist[solutionspace.NodeID(id)] = inf
	}
	dist[g.Root] = 0

	pq := &dijkstraPQ{}
	heap.Init(pq)
	heap.Push(pq, &dijkstraItem{node: g.Root, cost: 0})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*dijkstraItem)
		u, cost := item.node, item.cost
		if cost > dist[u] {
			continue
		}
		for _, idx := range g.Out(u) {
			e := g.Edges[idx]
			if e.Kind == solutionspace.EdgeCreateChildResolver && !satisfied(requires, gate, e.To) {
				continue // this round's requirement isn't reachable yet; try again next round
			}
			newCost := dist[u] + e.Kind.Cost()
			if newCost < dist[e.To] {
				dist[e.To] = newCost
				prev[e.To] = parentEdge{From: u, Kind: e.Kind}
				heap.Push(pq, &dijkstraItem{node: e.To, cost: newCost})
			}
		}
	}
	return dist, prev
}

// Solve picks the minimum-cost set of resolvers that covers every terminal
// field of g, respecting @requires dependencies. Because @requires can make
// one resolver's reachability depend on another QueryField's reachability,
// a single Dijkstra pass isn't sound: Solve re-runs it, gating on the
// previous round's results, until the distance map stops changing: a small,
// bounded number of rounds for any operation a client would actually send.
func Solve(ctx context.Context, g *solutionspace.Graph) (*Solution, error) {
	requires := requiresOf(g)

	gate := make(map[solutionspace.NodeID]int, len(g.Nodes))
	for id := range g.Nodes {
		gate[solutionspace.NodeID(id)] = inf
	}
	gate[g.Root] = 0

	var dist map[solutionspace.NodeID]int
	var prev map[solutionspace.NodeID]parentEdge

	maxRounds := len(g.Nodes) + 1
	for round := 0; round < maxRounds; round++ {
		select {
		case <-ctx.Done():
			return nil, gwerr.New(gwerr.CodePlanningCancelled, "planning cancelled: %v", ctx.Err())
		default:
		}

		dist, prev = dijkstraRound(g, requires, gate)
		if mapsEqual(dist, gate) {
			break
		}
		gate = dist
	}

	sol := &Solution{
		Included: map[solutionspace.NodeID]bool{g.Root: true},
		Parent:   make(map[solutionspace.NodeID]parentEdge),
	}

	// needed starts as every non-dispensable client field: leaves and
	// pass-through container fields alike, since internal/planner needs a
	// container field's own provider chain to know which resolver owns it
	// even though only its leaf descendants are terminals proper. It grows
	// further: folding in a Resolver node whose @requires targets weren't
	// otherwise on any needed field's path means those targets must be
	// fetched too.
	needed := collectNeeded(g)
	for len(needed) > 0 {
		t := needed[len(needed)-1]
		needed = needed[:len(needed)-1]

		if dist[t] == inf {
			f := g.Field(g.Node(t).Field)
			return nil, gwerr.New(gwerr.CodeNoPlanFound, "no subgraph combination can resolve field %q", f.ResponseKey)
		}
		for n := t; n != g.Root; {
			if sol.Included[n] {
				break // already folded into the tree by an earlier path
			}
			sol.Included[n] = true
			pe := prev[n]
			sol.Parent[n] = pe
			if pe.Kind == solutionspace.EdgeCreateChildResolver {
				sol.Cost += pe.Kind.Cost()
				needed = append(needed, requires[n]...)
			}
			n = pe.From
		}
	}

	return sol, nil
}

// collectNeeded walks the client's own field tree (never the synthesized
// @requires pulls, which dijkstraRound's requires map already accounts for)
// and returns the QueryField node for every non-dispensable field. Leaf
// fields are further filtered against g.Terminals, which already excludes
// any leaf an authorization hook marked Deny/Unknown; container
// fields carry no authorization check of their own, so every non-dispensable
// one is needed regardless.
func collectNeeded(g *solutionspace.Graph) []solutionspace.NodeID {
	terminalSet := make(map[solutionspace.NodeID]bool, len(g.Terminals))
	for _, t := range g.Terminals {
		terminalSet[t] = true
	}

	var out []solutionspace.NodeID
	var walk func(fids []operation.FieldID)
	walk = func(fids []operation.FieldID) {
		for _, fid := range fids {
			f := g.Field(fid)
			if f.IsTypename || f.Dispensable {
				continue
			}
			id, ok := g.FieldNode(fid)
			if !ok {
				continue
			}
			if len(f.SubSelection) == 0 && !terminalSet[id] {
				continue // excluded by an authorization Deny/Unknown outcome
			}
			out = append(out, id)
			if len(f.SubSelection) > 0 {
				walk(f.SubSelection)
			}
		}
	}
	walk(g.Op.Root)
	return out
}

func mapsEqual(a, b map[solutionspace.NodeID]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
