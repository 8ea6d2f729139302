package solutionspace

import (
	"context"

	"github.com/n9te9/federation-gateway/internal/operation"
	"github.com/n9te9/federation-gateway/internal/policy"
	"github.com/n9te9/federation-gateway/internal/supergraph"
)

// resolverKey identifies a deduplicated Resolver node: the same resolver
// definition instantiated at the same parent context is the same node, so
// a second field needing the same entity fetch doesn't pay for a second
// CreateChildResolver edge.
type resolverKey struct {
	resolver supergraph.ResolverID
	parent   NodeID
}

// pfKey identifies a deduplicated ProvidableField node: the same field
// provided by the same resolver instance is the same node.
type pfKey struct {
	field    operation.FieldID
	provider NodeID
}

// ExcludedField identifies one (field definition, subgraph) copy the
// planner has decided not to consider, the mechanism @override planning
// decisions are applied through: a percent(100) label excludes the
// overridden subgraph's copy, percent(0) the overriding one.
type ExcludedField struct {
	Field    supergraph.FieldID
	Subgraph supergraph.SubgraphID
}

// builder holds the scratch state used while constructing a solution-space
// Graph. Only the finished Graph escapes.
type builder struct {
	g        *Graph
	hook     policy.AuthzHook
	ctx      context.Context
	excluded map[ExcludedField]bool

	qfNodes       map[operation.FieldID]NodeID
	resolverNodes map[resolverKey]NodeID
	pfNodes       map[pfKey]NodeID

	// siblingIndex lets @requires find-or-synthesize a sibling field under
	// the same parent context without a linear scan on every lookup.
	siblingIndex map[NodeID]map[supergraph.FieldID]operation.FieldID
}

// Option configures Build.
type Option func(*builder)

// WithAuthzHook sets the authorization oracle consulted for every field's
// indispensability. The default, also used for a nil h, is
// policy.AllowAllHook{}.
func WithAuthzHook(h policy.AuthzHook) Option {
	return func(b *builder) {
		if h == nil {
			h = policy.AllowAllHook{}
		}
		b.hook = h
	}
}

// WithFieldExclusions removes specific (field, subgraph) copies from the
// solution space before any resolver edge is created for them. The planner
// uses this to apply resolved @override decisions.
func WithFieldExclusions(excluded map[ExcludedField]bool) Option {
	return func(b *builder) { b.excluded = excluded }
}

// Build constructs the solution-space graph for op against sg.
func Build(ctx context.Context, sg *supergraph.Supergraph, op *operation.Operation, opts ...Option) (*Graph, error) {
	fields := make([]operation.Field, len(op.Fields))
	copy(fields, op.Fields)

	g := &Graph{
		SG:       sg,
		Op:       op,
		Fields:   fields,
		outgoing: make(map[NodeID][]int),
	}
	b := &builder{
		g:             g,
		hook:          policy.AllowAllHook{},
		ctx:           ctx,
		qfNodes:       make(map[operation.FieldID]NodeID),
		resolverNodes: make(map[resolverKey]NodeID),
		pfNodes:       make(map[pfKey]NodeID),
		siblingIndex:  make(map[NodeID]map[supergraph.FieldID]operation.FieldID),
	}
	for _, o := range opts {
		o(b)
	}

	g.Root = g.addNode(Node{Kind: NodeRoot, Provider: NoNode})

	if err := b.processSelection(op.RootType, g.Root, supergraph.NoSubgraph, op.Root, nil); err != nil {
		return nil, err
	}
	if err := b.markTerminals(op.Root); err != nil {
		return nil, err
	}
	g.queryFieldIndex = b.qfNodes
	return g, nil
}

func (b *builder) registerSiblings(parent NodeID, children []operation.FieldID) {
	idx := b.siblingIndex[parent]
	if idx == nil {
		idx = make(map[supergraph.FieldID]operation.FieldID)
		b.siblingIndex[parent] = idx
	}
	for _, fid := range children {
		f := b.g.Field(fid)
		if !f.IsTypename {
			idx[f.Def] = fid
		}
	}
}

func (b *builder) queryFieldNode(fid operation.FieldID) NodeID {
	if id, ok := b.qfNodes[fid]; ok {
		return id
	}
	id := b.g.addNode(Node{Kind: NodeQueryField, Field: fid, Provider: NoNode})
	b.qfNodes[fid] = id
	return id
}

func (b *builder) resolverNode(rid supergraph.ResolverID, parent NodeID) NodeID {
	key := resolverKey{resolver: rid, parent: parent}
	if id, ok := b.resolverNodes[key]; ok {
		return id
	}
	rd := b.g.SG.Resolver(rid)
	id := b.g.addNode(Node{Kind: NodeResolver, Resolver: rid, Subgraph: rd.Subgraph, ParentContext: parent, Provider: NoNode})
	b.resolverNodes[key] = id
	return id
}

func (b *builder) providableFieldNode(fid operation.FieldID, provider NodeID) NodeID {
	key := pfKey{field: fid, provider: provider}
	if id, ok := b.pfNodes[key]; ok {
		return id
	}
	sub := b.g.Node(provider).Subgraph
	id := b.g.addNode(Node{Kind: NodeProvidableField, Field: fid, Provider: provider, Subgraph: sub})
	b.pfNodes[key] = id
	return id
}

// provide wires provider -[edgeToPF]-> PF(fid,provider) -[Provides]-> QueryField(fid)
// and returns the PF node, which is what recursion into fid's own
// sub-selection uses as its new parent context.
func (b *builder) provide(fid operation.FieldID, provider NodeID, edgeToPF EdgeKind) NodeID {
	pf := b.providableFieldNode(fid, provider)
	b.g.addEdge(provider, pf, edgeToPF)
	b.g.addEdge(pf, b.queryFieldNode(fid), EdgeProvides)
	return pf
}

// ensureSiblingField returns the operation.FieldID for ref under parent,
// synthesizing a field entry if the client didn't already select it, so
// an @requires target missing from the selection still enters the field
// tree. Synthesized fields are solver-mandatory (they gate a Requires
// edge) but never appear in any response shape.
func (b *builder) ensureSiblingField(parent NodeID, parentType supergraph.TypeID, ref supergraph.FieldID) operation.FieldID {
	idx := b.siblingIndex[parent]
	if idx == nil {
		idx = make(map[supergraph.FieldID]operation.FieldID)
		b.siblingIndex[parent] = idx
	}
	if fid, ok := idx[ref]; ok {
		return fid
	}
	fd := b.g.SG.Field(ref)
	synthetic := operation.Field{
		ResponseKey:   fd.Name,
		Def:           ref,
		ParentType:    parentType,
		TypeCondition: parentType,
		QueryPosition: -1, // synthesized fields never win a document-order tie-break over real ones
	}
	fid := operation.FieldID(len(b.g.Fields))
	b.g.Fields = append(b.g.Fields, synthetic)
	idx[ref] = fid
	return fid
}

// deriveSatisfiable reports whether every sibling key field a @derive
// mapping reads from is itself present in sub, so the derived value can be
// computed without another fetch.
func (b *builder) deriveSatisfiable(fd *supergraph.FieldDef, sub supergraph.SubgraphID) bool {
	if sub == supergraph.NoSubgraph {
		return false
	}
	for _, ref := range fd.Derive.From {
		if !b.g.SG.Field(ref.Field).ExistsIn(sub) {
			return false
		}
	}
	return true
}

// available reports whether fd's copy in sub is a live candidate: present
// there and not excluded by an @override decision.
func (b *builder) available(def supergraph.FieldID, fd *supergraph.FieldDef, sub supergraph.SubgraphID) bool {
	if b.excluded[ExcludedField{Field: def, Subgraph: sub}] {
		return false
	}
	return fd.ExistsIn(sub)
}

// freeProviders maps a field definition to the resolver node that can
// provide it at zero cost via the parent field's @provides.
type freeProviders map[supergraph.FieldID]NodeID

// freeProvidersFor computes the free-provider map a PF's children inherit
// from its own resolver's @provides declaration.
func (b *builder) freeProvidersFor(fd *supergraph.FieldDef, pf NodeID) freeProviders {
	node := b.g.Node(pf)
	provided, ok := fd.Provides[node.Subgraph]
	if !ok || len(provided) == 0 {
		return nil
	}
	out := make(freeProviders, len(provided))
	for _, ref := range provided {
		out[ref.Field] = node.Provider
	}
	return out
}

// processSelection builds resolver/PF nodes for every child of parentNode
// and recurses into their own sub-selections.
func (b *builder) processSelection(parentType supergraph.TypeID, parentNode NodeID, parentSubgraph supergraph.SubgraphID, children []operation.FieldID, free freeProviders) error {
	b.registerSiblings(parentNode, children)

	for _, fid := range children {
		f := b.g.Field(fid)

		if f.IsTypename {
			b.provide(fid, parentNode, EdgeCanProvide)
			continue
		}

		fd := b.g.SG.Field(f.Def)
		var childParents []NodeID

		if freeProvider, ok := free[f.Def]; ok {
			childParents = append(childParents, b.provide(fid, freeProvider, EdgeProvides))
		}

		if parentSubgraph != supergraph.NoSubgraph && b.available(f.Def, fd, parentSubgraph) {
			owner := b.g.Node(parentNode).Provider
			if owner != NoNode {
				childParents = append(childParents, b.provide(fid, owner, EdgeCanProvide))
			}
		} else if fd.Derive != nil && b.deriveSatisfiable(fd, parentSubgraph) {
			// A @derive field is synthesized from sibling key fields the
			// current subgraph already holds, so it costs no extra fetch
			// even though the field itself isn't declared here.
			owner := b.g.Node(parentNode).Provider
			if owner != NoNode {
				childParents = append(childParents, b.provide(fid, owner, EdgeCanProvide))
			}
		}

		if parentNode == b.g.Root {
			for _, rid := range fd.Resolvers {
				rd := b.g.SG.Resolver(rid)
				if rd.Kind != supergraph.ResolverRootField && rd.Kind != supergraph.ResolverFieldExtension {
					continue
				}
				if b.excluded[ExcludedField{Field: f.Def, Subgraph: rd.Subgraph}] {
					continue
				}
				rn := b.resolverNode(rid, parentNode)
				b.g.addEdge(parentNode, rn, EdgeCreateChildResolver)
				childParents = append(childParents, b.provide(fid, rn, EdgeCanProvide))
			}
		}

		// A field narrowed by a fragment condition is fetched against its
		// own concrete type, not the interface/union position it sits in.
		entityType := parentType
		if f.TypeCondition != supergraph.NoType && f.TypeCondition != parentType {
			entityType = f.TypeCondition
		}
		if td := b.g.SG.Type(entityType); td.IsEntity {
			for _, rid := range b.g.SG.EntityResolvers(entityType) {
				rd := b.g.SG.Resolver(rid)
				if rd.Subgraph == parentSubgraph {
					continue // covered by the same-subgraph-continuation case above
				}
				if !b.available(f.Def, fd, rd.Subgraph) {
					continue
				}
				rn := b.resolverNode(rid, parentNode)
				b.g.addEdge(parentNode, rn, EdgeCreateChildResolver)
				pf := b.provide(fid, rn, EdgeCanProvide)
				childParents = append(childParents, pf)

				for _, ref := range fd.Requires[rd.Subgraph] {
					reqFID := b.ensureSiblingField(parentNode, entityType, ref.Field)
					b.g.addEdge(rn, b.queryFieldNode(reqFID), EdgeRequires)
					// A synthesized sibling is resolved exactly like any other
					// child of parentNode would be: same-subgraph continuation,
					// a free @provides grant, or its own entity fetch. Without
					// this it would sit in the graph with an EdgeRequires
					// pointing at it but no provider, permanently unreachable.
					if err := b.processSelection(entityType, parentNode, parentSubgraph, []operation.FieldID{reqFID}, free); err != nil {
						return err
					}
				}
			}
		}

		if len(f.SubSelection) == 0 || len(childParents) == 0 {
			continue
		}

		childType := fd.NamedType
		for _, parent := range childParents {
			childFree := b.freeProvidersFor(fd, parent)
			if err := b.processSelection(childType, parent, b.g.Node(parent).Subgraph, f.SubSelection, childFree); err != nil {
				return err
			}
		}
	}
	return nil
}

// markTerminals walks the client's own field tree (never the synthesized
// @requires pulls) and records the leaf, indispensable QueryField nodes the
// Steiner solver must cover. A field is indispensable when its static
// @skip/@include gates all resolved to "included" and, if it's a leaf, its
// authorization hook evaluates to Allow; Unknown is treated the same as an
// unresolved conditional: conservatively dispensable.
func (b *builder) markTerminals(roots []operation.FieldID) error {
	return b.markTerminalsRec(roots, nil)
}

func (b *builder) markTerminalsRec(fids []operation.FieldID, path policy.FieldPath) error {
	for _, fid := range fids {
		f := b.g.Field(fid)
		if f.IsTypename || f.Dispensable {
			continue
		}
		fieldPath := append(append(policy.FieldPath{}, path...), f.ResponseKey)

		if len(f.SubSelection) > 0 {
			if err := b.markTerminalsRec(f.SubSelection, fieldPath); err != nil {
				return err
			}
			continue
		}

		decision, err := b.hook.Authorize(b.ctx, fieldPath)
		if err != nil {
			return err
		}
		if decision != policy.Allow {
			continue
		}
		b.g.Terminals = append(b.g.Terminals, b.queryFieldNode(fid))
	}
	return nil
}
