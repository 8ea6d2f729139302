package solutionspace_test

import (
	"context"
	"testing"

	"github.com/n9te9/federation-gateway/internal/operation"
	"github.com/n9te9/federation-gateway/internal/solutionspace"
	"github.com/n9te9/federation-gateway/internal/supergraph"
)

const federatedSDL = `
enum join__Graph {
  PRODUCTS @join__graph(name: "products", url: "http://products.internal")
  REVIEWS @join__graph(name: "reviews", url: "http://reviews.internal")
}

type Query {
  me: User @join__field(graph: PRODUCTS)
}

type User @join__type(graph: PRODUCTS, key: "id") @join__type(graph: REVIEWS, key: "id") {
  id: ID!
  name: String @join__field(graph: PRODUCTS)
  reviews: [Review!] @join__field(graph: REVIEWS)
}

type Review @join__type(graph: REVIEWS, key: "id") {
  id: ID!
  body: String
}
`

const requiresSDL = `
enum join__Graph {
  INVENTORY @join__graph(name: "inventory", url: "http://inventory.internal")
  SHIPPING @join__graph(name: "shipping", url: "http://shipping.internal")
}

type Query {
  product: Product @join__field(graph: INVENTORY)
}

type Product @join__type(graph: INVENTORY, key: "id") @join__type(graph: SHIPPING, key: "id") {
  id: ID!
  price: Float @join__field(graph: INVENTORY)
  weight: Float @join__field(graph: INVENTORY)
  shippingEstimate: Float @join__field(graph: SHIPPING, requires: "price weight")
}
`

func mustBuildSG(t *testing.T, sdl string) *supergraph.Supergraph {
	t.Helper()
	sg, err := supergraph.Build([]byte(sdl))
	if err != nil {
		t.Fatalf("supergraph.Build: %v", err)
	}
	return sg
}

func mustBindOp(t *testing.T, sg *supergraph.Supergraph, query string) *operation.Operation {
	t.Helper()
	doc, err := operation.ParseDocument([]byte(query))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	op, err := operation.Bind(doc, "", nil, sg)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	return op
}

func countNodes(g *solutionspace.Graph, kind solutionspace.NodeKind) int {
	n := 0
	for i := range g.Nodes {
		if g.Nodes[i].Kind == kind {
			n++
		}
	}
	return n
}

func countResolversOfKind(g *solutionspace.Graph, kind supergraph.ResolverKind) int {
	n := 0
	for i := range g.Nodes {
		if g.Nodes[i].Kind == solutionspace.NodeResolver && g.SG.Resolver(g.Nodes[i].Resolver).Kind == kind {
			n++
		}
	}
	return n
}

func TestBuild_FederatedEntity(t *testing.T) {
	sg := mustBuildSG(t, federatedSDL)
	op := mustBindOp(t, sg, `{ me { name reviews { body } } }`)

	g, err := solutionspace.Build(context.Background(), sg, op)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(g.Terminals) != 2 {
		t.Fatalf("expected 2 terminal fields (name, body), got %d", len(g.Terminals))
	}

	if got := countResolversOfKind(g, supergraph.ResolverRootField); got != 1 {
		t.Fatalf("expected 1 root-field resolver (me), got %d", got)
	}
	if got := countResolversOfKind(g, supergraph.ResolverEntityFetch); got != 1 {
		t.Fatalf("expected 1 entity-fetch resolver (User via REVIEWS for reviews), got %d", got)
	}

	reviewsSub, ok := sg.SubgraphByName("reviews")
	if !ok {
		t.Fatal("expected a 'reviews' subgraph")
	}
	foundReviewsFetch := false
	for i := range g.Nodes {
		n := g.Nodes[i]
		if n.Kind == solutionspace.NodeResolver && n.Subgraph == reviewsSub {
			rd := g.SG.Resolver(n.Resolver)
			if rd.Kind == supergraph.ResolverEntityFetch {
				foundReviewsFetch = true
			}
		}
	}
	if !foundReviewsFetch {
		t.Fatal("expected an entity-fetch resolver in the reviews subgraph")
	}
}

func TestBuild_SameSubgraphContinuation(t *testing.T) {
	sg := mustBuildSG(t, federatedSDL)
	op := mustBindOp(t, sg, `{ me { name } }`)

	g, err := solutionspace.Build(context.Background(), sg, op)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Terminals) != 1 {
		t.Fatalf("expected 1 terminal field (name), got %d", len(g.Terminals))
	}
	// name is resolvable directly off the PRODUCTS root fetch that resolved
	// me, so no entity-fetch resolver should have been instantiated at all.
	if got := countResolversOfKind(g, supergraph.ResolverEntityFetch); got != 0 {
		t.Fatalf("expected 0 entity-fetch resolvers, got %d", got)
	}
}

func TestBuild_Requires(t *testing.T) {
	sg := mustBuildSG(t, requiresSDL)
	op := mustBindOp(t, sg, `{ product { shippingEstimate } }`)

	g, err := solutionspace.Build(context.Background(), sg, op)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Terminals) != 1 {
		t.Fatalf("expected 1 terminal field (shippingEstimate), got %d", len(g.Terminals))
	}

	priceFD, ok := sg.FieldByName(mustTypeByName(t, sg, "Product"), "price")
	if !ok {
		t.Fatal("expected a 'price' field on Product")
	}
	weightFD, ok := sg.FieldByName(mustTypeByName(t, sg, "Product"), "weight")
	if !ok {
		t.Fatal("expected a 'weight' field on Product")
	}

	var requiresTargets []operation.FieldID
	for _, e := range g.Edges {
		if e.Kind != solutionspace.EdgeRequires {
			continue
		}
		requiresTargets = append(requiresTargets, g.Node(e.To).Field)
	}
	if len(requiresTargets) != 2 {
		t.Fatalf("expected 2 Requires edges (price, weight), got %d", len(requiresTargets))
	}

	seen := map[supergraph.FieldID]bool{}
	for _, fid := range requiresTargets {
		seen[g.Field(fid).Def] = true
	}
	if !seen[priceFD] || !seen[weightFD] {
		t.Fatal("expected Requires edges to target the synthesized price and weight fields")
	}
}

func mustTypeByName(t *testing.T, sg *supergraph.Supergraph, name string) supergraph.TypeID {
	t.Helper()
	id, ok := sg.TypeByName(name)
	if !ok {
		t.Fatalf("expected a %q type", name)
	}
	return id
}
