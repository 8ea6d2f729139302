package planner_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/n9te9/federation-gateway/internal/operation"
	"github.com/n9te9/federation-gateway/internal/planner"
	"github.com/n9te9/federation-gateway/internal/supergraph"
)

// overrideSDL declares User.name in both subgraphs, with B's copy
// overriding A's under the given label.
func overrideSDL(label string) string {
	labelArg := ""
	if label != "" {
		labelArg = `, overrideLabel: "` + label + `"`
	}
	return `
enum join__Graph {
  A @join__graph(name: "a", url: "http://a.internal")
  B @join__graph(name: "b", url: "http://b.internal")
}

type Query {
  me: User @join__field(graph: A)
}

type User @join__type(graph: A, key: "id") @join__type(graph: B, key: "id") {
  id: ID!
  name: String @join__field(graph: A) @join__field(graph: B, override: "a"` + labelArg + `)
}
`
}

func planWith(t *testing.T, sdl, query, requestID string) *planner.Artifact {
	t.Helper()
	sg, err := supergraph.Build([]byte(sdl))
	if err != nil {
		t.Fatalf("supergraph.Build: %v", err)
	}
	doc, err := operation.ParseDocument([]byte(query))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	art, err := planner.New(sg).Plan(context.Background(), doc, "", nil, requestID)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	return art
}

func subgraphNames(art *planner.Artifact) []string {
	names := make([]string, 0, len(art.Plan.Steps))
	for _, s := range art.Plan.Steps {
		names = append(names, art.Supergraph().Subgraph(s.Subgraph).Name)
	}
	return names
}

func TestPlan_OverrideWithoutLabelDropsOverriddenCopy(t *testing.T) {
	art := planWith(t, overrideSDL(""), `{ me { name } }`, "")

	// B overrides A's name unconditionally: resolving name forces an
	// entity fetch into B even though A serves the root field.
	want := []string{"a", "b"}
	if diff := cmp.Diff(want, subgraphNames(art)); diff != "" {
		t.Fatalf("step subgraphs mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_OverridePercentZeroKeepsOverriddenCopy(t *testing.T) {
	art := planWith(t, overrideSDL("percent(0)"), `{ me { name } }`, "")

	// percent(0) disables the override: A resolves name in the same fetch.
	want := []string{"a"}
	if diff := cmp.Diff(want, subgraphNames(art)); diff != "" {
		t.Fatalf("step subgraphs mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_OverrideIntermediateUnseededPicksByCost(t *testing.T) {
	// With no request id the decision is left to the solver, and A wins on
	// cost: its copy rides along with the root fetch for free.
	art := planWith(t, overrideSDL("percent(50)"), `{ me { name } }`, "")

	want := []string{"a"}
	if diff := cmp.Diff(want, subgraphNames(art)); diff != "" {
		t.Fatalf("step subgraphs mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_OverrideIntermediateIsStablePerRequest(t *testing.T) {
	const requestID = "req-42"
	first := planWith(t, overrideSDL("percent(50)"), `{ me { name } }`, requestID)
	for i := 0; i < 5; i++ {
		again := planWith(t, overrideSDL("percent(50)"), `{ me { name } }`, requestID)
		if diff := cmp.Diff(subgraphNames(first), subgraphNames(again)); diff != "" {
			t.Fatalf("retry %d planned differently (-first +retry):\n%s", i, diff)
		}
	}
}

func TestPlan_Deterministic(t *testing.T) {
	const sdl = `
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
	const query = `{ me { name reviews { body } } }`

	first := planWith(t, sdl, query, "fixed")
	for i := 0; i < 3; i++ {
		again := planWith(t, sdl, query, "fixed")
		if diff := cmp.Diff(first.Plan, again.Plan); diff != "" {
			t.Fatalf("plan %d differs (-first +again):\n%s", i, diff)
		}
	}
}

func TestPlan_DeadlineCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sg, err := supergraph.Build([]byte(overrideSDL("")))
	if err != nil {
		t.Fatalf("supergraph.Build: %v", err)
	}
	doc, err := operation.ParseDocument([]byte(`{ me { name } }`))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if _, err := planner.New(sg).Plan(ctx, doc, "", nil, ""); err == nil {
		t.Fatal("expected PLANNING_CANCELLED from an expired context")
	}
}
