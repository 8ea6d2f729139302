package executor_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/n9te9/federation-gateway/internal/executor"
	"github.com/n9te9/federation-gateway/internal/operation"
	"github.com/n9te9/federation-gateway/internal/planner"
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

func planOperation(t *testing.T, sdl, query string) *planner.Artifact {
	t.Helper()
	sg, err := supergraph.Build([]byte(sdl))
	if err != nil {
		t.Fatalf("supergraph.Build: %v", err)
	}
	doc, err := operation.ParseDocument([]byte(query))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	art, err := planner.New(sg).Plan(context.Background(), doc, "", nil, "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	return art
}

func TestBuildStepQuery_RootWithKeyInjection(t *testing.T) {
	art := planOperation(t, federatedSDL, `{ me { name reviews { body } } }`)

	root := art.Plan.Steps[art.Plan.RootSteps[0]]
	query, variables, err := executor.BuildStepQuery(art, root, nil)
	if err != nil {
		t.Fatalf("BuildStepQuery: %v", err)
	}
	if variables != nil {
		t.Fatalf("root query should carry no variables, got %v", variables)
	}

	want := "query {\n\tme {\n\t\tname\n\t\t__typename\n\t\tid\n\t}\n}"
	if diff := cmp.Diff(want, query); diff != "" {
		t.Fatalf("root query mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildStepQuery_EntityFetch(t *testing.T) {
	art := planOperation(t, federatedSDL, `{ me { name reviews { body } } }`)

	var entity *planner.Step
	for _, s := range art.Plan.Steps {
		if s.Kind == planner.StepEntityFetch {
			entity = s
		}
	}
	if entity == nil {
		t.Fatal("expected an entity-fetch step")
	}

	reps := []map[string]any{{"__typename": "User", "id": "1"}}
	query, variables, err := executor.BuildStepQuery(art, entity, reps)
	if err != nil {
		t.Fatalf("BuildStepQuery: %v", err)
	}
	if _, ok := variables["representations"]; !ok {
		t.Fatal("entity query must carry representations")
	}

	want := "query ($representations: [_Any!]!) {\n\t_entities(representations: $representations) {\n\t\t... on User {\n\t\t\treviews {\n\t\t\t\tbody\n\t\t\t}\n\t\t}\n\t}\n}"
	if diff := cmp.Diff(want, query); diff != "" {
		t.Fatalf("entity query mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildStepQuery_ArgumentsAndAliases(t *testing.T) {
	const sdl = `
enum join__Graph {
  INVENTORY @join__graph(name: "inventory", url: "http://inventory.internal")
}

type Query {
  product(id: ID!, limit: Int): Product @join__field(graph: INVENTORY)
}

type Product @join__type(graph: INVENTORY, key: "id") {
  id: ID!
  name: String
}
`
	art := planOperation(t, sdl, `{ item: product(id: "p-1", limit: 3) { name } }`)

	root := art.Plan.Steps[art.Plan.RootSteps[0]]
	query, _, err := executor.BuildStepQuery(art, root, nil)
	if err != nil {
		t.Fatalf("BuildStepQuery: %v", err)
	}

	want := "query {\n\titem: product(id: \"p-1\", limit: 3) {\n\t\tname\n\t}\n}"
	if diff := cmp.Diff(want, query); diff != "" {
		t.Fatalf("query mismatch (-want +got):\n%s", diff)
	}
}
