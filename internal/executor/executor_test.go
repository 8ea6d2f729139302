package executor_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/n9te9/federation-gateway/internal/executor"
	"github.com/n9te9/federation-gateway/internal/policy"
)

// subgraphServer runs a fake subgraph returning a fixed response body and
// capturing the last request it saw.
type subgraphServer struct {
	*httptest.Server
	lastBody   map[string]any
	lastHeader http.Header
}

func newSubgraphServer(t *testing.T, respond func(body map[string]any) map[string]any) *subgraphServer {
	t.Helper()
	s := &subgraphServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("reading subgraph request: %v", err)
		}
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decoding subgraph request: %v", err)
		}
		s.lastBody = body
		s.lastHeader = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(respond(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func TestExecute_FederatedEntityResolution(t *testing.T) {
	products := newSubgraphServer(t, func(map[string]any) map[string]any {
		return map[string]any{"data": map[string]any{
			"me": map[string]any{"name": "Ada", "__typename": "User", "id": "1"},
		}}
	})
	reviews := newSubgraphServer(t, func(map[string]any) map[string]any {
		return map[string]any{"data": map[string]any{
			"_entities": []any{
				map[string]any{"reviews": []any{
					map[string]any{"body": "great"},
					map[string]any{"body": "solid"},
				}},
			},
		}}
	})

	sdl := fmt.Sprintf(`
enum join__Graph {
  PRODUCTS @join__graph(name: "products", url: %q)
  REVIEWS @join__graph(name: "reviews", url: %q)
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
`, products.URL, reviews.URL)

	art := planOperation(t, sdl, `{ me { name reviews { body } } }`)
	exec := executor.New(executor.NewHTTPTransport(0))

	data, errs := exec.Execute(context.Background(), art, nil)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	want := map[string]any{
		"me": map[string]any{
			"name": "Ada",
			"reviews": []any{
				map[string]any{"body": "great"},
				map[string]any{"body": "solid"},
			},
		},
	}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}

	// The reviews subgraph must have received the User representation.
	vars, _ := reviews.lastBody["variables"].(map[string]any)
	reps, _ := vars["representations"].([]any)
	if len(reps) != 1 {
		t.Fatalf("expected 1 representation, got %v", vars)
	}
	rep, _ := reps[0].(map[string]any)
	if rep["__typename"] != "User" || rep["id"] != "1" {
		t.Fatalf("unexpected representation: %v", rep)
	}
}

func TestExecute_RequiresForwardsParentField(t *testing.T) {
	inventory := newSubgraphServer(t, func(map[string]any) map[string]any {
		return map[string]any{"data": map[string]any{
			"product": map[string]any{"__typename": "Product", "id": "p-1", "weight": 2.5},
		}}
	})
	shipping := newSubgraphServer(t, func(map[string]any) map[string]any {
		return map[string]any{"data": map[string]any{
			"_entities": []any{map[string]any{"shippingEstimate": 7.0}},
		}}
	})

	sdl := fmt.Sprintf(`
enum join__Graph {
  INVENTORY @join__graph(name: "inventory", url: %q)
  SHIPPING @join__graph(name: "shipping", url: %q)
}

type Query {
  product: Product @join__field(graph: INVENTORY)
}

type Product @join__type(graph: INVENTORY, key: "id") @join__type(graph: SHIPPING, key: "id") {
  id: ID!
  weight: Float @join__field(graph: INVENTORY)
  shippingEstimate: Float @join__field(graph: SHIPPING, requires: "weight")
}
`, inventory.URL, shipping.URL)

	art := planOperation(t, sdl, `{ product { shippingEstimate } }`)
	exec := executor.New(executor.NewHTTPTransport(0))

	data, errs := exec.Execute(context.Background(), art, nil)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	want := map[string]any{
		"product": map[string]any{"shippingEstimate": 7.0},
	}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}

	vars, _ := shipping.lastBody["variables"].(map[string]any)
	reps, _ := vars["representations"].([]any)
	if len(reps) != 1 {
		t.Fatalf("expected 1 representation, got %v", vars)
	}
	rep, _ := reps[0].(map[string]any)
	if rep["weight"] != 2.5 {
		t.Fatalf("representation must include the @requires field, got %v", rep)
	}
}

func TestExecute_AppliesHeaderRules(t *testing.T) {
	products := newSubgraphServer(t, func(map[string]any) map[string]any {
		return map[string]any{"data": map[string]any{
			"me": map[string]any{"name": "Ada"},
		}}
	})

	sdl := fmt.Sprintf(`
enum join__Graph {
  PRODUCTS @join__graph(name: "products", url: %q)
}

type Query {
  me: User @join__field(graph: PRODUCTS)
}

type User @join__type(graph: PRODUCTS, key: "id") {
  id: ID!
  name: String
}
`, products.URL)

	forward, err := policy.CompileHeaderRule(policy.HeaderForward, "X-Tenant", "", "", nil)
	if err != nil {
		t.Fatalf("CompileHeaderRule: %v", err)
	}
	insert, err := policy.CompileHeaderRule(policy.HeaderInsert, "X-Gateway", "", "federation", nil)
	if err != nil {
		t.Fatalf("CompileHeaderRule: %v", err)
	}

	art := planOperation(t, sdl, `{ me { name } }`)
	exec := executor.New(executor.NewHTTPTransport(0), executor.WithHeaderRules([]policy.HeaderRule{forward, insert}))

	inbound := http.Header{}
	inbound.Set("X-Tenant", "acme")
	inbound.Set("X-Secret", "do-not-forward")

	if _, errs := exec.Execute(context.Background(), art, inbound); len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	if got := products.lastHeader.Get("X-Tenant"); got != "acme" {
		t.Fatalf("expected X-Tenant forwarded, got %q", got)
	}
	if got := products.lastHeader.Get("X-Gateway"); got != "federation" {
		t.Fatalf("expected X-Gateway inserted, got %q", got)
	}
	if got := products.lastHeader.Get("X-Secret"); got != "" {
		t.Fatalf("X-Secret must not be forwarded, got %q", got)
	}
}

func TestExecute_SubgraphFailureDegradesToPartialResponse(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(down.Close)

	sdl := fmt.Sprintf(`
enum join__Graph {
  PRODUCTS @join__graph(name: "products", url: %q)
}

type Query {
  me: User @join__field(graph: PRODUCTS)
}

type User @join__type(graph: PRODUCTS, key: "id") {
  id: ID!
  name: String
}
`, down.URL)

	art := planOperation(t, sdl, `{ me { name } }`)
	exec := executor.New(executor.NewHTTPTransport(0))

	data, errs := exec.Execute(context.Background(), art, nil)
	if len(errs) == 0 {
		t.Fatal("expected a SUBGRAPH_REQUEST_ERROR")
	}
	if errs[0].Code != "SUBGRAPH_REQUEST_ERROR" {
		t.Fatalf("expected SUBGRAPH_REQUEST_ERROR, got %s", errs[0].Code)
	}
	want := map[string]any{"me": nil}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_LookupFetchForNonResolvableKey(t *testing.T) {
	products := newSubgraphServer(t, func(map[string]any) map[string]any {
		return map[string]any{"data": map[string]any{
			"me": map[string]any{"name": "Ada", "__typename": "User", "id": "1"},
		}}
	})
	directory := newSubgraphServer(t, func(map[string]any) map[string]any {
		return map[string]any{"data": map[string]any{
			"_0": map[string]any{"phone": "555-0100"},
		}}
	})

	sdl := fmt.Sprintf(`
enum join__Graph {
  PRODUCTS @join__graph(name: "products", url: %q)
  DIRECTORY @join__graph(name: "directory", url: %q)
}

type Query {
  me: User @join__field(graph: PRODUCTS)
  userById(id: ID!): User @join__field(graph: DIRECTORY) @composite__lookup
}

type User @join__type(graph: PRODUCTS, key: "id") @join__type(graph: DIRECTORY, key: "id", resolvable: false) {
  id: ID!
  name: String @join__field(graph: PRODUCTS)
  phone: String @join__field(graph: DIRECTORY)
}
`, products.URL, directory.URL)

	art := planOperation(t, sdl, `{ me { name phone } }`)
	exec := executor.New(executor.NewHTTPTransport(0))

	data, errs := exec.Execute(context.Background(), art, nil)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	want := map[string]any{
		"me": map[string]any{"name": "Ada", "phone": "555-0100"},
	}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}

	query, _ := directory.lastBody["query"].(string)
	if !strings.Contains(query, `_0: userById(id: "1")`) {
		t.Fatalf("expected an aliased lookup invocation, got:\n%s", query)
	}
	if strings.Contains(query, "_entities") {
		t.Fatalf("a lookup fetch must not post _entities, got:\n%s", query)
	}
}
