package operation_test

import (
	"testing"

	"github.com/n9te9/federation-gateway/internal/operation"
	"github.com/n9te9/federation-gateway/internal/supergraph"
)

const testSDL = `
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

func mustBuild(t *testing.T) *supergraph.Supergraph {
	t.Helper()
	sg, err := supergraph.Build([]byte(testSDL))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return sg
}

func TestBind_Basic(t *testing.T) {
	sg := mustBuild(t)
	doc, err := operation.ParseDocument([]byte(`{ me { name reviews { body } } }`))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	op, err := operation.Bind(doc, "", nil, sg)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if op.Kind != operation.KindQuery {
		t.Fatalf("expected KindQuery, got %v", op.Kind)
	}
	if len(op.Root) != 1 {
		t.Fatalf("expected 1 root field, got %d", len(op.Root))
	}
	me := op.Field(op.Root[0])
	if me.ResponseKey != "me" {
		t.Fatalf("expected response key 'me', got %q", me.ResponseKey)
	}
	if len(me.SubSelection) != 2 {
		t.Fatalf("expected 2 sub-selections under me, got %d", len(me.SubSelection))
	}
}

func TestBind_Alias(t *testing.T) {
	sg := mustBuild(t)
	doc, err := operation.ParseDocument([]byte(`{ viewer: me { fullName: name } }`))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	op, err := operation.Bind(doc, "", nil, sg)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	viewer := op.Field(op.Root[0])
	if viewer.ResponseKey != "viewer" {
		t.Fatalf("expected alias 'viewer', got %q", viewer.ResponseKey)
	}
	name := op.Field(viewer.SubSelection[0])
	if name.ResponseKey != "fullName" {
		t.Fatalf("expected alias 'fullName', got %q", name.ResponseKey)
	}
}

func TestBind_FragmentSpreadInlined(t *testing.T) {
	sg := mustBuild(t)
	doc, err := operation.ParseDocument([]byte(`
		fragment UserFields on User { name }
		{ me { ...UserFields } }
	`))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	op, err := operation.Bind(doc, "", nil, sg)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	me := op.Field(op.Root[0])
	if len(me.SubSelection) != 1 {
		t.Fatalf("expected fragment to inline 1 field, got %d", len(me.SubSelection))
	}
	if op.Field(me.SubSelection[0]).ResponseKey != "name" {
		t.Fatal("expected inlined field 'name'")
	}
}

func TestBind_FragmentCycle(t *testing.T) {
	sg := mustBuild(t)
	doc, err := operation.ParseDocument([]byte(`
		fragment X on User { ...Y }
		fragment Y on User { ...X }
		{ me { ...X } }
	`))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	_, err = operation.Bind(doc, "", nil, sg)
	if err == nil {
		t.Fatal("expected a fragment-cycle error")
	}
}

func TestBind_SkipLiteralPrunes(t *testing.T) {
	sg := mustBuild(t)
	doc, err := operation.ParseDocument([]byte(`{ me { name @skip(if: true) reviews { body } } }`))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	op, err := operation.Bind(doc, "", nil, sg)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	me := op.Field(op.Root[0])
	if len(me.SubSelection) != 1 {
		t.Fatalf("expected @skip(if: true) to prune 'name', got %d children", len(me.SubSelection))
	}
}

func TestBind_IncludeUnknownVariableDispensable(t *testing.T) {
	sg := mustBuild(t)
	doc, err := operation.ParseDocument([]byte(`query($show: Boolean) { me { name @include(if: $show) } }`))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	op, err := operation.Bind(doc, "", map[string]any{}, sg)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	me := op.Field(op.Root[0])
	if len(me.SubSelection) != 1 {
		t.Fatalf("expected 'name' to stay in the tree despite unknown $show, got %d children", len(me.SubSelection))
	}
	if !op.Field(me.SubSelection[0]).Dispensable {
		t.Fatal("expected 'name' to be marked dispensable")
	}
}

func TestBind_UnknownFieldFails(t *testing.T) {
	sg := mustBuild(t)
	doc, err := operation.ParseDocument([]byte(`{ me { nope } }`))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	_, err = operation.Bind(doc, "", nil, sg)
	if err == nil {
		t.Fatal("expected an unknown-field error")
	}
}

func TestBind_IntrospectionRejected(t *testing.T) {
	sg := mustBuild(t)
	for _, query := range []string{
		`{ __schema { types { name } } }`,
		`{ __type(name: "User") { name } }`,
	} {
		doc, err := operation.ParseDocument([]byte(query))
		if err != nil {
			t.Fatalf("ParseDocument(%q): %v", query, err)
		}
		if _, err := operation.Bind(doc, "", nil, sg); err == nil {
			t.Fatalf("expected %q to fail binding", query)
		}
	}
}

func TestBind_TypenameStillBinds(t *testing.T) {
	sg := mustBuild(t)
	doc, err := operation.ParseDocument([]byte(`{ me { __typename name } }`))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	op, err := operation.Bind(doc, "", nil, sg)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	me := op.Field(op.Root[0])
	if len(me.SubSelection) != 2 || !op.Field(me.SubSelection[0]).IsTypename {
		t.Fatalf("expected __typename to bind as a meta field, got %+v", me.SubSelection)
	}
}
