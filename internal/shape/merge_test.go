package shape_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/n9te9/federation-gateway/internal/operation"
	"github.com/n9te9/federation-gateway/internal/shape"
	"github.com/n9te9/federation-gateway/internal/supergraph"
)

const mergeSDL = `
enum join__Graph {
  A @join__graph(name: "a", url: "http://a.internal")
}

enum Status {
  ACTIVE
  DISABLED
}

type Query {
  account: Account @join__field(graph: A)
}

type Account @join__type(graph: A, key: "id") {
  id: ID!
  name: String
  verified: Boolean!
  status: Status
  balance: Float
}
`

func buildMergeShape(t *testing.T, query string) *shape.Shape {
	t.Helper()
	sg, err := supergraph.Build([]byte(mergeSDL))
	if err != nil {
		t.Fatalf("supergraph.Build: %v", err)
	}
	doc, err := operation.ParseDocument([]byte(query))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	op, err := operation.Bind(doc, "", nil, sg)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	sh, err := shape.BuildRoot(sg, op)
	if err != nil {
		t.Fatalf("BuildRoot: %v", err)
	}
	return sh
}

func TestMergeInto_TwoPartitionsContributeToOneObject(t *testing.T) {
	sh := buildMergeShape(t, `{ account { name verified } }`)

	target := make(map[string]any)
	fromA := map[string]any{"account": map[string]any{"name": "Ada"}}
	fromB := map[string]any{"account": map[string]any{"verified": true}}

	if nullified, errs := shape.MergeInto(sh, target, fromA, nil); nullified || len(errs) > 0 {
		t.Fatalf("first merge failed: nullified=%v errs=%v", nullified, errs)
	}
	if nullified, errs := shape.MergeInto(sh, target, fromB, nil); nullified || len(errs) > 0 {
		t.Fatalf("second merge failed: nullified=%v errs=%v", nullified, errs)
	}

	want := map[string]any{"account": map[string]any{"name": "Ada", "verified": true}}
	if diff := cmp.Diff(want, target); diff != "" {
		t.Fatalf("merged object mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeInto_WrongTypeAtBooleanNullifiesNearestNullableAncestor(t *testing.T) {
	sh := buildMergeShape(t, `{ account { verified } }`)

	target := make(map[string]any)
	source := map[string]any{"account": map[string]any{"verified": "Bob"}}

	nullified, errs := shape.MergeInto(sh, target, source, nil)
	if nullified {
		t.Fatal("the root must survive: account is nullable and absorbs the violation")
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 merge error, got %v", errs)
	}
	ge := errs[0].AsGraphQLError()
	if ge.Code != "SUBGRAPH_INVALID_RESPONSE_ERROR" {
		t.Fatalf("expected SUBGRAPH_INVALID_RESPONSE_ERROR, got %s", ge.Code)
	}
	wantPath := []string{"account", "verified"}
	if diff := cmp.Diff(wantPath, ge.Path); diff != "" {
		t.Fatalf("error path mismatch (-want +got):\n%s", diff)
	}
	if target["account"] != nil {
		t.Fatalf("account must be nullified, got %v", target["account"])
	}
}

func TestMergeInto_NonNullNullPropagates(t *testing.T) {
	sh := buildMergeShape(t, `{ account { verified } }`)

	target := make(map[string]any)
	source := map[string]any{"account": map[string]any{"verified": nil}}

	nullified, errs := shape.MergeInto(sh, target, source, nil)
	if nullified {
		t.Fatal("nullability stops at the nullable account field")
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 merge error, got %v", errs)
	}
	if target["account"] != nil {
		t.Fatalf("account must be nullified, got %v", target["account"])
	}
}

func TestMergeInto_UnknownEnumStringIsRetained(t *testing.T) {
	sh := buildMergeShape(t, `{ account { status } }`)

	target := make(map[string]any)
	source := map[string]any{"account": map[string]any{"status": "SUSPENDED"}}

	nullified, errs := shape.MergeInto(sh, target, source, nil)
	if nullified || len(errs) > 0 {
		t.Fatalf("an undeclared enum string is retained, not rejected: nullified=%v errs=%v", nullified, errs)
	}
	want := map[string]any{"account": map[string]any{"status": "SUSPENDED"}}
	if diff := cmp.Diff(want, target); diff != "" {
		t.Fatalf("merged object mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeInto_FloatAcceptsIntAndRejectsString(t *testing.T) {
	sh := buildMergeShape(t, `{ account { balance } }`)

	target := make(map[string]any)
	ok := map[string]any{"account": map[string]any{"balance": float64(3)}}
	if nullified, errs := shape.MergeInto(sh, target, ok, nil); nullified || len(errs) > 0 {
		t.Fatalf("Float must accept an integral number: %v", errs)
	}

	target = make(map[string]any)
	bad := map[string]any{"account": map[string]any{"balance": "a lot"}}
	if _, errs := shape.MergeInto(sh, target, bad, nil); len(errs) != 1 {
		t.Fatalf("expected 1 merge error for a string at a Float position, got %v", errs)
	}
}
