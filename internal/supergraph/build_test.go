package supergraph_test

import (
	"testing"

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

func TestBuild_Basic(t *testing.T) {
	sg, err := supergraph.Build([]byte(testSDL))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(sg.Subgraphs) != 2 {
		t.Fatalf("expected 2 subgraphs, got %d", len(sg.Subgraphs))
	}

	userID, ok := sg.TypeByName("User")
	if !ok {
		t.Fatal("User type not found")
	}
	userDef := sg.Type(userID)
	if !userDef.IsEntity {
		t.Error("expected User to be an entity")
	}
	if len(userDef.Keys) != 2 {
		t.Fatalf("expected 2 keys (one per subgraph), got %d", len(userDef.Keys))
	}

	reviewsFieldID, ok := sg.FieldByName(userID, "reviews")
	if !ok {
		t.Fatal("reviews field not found")
	}
	reviewsField := sg.Field(reviewsFieldID)
	reviewsSub, ok := sg.SubgraphByName("reviews")
	if !ok {
		t.Fatal("reviews subgraph not found")
	}
	found := false
	for _, s := range reviewsField.SubgraphIDs {
		if s == reviewsSub {
			found = true
		}
	}
	if !found {
		t.Error("expected reviews field to exist in the reviews subgraph")
	}
}

func TestBuild_NoSubgraphs(t *testing.T) {
	_, err := supergraph.Build([]byte(`type Query { ping: String }`))
	if err == nil {
		t.Fatal("expected an error when no join__Graph enum is present")
	}
}

func TestBuild_UnknownKeyField(t *testing.T) {
	sdl := `
enum join__Graph {
  A @join__graph(name: "a", url: "http://a")
}
type User @join__type(graph: A, key: "missingField") {
  id: ID!
}
`
	_, err := supergraph.Build([]byte(sdl))
	if err == nil {
		t.Fatal("expected an error for a @key referencing an unknown field")
	}
}

func TestBuild_LookupAndExtensionResolvers(t *testing.T) {
	const sdl = `
enum join__Graph {
  DIRECTORY @join__graph(name: "directory", url: "http://directory.internal")
}

type Query {
  userById(id: ID!): User @join__field(graph: DIRECTORY) @composite__lookup
  audit: String @join__field(graph: DIRECTORY) @extension__directive(graph: DIRECTORY, name: "audit")
}

type User @join__type(graph: DIRECTORY, key: "id", resolvable: false) {
  id: ID!
  name: String
}
`
	sg, err := supergraph.Build([]byte(sdl))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	userType, ok := sg.TypeByName("User")
	if !ok {
		t.Fatal("User type missing")
	}
	resolvers := sg.EntityResolvers(userType)
	if len(resolvers) != 1 {
		t.Fatalf("expected exactly 1 entity resolver (the lookup; the key is non-resolvable), got %d", len(resolvers))
	}
	rd := sg.Resolver(resolvers[0])
	if rd.Kind != supergraph.ResolverLookup {
		t.Fatalf("expected a LOOKUP resolver, got %v", rd.Kind)
	}
	if sg.Field(rd.Field).Name != "userById" {
		t.Fatalf("lookup resolver must point at userById, got %q", sg.Field(rd.Field).Name)
	}
	if rd.Key == nil || len(rd.Key.FieldSet) != 1 {
		t.Fatalf("lookup resolver must carry the id key, got %+v", rd.Key)
	}

	queryType, _ := sg.TypeByName("Query")
	auditField, ok := sg.FieldByName(queryType, "audit")
	if !ok {
		t.Fatal("audit field missing")
	}
	fd := sg.Field(auditField)
	if len(fd.Resolvers) != 1 || sg.Resolver(fd.Resolvers[0]).Kind != supergraph.ResolverFieldExtension {
		t.Fatalf("expected audit to resolve through a FIELD_EXTENSION resolver, got %+v", fd.Resolvers)
	}
}
