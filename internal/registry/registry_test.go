package registry_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/n9te9/federation-gateway/internal/registry"
)

const validSupergraph = `
enum join__Graph {
  A @join__graph(name: "a", url: "http://a.internal")
}

type Query {
  hello: String @join__field(graph: A)
}
`

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := srv.Client().Post(srv.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRegistry_RegisterAndServeSupergraph(t *testing.T) {
	reg := registry.New()
	reg.Start()
	srv := httptest.NewServer(reg)
	t.Cleanup(srv.Close)

	resp := postJSON(t, srv, "/schema/registration", registry.RegistrationRequest{
		RegistrationGraphs: []registry.SubgraphDescriptor{
			{Name: "a", Host: "http://a.internal", SDL: "type Query { hello: String }"},
		},
		SupergraphSDL: validSupergraph,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("registration status = %d", resp.StatusCode)
	}

	var ack registry.RegistrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decoding ack: %v", err)
	}
	if ack.RegistrationID == "" {
		t.Fatal("expected a registration id")
	}
	if len(ack.Registered) != 1 || ack.Registered[0] != "a" {
		t.Fatalf("unexpected registered list: %v", ack.Registered)
	}

	got, err := srv.Client().Get(srv.URL + "/schema/supergraph")
	if err != nil {
		t.Fatalf("get supergraph: %v", err)
	}
	defer got.Body.Close()
	sdl, _ := io.ReadAll(got.Body)
	if !strings.Contains(string(sdl), "join__Graph") {
		t.Fatalf("unexpected supergraph body: %s", sdl)
	}

	if len(reg.Descriptors()) != 1 {
		t.Fatalf("expected 1 descriptor, got %d", len(reg.Descriptors()))
	}
}

func TestRegistry_RejectsInvalidSupergraph(t *testing.T) {
	reg := registry.New()
	reg.Start()
	srv := httptest.NewServer(reg)
	t.Cleanup(srv.Close)

	resp := postJSON(t, srv, "/schema/registration", registry.RegistrationRequest{
		SupergraphSDL: "type Query { hello: String }", // no join__Graph enum
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for an invalid supergraph, got %d", resp.StatusCode)
	}
}

func TestRegistry_PushesSchemaToRegisteredGateways(t *testing.T) {
	received := make(chan string, 1)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/schema/update" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		received <- string(body)
	}))
	t.Cleanup(gateway.Close)

	reg := registry.New()
	reg.Start()
	srv := httptest.NewServer(reg)
	t.Cleanup(srv.Close)

	if resp := postJSON(t, srv, "/gateway/registration", registry.GatewayRegistrationRequest{Host: gateway.URL}); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("gateway registration status = %d", resp.StatusCode)
	}

	postJSON(t, srv, "/schema/registration", registry.RegistrationRequest{SupergraphSDL: validSupergraph})

	select {
	case body := <-received:
		if !strings.Contains(body, "supergraph_sdl") {
			t.Fatalf("unexpected push body: %s", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("gateway never received the schema push")
	}
}
