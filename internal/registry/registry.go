// Package registry implements the subgraph registration service: subgraphs
// (or a CI pipeline) POST their descriptors and the composed supergraph SDL
// here, and every subscribed gateway instance is notified of the new schema.
// Composition itself happens upstream; the registry validates the composed
// SDL by building it before accepting it.
package registry

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/n9te9/federation-gateway/internal/supergraph"
)

// SubgraphDescriptor is one registered subgraph's metadata.
type SubgraphDescriptor struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	SDL       string `json:"sdl"`
	Transport string `json:"transport,omitempty"`
}

// snapshot is one immutable registry state; Registry swaps whole snapshots
// through an atomic.Value so readers never take a lock.
type snapshot struct {
	registrationID string
	descriptors    []SubgraphDescriptor
	supergraphSDL  string
}

// Registry is the registration HTTP service.
type Registry struct {
	state        atomic.Value // *snapshot
	gatewayHosts atomic.Value // map[string]struct{}
	addHostChan  chan string
	client       *http.Client
	logger       *slog.Logger
}

// New builds an idle Registry; call Start before serving.
func New() *Registry {
	r := &Registry{
		addHostChan: make(chan string),
		client:      &http.Client{},
		logger:      slog.Default(),
	}
	r.state.Store(&snapshot{})
	r.gatewayHosts.Store(make(map[string]struct{}))
	return r
}

// Start launches the host-registration loop.
func (r *Registry) Start() {
	go func() {
		for host := range r.addHostChan {
			hosts := r.gatewayHosts.Load().(map[string]struct{})
			next := make(map[string]struct{}, len(hosts)+1)
			for h := range hosts {
				next[h] = struct{}{}
			}
			next[host] = struct{}{}
			r.gatewayHosts.Store(next)
		}
	}()
}

// RegistrationRequest is the body POSTed to /schema/registration.
type RegistrationRequest struct {
	RegistrationGraphs []SubgraphDescriptor `json:"registration_graphs"`
	SupergraphSDL      string               `json:"supergraph_sdl"`
}

// RegistrationResponse acknowledges a registration.
type RegistrationResponse struct {
	RegistrationID string   `json:"registration_id"`
	Registered     []string `json:"registered"`
}

// GatewayRegistrationRequest is the body POSTed to /gateway/registration by
// a gateway instance that wants schema-update pushes.
type GatewayRegistrationRequest struct {
	Host string `json:"host"`
}

func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch req.URL.Path {
	case "/schema/registration":
		r.registerSchema(w, req)
	case "/schema/supergraph":
		r.serveSupergraph(w, req)
	case "/gateway/registration":
		r.registerGateway(w, req)
	default:
		http.NotFound(w, req)
	}
}

func (r *Registry) registerSchema(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body RegistrationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "failed to decode request body", http.StatusBadRequest)
		return
	}
	if body.SupergraphSDL == "" {
		http.Error(w, "supergraph_sdl is required", http.StatusBadRequest)
		return
	}

	// Reject a supergraph the planner could not load before any gateway
	// sees it.
	if _, err := supergraph.Build([]byte(body.SupergraphSDL)); err != nil {
		http.Error(w, "invalid supergraph SDL: "+err.Error(), http.StatusBadRequest)
		return
	}

	next := &snapshot{
		registrationID: uuid.NewString(),
		descriptors:    body.RegistrationGraphs,
		supergraphSDL:  body.SupergraphSDL,
	}
	r.state.Store(next)

	// The pushes outlive this handler, so they must not inherit the
	// request's cancellation.
	r.pushToGateways(context.WithoutCancel(req.Context()), body.SupergraphSDL)

	names := make([]string, 0, len(body.RegistrationGraphs))
	for _, d := range body.RegistrationGraphs {
		names = append(names, d.Name)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RegistrationResponse{
		RegistrationID: next.registrationID,
		Registered:     names,
	})
}

func (r *Registry) serveSupergraph(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	state := r.state.Load().(*snapshot)
	if state.supergraphSDL == "" {
		http.Error(w, "no supergraph registered", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/graphql")
	w.Write([]byte(state.supergraphSDL))
}

func (r *Registry) registerGateway(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body GatewayRegistrationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Host == "" {
		http.Error(w, "failed to decode request body", http.StatusBadRequest)
		return
	}
	r.addHostChan <- body.Host
	w.WriteHeader(http.StatusNoContent)
}

// pushToGateways notifies every registered gateway of the new supergraph.
// Pushes are fire-and-forget; a gateway that misses one picks the schema up
// on its next poll of /schema/supergraph.
func (r *Registry) pushToGateways(ctx context.Context, sdl string) {
	hosts := r.gatewayHosts.Load().(map[string]struct{})
	if len(hosts) == 0 {
		return
	}
	payload, err := json.Marshal(map[string]string{"supergraph_sdl": sdl})
	if err != nil {
		return
	}
	for host := range hosts {
		pushReq, err := http.NewRequestWithContext(ctx, http.MethodPost, host+"/schema/update", bytes.NewReader(payload))
		if err != nil {
			continue
		}
		pushReq.Header.Set("Content-Type", "application/json")
		go func(req *http.Request, host string) {
			if _, err := r.client.Do(req); err != nil {
				r.logger.Warn("schema push failed", "gateway", host, "error", err)
			}
		}(pushReq, host)
	}
}

// Descriptors returns the currently registered subgraph descriptors.
func (r *Registry) Descriptors() []SubgraphDescriptor {
	return r.state.Load().(*snapshot).descriptors
}

// SupergraphSDL returns the currently registered composed SDL, or "".
func (r *Registry) SupergraphSDL() string {
	return r.state.Load().(*snapshot).supergraphSDL
}
