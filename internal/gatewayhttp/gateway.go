// Package gatewayhttp implements the gateway's HTTP ingress: it decodes
// GraphQL requests, applies the request policies, runs the planner, drives
// the executor, and serialises the merged response.
package gatewayhttp

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/n9te9/federation-gateway/internal/executor"
	"github.com/n9te9/federation-gateway/internal/gwerr"
	"github.com/n9te9/federation-gateway/internal/operation"
	"github.com/n9te9/federation-gateway/internal/planner"
	"github.com/n9te9/federation-gateway/internal/policy"
	"github.com/n9te9/federation-gateway/internal/supergraph"
)

// Gateway is the HTTP handler serving GraphQL operations against one
// supergraph.
type Gateway struct {
	sg       *supergraph.Supergraph
	planner  *planner.Planner
	executor *executor.Executor

	limiter policy.RateLimiter
	cache   policy.Cache

	planningTimeout time.Duration
	enableTracing   bool
	serviceName     string
	tracer          trace.Tracer
	logger          *slog.Logger
}

var _ http.Handler = (*Gateway)(nil)

// Option configures a Gateway.
type Option func(*Gateway)

// WithRateLimiter installs a request rate limiter.
func WithRateLimiter(l policy.RateLimiter) Option {
	return func(g *Gateway) { g.limiter = l }
}

// WithCache installs a response cache for query operations.
func WithCache(c policy.Cache) Option {
	return func(g *Gateway) { g.cache = c }
}

// WithPlanningTimeout bounds one operation's planning phase.
func WithPlanningTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.planningTimeout = d }
}

// WithTracing enables per-request plan/execute spans and the otelhttp
// handler wrapper returned by Handler.
func WithTracing(serviceName string) Option {
	return func(g *Gateway) {
		g.enableTracing = true
		g.serviceName = serviceName
	}
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New builds a Gateway over sg using p for planning and exec for dispatch.
func New(sg *supergraph.Supergraph, p *planner.Planner, exec *executor.Executor, opts ...Option) *Gateway {
	g := &Gateway{
		sg:              sg,
		planner:         p,
		executor:        exec,
		limiter:         policy.AllowAllLimiter{},
		cache:           policy.NoCache{},
		planningTimeout: 2 * time.Second,
		tracer:          otel.Tracer("federation-gateway"),
		logger:          slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Handler returns the handler to mount, wrapped in otelhttp when tracing
// is enabled.
func (g *Gateway) Handler() http.Handler {
	if g.enableTracing {
		return otelhttp.NewHandler(g, g.serviceName)
	}
	return g
}

type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	requestID := r.Header.Get("x-request-id")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	ctx := r.Context()

	allowed, err := g.limiter.Allow(ctx, r.RemoteAddr)
	if err != nil {
		g.writeErrors(w, http.StatusInternalServerError, gwerr.New(gwerr.CodeHook, "rate limiter failed: %v", err))
		return
	}
	if !allowed {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeErrors(w, http.StatusBadRequest, gwerr.New(gwerr.CodeBadRequest, "malformed request body: %v", err))
		return
	}

	cacheKey := responseCacheKey(req)
	if entry, hit, err := g.cache.Get(ctx, cacheKey); err == nil && hit {
		w.Header().Set("Content-Type", "application/json")
		w.Write(entry.Value)
		return
	}

	doc, err := operation.ParseDocument([]byte(req.Query))
	if err != nil {
		g.writeErrors(w, http.StatusOK, asGatewayError(err))
		return
	}

	planCtx, cancel := context.WithTimeout(ctx, g.planningTimeout)
	planCtx, planSpan := g.tracer.Start(planCtx, "gateway.plan")
	art, err := g.planner.Plan(planCtx, doc, req.OperationName, req.Variables, requestID)
	planSpan.End()
	cancel()
	if err != nil {
		g.logger.Warn("planning failed", "request_id", requestID, "error", err)
		g.writeErrors(w, http.StatusOK, asGatewayError(err))
		return
	}

	execCtx, execSpan := g.tracer.Start(ctx, "gateway.execute")
	data, execErrs := g.executor.Execute(execCtx, art, r.Header)
	execSpan.End()

	response := map[string]any{"data": data}
	if len(execErrs) > 0 {
		wire := make([]map[string]any, len(execErrs))
		for i, e := range execErrs {
			wire[i] = e.AsGraphQLError()
		}
		response["errors"] = wire
	}

	body, err := json.Marshal(response)
	if err != nil {
		g.writeErrors(w, http.StatusInternalServerError, gwerr.New(gwerr.CodeInternal, "response encode failed: %v", err))
		return
	}

	if len(execErrs) == 0 && art.Operation().Kind == operation.KindQuery {
		_ = g.cache.Set(ctx, cacheKey, policy.CacheEntry{Value: body, TTLSeconds: 30})
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// writeErrors renders a GraphQL error-only response body.
func (g *Gateway) writeErrors(w http.ResponseWriter, status int, errs ...*gwerr.Error) {
	wire := make([]map[string]any, len(errs))
	for i, e := range errs {
		wire[i] = e.AsGraphQLError()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"errors": wire})
}

// asGatewayError normalises any planning/binding error into a typed one.
func asGatewayError(err error) *gwerr.Error {
	var ge *gwerr.Error
	if errors.As(err, &ge) {
		return ge
	}
	return gwerr.New(gwerr.CodeInternal, "%v", err)
}

// responseCacheKey hashes the operation and its variables into a cache key.
// Variables are part of the key: two requests differing only in variable
// values must never share a cached response.
func responseCacheKey(req graphQLRequest) string {
	h := fnv.New64a()
	h.Write([]byte(req.Query))
	h.Write([]byte{0})
	h.Write([]byte(req.OperationName))
	h.Write([]byte{0})
	if vars, err := json.Marshal(req.Variables); err == nil {
		h.Write(vars)
	}
	return fmt.Sprintf("gql:%x", h.Sum64())
}
