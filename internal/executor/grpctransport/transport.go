// Package grpctransport dispatches subgraph GraphQL requests over gRPC for
// subgraphs that declare transport: grpc in the supergraph. The request and
// response bodies travel as google.protobuf.Struct messages on a fixed
// Execute method, so no per-subgraph descriptor plumbing is needed.
package grpctransport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/n9te9/federation-gateway/internal/executor"
	"github.com/n9te9/federation-gateway/internal/supergraph"
)

// executeMethod is the full method every gRPC subgraph must serve: it takes
// a Struct { query, variables } and returns a Struct shaped like a GraphQL
// HTTP response body { data, errors }.
const executeMethod = "/federation.SubgraphService/Execute"

// Transport is a gRPC subgraph transport with a connection pool per
// endpoint and deadline propagation.
type Transport struct {
	rpcTimeout time.Duration
	maxConns   int
	dialOpts   []grpc.DialOption

	mu     sync.RWMutex
	pools  map[string]*connPool
	closed atomic.Bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithRPCTimeout sets the default per-call deadline applied when the
// caller's context has none.
func WithRPCTimeout(d time.Duration) Option {
	return func(t *Transport) { t.rpcTimeout = d }
}

// WithMaxConnsPerEndpoint bounds each endpoint's idle connection pool.
func WithMaxConnsPerEndpoint(n int) Option {
	return func(t *Transport) { t.maxConns = n }
}

// WithDialOptions replaces the default dial options (insecure credentials
// with default backoff).
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(t *Transport) { t.dialOpts = opts }
}

// New builds a gRPC subgraph transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		rpcTimeout: 5 * time.Second,
		maxConns:   2,
		pools:      make(map[string]*connPool),
	}
	for _, o := range opts {
		o(t)
	}
	if len(t.dialOpts) == 0 {
		t.dialOpts = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	return t
}

var _ executor.Transport = (*Transport)(nil)

// Roundtrip invokes the subgraph's Execute method with the request encoded
// as a Struct and decodes the Struct reply into a Response.
func (t *Transport) Roundtrip(ctx context.Context, subgraph *supergraph.SubgraphDef, req executor.Request) (*executor.Response, error) {
	if t.closed.Load() {
		return nil, fmt.Errorf("grpctransport: closed")
	}

	if _, ok := ctx.Deadline(); !ok && t.rpcTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.rpcTimeout)
		defer cancel()
	}

	for name, values := range req.Header {
		for _, v := range values {
			ctx = metadata.AppendToOutgoingContext(ctx, name, v)
		}
	}

	body := map[string]any{"query": req.Query}
	if len(req.Variables) > 0 {
		body["variables"] = req.Variables
	}
	request, err := structpb.NewStruct(body)
	if err != nil {
		return nil, fmt.Errorf("grpctransport: encode request for subgraph %q: %w", subgraph.Name, err)
	}

	cc, err := t.getConn(ctx, subgraph.URL)
	if err != nil {
		return nil, fmt.Errorf("grpctransport: dial subgraph %q: %w", subgraph.Name, err)
	}
	defer t.returnConn(subgraph.URL, cc)

	reply := &structpb.Struct{}
	if err := cc.Invoke(ctx, executeMethod, request, reply); err != nil {
		return nil, fmt.Errorf("grpctransport: subgraph %q call failed: %w", subgraph.Name, err)
	}
	return decodeResponse(reply), nil
}

// decodeResponse maps a Struct reply onto the transport-neutral Response.
func decodeResponse(reply *structpb.Struct) *executor.Response {
	resp := &executor.Response{}
	fields := reply.AsMap()
	if data, ok := fields["data"].(map[string]any); ok {
		resp.Data = data
	}
	if errs, ok := fields["errors"].([]any); ok {
		for _, e := range errs {
			em, ok := e.(map[string]any)
			if !ok {
				continue
			}
			se := executor.SubgraphError{}
			se.Message, _ = em["message"].(string)
			se.Path, _ = em["path"].([]any)
			se.Extensions, _ = em["extensions"].(map[string]any)
			resp.Errors = append(resp.Errors, se)
		}
	}
	return resp
}

// Close tears down every pooled connection. The transport is unusable
// afterwards.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pools {
		p.close()
	}
	t.pools = map[string]*connPool{}
	return nil
}

type connPool struct {
	endpoint string
	dialOpts []grpc.DialOption
	conns    chan *grpc.ClientConn
	closed   atomic.Bool
}

func newConnPool(endpoint string, dialOpts []grpc.DialOption, size int) *connPool {
	if size <= 0 {
		size = 2
	}
	return &connPool{
		endpoint: endpoint,
		dialOpts: dialOpts,
		conns:    make(chan *grpc.ClientConn, size),
	}
}

func (p *connPool) get() (*grpc.ClientConn, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("grpctransport: pool closed")
	}
	select {
	case cc := <-p.conns:
		return cc, nil
	default:
		return grpc.NewClient(p.endpoint, p.dialOpts...)
	}
}

func (p *connPool) put(cc *grpc.ClientConn) {
	if cc == nil || p.closed.Load() {
		if cc != nil {
			_ = cc.Close()
		}
		return
	}
	select {
	case p.conns <- cc:
	default:
		_ = cc.Close()
	}
}

func (p *connPool) close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.conns)
	for cc := range p.conns {
		_ = cc.Close()
	}
}

func (t *Transport) getConn(_ context.Context, endpoint string) (*grpc.ClientConn, error) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool == nil {
		t.mu.Lock()
		pool = t.pools[endpoint]
		if pool == nil {
			pool = newConnPool(endpoint, t.dialOpts, t.maxConns)
			t.pools[endpoint] = pool
		}
		t.mu.Unlock()
	}
	return pool.get()
}

func (t *Transport) returnConn(endpoint string, cc *grpc.ClientConn) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool != nil {
		pool.put(cc)
		return
	}
	_ = cc.Close()
}
