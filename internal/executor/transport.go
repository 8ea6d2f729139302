package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/n9te9/federation-gateway/internal/supergraph"
)

// Request is one GraphQL call against a subgraph. Header carries the
// already-filtered outbound headers (the executor applies the gateway's
// header rules before handing the request to a Transport).
type Request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
	Header    http.Header    `json:"-"`
}

// SubgraphError is one entry of a subgraph response's errors array.
type SubgraphError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Response is a decoded subgraph GraphQL response.
type Response struct {
	Data   map[string]any  `json:"data"`
	Errors []SubgraphError `json:"errors,omitempty"`
}

// Transport dispatches one Request to one subgraph. Implementations exist
// for HTTP (this package) and gRPC (the grpctransport subpackage); the
// executor selects one per step by the subgraph's declared transport kind.
type Transport interface {
	Roundtrip(ctx context.Context, subgraph *supergraph.SubgraphDef, req Request) (*Response, error)
}

// HTTPTransport posts GraphQL requests to a subgraph's HTTP endpoint.
type HTTPTransport struct {
	client *http.Client
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the default client (useful in tests).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.client = c }
}

// WithTracing wraps the transport's RoundTripper in otelhttp so every
// subgraph fetch becomes a client span of the gateway's request trace.
func WithTracing() HTTPOption {
	return func(t *HTTPTransport) {
		base := t.client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		t.client.Transport = otelhttp.NewTransport(base)
	}
}

// NewHTTPTransport builds the default subgraph HTTP transport with a
// per-request timeout.
func NewHTTPTransport(timeout time.Duration, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{client: &http.Client{Timeout: timeout}}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Roundtrip posts req to the subgraph's URL and decodes the response body.
func (t *HTTPTransport) Roundtrip(ctx context.Context, subgraph *supergraph.SubgraphDef, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request for subgraph %q: %w", subgraph.Name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, subgraph.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request for subgraph %q: %w", subgraph.Name, err)
	}
	for name, values := range req.Header {
		httpReq.Header[name] = values
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("subgraph %q request failed: %w", subgraph.Name, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("subgraph %q response read failed: %w", subgraph.Name, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subgraph %q returned status %d", subgraph.Name, httpResp.StatusCode)
	}

	var resp Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("subgraph %q response decode failed: %w", subgraph.Name, err)
	}
	return &resp, nil
}
