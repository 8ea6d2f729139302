package executor

import (
	"context"
	"net/http"
)

type inboundHeaderKey struct{}

// WithInboundHeader returns a context carrying the client request's headers
// so the executor can apply the gateway's header rules per subgraph fetch.
func WithInboundHeader(ctx context.Context, h http.Header) context.Context {
	return context.WithValue(ctx, inboundHeaderKey{}, h)
}

// inboundOf extracts the inbound headers, or nil if none were attached.
func inboundOf(ctx context.Context) http.Header {
	h, _ := ctx.Value(inboundHeaderKey{}).(http.Header)
	return h
}
