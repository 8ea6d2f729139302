package policy

import "context"

// RateLimiter is the seam the gateway wires a concrete limiter behind
// (token bucket, sliding window, or a remote limiter service, all out of
// scope here). internal/gatewayhttp calls Allow once
// per inbound request before handing it to the planner.
type RateLimiter interface {
	// Allow reports whether the request identified by key may proceed.
	Allow(ctx context.Context, key string) (bool, error)
}

// AllowAllLimiter is a RateLimiter that never throttles, the default when
// no limiter backend is configured.
type AllowAllLimiter struct{}

func (AllowAllLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
