// Package gwerr defines the typed GraphQL error codes surfaced across the
// gateway's binding, planning, and execution stages.
package gwerr

import "fmt"

// Code is a closed set of GraphQL error codes returned to clients.
type Code string

const (
	CodeOperationValidation     Code = "OPERATION_VALIDATION_ERROR"
	CodeBadRequest              Code = "BAD_REQUEST"
	CodeNoPlanFound             Code = "NO_PLAN_FOUND"
	CodePlanningCancelled       Code = "PLANNING_CANCELLED"
	CodeSubgraphInvalidResponse Code = "SUBGRAPH_INVALID_RESPONSE_ERROR"
	CodeUnauthorized            Code = "UNAUTHORIZED"
	CodeUnauthenticated         Code = "UNAUTHENTICATED"
	CodeHook                    Code = "HOOK_ERROR"
	CodeSubgraphRequest         Code = "SUBGRAPH_REQUEST_ERROR"
	CodeInternal                Code = "INTERNAL_ERROR"
)

// Error is a path-tagged GraphQL error carrying one of the codes above.
type Error struct {
	Code       Code
	Message    string
	Path       []string
	Extensions map[string]any
}

func (e *Error) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (path %v)", e.Code, e.Message, e.Path)
}

// New builds a gwerr.Error with no path.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithPath returns a copy of e with path set, used when an error surfaces at
// a specific response position.
func (e *Error) WithPath(path ...string) *Error {
	cp := *e
	cp.Path = path
	return &cp
}

// AsGraphQLError renders e into the wire shape clients expect in the
// top-level "errors" array.
func (e *Error) AsGraphQLError() map[string]any {
	out := map[string]any{
		"message": e.Message,
	}
	if len(e.Path) > 0 {
		path := make([]any, len(e.Path))
		for i, p := range e.Path {
			path[i] = p
		}
		out["path"] = path
	}
	ext := map[string]any{"code": string(e.Code)}
	for k, v := range e.Extensions {
		ext[k] = v
	}
	out["extensions"] = ext
	return out
}
