package planner

import (
	"context"
	"hash/fnv"

	"github.com/n9te9/graphql-parser/ast"

	"github.com/n9te9/federation-gateway/internal/operation"
	"github.com/n9te9/federation-gateway/internal/policy"
	"github.com/n9te9/federation-gateway/internal/shape"
	"github.com/n9te9/federation-gateway/internal/solutionspace"
	"github.com/n9te9/federation-gateway/internal/steiner"
	"github.com/n9te9/federation-gateway/internal/supergraph"
)

// Planner runs the full planning pipeline against one immutable supergraph:
// bind, solution-space construction, solving, finalisation. One Planner is
// shared across concurrent requests; every Plan call owns its own scratch
// structures and drops them on return.
type Planner struct {
	sg   *supergraph.Supergraph
	hook policy.AuthzHook
}

// Option configures a Planner.
type Option func(*Planner)

// WithAuthzHook sets the authorization oracle consulted per field during
// solution-space construction.
func WithAuthzHook(h policy.AuthzHook) Option {
	return func(p *Planner) { p.hook = h }
}

// New builds a Planner over sg.
func New(sg *supergraph.Supergraph, opts ...Option) *Planner {
	p := &Planner{sg: sg, hook: policy.AllowAllHook{}}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Artifact is the executable output of one Plan call: the step DAG, the
// solution-space graph the steps' field ids index into, and the response
// shape the executor merges subgraph results through.
type Artifact struct {
	Plan      *Plan
	Graph     *solutionspace.Graph
	RootShape *shape.Shape
	RequestID string
}

// Supergraph returns the schema this artifact was planned against.
func (a *Artifact) Supergraph() *supergraph.Supergraph { return a.Graph.SG }

// Operation returns the bound operation this artifact was planned for.
func (a *Artifact) Operation() *operation.Operation { return a.Graph.Op }

// Plan binds doc against the supergraph and produces an executable Artifact,
// or a typed error (gwerr codes OPERATION_VALIDATION_ERROR, NO_PLAN_FOUND,
// PLANNING_CANCELLED). The caller's ctx deadline is the planning deadline:
// it is checked between solver steps and planning returns PLANNING_CANCELLED
// on expiry, never a partial plan.
//
// Override labels of the form percent(N) with 0 < N < 100 are resolved to a
// STABLE per-request decision: the choice between the overriding and
// overridden subgraph is seeded by an FNV-1a hash of requestID and the two
// subgraph ids, so retries of the same request plan identically. With an
// empty requestID no decision is made: both copies stay in the solution
// space and the solver picks by cost. On a cost tie neither copy is
// preferred by override direction or subgraph id: the solver keeps the
// copy its search settles first.
// percent(100) and an unlabelled @override always drop the overridden copy;
// percent(0) drops the overriding one.
func (p *Planner) Plan(ctx context.Context, doc *ast.Document, operationName string, variables map[string]any, requestID string) (*Artifact, error) {
	op, err := operation.Bind(doc, operationName, variables, p.sg)
	if err != nil {
		return nil, err
	}

	g, err := solutionspace.Build(ctx, p.sg, op,
		solutionspace.WithAuthzHook(p.hook),
		solutionspace.WithFieldExclusions(overrideExclusions(p.sg, requestID)),
	)
	if err != nil {
		return nil, err
	}

	sol, err := steiner.Solve(ctx, g)
	if err != nil {
		return nil, err
	}

	plan, err := Build(g, sol)
	if err != nil {
		return nil, err
	}

	rootShape, err := shape.BuildRoot(p.sg, op)
	if err != nil {
		return nil, err
	}

	return &Artifact{Plan: plan, Graph: g, RootShape: rootShape, RequestID: requestID}, nil
}

// overrideExclusions resolves every @override in sg into the set of (field,
// subgraph) copies the solution space must not consider for this request.
func overrideExclusions(sg *supergraph.Supergraph, requestID string) map[solutionspace.ExcludedField]bool {
	var out map[solutionspace.ExcludedField]bool
	exclude := func(field supergraph.FieldID, sub supergraph.SubgraphID) {
		if out == nil {
			out = make(map[solutionspace.ExcludedField]bool)
		}
		out[solutionspace.ExcludedField{Field: field, Subgraph: sub}] = true
	}

	for fid := range sg.Fields {
		fd := &sg.Fields[fid]
		for _, ov := range fd.Overrides {
			percent := 100
			if ov.Label != nil {
				percent = ov.Label.Percent
			}
			switch {
			case percent >= 100:
				exclude(supergraph.FieldID(fid), ov.From)
			case percent <= 0:
				exclude(supergraph.FieldID(fid), ov.In)
			case requestID != "":
				if overrideRoll(requestID, ov.In, ov.From) < percent {
					exclude(supergraph.FieldID(fid), ov.From)
				} else {
					exclude(supergraph.FieldID(fid), ov.In)
				}
			}
		}
	}
	return out
}

// overrideRoll derives a deterministic value in [0, 100) from the request id
// and the override's two subgraph endpoints.
func overrideRoll(requestID string, in, from supergraph.SubgraphID) int {
	h := fnv.New64a()
	h.Write([]byte(requestID))
	h.Write([]byte{byte(in), byte(in >> 8), byte(from), byte(from >> 8)})
	return int(h.Sum64() % 100)
}
