// Package executor drives an executable plan: it renders each step's
// subgraph query, dispatches it over the subgraph's transport, threads
// entity representations from parent step results into dependent fetches,
// and folds every response into one shape-checked client result.
package executor

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/n9te9/federation-gateway/internal/gwerr"
	"github.com/n9te9/federation-gateway/internal/planner"
	"github.com/n9te9/federation-gateway/internal/policy"
	"github.com/n9te9/federation-gateway/internal/shape"
	"github.com/n9te9/federation-gateway/internal/supergraph"
)

// Executor dispatches plan steps to subgraphs. One Executor is shared
// across requests; all per-request state lives in the execution's own
// scratch structures.
type Executor struct {
	transports  map[supergraph.TransportKind]Transport
	headerRules []policy.HeaderRule
}

// ExecOption configures an Executor.
type ExecOption func(*Executor)

// WithTransport registers a transport for a subgraph transport kind,
// replacing any previous registration (used to add the gRPC transport).
func WithTransport(kind supergraph.TransportKind, t Transport) ExecOption {
	return func(e *Executor) { e.transports[kind] = t }
}

// WithHeaderRules sets the gateway's header-propagation rules, applied to
// the inbound client headers before every subgraph request.
func WithHeaderRules(rules []policy.HeaderRule) ExecOption {
	return func(e *Executor) { e.headerRules = rules }
}

// New builds an Executor with httpTransport serving TransportHTTP.
func New(httpTransport Transport, opts ...ExecOption) *Executor {
	e := &Executor{
		transports: map[supergraph.TransportKind]Transport{
			supergraph.TransportHTTP: httpTransport,
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// execution is the per-request scratch state: the wire-keyed raw response
// tree every step merges into, the accumulated errors, and the completion
// set driving dependency waves.
type execution struct {
	mu   sync.Mutex
	raw  map[string]any
	errs []*gwerr.Error
	done map[int]bool

	// entityIdx remembers, per entity-fetch step, which traversal-order
	// targets a representation was actually built for, so the _entities
	// list zips back onto the right objects even when some entity lacked
	// a key value and was skipped.
	entityIdx map[int][]int
}

func (st *execution) addError(err *gwerr.Error) {
	st.mu.Lock()
	st.errs = append(st.errs, err)
	st.mu.Unlock()
}

func (st *execution) complete(id int) {
	st.mu.Lock()
	st.done[id] = true
	st.mu.Unlock()
}

// Execute runs every step of art's plan and returns the merged,
// shape-checked response data plus any errors collected along the way.
// Subgraph failures degrade to partial responses, never to a transport
// error for the whole request.
func (e *Executor) Execute(ctx context.Context, art *planner.Artifact, inbound http.Header) (map[string]any, []*gwerr.Error) {
	ctx = WithInboundHeader(ctx, inbound)
	st := &execution{
		raw:       make(map[string]any),
		done:      make(map[int]bool),
		entityIdx: make(map[int][]int),
	}

	if art.Plan.Sequential {
		// Mutation root steps run one at a time, in document order.
		for _, id := range art.Plan.RootSteps {
			e.processStep(ctx, st, art, art.Plan.Steps[id])
		}
	} else {
		e.runWave(ctx, st, art, art.Plan.RootSteps)
	}

	for {
		ready := readySteps(st, art.Plan)
		if len(ready) == 0 {
			break
		}
		e.runWave(ctx, st, art, ready)
	}

	final := make(map[string]any)
	nullified, mergeErrs := shape.MergeInto(art.RootShape, final, st.raw, nil)
	for _, me := range mergeErrs {
		st.errs = append(st.errs, me.AsGraphQLError())
	}
	if nullified {
		return nil, st.errs
	}
	return final, st.errs
}

// runWave executes one group of mutually independent steps concurrently.
func (e *Executor) runWave(ctx context.Context, st *execution, art *planner.Artifact, stepIDs []int) {
	eg, waveCtx := errgroup.WithContext(ctx)
	for _, id := range stepIDs {
		step := art.Plan.Steps[id]
		eg.Go(func() error {
			e.processStep(waveCtx, st, art, step)
			return nil
		})
	}
	_ = eg.Wait()
}

// readySteps finds steps whose dependencies have all completed.
func readySteps(st *execution, plan *planner.Plan) []int {
	st.mu.Lock()
	defer st.mu.Unlock()

	var ready []int
	for _, step := range plan.Steps {
		if st.done[step.ID] || len(step.DependsOn) == 0 {
			continue
		}
		ok := true
		for _, dep := range step.DependsOn {
			if !st.done[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, step.ID)
		}
	}
	return ready
}

func (e *Executor) processStep(ctx context.Context, st *execution, art *planner.Artifact, step *planner.Step) {
	defer st.complete(step.ID)

	sg := art.Supergraph()
	subgraph := sg.Subgraph(step.Subgraph)

	var representations []map[string]any
	if step.Kind == planner.StepEntityFetch {
		st.mu.Lock()
		var indices []int
		representations, indices = e.buildRepresentations(st.raw, art, step)
		st.entityIdx[step.ID] = indices
		st.mu.Unlock()
		if len(representations) == 0 {
			return // nothing to fetch under this branch
		}
	}

	query, variables, err := BuildStepQuery(art, step, representations)
	if err != nil {
		st.addError(gwerr.New(gwerr.CodeInternal, "step %d query build failed: %v", step.ID, err).WithPath(step.Path...))
		return
	}

	transport := e.transports[subgraph.Transport]
	if transport == nil {
		st.addError(gwerr.New(gwerr.CodeSubgraphRequest, "no transport configured for subgraph %q", subgraph.Name).WithPath(step.Path...))
		return
	}

	resp, err := transport.Roundtrip(ctx, subgraph, Request{
		Query:     query,
		Variables: variables,
		Header:    policy.ApplyHeaderRules(e.headerRules, subgraph.Name, inboundOf(ctx)),
	})
	if err != nil {
		st.addError(gwerr.New(gwerr.CodeSubgraphRequest, "%v", err).WithPath(step.Path...))
		e.nullEntryFields(st, art, step)
		return
	}

	for _, se := range resp.Errors {
		ge := &gwerr.Error{
			Code:       gwerr.CodeSubgraphRequest,
			Message:    se.Message,
			Path:       append(append([]string{}, step.Path...), stringsOf(se.Path)...),
			Extensions: map[string]any{"serviceName": subgraph.Name},
		}
		for k, v := range se.Extensions {
			ge.Extensions[k] = v
		}
		st.addError(ge)
	}
	if resp.Data == nil {
		e.nullEntryFields(st, art, step)
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if step.Kind == planner.StepEntityFetch {
		e.mergeEntityResults(st, art, step, resp.Data)
		return
	}
	if err := mergeRaw(st.raw, resp.Data, nil); err != nil {
		st.errs = append(st.errs, gwerr.New(gwerr.CodeSubgraphInvalidResponse, "%v", err).WithPath(step.Path...))
	}
}

// buildRepresentations walks the raw tree to step.Path (fanning out over
// any lists on the way) and materialises each entity it finds there into a
// { __typename, key…, requires… } object. An entity missing a key value is
// skipped; indices records which traversal positions made it onto the wire
// so the results can be zipped back. Caller holds st.mu.
func (e *Executor) buildRepresentations(raw map[string]any, art *planner.Artifact, step *planner.Step) ([]map[string]any, []int) {
	sg := art.Supergraph()
	typeName := sg.Type(step.EntityType).Name

	var reps []map[string]any
	var indices []int
	for i, entity := range collectEntityMaps(raw, step.Path) {
		rep := map[string]any{"__typename": typeName}
		ok := true
		if step.Key != nil {
			ok = copyKeyRefs(sg, entity, rep, step.Key.FieldSet)
		}
		for _, def := range step.RequiredFields {
			name := sg.Field(def).Name
			value, exists := entity[name]
			if !exists {
				ok = false
				break
			}
			rep[name] = value
		}
		if !ok {
			continue
		}
		reps = append(reps, rep)
		indices = append(indices, i)
	}
	return reps, indices
}

// copyKeyRefs copies the key fields (recursively, for composite keys) from
// entity into rep, reporting false if any value is absent.
func copyKeyRefs(sg *supergraph.Supergraph, entity, rep map[string]any, refs []supergraph.KeyFieldRef) bool {
	for _, ref := range refs {
		name := sg.Field(ref.Field).Name
		value, exists := entity[name]
		if !exists {
			return false
		}
		if len(ref.Nested) == 0 {
			rep[name] = value
			continue
		}
		nestedEntity, ok := value.(map[string]any)
		if !ok {
			return false
		}
		nestedRep := make(map[string]any, len(ref.Nested))
		if !copyKeyRefs(sg, nestedEntity, nestedRep, ref.Nested) {
			return false
		}
		rep[name] = nestedRep
	}
	return true
}

// collectEntityMaps returns, in traversal order, every object sitting at
// path below raw, descending through lists elementwise.
func collectEntityMaps(raw map[string]any, path []string) []map[string]any {
	var out []map[string]any
	var walk func(v any, rest []string)
	walk = func(v any, rest []string) {
		switch node := v.(type) {
		case []any:
			for _, elem := range node {
				walk(elem, rest)
			}
		case map[string]any:
			if len(rest) == 0 {
				out = append(out, node)
				return
			}
			if next, exists := node[rest[0]]; exists {
				walk(next, rest[1:])
			}
		}
	}
	walk(raw, path)
	return out
}

// mergeEntityResults zips the fetched entities against the entity objects
// at step.Path, in the same traversal order the representations were
// extracted in. For an _entities fetch the list comes back directly; for a
// lookup fetch it is reassembled from the aliased _0.._n invocations.
// Caller holds st.mu.
func (e *Executor) mergeEntityResults(st *execution, art *planner.Artifact, step *planner.Step, data map[string]any) {
	var entities []any
	if step.LookupField != supergraph.NoField {
		for i := 0; ; i++ {
			v, ok := data[fmt.Sprintf("_%d", i)]
			if !ok {
				break
			}
			entities = append(entities, v)
		}
	} else {
		var ok bool
		entities, ok = data["_entities"].([]any)
		if !ok {
			st.errs = append(st.errs, gwerr.New(gwerr.CodeSubgraphInvalidResponse, "entity fetch returned no _entities list").WithPath(step.Path...))
			return
		}
	}

	targets := collectEntityMaps(st.raw, step.Path)
	for wireIdx, targetIdx := range st.entityIdx[step.ID] {
		if wireIdx >= len(entities) || targetIdx >= len(targets) {
			break
		}
		entity, ok := entities[wireIdx].(map[string]any)
		if !ok {
			continue // a null entity: the subgraph could not resolve this reference
		}
		if err := mergeRaw(targets[targetIdx], entity, nil); err != nil {
			st.errs = append(st.errs, gwerr.New(gwerr.CodeSubgraphInvalidResponse, "%v", err).WithPath(step.Path...))
		}
	}
}

// nullEntryFields nulls out a failed root step's own top-level fields so
// the final response still carries every requested key.
func (e *Executor) nullEntryFields(st *execution, art *planner.Artifact, step *planner.Step) {
	if step.Kind != planner.StepRootField {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, fid := range step.EntryFields {
		f := art.Graph.Field(fid)
		if f.IsTypename {
			continue
		}
		name := f.ResponseKey
		if _, exists := st.raw[name]; !exists {
			st.raw[name] = nil
		}
	}
}

func stringsOf(path []any) []string {
	out := make([]string, 0, len(path))
	for _, p := range path {
		if s, ok := p.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
