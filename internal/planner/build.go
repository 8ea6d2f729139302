package planner

import (
	"github.com/n9te9/federation-gateway/internal/operation"
	"github.com/n9te9/federation-gateway/internal/solutionspace"
	"github.com/n9te9/federation-gateway/internal/steiner"
	"github.com/n9te9/federation-gateway/internal/supergraph"
)

type builder struct {
	g     *solutionspace.Graph
	sol   *steiner.Solution
	plan  *Plan
	steps map[solutionspace.NodeID]int
}

// Build finalises sol into an executable Plan.
func Build(g *solutionspace.Graph, sol *steiner.Solution) (*Plan, error) {
	b := &builder{
		g:     g,
		sol:   sol,
		plan:  &Plan{Sequential: g.Op.Kind == operation.KindMutation, FieldStep: make(map[operation.FieldID]int)},
		steps: make(map[solutionspace.NodeID]int),
	}
	if err := b.walk(g.Op.Root, solutionspace.NoNode, -1, nil); err != nil {
		return nil, err
	}
	return b.plan, nil
}

// walk descends the operation's own field tree (not the solution-space
// graph's edges: QueryField nodes carry no outgoing edges, so recursion
// has to follow the document structure, exactly as
// internal/solutionspace's processSelection built it). At each field it
// asks the solution which resolver instance actually provides it; a
// resolver different from currentResolver means the field's subtree moved
// to a new subgraph fetch, so a new Step is opened.
func (b *builder) walk(fids []operation.FieldID, currentResolver solutionspace.NodeID, currentStep int, path []string) error {
	for _, fid := range fids {
		f := b.g.Field(fid)
		if f.IsTypename || f.Dispensable {
			continue
		}
		qf, ok := b.g.FieldNode(fid)
		if !ok || !b.sol.Has(qf) {
			continue // no resolver could provide it, or it was pruned by authorization
		}

		pf := b.sol.Parent[qf].From
		resolver := b.g.Node(pf).Provider

		stepID := currentStep
		if resolver != currentResolver {
			var exists bool
			stepID, exists = b.steps[resolver]
			if !exists {
				stepID = b.newStep(resolver, currentStep, path)
			}
			b.plan.Steps[stepID].EntryFields = appendUniqueFieldID(b.plan.Steps[stepID].EntryFields, fid)
		}

		step := b.plan.Steps[stepID]
		step.Fields = append(step.Fields, fid)
		b.plan.FieldStep[fid] = stepID

		if len(f.SubSelection) > 0 {
			childPath := append(append([]string{}, path...), f.ResponseKey)
			if err := b.walk(f.SubSelection, resolver, stepID, childPath); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) newStep(resolver solutionspace.NodeID, parentStep int, path []string) int {
	rd := b.g.SG.Resolver(b.g.Node(resolver).Resolver)

	step := &Step{
		ID:          len(b.plan.Steps),
		Subgraph:    rd.Subgraph,
		Path:        append([]string(nil), path...),
		LookupField: supergraph.NoField,
	}
	switch rd.Kind {
	case supergraph.ResolverEntityFetch:
		step.Kind = StepEntityFetch
		step.ParentType = rd.EntityType
		step.EntityType = rd.EntityType
		step.Key = rd.Key
	case supergraph.ResolverLookup:
		step.Kind = StepEntityFetch
		step.ParentType = rd.EntityType
		step.EntityType = rd.EntityType
		step.Key = rd.Key
		step.LookupField = rd.Field
	default:
		step.Kind = StepRootField
		step.ParentType = b.g.Op.RootType
	}

	if parentStep >= 0 {
		step.DependsOn = []int{parentStep}
		if step.Kind == StepEntityFetch {
			parent := b.plan.Steps[parentStep]
			if step.Key != nil {
				for _, kf := range step.Key.FieldSet {
					parent.KeyFields = appendUniqueField(parent.KeyFields, kf.Field)
				}
			}
			// @requires fields the fetch needs beyond the entity key also
			// have to be in the parent's own selection: they're
			// EdgeRequires targets hanging directly off this resolver node.
			// The child records them too, so the executor knows to fold them
			// into each representation alongside the key.
			for _, idx := range b.g.Out(resolver) {
				e := b.g.Edges[idx]
				if e.Kind != solutionspace.EdgeRequires {
					continue
				}
				reqField := b.g.Node(e.To).Field
				def := b.g.Field(reqField).Def
				parent.KeyFields = appendUniqueField(parent.KeyFields, def)
				step.RequiredFields = appendUniqueField(step.RequiredFields, def)
			}
		}
	} else {
		b.plan.RootSteps = append(b.plan.RootSteps, step.ID)
	}

	b.plan.Steps = append(b.plan.Steps, step)
	b.steps[resolver] = step.ID
	return step.ID
}

func appendUniqueField(fields []supergraph.FieldID, f supergraph.FieldID) []supergraph.FieldID {
	for _, existing := range fields {
		if existing == f {
			return fields
		}
	}
	return append(fields, f)
}

func appendUniqueFieldID(fields []operation.FieldID, f operation.FieldID) []operation.FieldID {
	for _, existing := range fields {
		if existing == f {
			return fields
		}
	}
	return append(fields, f)
}
