// Package planner lowers a solved solution-space graph into an ordered set
// of subgraph fetches: one Step per resolver instantiation the
// solver chose, wired into a dependency DAG so internal/executor knows what
// can run concurrently and what must wait on a parent entity key.
package planner

import (
	"github.com/n9te9/federation-gateway/internal/operation"
	"github.com/n9te9/federation-gateway/internal/supergraph"
)

// StepKind distinguishes a root-level subgraph query from an entity fetch
// issued against a federated `_entities` boundary.
type StepKind uint8

const (
	StepRootField StepKind = iota
	StepEntityFetch
)

func (k StepKind) String() string {
	if k == StepEntityFetch {
		return "ENTITY_FETCH"
	}
	return "ROOT_FIELD"
}

// Step is one subgraph request: either the operation's own root fields
// owned by one subgraph, or an `_entities` lookup for one resolvable key.
type Step struct {
	ID       int
	Kind     StepKind
	Subgraph supergraph.SubgraphID

	// ParentType is the type Fields are selected against: the operation
	// root type for StepRootField, the entity type for StepEntityFetch.
	ParentType supergraph.TypeID

	// EntityType / Key are set for StepEntityFetch only.
	EntityType supergraph.TypeID
	Key        *supergraph.Key

	// LookupField, when not NoField, marks an entity fetch served by a
	// @composite__lookup root field: internal/executor calls that field
	// once per representation (aliased) instead of posting _entities.
	LookupField supergraph.FieldID

	// Path is the response-key path from the operation root to the field
	// this step's result attaches under (empty for a root step).
	Path []string

	// Fields holds this step's own selected field ids, in document order.
	Fields []operation.FieldID

	// KeyFields holds field definitions this step must also select (beyond
	// what the client asked for) because a dependent StepEntityFetch needs
	// them in its representation. Injected when the dependent step is
	// created; see planner_v2.go's "Key fields will be injected during
	// entity step creation" comment, which this mirrors.
	KeyFields []supergraph.FieldID

	// RequiredFields holds @requires field definitions (beyond the key) a
	// StepEntityFetch needs folded into each entity representation. The
	// parent step's KeyFields already cover fetching their values.
	RequiredFields []supergraph.FieldID

	// DependsOn lists step ids that must complete before this step can run.
	// Empty for a root step.
	DependsOn []int

	// EntryFields holds the ids of fields where this step begins: for a
	// root step, the top-level operation fields it owns; for an entity-fetch
	// step, the fields at the resolver-boundary crossing that created it
	// (possibly several, if the same resolver instance is reached from more
	// than one tree position). internal/executor walks each entry field's
	// own SubSelection to reconstruct this step's subgraph query text,
	// stopping wherever a child field belongs to a different step (that
	// subtree is the child step's own fetch).
	EntryFields []operation.FieldID
}

// Plan is the finalised, executable form of one solved operation.
type Plan struct {
	Steps []*Step

	// RootSteps holds the ids of steps with no dependency, runnable as soon
	// as the plan starts (concurrently, for a query/subscription operation;
	// in document order, one at a time, for a mutation).
	RootSteps []int

	// Sequential is true for a mutation: internal/executor must run
	// RootSteps one at a time, in Plan.Steps order, instead of concurrently.
	Sequential bool

	// FieldStep maps every field the plan actually resolves to the id of the
	// step that resolves it. A field absent from this map was pruned from
	// the plan entirely (no resolver chosen, @skip/@include, or
	// authorization denial) and must not appear in any subgraph query.
	FieldStep map[operation.FieldID]int
}
