// Package operation implements the bound, variable-aware representation of
// one parsed GraphQL operation: an append-only arena of query
// fields produced by binding a parsed executable document against a
// supergraph, with fragments inlined and arguments coerced.
package operation

import "github.com/n9te9/federation-gateway/internal/supergraph"

// FieldID addresses a Field in Operation.Fields.
type FieldID int32

// NoField is the sentinel for "no field", distinct from a valid arena slot.
const NoField FieldID = -1

// Kind is the three GraphQL operation kinds.
type Kind uint8

const (
	KindQuery Kind = iota
	KindMutation
	KindSubscription
)

func (k Kind) String() string {
	switch k {
	case KindMutation:
		return "mutation"
	case KindSubscription:
		return "subscription"
	default:
		return "query"
	}
}

// ValueKind tags a coerced argument Value's shape.
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueBool
	ValueInt
	ValueFloat
	ValueString
	ValueEnum
	ValueList
	ValueObject
)

// Value is a fully coerced input value: every *ast.Variable reference has
// already been resolved against the operation's variable JSON, and list
// coercion (a bare T promoted to [T] at the outermost list level only) has
// already been applied.
type Value struct {
	Kind   ValueKind
	Bool   bool
	Int    int64
	Float  float64
	Str    string // String and Enum share this field
	List   []Value
	Object map[string]Value
}

// Arg is one bound, coerced field argument.
type Arg struct {
	Name  string
	Value Value
}

// Field is one node of the operation's field tree. Fragment spreads and
// inline fragments never appear here: binding inlines them, and every Field
// carries the smallest composite type its selection set is valid on.
type Field struct {
	// ResponseKey is the alias if the document supplied one, else the field
	// name. Two sibling Fields may share a response key only when they also
	// share the same field definition and arguments. This is not checked:
	// Bind's gqlparser/v2 pass is a syntax-only parse, and binding itself
	// does not compare siblings.
	ResponseKey string

	// Def is the resolved field definition, or supergraph.NoField for the
	// meta field __typename.
	Def supergraph.FieldID

	// IsTypename is true for the introspection meta field __typename, which
	// has no backing FieldDef.
	IsTypename bool

	// ParentType is the composite type this field is selected from.
	ParentType supergraph.TypeID

	// TypeCondition is the smallest composite type this field is guaranteed
	// to appear on, equal to ParentType unless the field came from a
	// fragment with a narrower type condition.
	TypeCondition supergraph.TypeID

	Arguments []Arg

	// SubSelection holds child field ids in document order, empty for leaf
	// scalar/enum fields.
	SubSelection []FieldID

	// QueryPosition is the field's first-seen index in document order,
	// stable across binding, used by the solver for deterministic
	// tie-breaks.
	QueryPosition int

	// Dispensable is true when the field's inclusion depends on a
	// conditional gate (@skip/@include) that could not be statically
	// resolved against the supplied variables. Authorization-driven
	// dispensability is layered
	// on top of this in internal/solutionspace, which has the request's
	// auth hooks; the operation model only ever sees variables.
	Dispensable bool
}

// Operation is the bound representation of one selected operation from a
// parsed document.
type Operation struct {
	Kind Kind
	Name string

	// Fields is the append-only field arena.
	Fields []Field

	// Root holds the ids of the operation's top-level selected fields, in
	// document order.
	Root []FieldID

	// RootType is the Query/Mutation/Subscription type the root fields are
	// selected against.
	RootType supergraph.TypeID
}

// Field dereferences a FieldID.
func (op *Operation) Field(id FieldID) *Field { return &op.Fields[id] }
