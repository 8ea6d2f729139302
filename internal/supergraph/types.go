// Package supergraph implements the arena-based, ID-addressed view of a
// composed supergraph schema (federation metadata included) that the rest of
// the planner walks read-only.
package supergraph

import "github.com/n9te9/federation-gateway/internal/federation"

// TypeID addresses a TypeDef in Supergraph.Types.
type TypeID int32

// FieldID addresses a FieldDef in Supergraph.Fields. Object/interface output
// fields and input-object fields share the same arena.
type FieldID int32

// ArgID addresses an ArgDef in Supergraph.Args.
type ArgID int32

// ResolverID addresses a ResolverDef in Supergraph.Resolvers.
type ResolverID int32

// SubgraphID addresses a SubgraphDef in Supergraph.Subgraphs.
type SubgraphID int32

// NoType, NoField, and so on are the zero-value sentinels for "absent",
// distinct from id 0 which is a valid arena slot. Arenas always reserve slot
// 0 for these sentinels.
const (
	NoType     TypeID     = -1
	NoField    FieldID    = -1
	NoArg      ArgID      = -1
	NoResolver ResolverID = -1
	NoSubgraph SubgraphID = -1
)

// TypeKind distinguishes the six kinds of GraphQL type definition.
type TypeKind uint8

const (
	KindScalar TypeKind = iota
	KindEnum
	KindInputObject
	KindObject
	KindInterface
	KindUnion
)

func (k TypeKind) String() string {
	switch k {
	case KindScalar:
		return "SCALAR"
	case KindEnum:
		return "ENUM"
	case KindInputObject:
		return "INPUT_OBJECT"
	case KindObject:
		return "OBJECT"
	case KindInterface:
		return "INTERFACE"
	case KindUnion:
		return "UNION"
	default:
		return "UNKNOWN"
	}
}

// KeyFieldRef is one node of a parsed @key/@requires/@provides selection
// set: a field plus, for composite keys, the nested selection on that
// field's return type.
type KeyFieldRef struct {
	Field  FieldID
	Nested []KeyFieldRef
}

// Key records one `@key` a subgraph exposes for an entity type.
type Key struct {
	Subgraph   SubgraphID
	FieldSet   []KeyFieldRef
	Resolvable bool
}

// OverrideLabel is a parsed `label: percent(N)` override qualifier.
type OverrideLabel struct {
	Percent int
}

// OverrideInfo records that a field's copy in subgraph In supersedes the
// copy in subgraph From, optionally qualified by a percent label.
type OverrideInfo struct {
	In    SubgraphID
	From  SubgraphID
	Label *OverrideLabel
}

// DeriveInfo records a `@derive`-backed field: its value is synthesized from
// a sibling key field instead of fetched.
type DeriveInfo struct {
	From []KeyFieldRef
}

// TypeDef is one arena slot: a scalar, enum, input object, object,
// interface, or union definition.
type TypeDef struct {
	Kind TypeKind
	Name string

	// Object / Interface
	FieldIDs   []FieldID
	Interfaces []TypeID

	// Interface: concrete object types known to implement it (populated by
	// @join__implements across subgraphs).
	ImplementedBy []TypeID

	// Union
	UnionMembers []TypeID

	// Enum
	EnumValues []string

	// InputObject
	InputFieldIDs []FieldID

	// Entity bookkeeping (Object/Interface only).
	IsEntity bool
	Keys     []Key

	// InterfaceObject: subgraphs in which an object type declares itself as
	// contributing fields to this interface (populated on the interface's
	// TypeDef).
	InterfaceObjectSubgraphs []SubgraphID
}

// ArgDef is a field or directive argument.
type ArgDef struct {
	Name         string
	ParentField  FieldID
	NamedType    TypeID
	Wrapping     federation.Wrapping
	DefaultValue string // raw literal text, or "" if none
	HasDefault   bool
}

// FieldDef is one arena slot shared by object/interface output fields and
// input-object input fields.
type FieldDef struct {
	Name       string
	ParentType TypeID
	ArgIDs     []ArgID

	NamedType TypeID
	Wrapping  federation.Wrapping

	// Output-field-only federation metadata.
	SubgraphIDs []SubgraphID
	ExternalIn  []SubgraphID
	Shareable   bool
	Resolvers   []ResolverID
	Requires    map[SubgraphID][]KeyFieldRef
	Provides    map[SubgraphID][]KeyFieldRef
	Derive      *DeriveInfo
	Overrides   []OverrideInfo
}

// ResolverKind tags the five resolver-definition variants.
type ResolverKind uint8

const (
	ResolverRootField ResolverKind = iota
	ResolverEntityFetch
	// ResolverLookup fetches an entity by calling a @composite__lookup
	// root field with the key as arguments, for subgraphs that expose no
	// resolvable _entities key.
	ResolverLookup
	// ResolverFieldExtension resolves a root field through a pluggable
	// extension declared with @extension__directive; the planner treats it
	// like a root-field resolver in the extension's subgraph.
	ResolverFieldExtension
)

func (k ResolverKind) String() string {
	switch k {
	case ResolverRootField:
		return "ROOT_FIELD"
	case ResolverEntityFetch:
		return "ENTITY_FETCH"
	case ResolverLookup:
		return "LOOKUP"
	case ResolverFieldExtension:
		return "FIELD_EXTENSION"
	default:
		return "UNKNOWN"
	}
}

// ResolverDef is a tagged-variant resolver definition. The hot loop in the
// solver only ever inspects (edge kind, cost) pairs; ResolverDef is switched
// on by kind exactly once, at instantiation time ("dynamic dispatch
// over many resolver kinds").
type ResolverDef struct {
	Kind     ResolverKind
	Subgraph SubgraphID

	// RootField / FieldExtension: the field this resolver resolves.
	// Lookup: the @composite__lookup root field called to fetch the entity.
	Field FieldID

	// EntityFetch / Lookup: the entity type fetched and the key used.
	EntityType TypeID
	Key        *Key
}

// TransportKind is how a subgraph is dispatched to.
type TransportKind uint8

const (
	TransportHTTP TransportKind = iota
	TransportGRPC
)

// SubgraphDef is one backing service declared in the supergraph.
type SubgraphDef struct {
	Name      string
	URL       string
	Transport TransportKind
}

// Supergraph is the immutable, arena-addressed composed schema. It is built
// once by Build and then shared read-only across concurrent planning calls.
type Supergraph struct {
	Types  []TypeDef
	Fields []FieldDef
	Args   []ArgDef

	Resolvers []ResolverDef
	Subgraphs []SubgraphDef

	typeByName     map[string]TypeID
	subgraphByName map[string]SubgraphID

	// entityResolversByType indexes ResolverEntityFetch/ResolverLookup
	// definitions by the entity type they fetch, populated by
	// synthesizeResolvers during Build.
	entityResolversByType map[TypeID][]ResolverID

	QueryType        TypeID
	MutationType     TypeID
	SubscriptionType TypeID
}

// EntityResolvers returns the entity-fetch (and lookup) resolver
// definitions that can materialise an instance of typ, one per resolvable
// key per subgraph.
func (sg *Supergraph) EntityResolvers(typ TypeID) []ResolverID {
	return sg.entityResolversByType[typ]
}

// TypeByName resolves a type name to its id.
func (sg *Supergraph) TypeByName(name string) (TypeID, bool) {
	id, ok := sg.typeByName[name]
	return id, ok
}

// SubgraphByName resolves a subgraph name to its id.
func (sg *Supergraph) SubgraphByName(name string) (SubgraphID, bool) {
	id, ok := sg.subgraphByName[name]
	return id, ok
}

// Type dereferences a TypeID. Panics on an out-of-range id, mirroring the
// arena's "ids are always valid once built" invariant.
func (sg *Supergraph) Type(id TypeID) *TypeDef { return &sg.Types[id] }

// Field dereferences a FieldID.
func (sg *Supergraph) Field(id FieldID) *FieldDef { return &sg.Fields[id] }

// Arg dereferences an ArgID.
func (sg *Supergraph) Arg(id ArgID) *ArgDef { return &sg.Args[id] }

// Resolver dereferences a ResolverID.
func (sg *Supergraph) Resolver(id ResolverID) *ResolverDef { return &sg.Resolvers[id] }

// Subgraph dereferences a SubgraphID.
func (sg *Supergraph) Subgraph(id SubgraphID) *SubgraphDef { return &sg.Subgraphs[id] }

// FieldByName looks up a field of typ by name, O(len(fields)), fine for the
// field counts real schemas have; a name->id map per type is not worth the
// extra arena bookkeeping at this scale.
func (sg *Supergraph) FieldByName(typ TypeID, name string) (FieldID, bool) {
	for _, fid := range sg.Types[typ].FieldIDs {
		if sg.Fields[fid].Name == name {
			return fid, true
		}
	}
	return NoField, false
}

// Walk returns an ergonomic, schema-attached view of a type id.
func (sg *Supergraph) Walk(id TypeID) TypeWalk { return TypeWalk{sg: sg, id: id} }

// TypeWalk pairs a TypeID with the Supergraph it belongs to.
type TypeWalk struct {
	sg *Supergraph
	id TypeID
}

// ID returns the wrapped id.
func (w TypeWalk) ID() TypeID { return w.id }

// Def returns the underlying TypeDef.
func (w TypeWalk) Def() *TypeDef { return w.sg.Type(w.id) }

// Field looks up a field by name and returns its walk.
func (w TypeWalk) Field(name string) (FieldWalk, bool) {
	fid, ok := w.sg.FieldByName(w.id, name)
	if !ok {
		return FieldWalk{}, false
	}
	return FieldWalk{sg: w.sg, id: fid}, true
}

// Fields returns walks for every field of this type, in declared order.
func (w TypeWalk) Fields() []FieldWalk {
	defs := w.Def().FieldIDs
	out := make([]FieldWalk, len(defs))
	for i, fid := range defs {
		out[i] = FieldWalk{sg: w.sg, id: fid}
	}
	return out
}

// FieldWalk pairs a FieldID with its Supergraph.
type FieldWalk struct {
	sg *Supergraph
	id FieldID
}

// ID returns the wrapped id.
func (w FieldWalk) ID() FieldID { return w.id }

// Def returns the underlying FieldDef.
func (w FieldWalk) Def() *FieldDef { return w.sg.Field(w.id) }

// NamedType returns a walk over this field's named return/input type.
func (w FieldWalk) NamedType() TypeWalk { return TypeWalk{sg: w.sg, id: w.Def().NamedType} }

// ExistsIn reports whether the field is resolvable in the given subgraph
// (present and not externally-only).
func (f *FieldDef) ExistsIn(sub SubgraphID) bool {
	for _, id := range f.SubgraphIDs {
		if id == sub {
			for _, ext := range f.ExternalIn {
				if ext == sub {
					return len(f.Provides[sub]) > 0
				}
			}
			return true
		}
	}
	return false
}
