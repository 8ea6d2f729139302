// Package shape implements the typed output-shape descriptors produced
// alongside plan finalisation: for each response position, a
// concrete or polymorphic object shape describing exactly which fields a
// subgraph response must carry, their wire keys, and their nullability,
// plus the merge-rule tree-walk internal/executor uses to fold several
// partitions' responses into one client-facing result.
package shape

import (
	"github.com/n9te9/federation-gateway/internal/federation"
	"github.com/n9te9/federation-gateway/internal/operation"
	"github.com/n9te9/federation-gateway/internal/supergraph"
)

// Kind distinguishes the two object-shaped response positions. Everything
// else (scalars, enums) is a leaf: a Field with a nil Nested shape.
type Kind uint8

const (
	// Concrete is a fixed field list over one object type.
	Concrete Kind = iota
	// Polymorphic is a __typename-keyed mapping from concrete object type to
	// its own Concrete shape, with Default as the fallback for any runtime
	// type the operation didn't explicitly select a fragment for.
	Polymorphic
)

// Shape is the output descriptor for one object-shaped response position.
type Shape struct {
	Kind Kind

	// Type is the static type this shape was built against: the object type
	// itself for Concrete, the interface/union type for Polymorphic.
	Type supergraph.TypeID

	// Name is Type's GraphQL name, cached here so the merge-rule walk in
	// merge.go can match a runtime "__typename" value against Variants
	// without needing a *supergraph.Supergraph of its own.
	Name string

	// Fields holds the field list for Concrete, canonically ordered by
	// (response key, document position).
	Fields []Field

	// Variants maps a concrete object TypeID to its own Concrete shape,
	// populated for Polymorphic only.
	Variants map[supergraph.TypeID]*Shape

	// Default is the Polymorphic fallback shape (fields with no narrower
	// type condition, i.e. selected directly on the interface/union) used
	// for a runtime __typename with no matching Variant entry.
	Default *Shape
}

// Coercion is the per-scalar rule a leaf value is checked against when a
// subgraph response is merged: built-in scalars get their GraphQL
// coercion (Float accepts Int, ID accepts String or Int), enums accept any
// string (undeclared names are kept), and custom scalars accept any JSON
// value.
type Coercion uint8

const (
	CoerceAny Coercion = iota // custom scalar, or no check
	CoerceBoolean
	CoerceInt
	CoerceFloat
	CoerceString
	CoerceID
	CoerceEnum
)

// Field is one entry of a Concrete shape.
type Field struct {
	// Source is the bound operation field this descriptor was built from.
	Source operation.FieldID

	// ResponseKey is the key the client sees (alias or field name).
	ResponseKey string

	// WireKey is the key the subgraph's response carries this field under.
	// Subgraph queries forward the client's alias, so this is the response
	// key; it diverges only when a rename rule rewrites the wire name.
	WireKey string

	// Wrapping is this field's nullability and list-depth wrapping.
	Wrapping federation.Wrapping

	// Nested is the shape of the field's value, non-nil for any
	// object/interface/union-typed field (nil for scalars and enums). For a
	// list field, Nested still describes one element; Wrapping carries the
	// list depth itself.
	Nested *Shape

	// Coercion is the scalar rule for a leaf field (Nested == nil);
	// EnumValues is the declared value set when Coercion is CoerceEnum.
	Coercion   Coercion
	EnumValues []string
}
