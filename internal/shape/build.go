package shape

import (
	"sort"

	"github.com/n9te9/federation-gateway/internal/federation"
	"github.com/n9te9/federation-gateway/internal/operation"
	"github.com/n9te9/federation-gateway/internal/supergraph"
)

// builder carries the read-only context every recursive call needs: the
// schema (for field/type lookups) and the operation (for dereferencing the
// FieldIDs the shape is built from).
type builder struct {
	sg *supergraph.Supergraph
	op *operation.Operation
}

// Build constructs the output shape for a selection set (fids) against typ,
// the way internal/planner's finalised steps and internal/executor's
// response merger both need it: recursively, following the operation's own
// field tree exactly as it was bound, with no awareness of which subgraph
// fetch ultimately resolves which field; that split is solutionspace's and
// steiner's concern, not the response contract's.
func Build(sg *supergraph.Supergraph, op *operation.Operation, typ supergraph.TypeID, fids []operation.FieldID) (*Shape, error) {
	b := &builder{sg: sg, op: op}
	return b.build(typ, fids)
}

// BuildRoot constructs the shape of an entire operation's response, rooted
// at its root type and top-level selected fields.
func BuildRoot(sg *supergraph.Supergraph, op *operation.Operation) (*Shape, error) {
	return Build(sg, op, op.RootType, op.Root)
}

func (b *builder) build(typ supergraph.TypeID, fids []operation.FieldID) (*Shape, error) {
	td := b.sg.Type(typ)
	switch td.Kind {
	case supergraph.KindInterface, supergraph.KindUnion:
		return b.buildPolymorphic(typ, td, fids)
	default:
		fields, err := b.buildFields(fids)
		if err != nil {
			return nil, err
		}
		return &Shape{Kind: Concrete, Type: typ, Name: td.Name, Fields: fields}, nil
	}
}

// buildPolymorphic splits fids by their bound TypeCondition: fields
// selected directly on the interface/union (TypeCondition == typ) apply to
// every runtime type and seed Default; fields pulled in under a narrower
// inline fragment (TypeCondition == one concrete member) apply only to that
// member's Variant, layered on top of the shared set.
func (b *builder) buildPolymorphic(typ supergraph.TypeID, td *supergraph.TypeDef, fids []operation.FieldID) (*Shape, error) {
	members := td.ImplementedBy
	if td.Kind == supergraph.KindUnion {
		members = td.UnionMembers
	}

	sh := &Shape{Kind: Polymorphic, Type: typ, Name: td.Name, Variants: make(map[supergraph.TypeID]*Shape, len(members))}

	sharedFids := b.fieldsForTypeCondition(fids, typ)
	sharedFields, err := b.buildFields(sharedFids)
	if err != nil {
		return nil, err
	}
	sh.Default = &Shape{Kind: Concrete, Type: typ, Name: td.Name, Fields: sharedFields}

	for _, member := range members {
		memberName := b.sg.Type(member).Name
		narrowFids := b.fieldsForTypeCondition(fids, member)
		if len(narrowFids) == 0 {
			// This member has no field narrowed onto it specifically; it
			// still inherits every shared field, so its shape is Default's.
			sh.Variants[member] = &Shape{Kind: Concrete, Type: member, Name: memberName, Fields: sharedFields}
			continue
		}
		combined := append(append([]operation.FieldID{}, sharedFids...), narrowFids...)
		fields, err := b.buildFields(combined)
		if err != nil {
			return nil, err
		}
		sh.Variants[member] = &Shape{Kind: Concrete, Type: member, Name: memberName, Fields: fields}
	}

	return sh, nil
}

// fieldsForTypeCondition returns the subset of fids whose bound
// TypeCondition matches typ exactly.
func (b *builder) fieldsForTypeCondition(fids []operation.FieldID, typ supergraph.TypeID) []operation.FieldID {
	var out []operation.FieldID
	for _, fid := range fids {
		if b.op.Field(fid).TypeCondition == typ {
			out = append(out, fid)
		}
	}
	return out
}

// buildFields turns a flat list of sibling operation fields into a
// canonically-ordered Field list, recursing into any composite-typed
// field's own sub-selection.
func (b *builder) buildFields(fids []operation.FieldID) ([]Field, error) {
	out := make([]Field, 0, len(fids))
	for _, fid := range fids {
		f := b.op.Field(fid)

		if f.IsTypename {
			out = append(out, Field{
				Source:      fid,
				ResponseKey: f.ResponseKey,
				WireKey:     f.ResponseKey,
				Wrapping:    federation.NewWrapping(true),
			})
			continue
		}

		fd := b.sg.Field(f.Def)
		// The subgraph query forwards the client's alias, so the value
		// comes back under the response key, not the schema field name.
		field := Field{
			Source:      fid,
			ResponseKey: f.ResponseKey,
			WireKey:     f.ResponseKey,
			Wrapping:    fd.Wrapping,
		}
		if len(f.SubSelection) > 0 {
			nested, err := b.build(fd.NamedType, f.SubSelection)
			if err != nil {
				return nil, err
			}
			field.Nested = nested
		} else {
			field.Coercion, field.EnumValues = b.coercionFor(fd.NamedType)
		}
		out = append(out, field)
	}
	sortFields(out)
	return out, nil
}

// coercionFor maps a leaf field's named type onto its merge-time scalar
// rule. Custom scalars accept anything.
func (b *builder) coercionFor(typ supergraph.TypeID) (Coercion, []string) {
	td := b.sg.Type(typ)
	if td.Kind == supergraph.KindEnum {
		return CoerceEnum, td.EnumValues
	}
	switch td.Name {
	case "Boolean":
		return CoerceBoolean, nil
	case "Int":
		return CoerceInt, nil
	case "Float":
		return CoerceFloat, nil
	case "String":
		return CoerceString, nil
	case "ID":
		return CoerceID, nil
	}
	return CoerceAny, nil
}

// sortFields applies the canonical (response-key, document-position)
// ordering: it lets two partitions contributing to the
// same shape agree on field order without coordinating, and gives the
// merge-rule walk in merge.go a stable key to zip fields by.
func sortFields(fields []Field) {
	sort.SliceStable(fields, func(i, j int) bool {
		if fields[i].ResponseKey != fields[j].ResponseKey {
			return fields[i].ResponseKey < fields[j].ResponseKey
		}
		return fields[i].Source < fields[j].Source
	})
}
