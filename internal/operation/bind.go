package operation

import (
	"fmt"
	"strings"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
	gqlast "github.com/vektah/gqlparser/v2/ast"
	gqlparser "github.com/vektah/gqlparser/v2/parser"

	"github.com/n9te9/federation-gateway/internal/gwerr"
	"github.com/n9te9/federation-gateway/internal/supergraph"
)

// binder holds the scratch state used while binding one operation. Only the
// finished Operation escapes; everything else is discarded when Bind
// returns, matching the supergraph package's builder idiom.
type binder struct {
	sg        *supergraph.Supergraph
	fragments map[string]*ast.FragmentDefinition
	ctx       *coerceCtx
	op        *Operation
	nextPos   int

	// visiting drives fragment-cycle detection: a fragment currently on
	// the expansion stack is revisited only if the spread graph cycles.
	visiting []string
}

// Bind selects the named operation (or the sole one) from doc, inlines
// fragment spreads, resolves every field against sg, coerces arguments, and
// prunes/marks subtrees per @skip and @include. variables is the already
// JSON-decoded variables object from the request.
func Bind(doc *ast.Document, operationName string, variables map[string]any, sg *supergraph.Supergraph) (*Operation, error) {
	opDef, err := selectOperation(doc, operationName)
	if err != nil {
		return nil, err
	}

	b := &binder{
		sg:        sg,
		fragments: collectFragments(doc),
		ctx:       &coerceCtx{variables: variables},
		op:        &Operation{Name: operationName},
	}

	switch opDef.Operation {
	case ast.Mutation:
		b.op.Kind = KindMutation
		b.op.RootType = sg.MutationType
	case ast.Subscription:
		b.op.Kind = KindSubscription
		b.op.RootType = sg.SubscriptionType
	default:
		b.op.Kind = KindQuery
		b.op.RootType = sg.QueryType
	}
	if b.op.RootType == supergraph.NoType {
		return nil, &gwerr.Error{Code: gwerr.CodeOperationValidation, Message: fmt.Sprintf("operation: schema has no root %s type", b.op.Kind)}
	}

	roots, err := b.bindSelectionSet(opDef.SelectionSet, b.op.RootType, b.op.RootType)
	if err != nil {
		return nil, err
	}
	b.op.Root = roots
	return b.op, nil
}

// selectOperation picks the named operation, or the sole operation when the
// document defines exactly one and no name was requested.
func selectOperation(doc *ast.Document, name string) (*ast.OperationDefinition, error) {
	var ops []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			ops = append(ops, op)
		}
	}
	if len(ops) == 0 {
		return nil, &gwerr.Error{Code: gwerr.CodeOperationValidation, Message: "operation: document declares no operations"}
	}
	if name == "" {
		if len(ops) > 1 {
			return nil, &gwerr.Error{Code: gwerr.CodeOperationValidation, Message: "operation: document declares multiple operations; an operation name is required"}
		}
		return ops[0], nil
	}
	for _, op := range ops {
		if op.Name != nil && op.Name.String() == name {
			return op, nil
		}
	}
	return nil, &gwerr.Error{Code: gwerr.CodeOperationValidation, Message: fmt.Sprintf("operation: no operation named %q", name)}
}

func collectFragments(doc *ast.Document) map[string]*ast.FragmentDefinition {
	frags := make(map[string]*ast.FragmentDefinition)
	for _, def := range doc.Definitions {
		if fd, ok := def.(*ast.FragmentDefinition); ok {
			frags[fd.Name.String()] = fd
		}
	}
	return frags
}

// ParseDocument parses an executable GraphQL document using the same
// parser the supergraph SDL is built with.
func ParseDocument(src []byte) (*ast.Document, error) {
	// A second, independent parse through gqlparser runs first: its lexer
	// rejects a handful of malformed documents the binder would otherwise
	// have to guard against field-by-field, and its errors carry locations
	// pointing into the submitted document.
	if _, gqlErr := gqlparser.ParseQuery(&gqlast.Source{Name: "operation.graphql", Input: string(src)}); gqlErr != nil {
		return nil, &gwerr.Error{Code: gwerr.CodeOperationValidation, Message: fmt.Sprintf("operation: %v", gqlErr)}
	}

	l := lexer.New(string(src))
	p := parser.New(l)
	doc := p.ParseDocument()
	if len(p.Errors()) > 0 {
		return nil, &gwerr.Error{Code: gwerr.CodeOperationValidation, Message: fmt.Sprintf("operation: parse error: %v", p.Errors())}
	}
	return doc, nil
}

// flatSelection is one selection after inline-fragment and fragment-spread
// expansion but before field binding: a bare field plus the narrowest type
// condition under which it applies.
type flatSelection struct {
	field     *ast.Field
	condition supergraph.TypeID // condition, or parentType if unconditional
}

// bindSelectionSet inlines every fragment spread and inline fragment under
// selections, then binds each resulting field against parentType.
func (b *binder) bindSelectionSet(selections []ast.Selection, parentType, condition supergraph.TypeID) ([]FieldID, error) {
	flat, err := b.flatten(selections, condition)
	if err != nil {
		return nil, err
	}

	ids := make([]FieldID, 0, len(flat))
	for _, fs := range flat {
		id, skip, err := b.bindField(fs.field, parentType, fs.condition)
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// flatten recursively expands fragment spreads and inline fragments,
// producing a flat list of fields tagged with their effective type
// condition. Cycle detection happens here: a fragment spread reachable from
// itself (directly or transitively) fails binding with the cycle path.
func (b *binder) flatten(selections []ast.Selection, condition supergraph.TypeID) ([]flatSelection, error) {
	var out []flatSelection
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			out = append(out, flatSelection{field: s, condition: condition})
		case *ast.InlineFragment:
			cond := condition
			if s.TypeCondition != nil {
				name := s.TypeCondition.Name.String()
				tid, ok := b.sg.TypeByName(name)
				if !ok {
					return nil, &gwerr.Error{Code: gwerr.CodeOperationValidation, Message: fmt.Sprintf("operation: inline fragment on unknown type %q", name)}
				}
				cond = tid
			}
			inner, err := b.flatten(s.SelectionSet, cond)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
		case *ast.FragmentSpread:
			name := s.Name.String()
			inner, err := b.flattenSpread(name, condition)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
		default:
			return nil, &gwerr.Error{Code: gwerr.CodeOperationValidation, Message: fmt.Sprintf("operation: unsupported selection node %T", sel)}
		}
	}
	return out, nil
}

func (b *binder) flattenSpread(name string, outerCondition supergraph.TypeID) ([]flatSelection, error) {
	for _, seen := range b.visiting {
		if seen == name {
			path := append(append([]string{}, b.visiting...), name)
			return nil, &gwerr.Error{
				Code:    gwerr.CodeOperationValidation,
				Message: fmt.Sprintf("operation: fragment cycle %s", strings.Join(path, " → ")),
			}
		}
	}
	fd, ok := b.fragments[name]
	if !ok {
		return nil, &gwerr.Error{Code: gwerr.CodeOperationValidation, Message: fmt.Sprintf("operation: unknown fragment %q", name)}
	}

	cond := outerCondition
	typeName := fd.TypeCondition.Name.String()
	tid, ok := b.sg.TypeByName(typeName)
	if !ok {
		return nil, &gwerr.Error{Code: gwerr.CodeOperationValidation, Message: fmt.Sprintf("operation: fragment %q targets unknown type %q", name, typeName)}
	}
	cond = tid

	b.visiting = append(b.visiting, name)
	inner, err := b.flatten(fd.SelectionSet, cond)
	b.visiting = b.visiting[:len(b.visiting)-1]
	return inner, err
}

// bindField resolves one flattened field against parentType, coerces its
// arguments, applies @skip/@include, and recurses into its sub-selection.
// skip is true when a statically-known @skip/@include gate excludes the
// field from the tree entirely.
func (b *binder) bindField(f *ast.Field, parentType, condition supergraph.TypeID) (id FieldID, skip bool, err error) {
	name := f.Name.String()
	responseKey := name
	if f.Alias != nil && f.Alias.String() != "" {
		responseKey = f.Alias.String()
	}

	include, dispensable, err := b.evalConditionalGates(f.Directives)
	if err != nil {
		return NoField, false, err
	}
	if !include {
		return NoField, true, nil
	}

	field := Field{
		ResponseKey:   responseKey,
		ParentType:    parentType,
		TypeCondition: condition,
		QueryPosition: b.nextPos,
		Dispensable:   dispensable,
	}
	b.nextPos++

	switch name {
	case "__typename":
		field.IsTypename = true
		field.Def = supergraph.NoField
	case "__schema", "__type":
		// Schema introspection has no backing subgraph to plan against;
		// forwarding the selection would silently return the wrong data,
		// so it is rejected outright.
		return NoField, false, &gwerr.Error{
			Code:    gwerr.CodeOperationValidation,
			Message: fmt.Sprintf("operation: introspection field %q is not supported", name),
		}
	default:
		fid, ok := b.sg.FieldByName(condition, name)
		if !ok {
			return NoField, false, &gwerr.Error{
				Code:    gwerr.CodeOperationValidation,
				Message: fmt.Sprintf("operation: unknown field %q on type %q", name, b.sg.Type(condition).Name),
			}
		}
		field.Def = fid

		args, err := b.bindArguments(fid, f.Arguments)
		if err != nil {
			return NoField, false, err
		}
		field.Arguments = args
	}

	id = FieldID(len(b.op.Fields))
	b.op.Fields = append(b.op.Fields, field)

	if len(f.SelectionSet) > 0 {
		childParent := condition
		if !field.IsTypename {
			childParent = b.sg.Field(field.Def).NamedType
		}
		subIDs, err := b.bindSelectionSet(f.SelectionSet, childParent, childParent)
		if err != nil {
			return NoField, false, err
		}
		b.op.Fields[id].SubSelection = subIDs
	}
	return id, false, nil
}

// bindArguments coerces a field's arguments against its declared argument
// definitions, applying defaults for omitted ones.
func (b *binder) bindArguments(fid supergraph.FieldID, args []*ast.Argument) ([]Arg, error) {
	fd := b.sg.Field(fid)
	byName := make(map[string]*ast.Argument, len(args))
	for _, a := range args {
		byName[a.Name.String()] = a
	}

	out := make([]Arg, 0, len(fd.ArgIDs))
	for _, aid := range fd.ArgIDs {
		ad := b.sg.Arg(aid)
		astArg, provided := byName[ad.Name]
		if !provided {
			if !ad.HasDefault {
				continue
			}
			out = append(out, Arg{Name: ad.Name, Value: Value{Kind: ValueString, Str: ad.DefaultValue}})
			continue
		}
		v, unknown, err := coerceValue(astArg.Value, b.ctx)
		if err != nil {
			return nil, &gwerr.Error{Code: gwerr.CodeBadRequest, Message: fmt.Sprintf("operation: argument %q of %q: %v", ad.Name, fd.Name, err)}
		}
		if unknown {
			continue
		}
		v = wrapIfBare(v, ad.Wrapping.ListDepth() > 0)
		out = append(out, Arg{Name: ad.Name, Value: v})
	}
	return out, nil
}

// evalConditionalGates evaluates @skip and @include directives in document
// order (later directives can re-exclude what an earlier one included,
// matching GraphQL's "any skip=true or include=false excludes" rule).
// include is false only when the gate is statically known to exclude the
// field. dispensable is true when a gate's `if` argument referenced a
// variable absent from the operation's variables: the field stays in the
// tree but is not a terminal the solver must cover.
func (b *binder) evalConditionalGates(directives []*ast.Directive) (include bool, dispensable bool, err error) {
	include = true
	for _, d := range directives {
		if d.Name != "skip" && d.Name != "include" {
			continue
		}
		var ifArg *ast.Argument
		for _, a := range d.Arguments {
			if a.Name.String() == "if" {
				ifArg = a
			}
		}
		if ifArg == nil {
			continue
		}
		v, unknown, err := coerceValue(ifArg.Value, b.ctx)
		if err != nil {
			return false, false, &gwerr.Error{Code: gwerr.CodeBadRequest, Message: fmt.Sprintf("operation: @%s(if: ...): %v", d.Name, err)}
		}
		if unknown {
			dispensable = true
			continue
		}
		cond, ok := boolLiteral(v)
		if !ok {
			dispensable = true
			continue
		}
		if d.Name == "skip" && cond {
			return false, false, nil
		}
		if d.Name == "include" && !cond {
			return false, false, nil
		}
	}
	return include, dispensable, nil
}
