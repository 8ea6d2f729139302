package supergraph

import (
	"fmt"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
)

// BuildError is the structured domain error construction fails with,
// naming the offending site and (when available) its source span.
type BuildError struct {
	Site    string
	Span    string
	Message string
}

func (e *BuildError) Error() string {
	if e.Span == "" {
		return fmt.Sprintf("supergraph: %s: %s", e.Site, e.Message)
	}
	return fmt.Sprintf("supergraph: %s (%s): %s", e.Site, e.Span, e.Message)
}

func buildErr(site, format string, args ...any) *BuildError {
	return &BuildError{Site: site, Message: fmt.Sprintf(format, args...)}
}

// builder holds the scratch state used while constructing a Supergraph. It
// is discarded once Build returns; only the finished Supergraph escapes.
type builder struct {
	sg  *Supergraph
	doc *ast.Document

	graphTokenToSubgraph map[string]SubgraphID
	pendingDerive        []pendingDerive
	pendingImplements    []pendingImplements
	pendingInterfaceObj  []pendingInterfaceObj
	rawKeyFieldSets      []rawKeyFieldSet
	rawRequires          []rawFieldSet

	// lookupFields holds @composite__lookup root fields; extensionFields
	// marks (field, subgraph) pairs resolved through @extension__directive.
	// Both are lowered into resolver definitions by synthesizeResolvers.
	lookupFields    []FieldID
	extensionFields map[FieldID]map[SubgraphID]bool
}

type rawKeyFieldSet struct {
	typ      TypeID
	keyIndex int
	raw      string
}

type rawFieldSetKind uint8

const (
	rawRequires rawFieldSetKind = iota
	rawProvides
)

type rawFieldSet struct {
	field    FieldID
	subgraph SubgraphID
	raw      string
	kind     rawFieldSetKind
}

type pendingDerive struct {
	field FieldID
	raw   string
}

type pendingImplements struct {
	objectType TypeID
	iface      string
}

type pendingInterfaceObj struct {
	objectType TypeID
	subgraph   SubgraphID
}

// Build parses a composed supergraph SDL document (the federation v2 "join"
// IR: `@join__graph`/`@join__type`/`@join__field`/`@join__implements` plus
// this gateway's `@composite__derive` extension) and produces an immutable,
// ID-addressed Supergraph. The planner never sees raw subgraph SDL;
// composition into this post-composition form happens upstream (the
// `internal/registry` service, or the `compose` CLI command).
func Build(sdl []byte) (*Supergraph, error) {
	l := lexer.New(string(sdl))
	p := parser.New(l)
	doc := p.ParseDocument()
	if len(p.Errors()) > 0 {
		return nil, fmt.Errorf("supergraph: parse error: %v", p.Errors())
	}

	b := &builder{
		sg: &Supergraph{
			typeByName:     make(map[string]TypeID),
			subgraphByName: make(map[string]SubgraphID),
		},
		doc:                  doc,
		graphTokenToSubgraph: make(map[string]SubgraphID),
		extensionFields:      make(map[FieldID]map[SubgraphID]bool),
	}

	if err := b.registerSubgraphs(); err != nil {
		return nil, err
	}
	if err := b.registerTypeNames(); err != nil {
		return nil, err
	}
	if err := b.populateTypes(); err != nil {
		return nil, err
	}
	if err := b.resolveDeferred(); err != nil {
		return nil, err
	}
	b.resolveRootTypes()
	if err := b.validate(); err != nil {
		return nil, err
	}
	b.synthesizeResolvers()
	return b.sg, nil
}

// registerSubgraphs finds the `enum join__Graph { ... }` definition and
// creates one SubgraphDef per enum value, reading `@join__graph(name, url)`.
func (b *builder) registerSubgraphs() error {
	for _, def := range b.doc.Definitions {
		enumDef, ok := def.(*ast.EnumTypeDefinition)
		if !ok || enumDef.Name.String() != "join__Graph" {
			continue
		}
		for _, v := range enumDef.Values {
			token := v.Name.String()
			name := token
			url := ""
			transport := TransportHTTP
			if d, ok := findDirective(v.Directives, "join__graph"); ok {
				if n, ok := stringArg(d, "name"); ok {
					name = n
				}
				if u, ok := stringArg(d, "url"); ok {
					url = u
				}
				if t, ok := stringArg(d, "transport"); ok && t == "grpc" {
					transport = TransportGRPC
				}
			}
			id := SubgraphID(len(b.sg.Subgraphs))
			b.sg.Subgraphs = append(b.sg.Subgraphs, SubgraphDef{Name: name, URL: url, Transport: transport})
			b.sg.subgraphByName[name] = id
			b.graphTokenToSubgraph[token] = id
		}
	}
	if len(b.sg.Subgraphs) == 0 {
		return buildErr("join__Graph", "composed SDL has no join__Graph enum; at least one subgraph must be declared")
	}
	return nil
}

// registerTypeNames reserves a TypeID for every named type definition so
// forward references (a field whose type is declared later in the document)
// resolve correctly.
func (b *builder) registerTypeNames() error {
	for _, def := range b.doc.Definitions {
		var name string
		var kind TypeKind
		switch d := def.(type) {
		case *ast.ScalarTypeDefinition:
			name, kind = d.Name.String(), KindScalar
		case *ast.EnumTypeDefinition:
			if d.Name.String() == "join__Graph" {
				continue
			}
			name, kind = d.Name.String(), KindEnum
		case *ast.InputObjectTypeDefinition:
			name, kind = d.Name.String(), KindInputObject
		case *ast.ObjectTypeDefinition:
			name, kind = d.Name.String(), KindObject
		case *ast.InterfaceTypeDefinition:
			name, kind = d.Name.String(), KindInterface
		case *ast.UnionTypeDefinition:
			name, kind = d.Name.String(), KindUnion
		default:
			continue
		}
		if _, exists := b.sg.typeByName[name]; exists {
			continue
		}
		id := TypeID(len(b.sg.Types))
		b.sg.Types = append(b.sg.Types, TypeDef{Kind: kind, Name: name})
		b.sg.typeByName[name] = id
	}
	return registerBuiltinScalars(b)
}

func registerBuiltinScalars(b *builder) error {
	for _, name := range []string{"Int", "Float", "String", "Boolean", "ID"} {
		if _, exists := b.sg.typeByName[name]; exists {
			continue
		}
		id := TypeID(len(b.sg.Types))
		b.sg.Types = append(b.sg.Types, TypeDef{Kind: KindScalar, Name: name})
		b.sg.typeByName[name] = id
	}
	return nil
}

func (b *builder) namedTypeID(name string) (TypeID, bool) {
	id, ok := b.sg.typeByName[name]
	return id, ok
}

func (b *builder) populateTypes() error {
	for _, def := range b.doc.Definitions {
		switch d := def.(type) {
		case *ast.ObjectTypeDefinition:
			ifaces := make([]ast.Type, len(d.Interfaces))
			for i, iface := range d.Interfaces {
				ifaces[i] = iface
			}
			if err := b.populateObjectLike(d.Name.String(), d.Fields, d.Directives, ifaces); err != nil {
				return err
			}
		case *ast.InterfaceTypeDefinition:
			if err := b.populateObjectLike(d.Name.String(), d.Fields, d.Directives, nil); err != nil {
				return err
			}
		case *ast.UnionTypeDefinition:
			tid := b.sg.typeByName[d.Name.String()]
			members := make([]TypeID, 0, len(d.Types))
			for _, t := range d.Types {
				memberName, err := namedTypeNameOf(t)
				if err != nil {
					return buildErr(d.Name.String(), "union member: %v", err)
				}
				mid, ok := b.namedTypeID(memberName)
				if !ok {
					return buildErr(d.Name.String(), "union member %q is not a known type", memberName)
				}
				members = append(members, mid)
			}
			b.sg.Types[tid].UnionMembers = members
		case *ast.EnumTypeDefinition:
			if d.Name.String() == "join__Graph" {
				continue
			}
			tid := b.sg.typeByName[d.Name.String()]
			values := make([]string, 0, len(d.Values))
			for _, v := range d.Values {
				values = append(values, v.Name.String())
			}
			b.sg.Types[tid].EnumValues = values
		case *ast.InputObjectTypeDefinition:
			tid := b.sg.typeByName[d.Name.String()]
			fids := make([]FieldID, 0, len(d.Fields))
			for _, f := range d.Fields {
				fid, err := b.newPlainField(tid, f.Name.String(), f.Type)
				if err != nil {
					return err
				}
				fids = append(fids, fid)
			}
			b.sg.Types[tid].InputFieldIDs = fids
		}
	}
	return nil
}

func (b *builder) newPlainField(parent TypeID, name string, t ast.Type) (FieldID, error) {
	wrapping, named, err := astTypeToWrapping(t)
	if err != nil {
		return NoField, buildErr(name, "parsing type: %v", err)
	}
	namedID, ok := b.namedTypeID(named)
	if !ok {
		return NoField, buildErr(name, "unknown named type %q", named)
	}
	id := FieldID(len(b.sg.Fields))
	b.sg.Fields = append(b.sg.Fields, FieldDef{
		Name:       name,
		ParentType: parent,
		NamedType:  namedID,
		Wrapping:   wrapping,
	})
	return id, nil
}

// populateObjectLike fills in the fields, keys, and per-subgraph federation
// metadata for an object or interface type definition.
func (b *builder) populateObjectLike(name string, fields []*ast.FieldDefinition, directives []*ast.Directive, interfaces []ast.Type) error {
	tid := b.sg.typeByName[name]
	td := &b.sg.Types[tid]

	for _, i := range interfaces {
		ifaceName, err := namedTypeNameOf(i)
		if err != nil {
			return buildErr(name, "implements clause: %v", err)
		}
		iid, ok := b.namedTypeID(ifaceName)
		if !ok {
			return buildErr(name, "implements unknown interface %q", ifaceName)
		}
		td.Interfaces = append(td.Interfaces, iid)
		b.pendingImplements = append(b.pendingImplements, pendingImplements{objectType: tid, iface: ifaceName})
	}

	joinTypes := allDirectives(directives, "join__type")
	for _, jt := range joinTypes {
		graphTok, _ := stringArgEnum(jt, "graph")
		sub, ok := b.graphTokenToSubgraph[graphTok]
		if !ok {
			return buildErr(name, "join__type references unknown graph %q", graphTok)
		}
		if boolArg(jt, "isInterfaceObject", false) {
			td.InterfaceObjectSubgraphs = append(td.InterfaceObjectSubgraphs, sub)
		}
		if keyRaw, ok := stringArg(jt, "key"); ok && keyRaw != "" {
			td.IsEntity = true
			resolvable := boolArg(jt, "resolvable", true)
			td.Keys = append(td.Keys, Key{Subgraph: sub, Resolvable: resolvable, FieldSet: nil /* resolved in resolveDeferred */})
			b.rawKeyFieldSets = append(b.rawKeyFieldSets, rawKeyFieldSet{typ: tid, keyIndex: len(td.Keys) - 1, raw: keyRaw})
		}
	}

	for _, f := range fields {
		fid, err := b.newPlainField(tid, f.Name.String(), f.Type)
		if err != nil {
			return err
		}
		fd := &b.sg.Fields[fid]
		fd.Requires = make(map[SubgraphID][]KeyFieldRef)
		fd.Provides = make(map[SubgraphID][]KeyFieldRef)
		td.FieldIDs = append(td.FieldIDs, fid)

		args, err := b.buildArgs(fid, f.Arguments)
		if err != nil {
			return err
		}
		fd.ArgIDs = args

		if hasDirective(f.Directives, "shareable") {
			fd.Shareable = true
		}

		joinFields := allDirectives(f.Directives, "join__field")
		if len(joinFields) == 0 {
			// Open Question 2: absent @join__field means "exists in every
			// subgraph the type is joined into", the permissive default.
			for _, jt := range joinTypes {
				graphTok, _ := stringArgEnum(jt, "graph")
				sub := b.graphTokenToSubgraph[graphTok]
				fd.SubgraphIDs = append(fd.SubgraphIDs, sub)
			}
		}
		for _, jf := range joinFields {
			graphTok, hasGraph := stringArgEnum(jf, "graph")
			var sub SubgraphID
			if hasGraph {
				s, ok := b.graphTokenToSubgraph[graphTok]
				if !ok {
					return buildErr(fd.Name, "join__field references unknown graph %q", graphTok)
				}
				sub = s
			}
			if boolArg(jf, "external", false) {
				fd.ExternalIn = append(fd.ExternalIn, sub)
			} else if hasGraph {
				fd.SubgraphIDs = append(fd.SubgraphIDs, sub)
			}
			if req, ok := stringArg(jf, "requires"); ok && req != "" {
				b.rawRequires = append(b.rawRequires, rawFieldSet{field: fid, subgraph: sub, raw: req, kind: rawRequires})
			}
			if prov, ok := stringArg(jf, "provides"); ok && prov != "" {
				b.rawRequires = append(b.rawRequires, rawFieldSet{field: fid, subgraph: sub, raw: prov, kind: rawProvides})
			}
			if from, ok := stringArg(jf, "override"); ok && from != "" {
				fromSub, ok := b.sg.subgraphByName[from]
				if !ok {
					return buildErr(fd.Name, "override references unknown subgraph %q", from)
				}
				var label *OverrideLabel
				if l, ok := stringArg(jf, "overrideLabel"); ok {
					label = parseOverrideLabel(l)
				}
				fd.Overrides = append(fd.Overrides, OverrideInfo{In: sub, From: fromSub, Label: label})
			}
		}

		if d, ok := findDirective(f.Directives, "composite__derive"); ok {
			if from, ok := stringArg(d, "from"); ok {
				b.pendingDerive = append(b.pendingDerive, pendingDerive{field: fid, raw: from})
			}
		}

		if hasDirective(f.Directives, "composite__lookup") {
			b.lookupFields = append(b.lookupFields, fid)
		}
		for _, ed := range allDirectives(f.Directives, "extension__directive") {
			graphTok, ok := stringArgEnum(ed, "graph")
			if !ok {
				continue
			}
			sub, ok := b.graphTokenToSubgraph[graphTok]
			if !ok {
				return buildErr(fd.Name, "extension__directive references unknown graph %q", graphTok)
			}
			if b.extensionFields[fid] == nil {
				b.extensionFields[fid] = make(map[SubgraphID]bool)
			}
			b.extensionFields[fid][sub] = true
		}
	}
	return nil
}

// stringArgEnum reads an argument whose value is a bare GraphQL enum token
// (e.g. `graph: PRODUCTS`), which Value.String() renders unquoted.
func stringArgEnum(d *ast.Directive, name string) (string, bool) {
	for _, arg := range d.Arguments {
		if arg.Name.String() == name {
			return arg.Value.String(), true
		}
	}
	return "", false
}

func (b *builder) buildArgs(parent FieldID, args []*ast.InputValueDefinition) ([]ArgID, error) {
	ids := make([]ArgID, 0, len(args))
	for _, a := range args {
		wrapping, named, err := astTypeToWrapping(a.Type)
		if err != nil {
			return nil, buildErr(a.Name.String(), "parsing argument type: %v", err)
		}
		namedID, ok := b.namedTypeID(named)
		if !ok {
			return nil, buildErr(a.Name.String(), "unknown named type %q", named)
		}
		id := ArgID(len(b.sg.Args))
		ad := ArgDef{Name: a.Name.String(), ParentField: parent, NamedType: namedID, Wrapping: wrapping}
		if a.DefaultValue != nil {
			ad.HasDefault = true
			ad.DefaultValue = a.DefaultValue.String()
		}
		b.sg.Args = append(b.sg.Args, ad)
		ids = append(ids, id)
	}
	return ids, nil
}

func (b *builder) resolveRootTypes() {
	names := []string{"Query", "Mutation", "Subscription"}
	ids := make([]TypeID, 3)
	for i, n := range names {
		if id, ok := b.sg.typeByName[n]; ok {
			ids[i] = id
		} else {
			ids[i] = NoType
		}
	}
	b.sg.QueryType, b.sg.MutationType, b.sg.SubscriptionType = ids[0], ids[1], ids[2]
}
