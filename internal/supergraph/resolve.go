package supergraph

import "strings"

// resolveDeferred resolves everything that needed every type's fields to
// already exist: key/requires/provides selection sets, @join__implements,
// and @composite__derive mappings.
func (b *builder) resolveDeferred() error {
	for _, rk := range b.rawKeyFieldSets {
		refs, err := b.parseSelectionSet(fieldSetArg(rk.raw), rk.typ)
		if err != nil {
			return buildErr(b.sg.Types[rk.typ].Name, "parsing @key fields: %v", err)
		}
		b.sg.Types[rk.typ].Keys[rk.keyIndex].FieldSet = refs
	}

	for _, rf := range b.rawRequires {
		fd := &b.sg.Fields[rf.field]
		var scope TypeID
		if rf.kind == rawRequires {
			scope = fd.ParentType
		} else {
			scope = fd.NamedType
		}
		refs, err := b.parseSelectionSet(fieldSetArg(rf.raw), scope)
		if err != nil {
			return buildErr(fd.Name, "parsing field set: %v", err)
		}
		if rf.kind == rawRequires {
			fd.Requires[rf.subgraph] = refs
		} else {
			fd.Provides[rf.subgraph] = refs
		}
	}

	for _, pi := range b.pendingImplements {
		iid, ok := b.namedTypeID(pi.iface)
		if !ok {
			return buildErr(b.sg.Types[pi.objectType].Name, "implements unknown interface %q", pi.iface)
		}
		b.sg.Types[iid].ImplementedBy = append(b.sg.Types[iid].ImplementedBy, pi.objectType)
	}

	for _, pd := range b.pendingDerive {
		fd := &b.sg.Fields[pd.field]
		refs, err := b.parseSelectionSet(fieldSetArg(pd.raw), fd.ParentType)
		if err != nil {
			return buildErr(fd.Name, "parsing @composite__derive from: %v", err)
		}
		fd.Derive = &DeriveInfo{From: refs}
	}

	return nil
}

// parseSelectionSet parses a field-set token stream (as produced by
// fieldSetArg) against parentType, resolving each name to a FieldID and
// recursing into nested `{ ... }` groups for composite keys.
func (b *builder) parseSelectionSet(tokens []string, parentType TypeID) ([]KeyFieldRef, error) {
	var refs []KeyFieldRef
	for i := 0; i < len(tokens); i++ {
		name := tokens[i]
		if strings.HasPrefix(name, "{") {
			return nil, buildErr(b.sg.Types[parentType].Name, "unexpected nested selection without a preceding field name")
		}
		fid, ok := b.sg.FieldByName(parentType, name)
		if !ok {
			return nil, buildErr(b.sg.Types[parentType].Name, "field set references unknown field %q", name)
		}
		ref := KeyFieldRef{Field: fid}
		if i+1 < len(tokens) && strings.HasPrefix(tokens[i+1], "{") {
			inner := strings.TrimSuffix(strings.TrimPrefix(tokens[i+1], "{"), "}")
			nested, err := b.parseSelectionSet(fieldSetArg(inner), b.sg.Fields[fid].NamedType)
			if err != nil {
				return nil, err
			}
			ref.Nested = nested
			i++
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// validate enforces the construction-time federation invariants.
func (b *builder) validate() error {
	sg := b.sg
	for ti := range sg.Types {
		td := &sg.Types[ti]
		if !td.IsEntity {
			continue
		}
		for _, key := range td.Keys {
			if len(key.FieldSet) == 0 {
				return buildErr(td.Name, "@key(fields: ...) resolved to an empty field set")
			}
		}
	}

	for fi := range sg.Fields {
		fd := &sg.Fields[fi]
		for _, ov := range fd.Overrides {
			if !fd.ExistsIn(ov.From) && !fieldDeclaredIn(fd, ov.From) {
				return buildErr(fd.Name, "@override(from: %q) but field does not exist in that subgraph", sg.Subgraphs[ov.From].Name)
			}
		}
		if fd.Derive != nil {
			if !deriveCoversAKey(sg, fd) {
				return buildErr(fd.Name, "@composite__derive mapping does not cover any full key of the parent entity")
			}
		}
	}

	for ti := range sg.Types {
		td := &sg.Types[ti]
		for _, sub := range td.InterfaceObjectSubgraphs {
			if !hasKeyForSubgraph(td, sub) {
				return buildErr(td.Name, "@interfaceObject in subgraph %q has no matching @key", sg.Subgraphs[sub].Name)
			}
		}
	}

	return nil
}

func fieldDeclaredIn(fd *FieldDef, sub SubgraphID) bool {
	for _, s := range fd.SubgraphIDs {
		if s == sub {
			return true
		}
	}
	for _, s := range fd.ExternalIn {
		if s == sub {
			return true
		}
	}
	return false
}

func hasKeyForSubgraph(td *TypeDef, sub SubgraphID) bool {
	for _, k := range td.Keys {
		if k.Subgraph == sub {
			return true
		}
	}
	return false
}

// deriveCoversAKey reports whether fd.Derive.From names every field of at
// least one key declared on fd's parent entity type.
func deriveCoversAKey(sg *Supergraph, fd *FieldDef) bool {
	parent := &sg.Types[fd.ParentType]
	have := make(map[FieldID]bool, len(fd.Derive.From))
	for _, r := range fd.Derive.From {
		have[r.Field] = true
	}
	for _, key := range parent.Keys {
		covers := true
		for _, kf := range key.FieldSet {
			if !have[kf.Field] {
				covers = false
				break
			}
		}
		if covers && len(key.FieldSet) > 0 {
			return true
		}
	}
	return false
}
