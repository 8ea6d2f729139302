package supergraph

// synthesizeResolvers populates the Resolvers arena from the federation
// metadata gathered while parsing the SDL. Root-level fields get one
// ResolverRootField per subgraph that exposes them, or a
// ResolverFieldExtension where an @extension__directive marks the field as
// served by a pluggable extension in that subgraph. Entities get one
// ResolverEntityFetch per resolvable @key per subgraph, plus one
// ResolverLookup per @composite__lookup root field returning them, which is
// how a subgraph with only non-resolvable keys is still reachable.
// Explicit arena entries, rather than an implicit lookup at walk time, are
// what let internal/solutionspace treat "how do I reach this field"
// uniformly regardless of resolver kind.
func (b *builder) synthesizeResolvers() {
	sg := b.sg
	sg.entityResolversByType = make(map[TypeID][]ResolverID)

	rootTypes := map[TypeID]bool{}
	for _, rt := range []TypeID{sg.QueryType, sg.MutationType, sg.SubscriptionType} {
		if rt != NoType {
			rootTypes[rt] = true
		}
	}

	for ti := range sg.Types {
		td := &sg.Types[TypeID(ti)]
		if rootTypes[TypeID(ti)] {
			for _, fid := range td.FieldIDs {
				fd := &sg.Fields[fid]
				for _, sub := range fd.SubgraphIDs {
					kind := ResolverRootField
					if b.extensionFields[fid][sub] {
						kind = ResolverFieldExtension
					}
					rid := ResolverID(len(sg.Resolvers))
					sg.Resolvers = append(sg.Resolvers, ResolverDef{
						Kind:     kind,
						Subgraph: sub,
						Field:    fid,
					})
					fd.Resolvers = append(fd.Resolvers, rid)
				}
			}
			continue
		}

		if !td.IsEntity {
			continue
		}
		for ki := range td.Keys {
			key := td.Keys[ki]
			if !key.Resolvable {
				continue
			}
			rid := ResolverID(len(sg.Resolvers))
			k := key
			sg.Resolvers = append(sg.Resolvers, ResolverDef{
				Kind:       ResolverEntityFetch,
				Subgraph:   key.Subgraph,
				EntityType: TypeID(ti),
				Key:        &k,
			})
			sg.entityResolversByType[TypeID(ti)] = append(sg.entityResolversByType[TypeID(ti)], rid)
		}
	}

	b.synthesizeLookupResolvers()
}

// synthesizeLookupResolvers turns each @composite__lookup root field into a
// ResolverLookup for the entity type it returns: one per subgraph the field
// exists in, keyed by that subgraph's matching @key. The key must be
// addressable through the lookup field's arguments (every top-level key
// field has a same-named argument), since the executor calls the field with
// the key values instead of posting an _entities query.
func (b *builder) synthesizeLookupResolvers() {
	sg := b.sg
	for _, fid := range b.lookupFields {
		fd := &sg.Fields[fid]
		entity := fd.NamedType
		td := &sg.Types[entity]
		if !td.IsEntity {
			continue
		}
		for _, sub := range fd.SubgraphIDs {
			key := b.lookupKeyFor(fd, td, sub)
			if key == nil {
				continue
			}
			rid := ResolverID(len(sg.Resolvers))
			sg.Resolvers = append(sg.Resolvers, ResolverDef{
				Kind:       ResolverLookup,
				Subgraph:   sub,
				Field:      fid,
				EntityType: entity,
				Key:        key,
			})
			sg.entityResolversByType[entity] = append(sg.entityResolversByType[entity], rid)
		}
	}
}

// lookupKeyFor picks the subgraph's first @key whose top-level fields all
// have a same-named argument on the lookup field.
func (b *builder) lookupKeyFor(fd *FieldDef, td *TypeDef, sub SubgraphID) *Key {
	argNames := make(map[string]bool, len(fd.ArgIDs))
	for _, aid := range fd.ArgIDs {
		argNames[b.sg.Args[aid].Name] = true
	}
	for ki := range td.Keys {
		key := td.Keys[ki]
		if key.Subgraph != sub {
			continue
		}
		addressable := len(key.FieldSet) > 0
		for _, ref := range key.FieldSet {
			if !argNames[b.sg.Fields[ref.Field].Name] {
				addressable = false
				break
			}
		}
		if addressable {
			k := key
			return &k
		}
	}
	return nil
}
