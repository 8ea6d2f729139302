package executor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/n9te9/federation-gateway/internal/operation"
	"github.com/n9te9/federation-gateway/internal/planner"
	"github.com/n9te9/federation-gateway/internal/supergraph"
)

// queryBuilder renders one plan step into the GraphQL document sent to its
// subgraph. Arguments were already coerced to literals at bind time, so the
// printed query carries no variable definitions of its own; the only
// variable an emitted document ever declares is $representations on an
// entity fetch.
type queryBuilder struct {
	art  *planner.Artifact
	step *planner.Step
}

// BuildStepQuery renders step's subgraph query text. For a StepEntityFetch
// through _entities the returned variables carry the representations under
// the "representations" key; for a lookup fetch (key values inlined as
// arguments) and for a root step variables is nil.
func BuildStepQuery(art *planner.Artifact, step *planner.Step, representations []map[string]any) (string, map[string]any, error) {
	qb := &queryBuilder{art: art, step: step}
	if step.Kind == planner.StepEntityFetch {
		if len(representations) == 0 {
			return "", nil, fmt.Errorf("entity fetch step %d has no representations", step.ID)
		}
		if step.LookupField != supergraph.NoField {
			return qb.buildLookupQuery(representations)
		}
		return qb.buildEntityQuery(representations)
	}
	return qb.buildRootQuery()
}

func (qb *queryBuilder) buildRootQuery() (string, map[string]any, error) {
	var sb strings.Builder
	if qb.art.Operation().Kind == operation.KindMutation {
		sb.WriteString("mutation {\n")
	} else {
		sb.WriteString("query {\n")
	}
	for _, fid := range qb.step.EntryFields {
		if err := qb.writeField(&sb, fid, "\t", nil); err != nil {
			return "", nil, err
		}
	}
	sb.WriteString("}")
	return sb.String(), nil, nil
}

func (qb *queryBuilder) buildEntityQuery(representations []map[string]any) (string, map[string]any, error) {
	sg := qb.art.Supergraph()
	var sb strings.Builder
	sb.WriteString("query ($representations: [_Any!]!) {\n")
	sb.WriteString("\t_entities(representations: $representations) {\n")
	sb.WriteString("\t\t... on ")
	sb.WriteString(sg.Type(qb.step.EntityType).Name)
	sb.WriteString(" {\n")
	printed := map[string]bool{}
	for _, fid := range qb.step.EntryFields {
		if err := qb.writeField(&sb, fid, "\t\t\t", qb.step.Path); err != nil {
			return "", nil, err
		}
		f := qb.art.Graph.Field(fid)
		if f.IsTypename {
			printed["__typename"] = true
		} else {
			printed[sg.Field(f.Def).Name] = true
		}
	}
	// A dependent entity fetch rooted at this same object needs its key
	// echoed here, exactly like a boundary inside writeField would.
	qb.writeInjections(&sb, "\t\t\t", qb.step.Path, printed)
	sb.WriteString("\t\t}\n")
	sb.WriteString("\t}\n")
	sb.WriteString("}")
	return sb.String(), map[string]any{"representations": representations}, nil
}

// buildLookupQuery renders an entity fetch served by a @composite__lookup
// root field: one aliased invocation per representation, with the key
// values passed as arguments. The executor zips _0.._n back onto the same
// traversal order the representations were extracted in.
func (qb *queryBuilder) buildLookupQuery(representations []map[string]any) (string, map[string]any, error) {
	sg := qb.art.Supergraph()
	fieldName := sg.Field(qb.step.LookupField).Name

	var sb strings.Builder
	sb.WriteString("query {\n")
	for i, rep := range representations {
		fmt.Fprintf(&sb, "\t_%d: %s(", i, fieldName)
		first := true
		if qb.step.Key != nil {
			for _, ref := range qb.step.Key.FieldSet {
				name := sg.Field(ref.Field).Name
				if !first {
					sb.WriteString(", ")
				}
				first = false
				sb.WriteString(name)
				sb.WriteString(": ")
				writeRawValue(&sb, rep[name])
			}
		}
		sb.WriteString(") {\n")

		printed := map[string]bool{}
		for _, fid := range qb.step.EntryFields {
			if err := qb.writeField(&sb, fid, "\t\t", qb.step.Path); err != nil {
				return "", nil, err
			}
			f := qb.art.Graph.Field(fid)
			if f.IsTypename {
				printed["__typename"] = true
			} else {
				printed[sg.Field(f.Def).Name] = true
			}
		}
		qb.writeInjections(&sb, "\t\t", qb.step.Path, printed)
		sb.WriteString("\t}\n")
	}
	sb.WriteString("}")
	return sb.String(), nil, nil
}

// writeRawValue prints an already-decoded JSON value (a key value pulled
// out of a parent response) as a GraphQL literal.
func writeRawValue(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		sb.WriteString(strconv.FormatBool(val))
	case string:
		sb.WriteString(strconv.Quote(val))
	case float64:
		if val == float64(int64(val)) {
			sb.WriteString(strconv.FormatInt(int64(val), 10))
		} else {
			sb.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
		}
	case []any:
		sb.WriteString("[")
		for i, item := range val {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeRawValue(sb, item)
		}
		sb.WriteString("]")
	case map[string]any:
		sb.WriteString("{")
		first := true
		for _, name := range sortedRawKeys(val) {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			sb.WriteString(name)
			sb.WriteString(": ")
			writeRawValue(sb, val[name])
		}
		sb.WriteString("}")
	default:
		sb.WriteString("null")
	}
}

func sortedRawKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeField prints one field this step owns, recursing into the children
// it also owns and stopping at any boundary where a child moved to a
// dependent step. path is the absolute response-key path of the field's
// parent, used to locate the entity boundaries that need key injection.
func (qb *queryBuilder) writeField(sb *strings.Builder, fid operation.FieldID, indent string, path []string) error {
	g := qb.art.Graph
	sg := qb.art.Supergraph()
	f := g.Field(fid)

	wireName := "__typename"
	if !f.IsTypename {
		wireName = sg.Field(f.Def).Name
	}

	sb.WriteString(indent)
	if f.ResponseKey != wireName {
		sb.WriteString(f.ResponseKey)
		sb.WriteString(": ")
	}
	sb.WriteString(wireName)

	if len(f.Arguments) > 0 {
		sb.WriteString("(")
		for i, arg := range f.Arguments {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(arg.Name)
			sb.WriteString(": ")
			writeValue(sb, arg.Value)
		}
		sb.WriteString(")")
	}

	if len(f.SubSelection) == 0 {
		sb.WriteString("\n")
		return nil
	}

	fieldPath := append(append([]string{}, path...), f.ResponseKey)
	sb.WriteString(" {\n")

	printed := map[string]bool{}
	for _, cid := range f.SubSelection {
		cf := g.Field(cid)
		if cf.Dispensable {
			continue
		}
		if !cf.IsTypename {
			if stepID, ok := qb.art.Plan.FieldStep[cid]; !ok || stepID != qb.step.ID {
				continue
			}
		}
		if err := qb.writeField(sb, cid, indent+"\t", fieldPath); err != nil {
			return err
		}
		if cf.IsTypename {
			printed["__typename"] = true
		} else {
			printed[sg.Field(cf.Def).Name] = true
		}
	}

	qb.writeInjections(sb, indent+"\t", fieldPath, printed)

	sb.WriteString(indent)
	sb.WriteString("}\n")
	return nil
}

// writeInjections emits __typename plus the key and @requires fields every
// dependent entity fetch rooted at fieldPath needs, skipping wire names the
// client's own selection already produced.
func (qb *queryBuilder) writeInjections(sb *strings.Builder, indent string, fieldPath []string, printed map[string]bool) {
	sg := qb.art.Supergraph()
	for _, child := range qb.art.Plan.Steps {
		if child.Kind != planner.StepEntityFetch || !dependsOn(child, qb.step.ID) || !pathsEqual(child.Path, fieldPath) {
			continue
		}
		if !printed["__typename"] {
			sb.WriteString(indent)
			sb.WriteString("__typename\n")
			printed["__typename"] = true
		}
		if child.Key != nil {
			qb.writeKeyRefs(sb, indent, child.Key.FieldSet, printed)
		}
		for _, def := range child.RequiredFields {
			name := sg.Field(def).Name
			if printed[name] {
				continue
			}
			sb.WriteString(indent)
			sb.WriteString(name)
			sb.WriteString("\n")
			printed[name] = true
		}
	}
}

func (qb *queryBuilder) writeKeyRefs(sb *strings.Builder, indent string, refs []supergraph.KeyFieldRef, printed map[string]bool) {
	sg := qb.art.Supergraph()
	for _, ref := range refs {
		name := sg.Field(ref.Field).Name
		if printed[name] {
			continue
		}
		sb.WriteString(indent)
		sb.WriteString(name)
		if len(ref.Nested) > 0 {
			sb.WriteString(" {\n")
			qb.writeKeyRefs(sb, indent+"\t", ref.Nested, map[string]bool{})
			sb.WriteString(indent)
			sb.WriteString("}")
		}
		sb.WriteString("\n")
		printed[name] = true
	}
}

// writeValue prints a coerced argument value as a GraphQL literal.
func writeValue(sb *strings.Builder, v operation.Value) {
	switch v.Kind {
	case operation.ValueNull:
		sb.WriteString("null")
	case operation.ValueBool:
		sb.WriteString(strconv.FormatBool(v.Bool))
	case operation.ValueInt:
		sb.WriteString(strconv.FormatInt(v.Int, 10))
	case operation.ValueFloat:
		sb.WriteString(strconv.FormatFloat(v.Float, 'g', -1, 64))
	case operation.ValueString:
		sb.WriteString(strconv.Quote(v.Str))
	case operation.ValueEnum:
		sb.WriteString(v.Str)
	case operation.ValueList:
		sb.WriteString("[")
		for i, item := range v.List {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeValue(sb, item)
		}
		sb.WriteString("]")
	case operation.ValueObject:
		sb.WriteString("{")
		first := true
		for _, name := range sortedKeys(v.Object) {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			sb.WriteString(name)
			sb.WriteString(": ")
			writeValue(sb, v.Object[name])
		}
		sb.WriteString("}")
	}
}

func sortedKeys(m map[string]operation.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dependsOn(step *planner.Step, id int) bool {
	for _, dep := range step.DependsOn {
		if dep == id {
			return true
		}
	}
	return false
}

func pathsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
