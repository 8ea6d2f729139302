package shape

import (
	"fmt"
	"strconv"

	"github.com/n9te9/federation-gateway/internal/federation"
	"github.com/n9te9/federation-gateway/internal/gwerr"
)

// MergeError is one shape violation or coercion failure surfaced while
// folding a subgraph partition's response into the client-facing result.
type MergeError struct {
	Path    []string
	Message string
}

// AsGraphQLError renders e as a SUBGRAPH_INVALID_RESPONSE_ERROR,
// path-tagged at the response position where the violation occurred.
func (e MergeError) AsGraphQLError() *gwerr.Error {
	return gwerr.New(gwerr.CodeSubgraphInvalidResponse, "%s", e.Message).WithPath(e.Path...)
}

// MergeInto folds source (one partition's decoded response object, keyed
// by wire key) into target, keyed by response key, according to sh.
// Unlike a blind structural copy, every value is checked against its field's expected
// shape and nullability before being written, and a violation nullifies the
// nearest nullable ancestor instead of corrupting the tree: the first
// non-null value to arrive at a position wins, and a type mismatch nulls
// the closest position the schema allows to be null.
//
// It returns true if target itself must be nullified by the caller (every
// field so far merged into target is discarded by the caller in that case),
// plus every MergeError encountered along the way, from every branch,
// whether or not that branch ended up nullified.
func MergeInto(sh *Shape, target map[string]any, source map[string]any, path []string) (bool, []MergeError) {
	variant := sh
	if sh.Kind == Polymorphic {
		variant = sh.Default
		if tn, ok := source["__typename"].(string); ok {
			if v := variantByTypename(sh, tn); v != nil {
				variant = v
			}
		}
	}

	var errs []MergeError
	for _, field := range variant.Fields {
		value, present := source[field.WireKey]
		if !present {
			continue // this partition doesn't contribute this field; another one will
		}

		fieldPath := append(append([]string{}, path...), field.ResponseKey)
		existing := target[field.ResponseKey]

		merged, nullify, fieldErrs := mergeValue(field, field.Wrapping, existing, value, fieldPath)
		errs = append(errs, fieldErrs...)
		if nullify {
			return true, errs
		}
		target[field.ResponseKey] = merged
	}
	return false, errs
}

// variantByTypename returns sh's Variant shape whose cached Name matches
// tn, or nil if none matches (the caller falls back to sh.Default).
func variantByTypename(sh *Shape, tn string) *Shape {
	for _, v := range sh.Variants {
		if v.Name == tn {
			return v
		}
	}
	return nil
}

func mergeValue(field Field, w federation.Wrapping, existing, incoming any, path []string) (any, bool, []MergeError) {
	nested := field.Nested
	if inner, required, ok := w.PopListWrapping(); ok {
		return mergeList(field, inner, required, existing, incoming, path)
	}

	if nested == nil && existing != nil {
		// A leaf already holds a non-null value from an earlier partition.
		return existing, false, nil
	}

	if incoming == nil {
		if w.InnerRequired() {
			return nil, true, []MergeError{{Path: clonePath(path), Message: "non-null field resolved to null"}}
		}
		return nil, false, nil
	}

	if nested == nil {
		// Scalar/enum leaf with no earlier value: the first partition to
		// report a non-null value wins outright; the check above keeps
		// later partitions from overwriting it.
		if msg := coerceScalar(field, incoming); msg != "" {
			nullify := w.InnerRequired()
			return nil, nullify, []MergeError{{Path: clonePath(path), Message: msg}}
		}
		return incoming, false, nil
	}

	incomingObj, ok := incoming.(map[string]any)
	if !ok {
		nullify := w.InnerRequired()
		return nil, nullify, []MergeError{{Path: clonePath(path), Message: fmt.Sprintf("expected an object, got %T", incoming)}}
	}

	target, _ := existing.(map[string]any)
	if target == nil {
		target = make(map[string]any, len(nested.Fields))
	}
	nullify, errs := MergeInto(nested, target, incomingObj, path)
	if nullify {
		if w.InnerRequired() {
			return nil, true, errs
		}
		return nil, false, errs
	}
	return target, false, errs
}

func mergeList(field Field, inner federation.Wrapping, required bool, existing, incoming any, path []string) (any, bool, []MergeError) {
	if incoming == nil {
		if required {
			return nil, true, []MergeError{{Path: clonePath(path), Message: "non-null list resolved to null"}}
		}
		return nil, false, nil
	}

	incomingList, ok := incoming.([]any)
	if !ok {
		return nil, required, []MergeError{{Path: clonePath(path), Message: fmt.Sprintf("expected a list, got %T", incoming)}}
	}
	existingList, _ := existing.([]any)

	merged := make([]any, len(incomingList))
	var errs []MergeError
	for i, v := range incomingList {
		var prev any
		if i < len(existingList) {
			prev = existingList[i]
		}
		elemPath := append(append([]string{}, path...), strconv.Itoa(i))
		elem, nullifyElem, elemErrs := mergeValue(field, inner, prev, v, elemPath)
		errs = append(errs, elemErrs...)
		if nullifyElem {
			return nil, required, errs
		}
		merged[i] = elem
	}
	return merged, false, errs
}

// coerceScalar checks a non-null leaf value against its field's Coercion
// rule and returns a violation message, or "" when the value is acceptable.
// Float accepts Int; ID accepts String or Int; an enum value must be a
// string, and a name outside the declared set is kept as it is. JSON
// decoding hands every number over as float64.
func coerceScalar(field Field, v any) string {
	switch field.Coercion {
	case CoerceBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Sprintf("expected a Boolean, got %T", v)
		}
	case CoerceInt:
		f, ok := v.(float64)
		if !ok || f != float64(int64(f)) {
			return fmt.Sprintf("expected an Int, got %v", v)
		}
	case CoerceFloat:
		if _, ok := v.(float64); !ok {
			return fmt.Sprintf("expected a Float, got %T", v)
		}
	case CoerceString:
		if _, ok := v.(string); !ok {
			return fmt.Sprintf("expected a String, got %T", v)
		}
	case CoerceID:
		switch v.(type) {
		case string, float64:
		default:
			return fmt.Sprintf("expected an ID, got %T", v)
		}
	case CoerceEnum:
		// An undeclared enum string is retained as-is (an unbound enum
		// value); only a non-string is a shape violation.
		if _, ok := v.(string); !ok {
			return fmt.Sprintf("expected an enum value, got %T", v)
		}
	}
	return ""
}

func clonePath(path []string) []string { return append([]string{}, path...) }
