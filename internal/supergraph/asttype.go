package supergraph

import (
	"fmt"

	"github.com/n9te9/graphql-parser/ast"

	"github.com/n9te9/federation-gateway/internal/federation"
)

// astTypeToWrapping walks a parsed ast.Type (the *ast.NamedType /
// *ast.ListType / *ast.NonNullType variant tree) into a federation.Wrapping plus
// the named type's own name.
func astTypeToWrapping(t ast.Type) (federation.Wrapping, string, error) {
	levels, named, namedRequired, err := astTypeLevels(t)
	if err != nil {
		return 0, "", err
	}
	w, err := federation.FromLevels(levels, namedRequired)
	if err != nil {
		return 0, "", err
	}
	return w, named, nil
}

// astTypeLevels returns the list-required flags outermost-first, the named
// type, and whether the named type itself is non-null.
func astTypeLevels(t ast.Type) (levels []bool, named string, namedRequired bool, err error) {
	switch v := t.(type) {
	case *ast.NamedType:
		return nil, v.Name.String(), false, nil
	case *ast.ListType:
		innerLevels, n, nr, ierr := astTypeLevels(v.Type)
		if ierr != nil {
			return nil, "", false, ierr
		}
		return append([]bool{false}, innerLevels...), n, nr, nil
	case *ast.NonNullType:
		innerLevels, n, nr, ierr := astTypeLevels(v.Type)
		if ierr != nil {
			return nil, "", false, ierr
		}
		if len(innerLevels) == 0 {
			// v.Type was itself a *ast.NamedType: NonNullType marks the
			// named type, not a list level.
			return innerLevels, n, true, nil
		}
		innerLevels[0] = true
		return innerLevels, n, nr, nil
	default:
		return nil, "", false, fmt.Errorf("unsupported ast.Type %T", t)
	}
}

// namedTypeNameOf extracts a bare name from a type reference that must not
// carry any wrapping (union members, implements clauses).
func namedTypeNameOf(t ast.Type) (string, error) {
	named, ok := t.(*ast.NamedType)
	if !ok {
		return "", fmt.Errorf("expected a named type, got %T", t)
	}
	return named.Name.String(), nil
}
