package supergraph

import (
	"strconv"
	"strings"

	"github.com/n9te9/graphql-parser/ast"
)

// findDirective returns the first directive named name.
func findDirective(directives []*ast.Directive, name string) (*ast.Directive, bool) {
	for _, d := range directives {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

func allDirectives(directives []*ast.Directive, name string) []*ast.Directive {
	var out []*ast.Directive
	for _, d := range directives {
		if d.Name == name {
			out = append(out, d)
		}
	}
	return out
}

func hasDirective(directives []*ast.Directive, name string) bool {
	_, ok := findDirective(directives, name)
	return ok
}

// stringArg returns a directive argument's value with surrounding quotes
// trimmed, the same way subgraph_v2.go's parseEntityKeys/parseField read
// "fields" arguments.
func stringArg(d *ast.Directive, name string) (string, bool) {
	for _, arg := range d.Arguments {
		if arg.Name.String() == name {
			return strings.Trim(arg.Value.String(), "\""), true
		}
	}
	return "", false
}

func boolArg(d *ast.Directive, name string, def bool) bool {
	v, ok := stringArg(d, name)
	if !ok {
		return def
	}
	return v == "true"
}

// fieldSetArg splits a whitespace-delimited selection-set string such as
// `"id organization { id }"` into top-level tokens. A `{`/`}` nested
// component is kept attached to its parent token so callers that care
// about composite keys can descend into it.
func fieldSetArg(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var tokens []string
	depth := 0
	start := 0
	for i, r := range raw {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
		case ' ', '\t', '\n':
			if depth == 0 {
				if i > start {
					tokens = append(tokens, raw[start:i])
				}
				start = i + 1
			}
		}
	}
	if start < len(raw) {
		tokens = append(tokens, raw[start:])
	}
	return tokens
}

// parseOverrideLabel parses a `label: "percent(35)"` argument value.
func parseOverrideLabel(raw string) *OverrideLabel {
	raw = strings.TrimSpace(raw)
	const prefix, suffix = "percent(", ")"
	if !strings.HasPrefix(raw, prefix) || !strings.HasSuffix(raw, suffix) {
		return nil
	}
	n, err := strconv.Atoi(raw[len(prefix) : len(raw)-len(suffix)])
	if err != nil {
		return nil
	}
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return &OverrideLabel{Percent: n}
}
