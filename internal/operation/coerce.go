package operation

import (
	"fmt"

	"github.com/n9te9/graphql-parser/ast"
)

// coerceCtx carries the ambient state value coercion needs: the raw
// variable JSON, already decoded into Go values by the caller (matching
// what goccy/go-json hands the gateway at ingress).
type coerceCtx struct {
	variables map[string]any
}

// coerceValue turns a parsed ast.Value into a bound Value, resolving
// variable references against ctx.variables. unknown is true when the value
// is a reference to a variable the caller did not supply, the signal that
// drives conservative dispensability.
func coerceValue(v ast.Value, ctx *coerceCtx) (value Value, unknown bool, err error) {
	switch val := v.(type) {
	case nil:
		return Value{Kind: ValueNull}, false, nil
	case *ast.Variable:
		raw, ok := ctx.variables[val.Name]
		if !ok {
			return Value{}, true, nil
		}
		cv, err := coerceGo(raw)
		return cv, false, err
	case *ast.NullValue:
		return Value{Kind: ValueNull}, false, nil
	case *ast.IntValue:
		return Value{Kind: ValueInt, Int: int64(val.Value)}, false, nil
	case *ast.FloatValue:
		return Value{Kind: ValueFloat, Float: val.Value}, false, nil
	case *ast.StringValue:
		return Value{Kind: ValueString, Str: val.Value}, false, nil
	case *ast.BooleanValue:
		return Value{Kind: ValueBool, Bool: val.Value}, false, nil
	case *ast.EnumValue:
		return Value{Kind: ValueEnum, Str: val.Value}, false, nil
	case *ast.ListValue:
		list := make([]Value, 0, len(val.Values))
		for _, item := range val.Values {
			cv, unk, err := coerceValue(item, ctx)
			if err != nil {
				return Value{}, false, err
			}
			if unk {
				return Value{}, true, nil
			}
			list = append(list, cv)
		}
		return Value{Kind: ValueList, List: list}, false, nil
	case *ast.ObjectValue:
		obj := make(map[string]Value, len(val.Fields))
		for _, f := range val.Fields {
			cv, unk, err := coerceValue(f.Value, ctx)
			if err != nil {
				return Value{}, false, err
			}
			if unk {
				return Value{}, true, nil
			}
			obj[f.Name.String()] = cv
		}
		return Value{Kind: ValueObject, Object: obj}, false, nil
	default:
		return Value{}, false, fmt.Errorf("operation: unsupported value node %T", v)
	}
}

// coerceGo coerces an already-JSON-decoded Go value (from variable input)
// into a bound Value.
func coerceGo(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Value{Kind: ValueNull}, nil
	case bool:
		return Value{Kind: ValueBool, Bool: v}, nil
	case string:
		return Value{Kind: ValueString, Str: v}, nil
	case float64:
		if v == float64(int64(v)) {
			return Value{Kind: ValueInt, Int: int64(v)}, nil
		}
		return Value{Kind: ValueFloat, Float: v}, nil
	case int:
		return Value{Kind: ValueInt, Int: int64(v)}, nil
	case int64:
		return Value{Kind: ValueInt, Int: v}, nil
	case []any:
		list := make([]Value, 0, len(v))
		for _, item := range v {
			cv, err := coerceGo(item)
			if err != nil {
				return Value{}, err
			}
			list = append(list, cv)
		}
		return Value{Kind: ValueList, List: list}, nil
	case map[string]any:
		obj := make(map[string]Value, len(v))
		for k, item := range v {
			cv, err := coerceGo(item)
			if err != nil {
				return Value{}, err
			}
			obj[k] = cv
		}
		return Value{Kind: ValueObject, Object: obj}, nil
	default:
		return Value{}, fmt.Errorf("operation: variable value of unsupported Go type %T", raw)
	}
}

// wrapIfBare promotes a non-list, non-null Value to a single-element list
// when the target wrapping expects a list and the source literal/variable
// was not itself a list; a single value of T coerces to [T] only at the
// outermost list level.
func wrapIfBare(v Value, wantsList bool) Value {
	if !wantsList || v.Kind == ValueList || v.Kind == ValueNull {
		return v
	}
	return Value{Kind: ValueList, List: []Value{v}}
}

// boolLiteral extracts a statically-known boolean out of a coerced
// @skip/@include `if` argument. ok is false if the value isn't a bool (a
// schema-invalid document; treated as unknown rather than failing binding).
func boolLiteral(v Value) (b bool, ok bool) {
	if v.Kind != ValueBool {
		return false, false
	}
	return v.Bool, true
}
