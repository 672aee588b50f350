package stdlib

import (
	"math"
	"unicode/utf8"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/expr"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

// registerHelpers registers the general-purpose helpers: length, contains,
// exists, existsIn, default, to_string, to_number, type.
//
// Builtins are lenient: wrong or missing arguments give undefined (or the
// neutral value for the helper) rather than an error, so a half-written
// template still previews.
func (r *Registry) registerHelpers() {
	r.Register("length", Pure(stdLength))
	r.Register("len", Pure(stdLength))
	r.Register("contains", Pure(stdContains))
	r.Register("exists", Pure(stdExists))
	r.Register("existsIn", Pure(stdExistsIn))
	r.Register("default", Pure(stdDefault))
	r.Register("to_string", Pure(stdToString))
	r.Register("to_number", Pure(stdToNumber))
	r.Register("type", Pure(stdType))
}

func stdLength(args []types.Value) types.Value {
	v := arg(args, 0)
	switch v.Type() {
	case types.TypeString:
		return types.NewInt(utf8.RuneCountInString(v.AsString()))
	case types.TypeList:
		return types.NewInt(len(v.AsList()))
	case types.TypeMap:
		return types.NewInt(v.AsMap().Len())
	default:
		return types.NewInt(0)
	}
}

func stdContains(args []types.Value) types.Value {
	return types.NewBool(expr.Contains(arg(args, 0), arg(args, 1)))
}

func stdExists(args []types.Value) types.Value {
	return types.NewBool(!arg(args, 0).IsNil())
}

// stdExistsIn reports whether container holds key with a non-nil value
// (maps) or holds the element (lists, strings).
func stdExistsIn(args []types.Value) types.Value {
	container, key := arg(args, 0), arg(args, 1)
	if container.Type() == types.TypeMap {
		v, ok := container.AsMap().Get(key.String())
		return types.NewBool(ok && !v.IsNil())
	}
	return types.NewBool(expr.Contains(container, key))
}

// stdDefault returns the fallback when the value is null or undefined, or
// when the optional third argument is true and the value is falsy.
func stdDefault(args []types.Value) types.Value {
	v := arg(args, 0)
	if v.IsNil() || (arg(args, 2).Truthy() && !v.Truthy()) {
		return arg(args, 1)
	}
	return v
}

func stdToString(args []types.Value) types.Value {
	return types.NewString(arg(args, 0).String())
}

func stdToNumber(args []types.Value) types.Value {
	n := arg(args, 0).ToNumber()
	if math.IsNaN(n) && len(args) > 1 {
		return args[1]
	}
	return types.NewNumber(n)
}

func stdType(args []types.Value) types.Value {
	return types.NewString(arg(args, 0).Type().String())
}
