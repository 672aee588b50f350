package expr

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

// CallSite describes a call for the environment to resolve.
type CallSite struct {
	// Name is the function or method name as written.
	Name string
	// Qualified is the dotted name when the receiver is a plain variable path
	// (npc.get for npc.get(1)); otherwise it equals Name.
	Qualified string
	// Receiver is the evaluated callee of a method-style call.
	Receiver    types.Value
	HasReceiver bool
	// Args are the evaluated positional arguments. For filters the filtered
	// value is Args[0].
	Args []types.Value
}

// Env provides variable lookup and call resolution for evaluation.
type Env interface {
	// Lookup returns the value bound to an exact name.
	Lookup(name string) (types.Value, bool)

	// Call resolves and invokes a function. Unresolvable calls are the
	// environment's concern; an error aborts the whole render.
	Call(ctx context.Context, site CallSite) (types.Value, error)
}

// Evaluate evaluates an expression against env. Missing names, keys and
// indexes evaluate to undefined; only Env.Call can produce an error.
func Evaluate(ctx context.Context, node Expr, env Env) (types.Value, error) {
	switch n := node.(type) {
	case *StringLiteral:
		return types.NewString(n.Value), nil
	case *NumberLiteral:
		return types.NewNumber(n.Value), nil
	case *BoolLiteral:
		return types.NewBool(n.Value), nil
	case *NullLiteral:
		return types.Null, nil
	case *ListLiteral:
		return evalList(ctx, n, env)
	case *MapLiteral:
		return evalMap(ctx, n, env)
	case *Variable:
		return lookupPath(env, n.Name), nil
	case *DotAccess:
		return evalDot(ctx, n, env)
	case *BracketAccess:
		return evalBracket(ctx, n, env)
	case *Call:
		return evalCall(ctx, n, env)
	case *Filter:
		return evalFilter(ctx, n, env)
	case *Binary:
		return evalBinary(ctx, n, env)
	case *Unary:
		return evalUnary(ctx, n, env)
	default:
		return types.Undefined, fmt.Errorf("unsupported expression node type: %T", node)
	}
}

// lookupPath resolves an exact name first, then walks it as a dot-path
// ("npc.stats.mood") from its first segment.
func lookupPath(env Env, name string) types.Value {
	if v, ok := env.Lookup(name); ok {
		return v
	}
	if !strings.Contains(name, ".") {
		return types.Undefined
	}
	parts := strings.Split(name, ".")
	v, ok := env.Lookup(parts[0])
	if !ok {
		return types.Undefined
	}
	for _, part := range parts[1:] {
		v = Property(v, part)
		if v.IsUndefined() {
			return v
		}
	}
	return v
}

func evalList(ctx context.Context, n *ListLiteral, env Env) (types.Value, error) {
	items := make([]types.Value, len(n.Elements))
	for i, elem := range n.Elements {
		v, err := Evaluate(ctx, elem, env)
		if err != nil {
			return types.Undefined, err
		}
		items[i] = v
	}
	return types.NewList(items), nil
}

func evalMap(ctx context.Context, n *MapLiteral, env Env) (types.Value, error) {
	m := types.NewOrderedMap()
	for i := range n.Keys {
		k, err := Evaluate(ctx, n.Keys[i], env)
		if err != nil {
			return types.Undefined, err
		}
		v, err := Evaluate(ctx, n.Values[i], env)
		if err != nil {
			return types.Undefined, err
		}
		m.Set(k.String(), v)
	}
	return types.NewMap(m), nil
}

func evalDot(ctx context.Context, n *DotAccess, env Env) (types.Value, error) {
	// A flattened key such as "npc.name" shadows the nested lookup.
	if path, ok := DottedPath(n); ok {
		if v, found := env.Lookup(path); found {
			return v, nil
		}
	}
	obj, err := Evaluate(ctx, n.Object, env)
	if err != nil {
		return types.Undefined, err
	}
	return Property(obj, n.Property), nil
}

func evalBracket(ctx context.Context, n *BracketAccess, env Env) (types.Value, error) {
	obj, err := Evaluate(ctx, n.Object, env)
	if err != nil {
		return types.Undefined, err
	}
	idx, err := Evaluate(ctx, n.Index, env)
	if err != nil {
		return types.Undefined, err
	}
	return Index(obj, idx), nil
}

// Property returns obj.name. Maps yield their entry, lists and strings
// expose length and numeric indexes; everything else is undefined.
func Property(obj types.Value, name string) types.Value {
	switch obj.Type() {
	case types.TypeMap:
		if v, ok := obj.AsMap().Get(name); ok {
			return v
		}
	case types.TypeList, types.TypeString:
		if name == "length" {
			return types.NewInt(length(obj))
		}
		if i, err := strconv.Atoi(name); err == nil {
			return Index(obj, types.NewInt(i))
		}
	}
	return types.Undefined
}

// Index returns obj[idx]. Out-of-range and negative indexes are undefined.
func Index(obj types.Value, idx types.Value) types.Value {
	if idx.Type() != types.TypeNumber {
		if idx.Type() == types.TypeString {
			return Property(obj, idx.AsString())
		}
		return types.Undefined
	}
	f := idx.AsNumber()
	if f != math.Trunc(f) || f < 0 {
		return types.Undefined
	}
	i := int(f)
	switch obj.Type() {
	case types.TypeList:
		list := obj.AsList()
		if i < len(list) {
			return list[i]
		}
	case types.TypeString:
		runes := []rune(obj.AsString())
		if i < len(runes) {
			return types.NewString(string(runes[i]))
		}
	case types.TypeMap:
		return Property(obj, strconv.Itoa(i))
	}
	return types.Undefined
}

func length(v types.Value) int {
	switch v.Type() {
	case types.TypeList:
		return len(v.AsList())
	case types.TypeString:
		return utf8.RuneCountInString(v.AsString())
	case types.TypeMap:
		return v.AsMap().Len()
	}
	return 0
}

func evalArgs(ctx context.Context, args []Expr, env Env) ([]types.Value, error) {
	vals := make([]types.Value, len(args))
	for i, arg := range args {
		v, err := Evaluate(ctx, arg, env)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func evalCall(ctx context.Context, n *Call, env Env) (types.Value, error) {
	site := CallSite{Name: n.Name, Qualified: n.Name}
	if n.Callee != nil {
		recv, err := Evaluate(ctx, n.Callee, env)
		if err != nil {
			return types.Undefined, err
		}
		site.Receiver = recv
		site.HasReceiver = true
		if path, ok := DottedPath(n.Callee); ok {
			site.Qualified = path + "." + n.Name
		}
	}
	args, err := evalArgs(ctx, n.Args, env)
	if err != nil {
		return types.Undefined, err
	}
	site.Args = args
	return env.Call(ctx, site)
}

func evalFilter(ctx context.Context, n *Filter, env Env) (types.Value, error) {
	val, err := Evaluate(ctx, n.Value, env)
	if err != nil {
		return types.Undefined, err
	}
	args, err := evalArgs(ctx, n.Args, env)
	if err != nil {
		return types.Undefined, err
	}
	return env.Call(ctx, CallSite{
		Name:      n.Name,
		Qualified: n.Name,
		Args:      append([]types.Value{val}, args...),
	})
}

func evalUnary(ctx context.Context, n *Unary, env Env) (types.Value, error) {
	operand, err := Evaluate(ctx, n.Operand, env)
	if err != nil {
		return types.Undefined, err
	}
	switch n.Op {
	case TokenMinus:
		return types.NewNumber(-operand.ToNumber()), nil
	case TokenPlus:
		return types.NewNumber(operand.ToNumber()), nil
	case TokenNot:
		return types.NewBool(!operand.Truthy()), nil
	default:
		return types.Undefined, fmt.Errorf("unsupported unary operator: %s", n.Op)
	}
}

// evalBinary evaluates both operands before applying the operator, including
// for and/or, which return one of their operands.
func evalBinary(ctx context.Context, n *Binary, env Env) (types.Value, error) {
	left, err := Evaluate(ctx, n.Left, env)
	if err != nil {
		return types.Undefined, err
	}
	right, err := Evaluate(ctx, n.Right, env)
	if err != nil {
		return types.Undefined, err
	}

	switch n.Op {
	case TokenAnd:
		if !left.Truthy() {
			return left, nil
		}
		return right, nil
	case TokenOr:
		if left.Truthy() {
			return left, nil
		}
		return right, nil
	case TokenPlus:
		return evalAdd(left, right), nil
	case TokenMinus:
		return types.NewNumber(left.ToNumber() - right.ToNumber()), nil
	case TokenStar:
		return types.NewNumber(left.ToNumber() * right.ToNumber()), nil
	case TokenSlash:
		// Division by zero yields Infinity or NaN as in JavaScript.
		return types.NewNumber(left.ToNumber() / right.ToNumber()), nil
	case TokenPercent:
		return types.NewNumber(math.Mod(left.ToNumber(), right.ToNumber())), nil
	case TokenEq:
		return types.NewBool(left.LooseEqual(right)), nil
	case TokenNeq:
		return types.NewBool(!left.LooseEqual(right)), nil
	case TokenLt:
		return evalCompare(left, right, func(c int) bool { return c < 0 }), nil
	case TokenGt:
		return evalCompare(left, right, func(c int) bool { return c > 0 }), nil
	case TokenLte:
		return evalCompare(left, right, func(c int) bool { return c <= 0 }), nil
	case TokenGte:
		return evalCompare(left, right, func(c int) bool { return c >= 0 }), nil
	case TokenIn:
		return types.NewBool(Contains(right, left)), nil
	case TokenNotIn:
		return types.NewBool(!Contains(right, left)), nil
	default:
		return types.Undefined, fmt.Errorf("unsupported binary operator: %s", n.Op)
	}
}

// evalAdd concatenates when either side is a string, joins two lists, and
// adds numerically otherwise.
func evalAdd(left, right types.Value) types.Value {
	if left.Type() == types.TypeString || right.Type() == types.TypeString {
		return types.NewString(left.String() + right.String())
	}
	if left.Type() == types.TypeList && right.Type() == types.TypeList {
		result := make([]types.Value, 0, len(left.AsList())+len(right.AsList()))
		result = append(result, left.AsList()...)
		result = append(result, right.AsList()...)
		return types.NewList(result)
	}
	return types.NewNumber(left.ToNumber() + right.ToNumber())
}

// evalCompare orders two strings lexically and anything else numerically.
// Comparisons involving NaN are false.
func evalCompare(left, right types.Value, test func(int) bool) types.Value {
	if left.Type() == types.TypeString && right.Type() == types.TypeString {
		return types.NewBool(test(strings.Compare(left.AsString(), right.AsString())))
	}
	a, b := left.ToNumber(), right.ToNumber()
	if math.IsNaN(a) || math.IsNaN(b) {
		return types.NewBool(false)
	}
	switch {
	case a < b:
		return types.NewBool(test(-1))
	case a > b:
		return types.NewBool(test(1))
	default:
		return types.NewBool(test(0))
	}
}

// Contains implements the in operator: list membership by loose equality,
// substring for strings, key presence for maps.
func Contains(container, item types.Value) bool {
	switch container.Type() {
	case types.TypeList:
		for _, el := range container.AsList() {
			if el.LooseEqual(item) {
				return true
			}
		}
	case types.TypeString:
		if item.IsNil() {
			return false
		}
		return strings.Contains(container.AsString(), item.String())
	case types.TypeMap:
		if item.IsNil() {
			return false
		}
		_, ok := container.AsMap().Get(item.String())
		return ok
	}
	return false
}
