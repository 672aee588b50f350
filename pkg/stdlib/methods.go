package stdlib

import (
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

type method func(recv types.Value, args []types.Value) types.Value

// withRecv adapts a builtin so the receiver becomes its first argument.
func withRecv(fn func([]types.Value) types.Value) method {
	return func(recv types.Value, args []types.Value) types.Value {
		return fn(append([]types.Value{recv}, args...))
	}
}

var stringMethods = map[string]method{
	"upper":      withRecv(textUpper),
	"lower":      withRecv(textLower),
	"strip":      withRecv(textTrim),
	"trim":       withRecv(textTrim),
	"split":      withRecv(textSplit),
	"replace":    withRecv(textReplace),
	"startswith": withRecv(textStartsWith),
	"endswith":   withRecv(textEndsWith),
	"capitalize": withRecv(textCapitalize),
	"title":      withRecv(textTitle),
	"length":     withRecv(stdLength),
	// ", ".join(items)
	"join": func(sep types.Value, args []types.Value) types.Value {
		return listJoin([]types.Value{arg(args, 0), sep})
	},
}

var listMethods = map[string]method{
	"join":     withRecv(listJoin),
	"length":   withRecv(stdLength),
	"includes": withRecv(stdContains),
	"contains": withRecv(stdContains),
}

var mapMethods = map[string]method{
	"keys":   withRecv(mapKeys),
	"values": withRecv(mapValues),
	"items":  withRecv(mapItems),
	"length": withRecv(stdLength),
	"get": func(recv types.Value, args []types.Value) types.Value {
		v, ok := recv.AsMap().Get(strArg(args, 0, ""))
		if !ok {
			if len(args) > 1 {
				return args[1]
			}
			return types.Null
		}
		return v
	},
}

// CallMethod invokes a value method on the receiver. It reports false when
// the receiver's kind has no method by that name, so the caller can try
// other resolutions.
func CallMethod(recv types.Value, name string, args []types.Value) (types.Value, bool) {
	var table map[string]method
	switch recv.Type() {
	case types.TypeString:
		table = stringMethods
	case types.TypeList:
		table = listMethods
	case types.TypeMap:
		table = mapMethods
	default:
		return types.Undefined, false
	}
	m, ok := table[name]
	if !ok {
		return types.Undefined, false
	}
	return m(recv, args), true
}
