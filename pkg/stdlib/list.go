package stdlib

import (
	"math"
	"sort"
	"strings"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/expr"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

// MaxRangeLength caps the lists range() will build.
const MaxRangeLength = 10000

// registerList registers list helpers and the list.* family.
func (r *Registry) registerList() {
	r.Register("first", Pure(listFirst))
	r.Register("last", Pure(listLast))
	r.Register("append", Pure(listAppend))
	r.Register("range", Pure(listRange))
	r.Register("join", Pure(listJoin))
	r.Register("join_natural", Pure(listJoinNatural))
	r.Register("sort", Pure(listSort))
	r.Register("unique", Pure(listUnique))
	r.Register("reverse", Pure(listReverse))

	r.Register("list.concat", Pure(listConcat))
	r.Register("list.prepend", Pure(listPrepend))
}

func listFirst(args []types.Value) types.Value {
	v := arg(args, 0)
	switch v.Type() {
	case types.TypeList:
		if l := v.AsList(); len(l) > 0 {
			return l[0]
		}
	case types.TypeString:
		return expr.Index(v, types.NewInt(0))
	}
	return types.Undefined
}

func listLast(args []types.Value) types.Value {
	v := arg(args, 0)
	switch v.Type() {
	case types.TypeList:
		if l := v.AsList(); len(l) > 0 {
			return l[len(l)-1]
		}
	case types.TypeString:
		if runes := []rune(v.AsString()); len(runes) > 0 {
			return types.NewString(string(runes[len(runes)-1]))
		}
	}
	return types.Undefined
}

// listAppend returns a new list with the remaining arguments appended. A nil
// first argument starts an empty list.
func listAppend(args []types.Value) types.Value {
	base := arg(args, 0)
	var items []types.Value
	switch {
	case base.Type() == types.TypeList:
		items = append(items, base.AsList()...)
	case base.IsNil():
	default:
		return types.Undefined
	}
	if len(args) > 1 {
		items = append(items, args[1:]...)
	}
	return types.NewList(items)
}

// listRange follows Python: range(stop), range(start, stop[, step]).
func listRange(args []types.Value) types.Value {
	var start, stop, step float64 = 0, 0, 1
	switch len(args) {
	case 0:
		return types.Undefined
	case 1:
		stop = args[0].ToNumber()
	default:
		start, stop = args[0].ToNumber(), args[1].ToNumber()
		if len(args) > 2 {
			step = args[2].ToNumber()
		}
	}
	if math.IsNaN(start) || math.IsNaN(stop) || math.IsNaN(step) || step == 0 {
		return types.Undefined
	}
	count := math.Ceil((stop - start) / step)
	if count <= 0 {
		return types.NewList(nil)
	}
	if count > MaxRangeLength {
		return types.Undefined
	}
	items := make([]types.Value, int(count))
	for i := range items {
		items[i] = types.NewNumber(start + float64(i)*step)
	}
	return types.NewList(items)
}

func stringsOf(list []types.Value) []string {
	out := make([]string, len(list))
	for i, v := range list {
		out[i] = v.String()
	}
	return out
}

// listJoin joins list elements with a separator, ", " when none is given.
func listJoin(args []types.Value) types.Value {
	list, ok := listArg(args, 0)
	if !ok {
		return types.Undefined
	}
	return types.NewString(strings.Join(stringsOf(list), strArg(args, 1, ", ")))
}

// listJoinNatural joins as prose: "a", "a and b", "a, b and c".
func listJoinNatural(args []types.Value) types.Value {
	list, ok := listArg(args, 0)
	if !ok {
		return types.Undefined
	}
	conj := " " + strArg(args, 1, "and") + " "
	parts := stringsOf(list)
	switch len(parts) {
	case 0:
		return types.NewString("")
	case 1:
		return types.NewString(parts[0])
	default:
		return types.NewString(strings.Join(parts[:len(parts)-1], ", ") + conj + parts[len(parts)-1])
	}
}

// listSort returns a sorted copy. Numbers sort numerically, everything else
// by its text. An optional key sorts maps by that entry; a truthy third
// argument reverses the order.
func listSort(args []types.Value) types.Value {
	list, ok := listArg(args, 0)
	if !ok {
		return types.Undefined
	}
	key := strArg(args, 1, "")
	reverse := arg(args, 2).Truthy()

	sorted := make([]types.Value, len(list))
	copy(sorted, list)
	keyOf := func(v types.Value) types.Value {
		if key == "" {
			return v
		}
		return expr.Property(v, key)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := keyOf(sorted[i]), keyOf(sorted[j])
		if reverse {
			a, b = b, a
		}
		if a.Type() == types.TypeNumber && b.Type() == types.TypeNumber {
			return a.AsNumber() < b.AsNumber()
		}
		return a.String() < b.String()
	})
	return types.NewList(sorted)
}

func listUnique(args []types.Value) types.Value {
	list, ok := listArg(args, 0)
	if !ok {
		return types.Undefined
	}
	var out []types.Value
outer:
	for _, v := range list {
		for _, seen := range out {
			if seen.Equal(v) {
				continue outer
			}
		}
		out = append(out, v)
	}
	return types.NewList(out)
}

func listReverse(args []types.Value) types.Value {
	v := arg(args, 0)
	switch v.Type() {
	case types.TypeList:
		list := v.AsList()
		out := make([]types.Value, len(list))
		for i, item := range list {
			out[len(list)-1-i] = item
		}
		return types.NewList(out)
	case types.TypeString:
		runes := []rune(v.AsString())
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return types.NewString(string(runes))
	}
	return types.Undefined
}

// listConcat concatenates a list with a second list, or appends a single element.
func listConcat(args []types.Value) types.Value {
	list, ok := listArg(args, 0)
	if !ok || len(args) < 2 {
		return types.Undefined
	}
	result := make([]types.Value, 0, len(list)+1)
	result = append(result, list...)
	if args[1].Type() == types.TypeList {
		result = append(result, args[1].AsList()...)
	} else {
		result = append(result, args[1])
	}
	return types.NewList(result)
}

func listPrepend(args []types.Value) types.Value {
	list, ok := listArg(args, 0)
	if !ok || len(args) < 2 {
		return types.Undefined
	}
	result := make([]types.Value, 0, len(list)+1)
	result = append(result, args[1])
	result = append(result, list...)
	return types.NewList(result)
}
