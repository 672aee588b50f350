package stdlib

import (
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/expr"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

// registerMapFuncs registers map helpers and the map.* family.
func (r *Registry) registerMapFuncs() {
	r.Register("keys", Pure(mapKeys))
	r.Register("values", Pure(mapValues))
	r.Register("items", Pure(mapItems))

	r.Register("map.get", Pure(mapGet))
	r.Register("map.delete", Pure(mapDelete))
	r.Register("map.merge", Pure(mapMerge))
	r.Register("map.merge_nested", Pure(mapMergeNested))
}

func mapArg(args []types.Value, i int) (*types.OrderedMap, bool) {
	v := arg(args, i)
	if v.Type() != types.TypeMap {
		return nil, false
	}
	return v.AsMap(), true
}

func mapKeys(args []types.Value) types.Value {
	m, ok := mapArg(args, 0)
	if !ok {
		return types.Undefined
	}
	return types.FromGo(m.Keys())
}

func mapValues(args []types.Value) types.Value {
	m, ok := mapArg(args, 0)
	if !ok {
		return types.Undefined
	}
	out := make([]types.Value, 0, m.Len())
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		out = append(out, v)
	}
	return types.NewList(out)
}

// mapItems returns [key, value] pairs in insertion order.
func mapItems(args []types.Value) types.Value {
	m, ok := mapArg(args, 0)
	if !ok {
		return types.Undefined
	}
	out := make([]types.Value, 0, m.Len())
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		out = append(out, types.NewList([]types.Value{types.NewString(k), v}))
	}
	return types.NewList(out)
}

// mapGet reads a key, or walks a list of keys, returning the default (null
// unless given) when anything along the way is missing.
func mapGet(args []types.Value) types.Value {
	def := types.Null
	if len(args) > 2 {
		def = args[2]
	}
	cur := arg(args, 0)
	if cur.Type() != types.TypeMap {
		return def
	}
	path := []types.Value{arg(args, 1)}
	if k := arg(args, 1); k.Type() == types.TypeList {
		path = k.AsList()
	}
	for _, key := range path {
		cur = expr.Property(cur, key.String())
		if cur.IsUndefined() {
			return def
		}
	}
	return cur
}

// mapDelete returns a copy of the map without the key.
func mapDelete(args []types.Value) types.Value {
	m, ok := mapArg(args, 0)
	if !ok {
		return types.Undefined
	}
	result := m.Clone()
	result.Delete(strArg(args, 1, ""))
	return types.NewMap(result)
}

// mapMerge shallow-merges its map arguments; later keys win.
func mapMerge(args []types.Value) types.Value {
	result := types.NewOrderedMap()
	for _, v := range args {
		if v.Type() != types.TypeMap {
			return types.Undefined
		}
		m := v.AsMap()
		for _, k := range m.Keys() {
			val, _ := m.Get(k)
			result.Set(k, val)
		}
	}
	return types.NewMap(result)
}

func mapMergeNested(args []types.Value) types.Value {
	if len(args) == 0 {
		return types.NewMap(nil)
	}
	result := args[0].Clone()
	for _, overlay := range args[1:] {
		result = deepMerge(result, overlay)
	}
	return result
}

// deepMerge recursively merges two maps; non-map values are replaced.
func deepMerge(base, overlay types.Value) types.Value {
	if base.Type() != types.TypeMap || overlay.Type() != types.TypeMap {
		return overlay
	}

	result := base.Clone().AsMap()
	om := overlay.AsMap()
	for _, k := range om.Keys() {
		ov, _ := om.Get(k)
		if existing, ok := result.Get(k); ok {
			result.Set(k, deepMerge(existing, ov))
		} else {
			result.Set(k, ov)
		}
	}
	return types.NewMap(result)
}
