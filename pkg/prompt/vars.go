package prompt

import (
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/errors"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

// LoadVariables decodes a YAML mapping into render variables. Map keys keep
// the order they were written in.
func LoadVariables(data []byte) (map[string]types.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse variables YAML")
	}
	vars := make(map[string]types.Value)
	if doc.Kind == 0 {
		return vars, nil
	}

	root, err := FromYAML(&doc)
	if err != nil {
		return nil, err
	}
	if root.IsNull() {
		return vars, nil
	}
	if root.Type() != types.TypeMap {
		return nil, errors.WithHint(
			errors.Newf("variables must be a mapping, got %s", root.Type()),
			"write variables as top-level keys, e.g. `npc: {name: Mara}`")
	}
	m := root.AsMap()
	for _, k := range m.Keys() {
		vars[k], _ = m.Get(k)
	}
	return vars, nil
}

// FromYAML converts a decoded YAML node to a Value.
func FromYAML(n *yaml.Node) (types.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return types.Null, nil
		}
		return FromYAML(n.Content[0])
	case yaml.AliasNode:
		return FromYAML(n.Alias)
	case yaml.SequenceNode:
		items := make([]types.Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := FromYAML(c)
			if err != nil {
				return types.Undefined, err
			}
			items = append(items, v)
		}
		return types.NewList(items), nil
	case yaml.MappingNode:
		m := types.NewOrderedMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := FromYAML(n.Content[i+1])
			if err != nil {
				return types.Undefined, err
			}
			m.Set(n.Content[i].Value, v)
		}
		return types.NewMap(m), nil
	case yaml.ScalarNode:
		return scalar(n)
	}
	return types.Undefined, errors.Newf("line %d: unsupported YAML node", n.Line)
}

func scalar(n *yaml.Node) (types.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return types.Null, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return types.Undefined, errors.Wrapf(err, "line %d", n.Line)
		}
		return types.NewBool(b), nil
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			if i, perr := strconv.ParseInt(n.Value, 0, 64); perr == nil {
				return types.NewNumber(float64(i)), nil
			}
			return types.Undefined, errors.Wrapf(err, "line %d", n.Line)
		}
		return types.NewNumber(f), nil
	default:
		return types.NewString(n.Value), nil
	}
}
