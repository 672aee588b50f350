package stdlib

import (
	"bytes"
	"encoding/json"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

// registerJSON registers JSON helpers and the json.* family.
func (r *Registry) registerJSON() {
	r.Register("to_json", Pure(jsonEncodeToString))
	r.Register("from_json", Pure(jsonDecode))

	r.Register("json.decode", Pure(jsonDecode))
	r.Register("json.encode_to_string", Pure(jsonEncodeToString))
}

// jsonDecode parses a JSON string, preserving object key order. Invalid input
// gives undefined.
func jsonDecode(args []types.Value) types.Value {
	v := arg(args, 0)
	if v.Type() != types.TypeString {
		return types.Undefined
	}
	parsed, err := types.ParseJSON([]byte(v.AsString()))
	if err != nil {
		return types.Undefined
	}
	return parsed
}

// jsonEncodeToString serializes a value compactly, or indented by the given
// number of spaces. Widths above MaxIndentWidth give undefined.
func jsonEncodeToString(args []types.Value) types.Value {
	width := intArg(args, 1, 0)
	if width > MaxIndentWidth {
		return types.Undefined
	}
	b, err := arg(args, 0).MarshalJSON()
	if err != nil {
		return types.Undefined
	}
	if width > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, b, "", spaces(width)); err == nil {
			b = buf.Bytes()
		}
	}
	return types.NewString(string(b))
}

func spaces(n int) string {
	return string(bytes.Repeat([]byte{' '}, n))
}
