package runtime

import (
	"context"
	"strings"
	"testing"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/errors"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/parser"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/stdlib"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

func renderWith(t *testing.T, source string, rc *RenderContext) string {
	t.Helper()
	out, err := NewRenderer().Render(context.Background(), source, rc)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	return out
}

func render(t *testing.T, source string, vars map[string]types.Value) string {
	t.Helper()
	return renderWith(t, source, &RenderContext{Variables: vars})
}

func npcVars() map[string]types.Value {
	return map[string]types.Value{
		"name": types.NewString("Mara"),
		"npc": types.FromGo(map[string]any{
			"name":  "Mara",
			"items": []any{"rope", "lamp", "bread"},
			"stats": map[string]any{"mood": "wary"},
		}),
		"npc.title": types.NewString("the Smith"),
		"xs":        types.FromGo([]any{"a", "b", "c"}),
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"plain text", "Hello, traveller.\n  Nothing to see.", "Hello, traveller.\n  Nothing to see."},
		{"string concat", `{{ "a" + "b" }}`, "ab"},
		{"addition", "{{ 1 + 2 }}", "3"},
		{"mixed concat", `{{ 1 + "x" }}`, "1x"},
		{"variable", "Hi {{ name }}!", "Hi Mara!"},
		{"dot path", "{{ npc.stats.mood }}", "wary"},
		{"flattened key", "{{ npc.title }}", "the Smith"},
		{"missing variable", "[{{ nobody }}]", "[]"},
		{"list renders json", "{{ npc.items }}", `["rope","lamp","bread"]`},
		{"comment", "a{# hidden #}b", "ab"},
		{"if else", "{% if false %}A{% else %}B{% endif %}", "B"},
		{"elif", `{% if name == "Bo" %}1{% elif name == "Mara" %}2{% else %}3{% endif %}`, "2"},
		{"for", "{% for x in [1,2,3] %}{{ x }}-{% endfor %}", "1-2-3-"},
		{"loop record", "{% for x in xs %}{% if loop.is_last %}last{% else %}{{ loop.index1 }},{% endif %}{% endfor %}", "1,2,last"},
		{"loop first", "{% for x in xs %}{% if loop.is_first %}{{ x }}{{ loop.length }}{% endif %}{% endfor %}", "a3"},
		{"for over string", "{% for x in name %}{{ x }}{% endfor %}", ""},
		{"for over missing", "{% for x in nothing %}{{ x }}{% endfor %}", ""},
		{"builtins", `{{ length("abc") }} {{ length([1,2]) }} {{ join([1,2,3], "-") }}`, "3 2 1-2-3"},
		{"filter", "{{ name | upper }}", "MARA"},
		{"filter with args", `{{ npc.items | join(" / ") }}`, "rope / lamp / bread"},
		{"value method", "{{ name.lower() }}", "mara"},
		{"separator join", `{{ ", ".join(npc.items) }}`, "rope, lamp, bread"},
		{"map method", `{{ npc.stats.get("mood") }}`, "wary"},
		{"dotted builtin", `{{ text.to_upper("quiet") }}`, "QUIET"},
		{"receiver prepended", `{{ npc.items.first() }}`, "rope"},
		{"unknown function", "{{ madeup() }}", "[undefined function: madeup]"},
		{"unknown method", "{{ npc.dance(1) }}", "[undefined function: npc.dance]"},
		{"unterminated", "hi {{ unclosed", "hi {{ unclosed"},
		{"unknown statement", "{% include 'x' %}", "{% include 'x' %}"},
		{"trim markers", "a  {{- name -}}  b", "aMarab"},
		{"nested map literal", `{{ {"a": {"b": [5]}}.a.b[0] }}`, "5"},
		{"set map literal", `{% set m = {"k": {"v": 1}} %}{{ m.k.v }}`, "1"},
		{"chained comparison", "{{ 1 == 1 == true }}", "true"},
		{"block default", "{% block greeting %}Hello {{ name }}{% endblock %}", "Hello Mara"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.src, npcVars()); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderTruthiness(t *testing.T) {
	tests := []struct {
		name  string
		value types.Value
		want  string
	}{
		{"empty list", types.NewList(nil), "F"},
		{"zero", types.NewInt(0), "F"},
		{"empty string", types.NewString(""), "F"},
		{"null", types.Null, "F"},
		{"undefined", types.Undefined, "F"},
		{"false", types.NewBool(false), "F"},
		{"empty map", types.NewMap(nil), "T"},
		{"list of zero", types.FromGo([]any{0}), "T"},
		{"string zero", types.NewString("0"), "T"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars := map[string]types.Value{"v": tt.value}
			if got := render(t, "{% if v %}T{% else %}F{% endif %}", vars); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBlockOverride(t *testing.T) {
	src := "<{% block greeting %}Hello {{ name }}{% for x in xs %}{{ x }}{% endfor %}{% endblock %}>"
	rc := &RenderContext{
		Variables: npcVars(),
		Blocks:    map[string]string{"greeting": "X {{ raw }}"},
	}
	if got := renderWith(t, src, rc); got != "<X {{ raw }}>" {
		t.Errorf("got %q", got)
	}
}

func TestRenderIdempotent(t *testing.T) {
	src := "{% set mood = npc.stats.mood %}{% for x in xs %}{{ loop.index }}{{ x }}{% endfor %} {{ mood | upper }}"
	vars := npcVars()
	first := render(t, src, vars)
	second := render(t, src, vars)
	if first != second {
		t.Errorf("renders differ: %q vs %q", first, second)
	}
	if first != "0a1b2c WARY" {
		t.Errorf("got %q", first)
	}
}

func TestScoping(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"top-level set persists", `{% set a = "x" %}{{ a }}{{ a }}`, "xx"},
		{"if body set persists", `{% if true %}{% set b = "in" %}{% endif %}{{ b }}`, "in"},
		{"loop set stays in iteration", `{% set a = 1 %}{% for x in [1,2] %}{% set a = a + x %}{{ a }};{% endfor %}{{ a }}`, "2;3;1"},
		{"loop variable does not leak", `{% for x in [1] %}{% endfor %}[{{ x }}]`, "[]"},
		{"loop shadows outer", `{% set x = "outer" %}{% for x in ["inner"] %}{{ x }}{% endfor %} {{ x }}`, "inner outer"},
		{"nested loops", `{% for a in [1,2] %}{% for b in ["x","y"] %}{{ a }}{{ b }}{{ loop.index }} {% endfor %}{% endfor %}`, "1x0 1y1 2x0 2y1 "},
		{"block set persists", `{% block b %}{% set v = 3 %}{% endblock %}{{ v }}`, "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.src, nil); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCallerVariablesUntouched(t *testing.T) {
	vars := map[string]types.Value{"a": types.NewInt(1)}
	if got := render(t, "{% set a = 2 %}{% set b = 3 %}{{ a }}{{ b }}", vars); got != "23" {
		t.Errorf("got %q", got)
	}
	if len(vars) != 1 || !vars["a"].Equal(types.NewInt(1)) {
		t.Errorf("caller map mutated: %v", vars)
	}
}

func TestHostFunctions(t *testing.T) {
	funcs := stdlib.NewRegistry()
	funcs.Register("npc.greet", stdlib.Pure(func(args []types.Value) types.Value {
		return types.NewString("greet(" + args[0].String() + ")")
	}))
	funcs.Register("shout", stdlib.Pure(func(args []types.Value) types.Value {
		return types.NewString(strings.ToUpper(args[0].String()) + "!")
	}))
	funcs.Register("upper", stdlib.Pure(func(args []types.Value) types.Value {
		return types.NewString("host upper")
	}))
	funcs.Register("scene", func(ctx context.Context, args []types.Value) (types.Value, error) {
		rc, ok := CurrentContext(ctx)
		if !ok {
			return types.Undefined, errors.New("no render context")
		}
		return rc.Variables["x"], nil
	})

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"qualified name", `{{ npc.greet("hi") }}`, "greet(hi)"},
		{"receiver prepended", `{{ "hello".shout() }}`, "HELLO!"},
		{"plain call", `{{ shout("hey") }}`, "HEY!"},
		{"filter", `{{ name | shout }}`, "MARA!"},
		{"builtin shadows host", `{{ upper("a") }}`, "A"},
		{"sees loop variable", `{% for x in ["p","q"] %}{{ scene() }}{% endfor %}`, "pq"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := &RenderContext{Variables: npcVars(), Functions: funcs}
			if got := renderWith(t, tt.src, rc); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHostErrorAbortsRender(t *testing.T) {
	funcs := stdlib.NewRegistry()
	funcs.Register("fail", func(ctx context.Context, args []types.Value) (types.Value, error) {
		return types.Undefined, errors.New("data provider offline")
	})

	out, err := NewRenderer().Render(context.Background(), "before {{ fail() }} after", &RenderContext{Functions: funcs})
	if err == nil {
		t.Fatal("expected error")
	}
	if out != "" {
		t.Errorf("expected no partial output, got %q", out)
	}
	if !strings.Contains(err.Error(), "data provider offline") {
		t.Errorf("error = %v", err)
	}
}

func TestIncludeDepth(t *testing.T) {
	r := &Renderer{MaxIncludeDepth: 3}
	funcs := stdlib.NewRegistry()
	var calls int
	funcs.Register("again", func(ctx context.Context, args []types.Value) (types.Value, error) {
		calls++
		rc, _ := CurrentContext(ctx)
		out, err := r.Render(ctx, "{{ again() }}", rc)
		return types.NewString(out), err
	})

	_, err := r.Render(context.Background(), "{{ again() }}", &RenderContext{Functions: funcs})
	if !errors.Is(err, ErrIncludeDepth) {
		t.Fatalf("expected ErrIncludeDepth, got %v", err)
	}
	if calls != 3 {
		t.Errorf("host function called %d times, want 3", calls)
	}
}

func TestIncludeWithinLimit(t *testing.T) {
	r := NewRenderer()
	funcs := stdlib.NewRegistry()
	funcs.Register("partial", func(ctx context.Context, args []types.Value) (types.Value, error) {
		rc, _ := CurrentContext(ctx)
		out, err := r.Render(ctx, "[{{ name }}]", rc)
		return types.NewString(out), err
	})

	got, err := r.Render(context.Background(), "{{ partial() }}{{ partial() }}", &RenderContext{Variables: npcVars(), Functions: funcs})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "[Mara][Mara]" {
		t.Errorf("got %q", got)
	}
}

func TestRenderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRenderer().Render(ctx, "a{{ 1 }}b", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRenderParseError(t *testing.T) {
	out, err := NewRenderer().Render(context.Background(), "ok\n{% for x %}{% endfor %}", nil)
	if out != "" {
		t.Errorf("expected empty output, got %q", out)
	}
	var pe *parser.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *parser.ParseError, got %v", err)
	}
	if pe.Line != 2 {
		t.Errorf("line = %d, want 2", pe.Line)
	}
}

func TestExtractBlocks(t *testing.T) {
	src := `{% set n = npc.name %}{% block intro %}I am {{ n }}.{% endblock %}ignored{% block outro %}Bye{% endblock %}`
	blocks, err := NewRenderer().ExtractBlocks(context.Background(), src, &RenderContext{Variables: npcVars()})
	if err != nil {
		t.Fatalf("extract error: %v", err)
	}
	if len(blocks) != 2 || blocks["intro"] != "I am Mara." || blocks["outro"] != "Bye" {
		t.Errorf("blocks = %v", blocks)
	}

	base := "{% block intro %}default intro{% endblock %}\n{% block outro %}default outro{% endblock %}"
	got := renderWith(t, base, &RenderContext{Blocks: blocks})
	if got != "I am Mara.\nBye" {
		t.Errorf("composed = %q", got)
	}
}

func TestScopeFrames(t *testing.T) {
	root := NewScope(map[string]types.Value{"a": types.NewInt(1)})
	child := root.Push()
	child.Set("a", types.NewInt(2))
	child.Set("b", types.NewInt(3))

	if v, _ := root.Lookup("a"); !v.Equal(types.NewInt(1)) {
		t.Errorf("root a = %v", v)
	}
	if v, _ := child.Lookup("a"); !v.Equal(types.NewInt(2)) {
		t.Errorf("child a = %v", v)
	}
	if _, ok := root.Lookup("b"); ok {
		t.Error("child binding visible in root")
	}
	flat := child.Flatten()
	if len(flat) != 2 || !flat["a"].Equal(types.NewInt(2)) {
		t.Errorf("flatten = %v", flat)
	}
}
