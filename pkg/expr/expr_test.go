package expr

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

// testEnv implements Env for testing.
type testEnv struct {
	vars  map[string]types.Value
	funcs map[string]func(CallSite) (types.Value, error)
	calls []CallSite
}

func newTestEnv() *testEnv {
	return &testEnv{
		vars:  make(map[string]types.Value),
		funcs: make(map[string]func(CallSite) (types.Value, error)),
	}
}

func (e *testEnv) Lookup(name string) (types.Value, bool) {
	v, ok := e.vars[name]
	return v, ok
}

func (e *testEnv) Call(_ context.Context, site CallSite) (types.Value, error) {
	e.calls = append(e.calls, site)
	if fn, ok := e.funcs[site.Qualified]; ok {
		return fn(site)
	}
	if fn, ok := e.funcs[site.Name]; ok {
		return fn(site)
	}
	return types.NewString("[undefined function: " + site.Name + "]"), nil
}

func eval(t *testing.T, env *testEnv, input string) types.Value {
	t.Helper()
	node, err := ParseStrict(input)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	got, err := Evaluate(context.Background(), node, env)
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	return got
}

func TestLiteralExpressions(t *testing.T) {
	env := newTestEnv()

	tests := []struct {
		input string
		want  types.Value
	}{
		{"42", types.NewInt(42)},
		{"0", types.NewInt(0)},
		{"3.14", types.NewNumber(3.14)},
		{"1e3", types.NewInt(1000)},
		{`"hello"`, types.NewString("hello")},
		{`'single'`, types.NewString("single")},
		{`"line\nbreak\ttab \"q\" \\"`, types.NewString("line\nbreak\ttab \"q\" \\")},
		{`""`, types.NewString("")},
		{"true", types.NewBool(true)},
		{"False", types.NewBool(false)},
		{"null", types.Null},
		{"none", types.Null},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := eval(t, env, tt.input); !got.Equal(tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestArithmeticExpressions(t *testing.T) {
	env := newTestEnv()

	tests := []struct {
		input string
		want  string
	}{
		{"1 + 2", "3"},
		{"10 - 4 - 3", "3"},
		{"2 + 3 * 4", "14"},
		{"(2 + 3) * 4", "20"},
		{"7 / 2", "3.5"},
		{"7 % 3", "1"},
		{"-5 + 2", "-3"},
		{"--4", "4"},
		{"1 / 0", "Infinity"},
		{"0 / 0", "NaN"},
		{`"3" * "4"`, "12"},
		{`"a" - 1`, "NaN"},
		{"null + 1", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := eval(t, env, tt.input).String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStringConcatenation(t *testing.T) {
	env := newTestEnv()
	env.vars["items"] = types.NewList([]types.Value{types.NewInt(1)})

	tests := []struct {
		input string
		want  string
	}{
		{`"a" + "b"`, "ab"},
		{`1 + "x"`, "1x"},
		{`"x" + 1.5`, "x1.5"},
		{`"v" + true`, "vtrue"},
		{`"n:" + missing`, "n:"},
		{`items + [2]`, "[1,2]"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := eval(t, env, tt.input).String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestComparisonExpressions(t *testing.T) {
	env := newTestEnv()

	tests := []struct {
		input string
		want  bool
	}{
		{"1 == 1", true},
		{`1 == "1"`, true},
		{`1 === "1"`, true},
		{"null == missing", true},
		{"0 == null", false},
		{"1 != 2", true},
		{"3 > 2", true},
		{"2 >= 2", true},
		{"1 < 0", false},
		{`"apple" < "banana"`, true},
		{`"10" > 9`, true},
		{`"abc" < 1`, false},
		{"[1, 2] == [1, 2]", true},
		{"1 == 1 == true", true},
		{"1 < 2 < 3", true},
		{"3 > 2 > 1", false},
		{`"a" in "abc" == true`, true},
		{"1 != 1 != false", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := eval(t, env, tt.input)
			if got.Type() != types.TypeBool || got.AsBool() != tt.want {
				t.Errorf("got %#v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogicalExpressions(t *testing.T) {
	env := newTestEnv()
	env.vars["name"] = types.NewString("Mira")

	tests := []struct {
		input string
		want  string
	}{
		{"true and false", "false"},
		{"true or false", "true"},
		{"not true", "false"},
		{"not 0", "true"},
		{"!name", "false"},
		{`nickname or "stranger"`, "stranger"},
		{`name and "known"`, "known"},
		{"not 1 == 2", "true"},
		{"true && !false", "true"},
		{"1 or 0 and 0", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := eval(t, env, tt.input).String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAndOrEvaluateBothSides(t *testing.T) {
	env := newTestEnv()
	env.funcs["touch"] = func(CallSite) (types.Value, error) { return types.NewBool(true), nil }

	eval(t, env, "false and touch()")
	eval(t, env, "true or touch()")
	if len(env.calls) != 2 {
		t.Errorf("right operands called %d times, want 2", len(env.calls))
	}
}

func TestVariableAccess(t *testing.T) {
	env := newTestEnv()
	env.vars["x"] = types.NewInt(42)

	stats := types.NewOrderedMap()
	stats.Set("mood", types.NewString("wary"))
	npc := types.NewOrderedMap()
	npc.Set("name", types.NewString("Mira"))
	npc.Set("stats", types.NewMap(stats))
	npc.Set("items", types.NewList([]types.Value{types.NewString("lamp"), types.NewString("key")}))
	env.vars["npc"] = types.NewMap(npc)
	env.vars["scene.location"] = types.NewString("the docks")
	env.vars["npc.title"] = types.NewString("Smith")

	tests := []struct {
		input string
		want  string
	}{
		{"x", "42"},
		{"x + 1", "43"},
		{"npc.name", "Mira"},
		{"npc.stats.mood", "wary"},
		{`npc["stats"]["mood"]`, "wary"},
		{"npc.items[1]", "key"},
		{"npc.items.length", "2"},
		{"npc.items[5]", ""},
		{"npc.items[-1]", ""},
		{"npc.name[0]", "M"},
		{"scene.location", "the docks"},
		{"npc.title", "Smith"},
		{"npc.missing.deeper", ""},
		{"nobody", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := eval(t, env, tt.input).String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMissingIsUndefined(t *testing.T) {
	env := newTestEnv()
	env.vars["n"] = types.Null
	if got := eval(t, env, "missing"); !got.IsUndefined() {
		t.Errorf("got %#v, want undefined", got)
	}
	if got := eval(t, env, "n"); !got.IsNull() {
		t.Errorf("got %#v, want null", got)
	}
}

func TestInExpression(t *testing.T) {
	env := newTestEnv()
	env.vars["my_list"] = types.NewList([]types.Value{
		types.NewInt(1), types.NewInt(2), types.NewInt(3),
	})
	m := types.NewOrderedMap()
	m.Set("a", types.NewInt(1))
	env.vars["my_map"] = types.NewMap(m)

	tests := []struct {
		input string
		want  bool
	}{
		{`2 in my_list`, true},
		{`"2" in my_list`, true},
		{`5 in my_list`, false},
		{`5 not in my_list`, true},
		{`"a" in my_map`, true},
		{`"b" not in my_map`, true},
		{`"lo" in "hello"`, true},
		{`"xyz" in "hello"`, false},
		{`1 in missing`, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := eval(t, env, tt.input)
			if got.Type() != types.TypeBool || got.AsBool() != tt.want {
				t.Errorf("got %#v, want %v", got, tt.want)
			}
		})
	}
}

func TestFunctionCall(t *testing.T) {
	env := newTestEnv()
	env.vars["npc"] = types.NewString("receiver")
	env.funcs["len"] = func(site CallSite) (types.Value, error) {
		return types.NewInt(len(site.Args)), nil
	}
	env.funcs["upper"] = func(site CallSite) (types.Value, error) {
		return types.NewString("UP:" + site.Receiver.String()), nil
	}

	if got := eval(t, env, "len(1, 2, 3)").String(); got != "3" {
		t.Errorf("len = %q", got)
	}
	if got := eval(t, env, "npc.upper()").String(); got != "UP:receiver" {
		t.Errorf("method = %q", got)
	}

	last := env.calls[len(env.calls)-1]
	if !last.HasReceiver || last.Qualified != "npc.upper" || last.Name != "upper" {
		t.Errorf("call site = %+v", last)
	}
}

func TestFilterPassesValueFirst(t *testing.T) {
	env := newTestEnv()
	env.vars["name"] = types.NewString("mira")
	env.funcs["wrap"] = func(site CallSite) (types.Value, error) {
		out := site.Args[0].String()
		for _, a := range site.Args[1:] {
			out = a.String() + out + a.String()
		}
		return types.NewString(out), nil
	}

	if got := eval(t, env, `name | wrap("*") | wrap`).String(); got != "*mira*" {
		t.Errorf("got %q", got)
	}
	if env.calls[0].HasReceiver {
		t.Error("filters carry no receiver")
	}
}

func TestCallErrorPropagates(t *testing.T) {
	env := newTestEnv()
	boom := errors.New("boom")
	env.funcs["fail"] = func(CallSite) (types.Value, error) { return types.Undefined, boom }

	node := Parse(`"a" + [fail()]`)
	_, err := Evaluate(context.Background(), node, env)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestListAndMapLiterals(t *testing.T) {
	env := newTestEnv()
	env.vars["k"] = types.NewString("dyn")

	tests := []struct {
		input string
		want  string
	}{
		{"[]", "[]"},
		{"[1, 'two', [3],]", `[1,"two",[3]]`},
		{`{"a": 1, b: 2, k: 3}`, `{"a":1,"b":2,"k":3}`},
		{`{(k): 1}`, `{"dyn":1}`},
		{`{"n": {"m": null}}`, `{"n":{"m":null}}`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := eval(t, env, tt.input).String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrecedence(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"a or b and c", "(a or (b and c))"},
		{"not a == b", "(not (a == b))"},
		{"a + b * c", "(a + (b * c))"},
		{"-a.b", "(-a.b)"},
		{"a.b(1)[0].c", "a.b(1)[0].c"},
		{"x | upper + y", "((x | upper) + y)"},
		{"a not in b", "(a not in b)"},
		{"x | truncate(10)", "(x | truncate(10))"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			node, err := ParseStrict(tt.input)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if got := Format(node); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseFallback(t *testing.T) {
	tests := []string{
		"a b",
		"1 +",
		"foo(",
		`"unterminated`,
		"a @ b",
		"",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			if _, err := ParseStrict(input); err == nil {
				t.Fatal("expected strict parse error")
			}
			node := Parse(input)
			v, ok := node.(*Variable)
			if !ok {
				t.Fatalf("got %T, want *Variable", node)
			}
			got, err := Evaluate(context.Background(), v, newTestEnv())
			if err != nil || !got.IsUndefined() {
				t.Errorf("fallback evaluated to %#v, %v", got, err)
			}
		})
	}
}

func TestNumberFormattingThroughEvaluation(t *testing.T) {
	env := newTestEnv()
	got := eval(t, env, "0.1 + 0.2")
	if math.Abs(got.AsNumber()-0.3) > 1e-9 {
		t.Errorf("got %v", got.AsNumber())
	}
	if s := eval(t, env, "10 / 4").String(); s != "2.5" {
		t.Errorf("got %q", s)
	}
}
