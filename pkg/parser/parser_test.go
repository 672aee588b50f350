package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/ast"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/expr"
)

func kinds(tokens []Token) string {
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		parts[i] = tok.Kind.String()
	}
	return strings.Join(parts, " ")
}

func TestTokenizeKinds(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"plain", "hello", "text"},
		{"expression", "a {{ x }} b", "text expression_open text expression_close text"},
		{"control", "{% if x %}", "control_open text control_close"},
		{"comment", "{# note #}after", "comment text"},
		{"empty tag", "{{}}", "expression_open expression_close"},
		{"unterminated expression", "hi {{ unclosed", "text expression_open text"},
		{"unterminated comment", "{# never", "comment"},
		{"lone brace", "a { b } c", "text"},
		{"closer in string", `{{ "}}" }}`, "expression_open text expression_close"},
		{"nested map literal", `{{ {"a": {"b": [5]}}.a.b[0] }}`, "expression_open text expression_close"},
		{"map before closer", `{{ {"a": 1}}}`, "expression_open text expression_close"},
		{"map in control", `{% set m = {"a": 1} %}x`, "control_open text control_close text"},
		{"unbalanced brace", "{{ { }}", "expression_open text expression_close"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := kinds(Tokenize(tt.src)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTokenizePositions(t *testing.T) {
	tokens := Tokenize("line one\n  {{ x }}\n{% if y %}")
	var open []Token
	for _, tok := range tokens {
		if tok.Kind == TokenExpressionOpen || tok.Kind == TokenControlOpen {
			open = append(open, tok)
		}
	}
	if len(open) != 2 {
		t.Fatalf("got %d open tokens", len(open))
	}
	if open[0].Line != 2 || open[0].Col != 3 {
		t.Errorf("expression at %d:%d, want 2:3", open[0].Line, open[0].Col)
	}
	if open[1].Line != 3 || open[1].Col != 1 {
		t.Errorf("control at %d:%d, want 3:1", open[1].Line, open[1].Col)
	}
}

func TestTokenizeTrimMarkers(t *testing.T) {
	tokens := Tokenize("a  \n{{- x -}}\n  b")
	if tokens[0].Text != "a" {
		t.Errorf("leading text = %q", tokens[0].Text)
	}
	if tokens[2].Text != " x " {
		t.Errorf("content = %q", tokens[2].Text)
	}
	if last := tokens[len(tokens)-1]; last.Text != "b" {
		t.Errorf("trailing text = %q", last.Text)
	}
}

func TestParsePlainText(t *testing.T) {
	nodes, err := Parse("just text\nwith lines")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes))
	}
	text, ok := nodes[0].(*ast.Text)
	if !ok || text.Value != "just text\nwith lines" {
		t.Errorf("got %#v", nodes[0])
	}
}

func TestParseExpression(t *testing.T) {
	nodes, err := Parse("Hi {{ npc.name | upper }}!")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}
	e, ok := nodes[1].(*ast.Expression)
	if !ok {
		t.Fatalf("expected *ast.Expression, got %T", nodes[1])
	}
	if e.Source != "npc.name | upper" {
		t.Errorf("source = %q", e.Source)
	}
	if got := expr.Format(e.Expr); got != "(npc.name | upper)" {
		t.Errorf("expr = %s", got)
	}
	if e.Line != 1 || e.Col != 4 {
		t.Errorf("pos = %d:%d", e.Line, e.Col)
	}
}

func TestParseIfChain(t *testing.T) {
	src := `{% if a %}A{% else if b %}B{% elif c %}C{% elseif d %}D{% else %}E{% endif %}`
	nodes, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, ok := nodes[0].(*ast.If)
	if !ok {
		t.Fatalf("expected *ast.If, got %T", nodes[0])
	}
	if len(n.Branches) != 4 {
		t.Fatalf("expected 4 branches, got %d", len(n.Branches))
	}
	for i, want := range []string{"a", "b", "c", "d"} {
		if got := expr.Format(n.Branches[i].Condition); got != want {
			t.Errorf("branch %d condition = %s, want %s", i, got, want)
		}
	}
	if len(n.Else) != 1 {
		t.Fatalf("expected else body, got %d nodes", len(n.Else))
	}
}

func TestParseIfWithoutElse(t *testing.T) {
	nodes, err := Parse("{% if x %}yes{% endif %}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := nodes[0].(*ast.If); n.Else != nil {
		t.Error("expected nil else body")
	}

	nodes, err = Parse("{% if x %}yes{% else %}{% endif %}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := nodes[0].(*ast.If); n.Else == nil {
		t.Error("empty else clause should be non-nil")
	}
}

func TestParseForLoop(t *testing.T) {
	nodes, err := Parse("{% for item in npc.items %}- {{ item }}\n{% endfor %}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, ok := nodes[0].(*ast.For)
	if !ok {
		t.Fatalf("expected *ast.For, got %T", nodes[0])
	}
	if n.Variable != "item" {
		t.Errorf("variable = %q", n.Variable)
	}
	if got := expr.Format(n.Iterable); got != "npc.items" {
		t.Errorf("iterable = %s", got)
	}
	if len(n.Body) != 3 {
		t.Errorf("body has %d nodes, want 3", len(n.Body))
	}
}

func TestParseSetAndBlock(t *testing.T) {
	nodes, err := Parse(`{% set mood = "calm" %}{% block greeting %}Hello{% endblock greeting %}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	set, ok := nodes[0].(*ast.Set)
	if !ok || set.Variable != "mood" || expr.Format(set.Value) != `"calm"` {
		t.Errorf("set = %#v", nodes[0])
	}
	blk, ok := nodes[1].(*ast.Block)
	if !ok || blk.Name != "greeting" || len(blk.Body) != 1 {
		t.Errorf("block = %#v", nodes[1])
	}
}

func TestParseNested(t *testing.T) {
	src := `{% block intro %}{% for x in xs %}{% if loop.is_last %}last{% endif %}{% endfor %}{% endblock %}`
	nodes, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ast.BlockNames(nodes); len(got) != 1 || got[0] != "intro" {
		t.Errorf("blocks = %v", got)
	}
	var ifs int
	ast.Inspect(nodes, func(n ast.Node) bool {
		if _, ok := n.(*ast.If); ok {
			ifs++
		}
		return true
	})
	if ifs != 1 {
		t.Errorf("found %d if nodes", ifs)
	}
}

func TestParseDegradesToText(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown keyword", "a{% include 'x' %}b", "a{% include 'x' %}b"},
		{"stray endif", "x{% endif %}", "x{% endif %}"},
		{"unterminated expression", "hi {{ unclosed", "hi {{ unclosed"},
		{"unterminated control", "hi {% if", "hi {% if"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(nodes) != 1 {
				t.Fatalf("expected 1 merged text node, got %d", len(nodes))
			}
			if text := nodes[0].(*ast.Text); text.Value != tt.want {
				t.Errorf("got %q, want %q", text.Value, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		line    int
		wantMsg string
	}{
		{"for without in", "{% for x %}{% endfor %}", 1, "malformed for"},
		{"set without equals", "ok\n{% set x %}", 2, "malformed set"},
		{"unclosed if", "{% if x %}never closed", 1, "unclosed if"},
		{"unclosed if after else", "{% if x %}a{% else %}b", 1, "unclosed if"},
		{"unclosed for", "\n\n{% for x in xs %}", 3, "unclosed for"},
		{"unclosed block", "{% block b %}", 1, "unclosed block"},
		{"nameless block", "{% block %}{% endblock %}", 1, "block requires a name"},
		{"mismatched endblock", "{% block a %}\n{% endblock b %}", 2, "does not close"},
		{"error inside body", "{% if x %}{% set %}{% endif %}", 1, "malformed set"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if err == nil {
				t.Fatal("expected error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if pe.Line != tt.line {
				t.Errorf("line = %d, want %d", pe.Line, tt.line)
			}
			if !strings.Contains(pe.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", pe.Error(), tt.wantMsg)
			}
			if pe.Text == "" {
				t.Error("expected offending text")
			}
		})
	}
}

func TestParseTrimWhitespace(t *testing.T) {
	nodes, err := Parse("items:\n{%- for x in xs -%}\n  [x]\n{%- endfor %}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := nodes[0].(*ast.Text); text.Value != "items:" {
		t.Errorf("leading text = %q", text.Value)
	}
	body := nodes[1].(*ast.For).Body
	if text := body[0].(*ast.Text); text.Value != "[x]" {
		t.Errorf("body text = %q", text.Value)
	}
}
