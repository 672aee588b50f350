package expr

import (
	"strconv"
	"strings"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

// Expr is the interface for all expression AST nodes. The set of
// implementations is closed; Evaluate switches over all of them.
type Expr interface {
	exprNode()
}

// StringLiteral is a quoted string with escapes resolved.
type StringLiteral struct {
	Value string
}

// NumberLiteral is a numeric literal.
type NumberLiteral struct {
	Value float64
}

// BoolLiteral is true or false.
type BoolLiteral struct {
	Value bool
}

// NullLiteral is null / none.
type NullLiteral struct{}

// ListLiteral is [a, b, ...].
type ListLiteral struct {
	Elements []Expr
}

// MapLiteral is {key: value, ...}. Keys are any expression; they are
// stringified at evaluation time.
type MapLiteral struct {
	Keys   []Expr
	Values []Expr
}

// Variable is a bare name. Names produced by the parse fallback may contain
// dots or arbitrary text.
type Variable struct {
	Name string
}

// DotAccess is object.property.
type DotAccess struct {
	Object   Expr
	Property string
}

// BracketAccess is object[index].
type BracketAccess struct {
	Object Expr
	Index  Expr
}

// Call is a function call. Callee is set for method-style calls
// (receiver.name(args)) and nil for plain calls (name(args)).
type Call struct {
	Name   string
	Callee Expr
	Args   []Expr
}

// Binary is a binary operation; Op is one of the operator token types.
type Binary struct {
	Op    TokenType
	Left  Expr
	Right Expr
}

// Unary is -operand or not operand.
type Unary struct {
	Op      TokenType
	Operand Expr
}

// Filter is value | name(args).
type Filter struct {
	Value Expr
	Name  string
	Args  []Expr
}

func (*StringLiteral) exprNode() {}
func (*NumberLiteral) exprNode() {}
func (*BoolLiteral) exprNode()   {}
func (*NullLiteral) exprNode()   {}
func (*ListLiteral) exprNode()   {}
func (*MapLiteral) exprNode()    {}
func (*Variable) exprNode()      {}
func (*DotAccess) exprNode()     {}
func (*BracketAccess) exprNode() {}
func (*Call) exprNode()          {}
func (*Binary) exprNode()        {}
func (*Unary) exprNode()         {}
func (*Filter) exprNode()        {}

// DottedPath returns "a.b.c" for a DotAccess chain rooted at a Variable.
func DottedPath(e Expr) (string, bool) {
	switch n := e.(type) {
	case *Variable:
		return n.Name, true
	case *DotAccess:
		base, ok := DottedPath(n.Object)
		if !ok {
			return "", false
		}
		return base + "." + n.Property, true
	}
	return "", false
}

// Format renders an expression as a fully parenthesised string. It is used
// by diagnostics and tests to show how an expression was grouped.
func Format(e Expr) string {
	var sb strings.Builder
	format(&sb, e)
	return sb.String()
}

func format(sb *strings.Builder, e Expr) {
	switch n := e.(type) {
	case *StringLiteral:
		sb.WriteString(strconv.Quote(n.Value))
	case *NumberLiteral:
		sb.WriteString(types.FormatNumber(n.Value))
	case *BoolLiteral:
		sb.WriteString(strconv.FormatBool(n.Value))
	case *NullLiteral:
		sb.WriteString("null")
	case *ListLiteral:
		sb.WriteByte('[')
		formatList(sb, n.Elements)
		sb.WriteByte(']')
	case *MapLiteral:
		sb.WriteByte('{')
		for i := range n.Keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, n.Keys[i])
			sb.WriteString(": ")
			format(sb, n.Values[i])
		}
		sb.WriteByte('}')
	case *Variable:
		sb.WriteString(n.Name)
	case *DotAccess:
		format(sb, n.Object)
		sb.WriteByte('.')
		sb.WriteString(n.Property)
	case *BracketAccess:
		format(sb, n.Object)
		sb.WriteByte('[')
		format(sb, n.Index)
		sb.WriteByte(']')
	case *Call:
		if n.Callee != nil {
			format(sb, n.Callee)
			sb.WriteByte('.')
		}
		sb.WriteString(n.Name)
		sb.WriteByte('(')
		formatList(sb, n.Args)
		sb.WriteByte(')')
	case *Binary:
		sb.WriteByte('(')
		format(sb, n.Left)
		sb.WriteByte(' ')
		sb.WriteString(n.Op.String())
		sb.WriteByte(' ')
		format(sb, n.Right)
		sb.WriteByte(')')
	case *Unary:
		sb.WriteByte('(')
		sb.WriteString(n.Op.String())
		if n.Op == TokenNot {
			sb.WriteByte(' ')
		}
		format(sb, n.Operand)
		sb.WriteByte(')')
	case *Filter:
		sb.WriteByte('(')
		format(sb, n.Value)
		sb.WriteString(" | ")
		sb.WriteString(n.Name)
		if len(n.Args) > 0 {
			sb.WriteByte('(')
			formatList(sb, n.Args)
			sb.WriteByte(')')
		}
		sb.WriteByte(')')
	default:
		sb.WriteString("?")
	}
}

func formatList(sb *strings.Builder, items []Expr) {
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		format(sb, item)
	}
}
