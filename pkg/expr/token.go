// Package expr implements the expression language used inside {{ }} and
// {% %} tags: a lexer, a precedence-climbing parser and an evaluator.
package expr

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Literals
	TokenNumber TokenType = iota // number literal
	TokenString // string literal
	TokenTrue   // true
	TokenFalse  // false
	TokenNull   // null, none

	// Identifiers and punctuation
	TokenIdent // identifier (variable or function name)
	TokenDot   // .
	TokenComma // ,
	TokenPipe  // |

	// Brackets
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenLBrace   // {
	TokenRBrace   // }
	TokenColon    // :

	// Arithmetic
	TokenPlus    // +
	TokenMinus   // -
	TokenStar    // *
	TokenSlash   // /
	TokenPercent // %

	// Comparison
	TokenEq  // ==
	TokenNeq // !=
	TokenLt  // <
	TokenGt  // >
	TokenLte // <=
	TokenGte // >=

	// Logical
	TokenAnd // and, &&
	TokenOr  // or, ||
	TokenNot // not, !

	// Membership
	TokenIn    // in
	TokenNotIn // not in (produced by the parser, never by the lexer)

	// Special
	TokenEOF // end of expression
)

// Token represents a single lexical token.
type Token struct {
	Type   TokenType
	Value  string  // raw source text
	NumVal float64 // parsed number (for TokenNumber)
	StrVal string  // parsed string (for TokenString, with escapes resolved)
	Pos    int     // byte offset in source
}

// String returns a debug-friendly representation of the token type.
func (t TokenType) String() string {
	switch t {
	case TokenNumber:
		return "NUMBER"
	case TokenString:
		return "STRING"
	case TokenTrue:
		return "TRUE"
	case TokenFalse:
		return "FALSE"
	case TokenNull:
		return "NULL"
	case TokenIdent:
		return "IDENT"
	case TokenDot:
		return "DOT"
	case TokenComma:
		return "COMMA"
	case TokenPipe:
		return "PIPE"
	case TokenLParen:
		return "LPAREN"
	case TokenRParen:
		return "RPAREN"
	case TokenLBracket:
		return "LBRACKET"
	case TokenRBracket:
		return "RBRACKET"
	case TokenLBrace:
		return "LBRACE"
	case TokenRBrace:
		return "RBRACE"
	case TokenColon:
		return "COLON"
	case TokenPlus:
		return "+"
	case TokenMinus:
		return "-"
	case TokenStar:
		return "*"
	case TokenSlash:
		return "/"
	case TokenPercent:
		return "%"
	case TokenEq:
		return "=="
	case TokenNeq:
		return "!="
	case TokenLt:
		return "<"
	case TokenGt:
		return ">"
	case TokenLte:
		return "<="
	case TokenGte:
		return ">="
	case TokenAnd:
		return "and"
	case TokenOr:
		return "or"
	case TokenNot:
		return "not"
	case TokenIn:
		return "in"
	case TokenNotIn:
		return "not in"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}
