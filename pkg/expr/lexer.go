package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer tokenizes the text of a single expression.
type Lexer struct {
	input  string
	pos    int
	tokens []Token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize scans the entire input and returns all tokens.
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	return l.tokens, nil
}

var twoCharOps = map[string]TokenType{
	"==": TokenEq,
	"!=": TokenNeq,
	"<=": TokenLte,
	">=": TokenGte,
	"&&": TokenAnd,
	"||": TokenOr,
}

var oneCharOps = map[byte]TokenType{
	'+': TokenPlus,
	'-': TokenMinus,
	'*': TokenStar,
	'/': TokenSlash,
	'%': TokenPercent,
	'<': TokenLt,
	'>': TokenGt,
	'!': TokenNot,
	'(': TokenLParen,
	')': TokenRParen,
	'[': TokenLBracket,
	']': TokenRBracket,
	'{': TokenLBrace,
	'}': TokenRBrace,
	'.': TokenDot,
	',': TokenComma,
	':': TokenColon,
	'|': TokenPipe,
}

// next returns the next token from the input.
func (l *Lexer) next() (Token, error) {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}, nil
	}

	ch := l.input[l.pos]

	if ch == '"' || ch == '\'' {
		return l.readString(ch)
	}

	if ch >= '0' && ch <= '9' {
		return l.readNumber()
	}

	// === and !== are accepted as == and != for authors used to JavaScript.
	if l.pos+2 < len(l.input) {
		switch three := l.input[l.pos : l.pos+3]; three {
		case "===", "!==":
			typ := twoCharOps[three[:2]]
			l.pos += 3
			return Token{Type: typ, Value: three, Pos: l.pos - 3}, nil
		}
	}

	if l.pos+1 < len(l.input) {
		two := l.input[l.pos : l.pos+2]
		if typ, ok := twoCharOps[two]; ok {
			l.pos += 2
			return Token{Type: typ, Value: two, Pos: l.pos - 2}, nil
		}
	}

	if typ, ok := oneCharOps[ch]; ok {
		l.pos++
		return Token{Type: typ, Value: string(ch), Pos: l.pos - 1}, nil
	}

	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	if isIdentStart(r) {
		return l.readIdentifier(), nil
	}

	return Token{}, fmt.Errorf("unexpected character %q at position %d", r, l.pos)
}

// readString reads a quoted string literal.
func (l *Lexer) readString(quote byte) (Token, error) {
	start := l.pos
	l.pos++ // skip opening quote

	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\\' && l.pos+1 < len(l.input) {
			l.pos++
			escaped := l.input[l.pos]
			switch escaped {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			case '\'':
				sb.WriteByte('\'')
			default:
				sb.WriteByte('\\')
				sb.WriteByte(escaped)
			}
			l.pos++
			continue
		}
		if ch == quote {
			l.pos++ // skip closing quote
			return Token{
				Type:   TokenString,
				Value:  l.input[start:l.pos],
				StrVal: sb.String(),
				Pos:    start,
			}, nil
		}
		sb.WriteByte(ch)
		l.pos++
	}

	return Token{}, fmt.Errorf("unterminated string starting at position %d", start)
}

// readNumber reads a number literal. All numbers are float64.
func (l *Lexer) readNumber() (Token, error) {
	start := l.pos
	seenDot := false

	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch >= '0' && ch <= '9' {
			l.pos++
		} else if ch == '.' && !seenDot {
			// 1.foo is a property access, not a fraction
			if l.pos+1 < len(l.input) && l.input[l.pos+1] >= '0' && l.input[l.pos+1] <= '9' {
				seenDot = true
				l.pos++
			} else {
				break
			}
		} else if (ch == 'e' || ch == 'E') && l.hasExponent() {
			l.pos++
			if l.input[l.pos] == '+' || l.input[l.pos] == '-' {
				l.pos++
			}
		} else {
			break
		}
	}

	raw := l.input[start:l.pos]
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Token{}, fmt.Errorf("invalid number %q at position %d", raw, start)
	}
	return Token{Type: TokenNumber, Value: raw, NumVal: f, Pos: start}, nil
}

// hasExponent reports whether the e/E at pos starts a valid exponent.
func (l *Lexer) hasExponent() bool {
	i := l.pos + 1
	if i < len(l.input) && (l.input[i] == '+' || l.input[i] == '-') {
		i++
	}
	return i < len(l.input) && l.input[i] >= '0' && l.input[i] <= '9'
}

// readIdentifier reads an identifier or keyword.
func (l *Lexer) readIdentifier() Token {
	start := l.pos
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !isIdentPart(r) {
			break
		}
		l.pos += size
	}

	word := l.input[start:l.pos]
	switch word {
	case "true", "True":
		return Token{Type: TokenTrue, Value: word, Pos: start}
	case "false", "False":
		return Token{Type: TokenFalse, Value: word, Pos: start}
	case "null", "none", "None":
		return Token{Type: TokenNull, Value: word, Pos: start}
	case "and":
		return Token{Type: TokenAnd, Value: word, Pos: start}
	case "or":
		return Token{Type: TokenOr, Value: word, Pos: start}
	case "not":
		return Token{Type: TokenNot, Value: word, Pos: start}
	case "in":
		return Token{Type: TokenIn, Value: word, Pos: start}
	default:
		return Token{Type: TokenIdent, Value: word, Pos: start}
	}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}
