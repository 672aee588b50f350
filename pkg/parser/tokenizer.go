package parser

import (
	"strings"
	"unicode"
)

// TokenKind classifies template tokens.
type TokenKind int

const (
	TokenText            TokenKind = iota // literal text, or the content of a tag
	TokenExpressionOpen                   // {{ or {{-
	TokenExpressionClose                  // }} or -}}
	TokenControlOpen                      // {% or {%-
	TokenControlClose                     // %} or -%}
	TokenComment                          // {# ... #}, Text holds the inner text
)

// String returns a debug-friendly name for the kind.
func (k TokenKind) String() string {
	switch k {
	case TokenText:
		return "text"
	case TokenExpressionOpen:
		return "expression_open"
	case TokenExpressionClose:
		return "expression_close"
	case TokenControlOpen:
		return "control_open"
	case TokenControlClose:
		return "control_close"
	case TokenComment:
		return "comment"
	default:
		return "unknown"
	}
}

// Token is one lexical unit of a template. Line and Col are 1-based and
// point at the first byte of the token.
type Token struct {
	Kind TokenKind
	Text string
	Line int
	Col  int

	// Trim is set on delimiters carrying a '-' whitespace-control marker.
	Trim bool
}

// Tokenize scans a template in a single pass. It never fails: an
// unterminated comment or tag consumes the rest of the input, leaving an
// open delimiter without a matching close for the parser to echo.
func Tokenize(source string) []Token {
	s := &scanner{src: source, line: 1, col: 1}
	for s.pos < len(s.src) {
		rest := s.src[s.pos:]
		switch {
		case strings.HasPrefix(rest, "{#"):
			s.scanComment()
		case strings.HasPrefix(rest, "{{"):
			s.scanTag(TokenExpressionOpen, TokenExpressionClose, "{{", "}}")
		case strings.HasPrefix(rest, "{%"):
			s.scanTag(TokenControlOpen, TokenControlClose, "{%", "%}")
		default:
			s.scanText()
		}
	}
	applyTrim(s.tokens)
	return s.tokens
}

type scanner struct {
	src    string
	pos    int
	line   int
	col    int
	tokens []Token
}

// consume emits src[pos:pos+n] as a token and advances past it.
func (s *scanner) consume(kind TokenKind, n int, trim bool) {
	s.tokens = append(s.tokens, Token{
		Kind: kind,
		Text: s.src[s.pos : s.pos+n],
		Line: s.line,
		Col:  s.col,
		Trim: trim,
	})
	s.skip(n)
}

// skip advances n bytes, tracking line and column.
func (s *scanner) skip(n int) {
	for _, r := range s.src[s.pos : s.pos+n] {
		if r == '\n' {
			s.line++
			s.col = 1
		} else {
			s.col++
		}
	}
	s.pos += n
}

func (s *scanner) scanText() {
	rest := s.src[s.pos:]
	n := len(rest)
	// The current byte is never a tag start, so search from the next one.
	for i := 1; i < len(rest)-1; i++ {
		if rest[i] == '{' && (rest[i+1] == '{' || rest[i+1] == '%' || rest[i+1] == '#') {
			n = i
			break
		}
	}
	s.consume(TokenText, n, false)
}

func (s *scanner) scanComment() {
	line, col := s.line, s.col
	s.skip(2)
	rest := s.src[s.pos:]
	end := strings.Index(rest, "#}")
	body := rest
	if end >= 0 {
		body = rest[:end]
	}
	s.tokens = append(s.tokens, Token{Kind: TokenComment, Text: body, Line: line, Col: col})
	if end >= 0 {
		s.skip(end + 2)
	} else {
		s.skip(len(rest))
	}
}

func (s *scanner) scanTag(openKind, closeKind TokenKind, opener, closer string) {
	openLen := len(opener)
	trimOpen := strings.HasPrefix(s.src[s.pos+openLen:], "-")
	if trimOpen {
		openLen++
	}
	s.consume(openKind, openLen, trimOpen)

	rest := s.src[s.pos:]
	end := findClose(rest, closer, true)
	if end < 0 {
		// An unbalanced quote must not hide the closer.
		end = findClose(rest, closer, false)
	}
	if end < 0 {
		if rest != "" {
			s.consume(TokenText, len(rest), false)
		}
		return
	}

	trimClose := end > 0 && rest[end-1] == '-'
	content := end
	if trimClose {
		content--
	}
	if content > 0 {
		s.consume(TokenText, content, false)
	}
	closeLen := len(closer)
	if trimClose {
		closeLen++
	}
	s.consume(closeKind, closeLen, trimClose)
}

// findClose returns the offset of closer in s. The quote-aware pass skips
// quoted strings and balanced braces, so "}}" inside a literal or a nested
// map literal does not end the tag.
func findClose(s, closer string, quoteAware bool) int {
	if !quoteAware {
		return strings.Index(s, closer)
	}
	var quote byte
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
			continue
		}
		if depth == 0 && strings.HasPrefix(s[i:], closer) {
			return i
		}
		switch {
		case c == '{':
			depth++
		case c == '}' && depth > 0:
			depth--
		}
	}
	return -1
}

// applyTrim strips whitespace next to delimiters that carry a trim marker.
// The text before an open delimiter and the text after a close delimiter
// are always literal text, never tag content.
func applyTrim(tokens []Token) {
	for i, tok := range tokens {
		if !tok.Trim {
			continue
		}
		switch tok.Kind {
		case TokenExpressionOpen, TokenControlOpen:
			if i > 0 && tokens[i-1].Kind == TokenText {
				tokens[i-1].Text = strings.TrimRightFunc(tokens[i-1].Text, unicode.IsSpace)
			}
		case TokenExpressionClose, TokenControlClose:
			if i+1 < len(tokens) && tokens[i+1].Kind == TokenText {
				tokens[i+1].Text = strings.TrimLeftFunc(tokens[i+1].Text, unicode.IsSpace)
			}
		}
	}
}
