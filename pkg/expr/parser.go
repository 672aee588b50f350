package expr

import (
	"fmt"
	"strings"
)

// Parser is a recursive descent parser for tag expressions.
type Parser struct {
	tokens []Token
	pos    int
}

// Parse parses the text of a tag. It never fails: when the text does not
// lex, does not parse, or leaves tokens unconsumed, the whole text becomes a
// Variable whose name is the trimmed source. Lookup of such a name yields
// undefined, so a half-typed expression renders empty instead of aborting.
func Parse(input string) Expr {
	node, err := ParseStrict(input)
	if err != nil {
		return &Variable{Name: strings.TrimSpace(input)}
	}
	return node
}

// ParseStrict parses the text of a tag and reports malformed input.
func ParseStrict(input string) (Expr, error) {
	lexer := NewLexer(input)
	tokens, err := lexer.Tokenize()
	if err != nil {
		return nil, fmt.Errorf("lexer error: %w", err)
	}

	p := &Parser{tokens: tokens}
	node, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	if p.current().Type != TokenEOF {
		return nil, fmt.Errorf("unexpected token %s (%q) at position %d", p.current().Type, p.current().Value, p.current().Pos)
	}

	return node, nil
}

// current returns the current token.
func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

// peek returns the next token without consuming it.
func (p *Parser) peek() Token {
	if p.pos+1 >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos+1]
}

// advance consumes the current token and returns it.
func (p *Parser) advance() Token {
	tok := p.current()
	p.pos++
	return tok
}

// expect consumes a token of the expected type or returns an error.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.current()
	if tok.Type != tt {
		return tok, fmt.Errorf("expected %s, got %s at position %d", tt, tok.Type, tok.Pos)
	}
	p.advance()
	return tok, nil
}

// parseExpression is the entry point: handles the lowest precedence operators.
// Precedence (low to high):
//
//	or
//	and
//	not
//	==, !=, <, >, <=, >=, in, not in
//	+, -
//	*, /, %
//	unary -
//	.prop, [index], (args), | filter
func (p *Parser) parseExpression() (Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.current().Type == TokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: TokenOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseNotExpr()
	if err != nil {
		return nil, err
	}

	for p.current().Type == TokenAnd {
		p.advance()
		right, err := p.parseNotExpr()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: TokenAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNotExpr() (Expr, error) {
	if p.current().Type == TokenNot {
		p.advance()
		operand, err := p.parseNotExpr()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: TokenNot, Operand: operand}, nil
	}
	return p.parseComparison()
}

// parseComparison chains comparisons left to right, so a == b == c is
// (a == b) == c.
func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseAddition()
	if err != nil {
		return nil, err
	}

	for {
		var op TokenType
		switch p.current().Type {
		case TokenEq, TokenNeq, TokenLt, TokenGt, TokenLte, TokenGte, TokenIn:
			op = p.advance().Type
		case TokenNot:
			if p.peek().Type != TokenIn {
				return left, nil
			}
			p.advance() // consume 'not'
			p.advance() // consume 'in'
			op = TokenNotIn
		default:
			return left, nil
		}
		right, err := p.parseAddition()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseAddition() (Expr, error) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}

	for p.current().Type == TokenPlus || p.current().Type == TokenMinus {
		op := p.advance().Type
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplication() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.current().Type == TokenStar || p.current().Type == TokenSlash || p.current().Type == TokenPercent {
		op := p.advance().Type
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	switch p.current().Type {
	case TokenMinus:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: TokenMinus, Operand: operand}, nil
	case TokenPlus:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: TokenPlus, Operand: operand}, nil
	case TokenNot:
		// !x binds like unary minus; the keyword form is handled by parseNotExpr
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: TokenNot, Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Expr, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		switch p.current().Type {
		case TokenDot:
			p.advance()
			name, err := p.expect(TokenIdent)
			if err != nil {
				return nil, fmt.Errorf("expected property name after '.': %w", err)
			}
			if p.current().Type == TokenLParen {
				args, err := p.parseArgList()
				if err != nil {
					return nil, err
				}
				node = &Call{Name: name.Value, Callee: node, Args: args}
			} else {
				node = &DotAccess{Object: node, Property: name.Value}
			}
		case TokenLBracket:
			p.advance()
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenRBracket); err != nil {
				return nil, fmt.Errorf("expected ']': %w", err)
			}
			node = &BracketAccess{Object: node, Index: index}
		case TokenLParen:
			// Calling the result of an arbitrary expression; only names resolve,
			// so the formatted expression becomes the name.
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			node = &Call{Name: Format(node), Args: args}
		case TokenPipe:
			p.advance()
			name, err := p.expect(TokenIdent)
			if err != nil {
				return nil, fmt.Errorf("expected filter name after '|': %w", err)
			}
			var args []Expr
			if p.current().Type == TokenLParen {
				args, err = p.parseArgList()
				if err != nil {
					return nil, err
				}
			}
			node = &Filter{Value: node, Name: name.Value, Args: args}
		default:
			return node, nil
		}
	}
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.current()

	switch tok.Type {
	case TokenNumber:
		p.advance()
		return &NumberLiteral{Value: tok.NumVal}, nil
	case TokenString:
		p.advance()
		return &StringLiteral{Value: tok.StrVal}, nil
	case TokenTrue:
		p.advance()
		return &BoolLiteral{Value: true}, nil
	case TokenFalse:
		p.advance()
		return &BoolLiteral{Value: false}, nil
	case TokenNull:
		p.advance()
		return &NullLiteral{}, nil
	case TokenIdent:
		p.advance()
		if p.current().Type == TokenLParen {
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			return &Call{Name: tok.Value, Args: args}, nil
		}
		return &Variable{Name: tok.Value}, nil
	case TokenLParen:
		p.advance()
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, fmt.Errorf("expected ')': %w", err)
		}
		return inner, nil
	case TokenLBracket:
		return p.parseListLiteral()
	case TokenLBrace:
		return p.parseMapLiteral()
	default:
		return nil, fmt.Errorf("unexpected token %s (%q) at position %d", tok.Type, tok.Value, tok.Pos)
	}
}

// parseListLiteral parses [expr, expr, ...]. A trailing comma is allowed.
func (p *Parser) parseListLiteral() (Expr, error) {
	p.advance() // consume [

	elements := []Expr{}
	for p.current().Type != TokenRBracket {
		elem, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		elements = append(elements, elem)
		if p.current().Type != TokenComma {
			break
		}
		p.advance()
	}

	if _, err := p.expect(TokenRBracket); err != nil {
		return nil, fmt.Errorf("expected ']': %w", err)
	}

	return &ListLiteral{Elements: elements}, nil
}

// parseMapLiteral parses { key: value, key: value, ... }. Bare identifier
// keys are taken literally, as in JavaScript object literals.
func (p *Parser) parseMapLiteral() (Expr, error) {
	p.advance() // consume {

	var keys []Expr
	var values []Expr
	for p.current().Type != TokenRBrace {
		var key Expr
		if p.current().Type == TokenIdent && p.peek().Type == TokenColon {
			key = &StringLiteral{Value: p.advance().Value}
		} else {
			k, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			key = k
		}
		if _, err := p.expect(TokenColon); err != nil {
			return nil, fmt.Errorf("expected ':' in map literal: %w", err)
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
		values = append(values, value)
		if p.current().Type != TokenComma {
			break
		}
		p.advance()
	}

	if _, err := p.expect(TokenRBrace); err != nil {
		return nil, fmt.Errorf("expected '}': %w", err)
	}

	return &MapLiteral{Keys: keys, Values: values}, nil
}

// parseArgList parses (expr, expr, ...).
func (p *Parser) parseArgList() ([]Expr, error) {
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, fmt.Errorf("expected '(': %w", err)
	}

	args := []Expr{}
	for p.current().Type != TokenRParen {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.current().Type != TokenComma {
			break
		}
		p.advance()
	}

	if _, err := p.expect(TokenRParen); err != nil {
		return nil, fmt.Errorf("expected ')': %w", err)
	}

	return args, nil
}
