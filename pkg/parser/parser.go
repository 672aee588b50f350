// Package parser turns template source into an ast tree. Recoverable
// problems (unterminated tags, unknown control keywords) degrade to literal
// text; structural mistakes are reported as *ParseError.
package parser

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/ast"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/expr"
)

// ParseError is a fatal template error. Text is the source of the offending
// tag and Line/Col its position.
type ParseError struct {
	Line int
	Col  int
	Text string
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("parse error at line %d, col %d: %s: %s", e.Line, e.Col, e.Msg, e.Text)
	}
	return fmt.Sprintf("parse error at line %d, col %d: %s", e.Line, e.Col, e.Msg)
}

// Parser consumes a token stream produced by Tokenize.
type Parser struct {
	tokens []Token
	pos    int
}

// controlTag is a closed {% ... %} tag split into keyword and arguments.
type controlTag struct {
	keyword string
	args    string
	raw     string
	ast.Pos
}

var (
	ifStops    = map[string]bool{"elif": true, "else": true, "endif": true}
	endifStop  = map[string]bool{"endif": true}
	endforStop = map[string]bool{"endfor": true}
	endblkStop = map[string]bool{"endblock": true}
)

// Parse tokenizes and parses a template.
func Parse(source string) ([]ast.Node, error) {
	p := &Parser{tokens: Tokenize(source)}
	nodes, _, err := p.parseNodes(nil)
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// parseNodes collects nodes until a control tag whose keyword is in stop,
// which is consumed and returned. A nil tag means the input ran out.
func (p *Parser) parseNodes(stop map[string]bool) ([]ast.Node, *controlTag, error) {
	var nodes []ast.Node
	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		switch tok.Kind {
		case TokenText:
			p.pos++
			nodes = appendText(nodes, tok.Text)
		case TokenComment:
			p.pos++
			nodes = append(nodes, &ast.Comment{Value: tok.Text})
		case TokenExpressionOpen:
			content, raw, closed := p.readTag()
			if !closed {
				nodes = appendText(nodes, raw)
				continue
			}
			nodes = append(nodes, &ast.Expression{
				Expr:   expr.Parse(content),
				Source: strings.TrimSpace(content),
				Pos:    ast.Pos{Line: tok.Line, Col: tok.Col},
			})
		case TokenControlOpen:
			content, raw, closed := p.readTag()
			if !closed {
				nodes = appendText(nodes, raw)
				continue
			}
			tag := splitControl(content, raw, ast.Pos{Line: tok.Line, Col: tok.Col})
			if stop[tag.keyword] {
				return nodes, tag, nil
			}
			node, err := p.parseControl(tag)
			if err != nil {
				return nil, nil, err
			}
			if text, ok := node.(*ast.Text); ok {
				nodes = appendText(nodes, text.Value)
			} else {
				nodes = append(nodes, node)
			}
		default:
			// A close delimiter outside a tag cannot come out of Tokenize; keep it as text.
			p.pos++
			nodes = appendText(nodes, tok.Text)
		}
	}
	return nodes, nil, nil
}

// readTag consumes an open delimiter, its content and its close delimiter.
// raw is the source text of everything consumed.
func (p *Parser) readTag() (content, raw string, closed bool) {
	open := p.tokens[p.pos]
	p.pos++
	raw = open.Text
	if p.pos < len(p.tokens) && p.tokens[p.pos].Kind == TokenText {
		content = p.tokens[p.pos].Text
		raw += content
		p.pos++
	}
	if p.pos < len(p.tokens) {
		next := p.tokens[p.pos]
		if next.Kind == TokenExpressionClose || next.Kind == TokenControlClose {
			p.pos++
			return content, raw + next.Text, true
		}
	}
	return content, raw, false
}

func splitControl(content, raw string, pos ast.Pos) *controlTag {
	keyword, args := cutWord(strings.TrimSpace(content))
	switch keyword {
	case "else":
		if next, rest := cutWord(args); next == "if" {
			keyword, args = "elif", rest
		}
	case "elseif":
		keyword = "elif"
	}
	return &controlTag{keyword: keyword, args: args, raw: raw, Pos: pos}
}

// cutWord splits s at its first run of whitespace.
func cutWord(s string) (word, rest string) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func (p *Parser) parseControl(tag *controlTag) (ast.Node, error) {
	switch tag.keyword {
	case "if":
		return p.parseIf(tag)
	case "for":
		return p.parseFor(tag)
	case "set":
		return parseSet(tag)
	case "block":
		return p.parseBlock(tag)
	default:
		// Unknown keywords and stray closers are echoed verbatim.
		return &ast.Text{Value: tag.raw}, nil
	}
}

func (p *Parser) parseIf(tag *controlTag) (ast.Node, error) {
	n := &ast.If{Pos: tag.Pos}
	cond := tag.args
	for {
		body, end, err := p.parseNodes(ifStops)
		if err != nil {
			return nil, err
		}
		if end == nil {
			return nil, unclosed(tag, "endif")
		}
		n.Branches = append(n.Branches, ast.Branch{Condition: expr.Parse(cond), Body: body})

		switch end.keyword {
		case "elif":
			cond = end.args
		case "else":
			elseBody, closer, err := p.parseNodes(endifStop)
			if err != nil {
				return nil, err
			}
			if closer == nil {
				return nil, unclosed(tag, "endif")
			}
			if elseBody == nil {
				elseBody = []ast.Node{}
			}
			n.Else = elseBody
			return n, nil
		default:
			return n, nil
		}
	}
}

func (p *Parser) parseFor(tag *controlTag) (ast.Node, error) {
	name, iterable, ok := strings.Cut(tag.args, " in ")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.TrimSpace(iterable) == "" {
		return nil, &ParseError{
			Line: tag.Line, Col: tag.Col, Text: tag.raw,
			Msg: "malformed for: expected {% for <name> in <expression> %}",
		}
	}

	body, end, err := p.parseNodes(endforStop)
	if err != nil {
		return nil, err
	}
	if end == nil {
		return nil, unclosed(tag, "endfor")
	}
	return &ast.For{Variable: name, Iterable: expr.Parse(iterable), Body: body, Pos: tag.Pos}, nil
}

func parseSet(tag *controlTag) (ast.Node, error) {
	name, value, ok := strings.Cut(tag.args, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return nil, &ParseError{
			Line: tag.Line, Col: tag.Col, Text: tag.raw,
			Msg: "malformed set: expected {% set <name> = <expression> %}",
		}
	}
	return &ast.Set{Variable: name, Value: expr.Parse(value), Pos: tag.Pos}, nil
}

func (p *Parser) parseBlock(tag *controlTag) (ast.Node, error) {
	fields := strings.Fields(tag.args)
	if len(fields) == 0 {
		return nil, &ParseError{
			Line: tag.Line, Col: tag.Col, Text: tag.raw,
			Msg: "block requires a name",
		}
	}
	name := fields[0]

	body, end, err := p.parseNodes(endblkStop)
	if err != nil {
		return nil, err
	}
	if end == nil {
		return nil, unclosed(tag, "endblock")
	}
	if endName := strings.TrimSpace(end.args); endName != "" && endName != name {
		return nil, &ParseError{
			Line: end.Line, Col: end.Col, Text: end.raw,
			Msg: fmt.Sprintf("endblock %q does not close block %q", endName, name),
		}
	}
	return &ast.Block{Name: name, Body: body, Pos: tag.Pos}, nil
}

func unclosed(tag *controlTag, closer string) *ParseError {
	return &ParseError{
		Line: tag.Line, Col: tag.Col, Text: tag.raw,
		Msg: fmt.Sprintf("unclosed %s: expected {%% %s %%}", tag.keyword, closer),
	}
}

// appendText merges adjacent literal text into one node and drops empty runs.
func appendText(nodes []ast.Node, text string) []ast.Node {
	if text == "" {
		return nodes
	}
	if len(nodes) > 0 {
		if last, ok := nodes[len(nodes)-1].(*ast.Text); ok {
			last.Value += text
			return nodes
		}
	}
	return append(nodes, &ast.Text{Value: text})
}
