// Package ast defines the syntax tree of a parsed prompt template.
// A tree is built once per template and never mutated by rendering, so it
// can be shared by concurrent renders.
package ast

import "github.com/lemonberrylabs/npc-prompt-studio/pkg/expr"

// Node is implemented by every template node.
type Node interface {
	node()
}

// Pos is the 1-based source position of a tag.
type Pos struct {
	Line int
	Col  int
}

// Text is a run of literal output.
type Text struct {
	Value string
}

// Expression is a {{ expr }} tag.
type Expression struct {
	Expr expr.Expr

	// Source is the raw text between the delimiters.
	Source string
	Pos
}

// Comment is a {# ... #} tag. It never produces output.
type Comment struct {
	Value string
}

// If is an if / elif / else chain.
type If struct {
	// Branches are tried in order; the first truthy condition wins.
	Branches []Branch

	// Else is nil when the chain has no else clause.
	Else []Node
	Pos
}

// Branch is one condition and its body.
type Branch struct {
	Condition expr.Expr
	Body      []Node
}

// For iterates Body over the elements of Iterable, binding Variable.
type For struct {
	Variable string
	Iterable expr.Expr
	Body     []Node
	Pos
}

// Set binds Variable to the value of Value in the innermost scope.
type Set struct {
	Variable string
	Value    expr.Expr
	Pos
}

// Block is a named region a caller can replace wholesale.
type Block struct {
	Name string
	Body []Node
	Pos
}

func (*Text) node()       {}
func (*Expression) node() {}
func (*Comment) node()    {}
func (*If) node()         {}
func (*For) node()        {}
func (*Set) node()        {}
func (*Block) node()      {}

// Inspect walks nodes depth-first, calling fn for each node. Children are
// skipped when fn returns false.
func Inspect(nodes []Node, fn func(Node) bool) {
	for _, n := range nodes {
		if !fn(n) {
			continue
		}
		switch n := n.(type) {
		case *If:
			for _, b := range n.Branches {
				Inspect(b.Body, fn)
			}
			Inspect(n.Else, fn)
		case *For:
			Inspect(n.Body, fn)
		case *Block:
			Inspect(n.Body, fn)
		}
	}
}

// BlockNames returns the names of all blocks in document order.
func BlockNames(nodes []Node) []string {
	var names []string
	Inspect(nodes, func(n Node) bool {
		if b, ok := n.(*Block); ok {
			names = append(names, b.Name)
		}
		return true
	})
	return names
}
