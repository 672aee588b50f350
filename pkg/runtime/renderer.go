package runtime

import (
	"context"
	"strings"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/ast"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/errors"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/expr"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/logger"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/parser"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/stdlib"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

// MaxIncludeDepth is the default limit on nested renders started by host
// functions (render_file calling back into Render).
const MaxIncludeDepth = 20

// ErrIncludeDepth is returned when nested renders exceed the include limit,
// usually because two templates include each other.
var ErrIncludeDepth = errors.New("include depth exceeded")

// RenderContext is everything a template sees: variable bindings, block
// overrides and host functions.
type RenderContext struct {
	Variables map[string]types.Value
	// Blocks maps block names to text emitted in place of the block body.
	Blocks map[string]string
	// Functions are host functions, consulted after the builtins.
	Functions *stdlib.Registry
}

// Renderer renders templates. It holds no per-render state and is safe for
// concurrent use.
type Renderer struct {
	// MaxIncludeDepth overrides the package default when positive.
	MaxIncludeDepth int

	builtins *stdlib.Registry
}

// NewRenderer creates a renderer backed by the builtin function table.
func NewRenderer() *Renderer {
	return &Renderer{builtins: stdlib.Builtins()}
}

type contextKey string

// includeDepthKey tracks nesting per call path, so sibling renders started by
// the same host function each see their own depth.
const includeDepthKey contextKey = "includeDepth"

// currentKey carries the render context a host function was called from.
const currentKey contextKey = "renderContext"

func includeDepthFromCtx(ctx context.Context) int {
	if v, ok := ctx.Value(includeDepthKey).(int); ok {
		return v
	}
	return 0
}

// CurrentContext returns the render context active where a host function was
// called, with Variables holding every binding visible at the call site. Host
// functions that render other templates pass it on so includes see the same
// variables and overrides.
func CurrentContext(ctx context.Context) (*RenderContext, bool) {
	rc, ok := ctx.Value(currentKey).(*RenderContext)
	return rc, ok
}

func (r *Renderer) builtinTable() *stdlib.Registry {
	if r.builtins == nil {
		return stdlib.Builtins()
	}
	return r.builtins
}

func (r *Renderer) maxDepth() int {
	if r.MaxIncludeDepth > 0 {
		return r.MaxIncludeDepth
	}
	return MaxIncludeDepth
}

// Render parses and renders source. The result is all or nothing: on any
// error the output is empty.
func (r *Renderer) Render(ctx context.Context, source string, rc *RenderContext) (string, error) {
	nodes, err := parser.Parse(source)
	if err != nil {
		return "", err
	}
	return r.RenderNodes(ctx, nodes, rc)
}

// RenderNodes renders an already parsed template.
func (r *Renderer) RenderNodes(ctx context.Context, nodes []ast.Node, rc *RenderContext) (string, error) {
	ctx, err := r.enter(ctx)
	if err != nil {
		return "", err
	}
	if rc == nil {
		rc = &RenderContext{}
	}

	var out strings.Builder
	st := &renderState{r: r, rc: rc, out: &out}
	if err := st.renderNodes(ctx, nodes, NewScope(rc.Variables)); err != nil {
		return "", err
	}
	return out.String(), nil
}

// ExtractBlocks renders each top-level block of source and returns the
// results by name. Top-level sets run in order so blocks can use them; all
// other output is discarded. The map is suitable as the Blocks of a base
// template's render context.
func (r *Renderer) ExtractBlocks(ctx context.Context, source string, rc *RenderContext) (map[string]string, error) {
	nodes, err := parser.Parse(source)
	if err != nil {
		return nil, err
	}
	ctx, err = r.enter(ctx)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		rc = &RenderContext{}
	}

	scope := NewScope(rc.Variables)
	blocks := make(map[string]string)
	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch n := node.(type) {
		case *ast.Set:
			st := &renderState{r: r, rc: rc, out: &strings.Builder{}}
			if err := st.renderNode(ctx, n, scope); err != nil {
				return nil, err
			}
		case *ast.Block:
			var out strings.Builder
			st := &renderState{r: r, rc: rc, out: &out}
			if err := st.renderNodes(ctx, n.Body, scope); err != nil {
				return nil, err
			}
			blocks[n.Name] = out.String()
		}
	}
	return blocks, nil
}

func (r *Renderer) enter(ctx context.Context) (context.Context, error) {
	depth := includeDepthFromCtx(ctx) + 1
	if depth > r.maxDepth() {
		return ctx, errors.Wrapf(ErrIncludeDepth, "depth %d exceeds maximum of %d", depth, r.maxDepth())
	}
	return context.WithValue(ctx, includeDepthKey, depth), nil
}

// renderState is the per-render state shared by every node.
type renderState struct {
	r   *Renderer
	rc  *RenderContext
	out *strings.Builder
}

func (s *renderState) renderNodes(ctx context.Context, nodes []ast.Node, scope *Scope) error {
	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.renderNode(ctx, node, scope); err != nil {
			return err
		}
	}
	return nil
}

func (s *renderState) renderNode(ctx context.Context, node ast.Node, scope *Scope) error {
	switch n := node.(type) {
	case *ast.Text:
		s.out.WriteString(n.Value)
	case *ast.Comment:
	case *ast.Expression:
		v, err := s.eval(ctx, n.Expr, scope)
		if err != nil {
			return errors.Wrapf(err, "line %d: {{ %s }}", n.Line, n.Source)
		}
		s.out.WriteString(v.String())
	case *ast.If:
		return s.renderIf(ctx, n, scope)
	case *ast.For:
		return s.renderFor(ctx, n, scope)
	case *ast.Set:
		v, err := s.eval(ctx, n.Value, scope)
		if err != nil {
			return errors.Wrapf(err, "line %d: set %s", n.Line, n.Variable)
		}
		scope.Set(n.Variable, v)
	case *ast.Block:
		if override, ok := s.rc.Blocks[n.Name]; ok {
			s.out.WriteString(override)
			return nil
		}
		return s.renderNodes(ctx, n.Body, scope)
	default:
		return errors.Newf("unsupported node type %T", node)
	}
	return nil
}

func (s *renderState) renderIf(ctx context.Context, n *ast.If, scope *Scope) error {
	for _, b := range n.Branches {
		cond, err := s.eval(ctx, b.Condition, scope)
		if err != nil {
			return errors.Wrapf(err, "line %d: if condition", n.Line)
		}
		if cond.Truthy() {
			return s.renderNodes(ctx, b.Body, scope)
		}
	}
	if n.Else != nil {
		return s.renderNodes(ctx, n.Else, scope)
	}
	return nil
}

func (s *renderState) renderFor(ctx context.Context, n *ast.For, scope *Scope) error {
	iter, err := s.eval(ctx, n.Iterable, scope)
	if err != nil {
		return errors.Wrapf(err, "line %d: for iterable", n.Line)
	}
	if iter.Type() != types.TypeList {
		logger.Logger.Debugw("for iterable is not a list",
			"line", n.Line, "variable", n.Variable, "type", iter.Type().String())
		return nil
	}

	items := iter.AsList()
	for i, item := range items {
		frame := scope.Push()
		frame.Set(n.Variable, item)
		frame.Set("loop", loopRecord(i, len(items)))
		if err := s.renderNodes(ctx, n.Body, frame); err != nil {
			return err
		}
	}
	return nil
}

func loopRecord(i, length int) types.Value {
	return types.NewMap(types.NewOrderedMapFromPairs(
		"index", types.NewInt(i),
		"index1", types.NewInt(i+1),
		"is_first", types.NewBool(i == 0),
		"is_last", types.NewBool(i == length-1),
		"length", types.NewInt(length),
	))
}

func (s *renderState) eval(ctx context.Context, e expr.Expr, scope *Scope) (types.Value, error) {
	return expr.Evaluate(ctx, e, &env{state: s, scope: scope})
}
