package runtime

import (
	"context"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/errors"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/expr"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/logger"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/stdlib"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

// env adapts a scope and the render context to expr.Env.
type env struct {
	state *renderState
	scope *Scope
}

func (e *env) Lookup(name string) (types.Value, bool) {
	return e.scope.Lookup(name)
}

// Call resolves a call site. With a receiver it tries, in order: a value
// method, a function registered under the dotted name, then the bare name
// with the receiver as first argument. Without one it tries the bare name.
// Builtins shadow host functions at every step. Anything left over renders
// as a placeholder.
func (e *env) Call(ctx context.Context, site expr.CallSite) (types.Value, error) {
	if site.HasReceiver {
		if v, ok := stdlib.CallMethod(site.Receiver, site.Name, site.Args); ok {
			return v, nil
		}
		if site.Qualified != site.Name {
			if fn, host, ok := e.resolve(site.Qualified); ok {
				return e.invoke(ctx, site.Qualified, fn, host, site.Args)
			}
		}
		if fn, host, ok := e.resolve(site.Name); ok {
			args := append([]types.Value{site.Receiver}, site.Args...)
			return e.invoke(ctx, site.Name, fn, host, args)
		}
	} else if fn, host, ok := e.resolve(site.Name); ok {
		return e.invoke(ctx, site.Name, fn, host, site.Args)
	}

	logger.Logger.Debugw("unresolved function call", "name", site.Qualified)
	return types.NewString("[undefined function: " + site.Qualified + "]"), nil
}

func (e *env) resolve(name string) (fn stdlib.Func, host bool, ok bool) {
	if fn, ok := e.state.r.builtinTable().Lookup(name); ok {
		return fn, false, true
	}
	if fn, ok := e.state.rc.Functions.Lookup(name); ok {
		return fn, true, true
	}
	return nil, false, false
}

// invoke calls fn. Host functions get a context carrying the depth counter
// and a snapshot of the caller's render context; their errors abort the
// render.
func (e *env) invoke(ctx context.Context, name string, fn stdlib.Func, host bool, args []types.Value) (types.Value, error) {
	if !host {
		return fn(ctx, args)
	}
	if err := ctx.Err(); err != nil {
		return types.Undefined, err
	}
	current := &RenderContext{
		Variables: e.scope.Flatten(),
		Blocks:    e.state.rc.Blocks,
		Functions: e.state.rc.Functions,
	}
	v, err := fn(context.WithValue(ctx, currentKey, current), args)
	if err != nil {
		return types.Undefined, errors.Wrapf(err, "calling %s", name)
	}
	return v, nil
}
