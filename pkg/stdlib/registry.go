// Package stdlib holds function tables: the builtin functions every template
// can call and the Registry type hosts use to expose their own functions.
package stdlib

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

// Func is the signature shared by builtins and host functions. Host
// functions may block; they receive the render's context and must honour
// its cancellation.
type Func func(ctx context.Context, args []types.Value) (types.Value, error)

// Pure adapts a function that needs no context and cannot fail.
func Pure(fn func(args []types.Value) types.Value) Func {
	return func(_ context.Context, args []types.Value) (types.Value, error) {
		return fn(args), nil
	}
}

// Registry is a named table of functions, safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

var (
	builtinsOnce sync.Once
	builtins     *Registry
)

// Builtins returns the shared table of builtin functions.
func Builtins() *Registry {
	builtinsOnce.Do(func() {
		r := NewRegistry()
		r.registerHelpers()
		r.registerText()
		r.registerList()
		r.registerMapFuncs()
		r.registerMath()
		r.registerJSON()
		builtins = r
	})
	return builtins
}

// Register adds or replaces a function.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (Func, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallFunction calls a registered function by name.
func (r *Registry) CallFunction(ctx context.Context, name string, args []types.Value) (types.Value, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return types.Undefined, fmt.Errorf("unknown function '%s'", name)
	}
	return fn(ctx, args)
}

// arg returns args[i], or undefined when absent.
func arg(args []types.Value, i int) types.Value {
	if i < len(args) {
		return args[i]
	}
	return types.Undefined
}

// strArg returns args[i] stringified, or def when absent or nil.
func strArg(args []types.Value, i int, def string) string {
	v := arg(args, i)
	if v.IsNil() {
		return def
	}
	return v.String()
}

// intArg returns args[i] as an int, or def when absent or not a finite number.
func intArg(args []types.Value, i int, def int) int {
	v := arg(args, i)
	if v.Type() == types.TypeString {
		v = types.NewNumber(v.ToNumber())
	}
	if n, ok := v.ToInt(); ok {
		return n
	}
	return def
}

// listArg returns args[i] as a list.
func listArg(args []types.Value, i int) ([]types.Value, bool) {
	v := arg(args, i)
	if v.Type() != types.TypeList {
		return nil, false
	}
	return v.AsList(), true
}
