// Package runtime renders parsed templates against a render context.
package runtime

import (
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

// Scope is a chain of variable frames. Lookups walk from the innermost frame
// outward; writes always land in the innermost frame.
//
// The root frame holds a copy of the caller's variables, so rendering never
// mutates the map passed in. Each for-loop iteration pushes one child frame
// for the loop variable and loop record; if and block bodies reuse the
// enclosing frame. A set inside a loop body is therefore gone after the
// iteration, while a set at top level or inside an if persists.
type Scope struct {
	parent *Scope
	vars   map[string]types.Value
}

// NewScope creates a root scope holding a copy of vars.
func NewScope(vars map[string]types.Value) *Scope {
	s := &Scope{vars: make(map[string]types.Value, len(vars))}
	for k, v := range vars {
		s.vars[k] = v
	}
	return s
}

// Push creates a child frame.
func (s *Scope) Push() *Scope {
	return &Scope{parent: s, vars: make(map[string]types.Value)}
}

// Lookup returns the value bound to name in the nearest frame that has it.
func (s *Scope) Lookup(name string) (types.Value, bool) {
	for f := s; f != nil; f = f.parent {
		if v, ok := f.vars[name]; ok {
			return v, true
		}
	}
	return types.Undefined, false
}

// Set binds name in this frame.
func (s *Scope) Set(name string, value types.Value) {
	s.vars[name] = value
}

// Flatten merges every frame into one map, inner frames winning.
func (s *Scope) Flatten() map[string]types.Value {
	var chain []*Scope
	for f := s; f != nil; f = f.parent {
		chain = append(chain, f)
	}
	out := make(map[string]types.Value)
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].vars {
			out[k] = v
		}
	}
	return out
}
