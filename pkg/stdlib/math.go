package stdlib

import (
	"math"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

// registerMath registers numeric helpers and the math.* family.
func (r *Registry) registerMath() {
	r.Register("round", Pure(mathRound))
	r.Register("abs", Pure(mathAbs))
	r.Register("floor", Pure(mathFloor))
	r.Register("ceil", Pure(mathCeil))
	r.Register("min", Pure(mathMin))
	r.Register("max", Pure(mathMax))

	r.Register("math.abs", Pure(mathAbs))
	r.Register("math.floor", Pure(mathFloor))
	r.Register("math.max", Pure(mathMax))
	r.Register("math.min", Pure(mathMin))
}

func numArg(args []types.Value, i int) (float64, bool) {
	n := arg(args, i).ToNumber()
	return n, !math.IsNaN(n)
}

func unary(args []types.Value, fn func(float64) float64) types.Value {
	n, ok := numArg(args, 0)
	if !ok {
		return types.Undefined
	}
	return types.NewNumber(fn(n))
}

// mathRound rounds half away from zero to the given number of digits.
func mathRound(args []types.Value) types.Value {
	n, ok := numArg(args, 0)
	if !ok {
		return types.Undefined
	}
	digits := intArg(args, 1, 0)
	scale := math.Pow(10, float64(digits))
	return types.NewNumber(math.Round(n*scale) / scale)
}

func mathAbs(args []types.Value) types.Value {
	return unary(args, math.Abs)
}

func mathFloor(args []types.Value) types.Value {
	return unary(args, math.Floor)
}

func mathCeil(args []types.Value) types.Value {
	return unary(args, math.Ceil)
}

// numbers accepts either a single list argument or variadic arguments.
func numbers(args []types.Value) []types.Value {
	if len(args) == 1 && args[0].Type() == types.TypeList {
		return args[0].AsList()
	}
	return args
}

// extreme returns the element whose number wins against every other, keeping
// the original value (so strings like "3" come back unchanged).
func extreme(args []types.Value, better func(a, b float64) bool) types.Value {
	vals := numbers(args)
	if len(vals) == 0 {
		return types.Undefined
	}
	best := vals[0]
	bestN := best.ToNumber()
	if math.IsNaN(bestN) {
		return types.Undefined
	}
	for _, v := range vals[1:] {
		n := v.ToNumber()
		if math.IsNaN(n) {
			return types.Undefined
		}
		if better(n, bestN) {
			best, bestN = v, n
		}
	}
	return best
}

func mathMin(args []types.Value) types.Value {
	return extreme(args, func(a, b float64) bool { return a < b })
}

func mathMax(args []types.Value) types.Value {
	return extreme(args, func(a, b float64) bool { return a > b })
}
