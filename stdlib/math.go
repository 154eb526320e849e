package stdlib

import (
	"math"
	"math/rand"

	"github.com/lollipopkit/lua54/state"
)

// OpenMath installs the subset of math.* that exercises the
// float/integer-aware numeric model: min/max/floor/ceil alongside the
// transcendental functions every Lua program expects.
func OpenMath(th *state.Thread, globals *state.Table) {
	m := state.NewTable(0, 24)
	globals.Set("math", m)

	m.Set("pi", math.Pi)
	m.Set("huge", math.Inf(1))
	m.Set("maxinteger", int64(math.MaxInt64))
	m.Set("mininteger", int64(math.MinInt64))

	reg := func(name string, fn state.GoFunction) { m.Set(name, state.NewGoClosure("math."+name, fn)) }
	reg("abs", mathAbs)
	reg("ceil", mathCeil)
	reg("floor", mathFloor)
	reg("sqrt", mathUnary(math.Sqrt))
	reg("sin", mathUnary(math.Sin))
	reg("cos", mathUnary(math.Cos))
	reg("tan", mathUnary(math.Tan))
	reg("exp", mathUnary(math.Exp))
	reg("log", mathLog)
	reg("max", mathMax)
	reg("min", mathMin)
	reg("fmod", mathFmod)
	reg("modf", mathModf)
	reg("tointeger", mathToInteger)
	reg("type", mathType)
	reg("random", mathRandom)
	reg("randomseed", mathRandomSeed)
}

func wantFloat(v state.Value) float64 {
	f, ok := state.ToFloat(v)
	if !ok {
		panic("bad argument (number expected, got " + state.TypeName(v) + ")")
	}
	return f
}

func mathUnary(f func(float64) float64) state.GoFunction {
	return func(th *state.Thread, args []state.Value) []state.Value {
		return []state.Value{f(wantFloat(arg(args, 0)))}
	}
}

func mathAbs(th *state.Thread, args []state.Value) []state.Value {
	switch v := arg(args, 0).(type) {
	case int64:
		if v < 0 {
			v = -v
		}
		return []state.Value{v}
	default:
		return []state.Value{math.Abs(wantFloat(v))}
	}
}

func mathCeil(th *state.Thread, args []state.Value) []state.Value {
	switch v := arg(args, 0).(type) {
	case int64:
		return []state.Value{v}
	default:
		f := math.Ceil(wantFloat(v))
		if i, ok := state.FloatToInteger(f); ok {
			return []state.Value{i}
		}
		return []state.Value{f}
	}
}

func mathFloor(th *state.Thread, args []state.Value) []state.Value {
	switch v := arg(args, 0).(type) {
	case int64:
		return []state.Value{v}
	default:
		f := math.Floor(wantFloat(v))
		if i, ok := state.FloatToInteger(f); ok {
			return []state.Value{i}
		}
		return []state.Value{f}
	}
}

func mathLog(th *state.Thread, args []state.Value) []state.Value {
	x := wantFloat(arg(args, 0))
	if len(args) >= 2 {
		base := wantFloat(args[1])
		return []state.Value{math.Log(x) / math.Log(base)}
	}
	return []state.Value{math.Log(x)}
}

func mathMax(th *state.Thread, args []state.Value) []state.Value {
	if len(args) == 0 {
		panic("bad argument #1 to 'max' (value expected)")
	}
	best := args[0]
	for _, v := range args[1:] {
		if numLess(best, v) {
			best = v
		}
	}
	return []state.Value{best}
}

func mathMin(th *state.Thread, args []state.Value) []state.Value {
	if len(args) == 0 {
		panic("bad argument #1 to 'min' (value expected)")
	}
	best := args[0]
	for _, v := range args[1:] {
		if numLess(v, best) {
			best = v
		}
	}
	return []state.Value{best}
}

func numLess(a, b state.Value) bool {
	af, _ := state.ToFloat(a)
	bf, _ := state.ToFloat(b)
	return af < bf
}

func mathFmod(th *state.Thread, args []state.Value) []state.Value {
	x, xok := arg(args, 0).(int64)
	y, yok := arg(args, 1).(int64)
	if xok && yok {
		if y == 0 {
			panic("bad argument #2 to 'fmod' (zero)")
		}
		return []state.Value{x % y}
	}
	return []state.Value{math.Mod(wantFloat(arg(args, 0)), wantFloat(arg(args, 1)))}
}

func mathModf(th *state.Thread, args []state.Value) []state.Value {
	f := wantFloat(arg(args, 0))
	ip, fp := math.Modf(f)
	var ipart state.Value = ip
	if i, ok := state.FloatToInteger(ip); ok {
		ipart = float64(i)
	}
	return []state.Value{ipart, fp}
}

func mathToInteger(th *state.Thread, args []state.Value) []state.Value {
	switch v := arg(args, 0).(type) {
	case int64:
		return []state.Value{v}
	case float64:
		if i, ok := state.FloatToInteger(v); ok {
			return []state.Value{i}
		}
	}
	return []state.Value{nil}
}

func mathType(th *state.Thread, args []state.Value) []state.Value {
	switch arg(args, 0).(type) {
	case int64:
		return []state.Value{"integer"}
	case float64:
		return []state.Value{"float"}
	default:
		return []state.Value{nil}
	}
}

func mathRandom(th *state.Thread, args []state.Value) []state.Value {
	switch len(args) {
	case 0:
		return []state.Value{rand.Float64()}
	case 1:
		m, _ := state.ToInteger(args[0])
		return []state.Value{int64(1) + rand.Int63n(m)}
	default:
		lo, _ := state.ToInteger(args[0])
		hi, _ := state.ToInteger(args[1])
		return []state.Value{lo + rand.Int63n(hi-lo+1)}
	}
}

func mathRandomSeed(th *state.Thread, args []state.Value) []state.Value {
	if len(args) > 0 {
		seed, _ := state.ToInteger(args[0])
		rand.Seed(seed)
	}
	return nil
}
