// Package stdlib implements the slice of Lua 5.4's standard library
// needed to exercise the execution engine end to end: the basic
// library, coroutine.*, and a minimal math/string/table/os, built
// around state.GoFunction's ([]Value -> []Value) signature instead of
// a C-API stack.
package stdlib

import (
	"bufio"
	"fmt"
	"os"

	"github.com/lollipopkit/lua54/binchunk"
	"github.com/lollipopkit/lua54/compiler"
	"github.com/lollipopkit/lua54/state"
)

// OpenBase installs the basic library functions directly into globals
// (they have no home table of their own).
func OpenBase(th *state.Thread, globals *state.Table) {
	reg := func(name string, fn state.GoFunction) {
		globals.Set(name, state.NewGoClosure(name, fn))
	}

	globals.Set("_G", globals)
	globals.Set("_VERSION", "Lua 5.4")

	reg("print", basePrint)
	reg("type", baseType)
	reg("tostring", baseToString)
	reg("tonumber", baseToNumber)
	reg("ipairs", baseIPairs)
	reg("pairs", basePairs)
	reg("next", baseNext)
	reg("rawget", baseRawGet)
	reg("rawset", baseRawSet)
	reg("rawequal", baseRawEqual)
	reg("rawlen", baseRawLen)
	reg("select", baseSelect)
	reg("setmetatable", baseSetMetatable)
	reg("getmetatable", baseGetMetatable)
	reg("assert", baseAssert)
	reg("error", baseError)
	reg("pcall", basePCall)
	reg("xpcall", baseXPCall)
	reg("unpack", baseUnpack)
	reg("load", baseLoad)
	reg("require", baseRequire)
}

func arg(args []state.Value, i int) state.Value {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func basePrint(th *state.Thread, args []state.Value) []state.Value {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for i, a := range args {
		if i > 0 {
			w.WriteByte('\t')
		}
		w.WriteString(tostringOf(th, a))
	}
	w.WriteByte('\n')
	return nil
}

func tostringOf(th *state.Thread, v state.Value) string {
	return state.ToStringValue(v)
}

func baseType(th *state.Thread, args []state.Value) []state.Value {
	return []state.Value{state.TypeName(arg(args, 0))}
}

func baseToString(th *state.Thread, args []state.Value) []state.Value {
	return []state.Value{state.ToStringValue(arg(args, 0))}
}

func baseToNumber(th *state.Thread, args []state.Value) []state.Value {
	v := arg(args, 0)
	if len(args) >= 2 {
		s, ok := v.(string)
		base, bok := state.ToInteger(arg(args, 1))
		if !ok || !bok {
			return []state.Value{nil}
		}
		n, err := parseInBase(s, int(base))
		if err != nil {
			return []state.Value{nil}
		}
		return []state.Value{n}
	}
	switch v.(type) {
	case int64, float64:
		return []state.Value{v}
	}
	if s, ok := v.(string); ok {
		if i, ok := state.ToInteger(s); ok {
			if _, isFloaty := hasFloatSyntax(s); !isFloaty {
				return []state.Value{i}
			}
		}
		if f, ok := state.ToFloat(s); ok {
			return []state.Value{f}
		}
	}
	return []state.Value{nil}
}

func hasFloatSyntax(s string) (string, bool) {
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' {
			return s, true
		}
	}
	return s, false
}

func parseInBase(s string, base int) (int64, error) {
	var neg bool
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var n int64
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	for _, c := range s {
		var d int64
		switch {
		case c >= '0' && c <= '9':
			d = int64(c - '0')
		case c >= 'a' && c <= 'z':
			d = int64(c-'a') + 10
		case c >= 'A' && c <= 'Z':
			d = int64(c-'A') + 10
		default:
			return 0, fmt.Errorf("bad digit")
		}
		if int(d) >= base {
			return 0, fmt.Errorf("digit out of range")
		}
		n = n*int64(base) + d
	}
	if neg {
		n = -n
	}
	return n, nil
}

func baseIPairs(th *state.Thread, args []state.Value) []state.Value {
	t := arg(args, 0)
	iter := state.NewGoClosure("ipairs.iterator", func(th *state.Thread, args []state.Value) []state.Value {
		tbl := args[0].(*state.Table)
		i, _ := state.ToInteger(args[1])
		i++
		v := tbl.Get(i)
		if v == nil {
			return []state.Value{nil}
		}
		return []state.Value{i, v}
	})
	return []state.Value{iter, t, int64(0)}
}

func basePairs(th *state.Thread, args []state.Value) []state.Value {
	t := arg(args, 0)
	if tbl, ok := t.(*state.Table); ok {
		if tbl.Meta != nil {
			if mm := tbl.Meta.Get("__pairs"); mm != nil {
				return state.Call(th, mm, []state.Value{t})
			}
		}
	}
	nextFn := state.NewGoClosure("next", baseNext)
	return []state.Value{nextFn, t, nil}
}

func baseNext(th *state.Thread, args []state.Value) []state.Value {
	tbl, ok := arg(args, 0).(*state.Table)
	if !ok {
		panic("bad argument #1 to 'next' (table expected)")
	}
	k, v, ok := tbl.Next(arg(args, 1))
	if !ok {
		panic("invalid key to 'next'")
	}
	if k == nil {
		return []state.Value{nil}
	}
	return []state.Value{k, v}
}

func baseRawGet(th *state.Thread, args []state.Value) []state.Value {
	tbl := arg(args, 0).(*state.Table)
	return []state.Value{tbl.Get(arg(args, 1))}
}

func baseRawSet(th *state.Thread, args []state.Value) []state.Value {
	tbl := arg(args, 0).(*state.Table)
	tbl.Set(arg(args, 1), arg(args, 2))
	return []state.Value{tbl}
}

func baseRawEqual(th *state.Thread, args []state.Value) []state.Value {
	return []state.Value{state.RawEquals(arg(args, 0), arg(args, 1))}
}

func baseRawLen(th *state.Thread, args []state.Value) []state.Value {
	switch v := arg(args, 0).(type) {
	case *state.Table:
		return []state.Value{v.Len()}
	case string:
		return []state.Value{int64(len(v))}
	}
	panic("table or string expected")
}

func baseSelect(th *state.Thread, args []state.Value) []state.Value {
	if s, ok := arg(args, 0).(string); ok && s == "#" {
		return []state.Value{int64(len(args) - 1)}
	}
	n, _ := state.ToInteger(arg(args, 0))
	rest := args[1:]
	if n < 0 {
		n = int64(len(rest)) + n + 1
	}
	if n < 1 {
		panic("bad argument #1 to 'select' (index out of range)")
	}
	if int(n) > len(rest) {
		return nil
	}
	return rest[n-1:]
}

func baseSetMetatable(th *state.Thread, args []state.Value) []state.Value {
	tbl, ok := arg(args, 0).(*state.Table)
	if !ok {
		panic("bad argument #1 to 'setmetatable' (table expected)")
	}
	if tbl.Meta != nil && tbl.Meta.Get("__metatable") != nil {
		panic("cannot change a protected metatable")
	}
	switch mt := arg(args, 1).(type) {
	case nil:
		tbl.Meta = nil
	case *state.Table:
		tbl.Meta = mt
	default:
		panic("bad argument #2 to 'setmetatable' (nil or table expected)")
	}
	return []state.Value{tbl}
}

func baseGetMetatable(th *state.Thread, args []state.Value) []state.Value {
	v := arg(args, 0)
	var mt *state.Table
	if tbl, ok := v.(*state.Table); ok {
		mt = tbl.Meta
	}
	if mt == nil {
		return []state.Value{nil}
	}
	if protected := mt.Get("__metatable"); protected != nil {
		return []state.Value{protected}
	}
	return []state.Value{mt}
}

func baseAssert(th *state.Thread, args []state.Value) []state.Value {
	if len(args) == 0 || !state.Truthy(args[0]) {
		if len(args) >= 2 {
			panic(&state.LuaError{Value: args[1]})
		}
		panic(&state.LuaError{Value: "assertion failed!"})
	}
	return args
}

func baseError(th *state.Thread, args []state.Value) []state.Value {
	v := arg(args, 0)
	level := int64(1)
	if len(args) >= 2 {
		level, _ = state.ToInteger(args[1])
	}
	state.Error(th, v, level)
	return nil
}

func basePCall(th *state.Thread, args []state.Value) []state.Value {
	if len(args) == 0 {
		panic("bad argument #1 to 'pcall' (value expected)")
	}
	ok, results := state.PCall(th, args[0], args[1:], nil)
	return append([]state.Value{ok}, results...)
}

func baseXPCall(th *state.Thread, args []state.Value) []state.Value {
	if len(args) < 2 {
		panic("bad argument #2 to 'xpcall' (value expected)")
	}
	ok, results := state.PCall(th, args[0], args[2:], args[1])
	return append([]state.Value{ok}, results...)
}

func baseUnpack(th *state.Thread, args []state.Value) []state.Value {
	tbl := arg(args, 0).(*state.Table)
	i := int64(1)
	if len(args) >= 2 {
		i, _ = state.ToInteger(args[1])
	}
	j := tbl.Len()
	if len(args) >= 3 {
		j, _ = state.ToInteger(args[2])
	}
	var out []state.Value
	for ; i <= j; i++ {
		out = append(out, tbl.Get(i))
	}
	return out
}

// baseLoad implements load(chunk, chunkname?, mode?, env?): text chunks
// compile through compiler.Compile, binary chunks (recognised by
// binchunk's leading magic byte) decode through binchunk.Load.
func baseLoad(th *state.Thread, args []state.Value) []state.Value {
	src, ok := arg(args, 0).(string)
	if !ok {
		return []state.Value{nil, "load: only string chunks are supported"}
	}
	name := "=(load)"
	if s, ok := arg(args, 1).(string); ok {
		name = s
	} else if len(src) > 60 {
		name = src[:60]
	} else {
		name = src
	}
	mode := "bt"
	if s, ok := arg(args, 2).(string); ok {
		mode = s
	}
	env := th.Globals()
	if t, ok := arg(args, 3).(*state.Table); ok {
		env = t
	}

	data := []byte(src)
	if binchunk.IsBinary(data) {
		if mode == "t" {
			return []state.Value{nil, "attempt to load a binary chunk (mode is 't')"}
		}
		proto, err := binchunk.Load(data)
		if err != nil {
			return []state.Value{nil, err.Error()}
		}
		return []state.Value{state.LoadMainChunk(proto, env)}
	}
	if mode == "b" {
		return []state.Value{nil, "attempt to load a text chunk (mode is 'b')"}
	}
	if len(src) > 0 && src[0] == '#' {
		return []state.Value{nil, "load: a text chunk may not begin with '#'"}
	}
	proto, err := compiler.Compile(src, name, false)
	if err != nil {
		return []state.Value{nil, err.Error()}
	}
	return []state.Value{state.LoadMainChunk(proto, env)}
}

func baseRequire(th *state.Thread, args []state.Value) []state.Value {
	panic("require: module loading is not available in this build")
}
