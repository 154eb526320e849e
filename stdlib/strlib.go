package stdlib

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lollipopkit/lua54/binchunk"
	"github.com/lollipopkit/lua54/state"
)

// OpenString installs string.* plus the shared string metatable
// (`("x"):upper()` method-call sugar) — strings carry a metatable
// purely so this dot-call idiom works.
func OpenString(th *state.Thread, globals *state.Table) *state.Table {
	s := state.NewTable(0, 16)
	globals.Set("string", s)

	reg := func(name string, fn state.GoFunction) { s.Set(name, state.NewGoClosure("string."+name, fn)) }
	reg("len", strLen)
	reg("sub", strSub)
	reg("upper", strUpper)
	reg("lower", strLower)
	reg("rep", strRep)
	reg("reverse", strReverse)
	reg("byte", strByte)
	reg("char", strChar)
	reg("format", strFormat)
	reg("find", strFind)
	reg("gsub", strGsub)
	reg("dump", strDump)

	meta := state.NewTable(0, 1)
	meta.Set("__index", s)
	return meta
}

func wantString(v state.Value) string {
	switch x := v.(type) {
	case string:
		return x
	case int64, float64:
		return state.ToStringValue(x)
	}
	panic("bad argument (string expected, got " + state.TypeName(v) + ")")
}

func strIndex(i, length int64) int64 {
	if i < 0 {
		i = length + i + 1
	}
	if i < 1 {
		i = 1
	}
	return i
}

func strLen(th *state.Thread, args []state.Value) []state.Value {
	return []state.Value{int64(len(wantString(arg(args, 0))))}
}

func strSub(th *state.Thread, args []state.Value) []state.Value {
	s := wantString(arg(args, 0))
	l := int64(len(s))
	i := int64(1)
	if len(args) >= 2 {
		i, _ = state.ToInteger(args[1])
	}
	j := int64(-1)
	if len(args) >= 3 {
		j, _ = state.ToInteger(args[2])
	}
	if j < 0 {
		j = l + j + 1
	} else if j > l {
		j = l
	}
	i = strIndex(i, l)
	if i > j {
		return []state.Value{""}
	}
	return []state.Value{s[i-1 : j]}
}

func strUpper(th *state.Thread, args []state.Value) []state.Value {
	return []state.Value{strings.ToUpper(wantString(arg(args, 0)))}
}

func strLower(th *state.Thread, args []state.Value) []state.Value {
	return []state.Value{strings.ToLower(wantString(arg(args, 0)))}
}

func strRep(th *state.Thread, args []state.Value) []state.Value {
	s := wantString(arg(args, 0))
	n, _ := state.ToInteger(arg(args, 1))
	sep := ""
	if len(args) >= 3 {
		sep = wantString(args[2])
	}
	if n <= 0 {
		return []state.Value{""}
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = s
	}
	return []state.Value{strings.Join(parts, sep)}
}

func strReverse(th *state.Thread, args []state.Value) []state.Value {
	s := []byte(wantString(arg(args, 0)))
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
	return []state.Value{string(s)}
}

func strByte(th *state.Thread, args []state.Value) []state.Value {
	s := wantString(arg(args, 0))
	l := int64(len(s))
	i := int64(1)
	if len(args) >= 2 {
		i, _ = state.ToInteger(args[1])
	}
	j := i
	if len(args) >= 3 {
		j, _ = state.ToInteger(args[2])
	}
	i = strIndex(i, l)
	if j < 0 {
		j = l + j + 1
	} else if j > l {
		j = l
	}
	var out []state.Value
	for ; i <= j; i++ {
		out = append(out, int64(s[i-1]))
	}
	return out
}

func strChar(th *state.Thread, args []state.Value) []state.Value {
	b := make([]byte, len(args))
	for i, a := range args {
		n, _ := state.ToInteger(a)
		b[i] = byte(n)
	}
	return []state.Value{string(b)}
}

// strFormat covers the %d/%i/%u, %s, %q, %f/%g/%e, %x/%X, %o, %c, %%
// conversions, delegating the numeric ones straight to Go's fmt verbs
// since they line up with Lua's printf-style spec closely enough for
// this engine's purposes.
func strFormat(th *state.Thread, args []state.Value) []state.Value {
	format := wantString(arg(args, 0))
	argi := 1
	var out strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			out.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(format) && strings.ContainsRune("-+ #0123456789.", rune(format[j])) {
			j++
		}
		if j >= len(format) {
			out.WriteByte('%')
			break
		}
		verb := format[j]
		spec := format[i : j+1]
		i = j
		switch verb {
		case '%':
			out.WriteByte('%')
		case 'd', 'i', 'u':
			n, _ := state.ToInteger(arg(args, argi))
			argi++
			out.WriteString(sprintfGoVerb(spec, 'd', n))
		case 'x', 'X', 'o':
			n, _ := state.ToInteger(arg(args, argi))
			argi++
			out.WriteString(sprintfGoVerb(spec, rune(verb), n))
		case 'c':
			n, _ := state.ToInteger(arg(args, argi))
			argi++
			out.WriteByte(byte(n))
		case 'f', 'F', 'g', 'G', 'e', 'E':
			f, _ := state.ToFloat(arg(args, argi))
			argi++
			out.WriteString(sprintfGoVerb(spec, rune(verb), f))
		case 's':
			v := arg(args, argi)
			argi++
			out.WriteString(sprintfGoVerb(spec, 's', state.ToStringValue(v)))
		case 'q':
			s := wantString(arg(args, argi))
			argi++
			out.WriteString(strconv.Quote(s))
		default:
			out.WriteString(spec)
		}
	}
	return []state.Value{out.String()}
}

func sprintfGoVerb(spec string, verb rune, v any) string {
	goSpec := spec[:len(spec)-1] + string(verb)
	return fmt.Sprintf(goSpec, v)
}

// strFind/strGsub support plain substring search only (the `plain`
// flag's behavior unconditionally); full Lua pattern-matching syntax
// (character classes, captures, anchors) is out of scope for this
// engine's string library — see DESIGN.md.
func strFind(th *state.Thread, args []state.Value) []state.Value {
	s := wantString(arg(args, 0))
	pat := wantString(arg(args, 1))
	init := int64(1)
	if len(args) >= 3 {
		init, _ = state.ToInteger(args[2])
	}
	init = strIndex(init, int64(len(s)))
	if init > int64(len(s))+1 {
		return []state.Value{nil}
	}
	idx := strings.Index(s[init-1:], pat)
	if idx < 0 {
		return []state.Value{nil}
	}
	start := init + int64(idx)
	end := start + int64(len(pat)) - 1
	return []state.Value{start, end}
}

// strDump implements string.dump(f, strip?): serialises f's Proto tree
// via binchunk.Dump. Host (Go) closures have no Proto and can't be
// dumped, matching real Lua's "unable to dump given function" error.
func strDump(th *state.Thread, args []state.Value) []state.Value {
	c, ok := arg(args, 0).(*state.Closure)
	if !ok || c.IsGo() {
		panic("unable to dump given function")
	}
	strip := state.Truthy(arg(args, 1))
	data, err := binchunk.Dump(c.Proto, strip)
	if err != nil {
		panic("unable to dump given function: " + err.Error())
	}
	return []state.Value{string(data)}
}

func strGsub(th *state.Thread, args []state.Value) []state.Value {
	s := wantString(arg(args, 0))
	pat := wantString(arg(args, 1))
	repl := wantString(arg(args, 2))
	max := int64(-1)
	if len(args) >= 4 {
		max, _ = state.ToInteger(args[3])
	}
	if pat == "" {
		return []state.Value{s, int64(0)}
	}
	n := int64(0)
	var out strings.Builder
	rest := s
	for (max < 0 || n < max) && strings.Contains(rest, pat) {
		idx := strings.Index(rest, pat)
		out.WriteString(rest[:idx])
		out.WriteString(repl)
		rest = rest[idx+len(pat):]
		n++
	}
	out.WriteString(rest)
	return []state.Value{out.String(), n}
}
