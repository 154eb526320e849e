// Package debuglib implements debug.*: getinfo, local and upvalue
// introspection, hooks, and traceback construction, built directly
// against state.Frame/Closure/Thread's exported introspection
// accessors.
package debuglib

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lollipopkit/lua54/binchunk"
	"github.com/lollipopkit/lua54/state"
	"github.com/lollipopkit/lua54/vm"
)

func OpenDebug(th *state.Thread, globals *state.Table) {
	d := state.NewTable(0, 16)
	globals.Set("debug", d)

	reg := func(name string, fn state.GoFunction) { d.Set(name, state.NewGoClosure("debug."+name, fn)) }
	reg("getinfo", dbgGetInfo)
	reg("getlocal", dbgGetLocal)
	reg("setlocal", dbgSetLocal)
	reg("getupvalue", dbgGetUpvalue)
	reg("setupvalue", dbgSetUpvalue)
	reg("upvalueid", dbgUpvalueID)
	reg("upvaluejoin", dbgUpvalueJoin)
	reg("sethook", dbgSetHook)
	reg("gethook", dbgGetHook)
	reg("traceback", dbgTraceback)
	reg("getmetatable", dbgGetMetatable)
	reg("setmetatable", dbgSetMetatable)
	reg("getregistry", dbgGetRegistry)
}

func arg(args []state.Value, i int) state.Value {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// resolveTarget accepts either a level (int) counted from the caller of
// getinfo, or a function value directly.
func resolveTarget(th *state.Thread, v state.Value) (*state.Frame, *state.Closure) {
	if n, ok := state.ToInteger(v); ok {
		// Go (host) functions never push a state.Frame, so th.frame is
		// already "level 1" (the Lua function calling into this one) in
		// the sense debug.getinfo's level argument means; level 0 would
		// name this very host call, which has no Frame to report.
		if n <= 0 {
			return nil, nil
		}
		f := th.FrameAt(int(n) - 1)
		if f == nil {
			return nil, nil
		}
		return f, f.Closure()
	}
	switch c := v.(type) {
	case *state.Closure:
		return nil, c
	}
	return nil, nil
}

func shortSrc(source string) string {
	const limit = 60
	switch {
	case strings.HasPrefix(source, "@"):
		s := source[1:]
		if len(s) <= limit {
			return s
		}
		return "..." + s[len(s)-(limit-3):]
	case strings.HasPrefix(source, "="):
		s := source[1:]
		if len(s) > limit {
			s = s[:limit]
		}
		return s
	default:
		s := source
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			if nl == 0 {
				return `[string "..."]`
			}
			s = s[:nl]
		}
		if len(s) > limit {
			s = s[:limit]
		}
		if s == "" {
			return `[string ""]`
		}
		return fmt.Sprintf("[string %q]", s)
	}
}

func dbgGetInfo(th *state.Thread, args []state.Value) []state.Value {
	what := "nSluftr"
	if s, ok := arg(args, 1).(string); ok {
		what = s
	}

	frame, c := resolveTarget(th, arg(args, 0))
	if c == nil {
		return []state.Value{nil}
	}

	info := state.NewTable(0, 12)
	isGo := c.IsGo()

	if strings.ContainsRune(what, 'S') {
		if isGo {
			info.Set("source", "=[C]")
			info.Set("short_src", "[C]")
			info.Set("what", "C")
		} else {
			info.Set("source", c.Proto.Source)
			info.Set("short_src", shortSrc(c.Proto.Source))
			kind := "Lua"
			if frame != nil && frame.Prev() == nil {
				kind = "main"
			}
			info.Set("what", kind)
		}
		if !isGo {
			info.Set("linedefined", int64(c.Proto.LineDefined))
			info.Set("lastlinedefined", int64(c.Proto.LastLineDefined))
		} else {
			info.Set("linedefined", int64(-1))
			info.Set("lastlinedefined", int64(-1))
		}
	}
	if strings.ContainsRune(what, 'l') {
		if frame != nil {
			info.Set("currentline", int64(frame.CurrentLine()))
		} else {
			info.Set("currentline", int64(-1))
		}
	}
	if strings.ContainsRune(what, 'f') {
		info.Set("func", c)
	}
	if strings.ContainsRune(what, 'u') {
		info.Set("nups", int64(c.NumUpvalues()))
		if isGo {
			info.Set("nparams", int64(0))
			info.Set("isvararg", true)
		} else {
			info.Set("nparams", int64(c.Proto.NumParams))
			info.Set("isvararg", c.Proto.IsVararg)
		}
	}
	if strings.ContainsRune(what, 'n') {
		name, namewhat := "?", ""
		if isGo {
			name = c.Name()
		} else if frame != nil {
			name, namewhat = callerName(frame)
		}
		info.Set("name", name)
		info.Set("namewhat", namewhat)
	}
	if strings.ContainsRune(what, 't') {
		info.Set("istailcall", false)
	}
	if strings.ContainsRune(what, 'L') {
		lines := state.NewTable(0, 8)
		if !isGo {
			for line := range c.Proto.ActiveLines() {
				lines.Set(int64(line), true)
			}
		}
		info.Set("activelines", lines)
	}
	return []state.Value{info}
}

func dbgGetLocal(th *state.Thread, args []state.Value) []state.Value {
	frame, _ := resolveTarget(th, arg(args, 0))
	idx, _ := state.ToInteger(arg(args, 1))
	if frame == nil {
		return []state.Value{nil}
	}
	if idx < 0 {
		v, ok := frame.Vararg(int(-idx - 1))
		if !ok {
			return []state.Value{nil}
		}
		return []state.Value{"(vararg)", v}
	}
	proto := frame.Closure().Proto
	if proto == nil {
		return []state.Value{"(C temporary)", frame.Reg(int(idx) - 1)}
	}
	pc := frame.PC()
	for _, lv := range proto.LocVars {
		if lv.StartPC <= pc && pc < lv.EndPC {
			idx--
			if idx == 0 {
				return []state.Value{lv.VarName, frame.Reg(lv.Slot)}
			}
		}
	}
	return []state.Value{nil}
}

func dbgSetLocal(th *state.Thread, args []state.Value) []state.Value {
	frame, _ := resolveTarget(th, arg(args, 0))
	idx, _ := state.ToInteger(arg(args, 1))
	val := arg(args, 2)
	if frame == nil {
		return []state.Value{nil}
	}
	proto := frame.Closure().Proto
	if proto == nil || idx < 1 {
		return []state.Value{nil}
	}
	pc := frame.PC()
	n := idx
	for _, lv := range proto.LocVars {
		if lv.StartPC <= pc && pc < lv.EndPC {
			n--
			if n == 0 {
				frame.SetReg(lv.Slot, val)
				return []state.Value{lv.VarName}
			}
		}
	}
	return []state.Value{nil}
}

func dbgGetUpvalue(th *state.Thread, args []state.Value) []state.Value {
	c, ok := arg(args, 0).(*state.Closure)
	if !ok {
		return []state.Value{nil}
	}
	i, _ := state.ToInteger(arg(args, 1))
	uv := c.Upvalue(int(i) - 1)
	if uv == nil {
		return []state.Value{nil}
	}
	return []state.Value{c.UpvalueName(int(i) - 1), uv.Get()}
}

func dbgSetUpvalue(th *state.Thread, args []state.Value) []state.Value {
	c, ok := arg(args, 0).(*state.Closure)
	if !ok {
		return []state.Value{nil}
	}
	i, _ := state.ToInteger(arg(args, 1))
	uv := c.Upvalue(int(i) - 1)
	if uv == nil {
		return []state.Value{nil}
	}
	uv.Set(arg(args, 2))
	return []state.Value{c.UpvalueName(int(i) - 1)}
}

func dbgUpvalueID(th *state.Thread, args []state.Value) []state.Value {
	c, ok := arg(args, 0).(*state.Closure)
	if !ok {
		return []state.Value{nil}
	}
	i, _ := state.ToInteger(arg(args, 1))
	uv := c.Upvalue(int(i) - 1)
	if uv == nil {
		return []state.Value{nil}
	}
	return []state.Value{fmt.Sprintf("0x%p", uv)}
}

func dbgUpvalueJoin(th *state.Thread, args []state.Value) []state.Value {
	c1, ok1 := arg(args, 0).(*state.Closure)
	n1, _ := state.ToInteger(arg(args, 1))
	c2, ok2 := arg(args, 2).(*state.Closure)
	n2, _ := state.ToInteger(arg(args, 3))
	if !ok1 || !ok2 {
		panic("bad argument to 'upvaluejoin' (function expected)")
	}
	uv := c2.Upvalue(int(n2) - 1)
	if uv == nil {
		panic("invalid upvalue index")
	}
	c1.SetUpvalue(int(n1)-1, uv)
	return nil
}

func dbgSetHook(th *state.Thread, args []state.Value) []state.Value {
	target := th
	i := 0
	if t, ok := arg(args, 0).(*state.Thread); ok {
		target = t
		i = 1
	}
	hookFn := arg(args, i)
	if hookFn == nil {
		target.SetHook(nil, nil, "", 0)
		return nil
	}
	mask, _ := arg(args, i+1).(string)
	count := int64(0)
	if c, ok := state.ToInteger(arg(args, i+2)); ok {
		count = c
	}
	target.SetHook(func(hth *state.Thread, event string, line int) {
		luaArgs := []state.Value{event}
		if event == "line" {
			luaArgs = append(luaArgs, int64(line))
		}
		state.Call(hth, hookFn, luaArgs)
	}, hookFn, mask, count)
	return nil
}

func dbgGetHook(th *state.Thread, args []state.Value) []state.Value {
	target := th
	if t, ok := arg(args, 0).(*state.Thread); ok {
		target = t
	}
	fn, mask, count := target.Hook()
	if fn == nil {
		return []state.Value{nil}
	}
	return []state.Value{fn, mask, count}
}

// dbgTraceback implements debug.traceback's message-passthrough,
// frame-listing, and 10+...+11 truncation rule.
func dbgTraceback(th *state.Thread, args []state.Value) []state.Value {
	target := th
	argi := 0
	if t, ok := arg(args, 0).(*state.Thread); ok {
		target = t
		argi = 1
	}
	msg := arg(args, argi)
	if msg != nil {
		if _, ok := msg.(string); !ok {
			return []state.Value{msg}
		}
	}
	level := int64(1)
	if l, ok := state.ToInteger(arg(args, argi+1)); ok {
		level = l
	}

	var lines []string
	if s, ok := msg.(string); ok {
		lines = append(lines, s)
	}
	lines = append(lines, "stack traceback:")

	var frames []string
	for lvl := int(level) - 1; ; lvl++ {
		f := target.FrameAt(lvl)
		if f == nil {
			break
		}
		frames = append(frames, frameLine(f))
	}
	if target.IsMain() {
		frames = append(frames, "\t[C]: in ?")
	}

	if len(frames) > 22 {
		skipped := len(frames) - 21
		head := frames[:10]
		tail := frames[len(frames)-11:]
		frames = append(append(head, fmt.Sprintf("\t...\t(skipping %d levels)", skipped)), tail...)
	}
	lines = append(lines, frames...)
	return []state.Value{strings.Join(lines, "\n")}
}

func frameLine(f *state.Frame) string {
	c := f.Closure()
	loc := "[C]"
	if !c.IsGo() {
		loc = shortSrc(c.Proto.Source) + ":" + strconv.Itoa(f.CurrentLine())
	}
	what := "?"
	if c.IsGo() {
		if c.Name() != "?" {
			what = "function '" + c.Name() + "'"
		}
	} else if c.Proto.LineDefined == 0 {
		what = "main chunk"
	} else if name, namewhat := callerName(f); namewhat != "" {
		what = fmt.Sprintf("%s '%s'", namewhat, name)
	} else {
		what = fmt.Sprintf("function <%s:%d>", shortSrc(c.Proto.Source), c.Proto.LineDefined)
	}
	return "\t" + loc + ": in " + what
}

// callerName infers f's call-site name by decoding the CALL/TAILCALL
// instruction in f's caller that invoked it: a traceback needs "in
// function 'f'" rather than just the anonymous "function <src:line>"
// every closure would otherwise render as.
func callerName(f *state.Frame) (name, namewhat string) {
	caller := f.Prev()
	if caller == nil {
		return "?", ""
	}
	cc := caller.Closure()
	if cc.IsGo() {
		return "?", ""
	}
	proto := cc.Proto
	callPC := caller.PC() - 1
	if callPC < 0 || callPC >= len(proto.Code) {
		return "?", ""
	}
	inst := vm.Instruction(proto.Code[callPC])
	switch inst.Opcode() {
	case vm.OpCall, vm.OpTailCall:
	default:
		return "?", ""
	}
	a, _, _ := inst.ABC()
	return funcNameFromCode(proto, callPC, a)
}

// funcNameFromCode scans backward from callPC for the most recent
// instruction that wrote register a, the same register the call
// instruction reads its callee from, and decodes how that value was
// produced: a global/field/method lookup, an upvalue, or a local.
func funcNameFromCode(proto *binchunk.Prototype, callPC, a int) (name, namewhat string) {
	for pc := callPC - 1; pc >= 0; pc-- {
		inst := vm.Instruction(proto.Code[pc])
		ia, ib, ic := inst.ABC()
		switch inst.Opcode() {
		case vm.OpGetTabUp:
			if ia != a {
				continue
			}
			if s, ok := constString(proto, ic); ok {
				return s, "global"
			}
			return "?", ""
		case vm.OpGetUpval:
			if ia != a {
				continue
			}
			if ib < len(proto.Upvalues) && proto.Upvalues[ib].Name != "" {
				return proto.Upvalues[ib].Name, "upvalue"
			}
			return "?", ""
		case vm.OpMove:
			if ia != a {
				continue
			}
			if s := localName(proto, ib, pc); s != "" {
				return s, "local"
			}
			return "?", ""
		case vm.OpGetTable:
			if ia != a {
				continue
			}
			if s, ok := constString(proto, ic); ok {
				return s, "field"
			}
			return "?", ""
		case vm.OpSelf:
			if ia != a {
				continue
			}
			if s, ok := constString(proto, ic); ok {
				return s, "method"
			}
			return "?", ""
		default:
			if ia == a {
				return "?", ""
			}
		}
	}
	return "?", ""
}

func constString(proto *binchunk.Prototype, rk int) (string, bool) {
	if !vm.IsConst(rk) {
		return "", false
	}
	idx := vm.ConstIdx(rk)
	if idx < 0 || idx >= len(proto.Constants) {
		return "", false
	}
	s, ok := proto.Constants[idx].(string)
	return s, ok
}

func localName(proto *binchunk.Prototype, slot, pc int) string {
	for _, lv := range proto.LocVars {
		if lv.Slot == slot && pc >= lv.StartPC && pc < lv.EndPC {
			return lv.VarName
		}
	}
	return ""
}

func dbgGetMetatable(th *state.Thread, args []state.Value) []state.Value {
	tbl, ok := arg(args, 0).(*state.Table)
	if !ok || tbl.Meta == nil {
		return []state.Value{nil}
	}
	return []state.Value{tbl.Meta}
}

func dbgSetMetatable(th *state.Thread, args []state.Value) []state.Value {
	tbl, ok := arg(args, 0).(*state.Table)
	if !ok {
		return []state.Value{arg(args, 0)}
	}
	switch mt := arg(args, 1).(type) {
	case nil:
		tbl.Meta = nil
	case *state.Table:
		tbl.Meta = mt
	}
	return []state.Value{tbl}
}

func dbgGetRegistry(th *state.Thread, args []state.Value) []state.Value {
	return []state.Value{state.NewTable(0, 0)}
}
