package state

// Call is the universal call entry point: every CALL/TAILCALL opcode,
// every metamethod dispatch, and every stdlib function that invokes a
// callback goes through here. It splits on Lua-closure vs. Go-closure
// calls and passes/returns []Value slices directly since this VM
// doesn't expose a generic C-API stack.
func Call(th *Thread, fn Value, args []Value) []Value {
	switch c := fn.(type) {
	case *GoFuncDecl:
		return c.Fn(th, args)
	case *Closure:
		if c.IsGo() {
			return c.Go.Fn(th, args)
		}
		return callLuaClosure(th, c, args)
	default:
		if mm := getMetamethod(th, fn, mmCall); mm != nil {
			return Call(th, mm, append([]Value{fn}, args...))
		}
		throwError(th, "attempt to call a "+TypeName(fn)+" value")
		return nil
	}
}

func callLuaClosure(th *Thread, c *Closure, args []Value) []Value {
	th.checkStackOverflow()
	f := newFrame(c, nil)
	bindArgs(f, c, args)
	th.pushFrame(f)
	th.fireHook("call", c.Proto.LineDefined)
	results := runFrame(th, f)
	th.fireHook("return", -1)
	th.popFrame()
	return results
}

func bindArgs(f *Frame, c *Closure, args []Value) {
	nParams := int(c.Proto.NumParams)
	for i := 0; i < nParams; i++ {
		if i < len(args) {
			f.set(i, args[i])
		}
	}
	if c.Proto.IsVararg && len(args) > nParams {
		f.varargs = append([]Value{}, args[nParams:]...)
	}
}

// PCall implements pcall/xpcall's protected-call semantics: recover
// exactly a *LuaError, run the xpcall message handler (if any) while
// the protected call's frames and <close> scopes are still intact (so
// it sees the same traceback and locals the error occurred with), only
// then unwind this thread's frames back to the caller's depth (closing
// any <close> locals along the way), and report (false, errValue)
// instead of propagating. A panic that is neither a *LuaError nor a
// string message (a genuine interpreter
// bug) is re-panicked rather than swallowed.
func PCall(th *Thread, fn Value, args []Value, handler Value) (ok bool, results []Value) {
	savedFrame := th.frame
	savedDepth := th.depth

	defer func() {
		if r := recover(); r != nil {
			le, isLua := recoverLuaError(r)
			if !isLua {
				panic(r)
			}
			th.lastTraceback = le.Traceback
			errVal := le.Value
			if handler != nil {
				errVal = Call(th, handler, []Value{errVal})[0]
			}
			for th.depth > savedDepth {
				f := th.frame
				f.popTBCFrom(th, 0, le.Value)
				th.popFrame()
			}
			th.frame = savedFrame
			ok = false
			results = []Value{errVal}
		}
	}()

	results = Call(th, fn, args)
	ok = true
	return
}
