package stdlib

import "github.com/lollipopkit/lua54/state"

// OpenCoroutine installs coroutine.* as ordinary Go closures wrapping
// state.Thread's Resume/Yield handshake.
func OpenCoroutine(th *state.Thread, globals *state.Table) {
	co := state.NewTable(0, 8)
	globals.Set("coroutine", co)

	co.Set("create", state.NewGoClosure("coroutine.create", coCreate))
	co.Set("resume", state.NewGoClosure("coroutine.resume", coResume))
	co.Set("yield", state.NewGoClosure("coroutine.yield", coYield))
	co.Set("status", state.NewGoClosure("coroutine.status", coStatus))
	co.Set("wrap", state.NewGoClosure("coroutine.wrap", coWrap))
	co.Set("isyieldable", state.NewGoClosure("coroutine.isyieldable", coIsYieldable))
	co.Set("running", state.NewGoClosure("coroutine.running", coRunning))
	co.Set("close", state.NewGoClosure("coroutine.close", coClose))
}

func coCreate(th *state.Thread, args []state.Value) []state.Value {
	fn := arg(args, 0)
	if !callable(fn) {
		panic("bad argument #1 to 'create' (function expected)")
	}
	return []state.Value{state.NewCoroutine(th, fn)}
}

func callable(v state.Value) bool {
	switch v.(type) {
	case *state.Closure, *state.GoFuncDecl:
		return true
	default:
		return false
	}
}

func coResume(th *state.Thread, args []state.Value) []state.Value {
	co, ok := arg(args, 0).(*state.Thread)
	if !ok {
		panic("bad argument #1 to 'resume' (coroutine expected)")
	}
	ok2, results := state.Resume(th, co, args[1:])
	return append([]state.Value{ok2}, results...)
}

func coYield(th *state.Thread, args []state.Value) []state.Value {
	return state.Yield(th, args)
}

func coStatus(th *state.Thread, args []state.Value) []state.Value {
	co, ok := arg(args, 0).(*state.Thread)
	if !ok {
		panic("bad argument #1 to 'status' (coroutine expected)")
	}
	return []state.Value{co.Status().String()}
}

func coWrap(th *state.Thread, args []state.Value) []state.Value {
	fn := arg(args, 0)
	if !callable(fn) {
		panic("bad argument #1 to 'wrap' (function expected)")
	}
	co := state.NewCoroutine(th, fn)
	wrapper := state.NewGoClosure("coroutine.wrap", func(th *state.Thread, args []state.Value) []state.Value {
		ok, results := state.Resume(th, co, args)
		if !ok {
			var msg state.Value
			if len(results) > 0 {
				msg = results[0]
			}
			panic(&state.LuaError{Value: msg})
		}
		return results
	})
	return []state.Value{wrapper}
}

func coIsYieldable(th *state.Thread, args []state.Value) []state.Value {
	return []state.Value{th.IsYieldable()}
}

func coRunning(th *state.Thread, args []state.Value) []state.Value {
	return []state.Value{th, th.IsMain()}
}

// coClose implements coroutine.close: a running or normal coroutine
// can't be closed (it returns false plus a message instead of raising);
// a suspended or already-dead one is marked
// dead. Unlike a normal scope exit, an unstarted/suspended coroutine's
// pending <close> locals live on a different goroutine's stack that
// this call does not resume, so they are not invoked here — documented
// as a known simplification in DESIGN.md.
func coClose(th *state.Thread, args []state.Value) []state.Value {
	co, ok := arg(args, 0).(*state.Thread)
	if !ok {
		panic("bad argument #1 to 'close' (coroutine expected)")
	}
	switch co.Status() {
	case state.ThreadRunning, state.ThreadNormal:
		return []state.Value{false, "cannot close a running coroutine"}
	default:
		co.MarkDead()
		return []state.Value{true}
	}
}
