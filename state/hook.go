package state

import "strings"

// HookFunc is a debug hook: invoked with the event name ("call",
// "return", "tail call", "line", "count") and, for a "line" event, the
// source line reached.
type HookFunc func(th *Thread, event string, line int)

// hookState is per-thread debug-hook configuration: setting a hook on
// another thread records per-coroutine hook state.
type hookState struct {
	fn        HookFunc
	luaFn     Value // the Lua-visible function passed to sethook, for gethook
	mask      string
	count     int64
	counter   int64
	lastLine  int
	firedThis bool // reentrancy guard: a hook must not re-trigger itself
}

// SetHook installs or clears (fn == nil) this thread's debug hook.
func (th *Thread) SetHook(fn HookFunc, luaFn Value, mask string, count int64) {
	if fn == nil {
		th.hook = nil
		return
	}
	th.hook = &hookState{fn: fn, luaFn: luaFn, mask: mask, count: count}
}

// Hook returns the thread's current hook function (Lua-visible value),
// mask, and count, or (nil, "", 0) if none is set.
func (th *Thread) Hook() (Value, string, int64) {
	if th.hook == nil {
		return nil, "", 0
	}
	return th.hook.luaFn, th.hook.mask, th.hook.count
}

func (th *Thread) fireHook(event string, line int) {
	h := th.hook
	if h == nil || h.firedThis {
		return
	}
	switch event {
	case "call", "tail call":
		if !strings.ContainsRune(h.mask, 'c') {
			return
		}
	case "return":
		if !strings.ContainsRune(h.mask, 'r') {
			return
		}
	case "line":
		if !strings.ContainsRune(h.mask, 'l') {
			return
		}
	case "count":
		// always fires when reached; gated by the counter check below
	}
	h.firedThis = true
	defer func() {
		h.firedThis = false
		if !th.cfg.StrictHooks {
			if r := recover(); r != nil {
				if _, ok := recoverLuaError(r); !ok {
					panic(r)
				}
			}
		}
	}()
	h.fn(th, event, line)
}

// tickCount advances the instruction counter and fires a "count" event
// every h.count instructions, per sethook's count>0 contract.
func (th *Thread) tickCount() {
	h := th.hook
	if h == nil || h.count <= 0 {
		return
	}
	h.counter++
	if h.counter >= h.count {
		h.counter = 0
		th.fireHook("count", -1)
	}
}

// tickLine fires a "line" event when execution reaches a new source
// line, matching real Lua's once-per-line-entry firing. forceRepeat is
// true when the current instruction was reached via a backward jump
// (a loop re-entering its body), which must fire the hook again even
// when that line was also the last one hooked — e.g. a one-line loop
// body fires once per iteration, not once total.
func (th *Thread) tickLine(line int, forceRepeat bool) {
	h := th.hook
	if h == nil || line < 0 {
		return
	}
	if line != h.lastLine || forceRepeat {
		h.lastLine = line
		th.fireHook("line", line)
	}
}
