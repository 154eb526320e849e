package state

import "fmt"

// LuaError is what every Lua-level and internal VM error unwinds as;
// pcall/xpcall recover it specifically so a Go-level panic that isn't
// a LuaError (a real bug) keeps propagating instead of being
// swallowed — pcall is a boundary, not a catch-all.
type LuaError struct {
	Value     Value
	Traceback []string
}

func (e *LuaError) Error() string { return ToStringValue(e.Value) }

func newRuntimeError(format string, a ...any) *LuaError {
	return &LuaError{Value: fmt.Sprintf(format, a...)}
}

func throwError(th *Thread, v Value) {
	panic(&LuaError{Value: addPosition(th, v), Traceback: captureTraceback(th)})
}

// Error implements error(message, level)'s position-prefixing rule:
// level 0 leaves the message untouched, level 1 (the default) and
// above prepend the caller's "chunkname:line: " the same way an
// uncaught runtime error does.
func Error(th *Thread, v Value, level int64) {
	if level > 0 {
		panic(&LuaError{Value: addPosition(th, v), Traceback: captureTraceback(th)})
	}
	panic(&LuaError{Value: v, Traceback: captureTraceback(th)})
}

// captureTraceback snapshots th's currently active Lua/Go frames, most
// recent first, at the moment an error is raised — before pcall (or an
// uncaught error's final report) unwinds any of them, so the recorded
// trace reflects the failure site rather than wherever it's handled.
func captureTraceback(th *Thread) []string {
	var frames []string
	for lvl := 0; ; lvl++ {
		f := th.FrameAt(lvl)
		if f == nil {
			break
		}
		frames = append(frames, traceFrameLine(f))
	}
	return frames
}

func traceFrameLine(f *Frame) string {
	c := f.Closure()
	if c.IsGo() {
		if c.Name() == "?" {
			return "[C]: in ?"
		}
		return "[C]: in function '" + c.Name() + "'"
	}
	loc := fmt.Sprintf("%s:%d", c.Proto.Source, f.CurrentLine())
	if f.Prev() == nil {
		return loc + ": in main chunk"
	}
	return fmt.Sprintf("%s: in function <%s:%d>", loc, c.Proto.Source, c.Proto.LineDefined)
}

// addPosition prepends "chunkname:line: " the way uncaught runtime
// errors (not explicit error(v, 0) or error(non-string)) do.
func addPosition(th *Thread, v Value) Value {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if f := th.currentFrame(); f != nil && f.closure.Proto != nil {
		line := f.closure.Proto.LineAt(f.pc)
		return fmt.Sprintf("%s:%d: %s", f.closure.Proto.Source, line, s)
	}
	return s
}

// recoverLuaError turns a recovered panic value into a *LuaError and an
// ok flag. A *LuaError, or a plain string message panicked by a Go
// library function, is a Lua error; anything else (a genuine Go bug)
// is re-panicked by the caller.
func recoverLuaError(r any) (*LuaError, bool) {
	if le, ok := r.(*LuaError); ok {
		return le, true
	}
	if s, ok := r.(string); ok {
		return &LuaError{Value: s}, true
	}
	return nil, false
}
