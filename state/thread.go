package state

// ThreadStatus mirrors coroutine.status()'s four Lua-visible states.
type ThreadStatus int

const (
	ThreadSuspended ThreadStatus = iota
	ThreadRunning
	ThreadNormal // resumed another coroutine, itself still on the stack
	ThreadDead
)

func (s ThreadStatus) String() string {
	switch s {
	case ThreadSuspended:
		return "suspended"
	case ThreadRunning:
		return "running"
	case ThreadNormal:
		return "normal"
	default:
		return "dead"
	}
}

// Thread is a Lua coroutine: the main thread is one too, just never
// resumed/yielded through the channel pair (isMain == true). Every
// Thread owns its own Go-stack of Frames; coroutines are scheduled as
// real goroutines rendezvousing over resumeCh/yieldCh.
type Thread struct {
	frame   *Frame
	depth   int
	status  ThreadStatus
	globals *Table
	strMeta *Table // shared metatable for the string type
	isMain  bool

	parent   *Thread
	fn       Value // the function to run, set at coroutine.create time
	resumeCh chan []Value
	yieldCh  chan coroSignal
	started  bool

	hook *hookState
	cfg  Config

	lastTraceback []string // captured at the most recent error PCall recovered
}

// coroSignal carries either a yield's values or a final return/error
// back across yieldCh.
type coroSignal struct {
	values []Value
	err    *LuaError
	done   bool
}

func NewMainThread(globals *Table) *Thread {
	return &Thread{globals: globals, status: ThreadRunning, isMain: true, cfg: DefaultConfig()}
}

func (th *Thread) currentFrame() *Frame { return th.frame }

// FrameAt returns the frame `level` calls up from the running one (0 =
// currently executing), or nil past the bottom of the stack — the
// indexing debug.getinfo/getlocal's `level` argument uses.
func (th *Thread) FrameAt(level int) *Frame {
	f := th.frame
	for i := 0; i < level && f != nil; i++ {
		f = f.prev
	}
	return f
}

// Depth reports how many Lua frames are currently active.
func (th *Thread) Depth() int { return th.depth }

func (th *Thread) Globals() *Table { return th.globals }

func (th *Thread) Status() ThreadStatus { return th.status }

func (th *Thread) IsMain() bool { return th.isMain }

// LastTraceback returns the stack trace captured at the point the most
// recent error this thread's PCall recovered was raised, or nil if no
// error has been recovered yet — the CLI's uncaught-error report reads
// this instead of re-walking (already-unwound) frames after the fact.
func (th *Thread) LastTraceback() []string { return th.lastTraceback }

// MarkDead forces a coroutine's status to dead, backing coroutine.close
// on a suspended or not-yet-started coroutine. It does not unwind any
// pending <close> locals on the coroutine's own stack — see
// stdlib.coClose's doc comment.
func (th *Thread) MarkDead() { th.status = ThreadDead }

// SetStringMetatable installs the metatable consulted for `("x"):upper()`
// method-call sugar — called once by stdlib.OpenLibs after string.* loads.
func (th *Thread) SetStringMetatable(mt *Table) { th.strMeta = mt }

func (th *Thread) pushFrame(f *Frame) {
	f.prev = th.frame
	th.frame = f
	th.depth++
}

func (th *Thread) popFrame() {
	th.frame = th.frame.prev
	th.depth--
}

const maxCallDepth = 200

func (th *Thread) checkStackOverflow() {
	limit := th.cfg.MaxCallDepth
	if limit <= 0 {
		limit = maxCallDepth
	}
	if th.depth >= limit {
		throwError(th, "stack overflow")
	}
}
