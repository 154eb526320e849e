package state

import (
	"github.com/lollipopkit/lua54/binchunk"
	"github.com/lollipopkit/lua54/vm"
)

// minStackExtra pads every allocated register window past the
// compiler's MaxStackSize so native helpers always have scratch room
// without reallocating mid-call.
const minStackExtra = 20

// Frame is one Lua (or Go) call's activation record: its register
// window, varargs, program counter, and the upvalues it has opened
// into its own registers for nested closures to capture.
type Frame struct {
	closure *Closure
	regs    []Value
	varargs []Value
	pc      int
	top     int // one past the last register set by the last multret op (CALL/VARARG with B==0)
	prev    *Frame
	openUV  map[int]*Upvalue
	tbc     []int // registers holding <close> values, oldest first

	// backJumpPC is the instruction index a backward jump (OpJmp with
	// sbx<0, or a loop opcode's continuation branch) most recently
	// landed on, or -1. The line hook consults and clears this each
	// fetch so a loop body re-entering its own first line still fires
	// once per iteration instead of only once per line.
	backJumpPC int
}

func newFrame(c *Closure, prev *Frame) *Frame {
	nRegs := 0
	if c.Proto != nil {
		nRegs = c.Proto.MaxStackSize
	}
	return &Frame{closure: c, regs: make([]Value, nRegs+minStackExtra), prev: prev, backJumpPC: -1}
}

func (f *Frame) get(i int) Value { return f.regs[i] }

func (f *Frame) set(i int, v Value) {
	if i >= len(f.regs) {
		grown := make([]Value, i+minStackExtra)
		copy(grown, f.regs)
		f.regs = grown
	}
	f.regs[i] = v
}

// getRK resolves an RK-encoded operand: a register index, or (if its
// high bit is set) an index into the running prototype's constants.
func (f *Frame) getRK(rk int) Value {
	if vm.IsConst(rk) {
		return f.closure.Proto.Constants[vm.ConstIdx(rk)]
	}
	return f.get(rk)
}

// upvalueFor returns the (possibly newly opened) upvalue aliasing
// register i, so sibling closures created later in this frame share
// the same cell.
func (f *Frame) upvalueFor(i int) *Upvalue {
	if f.openUV == nil {
		f.openUV = make(map[int]*Upvalue)
	}
	if uv, ok := f.openUV[i]; ok {
		return uv
	}
	uv := newOpenUpvalue(&f.regs, i)
	f.openUV[i] = uv
	return uv
}

// closeUpvalsFrom closes (detaches from the register window) every
// open upvalue at or above register a, the CLOSE/RETURN/loop-exit
// contract between compiler and VM.
func (f *Frame) closeUpvalsFrom(a int) {
	for idx, uv := range f.openUV {
		if idx >= a {
			uv.close()
			delete(f.openUV, idx)
		}
	}
}

func (f *Frame) proto() *binchunk.Prototype { return f.closure.Proto }

// Closure exposes this frame's running closure, for debug.getinfo and
// traceback construction.
func (f *Frame) Closure() *Closure { return f.closure }

// PC returns the frame's current program counter (index of the
// instruction about to run, or last executed for the topmost frame).
func (f *Frame) PC() int { return f.pc }

// CurrentLine returns the source line of the instruction this frame
// just executed (pc has already advanced past it during fetch), or -1
// for a stripped prototype — debug.getinfo's "currentline" field.
func (f *Frame) CurrentLine() int {
	if f.closure.Proto == nil {
		return -1
	}
	return f.closure.Proto.LineAt(f.pc - 1)
}

// Prev returns the caller's frame, or nil at the bottom of the stack.
func (f *Frame) Prev() *Frame { return f.prev }

// Reg exposes register i, for debug.getlocal's "(C temporary)" path
// and similar introspection that needs the raw register window.
func (f *Frame) Reg(i int) Value {
	if i < 0 || i >= len(f.regs) {
		return nil
	}
	return f.regs[i]
}

// SetReg writes register i directly, backing debug.setlocal.
func (f *Frame) SetReg(i int, v Value) { f.set(i, v) }

// Vararg returns the frame's i-th (0-based) captured vararg, for
// debug.getlocal's negative-index path.
func (f *Frame) Vararg(i int) (Value, bool) {
	if i < 0 || i >= len(f.varargs) {
		return nil, false
	}
	return f.varargs[i], true
}

// pushTBC records register i as holding a value with a <close>
// attribute, to be closed (in reverse declaration order) when its
// scope exits or the frame unwinds on error.
func (f *Frame) pushTBC(i int) { f.tbc = append(f.tbc, i) }

// popTBCFrom closes every to-be-closed slot at or above register a,
// most-recently-declared first, invoking __close with errVal (nil on
// normal scope exit) as Lua 5.4 §3.3.8 specifies.
func (f *Frame) popTBCFrom(th *Thread, a int, errVal Value) {
	for len(f.tbc) > 0 && f.tbc[len(f.tbc)-1] >= a {
		slot := f.tbc[len(f.tbc)-1]
		f.tbc = f.tbc[:len(f.tbc)-1]
		v := f.get(slot)
		if v == nil || v == false {
			continue
		}
		callClose(th, v, errVal)
	}
}
