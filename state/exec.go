package state

import (
	"github.com/lollipopkit/lua54/vm"
)

// runFrame is the opcode dispatch loop: it interprets f's prototype's
// code against f's register window until a RETURN (or an eliminated
// TAILCALL loops it onto a new prototype in place) produces a result
// slice. Dispatch is a direct switch since this VM has no second
// embedding host to abstract over.
func runFrame(th *Thread, f *Frame) []Value {
	for {
		code := f.proto().Code
		pc := f.pc
		inst := vm.Instruction(code[pc])
		isBackJump := f.backJumpPC == pc
		f.backJumpPC = -1
		if th.hook != nil {
			th.tickLine(f.proto().LineAt(pc), isBackJump)
			th.tickCount()
		}
		f.pc++
		op := inst.Opcode()

		switch op {
		case vm.OpMove:
			a, b, _ := inst.ABC()
			f.set(a, f.get(b))

		case vm.OpLoadK:
			a, bx := inst.ABx()
			f.set(a, f.proto().Constants[bx])

		case vm.OpLoadKX:
			a, _ := inst.ABx()
			extra := vm.Instruction(code[f.pc])
			f.pc++
			f.set(a, f.proto().Constants[extra.Ax()])

		case vm.OpLoadBool:
			a, b, c := inst.ABC()
			f.set(a, b != 0)
			if c != 0 {
				f.pc++
			}

		case vm.OpLoadNil:
			a, b, _ := inst.ABC()
			for i := a; i <= a+b; i++ {
				f.set(i, nil)
			}

		case vm.OpGetUpval:
			a, b, _ := inst.ABC()
			f.set(a, f.closure.Upval[b].Get())

		case vm.OpSetUpval:
			a, b, _ := inst.ABC()
			f.closure.Upval[b].Set(f.get(a))

		case vm.OpGetTabUp:
			a, b, c := inst.ABC()
			f.set(a, index(th, f.closure.Upval[b].Get(), f.getRK(c)))

		case vm.OpSetTabUp:
			a, b, c := inst.ABC()
			newindex(th, f.closure.Upval[a].Get(), f.getRK(b), f.getRK(c))

		case vm.OpGetTable:
			a, b, c := inst.ABC()
			f.set(a, index(th, f.get(b), f.getRK(c)))

		case vm.OpSetTable:
			a, b, c := inst.ABC()
			newindex(th, f.get(a), f.getRK(b), f.getRK(c))

		case vm.OpNewTable:
			a, b, c := inst.ABC()
			f.set(a, NewTable(fb2int(b), fb2int(c)))

		case vm.OpSelf:
			a, b, c := inst.ABC()
			obj := f.get(b)
			f.set(a+1, obj)
			f.set(a, index(th, obj, f.getRK(c)))

		case vm.OpAdd, vm.OpSub, vm.OpMul, vm.OpMod, vm.OpPow, vm.OpDiv, vm.OpIDiv,
			vm.OpBAnd, vm.OpBOr, vm.OpBXor, vm.OpShL, vm.OpShR:
			a, b, c := inst.ABC()
			f.set(a, arith(th, opToMM(op), f.getRK(b), f.getRK(c)))

		case vm.OpUnm:
			a, b, _ := inst.ABC()
			f.set(a, unaryMinus(th, f.get(b)))

		case vm.OpBNot:
			a, b, _ := inst.ABC()
			f.set(a, bitwiseNot(th, f.get(b)))

		case vm.OpNot:
			a, b, _ := inst.ABC()
			f.set(a, !Truthy(f.get(b)))

		case vm.OpLen:
			a, b, _ := inst.ABC()
			f.set(a, length(th, f.get(b)))

		case vm.OpConcat:
			a, b, c := inst.ABC()
			res := f.get(c)
			for i := c - 1; i >= b; i-- {
				res = concat(th, f.get(i), res)
			}
			f.set(a, res)

		case vm.OpJmp:
			a, sbx := inst.AsBx()
			if a > 0 {
				f.closeUpvalsFrom(a - 1)
			}
			f.pc += sbx
			if sbx < 0 {
				f.backJumpPC = f.pc
			}

		case vm.OpEq:
			a, b, c := inst.ABC()
			if equals(th, f.getRK(b), f.getRK(c)) != (a != 0) {
				f.pc++
			}
		case vm.OpLt:
			a, b, c := inst.ABC()
			if lessThan(th, f.getRK(b), f.getRK(c)) != (a != 0) {
				f.pc++
			}
		case vm.OpLe:
			a, b, c := inst.ABC()
			if lessEqual(th, f.getRK(b), f.getRK(c)) != (a != 0) {
				f.pc++
			}

		case vm.OpTest:
			a, _, c := inst.ABC()
			if Truthy(f.get(a)) != (c != 0) {
				f.pc++
			}

		case vm.OpTestSet:
			a, b, c := inst.ABC()
			if Truthy(f.get(b)) == (c != 0) {
				f.set(a, f.get(b))
			} else {
				f.pc++
			}

		case vm.OpCall:
			a, b, c := inst.ABC()
			args := f.callArgs(a, b)
			fn := f.get(a)
			results := Call(th, fn, args)
			f.storeResults(a, c, results)

		case vm.OpTailCall:
			a, b, _ := inst.ABC()
			args := f.callArgs(a, b)
			fn := f.get(a)
			if results, eliminated := tailCallInPlace(th, f, fn, args); !eliminated {
				return results
			}
			// eliminated: f now runs the callee's code; continue looping.

		case vm.OpReturn:
			a, b, _ := inst.ABC()
			vals := f.callArgs(a-1, b)
			f.closeUpvalsFrom(0)
			f.popTBCFrom(th, 0, nil)
			return vals

		case vm.OpForPrepInt:
			a, sbx := inst.AsBx()
			execForPrepInt(th, f, a, sbx)
		case vm.OpForLoopInt:
			a, sbx := inst.AsBx()
			execForLoopInt(f, a, sbx)
		case vm.OpForPrepFlt:
			a, sbx := inst.AsBx()
			execForPrepFlt(th, f, a, sbx)
		case vm.OpForLoopFlt:
			a, sbx := inst.AsBx()
			execForLoopFlt(f, a, sbx)

		case vm.OpTForCall:
			a, _, c := inst.ABC()
			results := Call(th, f.get(a), []Value{f.get(a + 1), f.get(a + 2)})
			for i := 0; i < c; i++ {
				var v Value
				if i < len(results) {
					v = results[i]
				}
				f.set(a+3+i, v)
			}
		case vm.OpTForLoop:
			a, sbx := inst.AsBx()
			if f.get(a) != nil {
				f.set(a-1, f.get(a))
				f.pc += sbx
				f.backJumpPC = f.pc
			}

		case vm.OpSetList:
			a, b, c := inst.ABC()
			n := b
			if n == 0 {
				n = f.top - (a + 1) + 1
			}
			base := (c - 1) * fieldsPerFlush
			t := f.get(a).(*Table)
			for i := 1; i <= n; i++ {
				t.Set(int64(base+i), f.get(a+i))
			}

		case vm.OpClosure:
			a, bx := inst.ABx()
			f.set(a, makeClosure(f, bx))

		case vm.OpVararg:
			a, b, _ := inst.ABC()
			if b == 0 {
				for i, v := range f.varargs {
					f.set(a+i, v)
				}
				f.top = a + len(f.varargs)
			} else {
				n := b - 1
				for i := 0; i < n; i++ {
					var v Value
					if i < len(f.varargs) {
						v = f.varargs[i]
					}
					f.set(a+i, v)
				}
			}

		case vm.OpClose:
			a, _, _ := inst.ABC()
			f.popTBCFrom(th, a, nil)
			f.closeUpvalsFrom(a)

		case vm.OpTBC:
			a, _, _ := inst.ABC()
			v := f.get(a)
			if v != nil && v != false {
				mt := getMetatableOf(th, v)
				if mt == nil || mt.Get(mmClose) == nil {
					throwError(th, "variable got a non-closable value")
				}
			}
			f.pushTBC(a)

		case vm.OpExtraArg:
			// only ever consumed inline by OpLoadKX above.
		}
	}
}

const fieldsPerFlush = 50

// callArgs resolves a CALL/TAILCALL/RETURN's operand range: B>0 means
// exactly B-1 values starting at A+1; B==0 means "everything up to the
// current top", the multret convention fed by a preceding multret
// CALL/VARARG. RETURN's values start at A itself, so it passes A-1
// (giving A..A+B-2).
func (f *Frame) callArgs(a, b int) []Value {
	if b > 0 {
		return append([]Value{}, f.regs[a+1:a+b]...)
	}
	return append([]Value{}, f.regs[a+1:f.top]...)
}

func (f *Frame) storeResults(a, c int, results []Value) {
	if c > 0 {
		n := c - 1
		for i := 0; i < n; i++ {
			var v Value
			if i < len(results) {
				v = results[i]
			}
			f.set(a+i, v)
		}
		return
	}
	for i, v := range results {
		f.set(a+i, v)
	}
	f.top = a + len(results)
}

// tailCallInPlace eliminates the Go call for a Lua-to-Lua tail call by
// rebinding f onto the callee's prototype instead of recursing; for a
// Go-function or __call-metamethod target it falls back to an
// ordinary Call and returns the results directly (ending runFrame via
// the non-nil return).
func tailCallInPlace(th *Thread, f *Frame, fn Value, args []Value) (results []Value, eliminated bool) {
	c, ok := fn.(*Closure)
	if !ok || c.IsGo() {
		return Call(th, fn, args), false
	}
	prev := f.prev
	nf := newFrame(c, prev)
	bindArgs(nf, c, args)
	f.closeUpvalsFrom(0)
	f.popTBCFrom(th, 0, nil)
	*f = *nf
	th.fireHook("tail call", c.Proto.LineDefined)
	return nil, true
}

func makeClosure(f *Frame, bx int) *Closure {
	proto := f.proto().Protos[bx]
	c := NewLuaClosure(proto)
	for i, uv := range proto.Upvalues {
		if uv.Instack != 0 {
			c.Upval[i] = f.upvalueFor(int(uv.Idx))
		} else {
			c.Upval[i] = f.closure.Upval[uv.Idx]
		}
	}
	return c
}

func opToMM(op int) string {
	switch op {
	case vm.OpAdd:
		return mmAdd
	case vm.OpSub:
		return mmSub
	case vm.OpMul:
		return mmMul
	case vm.OpMod:
		return mmMod
	case vm.OpPow:
		return mmPow
	case vm.OpDiv:
		return mmDiv
	case vm.OpIDiv:
		return mmIDiv
	case vm.OpBAnd:
		return mmBAnd
	case vm.OpBOr:
		return mmBOr
	case vm.OpBXor:
		return mmBXor
	case vm.OpShL:
		return mmShl
	case vm.OpShR:
		return mmShr
	default:
		return ""
	}
}

// fb2int inverts the codegen's int2fb "floating byte" size hint.
func fb2int(x int) int {
	if x < 8 {
		return x
	}
	e := uint(x>>3) - 1
	return (x&7 + 8) << e
}

/* numeric for: see cgForNumStat's doc comment for the int/float
   opcode-selection contract. The Int-opcode handlers fall back to
   float arithmetic at runtime when the prepared bounds aren't all
   exact integers, so a dynamically-bounded `for i=a,b,c do` (bounds
   not literal at compile time) still behaves correctly even though
   the compiler always emits the Int opcode pair for it. */

func execForPrepInt(th *Thread, f *Frame, a, sbx int) {
	initV, limitV, stepV := f.get(a), f.get(a+1), f.get(a+2)
	ii, iok := initV.(int64)
	li, lok := limitV.(int64)
	si, sok := stepV.(int64)
	if iok && lok && sok {
		if si == 0 {
			throwError(th, "'for' step is zero")
		}
		skip := (si > 0 && ii > li) || (si < 0 && ii < li)
		// FORLOOP adds the step before its first test, so start one step back.
		f.set(a, ii-si)
		f.set(a+1, li)
		f.set(a+2, si)
		advance(f, sbx, skip)
		return
	}
	fi, iok2 := ToFloat(initV)
	fl, lok2 := ToFloat(limitV)
	fs, sok2 := ToFloat(stepV)
	if !iok2 {
		throwError(th, "'for' initial value must be a number")
	}
	if !lok2 {
		throwError(th, "'for' limit must be a number")
	}
	if !sok2 {
		throwError(th, "'for' step must be a number")
	}
	if fs == 0 {
		throwError(th, "'for' step is zero")
	}
	skip := (fs > 0 && fi > fl) || (fs < 0 && fi < fl)
	f.set(a, fi-fs)
	f.set(a+1, fl)
	f.set(a+2, fs)
	advance(f, sbx, skip)
}

func execForLoopInt(f *Frame, a, sbx int) {
	switch init := f.get(a).(type) {
	case int64:
		limit := f.get(a + 1).(int64)
		step := f.get(a + 2).(int64)
		next := init + step
		cont := (step > 0 && next <= limit) || (step < 0 && next >= limit)
		if cont {
			f.set(a, next)
			f.set(a+3, next)
			f.pc += sbx
			f.backJumpPC = f.pc
		}
	case float64:
		limit := f.get(a + 1).(float64)
		step := f.get(a + 2).(float64)
		next := init + step
		cont := (step > 0 && next <= limit) || (step < 0 && next >= limit)
		if cont {
			f.set(a, next)
			f.set(a+3, next)
			f.pc += sbx
			f.backJumpPC = f.pc
		}
	}
}

func execForPrepFlt(th *Thread, f *Frame, a, sbx int) {
	fi, iok := ToFloat(f.get(a))
	fl, lok := ToFloat(f.get(a + 1))
	fs, sok := ToFloat(f.get(a + 2))
	if !iok || !lok || !sok {
		throwError(th, "'for' initial value must be a number")
	}
	if fs == 0 {
		throwError(th, "'for' step is zero")
	}
	skip := (fs > 0 && fi > fl) || (fs < 0 && fi < fl)
	f.set(a, fi-fs)
	f.set(a+1, fl)
	f.set(a+2, fs)
	advance(f, sbx, skip)
}

func execForLoopFlt(f *Frame, a, sbx int) {
	init := f.get(a).(float64)
	limit := f.get(a + 1).(float64)
	step := f.get(a + 2).(float64)
	next := init + step
	cont := (step > 0 && next <= limit) || (step < 0 && next >= limit)
	if cont {
		f.set(a, next)
		f.set(a+3, next)
		f.pc += sbx
		f.backJumpPC = f.pc
	}
}

func advance(f *Frame, sbx int, skip bool) {
	if skip {
		f.pc += sbx + 1
	} else {
		f.pc += sbx
	}
}
