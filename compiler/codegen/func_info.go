package codegen

import (
	"github.com/lollipopkit/lua54/compiler/ast"
	"github.com/lollipopkit/lua54/compiler/lexer"
	"github.com/lollipopkit/lua54/vm"
)

var arithAndBitwiseBinops = map[int]int{
	lexer.TokenOpAdd:  vm.OpAdd,
	lexer.TokenOpMinus: vm.OpSub,
	lexer.TokenOpMul:  vm.OpMul,
	lexer.TokenOpMod:  vm.OpMod,
	lexer.TokenOpPow:  vm.OpPow,
	lexer.TokenOpDiv:  vm.OpDiv,
	lexer.TokenOpIDiv: vm.OpIDiv,
	lexer.TokenOpBAnd: vm.OpBAnd,
	lexer.TokenOpBOr:  vm.OpBOr,
	lexer.TokenOpWave: vm.OpBXor,
	lexer.TokenOpShL:  vm.OpShL,
	lexer.TokenOpShR:  vm.OpShR,
}

type upvalInfo struct {
	locVarSlot int
	upvalIndex int
	index      int
}

type locVarInfo struct {
	prev     *locVarInfo
	name     string
	attrib   string // "", "const", "close"
	scopeLv  int
	slot     int
	startPC  int
	endPC    int
	captured bool
}

// funcInfo accumulates one function prototype's bytecode: a
// self-contained register allocator, scope stack, constant pool and
// upvalue resolver, extended with <close>/<const> attribute tracking
// and a tbcSlots list feeding OP_TBC emission.
type funcInfo struct {
	parent    *funcInfo
	subFuncs  []*funcInfo
	usedRegs  int
	maxRegs   int
	scopeLv   int
	locVars   []*locVarInfo
	locNames  map[string]*locVarInfo
	upvalues  map[string]upvalInfo
	constants map[any]int
	breaks    [][]int
	gotos     map[string][]int // label name -> pending jmp PCs
	labels    map[string]int   // label name -> PC
	tbcSlots  []int
	insts     []uint32
	lineNums  []uint32
	line      int
	lastLine  int
	numParams int
	isVararg  bool
	source    string
}

func newFuncInfo(parent *funcInfo, fd *ast.FuncDefExp, source string) *funcInfo {
	return &funcInfo{
		parent:    parent,
		locVars:   make([]*locVarInfo, 0, 8),
		locNames:  map[string]*locVarInfo{},
		upvalues:  map[string]upvalInfo{},
		constants: map[any]int{},
		breaks:    make([][]int, 1),
		gotos:     map[string][]int{},
		labels:    map[string]int{},
		insts:     make([]uint32, 0, 8),
		lineNums:  make([]uint32, 0, 8),
		line:      fd.Line,
		lastLine:  fd.LastLine,
		numParams: len(fd.ParList),
		isVararg:  fd.IsVararg,
		source:    source,
	}
}

/* constants */

func (fi *funcInfo) indexOfConstant(k any) int {
	if idx, found := fi.constants[k]; found {
		return idx
	}
	idx := len(fi.constants)
	fi.constants[k] = idx
	return idx
}

/* registers */

func (fi *funcInfo) allocReg() int {
	fi.usedRegs++
	if fi.usedRegs >= 255 {
		panic("function or expression needs too many registers")
	}
	if fi.usedRegs > fi.maxRegs {
		fi.maxRegs = fi.usedRegs
	}
	return fi.usedRegs - 1
}

func (fi *funcInfo) freeReg() {
	if fi.usedRegs <= 0 {
		panic("usedRegs <= 0")
	}
	fi.usedRegs--
}

func (fi *funcInfo) allocRegs(n int) int {
	if n <= 0 {
		panic("n <= 0")
	}
	for i := 0; i < n; i++ {
		fi.allocReg()
	}
	return fi.usedRegs - n
}

func (fi *funcInfo) freeRegs(n int) {
	for i := 0; i < n; i++ {
		fi.freeReg()
	}
}

/* lexical scope */

func (fi *funcInfo) enterScope(breakable bool) {
	fi.scopeLv++
	if breakable {
		fi.breaks = append(fi.breaks, []int{})
	} else {
		fi.breaks = append(fi.breaks, nil)
	}
}

func (fi *funcInfo) exitScope(endPC int) {
	pending := fi.breaks[len(fi.breaks)-1]
	fi.breaks = fi.breaks[:len(fi.breaks)-1]

	a := fi.getJmpArgA()
	for _, pc := range pending {
		sBx := fi.pc() - pc
		fi.insts[pc] = uint32((sBx+vm.MaxArgSBx)<<14 | a<<6 | vm.OpJmp)
	}

	fi.scopeLv--
	for name, lv := range fi.locNames {
		if lv.scopeLv > fi.scopeLv {
			lv.endPC = endPC
			fi.removeLocVar(lv)
			_ = name
		}
	}
}

func (fi *funcInfo) removeLocVar(lv *locVarInfo) {
	fi.freeReg()
	if lv.prev == nil {
		delete(fi.locNames, lv.name)
	} else if lv.prev.scopeLv == lv.scopeLv {
		fi.removeLocVar(lv.prev)
	} else {
		fi.locNames[lv.name] = lv.prev
	}
}

func (fi *funcInfo) addLocVar(name, attrib string, startPC int) int {
	nv := &locVarInfo{
		name: name, attrib: attrib, prev: fi.locNames[name],
		scopeLv: fi.scopeLv, slot: fi.allocReg(), startPC: startPC,
	}
	fi.locVars = append(fi.locVars, nv)
	fi.locNames[name] = nv
	if attrib == "close" {
		fi.tbcSlots = append(fi.tbcSlots, nv.slot)
		fi.emitTBC(startPC, nv.slot)
	}
	return nv.slot
}

func (fi *funcInfo) slotOfLocVar(name string) int {
	if lv, found := fi.locNames[name]; found {
		return lv.slot
	}
	return -1
}

func (fi *funcInfo) isConstVar(name string) bool {
	if lv, found := fi.locNames[name]; found {
		return lv.attrib == "const" || lv.attrib == "close"
	}
	return false
}

func (fi *funcInfo) addBreakJmp(pc int) {
	for i := fi.scopeLv; i >= 0; i-- {
		if fi.breaks[i] != nil {
			fi.breaks[i] = append(fi.breaks[i], pc)
			return
		}
	}
	panic("break outside a loop")
}

/* goto/label: label PC is known only when the label statement is
   reached, so a goto forward-references it and gets its sBx patched
   once the label is emitted. A JMP at pc lands on pc+1+sBx. */

func (fi *funcInfo) addLabel(name string) {
	fi.labels[name] = fi.pc() + 1
	for _, pc := range fi.gotos[name] {
		sBx := fi.labels[name] - pc - 1
		a := fi.insts[pc] >> 6 & 0xFF
		fi.insts[pc] = uint32(sBx+vm.MaxArgSBx)<<14 | a<<6 | vm.OpJmp
	}
	delete(fi.gotos, name)
}

func (fi *funcInfo) addGoto(name string, line int) {
	if target, ok := fi.labels[name]; ok {
		fi.emitJmp(line, 0, target-(fi.pc()+2))
		return
	}
	pc := fi.emitJmp(line, 0, 0)
	fi.gotos[name] = append(fi.gotos[name], pc)
}

/* upvalues */

func (fi *funcInfo) indexOfUpval(name string) int {
	if uv, ok := fi.upvalues[name]; ok {
		return uv.index
	}
	if fi.parent != nil {
		if lv, found := fi.parent.locNames[name]; found {
			idx := len(fi.upvalues)
			fi.upvalues[name] = upvalInfo{lv.slot, -1, idx}
			lv.captured = true
			return idx
		}
		if uvIdx := fi.parent.indexOfUpval(name); uvIdx >= 0 {
			idx := len(fi.upvalues)
			fi.upvalues[name] = upvalInfo{-1, uvIdx, idx}
			return idx
		}
	}
	return -1
}

func (fi *funcInfo) closeOpenUpvals(line int) {
	if a := fi.getJmpArgA(); a > 0 {
		fi.emitJmp(line, a, 0)
	}
}

func (fi *funcInfo) getJmpArgA() int {
	hasCaptured := false
	minSlot := fi.maxRegs
	for _, lv := range fi.locNames {
		if lv.scopeLv == fi.scopeLv {
			for v := lv; v != nil && v.scopeLv == fi.scopeLv; v = v.prev {
				if v.captured {
					hasCaptured = true
				}
				if v.slot < minSlot && len(v.name) > 0 && v.name[0] != '(' {
					minSlot = v.slot
				}
			}
		}
	}
	if hasCaptured {
		return minSlot + 1
	}
	return 0
}

/* code emission */

func (fi *funcInfo) pc() int { return len(fi.insts) - 1 }

func (fi *funcInfo) fixSbx(pc, sBx int) {
	i := fi.insts[pc]
	i = i << 18 >> 18
	i = i | uint32(sBx+vm.MaxArgSBx)<<14
	fi.insts[pc] = i
}

func (fi *funcInfo) emitABC(line, opcode, a, b, c int) {
	fi.insts = append(fi.insts, uint32(b<<23|c<<14|a<<6|opcode))
	fi.lineNums = append(fi.lineNums, uint32(line))
}

func (fi *funcInfo) emitABx(line, opcode, a, bx int) {
	fi.insts = append(fi.insts, uint32(bx<<14|a<<6|opcode))
	fi.lineNums = append(fi.lineNums, uint32(line))
}

func (fi *funcInfo) emitAsBx(line, opcode, a, sbx int) {
	fi.insts = append(fi.insts, uint32((sbx+vm.MaxArgSBx)<<14|a<<6|opcode))
	fi.lineNums = append(fi.lineNums, uint32(line))
}

func (fi *funcInfo) emitAx(line, opcode, ax int) {
	fi.insts = append(fi.insts, uint32(ax<<6|opcode))
	fi.lineNums = append(fi.lineNums, uint32(line))
}

func (fi *funcInfo) emitMove(line, a, b int) { fi.emitABC(line, vm.OpMove, a, b, 0) }

func (fi *funcInfo) emitLoadNil(line, a, n int) { fi.emitABC(line, vm.OpLoadNil, a, n-1, 0) }

func (fi *funcInfo) emitLoadBool(line, a, b, c int) { fi.emitABC(line, vm.OpLoadBool, a, b, c) }

func (fi *funcInfo) emitLoadK(line, a int, k any) {
	idx := fi.indexOfConstant(k)
	if idx < (1 << 18) {
		fi.emitABx(line, vm.OpLoadK, a, idx)
	} else {
		fi.emitABx(line, vm.OpLoadKX, a, 0)
		fi.emitAx(line, vm.OpExtraArg, idx)
	}
}

func (fi *funcInfo) emitVararg(line, a, n int) { fi.emitABC(line, vm.OpVararg, a, n+1, 0) }

func (fi *funcInfo) emitClosure(line, a, bx int) { fi.emitABx(line, vm.OpClosure, a, bx) }

func (fi *funcInfo) emitNewTable(line, a, nArr, nRec int) {
	fi.emitABC(line, vm.OpNewTable, a, int2fb(nArr), int2fb(nRec))
}

func (fi *funcInfo) emitSetList(line, a, b, c int) { fi.emitABC(line, vm.OpSetList, a, b, c) }

func (fi *funcInfo) emitGetTable(line, a, b, c int) { fi.emitABC(line, vm.OpGetTable, a, b, c) }
func (fi *funcInfo) emitSetTable(line, a, b, c int) { fi.emitABC(line, vm.OpSetTable, a, b, c) }
func (fi *funcInfo) emitGetUpval(line, a, b int)    { fi.emitABC(line, vm.OpGetUpval, a, b, 0) }
func (fi *funcInfo) emitSetUpval(line, a, b int)    { fi.emitABC(line, vm.OpSetUpval, a, b, 0) }
func (fi *funcInfo) emitGetTabUp(line, a, b, c int) { fi.emitABC(line, vm.OpGetTabUp, a, b, c) }
func (fi *funcInfo) emitSetTabUp(line, a, b, c int) { fi.emitABC(line, vm.OpSetTabUp, a, b, c) }

func (fi *funcInfo) emitCall(line, a, nArgs, nRet int) {
	fi.emitABC(line, vm.OpCall, a, nArgs+1, nRet+1)
}
func (fi *funcInfo) emitTailCall(line, a, nArgs int) {
	fi.emitABC(line, vm.OpTailCall, a, nArgs+1, 0)
}
func (fi *funcInfo) emitReturn(line, a, n int) { fi.emitABC(line, vm.OpReturn, a, n+1, 0) }
func (fi *funcInfo) emitSelf(line, a, b, c int) { fi.emitABC(line, vm.OpSelf, a, b, c) }

func (fi *funcInfo) emitJmp(line, a, sBx int) int {
	fi.emitAsBx(line, vm.OpJmp, a, sBx)
	return fi.pc()
}

func (fi *funcInfo) emitTest(line, a, c int)          { fi.emitABC(line, vm.OpTest, a, 0, c) }
func (fi *funcInfo) emitTestSet(line, a, b, c int)     { fi.emitABC(line, vm.OpTestSet, a, b, c) }
func (fi *funcInfo) emitTBC(line, a int)               { fi.emitABC(line, vm.OpTBC, a, 0, 0) }
func (fi *funcInfo) emitClose(line, a int)             { fi.emitABC(line, vm.OpClose, a, 0, 0) }

func (fi *funcInfo) emitForPrepInt(line, a, sBx int) int {
	fi.emitAsBx(line, vm.OpForPrepInt, a, sBx)
	return fi.pc()
}
func (fi *funcInfo) emitForLoopInt(line, a, sBx int) int {
	fi.emitAsBx(line, vm.OpForLoopInt, a, sBx)
	return fi.pc()
}
func (fi *funcInfo) emitForPrepFlt(line, a, sBx int) int {
	fi.emitAsBx(line, vm.OpForPrepFlt, a, sBx)
	return fi.pc()
}
func (fi *funcInfo) emitForLoopFlt(line, a, sBx int) int {
	fi.emitAsBx(line, vm.OpForLoopFlt, a, sBx)
	return fi.pc()
}

func (fi *funcInfo) emitTForCall(line, a, c int)    { fi.emitABC(line, vm.OpTForCall, a, 0, c) }
func (fi *funcInfo) emitTForLoop(line, a, sBx int)  { fi.emitAsBx(line, vm.OpTForLoop, a, sBx) }

func (fi *funcInfo) emitUnaryOp(line, op, a, b int) {
	switch op {
	case lexer.TokenOpNot:
		fi.emitABC(line, vm.OpNot, a, b, 0)
	case lexer.TokenOpWave:
		fi.emitABC(line, vm.OpBNot, a, b, 0)
	case lexer.TokenOpLen:
		fi.emitABC(line, vm.OpLen, a, b, 0)
	case lexer.TokenOpMinus:
		fi.emitABC(line, vm.OpUnm, a, b, 0)
	}
}

func (fi *funcInfo) emitBinaryOp(line, op, a, b, c int) {
	if opcode, found := arithAndBitwiseBinops[op]; found {
		fi.emitABC(line, opcode, a, b, c)
		return
	}
	switch op {
	case lexer.TokenOpEq:
		fi.emitABC(line, vm.OpEq, 1, b, c)
	case lexer.TokenOpNe:
		fi.emitABC(line, vm.OpEq, 0, b, c)
	case lexer.TokenOpLt:
		fi.emitABC(line, vm.OpLt, 1, b, c)
	case lexer.TokenOpGt:
		fi.emitABC(line, vm.OpLt, 1, c, b)
	case lexer.TokenOpLe:
		fi.emitABC(line, vm.OpLe, 1, b, c)
	case lexer.TokenOpGe:
		fi.emitABC(line, vm.OpLe, 1, c, b)
	}
	fi.emitJmp(line, 0, 1)
	fi.emitLoadBool(line, a, 0, 1)
	fi.emitLoadBool(line, a, 1, 0)
}

// int2fb converts a count to Lua's "floating byte" size hint used by
// NEWTABLE's array/hash size args (8 significant bits: eeeeexxx ==
// (1xxx) * 2^(eeeee-1), or the literal value when < 8).
func int2fb(x int) int {
	e := 0
	if x < 8 {
		return x
	}
	for x >= 16 {
		x = (x + 1) >> 1
		e++
	}
	return (e+1)<<3 | (x - 8)
}
