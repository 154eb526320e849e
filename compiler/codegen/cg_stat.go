package codegen

import "github.com/lollipopkit/lua54/compiler/ast"

func cgBlock(fi *funcInfo, node *ast.Block) {
	for _, stat := range node.Stats {
		cgStat(fi, stat)
	}
	if node.ReturnExps != nil || node.ReturnLine != 0 {
		cgReturnStat(fi, node.ReturnExps, node.ReturnLine)
	}
}

func cgStat(fi *funcInfo, stat ast.Stat) {
	switch s := stat.(type) {
	case *ast.LocalVarDeclStat:
		cgLocalVarDeclStat(fi, s)
	case *ast.AssignStat:
		cgAssignStat(fi, s)
	case *ast.FuncCallStat:
		cgFuncCallStat(fi, s)
	case *ast.DoStat:
		cgDoStat(fi, s)
	case *ast.WhileStat:
		cgWhileStat(fi, s)
	case *ast.RepeatStat:
		cgRepeatStat(fi, s)
	case *ast.IfStat:
		cgIfStat(fi, s)
	case *ast.NumForStat:
		cgForNumStat(fi, s)
	case *ast.GenForStat:
		cgForInStat(fi, s)
	case *ast.BreakStat:
		cgBreakStat(fi, s)
	case *ast.GotoStat:
		fi.addGoto(s.Name, s.Line)
	case *ast.LabelStat:
		fi.addLabel(s.Name)
	case *ast.LocalFuncDefStat:
		cgLocalFuncDefStat(fi, s)
	case *ast.EmptyStat:
		// nothing
	}
}

func cgLocalFuncDefStat(fi *funcInfo, node *ast.LocalFuncDefStat) {
	r := fi.addLocVar(node.Name, "", fi.pc()+1)
	cgFuncDefExp(fi, node.Exp, r)
}

func cgFuncCallStat(fi *funcInfo, node *ast.FuncCallStat) {
	r := fi.allocReg()
	cgFuncCallExp(fi, node.Exp, r, 0)
	fi.freeReg()
}

func cgDoStat(fi *funcInfo, node *ast.DoStat) {
	fi.enterScope(false)
	cgBlock(fi, node.Block)
	closeTBCInScope(fi, fi.lastLine)
	fi.exitScope(fi.pc() + 1)
}

func closeTBCInScope(fi *funcInfo, line int) {
	for i := len(fi.tbcSlots) - 1; i >= 0; i-- {
		slot := fi.tbcSlots[i]
		if lv := locVarAtSlot(fi, slot); lv != nil && lv.scopeLv == fi.scopeLv {
			fi.emitClose(line, slot)
			fi.tbcSlots = fi.tbcSlots[:i]
		}
	}
}

func locVarAtSlot(fi *funcInfo, slot int) *locVarInfo {
	for _, lv := range fi.locVars {
		if lv.slot == slot && lv.endPC == 0 {
			return lv
		}
	}
	return nil
}

func cgWhileStat(fi *funcInfo, node *ast.WhileStat) {
	pcBeforeExp := fi.pc() + 1

	oldRegs := fi.usedRegs
	a, _ := expToOpArg(fi, node.Exp, argReg)
	fi.usedRegs = oldRegs

	line := lineOf(node.Exp)
	fi.emitTest(line, a, 0)
	pcJmpToEnd := fi.emitJmp(line, 0, 0)

	fi.enterScope(true)
	cgBlock(fi, node.Block)
	closeTBCInScope(fi, fi.lastLine)
	fi.closeOpenUpvals(fi.lastLine)
	fi.exitScope(fi.pc() + 1)
	fi.emitJmp(fi.lastLine, 0, pcBeforeExp-(fi.pc()+2))

	fi.fixSbx(pcJmpToEnd, fi.pc()-pcJmpToEnd)
}

func cgRepeatStat(fi *funcInfo, node *ast.RepeatStat) {
	pcBeforeBlock := fi.pc() + 1

	fi.enterScope(true)
	cgBlock(fi, node.Block)

	oldRegs := fi.usedRegs
	a, _ := expToOpArg(fi, node.Exp, argReg)
	fi.usedRegs = oldRegs

	fi.emitTest(lineOf(node.Exp), a, 0)
	fi.emitJmp(lineOf(node.Exp), fi.getJmpArgA(), pcBeforeBlock-(fi.pc()+2))
	fi.exitScope(fi.pc() + 1)
}

func cgIfStat(fi *funcInfo, node *ast.IfStat) {
	pcJmpToEnds := make([]int, len(node.Exps))
	pcJmpToNextBranch := -1

	for i, exp := range node.Exps {
		if pcJmpToNextBranch >= 0 {
			fi.fixSbx(pcJmpToNextBranch, fi.pc()-pcJmpToNextBranch)
		}

		if exp != nil {
			oldRegs := fi.usedRegs
			a, _ := expToOpArg(fi, exp, argReg)
			fi.usedRegs = oldRegs

			line := lineOf(exp)
			fi.emitTest(line, a, 0)
			pcJmpToNextBranch = fi.emitJmp(line, 0, 0)
		} else {
			pcJmpToNextBranch = -1
		}

		fi.enterScope(false)
		cgBlock(fi, node.Blocks[i])
		closeTBCInScope(fi, fi.lastLine)
		fi.exitScope(fi.pc() + 1)
		if i < len(node.Exps)-1 {
			pcJmpToEnds[i] = fi.emitJmp(fi.lastLine, 0, 0)
		}
	}

	for _, pc := range pcJmpToEnds {
		if pc != 0 {
			fi.fixSbx(pc, fi.pc()-pc)
		}
	}
	if pcJmpToNextBranch >= 0 {
		fi.fixSbx(pcJmpToNextBranch, fi.pc()-pcJmpToNextBranch)
	}
}

// cgForNumStat implements numeric for. When init/limit/(step or the
// implicit 1) are all integer literals the integer fast path is
// emitted (OpForPrepInt/OpForLoopInt); when any bound is a float
// literal the float path is used. Otherwise — bounds computed at
// runtime — OpForPrepInt is still emitted, and the VM's integer-prep
// handler itself inspects the runtime tag of the prepared values and
// falls back to float-loop semantics when they aren't all integers
// (state/exec.go), matching real Lua's single dynamically-typed
// FORPREP/FORLOOP pair while still giving statically-known integer
// loops (`for j=-3,3 do`) a dedicated all-integer opcode pair.
func cgForNumStat(fi *funcInfo, node *ast.NumForStat) {
	fi.enterScope(true)

	cgLocalVarDeclStat(fi, &ast.LocalVarDeclStat{
		NameList: []string{"(for init)"}, ExpList: []ast.Exp{node.InitExp}, LastLine: node.LineOfFor,
	})
	cgLocalVarDeclStat(fi, &ast.LocalVarDeclStat{
		NameList: []string{"(for limit)"}, ExpList: []ast.Exp{node.LimitExp}, LastLine: node.LineOfFor,
	})
	step := node.StepExp
	if step == nil {
		step = &ast.IntegerExp{Line: node.LineOfFor, Val: 1}
	}
	cgLocalVarDeclStat(fi, &ast.LocalVarDeclStat{
		NameList: []string{"(for step)"}, ExpList: []ast.Exp{step}, LastLine: node.LineOfFor,
	})

	a := fi.usedRegs - 3

	allLiteralInt := isIntLit(node.InitExp) && isIntLit(node.LimitExp) && (node.StepExp == nil || isIntLit(node.StepExp))
	anyFloatLit := isFloatLit(node.InitExp) || isFloatLit(node.LimitExp) || isFloatLit(node.StepExp)

	var pcPrep int
	useFloat := anyFloatLit && !allLiteralInt
	if useFloat {
		pcPrep = fi.emitForPrepFlt(node.LineOfFor, a, 0)
	} else {
		pcPrep = fi.emitForPrepInt(node.LineOfFor, a, 0)
	}

	fi.addLocVar(node.VarName, "", fi.pc()+1)

	cgBlock(fi, node.Block)
	closeTBCInScope(fi, node.LineOfDo)
	fi.exitScope(fi.pc() + 1)

	var pcLoop int
	if useFloat {
		pcLoop = fi.emitForLoopFlt(node.LineOfDo, a, 0)
	} else {
		pcLoop = fi.emitForLoopInt(node.LineOfDo, a, 0)
	}
	fi.fixSbx(pcPrep, pcLoop-pcPrep-1)
	fi.fixSbx(pcLoop, pcPrep-pcLoop)
}

func isIntLit(e ast.Exp) bool  { _, ok := e.(*ast.IntegerExp); return ok }
func isFloatLit(e ast.Exp) bool {
	if e == nil {
		return false
	}
	_, ok := e.(*ast.FloatExp)
	return ok
}

// cgForInStat implements generic for. Registers a, a+1, a+2 hold the
// iterator function, invariant state, and control value; the named
// loop variables sit at a+3.. and are refreshed each iteration by
// TFORCALL (R[a+3..] := R[a](R[a+1], R[a+2])) followed by TFORLOOP,
// which copies the first refreshed value back into the control slot
// and loops while it isn't nil.
func cgForInStat(fi *funcInfo, node *ast.GenForStat) {
	fi.enterScope(true)

	cgLocalVarDeclStat(fi, &ast.LocalVarDeclStat{
		NameList: []string{"(for generator)", "(for state)", "(for control)"},
		ExpList:  node.ExpList, LastLine: node.LineOfDo,
	})
	a := fi.slotOfLocVar("(for generator)")

	for _, name := range node.NameList {
		fi.addLocVar(name, "", fi.pc()+1)
	}

	pcJmpToTFC := fi.emitJmp(node.LineOfDo, 0, 0)

	cgBlock(fi, node.Block)
	closeTBCInScope(fi, node.LineOfDo)
	fi.closeOpenUpvals(node.LineOfDo)

	fi.fixSbx(pcJmpToTFC, fi.pc()-pcJmpToTFC)
	fi.emitTForCall(node.LineOfDo, a, len(node.NameList))
	fi.emitTForLoop(node.LineOfDo, a+3, pcJmpToTFC-fi.pc()-1)

	fi.exitScope(fi.pc() + 1)
}

func cgBreakStat(fi *funcInfo, node *ast.BreakStat) {
	pc := fi.emitJmp(node.Line, 0, 0)
	fi.addBreakJmp(pc)
}

func cgReturnStat(fi *funcInfo, exps []ast.Exp, line int) {
	if len(exps) == 0 {
		fi.emitReturn(line, 0, 0)
		return
	}
	if len(exps) == 1 {
		if call, ok := exps[0].(*ast.FuncCallExp); ok {
			r := fi.allocReg()
			cgTailCallExp(fi, call, r)
			fi.freeReg()
			fi.emitReturn(line, r, -1)
			return
		}
	}

	multRet := isVarargOrFuncCall(exps[len(exps)-1])
	a := fi.usedRegs
	for i, exp := range exps {
		tmp := fi.allocReg()
		if i == len(exps)-1 && multRet {
			cgExp(fi, exp, tmp, -1)
		} else {
			cgExp(fi, exp, tmp, 1)
		}
	}
	fi.freeRegs(len(exps))

	n := len(exps)
	if multRet {
		n = -1
	}
	fi.emitReturn(line, a, n)
}

func cgLocalVarDeclStat(fi *funcInfo, node *ast.LocalVarDeclStat) {
	exps := removeTailNils(node.ExpList)
	nExps := len(exps)
	nNames := len(node.NameList)
	oldRegs := fi.usedRegs

	if nExps == nNames {
		for _, exp := range exps {
			a := fi.allocReg()
			cgExp(fi, exp, a, 1)
		}
	} else if nExps > nNames {
		for i, exp := range exps {
			a := fi.allocReg()
			if i == nExps-1 && isVarargOrFuncCall(exp) {
				cgExp(fi, exp, a, 0)
			} else {
				cgExp(fi, exp, a, 1)
			}
		}
	} else {
		multRet := false
		for i, exp := range exps {
			a := fi.allocReg()
			if i == nExps-1 && isVarargOrFuncCall(exp) {
				multRet = true
				n := nNames - nExps + 1
				cgExp(fi, exp, a, n)
				fi.allocRegs(n - 1)
			} else {
				cgExp(fi, exp, a, 1)
			}
		}
		if !multRet {
			n := nNames - nExps
			a := fi.allocRegs(n)
			fi.emitLoadNil(node.LastLine, a, n)
		}
	}

	fi.usedRegs = oldRegs
	startPC := fi.pc() + 1
	for i, name := range node.NameList {
		attrib := ""
		if i < len(node.Attribs) {
			attrib = node.Attribs[i]
		}
		fi.addLocVar(name, attrib, startPC)
	}
}

func removeTailNils(exps []ast.Exp) []ast.Exp {
	for n := len(exps) - 1; n >= 0; n-- {
		if _, ok := exps[n].(*ast.NilExp); !ok {
			return exps[0 : n+1]
		}
	}
	return nil
}

func lineOf(exp ast.Exp) int {
	switch x := exp.(type) {
	case *ast.NilExp:
		return x.Line
	case *ast.TrueExp:
		return x.Line
	case *ast.FalseExp:
		return x.Line
	case *ast.IntegerExp:
		return x.Line
	case *ast.FloatExp:
		return x.Line
	case *ast.StringExp:
		return x.Line
	case *ast.VarargExp:
		return x.Line
	case *ast.NameExp:
		return x.Line
	case *ast.FuncDefExp:
		return x.Line
	case *ast.FuncCallExp:
		return x.Line
	case *ast.TableConstructorExp:
		return x.LastLine
	case *ast.UnopExp:
		return x.Line
	case *ast.BinopExp:
		return x.Line
	case *ast.ParensExp:
		return lineOf(x.Exp)
	case *ast.TableAccessExp:
		return x.LastLine
	default:
		return 0
	}
}

func cgAssignStat(fi *funcInfo, node *ast.AssignStat) {
	exps := node.ExpList
	nExps := len(exps)
	nVars := len(node.VarList)
	oldRegs := fi.usedRegs

	type target struct {
		name       string
		isLocal    bool
		localSlot  int
		isUpval    bool
		upvalIdx   int
		isTable    bool
		tableReg   int
		keyReg     int
	}
	targets := make([]target, nVars)
	for i, v := range node.VarList {
		switch e := v.(type) {
		case *ast.NameExp:
			if r := fi.slotOfLocVar(e.Name); r >= 0 {
				if fi.isConstVar(e.Name) {
					panic("attempt to assign to const variable '" + e.Name + "'")
				}
				targets[i] = target{name: e.Name, isLocal: true, localSlot: r}
			} else if idx := fi.indexOfUpval(e.Name); idx >= 0 {
				targets[i] = target{name: e.Name, isUpval: true, upvalIdx: idx}
			} else {
				tr := fi.allocReg()
				ta := &ast.TableAccessExp{
					LastLine:  e.Line,
					PrefixExp: &ast.NameExp{Line: e.Line, Name: "_ENV"},
					KeyExp:    &ast.StringExp{Line: e.Line, Str: e.Name},
				}
				cgExp(fi, ta.PrefixExp, tr, 1)
				kr := fi.allocReg()
				cgExp(fi, ta.KeyExp, kr, 1)
				targets[i] = target{isTable: true, tableReg: tr, keyReg: kr}
			}
		case *ast.TableAccessExp:
			tr := fi.allocReg()
			cgExp(fi, e.PrefixExp, tr, 1)
			kr := fi.allocReg()
			cgExp(fi, e.KeyExp, kr, 1)
			targets[i] = target{isTable: true, tableReg: tr, keyReg: kr}
		}
	}

	vBase := fi.usedRegs
	if nExps >= nVars {
		for i, exp := range exps {
			a := fi.allocReg()
			if i >= nVars && i == nExps-1 && isVarargOrFuncCall(exp) {
				cgExp(fi, exp, a, 0)
			} else {
				cgExp(fi, exp, a, 1)
			}
		}
	} else {
		multRet := false
		for i, exp := range exps {
			a := fi.allocReg()
			if i == nExps-1 && isVarargOrFuncCall(exp) {
				multRet = true
				n := nVars - nExps + 1
				cgExp(fi, exp, a, n)
				fi.allocRegs(n - 1)
			} else {
				cgExp(fi, exp, a, 1)
			}
		}
		if !multRet {
			n := nVars - nExps
			a := fi.allocRegs(n)
			fi.emitLoadNil(node.LastLine, a, n)
		}
	}

	for i, t := range targets {
		vr := vBase + i
		switch {
		case t.isLocal:
			fi.emitMove(node.LastLine, t.localSlot, vr)
		case t.isUpval:
			fi.emitSetUpval(node.LastLine, vr, t.upvalIdx)
		case t.isTable:
			fi.emitSetTable(node.LastLine, t.tableReg, t.keyReg, vr)
		default:
			idx := fi.indexOfUpval("_ENV")
			fi.emitSetTabUp(node.LastLine, idx, 0, vr)
		}
	}

	fi.usedRegs = oldRegs
}
