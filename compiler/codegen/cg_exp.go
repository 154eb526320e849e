package codegen

import (
	"github.com/lollipopkit/lua54/compiler/ast"
	"github.com/lollipopkit/lua54/compiler/lexer"
	"github.com/lollipopkit/lua54/vm"
)

const (
	argConst = 1
	argReg   = 2
	argUpval = 4
	argRK    = argReg | argConst
	argRU    = argReg | argUpval
)

// cgExp generates code so that n results of exp land in registers
// starting at a. n == -1 means "as many results as the expression
// produces" (only valid for vararg / call expressions, and only in
// tail position of an expression list) — the varargs propagation rule
// nested multi-result calls depend on.
func cgExp(fi *funcInfo, node ast.Exp, a, n int) {
	switch exp := node.(type) {
	case *ast.NilExp:
		fi.emitLoadNil(exp.Line, a, n)
	case *ast.FalseExp:
		fi.emitLoadBool(exp.Line, a, 0, 0)
	case *ast.TrueExp:
		fi.emitLoadBool(exp.Line, a, 1, 0)
	case *ast.IntegerExp:
		fi.emitLoadK(exp.Line, a, exp.Val)
	case *ast.FloatExp:
		fi.emitLoadK(exp.Line, a, exp.Val)
	case *ast.StringExp:
		fi.emitLoadK(exp.Line, a, exp.Str)
	case *ast.ParensExp:
		cgExp(fi, exp.Exp, a, 1)
	case *ast.VarargExp:
		cgVarargExp(fi, exp, a, n)
	case *ast.FuncDefExp:
		cgFuncDefExp(fi, exp, a)
	case *ast.TableConstructorExp:
		cgTableConstructorExp(fi, exp, a)
	case *ast.UnopExp:
		if folded := foldConst(exp); folded != node {
			cgExp(fi, folded, a, n)
		} else {
			cgUnopExp(fi, exp, a)
		}
	case *ast.BinopExp:
		if folded := foldConst(exp); folded != node {
			cgExp(fi, folded, a, n)
		} else {
			cgBinopExp(fi, exp, a)
		}
	case *ast.NameExp:
		cgNameExp(fi, exp, a)
	case *ast.TableAccessExp:
		cgTableAccessExp(fi, exp, a)
	case *ast.FuncCallExp:
		cgFuncCallExp(fi, exp, a, n)
	}
}

func cgVarargExp(fi *funcInfo, node *ast.VarargExp, a, n int) {
	if !fi.isVararg {
		panic("cannot use '...' outside a vararg function")
	}
	fi.emitVararg(node.Line, a, n)
}

func cgFuncDefExp(fi *funcInfo, node *ast.FuncDefExp, a int) {
	subFI := newFuncInfo(fi, node, fi.source)
	fi.subFuncs = append(fi.subFuncs, subFI)

	for i := range node.ParList {
		subFI.addLocVar(node.ParList[i], "", 0)
	}

	cgBlock(subFI, node.Block)
	subFI.exitScope(subFI.pc() + 2)
	subFI.emitReturn(node.LastLine, 0, 0)

	bx := len(fi.subFuncs) - 1
	fi.emitClosure(node.LastLine, a, bx)
}

const fieldsPerFlush = 50

func cgTableConstructorExp(fi *funcInfo, node *ast.TableConstructorExp, a int) {
	nArr := 0
	for i := range node.KeyExps {
		if node.KeyExps[i] == nil {
			nArr++
		}
	}
	nExps := len(node.KeyExps)
	multRet := nExps > 0 && isVarargOrFuncCall(node.ValExps[nExps-1])

	fi.emitNewTable(node.LastLine, a, nArr, nExps-nArr)

	arrIdx := 0
	for i := range node.KeyExps {
		valExp := node.ValExps[i]

		if node.KeyExps[i] == nil {
			arrIdx++
			tmp := fi.allocReg()
			if i == nExps-1 && multRet {
				cgExp(fi, valExp, tmp, -1)
			} else {
				cgExp(fi, valExp, tmp, 1)
			}

			if arrIdx%fieldsPerFlush == 0 || arrIdx == nArr {
				n := arrIdx % fieldsPerFlush
				if n == 0 {
					n = fieldsPerFlush
				}
				fi.freeRegs(n)
				c := (arrIdx-1)/fieldsPerFlush + 1
				if i == nExps-1 && multRet {
					fi.emitSetList(node.LastLine, a, 0, c)
				} else {
					fi.emitSetList(node.LastLine, a, n, c)
				}
			}
			continue
		}

		b := fi.allocReg()
		cgExp(fi, node.KeyExps[i], b, 1)
		c := fi.allocReg()
		cgExp(fi, valExp, c, 1)
		fi.freeRegs(2)
		fi.emitSetTable(node.LastLine, a, b, c)
	}
}

func cgUnopExp(fi *funcInfo, node *ast.UnopExp, a int) {
	old := fi.usedRegs
	b, _ := expToOpArg(fi, node.Exp, argReg)
	fi.emitUnaryOp(node.Line, node.Op, a, b)
	fi.usedRegs = old
}

func cgBinopExp(fi *funcInfo, node *ast.BinopExp, a int) {
	switch node.Op {
	case lexer.TokenOpAnd, lexer.TokenOpOr:
		old := fi.usedRegs
		b, _ := expToOpArg(fi, node.Exp1, argReg)
		fi.usedRegs = old
		if node.Op == lexer.TokenOpAnd {
			fi.emitTestSet(node.Line, a, b, 0)
		} else {
			fi.emitTestSet(node.Line, a, b, 1)
		}
		pcJmp := fi.emitJmp(node.Line, 0, 0)

		b, _ = expToOpArg(fi, node.Exp2, argReg)
		fi.usedRegs = old
		fi.emitMove(node.Line, a, b)
		fi.fixSbx(pcJmp, fi.pc()-pcJmp)
	case lexer.TokenConcat:
		// CONCAT joins a contiguous register range, so both operands
		// go to fresh consecutive registers rather than RK slots.
		old := fi.usedRegs
		b := fi.allocReg()
		cgExp(fi, node.Exp1, b, 1)
		c := fi.allocReg()
		cgExp(fi, node.Exp2, c, 1)
		fi.emitABC(node.Line, vm.OpConcat, a, b, c)
		fi.usedRegs = old
	default:
		old := fi.usedRegs
		b, _ := expToOpArg(fi, node.Exp1, argRK)
		c, _ := expToOpArg(fi, node.Exp2, argRK)
		fi.emitBinaryOp(node.Line, node.Op, a, b, c)
		fi.usedRegs = old
	}
}

func cgNameExp(fi *funcInfo, node *ast.NameExp, a int) {
	if r := fi.slotOfLocVar(node.Name); r >= 0 {
		fi.emitMove(node.Line, a, r)
	} else if idx := fi.indexOfUpval(node.Name); idx >= 0 {
		fi.emitGetUpval(node.Line, a, idx)
	} else {
		ta := &ast.TableAccessExp{
			LastLine:  node.Line,
			PrefixExp: &ast.NameExp{Line: node.Line, Name: "_ENV"},
			KeyExp:    &ast.StringExp{Line: node.Line, Str: node.Name},
		}
		cgTableAccessExp(fi, ta, a)
	}
}

func cgTableAccessExp(fi *funcInfo, node *ast.TableAccessExp, a int) {
	old := fi.usedRegs
	b, kindB := expToOpArg(fi, node.PrefixExp, argRU)
	c, _ := expToOpArg(fi, node.KeyExp, argRK)
	fi.usedRegs = old

	if kindB == argUpval {
		fi.emitGetTabUp(node.LastLine, a, b, c)
	} else {
		fi.emitGetTable(node.LastLine, a, b, c)
	}
}

func cgFuncCallExp(fi *funcInfo, node *ast.FuncCallExp, a, n int) {
	nArgs := prepFuncCall(fi, node, a)
	fi.emitCall(node.Line, a, nArgs, n)
}

func cgTailCallExp(fi *funcInfo, node *ast.FuncCallExp, a int) {
	nArgs := prepFuncCall(fi, node, a)
	fi.emitTailCall(node.Line, a, nArgs)
}

func prepFuncCall(fi *funcInfo, node *ast.FuncCallExp, a int) int {
	nArgs := len(node.Args)
	lastIsMultRet := false

	cgExp(fi, node.PrefixExp, a, 1)
	if node.NameExp != nil {
		fi.allocReg()
		c, k := expToOpArg(fi, node.NameExp, argRK)
		fi.emitSelf(node.Line, a, a, c)
		if k == argReg {
			fi.freeRegs(1)
		}
	}
	for i := range node.Args {
		tmp := fi.allocReg()
		if i == nArgs-1 && isVarargOrFuncCall(node.Args[i]) {
			lastIsMultRet = true
			cgExp(fi, node.Args[i], tmp, -1)
		} else {
			cgExp(fi, node.Args[i], tmp, 1)
		}
	}
	fi.freeRegs(nArgs)

	if node.NameExp != nil {
		fi.freeReg()
		nArgs++
	}
	if lastIsMultRet {
		nArgs = -1
	}
	return nArgs
}

func expToOpArg(fi *funcInfo, node ast.Exp, argKinds int) (arg, argKind int) {
	if argKinds&argConst > 0 {
		idx := -1
		switch x := node.(type) {
		case *ast.NilExp:
			idx = fi.indexOfConstant(nil)
		case *ast.FalseExp:
			idx = fi.indexOfConstant(false)
		case *ast.TrueExp:
			idx = fi.indexOfConstant(true)
		case *ast.IntegerExp:
			idx = fi.indexOfConstant(x.Val)
		case *ast.FloatExp:
			idx = fi.indexOfConstant(x.Val)
		case *ast.StringExp:
			idx = fi.indexOfConstant(x.Str)
		}
		if idx >= 0 && idx <= 0xFF {
			return vm.AsConst(idx), argConst
		}
	}

	if nameExp, ok := node.(*ast.NameExp); ok {
		if argKinds&argReg > 0 {
			if r := fi.slotOfLocVar(nameExp.Name); r >= 0 {
				return r, argReg
			}
		}
		if argKinds&argUpval > 0 {
			if idx := fi.indexOfUpval(nameExp.Name); idx >= 0 {
				return idx, argUpval
			}
		}
	}

	a := fi.allocReg()
	cgExp(fi, node, a, 1)
	return a, argReg
}

func isVarargOrFuncCall(exp ast.Exp) bool {
	switch exp.(type) {
	case *ast.VarargExp, *ast.FuncCallExp:
		return true
	}
	return false
}
