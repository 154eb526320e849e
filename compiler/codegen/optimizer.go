package codegen

import (
	"math"

	"github.com/lollipopkit/lua54/compiler/ast"
	"github.com/lollipopkit/lua54/compiler/lexer"
)

// foldConst constant-folds a literal arithmetic/bitwise/logical
// expression at compile time, applied just before codegen since this
// parser builds the full AST before codegen runs. Returns the node
// unchanged if it isn't foldable.
func foldConst(node ast.Exp) ast.Exp {
	switch exp := node.(type) {
	case *ast.UnopExp:
		exp.Exp = foldConst(exp.Exp)
		return optimizeUnaryOp(exp)
	case *ast.BinopExp:
		exp.Exp1 = foldConst(exp.Exp1)
		exp.Exp2 = foldConst(exp.Exp2)
		switch exp.Op {
		case lexer.TokenOpAnd:
			return optimizeLogicalAnd(exp)
		case lexer.TokenOpOr:
			return optimizeLogicalOr(exp)
		case lexer.TokenOpBAnd, lexer.TokenOpBOr, lexer.TokenOpWave, lexer.TokenOpShL, lexer.TokenOpShR:
			return optimizeBitwiseBinaryOp(exp)
		case lexer.TokenOpAdd, lexer.TokenOpMinus, lexer.TokenOpMul, lexer.TokenOpDiv, lexer.TokenOpIDiv, lexer.TokenOpMod, lexer.TokenOpPow:
			return optimizeArithBinaryOp(exp)
		}
		return exp
	case *ast.ParensExp:
		exp.Exp = foldConst(exp.Exp)
		return exp
	default:
		return node
	}
}

func optimizeLogicalOr(exp *ast.BinopExp) ast.Exp {
	if isTrueLit(exp.Exp1) {
		return exp.Exp1
	}
	if isFalseLit(exp.Exp1) && !isVarargOrFuncCall(exp.Exp2) {
		return exp.Exp2
	}
	return exp
}

func optimizeLogicalAnd(exp *ast.BinopExp) ast.Exp {
	if isFalseLit(exp.Exp1) {
		return exp.Exp1
	}
	if isTrueLit(exp.Exp1) && !isVarargOrFuncCall(exp.Exp2) {
		return exp.Exp2
	}
	return exp
}

func optimizeBitwiseBinaryOp(exp *ast.BinopExp) ast.Exp {
	i, ok1 := castToInt(exp.Exp1)
	j, ok2 := castToInt(exp.Exp2)
	if !ok1 || !ok2 {
		return exp
	}
	switch exp.Op {
	case lexer.TokenOpBAnd:
		return &ast.IntegerExp{Line: exp.Line, Val: i & j}
	case lexer.TokenOpBOr:
		return &ast.IntegerExp{Line: exp.Line, Val: i | j}
	case lexer.TokenOpWave:
		return &ast.IntegerExp{Line: exp.Line, Val: i ^ j}
	case lexer.TokenOpShL:
		return &ast.IntegerExp{Line: exp.Line, Val: shiftLeft(i, j)}
	case lexer.TokenOpShR:
		return &ast.IntegerExp{Line: exp.Line, Val: shiftLeft(i, -j)}
	}
	return exp
}

func shiftLeft(i, n int64) int64 {
	if n <= -64 || n >= 64 {
		return 0
	}
	if n >= 0 {
		return int64(uint64(i) << uint(n))
	}
	return int64(uint64(i) >> uint(-n))
}

func optimizeArithBinaryOp(exp *ast.BinopExp) ast.Exp {
	if x, ok := exp.Exp1.(*ast.IntegerExp); ok {
		if y, ok := exp.Exp2.(*ast.IntegerExp); ok {
			switch exp.Op {
			case lexer.TokenOpAdd:
				return &ast.IntegerExp{Line: exp.Line, Val: x.Val + y.Val}
			case lexer.TokenOpMinus:
				return &ast.IntegerExp{Line: exp.Line, Val: x.Val - y.Val}
			case lexer.TokenOpMul:
				return &ast.IntegerExp{Line: exp.Line, Val: x.Val * y.Val}
			case lexer.TokenOpIDiv:
				if y.Val != 0 {
					return &ast.IntegerExp{Line: exp.Line, Val: iFloorDiv(x.Val, y.Val)}
				}
			case lexer.TokenOpMod:
				if y.Val != 0 {
					return &ast.IntegerExp{Line: exp.Line, Val: iMod(x.Val, y.Val)}
				}
			}
		}
	}
	if f, ok := castToFloat(exp.Exp1); ok {
		if g, ok := castToFloat(exp.Exp2); ok {
			switch exp.Op {
			case lexer.TokenOpAdd:
				return &ast.FloatExp{Line: exp.Line, Val: f + g}
			case lexer.TokenOpMinus:
				return &ast.FloatExp{Line: exp.Line, Val: f - g}
			case lexer.TokenOpMul:
				return &ast.FloatExp{Line: exp.Line, Val: f * g}
			case lexer.TokenOpDiv:
				return &ast.FloatExp{Line: exp.Line, Val: f / g}
			case lexer.TokenOpIDiv:
				if g != 0 {
					return &ast.FloatExp{Line: exp.Line, Val: math.Floor(f / g)}
				}
			case lexer.TokenOpMod:
				if g != 0 {
					return &ast.FloatExp{Line: exp.Line, Val: f - math.Floor(f/g)*g}
				}
			case lexer.TokenOpPow:
				return &ast.FloatExp{Line: exp.Line, Val: math.Pow(f, g)}
			}
		}
	}
	return exp
}

func iFloorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func iMod(a, b int64) int64 {
	m := a % b
	if m != 0 && ((a < 0) != (b < 0)) {
		m += b
	}
	return m
}

func optimizeUnaryOp(exp *ast.UnopExp) ast.Exp {
	switch exp.Op {
	case lexer.TokenOpMinus:
		return optimizeUnm(exp)
	case lexer.TokenOpNot:
		return optimizeNot(exp)
	case lexer.TokenOpWave:
		return optimizeBnot(exp)
	default:
		return exp
	}
}

func optimizeUnm(exp *ast.UnopExp) ast.Exp {
	switch x := exp.Exp.(type) {
	case *ast.IntegerExp:
		return &ast.IntegerExp{Line: x.Line, Val: -x.Val}
	case *ast.FloatExp:
		return &ast.FloatExp{Line: x.Line, Val: -x.Val}
	}
	return exp
}

func optimizeNot(exp *ast.UnopExp) ast.Exp {
	switch exp.Exp.(type) {
	case *ast.NilExp, *ast.FalseExp:
		return &ast.TrueExp{Line: exp.Line}
	case *ast.TrueExp, *ast.IntegerExp, *ast.FloatExp, *ast.StringExp:
		return &ast.FalseExp{Line: exp.Line}
	default:
		return exp
	}
}

func optimizeBnot(exp *ast.UnopExp) ast.Exp {
	switch x := exp.Exp.(type) {
	case *ast.IntegerExp:
		return &ast.IntegerExp{Line: x.Line, Val: ^x.Val}
	case *ast.FloatExp:
		if i, ok := floatToInteger(x.Val); ok {
			return &ast.IntegerExp{Line: x.Line, Val: ^i}
		}
	}
	return exp
}

func isFalseLit(exp ast.Exp) bool {
	switch exp.(type) {
	case *ast.FalseExp, *ast.NilExp:
		return true
	default:
		return false
	}
}

func isTrueLit(exp ast.Exp) bool {
	switch exp.(type) {
	case *ast.TrueExp, *ast.IntegerExp, *ast.FloatExp, *ast.StringExp:
		return true
	default:
		return false
	}
}

func castToInt(exp ast.Exp) (int64, bool) {
	switch x := exp.(type) {
	case *ast.IntegerExp:
		return x.Val, true
	case *ast.FloatExp:
		return floatToInteger(x.Val)
	default:
		return 0, false
	}
}

func castToFloat(exp ast.Exp) (float64, bool) {
	switch x := exp.(type) {
	case *ast.IntegerExp:
		return float64(x.Val), true
	case *ast.FloatExp:
		return x.Val, true
	default:
		return 0, false
	}
}

// floatToInteger converts f to an int64 iff it represents one exactly
// (Lua 5.4 §3.4.3: bitwise operators require an exact integer
// representation).
func floatToInteger(f float64) (int64, bool) {
	i := int64(f)
	if float64(i) == f {
		return i, true
	}
	return 0, false
}
