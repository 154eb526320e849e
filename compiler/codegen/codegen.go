package codegen

import (
	"github.com/lollipopkit/lua54/binchunk"
	"github.com/lollipopkit/lua54/compiler/ast"
)

// GenProto compiles a parsed chunk into its top-level function
// prototype. The main chunk is itself a vararg function with a single
// upvalue, "_ENV".
func GenProto(chunk *ast.Block, chunkName string) *binchunk.Prototype {
	fd := &ast.FuncDefExp{
		LastLine: lastLineOfBlock(chunk),
		IsVararg: true,
		Block:    chunk,
	}

	fi := newFuncInfo(nil, fd, chunkName)
	fi.addLocVar("_ENV", "", 0)
	cgFuncDefExp(fi, fd, 0)
	return toProto(fi.subFuncs[0])
}

func lastLineOfBlock(b *ast.Block) int {
	if b.ReturnLine != 0 {
		return b.ReturnLine
	}
	if n := len(b.Stats); n > 0 {
		if line := lineOf(statAsExp(b.Stats[n-1])); line != 0 {
			return line
		}
	}
	return 0
}

// statAsExp best-efforts a representative line-bearing expression out
// of a statement purely so lastLineOfBlock has something to probe;
// statements with no natural expression just fall back to line 0.
func statAsExp(s ast.Stat) ast.Exp {
	switch x := s.(type) {
	case *ast.FuncCallStat:
		return x.Exp
	case *ast.AssignStat:
		if len(x.ExpList) > 0 {
			return x.ExpList[0]
		}
	}
	return nil
}
