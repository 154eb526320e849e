// Package compiler drives the lex -> parse -> codegen pipeline and
// exposes the single entry point the runtime (and `string.dump`'s
// counterpart, `load`) needs.
package compiler

import (
	"fmt"

	"github.com/lollipopkit/lua54/binchunk"
	"github.com/lollipopkit/lua54/compiler/ast"
	"github.com/lollipopkit/lua54/compiler/codegen"
	"github.com/lollipopkit/lua54/compiler/parser"
)

// Compile parses and generates bytecode for a Lua chunk. fromFile
// controls whether a leading shebang line is stripped — load(str)
// must pass false and reject a string beginning with '#'.
func Compile(source, chunkName string, fromFile bool) (proto *binchunk.Prototype, err error) {
	if !fromFile && len(source) > 0 && source[0] == '#' {
		return nil, fmt.Errorf("%s: unexpected symbol near '#'", chunkName)
	}
	block, err := parser.Parse(source, chunkName, fromFile)
	if err != nil {
		return nil, err
	}
	return genProto(block, chunkName)
}

func genProto(chunk *ast.Block, chunkName string) (proto *binchunk.Prototype, err error) {
	defer func() {
		if r := recover(); r != nil {
			if s, ok := r.(string); ok {
				err = fmt.Errorf("%s", s)
				return
			}
			panic(r)
		}
	}()
	proto = codegen.GenProto(chunk, chunkName)
	return proto, nil
}
