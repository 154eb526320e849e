// Package parser is a single-pass recursive-descent parser producing
// an ast.Block (one function per grammar production, a precedence
// table driving binary-operator parsing) over Lua 5.4 grammar:
// then/do/end blocks, repeat/until, goto/labels, and <const>/<close>
// local attributes.
package parser

import (
	"fmt"

	"github.com/lollipopkit/lua54/compiler/ast"
	"github.com/lollipopkit/lua54/compiler/lexer"
)

type parser struct {
	lx *lexer.Lexer
}

// Parse builds the AST for chunk. fromFile controls shebang handling
// in the lexer.
func Parse(chunk, chunkName string, fromFile bool) (block *ast.Block, err error) {
	defer func() {
		if r := recover(); r != nil {
			if s, ok := r.(string); ok {
				err = fmt.Errorf("%s", s)
				return
			}
			panic(r)
		}
	}()
	p := &parser{lx: lexer.NewLexer(chunk, chunkName, fromFile)}
	block = p.parseBlock()
	p.expect(lexer.TokenEOF)
	return block, nil
}

func (p *parser) errorf(format string, a ...any) {
	panic(fmt.Sprintf("%s:%d: %s", "", p.lx.Line(), fmt.Sprintf(format, a...)))
}

func (p *parser) expect(kind int) lexer.Token { return p.lx.NextOfKind(kind) }

func (p *parser) peekKind() int { return p.lx.LookAhead().Kind }

func (p *parser) optional(kind int) bool {
	if p.peekKind() == kind {
		p.lx.Next()
		return true
	}
	return false
}

/* ---- blocks ---- */

var blockFollow = map[int]bool{
	lexer.TokenEOF: true, lexer.TokenKwEnd: true, lexer.TokenKwElse: true,
	lexer.TokenKwElseif: true, lexer.TokenKwUntil: true,
}

func (p *parser) parseBlock() *ast.Block {
	b := &ast.Block{}
	for !blockFollow[p.peekKind()] {
		if p.peekKind() == lexer.TokenKwReturn {
			b.ReturnExps, b.ReturnLine = p.parseReturnStat()
			break
		}
		if stat := p.parseStat(); stat != nil {
			b.Stats = append(b.Stats, stat)
		}
	}
	return b
}

func (p *parser) parseReturnStat() ([]ast.Exp, int) {
	line := p.expect(lexer.TokenKwReturn).Line
	if blockFollow[p.peekKind()] || p.peekKind() == lexer.TokenSepSemi {
		p.optional(lexer.TokenSepSemi)
		return nil, line
	}
	exps := p.parseExpList()
	p.optional(lexer.TokenSepSemi)
	return exps, line
}

/* ---- statements ---- */

func (p *parser) parseStat() ast.Stat {
	switch p.peekKind() {
	case lexer.TokenSepSemi:
		p.lx.Next()
		return nil
	case lexer.TokenKwIf:
		return p.parseIfStat()
	case lexer.TokenKwWhile:
		return p.parseWhileStat()
	case lexer.TokenKwDo:
		p.lx.Next()
		b := p.parseBlock()
		p.expect(lexer.TokenKwEnd)
		return &ast.DoStat{Block: b}
	case lexer.TokenKwFor:
		return p.parseForStat()
	case lexer.TokenKwRepeat:
		return p.parseRepeatStat()
	case lexer.TokenKwFunction:
		return p.parseFuncDefStat()
	case lexer.TokenKwLocal:
		return p.parseLocalStat()
	case lexer.TokenSepLabel:
		return p.parseLabelStat()
	case lexer.TokenKwBreak:
		line := p.lx.Next().Line
		return &ast.BreakStat{Line: line}
	case lexer.TokenKwGoto:
		return p.parseGotoStat()
	default:
		return p.parseAssignOrCallStat()
	}
}

func (p *parser) parseIfStat() ast.Stat {
	stat := &ast.IfStat{}
	p.expect(lexer.TokenKwIf)
	stat.Exps = append(stat.Exps, p.parseExp())
	p.expect(lexer.TokenKwThen)
	stat.Blocks = append(stat.Blocks, p.parseBlock())
	for p.peekKind() == lexer.TokenKwElseif {
		p.lx.Next()
		stat.Exps = append(stat.Exps, p.parseExp())
		p.expect(lexer.TokenKwThen)
		stat.Blocks = append(stat.Blocks, p.parseBlock())
	}
	if p.peekKind() == lexer.TokenKwElse {
		p.lx.Next()
		stat.Exps = append(stat.Exps, nil)
		stat.Blocks = append(stat.Blocks, p.parseBlock())
	}
	p.expect(lexer.TokenKwEnd)
	return stat
}

func (p *parser) parseWhileStat() ast.Stat {
	p.expect(lexer.TokenKwWhile)
	exp := p.parseExp()
	p.expect(lexer.TokenKwDo)
	b := p.parseBlock()
	p.expect(lexer.TokenKwEnd)
	return &ast.WhileStat{Exp: exp, Block: b}
}

func (p *parser) parseRepeatStat() ast.Stat {
	p.expect(lexer.TokenKwRepeat)
	b := p.parseBlock()
	p.expect(lexer.TokenKwUntil)
	exp := p.parseExp()
	return &ast.RepeatStat{Block: b, Exp: exp}
}

func (p *parser) parseForStat() ast.Stat {
	lineOfFor := p.expect(lexer.TokenKwFor).Line
	name := p.expect(lexer.TokenIdentifier).Str
	if p.peekKind() == lexer.TokenOpAssign {
		return p.finishNumForStat(lineOfFor, name)
	}
	return p.finishGenForStat(name)
}

func (p *parser) finishNumForStat(lineOfFor int, name string) ast.Stat {
	p.expect(lexer.TokenOpAssign)
	init := p.parseExp()
	p.expect(lexer.TokenSepComma)
	limit := p.parseExp()
	var step ast.Exp
	if p.optional(lexer.TokenSepComma) {
		step = p.parseExp()
	}
	lineOfDo := p.expect(lexer.TokenKwDo).Line
	b := p.parseBlock()
	p.expect(lexer.TokenKwEnd)
	return &ast.NumForStat{
		LineOfFor: lineOfFor, LineOfDo: lineOfDo, VarName: name,
		InitExp: init, LimitExp: limit, StepExp: step, Block: b,
	}
}

func (p *parser) finishGenForStat(first string) ast.Stat {
	names := []string{first}
	for p.optional(lexer.TokenSepComma) {
		names = append(names, p.expect(lexer.TokenIdentifier).Str)
	}
	p.expect(lexer.TokenKwIn)
	exps := p.parseExpList()
	lineOfDo := p.expect(lexer.TokenKwDo).Line
	b := p.parseBlock()
	p.expect(lexer.TokenKwEnd)
	return &ast.GenForStat{LineOfDo: lineOfDo, NameList: names, ExpList: exps, Block: b}
}

func (p *parser) parseFuncDefStat() ast.Stat {
	line := p.expect(lexer.TokenKwFunction).Line
	nameExp, hasColon := p.parseFuncName()
	fn := p.parseFuncBody(line, hasColon)
	return &ast.AssignStat{VarList: []ast.Exp{nameExp}, ExpList: []ast.Exp{fn}}
}

// parseFuncName parses Name{'.' Name}[':' Name] and builds the
// TableAccessExp chain that the assignment target needs.
func (p *parser) parseFuncName() (ast.Exp, bool) {
	id := p.expect(lexer.TokenIdentifier)
	var exp ast.Exp = &ast.NameExp{Line: id.Line, Name: id.Str}
	for p.peekKind() == lexer.TokenSepDot {
		p.lx.Next()
		key := p.expect(lexer.TokenIdentifier)
		exp = &ast.TableAccessExp{
			LastLine: key.Line, PrefixExp: exp,
			KeyExp: &ast.StringExp{Line: key.Line, Str: key.Str},
		}
	}
	hasColon := false
	if p.peekKind() == lexer.TokenSepColon {
		p.lx.Next()
		key := p.expect(lexer.TokenIdentifier)
		exp = &ast.TableAccessExp{
			LastLine: key.Line, PrefixExp: exp,
			KeyExp: &ast.StringExp{Line: key.Line, Str: key.Str},
		}
		hasColon = true
	}
	return exp, hasColon
}

func (p *parser) parseFuncBody(line int, isMethod bool) *ast.FuncDefExp {
	p.expect(lexer.TokenSepLParen)
	var params []string
	if isMethod {
		params = append(params, "self")
	}
	isVararg := false
	if p.peekKind() != lexer.TokenSepRParen {
		for {
			if p.peekKind() == lexer.TokenVararg {
				p.lx.Next()
				isVararg = true
				break
			}
			params = append(params, p.expect(lexer.TokenIdentifier).Str)
			if !p.optional(lexer.TokenSepComma) {
				break
			}
		}
	}
	p.expect(lexer.TokenSepRParen)
	block := p.parseBlock()
	lastLine := p.expect(lexer.TokenKwEnd).Line
	return &ast.FuncDefExp{Line: line, LastLine: lastLine, ParList: params, IsVararg: isVararg, Block: block}
}

func (p *parser) parseLocalStat() ast.Stat {
	p.expect(lexer.TokenKwLocal)
	if p.peekKind() == lexer.TokenKwFunction {
		p.lx.Next()
		name := p.expect(lexer.TokenIdentifier).Str
		fn := p.parseFuncBody(p.lx.Line(), false)
		return &ast.LocalFuncDefStat{Name: name, Exp: fn}
	}
	return p.parseLocalVarDeclStat()
}

func (p *parser) parseLocalVarDeclStat() ast.Stat {
	names := []string{}
	attribs := []string{}
	n, a := p.parseLocalNameAttrib()
	names = append(names, n)
	attribs = append(attribs, a)
	for p.optional(lexer.TokenSepComma) {
		n, a := p.parseLocalNameAttrib()
		names = append(names, n)
		attribs = append(attribs, a)
	}
	var exps []ast.Exp
	lastLine := p.lx.Line()
	if p.optional(lexer.TokenOpAssign) {
		exps = p.parseExpList()
		lastLine = p.lx.Line()
	}
	return &ast.LocalVarDeclStat{LastLine: lastLine, NameList: names, Attribs: attribs, ExpList: exps}
}

func (p *parser) parseLocalNameAttrib() (name, attrib string) {
	name = p.expect(lexer.TokenIdentifier).Str
	if p.peekKind() == lexer.TokenOpLt {
		p.lx.Next()
		attrib = p.expect(lexer.TokenIdentifier).Str
		if attrib != "const" && attrib != "close" {
			p.errorf("unknown attribute '%s'", attrib)
		}
		if p.peekKind() != lexer.TokenOpGt {
			p.errorf("'>' expected")
		}
		p.lx.Next()
	}
	return name, attrib
}

func (p *parser) parseLabelStat() ast.Stat {
	line := p.expect(lexer.TokenSepLabel).Line
	name := p.expect(lexer.TokenIdentifier).Str
	p.expect(lexer.TokenSepLabel)
	return &ast.LabelStat{Line: line, Name: name}
}

func (p *parser) parseGotoStat() ast.Stat {
	line := p.expect(lexer.TokenKwGoto).Line
	name := p.expect(lexer.TokenIdentifier).Str
	return &ast.GotoStat{Line: line, Name: name}
}

// parseAssignOrCallStat parses either a call-statement or a (possibly
// multi-target) assignment, disambiguated by what follows the first
// prefixexp: parse one prefixexp, then branch on '=' / ','.
func (p *parser) parseAssignOrCallStat() ast.Stat {
	first := p.parsePrefixExp()
	if call, ok := first.(*ast.FuncCallExp); ok && p.peekKind() != lexer.TokenOpAssign && p.peekKind() != lexer.TokenSepComma {
		return &ast.FuncCallStat{Exp: call}
	}
	vars := []ast.Exp{first}
	for p.optional(lexer.TokenSepComma) {
		vars = append(vars, p.parsePrefixExp())
	}
	p.expect(lexer.TokenOpAssign)
	exps := p.parseExpList()
	lastLine := p.lx.Line()
	return &ast.AssignStat{LastLine: lastLine, VarList: vars, ExpList: exps}
}

/* ---- expressions ---- */

func (p *parser) parseExpList() []ast.Exp {
	exps := []ast.Exp{p.parseExp()}
	for p.optional(lexer.TokenSepComma) {
		exps = append(exps, p.parseExp())
	}
	return exps
}

// operator precedence, higher binds tighter. or < and < comparisons <
// '|' < '~' < '&' < shift < '..' (right-assoc) < +- < muldiv < unary < '^' (right-assoc)
var binPrec = map[int][2]int{
	lexer.TokenOpOr:    {1, 1},
	lexer.TokenOpAnd:   {2, 2},
	lexer.TokenOpLt:    {3, 3}, lexer.TokenOpGt: {3, 3}, lexer.TokenOpLe: {3, 3},
	lexer.TokenOpGe:    {3, 3}, lexer.TokenOpNe: {3, 3}, lexer.TokenOpEq: {3, 3},
	lexer.TokenOpBOr:   {4, 4},
	lexer.TokenOpWave:  {5, 5},
	lexer.TokenOpBAnd:  {6, 6},
	lexer.TokenOpShL:   {7, 7}, lexer.TokenOpShR: {7, 7},
	lexer.TokenConcat:  {9, 8}, // right-assoc
	lexer.TokenOpAdd:   {10, 10}, lexer.TokenOpMinus: {10, 10},
	lexer.TokenOpMul:   {11, 11}, lexer.TokenOpDiv: {11, 11},
	lexer.TokenOpIDiv:  {11, 11}, lexer.TokenOpMod: {11, 11},
	lexer.TokenOpPow:   {14, 13}, // right-assoc, binds tighter than unary
}

const unaryPrec = 12

func (p *parser) parseExp() ast.Exp { return p.parseSubExp(0) }

func (p *parser) parseSubExp(limit int) ast.Exp {
	var left ast.Exp
	if isUnop(p.peekKind()) {
		tok := p.lx.Next()
		operand := p.parseSubExp(unaryPrec)
		left = &ast.UnopExp{Line: tok.Line, Op: tok.Kind, Exp: operand}
	} else {
		left = p.parseSimpleExp()
	}
	for {
		prec, ok := binPrec[p.peekKind()]
		if !ok || prec[0] <= limit {
			break
		}
		tok := p.lx.Next()
		right := p.parseSubExp(prec[1])
		left = &ast.BinopExp{Line: tok.Line, Op: tok.Kind, Exp1: left, Exp2: right}
	}
	return left
}

func isUnop(kind int) bool {
	switch kind {
	case lexer.TokenOpMinus, lexer.TokenOpNot, lexer.TokenOpLen, lexer.TokenOpWave:
		return true
	}
	return false
}

func (p *parser) parseSimpleExp() ast.Exp {
	tok := p.lx.LookAhead()
	switch tok.Kind {
	case lexer.TokenKwNil:
		p.lx.Next()
		return &ast.NilExp{Line: tok.Line}
	case lexer.TokenKwTrue:
		p.lx.Next()
		return &ast.TrueExp{Line: tok.Line}
	case lexer.TokenKwFalse:
		p.lx.Next()
		return &ast.FalseExp{Line: tok.Line}
	case lexer.TokenVararg:
		p.lx.Next()
		return &ast.VarargExp{Line: tok.Line}
	case lexer.TokenNumber:
		p.lx.Next()
		return p.parseNumberExp(tok)
	case lexer.TokenString:
		p.lx.Next()
		return &ast.StringExp{Line: tok.Line, Str: tok.Str}
	case lexer.TokenSepLCurly:
		return p.parseTableConstructorExp()
	case lexer.TokenKwFunction:
		p.lx.Next()
		return p.parseFuncBody(tok.Line, false)
	default:
		return p.parsePrefixExp()
	}
}

func (p *parser) parseNumberExp(tok lexer.Token) ast.Exp {
	if i, ok := parseInteger(tok.Str); ok {
		return &ast.IntegerExp{Line: tok.Line, Val: i}
	}
	if f, ok := parseFloat(tok.Str); ok {
		return &ast.FloatExp{Line: tok.Line, Val: f}
	}
	p.errorf("malformed number near '%s'", tok.Str)
	return nil
}

// parsePrefixExp parses Name | '(' exp ')' followed by any chain of
// '.'/'['/':'/'(' suffixes (field access, index, method call, call).
func (p *parser) parsePrefixExp() ast.Exp {
	var exp ast.Exp
	if p.peekKind() == lexer.TokenSepLParen {
		p.lx.Next()
		inner := p.parseExp()
		p.expect(lexer.TokenSepRParen)
		exp = &ast.ParensExp{Exp: inner}
	} else {
		id := p.expect(lexer.TokenIdentifier)
		exp = &ast.NameExp{Line: id.Line, Name: id.Str}
	}
	return p.parseSuffixedExp(exp)
}

func (p *parser) parseSuffixedExp(exp ast.Exp) ast.Exp {
	for {
		switch p.peekKind() {
		case lexer.TokenSepDot:
			p.lx.Next()
			key := p.expect(lexer.TokenIdentifier)
			exp = &ast.TableAccessExp{LastLine: key.Line, PrefixExp: exp, KeyExp: &ast.StringExp{Line: key.Line, Str: key.Str}}
		case lexer.TokenSepLBrack:
			p.lx.Next()
			key := p.parseExp()
			last := p.expect(lexer.TokenSepRBrack).Line
			exp = &ast.TableAccessExp{LastLine: last, PrefixExp: exp, KeyExp: key}
		case lexer.TokenSepColon:
			p.lx.Next()
			name := p.expect(lexer.TokenIdentifier)
			args, lastLine := p.parseArgs()
			exp = &ast.FuncCallExp{Line: name.Line, LastLine: lastLine, PrefixExp: exp, NameExp: &ast.StringExp{Line: name.Line, Str: name.Str}, Args: args}
		case lexer.TokenSepLParen, lexer.TokenString, lexer.TokenSepLCurly:
			line := p.lx.LookAhead().Line
			args, lastLine := p.parseArgs()
			exp = &ast.FuncCallExp{Line: line, LastLine: lastLine, PrefixExp: exp, Args: args}
		default:
			return exp
		}
	}
}

func (p *parser) parseArgs() ([]ast.Exp, int) {
	switch p.peekKind() {
	case lexer.TokenSepLParen:
		p.lx.Next()
		var args []ast.Exp
		if p.peekKind() != lexer.TokenSepRParen {
			args = p.parseExpList()
		}
		line := p.expect(lexer.TokenSepRParen).Line
		return args, line
	case lexer.TokenString:
		tok := p.lx.Next()
		return []ast.Exp{&ast.StringExp{Line: tok.Line, Str: tok.Str}}, tok.Line
	case lexer.TokenSepLCurly:
		t := p.parseTableConstructorExp()
		return []ast.Exp{t}, t.(*ast.TableConstructorExp).LastLine
	default:
		p.errorf("function arguments expected")
		return nil, 0
	}
}

func (p *parser) parseTableConstructorExp() ast.Exp {
	p.expect(lexer.TokenSepLCurly)
	tc := &ast.TableConstructorExp{}
	for p.peekKind() != lexer.TokenSepRCurly {
		if p.peekKind() == lexer.TokenSepLBrack {
			p.lx.Next()
			key := p.parseExp()
			p.expect(lexer.TokenSepRBrack)
			p.expect(lexer.TokenOpAssign)
			val := p.parseExp()
			tc.KeyExps = append(tc.KeyExps, key)
			tc.ValExps = append(tc.ValExps, val)
		} else if p.peekKind() == lexer.TokenIdentifier && p.isFieldAssign() {
			key := p.lx.Next()
			p.expect(lexer.TokenOpAssign)
			val := p.parseExp()
			tc.KeyExps = append(tc.KeyExps, &ast.StringExp{Line: key.Line, Str: key.Str})
			tc.ValExps = append(tc.ValExps, val)
		} else {
			val := p.parseExp()
			tc.KeyExps = append(tc.KeyExps, nil)
			tc.ValExps = append(tc.ValExps, val)
		}
		if !p.optional(lexer.TokenSepComma) && !p.optional(lexer.TokenSepSemi) {
			break
		}
	}
	tc.LastLine = p.expect(lexer.TokenSepRCurly).Line
	return tc
}

// isFieldAssign reports whether the identifier at LookAhead() is
// immediately followed by '=', i.e. a `Name = exp` table field rather
// than a bare expression starting with that name.
func (p *parser) isFieldAssign() bool {
	return p.lx.PeekSecond().Kind == lexer.TokenOpAssign
}
