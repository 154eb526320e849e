package state

import "math"

// getMetatableOf returns v's metatable: its own for tables/userdata,
// or the thread-wide default for strings (the only other type the
// standard library gives one to, via the string library's __index).
func getMetatableOf(th *Thread, v Value) *Table {
	switch x := v.(type) {
	case *Table:
		return x.Meta
	case *Userdata:
		return x.Meta
	case string:
		return th.strMeta
	default:
		return nil
	}
}

func getMetamethod(th *Thread, v Value, name string) Value {
	mt := getMetatableOf(th, v)
	if mt == nil {
		return nil
	}
	return mt.Get(name)
}

func getBinMetamethod(th *Thread, a, b Value, name string) Value {
	if mm := getMetamethod(th, a, name); mm != nil {
		return mm
	}
	return getMetamethod(th, b, name)
}

func callMetamethod(th *Thread, mm Value, args ...Value) Value {
	rets := Call(th, mm, args)
	if len(rets) == 0 {
		return nil
	}
	return rets[0]
}

/* indexing */

func index(th *Thread, t, key Value) Value {
	for i := 0; i < 200; i++ {
		if tbl, ok := t.(*Table); ok {
			if v := tbl.Get(key); v != nil {
				return v
			}
			mm := getMetamethod(th, t, "__index")
			if mm == nil {
				return nil
			}
			if isCallable(mm) {
				return callMetamethod(th, mm, t, key)
			}
			t = mm
			continue
		}
		mm := getMetamethod(th, t, "__index")
		if mm == nil {
			throwError(th, "attempt to index a "+TypeName(t)+" value")
		}
		if isCallable(mm) {
			return callMetamethod(th, mm, t, key)
		}
		t = mm
	}
	throwError(th, "'__index' chain too long; possible loop")
	return nil
}

func newindex(th *Thread, t, key, val Value) {
	for i := 0; i < 200; i++ {
		tbl, ok := t.(*Table)
		if ok {
			if tbl.Get(key) != nil {
				tbl.Set(key, val)
				return
			}
			mm := getMetamethod(th, t, "__newindex")
			if mm == nil {
				tbl.Set(key, val)
				return
			}
			if isCallable(mm) {
				Call(th, mm, []Value{t, key, val})
				return
			}
			t = mm
			continue
		}
		mm := getMetamethod(th, t, "__newindex")
		if mm == nil {
			throwError(th, "attempt to index a "+TypeName(t)+" value")
		}
		if isCallable(mm) {
			Call(th, mm, []Value{t, key, val})
			return
		}
		t = mm
	}
	throwError(th, "'__newindex' chain too long; possible loop")
}

func isCallable(v Value) bool {
	switch v.(type) {
	case *Closure, *GoFuncDecl:
		return true
	default:
		return false
	}
}

/* arithmetic / bitwise */

const (
	mmAdd  = "__add"
	mmSub  = "__sub"
	mmMul  = "__mul"
	mmMod  = "__mod"
	mmPow  = "__pow"
	mmDiv  = "__div"
	mmIDiv = "__idiv"
	mmBAnd = "__band"
	mmBOr  = "__bor"
	mmBXor = "__bxor"
	mmShl  = "__shl"
	mmShr  = "__shr"
	mmUnm  = "__unm"
	mmBNot = "__bnot"
	mmConcat = "__concat"
	mmLen    = "__len"
	mmEq     = "__eq"
	mmLt     = "__lt"
	mmLe     = "__le"
	mmClose  = "__close"
	mmCall   = "__call"
	mmToString = "__tostring"
)

// arith implements a binary arithmetic/bitwise opcode: integer fast
// path when both operands are integers (for bitwise ops this is the
// ONLY path - bitwise operators require integer operands or
// integer-valued floats), float fallback via ToFloat, metamethod
// fallback otherwise.
func arith(th *Thread, mm string, a, b Value) Value {
	switch mm {
	case mmBAnd, mmBOr, mmBXor, mmShl, mmShr, mmBNot:
		ia, oka := ToInteger(a)
		ib, okb := ToInteger(b)
		if oka && okb {
			return bitwiseOp(mm, ia, ib)
		}
	default:
		x, okx := a.(int64)
		y, oky := b.(int64)
		if okx && oky {
			if r, ok := intArith(mm, x, y, th); ok {
				return r
			}
		}
		fa, oka := ToFloat(a)
		fb, okb := ToFloat(b)
		if oka && okb {
			return floatArith(mm, fa, fb)
		}
	}
	if m := getBinMetamethod(th, a, b, mm); m != nil {
		return callMetamethod(th, m, a, b)
	}
	bad := a
	if _, ok := ToFloat(a); ok {
		bad = b
	}
	op := "perform arithmetic on"
	if mm == mmBAnd || mm == mmBOr || mm == mmBXor || mm == mmShl || mm == mmShr || mm == mmBNot {
		op = "perform bitwise operation on"
	}
	throwError(th, op+" a "+TypeName(bad)+" value")
	return nil
}

func intArith(mm string, x, y int64, th *Thread) (Value, bool) {
	switch mm {
	case mmAdd:
		return x + y, true
	case mmSub:
		return x - y, true
	case mmMul:
		return x * y, true
	case mmMod:
		if y == 0 {
			throwError(th, "attempt to perform 'n%%0'")
		}
		return iMod(x, y), true
	case mmIDiv:
		if y == 0 {
			throwError(th, "attempt to perform 'n//0'")
		}
		return iFloorDiv(x, y), true
	case mmDiv, mmPow:
		return nil, false // always float
	}
	return nil, false
}

func floatArith(mm string, x, y float64) Value {
	switch mm {
	case mmAdd:
		return x + y
	case mmSub:
		return x - y
	case mmMul:
		return x * y
	case mmDiv:
		return x / y
	case mmPow:
		return math.Pow(x, y)
	case mmMod:
		r := math.Mod(x, y)
		if r != 0 && (r < 0) != (y < 0) {
			r += y
		}
		return r
	case mmIDiv:
		return math.Floor(x / y)
	}
	return nil
}

func bitwiseOp(mm string, x, y int64) Value {
	ux, uy := uint64(x), uint64(y)
	switch mm {
	case mmBAnd:
		return int64(ux & uy)
	case mmBOr:
		return int64(ux | uy)
	case mmBXor:
		return int64(ux ^ uy)
	case mmShl:
		return shiftLeft(x, y)
	case mmShr:
		return shiftLeft(x, -y)
	case mmBNot:
		return int64(^ux)
	}
	return nil
}

func shiftLeft(x, n int64) int64 {
	if n <= -64 || n >= 64 {
		return 0
	}
	if n >= 0 {
		return int64(uint64(x) << uint(n))
	}
	return int64(uint64(x) >> uint(-n))
}

func iFloorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func iMod(a, b int64) int64 {
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

func unaryMinus(th *Thread, v Value) Value {
	switch x := v.(type) {
	case int64:
		return -x
	case float64:
		return -x
	}
	if f, ok := ToFloat(v); ok {
		return -f
	}
	if mm := getMetamethod(th, v, mmUnm); mm != nil {
		return callMetamethod(th, mm, v, v)
	}
	throwError(th, "attempt to perform arithmetic on a "+TypeName(v)+" value")
	return nil
}

func bitwiseNot(th *Thread, v Value) Value {
	if i, ok := ToInteger(v); ok {
		return ^i
	}
	if mm := getMetamethod(th, v, mmBNot); mm != nil {
		return callMetamethod(th, mm, v, v)
	}
	throwError(th, "attempt to perform bitwise operation on a "+TypeName(v)+" value")
	return nil
}

/* comparisons */

func lessThan(th *Thread, a, b Value) bool {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return x < y
		case float64:
			return intLessFloat(x, y)
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return floatLessInt(x, y)
		case float64:
			return x < y
		}
	case string:
		if y, ok := b.(string); ok {
			return x < y
		}
	}
	if mm := getBinMetamethod(th, a, b, mmLt); mm != nil {
		return Truthy(callMetamethod(th, mm, a, b))
	}
	throwError(th, "attempt to compare two "+TypeName(a)+" values")
	return false
}

func lessEqual(th *Thread, a, b Value) bool {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return x <= y
		case float64:
			return intLessEqualFloat(x, y)
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return floatLessEqualInt(x, y)
		case float64:
			return x <= y
		}
	case string:
		if y, ok := b.(string); ok {
			return x <= y
		}
	}
	if mm := getBinMetamethod(th, a, b, mmLe); mm != nil {
		return Truthy(callMetamethod(th, mm, a, b))
	}
	throwError(th, "attempt to compare two "+TypeName(a)+" values")
	return false
}

func equals(th *Thread, a, b Value) bool {
	if RawEquals(a, b) {
		return true
	}
	_, at := a.(*Table)
	_, bt := b.(*Table)
	_, au := a.(*Userdata)
	_, bu := b.(*Userdata)
	if (at && bt) || (au && bu) {
		if mm := getBinMetamethod(th, a, b, mmEq); mm != nil {
			return Truthy(callMetamethod(th, mm, a, b))
		}
	}
	return false
}

/* concat / length / tostring / close */

func concat(th *Thread, a, b Value) Value {
	as, aok := concatOperand(a)
	bs, bok := concatOperand(b)
	if aok && bok {
		return as + bs
	}
	if mm := getBinMetamethod(th, a, b, mmConcat); mm != nil {
		return callMetamethod(th, mm, a, b)
	}
	bad := a
	if aok {
		bad = b
	}
	throwError(th, "attempt to concatenate a "+TypeName(bad)+" value")
	return nil
}

func concatOperand(v Value) (string, bool) {
	switch v.(type) {
	case string, int64, float64:
		return ToStringValue(v), true
	default:
		return "", false
	}
}

func length(th *Thread, v Value) Value {
	if s, ok := v.(string); ok {
		return int64(len(s))
	}
	if mm := getMetamethod(th, v, mmLen); mm != nil {
		return callMetamethod(th, mm, v)
	}
	if t, ok := v.(*Table); ok {
		return t.Len()
	}
	throwError(th, "attempt to get length of a "+TypeName(v)+" value")
	return nil
}

func tostringMeta(th *Thread, v Value) string {
	if mm := getMetamethod(th, v, mmToString); mm != nil {
		r := callMetamethod(th, mm, v)
		if s, ok := r.(string); ok {
			return s
		}
		throwError(th, "'__tostring' must return a string")
	}
	if mt := getMetatableOf(th, v); mt != nil {
		if name, ok := mt.Get("__name").(string); ok {
			if _, isTable := v.(*Table); isTable {
				return name
			}
		}
	}
	return ToStringValue(v)
}

func callClose(th *Thread, v, errVal Value) {
	mm := getMetamethod(th, v, mmClose)
	if mm == nil {
		return
	}
	Call(th, mm, []Value{v, errVal})
}
