// Package state holds the runtime value model, call frames, the
// opcode dispatch loop, and the coroutine/close/error machinery built
// on top of it: int/float unification, <const>/<close> attributes,
// metamethod dispatch, and goroutine-backed coroutines.
package state

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is the tagged Lua value. Concrete Go types carry the tag:
// nil, bool, int64, float64, string, *Table, *Closure, *GoFuncDecl,
// *Thread, *Userdata.
type Value = any

// GoFunction is a host function: arguments in, results out. Errors
// propagate by panicking with an Error value (state/error.go), never
// by a Go error return, so they compose with pcall/xpcall uniformly
// with Lua-level errors.
type GoFunction func(th *Thread, args []Value) []Value

// GoFuncDecl pairs a host function with the name it was registered
// under, so getinfo/traceback can name it.
type GoFuncDecl struct {
	Name string
	Fn   GoFunction
}

type Userdata struct {
	Data any
	Meta *Table
}

func TypeName(v Value) string {
	switch v.(type) {
	case nil:
		return "nil"
	case bool:
		return "boolean"
	case int64, float64:
		return "number"
	case string:
		return "string"
	case *Table:
		return "table"
	case *Closure, *GoFuncDecl:
		return "function"
	case *Thread:
		return "thread"
	case *Userdata:
		return "userdata"
	default:
		return fmt.Sprintf("unknown<%T>", v)
	}
}

func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	default:
		return true
	}
}

// RawEquals implements Lua's primitive equality: numbers compare by
// mathematical value across the int/float boundary (int/float
// unification), everything else by identity/value.
func RawEquals(a, b Value) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return intEqualsFloat(x, y)
		}
		return false
	case float64:
		switch y := b.(type) {
		case int64:
			return intEqualsFloat(y, x)
		case float64:
			return x == y
		}
		return false
	case string:
		y, ok := b.(string)
		return ok && x == y
	default:
		return a == b
	}
}

// ToFloat implements Lua 5.4 §3.4.3's numeric coercion for arithmetic.
func ToFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case string:
		return parseNumericFloat(x)
	default:
		return 0, false
	}
}

// ToInteger coerces v to an integer, requiring an exact
// representation for floats and a well-formed integer literal for
// strings.
func ToInteger(v Value) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		return FloatToInteger(x)
	case string:
		return stringToInteger(x)
	default:
		return 0, false
	}
}

func FloatToInteger(f float64) (int64, bool) {
	i := int64(f)
	if float64(i) == f && !math.IsInf(f, 0) {
		return i, true
	}
	return 0, false
}

// maxIntFitsFloat is the largest magnitude for which every int64 in
// [-maxIntFitsFloat, maxIntFitsFloat] converts to float64 and back
// without loss, so comparing/equating it against a float64 by
// converting the integer side is exact.
const maxIntFitsFloat = 1 << 53

// floorToInt64 / ceilToInt64 round f towards -inf / +inf and report
// whether the result fits in an int64, so callers needing an exact
// int-vs-float comparison outside the float-safe range can finish the
// comparison in integer space instead of rounding the int64 through
// float64.
func floorToInt64(f float64) (int64, bool) {
	ff := math.Floor(f)
	if ff < -9223372036854775808.0 || ff >= 9223372036854775808.0 {
		return 0, false
	}
	return int64(ff), true
}

func ceilToInt64(f float64) (int64, bool) {
	ff := math.Ceil(f)
	if ff < -9223372036854775808.0 || ff >= 9223372036854775808.0 {
		return 0, false
	}
	return int64(ff), true
}

// intEqualsFloat reports whether x and y denote the same mathematical
// value, without rounding x through float64: a naive float64(x) == y
// silently returns true near the int64 boundary because the
// conversion itself loses precision (e.g. math.MaxInt64 as a float64
// rounds up to 2^63). Instead y must be finite, have no fractional
// part, and fall strictly within int64 range before converting it
// back to an integer for the comparison.
func intEqualsFloat(x int64, y float64) bool {
	if math.IsNaN(y) || math.IsInf(y, 0) || y != math.Trunc(y) {
		return false
	}
	if y < -9223372036854775808.0 || y >= 9223372036854775808.0 {
		return false
	}
	return x == int64(y)
}

// intLessFloat / intLessEqualFloat / floatLessInt / floatLessEqualInt
// implement Lua 5.4's bigint-free int/float ordering: when x fits
// exactly in a float64's mantissa, compare as floats (safe, since the
// conversion is lossless there); otherwise round the float to an
// integer boundary (floor or ceil, whichever preserves the
// comparison) and compare as int64s, falling back to a sign check
// when the float is out of int64 range altogether.
func intLessFloat(x int64, y float64) bool {
	if math.IsNaN(y) {
		return false
	}
	if x >= -maxIntFitsFloat && x <= maxIntFitsFloat {
		return float64(x) < y
	}
	if fi, ok := ceilToInt64(y); ok {
		return x < fi
	}
	return y > 0
}

func intLessEqualFloat(x int64, y float64) bool {
	if math.IsNaN(y) {
		return false
	}
	if x >= -maxIntFitsFloat && x <= maxIntFitsFloat {
		return float64(x) <= y
	}
	if fi, ok := floorToInt64(y); ok {
		return x <= fi
	}
	return y > 0
}

func floatLessInt(x float64, y int64) bool {
	if math.IsNaN(x) {
		return false
	}
	if y >= -maxIntFitsFloat && y <= maxIntFitsFloat {
		return x < float64(y)
	}
	if fi, ok := floorToInt64(x); ok {
		return fi < y
	}
	return x < 0
}

func floatLessEqualInt(x float64, y int64) bool {
	if math.IsNaN(x) {
		return false
	}
	if y >= -maxIntFitsFloat && y <= maxIntFitsFloat {
		return x <= float64(y)
	}
	if fi, ok := ceilToInt64(x); ok {
		return fi <= y
	}
	return x < 0
}

func stringToInteger(s string) (int64, bool) {
	if i, ok := parseNumericInteger(s); ok {
		return i, true
	}
	if f, ok := parseNumericFloat(s); ok {
		return FloatToInteger(f)
	}
	return 0, false
}

// parseNumericInteger / parseNumericFloat implement Lua 5.4's
// tonumber() grammar for strings: optional surrounding whitespace,
// optional sign, decimal or 0x-hex (integers wrap on overflow, as the
// lexer's literals do; tonumber does not apply the wraparound and
// instead falls through to float for out-of-range decimal literals).
func parseNumericInteger(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	neg := false
	rest := s
	if rest[0] == '+' || rest[0] == '-' {
		neg = rest[0] == '-'
		rest = rest[1:]
	}
	if len(rest) > 1 && rest[0] == '0' && (rest[1] == 'x' || rest[1] == 'X') {
		u, err := strconv.ParseUint(rest[2:], 16, 64)
		if err != nil || len(rest) == 2 {
			return 0, false
		}
		i := int64(u)
		if neg {
			i = -i
		}
		return i, true
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

func parseNumericFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	lit := s
	neg := false
	body := lit
	if body[0] == '+' || body[0] == '-' {
		neg = body[0] == '-'
		body = body[1:]
	}
	if len(body) > 1 && body[0] == '0' && (body[1] == 'x' || body[1] == 'X') {
		if !strings.ContainsAny(body, "pP") {
			body += "p0"
		}
		f, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return 0, false
		}
		if neg {
			f = -f
		}
		return f, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ToStringValue implements Lua's default (metamethod-free) tostring,
// used by CONCAT and print when no __tostring is present.
func ToStringValue(v Value) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case string:
		return x
	case *Table:
		return fmt.Sprintf("table: %p", x)
	case *Closure:
		return fmt.Sprintf("function: %p", x)
	case *GoFuncDecl:
		return fmt.Sprintf("function: builtin: %s", x.Name)
	case *Thread:
		return fmt.Sprintf("thread: %p", x)
	case *Userdata:
		return fmt.Sprintf("userdata: %p", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', 14, 64)
}
