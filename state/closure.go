package state

import (
	"fmt"

	"github.com/lollipopkit/lua54/binchunk"
)

// Upvalue is a shared cell referenced by every closure that captures
// it. While the defining frame is alive it aliases a register slot
// (Open); once that frame returns, CLOSE copies the value out and the
// upvalue becomes self-contained (Closed), so multiple closures can
// still share one cell after closing.
type Upvalue struct {
	stack *[]Value
	index int
	val   Value
	open  bool
}

func newOpenUpvalue(stack *[]Value, index int) *Upvalue {
	return &Upvalue{stack: stack, index: index, open: true}
}

func newClosedUpvalue(v Value) *Upvalue { return &Upvalue{val: v} }

func (u *Upvalue) Get() Value {
	if u.open {
		return (*u.stack)[u.index]
	}
	return u.val
}

func (u *Upvalue) Set(v Value) {
	if u.open {
		(*u.stack)[u.index] = v
		return
	}
	u.val = v
}

func (u *Upvalue) close() {
	if u.open {
		u.val = (*u.stack)[u.index]
		u.open = false
		u.stack = nil
	}
}

// Closure is either a Lua closure (Proto set) or a wrapped host
// function (Go set) with its captured upvalues.
type Closure struct {
	Proto *binchunk.Prototype
	Go    *GoFuncDecl
	Upval []*Upvalue
}

func NewLuaClosure(proto *binchunk.Prototype) *Closure {
	c := &Closure{Proto: proto}
	if n := len(proto.Upvalues); n > 0 {
		c.Upval = make([]*Upvalue, n)
	}
	return c
}

// LoadMainChunk wraps a freshly compiled top-level prototype into a
// closure with its lone upvalue ("_ENV") bound directly to globals,
// instead of trying to open it from a (nonexistent) enclosing frame.
func LoadMainChunk(proto *binchunk.Prototype, globals *Table) *Closure {
	c := NewLuaClosure(proto)
	if len(proto.Upvalues) > 0 {
		c.Upval[0] = newClosedUpvalue(Value(globals))
	}
	return c
}

func NewGoClosure(name string, fn GoFunction) *Closure {
	return &Closure{Go: &GoFuncDecl{Name: name, Fn: fn}}
}

func (c *Closure) String() string {
	if c.Go != nil {
		return fmt.Sprintf("function: builtin: %s", c.Go.Name)
	}
	return fmt.Sprintf("function: %p", c.Proto)
}

func (c *Closure) IsGo() bool { return c.Go != nil }

func (c *Closure) Name() string {
	if c.Go != nil && c.Go.Name != "" {
		return c.Go.Name
	}
	return "?"
}

// NumUpvalues reports this closure's upvalue count, for debug.getinfo's
// "u" field.
func (c *Closure) NumUpvalues() int { return len(c.Upval) }

// UpvalueName returns the i-th (0-based) upvalue's declared name, or
// "" for a host closure or a stripped prototype — debug.getupvalue's
// second return value.
func (c *Closure) UpvalueName(i int) string {
	if c.Proto == nil || i < 0 || i >= len(c.Proto.Upvalues) {
		return ""
	}
	return c.Proto.Upvalues[i].Name
}

// Upvalue exposes the i-th upvalue cell directly so debug.upvalueid
// can compare identities and debug.upvaluejoin can splice cells
// between closures.
func (c *Closure) Upvalue(i int) *Upvalue {
	if i < 0 || i >= len(c.Upval) {
		return nil
	}
	return c.Upval[i]
}

// SetUpvalue replaces the i-th upvalue cell, backing debug.upvaluejoin.
func (c *Closure) SetUpvalue(i int, uv *Upvalue) {
	if i >= 0 && i < len(c.Upval) {
		c.Upval[i] = uv
	}
}
