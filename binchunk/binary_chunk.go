// Package binchunk defines the compiled function prototype tree and its
// binary serialization (string.dump / load's binary path).
package binchunk

import (
	"bytes"
	"errors"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Header bytes. A chunk is recognised as binary by its leading Magic
// byte; load() must reject a text chunk beginning with '#' (shebang)
// and accept one beginning with Magic only when mode allows binary.
const (
	Magic      = 0x1B
	FormatText = 0x54 // '5','4' folded into one byte: Lua 5.4
)

var (
	signature  = []byte{Magic, 'L', 'u', 'a', FormatText}
	sizeMarker = []byte{8, 8} // int64 size, float64 size
)

var ErrBadHeader = errors.New("binchunk: bad header")

// Upvalue describes where a closure's i-th upvalue comes from: an
// outer local (Instack) or an outer upvalue.
type Upvalue struct {
	Instack byte   `json:"is"`
	Idx     byte   `json:"idx"`
	Name    string `json:"n,omitempty"` // empty when stripped
}

// LocVar is a local-variable scope record: name, allocated register
// (Slot) and the PC range over which it is live.
type LocVar struct {
	VarName string `json:"vn"`
	Slot    int    `json:"sl"`
	StartPC int    `json:"spc"`
	EndPC   int    `json:"epc"`
}

// Prototype is a compiled function: bytecode, constants, nested
// prototypes, and (unless stripped) debug info.
type Prototype struct {
	Source          string        `json:"s"`
	LineDefined     int           `json:"ld"`
	LastLineDefined int           `json:"lld"`
	NumParams       byte          `json:"np"`
	IsVararg        bool          `json:"iv"`
	MaxStackSize    int           `json:"ms"`
	Code            []uint32      `json:"c"`
	Constants       []interface{} `json:"cs"`
	Upvalues        []Upvalue     `json:"us"`
	Protos          []*Prototype  `json:"ps"`
	LineInfo        []int32       `json:"li,omitempty"` // PC -> source line; nil when stripped (currentline reports -1)
	LocVars         []LocVar      `json:"lvs,omitempty"`
}

// Stripped reports whether this prototype's debug info was removed by
// string.dump(f, true).
func (p *Prototype) Stripped() bool {
	return p.LineInfo == nil
}

// LineAt returns the source line for pc, or -1 if stripped or out of range.
func (p *Prototype) LineAt(pc int) int {
	if p.Stripped() || pc < 0 || pc >= len(p.LineInfo) {
		return -1
	}
	return int(p.LineInfo[pc])
}

// ActiveLines returns the set of lines a hook may fire on for this
// prototype (the union of LineInfo over the whole function).
func (p *Prototype) ActiveLines() map[int]bool {
	lines := map[int]bool{}
	for _, l := range p.LineInfo {
		lines[int(l)] = true
	}
	return lines
}

// Dump serializes the prototype tree to the binary-chunk format
// consumed by Load. When strip is true, line info and local/upvalue
// names are dropped (upvalue descriptors are kept, without names).
func Dump(p *Prototype, strip bool) ([]byte, error) {
	target := p
	if strip {
		target = stripProto(p)
	}
	body, err := json.Marshal(target)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(signature)
	buf.WriteByte(sizeMarker[0])
	buf.WriteByte(sizeMarker[1])
	if strip {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	buf.Write(body)
	return buf.Bytes(), nil
}

func stripProto(p *Prototype) *Prototype {
	cp := *p
	cp.LineInfo = nil
	cp.LocVars = nil
	cp.Upvalues = make([]Upvalue, len(p.Upvalues))
	for i, uv := range p.Upvalues {
		cp.Upvalues[i] = Upvalue{Instack: uv.Instack, Idx: uv.Idx}
	}
	cp.Protos = make([]*Prototype, len(p.Protos))
	for i, sub := range p.Protos {
		cp.Protos[i] = stripProto(sub)
	}
	return &cp
}

// IsBinary reports whether data looks like a chunk produced by Dump.
func IsBinary(data []byte) bool {
	return len(data) > 0 && data[0] == Magic
}

// Load parses a binary chunk produced by Dump.
func Load(data []byte) (*Prototype, error) {
	if len(data) < len(signature)+3 || !bytes.Equal(data[:len(signature)], signature) {
		return nil, ErrBadHeader
	}
	data = data[len(signature):]
	if data[0] != sizeMarker[0] || data[1] != sizeMarker[1] {
		return nil, ErrBadHeader
	}
	data = data[3:]
	var proto Prototype
	if err := json.Unmarshal(data, &proto); err != nil {
		return nil, err
	}
	return &proto, nil
}
