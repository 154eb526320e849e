// Package consts holds small process-wide tunables shared by the
// compiler and the VM.
package consts

// Debug gates the internal term logger (internal/term). It is never
// read by user-visible behavior.
var Debug = false

const (
	// MinStack is extra headroom given to a new call frame beyond what
	// its Proto declares.
	MinStack = 20
	// MaxStack bounds a single frame's register file.
	MaxStack = 250
	// MaxUpvalues bounds a function's upvalue list.
	MaxUpvalues = 255
	// MaxCallDepth guards against runaway Go-stack recursion from
	// deeply nested Lua calls; crossed it raises "stack overflow".
	MaxCallDepth = 200
	// MetaLoopLimit bounds __index/__newindex chain length.
	MetaLoopLimit = 200
)
