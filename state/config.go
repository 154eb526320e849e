package state

// Config groups the implementation choices left to the embedder, as
// overridable fields threaded through New instead of hardcoded
// constants.
type Config struct {
	// ChunkName is a default source name for chunks. The engine does not
	// read it: load() and cmd/lua54 choose their own chunk names.
	ChunkName string
	// MaxCallDepth bounds Lua-call nesting before "stack overflow".
	MaxCallDepth int
	// StrictHooks: true (the default) lets an error raised inside a
	// debug hook propagate like any other error; false swallows it at
	// the hook-dispatch boundary, matching older, more permissive Lua
	// builds some existing test suites were written against.
	StrictHooks bool
}

// DefaultConfig returns the engine's built-in constants.
func DefaultConfig() Config {
	return Config{
		ChunkName:    "=(load)",
		MaxCallDepth: maxCallDepth,
		StrictHooks:  true,
	}
}

// New creates a fresh main thread with its own global table,
// parameterized by Config instead of hardcoded constants.
func New(cfg Config) *Thread {
	globals := NewTable(0, 32)
	th := NewMainThread(globals)
	th.cfg = cfg
	return th
}
