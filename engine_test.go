package lua54

import (
	"testing"

	"github.com/lollipopkit/lua54/compiler"
	"github.com/lollipopkit/lua54/state"
	"github.com/lollipopkit/lua54/stdlib"
)

// run compiles and executes src against a fresh thread with every
// stdlib loaded, driving the whole pipeline rather than mocking any
// one layer.
func run(t *testing.T, src string) *state.Thread {
	t.Helper()
	proto, err := compiler.Compile(src, "=test", false)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	th := state.New(state.DefaultConfig())
	stdlib.OpenLibs(th, th.Globals())
	closure := state.LoadMainChunk(proto, th.Globals())
	ok, results := state.PCall(th, closure, nil, nil)
	if !ok {
		msg := "?"
		if len(results) > 0 {
			msg = state.ToStringValue(results[0])
		}
		t.Fatalf("run %q: %s", src, msg)
	}
	return th
}

func globalInt(t *testing.T, th *state.Thread, name string) int64 {
	t.Helper()
	v := th.Globals().Get(name)
	n, ok := state.ToInteger(v)
	if !ok {
		t.Fatalf("global %s is not an integer: %#v", name, v)
	}
	return n
}

func TestArithmeticIntFloatUnification(t *testing.T) {
	th := run(t, `
		a = 3 + 4
		b = 3 / 2
		c = 7 // 2
		d = 7 % 2
		e = 2 ^ 10
	`)
	if n := globalInt(t, th, "a"); n != 7 {
		t.Errorf("a = %d, want 7", n)
	}
	if f, ok := state.ToFloat(th.Globals().Get("b")); !ok || f != 1.5 {
		t.Errorf("b = %v, want 1.5", th.Globals().Get("b"))
	}
	if n := globalInt(t, th, "c"); n != 3 {
		t.Errorf("c = %d, want 3", n)
	}
	if n := globalInt(t, th, "d"); n != 1 {
		t.Errorf("d = %d, want 1", n)
	}
	if f, ok := state.ToFloat(th.Globals().Get("e")); !ok || f != 1024 {
		t.Errorf("e = %v, want 1024", th.Globals().Get("e"))
	}
}

func TestClosuresAndUpvalues(t *testing.T) {
	th := run(t, `
		function counter()
			local n = 0
			return function()
				n = n + 1
				return n
			end
		end
		local c = counter()
		x1 = c()
		x2 = c()
		x3 = c()
	`)
	if globalInt(t, th, "x1") != 1 || globalInt(t, th, "x2") != 2 || globalInt(t, th, "x3") != 3 {
		t.Fatalf("counter sequence wrong: %v %v %v",
			th.Globals().Get("x1"), th.Globals().Get("x2"), th.Globals().Get("x3"))
	}
}

func TestTailCallDoesNotOverflow(t *testing.T) {
	th := run(t, `
		function loop(n, acc)
			if n == 0 then return acc end
			return loop(n - 1, acc + 1)
		end
		result = loop(100000, 0)
	`)
	if globalInt(t, th, "result") != 100000 {
		t.Fatalf("result = %v, want 100000", th.Globals().Get("result"))
	}
}

func TestMetatableIndexChain(t *testing.T) {
	th := run(t, `
		base = {greet = function(self) return "hi " .. self.name end}
		mt = {__index = base}
		obj = setmetatable({name = "world"}, mt)
		msg = obj:greet()
	`)
	if s, _ := th.Globals().Get("msg").(string); s != "hi world" {
		t.Fatalf("msg = %q, want %q", s, "hi world")
	}
}

func TestPcallCatchesRuntimeError(t *testing.T) {
	th := run(t, `
		ok, err = pcall(function() error("boom") end)
	`)
	if v := th.Globals().Get("ok"); v != false {
		t.Fatalf("ok = %v, want false", v)
	}
	msg, _ := th.Globals().Get("err").(string)
	if msg == "" {
		t.Fatalf("err should be a non-empty string, got %#v", th.Globals().Get("err"))
	}
}

func TestCloseVariableRunsOnScopeExit(t *testing.T) {
	th := run(t, `
		log = {}
		local function tracker(tag)
			return setmetatable({}, {__close = function() table.insert(log, tag) end})
		end
		do
			local a <close> = tracker("a")
			local b <close> = tracker("b")
		end
	`)
	logTbl, ok := th.Globals().Get("log").(*state.Table)
	if !ok {
		t.Fatalf("log is not a table: %#v", th.Globals().Get("log"))
	}
	if logTbl.Len() != 2 {
		t.Fatalf("expected 2 close calls, got %d", logTbl.Len())
	}
	if logTbl.Get(int64(1)) != "b" || logTbl.Get(int64(2)) != "a" {
		t.Fatalf("close order wrong: %v, %v", logTbl.Get(int64(1)), logTbl.Get(int64(2)))
	}
}

func TestCoroutineYieldResume(t *testing.T) {
	th := run(t, `
		co = coroutine.create(function(a)
			local b = coroutine.yield(a + 1)
			return b + 1
		end)
		ok1, v1 = coroutine.resume(co, 10)
		ok2, v2 = coroutine.resume(co, 100)
	`)
	if v := th.Globals().Get("ok1"); v != true {
		t.Fatalf("ok1 = %v, want true", v)
	}
	if globalInt(t, th, "v1") != 11 {
		t.Fatalf("v1 = %v, want 11", th.Globals().Get("v1"))
	}
	if v := th.Globals().Get("ok2"); v != true {
		t.Fatalf("ok2 = %v, want true", v)
	}
	if globalInt(t, th, "v2") != 101 {
		t.Fatalf("v2 = %v, want 101", th.Globals().Get("v2"))
	}
}

func TestGenericForOverIpairs(t *testing.T) {
	th := run(t, `
		sum = 0
		for k, v in ipairs({10, 20, 30}) do
			sum = sum + v
		end
	`)
	if globalInt(t, th, "sum") != 60 {
		t.Fatalf("sum = %v, want 60", th.Globals().Get("sum"))
	}
}

func TestNumericForIntAndFloat(t *testing.T) {
	th := run(t, `
		isum = 0
		for i = 1, 5 do isum = isum + i end
		fsum = 0.0
		for i = 1.0, 2.0, 0.5 do fsum = fsum + i end
	`)
	if globalInt(t, th, "isum") != 15 {
		t.Fatalf("isum = %v, want 15", th.Globals().Get("isum"))
	}
	if f, ok := state.ToFloat(th.Globals().Get("fsum")); !ok || f != 4.5 {
		t.Fatalf("fsum = %v, want 4.5", th.Globals().Get("fsum"))
	}
}
