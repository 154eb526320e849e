package lua54

import "testing"

func TestDebugGetLocalAndSetLocal(t *testing.T) {
	th := run(t, `
		function f()
			local x = 10
			name, val = debug.getlocal(1, 1)
			debug.setlocal(1, 1, 99)
			return x
		end
		result = f()
	`)
	if s, _ := th.Globals().Get("name").(string); s != "x" {
		t.Fatalf("name = %q, want %q", s, "x")
	}
	if globalInt(t, th, "val") != 10 {
		t.Fatalf("val = %v, want 10", th.Globals().Get("val"))
	}
	if globalInt(t, th, "result") != 99 {
		t.Fatalf("result = %v, want 99 (setlocal should have taken effect)", th.Globals().Get("result"))
	}
}

func TestDebugGetUpvalueAndSetUpvalue(t *testing.T) {
	th := run(t, `
		function counter()
			local n = 0
			local function inc() n = n + 1; return n end
			return inc
		end
		c = counter()
		uname, uval = debug.getupvalue(c, 1)
		debug.setupvalue(c, 1, 41)
		result = c()
	`)
	if s, _ := th.Globals().Get("uname").(string); s != "n" {
		t.Fatalf("uname = %q, want %q", s, "n")
	}
	if globalInt(t, th, "uval") != 0 {
		t.Fatalf("uval = %v, want 0", th.Globals().Get("uval"))
	}
	if globalInt(t, th, "result") != 42 {
		t.Fatalf("result = %v, want 42 (setupvalue should have taken effect)", th.Globals().Get("result"))
	}
}

func TestDebugSetHookFiresOnCall(t *testing.T) {
	th := run(t, `
		calls = 0
		debug.sethook(function(event) calls = calls + 1 end, "c")
		local function noop() end
		noop()
		noop()
		debug.sethook()
	`)
	if n := globalInt(t, th, "calls"); n < 2 {
		t.Fatalf("calls = %d, want at least 2", n)
	}
}

func TestPairsIteratesAllKeys(t *testing.T) {
	th := run(t, `
		t = {a = 1, b = 2, c = 3}
		sum = 0
		count = 0
		for k, v in pairs(t) do
			sum = sum + v
			count = count + 1
		end
	`)
	if globalInt(t, th, "sum") != 6 {
		t.Fatalf("sum = %v, want 6", th.Globals().Get("sum"))
	}
	if globalInt(t, th, "count") != 3 {
		t.Fatalf("count = %v, want 3", th.Globals().Get("count"))
	}
}

func TestXPCallInvokesMessageHandler(t *testing.T) {
	th := run(t, `
		ok, result = xpcall(function() error("boom") end, function(msg) return "handled: " .. msg end)
	`)
	if v := th.Globals().Get("ok"); v != false {
		t.Fatalf("ok = %v, want false", v)
	}
	s, _ := th.Globals().Get("result").(string)
	if len(s) < 8 || s[:8] != "handled:" {
		t.Fatalf("result = %q, want it to start with %q", s, "handled:")
	}
}

func TestCoroutineCloseRejectsRunning(t *testing.T) {
	th := run(t, `
		co = coroutine.create(function()
			ok, err = coroutine.close(coroutine.running())
			return coroutine.yield()
		end)
		coroutine.resume(co)
	`)
	if v := th.Globals().Get("ok"); v != false {
		t.Fatalf("ok = %v, want false (cannot close a running coroutine)", v)
	}
}

func TestCoroutineCloseMarksSuspendedDead(t *testing.T) {
	th := run(t, `
		co = coroutine.create(function() coroutine.yield() end)
		coroutine.resume(co)
		status1 = coroutine.status(co)
		closed, err = coroutine.close(co)
		status2 = coroutine.status(co)
	`)
	if s, _ := th.Globals().Get("status1").(string); s != "suspended" {
		t.Fatalf("status1 = %q, want %q", s, "suspended")
	}
	if v := th.Globals().Get("closed"); v != true {
		t.Fatalf("closed = %v, want true", v)
	}
	if s, _ := th.Globals().Get("status2").(string); s != "dead" {
		t.Fatalf("status2 = %q, want %q", s, "dead")
	}
}

func TestCoroutineWrapPropagatesError(t *testing.T) {
	th := run(t, `
		wrapped = coroutine.wrap(function() error("wrapped boom") end)
		ok, err = pcall(wrapped)
	`)
	if v := th.Globals().Get("ok"); v != false {
		t.Fatalf("ok = %v, want false", v)
	}
	msg, _ := th.Globals().Get("err").(string)
	if msg == "" {
		t.Fatalf("err should be a non-empty string, got %#v", th.Globals().Get("err"))
	}
}
