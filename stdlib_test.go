package lua54

import (
	"testing"

	"github.com/lollipopkit/lua54/state"
)

func TestTableSortWithComparator(t *testing.T) {
	th := run(t, `
		t = {5, 3, 4, 1, 2}
		table.sort(t, function(a, b) return a > b end)
	`)
	tbl := th.Globals().Get("t").(*state.Table)
	want := []int64{5, 4, 3, 2, 1}
	for i, w := range want {
		got, _ := state.ToInteger(tbl.Get(int64(i + 1)))
		if got != w {
			t.Fatalf("t[%d] = %d, want %d", i+1, got, w)
		}
	}
}

func TestStringFindAndGsubPlain(t *testing.T) {
	th := run(t, `
		s1, e1 = string.find("hello world", "world")
		replaced, n = string.gsub("a-b-a-b", "a", "X")
	`)
	if globalInt(t, th, "s1") != 7 || globalInt(t, th, "e1") != 11 {
		t.Fatalf("find = %v,%v want 7,11", th.Globals().Get("s1"), th.Globals().Get("e1"))
	}
	if s, _ := th.Globals().Get("replaced").(string); s != "X-b-X-b" {
		t.Fatalf("replaced = %q, want %q", s, "X-b-X-b")
	}
	if globalInt(t, th, "n") != 2 {
		t.Fatalf("n = %v, want 2", th.Globals().Get("n"))
	}
}

func TestStringDumpLoadRoundTrip(t *testing.T) {
	th := run(t, `
		function addone(x) return x + 1 end
		local bin = string.dump(addone)
		local reloaded = load(bin, "reloaded", "b")
		result = reloaded(41)
	`)
	if globalInt(t, th, "result") != 42 {
		t.Fatalf("result = %v, want 42", th.Globals().Get("result"))
	}
}

func TestDebugGetInfoReportsCurrentLine(t *testing.T) {
	th := run(t, `
		function f()
			info = debug.getinfo(1, "Sl")
		end
		f()
	`)
	infoTbl, ok := th.Globals().Get("info").(*state.Table)
	if !ok {
		t.Fatalf("info is not a table: %#v", th.Globals().Get("info"))
	}
	if what, _ := infoTbl.Get("what").(string); what != "Lua" {
		t.Fatalf("what = %q, want %q", what, "Lua")
	}
	if line, ok := state.ToInteger(infoTbl.Get("currentline")); !ok || line <= 0 {
		t.Fatalf("currentline = %v, want a positive line", infoTbl.Get("currentline"))
	}
}

func TestDebugTracebackIncludesMessage(t *testing.T) {
	th := run(t, `
		function inner() return debug.traceback("boom", 1) end
		function outer() return inner() end
		tb = outer()
	`)
	s, ok := th.Globals().Get("tb").(string)
	if !ok {
		t.Fatalf("tb is not a string: %#v", th.Globals().Get("tb"))
	}
	if len(s) == 0 || s[:4] != "boom" {
		t.Fatalf("traceback should start with the message, got %q", s)
	}
}
