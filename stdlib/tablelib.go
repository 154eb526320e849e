package stdlib

import (
	"sort"
	"strings"

	"github.com/lollipopkit/lua54/state"
)

// OpenTable installs table.* — insert/remove/concat/sort/unpack over
// the hybrid array+hash Table, built on state.Table's own Get/Set/Len.
func OpenTable(th *state.Thread, globals *state.Table) {
	t := state.NewTable(0, 8)
	globals.Set("table", t)

	reg := func(name string, fn state.GoFunction) { t.Set(name, state.NewGoClosure("table."+name, fn)) }
	reg("insert", tableInsert)
	reg("remove", tableRemove)
	reg("concat", tableConcat)
	reg("sort", tableSort)
	reg("unpack", baseUnpack)
	reg("pack", tablePack)
}

func tableInsert(th *state.Thread, args []state.Value) []state.Value {
	tbl := arg(args, 0).(*state.Table)
	n := tbl.Len()
	if len(args) == 2 {
		tbl.Set(n+1, args[1])
		return nil
	}
	pos, _ := state.ToInteger(args[1])
	for i := n + 1; i > pos; i-- {
		tbl.Set(i, tbl.Get(i-1))
	}
	tbl.Set(pos, args[2])
	return nil
}

func tableRemove(th *state.Thread, args []state.Value) []state.Value {
	tbl := arg(args, 0).(*state.Table)
	n := tbl.Len()
	pos := n
	if len(args) >= 2 {
		pos, _ = state.ToInteger(args[1])
	}
	if n == 0 {
		return []state.Value{nil}
	}
	v := tbl.Get(pos)
	for i := pos; i < n; i++ {
		tbl.Set(i, tbl.Get(i+1))
	}
	tbl.Set(n, nil)
	return []state.Value{v}
}

func tableConcat(th *state.Thread, args []state.Value) []state.Value {
	tbl := arg(args, 0).(*state.Table)
	sep := ""
	if len(args) >= 2 {
		sep = wantString(args[1])
	}
	i := int64(1)
	if len(args) >= 3 {
		i, _ = state.ToInteger(args[2])
	}
	j := tbl.Len()
	if len(args) >= 4 {
		j, _ = state.ToInteger(args[3])
	}
	var parts []string
	for ; i <= j; i++ {
		parts = append(parts, wantString(tbl.Get(i)))
	}
	return []state.Value{strings.Join(parts, sep)}
}

func tableSort(th *state.Thread, args []state.Value) []state.Value {
	tbl := arg(args, 0).(*state.Table)
	n := int(tbl.Len())
	vals := make([]state.Value, n)
	for i := 0; i < n; i++ {
		vals[i] = tbl.Get(int64(i + 1))
	}
	var less func(i, j int) bool
	if cmp := arg(args, 1); cmp != nil {
		less = func(i, j int) bool {
			r := state.Call(th, cmp, []state.Value{vals[i], vals[j]})
			return len(r) > 0 && state.Truthy(r[0])
		}
	} else {
		less = func(i, j int) bool {
			af, aok := state.ToFloat(vals[i])
			bf, bok := state.ToFloat(vals[j])
			if aok && bok {
				return af < bf
			}
			as, _ := vals[i].(string)
			bs, _ := vals[j].(string)
			return as < bs
		}
	}
	sort.SliceStable(vals, less)
	for i := 0; i < n; i++ {
		tbl.Set(int64(i+1), vals[i])
	}
	return nil
}

func tablePack(th *state.Thread, args []state.Value) []state.Value {
	t := state.NewTable(len(args), 1)
	for i, v := range args {
		t.Set(int64(i+1), v)
	}
	t.Set("n", int64(len(args)))
	return []state.Value{t}
}
