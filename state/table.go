package state

import "math"

// Table is Lua's hybrid array+hash associative structure: an array
// part for contiguous integer keys, a map part for everything else,
// and a snapshot-based `next`, reindexed to Lua's 1-based array
// convention: arr[i] holds the value at Lua key i+1.
type Table struct {
	arr     []Value
	hash    map[Value]Value
	keys    map[Value]Value // next()'s traversal chain, key -> successor key
	lastKey Value
	changed bool
	Meta    *Table
}

func NewTable(nArr, nRec int) *Table {
	t := &Table{}
	if nArr > 0 {
		t.arr = make([]Value, 0, nArr)
	}
	if nRec > 0 {
		t.hash = make(map[Value]Value, nRec)
	}
	return t
}

// Len implements the `#` border: the array part's length when it has
// no trailing nil (border choice among valid borders is left
// implementation-defined when the table has holes).
func (t *Table) Len() int64 { return int64(len(t.arr)) }

func normalizeKey(key Value) Value {
	if f, ok := key.(float64); ok {
		if i, ok := FloatToInteger(f); ok {
			return i
		}
	}
	return key
}

func (t *Table) Get(key Value) Value {
	key = normalizeKey(key)
	if idx, ok := key.(int64); ok {
		if idx >= 1 && idx <= int64(len(t.arr)) {
			return t.arr[idx-1]
		}
	}
	if t.hash == nil {
		return nil
	}
	return t.hash[key]
}

func (t *Table) Set(key, val Value) {
	if key == nil {
		panic(newRuntimeError("table index is nil"))
	}
	if f, ok := key.(float64); ok && math.IsNaN(f) {
		panic(newRuntimeError("table index is NaN"))
	}
	t.changed = true
	key = normalizeKey(key)

	if idx, ok := key.(int64); ok && idx >= 1 {
		arrLen := int64(len(t.arr))
		if idx <= arrLen {
			t.arr[idx-1] = val
			if idx == arrLen && val == nil {
				t.shrinkArray()
			}
			return
		}
		if idx == arrLen+1 {
			if t.hash != nil {
				delete(t.hash, key)
			}
			if val != nil {
				t.arr = append(t.arr, val)
				t.expandArray()
			}
			return
		}
	}
	if val != nil {
		if t.hash == nil {
			t.hash = make(map[Value]Value, 8)
		}
		t.hash[key] = val
	} else if t.hash != nil {
		delete(t.hash, key)
	}
}

func (t *Table) shrinkArray() {
	for i := len(t.arr) - 1; i >= 0 && t.arr[i] == nil; i-- {
		t.arr = t.arr[:i]
	}
}

func (t *Table) expandArray() {
	if t.hash == nil {
		return
	}
	for idx := int64(len(t.arr)) + 1; ; idx++ {
		val, found := t.hash[idx]
		if !found {
			break
		}
		delete(t.hash, idx)
		t.arr = append(t.arr, val)
	}
}

// Next implements `next(t, key)`: nil key starts iteration. The
// traversal order is rebuilt into a snapshot chain whenever the table
// has been mutated since the last rebuild (invalidate-on-write).
func (t *Table) Next(key Value) (nextKey, nextVal Value, ok bool) {
	if t.keys == nil || (key == nil && t.changed) {
		t.rebuildKeys()
		t.changed = false
	}
	key = normalizeKey(key)

	nk, found := t.keys[key]
	if !found {
		if key == nil {
			return nil, nil, true // empty table
		}
		return nil, nil, false // invalid key
	}
	if nk == nil {
		return nil, nil, true // end of traversal
	}
	return nk, t.Get(nk), true
}

func (t *Table) rebuildKeys() {
	t.keys = make(map[Value]Value)
	var prev Value
	first := true
	for i, v := range t.arr {
		if v == nil {
			continue
		}
		k := int64(i + 1)
		if first {
			t.keys[nil] = k
			first = false
		} else {
			t.keys[prev] = k
		}
		prev = k
	}
	for k, v := range t.hash {
		if v == nil {
			continue
		}
		if first {
			t.keys[nil] = k
			first = false
		} else {
			t.keys[prev] = k
		}
		prev = k
	}
	if first {
		t.keys[nil] = nil
	} else {
		t.keys[prev] = nil
	}
	t.lastKey = prev
}
