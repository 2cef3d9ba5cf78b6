package sandbox

import (
	"fmt"
	"math"

	"github.com/Shopify/go-lua"

	"github.com/undolab/saferun/internal/state"
)

// maxConvertDepth bounds table conversion so cyclic tables cannot
// hang the caller.
const maxConvertDepth = 8

// luaToValue converts the Lua value at the given stack index into a
// state.Value. Tables convert to objects (string keys) or arrays
// (dense integer keys from 1); anything unconvertible becomes its
// display string.
func luaToValue(l *lua.State, index int, depth int) state.Value {
	switch l.TypeOf(index) {
	case lua.TypeNil:
		return state.Null{}
	case lua.TypeBoolean:
		return state.Bool(l.ToBoolean(index))
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return state.Int(int64(n))
		}
		// Fractional numbers have no state representation; render
		// them as strings rather than dropping them.
		return state.String(fmt.Sprintf("%g", n))
	case lua.TypeString:
		s, _ := l.ToString(index)
		return state.String(s)
	case lua.TypeTable:
		if depth >= maxConvertDepth {
			return state.String("<table: depth limit>")
		}
		return tableToValue(l, index, depth)
	default:
		return state.String(fmt.Sprintf("<%s>", lua.TypeNameOf(l, index)))
	}
}

// tableToValue walks a table with lua.Next. A table whose keys are
// exactly 1..n becomes an Array; otherwise it becomes an Object with
// stringified keys.
func tableToValue(l *lua.State, index int, depth int) state.Value {
	abs := l.AbsIndex(index)
	obj := state.Object{}
	arr := state.Array{}
	dense := true
	next := int64(1)

	l.PushNil()
	for l.Next(abs) {
		// Stack: ... key value
		if dense && l.TypeOf(-2) == lua.TypeNumber {
			k, _ := l.ToNumber(-2)
			if k == float64(next) {
				arr = append(arr, luaToValue(l, -1, depth+1))
				next++
				l.Pop(1)
				continue
			}
		}
		dense = false

		var key string
		switch l.TypeOf(-2) {
		case lua.TypeString:
			key, _ = l.ToString(-2)
		case lua.TypeNumber:
			n, _ := l.ToNumber(-2)
			key = fmt.Sprintf("%g", n)
		default:
			key = fmt.Sprintf("<%s>", lua.TypeNameOf(l, -2))
		}
		obj[key] = luaToValue(l, -1, depth+1)
		l.Pop(1)
	}

	if dense {
		return arr
	}
	// Fold any dense prefix back into the object so no entries are
	// lost when the table turned out to be mixed.
	for i, v := range arr {
		obj[fmt.Sprintf("%d", i+1)] = v
	}
	return obj
}

// pushValue pushes a state.Value onto the Lua stack for injected
// read capabilities.
func pushValue(l *lua.State, v state.Value) {
	switch val := v.(type) {
	case nil, state.Null:
		l.PushNil()
	case state.String:
		l.PushString(string(val))
	case state.Int:
		l.PushNumber(float64(val))
	case state.Bool:
		l.PushBoolean(bool(val))
	case state.Array:
		l.CreateTable(len(val), 0)
		for i, elem := range val {
			pushValue(l, elem)
			l.RawSetInt(-2, i+1)
		}
	case state.Object:
		l.CreateTable(0, len(val))
		for _, k := range val.SortedKeys() {
			l.PushString(k)
			pushValue(l, val[k])
			l.RawSet(-3)
		}
	default:
		l.PushNil()
	}
}
