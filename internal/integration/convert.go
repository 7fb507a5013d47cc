package integration

import (
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"
)

// toGo converts a script result into a storage primitive. Sequences
// become []any, other tables map[string]any. Cycles are cut.
func toGo(lv lua.LValue) any {
	return toGoVisited(lv, make(map[*lua.LTable]bool))
}

func toGoVisited(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		return tableToGo(v, visited)
	}
	return nil
}

func tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	// Sequential integer keys from 1 make an array.
	n := t.Len()
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })
	if count == n {
		arr := make([]any, n)
		for i := 1; i <= n; i++ {
			arr[i-1] = toGoVisited(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = fmt.Sprint(float64(kv))
		default:
			key = k.String()
		}
		m[key] = toGoVisited(v, visited)
	})
	return m
}

// toLua converts a storage primitive into a Lua value.
func (l *Lua) toLua(v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		t := l.L.NewTable()
		for _, item := range val {
			t.Append(l.toLua(item))
		}
		return t
	case map[string]any:
		t := l.L.NewTable()
		for k, item := range val {
			t.RawSetString(k, l.toLua(item))
		}
		return t
	}
	return lua.LString(fmt.Sprint(v))
}
