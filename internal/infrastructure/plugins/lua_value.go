package plugins

import (
	"fmt"
	"math"
	"sort"
	"time"

	lua "github.com/yuin/gopher-lua"

	plugindomain "kilometers.ai/boot/internal/core/domain/plugin"
)

const maxValueDepth = 32

// fromLua converts a Lua value into plain Go data: tables with keys 1..n
// become slices, other tables become string-keyed maps, integral numbers
// become ints.
func fromLua(v lua.LValue) interface{} {
	return fromLuaDepth(v, 0)
}

func fromLuaDepth(v lua.LValue, depth int) interface{} {
	if depth > maxValueDepth {
		return nil
	}
	switch v := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LString:
		return string(v)
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int(f)
		}
		return f
	case *lua.LTable:
		if n, ok := arrayLen(v); ok {
			out := make([]interface{}, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, fromLuaDepth(v.RawGetInt(i), depth+1))
			}
			return out
		}
		out := make(map[string]interface{})
		v.ForEach(func(key, value lua.LValue) {
			out[key.String()] = fromLuaDepth(value, depth+1)
		})
		return out
	case *lua.LFunction:
		return v
	case *lua.LUserData:
		return v.Value
	default:
		return v.String()
	}
}

// arrayLen reports whether t is a non-empty sequence 1..n.
func arrayLen(t *lua.LTable) (int, bool) {
	count := 0
	sequence := true
	t.ForEach(func(key, _ lua.LValue) {
		count++
		num, ok := key.(lua.LNumber)
		if !ok || float64(num) < 1 || float64(num) != math.Trunc(float64(num)) {
			sequence = false
		}
	})
	if !sequence || count == 0 || t.MaxN() != count {
		return 0, false
	}
	return count, true
}

// toLua converts Go data into a Lua value owned by L.
func toLua(L *lua.LState, v interface{}) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return v
	case bool:
		return lua.LBool(v)
	case string:
		return lua.LString(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case int32:
		return lua.LNumber(v)
	case uint:
		return lua.LNumber(v)
	case uint64:
		return lua.LNumber(v)
	case float32:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case time.Duration:
		return lua.LString(v.String())
	case []string:
		t := L.CreateTable(len(v), 0)
		for _, s := range v {
			t.Append(lua.LString(s))
		}
		return t
	case []interface{}:
		t := L.CreateTable(len(v), 0)
		for _, item := range v {
			t.Append(toLua(L, item))
		}
		return t
	case plugindomain.Options:
		return mapToLua(L, v)
	case map[string]interface{}:
		return mapToLua(L, v)
	case map[string]string:
		t := L.CreateTable(0, len(v))
		for k, s := range v {
			t.RawSetString(k, lua.LString(s))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(v))
	}
}

func mapToLua(L *lua.LState, m map[string]interface{}) *lua.LTable {
	t := L.CreateTable(0, len(m))
	for k, item := range m {
		t.RawSetString(k, toLua(L, item))
	}
	return t
}

// flagsFromValue accepts either a list of {name, short, type, usage} tables
// or a map of name to type.
func flagsFromValue(raw interface{}) ([]plugindomain.FlagSpec, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		specs := make([]plugindomain.FlagSpec, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("flags[%d]: expected a table, got %T", i, item)
			}
			spec, err := flagFromMap(m)
			if err != nil {
				return nil, fmt.Errorf("flags[%d]: %w", i, err)
			}
			specs = append(specs, spec)
		}
		return specs, nil
	case map[string]interface{}:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)
		specs := make([]plugindomain.FlagSpec, 0, len(v))
		for _, name := range names {
			typ, ok := v[name].(string)
			if !ok {
				return nil, fmt.Errorf("flag %q: type must be a string", name)
			}
			spec := plugindomain.FlagSpec{Name: name, Type: plugindomain.FlagType(typ)}
			if err := spec.Validate(); err != nil {
				return nil, err
			}
			specs = append(specs, spec)
		}
		return specs, nil
	default:
		return nil, fmt.Errorf("flags: expected a list or a table, got %T", raw)
	}
}

func flagFromMap(m map[string]interface{}) (plugindomain.FlagSpec, error) {
	var spec plugindomain.FlagSpec
	for key, value := range m {
		s, ok := value.(string)
		if !ok {
			return spec, fmt.Errorf("field %q must be a string", key)
		}
		switch key {
		case "name":
			spec.Name = s
		case "short":
			spec.Short = s
		case "type":
			spec.Type = plugindomain.FlagType(s)
		case "usage":
			spec.Usage = s
		default:
			return spec, fmt.Errorf("unknown field %q", key)
		}
	}
	return spec, spec.Validate()
}
