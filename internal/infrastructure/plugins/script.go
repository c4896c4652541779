package plugins

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	configdomain "kilometers.ai/boot/internal/core/domain/config"
	plugindomain "kilometers.ai/boot/internal/core/domain/plugin"
	configports "kilometers.ai/boot/internal/core/ports/config"
	"kilometers.ai/boot/internal/infrastructure/server"
)

var errScriptClosed = errors.New("script state is closed")

// ScriptStrategy evaluates Lua plugin modules. The chunk runs once at load
// time and must return the module value.
type ScriptStrategy struct {
	env configports.Env
}

func NewScriptStrategy(env configports.Env) *ScriptStrategy {
	return &ScriptStrategy{env: env}
}

func (s *ScriptStrategy) Format() plugindomain.Format { return plugindomain.FormatScript }

// Load compiles and runs the chunk at path. Only a compile failure is
// reported as a format mismatch; a chunk that compiles and then raises is a
// load error.
func (s *ScriptStrategy) Load(ctx context.Context, path string) (*Descriptor, error) {
	vm := newScriptVM(path, s.env)

	chunk, err := vm.L.LoadFile(path)
	if err != nil {
		vm.close()
		var apiErr *lua.ApiError
		if errors.As(err, &apiErr) && apiErr.Type == lua.ApiErrorSyntax {
			return nil, fmt.Errorf("%w: %v", plugindomain.ErrModuleFormat, apiErr.Object)
		}
		return nil, err
	}

	var desc *Descriptor
	err = vm.call(ctx, chunk, 1, nil, func(ret []lua.LValue) error {
		var err error
		desc, err = vm.describe(ret[0])
		return err
	})
	if err != nil {
		vm.close()
		return nil, fmt.Errorf("evaluate script: %w", scriptError(err))
	}
	desc.Path = path
	desc.Format = plugindomain.FormatScript
	desc.release = vm.close
	return desc, nil
}

// scriptVM owns one interpreter. Every entry into Lua goes through call,
// which serializes access.
type scriptVM struct {
	mu     sync.Mutex
	L      *lua.LState
	path   string
	closed bool
}

func newScriptVM(path string, env configports.Env) *scriptVM {
	vm := &scriptVM{L: lua.NewState(), path: path}
	L := vm.L

	osTable, _ := L.GetGlobal("os").(*lua.LTable)
	if osTable != nil {
		L.SetField(osTable, "getenv", L.NewFunction(func(L *lua.LState) int {
			if v, ok := env.Lookup(L.CheckString(1)); ok {
				L.Push(lua.LString(v))
			} else {
				L.Push(lua.LNil)
			}
			return 1
		}))
		L.SetField(osTable, "setenv", L.NewFunction(func(L *lua.LState) int {
			if err := env.Set(L.CheckString(1), L.CheckString(2)); err != nil {
				L.RaiseError("setenv: %v", err)
			}
			return 0
		}))
		L.SetField(osTable, "exit", lua.LNil)
	}

	if pkg, ok := L.GetGlobal("package").(*lua.LTable); ok {
		search := filepath.Join(filepath.Dir(path), "?.lua")
		if existing := L.GetField(pkg, "path").String(); existing != "" {
			search += ";" + existing
		}
		L.SetField(pkg, "path", lua.LString(search))
	}

	registerAppType(vm)
	return vm
}

// call invokes fn with the arguments built by args. Results are handed to
// decode, padded to nret, while the interpreter is still locked.
func (vm *scriptVM) call(ctx context.Context, fn *lua.LFunction, nret int, args func(L *lua.LState) []lua.LValue, decode func(ret []lua.LValue) error) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.closed {
		return errScriptClosed
	}

	L := vm.L
	L.SetContext(ctx)
	defer L.RemoveContext()

	var in []lua.LValue
	if args != nil {
		in = args(L)
	}

	top := L.GetTop()
	defer L.SetTop(top)
	if err := L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, in...); err != nil {
		return err
	}
	if decode == nil {
		return nil
	}
	ret := make([]lua.LValue, nret)
	for i := range ret {
		ret[i] = L.Get(top + 1 + i)
	}
	return decode(ret)
}

func (vm *scriptVM) close() error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if !vm.closed {
		vm.closed = true
		vm.L.Close()
	}
	return nil
}

// describe interprets the value returned by the chunk: either a plugin
// function or a table carrying one, optionally wrapped as {default = ...}.
func (vm *scriptVM) describe(mod lua.LValue) (*Descriptor, error) {
	if tbl, ok := mod.(*lua.LTable); ok {
		if def := tbl.RawGetString("default"); def != lua.LNil {
			mod = def
		}
	}

	desc := &Descriptor{}
	switch m := mod.(type) {
	case *lua.LFunction:
		desc.Plugin = vm.pluginFunc(m)
	case *lua.LTable:
		fn, ok := m.RawGetString("plugin").(*lua.LFunction)
		if !ok {
			return nil, fmt.Errorf("module table has no plugin function")
		}
		desc.Plugin = vm.pluginFunc(fn)

		if name, ok := m.RawGetString("name").(lua.LString); ok {
			desc.Name = string(name)
		}

		switch opts := m.RawGetString("options").(type) {
		case *lua.LNilType:
		case *lua.LFunction:
			desc.Options = vm.optionsFunc(opts)
		case *lua.LTable:
			static, ok := fromLua(opts).(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("options must be a table of named values")
			}
			desc.Options = staticOptions(static)
		default:
			return nil, fmt.Errorf("options must be a table or a function, got %s", opts.Type())
		}

		if raw := m.RawGetString("logger"); raw != lua.LNil {
			fields, ok := fromLua(raw).(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("logger must be a table of named values")
			}
			cfg, err := configdomain.LoggerConfigFromMap(fields)
			if err != nil {
				return nil, fmt.Errorf("logger: %w", err)
			}
			desc.Logger = &cfg
		}

		flags, err := flagsFromValue(fromLua(m.RawGetString("flags")))
		if err != nil {
			return nil, err
		}
		desc.Flags = flags
	default:
		return nil, fmt.Errorf("module must return a function or a table, got %s", mod.Type())
	}

	desc.Name = moduleName(vm.path, desc.Name)
	return desc, nil
}

func (vm *scriptVM) pluginFunc(fn *lua.LFunction) server.PluginFunc {
	return func(ctx context.Context, app *server.App, opts plugindomain.Options) error {
		err := vm.call(ctx, fn, 0, func(L *lua.LState) []lua.LValue {
			return []lua.LValue{newAppValue(L, app), toLua(L, opts)}
		}, nil)
		return scriptError(err)
	}
}

func (vm *scriptVM) optionsFunc(fn *lua.LFunction) OptionsFactory {
	return func(ctx context.Context, toolArgs []string) (plugindomain.Options, error) {
		opts := plugindomain.Options{}
		err := vm.call(ctx, fn, 1, func(L *lua.LState) []lua.LValue {
			return []lua.LValue{toLua(L, toolArgs)}
		}, func(ret []lua.LValue) error {
			if ret[0] == lua.LNil {
				return nil
			}
			m, ok := fromLua(ret[0]).(map[string]interface{})
			if !ok {
				return fmt.Errorf("options function must return a table of named values")
			}
			opts = m
			return nil
		})
		if err != nil {
			return nil, scriptError(err)
		}
		return opts, nil
	}
}

func staticOptions(m map[string]interface{}) OptionsFactory {
	return func(context.Context, []string) (plugindomain.Options, error) {
		return plugindomain.Options(m).Clone(), nil
	}
}

// scriptError drops the Lua stack trace from raised errors.
func scriptError(err error) error {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		msg := apiErr.Object.String()
		if apiErr.Cause != nil {
			return fmt.Errorf("%s: %w", strings.TrimSpace(msg), apiErr.Cause)
		}
		return errors.New(strings.TrimSpace(msg))
	}
	return err
}
