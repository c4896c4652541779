package plugins

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	lua "github.com/yuin/gopher-lua"

	"kilometers.ai/boot/internal/infrastructure/logging"
	"kilometers.ai/boot/internal/infrastructure/server"
)

const appTypeName = "kmboot.app"

// registerAppType installs the metatable backing the app value that plugin
// functions receive as their first argument.
func registerAppType(vm *scriptVM) {
	L := vm.L
	mt := L.NewTypeMetatable(appTypeName)
	methods := map[string]lua.LGFunction{
		"decorate":      appDecorate,
		"has_decorator": appHasDecorator,
		"decoration":    appDecoration,
		"prefix":        appPrefix,
		"log_level":     appLogLevel,
		"log":           appLog,
		"route": func(L *lua.LState) int {
			return vm.addRoute(L, strings.ToUpper(L.CheckString(2)), 3)
		},
	}
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		methods[strings.ToLower(method)] = func(L *lua.LState) int {
			return vm.addRoute(L, method, 2)
		}
	}
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), methods))
}

func newAppValue(L *lua.LState, app *server.App) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = app
	L.SetMetatable(ud, L.GetTypeMetatable(appTypeName))
	return ud
}

func checkApp(L *lua.LState) *server.App {
	ud := L.CheckUserData(1)
	app, ok := ud.Value.(*server.App)
	if !ok {
		L.ArgError(1, "app expected")
	}
	return app
}

func appDecorate(L *lua.LState) int {
	app := checkApp(L)
	if err := app.Decorate(L.CheckString(2), fromLua(L.Get(3))); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func appHasDecorator(L *lua.LState) int {
	L.Push(lua.LBool(checkApp(L).HasDecorator(L.CheckString(2))))
	return 1
}

func appDecoration(L *lua.LState) int {
	v, _ := checkApp(L).Decoration(L.CheckString(2))
	L.Push(toLua(L, v))
	return 1
}

func appPrefix(L *lua.LState) int {
	L.Push(lua.LString(checkApp(L).Prefix()))
	return 1
}

func appLogLevel(L *lua.LState) int {
	L.Push(lua.LString(checkApp(L).LogLevel()))
	return 1
}

// app:log(level, msg[, fields])
func appLog(L *lua.LState) int {
	app := checkApp(L)
	lvl, err := logging.ParseLevel(L.CheckString(2))
	if err != nil {
		L.ArgError(2, err.Error())
	}
	msg := L.CheckString(3)

	var args []interface{}
	if fields, ok := fromLua(L.Get(4)).(map[string]interface{}); ok {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			args = append(args, slog.Any(k, fields[k]))
		}
	}
	app.Log().Log(L.Context(), lvl, msg, args...)
	return 0
}

// addRoute reads (path, handler) starting at argument pos.
func (vm *scriptVM) addRoute(L *lua.LState, method string, pos int) int {
	app := checkApp(L)
	path := L.CheckString(pos)
	fn := L.CheckFunction(pos + 1)
	if err := app.Route(method, path, vm.handler(app, fn)); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

// handler adapts a Lua function to HTTP. The function receives a request
// table and returns (body[, status]). Strings are sent as text, nil as an
// empty body, anything else as JSON.
func (vm *scriptVM) handler(app *server.App, fn *lua.LFunction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				server.WriteError(w, http.StatusRequestEntityTooLarge, "Request body is too large")
				return
			}
			server.WriteError(w, http.StatusBadRequest, "Could not read request body")
			return
		}

		var reply scriptReply
		err = vm.call(r.Context(), fn, 2, func(L *lua.LState) []lua.LValue {
			return []lua.LValue{requestTable(L, r, body)}
		}, func(ret []lua.LValue) error {
			reply = newScriptReply(ret[0], ret[1])
			return nil
		})
		if err != nil {
			app.Log().ErrorContext(r.Context(), "script handler failed", "error", scriptError(err), "url", r.URL.RequestURI())
			server.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		reply.write(w)
	}
}

func requestTable(L *lua.LState, r *http.Request, body []byte) *lua.LTable {
	req := L.NewTable()
	req.RawSetString("method", lua.LString(r.Method))
	req.RawSetString("path", lua.LString(r.URL.Path))
	req.RawSetString("body", lua.LString(body))

	query := L.NewTable()
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query.RawSetString(k, lua.LString(v[0]))
		}
	}
	req.RawSetString("query", query)

	headers := L.NewTable()
	for k, v := range r.Header {
		if len(v) > 0 {
			headers.RawSetString(strings.ToLower(k), lua.LString(v[0]))
		}
	}
	req.RawSetString("headers", headers)

	params := L.NewTable()
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, k := range rctx.URLParams.Keys {
			if k != "*" && i < len(rctx.URLParams.Values) {
				params.RawSetString(k, lua.LString(rctx.URLParams.Values[i]))
			}
		}
	}
	req.RawSetString("params", params)

	if len(body) > 0 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var decoded interface{}
		if json.Unmarshal(body, &decoded) == nil {
			req.RawSetString("json", toLua(L, decoded))
		}
	}
	return req
}

type scriptReply struct {
	status int
	kind   lua.LValueType
	text   string
	data   interface{}
}

func newScriptReply(body, status lua.LValue) scriptReply {
	reply := scriptReply{status: http.StatusOK, kind: body.Type()}
	if n, ok := status.(lua.LNumber); ok && n >= 100 && n <= 999 {
		reply.status = int(n)
	}
	switch b := body.(type) {
	case *lua.LNilType:
	case lua.LString:
		reply.text = string(b)
	default:
		reply.data = fromLua(b)
	}
	return reply
}

func (r scriptReply) write(w http.ResponseWriter) {
	switch r.kind {
	case lua.LTNil:
		w.WriteHeader(r.status)
	case lua.LTString:
		server.WriteText(w, r.status, r.text)
	default:
		server.WriteJSON(w, r.status, r.data)
	}
}
