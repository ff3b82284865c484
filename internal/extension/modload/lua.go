package modload

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// LuaLoader loads Lua extension modules. Each loaded module gets its own
// sandboxed runtime; Close discards every runtime of the cycle at once.
type LuaLoader struct {
	mu       sync.Mutex
	runtimes []*runtime
	closed   bool
}

// NewLuaLoader creates a loader for one load cycle.
func NewLuaLoader() *LuaLoader {
	return &LuaLoader{}
}

// Load implements Loader.
func (l *LuaLoader) Load(path string, kind Kind, host HostContext) (Config, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	rt := newRuntime()
	l.runtimes = append(l.runtimes, rt)
	l.mu.Unlock()

	export, err := rt.evalFile(path)
	if err != nil {
		return nil, err
	}
	export = unwrapDefault(export)

	switch kind {
	case KindHook:
		return buildHookConfig(rt, export, host, path)
	case KindEndpoint:
		return buildEndpointConfig(rt, export, host, path)
	case KindStorage:
		return buildStorageConfig(export, path)
	case KindOperation:
		return buildOperationConfig(rt, export, path)
	default:
		return nil, fmt.Errorf("load %s: unknown module kind %d", path, kind)
	}
}

// Close implements Loader.
func (l *LuaLoader) Close() {
	l.mu.Lock()
	runtimes := l.runtimes
	l.runtimes = nil
	l.closed = true
	l.mu.Unlock()

	for _, rt := range runtimes {
		rt.close()
	}
}

// unwrapDefault normalizes a module that exported `{ default = x }` into x,
// so every consumer sees one shape regardless of export style.
func unwrapDefault(export lua.LValue) lua.LValue {
	if t, ok := export.(*lua.LTable); ok {
		if d := t.RawGetString("default"); d != lua.LNil {
			return d
		}
	}
	return export
}

func buildHookConfig(rt *runtime, export lua.LValue, host HostContext, path string) (Config, error) {
	fn, ok := export.(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: hook module %s must export a function", ErrBadExport, path)
	}

	register := func(api HookAPI) error {
		rt.mu.Lock()
		reg := rt.L.NewTable()
		reg.RawSetString("filter", rt.L.NewFunction(func(L *lua.LState) int {
			event := L.CheckString(1)
			handler := L.CheckFunction(2)
			api.Filter(event, wrapFilter(rt, handler))
			return 0
		}))
		reg.RawSetString("action", rt.L.NewFunction(func(L *lua.LState) int {
			event := L.CheckString(1)
			handler := L.CheckFunction(2)
			api.Action(event, wrapAction(rt, handler))
			return 0
		}))
		reg.RawSetString("init", rt.L.NewFunction(func(L *lua.LState) int {
			event := L.CheckString(1)
			handler := L.CheckFunction(2)
			api.Init(event, wrapNullary(rt, handler))
			return 0
		}))
		reg.RawSetString("schedule", rt.L.NewFunction(func(L *lua.LState) int {
			expression := L.CheckString(1)
			handler := L.CheckFunction(2)
			api.Schedule(expression, ScheduleHandler(wrapNullary(rt, handler)))
			return 0
		}))
		ctxTable := contextTable(rt.L, host)
		rt.mu.Unlock()

		_, err := rt.call(fn, reg, ctxTable)
		return err
	}

	return HookConfig{Register: register}, nil
}

func buildEndpointConfig(rt *runtime, export lua.LValue, host HostContext, path string) (Config, error) {
	var id string
	var fn *lua.LFunction

	switch v := export.(type) {
	case *lua.LFunction:
		fn = v
	case *lua.LTable:
		if s, ok := v.RawGetString("id").(lua.LString); ok {
			id = string(s)
		}
		handler, ok := v.RawGetString("handler").(*lua.LFunction)
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: endpoint module %s must export a function or {id, handler}", ErrBadExport, path)
		}
		fn = handler
	default:
		return nil, fmt.Errorf("%w: endpoint module %s must export a function or {id, handler}", ErrBadExport, path)
	}

	attach := func(add RouteAdder) error {
		rt.mu.Lock()
		router := rt.L.NewTable()
		for name, method := range map[string]string{
			"get":    http.MethodGet,
			"post":   http.MethodPost,
			"put":    http.MethodPut,
			"patch":  http.MethodPatch,
			"delete": http.MethodDelete,
			"all":    "",
		} {
			m := method
			router.RawSetString(name, rt.L.NewFunction(func(L *lua.LState) int {
				pattern := L.CheckString(1)
				handler := L.CheckFunction(2)
				add(m, pattern, wrapRoute(rt, handler))
				return 0
			}))
		}
		ctxTable := contextTable(rt.L, host)
		rt.mu.Unlock()

		_, err := rt.call(fn, router, ctxTable)
		return err
	}

	return EndpointConfig{ID: id, Attach: attach}, nil
}

func buildStorageConfig(export lua.LValue, path string) (Config, error) {
	t, ok := export.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: storage module %s must export a driver table", ErrBadExport, path)
	}
	driver, ok := toGo(t).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: storage module %s must export a driver table", ErrBadExport, path)
	}
	return StorageConfig{Driver: driver}, nil
}

func buildOperationConfig(rt *runtime, export lua.LValue, path string) (Config, error) {
	t, ok := export.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: operation module %s must export {id, handler}", ErrBadExport, path)
	}
	id, _ := t.RawGetString("id").(lua.LString)
	fn, ok := t.RawGetString("handler").(*lua.LFunction)
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: operation module %s must export {id, handler}", ErrBadExport, path)
	}

	handler := func(_ context.Context, options map[string]any) (any, error) {
		return rt.callGo(fn, options)
	}
	return OperationConfig{ID: string(id), Handler: handler}, nil
}

// wrapFilter adapts a Lua filter function. A nil return keeps the original
// payload, mirroring a handler that only inspects.
func wrapFilter(rt *runtime, fn *lua.LFunction) FilterHandler {
	return func(_ context.Context, payload any, meta map[string]any) (any, error) {
		out, err := rt.callGo(fn, payload, meta)
		if err != nil {
			return payload, err
		}
		if out == nil {
			return payload, nil
		}
		return out, nil
	}
}

func wrapAction(rt *runtime, fn *lua.LFunction) ActionHandler {
	return func(_ context.Context, meta map[string]any) error {
		_, err := rt.callGo(fn, meta)
		return err
	}
}

func wrapNullary(rt *runtime, fn *lua.LFunction) InitHandler {
	return func(_ context.Context) error {
		_, err := rt.callGo(fn)
		return err
	}
}

// wrapRoute adapts a Lua route handler of the form function(req, res).
func wrapRoute(rt *runtime, fn *lua.LFunction) RouteHandler {
	return func(_ context.Context, req *Request) (*Response, error) {
		rt.mu.Lock()
		if rt.closed {
			rt.mu.Unlock()
			return nil, ErrRuntimeClosed
		}

		L := rt.L
		reqTable := L.NewTable()
		reqTable.RawSetString("method", lua.LString(req.Method))
		reqTable.RawSetString("path", lua.LString(req.Path))
		reqTable.RawSetString("body", lua.LString(req.Body))
		reqTable.RawSetString("params", toLua(L, req.Params))
		reqTable.RawSetString("query", toLua(L, req.Query))

		resp := &Response{Status: http.StatusOK, ContentType: "text/plain; charset=utf-8"}
		resTable := L.NewTable()
		resTable.RawSetString("status", L.NewFunction(func(L *lua.LState) int {
			resp.Status = int(L.CheckNumber(1))
			return 0
		}))
		resTable.RawSetString("send", L.NewFunction(func(L *lua.LState) int {
			resp.Body = []byte(L.CheckString(1))
			return 0
		}))
		resTable.RawSetString("json", L.NewFunction(func(L *lua.LState) int {
			data, err := json.Marshal(toGo(L.CheckAny(1)))
			if err != nil {
				L.RaiseError("encode response: %v", err)
				return 0
			}
			resp.ContentType = "application/json"
			resp.Body = data
			return 0
		}))

		err := rt.protect(func() error {
			return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, reqTable, resTable)
		})
		rt.mu.Unlock()

		if err != nil {
			return nil, err
		}
		return resp, nil
	}
}

// contextTable builds the Lua-facing view of the host context. Must be
// called with the runtime lock held.
func contextTable(L *lua.LState, host HostContext) *lua.LTable {
	ctx := L.NewTable()
	ctx.RawSetString("env", toLua(L, host.Env))
	ctx.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		message := L.CheckString(1)
		level := L.OptString(2, "info")
		if host.Log != nil {
			host.Log(level, message)
		}
		return 0
	}))
	ctx.RawSetString("emit", L.NewFunction(func(L *lua.LState) int {
		event := L.CheckString(1)
		var meta map[string]any
		if t := L.OptTable(2, nil); t != nil {
			meta, _ = toGo(t).(map[string]any)
		}
		if host.Emit != nil {
			host.Emit(event, meta)
		}
		return 0
	}))
	ctx.RawSetString("get_schema", L.NewFunction(func(L *lua.LState) int {
		if host.Schema == nil {
			L.Push(lua.LNil)
			return 1
		}
		snapshot, err := host.Schema()
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(toLua(L, snapshot))
		return 1
	}))
	return ctx
}
