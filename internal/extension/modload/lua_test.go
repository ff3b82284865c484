package modload

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModule(t *testing.T, code string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api.lua")
	require.NoError(t, os.WriteFile(path, []byte(code), 0o644))
	return path
}

func newLoader(t *testing.T) *LuaLoader {
	t.Helper()
	l := NewLuaLoader()
	t.Cleanup(l.Close)
	return l
}

type hookRecorder struct {
	filters   map[string]FilterHandler
	actions   map[string]ActionHandler
	inits     map[string]InitHandler
	schedules map[string]ScheduleHandler
}

func newHookRecorder() *hookRecorder {
	return &hookRecorder{
		filters:   make(map[string]FilterHandler),
		actions:   make(map[string]ActionHandler),
		inits:     make(map[string]InitHandler),
		schedules: make(map[string]ScheduleHandler),
	}
}

func (r *hookRecorder) api() HookAPI {
	return HookAPI{
		Filter:   func(event string, h FilterHandler) { r.filters[event] = h },
		Action:   func(event string, h ActionHandler) { r.actions[event] = h },
		Init:     func(event string, h InitHandler) { r.inits[event] = h },
		Schedule: func(expr string, h ScheduleHandler) { r.schedules[expr] = h },
	}
}

func TestLoadHookRegistersBindings(t *testing.T) {
	path := writeModule(t, `
return function(register, ctx)
	register.filter("items.create", function(payload, meta)
		return payload .. "-filtered"
	end)
	register.action("items.create", function(meta) end)
	register.init("routes.before", function() end)
	register.schedule("* * * * *", function() end)
end
`)

	cfg, err := newLoader(t).Load(path, KindHook, HostContext{})
	require.NoError(t, err)
	hook, ok := cfg.(HookConfig)
	require.True(t, ok)

	rec := newHookRecorder()
	require.NoError(t, hook.Register(rec.api()))
	assert.Len(t, rec.filters, 1)
	assert.Len(t, rec.actions, 1)
	assert.Len(t, rec.inits, 1)
	assert.Len(t, rec.schedules, 1)

	out, err := rec.filters["items.create"](context.Background(), "payload", nil)
	require.NoError(t, err)
	assert.Equal(t, "payload-filtered", out)
}

func TestFilterNilReturnKeepsPayload(t *testing.T) {
	path := writeModule(t, `
return function(register, ctx)
	register.filter("items.create", function(payload, meta) end)
end
`)

	cfg, err := newLoader(t).Load(path, KindHook, HostContext{})
	require.NoError(t, err)

	rec := newHookRecorder()
	require.NoError(t, cfg.(HookConfig).Register(rec.api()))

	out, err := rec.filters["items.create"](context.Background(), "original", nil)
	require.NoError(t, err)
	assert.Equal(t, "original", out)
}

func TestDefaultWrappedExportNormalized(t *testing.T) {
	bare := writeModule(t, `
return function(register, ctx)
	register.action("done", function(meta) end)
end
`)
	wrapped := writeModule(t, `
return { default = function(register, ctx)
	register.action("done", function(meta) end)
end }
`)

	l := newLoader(t)
	for _, path := range []string{bare, wrapped} {
		cfg, err := l.Load(path, KindHook, HostContext{})
		require.NoError(t, err)

		rec := newHookRecorder()
		require.NoError(t, cfg.(HookConfig).Register(rec.api()))
		assert.Len(t, rec.actions, 1)
	}
}

func TestHookContext(t *testing.T) {
	path := writeModule(t, `
return function(register, ctx)
	ctx.log("loading", "warn")
	ctx.emit("custom.ready", { source = ctx.env.mode })
	local schema = ctx.get_schema()
	ctx.log("collections " .. schema.version)
end
`)

	var logs []string
	var emitted map[string]any
	host := HostContext{
		Env: map[string]string{"mode": "development"},
		Log: func(level, message string) { logs = append(logs, level+":"+message) },
		Emit: func(event string, meta map[string]any) {
			emitted = map[string]any{"event": event, "meta": meta}
		},
		Schema: func() (map[string]any, error) {
			return map[string]any{"version": "7"}, nil
		},
	}

	cfg, err := newLoader(t).Load(path, KindHook, host)
	require.NoError(t, err)
	require.NoError(t, cfg.(HookConfig).Register(newHookRecorder().api()))

	assert.Equal(t, []string{"warn:loading", "info:collections 7"}, logs)
	require.NotNil(t, emitted)
	assert.Equal(t, "custom.ready", emitted["event"])
	assert.Equal(t, map[string]any{"source": "development"}, emitted["meta"])
}

func TestLoadEndpointBareHandler(t *testing.T) {
	path := writeModule(t, `
return function(router, ctx)
	router.get("/", function(req, res)
		res.send("hello")
	end)
	router.post("/items", function(req, res)
		res.status(201)
		res.json({ created = true, body = req.body })
	end)
end
`)

	cfg, err := newLoader(t).Load(path, KindEndpoint, HostContext{})
	require.NoError(t, err)
	endpoint, ok := cfg.(EndpointConfig)
	require.True(t, ok)
	assert.Empty(t, endpoint.ID)

	type route struct {
		method, pattern string
		handler         RouteHandler
	}
	var routes []route
	require.NoError(t, endpoint.Attach(func(method, pattern string, h RouteHandler) {
		routes = append(routes, route{method, pattern, h})
	}))
	require.Len(t, routes, 2)
	assert.Equal(t, http.MethodGet, routes[0].method)
	assert.Equal(t, "/", routes[0].pattern)

	resp, err := routes[0].handler(context.Background(), &Request{Method: http.MethodGet, Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "hello", string(resp.Body))

	resp, err = routes[1].handler(context.Background(), &Request{Method: http.MethodPost, Path: "/items", Body: `x`})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.JSONEq(t, `{"created":true,"body":"x"}`, string(resp.Body))
}

func TestLoadEndpointExplicitID(t *testing.T) {
	path := writeModule(t, `
return {
	id = "metrics",
	handler = function(router, ctx)
		router.all("/", function(req, res) res.send("ok") end)
	end,
}
`)

	cfg, err := newLoader(t).Load(path, KindEndpoint, HostContext{})
	require.NoError(t, err)
	assert.Equal(t, "metrics", cfg.(EndpointConfig).ID)
}

func TestLoadStorageDriverVerbatim(t *testing.T) {
	path := writeModule(t, `
return {
	driver = "s3",
	options = { bucket = "uploads", region = "eu-west-1" },
}
`)

	cfg, err := newLoader(t).Load(path, KindStorage, HostContext{})
	require.NoError(t, err)
	driver := cfg.(StorageConfig).Driver
	assert.Equal(t, "s3", driver["driver"])
	assert.Equal(t, map[string]any{"bucket": "uploads", "region": "eu-west-1"}, driver["options"])
}

func TestLoadOperation(t *testing.T) {
	path := writeModule(t, `
return {
	id = "double",
	handler = function(options)
		return options.value * 2
	end,
}
`)

	cfg, err := newLoader(t).Load(path, KindOperation, HostContext{})
	require.NoError(t, err)
	op := cfg.(OperationConfig)
	assert.Equal(t, "double", op.ID)

	out, err := op.Handler(context.Background(), map[string]any{"value": 21})
	require.NoError(t, err)
	assert.Equal(t, int64(42), out)
}

func TestBadExports(t *testing.T) {
	l := newLoader(t)

	hookAsTable := writeModule(t, `return { nothing = true }`)
	_, err := l.Load(hookAsTable, KindHook, HostContext{})
	require.ErrorIs(t, err, ErrBadExport)

	operationWithoutID := writeModule(t, `return { handler = function() end }`)
	_, err = l.Load(operationWithoutID, KindOperation, HostContext{})
	require.ErrorIs(t, err, ErrBadExport)

	storageAsFunction := writeModule(t, `return function() end`)
	_, err = l.Load(storageAsFunction, KindStorage, HostContext{})
	require.ErrorIs(t, err, ErrBadExport)
}

func TestLoadSyntaxError(t *testing.T) {
	path := writeModule(t, `return function( broken`)
	_, err := newLoader(t).Load(path, KindHook, HostContext{})
	require.Error(t, err)
}

func TestLoadRuntimeError(t *testing.T) {
	path := writeModule(t, `error("exploding module")`)
	_, err := newLoader(t).Load(path, KindHook, HostContext{})
	require.Error(t, err)
}

func TestHandlerErrorSurfaces(t *testing.T) {
	path := writeModule(t, `
return function(register, ctx)
	register.filter("x", function(payload, meta)
		error("handler failure")
	end)
end
`)

	cfg, err := newLoader(t).Load(path, KindHook, HostContext{})
	require.NoError(t, err)

	rec := newHookRecorder()
	require.NoError(t, cfg.(HookConfig).Register(rec.api()))

	out, err := rec.filters["x"](context.Background(), "payload", nil)
	require.Error(t, err)
	assert.Equal(t, "payload", out)
}

func TestCloseInvalidatesHandlers(t *testing.T) {
	path := writeModule(t, `
return function(register, ctx)
	register.filter("x", function(payload, meta) return payload end)
end
`)

	l := NewLuaLoader()
	cfg, err := l.Load(path, KindHook, HostContext{})
	require.NoError(t, err)

	rec := newHookRecorder()
	require.NoError(t, cfg.(HookConfig).Register(rec.api()))

	l.Close()

	_, err = rec.filters["x"](context.Background(), "payload", nil)
	require.ErrorIs(t, err, ErrRuntimeClosed)

	_, err = l.Load(path, KindHook, HostContext{})
	require.ErrorIs(t, err, ErrClosed)
}
