package extension

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/latticehq/lattice/internal/bus"
	"github.com/latticehq/lattice/internal/config"
	"github.com/latticehq/lattice/internal/fswatch"
	"github.com/latticehq/lattice/internal/storage"
	"github.com/latticehq/lattice/internal/workflow"
)

func testConfig(root string) *config.Config {
	return &config.Config{
		ExtensionsPath: root,
		ManifestPath:   filepath.Join(root, "lattice.yaml"),
		ServeApp:       false,
		Mode:           config.ModeProduction,
		PublicURL:      "http://localhost:8055",
		AssetsPath:     filepath.Join(root, "assets"),
	}
}

func newTestManager(t *testing.T, cfg *config.Config) *Manager {
	t.Helper()
	m := NewManager(cfg, Deps{
		HostBus:      bus.New(),
		Storage:      storage.NewRegistry(),
		Workflow:     workflow.NewRegistry(),
		Logger:       zap.NewNop(),
		WatchOptions: []fswatch.Option{fswatch.WithInterval(10 * time.Millisecond)},
	})
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m
}

func luaExt(t *testing.T, root string, typ Type, name, code string) {
	t.Helper()
	writeFile(t, filepath.Join(root, typ.Plural(), name, "api.lua"), code)
	if typ.Hybrid() {
		writeFile(t, filepath.Join(root, typ.Plural(), name, "app.js"), "export default {};")
	}
}

const goodHook = `
return function(register, ctx)
	register.filter("items.create", function(payload, meta)
		return payload .. "!"
	end)
	register.action("items.create", function(meta) end)
end
`

const goodEndpoint = `
return function(router, ctx)
	router.get("/", function(req, res)
		res.send("pong")
	end)
end
`

func TestManagerLoadIsolatesFailures(t *testing.T) {
	root := t.TempDir()
	luaExt(t, root, TypeHook, "good", goodHook)
	luaExt(t, root, TypeHook, "broken", `return { nothing = true }`)
	luaExt(t, root, TypeEndpoint, "ping", goodEndpoint)
	luaExt(t, root, TypeStorage, "s3", `return { driver = "s3" }`)
	luaExt(t, root, TypeOperation, "double", `
return { id = "double", handler = function(options) return options.value * 2 end }
`)

	cfg := testConfig(root)
	m := newTestManager(t, cfg)
	require.NoError(t, m.Initialize(context.Background(), WithWatch(false)))

	// All five discovered; the broken hook contributes no bindings.
	assert.Len(t, m.Names(), 5)
	reg := m.Registry()
	assert.Len(t, reg.Hooks, 1)
	assert.Len(t, reg.Endpoints, 1)
	assert.Len(t, reg.Storages, 1)
	assert.Len(t, reg.Operations, 1)
	assert.Equal(t, []string{"filter:items.create", "action:items.create"}, reg.Hooks[0].Events)

	assert.Equal(t, 2, m.deps.HostBus.Count())
	assert.Equal(t, 1, m.deps.Storage.Count())
	// Built-ins plus the one user operation.
	assert.Equal(t, 5, m.deps.Workflow.Count())

	out, err := m.deps.HostBus.EmitFilter(context.Background(), "items.create", "payload", nil)
	require.NoError(t, err)
	assert.Equal(t, "payload!", out)
}

func TestManagerUnloadRemovesEverything(t *testing.T) {
	root := t.TempDir()
	luaExt(t, root, TypeHook, "good", goodHook)
	luaExt(t, root, TypeStorage, "s3", `return { driver = "s3" }`)

	m := newTestManager(t, testConfig(root))
	require.NoError(t, m.Initialize(context.Background(), WithWatch(false)))
	require.NoError(t, m.Unload(context.Background()))

	assert.False(t, m.Loaded())
	assert.Empty(t, m.Names())
	assert.Equal(t, APIRegistry{}, m.Registry())
	assert.Zero(t, m.deps.HostBus.Count())
	assert.Zero(t, m.deps.Storage.Count())
	assert.Zero(t, m.deps.Workflow.Count())

	// Unloading twice is safe.
	require.NoError(t, m.Unload(context.Background()))
}

func TestManagerBuiltinsPrecedeUserOperations(t *testing.T) {
	root := t.TempDir()
	luaExt(t, root, TypeOperation, "custom", `
return { id = "custom", handler = function(options) return true end }
`)
	// Colliding with a built-in id loses; first registration wins.
	luaExt(t, root, TypeOperation, "shadow", `
return { id = "log", handler = function(options) return "shadowed" end }
`)

	m := newTestManager(t, testConfig(root))
	require.NoError(t, m.Initialize(context.Background(), WithWatch(false)))

	ids := m.deps.Workflow.IDs()
	require.GreaterOrEqual(t, len(ids), 5)
	assert.Equal(t, []string{"log", "sleep", "transform", "condition"}, ids[:4])
	assert.Contains(t, ids, "custom")

	handler, ok := m.deps.Workflow.Lookup("log")
	require.True(t, ok)
	out, err := handler(context.Background(), map[string]any{"message": "m"})
	require.NoError(t, err)
	assert.NotEqual(t, "shadowed", out)
}

func TestManagerEndpointRouting(t *testing.T) {
	root := t.TempDir()
	luaExt(t, root, TypeEndpoint, "ping", goodEndpoint)
	luaExt(t, root, TypeEndpoint, "named", `
return {
	id = "metrics",
	handler = function(router, ctx)
		router.get("/stats", function(req, res)
			res.json({ visits = 3, q = req.query.range })
		end)
	end,
}
`)

	m := newTestManager(t, testConfig(root))
	require.NoError(t, m.Initialize(context.Background(), WithWatch(false)))
	handler := m.Router()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/stats?range=7d", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"visits":3,"q":"7d"}`, rec.Body.String())

	// After unload the stable handle serves nothing.
	require.NoError(t, m.Unload(context.Background()))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManagerReloadPicksUpChanges(t *testing.T) {
	root := t.TempDir()
	luaExt(t, root, TypeHook, "first", goodHook)

	m := newTestManager(t, testConfig(root))
	require.NoError(t, m.Initialize(context.Background(), WithWatch(false)))
	require.Equal(t, []string{"first"}, m.Names())

	luaExt(t, root, TypeHook, "second", goodHook)
	m.Reload()

	require.Eventually(t, func() bool {
		return len(m.Names(TypeHook)) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, m.Names())
	assert.Equal(t, 4, m.deps.HostBus.Count())
}

func TestManagerReloadWhileUnloadedIsNoOp(t *testing.T) {
	root := t.TempDir()
	m := newTestManager(t, testConfig(root))
	require.NoError(t, m.Initialize(context.Background(), WithWatch(false)))
	require.NoError(t, m.Unload(context.Background()))

	m.Reload()
	time.Sleep(50 * time.Millisecond)
	assert.False(t, m.Loaded())
}

func TestManagerReloadBurstCoalesces(t *testing.T) {
	root := t.TempDir()
	luaExt(t, root, TypeHook, "only", goodHook)

	m := newTestManager(t, testConfig(root))
	require.NoError(t, m.Initialize(context.Background(), WithWatch(false)))

	for i := 0; i < 50; i++ {
		m.Reload()
	}

	require.Eventually(t, func() bool { return m.Loaded() }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"only"}, m.Names())
	assert.Equal(t, 2, m.deps.HostBus.Count())
}

func TestManagerWatcherTriggersReload(t *testing.T) {
	root := t.TempDir()
	luaExt(t, root, TypeHook, "first", goodHook)

	m := newTestManager(t, testConfig(root))
	require.NoError(t, m.Initialize(context.Background(), WithWatch(true)))
	time.Sleep(50 * time.Millisecond)

	luaExt(t, root, TypeHook, "second", goodHook)
	require.Eventually(t, func() bool {
		return len(m.Names(TypeHook)) == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestManagerSchedules(t *testing.T) {
	root := t.TempDir()
	luaExt(t, root, TypeHook, "cron", `
return function(register, ctx)
	register.schedule("*/5 * * * *", function() end)
	register.schedule("definitely not cron", function() end)
end
`)

	m := newTestManager(t, testConfig(root))
	require.NoError(t, m.Initialize(context.Background(), WithWatch(false)))

	// The invalid expression is logged and skipped.
	assert.Equal(t, 1, m.scheduler.Count())
	reg := m.Registry()
	require.Len(t, reg.Hooks, 1)
	assert.Equal(t, []string{"schedule:*/5 * * * *"}, reg.Hooks[0].Events)

	require.NoError(t, m.Unload(context.Background()))
	assert.Zero(t, m.scheduler.Count())
}

func TestManagerEmitterLifetime(t *testing.T) {
	root := t.TempDir()
	luaExt(t, root, TypeHook, "announcer", `
return function(register, ctx)
	ctx.emit("announcer.ready", { ok = true })
end
`)

	m := newTestManager(t, testConfig(root))

	received := make(chan bus.Meta, 1)
	m.emitter.OnAction("announcer.ready", func(_ context.Context, meta bus.Meta) {
		received <- meta
	})

	require.NoError(t, m.Initialize(context.Background(), WithWatch(false)))
	select {
	case meta := <-received:
		assert.Equal(t, bus.Meta{"ok": true}, meta)
	case <-time.After(time.Second):
		t.Fatal("emitter event not observed")
	}

	// Unload resets the per-cycle emitter wholesale.
	require.NoError(t, m.Unload(context.Background()))
	assert.Zero(t, m.emitter.Count())
}

func TestManagerAppBundles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "panels", "chart", "app.js"),
		`export default { id: "chart" };`)

	cfg := testConfig(root)
	cfg.ServeApp = true
	m := newTestManager(t, cfg)
	require.NoError(t, m.Initialize(context.Background(), WithWatch(false)))

	source, ok := m.AppBundle(TypePanel)
	require.True(t, ok)
	assert.Contains(t, source, "chart")

	require.NoError(t, m.Unload(context.Background()))
	_, ok = m.AppBundle(TypePanel)
	assert.False(t, ok)
}

func TestManagerShutdown(t *testing.T) {
	root := t.TempDir()
	luaExt(t, root, TypeHook, "only", goodHook)

	m := newTestManager(t, testConfig(root))
	require.NoError(t, m.Initialize(context.Background(), WithWatch(false)))

	m.Shutdown(context.Background())
	assert.False(t, m.Loaded())
	assert.Zero(t, m.deps.HostBus.Count())
	assert.ErrorIs(t, m.Initialize(context.Background()), ErrClosed)
	assert.ErrorIs(t, m.Load(context.Background()), ErrClosed)
}
