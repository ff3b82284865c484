package extension

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/latticehq/lattice/internal/bus"
	"github.com/latticehq/lattice/internal/config"
	"github.com/latticehq/lattice/internal/extension/modload"
	"github.com/latticehq/lattice/internal/fswatch"
	"github.com/latticehq/lattice/internal/schedule"
	"github.com/latticehq/lattice/internal/schema"
	"github.com/latticehq/lattice/internal/services"
	"github.com/latticehq/lattice/internal/storage"
	"github.com/latticehq/lattice/internal/workflow"
)

// Deps are the host collaborators the extension runtime wires against.
type Deps struct {
	Services services.Registry
	Database *bbolt.DB
	HostBus  *bus.Bus
	Storage  *storage.Registry
	Workflow *workflow.Registry
	Schema   schema.Provider
	Logger   *zap.Logger

	// NewLoader creates the module loader for one load cycle. Defaults to
	// the Lua loader.
	NewLoader func() modload.Loader

	// WatchOptions tune the underlying file watcher.
	WatchOptions []fswatch.Option
}

// runtimeOptions are immutable for the process lifetime except via explicit
// re-initialization.
type runtimeOptions struct {
	schedule bool
	watch    bool
}

// Option configures Initialize.
type Option func(*runtimeOptions)

// WithScheduling toggles execution of scheduled hook handlers.
func WithScheduling(enabled bool) Option {
	return func(o *runtimeOptions) { o.schedule = enabled }
}

// WithWatch toggles the hot reload watcher.
func WithWatch(enabled bool) Option {
	return func(o *runtimeOptions) { o.watch = enabled }
}

// Manager is the lifecycle controller: it owns the discovered extension set
// and the four registries, orchestrates load/unload/reload as whole-cycle
// operations, and is the single source of truth for whether the extension
// system is active.
type Manager struct {
	mu sync.Mutex

	cfg  *config.Config
	deps Deps
	log  *zap.Logger

	ctx       *Context
	emitter   *bus.Bus
	router    *EndpointRouter
	discovery *Discovery
	bundler   *Bundler
	scheduler *schedule.Scheduler

	hooks      *hookRegistrar
	endpoints  *endpointRegistrar
	storages   *storageRegistrar
	operations *operationRegistrar

	queue   *jobQueue
	watcher *ReloadWatcher

	// pending marks a reload queued but not yet executing; further requests
	// coalesce into it.
	pending atomic.Bool

	options     runtimeOptions
	loaded      bool
	closed      bool
	loader      modload.Loader
	descriptors []Descriptor
	bundles     map[Type]string
}

// NewManager creates a manager over the host collaborators. Initialize must
// be called before any lifecycle operation.
func NewManager(cfg *config.Config, deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.NewLoader == nil {
		deps.NewLoader = func() modload.Loader { return modload.NewLuaLoader() }
	}

	m := &Manager{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Logger,
		emitter: bus.New(),
		router:  NewEndpointRouter(),
	}
	m.discovery = NewDiscovery(cfg.AbsExtensionsPath(), cfg.ManifestPath, cfg.ServeApp, m.log)
	m.bundler = NewBundler(cfg.AssetsPath, cfg.PublicURL, m.log)
	m.ctx = &Context{
		Services: deps.Services,
		Errors:   DefaultErrorKinds(),
		Config:   cfg,
		Database: deps.Database,
		Emitter:  m.emitter,
		Logger:   m.log,
		Schema:   deps.Schema,
	}
	return m
}

// Initialize merges options over defaults, starts the watcher when enabled,
// loads the extensions if not loaded, seeds the watch set and logs a
// summary. Calling it again first tears down the previous initialization.
func (m *Manager) Initialize(ctx context.Context, opts ...Option) error {
	if err := m.detach(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.unloadLocked()
	if m.scheduler != nil {
		m.scheduler.Stop(ctx)
	}

	m.options = runtimeOptions{schedule: true, watch: m.cfg.AutoReload}
	for _, opt := range opts {
		opt(&m.options)
	}

	scheduler, err := schedule.New(m.options.schedule, m.log)
	if err != nil {
		return err
	}
	m.scheduler = scheduler
	m.scheduler.Start(ctx)

	m.hooks = newHookRegistrar(m.deps.HostBus, m.scheduler, m.log)
	m.endpoints = newEndpointRegistrar(m.router, m.log)
	m.storages = newStorageRegistrar(m.deps.Storage, m.log)
	m.operations = newOperationRegistrar(m.deps.Workflow, m.log)
	m.queue = newJobQueue()

	if m.options.watch {
		m.watcher = NewReloadWatcher(m.requestReload, m.log, m.deps.WatchOptions...)
		m.watcher.Seed(m.cfg.AbsExtensionsPath(), m.cfg.ManifestPath, m.cfg.ServeApp)
		m.watcher.Start()
	}

	if !m.loaded {
		m.loadLocked(ctx)
	}
	if m.watcher != nil {
		m.watcher.ApplyDiff(m.descriptors, nil)
	}

	m.log.Info("extensions initialized",
		zap.Int("count", len(m.descriptors)),
		zap.Strings("extensions", names(m.descriptors)),
		zap.Bool("watching", m.watcher != nil))
	return nil
}

// Load runs a full registration cycle: discovery, the four registrars in
// fixed order, then bundling when app serving is enabled.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.loaded {
		return nil
	}
	m.loadLocked(ctx)
	return nil
}

// Unload reverses the current cycle: each unregistrar touches only its own
// registry, the per-cycle emitter is reset wholesale and the bundle map is
// cleared. Safe to call when registrations partially failed.
func (m *Manager) Unload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.unloadLocked()
	return nil
}

// Reload enqueues a full unload/load cycle on the job queue. Requests made
// while a reload is queued but not yet executing are coalesced into it; a
// reload while not loaded is a warn-level no-op.
func (m *Manager) Reload() {
	m.mu.Lock()
	if m.closed || m.queue == nil {
		m.mu.Unlock()
		return
	}
	if !m.loaded {
		m.mu.Unlock()
		m.log.Warn("reload requested while extensions are not loaded")
		return
	}
	queue := m.queue
	m.mu.Unlock()

	if !m.pending.CompareAndSwap(false, true) {
		return
	}
	ok := queue.enqueue(func() {
		// Executing reloads no longer absorb new requests.
		m.pending.Store(false)
		m.reloadCycle()
	})
	if !ok {
		m.pending.Store(false)
	}
}

// Shutdown stops the watcher, the job queue and the scheduler, unloads the
// extensions and closes the manager for good. An in-flight reload runs to
// completion first.
func (m *Manager) Shutdown(ctx context.Context) {
	if err := m.detach(); err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.unloadLocked()
	if m.scheduler != nil {
		m.scheduler.Stop(ctx)
		m.scheduler = nil
	}
}

// detach takes the watcher and job queue out of service and waits for any
// in-flight reload, without holding the manager lock the reload needs.
func (m *Manager) detach() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	watcher, queue := m.watcher, m.queue
	m.watcher, m.queue = nil, nil
	m.mu.Unlock()

	if watcher != nil {
		watcher.Stop()
	}
	if queue != nil {
		queue.shutdown()
	}
	return nil
}

// Names returns the loaded extension names, optionally filtered by type.
func (m *Manager) Names(types ...Type) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(types) == 0 {
		return names(m.descriptors)
	}
	var out []string
	for _, desc := range m.descriptors {
		for _, t := range types {
			if desc.Type == t {
				out = append(out, desc.Name)
				break
			}
		}
	}
	return out
}

// AppBundle returns the compiled bundle source for a browser-facing type.
// The second return is false when that type's bundle failed or was never
// built.
func (m *Manager) AppBundle(t Type) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	source, ok := m.bundles[t]
	return source, ok
}

// Registry returns a snapshot of everything the current cycle registered.
func (m *Manager) Registry() APIRegistry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return APIRegistry{}
	}
	snapshot := APIRegistry{
		Hooks:      make([]HookRecord, len(m.hooks.records)),
		Endpoints:  make([]EndpointRecord, len(m.endpoints.records)),
		Storages:   make([]StorageRecord, len(m.storages.records)),
		Operations: make([]OperationRecord, len(m.operations.records)),
	}
	copy(snapshot.Hooks, m.hooks.records)
	copy(snapshot.Endpoints, m.endpoints.records)
	copy(snapshot.Storages, m.storages.records)
	copy(snapshot.Operations, m.operations.records)
	return snapshot
}

// Router returns the shared endpoint router. The handle is stable across
// reload cycles; the routes behind it are swapped wholesale.
func (m *Manager) Router() http.Handler {
	return m.router
}

// Loaded reports whether the extension system is currently active.
func (m *Manager) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *Manager) requestReload() {
	m.Reload()
}

func (m *Manager) loadLocked(ctx context.Context) {
	m.loader = m.deps.NewLoader()
	m.descriptors = m.discovery.Discover()

	m.hooks.register(m.ctx, m.loader, m.descriptors)
	m.endpoints.register(m.ctx, m.loader, m.descriptors)
	m.storages.register(m.ctx, m.loader, m.descriptors)
	m.operations.register(m.ctx, m.loader, m.descriptors)

	if m.cfg.ServeApp {
		m.bundles = m.bundler.Bundle(m.descriptors)
	}
	m.loaded = true

	m.log.Info("extensions loaded",
		zap.Int("count", len(m.descriptors)),
		zap.Strings("extensions", names(m.descriptors)))
}

func (m *Manager) unloadLocked() {
	if !m.loaded {
		return
	}

	m.hooks.unregister()
	m.endpoints.unregister()
	m.storages.unregister()
	m.operations.unregister()

	m.emitter.Reset()
	m.bundles = nil
	m.descriptors = nil

	if m.loader != nil {
		m.loader.Close()
		m.loader = nil
	}
	m.loaded = false
}

// reloadCycle runs one queued reload: snapshot, unload, load, diff, watcher
// update.
func (m *Manager) reloadCycle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return
	}
	previous := m.descriptors
	m.unloadLocked()
	m.loadLocked(context.Background())

	added, removed := diff(previous, m.descriptors)
	if m.watcher != nil {
		m.watcher.ApplyDiff(added, removed)
	}
	m.log.Info("extensions reloaded",
		zap.Strings("added", names(added)),
		zap.Strings("removed", names(removed)))
}
