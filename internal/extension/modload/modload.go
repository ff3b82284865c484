// Package modload loads extension modules at run time and normalizes their
// exports into typed configurations.
//
// The default implementation executes Lua entrypoints in sandboxed
// per-extension runtimes. All runtimes created by a loader belong to one load
// cycle and are discarded wholesale by Close; nothing is cached across
// cycles, so a reload always observes fresh module state. The Loader
// interface keeps the capability swappable for tests.
package modload

import (
	"context"
	"errors"
)

// Kind selects which typed configuration a module must export.
type Kind int

// Loadable module kinds.
const (
	KindHook Kind = iota
	KindEndpoint
	KindStorage
	KindOperation
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindHook:
		return "hook"
	case KindEndpoint:
		return "endpoint"
	case KindStorage:
		return "storage"
	case KindOperation:
		return "operation"
	default:
		return "unknown"
	}
}

// Loader errors.
var (
	// ErrClosed is returned when loading through a closed loader.
	ErrClosed = errors.New("module loader is closed")

	// ErrBadExport is returned when a module's export does not match the
	// requested kind.
	ErrBadExport = errors.New("module export does not match its extension type")
)

// HostContext is the slice of host state exposed to a loaded module. It is
// passed identically to hook and endpoint wiring and is the only channel
// through which module code reaches the host.
type HostContext struct {
	// Env holds selected process configuration values.
	Env map[string]string

	// Log writes to the host logging sink.
	Log func(level, message string)

	// Emit publishes on the per-cycle event emitter.
	Emit func(event string, meta map[string]any)

	// Schema returns the current data-schema snapshot.
	Schema func() (map[string]any, error)
}

// Handler signatures surfaced to the registrars. Errors are reported to the
// caller, which owns logging policy.
type (
	// FilterHandler transforms a payload before an operation proceeds.
	FilterHandler func(ctx context.Context, payload any, meta map[string]any) (any, error)

	// ActionHandler is notified after an operation completes.
	ActionHandler func(ctx context.Context, meta map[string]any) error

	// InitHandler runs at a host startup checkpoint.
	InitHandler func(ctx context.Context) error

	// ScheduleHandler runs on a cron schedule.
	ScheduleHandler func(ctx context.Context) error
)

// HookAPI is the registration surface handed to a hook module.
type HookAPI struct {
	Filter   func(event string, h FilterHandler)
	Action   func(event string, h ActionHandler)
	Init     func(event string, h InitHandler)
	Schedule func(expression string, h ScheduleHandler)
}

// Request is an HTTP request as seen by an endpoint module.
type Request struct {
	Method string
	Path   string
	Params map[string]string
	Query  map[string]string
	Body   string
}

// Response is an endpoint module's reply.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// RouteHandler serves one route registered by an endpoint module.
type RouteHandler func(ctx context.Context, req *Request) (*Response, error)

// RouteAdder registers one route on the endpoint's sub-router.
type RouteAdder func(method, pattern string, h RouteHandler)

// Config is the normalized export of a loaded module.
type Config interface {
	Kind() Kind
}

// HookConfig wires a hook module into the event system via its registration
// API.
type HookConfig struct {
	Register func(api HookAPI) error
}

// Kind implements Config.
func (HookConfig) Kind() Kind { return KindHook }

// EndpointConfig attaches an endpoint module's routes to a sub-router. ID is
// the explicit mount segment, empty when the module exported a bare handler.
type EndpointConfig struct {
	ID     string
	Attach func(add RouteAdder) error
}

// Kind implements Config.
func (EndpointConfig) Kind() Kind { return KindEndpoint }

// StorageConfig is a storage module's exported driver configuration,
// verbatim.
type StorageConfig struct {
	Driver map[string]any
}

// Kind implements Config.
func (StorageConfig) Kind() Kind { return KindStorage }

// OperationConfig is a workflow operation module's id and handler.
type OperationConfig struct {
	ID      string
	Handler func(ctx context.Context, options map[string]any) (any, error)
}

// Kind implements Config.
func (OperationConfig) Kind() Kind { return KindOperation }

// Loader resolves and loads extension modules for one load cycle.
type Loader interface {
	// Load executes the module at path and returns its configuration,
	// normalized regardless of whether the export was bare or wrapped as a
	// default.
	Load(path string, kind Kind, host HostContext) (Config, error)

	// Close discards the cycle's loader context wholesale. Handlers obtained
	// from loaded configs fail after Close.
	Close()
}
