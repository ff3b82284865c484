package extension

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/latticehq/lattice/internal/bus"
	"github.com/latticehq/lattice/internal/config"
	"github.com/latticehq/lattice/internal/extension/modload"
	"github.com/latticehq/lattice/internal/schema"
	"github.com/latticehq/lattice/internal/services"
)

// ErrorKinds are the error constructors handed to extensions for failing
// requests with a classified cause.
type ErrorKinds struct {
	Invalid   func(message string) error
	Forbidden func(message string) error
	NotFound  func(message string) error
	Internal  func(message string) error
}

// DefaultErrorKinds returns the standard constructor set.
func DefaultErrorKinds() ErrorKinds {
	kind := func(kind string) func(string) error {
		return func(message string) error {
			return fmt.Errorf("%s: %s", kind, message)
		}
	}
	return ErrorKinds{
		Invalid:   kind("invalid"),
		Forbidden: kind("forbidden"),
		NotFound:  kind("not found"),
		Internal:  kind("internal"),
	}
}

// Context is the fixed host surface passed to hook and endpoint wiring. It is
// the only channel through which an extension reaches host state.
type Context struct {
	Services services.Registry
	Errors   ErrorKinds
	Config   *config.Config
	Database *bbolt.DB

	// Emitter is the per-cycle event emitter, distinct from the host-wide
	// bus. The manager resets it wholesale at unload.
	Emitter *bus.Bus

	Logger *zap.Logger
	Schema schema.Provider
}

// host projects the context into the loader-facing form, scoped to one
// extension so log lines carry its name.
func (c *Context) host(name string) modload.HostContext {
	log := c.Logger.With(zap.String("extension", name))
	return modload.HostContext{
		Env: map[string]string{
			"mode":       c.Config.Mode,
			"public_url": c.Config.PublicURL,
		},
		Log: func(level, message string) {
			switch level {
			case "debug":
				log.Debug(message)
			case "warn":
				log.Warn(message)
			case "error":
				log.Error(message)
			default:
				log.Info(message)
			}
		},
		Emit: func(event string, meta map[string]any) {
			if c.Emitter != nil {
				c.Emitter.EmitAction(context.Background(), event, bus.Meta(meta))
			}
		},
		Schema: func() (map[string]any, error) {
			if c.Schema == nil {
				return nil, fmt.Errorf("no schema provider")
			}
			snapshot, err := c.Schema(context.Background())
			if err != nil {
				return nil, err
			}
			return snapshotMap(snapshot), nil
		},
	}
}

// snapshotMap flattens a schema snapshot into loader-bridgeable values.
func snapshotMap(s *schema.Snapshot) map[string]any {
	collections := make(map[string]any, len(s.Collections))
	for name, c := range s.Collections {
		fields := make(map[string]any, len(c.Fields))
		for fname, f := range c.Fields {
			fields[fname] = map[string]any{
				"name":     f.Name,
				"type":     f.Type,
				"nullable": f.Nullable,
				"primary":  f.Primary,
			}
		}
		collections[name] = map[string]any{"name": c.Name, "fields": fields}
	}
	return map[string]any{
		"version":     int64(s.Version),
		"collections": collections,
	}
}
