package extension

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/latticehq/lattice/internal/extension/modload"
	"github.com/latticehq/lattice/internal/workflow"
	"github.com/latticehq/lattice/internal/workflow/builtin"
)

// operationRegistrar forwards operation configurations to the workflow
// registry. Built-in operations always register before user extensions, so a
// user id colliding with a built-in is rejected by the registry.
type operationRegistrar struct {
	registry *workflow.Registry
	log      *zap.Logger

	records []OperationRecord
}

func newOperationRegistrar(registry *workflow.Registry, log *zap.Logger) *operationRegistrar {
	return &operationRegistrar{registry: registry, log: log}
}

func (r *operationRegistrar) register(ctx *Context, loader modload.Loader, descriptors []Descriptor) {
	for _, op := range builtin.Operations() {
		if err := r.registry.Register(op.ID, op.Handler); err != nil {
			r.log.Warn("builtin operation registration failed",
				zap.String("id", op.ID),
				zap.Error(err))
		}
	}

	for _, desc := range descriptors {
		if desc.Type != TypeOperation {
			continue
		}
		if err := r.registerOne(ctx, loader, desc); err != nil {
			r.log.Warn("operation registration failed",
				zap.String("extension", desc.Name),
				zap.Error(err))
		}
	}
}

func (r *operationRegistrar) registerOne(ctx *Context, loader modload.Loader, desc Descriptor) error {
	cfg, err := loader.Load(desc.Entrypoint.API, modload.KindOperation, ctx.host(desc.Name))
	if err != nil {
		return err
	}
	op, ok := cfg.(modload.OperationConfig)
	if !ok {
		return fmt.Errorf("%w: unexpected config kind %s", modload.ErrBadExport, cfg.Kind())
	}

	if err := r.registry.Register(op.ID, workflow.Handler(op.Handler)); err != nil {
		return err
	}
	r.records = append(r.records, OperationRecord{Path: desc.Path})
	return nil
}

// unregister clears the whole workflow registry at once; operation identity
// is the id rather than the extension.
func (r *operationRegistrar) unregister() {
	r.registry.Clear()
	r.records = nil
}
