package extension

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/latticehq/lattice/internal/extension/modload"
	"github.com/latticehq/lattice/internal/storage"
)

// storageRegistrar places exported driver configurations in the storage
// driver registry, keyed by extension path. The storage subsystem consumes
// them; no wiring call happens here.
type storageRegistrar struct {
	registry *storage.Registry
	log      *zap.Logger

	records []StorageRecord
}

func newStorageRegistrar(registry *storage.Registry, log *zap.Logger) *storageRegistrar {
	return &storageRegistrar{registry: registry, log: log}
}

func (r *storageRegistrar) register(ctx *Context, loader modload.Loader, descriptors []Descriptor) {
	for _, desc := range descriptors {
		if desc.Type != TypeStorage {
			continue
		}
		if err := r.registerOne(ctx, loader, desc); err != nil {
			r.log.Warn("storage registration failed",
				zap.String("extension", desc.Name),
				zap.Error(err))
		}
	}
}

func (r *storageRegistrar) registerOne(ctx *Context, loader modload.Loader, desc Descriptor) error {
	cfg, err := loader.Load(desc.Entrypoint.API, modload.KindStorage, ctx.host(desc.Name))
	if err != nil {
		return err
	}
	driver, ok := cfg.(modload.StorageConfig)
	if !ok {
		return fmt.Errorf("%w: unexpected config kind %s", modload.ErrBadExport, cfg.Kind())
	}

	r.registry.Register(desc.Path, storage.DriverConfig(driver.Driver))
	r.records = append(r.records, StorageRecord{Path: desc.Path, Driver: driver.Driver})
	return nil
}

func (r *storageRegistrar) unregister() {
	r.registry.Clear()
	r.records = nil
}
