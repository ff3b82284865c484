// Package services exposes the data-access service layer handles that the
// extension runtime passes to extensions. The implementations live in the
// data-access subsystem; extensions only see these interfaces.
package services

import "context"

// Items is the CRUD facade over one collection.
type Items interface {
	Create(ctx context.Context, collection string, item map[string]any) (string, error)
	Read(ctx context.Context, collection, key string) (map[string]any, error)
	Update(ctx context.Context, collection, key string, patch map[string]any) error
	Delete(ctx context.Context, collection, key string) error
}

// Files is the file storage facade.
type Files interface {
	Stat(ctx context.Context, id string) (map[string]any, error)
	Delete(ctx context.Context, id string) error
}

// Registry bundles the service handles carried by the extension context.
type Registry struct {
	Items Items
	Files Files
}
