// Package workflow holds the operation registry consumed by the workflow
// engine. Operations are named, handler-backed units; identity is the id,
// not the extension that registered it.
package workflow

import (
	"context"
	"fmt"
	"sync"
)

// Handler executes one operation with its resolved options.
type Handler func(ctx context.Context, options map[string]any) (any, error)

// Operation pairs an id with its handler.
type Operation struct {
	ID      string
	Handler Handler
}

// Registry is the id-to-handler table for workflow operations.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	order    []string
}

// NewRegistry creates an empty operation registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to an id. A duplicate id is rejected; first
// registration wins, which keeps built-in operations authoritative.
func (r *Registry) Register(id string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[id]; exists {
		return fmt.Errorf("operation %q already registered", id)
	}
	r.handlers[id] = handler
	r.order = append(r.order, id)
	return nil
}

// Lookup returns the handler registered under id.
func (r *Registry) Lookup(id string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[id]
	return h, ok
}

// IDs returns all registered operation ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Clear empties the registry at once.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string]Handler)
	r.order = nil
}

// Count returns the number of registered operations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
