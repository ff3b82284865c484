// Package storage holds the driver registry populated by storage extensions
// and consumed by the storage subsystem.
package storage

import "sync"

// DriverConfig is a storage driver's exported configuration, stored verbatim.
type DriverConfig map[string]any

// Registry maps extension paths to their driver configurations. It is
// populated entirely during an extension load cycle and emptied entirely at
// unload.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]DriverConfig
}

// NewRegistry creates an empty driver registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]DriverConfig)}
}

// Register stores a driver configuration keyed by the extension path.
func (r *Registry) Register(path string, cfg DriverConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[path] = cfg
}

// Lookup returns the driver configuration registered under path.
func (r *Registry) Lookup(path string) (DriverConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.drivers[path]
	return cfg, ok
}

// Drivers returns a copy of the full registry.
func (r *Registry) Drivers() map[string]DriverConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]DriverConfig, len(r.drivers))
	for k, v := range r.drivers {
		out[k] = v
	}
	return out
}

// Clear empties the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers = make(map[string]DriverConfig)
}

// Count returns the number of registered drivers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.drivers)
}
