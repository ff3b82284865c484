// Package bus provides the publish/subscribe channel used by the extension
// runtime for filter, action and init events.
//
// Two instances exist at run time with different lifetimes: the host-wide bus
// lives for the whole process, while the per-cycle emitter handed to
// extensions is reset wholesale on every extension unload.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Kind distinguishes the three event hook families.
type Kind int

const (
	// KindFilter transforms a payload before an operation proceeds.
	KindFilter Kind = iota
	// KindAction is notified after an operation completes.
	KindAction
	// KindInit runs at host startup checkpoints.
	KindInit
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFilter:
		return "filter"
	case KindAction:
		return "action"
	case KindInit:
		return "init"
	default:
		return "unknown"
	}
}

// Meta carries event metadata alongside the payload.
type Meta map[string]any

// FilterFunc transforms a payload. Returning an error aborts the emitting
// operation; the payload chain stops at the failing handler.
type FilterFunc func(ctx context.Context, payload any, meta Meta) (any, error)

// ActionFunc is notified after the fact. Errors are the caller's to log;
// they do not propagate between handlers.
type ActionFunc func(ctx context.Context, meta Meta)

// InitFunc runs at a startup checkpoint.
type InitFunc func(ctx context.Context)

// Binding identifies one registered handler so it can be removed later.
type Binding struct {
	ID    string
	Event string
	Kind  Kind
}

type filterEntry struct {
	id string
	fn FilterFunc
}

type actionEntry struct {
	id string
	fn ActionFunc
}

type initEntry struct {
	id string
	fn InitFunc
}

// Bus is an in-process event channel with removable bindings.
type Bus struct {
	mu      sync.RWMutex
	filters map[string][]filterEntry
	actions map[string][]actionEntry
	inits   map[string][]initEntry
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		filters: make(map[string][]filterEntry),
		actions: make(map[string][]actionEntry),
		inits:   make(map[string][]initEntry),
	}
}

// OnFilter registers a filter handler for event.
func (b *Bus) OnFilter(event string, fn FilterFunc) Binding {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.filters[event] = append(b.filters[event], filterEntry{id: id, fn: fn})
	return Binding{ID: id, Event: event, Kind: KindFilter}
}

// OnAction registers an action handler for event.
func (b *Bus) OnAction(event string, fn ActionFunc) Binding {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.actions[event] = append(b.actions[event], actionEntry{id: id, fn: fn})
	return Binding{ID: id, Event: event, Kind: KindAction}
}

// OnInit registers an init handler for event.
func (b *Bus) OnInit(event string, fn InitFunc) Binding {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.inits[event] = append(b.inits[event], initEntry{id: id, fn: fn})
	return Binding{ID: id, Event: event, Kind: KindInit}
}

// Remove deletes a single binding. Removing an unknown binding is a no-op.
func (b *Bus) Remove(binding Binding) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch binding.Kind {
	case KindFilter:
		entries := b.filters[binding.Event]
		for i, e := range entries {
			if e.id == binding.ID {
				b.filters[binding.Event] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	case KindAction:
		entries := b.actions[binding.Event]
		for i, e := range entries {
			if e.id == binding.ID {
				b.actions[binding.Event] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	case KindInit:
		entries := b.inits[binding.Event]
		for i, e := range entries {
			if e.id == binding.ID {
				b.inits[binding.Event] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Reset drops every binding at once. Used on per-cycle emitters at unload.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.filters = make(map[string][]filterEntry)
	b.actions = make(map[string][]actionEntry)
	b.inits = make(map[string][]initEntry)
}

// EmitFilter runs the payload through every filter handler for event, in
// registration order. Panics in handlers are converted to errors.
func (b *Bus) EmitFilter(ctx context.Context, event string, payload any, meta Meta) (any, error) {
	b.mu.RLock()
	entries := make([]filterEntry, len(b.filters[event]))
	copy(entries, b.filters[event])
	b.mu.RUnlock()

	var err error
	for _, e := range entries {
		payload, err = safeFilter(ctx, e.fn, payload, meta)
		if err != nil {
			return payload, fmt.Errorf("filter %q: %w", event, err)
		}
	}
	return payload, nil
}

// EmitAction notifies every action handler for event. Handler panics are
// swallowed; actions are fire-and-forget by contract.
func (b *Bus) EmitAction(ctx context.Context, event string, meta Meta) {
	b.mu.RLock()
	entries := make([]actionEntry, len(b.actions[event]))
	copy(entries, b.actions[event])
	b.mu.RUnlock()

	for _, e := range entries {
		func() {
			defer func() { recover() }()
			e.fn(ctx, meta)
		}()
	}
}

// EmitInit runs every init handler registered for the checkpoint.
func (b *Bus) EmitInit(ctx context.Context, event string) {
	b.mu.RLock()
	entries := make([]initEntry, len(b.inits[event]))
	copy(entries, b.inits[event])
	b.mu.RUnlock()

	for _, e := range entries {
		func() {
			defer func() { recover() }()
			e.fn(ctx)
		}()
	}
}

// Count returns the number of bindings currently registered.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, entries := range b.filters {
		n += len(entries)
	}
	for _, entries := range b.actions {
		n += len(entries)
	}
	for _, entries := range b.inits {
		n += len(entries)
	}
	return n
}

func safeFilter(ctx context.Context, fn FilterFunc, payload any, meta Meta) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = payload
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(ctx, payload, meta)
}
