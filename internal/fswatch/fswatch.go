// Package fswatch provides polling-based file watching for extension hot
// reload. Watched paths may be added and removed incrementally while the
// watcher runs; create, write and remove are all reported.
package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Op is the kind of change detected on a watched path.
type Op int

const (
	// OpCreate indicates the path came into existence.
	OpCreate Op = iota
	// OpWrite indicates the path's modification time advanced.
	OpWrite
	// OpRemove indicates the path disappeared.
	OpRemove
)

// String returns the operation name.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event is one observed change.
type Event struct {
	Path string
	Op   Op
}

// Handler receives change events. Handlers run on the poll goroutine and
// must not block.
type Handler func(Event)

// Watcher polls a set of paths for changes. Paths that do not exist yet may
// be watched; their creation is reported.
type Watcher struct {
	mu       sync.RWMutex
	paths    map[string]pathState
	handlers []Handler
	interval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

type pathState struct {
	exists  bool
	modTime time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// New creates a watcher with an empty path set.
func New(opts ...Option) *Watcher {
	w := &Watcher{
		paths:    make(map[string]pathState),
		interval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch adds a path to the watch set.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Stat(abs)
	if err != nil {
		w.paths[abs] = pathState{exists: false}
		return nil
	}
	w.paths[abs] = pathState{exists: true, modTime: info.ModTime()}
	return nil
}

// WatchGlob adds every path matching the pattern.
func (w *Watcher) WatchGlob(pattern string) error {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := w.Watch(m); err != nil {
			return err
		}
	}
	return nil
}

// Unwatch removes a path from the watch set.
func (w *Watcher) Unwatch(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.paths, abs)
}

// OnChange registers a change handler.
func (w *Watcher) OnChange(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Watched returns the current watch set.
func (w *Watcher) Watched() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	paths := make([]string, 0, len(w.paths))
	for p := range w.paths {
		paths = append(paths, p)
	}
	return paths
}

// Start begins polling. Starting a running watcher is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.pollLoop()
}

// Stop halts polling and waits for the poll goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.cancel()
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()
}

// Running reports whether the watcher is polling.
func (w *Watcher) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Watcher) pollLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	w.mu.Lock()
	var events []Event
	for path, state := range w.paths {
		info, err := os.Stat(path)
		switch {
		case err != nil && state.exists:
			w.paths[path] = pathState{exists: false}
			events = append(events, Event{Path: path, Op: OpRemove})
		case err == nil && !state.exists:
			w.paths[path] = pathState{exists: true, modTime: info.ModTime()}
			events = append(events, Event{Path: path, Op: OpCreate})
		case err == nil && info.ModTime().After(state.modTime):
			w.paths[path] = pathState{exists: true, modTime: info.ModTime()}
			events = append(events, Event{Path: path, Op: OpWrite})
		}
	}
	handlers := make([]Handler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	for _, ev := range events {
		for _, h := range handlers {
			h(ev)
		}
	}
}
