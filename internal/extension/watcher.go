package extension

import (
	"path/filepath"

	"go.uber.org/zap"

	"github.com/latticehq/lattice/internal/fswatch"
)

// ReloadWatcher observes extension files and the host manifest, requesting a
// reload on any change. Serialization of bursts is left entirely to the
// manager's job queue; no debouncing happens here.
type ReloadWatcher struct {
	fs      *fswatch.Watcher
	log     *zap.Logger
	request func()
}

// NewReloadWatcher creates a watcher that calls request on every observed
// change.
func NewReloadWatcher(request func(), log *zap.Logger, opts ...fswatch.Option) *ReloadWatcher {
	w := &ReloadWatcher{
		fs:      fswatch.New(opts...),
		log:     log,
		request: request,
	}
	w.fs.OnChange(w.onEvent)
	return w
}

// Seed installs the static watch set: the host manifest, plus per relevant
// type the local entrypoint globs and the type directory itself, so newly
// added local extensions are noticed through the directory change.
func (w *ReloadWatcher) Seed(root, manifest string, serveApp bool) {
	w.watch(manifest)

	for _, t := range AllowedTypes(serveApp) {
		dir := filepath.Join(root, t.Plural())
		w.watch(dir)

		switch {
		case t == TypePack:
			w.watchGlob(filepath.Join(dir, "*", manifestName))
		case t.Hybrid():
			w.watchGlob(filepath.Join(dir, "*", apiEntrypoint))
			w.watchGlob(filepath.Join(dir, "*", appEntrypoint))
		case t.AppOnly():
			w.watchGlob(filepath.Join(dir, "*", appEntrypoint))
		default:
			w.watchGlob(filepath.Join(dir, "*", apiEntrypoint))
			w.watchGlob(filepath.Join(dir, "*.lua"))
		}
	}
}

// ApplyDiff incrementally maintains the descriptor-derived watch set after a
// load: watch the files of added extensions, unwatch those of removed ones.
func (w *ReloadWatcher) ApplyDiff(added, removed []Descriptor) {
	for _, desc := range added {
		for _, path := range desc.WatchPaths() {
			w.watch(path)
		}
	}
	for _, desc := range removed {
		for _, path := range desc.WatchPaths() {
			w.fs.Unwatch(path)
		}
	}
}

// Start begins polling.
func (w *ReloadWatcher) Start() {
	w.fs.Start()
}

// Stop halts polling.
func (w *ReloadWatcher) Stop() {
	w.fs.Stop()
}

// Watched returns the currently watched paths.
func (w *ReloadWatcher) Watched() []string {
	return w.fs.Watched()
}

func (w *ReloadWatcher) onEvent(ev fswatch.Event) {
	w.log.Debug("extension change detected",
		zap.String("path", ev.Path),
		zap.Stringer("op", ev.Op))
	w.request()
}

func (w *ReloadWatcher) watch(path string) {
	if err := w.fs.Watch(path); err != nil {
		w.log.Warn("watch failed", zap.String("path", path), zap.Error(err))
	}
}

func (w *ReloadWatcher) watchGlob(pattern string) {
	if err := w.fs.WatchGlob(pattern); err != nil {
		w.log.Warn("watch failed", zap.String("pattern", pattern), zap.Error(err))
	}
}
