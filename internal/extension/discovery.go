package extension

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// hostManifest is the slice of the host manifest file discovery consumes: the
// list of package-declared extension directories, relative to the manifest.
type hostManifest struct {
	Extensions []string `yaml:"extensions"`
}

// Discovery scans package-declared and local extensions into an ordered
// descriptor list.
type Discovery struct {
	root     string
	manifest string
	allowed  map[Type]bool
	log      *zap.Logger
}

// NewDiscovery creates a Discovery over the extension root and host manifest.
// The serveApp flag determines the type allow-list.
func NewDiscovery(root, manifest string, serveApp bool, log *zap.Logger) *Discovery {
	allowed := make(map[Type]bool)
	for _, t := range AllowedTypes(serveApp) {
		allowed[t] = true
	}
	return &Discovery{root: root, manifest: manifest, allowed: allowed, log: log}
}

// Discover produces the cycle's descriptor list: package-declared extensions
// first, in host manifest order, then local extensions in sorted per-type
// directory order. Malformed candidates are skipped with a warning; a
// source-level failure yields an empty set rather than an error.
func (d *Discovery) Discover() []Descriptor {
	if err := d.ensureDirs(); err != nil {
		d.log.Warn("extension discovery failed", zap.Error(fmt.Errorf("%w: %v", ErrDiscoveryFailed, err)))
		return nil
	}

	declared := d.discoverDeclared()
	local := d.discoverLocal()

	// Local overrides package-declared on a name collision.
	localNames := make(map[string]bool, len(local))
	for _, desc := range local {
		localNames[desc.Name] = true
	}
	kept := declared[:0]
	for _, desc := range declared {
		if localNames[desc.Name] {
			d.log.Warn("package extension shadowed by local extension",
				zap.String("name", desc.Name),
				zap.String("path", desc.Path))
			continue
		}
		kept = append(kept, desc)
	}

	return append(kept, local...)
}

// ensureDirs creates the per-type subdirectories under the extension root.
func (d *Discovery) ensureDirs() error {
	for t := range d.allowed {
		if err := os.MkdirAll(filepath.Join(d.root, t.Plural()), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// discoverDeclared reads the host manifest and resolves each declared
// extension directory, expanding packs into their entries.
func (d *Discovery) discoverDeclared() []Descriptor {
	data, err := os.ReadFile(d.manifest)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		d.log.Warn("host manifest unreadable", zap.String("path", d.manifest), zap.Error(err))
		return nil
	}

	var host hostManifest
	if err := yaml.Unmarshal(data, &host); err != nil {
		d.log.Warn("host manifest malformed", zap.String("path", d.manifest), zap.Error(err))
		return nil
	}

	base := filepath.Dir(d.manifest)
	var out []Descriptor
	for _, dir := range host.Extensions {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(base, dir)
		}
		out = append(out, d.resolveDir(dir, false)...)
	}
	return out
}

// discoverLocal scans the per-type subdirectories under the extension root.
// Server types also accept a bare <name>.lua file directly in the type
// directory.
func (d *Discovery) discoverLocal() []Descriptor {
	var out []Descriptor
	for _, t := range AllowedTypes(true) {
		if !d.allowed[t] {
			continue
		}
		dir := filepath.Join(d.root, t.Plural())
		entries, err := os.ReadDir(dir)
		if err != nil {
			d.log.Warn("extension type directory unreadable", zap.String("path", dir), zap.Error(err))
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			switch {
			case entry.IsDir():
				out = append(out, d.resolveLocalDir(path, t)...)
			case t.Server() && !t.Hybrid() && strings.HasSuffix(entry.Name(), ".lua"):
				out = append(out, Descriptor{
					Name:       strings.TrimSuffix(entry.Name(), ".lua"),
					Type:       t,
					Path:       path,
					Entrypoint: Entrypoint{API: path},
					Local:      true,
				})
			}
		}
	}
	return out
}

// resolveLocalDir resolves one local extension directory of the given type,
// via its manifest when present or by conventional entrypoint names
// otherwise.
func (d *Discovery) resolveLocalDir(path string, t Type) []Descriptor {
	if _, err := os.Stat(filepath.Join(path, manifestName)); err == nil {
		return d.resolveDir(path, true)
	}

	desc := Descriptor{
		Name:       filepath.Base(path),
		Type:       t,
		Path:       path,
		Entrypoint: conventionalEntrypoint(t, path),
		Local:      true,
	}
	if err := checkEntrypoint(desc); err != nil {
		d.log.Warn("skipping extension", zap.String("path", path), zap.Error(err))
		return nil
	}
	return []Descriptor{desc}
}

// resolveDir resolves one manifest-carrying extension directory, expanding a
// pack into its entries. The pack descriptor itself is kept so the watcher
// can track its manifest.
func (d *Discovery) resolveDir(path string, local bool) []Descriptor {
	m, err := ReadManifest(path)
	if err != nil {
		d.log.Warn("skipping extension", zap.String("path", path), zap.Error(err))
		return nil
	}
	if !d.allowed[m.Type] {
		return nil
	}

	desc := m.Descriptor(local)
	if m.Type != TypePack {
		if err := checkEntrypoint(desc); err != nil {
			d.log.Warn("skipping extension", zap.String("path", path), zap.Error(err))
			return nil
		}
		return []Descriptor{desc}
	}

	out := []Descriptor{desc}
	for _, entry := range m.EntryDirs() {
		out = append(out, d.resolveDir(entry, local)...)
	}
	return out
}

// checkEntrypoint verifies the descriptor's entrypoint files exist.
func checkEntrypoint(desc Descriptor) error {
	for _, path := range desc.WatchPaths() {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: %s", ErrNoEntrypoint, path)
		}
	}
	return nil
}
