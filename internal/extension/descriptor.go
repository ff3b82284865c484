package extension

import "path/filepath"

// Type identifies what an extension contributes to the host.
type Type string

// Known extension types.
const (
	TypeHook      Type = "hook"
	TypeEndpoint  Type = "endpoint"
	TypeStorage   Type = "storage"
	TypeOperation Type = "operation"
	TypeInterface Type = "interface"
	TypeModule    Type = "module"
	TypePanel     Type = "panel"
	TypePack      Type = "pack"
)

// Conventional entrypoint file names.
const (
	apiEntrypoint = "api.lua"
	appEntrypoint = "app.js"
	manifestName  = "extension.json"
)

// plurals maps each type to its extension-root subdirectory.
var plurals = map[Type]string{
	TypeHook:      "hooks",
	TypeEndpoint:  "endpoints",
	TypeStorage:   "storages",
	TypeOperation: "operations",
	TypeInterface: "interfaces",
	TypeModule:    "modules",
	TypePanel:     "panels",
	TypePack:      "packs",
}

// Plural returns the type's subdirectory name under the extension root.
func (t Type) Plural() string {
	return plurals[t]
}

// Valid reports whether t is a known extension type.
func (t Type) Valid() bool {
	_, ok := plurals[t]
	return ok
}

// Hybrid reports whether t has separate client and server entrypoints.
func (t Type) Hybrid() bool {
	return t == TypeOperation
}

// AppOnly reports whether t contributes browser code exclusively.
func (t Type) AppOnly() bool {
	return t == TypeInterface || t == TypeModule || t == TypePanel
}

// Server reports whether t contributes a server entrypoint.
func (t Type) Server() bool {
	return t == TypeHook || t == TypeEndpoint || t == TypeStorage || t == TypeOperation
}

// AppTypes are the browser-facing types, in bundle order.
func AppTypes() []Type {
	return []Type{TypeInterface, TypeModule, TypePanel, TypeOperation}
}

// AllowedTypes returns the discovery allow-list. Browser-only types are
// excluded when app serving is disabled.
func AllowedTypes(serveApp bool) []Type {
	if serveApp {
		return []Type{
			TypeHook, TypeEndpoint, TypeStorage, TypeOperation,
			TypeInterface, TypeModule, TypePanel, TypePack,
		}
	}
	return []Type{TypeHook, TypeEndpoint, TypeStorage, TypeOperation, TypePack}
}

// Entrypoint holds the resolved entrypoint files of one extension. Pure
// server types fill API only, browser-only types App only, hybrid types both.
type Entrypoint struct {
	App string
	API string
}

// Descriptor identifies one discovered extension. Identity is path-based:
// two descriptors denote the same extension iff their paths match.
type Descriptor struct {
	Name       string
	Type       Type
	Path       string
	Entrypoint Entrypoint
	Local      bool
}

// Same reports whether other denotes the same extension.
func (d Descriptor) Same(other Descriptor) bool {
	return d.Path == other.Path
}

// ManifestPath returns the extension manifest location. Only meaningful for
// manifest-carrying extensions (packs always, others optionally).
func (d Descriptor) ManifestPath() string {
	return filepath.Join(d.Path, manifestName)
}

// WatchPaths returns the files the hot reload watcher tracks for this
// extension: the manifest for packs, both entrypoints for hybrid types, the
// single entrypoint otherwise.
func (d Descriptor) WatchPaths() []string {
	switch {
	case d.Type == TypePack:
		return []string{d.ManifestPath()}
	case d.Type.Hybrid():
		return []string{d.Entrypoint.App, d.Entrypoint.API}
	case d.Type.AppOnly():
		return []string{d.Entrypoint.App}
	default:
		return []string{d.Entrypoint.API}
	}
}

// diff computes the path-based added and removed sets between two descriptor
// lists.
func diff(previous, current []Descriptor) (added, removed []Descriptor) {
	prevByPath := make(map[string]struct{}, len(previous))
	for _, d := range previous {
		prevByPath[d.Path] = struct{}{}
	}
	currByPath := make(map[string]struct{}, len(current))
	for _, d := range current {
		currByPath[d.Path] = struct{}{}
	}

	for _, d := range current {
		if _, ok := prevByPath[d.Path]; !ok {
			added = append(added, d)
		}
	}
	for _, d := range previous {
		if _, ok := currByPath[d.Path]; !ok {
			removed = append(removed, d)
		}
	}
	return added, removed
}

// names extracts descriptor names, preserving order.
func names(descriptors []Descriptor) []string {
	out := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, d.Name)
	}
	return out
}
