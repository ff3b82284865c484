package extension

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Manifest is the extension.json metadata of one extension. Package-declared
// extensions always carry one; local extensions may, falling back to
// conventional entrypoint names otherwise.
type Manifest struct {
	Name        string `json:"name"`
	Type        Type   `json:"type"`
	Version     string `json:"version"`
	Description string `json:"description"`

	// Entrypoint is a bare path for simple types or an {app, api} object for
	// hybrid types. Decoded through rawEntrypoint.
	Entrypoint Entrypoint `json:"-"`

	// Entries lists the sub-extension directories of a pack, relative to the
	// pack directory.
	Entries []string `json:"entries"`

	path string
}

// rawEntrypoint accepts the two manifest encodings of an entrypoint.
type rawEntrypoint struct {
	App string `json:"app"`
	API string `json:"api"`
}

// namePattern validates extension names.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$|^[a-z]$`)

// ReadManifest loads and validates the extension.json inside dir.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, manifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var raw struct {
		Manifest
		Entrypoint json.RawMessage `json:"entrypoint"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, path, err)
	}

	m := raw.Manifest
	m.path = dir
	if m.Entrypoint, err = decodeEntrypoint(raw.Entrypoint, m.Type, dir); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, path, err)
	}
	return &m, nil
}

// decodeEntrypoint resolves the manifest entrypoint field, or the type's
// conventional names when the field is absent, to absolute paths under dir.
func decodeEntrypoint(raw json.RawMessage, t Type, dir string) (Entrypoint, error) {
	ep := conventionalEntrypoint(t, dir)
	if len(raw) == 0 || t == TypePack {
		return ep, nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if t.Hybrid() {
			return Entrypoint{}, fmt.Errorf("type %s requires an {app, api} entrypoint", t)
		}
		if t.AppOnly() {
			return Entrypoint{App: filepath.Join(dir, single)}, nil
		}
		return Entrypoint{API: filepath.Join(dir, single)}, nil
	}

	var pair rawEntrypoint
	if err := json.Unmarshal(raw, &pair); err != nil {
		return Entrypoint{}, fmt.Errorf("malformed entrypoint: %v", err)
	}
	if pair.App != "" {
		ep.App = filepath.Join(dir, pair.App)
	}
	if pair.API != "" {
		ep.API = filepath.Join(dir, pair.API)
	}
	return ep, nil
}

// conventionalEntrypoint returns the default entrypoint files for t inside
// dir.
func conventionalEntrypoint(t Type, dir string) Entrypoint {
	switch {
	case t == TypePack:
		return Entrypoint{}
	case t.Hybrid():
		return Entrypoint{App: filepath.Join(dir, appEntrypoint), API: filepath.Join(dir, apiEntrypoint)}
	case t.AppOnly():
		return Entrypoint{App: filepath.Join(dir, appEntrypoint)}
	default:
		return Entrypoint{API: filepath.Join(dir, apiEntrypoint)}
	}
}

func (m *Manifest) validate() error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("name %q must be lowercase alphanumeric with hyphens", m.Name)
	}
	if !m.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	if m.Type == TypePack && len(m.Entries) == 0 {
		return fmt.Errorf("pack %q declares no entries", m.Name)
	}
	if m.Type != TypePack && len(m.Entries) > 0 {
		return fmt.Errorf("type %s cannot declare pack entries", m.Type)
	}
	return nil
}

// Descriptor converts the manifest into a discovery descriptor. local marks
// extensions found under the extension root rather than declared by the host
// manifest.
func (m *Manifest) Descriptor(local bool) Descriptor {
	return Descriptor{
		Name:       m.Name,
		Type:       m.Type,
		Path:       m.path,
		Entrypoint: m.Entrypoint,
		Local:      local,
	}
}

// EntryDirs returns the absolute directories of a pack's sub-extensions.
func (m *Manifest) EntryDirs() []string {
	dirs := make([]string, 0, len(m.Entries))
	for _, entry := range m.Entries {
		dirs = append(dirs, filepath.Join(m.path, entry))
	}
	return dirs
}
