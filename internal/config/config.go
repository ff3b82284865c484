// Package config holds the process configuration for the Lattice server.
//
// Configuration is resolved in three layers: built-in defaults, an optional
// YAML file, and LATTICE_* environment variables. Later layers win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Run modes.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Config is the resolved process configuration.
type Config struct {
	// ExtensionsPath is the root directory for local extensions.
	ExtensionsPath string `yaml:"extensions_path"`

	// ManifestPath is the host manifest listing package-declared extensions.
	ManifestPath string `yaml:"manifest_path"`

	// ServeApp enables discovery, bundling and serving of browser-facing
	// extensions.
	ServeApp bool `yaml:"serve_app"`

	// AutoReload enables the hot reload watcher.
	AutoReload bool `yaml:"auto_reload"`

	// Mode is the run mode (development or production).
	Mode string `yaml:"mode"`

	// PublicURL is the externally reachable base URL of the server.
	PublicURL string `yaml:"public_url"`

	// AssetsPath is the directory holding published client asset chunks.
	AssetsPath string `yaml:"assets_path"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		ExtensionsPath: "./extensions",
		ManifestPath:   "./lattice.yaml",
		ServeApp:       true,
		AutoReload:     false,
		Mode:           ModeProduction,
		PublicURL:      "http://localhost:8055",
		AssetsPath:     "./dist/assets",
	}
}

// Load resolves configuration from defaults, an optional YAML file at path,
// and the environment. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if cfg.Mode != ModeDevelopment && cfg.Mode != ModeProduction {
		return nil, fmt.Errorf("invalid mode %q", cfg.Mode)
	}
	return cfg, nil
}

// applyEnv overlays LATTICE_* environment variables.
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("LATTICE_EXTENSIONS_PATH"); ok {
		c.ExtensionsPath = v
	}
	if v, ok := os.LookupEnv("LATTICE_MANIFEST_PATH"); ok {
		c.ManifestPath = v
	}
	if v, ok := os.LookupEnv("LATTICE_SERVE_APP"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ServeApp = b
		}
	}
	if v, ok := os.LookupEnv("LATTICE_AUTO_RELOAD"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AutoReload = b
		}
	}
	if v, ok := os.LookupEnv("LATTICE_MODE"); ok {
		c.Mode = v
	}
	if v, ok := os.LookupEnv("LATTICE_PUBLIC_URL"); ok {
		c.PublicURL = v
	}
	if v, ok := os.LookupEnv("LATTICE_ASSETS_PATH"); ok {
		c.AssetsPath = v
	}
}

// Development reports whether the server runs in development mode.
func (c *Config) Development() bool {
	return c.Mode == ModeDevelopment
}

// AbsExtensionsPath returns the extensions root as an absolute path.
func (c *Config) AbsExtensionsPath() string {
	abs, err := filepath.Abs(c.ExtensionsPath)
	if err != nil {
		return c.ExtensionsPath
	}
	return abs
}
