package extension

import "errors"

// Extension runtime errors.
var (
	// ErrNotLoaded is returned when an operation requires loaded extensions.
	ErrNotLoaded = errors.New("extensions are not loaded")

	// ErrNoEntrypoint is returned when an extension has no usable entrypoint.
	ErrNoEntrypoint = errors.New("extension has no entrypoint")

	// ErrUnknownType is returned for manifests declaring an unknown type.
	ErrUnknownType = errors.New("unknown extension type")

	// ErrInvalidManifest is returned when an extension manifest fails
	// validation.
	ErrInvalidManifest = errors.New("invalid extension manifest")

	// ErrDiscoveryFailed wraps a source-level discovery failure; the load
	// cycle continues with an empty extension set.
	ErrDiscoveryFailed = errors.New("extension discovery failed")

	// ErrClosed is returned when using a manager after shutdown.
	ErrClosed = errors.New("extension manager is closed")
)
