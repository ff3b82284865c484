package extension

// HookRecord is one registered hook extension with its ordered event
// bindings.
type HookRecord struct {
	Path   string
	Events []string
}

// EndpointRecord is one registered endpoint extension.
type EndpointRecord struct {
	Path string
}

// StorageRecord is one registered storage extension with its exported driver
// configuration.
type StorageRecord struct {
	Path   string
	Driver map[string]any
}

// OperationRecord is one registered operation extension.
type OperationRecord struct {
	Path string
}

// APIRegistry is the snapshot of everything the current load cycle
// registered. Each list is fully replaced on load and emptied on unload,
// never patched incrementally.
type APIRegistry struct {
	Hooks      []HookRecord
	Endpoints  []EndpointRecord
	Storages   []StorageRecord
	Operations []OperationRecord
}
