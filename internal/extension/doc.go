// Package extension implements the Lattice extension runtime.
//
// Extensions extend the server with Lua modules and the companion browser
// client with ES modules. The Manager orchestrates their lifecycle: Discovery
// produces the descriptor list, four registrars wire each extension type into
// its host subsystem, the Bundler compiles the browser halves, and the
// ReloadWatcher requests reloads on filesystem changes, serialized through a
// FIFO job queue.
//
// # Extension layout
//
// Local extensions live under the configured extensions root in pluralized
// per-type directories; server-only extensions may also be a single Lua file:
//
//	extensions/
//	├── hooks/
//	│   ├── audit.lua            # single-file hook
//	│   └── notify/
//	│       └── api.lua
//	├── endpoints/
//	│   └── metrics/
//	│       ├── extension.json   # optional manifest
//	│       └── api.lua
//	└── operations/
//	    └── resize/
//	        ├── api.lua          # server half
//	        └── app.js           # browser half
//
// Package-declared extensions are listed in the host manifest (lattice.yaml)
// and always carry an extension.json. Packs group several sub-extensions
// behind one manifest.
//
// # Lifecycle
//
// Load and unload are whole-cycle operations: every registry is fully
// replaced on load and fully emptied on unload, never patched. Each load
// cycle gets a fresh module loader whose Lua runtimes are discarded wholesale
// at unload, so reloads always observe fresh module state. Per-extension
// failures are logged and isolated; they never abort the cycle.
//
// # Hook modules
//
//	return function(register, ctx)
//	    register.filter("items.create", function(payload, meta)
//	        payload.checked = true
//	        return payload
//	    end)
//	    register.action("items.create", function(meta) end)
//	    register.init("routes.before", function() end)
//	    register.schedule("*/5 * * * *", function() end)
//	end
//
// Endpoint modules receive a router (get/post/put/patch/delete/all) and are
// mounted under /<name> or their explicit id. Storage modules export a driver
// table verbatim. Operation modules export { id, handler } for the workflow
// engine.
package extension
