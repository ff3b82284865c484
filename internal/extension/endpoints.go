package extension

import (
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/latticehq/lattice/internal/extension/modload"
)

// EndpointRouter is the stable handler the host mounts once. The inner chi
// router is rebuilt wholesale each load cycle and swapped atomically.
type EndpointRouter struct {
	mu    sync.RWMutex
	inner chi.Router
}

// NewEndpointRouter creates a router with no endpoints mounted.
func NewEndpointRouter() *EndpointRouter {
	return &EndpointRouter{inner: chi.NewRouter()}
}

// ServeHTTP implements http.Handler.
func (r *EndpointRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	inner := r.inner
	r.mu.RUnlock()
	inner.ServeHTTP(w, req)
}

func (r *EndpointRouter) swap(inner chi.Router) {
	r.mu.Lock()
	r.inner = inner
	r.mu.Unlock()
}

// endpointRegistrar mounts endpoint extensions as sub-routers under
// /<segment> on the shared router.
type endpointRegistrar struct {
	router *EndpointRouter
	log    *zap.Logger

	records []EndpointRecord
}

func newEndpointRegistrar(router *EndpointRouter, log *zap.Logger) *endpointRegistrar {
	return &endpointRegistrar{router: router, log: log}
}

// register rebuilds the shared router from scratch and mounts every endpoint
// descriptor on it. Per-extension failures are logged; the failing endpoint
// is simply not mounted.
func (r *endpointRegistrar) register(ctx *Context, loader modload.Loader, descriptors []Descriptor) {
	root := chi.NewRouter()
	for _, desc := range descriptors {
		if desc.Type != TypeEndpoint {
			continue
		}
		if err := r.registerOne(ctx, loader, desc, root); err != nil {
			r.log.Warn("endpoint registration failed",
				zap.String("extension", desc.Name),
				zap.Error(err))
		}
	}
	r.router.swap(root)
}

func (r *endpointRegistrar) registerOne(ctx *Context, loader modload.Loader, desc Descriptor, root chi.Router) error {
	cfg, err := loader.Load(desc.Entrypoint.API, modload.KindEndpoint, ctx.host(desc.Name))
	if err != nil {
		return err
	}
	endpoint, ok := cfg.(modload.EndpointConfig)
	if !ok {
		return fmt.Errorf("%w: unexpected config kind %s", modload.ErrBadExport, cfg.Kind())
	}

	// A bare handler export mounts under the extension name.
	segment := endpoint.ID
	if segment == "" {
		segment = desc.Name
	}

	log := r.log.With(zap.String("extension", desc.Name))
	sub := chi.NewRouter()
	err = endpoint.Attach(func(method, pattern string, h modload.RouteHandler) {
		handler := httpHandler(h, log)
		if method == "" {
			sub.Handle(pattern, handler)
			return
		}
		sub.Method(method, pattern, handler)
	})
	if err != nil {
		return err
	}

	root.Mount("/"+segment, sub)
	r.records = append(r.records, EndpointRecord{Path: desc.Path})
	return nil
}

// unregister swaps in an empty router, dropping every mounted endpoint.
func (r *endpointRegistrar) unregister() {
	r.router.swap(chi.NewRouter())
	r.records = nil
}

// httpHandler adapts a loaded route handler to net/http.
func httpHandler(h modload.RouteHandler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		params := make(map[string]string)
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				params[key] = rctx.URLParams.Values[i]
			}
		}
		query := make(map[string]string)
		for key, values := range req.URL.Query() {
			if len(values) > 0 {
				query[key] = values[0]
			}
		}

		resp, err := h(req.Context(), &modload.Request{
			Method: req.Method,
			Path:   req.URL.Path,
			Params: params,
			Query:  query,
			Body:   string(body),
		})
		if err != nil {
			log.Warn("route handler failed", zap.String("path", req.URL.Path), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", resp.ContentType)
		w.WriteHeader(resp.Status)
		_, _ = w.Write(resp.Body)
	}
}
