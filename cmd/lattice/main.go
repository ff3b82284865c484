// Package main is the entry point for the Lattice server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/latticehq/lattice/internal/bus"
	"github.com/latticehq/lattice/internal/config"
	"github.com/latticehq/lattice/internal/extension"
	"github.com/latticehq/lattice/internal/schema"
	"github.com/latticehq/lattice/internal/storage"
	"github.com/latticehq/lattice/internal/workflow"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = flag.String("config", "", "path to configuration file")
		dataPath    = flag.String("data", "lattice.db", "path to the primary data store")
		addr        = flag.String("addr", ":8055", "listen address")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("lattice %s (%s)\n", version, commit)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	db, err := bbolt.Open(*dataPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		logger.Error("open data store", zap.Error(err))
		return 1
	}
	defer db.Close()

	manager := extension.NewManager(cfg, extension.Deps{
		Database: db,
		HostBus:  bus.New(),
		Storage:  storage.NewRegistry(),
		Workflow: workflow.NewRegistry(),
		Schema: func(ctx context.Context) (*schema.Snapshot, error) {
			return schema.Empty(), nil
		},
		Logger: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.Initialize(ctx); err != nil {
		logger.Error("initialize extensions", zap.Error(err))
		return 1
	}
	defer manager.Shutdown(context.Background())

	router := chi.NewRouter()
	router.Mount("/extensions", manager.Router())
	if cfg.ServeApp {
		router.Get("/extensions/sources/{type}.js", bundleHandler(manager))
	}

	server := &http.Server{Addr: *addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("lattice listening",
		zap.String("addr", *addr),
		zap.String("mode", cfg.Mode))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", zap.Error(err))
		return 1
	}
	return 0
}

// bundleHandler serves the compiled per-type extension bundles consumed by
// the client application shell.
func bundleHandler(manager *extension.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		t := extension.Type(chi.URLParam(req, "type"))
		source, ok := manager.AppBundle(t)
		if !ok {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		_, _ = w.Write([]byte(source))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
