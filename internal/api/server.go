// Package api exposes the lineage engine over HTTP.
package api

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/fieldtrace/internal/engine"
)

// Server serves the lineage API.
type Server struct {
	engine      *engine.Engine
	port        int
	watch       bool
	mappingsDir string
	logger      *slog.Logger
}

// Config holds configuration for the API server.
type Config struct {
	Engine      *engine.Engine
	Port        int
	Watch       bool
	MappingsDir string
	Logger      *slog.Logger
}

// NewServer creates a new API server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		engine:      cfg.Engine,
		port:        cfg.Port,
		watch:       cfg.Watch,
		mappingsDir: cfg.MappingsDir,
		logger:      logger,
	}
}

// Handler builds the route tree. Exposed separately so tests can drive it
// through httptest without a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/lookup", s.handleLookup)
		r.Post("/ingest", s.handleIngest)
		r.Post("/reset", s.handleReset)
		r.Route("/debug", func(r chi.Router) {
			r.Get("/mappings", s.handleDebugMappings)
			r.Get("/workflows", s.handleDebugWorkflows)
			r.Get("/endpoints", s.handleDebugEndpoints)
			r.Get("/edges", s.handleDebugEdges)
		})
	})

	return r
}

// Serve starts the API server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting API server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch && s.mappingsDir != "" {
		eg.Go(func() error {
			return s.watchMappings(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down API server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// watchMappings re-ingests the mappings directory when an export changes.
func (s *Server) watchMappings(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watchDirRecursive(watcher, s.mappingsDir); err != nil {
		s.logger.Error("failed to watch mappings directory", "error", err)
		// Don't fail - continue without watching
	}

	// Debounce timer
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".xml") {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(250*time.Millisecond, func() {
				s.logger.Debug("mapping export changed, re-ingesting", "file", event.Name)
				if _, err := s.engine.IngestDir(ctx); err != nil {
					s.logger.Error("re-ingest failed", "error", err)
				}
			})

		case err := <-watcher.Errors:
			s.logger.Error("watcher error", "error", err)
		}
	}
}

// watchDirRecursive adds a directory and all subdirectories to the watcher.
func watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
