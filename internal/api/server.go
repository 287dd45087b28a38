// Package api exposes docindex operations over HTTP as JSON.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/index"
	"github.com/Aman-CERP/docindex/internal/search"
	"github.com/Aman-CERP/docindex/internal/service"
	"github.com/Aman-CERP/docindex/internal/store"
)

// Backend is the part of the service the routes call. *service.Service
// satisfies it.
type Backend interface {
	IngestText(ctx context.Context, name, text string, meta service.DocumentMeta) (*index.Outcome, error)
	GetDocument(ctx context.Context, id int64) (*store.Document, error)
	ListDocuments(ctx context.Context, opts store.ListOptions) ([]*store.Document, error)
	DeleteDocument(ctx context.Context, id int64) error
	Query(ctx context.Context, text string, limit int) (*search.Response, error)
	Rebuild(ctx context.Context, opts index.RebuildOptions) (*index.RebuildResult, error)
	Reconcile(ctx context.Context) (*index.ReconcileResult, error)
	DetailedStats(ctx context.Context) (*service.DetailedStats, error)
}

// MaxBodyBytes bounds a request body. It matches the default extraction
// limit so any file the CLI accepts can also be posted as text.
const MaxBodyBytes = 50 << 20

// shutdownTimeout bounds graceful shutdown once the context is cancelled.
const shutdownTimeout = 10 * time.Second

// Server serves the HTTP API.
type Server struct {
	cfg     config.ServerConfig
	backend Backend
	router  chi.Router
}

// NewServer creates a server and builds its router.
func NewServer(backend Backend, cfg config.ServerConfig) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	s := &Server{cfg: cfg, backend: backend}
	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/query", s.handleQuery)

	r.Route("/documents", func(r chi.Router) {
		r.Get("/", s.handleListDocuments)
		r.Post("/", s.handleCreateDocument)
		r.Get("/{id}", s.handleGetDocument)
		r.Delete("/{id}", s.handleDeleteDocument)
	})

	r.Route("/index", func(r chi.Router) {
		r.Post("/rebuild", s.handleRebuild)
		r.Post("/reconcile", s.handleReconcile)
	})

	return r
}

// Run listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTPAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http_server_started", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		slog.Info("http_server_stopped")
		return err
	})
	return g.Wait()
}
