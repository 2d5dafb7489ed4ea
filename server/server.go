// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package server exposes ingestion and context retrieval over HTTP.
//
// Every response is a JSON envelope with a success flag. Failures carry a
// short public message; the underlying error is logged and never returned
// to the caller.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/ingestion"
	"github.com/poiesic/sheetvec/storage"
)

var (
	// ErrIngesterRequired is returned when no ingestion pipeline is provided.
	ErrIngesterRequired = errors.New("ingester required")

	// ErrRetrieverRequired is returned when no context retriever is provided.
	ErrRetrieverRequired = errors.New("retriever required")
)

// Ingester runs one ingestion request.
type Ingester interface {
	Ingest(ctx context.Context, req ingestion.IngestRequest) (*core.IngestResult, error)
}

// Retriever produces context text for a query.
type Retriever interface {
	Context(ctx context.Context, query string) (string, error)
}

// Config holds the HTTP surface settings.
type Config struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string

	// AllowedOrigins lists the CORS origins. Empty allows any origin.
	AllowedOrigins []string

	// JWTSecret enables HS256 bearer authentication on the API routes when set.
	JWTSecret string

	// RequestTimeout bounds each request, including the whole ingestion.
	// Default: 5m
	RequestTimeout time.Duration

	// DefaultOptions fills in the ingestion options a request leaves out.
	DefaultOptions core.IngestOptions
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	ingester   Ingester
	retriever  Retriever
	runs       storage.RunRepository
	config     Config
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithRunRepository exposes ingestion runs under /runs.
func WithRunRepository(runs storage.RunRepository) Option {
	return func(s *Server) error {
		s.runs = runs
		return nil
	}
}

// NewServer builds and wires all routes.
func NewServer(cfg Config, ingester Ingester, retriever Retriever, opts ...Option) (*Server, error) {
	if ingester == nil {
		return nil, ErrIngesterRequired
	}
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if cfg.DefaultOptions.SplittingMethod == 0 {
		cfg.DefaultOptions = core.DefaultIngestOptions()
	}

	s := &Server{
		ingester:  ingester,
		retriever: retriever,
		config:    cfg,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "server")

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.RequestTimeout))

	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Group(func(api chi.Router) {
		if s.config.JWTSecret != "" {
			api.Use(JWTAuth([]byte(s.config.JWTSecret)))
		}
		api.Post("/ingest", s.handleIngest)
		api.Post("/context", s.handleContext)
		if s.runs != nil {
			api.Get("/runs", s.handleListRuns)
			api.Get("/runs/{id}", s.handleGetRun)
		}
	})

	return r
}

// Handler returns the routed handler, for tests and embedding in other servers.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve runs the HTTP server on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("HTTP server listening", "addr", l.Addr().String())
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
