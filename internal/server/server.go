// Package server provides the HTTP API for Erabu.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hayate/erabu/internal/config"
	"github.com/hayate/erabu/internal/neighbor"
	"github.com/hayate/erabu/internal/session"
	"github.com/hayate/erabu/internal/store"
)

// Server is the HTTP server for the Erabu API.
type Server struct {
	manager *session.Manager
	index   *neighbor.Index
	store   store.DescriptorStore
	config  *config.ServerConfig
	appCfg  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	manager *session.Manager,
	ix *neighbor.Index,
	st store.DescriptorStore,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		manager: manager,
		index:   ix,
		store:   st,
		config:  &cfg.Server,
		appCfg:  cfg,
		logger:  logger,
	}
}

// Router builds the chi router with the full middleware stack and routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.config.RequestTimeout() > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout()))
	}
	r.Use(middleware.Compress(5))
	if s.config.RateLimitPerSecond > 0 {
		r.Use(rateLimit(s.config.RateLimitPerSecond, s.config.RateLimitBurst))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/adjudicate", s.handleAdjudicate)
			r.Post("/refine", s.handleRefine)
			r.Post("/classify", s.handleClassify)
			r.Get("/results", s.handleResults)
			r.Post("/reset", s.handleReset)
		})
		r.Get("/index/status", s.handleIndexStatus)
		r.Post("/index/reload", s.handleIndexReload)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
