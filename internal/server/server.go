// Package server exposes request cycles, history, validation and plugins
// over HTTP and streams cycle events over a websocket.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/michaelbrown/cadforge/internal/agent"
	"github.com/michaelbrown/cadforge/internal/config"
	"github.com/michaelbrown/cadforge/internal/plugins"
	"github.com/michaelbrown/cadforge/internal/script"
	"github.com/michaelbrown/cadforge/internal/storage"
)

// Processor runs request cycles.
type Processor interface {
	Process(ctx context.Context, request string) *agent.Cycle
}

// Deps are the collaborators the server exposes.
type Deps struct {
	Config    *config.Config
	Processor Processor
	Checker   script.Checker
	Plugins   *plugins.Registry
	Store     storage.Store
	Logger    *zap.Logger
}

// Server is the HTTP server for the cadforge API.
type Server struct {
	Deps
	hub    *hub
	router chi.Router
	http   *http.Server
}

// New creates a new Server.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	s := &Server{
		Deps:   d,
		hub:    newHub(d.Logger),
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// websocket first, without the JSON content type
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(jsonContentType)

			r.Post("/requests", s.handleProcess)

			r.Get("/cycles", s.handleListCycles)
			r.Get("/cycles/{id}", s.handleGetCycle)
			r.Delete("/cycles/{id}", s.handleDeleteCycle)
			r.Get("/cycles/{id}/export", s.handleExportCycle)

			r.Post("/validate", s.handleValidate)

			r.Get("/plugins", s.handleListPlugins)
			r.Post("/plugins/{name}", s.handleInvokePlugin)

			r.Get("/providers", s.handleListProviders)
			r.Get("/models/{provider}", s.handleListModels)
		})
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Broadcast sends a cycle event to every connected websocket client.
func (s *Server) Broadcast(ev agent.Event) {
	s.hub.broadcast(ev)
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.Logger.Info("cadforge server starting", zap.String("addr", "http://localhost"+addr))
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("shutting down server")
	s.hub.closeAll()
	if s.http == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
