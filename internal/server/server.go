// Package server sets up the HTTP router, middleware, and request handlers.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/omnidotdev/synapse/internal/state"
)

// Server holds the HTTP router and all dependencies that handlers need.
type Server struct {
	router chi.Router
	state  *state.State
	log    *slog.Logger
}

// New creates a Server, wires up routes and middleware, and returns it
// ready to use as an http.Handler.
func New(st *state.State, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{state: st, log: log}
	s.routes()
	return s
}

// routes builds the chi router with all middleware and route definitions.
func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/v1/models", s.handleListModels)
	r.Post("/v1/chat/completions", s.handleChatCompletions)
	r.Post("/v1/messages", s.handleMessages)

	s.router = r
}

// ServeHTTP makes Server satisfy the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
