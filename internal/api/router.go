package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/audit", s.handleListAudit)

		r.Route("/rsus", func(r chi.Router) {
			r.Get("/", s.handleListRSUs)
			r.Post("/", s.handleCreateRSU)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRSU)
				r.Delete("/", s.handleDeleteRSU)
				r.Put("/online", s.handleSetOnline)
			})
		})

		r.Route("/rsu-tmps", func(r chi.Router) {
			r.Get("/", s.handleListTmps)
			r.Post("/{id}/promote", s.handlePromoteTmp)
		})

		r.Route("/edges", func(r chi.Router) {
			r.Get("/", s.handleListEdges)
			r.Get("/{id}", s.handleGetEdge)
			r.Delete("/{id}", s.handleDeleteEdge)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleDispatchJob)
			r.Get("/{id}", s.handleGetJob)
		})

		r.Route("/queries", func(r chi.Router) {
			r.Post("/", s.handleCreateQuery)
			r.Get("/{id}", s.handleGetQuery)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
