package api

import (
	"net/http"

	"github.com/nerrad567/rsu-fleet-core/internal/audit"
	"github.com/nerrad567/rsu-fleet-core/internal/query"
)

// handleCreateQuery fans a query out to the listed devices.
func (s *Server) handleCreateQuery(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if !decodeBody(w, r, &req) {
		return
	}

	q, err := s.gatherer.CreateQuery(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err, "create query")
		return
	}
	s.record(r, audit.ActionQuery, "query", q.ID, map[string]any{
		"query_type": q.QueryType,
		"targets":    len(q.Results),
	})
	writeJSON(w, http.StatusCreated, q)
}

// handleGetQuery returns a query with every device's placeholder and data.
func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	q, err := s.gatherer.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err, "get query")
		return
	}
	writeJSON(w, http.StatusOK, q)
}
