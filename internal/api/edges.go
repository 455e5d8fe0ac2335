package api

import (
	"net/http"

	"github.com/nerrad567/rsu-fleet-core/internal/audit"
	"github.com/nerrad567/rsu-fleet-core/internal/rsu"
)

// edgeResponse is an edge node with the sub-fleet it last synced.
type edgeResponse struct {
	*rsu.Edge
	RSUs []rsu.EdgeRSU `json:"rsus"`
}

// handleListEdges returns all registered edge nodes.
func (s *Server) handleListEdges(w http.ResponseWriter, r *http.Request) {
	edges, err := s.registry.ListEdges(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "list edges")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"edges": edges, "count": len(edges)})
}

// handleGetEdge returns an edge node and its devices.
func (s *Server) handleGetEdge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	e, err := s.registry.GetEdge(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err, "get edge")
		return
	}
	devices, err := s.registry.ListEdgeRSUs(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err, "list edge rsus")
		return
	}
	if devices == nil {
		devices = []rsu.EdgeRSU{}
	}
	writeJSON(w, http.StatusOK, edgeResponse{Edge: e, RSUs: devices})
}

// handleDeleteEdge removes an edge node and its reported devices.
func (s *Server) handleDeleteEdge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := s.registry.DeleteEdge(ctx, id); err != nil {
		s.writeServiceError(w, r, err, "delete edge")
		return
	}
	if s.liveness != nil {
		if err := s.liveness.ForgetEdge(ctx, id); err != nil {
			s.logger.Warn("clearing edge liveness failed", "edge_id", id, "error", err)
		}
	}
	s.record(r, audit.ActionDelete, "edge", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
