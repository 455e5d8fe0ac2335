package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nerrad567/rsu-fleet-core/internal/audit"
	"github.com/nerrad567/rsu-fleet-core/internal/protocol"
	"github.com/nerrad567/rsu-fleet-core/internal/rsu"
)

// createRSURequest is the body of POST /rsus.
type createRSURequest struct {
	ESN      string            `json:"esn"`
	Name     string            `json:"name"`
	Version  string            `json:"version"`
	Location protocol.Location `json:"location"`
	Status   int               `json:"status"`
	Config   json.RawMessage   `json:"config,omitempty"`
	ModelID  *int64            `json:"model_id,omitempty"`
	AreaCode *string           `json:"area_code,omitempty"`
}

// handleListRSUs returns registered devices.
//
// Query parameters:
//   - online: "true" restricts the list to devices marked online
func (s *Server) handleListRSUs(w http.ResponseWriter, r *http.Request) {
	list := s.registry.List
	if r.URL.Query().Get("online") == "true" {
		list = s.registry.ListOnline
	}

	devices, err := list(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "list rsus")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rsus": devices, "count": len(devices)})
}

// handleCreateRSU registers a device directly, bypassing the provisional table.
func (s *Server) handleCreateRSU(w http.ResponseWriter, r *http.Request) {
	var req createRSURequest
	if !decodeBody(w, r, &req) {
		return
	}

	d := &rsu.RSU{
		ESN:      req.ESN,
		Name:     req.Name,
		Version:  req.Version,
		Location: req.Location,
		Status:   req.Status,
		Config:   req.Config,
		ModelID:  req.ModelID,
		AreaCode: req.AreaCode,
	}
	if err := s.registry.Create(r.Context(), d); err != nil {
		s.writeServiceError(w, r, err, "create rsu")
		return
	}
	s.record(r, audit.ActionCreate, "rsu", d.ID, map[string]any{"esn": d.ESN})
	writeJSON(w, http.StatusCreated, d)
}

// handleGetRSU returns a single device by id.
func (s *Server) handleGetRSU(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	d, err := s.registry.Get(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err, "get rsu")
		return
	}

	resp := rsuResponse{RSU: d}
	if s.liveness != nil {
		seen, ok, err := s.liveness.RSULastSeen(ctx, d.ESN)
		if err != nil {
			s.logger.Warn("reading last seen failed", "esn", d.ESN, "error", err)
		} else if ok {
			resp.LastSeen = &seen
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// rsuResponse is a device plus the time its liveness entry was last
// refreshed. LastSeen is omitted once the entry has expired.
type rsuResponse struct {
	*rsu.RSU
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// handleDeleteRSU removes a device together with its delivery and query history.
func (s *Server) handleDeleteRSU(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	d, err := s.registry.Get(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err, "delete rsu")
		return
	}
	if err := s.registry.Delete(ctx, id); err != nil {
		s.writeServiceError(w, r, err, "delete rsu")
		return
	}
	if s.liveness != nil {
		if err := s.liveness.ForgetRSU(ctx, d.ESN); err != nil {
			s.logger.Warn("clearing rsu liveness failed", "esn", d.ESN, "error", err)
		}
	}
	s.record(r, audit.ActionDelete, "rsu", id, map[string]any{"esn": d.ESN})
	w.WriteHeader(http.StatusNoContent)
}

// handleSetOnline sets a device's operator-visible online flag.
// Body: {"online": bool}
func (s *Server) handleSetOnline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Online *bool `json:"online"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Online == nil {
		writeBadRequest(w, "online is required")
		return
	}

	ctx := r.Context()
	if err := s.registry.SetOnline(ctx, id, *req.Online); err != nil {
		s.writeServiceError(w, r, err, "set online")
		return
	}
	s.record(r, audit.ActionOnline, "rsu", id, map[string]any{"online": *req.Online})
	d, err := s.registry.Get(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err, "get rsu")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleListTmps returns provisional devices awaiting promotion.
func (s *Server) handleListTmps(w http.ResponseWriter, r *http.Request) {
	tmps, err := s.registry.ListTmps(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "list provisional rsus")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rsu_tmps": tmps, "count": len(tmps)})
}

// handlePromoteTmp registers a provisional device.
// The body is optional; an empty body keeps the reported name.
func (s *Server) handlePromoteTmp(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req rsu.PromoteRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	d, err := s.registry.Promote(r.Context(), id, req)
	if err != nil {
		s.writeServiceError(w, r, err, "promote rsu")
		return
	}
	s.record(r, audit.ActionPromote, "rsu", d.ID, map[string]any{"esn": d.ESN, "tmp_id": id})
	writeJSON(w, http.StatusCreated, d)
}
