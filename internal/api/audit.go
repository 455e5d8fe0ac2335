package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/rsu-fleet-core/internal/audit"
)

// auditSource tags entries written by this API.
const auditSource = "api"

// record appends an audit entry for a completed write.
// A failed insert is logged; the request still succeeds.
func (s *Server) record(r *http.Request, action, entityType string, entityID int64, details map[string]any) {
	if s.audit == nil {
		return
	}
	requestID, _ := r.Context().Value(ctxKeyRequestID).(string)

	e := &audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   strconv.FormatInt(entityID, 10),
		Source:     auditSource,
		RequestID:  requestID,
		Details:    details,
	}
	if err := s.audit.Create(r.Context(), e); err != nil {
		s.logger.Warn("audit write failed",
			"action", action,
			"entity_type", entityType,
			"entity_id", entityID,
			"error", err,
		)
	}
}

// handleListAudit returns recorded operator actions, newest first.
//
// Query parameters:
//   - action, entity_type, entity_id: exact-match filters
//   - limit (default 50, max 200), offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusOK, audit.Page{Entries: []audit.Entry{}})
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, name+" must be an integer")
			return
		}
		*dst = n
	}

	page, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err, "list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, page)
}
