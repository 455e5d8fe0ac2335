package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/rsu-fleet-core/internal/audit"
	"github.com/nerrad567/rsu-fleet-core/internal/dispatch"
)

// dispatchJobRequest is the body of POST /jobs.
// An empty rsu_ids list broadcasts the job to every device.
type dispatchJobRequest struct {
	Kind    dispatch.Kind   `json:"kind"`
	Name    string          `json:"name"`
	Content json.RawMessage `json:"content"`
	RSUIDs  []int64         `json:"rsu_ids"`
}

// jobResponse is a job with the delivery state of each target.
type jobResponse struct {
	*dispatch.Job
	Targets []dispatch.Target `json:"targets"`
}

// handleDispatchJob records a job and publishes it to its targets.
func (s *Server) handleDispatchJob(w http.ResponseWriter, r *http.Request) {
	var req dispatchJobRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.dispatcher.Dispatch(r.Context(), dispatch.Job{
		Kind:    req.Kind,
		Name:    req.Name,
		Content: req.Content,
	}, req.RSUIDs)
	if err != nil {
		s.writeServiceError(w, r, err, "dispatch job")
		return
	}
	if res.Targets == nil {
		res.Targets = []dispatch.Target{}
	}
	s.record(r, audit.ActionDispatch, "job", res.Job.ID, map[string]any{
		"kind":           res.Job.Kind,
		"targets":        len(res.Targets),
		"publish_failed": res.PublishFailed,
	})
	writeJSON(w, http.StatusCreated, res)
}

// handleGetJob returns a job and its per-device delivery status.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	job, err := s.dispatcher.GetJob(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err, "get job")
		return
	}
	targets, err := s.dispatcher.ListTargets(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err, "list job targets")
		return
	}
	if targets == nil {
		targets = []dispatch.Target{}
	}
	writeJSON(w, http.StatusOK, jobResponse{Job: job, Targets: targets})
}
