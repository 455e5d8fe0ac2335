package rsu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/rsu-fleet-core/internal/protocol"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry applies fleet rules on top of a Repository.
//
// All public methods are safe for concurrent use; consistency across
// tables comes from the repository's transactions.
type Registry struct {
	repo   Repository
	logger Logger
	now    func() time.Time
}

// NewRegistry creates a new device registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// =============================================================================
// Devices
// =============================================================================

// ReportIdentity applies a device's self-description.
//
// A registered ESN is updated in place, last write wins. An unknown ESN
// becomes a provisional device. A report for an ESN that is already
// provisional is dropped and reported as OutcomeDuplicate with a zero ID.
func (r *Registry) ReportIdentity(ctx context.Context, rep protocol.IdentityReport) (Outcome, error) {
	if err := rep.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrInvalidRSU, err)
	}

	existing, err := r.repo.GetRSUByESN(ctx, rep.ESN)
	switch {
	case err == nil:
		if err := r.repo.UpdateIdentity(ctx, existing.ID, rep); err != nil {
			return Outcome{}, fmt.Errorf("updating rsu %s: %w", rep.ESN, err)
		}
		r.logger.Debug("rsu identity updated", "esn", rep.ESN, "id", existing.ID)
		return Outcome{Kind: OutcomeUpdated, ID: existing.ID}, nil
	case !errors.Is(err, ErrRSUNotFound):
		return Outcome{}, fmt.Errorf("looking up rsu %s: %w", rep.ESN, err)
	}

	tmp := &Tmp{
		ESN:      rep.ESN,
		Name:     rep.Name,
		Version:  rep.Version,
		Location: rep.Location,
		Status:   rep.Status,
	}
	created, err := r.repo.CreateTmp(ctx, tmp)
	if err != nil {
		return Outcome{}, fmt.Errorf("recording provisional rsu %s: %w", rep.ESN, err)
	}
	if !created {
		r.logger.Debug("duplicate identity report for provisional rsu", "esn", rep.ESN)
		return Outcome{Kind: OutcomeDuplicate}, nil
	}

	r.logger.Info("provisional rsu created", "esn", rep.ESN, "tmp_id", tmp.ID)
	return Outcome{Kind: OutcomeProvisional, ID: tmp.ID}, nil
}

// Promote registers a provisional device.
// Returns ErrTmpNotFound, or ErrRSUExists if the ESN is already registered.
func (r *Registry) Promote(ctx context.Context, tmpID int64, req PromoteRequest) (*RSU, error) {
	if len(req.Name) > maxNameLength {
		return nil, fmt.Errorf("%w: name exceeds %d characters", ErrInvalidRSU, maxNameLength)
	}

	d, err := r.repo.PromoteTmp(ctx, tmpID, req)
	if err != nil {
		return nil, err
	}
	r.logger.Info("rsu promoted", "esn", d.ESN, "id", d.ID, "tmp_id", tmpID)
	return d, nil
}

// Create registers a device directly. It is created online.
// Returns ErrInvalidRSU or ErrRSUExists.
func (r *Registry) Create(ctx context.Context, d *RSU) error {
	if err := d.Validate(); err != nil {
		return err
	}
	d.Online = true
	if err := r.repo.CreateRSU(ctx, d); err != nil {
		return err
	}
	r.logger.Info("rsu created", "esn", d.ESN, "id", d.ID)
	return nil
}

// Get retrieves a device by id.
func (r *Registry) Get(ctx context.Context, id int64) (*RSU, error) {
	return r.repo.GetRSU(ctx, id)
}

// GetByESN retrieves a device by ESN.
func (r *Registry) GetByESN(ctx context.Context, esn string) (*RSU, error) {
	return r.repo.GetRSUByESN(ctx, esn)
}

// List retrieves all devices.
func (r *Registry) List(ctx context.Context) ([]RSU, error) {
	return r.repo.ListRSUs(ctx)
}

// ListOnline retrieves devices currently marked online.
func (r *Registry) ListOnline(ctx context.Context) ([]RSU, error) {
	return r.repo.ListOnlineRSUs(ctx)
}

// SetOnline sets a device's online flag.
func (r *Registry) SetOnline(ctx context.Context, id int64, online bool) error {
	if err := r.repo.SetOnline(ctx, id, online); err != nil {
		return err
	}
	r.logger.Debug("rsu online state set", "id", id, "online", online)
	return nil
}

// Delete removes a device with its query results, management settings and
// delivery targets.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	if err := r.repo.DeleteRSU(ctx, id); err != nil {
		return err
	}
	r.logger.Info("rsu deleted", "id", id)
	return nil
}

// ListTmps retrieves all provisional devices.
func (r *Registry) ListTmps(ctx context.Context) ([]Tmp, error) {
	return r.repo.ListTmps(ctx)
}

// DeleteStaleTmps removes provisional devices older than maxAge and
// returns how many were removed.
func (r *Registry) DeleteStaleTmps(ctx context.Context, maxAge time.Duration) (int64, error) {
	n, err := r.repo.DeleteTmpsBefore(ctx, r.now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("stale provisional rsus removed", "count", n, "max_age", maxAge)
	}
	return n, nil
}

// =============================================================================
// Edge nodes
// =============================================================================

// RegisterEdge registers an edge node. Registering a known name again
// returns the same id.
func (r *Registry) RegisterEdge(ctx context.Context, name, ip, areaCode string) (*Edge, error) {
	if err := protocol.CheckSegment("edge name", name); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRSU, err)
	}
	e, err := r.repo.UpsertEdge(ctx, name, ip, areaCode)
	if err != nil {
		return nil, err
	}
	r.logger.Info("edge node registered", "name", name, "id", e.ID, "ip", ip)
	return e, nil
}

// GetEdge retrieves an edge node by id.
func (r *Registry) GetEdge(ctx context.Context, id int64) (*Edge, error) {
	return r.repo.GetEdge(ctx, id)
}

// ListEdges retrieves all edge nodes.
func (r *Registry) ListEdges(ctx context.Context) ([]Edge, error) {
	return r.repo.ListEdges(ctx)
}

// DeleteEdge removes an edge node and its sub-fleet.
func (r *Registry) DeleteEdge(ctx context.Context, id int64) error {
	if err := r.repo.DeleteEdge(ctx, id); err != nil {
		return err
	}
	r.logger.Info("edge node deleted", "id", id)
	return nil
}

// ReplaceEdgeFleet makes rsus the complete sub-fleet of edge node edgeID.
// Duplicate ESNs are rejected before anything is written.
func (r *Registry) ReplaceEdgeFleet(ctx context.Context, edgeID int64, rsus []EdgeRSU) error {
	seen := make(map[string]bool, len(rsus))
	for _, d := range rsus {
		if err := protocol.CheckSegment("edge rsu esn", d.ESN); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRSU, err)
		}
		if seen[d.ESN] {
			return fmt.Errorf("%w: esn %s listed twice", ErrInvalidRSU, d.ESN)
		}
		seen[d.ESN] = true
	}

	if err := r.repo.ReplaceEdgeRSUs(ctx, edgeID, rsus); err != nil {
		return err
	}
	r.logger.Debug("edge fleet replaced", "edge_id", edgeID, "count", len(rsus))
	return nil
}

// UpdateEdgeRSULocation moves one device of an edge node's sub-fleet.
func (r *Registry) UpdateEdgeRSULocation(ctx context.Context, edgeID int64, esn string, loc protocol.Location) error {
	if err := loc.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRSU, err)
	}
	return r.repo.UpdateEdgeRSULocation(ctx, edgeID, esn, loc)
}

// ListEdgeRSUs retrieves an edge node's sub-fleet.
func (r *Registry) ListEdgeRSUs(ctx context.Context, edgeID int64) ([]EdgeRSU, error) {
	return r.repo.ListEdgeRSUs(ctx, edgeID)
}
