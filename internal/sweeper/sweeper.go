package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/rsu-fleet-core/internal/rsu"
)

// Registry is the part of the device registry the sweeper reconciles.
// *rsu.Registry satisfies it.
type Registry interface {
	ListOnline(ctx context.Context) ([]rsu.RSU, error)
	SetOnline(ctx context.Context, id int64, online bool) error
	ListEdges(ctx context.Context) ([]rsu.Edge, error)
	DeleteEdge(ctx context.Context, id int64) error
	DeleteStaleTmps(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Liveness answers whether an identity has a live entry.
// *liveness.Tracker satisfies it.
type Liveness interface {
	RSUAlive(ctx context.Context, esn string) (bool, error)
	EdgeAlive(ctx context.Context, id int64) (bool, error)
}

// MetricsWriter records the outcome of each device sweep.
// *influxdb.Client satisfies it.
type MetricsWriter interface {
	WriteFleetLiveness(nodeID string, online, markedOffline int, ts time.Time)
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sweeper marks silent devices offline and removes silent edge nodes.
type Sweeper struct {
	registry Registry
	live     Liveness
	nodeID   string
	metrics  MetricsWriter
	logger   Logger
	now      func() time.Time
}

// New creates a Sweeper. nodeID tags the liveness metrics it writes.
func New(registry Registry, live Liveness, nodeID string) *Sweeper {
	return &Sweeper{
		registry: registry,
		live:     live,
		nodeID:   nodeID,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the sweeper.
func (s *Sweeper) SetLogger(logger Logger) {
	s.logger = logger
}

// SetMetrics sets where sweep results are recorded. nil disables recording.
func (s *Sweeper) SetMetrics(m MetricsWriter) {
	s.metrics = m
}

// SweepRSUs marks every online device without a live entry offline and
// returns how many it marked.
//
// A device whose liveness lookup fails is left as it is until the next
// sweep. A device deleted mid-sweep is skipped.
func (s *Sweeper) SweepRSUs(ctx context.Context) (int, error) {
	online, err := s.registry.ListOnline(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing online rsus: %w", err)
	}

	marked := 0
	for _, d := range online {
		if err := ctx.Err(); err != nil {
			return marked, err
		}

		alive, err := s.live.RSUAlive(ctx, d.ESN)
		if err != nil {
			s.logger.Warn("liveness lookup failed", "esn", d.ESN, "error", err)
			continue
		}
		if alive {
			continue
		}

		if err := s.registry.SetOnline(ctx, d.ID, false); err != nil {
			if errors.Is(err, rsu.ErrRSUNotFound) {
				continue
			}
			return marked, fmt.Errorf("marking rsu %s offline: %w", d.ESN, err)
		}
		marked++
		s.logger.Info("rsu marked offline", "esn", d.ESN, "id", d.ID)
	}

	if s.metrics != nil {
		s.metrics.WriteFleetLiveness(s.nodeID, len(online)-marked, marked, s.now())
	}
	if marked > 0 {
		s.logger.Info("rsu sweep complete", "checked", len(online), "marked_offline", marked)
	}
	return marked, nil
}

// SweepEdges deletes every edge node without a live entry, with its
// sub-fleet, and returns how many it deleted.
func (s *Sweeper) SweepEdges(ctx context.Context) (int, error) {
	edges, err := s.registry.ListEdges(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing edge nodes: %w", err)
	}

	deleted := 0
	for _, e := range edges {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		alive, err := s.live.EdgeAlive(ctx, e.ID)
		if err != nil {
			s.logger.Warn("liveness lookup failed", "edge_id", e.ID, "error", err)
			continue
		}
		if alive {
			continue
		}

		if err := s.registry.DeleteEdge(ctx, e.ID); err != nil {
			if errors.Is(err, rsu.ErrEdgeNotFound) {
				continue
			}
			return deleted, fmt.Errorf("deleting edge node %d: %w", e.ID, err)
		}
		deleted++
		s.logger.Info("edge node expired", "edge_id", e.ID, "name", e.Name)
	}
	return deleted, nil
}

// SweepTmps removes provisional devices older than maxAge.
// A zero maxAge disables the cleanup.
func (s *Sweeper) SweepTmps(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	return s.registry.DeleteStaleTmps(ctx, maxAge)
}
