package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/rsu-fleet-core/internal/protocol"
)

// Publisher sends a message on the fleet bus at the default QoS.
type Publisher interface {
	PublishDefault(topic string, payload []byte) error
}

// Logger defines the logging interface used by the Gatherer.
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

// Gatherer creates fan-out queries and collects device responses.
type Gatherer struct {
	repo   Repository
	pub    Publisher
	logger Logger

	queries          atomic.Uint64
	published        atomic.Uint64
	publishFailed    atomic.Uint64
	responsesMatched atomic.Uint64
	responsesUnknown atomic.Uint64
}

// NewGatherer creates a Gatherer that publishes through pub.
func NewGatherer(repo Repository, pub Publisher) *Gatherer {
	return &Gatherer{
		repo:   repo,
		pub:    pub,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the gatherer.
func (g *Gatherer) SetLogger(logger Logger) {
	g.logger = logger
}

// CreateQuery records a query with one placeholder per device and sends a
// QueryRequest to each device on V2X/RSU/<esn>/QUERY/DOWN.
//
// Returns ErrInvalidQuery for an empty target list and rsu.ErrRSUNotFound
// for unknown devices. Publish failures are logged; the placeholder stays
// pending.
func (g *Gatherer) CreateQuery(ctx context.Context, req Request) (*Query, error) {
	ids := dedupe(req.RSUIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one target is required", ErrInvalidQuery)
	}

	q := &Query{QueryType: req.QueryType, TimeType: req.TimeType}
	if err := g.repo.CreateQuery(ctx, q, ids); err != nil {
		return nil, err
	}
	g.queries.Add(1)

	failed := 0
	for _, res := range q.Results {
		topic := mqtt.Topics{}.RSUDown(res.ESN, mqtt.SegmentQuery)
		payload, err := json.Marshal(protocol.QueryRequest{
			ID:        res.ID,
			QueryType: q.QueryType,
			TimeType:  q.TimeType,
		})
		if err == nil {
			err = g.pub.PublishDefault(topic, payload)
		}
		if err != nil {
			failed++
			g.publishFailed.Add(1)
			g.logger.Warn("query publish failed", "query_id", q.ID, "topic", topic, "id", res.ID, "error", err)
			continue
		}
		g.published.Add(1)
	}

	g.logger.Info("query created",
		"query_id", q.ID,
		"query_type", q.QueryType,
		"targets", len(q.Results),
		"publish_failed", failed,
	)
	return q, nil
}

// OnResponse attaches a device's answer to the placeholder with correlation
// id id. It returns false and changes nothing when id is unknown.
func (g *Gatherer) OnResponse(ctx context.Context, id string, data json.RawMessage) (bool, error) {
	found, err := g.repo.AppendResponse(ctx, id, data)
	if err != nil {
		return false, fmt.Errorf("applying response %s: %w", id, err)
	}
	if !found {
		g.responsesUnknown.Add(1)
		g.logger.Debug("response for unknown correlation id", "id", id)
		return false, nil
	}
	g.responsesMatched.Add(1)
	return true, nil
}

// Get returns a query with every placeholder and all data received so far.
func (g *Gatherer) Get(ctx context.Context, queryID int64) (*Query, error) {
	return g.repo.GetQuery(ctx, queryID)
}

// Stats returns a snapshot of the gatherer counters.
func (g *Gatherer) Stats() Stats {
	return Stats{
		Queries:          g.queries.Load(),
		Published:        g.published.Load(),
		PublishFailed:    g.publishFailed.Load(),
		ResponsesMatched: g.responsesMatched.Load(),
		ResponsesUnknown: g.responsesUnknown.Load(),
	}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
