package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/rsu-fleet-core/internal/protocol"
)

// Publisher sends a message on the fleet bus at the default QoS.
// *mqtt.Client satisfies it.
type Publisher interface {
	PublishDefault(topic string, payload []byte) error
}

// Logger defines the logging interface used by the Dispatcher.
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

// Dispatcher records jobs, publishes them, and applies acknowledgements.
//
// All public methods are safe for concurrent use.
type Dispatcher struct {
	repo   Repository
	pub    Publisher
	logger Logger

	jobs          atomic.Uint64
	targets       atomic.Uint64
	published     atomic.Uint64
	publishFailed atomic.Uint64
	acksMatched   atomic.Uint64
	acksUnknown   atomic.Uint64
}

// NewDispatcher creates a Dispatcher that publishes through pub.
func NewDispatcher(repo Repository, pub Publisher) *Dispatcher {
	return &Dispatcher{
		repo:   repo,
		pub:    pub,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Dispatch records job and sends it to each device in rsuIDs.
//
// Every device gets its own pending Target with a fresh correlation id and
// its own message on V2X/RSU/<esn>/<KIND>/DOWN. With no rsuIDs the job is
// published once on the kind's broadcast topic and no targets are created.
//
// Unknown device ids fail the whole call with rsu.ErrRSUNotFound before
// anything is written. Publish failures do not fail the call: they are
// logged, counted in the Result, and their targets stay pending.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job, rsuIDs []int64) (*Result, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	rsuIDs = dedupe(rsuIDs)

	targets, err := d.repo.CreateJob(ctx, &job, rsuIDs)
	if err != nil {
		return nil, err
	}
	d.jobs.Add(1)
	d.targets.Add(uint64(len(targets)))

	res := &Result{Job: job, Targets: targets}
	segment := job.Kind.Segment()

	if len(targets) == 0 {
		d.publish(res, mqtt.Topics{}.BroadcastDown(segment), protocol.ConfigPush{
			Kind:    string(job.Kind),
			Name:    job.Name,
			Content: job.Content,
		})
		d.logger.Info("job broadcast", "job_id", job.ID, "kind", job.Kind)
		return res, nil
	}

	for _, t := range targets {
		d.publish(res, mqtt.Topics{}.RSUDown(t.ESN, segment), protocol.ConfigPush{
			ID:      t.ID,
			Kind:    string(job.Kind),
			Name:    job.Name,
			Content: job.Content,
		})
	}

	d.logger.Info("job dispatched",
		"job_id", job.ID,
		"kind", job.Kind,
		"targets", len(targets),
		"publish_failed", res.PublishFailed,
	)
	return res, nil
}

func (d *Dispatcher) publish(res *Result, topic string, msg protocol.ConfigPush) {
	payload, err := json.Marshal(msg)
	if err == nil {
		err = d.pub.PublishDefault(topic, payload)
	}
	if err != nil {
		res.PublishFailed++
		d.publishFailed.Add(1)
		d.logger.Warn("job publish failed", "job_id", res.Job.ID, "topic", topic, "id", msg.ID, "error", err)
		return
	}
	res.Published++
	d.published.Add(1)
}

// GetJob retrieves a job by id.
func (d *Dispatcher) GetJob(ctx context.Context, id int64) (*Job, error) {
	return d.repo.GetJob(ctx, id)
}

// ListTargets retrieves a job's delivery targets.
// Returns ErrJobNotFound if the job does not exist.
func (d *Dispatcher) ListTargets(ctx context.Context, jobID int64) ([]Target, error) {
	if _, err := d.repo.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return d.repo.ListTargets(ctx, jobID)
}

// OnAck applies a device acknowledgement.
//
// The correlation id is matched against delivery targets first and query
// results second. Error code 0 marks the record delivered, anything else
// failed. An id matching neither is a stale or foreign ack: OnAck returns
// false and changes nothing. Applying the same ack twice leaves the same
// state.
func (d *Dispatcher) OnAck(ctx context.Context, id string, errorCode int) (bool, error) {
	status := StatusForCode(errorCode)

	found, err := d.repo.MarkTarget(ctx, id, status, errorCode)
	if err != nil {
		return false, fmt.Errorf("applying ack %s: %w", id, err)
	}
	if !found {
		found, err = d.repo.MarkQueryResult(ctx, id, status)
		if err != nil {
			return false, fmt.Errorf("applying ack %s: %w", id, err)
		}
	}

	if !found {
		d.acksUnknown.Add(1)
		d.logger.Debug("ack for unknown correlation id", "id", id)
		return false, nil
	}

	d.acksMatched.Add(1)
	d.logger.Debug("ack applied", "id", id, "status", status.String(), "error_code", errorCode)
	return true, nil
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Jobs:          d.jobs.Load(),
		Targets:       d.targets.Load(),
		Published:     d.published.Load(),
		PublishFailed: d.publishFailed.Load(),
		AcksMatched:   d.acksMatched.Load(),
		AcksUnknown:   d.acksUnknown.Load(),
	}
}

// dedupe drops repeated ids, keeping first occurrences in order.
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
