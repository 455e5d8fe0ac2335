package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/rsu-fleet-core/internal/protocol"
	"github.com/nerrad567/rsu-fleet-core/internal/router"
	"github.com/nerrad567/rsu-fleet-core/internal/rsu"
)

// Registry is the device registry surface the handlers use.
// *rsu.Registry satisfies it.
type Registry interface {
	ReportIdentity(ctx context.Context, rep protocol.IdentityReport) (rsu.Outcome, error)
	RegisterEdge(ctx context.Context, name, ip, areaCode string) (*rsu.Edge, error)
	GetEdge(ctx context.Context, id int64) (*rsu.Edge, error)
	ReplaceEdgeFleet(ctx context.Context, edgeID int64, rsus []rsu.EdgeRSU) error
	UpdateEdgeRSULocation(ctx context.Context, edgeID int64, esn string, loc protocol.Location) error
}

// Liveness refreshes TTL entries. *liveness.Tracker satisfies it.
type Liveness interface {
	TouchRSU(ctx context.Context, esn string) error
	TouchEdge(ctx context.Context, id int64) error
}

// Correlator applies acknowledgements. *dispatch.Dispatcher satisfies it.
type Correlator interface {
	OnAck(ctx context.Context, id string, errorCode int) (bool, error)
}

// Gatherer applies query responses. *query.Gatherer satisfies it.
type Gatherer interface {
	OnResponse(ctx context.Context, id string, data json.RawMessage) (bool, error)
}

// MetricsWriter records device running info. *influxdb.Client satisfies it.
type MetricsWriter interface {
	WriteRunningInfo(esn string, fields map[string]any, ts time.Time)
}

// Uplink forwards device positions to an upstream cloud.
// *uplink.Agent satisfies it.
type Uplink interface {
	ForwardLocation(ctx context.Context, esn string, loc protocol.Location) error
}

// Publisher sends replies on the fleet bus. *mqtt.Client satisfies it.
// Handlers run on the transport's delivery goroutine, so PublishAsync must
// not wait for the broker acknowledgement.
type Publisher interface {
	PublishAsync(topic string, payload []byte) error
}

// Logger defines the logging interface used by the handlers.
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

// Handlers holds the collaborators every inbound route needs.
// Metrics, Uplink and Logger are optional; Uplink is set only on edge nodes.
type Handlers struct {
	Registry  Registry
	Liveness  Liveness
	Acks      Correlator
	Responses Gatherer
	Publisher Publisher
	Metrics   MetricsWriter
	Uplink    Uplink
	Logger    Logger

	now func() time.Time
}

func (h *Handlers) log() Logger {
	if h.Logger == nil {
		return noopLogger{}
	}
	return h.Logger
}

func (h *Handlers) clock() time.Time {
	if h.now == nil {
		return time.Now()
	}
	return h.now()
}

// Register installs every uplink route on r.
func (h *Handlers) Register(r *router.Router) error {
	t := mqtt.Topics{}
	regs := []error{
		router.Route(r, t.RSUInfoUp(), h.onIdentity),
		router.Route(r, t.RSUHeartbeatUp(), h.onHeartbeat),
		router.Route(r, t.RSURunningInfoUp(), h.onRunningInfo),
		router.Route(r, t.AllRSUQueryUps(), h.onQueryResponse),
		router.Route(r, t.EdgeRegisterUp(), h.onEdgeRegister),
		router.Route(r, t.EdgeHeartbeatUp(), h.onEdgeHeartbeat),
		router.Route(r, t.EdgeSyncUp(), h.onEdgeSync),
		router.Route(r, t.EdgeLocationUp(), h.onEdgeLocation),
	}
	for _, seg := range mqtt.AckSegments {
		regs = append(regs, router.Route(r, t.AllRSUAcks(seg), h.onAck))
	}
	if err := errors.Join(regs...); err != nil {
		return fmt.Errorf("registering fleet routes: %w", err)
	}
	return nil
}

// =============================================================================
// Device uplink
// =============================================================================

func (h *Handlers) onIdentity(ctx context.Context, _ string, m protocol.IdentityReport) error {
	h.touchRSU(ctx, m.ESN)

	out, err := h.Registry.ReportIdentity(ctx, m)
	if err != nil {
		return err
	}

	ack := protocol.RegistrationAck{ESN: m.ESN, Status: protocol.RegistrationProvisional}
	if out.Kind == rsu.OutcomeUpdated {
		ack.Status = protocol.RegistrationRegistered
		ack.RSUID = out.ID
	}
	h.reply(mqtt.Topics{}.RSUInfoDown(m.ESN), ack)

	if h.Uplink != nil && out.Kind == rsu.OutcomeUpdated {
		if err := h.Uplink.ForwardLocation(ctx, m.ESN, m.Location); err != nil {
			h.log().Warn("forwarding location upstream failed", "esn", m.ESN, "error", err)
		}
	}
	return nil
}

func (h *Handlers) onHeartbeat(ctx context.Context, _ string, m protocol.Heartbeat) error {
	if err := h.Liveness.TouchRSU(ctx, m.ESN); err != nil {
		return fmt.Errorf("touching rsu %s: %w", m.ESN, err)
	}
	return nil
}

func (h *Handlers) onRunningInfo(ctx context.Context, _ string, m protocol.RunningInfo) error {
	h.touchRSU(ctx, m.ESN)

	if h.Metrics == nil || len(m.Metrics) == 0 {
		return nil
	}
	fields := make(map[string]any, len(m.Metrics))
	for k, v := range m.Metrics {
		fields[k] = v
	}
	ts := h.clock()
	if m.Timestamp > 0 {
		ts = time.Unix(m.Timestamp, 0)
	}
	h.Metrics.WriteRunningInfo(m.ESN, fields, ts)
	return nil
}

func (h *Handlers) onAck(ctx context.Context, topic string, m protocol.Ack) error {
	found, err := h.Acks.OnAck(ctx, m.ID, m.ErrorCode)
	if err != nil {
		return err
	}
	if !found {
		h.log().Debug("stale ack ignored", "topic", topic, "id", m.ID)
	}
	return nil
}

func (h *Handlers) onQueryResponse(ctx context.Context, topic string, m protocol.QueryResponse) error {
	found, err := h.Responses.OnResponse(ctx, m.ID, m.Data)
	if err != nil {
		return err
	}
	if !found {
		h.log().Debug("stale query response ignored", "topic", topic, "id", m.ID)
	}
	return nil
}

// =============================================================================
// Edge uplink
// =============================================================================

func (h *Handlers) onEdgeRegister(ctx context.Context, _ string, m protocol.EdgeRegister) error {
	e, err := h.Registry.RegisterEdge(ctx, m.Name, m.IP, m.AreaCode)
	if err != nil {
		return err
	}
	h.touchEdge(ctx, e.ID)
	h.reply(mqtt.Topics{}.EdgeRegisterDown(m.Name), protocol.EdgeRegisterReply{ID: e.ID, Name: e.Name})
	return nil
}

func (h *Handlers) onEdgeHeartbeat(ctx context.Context, _ string, m protocol.EdgeHeartbeat) error {
	if _, err := h.Registry.GetEdge(ctx, m.EdgeID); err != nil {
		if errors.Is(err, rsu.ErrEdgeNotFound) {
			h.log().Debug("heartbeat from unknown edge ignored", "edge_id", m.EdgeID)
			return nil
		}
		return err
	}
	if err := h.Liveness.TouchEdge(ctx, m.EdgeID); err != nil {
		return fmt.Errorf("touching edge %d: %w", m.EdgeID, err)
	}
	return nil
}

func (h *Handlers) onEdgeSync(ctx context.Context, _ string, m protocol.EdgeSync) error {
	rsus := make([]rsu.EdgeRSU, len(m.RSUs))
	for i, d := range m.RSUs {
		rsus[i] = rsu.EdgeRSUFromMessage(d)
	}

	if err := h.Registry.ReplaceEdgeFleet(ctx, m.EdgeID, rsus); err != nil {
		if errors.Is(err, rsu.ErrEdgeNotFound) {
			h.log().Warn("sync from unknown edge ignored", "edge_id", m.EdgeID)
			return nil
		}
		return err
	}
	h.touchEdge(ctx, m.EdgeID)
	return nil
}

func (h *Handlers) onEdgeLocation(ctx context.Context, _ string, m protocol.EdgeLocation) error {
	err := h.Registry.UpdateEdgeRSULocation(ctx, m.EdgeID, m.ESN, m.Location)
	if errors.Is(err, rsu.ErrRSUNotFound) {
		h.log().Debug("location for unknown edge rsu ignored", "edge_id", m.EdgeID, "esn", m.ESN)
		return nil
	}
	return err
}

// =============================================================================
// Helpers
// =============================================================================

// touchRSU refreshes a device's liveness entry. A store failure is logged
// and does not stop the rest of the handler.
func (h *Handlers) touchRSU(ctx context.Context, esn string) {
	if err := h.Liveness.TouchRSU(ctx, esn); err != nil {
		h.log().Warn("liveness touch failed", "esn", esn, "error", err)
	}
}

func (h *Handlers) touchEdge(ctx context.Context, id int64) {
	if err := h.Liveness.TouchEdge(ctx, id); err != nil {
		h.log().Warn("liveness touch failed", "edge_id", id, "error", err)
	}
}

// reply publishes a downlink answer without waiting for delivery.
// Failures are logged, never retried.
func (h *Handlers) reply(topic string, msg any) {
	if h.Publisher == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err == nil {
		err = h.Publisher.PublishAsync(topic, payload)
	}
	if err != nil {
		h.log().Warn("reply publish failed", "topic", topic, "error", err)
	}
}
