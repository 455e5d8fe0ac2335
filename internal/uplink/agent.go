package uplink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/rsu-fleet-core/internal/protocol"
	"github.com/nerrad567/rsu-fleet-core/internal/rsu"
)

// ErrNotRegistered is returned by operations that need an assigned edge id.
var ErrNotRegistered = errors.New("uplink: not registered with upstream")

// Transport is the upstream bus connection. *mqtt.Client satisfies it.
type Transport interface {
	PublishDefault(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
}

// Fleet lists the devices this edge node owns. *rsu.Registry satisfies it.
type Fleet interface {
	List(ctx context.Context) ([]rsu.RSU, error)
}

// Logger defines the logging interface used by the Agent.
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

// Identity is how this edge node introduces itself upstream.
type Identity struct {
	Name     string
	IP       string
	AreaCode string
}

// Agent relays this edge node's state to the upstream cloud.
//
// All public methods are safe for concurrent use.
type Agent struct {
	id        Identity
	transport Transport
	fleet     Fleet
	qos       byte
	logger    Logger

	edgeID atomic.Int64

	locMu     sync.Mutex
	locations map[string]protocol.Location
}

// NewAgent creates an Agent for id over the upstream transport.
func NewAgent(id Identity, transport Transport, fleet Fleet, qos byte) *Agent {
	return &Agent{
		id:        id,
		transport: transport,
		fleet:     fleet,
		qos:       qos,
		logger:    noopLogger{},
		locations: make(map[string]protocol.Location),
	}
}

// SetLogger sets the logger for the agent.
func (a *Agent) SetLogger(logger Logger) {
	a.logger = logger
}

// EdgeID returns the id assigned by the upstream cloud, or 0.
func (a *Agent) EdgeID() int64 {
	return a.edgeID.Load()
}

// Start subscribes to registration replies and sends the first registration.
func (a *Agent) Start(ctx context.Context) error {
	topic := mqtt.Topics{}.EdgeRegisterDown(a.id.Name)
	if err := a.transport.Subscribe(topic, a.qos, a.handleReply); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return a.Register(ctx)
}

// Register publishes this node's registration.
func (a *Agent) Register(_ context.Context) error {
	return a.publish(mqtt.Topics{}.EdgeRegisterUp(), protocol.EdgeRegister{
		Name:     a.id.Name,
		IP:       a.id.IP,
		AreaCode: a.id.AreaCode,
	})
}

// handleReply stores the id carried by a registration reply.
func (a *Agent) handleReply(_ string, payload []byte) error {
	var reply protocol.EdgeRegisterReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return fmt.Errorf("decoding register reply: %w", err)
	}
	if err := reply.Validate(); err != nil {
		return err
	}
	if reply.Name != a.id.Name {
		return nil
	}

	if prev := a.edgeID.Swap(reply.ID); prev != reply.ID {
		a.logger.Info("registered with upstream", "edge_id", reply.ID, "previous_id", prev)
	}
	return nil
}

// Heartbeat publishes a heartbeat, or re-sends the registration while no
// id has been assigned.
func (a *Agent) Heartbeat(ctx context.Context) error {
	id := a.EdgeID()
	if id == 0 {
		return a.Register(ctx)
	}
	return a.publish(mqtt.Topics{}.EdgeHeartbeatUp(), protocol.EdgeHeartbeat{EdgeID: id})
}

// Sync refreshes the registration and publishes the complete local fleet.
// Returns ErrNotRegistered until an id has been assigned.
func (a *Agent) Sync(ctx context.Context) error {
	if err := a.Register(ctx); err != nil {
		return err
	}
	id := a.EdgeID()
	if id == 0 {
		return ErrNotRegistered
	}

	devices, err := a.fleet.List(ctx)
	if err != nil {
		return fmt.Errorf("listing local fleet: %w", err)
	}

	msg := protocol.EdgeSync{EdgeID: id, RSUs: make([]protocol.EdgeRSU, len(devices))}
	a.locMu.Lock()
	for i, d := range devices {
		msg.RSUs[i] = protocol.EdgeRSU{
			ESN:      d.ESN,
			Name:     d.Name,
			Version:  d.Version,
			Location: d.Location,
			Status:   d.Status,
			Online:   d.Online,
		}
		a.locations[d.ESN] = d.Location
	}
	a.locMu.Unlock()

	if err := a.publish(mqtt.Topics{}.EdgeSyncUp(), msg); err != nil {
		return err
	}
	a.logger.Debug("fleet synced upstream", "edge_id", id, "count", len(devices))
	return nil
}

// ForwardLocation reports a device's position upstream if it differs from
// the last one sent. Nothing is sent before registration.
func (a *Agent) ForwardLocation(_ context.Context, esn string, loc protocol.Location) error {
	id := a.EdgeID()
	if id == 0 {
		return nil
	}

	a.locMu.Lock()
	prev, known := a.locations[esn]
	if known && prev == loc {
		a.locMu.Unlock()
		return nil
	}
	a.locations[esn] = loc
	a.locMu.Unlock()

	return a.publish(mqtt.Topics{}.EdgeLocationUp(), protocol.EdgeLocation{
		EdgeID:   id,
		ESN:      esn,
		Location: loc,
	})
}

func (a *Agent) publish(topic string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %T: %w", msg, err)
	}
	if err := a.transport.PublishDefault(topic, payload); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}
