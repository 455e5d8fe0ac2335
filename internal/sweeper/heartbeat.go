package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/rsu-fleet-core/internal/protocol"
)

// Publisher sends a message on the fleet bus at the default QoS.
type Publisher interface {
	PublishDefault(topic string, payload []byte) error
}

// Heartbeater publishes this node's heartbeat on V2X/NODE/<id>/HB.
type Heartbeater struct {
	pub    Publisher
	nodeID string
	mode   string
	now    func() time.Time
}

// NewHeartbeater creates a Heartbeater for the node nodeID running in mode.
func NewHeartbeater(pub Publisher, nodeID, mode string) *Heartbeater {
	return &Heartbeater{
		pub:    pub,
		nodeID: nodeID,
		mode:   mode,
		now:    time.Now,
	}
}

// Beat publishes one heartbeat. A failed publish is returned, not retried.
func (h *Heartbeater) Beat(_ context.Context) error {
	payload, err := json.Marshal(protocol.NodeHeartbeat{
		NodeID:    h.nodeID,
		Mode:      h.mode,
		Timestamp: h.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("encoding heartbeat: %w", err)
	}
	if err := h.pub.PublishDefault(mqtt.Topics{}.NodeHeartbeat(h.nodeID), payload); err != nil {
		return fmt.Errorf("publishing heartbeat: %w", err)
	}
	return nil
}
