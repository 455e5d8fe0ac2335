// Package protocol defines the JSON messages exchanged over the fleet bus.
//
// Each message kind is its own Go type. The router decodes a payload into
// the type registered for its topic and calls Validate before any handler
// sees it, so handlers never inspect loosely typed maps.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMessage is wrapped by every Validate failure.
var ErrInvalidMessage = errors.New("protocol: invalid message")

// Message is implemented by every uplink message type.
type Message interface {
	Validate() error
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, fmt.Sprintf(format, args...))
}

// topicReserved are the characters MQTT gives meaning to inside a topic.
const topicReserved = "/+#\x00"

// CheckSegment reports whether s can be used as a single MQTT topic level.
// ESNs and edge names are embedded in reply topics, so they must not be
// empty or contain a level separator, a wildcard or NUL.
func CheckSegment(field, s string) error {
	if s == "" {
		return invalid("%s is required", field)
	}
	if strings.ContainsAny(s, topicReserved) {
		return invalid("%s %q contains a reserved topic character", field, s)
	}
	return nil
}

// Location is a WGS84 position.
type Location struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Validate rejects coordinates outside WGS84 bounds.
func (l Location) Validate() error {
	if l.Lon < -180 || l.Lon > 180 || l.Lat < -90 || l.Lat > 90 {
		return invalid("location (%v, %v) out of range", l.Lon, l.Lat)
	}
	return nil
}

// =============================================================================
// Device to node
// =============================================================================

// IdentityReport is a device's self-description, sent on boot and periodically.
type IdentityReport struct {
	ESN      string   `json:"esn"`
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Location Location `json:"location"`
	Status   int      `json:"status"`
}

// Validate requires a topic-safe esn and an in-range location.
func (m IdentityReport) Validate() error {
	if err := CheckSegment("identity report esn", m.ESN); err != nil {
		return err
	}
	return m.Location.Validate()
}

// Heartbeat keeps a device's liveness entry fresh.
type Heartbeat struct {
	ESN       string `json:"esn"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Validate requires a topic-safe esn.
func (m Heartbeat) Validate() error {
	return CheckSegment("heartbeat esn", m.ESN)
}

// RunningInfo is a periodic resource-usage report.
type RunningInfo struct {
	ESN       string             `json:"esn"`
	Metrics   map[string]float64 `json:"metrics"`
	Timestamp int64              `json:"timestamp,omitempty"`
}

// Validate requires a topic-safe esn.
func (m RunningInfo) Validate() error {
	return CheckSegment("running info esn", m.ESN)
}

// Ack acknowledges a dispatched job. ErrorCode 0 means success.
type Ack struct {
	ID        string `json:"id"`
	ErrorCode int    `json:"errorCode"`
}

// Validate requires a correlation id.
func (m Ack) Validate() error {
	if m.ID == "" {
		return invalid("ack without correlation id")
	}
	return nil
}

// QueryResponse carries a device's answer to a QueryRequest.
type QueryResponse struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Validate requires a correlation id and a JSON data payload.
func (m QueryResponse) Validate() error {
	if m.ID == "" {
		return invalid("query response without correlation id")
	}
	if len(m.Data) == 0 || !json.Valid(m.Data) {
		return invalid("query response %s without data", m.ID)
	}
	return nil
}

// =============================================================================
// Edge node to node
// =============================================================================

// EdgeRegister announces an edge node. The reply carries its assigned id.
type EdgeRegister struct {
	Name     string `json:"name"`
	IP       string `json:"ip"`
	AreaCode string `json:"areaCode"`
}

// Validate requires a topic-safe edge name.
func (m EdgeRegister) Validate() error {
	return CheckSegment("edge name", m.Name)
}

// EdgeHeartbeat keeps an edge node's liveness entry fresh.
type EdgeHeartbeat struct {
	EdgeID int64 `json:"edgeId"`
}

// Validate requires a positive edge id.
func (m EdgeHeartbeat) Validate() error {
	if m.EdgeID <= 0 {
		return invalid("edge heartbeat without edge id")
	}
	return nil
}

// EdgeRSU is one device as reported by the edge node that owns it.
type EdgeRSU struct {
	ESN      string   `json:"esn"`
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Location Location `json:"location"`
	Status   int      `json:"status"`
	Online   bool     `json:"online"`
}

// EdgeSync is an edge node's complete sub-fleet. It replaces whatever was
// held for that edge before.
type EdgeSync struct {
	EdgeID int64     `json:"edgeId"`
	RSUs   []EdgeRSU `json:"rsus"`
}

// Validate requires a positive edge id and distinct, topic-safe esns.
func (m EdgeSync) Validate() error {
	if m.EdgeID <= 0 {
		return invalid("edge sync without edge id")
	}
	seen := make(map[string]bool, len(m.RSUs))
	for _, r := range m.RSUs {
		if err := CheckSegment("edge sync esn", r.ESN); err != nil {
			return fmt.Errorf("edge sync %d: %w", m.EdgeID, err)
		}
		if seen[r.ESN] {
			return invalid("edge sync %d lists esn %s twice", m.EdgeID, r.ESN)
		}
		seen[r.ESN] = true
	}
	return nil
}

// EdgeLocation moves one device of an edge node's sub-fleet.
type EdgeLocation struct {
	EdgeID   int64    `json:"edgeId"`
	ESN      string   `json:"esn"`
	Location Location `json:"location"`
}

// Validate requires a positive edge id, a topic-safe esn and an in-range location.
func (m EdgeLocation) Validate() error {
	if m.EdgeID <= 0 {
		return invalid("edge location without edge id")
	}
	if err := CheckSegment("edge location esn", m.ESN); err != nil {
		return err
	}
	return m.Location.Validate()
}

// EdgeRegisterReply tells an edge node the id it was assigned.
type EdgeRegisterReply struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Validate requires an assigned id and a topic-safe edge name.
func (m EdgeRegisterReply) Validate() error {
	if m.ID <= 0 {
		return invalid("edge register reply without id")
	}
	return CheckSegment("edge name", m.Name)
}

// =============================================================================
// Node to device
// =============================================================================

// ConfigPush delivers a config, log-shipping or management job. ID is the
// correlation id the device must echo in its Ack; it is empty on broadcasts.
type ConfigPush struct {
	ID      string          `json:"id,omitempty"`
	Kind    string          `json:"kind"`
	Name    string          `json:"name,omitempty"`
	Content json.RawMessage `json:"content"`
}

// QueryRequest asks a device for data. ID is echoed in the QueryResponse.
type QueryRequest struct {
	ID        string `json:"id"`
	QueryType int    `json:"queryType"`
	TimeType  int    `json:"timeType"`
}

// Registration states carried by RegistrationAck.
const (
	RegistrationRegistered  = "registered"
	RegistrationProvisional = "provisional"
)

// RegistrationAck answers an IdentityReport.
type RegistrationAck struct {
	ESN    string `json:"esn"`
	Status string `json:"status"`
	RSUID  int64  `json:"rsuId,omitempty"`
}

// NodeHeartbeat is this node's own periodic liveness signal.
type NodeHeartbeat struct {
	NodeID    string `json:"nodeId"`
	Mode      string `json:"mode"`
	Timestamp int64  `json:"timestamp"`
}
